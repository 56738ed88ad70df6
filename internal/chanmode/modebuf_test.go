package chanmode

import (
	"testing"

	"github.com/supamanluva/ircd/internal/store"
)

func TestParseModeStringBasic(t *testing.T) {
	ch := store.NewChannel("#test", 1000)
	b := NewBuilder(ch, "AAA", false)
	ParseModeString(b, "+nt-s", nil)
	res := b.Flush()

	if !ch.HasMode('n') || !ch.HasMode('t') {
		t.Errorf("expected n and t modes set, channel modes unset")
	}
	if res.LocalModes == "" {
		t.Error("expected a non-empty LocalModes rendering")
	}
}

func TestParseModeStringKeyRequiresParamOnSetAndUnset(t *testing.T) {
	ch := store.NewChannel("#test", 1000)
	b := NewBuilder(ch, "AAA", false)
	ParseModeString(b, "+k", []string{"secret"})
	b.Flush()
	if !ch.HasMode('k') {
		t.Fatal("expected key mode to be set")
	}

	b2 := NewBuilder(ch, "AAA", false)
	ParseModeString(b2, "-k", []string{"secret"})
	b2.Flush()
	if ch.HasMode('k') {
		t.Error("expected key mode to be cleared")
	}
}

func TestParseModeStringLimitOnlyNeedsParamOnSet(t *testing.T) {
	ch := store.NewChannel("#test", 1000)
	b := NewBuilder(ch, "AAA", false)
	ParseModeString(b, "+l", []string{"10"})
	b.Flush()
	if !ch.HasMode('l') {
		t.Fatal("expected limit mode set")
	}

	b2 := NewBuilder(ch, "AAA", false)
	ParseModeString(b2, "-l", nil)
	b2.Flush()
	if ch.HasMode('l') {
		t.Error("expected limit mode cleared without needing a param")
	}
}

func TestPrivilegedModeRequiresOpmode(t *testing.T) {
	ch := store.NewChannel("#test", 1000)
	b := NewBuilder(ch, "AAA", false)
	ParseModeString(b, "+A", []string{"adminpass"})
	b.Flush()
	if ch.HasMode('A') {
		t.Error("unprivileged builder should not be able to set +A")
	}

	b2 := NewBuilder(ch, "AAA", true)
	ParseModeString(b2, "+A", []string{"adminpass"})
	b2.Flush()
	if !ch.HasMode('A') {
		t.Error("privileged (OPMODE) builder should be able to set +A")
	}
}

func TestBanAlgebraSupersetRejection(t *testing.T) {
	ch := store.NewChannel("#test", 1000)
	b1 := NewBuilder(ch, "AAA", false)
	b1.Add('b', true, "*!*@*.example.com")
	b1.Flush()

	b2 := NewBuilder(ch, "AAA", false)
	b2.Add('b', true, "user!ident@host.example.com")
	b2.Flush()

	bans := ch.BansSnapshot()
	if len(bans) != 1 || bans[0].Mask != "*!*@*.example.com" {
		t.Fatalf("expected narrower ban rejected, got %+v", bans)
	}
}

func TestBanAlgebraWiderAbsorbsNarrower(t *testing.T) {
	ch := store.NewChannel("#test", 1000)
	b1 := NewBuilder(ch, "AAA", false)
	b1.Add('b', true, "user!ident@host.example.com")
	b1.Flush()

	b2 := NewBuilder(ch, "AAA", false)
	b2.Add('b', true, "*!*@*.example.com")
	b2.Flush()

	bans := ch.BansSnapshot()
	if len(bans) != 1 || bans[0].Mask != "*!*@*.example.com" {
		t.Fatalf("expected wider ban to absorb the narrower one, got %+v", bans)
	}
}

func TestBuildClearMode(t *testing.T) {
	ch := store.NewChannel("#test", 1000)
	ch.SetMode('i', true, "")
	ch.SetMode('m', true, "")
	b := NewBuilder(ch, "AAA", false)
	b.Add('b', true, "*!*@evil.example.com")
	b.Flush()

	BuildClearMode(ch, "AAA", ClearModeControlString)

	if ch.HasMode('i') || ch.HasMode('m') {
		t.Error("CLEARMODE should wipe named modes")
	}
	if len(ch.BansSnapshot()) != 0 {
		t.Error("CLEARMODE should wipe the ban list")
	}
}
