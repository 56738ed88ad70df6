package resolve

import (
	"testing"
	"time"
)

func TestResolveNickCollisionUnknownLocalDropped(t *testing.T) {
	d := ResolveNickCollision(NickCollisionInput{ExistingUnknownLocal: true})
	if d != KillExisting {
		t.Errorf("ResolveNickCollision(unknown local) = %v, want KillExisting", d)
	}
}

func TestResolveNickCollisionSameIdentKillsBoth(t *testing.T) {
	d := ResolveNickCollision(NickCollisionInput{
		ExistingLastnick: 1000, IncomingLastnick: 2000, SameIdent: true,
	})
	if d != KillBoth {
		t.Errorf("ResolveNickCollision(same ident) = %v, want KillBoth", d)
	}
}

func TestResolveNickCollisionDifferentTimestamps(t *testing.T) {
	// Scenario 1 from spec: B has foo with lastnick=1100 (existing), A
	// introduces foo with lastnick=1000 (incoming, older). Expected: B
	// (existing) loses.
	d := ResolveNickCollision(NickCollisionInput{
		ExistingLastnick: 1100, IncomingLastnick: 1000,
	})
	if d != KillExisting {
		t.Errorf("ResolveNickCollision(existing newer) = %v, want KillExisting", d)
	}

	d2 := ResolveNickCollision(NickCollisionInput{
		ExistingLastnick: 1000, IncomingLastnick: 1100,
	})
	if d2 != KillIncoming {
		t.Errorf("ResolveNickCollision(incoming newer) = %v, want KillIncoming", d2)
	}
}

func TestResolveNickCollisionEqualTimestamps(t *testing.T) {
	// Scenario 2 from spec: equal lastnick on both -> both killed.
	d := ResolveNickCollision(NickCollisionInput{
		ExistingLastnick: 1000, IncomingLastnick: 1000,
	})
	if d != KillBoth {
		t.Errorf("ResolveNickCollision(equal ts) = %v, want KillBoth", d)
	}
}

func TestResolveServerCollisionConfigError(t *testing.T) {
	d := ResolveServerCollision(ServerCollisionInput{
		ExistingName: "a.example.com", IncomingName: "b.example.com",
		ExistingNumnick: "AB", IncomingNumnick: "AB",
	})
	if d != ConfigError {
		t.Errorf("ResolveServerCollision(numnick clash, name differs) = %v, want ConfigError", d)
	}
}

func TestResolveServerCollisionByLinkTS(t *testing.T) {
	d := ResolveServerCollision(ServerCollisionInput{
		ExistingName: "a.example.com", IncomingName: "a.example.com",
		ExistingLinkTS: 1000, IncomingLinkTS: 2000,
	})
	if d != SquitIncoming {
		t.Errorf("ResolveServerCollision(existing older) = %v, want SquitIncoming", d)
	}

	d2 := ResolveServerCollision(ServerCollisionInput{
		ExistingName: "a.example.com", IncomingName: "a.example.com",
		ExistingLinkTS: 2000, IncomingLinkTS: 1000,
	})
	if d2 != SquitExisting {
		t.Errorf("ResolveServerCollision(incoming older) = %v, want SquitExisting", d2)
	}
}

type fakeGhostTracker struct {
	last time.Time
}

func (f *fakeGhostTracker) RecentGhost(now time.Time, window time.Duration) bool {
	return !f.last.IsZero() && now.Sub(f.last) < window
}
func (f *fakeGhostTracker) NoteGhost(now time.Time) { f.last = now }

func TestGhostOscillationGuard(t *testing.T) {
	g := &fakeGhostTracker{}
	now := time.Now()
	if IsOscillatingGhost(g, now) {
		t.Error("fresh tracker should not report a recent ghost")
	}
	RecordGhost(g, now)
	if !IsOscillatingGhost(g, now.Add(5*time.Second)) {
		t.Error("expected ghost within window to be detected")
	}
	if IsOscillatingGhost(g, now.Add(21*time.Second)) {
		t.Error("expected ghost outside window to no longer be detected")
	}
}
