package protocol

import (
	"reflect"
	"testing"
)

func TestParseLineRoundTrip(t *testing.T) {
	// R1: parse(format(msg)) == msg. Re-serializing a parsed message and
	// re-parsing it must yield an identical Message, even though the wire
	// text itself may gain or lose a cosmetic leading ":" on a trailing
	// parameter that happens not to need it.
	cases := []string{
		"PING :irc.example.com",
		":AB PRIVMSG #channel :hello there friend",
		":ABCDE NICK newnick",
		"NICK somebody 0 1000 user host +i ABCDE :Real Name",
		":AB SERVER hub.example.com 1 1000 1000 J10 AB ABSQHsb :Hub Server",
	}
	for _, line := range cases {
		msg, err := ParseLine(line)
		if err != nil {
			t.Fatalf("ParseLine(%q): %v", line, err)
		}
		reparsed, err := ParseLine(msg.String())
		if err != nil {
			t.Fatalf("ParseLine(msg.String()) for %q: %v", line, err)
		}
		if reparsed.Prefix != msg.Prefix || reparsed.Verb != msg.Verb || !reflect.DeepEqual(reparsed.Params, msg.Params) {
			t.Errorf("round trip mismatch for %q: got %+v, want %+v", line, reparsed, msg)
		}
		Release(msg)
		Release(reparsed)
	}
}

func TestParseLineEmpty(t *testing.T) {
	if _, err := ParseLine(""); err != ErrEmptyLine {
		t.Errorf("ParseLine(\"\") error = %v, want ErrEmptyLine", err)
	}
	if _, err := ParseLine("   "); err != ErrEmptyLine {
		t.Errorf("ParseLine(whitespace) error = %v, want ErrEmptyLine", err)
	}
}

func TestParseLineTooLong(t *testing.T) {
	long := make([]byte, MaxLineLength)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := ParseLine(string(long)); err != ErrLineTooLong {
		t.Errorf("ParseLine(long) error = %v, want ErrLineTooLong", err)
	}
}

func TestParseLineTooManyParams(t *testing.T) {
	line := "CMD a b c d e f g h i j k l m n o p"
	if _, err := ParseLine(line); err != ErrTooManyParams {
		t.Errorf("ParseLine(16 params) error = %v, want ErrTooManyParams", err)
	}
}

func TestParseLinePrefix(t *testing.T) {
	msg, err := ParseLine(":AB PRIVMSG #chan :hi")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if msg.Prefix != "AB" {
		t.Errorf("Prefix = %q, want AB", msg.Prefix)
	}
	if msg.Verb != "PRIVMSG" {
		t.Errorf("Verb = %q, want PRIVMSG", msg.Verb)
	}
	if len(msg.Params) != 2 || msg.Params[0] != "#chan" || msg.Params[1] != "hi" {
		t.Errorf("Params = %v, want [#chan hi]", msg.Params)
	}
}

func TestSplit(t *testing.T) {
	buf := []byte("PING :a\r\nPONG :b\r\nPAR")
	lines, remainder := Split(buf)
	want := []string{"PING :a", "PONG :b"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("Split lines = %v, want %v", lines, want)
	}
	if string(remainder) != "PAR" {
		t.Errorf("Split remainder = %q, want %q", remainder, "PAR")
	}
}

func TestBurstRoundTrip(t *testing.T) {
	b := Burst{
		Channel:    "#test",
		CreationTS: 400,
		HasModes:   true,
		Modes:      "nt",
		Members: []BurstMember{
			{Numnick: "AAA", Flag: MemberOp},
			{Numnick: "AAB", Flag: MemberNone},
		},
		Bans: []string{"*!*@evil.example.com"},
	}
	msg := BuildBurst(b)
	got, ok := ParseBurst(msg)
	if !ok {
		t.Fatalf("ParseBurst failed on %q", msg.String())
	}
	if got.Channel != b.Channel || got.CreationTS != b.CreationTS {
		t.Errorf("ParseBurst channel/ts = %v/%v, want %v/%v", got.Channel, got.CreationTS, b.Channel, b.CreationTS)
	}
	if got.Modes != b.Modes {
		t.Errorf("ParseBurst modes = %q, want %q", got.Modes, b.Modes)
	}
	if len(got.Members) != 2 || got.Members[0].Flag != MemberOp || got.Members[1].Flag != MemberNone {
		t.Errorf("ParseBurst members = %+v", got.Members)
	}
	if len(got.Bans) != 1 || got.Bans[0] != "*!*@evil.example.com" {
		t.Errorf("ParseBurst bans = %v", got.Bans)
	}
}

func TestGlineRoundTrip(t *testing.T) {
	op := GlineOp{Target: "*", Active: true, Mask: "*@evil.example.com", ExpireOffset: 3600, Lastmod: 12345, Reason: "spamming"}
	msg := BuildGline(op)
	got, ok := ParseGline(msg)
	if !ok {
		t.Fatalf("ParseGline failed on %q", msg.String())
	}
	if got != op {
		t.Errorf("ParseGline = %+v, want %+v", got, op)
	}
}

func TestServerRoundTrip(t *testing.T) {
	msg := BuildServer("hub.example.com", 1, 1000, 1000, 10, "AB", "ABSQHsb", "Hub Server")
	got, ok := ParseServer(msg)
	if !ok {
		t.Fatalf("ParseServer failed on %q", msg.String())
	}
	if got.Name != "hub.example.com" || got.Numnick != "AB" || got.ProtocolVersion != 10 {
		t.Errorf("ParseServer = %+v", got)
	}
}
