package protocol

import "strings"

// MaxLineLength is the maximum wire line length including the CRLF
// terminator (spec §4.A/§6).
const MaxLineLength = 512

// MaxParams is the maximum number of parameters a line may carry, a
// trailing ":"-prefixed final parameter included (spec §4.A: "up to 15
// parameters").
const MaxParams = 15

const (
	space = " "
	colon = ":"
	crlf  = "\r\n"
)

// Message is a single parsed P10 (or local-client) protocol line: an
// optional source prefix (a numnick between peers, a bare name for local
// clients, empty for most client-to-server traffic), a verb (either an
// uppercase command name or a 1-4 character peer token), and up to 15
// parameters, the last of which may have been introduced by ":" and so may
// contain embedded spaces.
type Message struct {
	Prefix string
	Verb   string
	Params []string
}

// scrub resets a Message to its zero value in place, so pooled instances
// don't leak stale field values to their next user.
func (m *Message) scrub() {
	m.Prefix = ""
	m.Verb = ""
	m.Params = nil
}

// String renders the message back to wire form, without the CRLF
// terminator. Round-tripping ParseLine(m.String()) must reproduce m
// (spec's R1 property).
func (m *Message) String() string {
	var b strings.Builder
	if m.Prefix != "" {
		b.WriteString(colon)
		b.WriteString(m.Prefix)
		b.WriteString(space)
	}
	b.WriteString(m.Verb)
	for i, p := range m.Params {
		b.WriteString(space)
		last := i == len(m.Params)-1
		if last && (p == "" || strings.ContainsAny(p, " ") || strings.HasPrefix(p, ":")) {
			b.WriteString(colon)
		}
		b.WriteString(p)
	}
	return b.String()
}

// Bytes renders the message to wire form including the CRLF terminator.
func (m *Message) Bytes() []byte {
	return append([]byte(m.String()), crlf...)
}

// Param returns the i'th parameter, or "" if it does not exist.
func (m *Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}
