package parser

import (
	"github.com/supamanluva/ircd/internal/protocol"
)

// Message represents a parsed IRC message, in the shape the rest of
// internal/commands already expects. It's a thin local-client view onto
// protocol.Message: Command instead of Verb, Raw carries the original line.
type Message struct {
	Prefix  string   // Optional prefix (sender)
	Command string   // IRC command (e.g., PRIVMSG, JOIN)
	Params  []string // Command parameters
	Raw     string   // Raw message string
}

// Parse parses a raw IRC protocol line via internal/protocol.ParseLine, so
// local client connections are held to the same 512-byte line cap, 15-param
// limit, and ParseError taxonomy (spec §4.A) as peer links already are.
// Format: [:prefix] <command> [params] [:trailing]
func Parse(raw string) (*Message, error) {
	pm, err := protocol.ParseLine(raw)
	if err != nil {
		return nil, err
	}
	msg := &Message{
		Prefix:  pm.Prefix,
		Command: pm.Verb,
		Params:  append([]string(nil), pm.Params...),
		Raw:     raw,
	}
	protocol.Release(pm)
	return msg, nil
}

// IsValid checks if the message has a valid command (a nil message has none)
func (m *Message) IsValid() bool {
	return m != nil && m.Command != ""
}

// GetParam returns the parameter at the given index, or empty string if not found
func (m *Message) GetParam(index int) string {
	if index < 0 || index >= len(m.Params) {
		return ""
	}
	return m.Params[index]
}

// HasParam checks if a parameter exists at the given index
func (m *Message) HasParam(index int) bool {
	return index >= 0 && index < len(m.Params)
}
