package protocol

import "strconv"

// GlineOp is the parsed payload of a GLINE line:
// `GLINE <target> <+|-><mask> <expire-offset> <lastmod> :<reason>`
type GlineOp struct {
	Target       string
	Active       bool
	Mask         string
	ExpireOffset int64
	Lastmod      int64
	Reason       string
}

// BuildGline renders a GlineOp. Deactivation (Active=false) omits the
// reason per convention (the existing ban record retains its own).
func BuildGline(op GlineOp) *Message {
	sign := "+"
	if !op.Active {
		sign = "-"
	}
	params := []string{
		op.Target,
		sign + op.Mask,
		strconv.FormatInt(op.ExpireOffset, 10),
		strconv.FormatInt(op.Lastmod, 10),
	}
	if op.Active {
		params = append(params, op.Reason)
	}
	return &Message{Verb: VerbGline, Params: params}
}

// ParseGline parses a GLINE line into a GlineOp.
func ParseGline(m *Message) (GlineOp, bool) {
	var op GlineOp
	if m.Verb != VerbGline || len(m.Params) < 4 {
		return op, false
	}
	maskParam := m.Params[1]
	if maskParam == "" {
		return op, false
	}
	op.Active = maskParam[0] == '+'
	op.Mask = maskParam[1:]
	op.Target = m.Params[0]

	offset, err := strconv.ParseInt(m.Params[2], 10, 64)
	if err != nil {
		return op, false
	}
	op.ExpireOffset = offset

	lastmod, err := strconv.ParseInt(m.Params[3], 10, 64)
	if err != nil {
		return op, false
	}
	op.Lastmod = lastmod

	if len(m.Params) > 4 {
		op.Reason = m.Params[4]
	}
	return op, true
}

// JupeOp mirrors GlineOp exactly; jupes and G-lines share the same
// lastmod/activate/deactivate lifecycle (spec §4.I / SPEC_FULL §5).
type JupeOp = GlineOp

// BuildJupe renders a JupeOp onto a JUPE verb.
func BuildJupe(op JupeOp) *Message {
	m := BuildGline(op)
	m.Verb = VerbJupe
	return m
}

// ParseJupe parses a JUPE line into a JupeOp.
func ParseJupe(m *Message) (JupeOp, bool) {
	if m.Verb != VerbJupe {
		return JupeOp{}, false
	}
	borrowed := *m
	borrowed.Verb = VerbGline
	return ParseGline(&borrowed)
}

// BuildClearMode renders `CLEARMODE <#channel> <control-string>`, the fixed
// control string naming which modes to wipe (spec's supplemented feature,
// §5 of SPEC_FULL: ircu2's m_clearmode.c control string, conventionally
// "ovpsmikbl").
func BuildClearMode(channel, controlString string) *Message {
	return &Message{Verb: VerbClearMode, Params: []string{channel, controlString}}
}

// ParseClearMode extracts the channel and control string from a CLEARMODE
// line.
func ParseClearMode(m *Message) (channel, controlString string, ok bool) {
	if m.Verb != VerbClearMode || len(m.Params) < 2 {
		return "", "", false
	}
	return m.Params[0], m.Params[1], true
}

// BuildOpMode renders `OPMODE <#channel> <modestring> (<arg>)*`, a
// privileged MODE variant that bypasses normal op requirements.
func BuildOpMode(channel string, modes string, args ...string) *Message {
	params := append([]string{channel, modes}, args...)
	return &Message{Verb: VerbOpMode, Params: params}
}

// ParseOpMode extracts the channel, modestring, and args from an OPMODE
// line.
func ParseOpMode(m *Message) (channel, modes string, args []string, ok bool) {
	if m.Verb != VerbOpMode || len(m.Params) < 2 {
		return "", "", nil, false
	}
	return m.Params[0], m.Params[1], m.Params[2:], true
}
