package protocol

import (
	"strconv"
	"strings"
)

// MemberFlag is a per-member status tag carried in a BURST nicklist entry.
type MemberFlag int

const (
	// MemberNone marks a plain (unprivileged) member.
	MemberNone MemberFlag = iota
	// MemberOp marks a channel operator (":o" suffix).
	MemberOp
	// MemberVoice marks a voiced member (":v" suffix).
	MemberVoice
	// MemberOpVoice marks a member who is both op and voiced (":ov" suffix).
	MemberOpVoice
)

// BurstMember is one entry of a BURST line's comma-separated nicklist.
type BurstMember struct {
	Numnick string
	Flag    MemberFlag
}

// Burst is the parsed payload of a single BURST line (spec §6's normative
// grammar):
//
//	BURST <#channel> <creation-ts> (SP <modeparam>)* (SP <nicklist>)* [SP ":%" <ban>*]
//
// A single logical channel burst may be split across several BURST lines
// when the member/ban lists are long; later lines omit Modes/ModeArgs
// (the spec's "later lines omit the mode and nick-flag re-base").
type Burst struct {
	Channel    string
	CreationTS int64
	HasModes   bool
	Modes      string
	ModeArgs   []string
	Members    []BurstMember
	Bans       []string
}

// BuildBurst renders a Burst back to wire form. Per spec, the "+" prefix on
// a parameter distinguishes a mode string, "%" distinguishes the ban list,
// and any other leading character marks a member list entry.
func BuildBurst(b Burst) *Message {
	params := []string{b.Channel, strconv.FormatInt(b.CreationTS, 10)}
	if b.HasModes {
		modeParam := "+" + b.Modes
		params = append(params, modeParam)
		params = append(params, b.ModeArgs...)
	}
	if len(b.Members) > 0 {
		parts := make([]string, len(b.Members))
		for i, m := range b.Members {
			parts[i] = m.Numnick + memberFlagSuffix(m.Flag)
		}
		params = append(params, strings.Join(parts, ","))
	}
	if len(b.Bans) > 0 {
		trailing := "%" + strings.Join(b.Bans, " ")
		params = append(params, trailing)
	}
	return &Message{Verb: VerbBurst, Params: params}
}

func memberFlagSuffix(f MemberFlag) string {
	switch f {
	case MemberOp:
		return ":o"
	case MemberVoice:
		return ":v"
	case MemberOpVoice:
		return ":ov"
	default:
		return ""
	}
}

func parseMemberFlag(s string) MemberFlag {
	switch s {
	case "o":
		return MemberOp
	case "v":
		return MemberVoice
	case "ov", "vo":
		return MemberOpVoice
	default:
		return MemberNone
	}
}

// ParseBurst parses a BURST line's parameters into a Burst. It tolerates
// any subset of the optional sections being absent, since a continuation
// line carries only a fresh member/ban chunk.
func ParseBurst(m *Message) (Burst, bool) {
	var b Burst
	if m.Verb != VerbBurst || len(m.Params) < 2 {
		return b, false
	}
	b.Channel = m.Params[0]
	ts, err := strconv.ParseInt(m.Params[1], 10, 64)
	if err != nil {
		return b, false
	}
	b.CreationTS = ts

	rest := m.Params[2:]
	i := 0
	if i < len(rest) && strings.HasPrefix(rest[i], "+") {
		b.HasModes = true
		b.Modes = strings.TrimPrefix(rest[i], "+")
		i++
		need := 0
		for j := 0; j < len(b.Modes); j++ {
			switch b.Modes[j] {
			case 'k', 'l', 'A', 'U':
				need++
			}
		}
		for n := 0; n < need && i < len(rest) && !strings.HasPrefix(rest[i], "%") && !isNicklist(rest[i]); n++ {
			b.ModeArgs = append(b.ModeArgs, rest[i])
			i++
		}
	}
	if i < len(rest) && !strings.HasPrefix(rest[i], "%") {
		for _, entry := range strings.Split(rest[i], ",") {
			if entry == "" {
				continue
			}
			parts := strings.SplitN(entry, ":", 2)
			member := BurstMember{Numnick: parts[0]}
			if len(parts) == 2 {
				member.Flag = parseMemberFlag(parts[1])
			}
			b.Members = append(b.Members, member)
		}
		i++
	}
	if i < len(rest) && strings.HasPrefix(rest[i], "%") {
		banStr := strings.TrimPrefix(rest[i], "%")
		if banStr != "" {
			b.Bans = strings.Fields(banStr)
		}
	}
	return b, true
}

// isNicklist is a best-effort disambiguator used while parsing a BURST
// line's variable-shape middle section: mode arguments never contain "," or
// ":", while a nicklist entry always does once there is more than one
// member or a member carries a status flag. A lone unflagged member is not
// recognised here; ParseBurst keeps it out of ModeArgs by taking only as
// many mode arguments as the mode string's k/l/A/U letters call for.
func isNicklist(s string) bool {
	return strings.Contains(s, ",") || strings.Contains(s, ":")
}

// BuildEOB renders the end-of-burst marker a peer sends after its last
// BURST line.
func BuildEOB() *Message {
	return &Message{Verb: VerbEOB}
}

// BuildEOBAck renders the acknowledgement sent in reply to EOB, which flips
// the peer out of burst-ack state on the sender's side.
func BuildEOBAck() *Message {
	return &Message{Verb: VerbEOBAck}
}
