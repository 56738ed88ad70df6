package protocol

import (
	"strconv"
	"strings"
)

// Verb names used on peer links and by local clients. Only these long-form
// names are defined: short P10 peer tokens are not mapped to them, so a
// peer line is recognised by its long-form verb alone.
const (
	VerbPass      = "PASS"
	VerbServer    = "SERVER"
	VerbNick      = "NICK"
	VerbUser      = "USER"
	VerbWebirc    = "WEBIRC"
	VerbQuit      = "QUIT"
	VerbSquit     = "SQUIT"
	VerbKill      = "KILL"
	VerbJoin      = "JOIN"
	VerbPart      = "PART"
	VerbKick      = "KICK"
	VerbTopic     = "TOPIC"
	VerbMode      = "MODE"
	VerbInvite    = "INVITE"
	VerbNames     = "NAMES"
	VerbBurst     = "BURST"
	VerbEOB       = "EOB"
	VerbEOBAck    = "EOB_ACK"
	VerbPrivmsg   = "PRIVMSG"
	VerbNotice    = "NOTICE"
	VerbWallChOps = "WALLCHOPS"
	VerbWallops   = "WALLOPS"
	VerbGline     = "GLINE"
	VerbJupe      = "JUPE"
	VerbClearMode = "CLEARMODE"
	VerbOpMode    = "OPMODE"
	VerbPing      = "PING"
	VerbPong      = "PONG"
	VerbSettime   = "SETTIME"
)

// BuildPass renders a PASS line: `PASS <password> P10`. The
// trailing P10 marker lets a handshake partner distinguish this protocol
// from legacy linking protocols during the Connecting/Handshake states.
func BuildPass(password string) *Message {
	return &Message{Verb: VerbPass, Params: []string{password, "P10"}}
}

// ParsePass extracts the password from a PASS line.
func ParsePass(m *Message) (password string, ok bool) {
	if m.Verb != VerbPass || len(m.Params) < 1 {
		return "", false
	}
	return m.Params[0], true
}

// BuildServer renders a SERVER introduction line:
// `SERVER <name> <hopcount> <start-ts> <link-ts> <protocol> <numnick> <flags> :<description>`
func BuildServer(name string, hopcount int, startTS, linkTS int64, protocolVersion int, numnick, flags, description string) *Message {
	return &Message{
		Verb: VerbServer,
		Params: []string{
			name,
			strconv.Itoa(hopcount),
			strconv.FormatInt(startTS, 10),
			strconv.FormatInt(linkTS, 10),
			"J" + strconv.Itoa(protocolVersion),
			numnick,
			flags,
			description,
		},
	}
}

// ServerIntro is the parsed payload of a SERVER line.
type ServerIntro struct {
	Name            string
	Hopcount        int
	StartTS         int64
	LinkTS          int64
	ProtocolVersion int
	Numnick         string
	Flags           string
	Description     string
}

// ParseServer parses a SERVER line into its typed fields.
func ParseServer(m *Message) (ServerIntro, bool) {
	var si ServerIntro
	if m.Verb != VerbServer || len(m.Params) < 8 {
		return si, false
	}
	hop, err := strconv.Atoi(m.Params[1])
	if err != nil {
		return si, false
	}
	start, err := strconv.ParseInt(m.Params[2], 10, 64)
	if err != nil {
		return si, false
	}
	link, err := strconv.ParseInt(m.Params[3], 10, 64)
	if err != nil {
		return si, false
	}
	proto, _ := strconv.Atoi(strings.TrimPrefix(m.Params[4], "J"))
	si = ServerIntro{
		Name:            m.Params[0],
		Hopcount:        hop,
		StartTS:         start,
		LinkTS:          link,
		ProtocolVersion: proto,
		Numnick:         m.Params[5],
		Flags:           m.Params[6],
		Description:     m.Params[7],
	}
	return si, true
}

// BuildNickIntro renders a remote NICK introduction:
// `NICK <nick> <hopcount> <lastnick-ts> <user> <host> <modes> <numnick> :<realname>`
func BuildNickIntro(nick string, hopcount int, lastnick int64, user, host, modes, numnick, realname string) *Message {
	return &Message{
		Verb: VerbNick,
		Params: []string{
			nick,
			strconv.Itoa(hopcount),
			strconv.FormatInt(lastnick, 10),
			user, host, modes, numnick, realname,
		},
	}
}

// NickIntro is the parsed payload of a remote NICK introduction.
type NickIntro struct {
	Nick     string
	Hopcount int
	Lastnick int64
	User     string
	Host     string
	Modes    string
	Numnick  string
	Realname string
}

// ParseNickIntro parses a remote (server-sourced) NICK introduction line.
// A local NICK change (no prefix, one param: the new nick) does not match
// this shape and should be handled separately by internal/commands.
func ParseNickIntro(m *Message) (NickIntro, bool) {
	var ni NickIntro
	if m.Verb != VerbNick || len(m.Params) < 7 {
		return ni, false
	}
	hop, err := strconv.Atoi(m.Params[1])
	if err != nil {
		return ni, false
	}
	ts, err := strconv.ParseInt(m.Params[2], 10, 64)
	if err != nil {
		return ni, false
	}
	ni = NickIntro{
		Nick: m.Params[0], Hopcount: hop, Lastnick: ts,
		User: m.Params[3], Host: m.Params[4], Modes: m.Params[5],
		Numnick: m.Params[6],
	}
	if len(m.Params) > 7 {
		ni.Realname = m.Params[7]
	}
	return ni, true
}

// BuildSquit renders `SQUIT <server> <hopcount> :<reason>`.
func BuildSquit(server string, hopcount int, reason string) *Message {
	return &Message{Verb: VerbSquit, Params: []string{server, strconv.Itoa(hopcount), reason}}
}

// ParseSquit extracts the target server and reason from a SQUIT line.
func ParseSquit(m *Message) (server, reason string, ok bool) {
	if m.Verb != VerbSquit || len(m.Params) < 1 {
		return "", "", false
	}
	if len(m.Params) >= 3 {
		return m.Params[0], m.Params[2], true
	}
	return m.Params[0], "", true
}

// BuildKill renders `KILL <numnick> :<reason>`.
func BuildKill(target, reason string) *Message {
	return &Message{Verb: VerbKill, Params: []string{target, reason}}
}

// ParseKill extracts the killed numnick/nick and reason.
func ParseKill(m *Message) (target, reason string, ok bool) {
	if m.Verb != VerbKill || len(m.Params) < 1 {
		return "", "", false
	}
	if len(m.Params) >= 2 {
		return m.Params[0], m.Params[1], true
	}
	return m.Params[0], "", true
}

// BuildPing renders `PING :<origin>`.
func BuildPing(origin string) *Message {
	return &Message{Verb: VerbPing, Params: []string{origin}}
}

// BuildPong renders `PONG <server> :<origin>`.
func BuildPong(server, origin string) *Message {
	return &Message{Verb: VerbPong, Params: []string{server, origin}}
}

// BuildPrivmsg renders `:<source> PRIVMSG <target> :<text>`.
func BuildPrivmsg(source, target, text string) *Message {
	return &Message{Prefix: source, Verb: VerbPrivmsg, Params: []string{target, text}}
}

// BuildNotice renders `:<source> NOTICE <target> :<text>`.
func BuildNotice(source, target, text string) *Message {
	return &Message{Prefix: source, Verb: VerbNotice, Params: []string{target, text}}
}

// BuildSettime renders `SETTIME <ts> :<server>`, used for clock
// resynchronization pushes (always sent high-priority, see internal/sendq).
func BuildSettime(ts int64, server string) *Message {
	return &Message{Verb: VerbSettime, Params: []string{strconv.FormatInt(ts, 10), server}}
}

// ParseSettime extracts the pushed timestamp.
func ParseSettime(m *Message) (ts int64, ok bool) {
	if m.Verb != VerbSettime || len(m.Params) < 1 {
		return 0, false
	}
	v, err := strconv.ParseInt(m.Params[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// BuildJoin renders a peer JOIN: `<numnick> JOIN <channel> <creation-ts>`.
func BuildJoin(source, channel string, creationTS int64) *Message {
	return &Message{Prefix: source, Verb: VerbJoin, Params: []string{channel, strconv.FormatInt(creationTS, 10)}}
}

// ParseJoin extracts the channel and creation timestamp from a peer JOIN.
// The timestamp is optional (some joins, e.g. a rejoin, omit it); ok is
// still true with ts=0 when absent.
func ParseJoin(m *Message) (channel string, ts int64, ok bool) {
	if m.Verb != VerbJoin || len(m.Params) < 1 {
		return "", 0, false
	}
	if len(m.Params) >= 2 {
		ts, _ = strconv.ParseInt(m.Params[1], 10, 64)
	}
	return m.Params[0], ts, true
}

// BuildPart renders `<numnick> PART <channel> :<reason>`.
func BuildPart(source, channel, reason string) *Message {
	params := []string{channel}
	if reason != "" {
		params = append(params, reason)
	}
	return &Message{Prefix: source, Verb: VerbPart, Params: params}
}

// ParsePart extracts the channel and reason from a peer PART.
func ParsePart(m *Message) (channel, reason string, ok bool) {
	if m.Verb != VerbPart || len(m.Params) < 1 {
		return "", "", false
	}
	if len(m.Params) >= 2 {
		return m.Params[0], m.Params[1], true
	}
	return m.Params[0], "", true
}

// BuildKick renders `<numnick> KICK <channel> <target> :<reason>`.
func BuildKick(source, channel, target, reason string) *Message {
	return &Message{Prefix: source, Verb: VerbKick, Params: []string{channel, target, reason}}
}

// ParseKick extracts the channel, target, and reason from a peer KICK.
func ParseKick(m *Message) (channel, target, reason string, ok bool) {
	if m.Verb != VerbKick || len(m.Params) < 2 {
		return "", "", "", false
	}
	if len(m.Params) >= 3 {
		return m.Params[0], m.Params[1], m.Params[2], true
	}
	return m.Params[0], m.Params[1], "", true
}

// BuildTopic renders `<numnick> TOPIC <channel> <topic-ts> :<topic>`.
func BuildTopic(source, channel string, topicTS int64, topic string) *Message {
	return &Message{Prefix: source, Verb: VerbTopic, Params: []string{channel, strconv.FormatInt(topicTS, 10), topic}}
}

// ParseTopic extracts the channel, topic timestamp, and topic text.
func ParseTopic(m *Message) (channel string, topicTS int64, topic string, ok bool) {
	if m.Verb != VerbTopic || len(m.Params) < 2 {
		return "", 0, "", false
	}
	ts, _ := strconv.ParseInt(m.Params[1], 10, 64)
	if len(m.Params) >= 3 {
		return m.Params[0], ts, m.Params[2], true
	}
	return m.Params[0], ts, "", true
}

// BuildMode renders `<source> MODE <channel> <modestring> (<arg>)*`, the
// unprivileged peer-relayed counterpart to OPMODE.
func BuildMode(source, channel, modes string, args ...string) *Message {
	params := append([]string{channel, modes}, args...)
	return &Message{Prefix: source, Verb: VerbMode, Params: params}
}

// ParseMode extracts the channel, modestring, and args from a peer MODE.
func ParseMode(m *Message) (channel, modes string, args []string, ok bool) {
	if m.Verb != VerbMode || len(m.Params) < 2 {
		return "", "", nil, false
	}
	return m.Params[0], m.Params[1], m.Params[2:], true
}

// BuildInvite renders `<numnick> INVITE <target-numnick> <channel>`.
func BuildInvite(source, targetNumnick, channel string) *Message {
	return &Message{Prefix: source, Verb: VerbInvite, Params: []string{targetNumnick, channel}}
}

// ParseInvite extracts the target and channel from a peer INVITE.
func ParseInvite(m *Message) (target, channel string, ok bool) {
	if m.Verb != VerbInvite || len(m.Params) < 2 {
		return "", "", false
	}
	return m.Params[0], m.Params[1], true
}

// BuildWallChOps renders `<numnick> WALLCHOPS <channel> :<text>`.
func BuildWallChOps(source, channel, text string) *Message {
	return &Message{Prefix: source, Verb: VerbWallChOps, Params: []string{channel, text}}
}

// ParseWallChOps extracts the channel and text from a WALLCHOPS line.
func ParseWallChOps(m *Message) (channel, text string, ok bool) {
	if m.Verb != VerbWallChOps || len(m.Params) < 2 {
		return "", "", false
	}
	return m.Params[0], m.Params[1], true
}

// BuildWallops renders `<numnick> WALLOPS :<text>`.
func BuildWallops(source, text string) *Message {
	return &Message{Prefix: source, Verb: VerbWallops, Params: []string{text}}
}

// ParseWallops extracts the text from a WALLOPS line.
func ParseWallops(m *Message) (text string, ok bool) {
	if m.Verb != VerbWallops || len(m.Params) < 1 {
		return "", false
	}
	return m.Params[0], true
}
