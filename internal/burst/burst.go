// Package burst implements the netburst engine: the scripted BURST/EOB/
// EOB_ACK exchange that brings a newly linked peer into agreement with the
// network's replicated channel state, per spec §4.F.
package burst

import (
	"strings"
	"time"

	"github.com/btnmasher/util"

	"github.com/supamanluva/ircd/internal/protocol"
	"github.com/supamanluva/ircd/internal/store"
)

// maxLineBytes bounds the joined length of the nicklist (and of each ban
// chunk) a single BURST line carries before the sender splits into a
// continuation line, keeping every line under the 512-byte wire budget (spec §4.F:
// "Long channels are split across multiple BURST lines; later lines omit
// the mode and nick-flag re-base").
const maxLineBytes = 460

// Engine drives both sides of a link's netburst: sending this server's own
// channel state, and applying BURST lines received from a peer.
type Engine struct {
	Store *store.Store
}

// New constructs a burst Engine over the given store.
func New(s *store.Store) *Engine {
	return &Engine{Store: s}
}

// BuildChannelBurst renders one or more protocol.Message BURST lines
// describing ch's full current state, splitting the member and ban lists
// across continuation lines as needed. Only the first line carries the
// mode string (spec: "later lines omit the mode and nick-flag re-base").
func (e *Engine) BuildChannelBurst(ch *store.Channel) []*protocol.Message {
	members := ch.MembersSnapshot()
	memberTokens := make([]string, len(members))
	for i, m := range members {
		memberTokens[i] = m.Client.FullNumnick() + memberFlagSuffix(m)
	}
	bans := ch.BansSnapshot()
	banTokens := make([]string, len(bans))
	for i, b := range bans {
		banTokens[i] = b.Mask
	}

	memberChunks := util.ChunkJoinStrings(memberTokens, maxLineBytes, ",")
	if len(memberChunks) == 0 {
		memberChunks = []string{""}
	}
	banChunks := util.ChunkJoinStrings(banTokens, maxLineBytes, " ")

	var lines []*protocol.Message
	for i, chunk := range memberChunks {
		b := protocol.Burst{
			Channel:    ch.Name,
			CreationTS: ch.CreationTS,
		}
		if i == 0 {
			modes := ch.ModeString()
			if modes != "" {
				b.HasModes = true
				b.Modes = strings.TrimPrefix(modes, "+")
			}
		}
		if chunk != "" {
			for _, tok := range strings.Split(chunk, ",") {
				numnick, flag := splitMemberToken(tok)
				b.Members = append(b.Members, protocol.BurstMember{Numnick: numnick, Flag: flag})
			}
		}
		if i == len(memberChunks)-1 && len(banChunks) > 0 {
			b.Bans = strings.Fields(banChunks[0])
			banChunks = banChunks[1:]
		}
		lines = append(lines, protocol.BuildBurst(b))
	}
	for _, chunk := range banChunks {
		lines = append(lines, protocol.BuildBurst(protocol.Burst{
			Channel:    ch.Name,
			CreationTS: ch.CreationTS,
			Bans:       strings.Fields(chunk),
		}))
	}
	return lines
}

func memberFlagSuffix(m *store.Membership) string {
	op := m.HasStatus(store.StatusChanOp)
	voice := m.HasStatus(store.StatusVoice)
	switch {
	case op && voice:
		return ":ov"
	case op:
		return ":o"
	case voice:
		return ":v"
	default:
		return ""
	}
}

func splitMemberToken(tok string) (numnick string, flag protocol.MemberFlag) {
	parts := strings.SplitN(tok, ":", 2)
	numnick = parts[0]
	if len(parts) == 1 {
		return numnick, protocol.MemberNone
	}
	switch parts[1] {
	case "o":
		return numnick, protocol.MemberOp
	case "v":
		return numnick, protocol.MemberVoice
	case "ov", "vo":
		return numnick, protocol.MemberOpVoice
	default:
		return numnick, protocol.MemberNone
	}
}

// restrictiveModes names the channel modes that trigger the net-rider kick
// rule (spec §4.F step 3): +i (invite-only) and +k (keyed).
func hasRestrictiveModes(ch *store.Channel) bool {
	return ch.HasMode('i') || ch.HasMode('k')
}

// ApplyResult reports what ApplyBurst decided, so the caller (internal/
// server's link-message dispatch) can emit the right side effects: which
// members to mark burst-joined, and which local members to kick as
// net-riders.
type ApplyResult struct {
	Created     bool
	Wiped       bool
	Merged      bool
	Ignored     bool
	NetRiderKicks []string // client numnicks to kick
}

// ApplyBurst applies one parsed BURST line to the store, implementing the
// receive-side algorithm from spec §4.F:
//
//  1. Open or create the channel.
//  2. Compare incoming creation TS against local TS: earlier wipes, later
//     ignores modes/bans (members still added, burst-joined flagged),
//     equal merges (union modes/bans/flags).
//  3. If local TS is strictly greater than incoming TS and the channel has
//     +i or +k, kick any local user let in under those modes (net-rider
//     guard).
func (e *Engine) ApplyBurst(b protocol.Burst, resolveMember func(numnick string) (*store.Client, bool)) ApplyResult {
	var result ApplyResult
	ch, created := e.Store.GetOrCreateChannel(b.Channel, b.CreationTS)
	result.Created = created

	if !created {
		switch {
		case b.CreationTS < ch.CreationTS:
			wasRestrictive := hasRestrictiveModes(ch)
			ch.WipeModesAndOps()
			ch.SetCreationTS(b.CreationTS)
			if b.HasModes {
				ch.MergeModes(parseModeString(b.Modes))
			}
			result.Wiped = true
			if wasRestrictive {
				result.NetRiderKicks = netRiderCandidates(ch)
			}
		case b.CreationTS == ch.CreationTS:
			if b.HasModes {
				ch.MergeModes(parseModeString(b.Modes))
			}
			result.Merged = true
		default:
			result.Ignored = true
		}
	} else if b.HasModes {
		ch.MergeModes(parseModeString(b.Modes))
	}

	for _, bm := range b.Members {
		client, ok := resolveMember(bm.Numnick)
		if !ok {
			continue
		}
		m, exists := ch.MembershipFor(client.Numnick)
		if !exists {
			m = &store.Membership{Client: client, Channel: ch}
			ch.AddMembership(m)
			client.Memberships[ch.Name] = m
		}
		if result.Ignored {
			m.SetStatus(store.StatusBurstJoined, true)
			continue
		}
		if bm.Flag == protocol.MemberOp || bm.Flag == protocol.MemberOpVoice {
			m.SetStatus(store.StatusChanOp, true)
		}
		if bm.Flag == protocol.MemberVoice || bm.Flag == protocol.MemberOpVoice {
			m.SetStatus(store.StatusVoice, true)
		}
	}

	if !result.Ignored {
		for _, mask := range b.Bans {
			ch.AddBan(&store.Ban{Mask: mask, SetAt: time.Now().Unix()})
		}
	}

	return result
}

// netRiderCandidates returns the numnicks of local members who joined
// under the channel's restrictive modes during a split and must be kicked
// once the earlier-TS side's state wins (spec §4.F step 3).
func netRiderCandidates(ch *store.Channel) []string {
	var out []string
	for _, m := range ch.MembersSnapshot() {
		if m.Client.Local && m.HasStatus(store.StatusBurstJoined) {
			out = append(out, m.Client.Numnick)
		}
	}
	return out
}

func parseModeString(modes string) store.ModeBits {
	bits := make(store.ModeBits, len(modes))
	for i := 0; i < len(modes); i++ {
		bits[modes[i]] = ""
	}
	return bits
}
