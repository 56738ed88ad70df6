// Package chanmode implements the channel mode engine: a "modebuf" change
// builder, ban-list algebra, and the OPMODE/CLEARMODE privileged
// operations, per spec §4.H.
package chanmode

import (
	"strings"

	"github.com/btnmasher/util"

	"github.com/supamanluva/ircd/internal/match"
	"github.com/supamanluva/ircd/internal/store"
)

// MaxModeParams bounds how many parameterized modes (o/v/b/k/l/A/U) a
// single MODE line may carry; spec §4.H: "excess parameters are silently
// dropped to maintain byte budget."
const MaxModeParams = 6

// MaxLineBytes is the byte budget a single emitted MODE/OPMODE line must
// stay under (spec's 512-byte line limit, minus framing overhead already
// accounted for by internal/protocol).
const MaxLineBytes = 460

// needsParam reports whether mode letter m always takes a parameter. Key
// ('k') needs one on both set and unset; limit ('l') only on set.
func needsParam(m byte, setting bool) bool {
	switch m {
	case 'o', 'v', 'b', 'k', 'A', 'U':
		return true
	case 'l':
		return setting
	default:
		return false
	}
}

// isPrivileged reports whether mode letter m requires elevated privilege
// beyond ordinary channel-operator status (admin/user password modes).
func isPrivileged(m byte) bool {
	return m == 'A' || m == 'U'
}

// Change is a single +/- mode toggle queued onto a Builder.
type Change struct {
	Letter byte
	Set    bool
	Param  string
}

// Builder accumulates mode changes for one channel and flushes them as a
// batch, the way spec §4.H's "modebuf" does: the caller declares one or
// more additions/removals, then flush emits up to one MODE to local
// members and one MODE/OPMODE/CLEARMODE toward peers.
type Builder struct {
	Channel    *store.Channel
	Source     string // numnick or nick of whoever is making the change
	Privileged bool   // true for OPMODE: bypasses normal op requirements
	changes    []Change
}

// NewBuilder constructs a Builder for one flush cycle against ch.
func NewBuilder(ch *store.Channel, source string, privileged bool) *Builder {
	return &Builder{Channel: ch, Source: source, Privileged: privileged}
}

// Add queues one mode toggle. Parameterized modes missing a required
// parameter are rejected at ParseModeString time, not here.
func (b *Builder) Add(letter byte, set bool, param string) {
	b.changes = append(b.changes, Change{Letter: letter, Set: set, Param: param})
}

// ParseModeString parses a signed mode string like "+o-v" with its
// trailing parameter list and queues the resulting Changes onto b. Modes
// beyond MaxModeParams parameterized entries are dropped, matching spec's
// byte-budget truncation.
func ParseModeString(b *Builder, modes string, params []string) {
	set := true
	paramIdx := 0
	paramCount := 0
	for i := 0; i < len(modes); i++ {
		c := modes[i]
		switch c {
		case '+':
			set = true
		case '-':
			set = false
		default:
			if needsParam(c, set) {
				if paramCount >= MaxModeParams {
					continue // silently dropped: byte-budget truncation
				}
				if paramIdx >= len(params) {
					continue // required parameter missing: rejected
				}
				p := params[paramIdx]
				paramIdx++
				paramCount++
				b.Add(c, set, p)
			} else {
				b.Add(c, set, "")
			}
		}
	}
}

// Flush applies every queued change to the channel, applies the ban-list
// algebra for any 'b' changes, and renders the resulting Local and Peer
// messages. Either may be empty if nothing of that audience's concern
// changed (e.g. a pure ban-list no-op).
type FlushResult struct {
	LocalModes string   // "+o-v" style string for local member MODE lines
	LocalArgs  []string
	PeerLines  []string // pre-split MODE/OPMODE lines, each under MaxLineBytes
}

// Flush applies the queued changes and returns the rendering needed for
// both local members and peer propagation.
func (b *Builder) Flush() FlushResult {
	var result FlushResult
	var setLetters, clearLetters strings.Builder
	var args []string

	for _, c := range b.changes {
		if isPrivileged(c.Letter) && !b.Privileged {
			continue // requires elevated privilege; silently dropped
		}
		switch c.Letter {
		case 'b':
			b.applyBanChange(c)
		case 'o', 'v':
			if !b.applyMemberStatus(c) {
				continue // target isn't on the channel; drop silently
			}
		default:
			b.Channel.SetMode(c.Letter, c.Set, c.Param)
		}
		if c.Set {
			setLetters.WriteByte(c.Letter)
		} else {
			clearLetters.WriteByte(c.Letter)
		}
		if c.Param != "" {
			args = append(args, c.Param)
		}
	}

	var modeStr strings.Builder
	if setLetters.Len() > 0 {
		modeStr.WriteByte('+')
		modeStr.WriteString(setLetters.String())
	}
	if clearLetters.Len() > 0 {
		modeStr.WriteByte('-')
		modeStr.WriteString(clearLetters.String())
	}
	result.LocalModes = modeStr.String()
	result.LocalArgs = args
	result.PeerLines = renderPeerLines(b.Channel.Name, result.LocalModes, args, b.Privileged)
	return result
}

// applyMemberStatus toggles the target member's CHANOP/VOICE status for an
// 'o'/'v' change, rather than the channel-wide mode bitset: op and voice are
// per-member flags on Membership.Status, not channel modes (spec §3's
// Membership type), so they never belong in store.Channel.Modes. Reports
// false if the named target (by numnick, in c.Param) isn't on the channel.
func (b *Builder) applyMemberStatus(c Change) bool {
	m, ok := b.Channel.MembershipFor(c.Param)
	if !ok {
		// Local callers (a nickname-keyed oper command, rather than a
		// numnick-keyed peer MODE/OPMODE) may supply a nickname instead.
		m, ok = b.Channel.MembershipForNick(c.Param)
	}
	if !ok {
		return false
	}
	status := store.StatusChanOp
	if c.Letter == 'v' {
		status = store.StatusVoice
	}
	m.SetStatus(status, c.Set)
	return true
}

// applyBanChange implements the +b/-b algebra from spec §4.H: mask
// collapse before insertion, and superset/subset absorption against the
// existing list.
func (b *Builder) applyBanChange(c Change) {
	mask := match.CollapseMask(c.Param)
	existing := b.Channel.BansSnapshot()

	if !c.Set {
		kept := existing[:0]
		for _, ban := range existing {
			if ban.Mask != mask {
				kept = append(kept, ban)
			}
		}
		b.Channel.SetBans(kept)
		return
	}

	var toRemove []int
	for i, ban := range existing {
		if match.IsSuperset(ban.Mask, mask) {
			return // rejected: an existing ban already covers strictly more
		}
		if match.IsSuperset(mask, ban.Mask) {
			toRemove = append(toRemove, i)
		}
	}
	kept := make([]*store.Ban, 0, len(existing))
	skip := make(map[int]bool, len(toRemove))
	for _, i := range toRemove {
		skip[i] = true
	}
	for i, ban := range existing {
		if !skip[i] {
			kept = append(kept, ban)
		}
	}
	kept = append(kept, &store.Ban{Mask: mask, SetBy: b.Source})
	b.Channel.SetBans(kept)
}

// renderPeerLines packs the mode string/args into one or more lines under
// MaxLineBytes, using the shared ambient-stack line-splitter the same way
// internal/burst splits long member/ban lists.
func renderPeerLines(channel, modes string, args []string, privileged bool) []string {
	verb := "MODE"
	if privileged {
		verb = "OPMODE"
	}
	if modes == "" {
		return nil
	}
	head := verb + " " + channel + " " + modes
	if len(args) == 0 {
		return []string{head}
	}
	argLines := util.ChunkJoinStrings(args, MaxLineBytes-len(head), " ")
	lines := make([]string, len(argLines))
	for i, a := range argLines {
		lines[i] = head + " " + a
	}
	return lines
}

// ClearModeControlString is the fixed set of modes CLEARMODE wipes, per
// ircu2's m_clearmode.c (SPEC_FULL §5's supplemented feature).
const ClearModeControlString = "ovpsmikbl"

// BuildClearMode wipes every mode named in controlString from ch and
// returns the builder's flush result. Op, voice and ban entries ('o', 'v',
// 'b') are cleared directly on ch and do not appear in that result; only
// the other letters are removed through the builder.
func BuildClearMode(ch *store.Channel, source, controlString string) FlushResult {
	b := NewBuilder(ch, source, true)
	for i := 0; i < len(controlString); i++ {
		letter := controlString[i]
		switch letter {
		case 'o', 'v':
			for _, m := range ch.MembersSnapshot() {
				if letter == 'o' && m.HasStatus(store.StatusChanOp) {
					m.SetStatus(store.StatusChanOp, false)
				}
				if letter == 'v' && m.HasStatus(store.StatusVoice) {
					m.SetStatus(store.StatusVoice, false)
				}
			}
		case 'b':
			ch.SetBans(nil)
		default:
			if ch.HasMode(letter) {
				b.Add(letter, false, "")
			}
		}
	}
	return b.Flush()
}
