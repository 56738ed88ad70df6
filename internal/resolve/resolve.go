// Package resolve applies the deterministic timestamp rules used to
// settle nick, server, and channel collisions, per spec §4.G. Every rule
// here must be a pure function of its inputs so that any two peers seeing
// the same collision with the same parameters reach an identical decision
// (spec's P7 invariant).
package resolve

import "time"

// GhostWindow is the oscillation guard duration: a second collision from a
// peer that just caused a ghost within this window is dropped
// unconditionally rather than re-resolved (spec §4.G "Ghosts").
const GhostWindow = 20 * time.Second

// NickDecision is the outcome of resolving a nick collision.
type NickDecision int

const (
	// KillExisting means the already-registered client loses.
	KillExisting NickDecision = iota
	// KillIncoming means the newly-introduced client loses.
	KillIncoming
	// KillBoth means neither side is trusted to keep the name.
	KillBoth
	// DropIncoming means the incoming introduction is simply discarded,
	// with no kill on either side. ResolveNickCollision does not return it.
	DropIncoming
)

// NickCollisionInput bundles the parameters a nick-collision decision is a
// pure function of.
type NickCollisionInput struct {
	ExistingLastnick int64
	IncomingLastnick int64
	// ExistingUnknownLocal is true when the existing registration is still
	// an unregistered local connection (no full NICK+USER yet).
	ExistingUnknownLocal bool
	// SameIdent is true when user@ip is identical on both sides.
	SameIdent bool
}

// ResolveNickCollision decides which side(s) of a nick collision are
// killed, per spec §4.G:
//
//   - if the existing side is still Unknown and local, it alone is dropped.
//   - otherwise compare lastnick: same_ident kills both; differing lastnick
//     kills whichever is newer (it lost the race); equal lastnick kills both.
func ResolveNickCollision(in NickCollisionInput) NickDecision {
	if in.ExistingUnknownLocal {
		return KillExisting
	}
	if in.SameIdent {
		return KillBoth
	}
	switch {
	case in.ExistingLastnick == in.IncomingLastnick:
		return KillBoth
	case in.ExistingLastnick < in.IncomingLastnick:
		// incoming is newer: it lost the race.
		return KillIncoming
	default:
		return KillExisting
	}
}

// ServerDecision is the outcome of resolving a server collision.
type ServerDecision int

const (
	// SquitExisting means the already-linked path is delinked.
	SquitExisting ServerDecision = iota
	// SquitIncoming means the newly-introducing link is refused/delinked.
	SquitIncoming
	// ConfigError means numnicks collided while names differ: not a
	// resolvable race, always a configuration problem on the introducing
	// link.
	ConfigError
)

// ServerCollisionInput bundles the parameters a server-collision decision
// is a pure function of.
type ServerCollisionInput struct {
	ExistingName    string
	IncomingName    string
	ExistingNumnick string
	IncomingNumnick string
	ExistingLinkTS  int64
	IncomingLinkTS  int64
}

// ResolveServerCollision decides which side of a SERVER collision to
// SQUIT, per spec §4.G "Server collision".
func ResolveServerCollision(in ServerCollisionInput) ServerDecision {
	if in.ExistingName != in.IncomingName && in.ExistingNumnick == in.IncomingNumnick {
		return ConfigError
	}
	if in.ExistingLinkTS <= in.IncomingLinkTS {
		return SquitIncoming
	}
	return SquitExisting
}

// GhostTracker is satisfied by store.Server; kept as an interface here so
// resolve stays free of a hard dependency loop on internal/store's
// concrete type.
type GhostTracker interface {
	RecentGhost(now time.Time, window time.Duration) bool
	NoteGhost(now time.Time)
}

// IsOscillatingGhost reports whether a new collision from peer should be
// treated as a repeat ghost (and its incoming side dropped
// unconditionally) because peer caused a ghost less than GhostWindow ago.
func IsOscillatingGhost(peer GhostTracker, now time.Time) bool {
	return peer.RecentGhost(now, GhostWindow)
}

// RecordGhost marks that a ghost collision from peer was just resolved,
// starting a fresh GhostWindow.
func RecordGhost(peer GhostTracker, now time.Time) {
	peer.NoteGhost(now)
}
