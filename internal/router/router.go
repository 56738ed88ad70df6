// Package router answers, for any outbound message, which peer
// connections and which local clients must receive it, based on the
// target kind (spec §4.E).
package router

import (
	"strings"

	"github.com/supamanluva/ircd/internal/match"
	"github.com/supamanluva/ircd/internal/store"
)

// SkipFlags filters which channel members a message should NOT be
// delivered to.
type SkipFlags uint8

const (
	SkipDeaf SkipFlags = 1 << iota
	SkipBurst
	SkipNonOps
	SkipNonVoices
)

// Router holds the entity store and the local server's identity, needed to
// exclude "self" from peer fan-out.
type Router struct {
	Store          *store.Store
	LocalNumnick   string
}

// New constructs a Router over the given store.
func New(s *store.Store, localNumnick string) *Router {
	return &Router{Store: s, LocalNumnick: localNumnick}
}

// RouteToClient resolves a single numnick target to either a local client
// (the message should be delivered directly) or the server owning it (the
// message's next hop is the direct link toward that server).
func (r *Router) RouteToClient(numnick string) (local *store.Client, nextHop *store.Server, ok bool) {
	c, found := r.Store.FindClientByNumnick(numnick)
	if !found {
		return nil, nil, false
	}
	if c.Local {
		return c, nil, true
	}
	return nil, c.Server, true
}

// shouldSkipMember applies SkipFlags to one membership.
func shouldSkipMember(m *store.Membership, flags SkipFlags) bool {
	if flags&SkipBurst != 0 && m.HasStatus(store.StatusBurstJoined) {
		return true
	}
	if flags&SkipNonOps != 0 && !m.HasStatus(store.StatusChanOp) {
		return true
	}
	if flags&SkipNonVoices != 0 && !m.HasStatus(store.StatusVoice) && !m.HasStatus(store.StatusChanOp) {
		return true
	}
	if flags&SkipDeaf != 0 && m.Client.HasMode('d') {
		return true
	}
	return false
}

// RouteToChannel resolves a channel target into the set of local member
// clients that should receive the message, and the set of peer servers
// that have at least one member on the channel (excluding excludePeer, the
// server the message arrived from, if any). Skip-burst correctness (spec
// §4.E) is the caller's responsibility via SkipBurst in flags: a peer still
// mid-burst for this channel must not be echoed traffic for it.
func (r *Router) RouteToChannel(ch *store.Channel, excludePeer string, flags SkipFlags) (locals []*store.Client, peers []*store.Server) {
	peerSet := make(map[string]*store.Server)
	for _, m := range ch.MembersSnapshot() {
		if shouldSkipMember(m, flags) {
			continue
		}
		c := m.Client
		if c.Local {
			locals = append(locals, c)
			continue
		}
		if c.Server != nil && c.Server.Numnick != excludePeer {
			peerSet[c.Server.Numnick] = c.Server
		}
	}
	for _, s := range peerSet {
		peers = append(peers, s)
	}
	return locals, peers
}

// RouteToServerMask resolves a server-name wildcard mask to every
// registered server whose name matches, excluding the origin server (the
// one the message arrived from).
func (r *Router) RouteToServerMask(mask, originNumnick string) []*store.Server {
	var out []*store.Server
	for _, s := range r.Store.AllServers() {
		if s.Numnick == originNumnick {
			continue
		}
		if match.Wildcard(mask, s.Name) {
			out = append(out, s)
		}
	}
	return out
}

// RouteHostOrAll resolves a host-mask (or "*" for all-matching) target by
// iterating the global client list and selecting every local client whose
// host or server name matches.
func (r *Router) RouteHostOrAll(mask string) []*store.Client {
	var out []*store.Client
	for _, c := range r.Store.AllClients() {
		if !c.Local {
			continue
		}
		if mask == "*" || match.Wildcard(mask, c.Host) || (c.Server != nil && match.Wildcard(mask, c.Server.Name)) {
			out = append(out, c)
		}
	}
	return out
}

// RouteCommonChannels resolves the "all common channels" target: the union
// of local-member sets across every channel source is on, minus source
// itself and minus an optional excluded peer numnick (used for e.g.
// WALLCHOPS-style fan-out when a client quits or changes nick and every
// channel-mate needs one notification, deduplicated).
func (r *Router) RouteCommonChannels(source *store.Client, excludePeer string) (locals []*store.Client, peers []*store.Server) {
	seenLocal := make(map[string]bool)
	seenPeer := make(map[string]*store.Server)
	for chanName := range source.Memberships {
		ch, ok := r.Store.FindChannel(chanName)
		if !ok {
			continue
		}
		for _, m := range ch.MembersSnapshot() {
			c := m.Client
			if c == source {
				continue
			}
			if c.Local {
				if !seenLocal[c.Numnick] {
					seenLocal[c.Numnick] = true
					locals = append(locals, c)
				}
				continue
			}
			if c.Server != nil && c.Server.Numnick != excludePeer {
				seenPeer[c.Server.Numnick] = c.Server
			}
		}
	}
	for _, s := range seenPeer {
		peers = append(peers, s)
	}
	return locals, peers
}

// IsChannelTarget reports whether target looks like a channel name (begins
// with '#' or '&').
func IsChannelTarget(target string) bool {
	return strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&")
}

// IsServerMaskTarget reports whether target looks like a server-mask
// (contains a '.' the way DNS-shaped server names always do, or a glob
// character, and is not a channel/numnick).
func IsServerMaskTarget(target string) bool {
	if IsChannelTarget(target) {
		return false
	}
	return strings.ContainsAny(target, ".*?")
}
