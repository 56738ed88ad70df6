// Package store is the network-wide entity registry: Servers, Clients,
// Channels, and Memberships, replicated across every peer and kept
// consistent by timestamp-based tie-breaking (see internal/resolve) and the
// netburst engine (internal/burst).
package store

import (
	"strings"
	"sync"
	"time"
)

// ServerFlags is a bitmask of the attributes a Server entity carries
// (spec §3's {HUB, SERVICE, IPV6, BURST, BURST_ACK, JUNCTION} flag set).
type ServerFlags uint16

const (
	// FlagHub marks a server permitted to carry more than one downlink.
	FlagHub ServerFlags = 1 << iota
	// FlagService marks a network service pseudo-server (exempt from
	// certain client-facing restrictions).
	FlagService
	// FlagIPv6 marks a server reachable over IPv6.
	FlagIPv6
	// FlagBurst marks a server currently sending its netburst.
	FlagBurst
	// FlagBurstAck marks a server whose EOB we've seen but not yet
	// EOB_ACK'd (spec §4.F step 4); burst.PeerState sets and clears it.
	// No sender consults it: internal/server writes traffic toward the
	// server directly while the flag is set.
	FlagBurstAck
	// FlagJunction marks a server introduced as a relay for others behind
	// it (attribution bookkeeping for SQUIT cascades).
	FlagJunction
)

// Server is one node of the mesh, identified by a DNS-shaped name and a
// 2-character numnick assigned network-wide.
type Server struct {
	mu sync.RWMutex

	Name        string
	Numnick     string
	Description string

	LinkTS  int64 // time this link to the server was established
	StartTS int64 // the server's own process start time

	ProtocolVersion int
	MaxClients      int

	Uplink    *Server
	Downlinks map[string]*Server

	Flags ServerFlags

	// LastGhost is the last time a NICK collision from this peer was
	// recorded as a ghost (NoteGhost); RecentGhost checks it against a
	// window. internal/server's NICK collision handling does not consult
	// it, so a repeat collision is resolved like any other.
	LastGhost time.Time

	LastPing time.Time
	LastPong time.Time
}

// NewServer constructs a Server in its initial (just-introduced) state.
func NewServer(name, numnick string) *Server {
	return &Server{
		Name:      name,
		Numnick:   numnick,
		Downlinks: make(map[string]*Server),
	}
}

// HasFlag reports whether f is set.
func (s *Server) HasFlag(f ServerFlags) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Flags&f != 0
}

// SetFlag sets or clears f.
func (s *Server) SetFlag(f ServerFlags, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.Flags |= f
	} else {
		s.Flags &^= f
	}
}

// AddDownlink registers child as directly attached to s.
func (s *Server) AddDownlink(child *Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Downlinks[child.Numnick] = child
}

// RemoveDownlink detaches child from s.
func (s *Server) RemoveDownlink(child *Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Downlinks, child.Numnick)
}

// DownlinksSnapshot returns a stable copy of s's current downlinks, safe to
// range over without holding the server's lock (used by SQUIT cascades,
// which recurse into each downlink in turn).
func (s *Server) DownlinksSnapshot() []*Server {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Server, 0, len(s.Downlinks))
	for _, d := range s.Downlinks {
		out = append(out, d)
	}
	return out
}

// NoteGhost records that a ghost collision from this server was just
// resolved, starting the 20-second oscillation guard window.
func (s *Server) NoteGhost(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastGhost = now
}

// RecentGhost reports whether a ghost from this server was resolved less
// than window ago.
func (s *Server) RecentGhost(now time.Time, window time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.LastGhost.IsZero() && now.Sub(s.LastGhost) < window
}

// ModeBits is a client or channel mode bitset, keyed by mode letter.
type ModeBits map[byte]string // letter -> parameter ("" if none)

// Client is one user entity: local (directly connected here) or remote
// (introduced by a peer and owned, for routing purposes, by its Server).
type Client struct {
	mu sync.RWMutex

	Numnick string // 3-char, scoped to Server.Numnick
	Server  *Server

	Nick     string
	Lastnick int64 // time of last nick change; authoritative for collisions

	User     string
	Host     string
	RealHost string
	IP       string
	RealName string

	Account string

	ConnectTS int64

	AwayMessage string

	Modes ModeBits

	Memberships map[string]*Membership // Channel.Name as stored -> membership
	Invites     map[string]time.Time   // channel name (folded) -> invite time
	Silence     map[string]struct{}    // folded nick!user@host masks

	OperPrivileges uint32

	Local bool
}

// NewClient constructs a Client in its freshly-introduced state.
func NewClient(numnick string, server *Server) *Client {
	return &Client{
		Numnick:     numnick,
		Server:      server,
		Modes:       make(ModeBits),
		Memberships: make(map[string]*Membership),
		Invites:     make(map[string]time.Time),
		Silence:     make(map[string]struct{}),
	}
}

// FullNumnick returns the server+client numnick pair identifying this
// client uniquely, network-wide.
func (c *Client) FullNumnick() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Server == nil {
		return c.Numnick
	}
	return c.Server.Numnick + c.Numnick
}

// SetNick updates the client's nickname and lastnick timestamp together,
// since lastnick is only meaningful as "the time of the most recent nick
// set to the current value".
func (c *Client) SetNick(nick string, at int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Nick = nick
	c.Lastnick = at
}

// HasMode reports whether mode m is set.
func (c *Client) HasMode(m byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.Modes[m]
	return ok
}

// SetMode sets (param may be "") or clears mode m.
func (c *Client) SetMode(m byte, on bool, param string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.Modes[m] = param
	} else {
		delete(c.Modes, m)
	}
}

// IsOper reports whether the client holds any operator privilege bit.
func (c *Client) IsOper() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.OperPrivileges != 0
}

// MembershipStatus is a per-member bitset on a Channel Membership.
type MembershipStatus uint16

const (
	StatusChanOp MembershipStatus = 1 << iota
	StatusVoice
	StatusDeopped
	StatusZombie
	StatusBurstJoined
	StatusDelayedJoin
	StatusBanValid
)

// Membership relates one Client to one Channel; it is jointly owned by
// both and lives exactly as long as both endpoints do (spec §3's
// "Ownership" note).
type Membership struct {
	mu sync.RWMutex

	Client  *Client
	Channel *Channel
	Status  MembershipStatus
}

// HasStatus reports whether s is set on this membership.
func (m *Membership) HasStatus(s MembershipStatus) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Status&s != 0
}

// SetStatus sets or clears s.
func (m *Membership) SetStatus(s MembershipStatus, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		m.Status |= s
	} else {
		m.Status &^= s
	}
}

// Ban is a single entry of a Channel's ban list (+b masks), distinct from
// the network-wide G-line/jupe/BADCHAN lifecycle in internal/ban, which
// targets clients/servers/channels rather than just recording a mask on one
// channel's membership list.
type Ban struct {
	Mask    string
	SetBy   string
	SetAt   int64
	WipedAt int64 // non-zero once marked for wipeout during a burst merge
}

// Channel is a named, timestamp-ordered piece of replicated state: a set of
// member clients, a mode bitset, and a ban list.
type Channel struct {
	mu sync.RWMutex

	Name       string
	CreationTS int64

	Modes ModeBits
	Key   string
	Limit int

	Topic     string
	TopicBy   string
	TopicTS   int64

	Members map[string]*Membership // client numnick -> membership
	Bans    []*Ban

	Invites map[string]time.Time // folded nick -> invite time
}

// NewChannel constructs an empty Channel with the given creation timestamp.
func NewChannel(name string, creationTS int64) *Channel {
	return &Channel{
		Name:       name,
		CreationTS: creationTS,
		Modes:      make(ModeBits),
		Members:    make(map[string]*Membership),
		Invites:    make(map[string]time.Time),
	}
}

// SetCreationTS updates the channel's creation timestamp, used when a
// burst wipe adopts an earlier incoming timestamp (spec §4.F step 2).
func (c *Channel) SetCreationTS(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CreationTS = ts
}

// IsLocal reports whether the channel name begins with '&': local-only
// channels are never propagated to peers (spec §3 invariant I1).
func (c *Channel) IsLocal() bool {
	return len(c.Name) > 0 && c.Name[0] == '&'
}

// MemberCount returns the number of members currently on the channel.
func (c *Channel) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Members)
}

// IsEmpty reports whether the channel currently has zero members (spec §3
// invariant I3: such a channel is destroyed).
func (c *Channel) IsEmpty() bool {
	return c.MemberCount() == 0
}

// HasMode reports whether mode m is set on the channel.
func (c *Channel) HasMode(m byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.Modes[m]
	return ok
}

// SetMode sets (param may be "") or clears channel mode m.
func (c *Channel) SetMode(m byte, on bool, param string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.Modes[m] = param
	} else {
		delete(c.Modes, m)
	}
}

// ModeString renders the currently-set modes as a "+xyz" string, letters in
// a stable (sorted) order so emitted MODE lines are deterministic.
func (c *Channel) ModeString() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.Modes) == 0 {
		return ""
	}
	letters := make([]byte, 0, len(c.Modes))
	for m := range c.Modes {
		letters = append(letters, m)
	}
	for i := 1; i < len(letters); i++ {
		for j := i; j > 0 && letters[j-1] > letters[j]; j-- {
			letters[j-1], letters[j] = letters[j], letters[j-1]
		}
	}
	return "+" + string(letters)
}

// AddMembership registers a Membership on both the channel and (by
// convention) the client side is the caller's responsibility, preserving
// spec §3's joint-ownership invariant P3.
func (c *Channel) AddMembership(m *Membership) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Members[m.Client.Numnick] = m
}

// RemoveMembership detaches the membership for the given client numnick.
func (c *Channel) RemoveMembership(clientNumnick string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Members, clientNumnick)
}

// MembershipFor returns the membership for the given client numnick, if any.
func (c *Channel) MembershipFor(clientNumnick string) (*Membership, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.Members[clientNumnick]
	return m, ok
}

// MembershipForNick looks up a membership by the member's current nickname
// (case-insensitive), for callers (MODE/KICK from a local, nickname-keyed
// client registry) that don't carry a numnick to key off of directly.
func (c *Channel) MembershipForNick(nick string) (*Membership, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.Members {
		if strings.EqualFold(m.Client.Nick, nick) {
			return m, true
		}
	}
	return nil, false
}

// MembersSnapshot returns a stable copy of the current membership list.
func (c *Channel) MembersSnapshot() []*Membership {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Membership, 0, len(c.Members))
	for _, m := range c.Members {
		out = append(out, m)
	}
	return out
}

// AddBan appends a ban record as-is (the caller, internal/chanmode, is
// responsible for applying the ban-list algebra from spec §4.H before
// calling this).
func (c *Channel) AddBan(b *Ban) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Bans = append(c.Bans, b)
}

// BansSnapshot returns a stable copy of the current ban list.
func (c *Channel) BansSnapshot() []*Ban {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Ban, len(c.Bans))
	copy(out, c.Bans)
	return out
}

// SetBans replaces the entire ban list, used after applying superset
// absorption during a +b flush.
func (c *Channel) SetBans(bans []*Ban) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Bans = bans
}

// WipeModesAndOps clears every channel mode and demotes every member's
// CHANOP/VOICE status, per the burst "wipe" rule (spec §4.F step 2, incoming
// TS earlier than local).
func (c *Channel) WipeModesAndOps() {
	c.mu.Lock()
	c.Modes = make(ModeBits)
	c.Key = ""
	c.Limit = 0
	members := make([]*Membership, 0, len(c.Members))
	for _, m := range c.Members {
		members = append(members, m)
	}
	c.mu.Unlock()

	for _, m := range members {
		m.SetStatus(StatusChanOp, false)
		m.SetStatus(StatusVoice, false)
	}
}

// MergeModes unions m into the channel's current modes (set-only, no
// clears), per the burst "merge" rule (spec §4.F step 2, equal TS).
func (c *Channel) MergeModes(modes ModeBits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range modes {
		if _, exists := c.Modes[k]; !exists {
			c.Modes[k] = v
		}
	}
}
