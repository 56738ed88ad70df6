package store

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/btnmasher/util"

	"github.com/supamanluva/ircd/internal/match"
)

// Store is the process-wide entity registry. Per spec §5's concurrency
// model, mutation is expected to happen from a single event-loop
// goroutine; the locking inside Map/Table/*.mu exists so read-mostly
// accessors (router, /WHO, stats) can be called from other goroutines
// (e.g. the burst engine's per-link sender) without racing the loop.
type Store struct {
	clientsByNumnick *Map[Client]           // full 5-char numnick -> Client
	clientsByName    *match.Table           // folded nick -> *Client
	serversByNumnick *Map[Server]           // 2-char numnick -> Server
	serversByName    *match.Table           // folded name -> *Server
	channelsByName   *match.Table           // folded name -> *Channel

	// clientList is the global doubly-linked client list used for
	// iteration in host/server-mask matches (spec §4.C).
	clientListMu sync.RWMutex
	clientList   *list.List
	clientElems  map[string]*list.Element // full numnick -> element

	// features holds network-wide ISUPPORT-shaped key/value config state,
	// the one piece of the store that is genuinely just strings, backed by
	// the ambient stack's concurrent string map rather than a hand-rolled
	// index.
	features *util.ConcurrentMapString
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		clientsByNumnick: NewMap[Client](),
		clientsByName:    match.NewTable(),
		serversByNumnick: NewMap[Server](),
		serversByName:    match.NewTable(),
		channelsByName:   match.NewTable(),
		clientList:       list.New(),
		clientElems:      make(map[string]*list.Element),
		features:         util.NewConcurrentMapString(),
	}
}

// Features exposes the network feature-key/value table (e.g. CHANMODES,
// NETWORK). No other package in this tree reads or writes it.
func (s *Store) Features() *util.ConcurrentMapString {
	return s.features
}

// InsertClient registers a new client under both its numnick and
// case-folded nick indices, and appends it to the global client list.
func (s *Store) InsertClient(c *Client) error {
	full := c.FullNumnick()
	if err := s.clientsByNumnick.Add(full, c); err != nil {
		return fmt.Errorf("store: insert client: %w", err)
	}
	s.clientsByName.Insert(c.Nick, c)

	s.clientListMu.Lock()
	elem := s.clientList.PushBack(c)
	s.clientElems[full] = elem
	s.clientListMu.Unlock()
	return nil
}

// RemoveClient deletes a client from every index.
func (s *Store) RemoveClient(c *Client) {
	full := c.FullNumnick()
	s.clientsByNumnick.Del(full)
	s.clientsByName.Remove(c.Nick)

	s.clientListMu.Lock()
	if elem, ok := s.clientElems[full]; ok {
		s.clientList.Remove(elem)
		delete(s.clientElems, full)
	}
	s.clientListMu.Unlock()
}

// RenameClient updates the case-folded name index after a NICK change.
// The numnick index is untouched since numnicks never change.
func (s *Store) RenameClient(c *Client, oldNick, newNick string, at int64) {
	s.clientsByName.Remove(oldNick)
	c.SetNick(newNick, at)
	s.clientsByName.Insert(newNick, c)
}

// FindClientByName looks up a client by nickname, case-insensitively.
func (s *Store) FindClientByName(nick string) (*Client, bool) {
	v, ok := s.clientsByName.Lookup(nick)
	if !ok {
		return nil, false
	}
	return v.(*Client), true
}

// FindClientByNumnick looks up a client by its full 5-char numnick.
func (s *Store) FindClientByNumnick(numnick string) (*Client, bool) {
	return s.clientsByNumnick.Get(numnick)
}

// AllClients returns a stable snapshot of every registered client, backing
// the global client list iteration spec §4.C/§4.E describe (host-mask and
// all-matching routing).
func (s *Store) AllClients() []*Client {
	s.clientListMu.RLock()
	defer s.clientListMu.RUnlock()
	out := make([]*Client, 0, s.clientList.Len())
	for e := s.clientList.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Client))
	}
	return out
}

// InsertServer registers a new server under both its numnick and name
// indices.
func (s *Store) InsertServer(sv *Server) error {
	if err := s.serversByNumnick.Add(sv.Numnick, sv); err != nil {
		return fmt.Errorf("store: insert server: %w", err)
	}
	s.serversByName.Insert(sv.Name, sv)
	return nil
}

// RemoveServer deletes a server from every index.
func (s *Store) RemoveServer(sv *Server) {
	s.serversByNumnick.Del(sv.Numnick)
	s.serversByName.Remove(sv.Name)
}

// FindServerByName looks up a server by name, case-insensitively.
func (s *Store) FindServerByName(name string) (*Server, bool) {
	v, ok := s.serversByName.Lookup(name)
	if !ok {
		return nil, false
	}
	return v.(*Server), true
}

// FindServerByNumnick looks up a server by its 2-char numnick.
func (s *Store) FindServerByNumnick(numnick string) (*Server, bool) {
	return s.serversByNumnick.Get(numnick)
}

// AllServers returns every registered server.
func (s *Store) AllServers() []*Server {
	return s.serversByNumnick.Snapshot()
}

// InsertChannel registers a new channel under its name index.
func (s *Store) InsertChannel(c *Channel) {
	s.channelsByName.Insert(c.Name, c)
}

// RemoveChannel deletes a channel, per spec §3 invariant I3 (called once a
// channel's member count reaches zero).
func (s *Store) RemoveChannel(c *Channel) {
	s.channelsByName.Remove(c.Name)
}

// FindChannel looks up a channel by name, case-insensitively.
func (s *Store) FindChannel(name string) (*Channel, bool) {
	v, ok := s.channelsByName.Lookup(name)
	if !ok {
		return nil, false
	}
	return v.(*Channel), true
}

// GetOrCreateChannel returns the existing channel by that name, or creates
// and registers a new one with the given creation timestamp. The bool
// result reports whether a channel was freshly created.
func (s *Store) GetOrCreateChannel(name string, creationTS int64) (*Channel, bool) {
	if ch, ok := s.FindChannel(name); ok {
		return ch, false
	}
	ch := NewChannel(name, creationTS)
	s.InsertChannel(ch)
	return ch, true
}
