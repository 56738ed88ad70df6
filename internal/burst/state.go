package burst

import (
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/supamanluva/ircd/internal/protocol"
	"github.com/supamanluva/ircd/internal/store"
)

// PeerState tracks one peer link's progress through the burst protocol:
// whether it is still sending its own BURST lines, and whether it has sent
// EOB but not yet received our EOB_ACK (spec §4.F step 4's "burst-ack"
// state, during which traffic for channels the peer declared is queued,
// not sent).
type PeerState struct {
	mu          sync.Mutex
	Server      *store.Server
	BurstDone   bool // peer's EOB seen
	AckPending  bool // waiting for local EOB_ACK to be sent
	declared    map[string]bool
	pending     []queuedLine
}

type queuedLine struct {
	channel string
	line    *protocol.Message
}

// NewPeerState starts tracking a freshly-linked peer in the BURST state.
func NewPeerState(srv *store.Server) *PeerState {
	srv.SetFlag(store.FlagBurst, true)
	return &PeerState{Server: srv, declared: make(map[string]bool)}
}

// DeclareChannel records channel as declared for this peer link, so
// Enqueue holds back lines for it during burst-ack. internal/router does
// not read this set; its SkipBurst flag checks each membership's
// StatusBurstJoined instead.
func (p *PeerState) DeclareChannel(channel string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.declared[channel] = true
}

// IsDeclared reports whether the peer has declared the given channel.
func (p *PeerState) IsDeclared(channel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.declared[channel]
}

// HandleEOB marks the peer's burst complete and flips it into burst-ack
// state (spec §4.F step 4). The caller is expected to immediately send
// EOB_ACK back; Enqueue calls made between here and AckSent are queued.
func (p *PeerState) HandleEOB() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.BurstDone = true
	p.AckPending = true
	p.Server.SetFlag(store.FlagBurst, false)
	p.Server.SetFlag(store.FlagBurstAck, true)
}

// Enqueue buffers a line destined for this peer while it is in burst-ack
// state for the given channel; returns false (not queued) once AckSent has
// been called, meaning the caller should send the line immediately instead.
func (p *PeerState) Enqueue(channel string, line *protocol.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.AckPending || !p.declared[channel] {
		return false
	}
	p.pending = append(p.pending, queuedLine{channel: channel, line: line})
	return true
}

// AckSent marks EOB_ACK as sent, flips the peer fully out of burst-ack
// state, and drains whatever traffic had queued during the window,
// returning it for the caller to actually transmit.
func (p *PeerState) AckSent() []*protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AckPending = false
	p.Server.SetFlag(store.FlagBurstAck, false)
	out := make([]*protocol.Message, len(p.pending))
	for i, q := range p.pending {
		out[i] = q.line
	}
	p.pending = nil
	return out
}

// SendAllChannels renders and returns BURST lines for every channel
// currently hosted locally, run concurrently across channels via
// sourcegraph/conc the way the ambient stack supervises other per-link
// fan-out work, then terminated with EOB.
func (e *Engine) SendAllChannels(channels []*store.Channel) []*protocol.Message {
	var mu sync.Mutex
	var out []*protocol.Message
	var wg conc.WaitGroup
	for _, ch := range channels {
		ch := ch
		wg.Go(func() {
			lines := e.BuildChannelBurst(ch)
			mu.Lock()
			out = append(out, lines...)
			mu.Unlock()
		})
	}
	wg.Wait()
	out = append(out, protocol.BuildEOB())
	return out
}
