package conn

import "time"

// Action is what a ping/timeout check decided should happen to a
// connection.
type Action int

const (
	// ActionNone means the connection is within its allowed idle window;
	// no action needed.
	ActionNone Action = iota
	// ActionSendPing means ping_freq seconds have elapsed with no inbound
	// data and no PING is currently outstanding; send one and mark it
	// outstanding.
	ActionSendPing
	// ActionTimeout means the connection exceeded its deadline (either
	// 2*ping_freq with an outstanding PING unanswered, for a registered
	// connection, or CONNECTTIMEOUT with no registration at all) and must
	// be closed.
	ActionTimeout
)

// PingPolicy holds one connection class's timing parameters (spec §4.D).
type PingPolicy struct {
	// Freq is ping_freq: how long a registered connection may sit idle
	// before we send it a PING.
	Freq time.Duration
	// ConnectTimeout bounds how long an unregistered connection may sit
	// without completing registration at all.
	ConnectTimeout time.Duration
}

// Check evaluates c against the policy at time now and returns the action
// it calls for.
func (p PingPolicy) Check(c *Conn, now time.Time) Action {
	if !c.State().IsRegistered() {
		if now.Sub(c.ConnectedAt()) >= p.ConnectTimeout {
			return ActionTimeout
		}
		return ActionNone
	}

	idle := now.Sub(c.LastActivity())
	if c.PingOutstanding() {
		if idle >= 2*p.Freq {
			return ActionTimeout
		}
		return ActionNone
	}
	if idle >= p.Freq {
		return ActionSendPing
	}
	return ActionNone
}
