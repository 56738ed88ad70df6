package conn

import (
	"strings"

	"github.com/supamanluva/ircd/internal/protocol"
)

// Errors returned by Dispatch; rendered into protocol error replies by the
// caller (internal/server), per spec's "Failure semantics" table.
type dispatchError string

func (e dispatchError) Error() string { return string(e) }

const (
	// ErrUnknownCommand is returned when no row is registered for the verb
	// at all.
	ErrUnknownCommand = dispatchError("conn: unknown command")
	// ErrWrongState is returned when a row exists but has no handler for
	// the caller's current connection state (spec's m_unregistered/
	// m_not_oper: "fails with a protocol reply and no state mutation").
	ErrWrongState = dispatchError("conn: command not available in this state")
	// ErrNotOper is returned specifically when a command's row only has an
	// operator-column handler and the caller isn't an oper, so the server
	// can reply with the dedicated "not an IRC operator" numeric rather
	// than a generic unavailable-command one.
	ErrNotOper = dispatchError("conn: command requires operator privileges")
)

// HandlerFunc processes one parsed message for a connection.
type HandlerFunc func(c *Conn, msg *protocol.Message) error

// Row is the four-entry per-command dispatch row from spec §4.D: one
// handler for unregistered connections, one for registered users, one for
// registered server links, and one that only fires for users holding
// operator privileges. Any entry left nil behaves as spec's m_unregistered
// / m_not_oper: the command fails in that state without mutating anything.
type Row struct {
	Unregistered HandlerFunc
	User         HandlerFunc
	Server       HandlerFunc
	Oper         HandlerFunc
}

// Dispatcher holds a command-name -> Row table filled through Register
// (user commands and peer-protocol verbs can share one dispatcher,
// distinguished only by which row columns they populate).
type Dispatcher struct {
	rows map[string]Row
}

// NewDispatcher constructs an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{rows: make(map[string]Row)}
}

// Register installs row under verb, overwriting any previous registration.
// Verb is matched case-insensitively, since P10 accepts both full names and
// numeric tokens for the same command and callers may register either
// spelling.
func (d *Dispatcher) Register(verb string, row Row) {
	d.rows[strings.ToUpper(verb)] = row
}

// Dispatch selects and invokes the handler appropriate for c's current
// state and privilege level, per spec §4.D.
func (d *Dispatcher) Dispatch(c *Conn, msg *protocol.Message) error {
	row, ok := d.rows[strings.ToUpper(msg.Verb)]
	if !ok {
		return ErrUnknownCommand
	}

	state := c.State()
	switch {
	case state.IsUnregistered():
		if row.Unregistered == nil {
			return ErrWrongState
		}
		return row.Unregistered(c, msg)
	case state.IsServer():
		if row.Server == nil {
			return ErrWrongState
		}
		return row.Server(c, msg)
	case state == StateUserRegistered:
		if c.IsOper() && row.Oper != nil {
			return row.Oper(c, msg)
		}
		if row.User == nil {
			if row.Oper != nil {
				return ErrNotOper
			}
			return ErrWrongState
		}
		return row.User(c, msg)
	default:
		return ErrWrongState
	}
}
