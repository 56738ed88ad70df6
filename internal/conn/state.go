// Package conn implements the per-connection state machine described in
// spec §4.D: the small set of states every inbound socket moves through
// before (and after) registration, plus the four-column command dispatch
// row and ping/timeout policy layered on top of it.
package conn

// State is the lifecycle stage of one connection.
type State int

const (
	// StateConnecting is a link we initiated outbound, awaiting the
	// remote's PASS/SERVER.
	StateConnecting State = iota
	// StateHandshake is a link where we've sent our own PASS/SERVER and
	// are waiting for the remote's reply half of the handshake.
	StateHandshake
	// StateMe is the local server's own pseudo-connection (never a real
	// socket; exists so the dispatch row can address "the server itself"
	// uniformly with real links).
	StateMe
	// StateUnknownUser is a port-marked user connection with no NICK/USER
	// yet.
	StateUnknownUser
	// StateUnknownServer is a port-marked server connection with no
	// SERVER yet.
	StateUnknownServer
	// StateWebirc is a WebIRC-capable port awaiting the WEBIRC command.
	StateWebirc
	// StateServerRegistered is a fully linked peer.
	StateServerRegistered
	// StateUserRegistered is a fully registered user.
	StateUserRegistered
)

// String renders the state's name, used in logging and protocol error
// replies.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateHandshake:
		return "Handshake"
	case StateMe:
		return "Me"
	case StateUnknownUser:
		return "UnknownUser"
	case StateUnknownServer:
		return "UnknownServer"
	case StateWebirc:
		return "Webirc"
	case StateServerRegistered:
		return "ServerRegistered"
	case StateUserRegistered:
		return "UserRegistered"
	default:
		return "Unknown"
	}
}

// IsRegistered reports whether the connection has completed registration,
// either as a user or as a server link.
func (s State) IsRegistered() bool {
	return s == StateUserRegistered || s == StateServerRegistered || s == StateMe
}

// IsUnregistered reports whether the connection is still in one of the
// pre-registration states, for dispatch-row selection.
func (s State) IsUnregistered() bool {
	switch s {
	case StateConnecting, StateHandshake, StateUnknownUser, StateUnknownServer, StateWebirc:
		return true
	default:
		return false
	}
}

// IsServer reports whether the connection is (or is becoming) a peer link.
func (s State) IsServer() bool {
	switch s {
	case StateConnecting, StateHandshake, StateUnknownServer, StateServerRegistered, StateMe:
		return true
	default:
		return false
	}
}
