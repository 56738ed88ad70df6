package conn

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/btnmasher/random"

	"github.com/supamanluva/ircd/internal/protocol"
	"github.com/supamanluva/ircd/internal/sendq"
)

// Conn wraps one network socket with the state, outbound queue, and
// ping/timeout bookkeeping the rest of the daemon drives it through.
// Framing (ParseLine/Split) lives in internal/protocol; routing/command
// semantics live in internal/commands and internal/server; Conn itself
// only tracks "where is this connection in its lifecycle".
type Conn struct {
	mu sync.RWMutex

	sock   net.Conn
	reader *bufio.Reader

	state State

	// numnick identifies the connection once it has registered: a full
	// client numnick for a user, a 2-char server numnick for a link.
	// Empty before registration.
	numnick string
	oper    bool

	sendq *sendq.Queue

	connectedAt  time.Time
	lastActivity time.Time

	pingToken   string
	pingOutstanding bool

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Conn around sock, starting in the given initial state
// (StateConnecting for outbound links, StateUnknownUser/StateUnknownServer/
// StateWebirc for inbound ones, depending on the listener's configured
// port class).
func New(sock net.Conn, initial State, maxSendqBytes int) *Conn {
	now := time.Now()
	return &Conn{
		sock:         sock,
		reader:       bufio.NewReader(sock),
		state:        initial,
		sendq:        sendq.NewQueue(maxSendqBytes),
		connectedAt:  now,
		lastActivity: now,
		closed:       make(chan struct{}),
	}
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState transitions the connection to a new state. Callers are
// responsible for only making transitions spec §4.D allows.
func (c *Conn) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Numnick returns the connection's assigned numnick, if registered.
func (c *Conn) Numnick() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.numnick
}

// SetNumnick assigns the connection's numnick once registration completes.
func (c *Conn) SetNumnick(n string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.numnick = n
}

// IsOper reports whether the connection currently holds operator
// privileges (the fourth dispatch-row column).
func (c *Conn) IsOper() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.oper
}

// SetOper sets or clears operator privilege.
func (c *Conn) SetOper(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.oper = on
}

// ConnectedAt returns when the connection was accepted/dialed.
func (c *Conn) ConnectedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectedAt
}

// LastActivity returns the time of the most recent inbound line.
func (c *Conn) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

// Touch records inbound activity, resetting the idle clock the ping
// policy measures against.
func (c *Conn) Touch(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = at
}

// PingOutstanding reports whether a PING has been sent with no matching
// PONG seen yet.
func (c *Conn) PingOutstanding() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pingOutstanding
}

// IssuePing generates a fresh challenge token, marks a PING outstanding,
// and returns the PING message to enqueue. Grounded on btnmasher-dircd's
// doHeartbeat, which stamps each PING with a random.String(10) token and
// only clears the outstanding flag once a PONG echoes it back, so a
// stray/forged PONG can't silence the timeout.
func (c *Conn) IssuePing() *protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingToken = random.String(10)
	c.pingOutstanding = true
	return protocol.BuildPing(c.pingToken)
}

// ObservePong checks an inbound PONG's token against the outstanding PING
// and clears the outstanding flag on a match; a mismatched or unexpected
// PONG is ignored rather than trusted to cancel the timeout.
func (c *Conn) ObservePong(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pingOutstanding || token != c.pingToken {
		return false
	}
	c.pingOutstanding = false
	return true
}

// Enqueue queues line at the given priority on the connection's outbound
// sendq, returning sendq.ErrSendQExceeded if the connection's cap is blown
// (spec §4.J: the connection must then be killed with "SendQ exceeded").
func (c *Conn) Enqueue(line string, pri sendq.Priority) error {
	return c.sendq.Enqueue(line, pri)
}

// Drain pulls everything currently queued for transmission, high-priority
// lines first.
func (c *Conn) Drain() []string {
	return c.sendq.Drain()
}

// Flush drains the sendq and writes every line directly to the socket,
// stopping at the first write error. Callers driving a synchronous
// handshake (internal/server's link establishment) use this instead of a
// separate writer goroutine; the steady-state per-client write loop lives
// in internal/server alongside its read loop.
func (c *Conn) Flush() error {
	for _, line := range c.Drain() {
		if _, err := c.sock.Write([]byte(line)); err != nil {
			return err
		}
	}
	return nil
}

// ReadLine blocks for the next newline-terminated line from the socket,
// trimming a trailing CR, mirroring the teacher's line-oriented read loop
// (btnmasher-dircd/connection.go's bufio.Scanner, ircu2's recv buffering).
func (c *Conn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

// RemoteAddr returns the socket's remote address string.
func (c *Conn) RemoteAddr() string {
	return c.sock.RemoteAddr().String()
}

// Close closes the underlying socket exactly once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.sock.Close()
	})
	return err
}

// IsClosed reports whether Close has already run.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
