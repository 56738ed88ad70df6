package conn

import (
	"net"
	"testing"
	"time"

	"github.com/supamanluva/ircd/internal/protocol"
	"github.com/supamanluva/ircd/internal/sendq"
)

func newTestConn(t *testing.T, initial State) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	return New(server, initial, 4096), client
}

func TestStateTransitionsAndQueries(t *testing.T) {
	c, _ := newTestConn(t, StateUnknownUser)
	if !c.State().IsUnregistered() {
		t.Fatal("StateUnknownUser should be unregistered")
	}
	c.SetState(StateUserRegistered)
	if !c.State().IsRegistered() {
		t.Fatal("StateUserRegistered should be registered")
	}
	if c.State().IsServer() {
		t.Error("StateUserRegistered should not be a server state")
	}
}

func TestIssuePingAndObservePong(t *testing.T) {
	c, _ := newTestConn(t, StateUserRegistered)
	if c.PingOutstanding() {
		t.Fatal("no ping should be outstanding initially")
	}

	msg := c.IssuePing()
	if msg.Verb != protocol.VerbPing {
		t.Fatalf("IssuePing() verb = %q, want PING", msg.Verb)
	}
	token := msg.Params[0]
	if !c.PingOutstanding() {
		t.Fatal("expected PingOutstanding after IssuePing")
	}

	if c.ObservePong("not-the-token") {
		t.Error("a mismatched PONG token should not clear the outstanding ping")
	}
	if !c.PingOutstanding() {
		t.Error("PingOutstanding should remain set after a mismatched PONG")
	}

	if !c.ObservePong(token) {
		t.Error("the correct PONG token should clear the outstanding ping")
	}
	if c.PingOutstanding() {
		t.Error("PingOutstanding should be cleared after a matching PONG")
	}
}

func TestPingPolicyUnregisteredConnectTimeout(t *testing.T) {
	c, _ := newTestConn(t, StateUnknownUser)
	policy := PingPolicy{Freq: time.Minute, ConnectTimeout: 10 * time.Second}

	now := c.ConnectedAt()
	if a := policy.Check(c, now.Add(5*time.Second)); a != ActionNone {
		t.Errorf("Check before CONNECTTIMEOUT = %v, want ActionNone", a)
	}
	if a := policy.Check(c, now.Add(11*time.Second)); a != ActionTimeout {
		t.Errorf("Check after CONNECTTIMEOUT = %v, want ActionTimeout", a)
	}
}

func TestPingPolicyRegisteredSendThenTimeout(t *testing.T) {
	c, _ := newTestConn(t, StateUserRegistered)
	policy := PingPolicy{Freq: 30 * time.Second, ConnectTimeout: 10 * time.Second}
	base := c.LastActivity()

	if a := policy.Check(c, base.Add(10*time.Second)); a != ActionNone {
		t.Errorf("Check within ping_freq = %v, want ActionNone", a)
	}
	if a := policy.Check(c, base.Add(31*time.Second)); a != ActionSendPing {
		t.Errorf("Check at ping_freq = %v, want ActionSendPing", a)
	}

	c.IssuePing()
	if a := policy.Check(c, base.Add(50*time.Second)); a != ActionNone {
		t.Errorf("Check with ping outstanding, under 2x ping_freq = %v, want ActionNone", a)
	}
	if a := policy.Check(c, base.Add(61*time.Second)); a != ActionTimeout {
		t.Errorf("Check with ping outstanding past 2x ping_freq = %v, want ActionTimeout", a)
	}
}

func TestEnqueueDrainAndSendQExceeded(t *testing.T) {
	c, _ := newTestConn(t, StateUserRegistered)
	if err := c.Enqueue("PING :x", sendq.High); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := c.Enqueue("PRIVMSG #chan :hi", sendq.Normal); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	lines := c.Drain()
	if len(lines) != 2 || lines[0] != "PING :x" {
		t.Errorf("Drain() = %v, want high-priority PING first", lines)
	}

	small, _ := newTestConn(t, StateUserRegistered)
	small.sendq = sendq.NewQueue(8)
	if err := small.Enqueue("this line is much too long for an 8 byte cap", sendq.Normal); err == nil {
		t.Error("expected ErrSendQExceeded on an oversized enqueue")
	}
}

func TestDispatchSelectsRowByState(t *testing.T) {
	d := NewDispatcher()
	var gotUnreg, gotUser, gotServer, gotOper bool
	d.Register("FOO", Row{
		Unregistered: func(c *Conn, m *protocol.Message) error { gotUnreg = true; return nil },
		User:         func(c *Conn, m *protocol.Message) error { gotUser = true; return nil },
		Server:       func(c *Conn, m *protocol.Message) error { gotServer = true; return nil },
		Oper:         func(c *Conn, m *protocol.Message) error { gotOper = true; return nil },
	})

	msg := &protocol.Message{Verb: "FOO"}

	unreg, _ := newTestConn(t, StateUnknownUser)
	if err := d.Dispatch(unreg, msg); err != nil || !gotUnreg {
		t.Fatalf("expected Unregistered handler, err=%v gotUnreg=%v", err, gotUnreg)
	}

	user, _ := newTestConn(t, StateUserRegistered)
	if err := d.Dispatch(user, msg); err != nil || !gotUser {
		t.Fatalf("expected User handler, err=%v gotUser=%v", err, gotUser)
	}

	srv, _ := newTestConn(t, StateServerRegistered)
	if err := d.Dispatch(srv, msg); err != nil || !gotServer {
		t.Fatalf("expected Server handler, err=%v gotServer=%v", err, gotServer)
	}

	oper, _ := newTestConn(t, StateUserRegistered)
	oper.SetOper(true)
	if err := d.Dispatch(oper, msg); err != nil || !gotOper {
		t.Fatalf("expected Oper handler to take priority for an oper caller, err=%v gotOper=%v", err, gotOper)
	}
}

func TestDispatchWrongStateAndNotOper(t *testing.T) {
	d := NewDispatcher()
	d.Register("KILL", Row{
		Oper: func(c *Conn, m *protocol.Message) error { return nil },
	})
	msg := &protocol.Message{Verb: "KILL"}

	nonOper, _ := newTestConn(t, StateUserRegistered)
	if err := d.Dispatch(nonOper, msg); err != ErrNotOper {
		t.Errorf("Dispatch(non-oper) = %v, want ErrNotOper", err)
	}

	unreg, _ := newTestConn(t, StateUnknownUser)
	if err := d.Dispatch(unreg, msg); err != ErrWrongState {
		t.Errorf("Dispatch(unregistered, no Unregistered handler) = %v, want ErrWrongState", err)
	}

	if err := d.Dispatch(unreg, &protocol.Message{Verb: "NOSUCHCOMMAND"}); err != ErrUnknownCommand {
		t.Errorf("Dispatch(unregistered command) = %v, want ErrUnknownCommand", err)
	}
}

func TestReadLineTrimsCRLF(t *testing.T) {
	c, client := newTestConn(t, StateConnecting)
	done := make(chan struct{})
	var got string
	var err error
	go func() {
		got, err = c.ReadLine()
		close(done)
	}()
	if _, werr := client.Write([]byte("PING :x\r\n")); werr != nil {
		t.Fatalf("write: %v", werr)
	}
	<-done
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if got != "PING :x" {
		t.Errorf("ReadLine() = %q, want %q", got, "PING :x")
	}
}
