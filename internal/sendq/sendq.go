// Package sendq is the per-connection outbound formatting and queueing
// layer: printf-like IRC directives, two priority lanes, and a byte-budget
// cap that kills the connection when exceeded (spec §4.J).
package sendq

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Priority selects which lane a formatted line is enqueued onto. High
// priority is for messages that must jump the queue: PING, KILL, SQUIT,
// SETTIME.
type Priority int

const (
	Normal Priority = iota
	High
)

// ErrSendQExceeded is returned by Enqueue once the connection's configured
// max_sendq has been exceeded; the caller (internal/conn) is responsible
// for killing the connection on this error, cascading QUIT if it is a
// server link.
type ErrSendQExceeded struct {
	MaxBytes int
}

func (e *ErrSendQExceeded) Error() string {
	return fmt.Sprintf("sendq: exceeded max_sendq of %d bytes", e.MaxBytes)
}

// Queue is one connection's outbound buffer: two FIFO lanes (high drains
// before normal) with a combined byte cap.
type Queue struct {
	mu        sync.Mutex
	maxBytes  int
	curBytes  int
	highLane  []string
	normLane  []string
}

// NewQueue constructs a Queue with the given byte cap.
func NewQueue(maxBytes int) *Queue {
	return &Queue{maxBytes: maxBytes}
}

// Enqueue appends a fully-rendered line (including its terminator) onto
// the given priority lane. Returns ErrSendQExceeded if this would push the
// queue's buffered bytes over its cap; the line is still appended so the
// caller can choose to flush what's queued before closing, matching the
// teacher's existing "log and continue, let the kill path handle it"
// client.Send() behavior.
func (q *Queue) Enqueue(line string, pri Priority) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.curBytes += len(line)
	switch pri {
	case High:
		q.highLane = append(q.highLane, line)
	default:
		q.normLane = append(q.normLane, line)
	}

	if q.curBytes > q.maxBytes {
		return &ErrSendQExceeded{MaxBytes: q.maxBytes}
	}
	return nil
}

// Drain removes and returns every currently-queued line, high priority
// first, resetting the byte counter. Called by the I/O layer's flush loop;
// the send layer itself never writes to a socket.
func (q *Queue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]string, 0, len(q.highLane)+len(q.normLane))
	out = append(out, q.highLane...)
	out = append(out, q.normLane...)
	q.highLane = nil
	q.normLane = nil
	q.curBytes = 0
	return out
}

// Bytes returns the current buffered byte count.
func (q *Queue) Bytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.curBytes
}

// PeerFormatter supplies the directive expansions that depend on whether
// the destination is a peer server link (numnick form) or a local client
// (plain name form).
type PeerFormatter interface {
	// FormatClient renders a client reference: a numnick toward a peer, a
	// nickname toward a local client.
	FormatClient(numnickOrNick string) string
	// FormatChannel renders a channel reference.
	FormatChannel(name string) string
}

// Format expands printf-like directives in template against args, plus the
// IRC-specific directives from spec §4.J:
//
//	%C  client, via f.FormatClient
//	%H  channel, via f.FormatChannel
//	%Tu timestamp (unix seconds)
//	%s  plain string (stdlib fallthrough)
//	%d  plain integer (stdlib fallthrough)
func Format(f PeerFormatter, template string, args ...any) string {
	var b strings.Builder
	ai := 0
	next := func() any {
		if ai < len(args) {
			v := args[ai]
			ai++
			return v
		}
		return nil
	}
	for i := 0; i < len(template); i++ {
		if template[i] != '%' || i == len(template)-1 {
			b.WriteByte(template[i])
			continue
		}
		switch template[i+1] {
		case 'C':
			b.WriteString(f.FormatClient(fmt.Sprint(next())))
			i++
		case 'H':
			b.WriteString(f.FormatChannel(fmt.Sprint(next())))
			i++
		case 'T':
			if i+2 < len(template) && template[i+2] == 'u' {
				v := next()
				b.WriteString(formatUnix(v))
				i += 2
			} else {
				b.WriteByte('%')
			}
		case 's', 'd', 'v', 'q':
			b.WriteString(fmt.Sprintf("%"+string(template[i+1]), next()))
			i++
		case '%':
			b.WriteByte('%')
			i++
		default:
			b.WriteByte('%')
		}
	}
	return b.String()
}

func formatUnix(v any) string {
	switch t := v.(type) {
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(v)
	}
}
