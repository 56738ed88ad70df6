package protocol

import (
	"bytes"

	"github.com/btnmasher/util"
)

// MessagePool recycles *Message values across the parse/route/free cycle,
// the same channel-backed pool shape as the ambient stack's message pool:
// every inbound line allocates one Message and the parser sits on the
// hottest path in the event loop, so pooling avoids a GC churn spike under
// burst traffic.
type MessagePool struct {
	messages chan *Message
}

// NewMessagePool creates a pool backed by a channel of the given capacity.
func NewMessagePool(max int) *MessagePool {
	return &MessagePool{messages: make(chan *Message, max)}
}

// Warmup pre-allocates up to num Messages into the pool.
func (p *MessagePool) Warmup(num int) {
	for i := 0; i < num; i++ {
		select {
		case p.messages <- &Message{}:
		default:
			return
		}
	}
}

// New takes a Message from the pool, allocating a fresh one if empty.
func (p *MessagePool) New() *Message {
	select {
	case m := <-p.messages:
		return m
	default:
		return &Message{}
	}
}

// Recycle scrubs and returns msg to the pool. If the pool is full, msg is
// simply dropped for the GC to collect.
func (p *MessagePool) Recycle(msg *Message) {
	if msg == nil {
		return
	}
	msg.scrub()
	select {
	case p.messages <- msg:
	default:
	}
}

// bufferPool backs the *bytes.Buffer that RenderBuffer renders outbound
// lines into, so RenderBuffer does not allocate a fresh buffer per line.
var bufferPool = util.NewBufferPool(256)

// RenderBuffer renders m into a pooled buffer including the CRLF
// terminator. Callers must return the buffer via ReleaseBuffer once the
// bytes have been written to the connection.
func RenderBuffer(m *Message) *bytes.Buffer {
	buf := bufferPool.New()
	if m.Prefix != "" {
		buf.WriteString(colon)
		buf.WriteString(m.Prefix)
		buf.WriteString(space)
	}
	buf.WriteString(m.Verb)
	for i, p := range m.Params {
		buf.WriteString(space)
		last := i == len(m.Params)-1
		if last && (p == "" || bytes.ContainsAny([]byte(p), " ") || len(p) > 0 && p[0] == ':') {
			buf.WriteString(colon)
		}
		buf.WriteString(p)
	}
	buf.WriteString(crlf)
	return buf
}

// ReleaseBuffer returns buf to the shared pool after its contents have been
// flushed to the wire.
func ReleaseBuffer(buf *bytes.Buffer) {
	bufferPool.Recycle(buf)
}
