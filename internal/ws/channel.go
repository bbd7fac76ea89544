// Package ws implements the client channel collaborator: a websocket
// endpoint speaking the event protocol clients consume. Each connection gets
// a buffered outbound queue drained by a dedicated writer goroutine, so
// engine-side delivery is a non-blocking enqueue and one slow client never
// stalls fan-out to the others.
package ws

import (
	"errors"
	"sync"
)

// sendQueueSize bounds the per-connection outbound buffer. A client that
// falls this far behind is considered dead and its sends start failing.
const sendQueueSize = 64

// Envelope is one protocol message in either direction.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ErrChannelClosed is returned by Send after the connection has gone away.
var ErrChannelClosed = errors.New("ws: channel closed")

// ErrChannelFull is returned by Send when the client's outbound queue is
// saturated.
var ErrChannelFull = errors.New("ws: outbound queue full")

// channel adapts one websocket connection to session.Channel. Send enqueues
// without blocking; the connection's writer goroutine drains the queue.
type channel struct {
	out    chan Envelope
	mu     sync.Mutex
	closed bool
}

func newChannel() *channel {
	return &channel{out: make(chan Envelope, sendQueueSize)}
}

// Send enqueues an event for delivery. It never blocks: a full queue or a
// closed connection yields an error that only affects this session.
func (c *channel) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.out <- Envelope{Event: event, Data: payload}:
		return nil
	default:
		return ErrChannelFull
	}
}

// close marks the channel dead and releases the writer goroutine. Safe to
// call more than once.
func (c *channel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}
