package pipeline

import (
	"context"
	"errors"
	"sync"
)

// Output channel names the gateway sends on.
const (
	OutputAudio = "audio"
	OutputText  = "text"
)

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("pipeline connection closed")

// Adapter is the gateway's view of the external dataflow pipeline. Send is
// fire-and-forget from the session's perspective: failures are logged by the
// caller and never end the session. Events returns the inbound event stream;
// the channel closing means the event source itself has ended, which is the
// only pipeline condition that terminates a session loop.
type Adapter interface {
	Send(ctx context.Context, output string, meta Metadata, payload any) error
	Events() <-chan Event
}

// SendFunc is the transport-provided function that writes one output to the
// dataflow.
type SendFunc func(output string, meta Metadata, payload any) error

// SharedConn wraps the single pipeline connection a process holds for a
// named dataflow node. The underlying event stream has single-consumer
// semantics, so every session attached to the same node shares this one
// value: sends are serialized by the mutex, and receives serialize naturally
// on the shared channel. Sessions racing for the same node are therefore
// implicitly serialized at the pipeline boundary; that is a documented
// scaling constraint, not an accident.
//
// The connection is established once by the supervision layer and injected
// into each session; sessions never manage its lifecycle.
type SharedConn struct {
	mu     sync.Mutex
	send   SendFunc
	events chan Event

	closeOnce sync.Once
	closed    bool
}

// NewSharedConn wraps a transport send function and allocates the inbound
// event channel.
func NewSharedConn(send SendFunc, buffer int) *SharedConn {
	return &SharedConn{
		send:   send,
		events: make(chan Event, buffer),
	}
}

// Send writes one output to the dataflow, serialized across sessions.
func (c *SharedConn) Send(ctx context.Context, output string, meta Metadata, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.send(output, meta, payload)
}

// Events returns the shared inbound event stream.
func (c *SharedConn) Events() <-chan Event {
	return c.events
}

// Publish delivers one inbound event to whichever session wins the receive.
// It is called by the transport layer that owns the dataflow connection.
func (c *SharedConn) Publish(ev Event) {
	c.events <- ev
}

// Close marks the connection closed and ends the event stream. Session
// loops observe the closed channel as end-of-stream and exit gracefully.
func (c *SharedConn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.events)
	})
}
