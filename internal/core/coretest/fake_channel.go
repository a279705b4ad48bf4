package coretest

import (
	"sync"

	"github.com/dkeye/Huddle/internal/signaling"
)

// RecordingChannel is a core.SignalingChannel that records what is sent
// and lets tests inject inbound messages.
type RecordingChannel struct {
	Err error

	mu      sync.Mutex
	sent    []signaling.Message
	handler func(signaling.Message)
	closes  int
	lost    chan struct{}
}

func (c *RecordingChannel) Send(m signaling.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *RecordingChannel) OnMessage(fn func(signaling.Message)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

func (c *RecordingChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

// Deliver hands m to the registered handler as if it came from the wire.
func (c *RecordingChannel) Deliver(m signaling.Message) {
	c.mu.Lock()
	fn := c.handler
	c.mu.Unlock()
	if fn != nil {
		fn(m)
	}
}

func (c *RecordingChannel) Sent() []signaling.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]signaling.Message(nil), c.sent...)
}

// SentOf filters sent messages by type.
func (c *RecordingChannel) SentOf(t signaling.Type) []signaling.Message {
	var out []signaling.Message
	for _, m := range c.Sent() {
		if m.Type() == t {
			out = append(out, m)
		}
	}
	return out
}

func (c *RecordingChannel) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *RecordingChannel) Lost() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lost == nil {
		c.lost = make(chan struct{})
	}
	return c.lost
}

// Drop simulates the transport failing underneath the channel.
func (c *RecordingChannel) Drop() {
	lost := c.Lost()
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-lost:
	default:
		close(c.lost)
	}
}
