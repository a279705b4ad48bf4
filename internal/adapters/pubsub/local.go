package pubsub

import (
	"context"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/signaling"
	"github.com/rs/zerolog/log"
)

// Subscribe opens an in-process subscription, so Hub is a core.SignalingConnector.
func (h *Hub) Subscribe(_ context.Context, session domain.SessionID, self domain.Identity) (core.SignalingChannel, error) {
	ch := &LocalChannel{
		hub:     h,
		session: session,
		self:    self.ID,
		inbox:   make(chan core.Frame, h.buffer),
		done:    make(chan struct{}),
	}
	ch.conn = &localConn{ch: ch}
	h.Join(session, self.ID, ch.conn)
	return ch, nil
}

// LocalChannel delivers hub frames to an in-process subscriber.
// Frames are buffered until a handler is registered.
type LocalChannel struct {
	hub     *Hub
	session domain.SessionID
	self    domain.UserID
	conn    *localConn

	inbox chan core.Frame
	done  chan struct{}

	mu        sync.Mutex
	handler   func(signaling.Message)
	closed    bool
	closeOnce sync.Once
}

func (c *LocalChannel) Send(m signaling.Message) error {
	if c.isClosed() {
		return ErrChannelClosed
	}
	if !c.hub.IsMember(c.session, c.self) {
		return ErrNotMember
	}
	frame, err := signaling.Encode(m)
	if err != nil {
		return err
	}
	c.hub.Publish(c.session, c.self, frame)
	return nil
}

func (c *LocalChannel) OnMessage(fn func(signaling.Message)) {
	c.mu.Lock()
	first := c.handler == nil
	c.handler = fn
	closed := c.closed
	c.mu.Unlock()
	if first && !closed {
		go c.deliver()
	}
}

func (c *LocalChannel) Close() error {
	c.closeOnce.Do(func() {
		c.hub.Leave(c.session, c.self, c.conn)
		c.release()
	})
	return nil
}

func (c *LocalChannel) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

func (c *LocalChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *LocalChannel) deliver() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.inbox:
			m, err := signaling.Decode(frame)
			if err != nil {
				log.Warn().Str("module", "pubsub.local").Err(err).Msg("dropping undecodable frame")
				continue
			}
			c.mu.Lock()
			fn := c.handler
			c.mu.Unlock()
			fn(m)
		}
	}
}

// localConn is the hub-facing side of a LocalChannel.
type localConn struct{ ch *LocalChannel }

func (l *localConn) TrySend(f core.Frame) error {
	if l.ch.isClosed() {
		return ErrChannelClosed
	}
	select {
	case l.ch.inbox <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close is called by the hub on eviction.
func (l *localConn) Close() { l.ch.release() }
