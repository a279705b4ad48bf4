// Package wsclient is the peer side of the signaling channel over WebSocket.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/signaling"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("signaling channel closed")

const writeWait = 5 * time.Second

// TokenSource hands out a signed identity token, if one was issued.
type TokenSource interface {
	Token() string
}

// Dialer opens WebSocket subscriptions against the signaling server.
type Dialer struct {
	// Server is the http(s) base URL of the server.
	Server      string
	WS          *websocket.Dialer
	Credentials TokenSource
}

func NewDialer(server string) *Dialer {
	return &Dialer{Server: server, WS: websocket.DefaultDialer}
}

func (d *Dialer) endpoint(session domain.SessionID, self domain.Identity) (string, error) {
	u, err := url.Parse(strings.TrimRight(d.Server, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/api/sessions/" + string(session) + "/signal"
	q := url.Values{}
	q.Set("uid", string(self.ID))
	q.Set("name", self.DisplayName)
	if d.Credentials != nil {
		if token := d.Credentials.Token(); token != "" {
			q.Set("token", token)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *Dialer) Subscribe(ctx context.Context, session domain.SessionID, self domain.Identity) (core.SignalingChannel, error) {
	endpoint, err := d.endpoint(session, self)
	if err != nil {
		return nil, err
	}
	ws, _, err := d.WS.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial session %s: %w", session, err)
	}
	log.Info().Str("module", "wsclient").Str("session", string(session)).Str("user", string(self.ID)).Msg("subscribed")
	return &Channel{ws: ws, done: make(chan struct{}), lost: make(chan struct{})}, nil
}

// Channel is a core.SignalingChannel over one WebSocket.
type Channel struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	handler func(signaling.Message)
	closed  bool

	closeOnce sync.Once
	done      chan struct{}
	lost      chan struct{}
}

func (c *Channel) Send(m signaling.Message) error {
	frame, err := signaling.Encode(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// OnMessage registers fn; the read loop starts with the first handler.
func (c *Channel) OnMessage(fn func(signaling.Message)) {
	c.mu.Lock()
	first := c.handler == nil
	c.handler = fn
	closed := c.closed
	c.mu.Unlock()
	if first && !closed {
		go c.readLoop()
	}
}

func (c *Channel) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				log.Warn().Err(err).Str("module", "wsclient").Msg("connection to server lost")
				close(c.lost)
			}
			return
		}
		m, err := signaling.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "wsclient").Msg("dropping undecodable frame")
			continue
		}
		c.mu.Lock()
		fn := c.handler
		c.mu.Unlock()
		fn(m)
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Done is closed once the channel is released.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Lost is closed when the server side of the connection goes away.
func (c *Channel) Lost() <-chan struct{} { return c.lost }

func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = c.ws.Close()
		close(c.done)
	})
	return err
}
