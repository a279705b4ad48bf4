package signal

import (
	"time"

	"github.com/gorilla/websocket"
)

// keepAlive extends the read deadline on every pong.
func (ctl *SignalWSController) keepAlive(c *WsSignalConn) {
	wait := ctl.opts.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})
}

func (ctl *SignalWSController) ping(c *WsSignalConn) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
