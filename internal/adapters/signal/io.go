package signal

import (
	"context"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/signaling"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			if err := ctl.ping(c); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Info().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, session domain.SessionID, uid domain.UserID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("session", string(session)).Str("user", string(uid)).Msg("readPump closing")
		c.Close()
		ctl.announceLeft(session, uid, c)
	}()

	ctl.keepAlive(c)
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("session", string(session)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("user", string(uid)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(session, uid, data)
		}
	}
}

// handleSignal relays one frame verbatim after checking its sender.
func (ctl *SignalWSController) handleSignal(session domain.SessionID, uid domain.UserID, data []byte) {
	typ, from, err := signaling.PeekSender(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(uid)).Msg("bad frame")
		return
	}
	if from != uid {
		log.Warn().Str("module", "signal").Str("user", string(uid)).Str("claimed", string(from)).Msg("spoofed sender, dropping")
		return
	}
	if !ctl.Hub.Allow(uid) {
		log.Warn().Str("module", "signal").Str("user", string(uid)).Str("type", string(typ)).Msg("rate limited")
		return
	}
	ctl.Hub.Publish(session, uid, data)
}

// announceLeft publishes Left for a subscriber whose socket dropped or was
// kicked, unless a newer connection of the same identity replaced it.
func (ctl *SignalWSController) announceLeft(session domain.SessionID, uid domain.UserID, c *WsSignalConn) {
	if !ctl.Hub.Leave(session, uid, c) && ctl.Hub.IsMember(session, uid) {
		return
	}
	frame, err := signaling.Encode(signaling.Left{From: uid})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode left")
		return
	}
	ctl.Hub.Publish(session, uid, frame)
}
