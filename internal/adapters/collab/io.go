package collab

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "collab").Str("conn", string(c.id)).Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "collab").Str("conn", string(c.id)).Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "collab").Str("conn", string(c.id)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "collab").Str("conn", string(c.id)).Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, c *wsConn) {
	defer func() {
		log.Info().Str("module", "collab").Str("conn", string(c.id)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.disconnect(c)
	}()

	// Pong deadline sits one ping past the period so a single missed
	// pong does not kill a healthy connection.
	pongWait := ctl.pingPeriod + writeWait
	c.conn.SetReadLimit(ctl.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "collab").Str("conn", string(c.id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "collab").Str("conn", string(c.id)).Msg("readPump read error")
				}
				return
			}
			ctl.handleMessage(c, data)
		}
	}
}

// handleMessage dispatches one inbound frame. A bad frame is logged
// and dropped; the connection stays open.
func (ctl *Controller) handleMessage(c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "collab").Str("conn", string(c.id)).Msg("bad json frame")
		return
	}

	switch env.Type {
	case TypeJoin:
		ctl.handleJoin(c, data)
	case TypeContentUpdate:
		ctl.handleContentUpdate(c, data)
	default:
		log.Warn().Str("module", "collab").Str("conn", string(c.id)).Str("type", env.Type).Msg("unknown message type")
	}
}
