// Package collab is the WebSocket adapter of the relay: it upgrades
// inbound connections, interprets the wire protocol, and drives the
// presence registry.
package collab

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mkaran/coedit/internal/config"
	"github.com/mkaran/coedit/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type Controller struct {
	Registry *core.Registry

	readLimit  int64
	pingPeriod time.Duration
	sendBuffer int
}

func NewController(reg *core.Registry, cfg *config.Config) *Controller {
	return &Controller{
		Registry:   reg,
		readLimit:  cfg.ReadLimit,
		pingPeriod: cfg.PingPeriod,
		sendBuffer: cfg.SendBuffer,
	}
}

// wsConn wraps a gorilla connection with a buffered outbound channel.
// TrySend never blocks; a full buffer is reported as backpressure and
// the frame is dropped for that peer.
type wsConn struct {
	id   core.ConnID
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) ID() core.ConnID { return c.id }

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleCollab binds one upgrade request to one connection handle and
// one pair of pump goroutines, for the life of that connection.
func (ctl *Controller) HandleCollab(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "collab").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		id:   core.ConnID(uuid.NewString()),
		conn: ws,
		send: make(chan core.Frame, ctl.sendBuffer),
	}
	log.Info().Str("module", "collab").
		Str("conn", string(conn.id)).
		Str("remote", c.Request.RemoteAddr).
		Msg("new collab connection")

	connCtx, cancel := context.WithCancel(ctx)
	go ctl.writePump(connCtx, conn)
	go ctl.readPump(connCtx, cancel, conn)
}

// disconnect is idempotent: a never-joined or already-removed handle is
// a safe no-op.
func (ctl *Controller) disconnect(conn *wsConn) {
	doc, ok := ctl.Registry.Leave(conn.id)
	if !ok {
		return
	}
	ctl.broadcastUsers(doc)
}
