package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrConnClosed = errors.New("connection closed")

type ConnConfig struct {
	SendBuffer     int           // frames queued per connection before Send blocks
	WriteWait      time.Duration // deadline for a single socket write
	PongWait       time.Duration // read deadline, renewed by every pong
	MaxMessageSize int64
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 << 10
	}
	return c
}

// Conn is a Handle over a gorilla websocket. Writes are funnelled through a
// buffered channel drained by WritePump, the only goroutine touching the socket for writing.
type Conn struct {
	id     string
	userID string
	ws     *websocket.Conn
	cfg    ConnConfig

	send      chan []byte
	done      chan struct{}
	alive     atomic.Bool
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn, userID string, cfg ConnConfig) *Conn {
	cfg = cfg.withDefaults()
	c := &Conn{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		cfg:    cfg,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }
func (c *Conn) Alive() bool    { return c.alive.Load() }

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Send(ctx context.Context, payload []byte) error {
	if !c.Alive() {
		return ErrConnClosed
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		close(c.done)
		_ = c.ws.Close()
	})
}

// ReadPump delivers every text frame to onFrame until the socket fails or
// closes. It closes the connection before returning.
func (c *Conn) ReadPump(onFrame func(data []byte)) {
	defer c.Close()

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Info("websocket closed unexpectedly", "connection_id", c.id, "user_id", c.userID, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		onFrame(data)
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
// Any write error closes the connection.
func (c *Conn) WritePump() {
	pingPeriod := (c.cfg.PongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				slog.Debug("websocket write failed", "connection_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
