package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcoot/battleship-go/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size
	maxMessageSize = 64 * 1024

	// Outbound messages buffered per client before events are dropped
	sendBufferSize = 256
)

// Handler consumes inbound messages for an identity
type Handler interface {
	Handle(ctx context.Context, id model.Identity, raw []byte)
	Disconnect(ctx context.Context, id model.Identity)
}

// Client is one identity's live WebSocket connection
type Client struct {
	id        model.Identity
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewClient wraps an upgraded connection for the identity
func NewClient(hub *Hub, id model.Identity, conn *websocket.Conn) *Client {
	return &Client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		hub:    hub,
		logger: hub.logger.With(slog.String("identity", string(id))),
	}
}

// Identity returns the identity the client acts under
func (c *Client) Identity() model.Identity {
	return c.id
}

// Serve registers the client and processes inbound messages sequentially
// until the connection ends. If the client was still the bound connection for
// its identity when it ended, handler.Disconnect runs before Serve returns.
func (c *Client) Serve(ctx context.Context, handler Handler) {
	c.hub.Register(c)
	go c.writePump()

	c.readPump(ctx, handler)

	if c.hub.Unregister(c) {
		handler.Disconnect(ctx, c.id)
	}
	_ = c.conn.Close()
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

func (c *Client) readPump(ctx context.Context, handler Handler) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", slog.String("error", err.Error()))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handler.Handle(ctx, c.id, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
