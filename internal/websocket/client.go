package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/coinvault/internal/auth"
	"github.com/dukerupert/coinvault/internal/model"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Client represents a single WebSocket connection.
type Client struct {
	hub  *Hub
	conn *ws.Conn
	send chan []byte
	who  auth.AuthContext
}

// NewClient creates a Client for an authenticated caller.
func NewClient(hub *Hub, conn *ws.Conn, who auth.AuthContext) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		who:  who,
	}
}

func (c *Client) sees(m Message) bool {
	switch {
	case c.who.Role == model.RoleSuperadmin:
		return true
	case m.UserID == 0 && m.CompanyID == 0:
		// catalog-wide
		return true
	case m.UserID != 0 && m.UserID == c.who.UserID:
		return true
	case c.who.Role == model.RoleCompanyAdmin:
		return m.CompanyID != 0 && m.CompanyID == c.who.CompanyID
	}
	return false
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump discards inbound frames; it only detects disconnects.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(ws.StatusNormalClosure, "")
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
