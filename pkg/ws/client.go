// Package ws serves the authenticated websocket endpoint and adapts each
// socket into a registry handle.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mahaj/bizchat/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 256
)

var (
	ErrClosed       = errors.New("ws: connection closed")
	ErrSlowConsumer = errors.New("ws: send buffer full")
)

// Typist receives typing frames sent by clients.
type Typist interface {
	Typing(ctx context.Context, userID, conversationID string, active bool) error
}

// Client is one websocket connection owned by an authenticated user.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Send queues payload for the write pump. When the buffer stays full
// until ctx is done the client is considered too slow and is closed.
func (c *Client) Send(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		log.Warn("closing slow websocket client", "user", c.userID, "handle", c.id)
		c.Close()
		return ErrSlowConsumer
	}
}

// Close stops both pumps. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump reads client frames until the socket fails, then unregisters.
func (c *Client) readPump(typist Typist, onClose func()) {
	defer func() {
		c.Close()
		onClose()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read failed", "user", c.userID, "err", err)
			}
			return
		}

		var frame model.ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Debug("ignoring malformed client frame", "user", c.userID, "err", err)
			continue
		}
		switch frame.Type {
		case model.FrameTyping:
			if typist == nil {
				continue
			}
			if err := typist.Typing(context.Background(), c.userID, frame.ConversationID, frame.Active); err != nil {
				log.Debug("typing frame rejected", "user", c.userID, "conversation", frame.ConversationID, "err", err)
			}
		default:
			log.Debug("ignoring client frame", "user", c.userID, "type", frame.Type)
		}
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
