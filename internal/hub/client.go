// Package hub owns the websocket side of one live connection: the buffered
// outbound queue and the read/write pumps. Room fan-out lives in the fabric
// package.
package hub

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tripcrew/tripchat/internal/auth"
	"github.com/tripcrew/tripchat/internal/config"
	"github.com/tripcrew/tripchat/pkg/log"
)

// Handshake-fatal close codes.
const (
	CloseUnauthorized = 4001
	CloseForbidden    = 4003
)

// Client is one authenticated connection bound to a single room for its
// whole lifetime.
type Client struct {
	ID       string
	Conn     *websocket.Conn
	Send     chan []byte
	Identity auth.Identity
	TripID   string
	RoomID   string
	config   config.WebSocketConfig
}

func NewClient(id string, conn *websocket.Conn, identity auth.Identity, cfg config.WebSocketConfig) *Client {
	bufSize := cfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Client{
		ID:       id,
		Conn:     conn,
		Send:     make(chan []byte, bufSize),
		Identity: identity,
		config:   cfg,
	}
}

// ReadPump reads frames from the connection and hands each one to handle.
// Frames from one connection are processed strictly sequentially. Returns
// when the connection drops; the caller's deferred cleanup releases the
// fabric subscription.
func (c *Client) ReadPump(handle func([]byte)) {
	defer c.Conn.Close()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.L().Debug().Err(err).Str(log.FieldClientID, c.ID).Msg("websocket read error")
			}
			return
		}

		handle(message)
	}
}

// WritePump drains the send queue onto the connection and keeps the
// keepalive pings going.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendFrame marshals a frame onto the send queue. If the queue is full the
// frame is dropped rather than blocking the caller.
func (c *Client) SendFrame(frame interface{}) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
	default:
		log.L().Warn().Str(log.FieldClientID, c.ID).Msg("send queue full, frame dropped")
	}
	return nil
}

// Reject closes a freshly upgraded connection with a handshake-fatal code
// before any frames are exchanged.
func Reject(conn *websocket.Conn, code int, reason string, writeWait time.Duration) {
	deadline := time.Now().Add(writeWait)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}
