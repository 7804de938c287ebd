package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"support-chat/internal/auth"
	"support-chat/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 8192
	sendBuffer     = 256
	inboundBuffer  = 32
)

// Limits throttles inbound events per connection.
type Limits struct {
	EventsPerSecond float64
	Burst           int
}

// Client is one websocket connection. Inbound frames are handled one at a
// time by run; outbound frames are queued on send and written by writePump.
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	principal auth.Principal
	info      ConnInfo
	limiter   *rate.Limiter

	send    chan []byte
	inbound chan Envelope

	// owned by the run goroutine
	joined bool
	name   string

	closeReason string
	closed      bool
	mu          sync.Mutex
}

func newClient(hub *Hub, conn *websocket.Conn, principal auth.Principal, info ConnInfo, limits Limits) *Client {
	id := info.ConnID
	if id == "" {
		id = newConnID()
		info.ConnID = id
	}
	var limiter *rate.Limiter
	if limits.EventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(limits.EventsPerSecond), limits.Burst)
	}
	return &Client{
		id:        id,
		hub:       hub,
		conn:      conn,
		principal: principal,
		info:      info,
		limiter:   limiter,
		send:      make(chan []byte, sendBuffer),
		inbound:   make(chan Envelope, inboundBuffer),
		name:      principal.Name,
	}
}

func (c *Client) ID() string { return c.id }

// Send queues a frame without blocking. A full queue drops the frame.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		observability.IncWSEvent(c.principal.Role.String(), "dropped")
		log.Warn().Str("conn_id", c.id).Str("user_id", c.principal.UserID).Msg("ws send queue full, dropping frame")
		return false
	}
}

func (c *Client) sendError(code, message string) {
	c.Send(encode(EventError, ErrorPayload{Code: code, Message: message}))
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump decodes frames into the inbound queue until the socket fails.
func (c *Client) readPump() {
	defer close(c.inbound)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn_id", c.id).Str("user_id", c.principal.UserID).Msg("ws read error")
				publishWSEvent(context.Background(), wsError, c.info, c.closeReason)
			}
			return
		}
		c.receive(data)
	}
}

// receive parses and throttles one raw frame.
func (c *Client) receive(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		c.sendError(CodeInvalidPayload, "malformed frame")
		return
	}
	if c.limiter != nil && !c.limiter.Allow() {
		c.sendError(CodeRateLimited, "too many events")
		return
	}
	c.inbound <- env
}

// run is the connection's event loop. It ends when the inbound queue is
// closed, then leaves every room and stops the writer.
func (c *Client) run(ctx context.Context) {
	for env := range c.inbound {
		c.hub.Dispatch(ctx, c, env)
	}
	c.hub.Leave(c)
	c.closeSend()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
