package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/pokemap/maptracker/pkg/streaming"
)

const (
	sendChSize     = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// MessageHandler processes one renderer message and returns the ack result.
type MessageHandler func(ctx context.Context, env streaming.Envelope) (any, error)

// Hub fans server messages out to every connected renderer and feeds
// renderer messages to a MessageHandler.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	upgrader ws.Upgrader
	handle   MessageHandler
	greet    func() ([]byte, error)
	logger   *slog.Logger
}

// NewHub creates a hub. An empty allowedOrigins keeps gorilla's same-origin
// check; "*" allows any origin.
func NewHub(logger *slog.Logger, allowedOrigins []string, handle MessageHandler, greet func() ([]byte, error)) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		handle:  handle,
		greet:   greet,
		logger:  logger,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		}
	}
	return h
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("Renderer connected", "remote", r.RemoteAddr, "clients", h.Len())

	if h.greet != nil {
		if data, err := h.greet(); err == nil {
			c.send(data)
		}
	}

	go c.writeLoop()
	c.readLoop(context.WithoutCancel(r.Context()))
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// Broadcast queues data for every client. Slow clients drop messages
// rather than block the caller.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.send(data)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// client is one renderer connection with a single write goroutine.
type client struct {
	hub    *Hub
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *client) send(data []byte) {
	select {
	case <-c.done:
	case c.sendCh <- data:
	default:
		c.hub.logger.Warn("WebSocket send channel full, dropping message", "remote", c.conn.RemoteAddr().String())
	}
}

// writeLoop drains sendCh and writes messages to the WebSocket. It is the
// only goroutine that writes to conn.
func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			_ = c.conn.Close()
			return
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.unregister(c)
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.hub.logger.Debug("WebSocket write error", "error", err)
				c.hub.unregister(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.hub.unregister(c)
				return
			}
		}
	}
}

// readLoop reads renderer messages until the connection fails.
func (c *client) readLoop(ctx context.Context) {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseNormalClosure) {
				c.hub.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.hub.logger.Debug("Malformed renderer message", "error", err)
			continue
		}

		var (
			result any
			herr   error
		)
		if c.hub.handle != nil {
			result, herr = c.hub.handle(ctx, env)
		}
		if env.Seq == 0 {
			continue
		}

		ack := streaming.AckMessage{Type: streaming.TypeAck, For: env.Type, Seq: env.Seq, Result: result}
		if herr != nil {
			ack.Error = herr.Error()
			ack.Result = nil
		}
		data, err := json.Marshal(ack)
		if err != nil {
			c.hub.logger.Error("Failed to encode ack", "error", err)
			continue
		}
		c.send(data)
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
	})
}
