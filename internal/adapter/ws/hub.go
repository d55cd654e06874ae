// Package ws implements the WebSocket connection manager. It owns every
// live bidirectional connection, assigns connection ids, routes inbound
// frames to the session layer, and tears connections down on disconnect,
// protocol error, or failed heartbeat.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/lucylow/kale-ndar-sub000/internal/schedule"
)

const writeTimeout = 5 * time.Second

// MessageHandler processes one inbound frame from a connection.
type MessageHandler func(ctx context.Context, connectionID string, data []byte)

// conn wraps a single WebSocket connection.
type conn struct {
	id     string
	ws     *websocket.Conn
	cancel context.CancelFunc

	// writeMu serializes writes; coder/websocket permits only one
	// concurrent writer per connection.
	writeMu sync.Mutex

	closeOnce sync.Once
}

// Hub manages all active WebSocket connections.
type Hub struct {
	maxConns       int
	originPatterns []string

	onMessage    MessageHandler
	onConnect    func(connectionID string)
	onDisconnect func(connectionID string)

	mu    sync.RWMutex
	conns map[string]*conn

	heartbeat *schedule.Task
}

// NewHub creates a connection manager that refuses connections beyond
// maxConns.
func NewHub(maxConns int) *Hub {
	return &Hub{
		maxConns: maxConns,
		conns:    make(map[string]*conn),
	}
}

// OnMessage registers the inbound frame handler. Must be called before the
// hub starts accepting connections.
func (h *Hub) OnMessage(fn MessageHandler) { h.onMessage = fn }

// AllowOrigins restricts browser connections to the given host patterns
// (as matched against the Origin header). Without patterns any origin is
// accepted. Must be called before the hub starts accepting connections.
func (h *Hub) AllowOrigins(patterns ...string) { h.originPatterns = patterns }

// OnConnect registers a hook invoked after a connection is registered.
func (h *Hub) OnConnect(fn func(connectionID string)) { h.onConnect = fn }

// OnDisconnect registers a hook invoked exactly once when a connection
// leaves the live set for any reason.
func (h *Hub) OnDisconnect(fn func(connectionID string)) { h.onDisconnect = fn }

// HandleWS upgrades the request to a WebSocket and runs its read loop.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	full := len(h.conns) >= h.maxConns
	h.mu.RUnlock()
	if full {
		http.Error(w, "connection limit reached", http.StatusServiceUnavailable)
		return
	}

	opts := &websocket.AcceptOptions{
		// Non-browser backend clients send no Origin header and are
		// always admitted; requests that do carry one must match.
		InsecureSkipVerify: len(h.originPatterns) == 0,
		OriginPatterns:     h.originPatterns,
	}
	wsc, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{id: uuid.NewString(), ws: wsc, cancel: cancel}

	// Re-check the cap while inserting: upgrades run concurrently, so the
	// pre-upgrade check alone can overshoot.
	h.mu.Lock()
	if len(h.conns) >= h.maxConns {
		h.mu.Unlock()
		cancel()
		_ = wsc.Close(websocket.StatusTryAgainLater, "connection limit reached")
		return
	}
	h.conns[c.id] = c
	h.mu.Unlock()

	slog.Info("websocket connected", "connection_id", c.id, "remote", r.RemoteAddr)

	if h.onConnect != nil {
		h.onConnect(c.id)
	}

	go h.readLoop(ctx, c)
}

// readLoop consumes inbound frames until the connection dies. Each
// connection reads on its own goroutine, so a slow frame handler on one
// connection never blocks another.
func (h *Hub) readLoop(ctx context.Context, c *conn) {
	defer h.drop(c)
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		if h.onMessage != nil {
			h.onMessage(ctx, c.id, data)
		}
	}
}

// Send marshals v and writes it to the connection. Best-effort: if the
// connection is unknown or the write fails, the frame is dropped and the
// connection removed from the live set. No error reaches the publisher.
func (h *Hub) Send(connectionID string, v any) {
	h.mu.RLock()
	c, ok := h.conns[connectionID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	c.writeMu.Lock()
	err = c.ws.Write(ctx, websocket.MessageText, data)
	c.writeMu.Unlock()

	if err != nil {
		slog.Debug("websocket write failed", "connection_id", connectionID, "error", err)
		h.drop(c)
	}
}

// StartHeartbeat pings every open connection on the given interval and
// drops connections that fail the ping. This is the only liveness
// detection; there is no application-level acknowledgment.
func (h *Hub) StartHeartbeat(interval time.Duration) {
	h.heartbeat = schedule.Every(interval, func() {
		h.mu.RLock()
		conns := make([]*conn, 0, len(h.conns))
		for _, c := range h.conns {
			conns = append(conns, c)
		}
		h.mu.RUnlock()

		for _, c := range conns {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.ws.Ping(ctx)
			cancel()
			if err != nil {
				slog.Info("heartbeat failed, dropping connection", "connection_id", c.id)
				h.drop(c)
			}
		}
	})
}

// Disconnect removes the connection with the given id. Idempotent.
func (h *Hub) Disconnect(connectionID string) {
	h.mu.RLock()
	c, ok := h.conns[connectionID]
	h.mu.RUnlock()
	if ok {
		h.drop(c)
	}
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close stops the heartbeat and closes every live connection.
func (h *Hub) Close() {
	if h.heartbeat != nil {
		h.heartbeat.Stop()
	}

	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.drop(c)
	}
}

// drop removes the connection from the live set, closes it, and fires the
// disconnect hook exactly once.
func (h *Hub) drop(c *conn) {
	c.closeOnce.Do(func() {
		h.mu.Lock()
		delete(h.conns, c.id)
		h.mu.Unlock()

		c.cancel()
		_ = c.ws.Close(websocket.StatusNormalClosure, "")

		slog.Info("websocket disconnected", "connection_id", c.id)
		if h.onDisconnect != nil {
			h.onDisconnect(c.id)
		}
	})
}
