// Package ws streams kernel lifecycle events and periodic snapshots
// to UI viewers over WebSocket.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/minimind-os/minimind/internal/infrastructure/logging"
	"github.com/minimind-os/minimind/internal/infrastructure/monitoring"
	"github.com/minimind-os/minimind/internal/kernel"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // viewers run on a separate dev origin
	},
}

// snapshotInterval is how often connected viewers get a full refresh
// even when no lifecycle event fired.
const snapshotInterval = time.Second

// Handler manages viewer WebSocket connections.
type Handler struct {
	kernel  *kernel.Kernel
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a WebSocket handler
func NewHandler(k *kernel.Kernel, logger *logging.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		kernel:  k,
		logger:  logger.Component("ws"),
		metrics: metrics,
	}
}

// conn wraps a websocket connection with a write lock, since the
// event forwarder and the read loop both send.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

type inbound struct {
	Type string `json:"type"`
}

// HandleConnection upgrades the request and streams until the client
// goes away. Each connection gets its own kernel subscription.
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	cn := &conn{ws: ws}
	events, cancel := h.kernel.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go h.forward(cn, events, done)

	_ = cn.send(map[string]interface{}{
		"type":     "system",
		"message":  "Connected to MiniMind OS",
		"snapshot": h.kernel.Snapshot(),
	})

	for {
		var msg inbound
		if err := ws.ReadJSON(&msg); err != nil {
			break
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("in", msg.Type)
		}

		switch msg.Type {
		case "ping":
			_ = cn.send(map[string]interface{}{"type": "pong"})
		case "snapshot":
			_ = cn.send(map[string]interface{}{
				"type":     "snapshot",
				"snapshot": h.kernel.Snapshot(),
			})
		default:
			_ = cn.send(map[string]interface{}{
				"type":  "error",
				"error": "unknown message type",
			})
		}
	}

	close(done)
}

// forward pushes kernel events as they arrive and a snapshot on a
// fixed cadence. Returns when the subscription or connection ends.
func (h *Handler) forward(cn *conn, events <-chan kernel.Event, done <-chan struct{}) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if h.metrics != nil {
				h.metrics.RecordWSMessage("out", "event")
			}
			if err := cn.send(map[string]interface{}{
				"type":  "event",
				"event": ev,
			}); err != nil {
				return
			}
		case <-ticker.C:
			if err := cn.send(map[string]interface{}{
				"type":     "snapshot",
				"snapshot": h.kernel.Snapshot(),
			}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
