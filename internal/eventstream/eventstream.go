// Package eventstream broadcasts live adaptation events (tier
// transitions) to connected WebSocket clients, for dashboards
// observing a running node.
package eventstream

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/stoq-transport/stoq/internal/adaptive"
	"github.com/stoq-transport/stoq/internal/logging"
)

const (
	readBufferSize  = 4096
	writeBufferSize = 4096
	broadcastBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  readBufferSize,
	WriteBufferSize: writeBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TierTransitionEvent describes one connection's adaptation transition.
type TierTransitionEvent struct {
	Type         string    `json:"type"`
	ConnectionID string    `json:"connection_id"`
	Tier         string    `json:"tier"`
	Adaptations  uint64    `json:"adaptations"`
	Timestamp    time.Time `json:"timestamp"`
}

// Hub fans out events to every connected WebSocket client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan TierTransitionEvent
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan TierTransitionEvent)}
}

// OnTransition adapts as an adaptive.TransitionFunc, broadcasting
// every tier change reported by an adaptive.Manager.
func (h *Hub) OnTransition(connectionID string, stats adaptive.Stats) {
	h.Broadcast(TierTransitionEvent{
		Type:         "tier_transition",
		ConnectionID: connectionID,
		Tier:         stats.Tier.String(),
		Adaptations:  stats.AdaptationCount,
		Timestamp:    stats.LastAdaptation,
	})
}

// Broadcast sends event to every connected client, dropping it for any
// client whose buffer is full rather than blocking the broadcaster.
func (h *Hub) Broadcast(event TierTransitionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
			logging.Warn("eventstream: dropping event for slow client")
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams events to
// it until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("eventstream: websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	ch := make(chan TierTransitionEvent, broadcastBuffer)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		close(ch)
	}()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
