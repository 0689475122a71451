package infrastructure

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"recruit-pipeline/domain"
)

// EventMessage is what subscribers receive for every pipeline event.
type EventMessage struct {
	Action      domain.Action `json:"action"`
	PipelineID  uint          `json:"pipeline_id"`
	PlacementID *uint         `json:"placement_id,omitempty"`
	EventID     string        `json:"event_id"`
	Payload     any           `json:"payload"`
}

// Hub pushes pipeline events to connected UI clients. A client may subscribe to one
// pipeline entry with ?pipeline_id=, otherwise it receives everything.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]uint
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: map[*websocket.Conn]uint{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Publish broadcasts event. It satisfies the relay's publisher contract so the hub can
// stand in for the broker when RabbitMQ is disabled.
func (h *Hub) Publish(_ context.Context, event domain.OutboxEvent) error {
	h.Broadcast(EventMessage{
		Action:      event.Type,
		PipelineID:  event.PipelineID,
		PlacementID: event.PlacementID,
		EventID:     event.EventID,
		Payload:     event.Payload,
	})
	return nil
}

func (h *Hub) Broadcast(msg EventMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client, pipelineID := range h.clients {
		if pipelineID != 0 && pipelineID != msg.PipelineID {
			continue
		}
		if err := client.WriteJSON(msg); err != nil {
			client.Close()
			delete(h.clients, client)
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve upgrades the request and keeps the client registered until it disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, pipelineID uint) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = pipelineID
	h.mu.Unlock()

	// Clients only listen; reading drains control frames and detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}
