package websocket

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"github.com/Capitan-Parrot/animal-detection/internal/logging"
	"github.com/Capitan-Parrot/animal-detection/internal/metrics"
	"github.com/Capitan-Parrot/animal-detection/internal/models"
	"github.com/Capitan-Parrot/animal-detection/internal/simulator"
)

const (
	MessageTypeDetections = "detections"
	MessageTypeAlert      = "alert"
	MessageTypePing       = "ping"
	MessageTypePong       = "pong"
)

// Message is the envelope every viewer receives.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub keeps the connected viewers and fans out frames and alerts to them.
// It is both a simulator.RenderSink and an alert.Sink.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	doneOnce   sync.Once
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves register/unregister/broadcast until ctx is done, then closes
// every client. Once Run returns the hub accepts no new viewers.
func (h *Hub) Run(ctx context.Context) error {
	defer h.doneOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			logging.Info().Str("component", "websocket-hub").Msg("websocket hub stopped")
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			logging.Info().Int("total_clients", total).Msg("viewer connected")

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.send(message)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		client.closeSend()
	}
	total := len(h.clients)
	h.mu.Unlock()
	if ok {
		metrics.WebSocketClients.Set(float64(total))
		logging.Info().Int("total_clients", total).Msg("viewer disconnected")
	}
}

// send delivers to every client; a client whose buffer is full is dropped.
func (h *Hub) send(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.trySend(message) {
			client.closeSend()
			delete(h.clients, client)
		}
	}
	metrics.WebSocketClients.Set(float64(len(h.clients)))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}
	metrics.WebSocketClients.Set(0)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastJSON queues a message for all viewers. It never blocks.
func (h *Hub) BroadcastJSON(messageType string, data any) {
	payload, err := json.Marshal(Message{Type: messageType, Data: data})
	if err != nil {
		logging.Error().Err(err).Str("message_type", messageType).Msg("failed to encode viewer message")
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		metrics.SinkQueueDrops.WithLabelValues("websocket").Inc()
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// Render sends the frame to viewers, including empty frames so they can
// clear their overlay.
func (h *Hub) Render(frame simulator.Frame) {
	if h.ClientCount() == 0 {
		return
	}
	h.BroadcastJSON(MessageTypeDetections, frame)
}

func (h *Hub) Notify(rec models.AlertRecord) {
	h.BroadcastJSON(MessageTypeAlert, rec)
}
