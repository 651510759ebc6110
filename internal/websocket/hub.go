// Package websocket fans live readings and node status out to browser clients.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erikbeerepoot/bramble/internal/logger"
	"github.com/erikbeerepoot/bramble/internal/models"
)

const (
	broadcastBuffer = 256
	clientBuffer    = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Envelope is the JSON frame sent to clients
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages.
// Broadcasts never block the caller; a full buffer drops the message.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	log        logger.ILogger

	mu    sync.RWMutex
	count int
}

// NewHub creates an idle hub. Call Run to start it.
func NewHub(log logger.ILogger) *Hub {
	if log == nil {
		log = logger.NewComponentLogger("websocket")
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// Run owns the client set until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.setCount(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			h.log.LogDebug("WebSocket client registered: %s", client.remote())

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.setCount(len(h.clients))
				h.log.LogDebug("WebSocket client unregistered: %s", client.remote())
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.log.LogWarn("WebSocket client %s is not keeping up, removing", client.remote())
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.setCount(len(h.clients))
		}
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Broadcast sends a typed frame to every client
func (h *Hub) Broadcast(kind string, payload interface{}) {
	data, err := json.Marshal(Envelope{Type: kind, Payload: payload})
	if err != nil {
		h.log.LogError("Error marshalling %s for broadcast: %v", kind, err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.LogWarn("WebSocket broadcast buffer full, dropping %s", kind)
	}
}

type liveReading struct {
	DeviceID           uint64  `json:"device_id"`
	Address            uint16  `json:"address,omitempty"`
	Timestamp          int64   `json:"timestamp"`
	TemperatureCelsius float64 `json:"temperature_celsius"`
	HumidityPercent    float64 `json:"humidity_percent"`
}

// ObserveReading broadcasts a live reading
func (h *Hub) ObserveReading(r models.SensorReading) {
	h.Broadcast("reading", liveReading{
		DeviceID:           r.DeviceID,
		Address:            r.Address,
		Timestamp:          r.Timestamp,
		TemperatureCelsius: r.TemperatureCelsius(),
		HumidityPercent:    r.HumidityPercent(),
	})
}

// ObserveStatus broadcasts a node status report
func (h *Hub) ObserveStatus(s models.NodeStatus) {
	h.Broadcast("status", s)
}

// ServeHTTP upgrades the request and attaches a client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.LogWarn("WebSocket upgrade failed: %v", err)
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, clientBuffer)}

	select {
	case h.register <- client:
	case <-time.After(writeWait):
		h.log.LogWarn("WebSocket hub not running, closing %s", client.remote())
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
