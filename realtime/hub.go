package realtime

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	openConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paddyhealth_ws_connections",
		Help: "Number of open push channel connections",
	})
	eventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paddyhealth_ws_events_total",
		Help: "Events emitted to rooms, by whether any client received them",
	}, []string{"event", "delivered"})
)

// Hub tracks connected clients and the rooms they joined.
// A room is created on first join and dropped when its last member leaves.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	log     *zap.SugaredLogger
}

// NewHub returns an empty hub. log may be nil.
func NewHub(log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		log:     log,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	openConnections.Inc()
	h.log.Debugw("push client connected", "client_id", c.ID, "total_clients", total)
}

// unregister removes c from every room and closes its send queue. Safe to call twice.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.removeLocked(c, room)
	}
	close(c.send)
	total := len(h.clients)
	h.mu.Unlock()
	openConnections.Dec()
	h.log.Debugw("push client disconnected", "client_id", c.ID, "total_clients", total)
}

// Join adds c to room. Joining several rooms is allowed.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave removes c from room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	h.removeLocked(c, room)
	h.mu.Unlock()
}

func (h *Hub) removeLocked(c *Client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Emit sends event to every member of room and returns how many clients got it.
// Members whose queue is full are disconnected. An empty room drops the event.
func (h *Hub) Emit(room, event string, data interface{}) (int, error) {
	frame, err := encode(event, data)
	if err != nil {
		return 0, err
	}
	n := h.EmitFrame(room, frame)
	delivered := "true"
	if n == 0 {
		delivered = "false"
	}
	eventsEmitted.WithLabelValues(event, delivered).Inc()
	return n, nil
}

// EmitFrame delivers an already encoded frame to room.
func (h *Hub) EmitFrame(room string, frame []byte) int {
	var slow []*Client
	sent := 0

	h.mu.RLock()
	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
			sent++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warnw("push client too slow, dropping", "client_id", c.ID, "room", room)
		h.unregister(c)
	}
	return sent
}

// deliver queues frame for a single client without blocking.
func (h *Hub) deliver(c *Client, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// RoomSize reports the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client. Used on shutdown, since hijacked connections
// are not closed by http.Server.Shutdown.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.unregister(c)
	}
}
