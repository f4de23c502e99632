package realtime

import (
	"context"
	"sync"
	"time"

	logger "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Logger"
)

// OwnershipChecker decides whether an authenticated user may join a device room
type OwnershipChecker interface {
	OwnsDevice(ctx context.Context, userID, deviceID string) (bool, error)
}

// Hub tracks live connections and their room memberships
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	owners OwnershipChecker
	logger *logger.Logger
	now    func() time.Time
}

// NewHub creates a hub. owners may be nil, in which case subscriptions are unchecked.
func NewHub(owners OwnershipChecker, log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		owners:  owners,
		logger:  log.WithComponent("realtime"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register adds a connection to the hub
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a connection and every membership it holds. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	delete(h.clients, c)
	close(c.send)
}

// Join adds c to room. Joining twice is a no-op.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave removes c from room. Leaving a room never joined is a no-op.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// RoomSize returns the number of connections in room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of registered connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Emit sends an event to every member of room. Slow consumers miss the event.
func (h *Hub) Emit(room, event string, data interface{}) {
	msg, err := encode(event, data)
	if err != nil {
		h.logger.Logger.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[room] {
		select {
		case c.send <- msg:
		default:
			h.logger.Logger.Warn().Str("client", c.ID).Str("room", room).Str("event", event).Msg("Send buffer full, dropping event")
		}
	}
}

// send enqueues a frame for a single registered client
func (h *Hub) send(c *Client, event string, data interface{}) {
	msg, err := encode(event, data)
	if err != nil {
		h.logger.Logger.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Logger.Warn().Str("client", c.ID).Str("event", event).Msg("Send buffer full, dropping reply")
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}
