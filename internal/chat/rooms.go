package chat

import (
	"sync"

	"go.uber.org/zap"
)

// broadcastGroup is the set of connections currently joined to one room.
// Each group has its own lock so unrelated rooms never contend.
type broadcastGroup struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// Hub owns room membership for fan-out. Delivery is best-effort: slow or
// gone connections simply miss the event. Events reach a given connection in
// the order the hub processed them; no ordering is promised across rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*broadcastGroup
	log   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]*broadcastGroup),
		log:   log.With(zap.String("module", "hub")),
	}
}

func (h *Hub) group(roomID string) *broadcastGroup {
	h.mu.RLock()
	g, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if ok {
		return g
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok = h.rooms[roomID]; ok {
		return g
	}
	g = &broadcastGroup{conns: make(map[string]Conn)}
	h.rooms[roomID] = g
	return g
}

// Join adds the connection to the room's broadcast group. Idempotent.
func (h *Hub) Join(roomID string, c Conn) {
	g := h.group(roomID)
	g.mu.Lock()
	g.conns[c.ID()] = c
	g.mu.Unlock()
}

// Leave removes the connection from one room.
func (h *Hub) Leave(roomID, connID string) {
	h.mu.RLock()
	g, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	g.mu.Lock()
	delete(g.conns, connID)
	empty := len(g.conns) == 0
	g.mu.Unlock()
	if empty {
		h.mu.Lock()
		g.mu.RLock()
		if len(g.conns) == 0 {
			delete(h.rooms, roomID)
		}
		g.mu.RUnlock()
		h.mu.Unlock()
	}
}

// LeaveAll removes the connection from every room it joined.
func (h *Hub) LeaveAll(connID string) {
	h.mu.RLock()
	roomIDs := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		roomIDs = append(roomIDs, id)
	}
	h.mu.RUnlock()
	for _, id := range roomIDs {
		h.Leave(id, connID)
	}
}

// BroadcastToRoom delivers event+payload to every connection joined to the
// room except excludeConnID (empty string excludes nobody).
func (h *Hub) BroadcastToRoom(roomID, event string, payload interface{}, excludeConnID string) {
	h.mu.RLock()
	g, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	g.mu.RLock()
	snapshot := make([]Conn, 0, len(g.conns))
	for id, c := range g.conns {
		if id == excludeConnID {
			continue
		}
		snapshot = append(snapshot, c)
	}
	g.mu.RUnlock()
	for _, c := range snapshot {
		if !c.Deliver(event, payload) {
			h.log.Debug("dropped room event",
				zap.String("room", roomID),
				zap.String("event", event),
				zap.String("conn", c.ID()))
		}
	}
}

// Unicast delivers directly to one connection, same best-effort semantics.
func (h *Hub) Unicast(c Conn, event string, payload interface{}) {
	if c == nil {
		return
	}
	if !c.Deliver(event, payload) {
		h.log.Debug("dropped unicast event",
			zap.String("event", event),
			zap.String("conn", c.ID()))
	}
}

// Joined reports whether the connection is in the room's group.
func (h *Hub) Joined(roomID, connID string) bool {
	h.mu.RLock()
	g, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, in := g.conns[connID]
	return in
}
