package chat

import (
	"sync"

	"go.uber.org/zap"
)

// Conn is the core's view of a live connection. Deliver is best-effort: it
// reports false when the event was dropped (slow or gone connection) and the
// caller moves on.
type Conn interface {
	ID() string
	UserID() string
	Deliver(event string, payload interface{}) bool
}

// presenceEntry tracks one user's live connections. Each entry carries its
// own mutex so mutations for different users never serialize on each other.
type presenceEntry struct {
	mu        sync.Mutex
	userID    string
	conns     map[string]Conn
	permanent bool
}

// Presence maps users to their live connections. The registry-level RWMutex
// guards only the maps; per-user mutation happens under the entry mutex.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]*presenceEntry
	owners  map[string]string // connID -> userID
	log     *zap.Logger
}

// NewPresence creates an empty presence registry.
func NewPresence(log *zap.Logger) *Presence {
	return &Presence{
		entries: make(map[string]*presenceEntry),
		owners:  make(map[string]string),
		log:     log.With(zap.String("module", "presence")),
	}
}

// Register adds the connection to its owner's entry, creating the entry when
// absent. Idempotent per (user, connection). Returns true when the user was
// not online before.
func (p *Presence) Register(c Conn) bool {
	p.mu.Lock()
	e, existed := p.entries[c.UserID()]
	if !existed {
		e = &presenceEntry{userID: c.UserID(), conns: make(map[string]Conn)}
		p.entries[c.UserID()] = e
	}
	p.owners[c.ID()] = c.UserID()
	p.mu.Unlock()

	e.mu.Lock()
	e.conns[c.ID()] = c
	e.mu.Unlock()

	p.log.Debug("connection registered",
		zap.String("user", c.UserID()),
		zap.String("conn", c.ID()),
		zap.Bool("first", !existed))
	return !existed
}

// RegisterPermanent creates (or marks) an entry that survives disconnects.
// Used for the assistant's synthetic presence.
func (p *Presence) RegisterPermanent(c Conn) {
	p.Register(c)
	p.mu.RLock()
	e := p.entries[c.UserID()]
	p.mu.RUnlock()
	e.mu.Lock()
	e.permanent = true
	e.mu.Unlock()
}

// Unregister removes the connection from its owner's entry. When the entry
// becomes empty and is not permanent the entry is deleted and the owner is
// reported offline (userID, true). Permanent entries stay online.
func (p *Presence) Unregister(connID string) (userID string, wentOffline bool) {
	p.mu.Lock()
	userID, ok := p.owners[connID]
	if !ok {
		p.mu.Unlock()
		return "", false
	}
	delete(p.owners, connID)
	e := p.entries[userID]
	p.mu.Unlock()
	if e == nil {
		return userID, false
	}

	e.mu.Lock()
	delete(e.conns, connID)
	empty := len(e.conns) == 0 && !e.permanent
	e.mu.Unlock()

	if empty {
		p.mu.Lock()
		// Re-check under the registry lock: a concurrent Register may have
		// added a connection between the two critical sections.
		e.mu.Lock()
		if len(e.conns) == 0 && !e.permanent {
			delete(p.entries, userID)
			e.mu.Unlock()
			p.mu.Unlock()
			p.log.Debug("user offline", zap.String("user", userID))
			return userID, true
		}
		e.mu.Unlock()
		p.mu.Unlock()
	}
	return userID, false
}

// Lookup returns all live connections of a user, in no particular order.
func (p *Presence) Lookup(userID string) []Conn {
	p.mu.RLock()
	e, ok := p.entries[userID]
	p.mu.RUnlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Conn, 0, len(e.conns))
	for _, c := range e.conns {
		out = append(out, c)
	}
	return out
}

// First returns one live connection for single-target signaling, or nil.
func (p *Presence) First(userID string) Conn {
	conns := p.Lookup(userID)
	if len(conns) == 0 {
		return nil
	}
	return conns[0]
}

// Online reports whether the user has at least one live connection or a
// permanent entry.
func (p *Presence) Online(userID string) bool {
	p.mu.RLock()
	e, ok := p.entries[userID]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.permanent || len(e.conns) > 0
}

// Snapshot lists every online user.
func (p *Presence) Snapshot() []PresenceInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PresenceInfo, 0, len(p.entries))
	for userID := range p.entries {
		out = append(out, PresenceInfo{UserID: userID, Status: StatusOnline})
	}
	return out
}

// Owner returns the user owning a connection id.
func (p *Presence) Owner(connID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	userID, ok := p.owners[connID]
	return userID, ok
}
