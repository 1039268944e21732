package room

import (
	"log/slog"
	"sync"
)

// ActiveStreamChecker reports whether a stream key currently has a
// publishing ActiveStream. The registry consults it before destroying a
// room: ownership of that fact belongs exclusively to the orchestrator
// (spec section 3), so the registry never keeps its own copy.
type ActiveStreamChecker func(key string) bool

// Registry lazily creates Rooms on first reference from either the Hub's
// own join path or the orchestrator's publish-start path, and destroys a
// Room once it is empty and has no active stream.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Hub

	chatRetention int
	log           *slog.Logger
	metrics       hubMetrics
	hasActive     ActiveStreamChecker
}

// NewRegistry returns an empty Registry. hasActive is consulted by ReapOne;
// it may be nil until the orchestrator is wired up, in which case ReapOne
// treats every stream key as having no active stream.
func NewRegistry(chatRetention int, log *slog.Logger, m hubMetrics, hasActive ActiveStreamChecker) *Registry {
	return &Registry{
		rooms:         make(map[string]*Hub),
		chatRetention: chatRetention,
		log:           log,
		metrics:       m,
		hasActive:     hasActive,
	}
}

// GetOrCreate returns the Hub for key, creating and starting it if this is
// the first reference.
func (r *Registry) GetOrCreate(key string) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.rooms[key]; ok {
		return h
	}
	h := NewHub(key, r.chatRetention, r.log, r.metrics, func() { r.ReapOne(key) })
	r.rooms[key] = h
	go h.Run()
	return h
}

// SetActiveStreamChecker wires the orchestrator's HasActive in after
// construction, breaking the initialization cycle between Registry and
// the orchestrator (each needs the other to exist first).
func (r *Registry) SetActiveStreamChecker(hasActive ActiveStreamChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hasActive = hasActive
}

// Get returns the Hub for key without creating one.
func (r *Registry) Get(key string) (*Hub, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.rooms[key]
	return h, ok
}

// Count returns the number of rooms currently held.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Snapshot returns a RoomStats for every room currently held, for the
// operational status endpoint. Each Hub is queried through its own loop,
// so this briefly holds the registry lock only long enough to copy out
// the Hub pointers.
func (r *Registry) Snapshot() []RoomStats {
	r.mu.Lock()
	hubs := make([]*Hub, 0, len(r.rooms))
	for _, h := range r.rooms {
		hubs = append(hubs, h)
	}
	r.mu.Unlock()

	stats := make([]RoomStats, 0, len(hubs))
	for _, h := range hubs {
		stats = append(stats, h.Stats())
	}
	return stats
}

// ReapOne destroys the room for key if it is empty and has no active
// stream. Returns true if the room was destroyed.
func (r *Registry) ReapOne(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.rooms[key]
	if !ok {
		return false
	}
	if !h.IsEmpty() {
		return false
	}
	if r.hasActive != nil && r.hasActive(key) {
		return false
	}
	h.Stop()
	delete(r.rooms, key)
	if r.log != nil {
		r.log.Info("room destroyed", "stream_key", key)
	}
	return true
}
