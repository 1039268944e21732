package room

import "log/slog"

// registration binds a connection id to the outbound channel the realtime
// layer drains for that connection.
type registration struct {
	connectionID string
	out          chan<- Event
}

// Hub runs one Room's single-consumer command loop. Every mutation to the
// Room happens inside Run, so Room state needs no mutex: the loop itself
// is the serialization point described in spec section 5.
type Hub struct {
	room *Room
	log  *slog.Logger

	cmds      chan Command
	reg       chan registration
	unreg     chan string
	external  chan Event
	policyReq chan chan CodecPolicy
	emptyReq  chan chan bool
	statsReq  chan chan RoomStats
	stop      chan struct{}
	done      chan struct{}

	outboxes map[string]chan<- Event

	metrics hubMetrics

	// onEmpty is called, from a fresh goroutine rather than inline, each
	// time a leave leaves the room with zero participants. It exists so
	// the Registry can reap an idle room without this package importing
	// Registry: calling back into the Hub's own request/reply channels
	// from inside the loop that just fired this hook would deadlock, so
	// the callback must never run synchronously here.
	onEmpty func()
}

// hubMetrics is the narrow slice of internal/platform/metrics.Metrics the
// Hub needs, kept as an interface so the package can be unit-tested
// without importing the metrics package.
type hubMetrics interface {
	IncChatMessages()
	IncPollsCreated()
	IncPollVotes()
	IncConnectionsDropped()
}

type noopMetrics struct{}

func (noopMetrics) IncChatMessages()       {}
func (noopMetrics) IncPollsCreated()       {}
func (noopMetrics) IncPollVotes()          {}
func (noopMetrics) IncConnectionsDropped() {}

// NewHub creates a Hub around a freshly constructed Room. Call Run in its
// own goroutine before using the Hub. onEmpty may be nil; otherwise it is
// invoked (asynchronously) whenever a leave empties the room.
func NewHub(key string, chatRetention int, log *slog.Logger, m hubMetrics, onEmpty func()) *Hub {
	if m == nil {
		m = noopMetrics{}
	}
	return &Hub{
		room:      newRoom(key, chatRetention),
		log:       log,
		cmds:      make(chan Command, 64),
		reg:       make(chan registration),
		unreg:     make(chan string),
		external:  make(chan Event, 16),
		policyReq: make(chan chan CodecPolicy),
		emptyReq:  make(chan chan bool),
		statsReq:  make(chan chan RoomStats),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		outboxes:  make(map[string]chan<- Event),
		metrics:   m,
		onEmpty:   onEmpty,
	}
}

// Key returns the room's stream key.
func (h *Hub) Key() string { return h.room.Key }

// Policy returns a snapshot of the room's current codec policy, read
// through the command loop so it always reflects the latest
// set-codec-policy command.
func (h *Hub) Policy() CodecPolicy {
	req := make(chan CodecPolicy, 1)
	h.policyReq <- req
	return <-req
}

// Register attaches a connection's outbound event channel. Callers must
// Register before submitting that connection's join command, so the
// room-state reply has somewhere to land.
func (h *Hub) Register(connectionID string, out chan<- Event) {
	h.reg <- registration{connectionID: connectionID, out: out}
}

// Unregister detaches a connection's outbound channel. Callers should
// first Submit a leave command; Unregister only stops further delivery.
func (h *Hub) Unregister(connectionID string) {
	h.unreg <- connectionID
}

// Submit enqueues a command for serialized processing. It never blocks
// indefinitely: the command channel is buffered, and a full buffer means
// the message is dropped rather than stalling the sender — protocol
// violations and overload are both handled the same way, by dropping
// (spec section 7).
func (h *Hub) Submit(cmd Command) bool {
	select {
	case h.cmds <- cmd:
		return true
	default:
		return false
	}
}

// PublishSystemEvent injects an event that did not originate from a client
// command — e.g. the Orchestrator's stream-failed notice — into the same
// serialized stream as every other broadcast.
func (h *Hub) PublishSystemEvent(evt Event) {
	h.external <- evt
}

// Stop halts the command loop and waits for it to exit.
func (h *Hub) Stop() {
	close(h.stop)
	<-h.done
}

// IsEmpty reports whether the room currently has zero participants,
// queried through the loop so it reflects live state.
func (h *Hub) IsEmpty() bool {
	reply := make(chan bool, 1)
	h.emptyReq <- reply
	return <-reply
}

// RoomStats is a point-in-time summary of a room, used by the status
// endpoints rather than anything that drives room behavior.
type RoomStats struct {
	Key              string
	ParticipantCount int
	HandQueueLength  int
	ActivePollCount  int
	SecondaryEnabled bool
}

// Stats returns a snapshot summary of the room, queried through the loop
// so it never races with a mutation in apply().
func (h *Hub) Stats() RoomStats {
	reply := make(chan RoomStats, 1)
	h.statsReq <- reply
	return <-reply
}
