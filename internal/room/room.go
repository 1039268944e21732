// Package room implements the authoritative Room Hub: per-room state
// (participants, chat, polls, hand queue, codec policy), command handling,
// and event fan-out. All mutation to a Room happens on its own
// single-consumer command loop (see hub.go), so the types in this file are
// never touched concurrently from outside that loop.
package room

import (
	"time"

	"github.com/google/uuid"
)

// Role is a participant's authorization level. The client-supplied role
// claim is never trusted on its own; every teacher-only command is checked
// against the Participant record the Hub holds for that connection.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// CodecPolicy controls whether the secondary codec ladder is produced for
// a stream. Reads are snapshotted by the orchestrator at publish start;
// toggling mid-stream never retroactively applies.
type CodecPolicy struct {
	SecondaryCodecEnabled bool
}

// Participant is one joined connection.
type Participant struct {
	ConnectionID string
	Username     string
	Role         Role
	JoinedAt     time.Time
	HandRaised   bool
}

// ChatMessage is one append-only chat entry.
type ChatMessage struct {
	ID        string
	Username  string
	Role      Role
	Body      string
	Timestamp time.Time
}

// PollStatus is the lifecycle state of a Poll.
type PollStatus string

const (
	PollActive PollStatus = "active"
	PollClosed PollStatus = "closed"
)

// PollOption is one selectable choice in a Poll.
type PollOption struct {
	ID         string
	Text       string
	VoteCount  int
}

// Poll tracks vote integrity for one question: every voter appears in
// Voters at most once, and sum(option.VoteCount) always equals
// len(Voters).
type Poll struct {
	ID              string
	Question        string
	Options         []PollOption
	Voters          map[string]string // connectionID -> optionID
	Status          PollStatus
	CreatedAt       time.Time
	AutoCloseSeconds int // 0 means no auto-close
}

// HandRaise is one entry in a room's FIFO hand-raise queue.
type HandRaise struct {
	ConnectionID string
	Username     string
	Timestamp    time.Time
}

// Room is one stream key's collaboration state. Room is created lazily by
// the Registry and is never read or written outside the command loop that
// owns it (run.go's Hub.Run).
type Room struct {
	Key string

	Participants map[string]*Participant // connectionID -> Participant
	Chat         []ChatMessage
	Polls        []*Poll
	HandQueue    []HandRaise
	Policy       CodecPolicy

	chatRetention int
}

func newRoom(key string, chatRetention int) *Room {
	return &Room{
		Key:           key,
		Participants:  make(map[string]*Participant),
		chatRetention: chatRetention,
	}
}

// IsEmpty reports whether a room has no participants and no raised hands.
// A non-empty hand queue without participants cannot happen: leave()
// always drops the leaver from the queue first.
func (r *Room) IsEmpty() bool {
	return len(r.Participants) == 0
}

func (r *Room) appendChat(msg ChatMessage) {
	r.Chat = append(r.Chat, msg)
	if len(r.Chat) > r.chatRetention {
		r.Chat = r.Chat[len(r.Chat)-r.chatRetention:]
	}
}

func (r *Room) findPoll(id string) *Poll {
	for _, p := range r.Polls {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) handQueueIndex(connectionID string) int {
	for i, h := range r.HandQueue {
		if h.ConnectionID == connectionID {
			return i
		}
	}
	return -1
}

func newID() string {
	return uuid.NewString()
}
