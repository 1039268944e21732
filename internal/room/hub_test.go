package room

import (
	"testing"
	"time"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub("k1", 50, nil, nil, nil)
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func connect(t *testing.T, h *Hub, id, username string, role Role) chan Event {
	t.Helper()
	out := make(chan Event, 32)
	h.Register(id, out)
	if !h.Submit(Command{Type: CmdJoin, Sender: id, Username: username, Role: role}) {
		t.Fatalf("submit join for %s failed", id)
	}
	waitFor(t, out, EvtRoomState)
	return out
}

func waitFor(t *testing.T, ch chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Type == want {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", want)
		}
	}
}

func TestJoinReceivesConsistentRoomState(t *testing.T) {
	h := newTestHub(t)
	out := connect(t, h, "c1", "alice", RoleStudent)

	h.Submit(Command{Type: CmdCreatePoll, Sender: "c1"}) // not teacher, should no-op
	select {
	case evt := <-out:
		t.Fatalf("unexpected event for non-teacher create-poll: %v", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}

	c2 := make(chan Event, 32)
	h.Register("c2", c2)
	if !h.Submit(Command{Type: CmdJoin, Sender: "c2", Username: "bob", Role: RoleTeacher}) {
		t.Fatalf("submit join for c2 failed")
	}
	state := waitFor(t, c2, EvtRoomState).RoomState
	if len(state.Participants) != 2 {
		t.Fatalf("expected 2 participants in room-state, got %d", len(state.Participants))
	}
	self := false
	for _, p := range state.Participants {
		if p.ConnectionID == "c2" {
			self = true
		}
	}
	if !self {
		t.Fatalf("expected room-state participants to include the joining connection")
	}
	if len(state.Polls) != 0 {
		t.Fatalf("expected no polls after the rejected create-poll, got %d", len(state.Polls))
	}
}

func TestPollVoteIntegrity(t *testing.T) {
	h := newTestHub(t)
	teacher := connect(t, h, "teacher", "ms-lee", RoleTeacher)
	s1 := connect(t, h, "s1", "student1", RoleStudent)
	s2 := connect(t, h, "s2", "student2", RoleStudent)
	s3 := connect(t, h, "s3", "student3", RoleStudent)

	h.Submit(Command{
		Type:     CmdCreatePoll,
		Sender:   "teacher",
		Question: "favorite color?",
		Options:  []string{"A", "B", "C"},
	})
	evt := waitFor(t, teacher, EvtNewPoll)
	poll := evt.Poll
	drain(s1)
	drain(s2)
	drain(s3)

	optA, optB := poll.Options[0].ID, poll.Options[1].ID

	h.Submit(Command{Type: CmdVote, Sender: "s1", PollID: poll.ID, OptionID: optA})
	waitFor(t, teacher, EvtPollUpdated)
	h.Submit(Command{Type: CmdVote, Sender: "s1", PollID: poll.ID, OptionID: optA}) // duplicate, must no-op
	h.Submit(Command{Type: CmdVote, Sender: "s2", PollID: poll.ID, OptionID: optB})
	waitFor(t, teacher, EvtPollUpdated)
	h.Submit(Command{Type: CmdVote, Sender: "s3", PollID: poll.ID, OptionID: optB})
	final := waitFor(t, teacher, EvtPollUpdated)

	totalVotes := 0
	for _, o := range final.Poll.Options {
		totalVotes += o.VoteCount
	}
	if totalVotes != 3 {
		t.Fatalf("expected 3 total votes after duplicate rejection, got %d", totalVotes)
	}
	if len(final.Poll.Voters) != 3 {
		t.Fatalf("expected 3 distinct voters, got %d", len(final.Poll.Voters))
	}

	h.Submit(Command{Type: CmdClosePoll, Sender: "teacher", PollID: poll.ID})
	closed := waitFor(t, teacher, EvtPollClosed)
	if closed.Poll.Status != PollClosed {
		t.Fatalf("expected poll closed")
	}

	h.Submit(Command{Type: CmdClosePoll, Sender: "teacher", PollID: poll.ID}) // idempotent
	select {
	case evt := <-teacher:
		t.Fatalf("unexpected second poll-closed event: %v", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandRaiseOrdering(t *testing.T) {
	h := newTestHub(t)
	teacher := connect(t, h, "teacher", "ms-lee", RoleTeacher)
	connect(t, h, "s1", "s1", RoleStudent)
	connect(t, h, "s2", "s2", RoleStudent)
	connect(t, h, "s3", "s3", RoleStudent)

	h.Submit(Command{Type: CmdRaiseHand, Sender: "s1"})
	q := waitFor(t, teacher, EvtHandRaised).HandQueue
	assertQueue(t, q, "s1")

	h.Submit(Command{Type: CmdRaiseHand, Sender: "s2"})
	q = waitFor(t, teacher, EvtHandRaised).HandQueue
	assertQueue(t, q, "s1", "s2")

	h.Submit(Command{Type: CmdRaiseHand, Sender: "s3"})
	q = waitFor(t, teacher, EvtHandRaised).HandQueue
	assertQueue(t, q, "s1", "s2", "s3")

	h.Submit(Command{Type: CmdLowerHand, Sender: "s1"})
	q = waitFor(t, teacher, EvtHandLowered).HandQueue
	assertQueue(t, q, "s2", "s3")

	h.Submit(Command{Type: CmdRaiseHand, Sender: "s1"})
	q = waitFor(t, teacher, EvtHandRaised).HandQueue
	assertQueue(t, q, "s2", "s3", "s1")
}

func TestRoleAuthorizationNoOp(t *testing.T) {
	h := newTestHub(t)
	student := connect(t, h, "s1", "s1", RoleStudent)

	h.Submit(Command{Type: CmdSetCodecPolicy, Sender: "s1", SecondaryEnabled: true})
	select {
	case evt := <-student:
		t.Fatalf("non-teacher set-codec-policy should be a no-op, got %v", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}
	if h.Policy().SecondaryCodecEnabled {
		t.Fatalf("policy should be unchanged after unauthorized command")
	}
}

func TestLeaveLowersHandAndDropsParticipant(t *testing.T) {
	h := newTestHub(t)
	teacher := connect(t, h, "teacher", "ms-lee", RoleTeacher)
	connect(t, h, "s1", "s1", RoleStudent)

	h.Submit(Command{Type: CmdRaiseHand, Sender: "s1"})
	waitFor(t, teacher, EvtHandRaised)

	h.Submit(Command{Type: CmdLeave, Sender: "s1"})
	waitFor(t, teacher, EvtParticipantLeft)
	q := waitFor(t, teacher, EvtHandLowered).HandQueue
	if len(q) != 0 {
		t.Fatalf("expected empty hand queue after leaving participant, got %v", q)
	}
}

func drain(ch chan Event) {
	select {
	case <-ch:
	default:
	}
}

func assertQueue(t *testing.T, q []HandRaise, wantIDs ...string) {
	t.Helper()
	if len(q) != len(wantIDs) {
		t.Fatalf("queue length = %d, want %d (%v)", len(q), len(wantIDs), q)
	}
	for i, id := range wantIDs {
		if q[i].ConnectionID != id {
			t.Fatalf("queue[%d] = %s, want %s", i, q[i].ConnectionID, id)
		}
	}
}
