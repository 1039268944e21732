package room

import (
	"testing"
	"time"
)

func TestLeaveReapsIdleRoomWithoutActiveStream(t *testing.T) {
	reg := NewRegistry(50, nil, nil, nil)
	h := reg.GetOrCreate("room1")

	out := make(chan Event, 8)
	h.Register("c1", out)
	if !h.Submit(Command{Type: CmdJoin, Sender: "c1", Username: "alice", Role: RoleStudent}) {
		t.Fatalf("submit join failed")
	}
	waitFor(t, out, EvtRoomState)

	if !h.Submit(Command{Type: CmdLeave, Sender: "c1"}) {
		t.Fatalf("submit leave failed")
	}

	deadline := time.After(time.Second)
	for {
		if _, ok := reg.Get("room1"); !ok {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("room was not reaped after its last participant left")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestLeaveDoesNotReapRoomWithActiveStream(t *testing.T) {
	reg := NewRegistry(50, nil, nil, func(key string) bool { return true })
	h := reg.GetOrCreate("room1")

	out := make(chan Event, 8)
	h.Register("c1", out)
	h.Submit(Command{Type: CmdJoin, Sender: "c1", Username: "alice", Role: RoleStudent})
	waitFor(t, out, EvtRoomState)
	h.Submit(Command{Type: CmdLeave, Sender: "c1"})

	time.Sleep(100 * time.Millisecond)
	if _, ok := reg.Get("room1"); !ok {
		t.Fatalf("room with an active stream should not be reaped on leave")
	}
}
