package realtime

import (
	"encoding/json"
	"testing"

	"liveclass/internal/room"
)

func TestDecodeCommandJoinDefaultsToStudent(t *testing.T) {
	env := envelope{Type: string(room.CmdJoin), Payload: marshal(t, joinPayload{Username: "alice"})}
	cmd, err := decodeCommand("c1", env)
	if err != nil {
		t.Fatalf("decodeCommand: %v", err)
	}
	if cmd.Role != room.RoleStudent {
		t.Fatalf("expected default role student, got %v", cmd.Role)
	}
	if cmd.Username != "alice" {
		t.Fatalf("expected username alice, got %q", cmd.Username)
	}
}

func TestDecodeCommandJoinTeacherRole(t *testing.T) {
	env := envelope{Type: string(room.CmdJoin), Payload: marshal(t, joinPayload{Username: "ms-lee", Role: "teacher"})}
	cmd, err := decodeCommand("c1", env)
	if err != nil {
		t.Fatalf("decodeCommand: %v", err)
	}
	if cmd.Role != room.RoleTeacher {
		t.Fatalf("expected teacher role, got %v", cmd.Role)
	}
}

func TestDecodeCommandUnknownType(t *testing.T) {
	env := envelope{Type: "not-a-real-command", Payload: json.RawMessage("{}")}
	if _, err := decodeCommand("c1", env); err == nil {
		t.Fatalf("expected an error for an unknown command type")
	}
}

func TestDecodeCommandVotePayload(t *testing.T) {
	env := envelope{Type: string(room.CmdVote), Payload: marshal(t, votePayload{PollID: "p1", OptionID: "o1"})}
	cmd, err := decodeCommand("c1", env)
	if err != nil {
		t.Fatalf("decodeCommand: %v", err)
	}
	if cmd.PollID != "p1" || cmd.OptionID != "o1" {
		t.Fatalf("unexpected vote command %+v", cmd)
	}
}

func TestEncodeEventChatMessage(t *testing.T) {
	evt := room.Event{
		Type: room.EvtChatMessage,
		Chat: &room.ChatMessage{ID: "m1", Username: "alice", Body: "hi"},
	}
	raw, err := encodeEvent(evt)
	if err != nil {
		t.Fatalf("encodeEvent: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Type != string(room.EvtChatMessage) {
		t.Fatalf("unexpected envelope type %q", env.Type)
	}
	var chat room.ChatMessage
	if err := json.Unmarshal(env.Payload, &chat); err != nil {
		t.Fatalf("unmarshal chat payload: %v", err)
	}
	if chat.Body != "hi" {
		t.Fatalf("unexpected chat body %q", chat.Body)
	}
}

func TestEncodeEventHandQueue(t *testing.T) {
	evt := room.Event{
		Type:      room.EvtHandRaised,
		HandQueue: []room.HandRaise{{ConnectionID: "c1", Username: "alice"}},
	}
	raw, err := encodeEvent(evt)
	if err != nil {
		t.Fatalf("encodeEvent: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	var body struct {
		Queue []room.HandRaise `json:"queue"`
	}
	if err := json.Unmarshal(env.Payload, &body); err != nil {
		t.Fatalf("unmarshal hand queue payload: %v", err)
	}
	if len(body.Queue) != 1 || body.Queue[0].ConnectionID != "c1" {
		t.Fatalf("unexpected hand queue payload %+v", body.Queue)
	}
}

func marshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}
