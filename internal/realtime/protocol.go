// Package realtime adapts the room package's Command/Event model onto a
// websocket transport: one Client per connection, a bounded send queue
// per client, and a read/write pump pair per the teacher's
// livestream.WebSocketHub design, generalized from a single global hub to
// one room.Hub per stream key.
package realtime

import (
	"encoding/json"

	"liveclass/internal/room"

	"github.com/pkg/errors"
)

// envelope is the wire-level frame exchanged in both directions:
// {"type": "...", "payload": {...}}.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound payload shapes, one per room.CommandType the client may send.
type joinPayload struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type chatPayload struct {
	Body string `json:"body"`
}

type typingPayload struct {
	IsTyping bool `json:"is_typing"`
}

type createPollPayload struct {
	Question         string   `json:"question"`
	Options          []string `json:"options"`
	AutoCloseSeconds int      `json:"auto_close_seconds"`
}

type votePayload struct {
	PollID   string `json:"poll_id"`
	OptionID string `json:"option_id"`
}

type closePollPayload struct {
	PollID string `json:"poll_id"`
}

type setCodecPolicyPayload struct {
	SecondaryEnabled bool `json:"secondary_enabled"`
}

// decodeCommand translates a wire envelope into a room.Command attributed
// to connectionID. The client's own role claim inside a join payload is
// carried through only as the initial, unauthenticated role; every
// teacher-only command afterwards is checked against the Hub's own
// Participant record, never against anything the client sends later.
func decodeCommand(connectionID string, env envelope) (room.Command, error) {
	cmd := room.Command{Sender: connectionID}

	switch env.Type {
	case string(room.CmdJoin):
		var p joinPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return cmd, errors.Wrap(err, "decode join payload")
		}
		cmd.Type = room.CmdJoin
		cmd.Username = p.Username
		cmd.Role = room.RoleStudent
		if p.Role == string(room.RoleTeacher) {
			cmd.Role = room.RoleTeacher
		}

	case string(room.CmdLeave):
		cmd.Type = room.CmdLeave

	case string(room.CmdChat):
		var p chatPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return cmd, errors.Wrap(err, "decode chat payload")
		}
		cmd.Type = room.CmdChat
		cmd.Body = p.Body

	case string(room.CmdTyping):
		var p typingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return cmd, errors.Wrap(err, "decode typing payload")
		}
		cmd.Type = room.CmdTyping
		cmd.IsTyping = p.IsTyping

	case string(room.CmdCreatePoll):
		var p createPollPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return cmd, errors.Wrap(err, "decode create-poll payload")
		}
		cmd.Type = room.CmdCreatePoll
		cmd.Question = p.Question
		cmd.Options = p.Options
		cmd.AutoCloseSeconds = p.AutoCloseSeconds

	case string(room.CmdVote):
		var p votePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return cmd, errors.Wrap(err, "decode vote payload")
		}
		cmd.Type = room.CmdVote
		cmd.PollID = p.PollID
		cmd.OptionID = p.OptionID

	case string(room.CmdClosePoll):
		var p closePollPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return cmd, errors.Wrap(err, "decode close-poll payload")
		}
		cmd.Type = room.CmdClosePoll
		cmd.PollID = p.PollID

	case string(room.CmdRaiseHand):
		cmd.Type = room.CmdRaiseHand

	case string(room.CmdLowerHand):
		cmd.Type = room.CmdLowerHand

	case string(room.CmdSetCodecPolicy):
		var p setCodecPolicyPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return cmd, errors.Wrap(err, "decode set-codec-policy payload")
		}
		cmd.Type = room.CmdSetCodecPolicy
		cmd.SecondaryEnabled = p.SecondaryEnabled

	default:
		return cmd, errors.Errorf("unknown command type %q", env.Type)
	}

	return cmd, nil
}

// encodeEvent translates a room.Event into the wire envelope sent to a
// client. Only the fields relevant to evt.Type are populated on the
// outgoing payload; the room package already trims each Event down to the
// data that event kind carries.
func encodeEvent(evt room.Event) ([]byte, error) {
	var payload any
	switch evt.Type {
	case room.EvtRoomState:
		payload = evt.RoomState
	case room.EvtParticipantJoined, room.EvtParticipantLeft:
		payload = struct {
			Participant      *room.Participant `json:"participant"`
			ParticipantCount int               `json:"participant_count,omitempty"`
			Reason           string            `json:"reason,omitempty"`
		}{evt.Participant, evt.ParticipantCount, evt.Reason}
	case room.EvtChatMessage:
		payload = evt.Chat
	case room.EvtUserTyping:
		payload = evt.Typing
	case room.EvtNewPoll, room.EvtPollUpdated, room.EvtPollClosed:
		payload = evt.Poll
	case room.EvtHandRaised, room.EvtHandLowered:
		payload = struct {
			Queue []room.HandRaise `json:"queue"`
		}{evt.HandQueue}
	case room.EvtSettingsUpdated:
		payload = evt.Settings
	case room.EvtStreamFailed:
		payload = struct {
			Reason string `json:"reason"`
		}{evt.Reason}
	default:
		payload = struct{}{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event payload")
	}
	return json.Marshal(envelope{Type: string(evt.Type), Payload: body})
}
