package room

import (
	"context"
	"log/slog"
	"time"
)

// Run is the room's single-consumer command loop. It must be started in
// its own goroutine exactly once; every field access on h.room happens
// only from inside this function, which is what makes Room state
// transitions totally ordered from an outside observer's point of view
// (spec section 5).
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			return

		case r := <-h.reg:
			h.outboxes[r.connectionID] = r.out

		case id := <-h.unreg:
			delete(h.outboxes, id)

		case cmd := <-h.cmds:
			h.apply(cmd)

		case evt := <-h.external:
			if evt.Type == evtAutoClosePoll {
				h.applyClosePoll(evt.Reason)
			} else {
				h.broadcast(evt)
			}

		case req := <-h.policyReq:
			req <- h.room.Policy

		case req := <-h.emptyReq:
			req <- h.room.IsEmpty()

		case req := <-h.statsReq:
			activePolls := 0
			for _, p := range h.room.Polls {
				if p.Status == PollActive {
					activePolls++
				}
			}
			req <- RoomStats{
				Key:              h.room.Key,
				ParticipantCount: len(h.room.Participants),
				HandQueueLength:  len(h.room.HandQueue),
				ActivePollCount:  activePolls,
				SecondaryEnabled: h.room.Policy.SecondaryCodecEnabled,
			}
		}
	}
}

func (h *Hub) apply(cmd Command) {
	switch cmd.Type {
	case CmdJoin:
		h.applyJoin(cmd)
	case CmdLeave:
		h.applyLeave(cmd.Sender, "")
		h.notifyIfEmpty()
	case CmdChat:
		h.applyChat(cmd)
	case CmdTyping:
		h.applyTyping(cmd)
	case CmdCreatePoll:
		h.applyCreatePoll(cmd)
	case CmdVote:
		h.applyVote(cmd)
	case CmdClosePoll:
		if h.requireTeacher(cmd.Sender, string(CmdClosePoll)) {
			h.applyClosePoll(cmd.PollID)
		}
	case CmdRaiseHand:
		h.applyRaiseHand(cmd)
	case CmdLowerHand:
		h.applyLowerHand(cmd)
	case CmdSetCodecPolicy:
		h.applySetCodecPolicy(cmd)
	default:
		h.logf(slog.LevelInfo, "dropped unknown command", "type", string(cmd.Type))
	}
}

func (h *Hub) isTeacher(connectionID string) bool {
	p, ok := h.room.Participants[connectionID]
	return ok && p.Role == RoleTeacher
}

func (h *Hub) requireTeacher(connectionID, op string) bool {
	if h.isTeacher(connectionID) {
		return true
	}
	h.logf(slog.LevelInfo, "rejected teacher-only command from non-teacher", "op", op, "connection_id", connectionID)
	return false
}

func (h *Hub) applyJoin(cmd Command) {
	p := &Participant{
		ConnectionID: cmd.Sender,
		Username:     cmd.Username,
		Role:         cmd.Role,
		JoinedAt:     time.Now(),
	}
	h.room.Participants[cmd.Sender] = p

	h.deliverTo(cmd.Sender, Event{
		Type:      EvtRoomState,
		Target:    TargetSender,
		Sender:    cmd.Sender,
		RoomState: snapshot(h.room),
	})
	h.broadcast(Event{
		Type:        EvtParticipantJoined,
		Target:      TargetRoomExceptSender,
		Sender:      cmd.Sender,
		Participant: p,
	})
}

func (h *Hub) applyLeave(connectionID, reason string) {
	p, ok := h.room.Participants[connectionID]
	if !ok {
		return
	}
	delete(h.room.Participants, connectionID)

	wasRaised := p.HandRaised
	h.removeFromHandQueue(connectionID)

	h.broadcast(Event{
		Type:             EvtParticipantLeft,
		Target:           TargetRoomExceptSender,
		Sender:           connectionID,
		Participant:      p,
		ParticipantCount: len(h.room.Participants),
		Reason:           reason,
	})
	if wasRaised {
		h.broadcast(Event{
			Type:      EvtHandLowered,
			Target:    TargetRoom,
			Sender:    connectionID,
			HandQueue: append([]HandRaise(nil), h.room.HandQueue...),
		})
	}
}

func (h *Hub) applyChat(cmd Command) {
	p, ok := h.room.Participants[cmd.Sender]
	if !ok {
		return
	}
	msg := ChatMessage{
		ID:        newID(),
		Username:  p.Username,
		Role:      p.Role,
		Body:      cmd.Body,
		Timestamp: time.Now(),
	}
	h.room.appendChat(msg)
	h.metrics.IncChatMessages()

	h.broadcast(Event{Type: EvtChatMessage, Target: TargetRoom, Sender: cmd.Sender, Chat: &msg})
}

func (h *Hub) applyTyping(cmd Command) {
	p, ok := h.room.Participants[cmd.Sender]
	if !ok {
		return
	}
	h.broadcast(Event{
		Type:   EvtUserTyping,
		Target: TargetRoomExceptSender,
		Sender: cmd.Sender,
		Typing: &TypingNotice{Username: p.Username, IsTyping: cmd.IsTyping},
	})
}

func (h *Hub) applyCreatePoll(cmd Command) {
	if !h.requireTeacher(cmd.Sender, string(CmdCreatePoll)) {
		return
	}
	opts := make([]PollOption, len(cmd.Options))
	for i, text := range cmd.Options {
		opts[i] = PollOption{ID: newID(), Text: text}
	}
	poll := &Poll{
		ID:               newID(),
		Question:         cmd.Question,
		Options:          opts,
		Voters:           make(map[string]string),
		Status:           PollActive,
		CreatedAt:        time.Now(),
		AutoCloseSeconds: cmd.AutoCloseSeconds,
	}
	h.room.Polls = append(h.room.Polls, poll)
	h.metrics.IncPollsCreated()

	h.broadcast(Event{Type: EvtNewPoll, Target: TargetRoom, Sender: cmd.Sender, Poll: copyPoll(poll)})

	if poll.AutoCloseSeconds > 0 {
		pollID := poll.ID
		time.AfterFunc(time.Duration(poll.AutoCloseSeconds)*time.Second, func() {
			h.PublishSystemEvent(Event{Type: evtAutoClosePoll, Reason: pollID})
		})
	}
}

func (h *Hub) applyVote(cmd Command) {
	p, ok := h.room.Participants[cmd.Sender]
	if !ok {
		return
	}
	poll := h.room.findPoll(cmd.PollID)
	if poll == nil || poll.Status != PollActive {
		return // integrity no-op: unknown or closed poll
	}
	if _, voted := poll.Voters[cmd.Sender]; voted {
		return // integrity no-op: duplicate vote by this connection
	}
	optIdx := -1
	for i, o := range poll.Options {
		if o.ID == cmd.OptionID {
			optIdx = i
			break
		}
	}
	if optIdx == -1 {
		return // integrity no-op: unknown option
	}

	poll.Voters[cmd.Sender] = cmd.OptionID
	poll.Options[optIdx].VoteCount++
	h.metrics.IncPollVotes()
	_ = p

	h.broadcast(Event{Type: EvtPollUpdated, Target: TargetRoom, Sender: cmd.Sender, Poll: copyPoll(poll)})
}

func (h *Hub) applyClosePoll(pollID string) {
	poll := h.room.findPoll(pollID)
	if poll == nil || poll.Status == PollClosed {
		return // idempotent-safe no-op
	}
	poll.Status = PollClosed
	h.broadcast(Event{Type: EvtPollClosed, Target: TargetRoom, Poll: copyPoll(poll)})
}

func (h *Hub) applyRaiseHand(cmd Command) {
	p, ok := h.room.Participants[cmd.Sender]
	if !ok || p.HandRaised {
		return // integrity no-op: already raised
	}
	p.HandRaised = true
	h.room.HandQueue = append(h.room.HandQueue, HandRaise{
		ConnectionID: cmd.Sender,
		Username:     p.Username,
		Timestamp:    time.Now(),
	})
	h.broadcast(Event{
		Type:      EvtHandRaised,
		Target:    TargetRoom,
		Sender:    cmd.Sender,
		HandQueue: append([]HandRaise(nil), h.room.HandQueue...),
	})
}

func (h *Hub) applyLowerHand(cmd Command) {
	p, ok := h.room.Participants[cmd.Sender]
	if !ok || !p.HandRaised {
		return // integrity no-op: not raised
	}
	h.removeFromHandQueue(cmd.Sender)
	h.broadcast(Event{
		Type:      EvtHandLowered,
		Target:    TargetRoom,
		Sender:    cmd.Sender,
		HandQueue: append([]HandRaise(nil), h.room.HandQueue...),
	})
}

// notifyIfEmpty fires onEmpty when a leave has just emptied the room. It
// never calls onEmpty inline: the Registry's reap path queries this same
// Hub through its request/reply channels, which would deadlock if run
// from inside this loop's own goroutine.
func (h *Hub) notifyIfEmpty() {
	if h.room.IsEmpty() && h.onEmpty != nil {
		go h.onEmpty()
	}
}

func (h *Hub) removeFromHandQueue(connectionID string) {
	idx := h.room.handQueueIndex(connectionID)
	if idx == -1 {
		return
	}
	h.room.HandQueue = append(h.room.HandQueue[:idx], h.room.HandQueue[idx+1:]...)
	if p, ok := h.room.Participants[connectionID]; ok {
		p.HandRaised = false
	}
}

func (h *Hub) applySetCodecPolicy(cmd Command) {
	if !h.requireTeacher(cmd.Sender, string(CmdSetCodecPolicy)) {
		return
	}
	h.room.Policy.SecondaryCodecEnabled = cmd.SecondaryEnabled
	policy := h.room.Policy
	h.broadcast(Event{Type: EvtSettingsUpdated, Target: TargetRoom, Sender: cmd.Sender, Settings: &policy})
}

// broadcast fans an event out to the outboxes selected by evt.Target. A
// slow client's outbox is never allowed to block this loop: delivery to
// each connection goes through deliverTo, which drops rather than waits.
func (h *Hub) broadcast(evt Event) {
	switch evt.Target {
	case TargetSender:
		h.deliverTo(evt.Sender, evt)
	case TargetRoomExceptSender:
		for id := range h.outboxes {
			if id == evt.Sender {
				continue
			}
			h.deliverTo(id, evt)
		}
	default: // TargetRoom
		for id := range h.outboxes {
			h.deliverTo(id, evt)
		}
	}
}

func (h *Hub) deliverTo(connectionID string, evt Event) {
	out, ok := h.outboxes[connectionID]
	if !ok {
		return
	}
	select {
	case out <- evt:
	default:
		// The connection's send queue is full: detach and close its
		// outbox so the realtime layer's write pump ends the connection
		// (its read pump then submits the leave). The loop itself never
		// blocks on a slow client (spec section 5).
		h.metrics.IncConnectionsDropped()
		h.logf(slog.LevelWarn, "dropping slow connection", "connection_id", connectionID, "event", string(evt.Type))
		delete(h.outboxes, connectionID)
		close(out)
	}
}

func copyPoll(p *Poll) *Poll {
	cp := *p
	cp.Options = append([]PollOption(nil), p.Options...)
	cp.Voters = make(map[string]string, len(p.Voters))
	for k, v := range p.Voters {
		cp.Voters[k] = v
	}
	return &cp
}

func (h *Hub) logf(level slog.Level, msg string, args ...any) {
	if h.log == nil {
		return
	}
	h.log.Log(context.Background(), level, msg, args...)
}
