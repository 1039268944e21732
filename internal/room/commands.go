package room

// CommandType discriminates the commands a connection can send to a room,
// per the table in spec section 4.F.
type CommandType string

const (
	CmdJoin            CommandType = "join"
	CmdLeave           CommandType = "leave"
	CmdChat            CommandType = "chat"
	CmdTyping          CommandType = "typing"
	CmdCreatePoll      CommandType = "create-poll"
	CmdVote            CommandType = "vote"
	CmdClosePoll       CommandType = "close-poll"
	CmdRaiseHand       CommandType = "raise-hand"
	CmdLowerHand       CommandType = "lower-hand"
	CmdSetCodecPolicy  CommandType = "set-codec-policy"
)

// Command is a typed, normalized instruction routed to a Room's command
// loop. Sender identifies the connection that issued it; the Hub resolves
// Sender's current Role from its own Participant table rather than
// trusting any role claim embedded in the payload.
type Command struct {
	Type   CommandType
	Sender string

	// Join
	Username string
	Role     Role

	// Chat
	Body string

	// Typing
	IsTyping bool

	// CreatePoll
	Question         string
	Options          []string
	AutoCloseSeconds int

	// Vote / ClosePoll
	PollID   string
	OptionID string

	// SetCodecPolicy
	SecondaryEnabled bool
}
