package core

import "github.com/teaminfosharing/tis-server/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandRegisterPresence adds the caller to the presence registry.
	CommandRegisterPresence CommandKind = iota
	// CommandSendMessage runs the full send fan-out.
	CommandSendMessage
	// CommandMarkRead resets the caller's unread counter.
	CommandMarkRead
	// CommandUpdateCounters applies a batch of recipient counter updates.
	CommandUpdateCounters
	// CommandDeleteMessage soft-deletes a message.
	CommandDeleteMessage
	// CommandTyping forwards a typing notification to the admin.
	CommandTyping
)

// MessageDraft is the client-supplied part of a message before the engine
// resolves recipients and persists it.
type MessageDraft struct {
	Type     store.MessageType
	Content  string
	FileURL  string
	FileName string
}

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind

	// CommandRegisterPresence
	Presence Presence

	// CommandSendMessage
	SenderID int64
	Draft    MessageDraft
	ReplyTo  *int64

	// CommandMarkRead
	UserID int64

	// CommandUpdateCounters
	Updates []CounterUpdate

	// CommandDeleteMessage
	MessageID int64

	// CommandTyping
	DisplayName string
}
