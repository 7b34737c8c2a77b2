package core

import "github.com/teaminfosharing/tis-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessageDelivered carries a fully-populated message to every
	// connected party, recipient or not. The shared timeline is a broadcast.
	EventMessageDelivered EventKind = iota
	// EventMessageDeleted notifies all clients that a message was deleted.
	EventMessageDeleted
	// EventRecipientCounter is targeted at a single online recipient whose
	// unread counter changed.
	EventRecipientCounter
	// EventPresenceList carries the online non-admin users; broadcast on
	// every connect and disconnect.
	EventPresenceList
	// EventTyping is targeted at the admin connection only.
	EventTyping
	// EventError notifies a single client about a failed operation.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind      EventKind
	Message   *store.PopulatedMessage // EventMessageDelivered
	MessageID int64                   // EventMessageDeleted
	Counter   *CounterUpdate          // EventRecipientCounter
	Online    []Presence              // EventPresenceList
	TypedBy   string                  // EventTyping
	Error     *CoreError              // EventError
}
