package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Role distinguishes the admin inbox owner from regular members.
type Role int

const (
	// RoleAdmin marks the team-inbox owner.
	RoleAdmin Role = 1
	// RoleMember marks a regular team member.
	RoleMember Role = 2
)

// User represents a team member in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	DisplayName  string
	Role         Role
	FlowID       *int64 // default distribution list, nil if none assigned
	UnreadCount  int
	CreatedAt    time.Time
}

// Flow is an admin-owned recipient-group template. A message sent by a user
// with an assigned flow fans out to the flow's recipients.
type Flow struct {
	ID         int64
	Name       string
	OwnerID    int64
	Recipients []int64 // ordered member user ids
	CreatedAt  time.Time
}

// MessageType tags the message payload kind.
type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeImage   MessageType = "image"
	MessageTypeFile    MessageType = "file"
	MessageTypeDeleted MessageType = "deleted"
)

// Valid reports whether t is a type a client may submit.
// deleted is reserved for the delete operation and is not accepted on send.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// DeletedPlaceholder replaces the content of a deleted message.
const DeletedPlaceholder = "This message was deleted"

// Message is a persisted chat message. Recipients is the set resolved at
// creation time; later flow edits never change it. The only mutation a
// message undergoes after creation is the soft delete.
type Message struct {
	ID         int64
	FromID     int64
	Type       MessageType
	Content    string
	FileURL    string
	FileName   string
	Recipients []int64
	CreatedAt  time.Time
}

// PopulatedMessage is a message with its sender and recipient references
// resolved into full user records.
type PopulatedMessage struct {
	Message
	From           *User
	RecipientUsers []*User
}

// UserStore handles user persistence and unread counters.
type UserStore interface {
	// CreateUser creates a new user.
	CreateUser(ctx context.Context, u *User) (*User, error)

	// GetUserByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ListUsers lists all users ordered by id.
	ListUsers(ctx context.Context) ([]*User, error)

	// UpdateUser updates display name, role and flow assignment.
	UpdateUser(ctx context.Context, u *User) error

	// DeleteUser removes a user record.
	DeleteUser(ctx context.Context, id int64) error

	// IncrementUnread adds delta to a user's unread counter.
	// The only deltas the core passes are +1 and -1.
	IncrementUnread(ctx context.Context, userID int64, delta int) error

	// IncrementUnreadByRole adds delta to the unread counter of users with
	// the given role. firstOnly limits the update to the lowest user id,
	// matching the single-admin inbox behaviour.
	IncrementUnreadByRole(ctx context.Context, role Role, delta int, firstOnly bool) error

	// ResetUnread sets a user's unread counter to zero.
	ResetUnread(ctx context.Context, userID int64) error
}

// FlowStore handles flow persistence.
type FlowStore interface {
	// CreateFlow creates a flow with its ordered recipient set.
	CreateFlow(ctx context.Context, f *Flow) (*Flow, error)

	// GetFlowByID retrieves a flow and its recipients.
	GetFlowByID(ctx context.Context, id int64) (*Flow, error)

	// ListFlows lists all flows.
	ListFlows(ctx context.Context) ([]*Flow, error)

	// UpdateFlow replaces a flow's name and recipient set.
	UpdateFlow(ctx context.Context, f *Flow) error

	// DeleteFlow removes a flow. Messages already sent through the flow keep
	// their recipient snapshots; users referencing it are detached.
	DeleteFlow(ctx context.Context, id int64) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a message together with its recipient snapshot
	// and returns it with the assigned id.
	CreateMessage(ctx context.Context, m *Message) (*Message, error)

	// GetMessage retrieves a message with sender and recipients populated.
	GetMessage(ctx context.Context, id int64) (*PopulatedMessage, error)

	// MarkMessageDeleted overwrites the message to the deleted shape: type
	// deleted, placeholder content, empty recipients, no file. It returns
	// the record as it was before the overwrite so the caller can remove an
	// attached file. Idempotent on an already-deleted message.
	MarkMessageDeleted(ctx context.Context, id int64) (*Message, error)

	// ListMessages returns up to limit most recent messages, oldest first.
	ListMessages(ctx context.Context, limit int) ([]*PopulatedMessage, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	FlowStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
