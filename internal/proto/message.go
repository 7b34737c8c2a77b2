package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeRegisterPresence = "register_presence"
	InboundTypeSendMessage      = "send_message"
	InboundTypeMarkRead         = "mark_read"
	InboundTypeUpdateCounters   = "update_recipient_counters"
	InboundTypeDeleteMessage    = "delete_message"
	InboundTypeTyping           = "typing"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventMessageDelivered = "message_delivered"
	EventMessageDeleted   = "message_deleted"
	EventRecipientCounter = "recipient_counter_updated"
	EventPresenceList     = "presence_list"
	EventTyping           = "typing"
)

// RegisterPresenceData announces the caller as online. Identity comes from
// the connection's token; the display fields are a fallback snapshot.
type RegisterPresenceData struct {
	DisplayName string `json:"display_name,omitempty"`
	Role        int    `json:"role,omitempty"`
}

// SendMessageData carries a message draft. ReplyTo, when set, addresses the
// message at that single user instead of the sender's flow.
type SendMessageData struct {
	Message MessageDraft `json:"message"`
	ReplyTo *int64       `json:"reply_to,omitempty"`
}

// MessageDraft is the client-supplied message body.
type MessageDraft struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	FileName string `json:"file_name,omitempty"`
}

// MarkReadData clears a user's unread counter.
type MarkReadData struct {
	UserID int64 `json:"user_id"`
}

// CounterUpdate names one recipient counter change.
type CounterUpdate struct {
	Recipient int64  `json:"recipient"`
	Update    string `json:"update"`
}

// UpdateCountersData is a batch of recipient counter changes.
type UpdateCountersData struct {
	Updates []CounterUpdate `json:"updates"`
}

// DeleteMessageData soft-deletes a message by id.
type DeleteMessageData struct {
	ID int64 `json:"id"`
}

// TypingData notifies the admin that someone is typing.
type TypingData struct {
	DisplayName string `json:"display_name"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// UserPayload is a user profile as exposed on the wire.
type UserPayload struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        int    `json:"role"`
	FlowID      *int64 `json:"flow_id,omitempty"`
	UnreadCount int    `json:"unread_count"`
}

// MessagePayload is a populated message as exposed on the wire.
type MessagePayload struct {
	ID         int64         `json:"id"`
	From       *UserPayload  `json:"from,omitempty"`
	Recipients []UserPayload `json:"recipients"`
	Type       string        `json:"type"`
	Content    string        `json:"content"`
	FileURL    string        `json:"file_url,omitempty"`
	FileName   string        `json:"file_name,omitempty"`
	TS         int64         `json:"ts"`
}

// PresenceListData carries the currently-online non-admin users.
type PresenceListData struct {
	Users []PresenceEntry `json:"users"`
}

// PresenceEntry is one online user.
type PresenceEntry struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        int    `json:"role"`
}

// DeletedData identifies a deleted message.
type DeletedData struct {
	ID int64 `json:"id"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
