package core

// Client is a connected socket session as seen by the core layer. Both
// channels are bounded; the hub drops events for clients that cannot keep up
// rather than letting a slow consumer stall the loop.
type Client struct {
	ConnID   string
	UserID   int64
	Username string
	Commands chan *Command
	Events   chan *Event
}

// NewClient constructs a client with initialized channels.
func NewClient(connID string, userID int64, username string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Client{
		ConnID:   connID,
		UserID:   userID,
		Username: username,
		Commands: make(chan *Command, queueSize),
		Events:   make(chan *Event, queueSize),
	}
}
