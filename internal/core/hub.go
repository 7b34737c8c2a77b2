package core

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/teaminfosharing/tis-server/internal/store"
)

// Hub owns the single event loop that serializes all connection-originated
// commands. Registry lookups and fan-out runs for socket traffic happen on
// this loop; the HTTP send path calls the engine directly, which is why the
// presence registry carries its own mutex.
type Hub struct {
	engine   *FanoutEngine
	presence *PresenceRegistry
	store    store.Store
	log      *zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	commands  chan clientCommand
	queueSize int
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// Options tunes hub behaviour.
type Options struct {
	// QueueSize bounds the shared command queue and the per-client queues.
	QueueSize int
	// AllAdmins widens admin-inbox aggregation and typing forwarding from
	// the first admin found by role to every admin account.
	AllAdmins bool
}

// NewHub constructs the hub together with the fan-out engine it feeds. The
// hub itself is the engine's notifier, so both socket and HTTP sends emit
// through the same connected-client table.
func NewHub(st store.Store, files FileRemover, logger *zerolog.Logger, opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}

	h := &Hub{
		presence:  NewPresenceRegistry(),
		store:     st,
		log:       logger,
		clients:   make(map[string]*Client),
		commands:  make(chan clientCommand, opts.QueueSize),
		queueSize: opts.QueueSize,
	}

	resolver := NewRecipientResolver(st, logger)
	counters := NewUnreadCounterService(st, logger, opts.AllAdmins)
	h.engine = NewFanoutEngine(st, resolver, counters, h.presence, h, files, logger, opts.AllAdmins)
	return h
}

// Presence exposes the registry for transports and tests.
func (h *Hub) Presence() *PresenceRegistry {
	return h.presence
}

// Engine exposes the fan-out engine for transports that bypass the socket
// loop. Both paths still share one send implementation.
func (h *Hub) Engine() *FanoutEngine {
	return h.engine
}

// RegisterClient adds a connection and starts pumping its commands into the
// hub loop. The pump exits when the client's Commands channel is closed.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ConnID] = c
	h.mu.Unlock()

	go func() {
		for cmd := range c.Commands {
			h.commands <- clientCommand{client: c, cmd: cmd}
		}
	}()
}

// UnregisterClient removes a connection, drops its presence entry and
// broadcasts the refreshed online list.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ConnID)
	h.mu.Unlock()

	if p, ok := h.presence.Remove(c.ConnID); ok {
		h.log.Info().Str("display_name", p.DisplayName).Msg("user disconnected")
	}
	h.broadcastPresence()
}

// Run processes commands until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case cc := <-h.commands:
			h.dispatch(ctx, cc.client, cc.cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandRegisterPresence:
		h.registerPresence(ctx, c, cmd.Presence)

	case CommandSendMessage:
		if _, err := h.engine.Send(ctx, cmd.SenderID, cmd.Draft, cmd.ReplyTo); err != nil {
			h.log.Error().Err(err).Int64("sender_id", cmd.SenderID).Msg("send failed")
			h.sendError(c, err)
		}

	case CommandMarkRead:
		if err := h.engine.MarkRead(ctx, cmd.UserID); err != nil {
			h.log.Error().Err(err).Int64("user_id", cmd.UserID).Msg("mark read failed")
			h.sendError(c, err)
		}

	case CommandUpdateCounters:
		if err := h.engine.UpdateRecipientCounters(ctx, cmd.Updates); err != nil {
			h.log.Error().Err(err).Msg("counter batch failed")
			h.sendError(c, err)
		}

	case CommandDeleteMessage:
		if _, err := h.engine.Delete(ctx, cmd.MessageID); err != nil {
			h.log.Error().Err(err).Int64("message_id", cmd.MessageID).Msg("delete failed")
			h.sendError(c, err)
		}

	case CommandTyping:
		h.engine.Typing(cmd.DisplayName)
	}
}

// registerPresence refreshes the entry from durable storage when possible;
// the client-supplied snapshot is only a fallback. Presence is broadcast even
// when the add was an idempotent no-op, matching reconnect behaviour.
func (h *Hub) registerPresence(ctx context.Context, c *Client, p Presence) {
	p.ConnID = c.ConnID
	if u, err := h.store.GetUserByID(ctx, p.UserID); err == nil {
		p.Username = u.Username
		p.DisplayName = u.DisplayName
		p.Role = u.Role
	} else {
		h.log.Warn().Err(err).Int64("user_id", p.UserID).Msg("presence registration with stale snapshot")
	}

	if h.presence.Add(p) {
		h.log.Info().Str("display_name", p.DisplayName).Msg("new user online")
	}
	h.broadcastPresence()
}

func (h *Hub) broadcastPresence() {
	online := h.presence.List(func(p Presence) bool { return p.Role != store.RoleAdmin })
	h.Broadcast(&Event{Kind: EventPresenceList, Online: online})
}

func (h *Hub) sendError(c *Client, err error) {
	var ce *CoreError
	if !errors.As(err, &ce) {
		ce = coreError(ErrCodeStoreFailure, "operation failed")
	}
	h.trySend(c, &Event{Kind: EventError, Error: ce})
}

// Broadcast sends an event to every connected client, dropping it for clients
// whose event queue is full.
func (h *Hub) Broadcast(ev *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		h.trySend(c, ev)
	}
}

// SendToConn sends an event to a single connection, if still registered.
func (h *Hub) SendToConn(connID string, ev *Event) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()

	if ok {
		h.trySend(c, ev)
	}
}

func (h *Hub) trySend(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		h.log.Warn().Str("conn_id", c.ConnID).Int("kind", int(ev.Kind)).Msg("slow consumer, event dropped")
	}
}
