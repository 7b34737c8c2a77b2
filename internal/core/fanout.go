package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/teaminfosharing/tis-server/internal/store"
)

// Notifier delivers events to connected clients. The hub implements it.
type Notifier interface {
	// Broadcast sends an event to every connected client.
	Broadcast(ev *Event)
	// SendToConn sends an event to the client bound to a connection id.
	SendToConn(connID string, ev *Event)
}

// FileRemover physically deletes a stored file by its public URL.
type FileRemover interface {
	Remove(fileURL string) error
}

// FanoutEngine orchestrates the send path: it resolves recipients, persists
// the message, updates unread counters and emits delivery events. Every
// transport converges on this one implementation.
//
// The engine never retries store calls; a failed store call is terminal for
// the operation. Once the message is durable, per-recipient counter and
// presence failures are logged and do not roll it back.
type FanoutEngine struct {
	store    store.Store
	resolver *RecipientResolver
	counters *UnreadCounterService
	presence *PresenceRegistry
	notifier Notifier
	files    FileRemover
	log      *zerolog.Logger

	// allAdmins widens typing forwarding from the first admin found by
	// role to every online admin.
	allAdmins bool
}

// NewFanoutEngine wires the engine's collaborators.
func NewFanoutEngine(
	st store.Store,
	resolver *RecipientResolver,
	counters *UnreadCounterService,
	presence *PresenceRegistry,
	notifier Notifier,
	files FileRemover,
	logger *zerolog.Logger,
	allAdmins bool,
) *FanoutEngine {
	return &FanoutEngine{
		store:     st,
		resolver:  resolver,
		counters:  counters,
		presence:  presence,
		notifier:  notifier,
		files:     files,
		log:       logger,
		allAdmins: allAdmins,
	}
}

// Send persists a message from senderID and fans it out. The stored message
// must be retrievable by id before any delivery event is observable, so all
// persistence (message, admin inbox, recipient counters) happens before the
// broadcast. Returns the stored message with sender and recipients populated.
func (e *FanoutEngine) Send(ctx context.Context, senderID int64, draft MessageDraft, replyTo *int64) (*store.PopulatedMessage, error) {
	if !draft.Type.Valid() {
		return nil, coreError(ErrCodeBadRequest, fmt.Sprintf("unrecognized message type %q", draft.Type))
	}

	recipients := e.resolver.Resolve(ctx, senderID, replyTo)

	created, err := e.store.CreateMessage(ctx, &store.Message{
		FromID:     senderID,
		Type:       draft.Type,
		Content:    draft.Content,
		FileURL:    draft.FileURL,
		FileName:   draft.FileName,
		Recipients: recipients,
	})
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	populated, err := e.store.GetMessage(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("load stored message: %w", err)
	}

	// Messages from members feed the shared team inbox. A failure here
	// degrades the aggregate counter, not the send.
	if populated.From == nil || populated.From.Role != store.RoleAdmin {
		if err := e.counters.IncrementAdminInbox(ctx); err != nil {
			e.log.Warn().Err(err).Int64("message_id", created.ID).Msg("admin inbox increment failed")
		}
	}

	// Every recipient's counter moves, online or not.
	if failed := e.counters.IncrementMany(ctx, recipients); len(failed) > 0 {
		e.log.Warn().Int64("message_id", created.ID).Ints64("failed_recipients", failed).Msg("partial counter fan-out")
	}

	e.notifier.Broadcast(&Event{Kind: EventMessageDelivered, Message: populated})

	for _, id := range recipients {
		if p, ok := e.presence.FindByUser(id); ok {
			e.notifier.SendToConn(p.ConnID, &Event{
				Kind:    EventRecipientCounter,
				Counter: &CounterUpdate{Recipient: id, Update: CounterIncrement},
			})
		}
	}

	e.log.Debug().
		Int64("message_id", created.ID).
		Int64("sender_id", senderID).
		Int("recipients", len(recipients)).
		Msg("message fanned out")

	return populated, nil
}

// Delete soft-deletes a message: type becomes deleted, content becomes the
// placeholder, recipients are cleared and an attached file is physically
// removed. Unread counters already applied are never adjusted. Idempotent on
// an already-deleted message.
func (e *FanoutEngine) Delete(ctx context.Context, messageID int64) (*store.Message, error) {
	prior, err := e.store.MarkMessageDeleted(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, coreError(ErrCodeNotFound, fmt.Sprintf("message %d not found", messageID))
		}
		return nil, fmt.Errorf("mark message deleted: %w", err)
	}

	if prior.FileURL != "" && e.files != nil {
		if err := e.files.Remove(prior.FileURL); err != nil {
			e.log.Warn().Err(err).Str("file_url", prior.FileURL).Msg("attached file removal failed")
		}
	}

	e.notifier.Broadcast(&Event{Kind: EventMessageDeleted, MessageID: messageID})
	return prior, nil
}

// MarkRead resets a user's unread counter to zero. Idempotent.
func (e *FanoutEngine) MarkRead(ctx context.Context, userID int64) error {
	return e.counters.Reset(ctx, userID)
}

// UpdateRecipientCounters applies a batch of increment/decrement updates and
// notifies each currently-online recipient with its own update record. The
// whole batch is validated up front; an unsupported operator rejects the
// batch before anything reaches storage.
func (e *FanoutEngine) UpdateRecipientCounters(ctx context.Context, updates []CounterUpdate) error {
	for _, u := range updates {
		if err := u.Validate(); err != nil {
			return err
		}
	}

	for _, u := range updates {
		if err := e.counters.Apply(ctx, u); err != nil {
			e.log.Warn().Err(err).Int64("recipient", u.Recipient).Msg("counter update failed")
		}
	}

	for _, u := range updates {
		if p, ok := e.presence.FindByUser(u.Recipient); ok {
			upd := u
			e.notifier.SendToConn(p.ConnID, &Event{Kind: EventRecipientCounter, Counter: &upd})
		}
	}
	return nil
}

// Typing forwards a typing notification to the admin connection. Nothing is
// sent when no admin is online or when the typer is the admin.
func (e *FanoutEngine) Typing(displayName string) {
	admins := e.presence.FindByRole(store.RoleAdmin)
	if len(admins) == 0 {
		return
	}
	if !e.allAdmins {
		admins = admins[:1]
	}
	for _, admin := range admins {
		if admin.DisplayName == displayName {
			continue
		}
		e.notifier.SendToConn(admin.ConnID, &Event{Kind: EventTyping, TypedBy: displayName})
	}
}
