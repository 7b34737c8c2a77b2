package core

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/teaminfosharing/tis-server/internal/store"
)

// RecipientResolver computes the authoritative recipient set for a message.
type RecipientResolver struct {
	store store.Store
	log   *zerolog.Logger
}

// NewRecipientResolver creates a resolver backed by durable storage.
func NewRecipientResolver(st store.Store, logger *zerolog.Logger) *RecipientResolver {
	return &RecipientResolver{store: st, log: logger}
}

// Resolve returns the recipient ids for a message from senderID. If the
// sender has an assigned flow and the message is not a reply, the flow's
// current member set is resolved from storage at call time. A reply target is
// always appended on top of whatever the flow contributed; in practice the
// two paths are mutually exclusive because replies skip the flow lookup.
//
// Resolution failures degrade to an empty set rather than an error: a message
// must still persist even when its recipients cannot be determined.
func (r *RecipientResolver) Resolve(ctx context.Context, senderID int64, replyTo *int64) []int64 {
	var recipients []int64

	sender, err := r.store.GetUserByID(ctx, senderID)
	if err != nil {
		r.log.Warn().Err(err).Int64("sender_id", senderID).Msg("recipient resolution: sender lookup failed")
		sender = nil
	}

	if sender != nil && sender.FlowID != nil && replyTo == nil {
		flow, err := r.store.GetFlowByID(ctx, *sender.FlowID)
		if err != nil {
			r.log.Warn().Err(err).Int64("flow_id", *sender.FlowID).Msg("recipient resolution: flow lookup failed")
		} else {
			recipients = append(recipients, flow.Recipients...)
		}
	}

	if replyTo != nil {
		recipients = append(recipients, *replyTo)
	}

	return recipients
}
