package core

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/teaminfosharing/tis-server/internal/store"
)

// CounterOp is a direction for a recipient counter update.
type CounterOp string

const (
	CounterIncrement CounterOp = "increment"
	CounterDecrement CounterOp = "decrement"
)

// CounterUpdate names a recipient and the direction to apply.
type CounterUpdate struct {
	Recipient int64
	Update    CounterOp
}

// UnreadCounterService is the only component that touches unread counters.
// It maps the increment/decrement contract onto +1/-1 store deltas; an
// unrecognized operator is rejected here, before it can reach storage.
//
// Counters are not clamped at zero: a decrement on a zero counter goes
// negative. This mirrors the behaviour the rest of the system expects.
type UnreadCounterService struct {
	users     store.UserStore
	log       *zerolog.Logger
	allAdmins bool
}

// NewUnreadCounterService creates the counter service. With allAdmins the
// team-inbox aggregate is applied to every admin account instead of only the
// first one found by role.
func NewUnreadCounterService(users store.UserStore, logger *zerolog.Logger, allAdmins bool) *UnreadCounterService {
	return &UnreadCounterService{users: users, log: logger, allAdmins: allAdmins}
}

// IncrementMany adds one to each recipient's counter. Failures are logged per
// recipient and do not stop the remaining updates; it returns the ids that
// failed so callers can report partial fan-out.
func (s *UnreadCounterService) IncrementMany(ctx context.Context, userIDs []int64) []int64 {
	var failed []int64
	for _, id := range userIDs {
		if err := s.users.IncrementUnread(ctx, id, 1); err != nil {
			s.log.Warn().Err(err).Int64("user_id", id).Msg("unread increment failed")
			failed = append(failed, id)
		}
	}
	return failed
}

// Apply applies a single named update.
func (s *UnreadCounterService) Apply(ctx context.Context, u CounterUpdate) error {
	delta, err := u.Update.delta()
	if err != nil {
		return err
	}
	if err := s.users.IncrementUnread(ctx, u.Recipient, delta); err != nil {
		return fmt.Errorf("apply counter update: %w", err)
	}
	return nil
}

// Validate checks that every update carries a supported operator.
func (u CounterUpdate) Validate() error {
	_, err := u.Update.delta()
	return err
}

func (op CounterOp) delta() (int, error) {
	switch op {
	case CounterIncrement:
		return 1, nil
	case CounterDecrement:
		return -1, nil
	}
	return 0, coreError(ErrCodeUnsupportedOperator, fmt.Sprintf("unsupported counter operator %q", op))
}

// Reset sets a user's counter back to zero. Idempotent.
func (s *UnreadCounterService) Reset(ctx context.Context, userID int64) error {
	if err := s.users.ResetUnread(ctx, userID); err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	return nil
}

// IncrementAdminInbox adds one to the team-inbox aggregate counter.
func (s *UnreadCounterService) IncrementAdminInbox(ctx context.Context) error {
	if err := s.users.IncrementUnreadByRole(ctx, store.RoleAdmin, 1, !s.allAdmins); err != nil {
		return fmt.Errorf("increment admin inbox: %w", err)
	}
	return nil
}
