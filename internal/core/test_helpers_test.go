package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/teaminfosharing/tis-server/internal/store"
	"github.com/teaminfosharing/tis-server/internal/store/sqlite"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedUser(t *testing.T, st store.Store, username string, role store.Role, flowID *int64) *store.User {
	t.Helper()

	u, err := st.CreateUser(context.Background(), &store.User{
		Username:     username,
		PasswordHash: "hash",
		DisplayName:  username,
		Role:         role,
		FlowID:       flowID,
	})
	if err != nil {
		t.Fatalf("failed to seed user %s: %v", username, err)
	}
	return u
}

func seedFlow(t *testing.T, st store.Store, name string, ownerID int64, recipients []int64) *store.Flow {
	t.Helper()

	f, err := st.CreateFlow(context.Background(), &store.Flow{
		Name:       name,
		OwnerID:    ownerID,
		Recipients: recipients,
	})
	if err != nil {
		t.Fatalf("failed to seed flow %s: %v", name, err)
	}
	return f
}

func assignFlow(t *testing.T, st store.Store, user *store.User, flowID int64) {
	t.Helper()

	user.FlowID = &flowID
	if err := st.UpdateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to assign flow: %v", err)
	}
}

func unreadCount(t *testing.T, st store.Store, userID int64) int {
	t.Helper()

	u, err := st.GetUserByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to load user %d: %v", userID, err)
	}
	return u.UnreadCount
}

func testLogger() *zerolog.Logger {
	logger := zerolog.New(nil)
	return &logger
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// recordingNotifier captures emitted events for engine-level tests.
type recordingNotifier struct {
	broadcasts []*Event
	targeted   map[string][]*Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{targeted: make(map[string][]*Event)}
}

func (n *recordingNotifier) Broadcast(ev *Event) {
	n.broadcasts = append(n.broadcasts, ev)
}

func (n *recordingNotifier) SendToConn(connID string, ev *Event) {
	n.targeted[connID] = append(n.targeted[connID], ev)
}

// recordingRemover captures file removal calls.
type recordingRemover struct {
	removed []string
	err     error
}

func (r *recordingRemover) Remove(fileURL string) error {
	r.removed = append(r.removed, fileURL)
	return r.err
}

func newTestEngine(t *testing.T, st store.Store, notifier Notifier, files FileRemover) (*FanoutEngine, *PresenceRegistry) {
	t.Helper()

	logger := testLogger()
	presence := NewPresenceRegistry()
	resolver := NewRecipientResolver(st, logger)
	counters := NewUnreadCounterService(st, logger, false)
	engine := NewFanoutEngine(st, resolver, counters, presence, notifier, files, logger, false)
	return engine, presence
}
