package core

import (
	"context"
	"testing"

	"github.com/teaminfosharing/tis-server/internal/store"
)

func TestSendThroughFlowIncrementsRecipients(t *testing.T) {
	st := newTestStore(t)
	notifier := newRecordingNotifier()
	engine, presence := newTestEngine(t, st, notifier, nil)

	admin := seedUser(t, st, "admin", store.RoleAdmin, nil)
	u1 := seedUser(t, st, "u1", store.RoleMember, nil)
	u2 := seedUser(t, st, "u2", store.RoleMember, nil)
	flow := seedFlow(t, st, "team", admin.ID, []int64{u1.ID, u2.ID})
	assignFlow(t, st, u1, flow.ID)

	presence.Add(Presence{UserID: u2.ID, Role: store.RoleMember, ConnID: "conn-u2"})

	msg, err := engine.Send(context.Background(), u1.ID, MessageDraft{Type: store.MessageTypeText, Content: "hi"}, nil)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if len(msg.Recipients) != 2 || msg.Recipients[0] != u1.ID || msg.Recipients[1] != u2.ID {
		t.Fatalf("expected recipient snapshot [%d %d], got %v", u1.ID, u2.ID, msg.Recipients)
	}
	if msg.From == nil || msg.From.ID != u1.ID {
		t.Fatalf("expected populated sender, got %+v", msg.From)
	}
	if len(msg.RecipientUsers) != 2 {
		t.Fatalf("expected populated recipients, got %d", len(msg.RecipientUsers))
	}

	// Every resolved recipient's counter moves, online or not.
	if got := unreadCount(t, st, u1.ID); got != 1 {
		t.Fatalf("u1 unread = %d, want 1", got)
	}
	if got := unreadCount(t, st, u2.ID); got != 1 {
		t.Fatalf("u2 unread = %d, want 1", got)
	}
	// Member send feeds the admin inbox aggregate.
	if got := unreadCount(t, st, admin.ID); got != 1 {
		t.Fatalf("admin unread = %d, want 1", got)
	}

	// One unfiltered broadcast carrying the populated message.
	if len(notifier.broadcasts) != 1 || notifier.broadcasts[0].Kind != EventMessageDelivered {
		t.Fatalf("expected one message_delivered broadcast, got %+v", notifier.broadcasts)
	}
	// Targeted counter event only for the online recipient.
	targeted := notifier.targeted["conn-u2"]
	if len(targeted) != 1 || targeted[0].Kind != EventRecipientCounter {
		t.Fatalf("expected targeted counter event for u2, got %+v", targeted)
	}
	if targeted[0].Counter.Recipient != u2.ID || targeted[0].Counter.Update != CounterIncrement {
		t.Fatalf("unexpected counter payload: %+v", targeted[0].Counter)
	}
	if len(notifier.targeted) != 1 {
		t.Fatalf("offline recipients must not get targeted events: %+v", notifier.targeted)
	}
}

func TestSendReplyTargetsSingleUser(t *testing.T) {
	st := newTestStore(t)
	notifier := newRecordingNotifier()
	engine, _ := newTestEngine(t, st, notifier, nil)

	admin := seedUser(t, st, "admin", store.RoleAdmin, nil)
	u1 := seedUser(t, st, "u1", store.RoleMember, nil)
	u3 := seedUser(t, st, "u3", store.RoleMember, nil)

	target := u1.ID
	msg, err := engine.Send(context.Background(), u3.ID, MessageDraft{Type: store.MessageTypeText, Content: "re"}, &target)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if len(msg.Recipients) != 1 || msg.Recipients[0] != u1.ID {
		t.Fatalf("expected recipients [%d], got %v", u1.ID, msg.Recipients)
	}
	if got := unreadCount(t, st, u1.ID); got != 1 {
		t.Fatalf("u1 unread = %d, want 1", got)
	}
	if got := unreadCount(t, st, admin.ID); got != 1 {
		t.Fatalf("admin aggregate = %d, want 1", got)
	}
}

func TestSendFromAdminSkipsAdminAggregate(t *testing.T) {
	st := newTestStore(t)
	notifier := newRecordingNotifier()
	engine, _ := newTestEngine(t, st, notifier, nil)

	admin := seedUser(t, st, "admin", store.RoleAdmin, nil)
	u1 := seedUser(t, st, "u1", store.RoleMember, nil)

	target := u1.ID
	if _, err := engine.Send(context.Background(), admin.ID, MessageDraft{Type: store.MessageTypeText, Content: "hello"}, &target); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if got := unreadCount(t, st, admin.ID); got != 0 {
		t.Fatalf("admin aggregate must not move on admin sends, got %d", got)
	}
	if got := unreadCount(t, st, u1.ID); got != 1 {
		t.Fatalf("u1 unread = %d, want 1", got)
	}
}

func TestSendWithUnknownSenderStillPersists(t *testing.T) {
	st := newTestStore(t)
	notifier := newRecordingNotifier()
	engine, _ := newTestEngine(t, st, notifier, nil)

	msg, err := engine.Send(context.Background(), 999, MessageDraft{Type: store.MessageTypeText, Content: "ghost"}, nil)
	if err != nil {
		t.Fatalf("send must not fail on recipient-resolution failure: %v", err)
	}
	if len(msg.Recipients) != 0 {
		t.Fatalf("expected no recipients, got %v", msg.Recipients)
	}
	if len(notifier.broadcasts) != 1 {
		t.Fatalf("message must still be broadcast, got %d events", len(notifier.broadcasts))
	}
}

func TestSendRejectsUnknownType(t *testing.T) {
	st := newTestStore(t)
	engine, _ := newTestEngine(t, st, newRecordingNotifier(), nil)
	u1 := seedUser(t, st, "u1", store.RoleMember, nil)

	_, err := engine.Send(context.Background(), u1.ID, MessageDraft{Type: "deleted", Content: "x"}, nil)
	ce, ok := err.(*CoreError)
	if !ok || ce.Code != ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %v", err)
	}
}

func TestUnreadCountersAccumulateAndReset(t *testing.T) {
	st := newTestStore(t)
	engine, _ := newTestEngine(t, st, newRecordingNotifier(), nil)

	seedUser(t, st, "admin", store.RoleAdmin, nil)
	u1 := seedUser(t, st, "u1", store.RoleMember, nil)
	u3 := seedUser(t, st, "u3", store.RoleMember, nil)

	target := u1.ID
	const n = 5
	for i := 0; i < n; i++ {
		if _, err := engine.Send(context.Background(), u3.ID, MessageDraft{Type: store.MessageTypeText, Content: "m"}, &target); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}

	if got := unreadCount(t, st, u1.ID); got != n {
		t.Fatalf("u1 unread = %d, want %d", got, n)
	}

	if err := engine.MarkRead(context.Background(), u1.ID); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if got := unreadCount(t, st, u1.ID); got != 0 {
		t.Fatalf("u1 unread after mark read = %d, want 0", got)
	}

	// Idempotent.
	if err := engine.MarkRead(context.Background(), u1.ID); err != nil {
		t.Fatalf("second mark read failed: %v", err)
	}
	if got := unreadCount(t, st, u1.ID); got != 0 {
		t.Fatalf("u1 unread after repeat mark read = %d, want 0", got)
	}
}

func TestDeleteMessageClearsAndRemovesFile(t *testing.T) {
	st := newTestStore(t)
	notifier := newRecordingNotifier()
	remover := &recordingRemover{}
	engine, _ := newTestEngine(t, st, notifier, remover)

	seedUser(t, st, "admin", store.RoleAdmin, nil)
	u1 := seedUser(t, st, "u1", store.RoleMember, nil)
	u3 := seedUser(t, st, "u3", store.RoleMember, nil)

	target := u1.ID
	draft := MessageDraft{
		Type:     store.MessageTypeImage,
		Content:  "caption",
		FileURL:  "http://localhost:8080/assets/abc_pic.png",
		FileName: "pic.png",
	}
	msg, err := engine.Send(context.Background(), u3.ID, draft, &target)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	unreadBefore := unreadCount(t, st, u1.ID)

	if _, err := engine.Delete(context.Background(), msg.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	got, err := st.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("load deleted message: %v", err)
	}
	if got.Type != store.MessageTypeDeleted {
		t.Fatalf("type = %s, want deleted", got.Type)
	}
	if got.Content != store.DeletedPlaceholder {
		t.Fatalf("content = %q, want placeholder", got.Content)
	}
	if len(got.Recipients) != 0 || got.FileURL != "" {
		t.Fatalf("recipients/file must be cleared: %+v", got.Message)
	}

	if len(remover.removed) != 1 || remover.removed[0] != draft.FileURL {
		t.Fatalf("expected file removal of %q, got %v", draft.FileURL, remover.removed)
	}

	// Delete never adjusts counters already applied.
	if got := unreadCount(t, st, u1.ID); got != unreadBefore {
		t.Fatalf("unread changed on delete: %d -> %d", unreadBefore, got)
	}

	// Broadcast carries only the id.
	last := notifier.broadcasts[len(notifier.broadcasts)-1]
	if last.Kind != EventMessageDeleted || last.MessageID != msg.ID {
		t.Fatalf("expected message_deleted broadcast, got %+v", last)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	remover := &recordingRemover{}
	engine, _ := newTestEngine(t, st, newRecordingNotifier(), remover)

	seedUser(t, st, "admin", store.RoleAdmin, nil)
	u3 := seedUser(t, st, "u3", store.RoleMember, nil)

	msg, err := engine.Send(context.Background(), u3.ID, MessageDraft{Type: store.MessageTypeText, Content: "bye"}, nil)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := engine.Delete(context.Background(), msg.ID); err != nil {
			t.Fatalf("delete %d failed: %v", i, err)
		}
	}

	got, err := st.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("load message: %v", err)
	}
	if got.Type != store.MessageTypeDeleted || got.Content != store.DeletedPlaceholder || len(got.Recipients) != 0 {
		t.Fatalf("deleted shape not stable: %+v", got.Message)
	}
	if len(remover.removed) != 0 {
		t.Fatalf("text message must not trigger file removal: %v", remover.removed)
	}
}

func TestDeleteUnknownMessage(t *testing.T) {
	st := newTestStore(t)
	engine, _ := newTestEngine(t, st, newRecordingNotifier(), nil)

	_, err := engine.Delete(context.Background(), 12345)
	ce, ok := err.(*CoreError)
	if !ok || ce.Code != ErrCodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestUpdateRecipientCountersBatch(t *testing.T) {
	st := newTestStore(t)
	notifier := newRecordingNotifier()
	engine, presence := newTestEngine(t, st, notifier, nil)

	u1 := seedUser(t, st, "u1", store.RoleMember, nil)
	u2 := seedUser(t, st, "u2", store.RoleMember, nil)

	if err := st.IncrementUnread(context.Background(), u1.ID, 3); err != nil {
		t.Fatalf("seed unread: %v", err)
	}

	presence.Add(Presence{UserID: u1.ID, Role: store.RoleMember, ConnID: "conn-u1"})

	updates := []CounterUpdate{
		{Recipient: u1.ID, Update: CounterDecrement},
		{Recipient: u2.ID, Update: CounterIncrement},
	}
	if err := engine.UpdateRecipientCounters(context.Background(), updates); err != nil {
		t.Fatalf("batch failed: %v", err)
	}

	if got := unreadCount(t, st, u1.ID); got != 2 {
		t.Fatalf("u1 unread = %d, want 2", got)
	}
	if got := unreadCount(t, st, u2.ID); got != 1 {
		t.Fatalf("u2 unread = %d, want 1", got)
	}

	// Only the online recipient gets its own update record.
	targeted := notifier.targeted["conn-u1"]
	if len(targeted) != 1 || targeted[0].Counter.Recipient != u1.ID || targeted[0].Counter.Update != CounterDecrement {
		t.Fatalf("unexpected targeted events: %+v", targeted)
	}
	if len(notifier.targeted) != 1 {
		t.Fatalf("offline recipient must not be targeted: %+v", notifier.targeted)
	}
}

func TestUpdateRecipientCountersRejectsUnsupportedOperator(t *testing.T) {
	st := newTestStore(t)
	engine, _ := newTestEngine(t, st, newRecordingNotifier(), nil)

	u1 := seedUser(t, st, "u1", store.RoleMember, nil)

	updates := []CounterUpdate{
		{Recipient: u1.ID, Update: CounterIncrement},
		{Recipient: u1.ID, Update: "multiply"},
	}
	err := engine.UpdateRecipientCounters(context.Background(), updates)
	ce, ok := err.(*CoreError)
	if !ok || ce.Code != ErrCodeUnsupportedOperator {
		t.Fatalf("expected unsupported_operator, got %v", err)
	}

	// The whole batch is rejected before storage.
	if got := unreadCount(t, st, u1.ID); got != 0 {
		t.Fatalf("counter moved despite rejected batch: %d", got)
	}
}

func TestDecrementBelowZeroIsNotClamped(t *testing.T) {
	st := newTestStore(t)
	engine, _ := newTestEngine(t, st, newRecordingNotifier(), nil)

	u1 := seedUser(t, st, "u1", store.RoleMember, nil)

	updates := []CounterUpdate{{Recipient: u1.ID, Update: CounterDecrement}}
	if err := engine.UpdateRecipientCounters(context.Background(), updates); err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if got := unreadCount(t, st, u1.ID); got != -1 {
		t.Fatalf("unread = %d, want -1 (no clamp)", got)
	}
}

func TestTypingTargetsAdminOnly(t *testing.T) {
	st := newTestStore(t)
	notifier := newRecordingNotifier()
	engine, presence := newTestEngine(t, st, notifier, nil)

	presence.Add(Presence{UserID: 1, DisplayName: "boss", Role: store.RoleAdmin, ConnID: "conn-admin"})
	presence.Add(Presence{UserID: 2, DisplayName: "member1", Role: store.RoleMember, ConnID: "conn-m1"})

	engine.Typing("member1")

	targeted := notifier.targeted["conn-admin"]
	if len(targeted) != 1 || targeted[0].Kind != EventTyping || targeted[0].TypedBy != "member1" {
		t.Fatalf("expected typing event to admin, got %+v", targeted)
	}
	if len(notifier.targeted) != 1 {
		t.Fatalf("typing must only reach the admin: %+v", notifier.targeted)
	}
}

func TestTypingSuppressedForAdminTyper(t *testing.T) {
	st := newTestStore(t)
	notifier := newRecordingNotifier()
	engine, presence := newTestEngine(t, st, notifier, nil)

	presence.Add(Presence{UserID: 1, DisplayName: "boss", Role: store.RoleAdmin, ConnID: "conn-admin"})

	engine.Typing("boss")
	if len(notifier.targeted) != 0 {
		t.Fatalf("admin's own typing must be suppressed: %+v", notifier.targeted)
	}
}

func TestTypingWithNoAdminOnlineIsDropped(t *testing.T) {
	st := newTestStore(t)
	notifier := newRecordingNotifier()
	engine, _ := newTestEngine(t, st, notifier, nil)

	engine.Typing("member1")
	if len(notifier.targeted) != 0 || len(notifier.broadcasts) != 0 {
		t.Fatalf("typing with no admin must be silently dropped")
	}
}
