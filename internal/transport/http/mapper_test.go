package http

import (
	"encoding/json"
	"testing"

	"github.com/teaminfosharing/tis-server/internal/core"
	"github.com/teaminfosharing/tis-server/internal/proto"
	"github.com/teaminfosharing/tis-server/internal/store"
)

func testClient() *core.Client {
	return core.NewClient("conn-1", 7, "alice", 16)
}

func inbound(t *testing.T, typ, data string) proto.Inbound {
	t.Helper()
	return proto.Inbound{Type: typ, Data: json.RawMessage(data)}
}

func TestInboundSendMessageUsesTokenIdentity(t *testing.T) {
	cmd, perr, err := inboundToCommand(testClient(), inbound(t, proto.InboundTypeSendMessage,
		`{"message":{"type":"text","content":"hi"},"reply_to":42}`))
	if err != nil || perr != nil {
		t.Fatalf("unexpected error: %v, %+v", err, perr)
	}
	if cmd.Kind != core.CommandSendMessage {
		t.Fatalf("kind = %v", cmd.Kind)
	}
	// Sender comes from the connection, not the payload.
	if cmd.SenderID != 7 {
		t.Fatalf("sender = %d, want 7", cmd.SenderID)
	}
	if cmd.Draft.Type != store.MessageTypeText || cmd.Draft.Content != "hi" {
		t.Fatalf("draft = %+v", cmd.Draft)
	}
	if cmd.ReplyTo == nil || *cmd.ReplyTo != 42 {
		t.Fatalf("reply_to = %v", cmd.ReplyTo)
	}
}

func TestInboundSendMessageRejectsUnknownType(t *testing.T) {
	cmd, perr, err := inboundToCommand(testClient(), inbound(t, proto.InboundTypeSendMessage,
		`{"message":{"type":"video","content":"x"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd != nil || perr == nil || perr.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got cmd=%+v perr=%+v", cmd, perr)
	}
}

func TestInboundUnknownEnvelopeType(t *testing.T) {
	cmd, perr, err := inboundToCommand(testClient(), inbound(t, "subscribe", `{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd != nil || perr == nil || perr.Code != "invalid_message" {
		t.Fatalf("expected invalid_message, got cmd=%+v perr=%+v", cmd, perr)
	}
}

func TestInboundMarkReadDefaultsToSelf(t *testing.T) {
	cmd, perr, err := inboundToCommand(testClient(), inbound(t, proto.InboundTypeMarkRead, `{}`))
	if err != nil || perr != nil {
		t.Fatalf("unexpected error: %v, %+v", err, perr)
	}
	if cmd.Kind != core.CommandMarkRead || cmd.UserID != 7 {
		t.Fatalf("cmd = %+v", cmd)
	}
}

func TestInboundUpdateCountersRequiresUpdates(t *testing.T) {
	_, perr, err := inboundToCommand(testClient(), inbound(t, proto.InboundTypeUpdateCounters, `{"updates":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if perr == nil || perr.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", perr)
	}

	cmd, perr, err := inboundToCommand(testClient(), inbound(t, proto.InboundTypeUpdateCounters,
		`{"updates":[{"recipient":3,"update":"decrement"}]}`))
	if err != nil || perr != nil {
		t.Fatalf("unexpected error: %v, %+v", err, perr)
	}
	if len(cmd.Updates) != 1 || cmd.Updates[0].Recipient != 3 || cmd.Updates[0].Update != core.CounterDecrement {
		t.Fatalf("updates = %+v", cmd.Updates)
	}
}

func TestInboundMalformedJSON(t *testing.T) {
	_, _, err := inboundToCommand(testClient(), inbound(t, proto.InboundTypeSendMessage, `{"message":`))
	if err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestOutboundErrorEnvelope(t *testing.T) {
	out := outboundFromEvent(&core.Event{
		Kind:  core.EventError,
		Error: &core.CoreError{Code: core.ErrCodeNotFound, Message: "message 5 not found"},
	})
	if out.Type != proto.OutboundTypeError || out.Error == nil || out.Error.Code != core.ErrCodeNotFound {
		t.Fatalf("envelope = %+v", out)
	}
}

func TestOutboundPresenceList(t *testing.T) {
	out := outboundFromEvent(&core.Event{
		Kind: core.EventPresenceList,
		Online: []core.Presence{
			{UserID: 2, DisplayName: "bob", Role: store.RoleMember},
		},
	})
	if out.Event != proto.EventPresenceList {
		t.Fatalf("event = %q", out.Event)
	}
	data, ok := out.Data.(proto.PresenceListData)
	if !ok || len(data.Users) != 1 || data.Users[0].DisplayName != "bob" {
		t.Fatalf("data = %+v", out.Data)
	}
}

func TestOutboundDeletedCarriesOnlyID(t *testing.T) {
	out := outboundFromEvent(&core.Event{Kind: core.EventMessageDeleted, MessageID: 9})
	data, ok := out.Data.(proto.DeletedData)
	if !ok || data.ID != 9 {
		t.Fatalf("data = %+v", out.Data)
	}
	if out.Event != proto.EventMessageDeleted {
		t.Fatalf("event = %q", out.Event)
	}
}
