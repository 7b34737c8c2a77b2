package http

import (
	"encoding/json"

	"github.com/teaminfosharing/tis-server/internal/core"
	"github.com/teaminfosharing/tis-server/internal/proto"
	"github.com/teaminfosharing/tis-server/internal/store"
)

// inboundToCommand validates a wire envelope and maps it onto a core command.
// The sender identity always comes from the connection's token, never from
// the payload.
func inboundToCommand(client *core.Client, inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeRegisterPresence:
		var reg proto.RegisterPresenceData
		if len(inbound.Data) > 0 {
			if err := json.Unmarshal(inbound.Data, &reg); err != nil {
				return nil, nil, err
			}
		}
		return &core.Command{
			Kind: core.CommandRegisterPresence,
			Presence: core.Presence{
				UserID:      client.UserID,
				Username:    client.Username,
				DisplayName: reg.DisplayName,
				Role:        store.Role(reg.Role),
				ConnID:      client.ConnID,
			},
		}, nil, nil

	case proto.InboundTypeSendMessage:
		var send proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &send); err != nil {
			return nil, nil, err
		}
		if !store.MessageType(send.Message.Type).Valid() {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unrecognized message type"}, nil
		}
		return &core.Command{
			Kind:     core.CommandSendMessage,
			SenderID: client.UserID,
			ReplyTo:  send.ReplyTo,
			Draft: core.MessageDraft{
				Type:     store.MessageType(send.Message.Type),
				Content:  send.Message.Content,
				FileName: send.Message.FileName,
			},
		}, nil, nil

	case proto.InboundTypeMarkRead:
		var mark proto.MarkReadData
		if len(inbound.Data) > 0 {
			if err := json.Unmarshal(inbound.Data, &mark); err != nil {
				return nil, nil, err
			}
		}
		userID := mark.UserID
		if userID == 0 {
			userID = client.UserID
		}
		return &core.Command{Kind: core.CommandMarkRead, UserID: userID}, nil, nil

	case proto.InboundTypeUpdateCounters:
		var batch proto.UpdateCountersData
		if err := json.Unmarshal(inbound.Data, &batch); err != nil {
			return nil, nil, err
		}
		if len(batch.Updates) == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "updates are required"}, nil
		}
		updates := make([]core.CounterUpdate, 0, len(batch.Updates))
		for _, u := range batch.Updates {
			updates = append(updates, core.CounterUpdate{
				Recipient: u.Recipient,
				Update:    core.CounterOp(u.Update),
			})
		}
		return &core.Command{Kind: core.CommandUpdateCounters, Updates: updates}, nil, nil

	case proto.InboundTypeDeleteMessage:
		var del proto.DeleteMessageData
		if err := json.Unmarshal(inbound.Data, &del); err != nil {
			return nil, nil, err
		}
		if del.ID == 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "message id is required"}, nil
		}
		return &core.Command{Kind: core.CommandDeleteMessage, MessageID: del.ID}, nil, nil

	case proto.InboundTypeTyping:
		var typing proto.TypingData
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, nil, err
		}
		if typing.DisplayName == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "display_name is required"}, nil
		}
		return &core.Command{Kind: core.CommandTyping, DisplayName: typing.DisplayName}, nil, nil

	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessageDelivered:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageDelivered,
			Data:  messageToPayload(event.Message),
		}
	case core.EventMessageDeleted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageDeleted,
			Data:  proto.DeletedData{ID: event.MessageID},
		}
	case core.EventRecipientCounter:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventRecipientCounter,
			Data: proto.CounterUpdate{
				Recipient: event.Counter.Recipient,
				Update:    string(event.Counter.Update),
			},
		}
	case core.EventPresenceList:
		entries := make([]proto.PresenceEntry, 0, len(event.Online))
		for _, p := range event.Online {
			entries = append(entries, proto.PresenceEntry{
				UserID:      p.UserID,
				DisplayName: p.DisplayName,
				Role:        int(p.Role),
			})
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventPresenceList,
			Data:  proto.PresenceListData{Users: entries},
		}
	case core.EventTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventTyping,
			Data:  proto.TypingData{DisplayName: event.TypedBy},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func userToPayload(u *store.User) *proto.UserPayload {
	if u == nil {
		return nil
	}
	return &proto.UserPayload{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        int(u.Role),
		FlowID:      u.FlowID,
		UnreadCount: u.UnreadCount,
	}
}

func messageToPayload(m *store.PopulatedMessage) proto.MessagePayload {
	recipients := make([]proto.UserPayload, 0, len(m.RecipientUsers))
	for _, u := range m.RecipientUsers {
		recipients = append(recipients, *userToPayload(u))
	}
	return proto.MessagePayload{
		ID:         m.ID,
		From:       userToPayload(m.From),
		Recipients: recipients,
		Type:       string(m.Type),
		Content:    m.Content,
		FileURL:    m.FileURL,
		FileName:   m.FileName,
		TS:         m.CreatedAt.Unix(),
	}
}
