package server

import (
	"context"
	"strings"

	"tilerealm/pkg/game"
	"tilerealm/pkg/session"
	"tilerealm/pkg/wire"
)

// maxChatMessageLength is the configured cap §4.5.4 names ("sanitize
// message length (cap at configured max)").
const maxChatMessageLength = 256

const (
	chatChannelSay    = "say"
	chatChannelGlobal = "global"
	chatChannelWhisper = "whisper"
	chatChannelSystem = "system"
)

// sanitizeChatMessage trims surrounding whitespace and truncates to the
// configured maximum length.
func sanitizeChatMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) > maxChatMessageLength {
		msg = msg[:maxChatMessageLength]
	}
	return msg
}

// handleChatMessage implements CMD_CHAT_MESSAGE (§4.5.4): say is map-scoped
// and radius-limited and carries the sender's position, global reaches
// every online session, whisper targets a single recipient by username,
// and system is reserved for server-originated messages only.
func (s *RPCServer) handleChatMessage(sess *session.Session, msg wire.Message) (any, error) {
	var payload wire.ChatMessagePayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeChatInvalidChannel, "malformed chat payload", nil)
	}
	body := sanitizeChatMessage(payload.Message)
	if body == "" {
		return nil, wire.NewValidationError(wire.CodeChatInvalidChannel, "message is empty", nil)
	}

	ctx := context.Background()
	switch payload.Channel {
	case chatChannelSay:
		rt, err := s.hot.Runtime(ctx, sess.PlayerID)
		if err != nil {
			return nil, err
		}
		if rt == nil {
			return nil, wire.NewSystemError()
		}
		position := rt.Position
		s.broadcastEvent(rt.Position.MapID, wire.EventChatMessage, wire.ChatMessageEvent{
			SenderName: sess.Username, Channel: chatChannelSay, Message: body, Position: &position,
		})
		return nil, nil

	case chatChannelGlobal:
		event := wire.ChatMessageEvent{SenderName: sess.Username, Channel: chatChannelGlobal, Message: body}
		for _, mapID := range s.sessions.MapIDs() {
			s.broadcastEvent(mapID, wire.EventChatMessage, event)
		}
		return nil, nil

	case chatChannelWhisper:
		if payload.Recipient == "" {
			return nil, wire.NewValidationError(wire.CodeChatInvalidChannel, "whisper requires a recipient", nil)
		}
		recipient, err := s.hot.PlayerByUsername(ctx, payload.Recipient)
		if err != nil || recipient == nil {
			return nil, wire.NewValidationError(wire.CodeChatInvalidChannel, "unknown recipient", nil)
		}
		target := s.sessions.Lookup(recipient.ID)
		if target == nil {
			return nil, wire.NewBusinessError(wire.CodeChatInvalidChannel, "recipient is not online")
		}
		event := wire.ChatMessageEvent{SenderName: sess.Username, Channel: chatChannelWhisper, Message: body}
		s.sendEvent(target, wire.EventChatMessage, event)
		s.sendEvent(sess, wire.EventChatMessage, event)
		return nil, nil

	case chatChannelSystem:
		player, err := s.hot.Player(ctx, sess.PlayerID)
		if err != nil || player == nil || (player.Role != game.RoleModerator && player.Role != game.RoleAdmin) {
			return nil, wire.NewAuthError(wire.CodeAuthForbidden, "system channel is restricted")
		}
		event := wire.ChatMessageEvent{SenderName: sess.Username, Channel: chatChannelSystem, Message: body}
		for _, mapID := range s.sessions.MapIDs() {
			s.broadcastEvent(mapID, wire.EventChatMessage, event)
		}
		return nil, nil

	default:
		return nil, wire.NewValidationError(wire.CodeChatInvalidChannel, "unknown channel: "+payload.Channel, nil)
	}
}
