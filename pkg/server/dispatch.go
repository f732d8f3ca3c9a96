package server

import (
	"context"
	"encoding/json"

	"tilerealm/pkg/session"
	"tilerealm/pkg/wire"
)

// commandHandler decodes its own payload from msg, does whatever the
// command requires, and returns the value to embed in RESP_SUCCESS/RESP_DATA
// (nil for a bare RESP_SUCCESS). Returning a wire.RPCError reports that
// error verbatim to the client; any other error is logged and reported as
// a generic system error so handler internals never leak onto the wire.
type commandHandler func(s *RPCServer, sess *session.Session, msg wire.Message) (any, error)

// buildDispatch populates the command -> handler table once at construction
// time (§4.5: one handler per CMD_*/QUERY_* type).
func (s *RPCServer) buildDispatch() {
	s.dispatch = map[wire.MessageType]commandHandler{
		wire.CmdMove:                   (*RPCServer).handleMove,
		wire.CmdAttack:                 (*RPCServer).handleAttack,
		wire.CmdToggleAutoRetaliate:    (*RPCServer).handleToggleAutoRetaliate,
		wire.CmdInventoryMove:          (*RPCServer).handleInventoryMove,
		wire.CmdInventorySort:          (*RPCServer).handleInventorySort,
		wire.CmdItemEquip:              (*RPCServer).handleItemEquip,
		wire.CmdItemUnequip:            (*RPCServer).handleItemUnequip,
		wire.CmdItemDrop:               (*RPCServer).handleItemDrop,
		wire.CmdItemPickup:             (*RPCServer).handleItemPickup,
		wire.CmdChatMessage:            (*RPCServer).handleChatMessage,
		wire.CmdAppearanceUpdate:       (*RPCServer).handleAppearanceUpdate,
		wire.CmdAdminTeleport:          (*RPCServer).handleAdminTeleport,
		wire.CmdAdminKick:              (*RPCServer).handleAdminKick,
		wire.CmdAdminBan:               (*RPCServer).handleAdminBan,
		wire.CmdAdminTimeout:           (*RPCServer).handleAdminTimeout,
		wire.CmdAdminHeal:              (*RPCServer).handleAdminHeal,
		wire.CmdAdminItemGrant:         (*RPCServer).handleAdminItemGrant,
		wire.QueryInventory:            (*RPCServer).handleQueryInventory,
		wire.QueryEquipment:            (*RPCServer).handleQueryEquipment,
		wire.QueryStats:                (*RPCServer).handleQueryStats,
		wire.QueryMapChunks:            (*RPCServer).handleQueryMapChunks,
	}
}

// handleFrame decodes one inbound wire frame, runs it through the
// per-player lock and dispatch table, and writes back a correlated
// RESP_SUCCESS/RESP_DATA/RESP_ERROR reply (§4.5, §7).
func (s *RPCServer) handleFrame(sess *session.Session, raw []byte) {
	var msg wire.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.replyError(sess, "", wire.NewValidationError(wire.CodeMalformedMessage, "malformed message frame", nil))
		return
	}

	handler, ok := s.dispatch[msg.Type]
	if !ok {
		s.replyError(sess, msg.ID, wire.NewValidationError(wire.CodeUnknownMessageType, "unknown message type: "+string(msg.Type), nil))
		return
	}

	var result any
	var handlerErr error
	lockErr := s.locks.WithLock(context.Background(), sess.PlayerID, func() error {
		result, handlerErr = handler(s, sess, msg)
		return handlerErr
	})
	if lockErr != nil && handlerErr == nil {
		s.logger.WithError(lockErr).WithField("player_id", sess.PlayerID).Warn("acquiring player lock for command failed")
		s.replyError(sess, msg.ID, wire.NewSystemError())
		return
	}
	if handlerErr != nil {
		rpcErr, ok := handlerErr.(wire.RPCError)
		if !ok {
			s.logger.WithError(handlerErr).WithField("player_id", sess.PlayerID).Error("command handler failed")
			rpcErr = wire.NewSystemError()
		}
		s.replyError(sess, msg.ID, rpcErr)
		return
	}
	s.replySuccess(sess, msg.ID, result)
}

func (s *RPCServer) replySuccess(sess *session.Session, id string, data any) {
	msg, err := wire.NewSuccess(id, data)
	if err != nil {
		s.logger.WithError(err).Error("encoding success reply failed")
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	sess.Send(raw)
}

func (s *RPCServer) replyError(sess *session.Session, id string, rpcErr wire.RPCError) {
	msg, err := wire.NewError(id, rpcErr)
	if err != nil {
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	sess.Send(raw)
}
