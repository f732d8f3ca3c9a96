package server

import (
	"context"
	"time"

	"tilerealm/pkg/game"
	"tilerealm/pkg/session"
	"tilerealm/pkg/wire"
)

// requireStaff rejects the command unless the acting session belongs to a
// moderator or admin (§4.5.6).
func (s *RPCServer) requireStaff(ctx context.Context, sess *session.Session) (*game.Player, error) {
	actor, err := s.hot.Player(ctx, sess.PlayerID)
	if err != nil {
		return nil, err
	}
	if actor == nil || (actor.Role != game.RoleModerator && actor.Role != game.RoleAdmin) {
		return nil, wire.NewAuthError(wire.CodeAuthForbidden, "admin privileges required")
	}
	return actor, nil
}

// handleAdminTeleport implements CMD_ADMIN_TELEPORT (§4.5.6).
func (s *RPCServer) handleAdminTeleport(sess *session.Session, msg wire.Message) (any, error) {
	ctx := context.Background()
	actor, err := s.requireStaff(ctx, sess)
	if err != nil {
		return nil, err
	}
	var payload wire.AdminTeleportPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeMalformedMessage, "malformed teleport payload", nil)
	}

	dest := game.Position{MapID: payload.MapID, X: payload.X, Y: payload.Y}
	if !s.maps.Walkable(dest.MapID, dest.X, dest.Y) {
		return nil, wire.NewValidationError(wire.CodeMapInvalidCoords, "destination tile is not walkable", nil)
	}
	if err := s.hot.UpdatePosition(ctx, payload.PlayerID, dest, game.DirectionDown, time.Now()); err != nil {
		return nil, err
	}
	if target := s.sessions.Lookup(payload.PlayerID); target != nil && target.MapID != dest.MapID {
		s.sessions.MoveMap(target, dest.MapID)
	}
	s.logger.WithField("admin_id", actor.ID).WithField("target_id", payload.PlayerID).Info("admin teleport")
	return nil, nil
}

// handleAdminKick implements CMD_ADMIN_KICK (§4.5.6): disconnects the
// target's live session, if any, without altering durable ban/timeout state.
func (s *RPCServer) handleAdminKick(sess *session.Session, msg wire.Message) (any, error) {
	ctx := context.Background()
	actor, err := s.requireStaff(ctx, sess)
	if err != nil {
		return nil, err
	}
	var payload wire.AdminKickPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeMalformedMessage, "malformed kick payload", nil)
	}
	target := s.sessions.Lookup(payload.PlayerID)
	if target == nil {
		return nil, wire.NewValidationError(wire.CodeGroundItemNotFound, "player is not online", nil)
	}
	target.Conn.Close()
	s.logger.WithField("admin_id", actor.ID).WithField("target_id", payload.PlayerID).WithField("reason", payload.Reason).Info("admin kick")
	return nil, nil
}

// handleAdminBan implements CMD_ADMIN_BAN (§4.5.6).
func (s *RPCServer) handleAdminBan(sess *session.Session, msg wire.Message) (any, error) {
	ctx := context.Background()
	actor, err := s.requireStaff(ctx, sess)
	if err != nil {
		return nil, err
	}
	var payload wire.AdminBanPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeMalformedMessage, "malformed ban payload", nil)
	}
	if err := s.hot.MutatePlayer(ctx, payload.PlayerID, func(p *game.Player) bool {
		p.IsBanned = true
		return true
	}); err != nil {
		return nil, err
	}
	if target := s.sessions.Lookup(payload.PlayerID); target != nil {
		target.Conn.Close()
	}
	s.logger.WithField("admin_id", actor.ID).WithField("target_id", payload.PlayerID).WithField("reason", payload.Reason).Info("admin ban")
	return nil, nil
}

// handleAdminTimeout implements CMD_ADMIN_TIMEOUT (§4.5.6).
func (s *RPCServer) handleAdminTimeout(sess *session.Session, msg wire.Message) (any, error) {
	ctx := context.Background()
	actor, err := s.requireStaff(ctx, sess)
	if err != nil {
		return nil, err
	}
	var payload wire.AdminTimeoutPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeMalformedMessage, "malformed timeout payload", nil)
	}
	if payload.Seconds <= 0 {
		return nil, wire.NewValidationError(wire.CodeMalformedMessage, "timeout duration must be positive", nil)
	}
	until := time.Now().Add(time.Duration(payload.Seconds) * time.Second)
	if err := s.hot.MutatePlayer(ctx, payload.PlayerID, func(p *game.Player) bool {
		p.TimeoutUntil = until
		return true
	}); err != nil {
		return nil, err
	}
	if target := s.sessions.Lookup(payload.PlayerID); target != nil {
		target.Conn.Close()
	}
	s.logger.WithField("admin_id", actor.ID).WithField("target_id", payload.PlayerID).WithField("until", until).Info("admin timeout")
	return nil, nil
}

// handleAdminHeal implements CMD_ADMIN_HEAL (§4.5.6): restores the target to
// full HP and clears death state.
func (s *RPCServer) handleAdminHeal(sess *session.Session, msg wire.Message) (any, error) {
	ctx := context.Background()
	actor, err := s.requireStaff(ctx, sess)
	if err != nil {
		return nil, err
	}
	var payload wire.AdminHealPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeMalformedMessage, "malformed heal payload", nil)
	}
	err = s.hot.MutateRuntime(ctx, payload.PlayerID, func(r *game.Runtime) bool {
		r.CurrentHP = r.MaxHP
		r.Dead = false
		r.RespawnAt = time.Time{}
		return true
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithField("admin_id", actor.ID).WithField("target_id", payload.PlayerID).Info("admin heal")
	return nil, nil
}

// handleAdminItemGrant implements CMD_ADMIN_ITEM_GRANT (§4.5.6): stacks into
// an existing slot of the same kind when possible, otherwise uses the first
// free slot; fails if neither is available.
func (s *RPCServer) handleAdminItemGrant(sess *session.Session, msg wire.Message) (any, error) {
	ctx := context.Background()
	actor, err := s.requireStaff(ctx, sess)
	if err != nil {
		return nil, err
	}
	var payload wire.AdminItemGrantPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeMalformedMessage, "malformed item grant payload", nil)
	}
	if _, ok := s.itemKinds[payload.ItemKindID]; !ok {
		return nil, wire.NewValidationError(wire.CodeInvInvalidSlot, "unknown item kind: "+payload.ItemKindID, nil)
	}
	if payload.Quantity <= 0 {
		return nil, wire.NewValidationError(wire.CodeInvInsufficientQty, "quantity must be positive", nil)
	}

	var handlerErr error
	err = s.hot.MutateInventory(ctx, payload.PlayerID, func(inv game.Inventory) bool {
		remaining := payload.Quantity
		cap := s.itemKinds.StackCapOf(payload.ItemKindID)
		if s.itemKinds[payload.ItemKindID].Stackable {
			if idx := inv.FindStackable(payload.ItemKindID, cap); idx != -1 {
				slot := inv[idx]
				room := cap - slot.Quantity
				add := remaining
				if add > room {
					add = room
				}
				slot.Quantity += add
				inv[idx] = slot
				remaining -= add
			}
		}
		for remaining > 0 {
			free := inv.FirstFreeSlot()
			if free == -1 {
				handlerErr = wire.NewValidationError(wire.CodeInvInventoryFull, "target inventory is full", nil)
				return false
			}
			add := remaining
			if add > cap {
				add = cap
			}
			inv[free] = game.InventorySlot{ItemKindID: payload.ItemKindID, Quantity: add}
			remaining -= add
		}
		return true
	})
	if handlerErr != nil {
		return nil, handlerErr
	}
	if err != nil {
		return nil, err
	}
	s.logger.WithField("admin_id", actor.ID).WithField("target_id", payload.PlayerID).
		WithField("item_kind_id", payload.ItemKindID).WithField("quantity", payload.Quantity).Info("admin item grant")
	return nil, nil
}
