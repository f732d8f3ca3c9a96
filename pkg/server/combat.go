package server

import (
	"context"
	"strconv"
	"time"

	"tilerealm/pkg/game"
	"tilerealm/pkg/session"
	"tilerealm/pkg/wire"
)

// attackOp is the rate-limiter operation key for CMD_ATTACK's initiating
// swing (§4.5.2 precondition 1); subsequent auto-attacks are governed by
// the tick loop's own cadence check, not this limiter.
const attackOp = "attack"

// attackActionCooldown is the default per-action cooldown §4.5.2 names.
const attackActionCooldown = 600 * time.Millisecond

// handleAttack implements CMD_ATTACK (§4.5.2): cooldown, liveness, target
// existence/attackability/range checks, PVP rejection, then delegates the
// actual resolution to the tick loop's combat resolver so the first swing
// and every scheduled auto-attack share one code path.
func (s *RPCServer) handleAttack(sess *session.Session, msg wire.Message) (any, error) {
	var payload wire.AttackPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeCombatInvalidTarget, "malformed attack payload", nil)
	}
	if payload.TargetType == "player" {
		return nil, wire.NewValidationError(wire.CodeCombatPlayerTarget, "player-vs-player combat is not supported", nil)
	}
	if payload.TargetType != "entity" {
		return nil, wire.NewValidationError(wire.CodeCombatInvalidTarget, "unknown target type: "+payload.TargetType, nil)
	}

	now := time.Now()
	if allowed, remaining := s.rateLimiter.Allow(sess.PlayerID, attackOp, attackActionCooldown, now); !allowed {
		return nil, wire.NewRateLimitError(wire.CodeCombatRateLimited, "attacking too quickly", remaining.Milliseconds())
	}

	ctx := context.Background()
	rt, err := s.hot.Runtime(ctx, sess.PlayerID)
	if err != nil {
		return nil, err
	}
	if rt == nil {
		return nil, wire.NewSystemError()
	}
	if rt.Dead {
		return nil, wire.NewBusinessError(wire.CodeCombatInvalidTarget, "you cannot attack while dead")
	}

	entity := s.hot.Entity(payload.TargetID)
	if entity == nil || entity.MapID != rt.Position.MapID {
		return nil, wire.NewValidationError(wire.CodeCombatInvalidTarget, "target does not exist", nil)
	}
	kind, ok := s.entityKinds[entity.KindID]
	if !ok || !entity.IsAttackable(kind) {
		return nil, wire.NewBusinessError(wire.CodeCombatNotAttackable, "target cannot be attacked")
	}
	if game.ChebyshevDistance(rt.Position, entity.Position) > 1 {
		return nil, wire.NewBusinessError(wire.CodeCombatOutOfRange, "target is too far away")
	}

	result, err := s.tickLoop.StartAttack(sess.PlayerID, entity.InstanceID, now)
	if err != nil {
		return nil, err
	}

	return wire.CombatActionEvent{
		AttackerType: "player", AttackerID: "player:" + strconv.FormatInt(sess.PlayerID, 10),
		DefenderType: "entity", DefenderID: entity.InstanceID,
		Hit: result.Hit, Damage: result.Damage, DefenderHP: result.DefenderHP, Died: result.DefenderDied,
	}, nil
}

// handleToggleAutoRetaliate implements CMD_TOGGLE_AUTO_RETALIATE (§4.5.6).
func (s *RPCServer) handleToggleAutoRetaliate(sess *session.Session, msg wire.Message) (any, error) {
	var payload wire.ToggleAutoRetaliatePayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeMalformedMessage, "malformed toggle payload", nil)
	}
	err := s.hot.MutateRuntime(context.Background(), sess.PlayerID, func(r *game.Runtime) bool {
		r.AutoRetaliate = payload.Enabled
		return true
	})
	return nil, err
}
