package server

import (
	"context"
	"time"

	"tilerealm/pkg/game"
	"tilerealm/pkg/session"
	"tilerealm/pkg/wire"
)

// moveOp is the rate-limiter operation key for CMD_MOVE (§4.6).
const moveOp = "move"

// handleMove implements CMD_MOVE (§4.5.1): direction parse, cooldown,
// collision check, then a single-tile step applied to hot state. A
// successful move also walks the session registry's map index so broadcasts
// keep targeting the right audience when a player crosses a map boundary.
func (s *RPCServer) handleMove(sess *session.Session, msg wire.Message) (any, error) {
	var payload wire.MovePayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeMoveInvalidDirection, "malformed move payload", nil)
	}
	direction, ok := game.ParseDirection(payload.Direction)
	if !ok {
		return nil, wire.NewValidationError(wire.CodeMoveInvalidDirection, "unknown direction: "+payload.Direction, nil)
	}

	now := time.Now()
	if allowed, remaining := s.rateLimiter.Allow(sess.PlayerID, moveOp, s.config.MoveCooldown, now); !allowed {
		return nil, wire.NewRateLimitError(wire.CodeMoveRateLimited, "moving too quickly", remaining.Milliseconds())
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
		return nil, wire.NewBusinessError(wire.CodeMoveCollisionDetected, "cannot move while dead")
	}

	dx, dy := direction.Delta()
	next := game.Position{MapID: rt.Position.MapID, X: rt.Position.X + dx, Y: rt.Position.Y + dy, Facing: direction}
	if !s.maps.Walkable(next.MapID, next.X, next.Y) {
		if err := s.hot.UpdatePosition(ctx, sess.PlayerID, rt.Position, direction, now); err != nil {
			return nil, err
		}
		return nil, wire.NewBusinessError(wire.CodeMoveCollisionDetected, "destination tile is blocked")
	}

	if err := s.hot.UpdatePosition(ctx, sess.PlayerID, next, direction, now); err != nil {
		return nil, err
	}
	if next.MapID != sess.MapID {
		s.sessions.MoveMap(sess, next.MapID)
	}

	return wire.MoveResult{Position: next}, nil
}
