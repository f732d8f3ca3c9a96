package server

import (
	"context"

	"tilerealm/pkg/game"
	"tilerealm/pkg/session"
	"tilerealm/pkg/wire"
)

// maxChunkQueryDistance bounds how far a QUERY_MAP_CHUNKS center may sit
// from the querying player's own position (§4.5.5 "within a configurable
// distance"); chunk radius is separately capped by maxChunkRadius.
const maxChunkQueryDistance = 64

// maxChunkRadius is MAX_CHUNK_RADIUS (§4.5.5 default 2).
const maxChunkRadius = 2

// handleQueryInventory implements QUERY_INVENTORY (§4.5.5).
func (s *RPCServer) handleQueryInventory(sess *session.Session, msg wire.Message) (any, error) {
	inv, err := s.hot.Inventory(context.Background(), sess.PlayerID)
	if err != nil {
		return nil, err
	}
	return wire.InventoryQueryResult{Inventory: inv}, nil
}

// handleQueryEquipment implements QUERY_EQUIPMENT (§4.5.5).
func (s *RPCServer) handleQueryEquipment(sess *session.Session, msg wire.Message) (any, error) {
	eq, err := s.hot.Equipment(context.Background(), sess.PlayerID)
	if err != nil {
		return nil, err
	}
	return wire.EquipmentQueryResult{Equipment: eq}, nil
}

// handleQueryStats implements QUERY_STATS (§4.5.5).
func (s *RPCServer) handleQueryStats(sess *session.Session, msg wire.Message) (any, error) {
	ctx := context.Background()
	skills, err := s.hot.Skills(ctx, sess.PlayerID)
	if err != nil {
		return nil, err
	}
	rt, err := s.hot.Runtime(ctx, sess.PlayerID)
	if err != nil {
		return nil, err
	}
	if rt == nil {
		return nil, wire.NewSystemError()
	}
	return wire.StatsQueryResult{
		Skills: skills, HP: rt.CurrentHP, MaxHP: rt.MaxHP, CombatLvl: skills.CombatLevel(),
	}, nil
}

// handleQueryMapChunks implements QUERY_MAP_CHUNKS (§4.5.5, §6): the query
// center must sit near the player's own position and the radius is capped
// at maxChunkRadius, then chunk data comes straight from the static map
// service.
func (s *RPCServer) handleQueryMapChunks(sess *session.Session, msg wire.Message) (any, error) {
	var payload wire.MapChunksPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeMapInvalidCoords, "malformed map chunks payload", nil)
	}
	if payload.Radius < 0 || payload.Radius > maxChunkRadius {
		return nil, wire.NewValidationError(wire.CodeMapInvalidCoords, "radius exceeds maximum", nil)
	}

	rt, err := s.hot.Runtime(context.Background(), sess.PlayerID)
	if err != nil {
		return nil, err
	}
	if rt == nil {
		return nil, wire.NewSystemError()
	}
	center := game.Position{MapID: rt.Position.MapID, X: payload.CenterX, Y: payload.CenterY}
	if game.ChebyshevDistance(rt.Position, center) > maxChunkQueryDistance {
		return nil, wire.NewValidationError(wire.CodeMapInvalidCoords, "query center is too far from current position", nil)
	}

	chunks, err := s.maps.Chunks(rt.Position.MapID, payload.CenterX, payload.CenterY, payload.Radius)
	if err != nil {
		return nil, wire.NewValidationError(wire.CodeMapInvalidCoords, "invalid map chunk query", nil)
	}
	return wire.MapChunksResult{MapID: rt.Position.MapID, Chunks: chunks}, nil
}
