package hotstate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/exp/maps"

	"tilerealm/pkg/game"
)

// loadGroundItemsLocked loads a map's ground items from durable storage on
// first touch. Caller must hold s.mu.
func (s *Store) loadGroundItemsLocked(ctx context.Context, mapID string) (map[int64]*game.GroundItem, error) {
	if byID, ok := s.ground[mapID]; ok {
		return byID, nil
	}
	items, err := s.durable.LoadGroundItems(ctx, mapID)
	if err != nil {
		return nil, fmt.Errorf("loading ground items for map %s: %w", mapID, err)
	}
	byID := make(map[int64]*game.GroundItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	s.ground[mapID] = byID
	return byID, nil
}

// nextGroundItemID is a process-local monotonically increasing id source.
// Ground items must be visible to other players immediately, so the cache
// mints the id up front; the durable flush writes the row under this same
// id rather than letting the column's BIGSERIAL default assign one.
var groundItemSeq int64

func nextGroundItemID() int64 {
	groundItemSeq++
	return groundItemSeq
}

// DropItem places a new ground item and marks it dirty for flush.
func (s *Store) DropItem(ctx context.Context, pos game.Position, itemKindID string, quantity int, droppedBy int64, lootProtection, despawnAfter time.Duration, now time.Time) (*game.GroundItem, error) {
	var item *game.GroundItem
	err := s.transact(ctx, func() error {
		byID, err := s.loadGroundItemsLocked(ctx, pos.MapID)
		if err != nil {
			return err
		}
		item = &game.GroundItem{
			ID:         nextGroundItemID(),
			ItemKindID: itemKindID,
			Position:   pos,
			Quantity:   quantity,
			DroppedBy:  droppedBy,
			DroppedAt:  now,
			PublicAt:   now.Add(lootProtection),
			DespawnAt:  now.Add(despawnAfter),
		}
		byID[item.ID] = item
		s.markGroundDirty(pos.MapID, item.ID, false)
		return nil
	})
	return item, err
}

// PickupItem removes a ground item if present, returning it. Returns nil,
// nil if no such item exists (already picked up / despawned).
func (s *Store) PickupItem(ctx context.Context, mapID string, itemID int64) (*game.GroundItem, error) {
	var item *game.GroundItem
	err := s.transact(ctx, func() error {
		byID, err := s.loadGroundItemsLocked(ctx, mapID)
		if err != nil {
			return err
		}
		found, ok := byID[itemID]
		if !ok {
			return nil
		}
		item = found
		delete(byID, itemID)
		s.markGroundDirty(mapID, itemID, true)
		return nil
	})
	return item, err
}

// GroundItemsOnMap returns a deep copy of every ground item on a map.
func (s *Store) GroundItemsOnMap(ctx context.Context, mapID string) ([]*game.GroundItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, err := s.loadGroundItemsLocked(ctx, mapID)
	if err != nil {
		return nil, err
	}
	out := make([]*game.GroundItem, 0, len(byID))
	for _, item := range byID {
		out = append(out, item.Clone())
	}
	return out, nil
}

// SweepDespawned removes every ground item on mapID whose despawn time has
// passed, returning the removed items so the tick loop can broadcast
// EVENT_GROUND_ITEM_REMOVED for each (§4.3 step 3).
func (s *Store) SweepDespawned(ctx context.Context, mapID string, now time.Time) ([]*game.GroundItem, error) {
	var removed []*game.GroundItem
	err := s.transact(ctx, func() error {
		byID, err := s.loadGroundItemsLocked(ctx, mapID)
		if err != nil {
			return err
		}
		for id, item := range byID {
			if item.Despawned(now) {
				removed = append(removed, item.Clone())
				delete(byID, id)
				s.markGroundDirty(mapID, id, true)
			}
		}
		return nil
	})
	return removed, err
}

// GroundItemMapIDs returns every map id that currently has loaded ground
// items, used by the tick loop's per-map sweep.
func (s *Store) GroundItemMapIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Keys(s.ground)
}
