package hotstate

import (
	"context"
	"time"

	"tilerealm/pkg/durable"
)

// RunFlusher drains every dirty bucket on a fixed interval until ctx is
// canceled, then performs one final synchronous flush before returning
// (§4.1 "at shutdown, the flusher runs once to completion").
func (s *Store) RunFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.FlushOnce(ctx)
		case <-ctx.Done():
			s.FlushOnce(context.Background())
			return
		}
	}
}

// FlushOnce drains and writes through every dirty bucket exactly once. A
// durable-store failure during flush leaves the affected ids dirty for the
// next cycle; it logs and continues rather than blocking the caller (§4.1
// Failure semantics).
func (s *Store) FlushOnce(ctx context.Context) {
	s.flushPlayerRows(ctx)
	s.flushInventories(ctx)
	s.flushEquipment(ctx)
	s.flushSkills(ctx)
	s.flushGroundItems(ctx)
}

func (s *Store) dirtyPlayerRowIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirtyPosition.drain()
}

func (s *Store) flushPlayerRows(ctx context.Context) {
	for _, id := range s.dirtyPlayerRowIDs() {
		row, ok := s.snapshotPlayerRow(id)
		if !ok {
			continue
		}
		err := s.breaker.Execute(ctx, func(ctx context.Context) error {
			return s.durable.UpsertPlayer(ctx, row)
		})
		if err != nil {
			s.logger.WithError(err).WithField("player_id", id).Warn("flush: player row write failed, will retry next cycle")
			s.mu.Lock()
			s.dirtyPosition.add(id)
			s.mu.Unlock()
		}
	}
}

func (s *Store) snapshotPlayerRow(id int64) (*durable.PlayerRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.players[id]
	if !ok {
		return nil, false
	}
	p := entry.player
	return &durable.PlayerRow{
		ID:             p.ID,
		Username:       p.Username,
		HashedPassword: p.HashedPassword,
		Role:           p.Role,
		IsBanned:       p.IsBanned,
		TimeoutUntil:   p.TimeoutUntil,
		MapID:          p.LastPosition.MapID,
		X:              p.LastPosition.X,
		Y:              p.LastPosition.Y,
		HP:             p.LastHP,
		AppearanceJSON: appearanceToJSON(p.Appearance),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      time.Now(),
	}, true
}

func (s *Store) dirtyInventoryIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirtyInventory.drain()
}

func (s *Store) flushInventories(ctx context.Context) {
	for _, id := range s.dirtyInventoryIDs() {
		s.mu.RLock()
		entry, ok := s.players[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		snapshot := entry.inventory.Clone()
		err := s.breaker.Execute(ctx, func(ctx context.Context) error {
			return s.durable.ReplaceInventory(ctx, id, snapshot)
		})
		if err != nil {
			s.logger.WithError(err).WithField("player_id", id).Warn("flush: inventory write failed, will retry next cycle")
			s.mu.Lock()
			s.dirtyInventory.add(id)
			s.mu.Unlock()
		}
	}
}

func (s *Store) dirtyEquipmentIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirtyEquipment.drain()
}

func (s *Store) flushEquipment(ctx context.Context) {
	for _, id := range s.dirtyEquipmentIDs() {
		s.mu.RLock()
		entry, ok := s.players[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		snapshot := entry.equipment.Clone()
		err := s.breaker.Execute(ctx, func(ctx context.Context) error {
			return s.durable.ReplaceEquipment(ctx, id, snapshot)
		})
		if err != nil {
			s.logger.WithError(err).WithField("player_id", id).Warn("flush: equipment write failed, will retry next cycle")
			s.mu.Lock()
			s.dirtyEquipment.add(id)
			s.mu.Unlock()
		}
	}
}

func (s *Store) dirtySkillIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirtySkills.drain()
}

func (s *Store) flushSkills(ctx context.Context) {
	for _, id := range s.dirtySkillIDs() {
		s.mu.RLock()
		entry, ok := s.players[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		snapshot := entry.skills.Clone()
		err := s.breaker.Execute(ctx, func(ctx context.Context) error {
			return s.durable.UpsertSkills(ctx, id, snapshot)
		})
		if err != nil {
			s.logger.WithError(err).WithField("player_id", id).Warn("flush: skills write failed, will retry next cycle")
			s.mu.Lock()
			s.dirtySkills.add(id)
			s.mu.Unlock()
		}
	}
}

func (s *Store) flushGroundItems(ctx context.Context) {
	s.mu.Lock()
	pending := s.dirtyGround
	s.dirtyGround = make(map[string]map[int64]bool)
	s.mu.Unlock()

	for mapID, ids := range pending {
		for itemID, deleted := range ids {
			if deleted {
				err := s.breaker.Execute(ctx, func(ctx context.Context) error {
					return s.durable.DeleteGroundItem(ctx, itemID)
				})
				if err != nil {
					s.logger.WithError(err).WithField("item_id", itemID).Warn("flush: ground item delete failed, will retry next cycle")
					s.mu.Lock()
					s.markGroundDirty(mapID, itemID, true)
					s.mu.Unlock()
				}
				continue
			}
			s.mu.RLock()
			item, ok := s.ground[mapID][itemID]
			s.mu.RUnlock()
			if !ok {
				continue
			}
			snapshot := item.Clone()
			err := s.breaker.Execute(ctx, func(ctx context.Context) error {
				return s.durable.UpsertGroundItem(ctx, snapshot)
			})
			if err != nil {
				s.logger.WithError(err).WithField("item_id", itemID).Warn("flush: ground item write failed, will retry next cycle")
				s.mu.Lock()
				s.markGroundDirty(mapID, itemID, false)
				s.mu.Unlock()
			}
		}
	}
}
