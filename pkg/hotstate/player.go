package hotstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/exp/slices"

	"tilerealm/pkg/durable"
	"tilerealm/pkg/game"
)

func ttlFor(online bool, policy TTLPolicy) time.Duration {
	if online {
		return policy.Online
	}
	return policy.Offline
}

func appearanceFromJSON(raw []byte) map[string]string {
	if len(raw) == 0 {
		return map[string]string{}
	}
	out := map[string]string{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func appearanceToJSON(m map[string]string) []byte {
	if m == nil {
		m = map[string]string{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

// loadPlayerLocked loads a player (identity row, skills, inventory,
// equipment) from the durable tier into cache. Caller must hold s.mu.
func (s *Store) loadPlayerLocked(ctx context.Context, playerID int64) (*playerEntry, error) {
	var row *durable.PlayerRow
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		row, innerErr = s.durable.LoadPlayer(ctx, playerID)
		return innerErr
	})
	if err != nil {
		return nil, fmt.Errorf("loading player %d from durable store: %w", playerID, err)
	}
	if row == nil {
		return nil, nil
	}

	skills, err := s.durable.LoadSkills(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading skills for player %d: %w", playerID, err)
	}
	if len(skills) == 0 {
		skills = game.DefaultSkills()
	}
	inv, err := s.durable.LoadInventory(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading inventory for player %d: %w", playerID, err)
	}
	eq, err := s.durable.LoadEquipment(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading equipment for player %d: %w", playerID, err)
	}

	entry := &playerEntry{
		player: game.Player{
			ID:             row.ID,
			Username:       row.Username,
			HashedPassword: row.HashedPassword,
			Role:           row.Role,
			IsBanned:       row.IsBanned,
			TimeoutUntil:   row.TimeoutUntil,
			LastPosition:   game.Position{MapID: row.MapID, X: row.X, Y: row.Y},
			LastHP:         row.HP,
			Appearance:     appearanceFromJSON(row.AppearanceJSON),
			CreatedAt:      row.CreatedAt,
			UpdatedAt:      row.UpdatedAt,
		},
		skills:    skills,
		inventory: inv,
		equipment: eq,
	}
	s.players[row.ID] = entry
	s.usernameIdx[row.Username] = row.ID
	return entry, nil
}

// getOrLoadLocked returns the player's cache entry, loading it through from
// durable storage on a miss or after TTL expiry. Caller must hold s.mu.
func (s *Store) getOrLoadLocked(ctx context.Context, playerID int64) (*playerEntry, error) {
	if entry, ok := s.players[playerID]; ok && !entry.expired(time.Now()) {
		return entry, nil
	}
	return s.loadPlayerLocked(ctx, playerID)
}

// CreatePlayer registers a brand new player identity, seeding default
// skills and an empty inventory/equipment, then writes through to durable
// storage immediately (registration is not a hot path, so there is no
// reason to leave it dirty).
func (s *Store) CreatePlayer(ctx context.Context, username, hashedPassword string, spawn game.Position, maxHP, inventorySize int) (*game.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usernameIdx[username]; exists {
		return nil, fmt.Errorf("hotstate: username %q already exists", username)
	}

	now := time.Now()
	row := &durable.PlayerRow{
		Username:       username,
		HashedPassword: hashedPassword,
		Role:           game.RolePlayer,
		MapID:          spawn.MapID,
		X:              spawn.X,
		Y:              spawn.Y,
		HP:             maxHP,
		AppearanceJSON: appearanceToJSON(nil),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	id, err := s.durable.InsertPlayer(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("creating player %q: %w", username, err)
	}
	row.ID = id
	skills := game.DefaultSkills()
	if err := s.durable.UpsertSkills(ctx, row.ID, skills); err != nil {
		return nil, fmt.Errorf("seeding skills for player %q: %w", username, err)
	}

	entry := &playerEntry{
		player: game.Player{
			ID: row.ID, Username: username, HashedPassword: hashedPassword,
			Role: game.RolePlayer, LastPosition: spawn, LastHP: maxHP,
			Appearance: map[string]string{}, CreatedAt: now, UpdatedAt: now,
		},
		skills:    skills,
		inventory: game.NewInventory(inventorySize),
		equipment: game.Equipment{},
	}
	s.players[row.ID] = entry
	s.usernameIdx[username] = row.ID

	player := entry.player
	return &player, nil
}

// PlayerByUsername resolves a username to a full player record, loading
// through from durable storage on a cache miss.
func (s *Store) PlayerByUsername(ctx context.Context, username string) (*game.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.usernameIdx[username]; ok {
		if entry, ok := s.players[id]; ok && !entry.expired(time.Now()) {
			p := entry.player
			return &p, nil
		}
	}
	row, err := s.breakerLoadByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	entry, err := s.loadPlayerLocked(ctx, row.ID)
	if err != nil || entry == nil {
		return nil, err
	}
	p := entry.player
	return &p, nil
}

func (s *Store) breakerLoadByUsername(ctx context.Context, username string) (*durable.PlayerRow, error) {
	var row *durable.PlayerRow
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		row, innerErr = s.durable.LoadPlayerByUsername(ctx, username)
		return innerErr
	})
	if err != nil {
		return nil, fmt.Errorf("loading player %q from durable store: %w", username, err)
	}
	return row, nil
}

// Player returns a deep copy of the durable-mirrored player record.
func (s *Store) Player(ctx context.Context, playerID int64) (*game.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.getOrLoadLocked(ctx, playerID)
	if err != nil || entry == nil {
		return nil, err
	}
	p := entry.player
	return &p, nil
}

// SetOnline marks a player online/offline and refreshes its TTL class. It
// returns only an error; callers read the runtime view separately.
func (s *Store) SetOnline(ctx context.Context, playerID int64, online bool, policy TTLPolicy) error {
	return s.transact(ctx, func() error {
		entry, err := s.getOrLoadLocked(ctx, playerID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("hotstate: player %d not found", playerID)
		}
		entry.runtime.Online = online
		entry.expiresAt = time.Now().Add(ttlFor(online, policy))
		if online && entry.runtime.PlayerID == 0 {
			entry.runtime = game.Runtime{
				PlayerID:       playerID,
				Online:         true,
				Position:       entry.player.LastPosition,
				CurrentHP:      entry.player.LastHP,
				MaxHP:          entry.player.LastHP,
				AutoRetaliate:  true,
			}
		}
		return nil
	})
}

// Runtime returns a deep copy of a player's hot runtime state.
func (s *Store) Runtime(ctx context.Context, playerID int64) (*game.Runtime, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.getOrLoadLocked(ctx, playerID)
	if err != nil || entry == nil {
		return nil, err
	}
	return entry.runtime.Clone(), nil
}

// UpdatePosition atomically writes a new position and marks dirty:position.
func (s *Store) UpdatePosition(ctx context.Context, playerID int64, pos game.Position, facing game.Direction, now time.Time) error {
	return s.transact(ctx, func() error {
		entry, err := s.getOrLoadLocked(ctx, playerID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("hotstate: player %d not found", playerID)
		}
		pos.Facing = facing
		entry.runtime.Position = pos
		entry.runtime.LastMoveTime = now
		entry.player.LastPosition = entry.runtime.Position
		s.markDirty(true, false, false, false, playerID)
		return nil
	})
}

// MutateRuntime runs fn against a clone of the player's runtime state and,
// if fn returns true, commits the mutated clone back and marks
// dirty:position (runtime covers position/HP/combat, all mirrored into the
// same durable player row).
func (s *Store) MutateRuntime(ctx context.Context, playerID int64, fn func(*game.Runtime) bool) error {
	return s.transact(ctx, func() error {
		entry, err := s.getOrLoadLocked(ctx, playerID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("hotstate: player %d not found", playerID)
		}
		clone := entry.runtime.Clone()
		if !fn(clone) {
			return nil
		}
		entry.runtime = *clone
		entry.player.LastHP = clone.CurrentHP
		entry.player.LastPosition = clone.Position
		s.markDirty(true, false, false, false, playerID)
		return nil
	})
}

// MutatePlayer runs fn against a clone of the player's identity record
// (role, ban/timeout state) and, if fn returns true, commits it back and
// marks dirty:position (the player row bucket also mirrors identity
// fields, §4.5.6 admin moderation actions).
func (s *Store) MutatePlayer(ctx context.Context, playerID int64, fn func(*game.Player) bool) error {
	return s.transact(ctx, func() error {
		entry, err := s.getOrLoadLocked(ctx, playerID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("hotstate: player %d not found", playerID)
		}
		clone := entry.player
		if !fn(&clone) {
			return nil
		}
		entry.player = clone
		s.markDirty(true, false, false, false, playerID)
		return nil
	})
}

// Skills returns a deep copy of a player's full skill set.
func (s *Store) Skills(ctx context.Context, playerID int64) (game.Skills, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.getOrLoadLocked(ctx, playerID)
	if err != nil || entry == nil {
		return nil, err
	}
	return entry.skills.Clone(), nil
}

// AddSkillXP awards XP to one skill and marks dirty:skills, returning the
// skill's state after the award (so callers can detect a level-up).
func (s *Store) AddSkillXP(ctx context.Context, playerID int64, kind game.SkillKind, xp int, table *game.XPTable) (game.Skill, error) {
	var result game.Skill
	err := s.transact(ctx, func() error {
		entry, err := s.getOrLoadLocked(ctx, playerID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("hotstate: player %d not found", playerID)
		}
		skill := entry.skills[kind]
		skill.XP += xp
		skill.Level = table.LevelForXP(skill.XP)
		entry.skills[kind] = skill
		result = skill
		s.markDirty(false, false, false, true, playerID)
		return nil
	})
	return result, err
}

// Inventory returns a deep copy of a player's inventory.
func (s *Store) Inventory(ctx context.Context, playerID int64) (game.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.getOrLoadLocked(ctx, playerID)
	if err != nil || entry == nil {
		return nil, err
	}
	return entry.inventory.Clone(), nil
}

// MutateInventory runs fn against a clone of the inventory and, if fn
// returns true, commits it back and marks dirty:inventory.
func (s *Store) MutateInventory(ctx context.Context, playerID int64, fn func(game.Inventory) bool) error {
	return s.transact(ctx, func() error {
		entry, err := s.getOrLoadLocked(ctx, playerID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("hotstate: player %d not found", playerID)
		}
		clone := entry.inventory.Clone()
		if !fn(clone) {
			return nil
		}
		entry.inventory = clone
		s.markDirty(false, true, false, false, playerID)
		return nil
	})
}

// Equipment returns a deep copy of a player's equipped items.
func (s *Store) Equipment(ctx context.Context, playerID int64) (game.Equipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.getOrLoadLocked(ctx, playerID)
	if err != nil || entry == nil {
		return nil, err
	}
	return entry.equipment.Clone(), nil
}

// MutateEquipment runs fn against a clone of the equipment set and, if fn
// returns true, commits it back and marks dirty:equipment.
func (s *Store) MutateEquipment(ctx context.Context, playerID int64, fn func(game.Equipment) bool) error {
	return s.transact(ctx, func() error {
		entry, err := s.getOrLoadLocked(ctx, playerID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("hotstate: player %d not found", playerID)
		}
		clone := entry.equipment.Clone()
		if !fn(clone) {
			return nil
		}
		entry.equipment = clone
		s.markDirty(false, false, true, false, playerID)
		return nil
	})
}

// SetAppearance updates the appearance map, writing through to the player
// record's dirty bucket (position bucket also mirrors the durable player
// row, so it doubles as the "core player row" bucket).
func (s *Store) SetAppearance(ctx context.Context, playerID int64, appearance map[string]string) error {
	return s.transact(ctx, func() error {
		entry, err := s.getOrLoadLocked(ctx, playerID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("hotstate: player %d not found", playerID)
		}
		entry.player.Appearance = appearance
		s.markDirty(true, false, false, false, playerID)
		return nil
	})
}

// OnlinePlayerIDs returns every currently-online player id in ascending
// order (the tick loop's deterministic iteration order, see DESIGN.md).
func (s *Store) OnlinePlayerIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.players))
	for id, entry := range s.players {
		if entry.runtime.Online {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
