package game

import (
	"time"
)

// GroundItem is a dropped/looted item instance lying on a map tile (§3).
// Created by drop or death-loot; removed by pickup, despawn sweep, or
// explicit cleanup.
type GroundItem struct {
	ID          int64     `json:"id"`
	ItemKindID  string    `json:"item_kind_id"`
	DisplayName string    `json:"display_name"`
	Rarity      Rarity    `json:"rarity"`
	Position    Position  `json:"position"`
	Quantity    int       `json:"quantity"`
	DroppedBy   int64     `json:"dropped_by,omitempty"` // 0 = no dropper (e.g. world-seeded)
	DroppedAt   time.Time `json:"dropped_at"`
	PublicAt    time.Time `json:"public_at"`
	DespawnAt   time.Time `json:"despawn_at"`
}

// VisibleTo implements the testable invariant from §8: a ground item is
// visible to player P iff it was dropped by P, or loot protection has
// expired. Map and radius filtering happen at the visibility-engine layer;
// this only covers the ownership/protection half.
func (g *GroundItem) VisibleTo(playerID int64, now time.Time) bool {
	if g.DroppedBy == playerID {
		return true
	}
	return !now.Before(g.PublicAt)
}

// Despawned reports whether the sweep (§4.3 step 3) should remove this item.
func (g *GroundItem) Despawned(now time.Time) bool {
	return !now.Before(g.DespawnAt)
}

// Clone returns a deep copy for safe hand-off out of the hot-state cache.
func (g *GroundItem) Clone() *GroundItem {
	cp := *g
	return &cp
}
