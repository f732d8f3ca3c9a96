package hotstate

import (
	"context"
	"fmt"

	"tilerealm/pkg/game"
)

// MutateInventoryAndEquipment runs fn against clones of both the inventory
// and equipment set as one atomic cache transaction (§4.1 Atomicity:
// "operations that touch more than one category ... are grouped into an
// atomic cache transaction"). Equip/unequip is the one handler that needs
// this: moving an item between the two categories must never be observed
// half-done by a concurrent reader.
func (s *Store) MutateInventoryAndEquipment(ctx context.Context, playerID int64, fn func(game.Inventory, game.Equipment) bool) error {
	return s.transact(ctx, func() error {
		entry, err := s.getOrLoadLocked(ctx, playerID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("hotstate: player %d not found", playerID)
		}
		inv := entry.inventory.Clone()
		eq := entry.equipment.Clone()
		if !fn(inv, eq) {
			return nil
		}
		entry.inventory = inv
		entry.equipment = eq
		s.markDirty(false, true, true, false, playerID)
		return nil
	})
}
