package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"tilerealm/pkg/game"
	"tilerealm/pkg/session"
	"tilerealm/pkg/wire"
)

// validInventorySlot reports whether idx addresses a real slot of inv.
func validInventorySlot(inv game.Inventory, idx int) bool {
	return idx >= 0 && idx < len(inv)
}

// handleInventoryMove implements CMD_INVENTORY_MOVE (§4.5.3): merge, move,
// or swap depending on what occupies the two slots.
func (s *RPCServer) handleInventoryMove(sess *session.Session, msg wire.Message) (any, error) {
	var payload wire.InventoryMovePayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeInvInvalidSlot, "malformed inventory move payload", nil)
	}

	var result game.Inventory
	var handlerErr error
	err := s.hot.MutateInventory(context.Background(), sess.PlayerID, func(inv game.Inventory) bool {
		if !validInventorySlot(inv, payload.FromSlot) || !validInventorySlot(inv, payload.ToSlot) {
			handlerErr = wire.NewValidationError(wire.CodeInvInvalidSlot, "slot index out of range", nil)
			return false
		}
		from := inv[payload.FromSlot]
		if from.Empty() {
			handlerErr = wire.NewValidationError(wire.CodeInvSlotEmpty, "source slot is empty", nil)
			return false
		}
		to := inv[payload.ToSlot]

		switch {
		case to.Empty():
			inv[payload.ToSlot] = from
			inv[payload.FromSlot] = game.InventorySlot{}
		case to.ItemKindID == from.ItemKindID && s.itemKinds[from.ItemKindID].Stackable:
			cap := s.itemKinds.StackCapOf(from.ItemKindID)
			room := cap - to.Quantity
			if room <= 0 {
				inv[payload.FromSlot], inv[payload.ToSlot] = to, from
				break
			}
			moved := from.Quantity
			if moved > room {
				moved = room
			}
			to.Quantity += moved
			inv[payload.ToSlot] = to
			from.Quantity -= moved
			if from.Quantity <= 0 {
				inv[payload.FromSlot] = game.InventorySlot{}
			} else {
				inv[payload.FromSlot] = from
			}
		default:
			inv[payload.FromSlot], inv[payload.ToSlot] = to, from
		}
		result = inv.Clone()
		return true
	})
	if handlerErr != nil {
		return nil, handlerErr
	}
	if err != nil {
		return nil, err
	}
	return wire.InventoryMoveResult{Inventory: result}, nil
}

// handleInventorySort implements CMD_INVENTORY_SORT (§4.5.3): compact,
// merge mergeable stacks, then order by the requested key.
func (s *RPCServer) handleInventorySort(sess *session.Session, msg wire.Message) (any, error) {
	var payload wire.InventorySortPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeMalformedMessage, "malformed sort payload", nil)
	}

	var itemsMoved, stacksMerged int
	var result game.Inventory
	err := s.hot.MutateInventory(context.Background(), sess.PlayerID, func(inv game.Inventory) bool {
		occupied := make([]game.InventorySlot, 0, len(inv))
		for _, slot := range inv {
			if !slot.Empty() {
				occupied = append(occupied, slot)
			}
		}

		merged := make([]game.InventorySlot, 0, len(occupied))
		for _, slot := range occupied {
			if s.itemKinds[slot.ItemKindID].Stackable {
				mergedInto := false
				for i := range merged {
					if merged[i].ItemKindID != slot.ItemKindID {
						continue
					}
					cap := s.itemKinds.StackCapOf(slot.ItemKindID)
					room := cap - merged[i].Quantity
					if room <= 0 {
						continue
					}
					moved := slot.Quantity
					if moved > room {
						moved = room
					}
					merged[i].Quantity += moved
					slot.Quantity -= moved
					stacksMerged++
					if slot.Quantity <= 0 {
						mergedInto = true
						break
					}
				}
				if mergedInto {
					continue
				}
			}
			merged = append(merged, slot)
		}

		sort.SliceStable(merged, func(i, j int) bool {
			ki, kj := s.itemKinds[merged[i].ItemKindID], s.itemKinds[merged[j].ItemKindID]
			switch payload.SortBy {
			case "value":
				return ki.Value > kj.Value
			case "quantity":
				return merged[i].Quantity > merged[j].Quantity
			default:
				return ki.Name < kj.Name
			}
		})

		for i := range inv {
			if i < len(merged) {
				inv[i] = merged[i]
			} else {
				inv[i] = game.InventorySlot{}
			}
		}
		itemsMoved = len(merged)
		result = inv.Clone()
		return true
	})
	if err != nil {
		return nil, err
	}
	return wire.InventorySortResult{Inventory: result, ItemsMoved: itemsMoved, StacksMerged: stacksMerged}, nil
}

// handleItemEquip implements CMD_ITEM_EQUIP (§4.5.3): equipability and
// level-requirement checks, two-handed/shield conflict resolution, then an
// atomic inventory+equipment swap.
func (s *RPCServer) handleItemEquip(sess *session.Session, msg wire.Message) (any, error) {
	var payload wire.ItemEquipPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeInvInvalidSlot, "malformed equip payload", nil)
	}

	ctx := context.Background()
	inv, err := s.hot.Inventory(ctx, sess.PlayerID)
	if err != nil {
		return nil, err
	}
	if !validInventorySlot(inv, payload.InventorySlot) || inv[payload.InventorySlot].Empty() {
		return nil, wire.NewValidationError(wire.CodeInvInvalidSlot, "inventory slot is empty or out of range", nil)
	}
	item := inv[payload.InventorySlot]
	kind, ok := s.itemKinds[item.ItemKindID]
	if !ok || !kind.Equipable {
		return nil, wire.NewValidationError(wire.CodeEquipItemNotEquipable, "item cannot be equipped", nil)
	}

	skills, err := s.hot.Skills(ctx, sess.PlayerID)
	if err != nil {
		return nil, err
	}
	for skillName, required := range kind.LevelReqs {
		current := skills[game.SkillKind(skillName)].Level
		if current < required {
			return nil, wire.NewValidationError(wire.CodeEquipLevelTooLow,
				fmt.Sprintf("requires %s level %d, you have %d", skillName, required, current), nil)
		}
	}

	var result wire.EquipResult
	var handlerErr error
	err = s.hot.MutateInventoryAndEquipment(ctx, sess.PlayerID, func(inv game.Inventory, eq game.Equipment) bool {
		current := inv[payload.InventorySlot]
		if current.Empty() || current.ItemKindID != item.ItemKindID {
			handlerErr = wire.NewSystemError()
			return false
		}

		if kind.TwoHanded {
			if shield, occupied := eq[game.SlotShield]; occupied && shield != nil {
				free := inv.FirstFreeSlot()
				if free == -1 {
					handlerErr = wire.NewValidationError(wire.CodeEquipCannotUnequipFull, "no free inventory slot for displaced shield", nil)
					return false
				}
				inv[free] = game.InventorySlot{ItemKindID: shield.ItemKindID, Quantity: shield.Quantity, CurrentDurability: shield.CurrentDurability}
				delete(eq, game.SlotShield)
			}
		}
		if kind.EquipmentSlot == game.SlotShield {
			if weapon := eq[game.SlotWeapon]; weapon != nil && s.itemKinds[weapon.ItemKindID].TwoHanded {
				free := inv.FirstFreeSlot()
				if free == -1 {
					handlerErr = wire.NewValidationError(wire.CodeEquipCannotUnequipFull, "no free inventory slot for displaced two-handed weapon", nil)
					return false
				}
				inv[free] = game.InventorySlot{ItemKindID: weapon.ItemKindID, Quantity: weapon.Quantity, CurrentDurability: weapon.CurrentDurability}
				delete(eq, game.SlotWeapon)
			}
		}

		previous := eq[kind.EquipmentSlot]
		eq[kind.EquipmentSlot] = &game.EquippedItem{ItemKindID: current.ItemKindID, Quantity: current.Quantity, CurrentDurability: current.CurrentDurability}
		if previous != nil {
			inv[payload.InventorySlot] = game.InventorySlot{ItemKindID: previous.ItemKindID, Quantity: previous.Quantity, CurrentDurability: previous.CurrentDurability}
		} else {
			inv[payload.InventorySlot] = game.InventorySlot{}
		}

		result = wire.EquipResult{Inventory: inv.Clone(), Equipment: eq.Clone()}
		return true
	})
	if handlerErr != nil {
		return nil, handlerErr
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// handleItemUnequip implements CMD_ITEM_UNEQUIP (§4.5.3).
func (s *RPCServer) handleItemUnequip(sess *session.Session, msg wire.Message) (any, error) {
	var payload wire.ItemUnequipPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeEquipInvalidSlot, "malformed unequip payload", nil)
	}
	slot, ok := game.ParseEquipmentSlot(payload.EquipmentSlot)
	if !ok {
		return nil, wire.NewValidationError(wire.CodeEquipInvalidSlot, "unknown equipment slot: "+payload.EquipmentSlot, nil)
	}

	var result wire.EquipResult
	var handlerErr error
	err := s.hot.MutateInventoryAndEquipment(context.Background(), sess.PlayerID, func(inv game.Inventory, eq game.Equipment) bool {
		item, occupied := eq[slot]
		if !occupied || item == nil {
			handlerErr = wire.NewValidationError(wire.CodeInvSlotEmpty, "equipment slot is already empty", nil)
			return false
		}
		free := inv.FirstFreeSlot()
		if free == -1 {
			handlerErr = wire.NewValidationError(wire.CodeEquipCannotUnequipFull, "no free inventory slot", nil)
			return false
		}
		inv[free] = game.InventorySlot{ItemKindID: item.ItemKindID, Quantity: item.Quantity, CurrentDurability: item.CurrentDurability}
		delete(eq, slot)
		result = wire.EquipResult{Inventory: inv.Clone(), Equipment: eq.Clone()}
		return true
	})
	if handlerErr != nil {
		return nil, handlerErr
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// handleItemDrop implements CMD_ITEM_DROP (§4.5.3): deduct from inventory,
// create a ground item with rarity-scaled loot-protection/despawn timers,
// clear combat state, and broadcast the addition.
func (s *RPCServer) handleItemDrop(sess *session.Session, msg wire.Message) (any, error) {
	var payload wire.ItemDropPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeInvInvalidSlot, "malformed drop payload", nil)
	}

	ctx := context.Background()
	var kindID string
	var handlerErr error
	err := s.hot.MutateInventory(ctx, sess.PlayerID, func(inv game.Inventory) bool {
		if !validInventorySlot(inv, payload.InventorySlot) {
			handlerErr = wire.NewValidationError(wire.CodeInvInvalidSlot, "slot index out of range", nil)
			return false
		}
		slot := inv[payload.InventorySlot]
		if slot.Empty() {
			handlerErr = wire.NewValidationError(wire.CodeInvSlotEmpty, "slot is empty", nil)
			return false
		}
		if payload.Quantity <= 0 || payload.Quantity > slot.Quantity {
			handlerErr = wire.NewValidationError(wire.CodeInvInsufficientQty, "insufficient quantity in slot", nil)
			return false
		}
		kindID = slot.ItemKindID
		slot.Quantity -= payload.Quantity
		if slot.Quantity <= 0 {
			inv[payload.InventorySlot] = game.InventorySlot{}
		} else {
			inv[payload.InventorySlot] = slot
		}
		return true
	})
	if handlerErr != nil {
		return nil, handlerErr
	}
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

	rarity := s.itemKinds[kindID].Rarity.String()
	lootProtection := time.Duration(s.config.LootProtectionSeconds[rarity]) * time.Second
	despawn := time.Duration(s.config.DespawnSeconds[rarity]) * time.Second

	now := time.Now()
	item, err := s.hot.DropItem(ctx, rt.Position, kindID, payload.Quantity, sess.PlayerID, lootProtection, despawn, now)
	if err != nil {
		return nil, err
	}
	_ = s.hot.MutateRuntime(ctx, sess.PlayerID, func(r *game.Runtime) bool {
		r.ClearCombat()
		return true
	})

	s.broadcastEvent(rt.Position.MapID, wire.EventGroundItemAdded, wire.GroundItemAddedEvent{GroundItem: *item})
	return nil, nil
}

// itemPickupRange is the Chebyshev distance within which a ground item may
// be picked up (§4.5.3 "typically 1").
const itemPickupRange = 1

// handleItemPickup implements CMD_ITEM_PICKUP (§4.5.3).
func (s *RPCServer) handleItemPickup(sess *session.Session, msg wire.Message) (any, error) {
	var payload wire.ItemPickupPayload
	if err := msg.Decode(&payload); err != nil {
		return nil, wire.NewValidationError(wire.CodeGroundItemNotFound, "malformed pickup payload", nil)
	}

	ctx := context.Background()
	rt, err := s.hot.Runtime(ctx, sess.PlayerID)
	if err != nil {
		return nil, err
	}
	if rt == nil {
		return nil, wire.NewSystemError()
	}

	items, err := s.hot.GroundItemsOnMap(ctx, rt.Position.MapID)
	if err != nil {
		return nil, err
	}
	var found *game.GroundItem
	for _, item := range items {
		if item.ID == payload.GroundItemID {
			found = item
			break
		}
	}
	now := time.Now()
	if found == nil || (found.DroppedBy != sess.PlayerID && now.Before(found.PublicAt)) {
		return nil, wire.NewValidationError(wire.CodeGroundItemNotFound, "ground item not found", nil)
	}
	if game.ChebyshevDistance(rt.Position, found.Position) > itemPickupRange {
		return nil, wire.NewValidationError(wire.CodeGroundItemNotFound, "ground item is out of reach", nil)
	}

	var handlerErr error
	var result game.Inventory
	invErr := s.hot.MutateInventory(ctx, sess.PlayerID, func(inv game.Inventory) bool {
		remaining := found.Quantity
		cap := s.itemKinds.StackCapOf(found.ItemKindID)
		if s.itemKinds[found.ItemKindID].Stackable {
			for i, slot := range inv {
				if remaining <= 0 {
					break
				}
				if slot.Empty() || slot.ItemKindID != found.ItemKindID || slot.Quantity >= cap {
					continue
				}
				room := cap - slot.Quantity
				add := remaining
				if add > room {
					add = room
				}
				slot.Quantity += add
				inv[i] = slot
				remaining -= add
			}
		}
		for remaining > 0 {
			free := inv.FirstFreeSlot()
			if free == -1 {
				handlerErr = wire.NewValidationError(wire.CodeInvInventoryFull, "inventory is full", nil)
				return false
			}
			add := remaining
			if add > cap {
				add = cap
			}
			inv[free] = game.InventorySlot{ItemKindID: found.ItemKindID, Quantity: add}
			remaining -= add
		}
		result = inv.Clone()
		return true
	})
	if handlerErr != nil {
		return nil, handlerErr
	}
	if invErr != nil {
		return nil, invErr
	}

	if _, err := s.hot.PickupItem(ctx, rt.Position.MapID, found.ID); err != nil {
		return nil, err
	}
	_ = s.hot.MutateRuntime(ctx, sess.PlayerID, func(r *game.Runtime) bool {
		r.ClearCombat()
		return true
	})

	s.broadcastEvent(rt.Position.MapID, wire.EventGroundItemRemoved, wire.GroundItemRemovedEvent{GroundItemID: found.ID})
	return wire.InventoryQueryResult{Inventory: result}, nil
}

// broadcastEvent marshals and broadcasts an uncorrelated event to everyone
// on a map; shared by every handler that needs to notify onlookers.
func (s *RPCServer) broadcastEvent(mapID string, t wire.MessageType, payload any) {
	msg, err := wire.NewEvent(t, payload)
	if err != nil {
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.sessions.BroadcastToMap(mapID, raw)
}
