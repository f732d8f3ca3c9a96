package tick

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"tilerealm/pkg/combat"
	"tilerealm/pkg/game"
	"tilerealm/pkg/wire"
)

// errPlayerNotFound is returned by StartAttack when the attacking player has
// no hot-state runtime, which should not happen for an authenticated session.
var errPlayerNotFound = errors.New("tick: player runtime not found")

// runCombatTick resolves one attack for every online player whose combat
// target is due for another swing (§4.3 step 2, §4.7 step 7).
func (l *Loop) runCombatTick(now time.Time) {
	for _, playerID := range l.hot.OnlinePlayerIDs() {
		rt, err := l.hot.Runtime(context.Background(), playerID)
		if err != nil || rt == nil || !rt.InCombat() || rt.CombatTarget.Kind != game.CombatTargetEntity {
			continue
		}
		cadence := attackCadenceTicks(rt.AttackSpeed, l.cfg.TickRate, l.cfg.CombatBaseAttackSpeed)
		if l.tick-rt.LastAttackTick < cadence {
			continue
		}
		l.resolvePlayerAttack(playerID, rt, rt.CombatTarget.ID, now)
	}
}

func attackCadenceTicks(attackSpeed float64, tickRate int, fallback float64) uint64 {
	if attackSpeed <= 0 {
		attackSpeed = fallback
	}
	ms := int64(math.Round(attackSpeed * 1000))
	ticks := uint64((ms*int64(tickRate) + 999) / 1000)
	if ticks == 0 {
		ticks = 1
	}
	return ticks
}

// resolvePlayerAttack resolves one attack from playerID against a live
// entity instance, used both by the initial CMD_ATTACK handler and every
// subsequent auto-attack the tick loop schedules.
func (l *Loop) resolvePlayerAttack(playerID int64, rt *game.Runtime, targetInstanceID string, now time.Time) combat.Result {
	entity := l.hot.Entity(targetInstanceID)
	if entity == nil || !entity.Visible() {
		_ = l.hot.MutateRuntime(context.Background(), playerID, func(r *game.Runtime) bool {
			r.ClearCombat()
			return true
		})
		return combat.Result{}
	}
	kind := l.entityKinds[entity.KindID]

	attackerStats, attackerDamageBonus := l.playerAttackStats(playerID)
	_ = attackerDamageBonus
	defenderStats := game.CombatStats{
		AttackLevel: kind.AttackLevel, AttackBonus: kind.AttackBonus,
		DefenceLevel: kind.DefenceLevel, DefenceBonus: kind.DefenceBonus,
		StrengthLevel: kind.StrengthLevel, StrengthBonus: kind.StrengthBonus,
	}

	result := combat.Resolve(attackerStats, defenderStats, entity.CurrentHP, l.rng)

	l.hot.MutateEntity(entity.InstanceID, func(e *game.Entity) {
		e.CurrentHP = result.DefenderHP
		if result.DefenderDied {
			e.State = game.EntityDying
			e.DeathTick = combat.EntityDeathTick(l.tick, l.cfg.DeathAnimTicks)
		}
	})

	_ = l.hot.MutateRuntime(context.Background(), playerID, func(r *game.Runtime) bool {
		r.LastAttackTick = l.tick
		r.AttackSpeed = l.effectiveAttackSpeed(playerID)
		if result.DefenderDied {
			r.ClearCombat()
		} else {
			r.CombatTarget = game.CombatTarget{Kind: game.CombatTargetEntity, ID: entity.InstanceID}
		}
		return true
	})

	attack, strength, hitpoints := combat.AttackXP(result.Damage)
	if attack > 0 {
		_, _ = l.hot.AddSkillXP(context.Background(), playerID, game.SkillAttack, attack, l.xp)
		_, _ = l.hot.AddSkillXP(context.Background(), playerID, game.SkillStrength, strength, l.xp)
		_, _ = l.hot.AddSkillXP(context.Background(), playerID, game.SkillHitpoints, hitpoints, l.xp)
	}

	event := wire.CombatActionEvent{
		AttackerType: "player", AttackerID: formatID(playerID),
		DefenderType: "entity", DefenderID: entity.InstanceID,
		Hit: result.Hit, Damage: result.Damage, DefenderHP: result.DefenderHP, Died: result.DefenderDied,
	}
	l.broadcastCombatEvent(entity.MapID, event)
	return result
}

// StartAttack resolves the first swing of a new engagement against a live
// entity instance, for use by the CMD_ATTACK handler (§4.5.2): it looks up
// the attacker's current runtime itself so the handler doesn't need to
// reach into hot-state internals, then delegates to the same resolution
// path every subsequent auto-attack tick uses.
func (l *Loop) StartAttack(playerID int64, targetInstanceID string, now time.Time) (combat.Result, error) {
	rt, err := l.hot.Runtime(context.Background(), playerID)
	if err != nil {
		return combat.Result{}, err
	}
	if rt == nil {
		return combat.Result{}, errPlayerNotFound
	}
	return l.resolvePlayerAttack(playerID, rt, targetInstanceID, now), nil
}

func (l *Loop) playerAttackStats(playerID int64) (game.CombatStats, int) {
	skills, err := l.hot.Skills(context.Background(), playerID)
	if err != nil {
		skills = game.DefaultSkills()
	}
	return game.CombatStats{
		AttackLevel:   skills[game.SkillAttack].Level,
		DefenceLevel:  skills[game.SkillDefence].Level,
		StrengthLevel: skills[game.SkillStrength].Level,
	}, 0
}

// effectiveAttackSpeed reads the equipped weapon's attack_speed, falling
// back to the configured base when unarmed or unset.
func (l *Loop) effectiveAttackSpeed(playerID int64) float64 {
	eq, err := l.hot.Equipment(context.Background(), playerID)
	if err != nil {
		return l.cfg.CombatBaseAttackSpeed
	}
	weapon := eq[game.SlotWeapon]
	if weapon == nil {
		return l.cfg.CombatBaseAttackSpeed
	}
	kind, ok := l.itemKinds[weapon.ItemKindID]
	if !ok || kind.AttackSpeed <= 0 {
		return l.cfg.CombatBaseAttackSpeed
	}
	return kind.AttackSpeed
}

// sweepGroundItems removes despawned ground items from mapID and broadcasts
// their removal (§4.3 step 3, §4.6 "Despawn").
func (l *Loop) sweepGroundItems(mapID string, now time.Time) {
	removed, err := l.hot.SweepDespawned(context.Background(), mapID, now)
	if err != nil {
		l.logger.WithError(err).WithField("map_id", mapID).Warn("sweeping ground items failed")
		return
	}
	for _, item := range removed {
		msg, err := wire.NewEvent(wire.EventGroundItemRemoved, wire.GroundItemRemovedEvent{GroundItemID: item.ID})
		if err != nil {
			continue
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		l.sessions.BroadcastToMap(mapID, raw)
	}
}

func (l *Loop) broadcastCombatEvent(mapID string, event wire.CombatActionEvent) {
	msg, err := wire.NewEvent(wire.EventCombatAction, event)
	if err != nil {
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	l.sessions.BroadcastToMap(mapID, raw)
}

// handlePlayerDeath implements the player-death sequence (§4.7 "Death of a
// player"): drop all items at the death location, broadcast PLAYER_DIED, and
// mark the runtime dead with a respawn-due timestamp. The respawn itself is
// driven off that hot-state field by runRespawnTick/RespawnIfDue, not by a
// goroutine tied to this session (§9 design decision) — if the player
// disconnects during the delay, the respawn simply applies while they are
// offline and is visible on next login.
func (l *Loop) handlePlayerDeath(playerID int64, now time.Time) {
	rt, err := l.hot.Runtime(context.Background(), playerID)
	if err != nil || rt == nil {
		return
	}
	inv, err := l.hot.Inventory(context.Background(), playerID)
	if err == nil {
		for _, slot := range inv {
			if slot.Empty() {
				continue
			}
			lootProtection := 60 * time.Second
			despawn := 5 * time.Minute
			_, _ = l.hot.DropItem(context.Background(), rt.Position, slot.ItemKindID, slot.Quantity, playerID, lootProtection, despawn, now)
		}
	}
	_ = l.hot.MutateInventory(context.Background(), playerID, func(inv game.Inventory) bool {
		for i := range inv {
			inv[i] = game.InventorySlot{}
		}
		return true
	})

	_ = l.hot.MutateRuntime(context.Background(), playerID, func(r *game.Runtime) bool {
		r.Dead = true
		r.RespawnAt = now.Add(l.cfg.DeathRespawnDelay)
		r.ClearCombat()
		return true
	})

	diedMsg, _ := wire.NewEvent(wire.EventPlayerDied, wire.PlayerDiedEvent{PlayerID: playerID})
	if raw, err := json.Marshal(diedMsg); err == nil {
		l.sessions.BroadcastToMap(rt.Position.MapID, raw)
	}
}

// runRespawnTick respawns every online player whose death timer has
// elapsed. Called once per tick alongside entity respawn handling.
func (l *Loop) runRespawnTick(now time.Time) {
	for _, playerID := range l.hot.OnlinePlayerIDs() {
		l.RespawnIfDue(playerID, now)
	}
}

// RespawnIfDue respawns playerID if they are dead and RespawnAt has passed,
// broadcasting PLAYER_RESPAWN, and reports whether a respawn happened. It is
// exported so the session-open handshake can resolve, on login, a respawn
// that became due while the player was offline.
func (l *Loop) RespawnIfDue(playerID int64, now time.Time) bool {
	rt, err := l.hot.Runtime(context.Background(), playerID)
	if err != nil || rt == nil || !rt.Dead || now.Before(rt.RespawnAt) {
		return false
	}

	spawn := l.cfg.SpawnPosition
	_ = l.hot.MutateRuntime(context.Background(), playerID, func(r *game.Runtime) bool {
		r.Position = spawn
		r.CurrentHP = l.cfg.MaxHP
		r.MaxHP = l.cfg.MaxHP
		r.Dead = false
		r.RespawnAt = time.Time{}
		r.ClearCombat()
		return true
	})

	msg, _ := wire.NewEvent(wire.EventPlayerRespawn, wire.PlayerRespawnEvent{
		PlayerID: playerID, Position: spawn, HP: l.cfg.MaxHP,
	})
	if raw, err := json.Marshal(msg); err == nil {
		l.sessions.SendPersonal(playerID, raw)
		l.sessions.BroadcastToMap(spawn.MapID, raw)
	}
	return true
}
