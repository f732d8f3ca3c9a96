package tick

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"tilerealm/pkg/combat"
	"tilerealm/pkg/game"
	"tilerealm/pkg/wire"
)

// runEntityAI advances every live entity instance on mapID one step
// through the state machine (§4.9).
func (l *Loop) runEntityAI(mapID string, now time.Time) {
	for _, e := range l.hot.EntitiesOnMap(mapID) {
		kind, ok := l.entityKinds[e.KindID]
		if !ok {
			continue
		}
		instanceID := e.InstanceID
		switch e.State {
		case game.EntityIdle:
			l.stepIdle(mapID, instanceID, kind, now)
		case game.EntityWandering:
			l.stepWandering(instanceID, kind)
		case game.EntityAggro:
			l.stepAggro(mapID, instanceID, kind)
		case game.EntityAttacking:
			l.stepAttacking(mapID, instanceID, kind, now)
		case game.EntityDying:
			l.stepDying(instanceID)
		case game.EntityDead:
			l.stepDead(instanceID, kind, now)
		}
	}
}

func (l *Loop) nearestPlayerInRange(mapID string, pos game.Position, radius int) (int64, game.Position, bool) {
	var bestID int64
	var bestPos game.Position
	bestDist := radius + 1
	found := false
	for _, sess := range l.sessions.SessionsOnMap(mapID) {
		rt, err := l.hot.Runtime(context.Background(), sess.PlayerID)
		if err != nil || rt == nil || rt.CurrentHP <= 0 {
			continue
		}
		d := game.ChebyshevDistance(pos, rt.Position)
		if d <= radius && d < bestDist {
			bestID, bestPos, bestDist, found = sess.PlayerID, rt.Position, d, true
		}
	}
	return bestID, bestPos, found
}

func (l *Loop) stepIdle(mapID, instanceID string, kind game.EntityKind, now time.Time) {
	if kind.Aggressive {
		if targetID, _, found := l.nearestPlayerInRange(mapID, l.hot.Entity(instanceID).Position, kind.AggroRange); found {
			l.hot.MutateEntity(instanceID, func(e *game.Entity) {
				e.State = game.EntityAggro
				e.AggroTarget = playerRef(targetID)
			})
			return
		}
	}
	if kind.WanderCadenceTicks > 0 && l.tick%uint64(kind.WanderCadenceTicks) == 0 {
		l.hot.MutateEntity(instanceID, func(e *game.Entity) {
			e.State = game.EntityWandering
			e.LastActionTick = l.tick
		})
	}
}

func (l *Loop) stepWandering(instanceID string, kind game.EntityKind) {
	e := l.hot.Entity(instanceID)
	if e == nil {
		return
	}
	dx, dy := wanderStep(l.rng, e.SpawnPosition, e.Position, e.WanderRadius)
	next := game.Position{MapID: e.MapID, X: e.Position.X + dx, Y: e.Position.Y + dy}
	if dx == 0 && dy == 0 {
		l.hot.MutateEntity(instanceID, func(e *game.Entity) { e.State = game.EntityIdle })
		return
	}
	if !l.maps.Walkable(e.MapID, next.X, next.Y) {
		l.hot.MutateEntity(instanceID, func(e *game.Entity) { e.State = game.EntityIdle })
		return
	}
	l.hot.MutateEntity(instanceID, func(e *game.Entity) {
		e.Position = next
		e.State = game.EntityIdle
	})
	_ = kind
}

func wanderStep(rng *rand.Rand, spawn, current game.Position, radius int) (int, int) {
	candidates := [][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}
	dir := candidates[rng.Intn(len(candidates))]
	next := game.Position{MapID: current.MapID, X: current.X + dir[0], Y: current.Y + dir[1]}
	if game.ChebyshevDistance(spawn, next) > radius {
		return 0, 0
	}
	return dir[0], dir[1]
}

func (l *Loop) stepAggro(mapID, instanceID string, kind game.EntityKind) {
	e := l.hot.Entity(instanceID)
	if e == nil || e.AggroTarget == "" {
		return
	}
	targetID, ok := parsePlayerRef(e.AggroTarget)
	if !ok {
		l.hot.MutateEntity(instanceID, func(e *game.Entity) { e.State = game.EntityIdle; e.AggroTarget = "" })
		return
	}
	rt, err := l.hot.Runtime(context.Background(), targetID)
	if err != nil || rt == nil || rt.CurrentHP <= 0 {
		l.hot.MutateEntity(instanceID, func(e *game.Entity) { e.State = game.EntityIdle; e.AggroTarget = "" })
		return
	}
	dist := game.ChebyshevDistance(e.Position, rt.Position)
	if dist > kind.DisengageRange {
		l.hot.MutateEntity(instanceID, func(e *game.Entity) { e.State = game.EntityIdle; e.AggroTarget = "" })
		return
	}
	if dist <= 1 {
		l.hot.MutateEntity(instanceID, func(e *game.Entity) { e.State = game.EntityAttacking })
		return
	}
	dx, dy := stepToward(e.Position, rt.Position)
	next := game.Position{MapID: mapID, X: e.Position.X + dx, Y: e.Position.Y + dy}
	if l.maps.Walkable(mapID, next.X, next.Y) {
		l.hot.MutateEntity(instanceID, func(e *game.Entity) { e.Position = next })
	}
}

func stepToward(from, to game.Position) (int, int) {
	dx, dy := 0, 0
	if to.X > from.X {
		dx = 1
	} else if to.X < from.X {
		dx = -1
	}
	if to.Y > from.Y {
		dy = 1
	} else if to.Y < from.Y {
		dy = -1
	}
	return dx, dy
}

func (l *Loop) stepAttacking(mapID, instanceID string, kind game.EntityKind, now time.Time) {
	e := l.hot.Entity(instanceID)
	if e == nil || e.AggroTarget == "" {
		return
	}
	targetID, ok := parsePlayerRef(e.AggroTarget)
	if !ok {
		return
	}
	rt, err := l.hot.Runtime(context.Background(), targetID)
	if err != nil || rt == nil {
		l.hot.MutateEntity(instanceID, func(e *game.Entity) { e.State = game.EntityIdle; e.AggroTarget = "" })
		return
	}
	if game.ChebyshevDistance(e.Position, rt.Position) > 1 {
		l.hot.MutateEntity(instanceID, func(e *game.Entity) { e.State = game.EntityAggro })
		return
	}
	cadence := attackCadenceTicks(kind.AttackSpeed, l.cfg.TickRate, l.cfg.CombatBaseAttackSpeed)
	if l.tick-e.LastActionTick < cadence {
		return
	}
	l.resolveEntityAttack(mapID, e, kind, targetID, rt, now)
}

func (l *Loop) stepDying(instanceID string) {
	e := l.hot.Entity(instanceID)
	if e == nil {
		return
	}
	if l.tick >= e.DeathTick {
		respawnSeconds := l.cfg.EntityRespawnSeconds
		l.hot.MutateEntity(instanceID, func(e *game.Entity) {
			e.State = game.EntityDead
			e.RespawnAtTick = l.tick + uint64(respawnSeconds)*uint64(l.cfg.TickRate)
		})
	}
}

func (l *Loop) stepDead(instanceID string, kind game.EntityKind, now time.Time) {
	e := l.hot.Entity(instanceID)
	if e == nil || l.tick < e.RespawnAtTick {
		return
	}
	l.hot.MutateEntity(instanceID, func(e *game.Entity) {
		e.Position = e.SpawnPosition
		e.CurrentHP = kind.MaxHP
		e.MaxHP = kind.MaxHP
		e.State = game.EntityIdle
		e.AggroTarget = ""
	})
}

func playerRef(id int64) string {
	return "player:" + formatID(id)
}

func parsePlayerRef(ref string) (int64, bool) {
	const prefix = "player:"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return 0, false
	}
	id, err := strconv.ParseInt(ref[len(prefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (l *Loop) resolveEntityAttack(mapID string, e *game.Entity, kind game.EntityKind, targetID int64, rt *game.Runtime, now time.Time) {
	attackerStats := game.CombatStats{
		AttackLevel: kind.AttackLevel, AttackBonus: kind.AttackBonus,
		DefenceLevel: kind.DefenceLevel, DefenceBonus: kind.DefenceBonus,
		StrengthLevel: kind.StrengthLevel, StrengthBonus: kind.StrengthBonus,
	}
	defenderStats, defenderHP := l.playerCombatStats(targetID, rt)

	result := combat.Resolve(attackerStats, defenderStats, defenderHP, l.rng)

	l.hot.MutateEntity(e.InstanceID, func(e *game.Entity) {
		e.LastActionTick = l.tick
	})

	died := result.DefenderDied
	_ = l.hot.MutateRuntime(context.Background(), targetID, func(r *game.Runtime) bool {
		r.CurrentHP = result.DefenderHP
		return true
	})

	l.broadcastCombatAction("entity", e.InstanceID, "player", targetID, result)

	if died {
		l.handlePlayerDeath(targetID, now)
	}
}

func (l *Loop) playerCombatStats(playerID int64, rt *game.Runtime) (game.CombatStats, int) {
	skills, err := l.hot.Skills(context.Background(), playerID)
	if err != nil {
		skills = game.DefaultSkills()
	}
	eq, err := l.hot.Equipment(context.Background(), playerID)
	if err != nil {
		eq = game.Equipment{}
	}
	stats := game.CombatStats{
		AttackLevel:   skills[game.SkillAttack].Level,
		DefenceLevel:  skills[game.SkillDefence].Level,
		StrengthLevel: skills[game.SkillStrength].Level,
	}
	if weapon := eq[game.SlotWeapon]; weapon != nil {
		if kind, ok := l.itemKinds[weapon.ItemKindID]; ok {
			_ = kind // attack/strength bonuses would be read from kind here if item data carried them
		}
	}
	return stats, rt.CurrentHP
}

func (l *Loop) broadcastCombatAction(attackerType, attackerID, defenderType string, defenderPlayerID int64, result combat.Result) {
	event := wire.CombatActionEvent{
		AttackerType: attackerType, AttackerID: attackerID,
		DefenderType: defenderType, DefenderID: formatID(defenderPlayerID),
		Hit: result.Hit, Damage: result.Damage, DefenderHP: result.DefenderHP, Died: result.DefenderDied,
	}
	msg, err := wire.NewEvent(wire.EventCombatAction, event)
	if err != nil {
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if sess := l.sessions.Lookup(defenderPlayerID); sess != nil {
		l.sessions.BroadcastToMap(sess.MapID, raw)
	}
}
