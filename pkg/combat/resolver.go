// Package combat implements the deterministic-except-for-two-draws attack
// resolution formulas from §4.7, grounded on the classic RuneScape hit/damage
// model the spec names explicitly.
package combat

import (
	"math/rand"

	"tilerealm/pkg/game"
)

// Result is the outcome of a single resolved attack.
type Result struct {
	Hit           bool
	Damage        int
	DefenderHP    int
	DefenderDied  bool
	AttackRoll    float64
	DefenceRoll   float64
	HitChance     float64
	MaxHit        int
}

// AttackRoll computes the attacker's effective offensive roll (§4.7).
func AttackRoll(a game.CombatStats) float64 {
	return float64(a.AttackLevel+a.AttackBonus+8) * float64(64+a.AttackBonus) / 64.0
}

// DefenceRoll computes the defender's effective defensive roll (§4.7).
func DefenceRoll(d game.CombatStats) float64 {
	return float64(d.DefenceLevel+d.DefenceBonus+8) * float64(64+d.DefenceBonus) / 64.0
}

// HitChance clamps the attack/defence ratio into [0.05, 0.95] per §4.7.
func HitChance(attackRoll, defenceRoll float64) float64 {
	chance := attackRoll / (attackRoll + defenceRoll)
	if chance < 0.05 {
		return 0.05
	}
	if chance > 0.95 {
		return 0.95
	}
	return chance
}

// MaxHit computes the attacker's maximum possible hit (§4.7); never less
// than 1.
func MaxHit(a game.CombatStats) int {
	hit := (a.StrengthLevel*(a.StrengthBonus+64) + 320) / 640
	if hit < 1 {
		return 1
	}
	return hit
}

// Resolve performs one attack: the two explicit random draws the spec
// calls out (hit/miss, then damage roll), applied against the defender's
// current HP. rng is injected so tests can supply a deterministic source.
func Resolve(attacker, defender game.CombatStats, defenderCurrentHP int, rng *rand.Rand) Result {
	attackRoll := AttackRoll(attacker)
	defenceRoll := DefenceRoll(defender)
	hitChance := HitChance(attackRoll, defenceRoll)
	maxHit := MaxHit(attacker)

	r1 := rng.Float64()
	hit := r1 < hitChance

	damage := 0
	if hit {
		damage = rng.Intn(maxHit + 1)
	}

	newHP := defenderCurrentHP - damage
	if newHP < 0 {
		newHP = 0
	}

	return Result{
		Hit:          hit,
		Damage:       damage,
		DefenderHP:   newHP,
		DefenderDied: newHP == 0,
		AttackRoll:   attackRoll,
		DefenceRoll:  defenceRoll,
		HitChance:    hitChance,
		MaxHit:       maxHit,
	}
}

// AttackXP is the Attack/Strength/Hitpoints XP a player attacker earns for
// one resolved attack (§4.7 step 5). No XP is awarded on a zero-damage hit.
func AttackXP(damage int) (attack, strength, hitpoints int) {
	if damage <= 0 {
		return 0, 0, 0
	}
	attack = 4 * damage
	strength = 4 * damage
	hitpoints = (4 * damage) / 3
	return
}

// DefenceXPOnDodge is the small flat Defence XP a defender earns when they
// avoid a hit entirely, per the complementary defensive-XP rule §4.7 notes
// exists in the reference test suite.
const DefenceXPOnDodge = 2

// HitpointsXPOnHit is the minimum Hitpoints XP (>= 1) a defender earns when
// they are successfully hit, independent of the attacker's own award.
func HitpointsXPOnHit(damage int) int {
	xp := damage / 3
	if xp < 1 {
		return 1
	}
	return xp
}
