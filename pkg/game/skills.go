package game

import "math"

// SkillKind names one trainable skill. Attack/Strength/Defence/Hitpoints
// drive combat (§4.7); the rest are reference-data-only for now but share
// the same XP table and level invariants.
type SkillKind string

const (
	SkillAttack     SkillKind = "attack"
	SkillStrength   SkillKind = "strength"
	SkillDefence    SkillKind = "defence"
	SkillHitpoints  SkillKind = "hitpoints"
	SkillMining     SkillKind = "mining"
	SkillWoodcutting SkillKind = "woodcutting"
	SkillFishing    SkillKind = "fishing"
)

// MaxLevel is the ceiling every skill clamps to once its XP table is exhausted.
const MaxLevel = 99

// Skill is one entry of a player's skill set: durable level/xp pair.
type Skill struct {
	Level int `json:"level"`
	XP    int `json:"xp"`
}

// Skills is a player's full skill set, keyed by kind.
type Skills map[SkillKind]Skill

// Clone returns a deep copy for safe hand-off out of the hot-state cache.
func (s Skills) Clone() Skills {
	out := make(Skills, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// DefaultSkills returns a fresh skill set for a newly created player:
// every skill at level 1 except Hitpoints, which starts at 10 per §3.
func DefaultSkills() Skills {
	s := make(Skills, len(defaultSkillKinds))
	for _, kind := range defaultSkillKinds {
		if kind == SkillHitpoints {
			s[kind] = Skill{Level: 10, XP: XPTableDefault.XPForLevel(10)}
			continue
		}
		s[kind] = Skill{Level: 1, XP: 0}
	}
	return s
}

var defaultSkillKinds = []SkillKind{
	SkillAttack, SkillStrength, SkillDefence, SkillHitpoints,
	SkillMining, SkillWoodcutting, SkillFishing,
}

// CombatLevel computes the classic RuneScape-derived melee combat level from
// attack, strength, defence, and hitpoints, for QUERY_STATS (§4.5.5).
func (s Skills) CombatLevel() int {
	defence := s[SkillDefence].Level
	hitpoints := s[SkillHitpoints].Level
	attack := s[SkillAttack].Level
	strength := s[SkillStrength].Level

	base := 0.25 * float64(defence+hitpoints)
	melee := 0.325 * float64(attack+strength)
	return int(math.Floor(base + melee))
}

// XPTable is the classic RuneScape-derived level/xp lookup table, precomputed
// once and scaled by a per-skill multiplier.
//
// xp(L) = floor( sum_{i=1..L-1} floor(i + 300*2^(i/7)) / 4 )
type XPTable struct {
	multiplier   float64
	xpForLevel   []int // xpForLevel[L] = cumulative xp required to reach level L (1-indexed, index 0 unused)
}

// XPTableDefault is the multiplier=1.0 table used for hitpoints seeding and
// any skill without an explicit multiplier configured.
var XPTableDefault = NewXPTable(1.0)

// NewXPTable precomputes the prefix-sum xp table for a given multiplier.
func NewXPTable(multiplier float64) *XPTable {
	t := &XPTable{multiplier: multiplier}
	t.xpForLevel = make([]int, MaxLevel+1)
	total := 0.0
	for level := 1; level < MaxLevel; level++ {
		points := float64(level) + 300.0*math.Pow(2, float64(level)/7.0)
		total += math.Floor(points) / 4.0
		t.xpForLevel[level+1] = int(math.Floor(total) * multiplier)
	}
	return t
}

// XPForLevel returns the cumulative xp required to reach the given level.
// xp(1) = 0 by construction.
func (t *XPTable) XPForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return t.xpForLevel[level]
}

// LevelForXP is a binary search over the precomputed table returning the
// highest level whose threshold is <= xp, clamped to [1, MaxLevel].
func (t *XPTable) LevelForXP(xp int) int {
	lo, hi := 1, MaxLevel
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if t.XPForLevel(mid) <= xp {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// XPToNextLevel returns how much more xp is needed to reach level+1, or 0
// once MaxLevel is reached.
func (t *XPTable) XPToNextLevel(xp int) int {
	level := t.LevelForXP(xp)
	if level >= MaxLevel {
		return 0
	}
	next := t.XPForLevel(level + 1)
	remaining := next - xp
	if remaining < 0 {
		return 0
	}
	return remaining
}
