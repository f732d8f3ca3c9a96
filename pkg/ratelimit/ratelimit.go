// Package ratelimit implements the per-player, per-operation protocol-abuse
// guard from §4.6. It is deliberately distinct from the in-game cooldowns
// (movement, combat) enforced by the command handlers themselves: this
// package stops a client from spamming the wire, the handlers stop a
// player from moving or attacking faster than the game's mechanics allow.
//
// Grounded on original_source/server/src/api/helpers/rate_limiter.py's
// OperationRateLimiter: a per-player map of last-operation timestamps, a
// zero-cooldown-always-allows rule, and a disconnect sweep.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks the last time each player performed each rate-limited
// operation.
type Limiter struct {
	mu   sync.Mutex
	last map[int64]map[string]time.Time
}

// New returns an empty Limiter.
func New() *Limiter {
	return &Limiter{last: make(map[int64]map[string]time.Time)}
}

// Allow reports whether playerID may perform op right now given cooldown,
// and if so records now as the new last-performed time. A zero cooldown
// always allows, matching the Python original's explicit fast path.
func (l *Limiter) Allow(playerID int64, op string, cooldown time.Duration, now time.Time) (bool, time.Duration) {
	if cooldown <= 0 {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ops, ok := l.last[playerID]
	if !ok {
		ops = make(map[string]time.Time)
		l.last[playerID] = ops
	}

	last, seen := ops[op]
	if !seen {
		ops[op] = now
		return true, 0
	}

	elapsed := now.Sub(last)
	if elapsed >= cooldown {
		ops[op] = now
		return true, 0
	}

	return false, cooldown - elapsed
}

// DropPlayer removes a player's row entirely, called from the session-layer
// disconnect path (§4.6 "On disconnect, a player's row is dropped").
func (l *Limiter) DropPlayer(playerID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.last, playerID)
}
