// Package visibility implements the per-player "last seen" cache and diff
// computation from §4.4: each tick the tick loop hands the engine the set
// of entities currently visible to a player, and gets back added/updated/
// removed sets relative to what was last sent.
package visibility

import (
	"bytes"
	"encoding/json"
	"sync"

	"tilerealm/pkg/wire"
)

// Diff is the result of one update() call.
type Diff struct {
	Added   []wire.EntityPayload
	Updated []wire.EntityPayload
	Removed []string
}

// Engine holds one bounded last-seen snapshot per online player.
type Engine struct {
	mu       sync.Mutex
	snapshots map[int64]map[string]entry
	order    []int64 // LRU order, most-recently-touched at the end
	maxSize  int
}

type entry struct {
	payload wire.EntityPayload
	raw     []byte // canonical JSON for byte-level comparison
}

// New returns an Engine bounded to maxSize concurrent player snapshots
// (default = config.MaxPlayers, per §4.4).
func New(maxSize int) *Engine {
	if maxSize <= 0 {
		maxSize = 2000
	}
	return &Engine{
		snapshots: make(map[int64]map[string]entry),
		maxSize:   maxSize,
	}
}

// Update computes the diff between visibleNow and the player's last
// snapshot, replacing the stored snapshot with visibleNow.
func (e *Engine) Update(playerID int64, visibleNow map[string]wire.EntityPayload) Diff {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev, existed := e.snapshots[playerID]
	if !existed {
		e.evictIfNeeded()
		prev = make(map[string]entry)
	}

	next := make(map[string]entry, len(visibleNow))
	var diff Diff

	for id, payload := range visibleNow {
		raw, _ := json.Marshal(payload)
		next[id] = entry{payload: payload, raw: raw}

		old, hadOld := prev[id]
		switch {
		case !hadOld:
			diff.Added = append(diff.Added, payload)
		case !bytes.Equal(old.raw, raw):
			diff.Updated = append(diff.Updated, payload)
		}
	}

	for id := range prev {
		if _, stillVisible := visibleNow[id]; !stillVisible {
			diff.Removed = append(diff.Removed, id)
		}
	}

	e.snapshots[playerID] = next
	e.touch(playerID)

	return diff
}

// Snapshot returns a deep copy of the player's last-seen set (§4.4
// "reads return a deep copy, not a reference").
func (e *Engine) Snapshot(playerID int64) map[string]wire.EntityPayload {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, ok := e.snapshots[playerID]
	if !ok {
		return nil
	}
	out := make(map[string]wire.EntityPayload, len(src))
	for id, ent := range src {
		out[id] = ent.payload
	}
	return out
}

// Remove frees a disconnected player's entry (§4.4 "a remove(player-id)
// entry point must be called from the session-layer disconnect path").
func (e *Engine) Remove(playerID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.snapshots, playerID)
	for i, id := range e.order {
		if id == playerID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

func (e *Engine) touch(playerID int64) {
	for i, id := range e.order {
		if id == playerID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.order = append(e.order, playerID)
}

func (e *Engine) evictIfNeeded() {
	for len(e.snapshots) >= e.maxSize && len(e.order) > 0 {
		oldest := e.order[0]
		e.order = e.order[1:]
		delete(e.snapshots, oldest)
	}
}
