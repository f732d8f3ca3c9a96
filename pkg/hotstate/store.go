// Package hotstate is the single source of truth for all mutable live game
// state (§4.1): player runtime and durable-mirrored fields, inventory,
// equipment, skills, entity instances, and ground items. It is a two-tier
// cache in front of pkg/durable — reads go to cache first and transparently
// load-through on miss; writes go to cache and mark a dirty bucket that the
// background flusher later drains to the durable store.
package hotstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tilerealm/pkg/durable"
	"tilerealm/pkg/game"
	"tilerealm/pkg/resilience"
	"tilerealm/pkg/retry"
)

// TTLPolicy controls how long a loaded-from-durable player record stays
// warm in cache before the next access must reload it (§4.1 TTL policy).
type TTLPolicy struct {
	Online  time.Duration // refresh-on-access TTL while a player is connected
	Offline time.Duration // TTL for auto-loaded, currently-disconnected players
}

// DefaultTTLPolicy matches the spec's stated defaults: ~5 minutes online,
// ~hours offline, so a typical re-login finds a warm cache.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Online:  5 * time.Minute,
		Offline: 4 * time.Hour,
	}
}

type playerEntry struct {
	player    game.Player
	runtime   game.Runtime
	skills    game.Skills
	inventory game.Inventory
	equipment game.Equipment
	expiresAt time.Time
}

func (e *playerEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// dirtySet is a small id-set used for every per-category dirty bucket.
type dirtySet map[int64]struct{}

func (d dirtySet) add(id int64)    { d[id] = struct{}{} }
func (d dirtySet) drain() []int64 {
	ids := make([]int64, 0, len(d))
	for id := range d {
		ids = append(ids, id)
		delete(d, id)
	}
	return ids
}

// Store is the hot-state cache. All exported methods are safe for
// concurrent use; callers never receive a reference into cache-owned
// memory (every read returns a clone).
type Store struct {
	mu sync.RWMutex

	players     map[int64]*playerEntry
	usernameIdx map[string]int64
	entities    map[string]*game.Entity   // instance id -> entity
	entitiesBy  map[string]map[string]bool // map id -> set of instance ids
	ground      map[string]map[int64]*game.GroundItem // map id -> id -> item

	dirtyPosition  dirtySet
	dirtyInventory dirtySet
	dirtyEquipment dirtySet
	dirtySkills    dirtySet
	dirtyGround    map[string]map[int64]bool // map id -> set of dirty item ids; true means "delete"

	ttl     TTLPolicy
	durable durable.Store
	breaker *resilience.CircuitBreaker
	logger  *logrus.Entry
}

// New constructs a Store backed by the given durable tier.
func New(store durable.Store, ttl TTLPolicy) *Store {
	return &Store{
		players:        make(map[int64]*playerEntry),
		usernameIdx:    make(map[string]int64),
		entities:       make(map[string]*game.Entity),
		entitiesBy:     make(map[string]map[string]bool),
		ground:         make(map[string]map[int64]*game.GroundItem),
		dirtyPosition:  make(dirtySet),
		dirtyInventory: make(dirtySet),
		dirtyEquipment: make(dirtySet),
		dirtySkills:    make(dirtySet),
		dirtyGround:    make(map[string]map[int64]bool),
		ttl:            ttl,
		durable:        store,
		breaker:        resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("hotstate-durable")),
		logger:         logrus.WithField("component", "hotstate.Store"),
	}
}

// transact runs fn under the store's write lock with retry-on-conflict
// semantics (§4.1 Atomicity). fn must not call back into Store, since the
// lock is already held; it returns ErrConflict to request a retry, or any
// other error to abort.
func (s *Store) transact(ctx context.Context, fn func() error) error {
	retrier := retry.NewRetrier(retry.HotStateRetryConfig())
	var abortErr error
	err := retrier.Execute(ctx, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		err := fn()
		if err != nil && !errors.Is(err, ErrConflict) {
			abortErr = err
			return nil
		}
		return err
	})
	if abortErr != nil {
		return abortErr
	}
	return err
}

// ErrConflict signals an optimistic-concurrency conflict inside a
// transact() callback; transact retries it up to HotStateRetryConfig's
// MaxAttempts, while any other error aborts at once.
var ErrConflict = fmt.Errorf("hotstate: optimistic concurrency conflict")

func (s *Store) markDirty(position, inventory, equipment, skills bool, playerID int64) {
	if position {
		s.dirtyPosition.add(playerID)
	}
	if inventory {
		s.dirtyInventory.add(playerID)
	}
	if equipment {
		s.dirtyEquipment.add(playerID)
	}
	if skills {
		s.dirtySkills.add(playerID)
	}
}

func (s *Store) markGroundDirty(mapID string, itemID int64, deleted bool) {
	byMap, ok := s.dirtyGround[mapID]
	if !ok {
		byMap = make(map[int64]bool)
		s.dirtyGround[mapID] = byMap
	}
	byMap[itemID] = deleted
}
