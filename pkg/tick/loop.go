// Package tick drives all time-dependent world state at a fixed cadence
// (§4.3): entity AI, combat auto-attacks, ground-item despawn, death/respawn
// progression, and the per-player visibility diff broadcast. It is the one
// place outside command handlers that mutates hot state.
package tick

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"tilerealm/pkg/game"
	"tilerealm/pkg/hotstate"
	"tilerealm/pkg/mapservice"
	"tilerealm/pkg/session"
	"tilerealm/pkg/visibility"
	"tilerealm/pkg/wire"
)

// Config bundles the tunables the loop needs from the server configuration.
type Config struct {
	TickRate             int
	VisibilityTileRadius int
	DeathAnimTicks       int
	EntityRespawnSeconds int
	DeathRespawnDelay    time.Duration
	CombatBaseAttackSpeed float64
	SpawnPosition        game.Position
	MaxHP                int
}

// Loop is the tick-loop driver; its dependencies are every leaf package
// built so far (§2 "Dependency order").
type Loop struct {
	cfg        Config
	hot        *hotstate.Store
	maps       *mapservice.Service
	sessions   *session.Registry
	visibility *visibility.Engine
	entityKinds game.EntityKindTable
	itemKinds   game.ItemKindTable
	xp          *game.XPTable
	rng        *rand.Rand
	logger     *logrus.Entry

	tick uint64
}

// New constructs a Loop. rng should be a process-wide source; combat
// resolution is the only place randomness is drawn.
func New(cfg Config, hot *hotstate.Store, maps *mapservice.Service, sessions *session.Registry,
	vis *visibility.Engine, entityKinds game.EntityKindTable, itemKinds game.ItemKindTable,
	xp *game.XPTable, rng *rand.Rand) *Loop {
	return &Loop{
		cfg: cfg, hot: hot, maps: maps, sessions: sessions, visibility: vis,
		entityKinds: entityKinds, itemKinds: itemKinds, xp: xp, rng: rng,
		logger: logrus.WithField("component", "tick.Loop"),
	}
}

// Run executes the fixed-cadence loop until ctx is canceled. On exit it
// synchronously flushes all dirty hot-state buckets (§4.3 Cancellation).
func (l *Loop) Run(ctx context.Context) {
	period := time.Second / time.Duration(l.cfg.TickRate)
	if period <= 0 {
		period = 50 * time.Millisecond
	}
	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.hot.FlushOnce(context.Background())
			return
		case start := <-timer.C:
			l.RunOnce(time.Now())
			elapsed := time.Since(start)
			next := period - elapsed
			if next <= 0 {
				l.logger.WithField("overrun", elapsed).Warn("tick overran its period")
				next = 0
			}
			timer.Reset(next)
		}
	}
}

// RunOnce executes one tick: entity AI (which also moves dying entities to
// dead and respawns dead ones), the player combat tick, player respawns, the
// ground-item sweep, then the per-player visibility broadcast. Entity death
// progression and respawn run inside the AI step, before the combat tick,
// not as separate steps after the ground-item sweep.
func (l *Loop) RunOnce(now time.Time) {
	l.tick++
	mapIDs := l.sessions.MapIDs()

	for _, mapID := range mapIDs {
		l.runEntityAI(mapID, now)
	}
	l.runCombatTick(now)
	l.runRespawnTick(now)
	for _, mapID := range l.hot.GroundItemMapIDs() {
		l.sweepGroundItems(mapID, now)
	}
	for _, mapID := range mapIDs {
		l.broadcastVisibility(mapID, now)
	}
}

// CurrentTick returns the monotonically increasing global tick counter.
func (l *Loop) CurrentTick() uint64 {
	return l.tick
}

func (l *Loop) broadcastVisibility(mapID string, now time.Time) {
	if _, ok := l.maps.Get(mapID); !ok {
		return
	}

	entities := l.hot.EntitiesOnMap(mapID)
	groundItems, err := l.hot.GroundItemsOnMap(context.Background(), mapID)
	if err != nil {
		l.logger.WithError(err).WithField("map_id", mapID).Warn("visibility: loading ground items failed")
		groundItems = nil
	}

	sessions := l.sessions.SessionsOnMap(mapID)
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].PlayerID < sessions[j].PlayerID })
	playerPositions := make(map[int64]game.Position, len(sessions))
	for _, sess := range sessions {
		if rt, err := l.hot.Runtime(context.Background(), sess.PlayerID); err == nil && rt != nil {
			playerPositions[sess.PlayerID] = rt.Position
		}
	}

	for _, sess := range sessions {
		viewerPos, ok := playerPositions[sess.PlayerID]
		if !ok {
			continue
		}
		visibleNow := make(map[string]wire.EntityPayload)

		for otherID, pos := range playerPositions {
			if otherID == sess.PlayerID {
				continue
			}
			if game.ChebyshevDistance(viewerPos, pos) > l.cfg.VisibilityTileRadius {
				continue
			}
			rt, err := l.hot.Runtime(context.Background(), otherID)
			if err != nil || rt == nil {
				continue
			}
			id := "player:" + strconv.FormatInt(otherID, 10)
			visibleNow[id] = wire.EntityPayload{
				ID: id, Kind: "player", Position: rt.Position,
				HP: rt.CurrentHP, MaxHP: rt.MaxHP, IsAttackable: false,
			}
		}

		for _, e := range entities {
			if !e.Visible() {
				continue
			}
			if game.ChebyshevDistance(viewerPos, e.Position) > l.cfg.VisibilityTileRadius {
				continue
			}
			kind := l.entityKinds[e.KindID]
			id := "entity:" + e.InstanceID
			visibleNow[id] = wire.EntityPayload{
				ID: id, Kind: e.KindID, Position: e.Position,
				HP: e.CurrentHP, MaxHP: e.MaxHP, State: e.State.String(),
				IsAttackable: e.IsAttackable(kind),
			}
		}

		for _, item := range groundItems {
			if !item.VisibleTo(sess.PlayerID, now) {
				continue
			}
			if game.ChebyshevDistance(viewerPos, item.Position) > l.cfg.VisibilityTileRadius {
				continue
			}
			id := "ground_item:" + strconv.FormatInt(item.ID, 10)
			visibleNow[id] = wire.EntityPayload{
				ID: id, Kind: "ground_item", Position: item.Position,
				Quantity: item.Quantity,
			}
		}

		diff := l.visibility.Update(sess.PlayerID, visibleNow)
		if len(diff.Added) == 0 && len(diff.Updated) == 0 && len(diff.Removed) == 0 {
			continue
		}
		event := wire.StateUpdateEvent{
			Entities:        append(diff.Added, diff.Updated...),
			RemovedEntities: diff.Removed,
			MapID:           mapID,
		}
		msg, err := wire.NewEvent(wire.EventStateUpdate, event)
		if err != nil {
			continue
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		sess.Send(raw)
	}
}

