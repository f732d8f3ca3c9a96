package tick

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"tilerealm/pkg/durable"
	"tilerealm/pkg/game"
	"tilerealm/pkg/hotstate"
	"tilerealm/pkg/mapservice"
	"tilerealm/pkg/session"
	"tilerealm/pkg/visibility"
)

// fakeConn is a no-op session.Conn for tests that never inspect the wire
// bytes, only hot-state side effects.
type fakeConn struct{}

func (fakeConn) WriteMessage(int, []byte) error { return nil }
func (fakeConn) Close() error                   { return nil }

func newTestLoop(t *testing.T) (*Loop, *hotstate.Store, *session.Registry) {
	t.Helper()
	mem := durable.NewMemoryStore()
	hot := hotstate.New(mem, hotstate.DefaultTTLPolicy())
	sessions := session.New()
	maps := mapservice.New(16, logrus.WithField("test", "tick"))
	vis := visibility.New(1024)

	cfg := Config{
		TickRate:              10,
		VisibilityTileRadius:  8,
		DeathAnimTicks:        3,
		EntityRespawnSeconds:  30,
		DeathRespawnDelay:     2 * time.Second,
		CombatBaseAttackSpeed: 2.4,
		SpawnPosition:         game.Position{MapID: "starter_village", X: 5, Y: 5},
		MaxHP:                 10,
	}
	loop := New(cfg, hot, maps, sessions, vis, game.EntityKindTable{}, game.ItemKindTable{}, game.XPTableDefault, rand.New(rand.NewSource(1)))
	return loop, hot, sessions
}

func mustCreatePlayer(t *testing.T, hot *hotstate.Store, username string) int64 {
	t.Helper()
	p, err := hot.CreatePlayer(context.Background(), username, "hashed",
		game.Position{MapID: "starter_village", X: 1, Y: 1}, 10, 28)
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	return p.ID
}

// TestHandlePlayerDeath_MarksDeadWithoutGoroutine verifies death is recorded
// entirely on the hot-state runtime row (Dead + RespawnAt), with no
// background goroutine scheduling the respawn.
func TestHandlePlayerDeath_MarksDeadWithoutGoroutine(t *testing.T) {
	loop, hot, sessions := newTestLoop(t)
	playerID := mustCreatePlayer(t, hot, "alice")
	if err := hot.SetOnline(context.Background(), playerID, true, hotstate.DefaultTTLPolicy()); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	sess := sessions.Open(playerID, "alice", "starter_village", fakeConn{})
	defer sess.Close()

	now := time.Unix(1000, 0)
	loop.handlePlayerDeath(playerID, now)

	rt, err := hot.Runtime(context.Background(), playerID)
	if err != nil {
		t.Fatalf("Runtime: %v", err)
	}
	if !rt.Dead {
		t.Fatal("expected runtime to be marked dead")
	}
	wantRespawnAt := now.Add(2 * time.Second)
	if !rt.RespawnAt.Equal(wantRespawnAt) {
		t.Fatalf("expected RespawnAt %v, got %v", wantRespawnAt, rt.RespawnAt)
	}
	if rt.InCombat() {
		t.Fatal("expected combat target cleared on death")
	}

	// Not due yet: RespawnIfDue must be a no-op.
	if loop.RespawnIfDue(playerID, now.Add(time.Second)) {
		t.Fatal("expected RespawnIfDue to be a no-op before the delay elapses")
	}
	rt, _ = hot.Runtime(context.Background(), playerID)
	if !rt.Dead {
		t.Fatal("player should still be dead before the delay elapses")
	}
}

// TestRespawnIfDue_AppliesAfterDelay confirms the respawn is driven purely
// by comparing 'now' against the hot-state RespawnAt field, which is what
// lets a disconnected player respawn while offline and see it on next login.
func TestRespawnIfDue_AppliesAfterDelay(t *testing.T) {
	loop, hot, sessions := newTestLoop(t)
	playerID := mustCreatePlayer(t, hot, "bob")
	if err := hot.SetOnline(context.Background(), playerID, true, hotstate.DefaultTTLPolicy()); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	sess := sessions.Open(playerID, "bob", "starter_village", fakeConn{})
	defer sess.Close()

	now := time.Unix(2000, 0)
	loop.handlePlayerDeath(playerID, now)

	due := now.Add(2 * time.Second)
	if !loop.RespawnIfDue(playerID, due) {
		t.Fatal("expected respawn to apply once RespawnAt has passed")
	}

	rt, err := hot.Runtime(context.Background(), playerID)
	if err != nil {
		t.Fatalf("Runtime: %v", err)
	}
	if rt.Dead {
		t.Fatal("expected player to no longer be dead after respawn")
	}
	if rt.Position != loop.cfg.SpawnPosition {
		t.Fatalf("expected respawn position %v, got %v", loop.cfg.SpawnPosition, rt.Position)
	}
	if rt.CurrentHP != loop.cfg.MaxHP {
		t.Fatalf("expected full HP on respawn, got %d", rt.CurrentHP)
	}

	// Idempotent: calling again once already alive is a no-op.
	if loop.RespawnIfDue(playerID, due.Add(time.Hour)) {
		t.Fatal("expected RespawnIfDue to be a no-op once already respawned")
	}
}

// TestRunRespawnTick_DrivesRespawnWithoutHandlerInvolvement exercises the
// tick-loop integration: RunOnce's respawn step must pick up a due respawn
// for every online player without any command handler calling in.
func TestRunRespawnTick_DrivesRespawnWithoutHandlerInvolvement(t *testing.T) {
	loop, hot, sessions := newTestLoop(t)
	playerID := mustCreatePlayer(t, hot, "carol")
	if err := hot.SetOnline(context.Background(), playerID, true, hotstate.DefaultTTLPolicy()); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	sess := sessions.Open(playerID, "carol", "starter_village", fakeConn{})
	defer sess.Close()

	now := time.Unix(3000, 0)
	loop.handlePlayerDeath(playerID, now)
	loop.runRespawnTick(now.Add(3 * time.Second))

	rt, err := hot.Runtime(context.Background(), playerID)
	if err != nil {
		t.Fatalf("Runtime: %v", err)
	}
	if rt.Dead {
		t.Fatal("expected runRespawnTick to clear the dead flag once due")
	}
}
