package server

import (
	"context"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"tilerealm/pkg/config"
	"tilerealm/pkg/durable"
	"tilerealm/pkg/game"
	"tilerealm/pkg/hotstate"
	"tilerealm/pkg/mapservice"
	"tilerealm/pkg/ratelimit"
	"tilerealm/pkg/session"
	"tilerealm/pkg/tick"
	"tilerealm/pkg/visibility"
)

// Dependencies bundles everything NewRPCServer needs that isn't derived
// purely from cfg — the reference-data tables and the already-connected
// durable store, both of which main() loads before constructing the server.
type Dependencies struct {
	DurableStore durable.Store
	Maps         map[string]*game.StaticMap
	ItemKinds    game.ItemKindTable
	EntityKinds  game.EntityKindTable
}

// NewRPCServer wires every manager the spec names into one root (§9), in
// dependency order: hot-state cache over the durable store, static map
// cache, session registry, per-player locks and rate limiter, visibility
// engine, and finally the tick loop that drives them all.
func NewRPCServer(cfg *config.Config, deps Dependencies) (*RPCServer, error) {
	logger := logrus.WithField("component", "server.RPCServer")

	hot := hotstate.New(deps.DurableStore, hotstate.TTLPolicy{
		Online:  cfg.HotStateOnlineTTL,
		Offline: cfg.HotStateOfflineTTL,
	})

	maps := mapservice.New(cfg.MapChunkSize, logrus.WithField("component", "mapservice.Service"))
	for _, m := range deps.Maps {
		maps.Load(m)
	}
	seedStaticEntities(hot, maps, deps.Maps, deps.EntityKinds, logger)

	sessions := session.New()
	vis := visibility.New(cfg.MaxPlayers)

	xp := game.NewXPTable(1.0)

	spawnMapID, spawnX, spawnY := cfg.SpawnPosition()
	tickCfg := tick.Config{
		TickRate:              cfg.TickRate,
		VisibilityTileRadius:   cfg.VisibilityTileRadius,
		DeathAnimTicks:         cfg.DeathAnimTicks,
		EntityRespawnSeconds:   cfg.EntityRespawnSeconds,
		DeathRespawnDelay:      cfg.DeathRespawnDelay,
		CombatBaseAttackSpeed:  cfg.CombatBaseAttackSpeed,
		SpawnPosition:          game.Position{MapID: spawnMapID, X: spawnX, Y: spawnY},
		MaxHP:                  cfg.MaxHP,
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	loop := tick.New(tickCfg, hot, maps, sessions, vis, deps.EntityKinds, deps.ItemKinds, xp, rng)

	metrics := NewMetrics()
	srv := &RPCServer{
		config:       cfg,
		logger:       logger,
		durableStore: deps.DurableStore,
		hot:          hot,
		maps:         maps,
		sessions:     sessions,
		locks:        NewPlayerLocks(),
		rateLimiter:  ratelimit.New(),
		visibility:   vis,
		tickLoop:     loop,
		itemKinds:    deps.ItemKinds,
		entityKinds:  deps.EntityKinds,
		xp:           xp,
		metrics:      metrics,
		profiling:    NewProfilingServer(ProfilingConfig{Enabled: cfg.EnableProfiling, Path: "/debug/pprof"}),
		perfMonitor:  NewPerformanceMonitor(metrics, cfg.MetricsInterval),
		httpLimiter:  NewRateLimiter(cfg),
		webDir:       cfg.WebDir,
		fileServer:   http.FileServer(http.Dir(cfg.WebDir)),
		startTime:    time.Now(),
		done:         make(chan struct{}),
	}
	srv.perfAlerter = NewPerformanceAlerter(DefaultAlertThresholds(), &LogAlertHandler{}, metrics)
	srv.health = NewHealthChecker(srv)
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return cfg.OriginAllowed(r.Header.Get("Origin"))
		},
	}
	srv.buildDispatch()

	return srv, nil
}

// seedStaticEntities populates hot state with one live Entity per
// entity_spawn object-layer entry in every loaded map (§4.9, §6), so the
// world is populated with NPCs before the first player connects.
func seedStaticEntities(hot *hotstate.Store, maps *mapservice.Service, staticMaps map[string]*game.StaticMap, kinds game.EntityKindTable, logger *logrus.Entry) {
	for mapID := range staticMaps {
		spawns, err := maps.EntitySpawns(mapID)
		if err != nil {
			logger.WithError(err).WithField("map_id", mapID).Warn("reading entity spawns failed")
			continue
		}
		for _, spawn := range spawns {
			kind, ok := kinds[spawn.EntityKindID]
			if !ok {
				logger.WithField("map_id", mapID).WithField("kind_id", spawn.EntityKindID).Warn("unknown entity kind in map spawn data, skipping")
				continue
			}
			hot.SpawnEntity(&game.Entity{
				InstanceID:    mapID + ":" + spawn.ID,
				KindID:        spawn.EntityKindID,
				MapID:         mapID,
				Position:      spawn.Position,
				SpawnPosition: spawn.Position,
				SpawnPointID:  spawn.ID,
				WanderRadius:  spawn.WanderRadius,
				CurrentHP:     kind.MaxHP,
				MaxHP:         kind.MaxHP,
				State:         game.EntityIdle,
			})
		}
	}
}

// Serve starts the tick loop, the background monitors, and the HTTP/WS
// listener, blocking until the listener stops or ctx is canceled.
func (s *RPCServer) Serve(ctx context.Context, listener net.Listener) error {
	tickCtx, cancelTick := context.WithCancel(ctx)
	go s.tickLoop.Run(tickCtx)
	go s.hot.RunFlusher(tickCtx, s.config.HotStateFlushInterval)
	go s.perfMonitor.Start()
	if s.config.AlertingEnabled {
		go s.perfAlerter.Start(tickCtx)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := RequestIDMiddleware(LoggingMiddleware(RecoveryMiddleware(
		RateLimitingMiddleware(s.httpLimiter)(CORSMiddleware(s.config.AllowedOrigins)(mux)))))

	s.mu.Lock()
	s.addr = listener.Addr()
	s.httpServer = &http.Server{
		Handler:      handler,
		ReadTimeout:  s.config.RequestTimeout,
		WriteTimeout: s.config.RequestTimeout,
	}
	s.mu.Unlock()

	s.logger.WithField("addr", listener.Addr().String()).Info("server listening")

	err := s.httpServer.Serve(listener)
	cancelTick()
	s.perfMonitor.Stop()
	if s.config.AlertingEnabled {
		s.perfAlerter.Stop()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// registerRoutes mounts the WebSocket endpoint, the auth/appearance HTTP
// surface (§6), health/metrics/profiling, and the static asset file server.
func (s *RPCServer) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/auth/register", s.handleRegister)
	mux.HandleFunc("/auth/login", s.handleLogin)
	mux.HandleFunc("/appearance/options", s.handleAppearanceOptions)

	mux.HandleFunc("/healthz", s.health.HealthHandler)
	mux.HandleFunc("/readyz", s.health.ReadinessHandler)
	mux.HandleFunc("/livez", s.health.LivenessHandler)
	mux.Handle("/metrics", s.metrics.GetHandler())

	if s.config.EnableProfiling {
		mux.HandleFunc("/debug/pprof/", func(w http.ResponseWriter, r *http.Request) {
			http.DefaultServeMux.ServeHTTP(w, r)
		})
	}

	mux.Handle("/", s.fileServer)
}

// Shutdown stops accepting new HTTP work (bounded by cfg.ShutdownTimeout),
// flushes hot state, and closes the HTTP rate limiter and the durable store
// (§4.3 Cancellation). It does not close open WebSocket sessions.
func (s *RPCServer) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.closeOnce.Do(func() {
		close(s.done)

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			shutdownErr = s.httpServer.Shutdown(shutdownCtx)
		}

		s.hot.FlushOnce(context.Background())
		s.httpLimiter.Close()
		s.durableStore.Close()
	})
	return shutdownErr
}
