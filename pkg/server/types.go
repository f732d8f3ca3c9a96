package server

import (
	"net"
	"net/http"
	"sync"
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
	"tilerealm/pkg/wire"
)

// RPCServer is the process-wide root: every manager the spec names (§9
// "explicit managers held in a root context") as a field, plus the HTTP/WS
// transport that exposes them. Handlers and the command dispatch table are
// methods on this type; the tick loop and hot-state store are the only
// other things that mutate game state.
type RPCServer struct {
	mu sync.RWMutex

	config *config.Config
	logger *logrus.Entry

	durableStore durable.Store
	hot          *hotstate.Store
	maps         *mapservice.Service
	sessions     *session.Registry
	locks        *PlayerLocks
	rateLimiter  *ratelimit.Limiter
	visibility   *visibility.Engine
	tickLoop     *tick.Loop

	itemKinds   game.ItemKindTable
	entityKinds game.EntityKindTable
	xp          *game.XPTable

	metrics       *Metrics
	health        *HealthChecker
	profiling     *ProfilingServer
	perfMonitor   *PerformanceMonitor
	perfAlerter   *PerformanceAlerter
	httpLimiter   *RateLimiter

	upgrader websocket.Upgrader

	webDir     string
	fileServer http.Handler

	httpServer *http.Server
	startTime  time.Time
	addr       net.Addr
	done       chan struct{}
	closeOnce  sync.Once

	dispatch map[wire.MessageType]commandHandler
}
