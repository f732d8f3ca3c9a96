package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tilerealm/pkg/config"
	"tilerealm/pkg/durable"
	"tilerealm/pkg/server"
)

func main() {
	cfg := loadAndConfigureSystem()

	store, err := connectDurableStore(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect durable store")
	}

	deps, err := loadDependencies(cfg, store)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load reference data")
	}

	srv, listener := initializeServer(cfg, deps)
	executeServerLifecycle(srv, listener)
}

// loadAndConfigureSystem loads configuration and sets up logging.
func loadAndConfigureSystem() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	configureLogging(cfg.LogLevel)
	logStartupInfo(cfg)
	return cfg
}

// configureLogging sets up the logging system based on configuration.
func configureLogging(logLevel string) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// logStartupInfo logs server startup information.
func logStartupInfo(cfg *config.Config) {
	logrus.WithFields(logrus.Fields{
		"port":       cfg.ServerPort,
		"webDir":     cfg.WebDir,
		"logLevel":   cfg.LogLevel,
		"devMode":    cfg.EnableDevMode,
		"tickRate":   cfg.TickRate,
		"maxPlayers": cfg.MaxPlayers,
	}).Info("Starting tilerealm server")
}

// connectDurableStore connects to Postgres when DatabaseDSN is set, running
// migrations first, and falls back to an in-memory store otherwise (local
// development and tests).
func connectDurableStore(cfg *config.Config) (durable.Store, error) {
	if cfg.DatabaseDSN == "" {
		logrus.Warn("DATABASE_DSN not set, running against an in-memory durable store")
		return durable.NewMemoryStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := durable.RunMigrations(ctx, cfg.DatabaseDSN); err != nil {
		return nil, fmt.Errorf("running durable store migrations: %w", err)
	}
	return durable.NewPostgresStore(ctx, cfg.DatabaseDSN)
}

// loadDependencies loads the static reference data (item kinds, entity
// kinds, maps) NewRPCServer needs but cfg doesn't carry directly.
func loadDependencies(cfg *config.Config, store durable.Store) (server.Dependencies, error) {
	itemKinds, err := config.LoadItemKinds(cfg.ItemDataPath)
	if err != nil {
		return server.Dependencies{}, fmt.Errorf("loading item kinds: %w", err)
	}
	entityKinds, err := config.LoadEntityKinds(cfg.EntityDataPath)
	if err != nil {
		return server.Dependencies{}, fmt.Errorf("loading entity kinds: %w", err)
	}
	maps, err := config.LoadStaticMaps(cfg.MapDataPath, cfg.CollisionLayerNames)
	if err != nil {
		return server.Dependencies{}, fmt.Errorf("loading static maps: %w", err)
	}

	return server.Dependencies{
		DurableStore: store,
		Maps:         maps,
		ItemKinds:    itemKinds,
		EntityKinds:  entityKinds,
	}, nil
}

// initializeServer creates the server and network listener.
func initializeServer(cfg *config.Config, deps server.Dependencies) (*server.RPCServer, net.Listener) {
	srv, err := server.NewRPCServer(cfg, deps)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize server")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ServerPort))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start listener")
	}

	return srv, listener
}

// executeServerLifecycle handles the complete server lifecycle including startup and shutdown.
func executeServerLifecycle(srv *server.RPCServer, listener net.Listener) {
	sigChan, errChan := setupShutdownHandling()
	ctx, cancel := context.WithCancel(context.Background())
	startServerAsync(ctx, srv, listener, errChan)
	waitForShutdownSignal(sigChan, errChan)
	cancel()
	performGracefulShutdown(srv)
}

// setupShutdownHandling creates channels for graceful shutdown signal handling.
func setupShutdownHandling() (chan os.Signal, chan error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	errChan := make(chan error, 1)
	return sigChan, errChan
}

// startServerAsync starts the server in a background goroutine.
func startServerAsync(ctx context.Context, srv *server.RPCServer, listener net.Listener, errChan chan error) {
	go func() {
		logrus.WithField("address", listener.Addr()).Info("Server listening")
		if err := srv.Serve(ctx, listener); err != nil {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()
}

// waitForShutdownSignal waits for either a shutdown signal or server error.
func waitForShutdownSignal(sigChan chan os.Signal, errChan chan error) {
	select {
	case sig := <-sigChan:
		logrus.WithField("signal", sig).Info("Received shutdown signal")
	case err := <-errChan:
		logrus.WithError(err).Error("Server error")
	}
}

// performGracefulShutdown hands off to RPCServer.Shutdown, which drains
// sessions and flushes hot state within cfg.ShutdownTimeout.
func performGracefulShutdown(srv *server.RPCServer) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logrus.Info("Shutting down server gracefully...")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Error during graceful shutdown")
	} else {
		logrus.Info("Server shutdown completed")
	}
}
