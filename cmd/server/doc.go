// Package main implements the tilerealm server application.
//
// This is the entry point for tilerealm, a tile-based massively multiplayer
// world server. The server provides authoritative movement, melee combat,
// inventory/equipment, chat, and moderation over a JSON message protocol
// carried on WebSocket connections, backed by a durable store for offline
// state and an in-memory hot cache for online players and entities.
//
// # Architecture
//
// The server application follows a clean separation of concerns:
//
//   - Configuration loading and validation (via pkg/config)
//   - Logging setup and initialization (via logrus)
//   - Durable store connection and migration (via pkg/durable)
//   - Reference data loading: item kinds, entity kinds, static maps
//   - Server lifecycle management with graceful shutdown
//   - Signal handling for SIGINT and SIGTERM
//
// # Startup Sequence
//
// 1. Load configuration from environment variables with secure defaults
// 2. Configure logging based on LOG_LEVEL setting
// 3. Connect to the durable store, running migrations if DATABASE_DSN is set,
//    falling back to an in-memory store otherwise
// 4. Load item/entity/map reference data
// 5. Construct the RPC server, which seeds hot state with static entity
//    spawns from every loaded map
// 6. Start listening for WebSocket connections
// 7. Handle shutdown signals gracefully, flushing hot state to the durable
//    store before exit
//
// # Environment Variables
//
// The server supports the following environment variables:
//
//   - SERVER_PORT: HTTP server port (default: 8080)
//   - WEB_DIR: Static web file directory (default: ./web)
//   - LOG_LEVEL: Logging verbosity (debug, info, warn, error; default: info)
//   - ENABLE_DEV_MODE: Development mode flag
//   - DATABASE_DSN: Postgres connection string; empty uses an in-memory store
//   - ITEM_DATA_PATH: Item kind table file (default: ./data/items.yaml)
//   - ENTITY_DATA_PATH: Entity kind table file (default: ./data/entities.yaml)
//   - MAP_DATA_PATH: Directory of static map files (default: ./data/maps)
//
// # Usage
//
// Run the server with default settings:
//
//	./server
//
// Run with custom port and debug logging:
//
//	SERVER_PORT=9000 LOG_LEVEL=debug ./server
//
// # Graceful Shutdown
//
// The server handles SIGINT (Ctrl+C) and SIGTERM signals gracefully:
//
// 1. Stop accepting new connections
// 2. Flush hot state (player rows and positions, inventories, equipment,
//    skills, ground items) to the durable store; entity state is
//    cache-only and is not flushed
// 3. Close the durable store connection; open WebSocket sessions are not
//    closed explicitly
// 4. Exit cleanly
//
// The shutdown process has a 30-second timeout before forcing exit.
package main
