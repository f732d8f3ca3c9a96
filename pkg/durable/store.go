// Package durable is the relational persistence tier (§4.1, §6 "Durable
// store schema"). It is authoritative at cold start and after a drain; the
// hot-state store is authoritative the rest of the time and is the only
// caller that should ever touch this package directly.
package durable

import (
	"context"
	"time"

	"tilerealm/pkg/game"
)

// PlayerRow is the durable identity row (§3, §6).
type PlayerRow struct {
	ID             int64
	Username       string
	HashedPassword string
	Role           game.Role
	IsBanned       bool
	TimeoutUntil   time.Time
	X, Y           int
	MapID          string
	HP             int
	AppearanceJSON []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store is everything the hot-state store's loader and flusher need from
// the durable tier. Implemented by *PostgresStore; tests satisfy it with an
// in-memory fake rather than a mock, matching the teacher's preference for
// hand-rolled fakes over a mocking framework.
type Store interface {
	LoadPlayer(ctx context.Context, playerID int64) (*PlayerRow, error)
	LoadPlayerByUsername(ctx context.Context, username string) (*PlayerRow, error)
	// InsertPlayer creates a brand new player row and returns its
	// durable-assigned id.
	InsertPlayer(ctx context.Context, row *PlayerRow) (int64, error)
	// UpsertPlayer writes through an existing player's mutable fields; row.ID
	// must already be set (used by the flusher, never by registration).
	UpsertPlayer(ctx context.Context, row *PlayerRow) error

	LoadSkills(ctx context.Context, playerID int64) (game.Skills, error)
	UpsertSkills(ctx context.Context, playerID int64, skills game.Skills) error

	LoadInventory(ctx context.Context, playerID int64) (game.Inventory, error)
	ReplaceInventory(ctx context.Context, playerID int64, inv game.Inventory) error

	LoadEquipment(ctx context.Context, playerID int64) (game.Equipment, error)
	ReplaceEquipment(ctx context.Context, playerID int64, eq game.Equipment) error

	LoadGroundItems(ctx context.Context, mapID string) ([]*game.GroundItem, error)
	UpsertGroundItem(ctx context.Context, item *game.GroundItem) error
	DeleteGroundItem(ctx context.Context, id int64) error

	Close()
}
