package durable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"tilerealm/pkg/durable/migrations"
	"tilerealm/pkg/game"
)

var gooseOnce sync.Once

// RunMigrations brings the schema up to date using goose, against a plain
// database/sql connection opened with the pgx stdlib driver (goose does not
// speak pgxpool directly).
func RunMigrations(ctx context.Context, dsn string) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("opening migration connection: %w", err)
	}
	defer sqlDB.Close()

	var dialectErr error
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrations.FS)
		dialectErr = goose.SetDialect("postgres")
	})
	if dialectErr != nil {
		return fmt.Errorf("setting goose dialect: %w", dialectErr)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// PostgresStore is the pgx/v5-backed implementation of Store.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *logrus.Entry
}

// NewPostgresStore connects to PostgreSQL and pings it before returning.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &PostgresStore{
		pool:   pool,
		logger: logrus.WithField("component", "durable.PostgresStore"),
	}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) LoadPlayer(ctx context.Context, playerID int64) (*PlayerRow, error) {
	return s.scanPlayer(ctx, `SELECT id, username, hashed_password, role, is_banned,
		COALESCE(timeout_until, 'epoch'), map_id, x, y, hp, appearance, created_at, updated_at
		FROM players WHERE id = $1`, playerID)
}

func (s *PostgresStore) LoadPlayerByUsername(ctx context.Context, username string) (*PlayerRow, error) {
	return s.scanPlayer(ctx, `SELECT id, username, hashed_password, role, is_banned,
		COALESCE(timeout_until, 'epoch'), map_id, x, y, hp, appearance, created_at, updated_at
		FROM players WHERE username = $1`, username)
}

func (s *PostgresStore) scanPlayer(ctx context.Context, query string, arg interface{}) (*PlayerRow, error) {
	var row PlayerRow
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&row.ID, &row.Username, &row.HashedPassword, &row.Role, &row.IsBanned,
		&row.TimeoutUntil, &row.MapID, &row.X, &row.Y, &row.HP, &row.AppearanceJSON,
		&row.CreatedAt, &row.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading player: %w", err)
	}
	return &row, nil
}

func (s *PostgresStore) InsertPlayer(ctx context.Context, row *PlayerRow) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO players (username, hashed_password, role, is_banned, timeout_until,
			map_id, x, y, hp, appearance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		row.Username, row.HashedPassword, row.Role, row.IsBanned, row.TimeoutUntil,
		row.MapID, row.X, row.Y, row.HP, row.AppearanceJSON,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting player %q: %w", row.Username, err)
	}
	return id, nil
}

func (s *PostgresStore) UpsertPlayer(ctx context.Context, row *PlayerRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO players (id, username, hashed_password, role, is_banned, timeout_until,
			map_id, x, y, hp, appearance, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (id) DO UPDATE SET
			role = EXCLUDED.role,
			is_banned = EXCLUDED.is_banned,
			timeout_until = EXCLUDED.timeout_until,
			map_id = EXCLUDED.map_id,
			x = EXCLUDED.x,
			y = EXCLUDED.y,
			hp = EXCLUDED.hp,
			appearance = EXCLUDED.appearance,
			updated_at = now()`,
		row.ID, row.Username, row.HashedPassword, row.Role, row.IsBanned, row.TimeoutUntil,
		row.MapID, row.X, row.Y, row.HP, row.AppearanceJSON,
	)
	if err != nil {
		return fmt.Errorf("upserting player %d: %w", row.ID, err)
	}
	return nil
}

func (s *PostgresStore) LoadSkills(ctx context.Context, playerID int64) (game.Skills, error) {
	rows, err := s.pool.Query(ctx, `SELECT kind, level, xp FROM player_skills WHERE player_id = $1`, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading skills for player %d: %w", playerID, err)
	}
	defer rows.Close()

	skills := game.Skills{}
	for rows.Next() {
		var kind string
		var skill game.Skill
		if err := rows.Scan(&kind, &skill.Level, &skill.XP); err != nil {
			return nil, fmt.Errorf("scanning skill row: %w", err)
		}
		skills[game.SkillKind(kind)] = skill
	}
	return skills, rows.Err()
}

func (s *PostgresStore) UpsertSkills(ctx context.Context, playerID int64, skills game.Skills) error {
	batch := &pgx.Batch{}
	for kind, skill := range skills {
		batch.Queue(`INSERT INTO player_skills (player_id, kind, level, xp) VALUES ($1, $2, $3, $4)
			ON CONFLICT (player_id, kind) DO UPDATE SET level = EXCLUDED.level, xp = EXCLUDED.xp`,
			playerID, string(kind), skill.Level, skill.XP)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range skills {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting skills for player %d: %w", playerID, err)
		}
	}
	return nil
}

func (s *PostgresStore) LoadInventory(ctx context.Context, playerID int64) (game.Inventory, error) {
	rows, err := s.pool.Query(ctx, `SELECT slot, item_kind_id, quantity, current_durability
		FROM player_inventory WHERE player_id = $1 ORDER BY slot`, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading inventory for player %d: %w", playerID, err)
	}
	defer rows.Close()

	var maxSlot int
	type row struct {
		slot int
		s    game.InventorySlot
	}
	var loaded []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.slot, &r.s.ItemKindID, &r.s.Quantity, &r.s.CurrentDurability); err != nil {
			return nil, fmt.Errorf("scanning inventory row: %w", err)
		}
		if r.slot > maxSlot {
			maxSlot = r.slot
		}
		loaded = append(loaded, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	inv := game.NewInventory(maxSlot + 1)
	for _, r := range loaded {
		inv[r.slot] = r.s
	}
	return inv, nil
}

func (s *PostgresStore) ReplaceInventory(ctx context.Context, playerID int64, inv game.Inventory) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning inventory tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM player_inventory WHERE player_id = $1`, playerID); err != nil {
		return fmt.Errorf("clearing inventory for player %d: %w", playerID, err)
	}
	for slot, s2 := range inv {
		if s2.Empty() {
			continue
		}
		if _, err := tx.Exec(ctx, `INSERT INTO player_inventory (player_id, slot, item_kind_id, quantity, current_durability)
			VALUES ($1, $2, $3, $4, $5)`, playerID, slot, s2.ItemKindID, s2.Quantity, s2.CurrentDurability); err != nil {
			return fmt.Errorf("writing inventory slot %d for player %d: %w", slot, playerID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing inventory tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadEquipment(ctx context.Context, playerID int64) (game.Equipment, error) {
	rows, err := s.pool.Query(ctx, `SELECT slot, item_kind_id, quantity, current_durability
		FROM player_equipment WHERE player_id = $1`, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading equipment for player %d: %w", playerID, err)
	}
	defer rows.Close()

	eq := game.Equipment{}
	for rows.Next() {
		var slot string
		var item game.EquippedItem
		if err := rows.Scan(&slot, &item.ItemKindID, &item.Quantity, &item.CurrentDurability); err != nil {
			return nil, fmt.Errorf("scanning equipment row: %w", err)
		}
		parsed, ok := game.ParseEquipmentSlot(slot)
		if !ok {
			return nil, fmt.Errorf("unknown equipment slot %q in database", slot)
		}
		eq[parsed] = &item
	}
	return eq, rows.Err()
}

func (s *PostgresStore) ReplaceEquipment(ctx context.Context, playerID int64, eq game.Equipment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning equipment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM player_equipment WHERE player_id = $1`, playerID); err != nil {
		return fmt.Errorf("clearing equipment for player %d: %w", playerID, err)
	}
	for slot, item := range eq {
		if item == nil {
			continue
		}
		if _, err := tx.Exec(ctx, `INSERT INTO player_equipment (player_id, slot, item_kind_id, quantity, current_durability)
			VALUES ($1, $2, $3, $4, $5)`, playerID, slot.String(), item.ItemKindID, item.Quantity, item.CurrentDurability); err != nil {
			return fmt.Errorf("writing equipment slot %s for player %d: %w", slot, playerID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing equipment tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadGroundItems(ctx context.Context, mapID string) ([]*game.GroundItem, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, map_id, x, y, item_kind_id, quantity,
		COALESCE(dropped_by, 0), dropped_at, public_at, despawn_at
		FROM ground_items WHERE map_id = $1`, mapID)
	if err != nil {
		return nil, fmt.Errorf("loading ground items for map %s: %w", mapID, err)
	}
	defer rows.Close()

	var out []*game.GroundItem
	for rows.Next() {
		item := &game.GroundItem{}
		var droppedBy int64
		if err := rows.Scan(&item.ID, &item.MapID, &item.Position.X, &item.Position.Y,
			&item.ItemKindID, &item.Quantity, &droppedBy, &item.DroppedAt, &item.PublicAt, &item.DespawnAt); err != nil {
			return nil, fmt.Errorf("scanning ground item row: %w", err)
		}
		item.Position.MapID = mapID
		item.DroppedBy = droppedBy
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertGroundItem(ctx context.Context, item *game.GroundItem) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ground_items (id, map_id, x, y, item_kind_id, quantity, dropped_by, dropped_at, public_at, despawn_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0), $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		item.ID, item.Position.MapID, item.Position.X, item.Position.Y, item.ItemKindID, item.Quantity,
		item.DroppedBy, item.DroppedAt, item.PublicAt, item.DespawnAt,
	)
	if err != nil {
		return fmt.Errorf("upserting ground item %d: %w", item.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteGroundItem(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM ground_items WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting ground item %d: %w", id, err)
	}
	return nil
}
