// Package postgres mirrors committed draws and the store registries into Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/lotto-store-crawler/internal/lotto"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	DrawsTable      string
	StoresTable     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// DrawStore writes draws and store rows.
type DrawStore struct {
	pool   pool
	draws  string
	stores string
}

// NewDrawStore connects to Postgres using cfg.
func NewDrawStore(ctx context.Context, cfg Config) (*DrawStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewDrawStoreWithPool(p, cfg.DrawsTable, cfg.StoresTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewDrawStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewDrawStoreWithPool(p pool, drawsTable, storesTable string) (*DrawStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if drawsTable == "" {
		drawsTable = "draws"
	}
	if storesTable == "" {
		storesTable = "stores"
	}
	for _, table := range []string{drawsTable, storesTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &DrawStore{pool: p, draws: drawsTable, stores: storesTable}, nil
}

// Close releases the underlying pool resources.
func (s *DrawStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *DrawStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	round      INTEGER PRIMARY KEY,
	draw_date  TEXT NOT NULL,
	numbers    INTEGER[] NOT NULL,
	bonus      INTEGER NOT NULL,
	result     JSONB NOT NULL,
	run_id     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.draws),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	store_key  TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL,
	phone      TEXT NOT NULL DEFAULT '',
	wins       JSONB NOT NULL,
	likes      INTEGER NOT NULL DEFAULT 0,
	dislikes   INTEGER NOT NULL DEFAULT 0,
	lat        DOUBLE PRECISION NOT NULL DEFAULT 0,
	lng        DOUBLE PRECISION NOT NULL DEFAULT 0,
	retired    BOOLEAN NOT NULL DEFAULT false,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.stores),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// RoundCommitted inserts a committed draw. Rows for a round are written once and never updated.
func (s *DrawStore) RoundCommitted(ctx context.Context, runID string, rec lotto.DrawRecord) error {
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (round, draw_date, numbers, bonus, result, run_id)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (round) DO NOTHING`, s.draws)
	if _, err := s.pool.Exec(ctx, query, rec.Round, rec.Date, rec.Numbers, rec.Bonus, resultJSON, runID); err != nil {
		return fmt.Errorf("insert draw %d: %w", rec.Round, err)
	}
	return nil
}

// UpsertStores writes every active and retired record in one transaction.
func (s *DrawStore) UpsertStores(ctx context.Context, active, retired []lotto.StoreRecord) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin store upsert: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (store_key, name, address, phone, wins, likes, dislikes, lat, lng, retired, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
ON CONFLICT (store_key) DO UPDATE SET
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	phone = EXCLUDED.phone,
	wins = EXCLUDED.wins,
	likes = EXCLUDED.likes,
	dislikes = EXCLUDED.dislikes,
	lat = EXCLUDED.lat,
	lng = EXCLUDED.lng,
	retired = EXCLUDED.retired,
	updated_at = now()`, s.stores)

	write := func(rec lotto.StoreRecord, isRetired bool) error {
		wins, err := json.Marshal(rec.Wins)
		if err != nil {
			return fmt.Errorf("marshal wins: %w", err)
		}
		_, err = tx.Exec(ctx, query,
			rec.Key(), rec.Name, rec.Address, rec.Phone, wins,
			rec.Likes, rec.Dislikes, rec.Lat, rec.Lng, isRetired,
		)
		if err != nil {
			return fmt.Errorf("upsert store %q: %w", rec.Key(), err)
		}
		return nil
	}
	for _, rec := range active {
		if err = write(rec, false); err != nil {
			return err
		}
	}
	for _, rec := range retired {
		if err = write(rec, true); err != nil {
			return err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit store upsert: %w", err)
	}
	return nil
}
