// Package postgres stores the directory in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/idlookup/internal/core"
)

var _ core.Store = (*Store)(nil)

const createUsers = `CREATE TABLE %s (
	name    TEXT PRIMARY KEY,
	code    TEXT UNIQUE,
	user_id TEXT NOT NULL
)`

// Config holds pool settings.
type Config struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store implements core.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a pool and verifies it with a ping.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the users table or migrates a legacy (name, user_id)
// table in one transaction.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cols, err := tableColumns(ctx, tx, "users")
		if err != nil {
			return err
		}
		switch {
		case len(cols) == 0:
			if _, err := tx.Exec(ctx, fmt.Sprintf(createUsers, "users")); err != nil {
				return fmt.Errorf("create users: %w", err)
			}
		case !cols["code"]:
			return migrateLegacy(ctx, tx)
		}
		return nil
	})
}

func tableColumns(ctx context.Context, tx pgx.Tx, table string) (map[string]bool, error) {
	rows, err := tx.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("table columns %s: %w", table, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan columns: %w", err)
	}
	cols := make(map[string]bool, len(names))
	for _, n := range names {
		cols[n] = true
	}
	return cols, nil
}

type legacyRow struct {
	name   string
	userID string
}

func migrateLegacy(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS users_new`); err != nil {
		return fmt.Errorf("drop stale users_new: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(createUsers, "users_new")); err != nil {
		return fmt.Errorf("create users_new: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT name, user_id::text FROM users WHERE name IS NOT NULL AND user_id IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("read legacy users: %w", err)
	}
	legacy, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (legacyRow, error) {
		var r legacyRow
		err := row.Scan(&r.name, &r.userID)
		return r, err
	})
	if err != nil {
		return fmt.Errorf("scan legacy users: %w", err)
	}

	for _, r := range legacy {
		name := core.CanonicalName(r.name)
		if name == "" {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO users_new (name, code, user_id) VALUES ($1, NULL, $2)
			ON CONFLICT (name) DO UPDATE SET user_id = excluded.user_id`,
			name, r.userID,
		); err != nil {
			return fmt.Errorf("copy legacy user %q: %w", r.name, err)
		}
	}

	if _, err := tx.Exec(ctx, `DROP TABLE users`); err != nil {
		return fmt.Errorf("drop legacy users: %w", err)
	}
	if _, err := tx.Exec(ctx, `ALTER TABLE users_new RENAME TO users`); err != nil {
		return fmt.Errorf("rename users_new: %w", err)
	}
	return nil
}

// Get returns the record stored under a canonical name.
func (s *Store) Get(ctx context.Context, name string) (core.Record, error) {
	return scanRecord(s.pool.QueryRow(ctx,
		`SELECT name, code, user_id FROM users WHERE name = $1`, name))
}

// GetByCode returns the record holding a canonical code.
func (s *Store) GetByCode(ctx context.Context, code string) (core.Record, error) {
	if code == "" {
		return core.Record{}, core.ErrNotFound
	}
	return scanRecord(s.pool.QueryRow(ctx,
		`SELECT name, code, user_id FROM users WHERE code = $1`, code))
}

func scanRecord(row pgx.Row) (core.Record, error) {
	var (
		rec  core.Record
		code *string
	)
	if err := row.Scan(&rec.Name, &code, &rec.ExternalID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.Record{}, core.ErrNotFound
		}
		return core.Record{}, err
	}
	if code != nil {
		rec.Code = *code
	}
	return rec, nil
}

// Upsert writes rec, clearing its code from any other row first.
func (s *Store) Upsert(ctx context.Context, rec core.Record) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return upsertTx(ctx, tx, rec)
	})
}

// Rename removes the row under oldName and writes rec in one transaction.
func (s *Store) Rename(ctx context.Context, oldName string, rec core.Record) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE name = $1`, oldName); err != nil {
			return fmt.Errorf("delete %q: %w", oldName, err)
		}
		return upsertTx(ctx, tx, rec)
	})
}

func upsertTx(ctx context.Context, tx pgx.Tx, rec core.Record) error {
	if rec.HasCode() {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET code = NULL WHERE code = $1 AND name <> $2`,
			rec.Code, rec.Name,
		); err != nil {
			return fmt.Errorf("release code %q: %w", rec.Code, err)
		}
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO users (name, code, user_id) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET code = excluded.code, user_id = excluded.user_id`,
		rec.Name, nullable(rec.Code), rec.ExternalID,
	); err != nil {
		return fmt.Errorf("upsert %q: %w", rec.Name, err)
	}
	return nil
}

// DeleteByName removes one row.
func (s *Store) DeleteByName(ctx context.Context, name string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", name, err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteAll removes every row.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users`)
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListAll returns every row, codes first, then by name. Byte ordering
// keeps the result identical to the SQLite store.
func (s *Store) ListAll(ctx context.Context) ([]core.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, code, user_id FROM users
		ORDER BY code COLLATE "C" NULLS LAST, name COLLATE "C"`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Record, error) {
		return scanRecord(row)
	})
}

// Ping checks the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool for tests.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
