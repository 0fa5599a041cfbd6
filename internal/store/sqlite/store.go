// Package sqlite is the default directory store, a single SQLite file.
//
// The relation keeps the table and column names of earlier deployments
// (users: name, code, user_id) so existing database files open unchanged.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/JonMunkholm/idlookup/internal/core"
)

var _ core.Store = (*Store)(nil)

const createUsers = `CREATE TABLE %s (
	name    TEXT PRIMARY KEY,
	code    TEXT UNIQUE,
	user_id TEXT NOT NULL
)`

// Store implements core.Store on SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "data.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite allows a single writer and the service
	// serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// EnsureSchema creates the users table, or migrates a legacy (name, user_id)
// table by copying its rows with canonical names and no code. The migration
// runs in one transaction; on error the legacy table is left as it was.
func (s *Store) EnsureSchema(ctx context.Context) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	cols, err := tableColumns(ctx, tx, "users")
	if err != nil {
		return err
	}

	switch {
	case len(cols) == 0:
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(createUsers, "users")); err != nil {
			return fmt.Errorf("create users: %w", err)
		}
	case !cols["code"]:
		if err := migrateLegacy(ctx, tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// tableColumns returns the column names of table, or an empty set when the
// table does not exist.
func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid           int
			name, colType string
			notNull, pk   int
			dfltValue     any
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func migrateLegacy(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS users_new`); err != nil {
		return fmt.Errorf("drop stale users_new: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(createUsers, "users_new")); err != nil {
		return fmt.Errorf("create users_new: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT name, user_id FROM users WHERE name IS NOT NULL AND user_id IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("read legacy users: %w", err)
	}
	type legacyRow struct{ name, userID string }
	var legacy []legacyRow
	for rows.Next() {
		var r legacyRow
		if err := rows.Scan(&r.name, &r.userID); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan legacy user: %w", err)
		}
		legacy = append(legacy, r)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, r := range legacy {
		name := core.CanonicalName(r.name)
		if name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO users_new (name, code, user_id) VALUES (?, NULL, ?)`,
			name, r.userID,
		); err != nil {
			return fmt.Errorf("copy legacy user %q: %w", r.name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE users`); err != nil {
		return fmt.Errorf("drop legacy users: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE users_new RENAME TO users`); err != nil {
		return fmt.Errorf("rename users_new: %w", err)
	}
	return nil
}

// Get returns the record stored under a canonical name.
func (s *Store) Get(ctx context.Context, name string) (core.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT name, code, user_id FROM users WHERE name = ?`, name)
	return scanRecord(row)
}

// GetByCode returns the record holding a canonical code.
func (s *Store) GetByCode(ctx context.Context, code string) (core.Record, error) {
	if code == "" {
		return core.Record{}, core.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT name, code, user_id FROM users WHERE code = ?`, code)
	return scanRecord(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (core.Record, error) {
	var (
		rec  core.Record
		code sql.NullString
	)
	if err := row.Scan(&rec.Name, &code, &rec.ExternalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Record{}, core.ErrNotFound
		}
		return core.Record{}, err
	}
	rec.Code = code.String
	return rec, nil
}

// Upsert writes rec, clearing its code from any other row first.
func (s *Store) Upsert(ctx context.Context, rec core.Record) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return upsertTx(ctx, tx, rec)
	})
}

// Rename removes the row under oldName and writes rec in one transaction.
func (s *Store) Rename(ctx context.Context, oldName string, rec core.Record) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE name = ?`, oldName); err != nil {
			return fmt.Errorf("delete %q: %w", oldName, err)
		}
		return upsertTx(ctx, tx, rec)
	})
}

func upsertTx(ctx context.Context, tx *sql.Tx, rec core.Record) error {
	if rec.HasCode() {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET code = NULL WHERE code = ? AND name <> ?`,
			rec.Code, rec.Name,
		); err != nil {
			return fmt.Errorf("release code %q: %w", rec.Code, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (name, code, user_id) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET code = excluded.code, user_id = excluded.user_id`,
		rec.Name, nullable(rec.Code), rec.ExternalID,
	); err != nil {
		return fmt.Errorf("upsert %q: %w", rec.Name, err)
	}
	return nil
}

// DeleteByName removes one row.
func (s *Store) DeleteByName(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAll removes every row.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users`)
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	return res.RowsAffected()
}

// ListAll returns every row, codes first, then by name.
func (s *Store) ListAll(ctx context.Context) ([]core.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, code, user_id FROM users ORDER BY code IS NULL, code, name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Ping checks the database file is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
