// Package postgres is a kv.Store over a single Postgres table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"expenses/internal/kv"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const driverName = "pgx"

var _ kv.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

// Open connects, migrates and returns a store. The key column uses the "C"
// collation so range scans follow byte order like the other drivers.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn required")
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("Postgres store ready")
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix, cursor string, limit int) (kv.Page, error) {
	if limit <= 0 {
		limit = kv.DefaultPageSize
	}
	query, args := listQuery(prefix, cursor, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return kv.Page{}, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return kv.Page{}, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return kv.Page{}, fmt.Errorf("iterate keys: %w", err)
	}
	if len(keys) <= limit {
		return kv.Page{Keys: keys, Complete: true}, nil
	}
	keys = keys[:limit]
	return kv.Page{Keys: keys, Cursor: keys[len(keys)-1]}, nil
}

// listQuery fetches one row past limit so completion is known without a second round trip.
func listQuery(prefix, cursor string, limit int) (string, []any) {
	q := `SELECT key FROM kv WHERE key >= $1`
	args := []any{prefix}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND key > $%d`, len(args))
	}
	if end := kv.PrefixEnd(prefix); end != "" {
		args = append(args, end)
		q += fmt.Sprintf(` AND key < $%d`, len(args))
	}
	args = append(args, limit+1)
	q += fmt.Sprintf(` ORDER BY key LIMIT $%d`, len(args))
	return q, args
}
