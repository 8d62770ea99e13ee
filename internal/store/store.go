// Package store implements C1: the sole writer of durable state. It
// wraps modernc.org/sqlite (pure Go, no cgo, FTS5 built in) the way the
// neilberkman-shannon reference db.New() does — WAL journal mode, a
// single-connection pool since SQLite allows one writer, and a schema
// applied with CREATE TABLE IF NOT EXISTS so startup against an
// existing file is idempotent. Every multi-table mutation runs inside
// one *sql.Tx, per §4.1.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shopmindai/chatcore/internal/apperr"
)

// Store is the C1 Store. Zero value is not usable; use Open.
type Store struct {
	db *sql.DB
}

// Open connects to (and if needed creates) the SQLite database at path
// and applies the schema.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for the search package, which needs to run
// its own FTS queries against the same connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// withTx runs fn inside a transaction, committing on nil error and
// rolling back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isMember(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, userID, conversationID int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM memberships WHERE user_id = ? AND conversation_id = ?`,
		userID, conversationID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func isFriend(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, a, b int64) (bool, error) {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM friendships WHERE user_low = ? AND user_high = ?`, lo, hi).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
