// Package storage is the Postgres persistence layer. One Store wraps a
// pgx connection pool; mutation paths run inside explicit transactions
// via RunInTransaction so a meeting's writes commit or roll back as a
// unit.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrDataIntegrity marks corrupted stored data: a JSON column that
	// does not decode, a violated foreign key. Never swallowed.
	ErrDataIntegrity = errors.New("storage: data integrity violation")
)

// DB is the query surface shared by the pool and a transaction, so the
// same helpers run inside or outside RunInTransaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store owns the connection pool.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// Options tunes the pool.
type Options struct {
	MinConns int32
	MaxConns int32
}

// New connects and pings. The DSN is a standard Postgres URL.
func New(ctx context.Context, dsn string, opts Options, log *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse dsn: %w", err)
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the raw pool for read paths that do not need a
// transaction.
func (s *Store) Pool() DB { return s.pool }

// InitSchema applies the embedded schema. Statements are idempotent
// (CREATE TABLE IF NOT EXISTS), so this is safe on every start.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("storage: apply schema: %w", err)
	}
	return nil
}

// RunInTransaction runs fn inside one transaction, committing on nil
// and rolling back on error or panic.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}
