/*
Package postgres provides a PostgreSQL-backed implementation of the storage
interfaces, for deployments with more than one server process.

INTERFACES IMPLEMENTED:
  generic.TxStore:          Accounts, ledger entries, requests, transitions
  generic.EmployeeResolver: employees table
  generic.RoleResolver:     actor_roles + department_managers tables

ROW LOCKS:
  LockAccount takes a transaction-scoped advisory lock on the account key
  and then reads the row FOR UPDATE. The advisory lock also covers the
  first open of an account, when there is no row to lock yet.
  GetRequestForUpdate reads the request FOR UPDATE. Both locks are
  released on commit or rollback.

AMOUNTS:
  Stored as NUMERIC, exchanged with the driver as text so decimal values
  never pass through float64.

USAGE:
  store, err := postgres.New(ctx, "postgres://localhost/ledger", 10)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/approval-ledger/generic"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db querier
}

// Store implements all storage interfaces using PostgreSQL.
type Store struct {
	*queries
	pool *pgxpool.Pool
}

var (
	_ generic.TxStore          = (*Store)(nil)
	_ generic.EmployeeResolver = (*Store)(nil)
	_ generic.RoleResolver     = (*Store)(nil)
)

// New connects, pings and migrates.
func New(ctx context.Context, url string, maxConns int32) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	store := &Store{queries: &queries{db: pool}, pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS accounts (
		employee_id TEXT NOT NULL,
		resource TEXT NOT NULL,
		period INTEGER NOT NULL,
		unit TEXT NOT NULL,
		granted NUMERIC NOT NULL,
		consumed NUMERIC NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (employee_id, resource, period)
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		resource TEXT NOT NULL,
		period INTEGER NOT NULL,
		request_id TEXT,
		kind TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		granted_after NUMERIC NOT NULL,
		consumed_after NUMERIC NOT NULL,
		actor TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_account
		ON ledger_entries(employee_id, resource, period, seq);

	CREATE TABLE IF NOT EXISTS requests (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		department TEXT NOT NULL,
		resource TEXT NOT NULL,
		period INTEGER NOT NULL,
		amount NUMERIC NOT NULL,
		unit TEXT NOT NULL,
		direction TEXT NOT NULL,
		status TEXT NOT NULL,
		applied BOOLEAN NOT NULL DEFAULT FALSE,
		applied_amount NUMERIC NOT NULL DEFAULT 0,
		requested_by TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		context_json JSONB,
		manager_approved_by TEXT,
		manager_approved_at TIMESTAMPTZ,
		approved_by TEXT,
		approved_at TIMESTAMPTZ,
		rejected_by TEXT,
		rejected_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee ON requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);

	CREATE TABLE IF NOT EXISTS request_transitions (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		request_id TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		trigger_name TEXT NOT NULL,
		actor TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		synthetic BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_request_transitions_request
		ON request_transitions(request_id, seq);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		department TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS actor_roles (
		actor_id TEXT PRIMARY KEY,
		is_hrd_manager BOOLEAN NOT NULL DEFAULT FALSE,
		is_super_admin BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS department_managers (
		actor_id TEXT NOT NULL,
		department TEXT NOT NULL,
		PRIMARY KEY (actor_id, department)
	);

	CREATE TABLE IF NOT EXISTS calendar_days (
		day DATE PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT ''
	);
	`)
	return err
}

// WithTx executes fn within a transaction. Row locks taken by fn are held
// until it returns.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Reset empties every table. Used when loading demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE accounts, ledger_entries, requests, request_transitions,
		employees, actor_roles, department_managers, calendar_days RESTART IDENTITY`)
	if err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
