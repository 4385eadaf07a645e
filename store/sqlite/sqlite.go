/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the engine's persistence (generic.TxStore) and its directory
  collaborators (generic.EmployeeResolver, generic.RoleResolver) using
  SQLite, plus the calendar rows the overtime calculator is built from.

INTERFACES IMPLEMENTED:
  generic.TxStore:          Accounts, ledger entries, requests, transitions
  generic.EmployeeResolver: employees table
  generic.RoleResolver:     actor_roles + department_managers tables

APPEND-ONLY TABLES:
  ledger_entries and request_transitions are never updated or deleted
  except by Reset. Corrections are new entries.

KEY TABLES:
  accounts:            One row per (employee, resource, period)
  ledger_entries:      Journal of every account mutation
  requests:            Request records with approval provenance
  request_transitions: Status history per request
  employees, actor_roles, department_managers: Directory
  calendar_days:       Holidays, rest days and scheduled rest days

CONCURRENCY:
  The pool is limited to one connection and transactions start with
  BEGIN IMMEDIATE (_txlock=immediate), so a WithTx holds the write lock
  from its first statement. LockAccount and GetRequestForUpdate are plain
  reads: nothing else can write until the transaction ends.

  Every call inside WithTx must go through the Store handed to fn. Using
  the outer Store there would wait for the only connection forever.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := generic.NewEngine(store, store, store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
  - store/postgres: Same interfaces with row locks
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/approval-ledger/generic"
)

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements generic.Store over either the pool or a transaction.
type queries struct {
	db dbtx
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

var (
	_ generic.TxStore          = (*Store)(nil)
	_ generic.EmployeeResolver = (*Store)(nil)
	_ generic.RoleResolver     = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and it
	// serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{db: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		employee_id TEXT NOT NULL,
		resource TEXT NOT NULL,
		period INTEGER NOT NULL,
		unit TEXT NOT NULL,
		granted TEXT NOT NULL,
		consumed TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, resource, period)
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		resource TEXT NOT NULL,
		period INTEGER NOT NULL,
		request_id TEXT,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		granted_after TEXT NOT NULL,
		consumed_after TEXT NOT NULL,
		actor TEXT NOT NULL,
		remarks TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_account
		ON ledger_entries(employee_id, resource, period, seq);

	CREATE TABLE IF NOT EXISTS requests (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		employee_id TEXT NOT NULL,
		department TEXT NOT NULL,
		resource TEXT NOT NULL,
		period INTEGER NOT NULL,
		amount TEXT NOT NULL,
		unit TEXT NOT NULL,
		direction TEXT NOT NULL,
		status TEXT NOT NULL,
		applied INTEGER NOT NULL DEFAULT 0,
		applied_amount TEXT NOT NULL DEFAULT '0',
		requested_by TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		context_json TEXT,
		manager_approved_by TEXT,
		manager_approved_at TEXT,
		approved_by TEXT,
		approved_at TEXT,
		rejected_by TEXT,
		rejected_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee ON requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);

	CREATE TABLE IF NOT EXISTS request_transitions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		request_id TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		trigger_name TEXT NOT NULL,
		actor TEXT NOT NULL,
		remarks TEXT,
		synthetic INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_request_transitions_request
		ON request_transitions(request_id, seq);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		department TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS actor_roles (
		actor_id TEXT PRIMARY KEY,
		is_hrd_manager INTEGER NOT NULL DEFAULT 0,
		is_super_admin INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS department_managers (
		actor_id TEXT NOT NULL,
		department TEXT NOT NULL,
		PRIMARY KEY (actor_id, department)
	);

	CREATE TABLE IF NOT EXISTS calendar_days (
		day TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Reset deletes every row. Used when loading demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, table := range []string{
		"accounts", "ledger_entries", "requests", "request_transitions",
		"employees", "actor_roles", "department_managers", "calendar_days",
	} {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return sqlTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
