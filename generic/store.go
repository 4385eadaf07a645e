/*
store.go - Persistence interface for accounts, requests and journals

PURPOSE:
  Defines the interface between the engine and the database. Nothing in
  the engine depends on a query language; backends only need to honor
  the contracts below.

KEY INTERFACES:
  Store:   Account, request, ledger-entry and transition persistence
  TxStore: Store plus WithTx for atomic multi-table writes

LOCKING CONTRACT:
  LockAccount and GetRequestForUpdate are called only inside WithTx. They
  must re-read the row and hold it until the transaction ends, so that two
  concurrent approvals cannot both see a stale remaining balance.
  (postgres: SELECT ... FOR UPDATE; sqlite: BEGIN IMMEDIATE on a single
  connection; memory: one writer at a time.)

ATOMICITY:
  WithTx commits only if fn returns nil. A status write and its ledger
  mutation always share one WithTx call: both persist or neither does.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go
  - store/postgres/postgres.go
  - generic/store/memory.go: in-memory for testing

SEE ALSO:
  - reconciler.go: the main user of LockAccount/SaveAccount
*/
package generic

import "context"

// Store persists ledger and workflow state.
type Store interface {
	// LockAccount reads an account and locks it for the rest of the
	// transaction. found is false when the account doesn't exist yet.
	LockAccount(ctx context.Context, key AccountKey) (acct BalanceAccount, found bool, err error)

	// GetAccount returns ErrAccountNotFound when absent.
	GetAccount(ctx context.Context, key AccountKey) (BalanceAccount, error)

	// SaveAccount inserts or updates an account.
	SaveAccount(ctx context.Context, acct BalanceAccount) error

	// ListAccounts returns every account of an employee; empty id means all.
	ListAccounts(ctx context.Context, employeeID EmployeeID) ([]BalanceAccount, error)

	// AppendEntry journals one account mutation. Entries are never updated.
	AppendEntry(ctx context.Context, e LedgerEntry) error

	// Entries returns the journal of one account, oldest first.
	Entries(ctx context.Context, key AccountKey) ([]LedgerEntry, error)

	CreateRequest(ctx context.Context, rec RequestRecord) error

	// GetRequest returns ErrRequestNotFound when absent.
	GetRequest(ctx context.Context, id RequestID) (RequestRecord, error)

	// GetRequestForUpdate is GetRequest with a row lock held until the
	// transaction ends.
	GetRequestForUpdate(ctx context.Context, id RequestID) (RequestRecord, error)

	UpdateRequest(ctx context.Context, rec RequestRecord) error

	DeleteRequest(ctx context.Context, id RequestID) error

	// ListRequests returns matching requests, newest first.
	ListRequests(ctx context.Context, filter RequestFilter) ([]RequestRecord, error)

	AppendTransition(ctx context.Context, t TransitionEntry) error

	// Transitions returns a record's history, oldest first.
	Transitions(ctx context.Context, id RequestID) ([]TransitionEntry, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
