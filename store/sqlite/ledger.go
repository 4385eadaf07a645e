package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/approval-ledger/generic"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `employee_id, resource, period, unit, granted, consumed, created_at, updated_at`

// LockAccount reads an account. Inside WithTx the IMMEDIATE transaction
// already excludes other writers.
func (q *queries) LockAccount(ctx context.Context, key generic.AccountKey) (generic.BalanceAccount, bool, error) {
	acct, err := q.GetAccount(ctx, key)
	if errors.Is(err, generic.ErrAccountNotFound) {
		return generic.BalanceAccount{}, false, nil
	}
	if err != nil {
		return generic.BalanceAccount{}, false, err
	}
	return acct, true, nil
}

func (q *queries) GetAccount(ctx context.Context, key generic.AccountKey) (generic.BalanceAccount, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE employee_id = ? AND resource = ? AND period = ?`,
		key.EmployeeID, key.Resource, int(key.Period),
	)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.BalanceAccount{}, fmt.Errorf("%w: %s", generic.ErrAccountNotFound, key)
	}
	return acct, err
}

func (q *queries) SaveAccount(ctx context.Context, acct generic.BalanceAccount) error {
	key := acct.Key()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, resource, period) DO UPDATE SET
			granted = excluded.granted,
			consumed = excluded.consumed,
			updated_at = excluded.updated_at
	`,
		key.EmployeeID, key.Resource, int(key.Period), string(acct.Unit()),
		acct.Granted().String(), acct.Consumed().String(),
		formatTime(acct.CreatedAt()), formatTime(acct.UpdatedAt()),
	)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", key, err)
	}
	return nil
}

func (q *queries) ListAccounts(ctx context.Context, employeeID generic.EmployeeID) ([]generic.BalanceAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []any
	if employeeID != "" {
		query += ` WHERE employee_id = ?`
		args = append(args, employeeID)
	}
	query += ` ORDER BY employee_id, resource, period`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var out []generic.BalanceAccount
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (generic.BalanceAccount, error) {
	var (
		key                  generic.AccountKey
		period               int
		unit                 string
		granted, consumed    decimal.Decimal
		createdAt, updatedAt string
	)
	if err := row.Scan(&key.EmployeeID, &key.Resource, &period, &unit, &granted, &consumed, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return generic.BalanceAccount{}, err
		}
		return generic.BalanceAccount{}, fmt.Errorf("failed to scan account: %w", err)
	}
	key.Period = generic.AccountingPeriod(period)
	return generic.RestoreAccount(key, generic.Unit(unit), granted, consumed, parseTime(createdAt), parseTime(updatedAt)), nil
}

// =============================================================================
// LEDGER ENTRIES (append-only)
// =============================================================================

func (q *queries) AppendEntry(ctx context.Context, e generic.LedgerEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, employee_id, resource, period, request_id, kind, amount,
		 granted_after, consumed_after, actor, remarks, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.Key.EmployeeID, e.Key.Resource, int(e.Key.Period),
		nullString(string(e.RequestID)), string(e.Kind), e.Amount.String(),
		e.GrantedAfter.String(), e.ConsumedAfter.String(),
		e.Actor, nullString(e.Remarks), formatTime(e.At),
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (q *queries) Entries(ctx context.Context, key generic.AccountKey) ([]generic.LedgerEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, request_id, kind, amount, granted_after, consumed_after, actor, remarks, created_at
		FROM ledger_entries
		WHERE employee_id = ? AND resource = ? AND period = ?
		ORDER BY seq ASC
	`, key.EmployeeID, key.Resource, int(key.Period))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []generic.LedgerEntry
	for rows.Next() {
		var (
			e                  generic.LedgerEntry
			requestID, remarks sql.NullString
			kind, at           string
		)
		if err := rows.Scan(&e.ID, &requestID, &kind, &e.Amount, &e.GrantedAfter, &e.ConsumedAfter, &e.Actor, &remarks, &at); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Key = key
		e.RequestID = generic.RequestID(requestID.String)
		e.Kind = generic.EntryKind(kind)
		e.Remarks = remarks.String
		e.At = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}
