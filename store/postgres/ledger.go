package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/approval-ledger/generic"
)

const accountColumns = `employee_id, resource, period, unit, granted::text, consumed::text, created_at, updated_at`

// LockAccount serializes on the account key, then reads the row FOR UPDATE.
func (q *queries) LockAccount(ctx context.Context, key generic.AccountKey) (generic.BalanceAccount, bool, error) {
	if _, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key.String()); err != nil {
		return generic.BalanceAccount{}, false, fmt.Errorf("failed to lock account %s: %w", key, err)
	}
	row := q.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE employee_id = $1 AND resource = $2 AND period = $3 FOR UPDATE`,
		string(key.EmployeeID), key.Resource, int(key.Period))
	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.BalanceAccount{}, false, nil
	}
	if err != nil {
		return generic.BalanceAccount{}, false, err
	}
	return acct, true, nil
}

func (q *queries) GetAccount(ctx context.Context, key generic.AccountKey) (generic.BalanceAccount, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE employee_id = $1 AND resource = $2 AND period = $3`,
		string(key.EmployeeID), key.Resource, int(key.Period))
	acct, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.BalanceAccount{}, fmt.Errorf("%w: %s", generic.ErrAccountNotFound, key)
	}
	return acct, err
}

func (q *queries) SaveAccount(ctx context.Context, acct generic.BalanceAccount) error {
	key := acct.Key()
	_, err := q.db.Exec(ctx, `
		INSERT INTO accounts (employee_id, resource, period, unit, granted, consumed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7, $8)
		ON CONFLICT (employee_id, resource, period) DO UPDATE SET
			granted = EXCLUDED.granted,
			consumed = EXCLUDED.consumed,
			updated_at = EXCLUDED.updated_at
	`,
		string(key.EmployeeID), key.Resource, int(key.Period), string(acct.Unit()),
		acct.Granted().String(), acct.Consumed().String(), acct.CreatedAt(), acct.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", key, err)
	}
	return nil
}

func (q *queries) ListAccounts(ctx context.Context, employeeID generic.EmployeeID) ([]generic.BalanceAccount, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE $1 = '' OR employee_id = $1
		ORDER BY employee_id, resource, period
	`, string(employeeID))
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

func scanAccount(row pgx.Row) (generic.BalanceAccount, error) {
	var (
		employeeID, resource, unit string
		period                     int
		granted, consumed          string
		createdAt, updatedAt       time.Time
	)
	if err := row.Scan(&employeeID, &resource, &period, &unit, &granted, &consumed, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return generic.BalanceAccount{}, err
		}
		return generic.BalanceAccount{}, fmt.Errorf("failed to scan account: %w", err)
	}
	g, err := decimal.NewFromString(granted)
	if err != nil {
		return generic.BalanceAccount{}, err
	}
	c, err := decimal.NewFromString(consumed)
	if err != nil {
		return generic.BalanceAccount{}, err
	}
	key := generic.AccountKey{EmployeeID: generic.EmployeeID(employeeID), Resource: resource, Period: generic.AccountingPeriod(period)}
	return generic.RestoreAccount(key, generic.Unit(unit), g, c, createdAt, updatedAt), nil
}

func (q *queries) AppendEntry(ctx context.Context, e generic.LedgerEntry) error {
	var requestID *string
	if e.RequestID != "" {
		id := string(e.RequestID)
		requestID = &id
	}
	_, err := q.db.Exec(ctx, `
		INSERT INTO ledger_entries
		(id, employee_id, resource, period, request_id, kind, amount, granted_after, consumed_after, actor, remarks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8::text::numeric, $9::text::numeric, $10, $11, $12)
	`,
		e.ID, string(e.Key.EmployeeID), e.Key.Resource, int(e.Key.Period), requestID, string(e.Kind),
		e.Amount.String(), e.GrantedAfter.String(), e.ConsumedAfter.String(), e.Actor, e.Remarks, e.At)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (q *queries) Entries(ctx context.Context, key generic.AccountKey) ([]generic.LedgerEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, request_id, kind, amount::text, granted_after::text, consumed_after::text, actor, remarks, created_at
		FROM ledger_entries
		WHERE employee_id = $1 AND resource = $2 AND period = $3
		ORDER BY seq ASC
	`, string(key.EmployeeID), key.Resource, int(key.Period))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []generic.LedgerEntry
	for rows.Next() {
		var (
			e                         generic.LedgerEntry
			requestID                 *string
			kind                      string
			amount, granted, consumed string
		)
		if err := rows.Scan(&e.ID, &requestID, &kind, &amount, &granted, &consumed, &e.Actor, &e.Remarks, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Key = key
		if requestID != nil {
			e.RequestID = generic.RequestID(*requestID)
		}
		e.Kind = generic.EntryKind(kind)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if e.GrantedAfter, err = decimal.NewFromString(granted); err != nil {
			return nil, err
		}
		if e.ConsumedAfter, err = decimal.NewFromString(consumed); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
