package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/approval-ledger/generic"
)

const requestColumns = `id, employee_id, department, resource, period, amount::text, unit, direction, status,
	applied, applied_amount::text, requested_by, remarks, context_json,
	manager_approved_by, manager_approved_at, approved_by, approved_at, rejected_by, rejected_at,
	created_at, updated_at`

func (q *queries) CreateRequest(ctx context.Context, rec generic.RequestRecord) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO requests (id, employee_id, department, resource, period, amount, unit, direction, status,
			applied, applied_amount, requested_by, remarks, context_json,
			manager_approved_by, manager_approved_at, approved_by, approved_at, rejected_by, rejected_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8, $9, $10, $11::text::numeric, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22)
	`,
		string(rec.ID), string(rec.EmployeeID), rec.Department, rec.Resource, int(rec.Period),
		rec.Amount.String(), string(rec.Unit), string(rec.Direction), string(rec.Status),
		rec.Applied, rec.AppliedAmount.String(), rec.RequestedBy, rec.Remarks, rec.Context,
		rec.ManagerApprovedBy, rec.ManagerApprovedAt, rec.ApprovedBy, rec.ApprovedAt, rec.RejectedBy, rec.RejectedAt,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: request %s already exists", generic.ErrConcurrentModification, rec.ID)
		}
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (q *queries) GetRequest(ctx context.Context, id generic.RequestID) (generic.RequestRecord, error) {
	return q.getRequest(ctx, id, "")
}

func (q *queries) GetRequestForUpdate(ctx context.Context, id generic.RequestID) (generic.RequestRecord, error) {
	return q.getRequest(ctx, id, " FOR UPDATE")
}

func (q *queries) getRequest(ctx context.Context, id generic.RequestID, suffix string) (generic.RequestRecord, error) {
	row := q.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`+suffix, string(id))
	rec, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.RequestRecord{}, fmt.Errorf("%w: %s", generic.ErrRequestNotFound, id)
	}
	return rec, err
}

func (q *queries) UpdateRequest(ctx context.Context, rec generic.RequestRecord) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE requests SET
			period = $2, amount = $3::text::numeric, status = $4, applied = $5, applied_amount = $6::text::numeric,
			remarks = $7, context_json = $8,
			manager_approved_by = $9, manager_approved_at = $10,
			approved_by = $11, approved_at = $12,
			rejected_by = $13, rejected_at = $14,
			updated_at = $15
		WHERE id = $1
	`,
		string(rec.ID), int(rec.Period), rec.Amount.String(), string(rec.Status), rec.Applied, rec.AppliedAmount.String(),
		rec.Remarks, rec.Context,
		rec.ManagerApprovedBy, rec.ManagerApprovedAt, rec.ApprovedBy, rec.ApprovedAt, rec.RejectedBy, rec.RejectedAt,
		rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", generic.ErrRequestNotFound, rec.ID)
	}
	return nil
}

func (q *queries) DeleteRequest(ctx context.Context, id generic.RequestID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM requests WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", generic.ErrRequestNotFound, id)
	}
	return nil
}

func (q *queries) ListRequests(ctx context.Context, f generic.RequestFilter) ([]generic.RequestRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("employee_id", string(f.EmployeeID))
	add("resource", f.Resource)
	add("status", string(f.Status))

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq DESC`

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []generic.RequestRecord
	for rows.Next() {
		rec, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (generic.RequestRecord, error) {
	var (
		r                       generic.RequestRecord
		id, employeeID          string
		period                  int
		amount, appliedAmount   string
		unit, direction, status string
		createdAt, updatedAt    time.Time
	)
	err := row.Scan(
		&id, &employeeID, &r.Department, &r.Resource, &period, &amount, &unit, &direction, &status,
		&r.Applied, &appliedAmount, &r.RequestedBy, &r.Remarks, &r.Context,
		&r.ManagerApprovedBy, &r.ManagerApprovedAt, &r.ApprovedBy, &r.ApprovedAt, &r.RejectedBy, &r.RejectedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan request: %w", err)
	}
	r.ID = generic.RequestID(id)
	r.EmployeeID = generic.EmployeeID(employeeID)
	r.Period = generic.AccountingPeriod(period)
	r.Unit = generic.Unit(unit)
	r.Direction = generic.Direction(direction)
	r.Status = generic.Status(status)
	r.CreatedAt, r.UpdatedAt = createdAt, updatedAt
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return r, err
	}
	if r.AppliedAmount, err = decimal.NewFromString(appliedAmount); err != nil {
		return r, err
	}
	return r, nil
}

func (q *queries) AppendTransition(ctx context.Context, t generic.TransitionEntry) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO request_transitions (id, request_id, from_status, to_status, trigger_name, actor, remarks, synthetic, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, string(t.RequestID), string(t.From), string(t.To), string(t.Trigger), t.Actor, t.Remarks, t.Synthetic, t.At)
	if err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}
	return nil
}

func (q *queries) Transitions(ctx context.Context, id generic.RequestID) ([]generic.TransitionEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, from_status, to_status, trigger_name, actor, remarks, synthetic, created_at
		FROM request_transitions
		WHERE request_id = $1
		ORDER BY seq ASC
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []generic.TransitionEntry
	for rows.Next() {
		var (
			t                 generic.TransitionEntry
			from, to, trigger string
		)
		if err := rows.Scan(&t.ID, &from, &to, &trigger, &t.Actor, &t.Remarks, &t.Synthetic, &t.At); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		t.RequestID = id
		t.From, t.To = generic.Status(from), generic.Status(to)
		t.Trigger = generic.Trigger(trigger)
		out = append(out, t)
	}
	return out, rows.Err()
}
