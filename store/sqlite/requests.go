package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/approval-ledger/generic"
)

// =============================================================================
// REQUEST STORE (for approval workflow)
// =============================================================================

const requestColumns = `id, employee_id, department, resource, period, amount, unit, direction, status,
	applied, applied_amount, requested_by, remarks, context_json,
	manager_approved_by, manager_approved_at, approved_by, approved_at, rejected_by, rejected_at,
	created_at, updated_at`

func (q *queries) CreateRequest(ctx context.Context, rec generic.RequestRecord) error {
	contextJSON, err := marshalContext(rec.Context)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.EmployeeID, rec.Department, rec.Resource, int(rec.Period),
		rec.Amount.String(), string(rec.Unit), string(rec.Direction), string(rec.Status),
		rec.Applied, rec.AppliedAmount.String(), rec.RequestedBy, rec.Remarks, contextJSON,
		nullStringPtr(rec.ManagerApprovedBy), nullTime(rec.ManagerApprovedAt),
		nullStringPtr(rec.ApprovedBy), nullTime(rec.ApprovedAt),
		nullStringPtr(rec.RejectedBy), nullTime(rec.RejectedAt),
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: request %s already exists", generic.ErrConcurrentModification, rec.ID)
		}
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (q *queries) GetRequest(ctx context.Context, id generic.RequestID) (generic.RequestRecord, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	rec, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.RequestRecord{}, fmt.Errorf("%w: %s", generic.ErrRequestNotFound, id)
	}
	return rec, err
}

// GetRequestForUpdate is GetRequest; the IMMEDIATE transaction holds the
// write lock.
func (q *queries) GetRequestForUpdate(ctx context.Context, id generic.RequestID) (generic.RequestRecord, error) {
	return q.GetRequest(ctx, id)
}

func (q *queries) UpdateRequest(ctx context.Context, rec generic.RequestRecord) error {
	contextJSON, err := marshalContext(rec.Context)
	if err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE requests SET
			period = ?, amount = ?, status = ?, applied = ?, applied_amount = ?,
			remarks = ?, context_json = ?,
			manager_approved_by = ?, manager_approved_at = ?,
			approved_by = ?, approved_at = ?,
			rejected_by = ?, rejected_at = ?,
			updated_at = ?
		WHERE id = ?
	`,
		int(rec.Period), rec.Amount.String(), string(rec.Status), rec.Applied, rec.AppliedAmount.String(),
		rec.Remarks, contextJSON,
		nullStringPtr(rec.ManagerApprovedBy), nullTime(rec.ManagerApprovedAt),
		nullStringPtr(rec.ApprovedBy), nullTime(rec.ApprovedAt),
		nullStringPtr(rec.RejectedBy), nullTime(rec.RejectedAt),
		formatTime(rec.UpdatedAt),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	return requireOneRow(res, rec.ID)
}

func (q *queries) DeleteRequest(ctx context.Context, id generic.RequestID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	return requireOneRow(res, id)
}

func (q *queries) ListRequests(ctx context.Context, f generic.RequestFilter) ([]generic.RequestRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.Resource != "" {
		where = append(where, "resource = ?")
		args = append(args, f.Resource)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq DESC`

	rows, err := q.db.QueryContext(ctx, query, args...)
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

func scanRequest(row scanner) (generic.RequestRecord, error) {
	var (
		r                            generic.RequestRecord
		period                       int
		unit, direction, status      string
		contextJSON                  sql.NullString
		mgrBy, mgrAt, apprBy, apprAt sql.NullString
		rejBy, rejAt                 sql.NullString
		createdAt, updatedAt         string
	)
	err := row.Scan(
		&r.ID, &r.EmployeeID, &r.Department, &r.Resource, &period, &r.Amount, &unit, &direction, &status,
		&r.Applied, &r.AppliedAmount, &r.RequestedBy, &r.Remarks, &contextJSON,
		&mgrBy, &mgrAt, &apprBy, &apprAt, &rejBy, &rejAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan request: %w", err)
	}

	r.Period = generic.AccountingPeriod(period)
	r.Unit = generic.Unit(unit)
	r.Direction = generic.Direction(direction)
	r.Status = generic.Status(status)
	r.ManagerApprovedBy, r.ManagerApprovedAt = stringPtr(mgrBy), timePtr(mgrAt)
	r.ApprovedBy, r.ApprovedAt = stringPtr(apprBy), timePtr(apprAt)
	r.RejectedBy, r.RejectedAt = stringPtr(rejBy), timePtr(rejAt)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)

	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &r.Context); err != nil {
			return r, fmt.Errorf("failed to decode request context: %w", err)
		}
	}
	return r, nil
}

// =============================================================================
// TRANSITIONS (append-only)
// =============================================================================

func (q *queries) AppendTransition(ctx context.Context, t generic.TransitionEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO request_transitions
		(id, request_id, from_status, to_status, trigger_name, actor, remarks, synthetic, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.RequestID, string(t.From), string(t.To), string(t.Trigger),
		t.Actor, nullString(t.Remarks), t.Synthetic, formatTime(t.At),
	)
	if err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}
	return nil
}

func (q *queries) Transitions(ctx context.Context, id generic.RequestID) ([]generic.TransitionEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, from_status, to_status, trigger_name, actor, remarks, synthetic, created_at
		FROM request_transitions
		WHERE request_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []generic.TransitionEntry
	for rows.Next() {
		var (
			t                     generic.TransitionEntry
			from, to, trigger, at string
			remarks               sql.NullString
		)
		if err := rows.Scan(&t.ID, &from, &to, &trigger, &t.Actor, &remarks, &t.Synthetic, &at); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		t.RequestID = id
		t.From, t.To = generic.Status(from), generic.Status(to)
		t.Trigger = generic.Trigger(trigger)
		t.Remarks = remarks.String
		t.At = parseTime(at)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Helper functions

func marshalContext(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode request context: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func requireOneRow(res sql.Result, id generic.RequestID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrRequestNotFound, id)
	}
	return nil
}
