package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/approval-ledger/generic"
	"github.com/warp/approval-ledger/overtime"
)

// =============================================================================
// EMPLOYEES & ROLES (generic.EmployeeResolver, generic.RoleResolver)
// =============================================================================

// AddEmployee inserts or moves an employee to a department.
func (s *Store) AddEmployee(ctx context.Context, id generic.EmployeeID, department string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, department) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET department = excluded.department
	`, id, department)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) AddDepartmentManager(ctx context.Context, actorID, department string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO department_managers (actor_id, department) VALUES (?, ?)`,
		actorID, department)
	if err != nil {
		return fmt.Errorf("failed to save department manager: %w", err)
	}
	return nil
}

func (s *Store) AddHRDManager(ctx context.Context, actorID string) error {
	return s.setRoleFlag(ctx, actorID, "is_hrd_manager")
}

func (s *Store) AddSuperAdmin(ctx context.Context, actorID string) error {
	return s.setRoleFlag(ctx, actorID, "is_super_admin")
}

func (s *Store) setRoleFlag(ctx context.Context, actorID, column string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actor_roles (actor_id, `+column+`) VALUES (?, 1)
		ON CONFLICT(actor_id) DO UPDATE SET `+column+` = 1
	`, actorID)
	if err != nil {
		return fmt.Errorf("failed to save role: %w", err)
	}
	return nil
}

func (s *Store) ResolveEmployee(ctx context.Context, id generic.EmployeeID) (generic.Employee, error) {
	emp := generic.Employee{ID: id}
	err := s.db.QueryRowContext(ctx, `SELECT department FROM employees WHERE id = ?`, id).Scan(&emp.Department)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Employee{}, fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, id)
	}
	if err != nil {
		return generic.Employee{}, fmt.Errorf("failed to resolve employee: %w", err)
	}
	return emp, nil
}

// ResolveRoles returns an empty snapshot for actors with no rows.
func (s *Store) ResolveRoles(ctx context.Context, actorID string) (generic.RoleSnapshot, error) {
	roles := generic.RoleSnapshot{ActorID: actorID}

	err := s.db.QueryRowContext(ctx,
		`SELECT is_hrd_manager, is_super_admin FROM actor_roles WHERE actor_id = ?`, actorID,
	).Scan(&roles.IsHRDManager, &roles.IsSuperAdmin)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return roles, fmt.Errorf("failed to resolve roles: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT department FROM department_managers WHERE actor_id = ? ORDER BY department`, actorID)
	if err != nil {
		return roles, fmt.Errorf("failed to resolve managed departments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dept string
		if err := rows.Scan(&dept); err != nil {
			return roles, err
		}
		roles.DepartmentManagerOf = append(roles.DepartmentManagerOf, dept)
	}
	return roles, rows.Err()
}

// =============================================================================
// CALENDAR
// =============================================================================

// SaveCalendarDay marks day as a holiday, rest day or scheduled rest day.
// overtime.Ordinary removes any mark.
func (s *Store) SaveCalendarDay(ctx context.Context, day time.Time, kind overtime.DayType, name string) error {
	key := overtime.DayKey(day)
	if kind == overtime.Ordinary {
		_, err := s.db.ExecContext(ctx, `DELETE FROM calendar_days WHERE day = ?`, key)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_days (day, kind, name) VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET kind = excluded.kind, name = excluded.name
	`, key, string(kind), nullString(name))
	if err != nil {
		return fmt.Errorf("failed to save calendar day: %w", err)
	}
	return nil
}

// LoadCalendar snapshots calendar_days into a StaticCalendar.
func (s *Store) LoadCalendar(ctx context.Context, restWeekdays ...time.Weekday) (*overtime.StaticCalendar, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT day, kind, name FROM calendar_days`)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}
	defer rows.Close()

	cal := overtime.NewStaticCalendar(restWeekdays...)
	for rows.Next() {
		var (
			day, kind string
			name      sql.NullString
		)
		if err := rows.Scan(&day, &kind, &name); err != nil {
			return nil, fmt.Errorf("failed to scan calendar day: %w", err)
		}
		if err := overtime.ApplyDay(cal, day, overtime.DayType(kind), name.String); err != nil {
			return nil, err
		}
	}
	return cal, rows.Err()
}
