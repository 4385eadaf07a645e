package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/warp/approval-ledger/generic"
	"github.com/warp/approval-ledger/overtime"
)

func (s *Store) AddEmployee(ctx context.Context, id generic.EmployeeID, department string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO employees (id, department) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET department = EXCLUDED.department
	`, string(id), department)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) AddDepartmentManager(ctx context.Context, actorID, department string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO department_managers (actor_id, department) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, actorID, department)
	if err != nil {
		return fmt.Errorf("failed to save department manager: %w", err)
	}
	return nil
}

func (s *Store) AddHRDManager(ctx context.Context, actorID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO actor_roles (actor_id, is_hrd_manager) VALUES ($1, TRUE)
		ON CONFLICT (actor_id) DO UPDATE SET is_hrd_manager = TRUE
	`, actorID)
	if err != nil {
		return fmt.Errorf("failed to save role: %w", err)
	}
	return nil
}

func (s *Store) AddSuperAdmin(ctx context.Context, actorID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO actor_roles (actor_id, is_super_admin) VALUES ($1, TRUE)
		ON CONFLICT (actor_id) DO UPDATE SET is_super_admin = TRUE
	`, actorID)
	if err != nil {
		return fmt.Errorf("failed to save role: %w", err)
	}
	return nil
}

func (s *Store) ResolveEmployee(ctx context.Context, id generic.EmployeeID) (generic.Employee, error) {
	emp := generic.Employee{ID: id}
	err := s.pool.QueryRow(ctx, `SELECT department FROM employees WHERE id = $1`, string(id)).Scan(&emp.Department)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.Employee{}, fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, id)
	}
	if err != nil {
		return generic.Employee{}, fmt.Errorf("failed to resolve employee: %w", err)
	}
	return emp, nil
}

func (s *Store) ResolveRoles(ctx context.Context, actorID string) (generic.RoleSnapshot, error) {
	roles := generic.RoleSnapshot{ActorID: actorID}
	err := s.pool.QueryRow(ctx,
		`SELECT is_hrd_manager, is_super_admin FROM actor_roles WHERE actor_id = $1`, actorID,
	).Scan(&roles.IsHRDManager, &roles.IsSuperAdmin)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return roles, fmt.Errorf("failed to resolve roles: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT department FROM department_managers WHERE actor_id = $1 ORDER BY department`, actorID)
	if err != nil {
		return roles, fmt.Errorf("failed to resolve managed departments: %w", err)
	}
	roles.DepartmentManagerOf, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return roles, fmt.Errorf("failed to resolve managed departments: %w", err)
	}
	return roles, nil
}

// SaveCalendarDay marks day; overtime.Ordinary removes the mark.
func (s *Store) SaveCalendarDay(ctx context.Context, day time.Time, kind overtime.DayType, name string) error {
	key := overtime.DayKey(day)
	var err error
	if kind == overtime.Ordinary {
		_, err = s.pool.Exec(ctx, `DELETE FROM calendar_days WHERE day = $1::date`, key)
	} else {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO calendar_days (day, kind, name) VALUES ($1::date, $2, $3)
			ON CONFLICT (day) DO UPDATE SET kind = EXCLUDED.kind, name = EXCLUDED.name
		`, key, string(kind), name)
	}
	if err != nil {
		return fmt.Errorf("failed to save calendar day: %w", err)
	}
	return nil
}

// LoadCalendar snapshots calendar_days into a StaticCalendar.
func (s *Store) LoadCalendar(ctx context.Context, restWeekdays ...time.Weekday) (*overtime.StaticCalendar, error) {
	rows, err := s.pool.Query(ctx, `SELECT to_char(day, 'YYYY-MM-DD'), kind, name FROM calendar_days`)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}
	defer rows.Close()

	cal := overtime.NewStaticCalendar(restWeekdays...)
	for rows.Next() {
		var day, kind, name string
		if err := rows.Scan(&day, &kind, &name); err != nil {
			return nil, fmt.Errorf("failed to scan calendar day: %w", err)
		}
		if err := overtime.ApplyDay(cal, day, overtime.DayType(kind), name); err != nil {
			return nil, err
		}
	}
	return cal, rows.Err()
}
