package store

import (
	"context"
	"slices"
	"sync"

	"github.com/warp/approval-ledger/generic"
)

// Directory is an in-memory EmployeeResolver and RoleResolver.
// Actors without an entry resolve to an empty role snapshot.
type Directory struct {
	mu        sync.RWMutex
	employees map[generic.EmployeeID]generic.Employee
	roles     map[string]generic.RoleSnapshot
}

var (
	_ generic.EmployeeResolver = (*Directory)(nil)
	_ generic.RoleResolver     = (*Directory)(nil)
)

func NewDirectory() *Directory {
	return &Directory{
		employees: make(map[generic.EmployeeID]generic.Employee),
		roles:     make(map[string]generic.RoleSnapshot),
	}
}

// AddEmployee registers an employee in a department.
func (d *Directory) AddEmployee(id generic.EmployeeID, department string) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees[id] = generic.Employee{ID: id, Department: department}
	return d
}

// AddDepartmentManager makes actor the approver of dept.
func (d *Directory) AddDepartmentManager(actor, dept string) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.roles[actor]
	if !slices.Contains(r.DepartmentManagerOf, dept) {
		r.DepartmentManagerOf = append(slices.Clone(r.DepartmentManagerOf), dept)
	}
	d.roles[actor] = r
	return d
}

func (d *Directory) AddHRDManager(actor string) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.roles[actor]
	r.IsHRDManager = true
	d.roles[actor] = r
	return d
}

func (d *Directory) AddSuperAdmin(actor string) *Directory {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.roles[actor]
	r.IsSuperAdmin = true
	d.roles[actor] = r
	return d
}

func (d *Directory) ResolveEmployee(_ context.Context, id generic.EmployeeID) (generic.Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	emp, ok := d.employees[id]
	if !ok {
		return generic.Employee{}, generic.ErrEmployeeNotFound
	}
	return emp, nil
}

// ResolveRoles returns a copy, so callers can't mutate the directory
// through the snapshot.
func (d *Directory) ResolveRoles(_ context.Context, actorID string) (generic.RoleSnapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r := d.roles[actorID]
	r.ActorID = actorID
	r.DepartmentManagerOf = slices.Clone(r.DepartmentManagerOf)
	return r, nil
}
