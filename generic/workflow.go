/*
workflow.go - ApprovalWorkflow: state machine and authorization gate

PURPOSE:
  Decides whether a requested status change is legal for a resource's
  approval chain and whether the acting user holds the role that change
  requires. It never touches a balance; the reconciler does that.

STATE MACHINES:

  Two-stage (offset hours, leave days):
    pending  --approve-->        approved
    pending  --reject-->         rejected
    approved --revert-->         pending | rejected
    pending  --force_approve-->  approved          (super-admin)

  Three-stage (overtime):
    pending          --department_approve--> manager_approved
    manager_approved --final_approve-->      approved
    pending|manager_approved --reject-->     rejected
    pending|manager_approved --force_approve--> approved (super-admin)

AUTHORIZATION LEVELS:
  LevelDepartment: manager of the record's department, or super-admin
  LevelFinal:      HRD manager, or super-admin
  LevelAny:        any of the above
  LevelAdmin:      super-admin only

  Roles come from an immutable RoleSnapshot resolved once per operation;
  the workflow never queries identity state mid-transition.

SAME-STATE UPDATE:
  Targeting the current status is a remarks-only update. It is allowed for
  the requester and for any approver of the record, and it never reaches
  the reconciler.

SEE ALSO:
  - engine.go: UpdateStatus drives Resolve + Authorize + reconcile
  - policy.go: WorkflowKind selects the chain per resource
*/
package generic

import (
	"context"
	"fmt"
	"slices"
)

// =============================================================================
// COLLABORATORS - Identity is resolved outside the engine
// =============================================================================

// Employee is the master-data view the engine needs.
type Employee struct {
	ID         EmployeeID
	Department string
}

// EmployeeResolver looks up an employee's department.
type EmployeeResolver interface {
	ResolveEmployee(ctx context.Context, id EmployeeID) (Employee, error)
}

// RoleSnapshot is an immutable view of an actor's roles.
type RoleSnapshot struct {
	ActorID             string
	DepartmentManagerOf []string
	IsHRDManager        bool
	IsSuperAdmin        bool
}

// RoleResolver returns the role snapshot of an actor.
type RoleResolver interface {
	ResolveRoles(ctx context.Context, actorID string) (RoleSnapshot, error)
}

func (r RoleSnapshot) ManagesDepartment(dept string) bool {
	return dept != "" && slices.Contains(r.DepartmentManagerOf, dept)
}

// CanActOn reports whether the actor holds any approver role for a record
// in dept.
func (r RoleSnapshot) CanActOn(dept string) bool {
	return r.IsSuperAdmin || r.IsHRDManager || r.ManagesDepartment(dept)
}

// =============================================================================
// LEVELS AND TRIGGERS
// =============================================================================

// Level is the role a transition requires.
type Level int

const (
	LevelDepartment Level = iota + 1
	LevelFinal
	LevelAny
	LevelAdmin
)

func (l Level) String() string {
	switch l {
	case LevelDepartment:
		return "department manager"
	case LevelFinal:
		return "HRD manager"
	case LevelAny:
		return "department manager or HRD manager"
	case LevelAdmin:
		return "super-admin"
	default:
		return "unknown"
	}
}

// Allows reports whether roles satisfy l for a record in dept.
// A super-admin satisfies every level.
func (l Level) Allows(roles RoleSnapshot, dept string) bool {
	if roles.IsSuperAdmin {
		return true
	}
	switch l {
	case LevelDepartment:
		return roles.ManagesDepartment(dept)
	case LevelFinal:
		return roles.IsHRDManager
	case LevelAny:
		return roles.IsHRDManager || roles.ManagesDepartment(dept)
	}
	return false
}

// Trigger names the edge taken through the state machine.
type Trigger string

const (
	TriggerSubmit            Trigger = "submit"
	TriggerApprove           Trigger = "approve"
	TriggerDepartmentApprove Trigger = "department_approve"
	TriggerFinalApprove      Trigger = "final_approve"
	TriggerReject            Trigger = "reject"
	TriggerRevert            Trigger = "revert"
	TriggerForceApprove      Trigger = "force_approve"
	TriggerRemarks           Trigger = "remarks"
	TriggerAmend             Trigger = "amend"
)

// Transition is one legal edge.
type Transition struct {
	From    Status
	To      Status
	Trigger Trigger
	Level   Level
}

// =============================================================================
// WORKFLOWS
// =============================================================================

// WorkflowKind selects an approval chain.
type WorkflowKind string

const (
	TwoStage   WorkflowKind = "two_stage"
	ThreeStage WorkflowKind = "three_stage"
)

// Workflow is a table of legal transitions.
type Workflow struct {
	Kind        WorkflowKind
	transitions []Transition
}

var twoStage = Workflow{
	Kind: TwoStage,
	transitions: []Transition{
		{From: StatusPending, To: StatusApproved, Trigger: TriggerApprove, Level: LevelAny},
		{From: StatusPending, To: StatusRejected, Trigger: TriggerReject, Level: LevelAny},
		{From: StatusApproved, To: StatusPending, Trigger: TriggerRevert, Level: LevelFinal},
		{From: StatusApproved, To: StatusRejected, Trigger: TriggerRevert, Level: LevelFinal},
		{From: StatusPending, To: StatusForceApproved, Trigger: TriggerForceApprove, Level: LevelAdmin},
	},
}

var threeStage = Workflow{
	Kind: ThreeStage,
	transitions: []Transition{
		{From: StatusPending, To: StatusManagerApproved, Trigger: TriggerDepartmentApprove, Level: LevelDepartment},
		{From: StatusManagerApproved, To: StatusApproved, Trigger: TriggerFinalApprove, Level: LevelFinal},
		{From: StatusPending, To: StatusRejected, Trigger: TriggerReject, Level: LevelAny},
		{From: StatusManagerApproved, To: StatusRejected, Trigger: TriggerReject, Level: LevelAny},
		{From: StatusPending, To: StatusForceApproved, Trigger: TriggerForceApprove, Level: LevelAdmin},
		{From: StatusManagerApproved, To: StatusForceApproved, Trigger: TriggerForceApprove, Level: LevelAdmin},
	},
}

// WorkflowFor returns the chain for kind. Unknown kinds fall back to two-stage.
func WorkflowFor(kind WorkflowKind) Workflow {
	if kind == ThreeStage {
		return threeStage
	}
	return twoStage
}

// Transitions lists the legal edges of the chain.
func (w Workflow) Transitions() []Transition {
	return slices.Clone(w.transitions)
}

// Resolve finds the edge from -> to. A same-state target yields the
// remarks-only transition; anything else unreachable is an
// InvalidTransitionError.
func (w Workflow) Resolve(rec RequestRecord, to Status) (Transition, error) {
	if to == rec.Status {
		return Transition{From: to, To: to, Trigger: TriggerRemarks}, nil
	}
	for _, t := range w.transitions {
		if t.From == rec.Status && t.To == to {
			return t, nil
		}
	}
	return Transition{}, &InvalidTransitionError{RequestID: rec.ID, Resource: rec.Resource, From: rec.Status, To: to}
}

// Authorize checks roles against the transition. Evaluated before any
// state change.
func Authorize(t Transition, rec RequestRecord, roles RoleSnapshot) error {
	if t.Trigger == TriggerRemarks {
		if roles.ActorID == rec.RequestedBy || roles.ActorID == string(rec.EmployeeID) || roles.CanActOn(rec.Department) {
			return nil
		}
		return &UnauthorizedError{Actor: roles.ActorID, Required: LevelAny, Transition: "update remarks"}
	}
	if !t.Level.Allows(roles, rec.Department) {
		return &UnauthorizedError{
			Actor:      roles.ActorID,
			Required:   t.Level,
			Transition: fmt.Sprintf("%s (%s -> %s)", t.Trigger, t.From, t.To),
		}
	}
	return nil
}

// EffectiveTarget normalizes the force_approved pseudo-status.
func EffectiveTarget(s Status) Status {
	if s == StatusForceApproved {
		return StatusApproved
	}
	return s
}
