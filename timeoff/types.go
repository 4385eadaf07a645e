// Package timeoff implements the offset-hours bank and the sick/vacation
// day banks on top of the generic engine.
package timeoff

import "github.com/warp/approval-ledger/generic"

// =============================================================================
// TIME-OFF RESOURCE TYPE
// =============================================================================

// Resource is the concrete resource type for the time-off domain.
// Implements generic.ResourceType interface.
type Resource string

func (r Resource) ResourceID() string     { return string(r) }
func (r Resource) ResourceDomain() string { return "timeoff" }

// Compile-time check that Resource implements generic.ResourceType
var _ generic.ResourceType = Resource("")

const (
	// ResourceOffset is compensatory time-off, one perpetual account per employee.
	ResourceOffset Resource = "offset_hours"
	// ResourceSick and ResourceVacation are day banks, one account per year.
	ResourceSick     Resource = "sick_days"
	ResourceVacation Resource = "vacation_days"
)

// Register all time-off resources with the generic registry
func init() {
	generic.RegisterResource(ResourceOffset)
	generic.RegisterResource(ResourceSick)
	generic.RegisterResource(ResourceVacation)
}

// LeaveKind selects which day bank a leave request draws from.
type LeaveKind string

const (
	LeaveSick     LeaveKind = "sick"
	LeaveVacation LeaveKind = "vacation"
)

// Resource maps a leave kind to its bank.
func (k LeaveKind) Resource() (Resource, error) {
	switch k {
	case LeaveSick:
		return ResourceSick, nil
	case LeaveVacation:
		return ResourceVacation, nil
	}
	return "", &generic.ValidationError{Field: "kind", Reason: "leave kind must be sick or vacation, got " + string(k)}
}
