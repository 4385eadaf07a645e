// Package overtime implements overtime claims: the overtime_hours
// resource, its three-stage approval chain, and the rate calculator that
// turns a worked interval into effective hours.
package overtime

import (
	"github.com/shopspring/decimal"

	"github.com/warp/approval-ledger/generic"
)

// =============================================================================
// OVERTIME RESOURCE TYPE
// =============================================================================

// Resource is the concrete resource type for the overtime domain.
type Resource string

func (r Resource) ResourceID() string     { return string(r) }
func (r Resource) ResourceDomain() string { return "overtime" }

var _ generic.ResourceType = Resource("")

const ResourceOvertime Resource = "overtime_hours"

func init() {
	generic.RegisterResource(ResourceOvertime)
}

// Policy returns the overtime policy: hours, one perpetual bucket,
// department then HRD approval, no balance draw-down.
func Policy() generic.ResourcePolicy {
	return generic.ResourcePolicy{
		Resource:     ResourceOvertime,
		Unit:         generic.UnitHours,
		Periodic:     false,
		DefaultGrant: decimal.Zero,
		Workflow:     generic.ThreeStage,
		Ledgered:     false,
	}
}

// =============================================================================
// DAY TYPE
// =============================================================================

// DayType classifies a calendar day for rate purposes.
type DayType string

const (
	Ordinary         DayType = "ordinary"
	RestDay          DayType = "rest_day"
	ScheduledRestDay DayType = "scheduled_rest_day"
	Holiday          DayType = "holiday"
)

// Rate is the multiplier pair for one day type.
type Rate struct {
	Base  decimal.Decimal
	Night decimal.Decimal // applies to the part inside 22:00-06:00
}

// Rates is the multiplier table.
var Rates = map[DayType]Rate{
	Ordinary:         {Base: decimal.RequireFromString("1.25"), Night: decimal.RequireFromString("1.375")},
	RestDay:          {Base: decimal.RequireFromString("1.69"), Night: decimal.RequireFromString("1.859")},
	ScheduledRestDay: {Base: decimal.RequireFromString("1.95"), Night: decimal.RequireFromString("2.145")},
	Holiday:          {Base: decimal.RequireFromString("2.60"), Night: decimal.RequireFromString("2.86")},
}

// DefaultMultiplier is the ordinary weekday rate.
var DefaultMultiplier = Rates[Ordinary].Base
