/*
policies.go - Pre-built time-off policy configurations

AVAILABLE POLICIES:
  OffsetPolicy:   hours, single perpetual bank, two-stage approval
  SickPolicy:     days, one bank per year, two-stage approval
  VacationPolicy: days, one bank per year, two-stage approval

  The grant each bank opens with is configurable (config.LedgerConfig);
  all other fields are fixed.

EXAMPLE:
  for _, p := range timeoff.Policies(decimal.Zero, decimal.NewFromInt(15), decimal.NewFromInt(15)) {
      engine.RegisterPolicy(p)
  }
*/
package timeoff

import (
	"github.com/shopspring/decimal"

	"github.com/warp/approval-ledger/generic"
)

// OffsetPolicy returns the offset-hours policy.
func OffsetPolicy(defaultGrant decimal.Decimal) generic.ResourcePolicy {
	return generic.ResourcePolicy{
		Resource:     ResourceOffset,
		Unit:         generic.UnitHours,
		Periodic:     false,
		DefaultGrant: defaultGrant,
		Workflow:     generic.TwoStage,
		Ledgered:     true,
	}
}

// SickPolicy returns the sick-day bank policy.
func SickPolicy(defaultGrant decimal.Decimal) generic.ResourcePolicy {
	return dayBank(ResourceSick, defaultGrant)
}

// VacationPolicy returns the vacation-day bank policy.
func VacationPolicy(defaultGrant decimal.Decimal) generic.ResourcePolicy {
	return dayBank(ResourceVacation, defaultGrant)
}

// Policies returns all three time-off policies.
func Policies(offset, sick, vacation decimal.Decimal) []generic.ResourcePolicy {
	return []generic.ResourcePolicy{
		OffsetPolicy(offset),
		SickPolicy(sick),
		VacationPolicy(vacation),
	}
}

func dayBank(r Resource, defaultGrant decimal.Decimal) generic.ResourcePolicy {
	return generic.ResourcePolicy{
		Resource:     r,
		Unit:         generic.UnitDays,
		Periodic:     true,
		DefaultGrant: defaultGrant,
		Workflow:     generic.TwoStage,
		Ledgered:     true,
	}
}
