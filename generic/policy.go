/*
policy.go - Per-resource rules

PURPOSE:
  A ResourcePolicy tells the engine how one resource type behaves: its
  unit, whether accounts are per year or perpetual, the grant a new
  account opens with, which approval chain its requests climb, and
  whether approval moves a balance at all.

EXAMPLE:
  engine.RegisterPolicy(generic.ResourcePolicy{
      Resource:     timeoff.ResourceSick,
      Unit:         generic.UnitDays,
      Periodic:     true,
      DefaultGrant: decimal.NewFromInt(15),
      Workflow:     generic.TwoStage,
      Ledgered:     true,
  })

SEE ALSO:
  - timeoff/policies.go, overtime/types.go: the shipped policies
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// ResourcePolicy is the ruleset for one resource type.
type ResourcePolicy struct {
	Resource     ResourceType
	Unit         Unit
	Periodic     bool            // one account per year; false means a single perpetual account
	DefaultGrant decimal.Decimal // granted on lazy account creation
	Workflow     WorkflowKind
	Ledgered     bool // false: requests run the workflow but never move a balance
}

func (p ResourcePolicy) ID() string { return p.Resource.ResourceID() }

// Validate checks the policy itself.
func (p ResourcePolicy) Validate() error {
	if p.Resource == nil || p.Resource.ResourceID() == "" {
		return invalid("resource", "policy has no resource type")
	}
	if p.Unit != UnitDays && p.Unit != UnitHours {
		return invalid("unit", "unsupported unit %q", p.Unit)
	}
	if p.DefaultGrant.IsNegative() {
		return invalid("default_grant", "must not be negative, got %s", p.DefaultGrant)
	}
	if p.Workflow != TwoStage && p.Workflow != ThreeStage {
		return invalid("workflow", "unknown workflow %q", p.Workflow)
	}
	return nil
}

// NormalizePeriod maps a requested period to the account period.
// Perpetual resources ignore the period; periodic ones require a year.
func (p ResourcePolicy) NormalizePeriod(period AccountingPeriod) (AccountingPeriod, error) {
	if !p.Periodic {
		return Perpetual, nil
	}
	if !period.validYear() {
		return 0, invalid("accounting_period", "%s requires an explicit accounting year, got %d", p.ID(), int(period))
	}
	return period, nil
}

// checkDirection enforces that non-ledgered resources only carry DirectionNone.
func (p ResourcePolicy) checkDirection(d Direction) error {
	if !d.IsValid() {
		return invalid("direction", "unknown direction %q", d)
	}
	if !p.Ledgered && d != DirectionNone {
		return invalid("direction", "%s does not move a balance; direction must be %q", p.ID(), DirectionNone)
	}
	return nil
}
