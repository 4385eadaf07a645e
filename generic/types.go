/*
Package generic provides the approval workflow and balance ledger engine.

PURPOSE:
  Several HR resources share one mechanism: an employee files a request,
  the request climbs a role-gated approval chain, and only the moment it
  becomes "approved" does a persistent balance move. Compensatory offset
  hours, sick/vacation day banks and overtime claims all run through the
  same engine; domain packages (timeoff, overtime) only describe their
  resource types and how a request is built.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (hours or days)
  - Direction: credit, debit or none (ledger effect of a request)
  - EmployeeID / RequestID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Single mutator: Only the reconciler and Grant move an account
  3. Explicit state: is_applied is persisted, never inferred from status
  4. Auditability: Every mutation and every transition is journaled

USAGE:
  engine := generic.NewEngine(store, directory, directory, generic.WithLogger(logger))
  engine.RegisterPolicy(timeoff.OffsetPolicy(decimal.Zero))

  rec, err := engine.SubmitRequest(ctx, generic.SubmitInput{
      EmployeeID: "emp-7",
      Resource:   string(timeoff.ResourceOffset),
      Amount:     decimal.NewFromInt(8),
      Direction:  generic.DirectionDebit,
  })

SEE ALSO:
  - account.go: BalanceAccount and its three mutators
  - workflow.go: State machine and authorization gate
  - reconciler.go: Applies/reverses ledger mutations
  - engine.go: The exposed operations
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays  Unit = "days"
	UnitHours Unit = "hours"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Add(b Amount) Amount { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) IsNegative() bool    { return a.Value.IsNegative() }
func (a Amount) IsZero() bool        { return a.Value.IsZero() }
func (a Amount) IsPositive() bool    { return a.Value.IsPositive() }
func (a Amount) String() string      { return fmt.Sprintf("%s %s", a.Value.String(), a.Unit) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type RequestID string

// =============================================================================
// DIRECTION - Ledger effect of a request once approved
// =============================================================================

type Direction string

const (
	DirectionCredit Direction = "credit" // adds units to the bank
	DirectionDebit  Direction = "debit"  // draws units from the bank
	DirectionNone   Direction = "none"   // workflow only (unpaid leave, overtime claims)
)

func (d Direction) IsValid() bool {
	switch d {
	case DirectionCredit, DirectionDebit, DirectionNone:
		return true
	}
	return false
}

// Inverse returns the direction that undoes d.
func (d Direction) Inverse() Direction {
	switch d {
	case DirectionCredit:
		return DirectionDebit
	case DirectionDebit:
		return DirectionCredit
	default:
		return DirectionNone
	}
}
