package timeoff

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/approval-ledger/generic"
)

var half = decimal.RequireFromString("0.5")

// =============================================================================
// LEAVE REQUEST - sick / vacation days
// =============================================================================

// LeaveRequest is a sick or vacation leave as filed.
//
// AccountingYear is the bank the leave posts against. It is required and
// never derived from StartDate: a December filing can target next year.
type LeaveRequest struct {
	EmployeeID     generic.EmployeeID
	Kind           LeaveKind
	WithPay        bool
	StartDate      time.Time
	EndDate        time.Time
	StartHalf      bool // leave starts at midday
	EndHalf        bool // leave ends at midday
	AccountingYear int
	RequestedBy    string
	Reason         string
}

// Days returns the inclusive day count with half-day boundaries.
func (r LeaveRequest) Days() (decimal.Decimal, error) {
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return decimal.Zero, &generic.ValidationError{Field: "dates", Reason: "start_date and end_date are required"}
	}
	start, end := civilDay(r.StartDate), civilDay(r.EndDate)
	if end.Before(start) {
		return decimal.Zero, &generic.ValidationError{Field: "end_date", Reason: "end date before start date"}
	}
	if start.Equal(end) && r.StartHalf && r.EndHalf {
		return decimal.Zero, &generic.ValidationError{Field: "half_day", Reason: "a single day cannot start and end at midday"}
	}

	days := decimal.NewFromInt(int64(end.Sub(start)/(24*time.Hour)) + 1)
	if r.StartHalf {
		days = days.Sub(half)
	}
	if r.EndHalf {
		days = days.Sub(half)
	}
	if !days.IsPositive() {
		return decimal.Zero, &generic.ValidationError{Field: "half_day", Reason: "invalid half-day range"}
	}
	return days, nil
}

// Build turns the leave into a submission: a debit against the year's bank
// when paid, a workflow-only record when unpaid.
func (r LeaveRequest) Build() (generic.SubmitInput, error) {
	resource, err := r.Kind.Resource()
	if err != nil {
		return generic.SubmitInput{}, err
	}
	if r.AccountingYear == 0 {
		return generic.SubmitInput{}, &generic.ValidationError{Field: "accounting_year", Reason: "required"}
	}
	days, err := r.Days()
	if err != nil {
		return generic.SubmitInput{}, err
	}

	direction := generic.DirectionDebit
	if !r.WithPay {
		direction = generic.DirectionNone
	}
	return generic.SubmitInput{
		EmployeeID:  r.EmployeeID,
		Resource:    string(resource),
		Amount:      days,
		Direction:   direction,
		Period:      generic.YearPeriod(r.AccountingYear),
		RequestedBy: r.RequestedBy,
		Remarks:     r.Reason,
		Context: map[string]string{
			"kind":       string(r.Kind),
			"with_pay":   fmt.Sprint(r.WithPay),
			"start_date": r.StartDate.Format(time.DateOnly),
			"end_date":   r.EndDate.Format(time.DateOnly),
			"start_half": fmt.Sprint(r.StartHalf),
			"end_half":   fmt.Sprint(r.EndHalf),
		},
	}, nil
}

// =============================================================================
// OFFSET REQUEST - compensatory hours
// =============================================================================

// OffsetRequest uses offset hours (Use) or returns them to the bank.
type OffsetRequest struct {
	EmployeeID  generic.EmployeeID
	Hours       decimal.Decimal
	Use         bool
	Date        time.Time // informational only
	RequestedBy string
	Reason      string
}

func (r OffsetRequest) Build() (generic.SubmitInput, error) {
	if !r.Hours.IsPositive() {
		return generic.SubmitInput{}, &generic.ValidationError{Field: "hours", Reason: fmt.Sprintf("must be greater than zero, got %s", r.Hours)}
	}
	direction := generic.DirectionCredit
	if r.Use {
		direction = generic.DirectionDebit
	}
	in := generic.SubmitInput{
		EmployeeID:  r.EmployeeID,
		Resource:    string(ResourceOffset),
		Amount:      r.Hours,
		Direction:   direction,
		Period:      generic.Perpetual,
		RequestedBy: r.RequestedBy,
		Remarks:     r.Reason,
		Context:     map[string]string{"use": fmt.Sprint(r.Use)},
	}
	if !r.Date.IsZero() {
		in.Context["date"] = r.Date.Format(time.DateOnly)
	}
	return in, nil
}

func civilDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
