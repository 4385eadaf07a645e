package overtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/approval-ledger/generic"
)

// Request is an overtime claim as filed by an employee.
type Request struct {
	EmployeeID  generic.EmployeeID
	Date        time.Time // day the shift starts
	Start       Clock
	End         Clock
	EndsNextDay bool
	Override    *decimal.Decimal // manual multiplier; nil means classify
	RequestedBy string
	Reason      string
}

// Build rates the claim and turns it into a submission. The amount is the
// sum of effective hours; the breakdown travels in the record's context so
// reviewers can see how it was composed.
func (c *Calculator) Build(r Request) (generic.SubmitInput, Result, error) {
	if r.EmployeeID == "" {
		return generic.SubmitInput{}, Result{}, &generic.ValidationError{Field: "employee_id", Reason: "required"}
	}
	if r.Date.IsZero() {
		return generic.SubmitInput{}, Result{}, &generic.ValidationError{Field: "date", Reason: "required"}
	}

	res, err := c.Compute(r.Date, r.Start, r.End, r.EndsNextDay, r.Override)
	if err != nil {
		return generic.SubmitInput{}, Result{}, err
	}

	segments, err := json.Marshal(res.Segments)
	if err != nil {
		return generic.SubmitInput{}, Result{}, fmt.Errorf("failed to encode breakdown: %w", err)
	}

	in := generic.SubmitInput{
		EmployeeID:  r.EmployeeID,
		Resource:    string(ResourceOvertime),
		Amount:      res.EffectiveHours,
		Direction:   generic.DirectionNone,
		Period:      generic.Perpetual,
		RequestedBy: r.RequestedBy,
		Remarks:     r.Reason,
		Context: map[string]string{
			"date":                   r.Date.Format(time.DateOnly),
			"start":                  r.Start.String(),
			"end":                    r.End.String(),
			"ends_next_day":          fmt.Sprint(r.EndsNextDay),
			"multiplier":             res.Multiplier.String(),
			"overridden":             fmt.Sprint(res.Overridden),
			"split":                  fmt.Sprint(res.Split),
			"total_hours":            res.TotalHours.String(),
			"night_hours":            res.NightHours.String(),
			"effective_hours":        res.EffectiveHours.String(),
			generic.ContextBreakdown: string(segments),
		},
	}
	return in, res, nil
}
