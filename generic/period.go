package generic

import "strconv"

// =============================================================================
// ACCOUNTING PERIOD - The bucket an account tracks grants and consumption for
// =============================================================================

// AccountingPeriod is a calendar year for periodic resources (leave banks)
// and Perpetual for resources with a single lifetime account (offset hours).
//
// A request always names its period explicitly. It is never derived from the
// request's start date: an employee filing in December for leave that should
// post against next year's bank must say so.
type AccountingPeriod int

const Perpetual AccountingPeriod = 0

const (
	minYear = 1900
	maxYear = 9999
)

func YearPeriod(year int) AccountingPeriod { return AccountingPeriod(year) }

func (p AccountingPeriod) IsPerpetual() bool { return p == Perpetual }

// Year returns the calendar year, or 0 for the perpetual period.
func (p AccountingPeriod) Year() int { return int(p) }

func (p AccountingPeriod) String() string {
	if p.IsPerpetual() {
		return "perpetual"
	}
	return strconv.Itoa(int(p))
}

// validYear reports whether p is a plausible calendar year.
func (p AccountingPeriod) validYear() bool {
	return int(p) >= minYear && int(p) <= maxYear
}

// =============================================================================
// ACCOUNT KEY - Identity of a BalanceAccount
// =============================================================================

// AccountKey identifies one BalanceAccount: (employee, resource, period).
type AccountKey struct {
	EmployeeID EmployeeID
	Resource   string
	Period     AccountingPeriod
}

func (k AccountKey) String() string {
	return string(k.EmployeeID) + "/" + k.Resource + "/" + k.Period.String()
}
