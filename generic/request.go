/*
request.go - RequestRecord, the workflow entity

PURPOSE:
  One record per submitted request (offset transaction, leave transaction,
  overtime claim). The record carries everything the reconciler needs to
  locate and mutate the right account at approval time, plus the
  provenance of every approval stage.

REQUEST FLOW:
  ┌─────────────────────────────────────────────────────────────────┐
  │                                                                 │
  │  SubmitRequest ──▶ pending ──▶ (manager_approved) ──▶ approved  │
  │                       │                                  │      │
  │                       ▼                                  ▼      │
  │                    rejected                     ledger applied  │
  │                                                                 │
  └─────────────────────────────────────────────────────────────────┘

APPLIED FLAG:
  Applied is persisted, and it is the only source of truth for "has this
  record's ledger effect been applied". It is set by the reconciler when
  the record enters approved and cleared when it leaves approved.
  AppliedAmount is what was actually moved, so a reversal is exact.

SEE ALSO:
  - workflow.go: which transitions are legal and who may perform them
  - reconciler.go: sets Applied/AppliedAmount
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending         Status = "pending"
	StatusManagerApproved Status = "manager_approved"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"

	// StatusForceApproved is accepted as a target but never stored:
	// it is normalized to StatusApproved with provenance in the remarks.
	StatusForceApproved Status = "force_approved"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusManagerApproved, StatusApproved, StatusRejected, StatusForceApproved:
		return true
	}
	return false
}

// ParseStatus validates a status coming from a caller.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", invalid("status", "unknown status %q", s)
	}
	return st, nil
}

// =============================================================================
// REQUEST RECORD
// =============================================================================

// RequestRecord is one request moving through an approval chain.
type RequestRecord struct {
	ID         RequestID
	EmployeeID EmployeeID
	Department string // resolved at submission, used for department-level approval
	Resource   string
	Period     AccountingPeriod
	Amount     decimal.Decimal
	Unit       Unit
	Direction  Direction
	Status     Status

	// Ledger state
	Applied       bool
	AppliedAmount decimal.Decimal

	RequestedBy string
	Remarks     string
	Context     map[string]string

	// Approval tracking
	ManagerApprovedBy *string
	ManagerApprovedAt *time.Time
	ApprovedBy        *string
	ApprovedAt        *time.Time
	RejectedBy        *string
	RejectedAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountKey is the identity of the account this record posts against.
func (r RequestRecord) AccountKey() AccountKey {
	return AccountKey{EmployeeID: r.EmployeeID, Resource: r.Resource, Period: r.Period}
}

// ContextBreakdown is the context key of a computed rate breakdown. A record
// carrying it has an amount derived from that breakdown.
const ContextBreakdown = "breakdown"

// AmountComputed reports whether Amount was derived from a breakdown in
// Context rather than entered directly.
func (r RequestRecord) AmountComputed() bool {
	_, ok := r.Context[ContextBreakdown]
	return ok
}

// IsPendingAndUnapplied reports whether the record can still be amended or deleted.
func (r RequestRecord) IsPendingAndUnapplied() bool {
	return r.Status == StatusPending && !r.Applied
}

// Clone returns a deep copy; stores hand out clones so callers can't mutate
// persisted state through a shared pointer.
func (r RequestRecord) Clone() RequestRecord {
	c := r
	if r.Context != nil {
		c.Context = make(map[string]string, len(r.Context))
		for k, v := range r.Context {
			c.Context[k] = v
		}
	}
	c.ManagerApprovedBy = cloneString(r.ManagerApprovedBy)
	c.ManagerApprovedAt = cloneTime(r.ManagerApprovedAt)
	c.ApprovedBy = cloneString(r.ApprovedBy)
	c.ApprovedAt = cloneTime(r.ApprovedAt)
	c.RejectedBy = cloneString(r.RejectedBy)
	c.RejectedAt = cloneTime(r.RejectedAt)
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// appendRemark adds a line to the remarks, keeping earlier text.
func (r *RequestRecord) appendRemark(line string) {
	if line == "" {
		return
	}
	if r.Remarks == "" {
		r.Remarks = line
		return
	}
	r.Remarks += "\n" + line
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmitInput is everything SubmitRequest needs. Period is required for
// periodic resources and is never derived from a date.
type SubmitInput struct {
	EmployeeID  EmployeeID
	Resource    string
	Amount      decimal.Decimal
	Direction   Direction
	Period      AccountingPeriod
	RequestedBy string // defaults to EmployeeID
	Remarks     string
	Context     map[string]string
}

// =============================================================================
// TRANSITION HISTORY
// =============================================================================

// TransitionEntry is one line of a record's audit trail.
type TransitionEntry struct {
	ID        string
	RequestID RequestID
	From      Status
	To        Status
	Trigger   Trigger
	Actor     string
	Remarks   string
	Synthetic bool // back-filled by a force-approval
	At        time.Time
}

// =============================================================================
// QUERY
// =============================================================================

// RequestFilter narrows ListRequests. Zero fields match everything.
type RequestFilter struct {
	EmployeeID EmployeeID
	Resource   string
	Status     Status
}

func (f RequestFilter) Matches(r RequestRecord) bool {
	if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
		return false
	}
	if f.Resource != "" && r.Resource != f.Resource {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}
