/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Body: Request body types from clients

VALIDATION:
  Request bodies carry go-playground/validator tags for shape (required
  fields, enums, date formats). Domain rules (positive amounts, periods,
  directions per resource) are enforced by the engine and surface as
  generic.ValidationError.

AMOUNTS:
  decimal.Decimal marshals as a JSON string ("2.5") and accepts either a
  string or a number on input.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/approval-ledger/generic"
	"github.com/warp/approval-ledger/overtime"
)

// =============================================================================
// REQUEST BODIES
// =============================================================================

// SubmitRequestBody is a raw submission for any registered resource.
type SubmitRequestBody struct {
	EmployeeID string            `json:"employee_id" validate:"required"`
	Resource   string            `json:"resource" validate:"required"`
	Amount     decimal.Decimal   `json:"amount"`
	Direction  string            `json:"direction" validate:"required,oneof=credit debit none"`
	Period     int               `json:"accounting_period" validate:"gte=0"`
	Remarks    string            `json:"remarks"`
	Context    map[string]string `json:"context"`
}

// LeaveRequestBody files sick or vacation leave.
type LeaveRequestBody struct {
	EmployeeID     string `json:"employee_id" validate:"required"`
	Kind           string `json:"kind" validate:"required,oneof=sick vacation"`
	WithPay        bool   `json:"with_pay"`
	StartDate      string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        string `json:"end_date" validate:"required,datetime=2006-01-02"`
	StartHalf      bool   `json:"start_half"`
	EndHalf        bool   `json:"end_half"`
	AccountingYear int    `json:"accounting_year" validate:"required,gte=1900,lte=9999"`
	Reason         string `json:"reason"`
}

// OffsetRequestBody uses (use=true) or returns offset hours.
type OffsetRequestBody struct {
	EmployeeID string          `json:"employee_id" validate:"required"`
	Hours      decimal.Decimal `json:"hours"`
	Use        bool            `json:"use"`
	Date       string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Reason     string          `json:"reason"`
}

// OvertimeRateBody is the calculator input. Override is a manual
// multiplier; omit it to classify the day.
type OvertimeRateBody struct {
	Date        string           `json:"date" validate:"required,datetime=2006-01-02"`
	Start       string           `json:"start" validate:"required,datetime=15:04"`
	End         string           `json:"end" validate:"required,datetime=15:04"`
	EndsNextDay bool             `json:"ends_next_day"`
	Override    *decimal.Decimal `json:"override,omitempty"`
}

// OvertimeRequestBody files an overtime claim.
type OvertimeRequestBody struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	OvertimeRateBody
	Reason string `json:"reason"`
}

// UpdateStatusBody moves a request to a new status.
type UpdateStatusBody struct {
	Status  string `json:"status" validate:"required,oneof=pending manager_approved approved rejected force_approved"`
	Remarks string `json:"remarks"`
}

// BulkStatusBody moves many requests to the same status.
type BulkStatusBody struct {
	RequestIDs []string `json:"request_ids" validate:"required,min=1,dive,required"`
	Status     string   `json:"status" validate:"required,oneof=pending manager_approved approved rejected force_approved"`
	Remarks    string   `json:"remarks"`
}

// AmendBody edits a pending request; omitted fields are unchanged.
type AmendBody struct {
	Amount  *decimal.Decimal `json:"amount,omitempty"`
	Period  *int             `json:"accounting_period,omitempty" validate:"omitempty,gte=0"`
	Remarks string           `json:"remarks"`
}

// GrantBody tops up an account.
type GrantBody struct {
	EmployeeID string          `json:"employee_id" validate:"required"`
	Resource   string          `json:"resource" validate:"required"`
	Period     int             `json:"accounting_period" validate:"gte=0"`
	Amount     decimal.Decimal `json:"amount"`
	Remarks    string          `json:"remarks"`
}

// LoadScenarioBody selects a demo scenario.
type LoadScenarioBody struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// RequestDTO represents a request record in API responses.
type RequestDTO struct {
	ID                string            `json:"id"`
	EmployeeID        string            `json:"employee_id"`
	Department        string            `json:"department"`
	Resource          string            `json:"resource"`
	Period            int               `json:"accounting_period"`
	Amount            decimal.Decimal   `json:"amount"`
	Unit              string            `json:"unit"`
	Direction         string            `json:"direction"`
	Status            string            `json:"status"`
	Applied           bool              `json:"is_applied"`
	AppliedAmount     decimal.Decimal   `json:"applied_amount"`
	RequestedBy       string            `json:"requested_by"`
	Remarks           string            `json:"remarks,omitempty"`
	Context           map[string]string `json:"context,omitempty"`
	ManagerApprovedBy *string           `json:"manager_approved_by,omitempty"`
	ManagerApprovedAt *time.Time        `json:"manager_approved_at,omitempty"`
	ApprovedBy        *string           `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time        `json:"approved_at,omitempty"`
	RejectedBy        *string           `json:"rejected_by,omitempty"`
	RejectedAt        *time.Time        `json:"rejected_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func toRequestDTO(r generic.RequestRecord) RequestDTO {
	return RequestDTO{
		ID:                string(r.ID),
		EmployeeID:        string(r.EmployeeID),
		Department:        r.Department,
		Resource:          r.Resource,
		Period:            int(r.Period),
		Amount:            r.Amount,
		Unit:              string(r.Unit),
		Direction:         string(r.Direction),
		Status:            string(r.Status),
		Applied:           r.Applied,
		AppliedAmount:     r.AppliedAmount,
		RequestedBy:       r.RequestedBy,
		Remarks:           r.Remarks,
		Context:           r.Context,
		ManagerApprovedBy: r.ManagerApprovedBy,
		ManagerApprovedAt: r.ManagerApprovedAt,
		ApprovedBy:        r.ApprovedBy,
		ApprovedAt:        r.ApprovedAt,
		RejectedBy:        r.RejectedBy,
		RejectedAt:        r.RejectedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func toRequestDTOs(recs []generic.RequestRecord) []RequestDTO {
	out := make([]RequestDTO, len(recs))
	for i, r := range recs {
		out[i] = toRequestDTO(r)
	}
	return out
}

// SubmittedOvertimeDTO is the created record plus its rate breakdown.
type SubmittedOvertimeDTO struct {
	Request RequestDTO      `json:"request"`
	Rate    overtime.Result `json:"rate"`
}

// AccountDTO represents a balance account.
type AccountDTO struct {
	EmployeeID string          `json:"employee_id"`
	Resource   string          `json:"resource"`
	Period     int             `json:"accounting_period"`
	Unit       string          `json:"unit"`
	Granted    decimal.Decimal `json:"granted"`
	Consumed   decimal.Decimal `json:"consumed"`
	Remaining  decimal.Decimal `json:"remaining"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func toAccountDTO(a generic.BalanceAccount) AccountDTO {
	k := a.Key()
	return AccountDTO{
		EmployeeID: string(k.EmployeeID),
		Resource:   k.Resource,
		Period:     int(k.Period),
		Unit:       string(a.Unit()),
		Granted:    a.Granted(),
		Consumed:   a.Consumed(),
		Remaining:  a.Remaining(),
		CreatedAt:  a.CreatedAt(),
		UpdatedAt:  a.UpdatedAt(),
	}
}

// EntryDTO is one ledger journal line.
type EntryDTO struct {
	ID            string          `json:"id"`
	RequestID     string          `json:"request_id,omitempty"`
	Kind          string          `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	GrantedAfter  decimal.Decimal `json:"granted_after"`
	ConsumedAfter decimal.Decimal `json:"consumed_after"`
	Actor         string          `json:"actor"`
	Remarks       string          `json:"remarks,omitempty"`
	At            time.Time       `json:"at"`
}

func toEntryDTO(e generic.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:            e.ID,
		RequestID:     string(e.RequestID),
		Kind:          string(e.Kind),
		Amount:        e.Amount,
		GrantedAfter:  e.GrantedAfter,
		ConsumedAfter: e.ConsumedAfter,
		Actor:         e.Actor,
		Remarks:       e.Remarks,
		At:            e.At,
	}
}

// TransitionDTO is one status history line.
type TransitionDTO struct {
	ID        string    `json:"id"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Trigger   string    `json:"trigger"`
	Actor     string    `json:"actor"`
	Remarks   string    `json:"remarks,omitempty"`
	Synthetic bool      `json:"synthetic,omitempty"`
	At        time.Time `json:"at"`
}

func toTransitionDTO(t generic.TransitionEntry) TransitionDTO {
	return TransitionDTO{
		ID:        t.ID,
		From:      string(t.From),
		To:        string(t.To),
		Trigger:   string(t.Trigger),
		Actor:     t.Actor,
		Remarks:   t.Remarks,
		Synthetic: t.Synthetic,
		At:        t.At,
	}
}

// BatchItemDTO is one bulk item's outcome.
type BatchItemDTO struct {
	RequestID string      `json:"request_id"`
	OK        bool        `json:"ok"`
	Request   *RequestDTO `json:"request,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
}

// BatchResultDTO summarizes a bulk status update.
type BatchResultDTO struct {
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Items     []BatchItemDTO `json:"items"`
}

func toBatchResultDTO(res generic.BatchResult) BatchResultDTO {
	out := BatchResultDTO{Succeeded: res.Succeeded, Failed: res.Failed, Items: make([]BatchItemDTO, len(res.Items))}
	for i, it := range res.Items {
		item := BatchItemDTO{RequestID: string(it.RequestID), OK: it.OK()}
		if it.Record != nil {
			dto := toRequestDTO(*it.Record)
			item.Request = &dto
		}
		if it.Err != nil {
			item.Error = it.Err.Error()
			_, item.Code = statusFor(it.Err)
		}
		out.Items[i] = item
	}
	return out
}

// VerifyDTO reports ledger discrepancies.
type VerifyDTO struct {
	OK              bool             `json:"ok"`
	AccountsChecked int              `json:"accounts_checked"`
	RequestsChecked int              `json:"requests_checked"`
	Discrepancies   []DiscrepancyDTO `json:"discrepancies"`
}

type DiscrepancyDTO struct {
	Kind      string `json:"kind"`
	Account   string `json:"account,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Detail    string `json:"detail"`
}

func toVerifyDTO(r generic.VerifyReport) VerifyDTO {
	out := VerifyDTO{
		OK:              r.OK(),
		AccountsChecked: r.AccountsChecked,
		RequestsChecked: r.RequestsChecked,
		Discrepancies:   make([]DiscrepancyDTO, len(r.Discrepancies)),
	}
	for i, d := range r.Discrepancies {
		dto := DiscrepancyDTO{Kind: string(d.Kind), RequestID: string(d.RequestID), Detail: d.Detail}
		if d.Key != (generic.AccountKey{}) {
			dto.Account = d.Key.String()
		}
		out.Discrepancies[i] = dto
	}
	return out
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
