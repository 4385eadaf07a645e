/*
handlers.go - HTTP API handlers for the approval ledger

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization and body validation, and delegates to the engine.

ENDPOINTS:
  Requests:
    POST   /api/requests                 Raw submission (any resource)
    POST   /api/leave-requests           Sick/vacation leave
    POST   /api/offset-requests          Offset hours use/return
    POST   /api/overtime-requests        Overtime claim (rated)
    GET    /api/requests                 List (?employee_id=&resource=&status=)
    GET    /api/requests/{id}            Get one
    GET    /api/requests/{id}/history    Status transitions
    PUT    /api/requests/{id}/status     Approve / reject / revert / force
    PATCH  /api/requests/{id}            Amend a pending request
    DELETE /api/requests/{id}            Delete a pending request
    POST   /api/requests/bulk-status     Same status for many requests

  Accounts:
    GET    /api/accounts/{employeeID}                     All accounts
    GET    /api/accounts/{employeeID}/{resource}          One (?period=)
    GET    /api/accounts/{employeeID}/{resource}/entries  Journal (?period=)
    POST   /api/accounts/grant                            Top up

  Other:
    POST   /api/overtime/rate            Rate a shift without submitting
    GET    /api/policies                 Registered resource policies
    GET    /api/admin/verify             Ledger verification

ARCHITECTURE:
  Handler holds the engine, the backend (for directory and calendar
  seeding) and an overtime calculator over a calendar snapshot. The
  snapshot is reloaded when scenarios change calendar rows.

ERROR HANDLING:
  See errors.go. Every error body is {error, code, details}.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/approval-ledger/factory"
	"github.com/warp/approval-ledger/generic"
	"github.com/warp/approval-ledger/overtime"
	"github.com/warp/approval-ledger/timeoff"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the persistence the server runs on: the engine's store and
// directory, plus seeding and calendar rows. store/sqlite and
// store/postgres implement it.
type Backend interface {
	generic.TxStore
	generic.EmployeeResolver
	generic.RoleResolver

	AddEmployee(ctx context.Context, id generic.EmployeeID, department string) error
	AddDepartmentManager(ctx context.Context, actorID, department string) error
	AddHRDManager(ctx context.Context, actorID string) error
	AddSuperAdmin(ctx context.Context, actorID string) error

	SaveCalendarDay(ctx context.Context, day time.Time, kind overtime.DayType, name string) error
	LoadCalendar(ctx context.Context, restWeekdays ...time.Weekday) (*overtime.StaticCalendar, error)

	Reset(ctx context.Context) error
	Close() error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	engine       *generic.Engine
	backend      Backend
	validate     *validator.Validate
	policies     *factory.PolicyFactory
	logger       *zap.Logger
	restWeekdays []time.Weekday

	mu              sync.RWMutex
	calc            *overtime.Calculator
	currentScenario string
}

// NewHandler creates a handler and loads the calendar snapshot.
func NewHandler(ctx context.Context, engine *generic.Engine, backend Backend, restWeekdays []time.Weekday, logger *zap.Logger) (*Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		engine:       engine,
		backend:      backend,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		policies:     factory.NewPolicyFactory(),
		logger:       logger,
		restWeekdays: restWeekdays,
	}
	if err := h.ReloadCalendar(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// ReloadCalendar rebuilds the overtime calculator from calendar rows.
func (h *Handler) ReloadCalendar(ctx context.Context) error {
	cal, err := h.backend.LoadCalendar(ctx, h.restWeekdays...)
	if err != nil {
		return fmt.Errorf("failed to load calendar: %w", err)
	}
	h.mu.Lock()
	h.calc = overtime.NewCalculator(cal)
	h.mu.Unlock()
	return nil
}

func (h *Handler) calculator() *overtime.Calculator {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.calc
}

// =============================================================================
// SUBMISSION HANDLERS
// =============================================================================

// SubmitRequest creates a pending record for any registered resource.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequestBody
	if err := h.decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.submit(w, r, generic.SubmitInput{
		EmployeeID: generic.EmployeeID(body.EmployeeID),
		Resource:   body.Resource,
		Amount:     body.Amount,
		Direction:  generic.Direction(body.Direction),
		Period:     generic.AccountingPeriod(body.Period),
		Remarks:    body.Remarks,
		Context:    body.Context,
	})
}

// SubmitLeave builds a leave submission (half days, with/without pay).
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	var body LeaveRequestBody
	if err := h.decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	start, _ := time.Parse(time.DateOnly, body.StartDate)
	end, _ := time.Parse(time.DateOnly, body.EndDate)

	in, err := timeoff.LeaveRequest{
		EmployeeID:     generic.EmployeeID(body.EmployeeID),
		Kind:           timeoff.LeaveKind(body.Kind),
		WithPay:        body.WithPay,
		StartDate:      start,
		EndDate:        end,
		StartHalf:      body.StartHalf,
		EndHalf:        body.EndHalf,
		AccountingYear: body.AccountingYear,
		Reason:         body.Reason,
	}.Build()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.submit(w, r, in)
}

// SubmitOffset builds an offset use (debit) or return (credit).
func (h *Handler) SubmitOffset(w http.ResponseWriter, r *http.Request) {
	var body OffsetRequestBody
	if err := h.decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	req := timeoff.OffsetRequest{
		EmployeeID: generic.EmployeeID(body.EmployeeID),
		Hours:      body.Hours,
		Use:        body.Use,
		Reason:     body.Reason,
	}
	if body.Date != "" {
		req.Date, _ = time.Parse(time.DateOnly, body.Date)
	}
	in, err := req.Build()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.submit(w, r, in)
}

// SubmitOvertime rates the shift and submits it for three-stage approval.
func (h *Handler) SubmitOvertime(w http.ResponseWriter, r *http.Request) {
	var body OvertimeRequestBody
	if err := h.decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	date, start, end, err := parseShift(body.OvertimeRateBody)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	in, rate, err := h.calculator().Build(overtime.Request{
		EmployeeID:  generic.EmployeeID(body.EmployeeID),
		Date:        date,
		Start:       start,
		End:         end,
		EndsNextDay: body.EndsNextDay,
		Override:    body.Override,
		RequestedBy: r.Header.Get(ActorHeader),
		Reason:      body.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.engine.SubmitRequest(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmittedOvertimeDTO{Request: toRequestDTO(rec), Rate: rate})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, in generic.SubmitInput) {
	if actor := r.Header.Get(ActorHeader); actor != "" {
		in.RequestedBy = actor
	}
	rec, err := h.engine.SubmitRequest(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(rec))
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// ListRequests returns requests, newest first.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := generic.RequestFilter{
		EmployeeID: generic.EmployeeID(q.Get("employee_id")),
		Resource:   q.Get("resource"),
	}
	if s := q.Get("status"); s != "" {
		status, err := generic.ParseStatus(s)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter.Status = status
	}
	recs, err := h.engine.ListRequests(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(recs))
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.GetRequest(r.Context(), requestID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(rec))
}

// GetHistory returns a request's status transitions, oldest first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := requestID(r)
	if _, err := h.engine.GetRequest(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	history, err := h.engine.History(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]TransitionDTO, len(history))
	for i, t := range history {
		out[i] = toTransitionDTO(t)
	}
	writeJSON(w, http.StatusOK, out)
}

// UpdateStatus runs one workflow transition for the X-Actor-ID actor.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body UpdateStatusBody
	if err := h.decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.engine.UpdateStatus(r.Context(), requestID(r), r.Header.Get(ActorHeader), generic.Status(body.Status), body.Remarks)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(rec))
}

// BulkUpdateStatus never fails for a single item; see the per-item results.
func (h *Handler) BulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body BulkStatusBody
	if err := h.decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	ids := make([]generic.RequestID, len(body.RequestIDs))
	for i, id := range body.RequestIDs {
		ids[i] = generic.RequestID(id)
	}
	res, err := h.engine.BulkUpdateStatus(r.Context(), ids, r.Header.Get(ActorHeader), generic.Status(body.Status), body.Remarks)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(res))
}

func (h *Handler) AmendRequest(w http.ResponseWriter, r *http.Request) {
	var body AmendBody
	if err := h.decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	in := generic.AmendInput{Amount: body.Amount, Remarks: body.Remarks}
	if body.Period != nil {
		p := generic.AccountingPeriod(*body.Period)
		in.Period = &p
	}
	rec, err := h.engine.AmendRequest(r.Context(), requestID(r), r.Header.Get(ActorHeader), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(rec))
}

func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteRequest(r.Context(), requestID(r), r.Header.Get(ActorHeader)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accts, err := h.engine.ListAccounts(r.Context(), generic.EmployeeID(chi.URLParam(r, "employeeID")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]AccountDTO, len(accts))
	for i, a := range accts {
		out[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAccount returns one account, opening it with the default grant if
// it does not exist yet.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	emp := generic.EmployeeID(chi.URLParam(r, "employeeID"))
	if _, err := h.backend.ResolveEmployee(r.Context(), emp); err != nil {
		h.writeError(w, r, err)
		return
	}
	acct, err := h.engine.GetAccount(r.Context(), emp, chi.URLParam(r, "resource"), period)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

// GetEntries returns an account's journal, oldest first.
func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.engine.Entries(r.Context(), generic.EmployeeID(chi.URLParam(r, "employeeID")), chi.URLParam(r, "resource"), period)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]EntryDTO, len(entries))
	for i, e := range entries {
		out[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// Grant tops up an account. HRD managers and super-admins only.
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	var body GrantBody
	if err := h.decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	acct, err := h.engine.Grant(r.Context(), generic.GrantInput{
		ActorID:    r.Header.Get(ActorHeader),
		EmployeeID: generic.EmployeeID(body.EmployeeID),
		Resource:   body.Resource,
		Period:     generic.AccountingPeriod(body.Period),
		Amount:     body.Amount,
		Remarks:    body.Remarks,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

// =============================================================================
// OVERTIME & ADMIN
// =============================================================================

// ComputeOvertimeRate rates a shift without creating a request.
func (h *Handler) ComputeOvertimeRate(w http.ResponseWriter, r *http.Request) {
	var body OvertimeRateBody
	if err := h.decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	date, start, end, err := parseShift(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.calculator().Compute(date, start, end, body.EndsNextDay, body.Override)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListPolicies returns every registered resource policy.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := h.engine.Policies()
	out := make([]factory.PolicyJSON, len(policies))
	for i, p := range policies {
		out[i] = h.policies.ToJSON(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// Verify scans the ledger for invariant violations.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Verify(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVerifyDTO(report))
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body and validates its tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &generic.ValidationError{Field: "body", Reason: err.Error()}
	}
	return h.validate.Struct(dst)
}

func requestID(r *http.Request) generic.RequestID {
	return generic.RequestID(chi.URLParam(r, "id"))
}

// periodParam reads ?period=; absent means perpetual.
func periodParam(r *http.Request) (generic.AccountingPeriod, error) {
	raw := r.URL.Query().Get("period")
	if raw == "" {
		return generic.Perpetual, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &generic.ValidationError{Field: "period", Reason: fmt.Sprintf("must be a year or 0, got %q", raw)}
	}
	return generic.AccountingPeriod(n), nil
}

func parseShift(b OvertimeRateBody) (time.Time, overtime.Clock, overtime.Clock, error) {
	date, err := time.Parse(time.DateOnly, b.Date)
	if err != nil {
		return time.Time{}, overtime.Clock{}, overtime.Clock{}, &generic.ValidationError{Field: "date", Reason: err.Error()}
	}
	start, err := overtime.ParseClock(b.Start)
	if err != nil {
		return time.Time{}, overtime.Clock{}, overtime.Clock{}, err
	}
	end, err := overtime.ParseClock(b.End)
	if err != nil {
		return time.Time{}, overtime.Clock{}, overtime.Clock{}, err
	}
	return date, start, end, nil
}
