/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario leaves pending requests that
	demonstrate one workflow or ledger behavior when acted upon.

AVAILABLE SCENARIOS:

	offset-approve-revert: 40h offset bank, 8h debit to approve then revert
	lazy-leave-account:    sick leave against an account that doesn't exist yet
	insufficient-offset:   5h debit against a 2h bank
	bulk-approve:          five debits, the third one overdraws
	holiday-overtime:      overnight shift starting on a holiday

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed the directory: employees, department managers, HRD, super-admin
 3. Seed the calendar (one holiday)
 4. Grant balances and submit pending requests
 5. Reload the calendar snapshot

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "bulk-approve"}

	Then act as one of the seeded actors:
	  mgr-eng (manager of eng), mgr-ops (manager of ops),
	  hrd-1 (HRD manager), admin (super-admin)

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and Backend
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/approval-ledger/generic"
	"github.com/warp/approval-ledger/overtime"
	"github.com/warp/approval-ledger/timeoff"
)

// Seeded actors.
const (
	demoHRD        = "hrd-1"
	demoAdmin      = "admin"
	demoEngManager = "mgr-eng"
	demoOpsManager = "mgr-ops"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "offset-approve-revert",
		Name:        "Offset Approve & Revert",
		Description: "emp-1 holds 40 offset hours and has an 8h pending debit. Approve it (32 left), then set it back to pending (40 again).",
	},
	{
		ID:          "lazy-leave-account",
		Name:        "Sick Leave, New Account",
		Description: "emp-7 has no 2025 sick account. Approving the pending 3-day paid sick leave opens it with the default grant and debits 3.",
	},
	{
		ID:          "insufficient-offset",
		Name:        "Insufficient Offset",
		Description: "emp-1 holds 2 offset hours and asks for 5. Approval fails and nothing changes.",
	},
	{
		ID:          "bulk-approve",
		Name:        "Bulk Approval",
		Description: "emp-1..emp-5 hold 10 offset hours each. Bulk-approve all five requests: the third (20h) fails, the rest go through.",
	},
	{
		ID:          "holiday-overtime",
		Name:        "Holiday Overtime",
		Description: "emp-1 worked 23:00-05:00 starting on the 2025-06-12 holiday. Rated in two segments, approved in three stages.",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var body LoadScenarioBody
	if err := h.decode(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.LoadScenarioByID(r.Context(), body.ScenarioID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": body.ScenarioID})
}

// LoadScenarioByID is LoadScenario without HTTP; cmd/server uses it to seed.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	loaders := map[string]func(context.Context) error{
		"offset-approve-revert": h.loadOffsetApproveRevert,
		"lazy-leave-account":    h.loadLazyLeaveAccount,
		"insufficient-offset":   h.loadInsufficientOffset,
		"bulk-approve":          h.loadBulkApprove,
		"holiday-overtime":      h.loadHolidayOvertime,
	}
	load, ok := loaders[id]
	if !ok {
		return &generic.ValidationError{Field: "scenario_id", Reason: fmt.Sprintf("unknown scenario %q", id)}
	}

	if err := h.backend.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	if err := h.seedDirectory(ctx); err != nil {
		return fmt.Errorf("failed to seed directory: %w", err)
	}
	if err := load(ctx); err != nil {
		return fmt.Errorf("failed to load scenario %s: %w", id, err)
	}
	if err := h.ReloadCalendar(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.logger.Info("scenario loaded", zap.String("scenario", id))
	return nil
}

// =============================================================================
// SHARED SEED DATA
// =============================================================================

// seedDirectory creates emp-1..emp-5 in eng, emp-7 in ops, their
// managers, one HRD manager and one super-admin, and the June 12 holiday.
func (h *Handler) seedDirectory(ctx context.Context) error {
	for i := 1; i <= 5; i++ {
		if err := h.backend.AddEmployee(ctx, generic.EmployeeID(fmt.Sprintf("emp-%d", i)), "eng"); err != nil {
			return err
		}
	}
	if err := h.backend.AddEmployee(ctx, "emp-7", "ops"); err != nil {
		return err
	}
	if err := h.backend.AddDepartmentManager(ctx, demoEngManager, "eng"); err != nil {
		return err
	}
	if err := h.backend.AddDepartmentManager(ctx, demoOpsManager, "ops"); err != nil {
		return err
	}
	if err := h.backend.AddHRDManager(ctx, demoHRD); err != nil {
		return err
	}
	if err := h.backend.AddSuperAdmin(ctx, demoAdmin); err != nil {
		return err
	}
	holiday := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)
	return h.backend.SaveCalendarDay(ctx, holiday, overtime.Holiday, "Independence Day")
}

func (h *Handler) grantOffset(ctx context.Context, emp generic.EmployeeID, hours int64) error {
	_, err := h.engine.Grant(ctx, generic.GrantInput{
		ActorID:    demoHRD,
		EmployeeID: emp,
		Resource:   string(timeoff.ResourceOffset),
		Amount:     decimal.NewFromInt(hours),
		Remarks:    "opening balance",
	})
	return err
}

func (h *Handler) submitOffsetUse(ctx context.Context, emp generic.EmployeeID, hours int64, reason string) error {
	in, err := timeoff.OffsetRequest{
		EmployeeID:  emp,
		Hours:       decimal.NewFromInt(hours),
		Use:         true,
		RequestedBy: string(emp),
		Reason:      reason,
	}.Build()
	if err != nil {
		return err
	}
	_, err = h.engine.SubmitRequest(ctx, in)
	return err
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadOffsetApproveRevert(ctx context.Context) error {
	if err := h.grantOffset(ctx, "emp-1", 40); err != nil {
		return err
	}
	return h.submitOffsetUse(ctx, "emp-1", 8, "dentist")
}

func (h *Handler) loadLazyLeaveAccount(ctx context.Context) error {
	in, err := timeoff.LeaveRequest{
		EmployeeID:     "emp-7",
		Kind:           timeoff.LeaveSick,
		WithPay:        true,
		StartDate:      time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		AccountingYear: 2025,
		RequestedBy:    "emp-7",
		Reason:         "flu",
	}.Build()
	if err != nil {
		return err
	}
	_, err = h.engine.SubmitRequest(ctx, in)
	return err
}

func (h *Handler) loadInsufficientOffset(ctx context.Context) error {
	if err := h.grantOffset(ctx, "emp-1", 2); err != nil {
		return err
	}
	return h.submitOffsetUse(ctx, "emp-1", 5, "long weekend")
}

func (h *Handler) loadBulkApprove(ctx context.Context) error {
	hours := []int64{4, 4, 20, 4, 4}
	for i, n := range hours {
		emp := generic.EmployeeID(fmt.Sprintf("emp-%d", i+1))
		if err := h.grantOffset(ctx, emp, 10); err != nil {
			return err
		}
		if err := h.submitOffsetUse(ctx, emp, n, "team offsite recovery"); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadHolidayOvertime(ctx context.Context) error {
	// The calendar row was just written; rate against a fresh snapshot.
	if err := h.ReloadCalendar(ctx); err != nil {
		return err
	}
	start, _ := overtime.ParseClock("23:00")
	end, _ := overtime.ParseClock("05:00")
	in, _, err := h.calculator().Build(overtime.Request{
		EmployeeID:  "emp-1",
		Date:        time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC),
		Start:       start,
		End:         end,
		EndsNextDay: true,
		RequestedBy: "emp-1",
		Reason:      "release cutover",
	})
	if err != nil {
		return err
	}
	_, err = h.engine.SubmitRequest(ctx, in)
	return err
}
