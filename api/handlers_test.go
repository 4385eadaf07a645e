package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/approval-ledger/factory"
	"github.com/warp/approval-ledger/generic"
	"github.com/warp/approval-ledger/overtime"
	"github.com/warp/approval-ledger/store/sqlite"
	"github.com/warp/approval-ledger/timeoff"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

type testServer struct {
	t       *testing.T
	router  *chi.Mux
	handler *Handler
	engine  *generic.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zaptest.NewLogger(t)
	engine := generic.NewEngine(store, store, store, generic.WithLogger(logger))
	for _, p := range timeoff.Policies(decimal.Zero, decimal.NewFromInt(15), decimal.NewFromInt(15)) {
		require.NoError(t, engine.RegisterPolicy(p))
	}
	require.NoError(t, engine.RegisterPolicy(overtime.Policy()))

	h, err := NewHandler(ctx, engine, store, []time.Weekday{time.Saturday, time.Sunday}, logger)
	require.NoError(t, err)

	return &testServer{
		t:       t,
		router:  NewRouter(h, RouterOptions{Logger: logger}),
		handler: h,
		engine:  engine,
	}
}

func (s *testServer) do(method, path, actor string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) load(scenario string) {
	s.t.Helper()
	rr := s.do(http.MethodPost, "/api/scenarios/load", "", map[string]string{"scenario_id": scenario})
	require.Equal(s.t, http.StatusOK, rr.Code, rr.Body.String())
}

func (s *testServer) requests(query string) []RequestDTO {
	s.t.Helper()
	rr := s.do(http.MethodGet, "/api/requests"+query, "", nil)
	require.Equal(s.t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[[]RequestDTO](s.t, rr)
}

func (s *testServer) account(path string) AccountDTO {
	s.t.Helper()
	rr := s.do(http.MethodGet, path, "", nil)
	require.Equal(s.t, http.StatusOK, rr.Code, rr.Body.String())
	return decode[AccountDTO](s.t, rr)
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func statusPath(id string) string { return "/api/requests/" + id + "/status" }

// =============================================================================
// SCENARIOS
// =============================================================================

func TestOffsetApproveAndRevert(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: 40 offset hours and a pending 8h debit
	s.load("offset-approve-revert")
	reqs := s.requests("?employee_id=emp-1")
	require.Len(t, reqs, 1)
	id := reqs[0].ID
	assertAmount(t, "40", s.account("/api/accounts/emp-1/offset_hours").Remaining)

	// WHEN: the department manager approves
	rr := s.do(http.MethodPut, statusPath(id), "mgr-eng", UpdateStatusBody{Status: "approved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// THEN: 32 remain and the record is applied
	approved := decode[RequestDTO](t, rr)
	assert.True(t, approved.Applied)
	assertAmount(t, "8", approved.AppliedAmount)
	assertAmount(t, "32", s.account("/api/accounts/emp-1/offset_hours").Remaining)

	// WHEN: HRD reverts it to pending
	rr = s.do(http.MethodPut, statusPath(id), "hrd-1", UpdateStatusBody{Status: "pending", Remarks: "wrong week"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// THEN: the full balance is back and history shows all three states
	assert.False(t, decode[RequestDTO](t, rr).Applied)
	assertAmount(t, "40", s.account("/api/accounts/emp-1/offset_hours").Remaining)

	rr = s.do(http.MethodGet, "/api/requests/"+id+"/history", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	history := decode[[]TransitionDTO](t, rr)
	require.Len(t, history, 3)
	assert.Equal(t, "pending", history[0].To)
	assert.Equal(t, "approved", history[1].To)
	assert.Equal(t, "pending", history[2].To)

	rr = s.do(http.MethodGet, "/api/accounts/emp-1/offset_hours/entries", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]EntryDTO](t, rr), 4, "open, grant, debit, credit")
}

func TestSickLeave_OpensAccountOnApproval(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: emp-7 has no 2025 sick account
	s.load("lazy-leave-account")
	rr := s.do(http.MethodGet, "/api/accounts/emp-7", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]AccountDTO](t, rr))

	reqs := s.requests("?resource=sick_days")
	require.Len(t, reqs, 1)
	assert.Equal(t, 2025, reqs[0].Period)
	assertAmount(t, "3", reqs[0].Amount)

	// WHEN: the ops manager approves
	rr = s.do(http.MethodPut, statusPath(reqs[0].ID), "mgr-ops", UpdateStatusBody{Status: "approved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// THEN: the account exists with the default grant, debited by 3
	acct := s.account("/api/accounts/emp-7/sick_days?period=2025")
	assertAmount(t, "15", acct.Granted)
	assertAmount(t, "3", acct.Consumed)
	assertAmount(t, "12", acct.Remaining)
}

func TestInsufficientOffset_LeavesEverythingUnchanged(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: 2 hours and a pending 5h debit
	s.load("insufficient-offset")
	reqs := s.requests("?employee_id=emp-1&status=pending")
	require.Len(t, reqs, 1)

	// WHEN: approved
	rr := s.do(http.MethodPut, statusPath(reqs[0].ID), "hrd-1", UpdateStatusBody{Status: "approved"})

	// THEN: 422 with the balance in the details, and nothing moved
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decode[ErrorResponse](t, rr)
	assert.Equal(t, "insufficient_balance", body.Code)
	assert.Equal(t, "2", body.Details["remaining"])
	assert.Equal(t, "5", body.Details["requested"])

	assertAmount(t, "2", s.account("/api/accounts/emp-1/offset_hours").Remaining)
	rr = s.do(http.MethodGet, "/api/requests/"+reqs[0].ID, "", nil)
	got := decode[RequestDTO](t, rr)
	assert.Equal(t, "pending", got.Status)
	assert.False(t, got.Applied)
}

func TestBulkApprove_PartialFailure(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: five employees with 10 hours and requests of 4, 4, 20, 4, 4
	s.load("bulk-approve")
	reqs := s.requests("?resource=offset_hours")
	require.Len(t, reqs, 5)
	ids := make([]string, len(reqs))
	owner := make(map[string]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
		owner[r.ID] = r.EmployeeID
	}

	// WHEN: HRD bulk-approves all five
	rr := s.do(http.MethodPost, "/api/requests/bulk-status", "hrd-1", BulkStatusBody{RequestIDs: ids, Status: "approved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// THEN: four succeed; emp-3's overdraw fails with a reason
	res := decode[BatchResultDTO](t, rr)
	assert.Equal(t, 4, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Items, 5)
	for _, item := range res.Items {
		if owner[item.RequestID] == "emp-3" {
			assert.False(t, item.OK)
			assert.Equal(t, "insufficient_balance", item.Code)
			assert.NotEmpty(t, item.Error)
			continue
		}
		assert.True(t, item.OK, item.Error)
		require.NotNil(t, item.Request)
		assert.Equal(t, "approved", item.Request.Status)
	}

	for _, emp := range []string{"emp-1", "emp-2", "emp-4", "emp-5"} {
		assertAmount(t, "6", s.account("/api/accounts/"+emp+"/offset_hours").Remaining)
	}
	assertAmount(t, "10", s.account("/api/accounts/emp-3/offset_hours").Remaining)
}

func TestHolidayOvertime_ThreeStage(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: an overnight claim starting on the June 12 holiday
	s.load("holiday-overtime")
	reqs := s.requests("?resource=overtime_hours")
	require.Len(t, reqs, 1)
	claim := reqs[0]
	assertAmount(t, "9.735", claim.Amount)
	assert.Equal(t, "true", claim.Context["split"])
	assert.Equal(t, "none", claim.Direction)

	// WHEN: HRD tries to approve before the department manager
	rr := s.do(http.MethodPut, statusPath(claim.ID), "hrd-1", UpdateStatusBody{Status: "approved"})

	// THEN: not a legal edge from pending
	require.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, rr).Code)

	// WHEN: manager then HRD approve
	rr = s.do(http.MethodPut, statusPath(claim.ID), "mgr-eng", UpdateStatusBody{Status: "manager_approved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = s.do(http.MethodPut, statusPath(claim.ID), "hrd-1", UpdateStatusBody{Status: "approved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// THEN: approved by both, no account touched
	got := decode[RequestDTO](t, rr)
	assert.Equal(t, "approved", got.Status)
	require.NotNil(t, got.ManagerApprovedBy)
	assert.Equal(t, "mgr-eng", *got.ManagerApprovedBy)
	rr = s.do(http.MethodGet, "/api/accounts/emp-1", "", nil)
	assert.Empty(t, decode[[]AccountDTO](t, rr))
}

// =============================================================================
// OVERTIME RATE
// =============================================================================

func TestComputeOvertimeRate(t *testing.T) {
	s := newTestServer(t)
	s.load("holiday-overtime")

	// WHEN: rating the same shift
	rr := s.do(http.MethodPost, "/api/overtime/rate", "", OvertimeRateBody{
		Date: "2025-06-12", Start: "23:00", End: "05:00", EndsNextDay: true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// THEN: holiday night hour, then five ordinary night hours
	res := decode[overtime.Result](t, rr)
	require.Len(t, res.Segments, 2)
	assert.True(t, res.Split)
	assert.Equal(t, overtime.Holiday, res.Segments[0].DayType)
	assertAmount(t, "1", res.Segments[0].Hours)
	assertAmount(t, "2.86", res.Segments[0].Multiplier)
	assert.Equal(t, overtime.Ordinary, res.Segments[1].DayType)
	assertAmount(t, "5", res.Segments[1].Hours)
	assertAmount(t, "1.375", res.Segments[1].Multiplier)

	t.Run("override", func(t *testing.T) {
		override := decimal.RequireFromString("2")
		rr := s.do(http.MethodPost, "/api/overtime/rate", "", OvertimeRateBody{
			Date: "2025-06-11", Start: "18:00", End: "20:00", Override: &override,
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		res := decode[overtime.Result](t, rr)
		assert.True(t, res.Overridden)
		assertAmount(t, "4", res.EffectiveHours)
	})

	t.Run("bad clock", func(t *testing.T) {
		rr := s.do(http.MethodPost, "/api/overtime/rate", "", map[string]any{
			"date": "2025-06-11", "start": "25:00", "end": "20:00",
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestSubmitOvertime(t *testing.T) {
	s := newTestServer(t)
	s.load("holiday-overtime")

	rr := s.do(http.MethodPost, "/api/overtime-requests", "emp-2", OvertimeRequestBody{
		EmployeeID:       "emp-2",
		OvertimeRateBody: OvertimeRateBody{Date: "2025-06-11", Start: "18:00", End: "20:00"},
		Reason:           "deploy",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	out := decode[SubmittedOvertimeDTO](t, rr)
	assert.Equal(t, "pending", out.Request.Status)
	assert.Equal(t, "emp-2", out.Request.RequestedBy)
	assertAmount(t, "2.5", out.Request.Amount)
	assertAmount(t, "1.25", out.Rate.Multiplier)
}

// =============================================================================
// SUBMISSION, AMEND, DELETE
// =============================================================================

func TestLeaveSubmission_HalfDays(t *testing.T) {
	s := newTestServer(t)
	s.load("lazy-leave-account")

	rr := s.do(http.MethodPost, "/api/leave-requests", "emp-1", LeaveRequestBody{
		EmployeeID:     "emp-1",
		Kind:           "vacation",
		WithPay:        true,
		StartDate:      "2025-12-30",
		EndDate:        "2026-01-02",
		StartHalf:      true,
		AccountingYear: 2026,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	got := decode[RequestDTO](t, rr)
	assertAmount(t, "3.5", got.Amount)
	assert.Equal(t, 2026, got.Period, "period comes from the request, not the start date")
	assert.Equal(t, "debit", got.Direction)

	t.Run("without pay", func(t *testing.T) {
		rr := s.do(http.MethodPost, "/api/leave-requests", "emp-1", LeaveRequestBody{
			EmployeeID: "emp-1", Kind: "sick", StartDate: "2025-05-05", EndDate: "2025-05-05", AccountingYear: 2025,
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		assert.Equal(t, "none", decode[RequestDTO](t, rr).Direction)
	})

	t.Run("end before start", func(t *testing.T) {
		rr := s.do(http.MethodPost, "/api/leave-requests", "emp-1", LeaveRequestBody{
			EmployeeID: "emp-1", Kind: "sick", StartDate: "2025-05-05", EndDate: "2025-05-01", AccountingYear: 2025,
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAmendAndDeletePending(t *testing.T) {
	s := newTestServer(t)
	s.load("offset-approve-revert")
	id := s.requests("?employee_id=emp-1")[0].ID

	// WHEN: the requester lowers the amount
	amount := decimal.NewFromInt(6)
	rr := s.do(http.MethodPatch, "/api/requests/"+id, "emp-1", AmendBody{Amount: &amount, Remarks: "half day only"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assertAmount(t, "6", decode[RequestDTO](t, rr).Amount)

	// WHEN: another employee tries to delete it
	rr = s.do(http.MethodDelete, "/api/requests/"+id, "emp-2", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// WHEN: approved, it can no longer be deleted
	rr = s.do(http.MethodPut, statusPath(id), "hrd-1", UpdateStatusBody{Status: "approved"})
	require.Equal(t, http.StatusOK, rr.Code)
	rr = s.do(http.MethodDelete, "/api/requests/"+id, "emp-1", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "not_deletable", decode[ErrorResponse](t, rr).Code)

	// WHEN: a fresh pending request is deleted by its requester
	rr = s.do(http.MethodPost, "/api/offset-requests", "emp-1", OffsetRequestBody{
		EmployeeID: "emp-1", Hours: decimal.NewFromInt(1), Use: true,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	fresh := decode[RequestDTO](t, rr).ID
	rr = s.do(http.MethodDelete, "/api/requests/"+fresh, "emp-1", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = s.do(http.MethodGet, "/api/requests/"+fresh, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestForceApprove_BackfillsManagerStage(t *testing.T) {
	s := newTestServer(t)
	s.load("holiday-overtime")
	id := s.requests("?resource=overtime_hours")[0].ID

	rr := s.do(http.MethodPut, statusPath(id), "admin", UpdateStatusBody{Status: "force_approved", Remarks: "payroll cutoff"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "approved", decode[RequestDTO](t, rr).Status)

	rr = s.do(http.MethodGet, "/api/requests/"+id+"/history", "", nil)
	history := decode[[]TransitionDTO](t, rr)
	var synthetic int
	for _, h := range history {
		if h.Synthetic {
			synthetic++
		}
	}
	assert.Equal(t, 1, synthetic)
}

// =============================================================================
// GRANTS AND ERRORS
// =============================================================================

func TestGrant(t *testing.T) {
	s := newTestServer(t)
	s.load("offset-approve-revert")
	body := GrantBody{EmployeeID: "emp-2", Resource: "vacation_days", Period: 2025, Amount: decimal.NewFromInt(3)}

	rr := s.do(http.MethodPost, "/api/accounts/grant", "mgr-eng", body)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(http.MethodPost, "/api/accounts/grant", "hrd-1", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assertAmount(t, "18", decode[AccountDTO](t, rr).Granted)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	s.load("offset-approve-revert")
	id := s.requests("")[0].ID

	tests := []struct {
		name   string
		method string
		path   string
		actor  string
		body   any
		status int
		code   string
	}{
		{"missing actor", http.MethodPut, statusPath(id), "", UpdateStatusBody{Status: "approved"}, http.StatusBadRequest, "validation_error"},
		{"unknown status", http.MethodPut, statusPath(id), "hrd-1", map[string]string{"status": "done"}, http.StatusBadRequest, "validation_error"},
		{"employee approving", http.MethodPut, statusPath(id), "emp-2", UpdateStatusBody{Status: "approved"}, http.StatusForbidden, "unauthorized"},
		{"other department", http.MethodPut, statusPath(id), "mgr-ops", UpdateStatusBody{Status: "approved"}, http.StatusForbidden, "unauthorized"},
		{"unknown request", http.MethodPut, statusPath("nope"), "hrd-1", UpdateStatusBody{Status: "approved"}, http.StatusNotFound, "not_found"},
		{"unknown employee account", http.MethodGet, "/api/accounts/emp-99/offset_hours", "", nil, http.StatusNotFound, "not_found"},
		{"unknown resource", http.MethodGet, "/api/accounts/emp-1/gold_stars", "", nil, http.StatusBadRequest, "unknown_resource"},
		{"bad period", http.MethodGet, "/api/accounts/emp-1/sick_days?period=abc", "", nil, http.StatusBadRequest, "validation_error"},
		{"bad list status", http.MethodGet, "/api/requests?status=done", "", nil, http.StatusBadRequest, "validation_error"},
		{"leave missing fields", http.MethodPost, "/api/leave-requests", "emp-1", map[string]string{"kind": "sick"}, http.StatusBadRequest, "validation_error"},
		{"unknown scenario", http.MethodPost, "/api/scenarios/load", "", LoadScenarioBody{ScenarioID: "nope"}, http.StatusBadRequest, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(tt.method, tt.path, tt.actor, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rr).Code)
		})
	}
}

func TestVerifyAndScenarios(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/api/scenarios/current", "", nil)
	assert.Equal(t, "null\n", rr.Body.String())

	s.load("bulk-approve")
	rr = s.do(http.MethodGet, "/api/scenarios/current", "", nil)
	assert.Equal(t, "bulk-approve", decode[ScenarioDTO](t, rr).ID)

	rr = s.do(http.MethodGet, "/api/scenarios", "", nil)
	assert.Len(t, decode[[]ScenarioDTO](t, rr), len(scenarios))

	rr = s.do(http.MethodGet, "/api/admin/verify", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	report := decode[VerifyDTO](t, rr)
	assert.True(t, report.OK)
	assert.Equal(t, 5, report.AccountsChecked)
	assert.Equal(t, 5, report.RequestsChecked)

	rr = s.do(http.MethodGet, "/api/policies", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	policies := decode[[]factory.PolicyJSON](t, rr)
	require.Len(t, policies, 4)
	assert.Equal(t, "offset_hours", policies[0].Resource)
	assert.Equal(t, "three_stage", policies[1].Workflow, "overtime_hours")
}
