package generic_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/approval-ledger/generic"
	"github.com/warp/approval-ledger/generic/store"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

const (
	resOffset   = "offset_hours"
	resSick     = "sick_days"
	resOvertime = "overtime_hours"

	mgrEng   = "mgr-eng"
	mgrOps   = "mgr-ops"
	hrd      = "hrd-1"
	admin    = "admin"
	outsider = "emp-99"
)

var fixedNow = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx    context.Context
	engine *generic.Engine
	store  *store.Memory
	dir    *store.Directory
}

func newFixture(t *testing.T, opts ...generic.Option) *fixture {
	t.Helper()

	dir := store.NewDirectory().
		AddEmployee("emp-1", "eng").
		AddEmployee("emp-2", "eng").
		AddEmployee("emp-3", "eng").
		AddEmployee("emp-4", "eng").
		AddEmployee("emp-5", "eng").
		AddEmployee("emp-7", "ops").
		AddDepartmentManager(mgrEng, "eng").
		AddDepartmentManager(mgrOps, "ops").
		AddHRDManager(hrd).
		AddSuperAdmin(admin)

	mem := store.NewMemory()
	seq := 0
	base := []generic.Option{
		generic.WithClock(func() time.Time { return fixedNow }),
		generic.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("req-%d", seq)
		}),
		generic.WithLogger(zap.NewNop()),
	}
	engine := generic.NewEngine(mem, dir, dir, append(base, opts...)...)

	for _, p := range testPolicies() {
		require.NoError(t, engine.RegisterPolicy(p))
	}
	return &fixture{ctx: context.Background(), engine: engine, store: mem, dir: dir}
}

func testPolicies() []generic.ResourcePolicy {
	return []generic.ResourcePolicy{
		{
			Resource:     generic.StringResource{ID: resOffset, Domain: "test"},
			Unit:         generic.UnitHours,
			DefaultGrant: decimal.Zero,
			Workflow:     generic.TwoStage,
			Ledgered:     true,
		},
		{
			Resource:     generic.StringResource{ID: resSick, Domain: "test"},
			Unit:         generic.UnitDays,
			Periodic:     true,
			DefaultGrant: decimal.NewFromInt(15),
			Workflow:     generic.TwoStage,
			Ledgered:     true,
		},
		{
			Resource:     generic.StringResource{ID: resOvertime, Domain: "test"},
			Unit:         generic.UnitHours,
			DefaultGrant: decimal.Zero,
			Workflow:     generic.ThreeStage,
			Ledgered:     false,
		},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) grant(t *testing.T, emp generic.EmployeeID, resource string, period generic.AccountingPeriod, amount string) {
	t.Helper()
	_, err := f.engine.Grant(f.ctx, generic.GrantInput{
		ActorID:    hrd,
		EmployeeID: emp,
		Resource:   resource,
		Period:     period,
		Amount:     dec(amount),
	})
	require.NoError(t, err)
}

func (f *fixture) submit(t *testing.T, emp generic.EmployeeID, resource string, amount string, dir generic.Direction, period generic.AccountingPeriod) generic.RequestRecord {
	t.Helper()
	rec, err := f.engine.SubmitRequest(f.ctx, generic.SubmitInput{
		EmployeeID: emp,
		Resource:   resource,
		Amount:     dec(amount),
		Direction:  dir,
		Period:     period,
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) account(t *testing.T, emp generic.EmployeeID, resource string, period generic.AccountingPeriod) generic.BalanceAccount {
	t.Helper()
	acct, err := f.engine.GetAccount(f.ctx, emp, resource, period)
	require.NoError(t, err)
	return acct
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "expected %s, got %s %v", want, got, msgAndArgs)
}
