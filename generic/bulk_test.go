package generic_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/warp/approval-ledger/generic"
)

// =============================================================================
// MOCKS
// =============================================================================

type mockUpdater struct {
	mock.Mock
}

func (m *mockUpdater) UpdateStatusAs(ctx context.Context, id generic.RequestID, roles generic.RoleSnapshot, target generic.Status, remarks string) (generic.RequestRecord, error) {
	args := m.Called(ctx, id, roles, target, remarks)
	return args.Get(0).(generic.RequestRecord), args.Error(1)
}

type mockRoles struct {
	mock.Mock
}

func (m *mockRoles) ResolveRoles(ctx context.Context, actorID string) (generic.RoleSnapshot, error) {
	args := m.Called(ctx, actorID)
	return args.Get(0).(generic.RoleSnapshot), args.Error(1)
}

// =============================================================================
// COORDINATOR (isolated)
// =============================================================================

func TestBulkCoordinator_IsolatesFailures(t *testing.T) {
	ctx := context.Background()
	roles := &mockRoles{}
	roles.On("ResolveRoles", ctx, hrd).Return(rolesHRD, nil).Once()

	updater := &mockUpdater{}
	updater.On("UpdateStatusAs", ctx, generic.RequestID("a"), rolesHRD, generic.StatusApproved, "batch").
		Return(generic.RequestRecord{ID: "a", Status: generic.StatusApproved}, nil)
	updater.On("UpdateStatusAs", ctx, generic.RequestID("b"), rolesHRD, generic.StatusApproved, "batch").
		Return(generic.RequestRecord{}, generic.ErrInsufficientBalance)
	updater.On("UpdateStatusAs", ctx, generic.RequestID("c"), rolesHRD, generic.StatusApproved, "batch").
		Return(generic.RequestRecord{ID: "c", Status: generic.StatusApproved}, nil)

	coord := generic.NewBulkCoordinator(updater, roles, nil)

	// WHEN: a batch with a duplicate id runs
	result, err := coord.Run(ctx, []generic.RequestID{"a", "b", "a", "c"}, hrd, generic.StatusApproved, "batch")

	// THEN: each id is processed once; b's failure doesn't stop c
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Items, 3)
	failed := result.Errors()
	require.Len(t, failed, 1)
	assert.Equal(t, generic.RequestID("b"), failed[0].RequestID)
	assert.ErrorIs(t, failed[0].Err, generic.ErrInsufficientBalance)
	updater.AssertNumberOfCalls(t, "UpdateStatusAs", 3)
	roles.AssertExpectations(t)
}

func TestBulkCoordinator_RejectsBadBatch(t *testing.T) {
	ctx := context.Background()
	roles := &mockRoles{}
	updater := &mockUpdater{}
	coord := generic.NewBulkCoordinator(updater, roles, nil)

	_, err := coord.Run(ctx, nil, hrd, generic.StatusApproved, "")
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = coord.Run(ctx, []generic.RequestID{"a"}, hrd, "done", "")
	assert.ErrorIs(t, err, generic.ErrValidation)

	roles.On("ResolveRoles", ctx, "ghost").Return(generic.RoleSnapshot{}, errors.New("directory down"))
	_, err = coord.Run(ctx, []generic.RequestID{"a"}, "ghost", generic.StatusApproved, "")
	assert.Error(t, err)

	updater.AssertNotCalled(t, "UpdateStatusAs", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBulkCoordinator_CancelledContextFailsRemainingItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	roles := &mockRoles{}
	roles.On("ResolveRoles", ctx, hrd).Return(rolesHRD, nil)

	updater := &mockUpdater{}
	updater.On("UpdateStatusAs", ctx, generic.RequestID("a"), rolesHRD, generic.StatusRejected, "").
		Run(func(mock.Arguments) { cancel() }).
		Return(generic.RequestRecord{ID: "a", Status: generic.StatusRejected}, nil)

	result, err := generic.NewBulkCoordinator(updater, roles, nil).
		Run(ctx, []generic.RequestID{"a", "b"}, hrd, generic.StatusRejected, "")

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.ErrorIs(t, result.Items[1].Err, context.Canceled)
}

// =============================================================================
// ENGINE BULK
// =============================================================================

func TestBulkApprove_OneOverdraw(t *testing.T) {
	f := newFixture(t)

	// GIVEN: five employees with 10 hours each; request #3 asks for 20
	employees := []generic.EmployeeID{"emp-1", "emp-2", "emp-3", "emp-4", "emp-5"}
	var ids []generic.RequestID
	for i, emp := range employees {
		f.grant(t, emp, resOffset, generic.Perpetual, "10")
		amount := "4"
		if i == 2 {
			amount = "20"
		}
		ids = append(ids, f.submit(t, emp, resOffset, amount, generic.DirectionDebit, generic.Perpetual).ID)
	}

	// WHEN: all five are bulk-approved
	result, err := f.engine.BulkUpdateStatus(f.ctx, ids, hrd, generic.StatusApproved, "monthly batch")
	require.NoError(t, err)

	// THEN: 4 succeeded, #3 failed with an itemized reason
	assert.Equal(t, 4, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	failed := result.Errors()
	require.Len(t, failed, 1)
	assert.Equal(t, ids[2], failed[0].RequestID)
	var ib *generic.InsufficientBalanceError
	require.ErrorAs(t, failed[0].Err, &ib)
	requireDecimal(t, "10", ib.Remaining)

	// AND: each of the other accounts moved by exactly 4; #3 did not move
	for i, emp := range employees {
		want := "6"
		if i == 2 {
			want = "10"
		}
		requireDecimal(t, want, f.account(t, emp, resOffset, generic.Perpetual).Remaining(), emp)
	}
	rec3, err := f.engine.GetRequest(f.ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, generic.StatusPending, rec3.Status)
}

func TestBulkApprove_SameAccountSerialized(t *testing.T) {
	f := newFixture(t)

	// GIVEN: one account with 10 hours and three 4-hour requests
	f.grant(t, "emp-1", resOffset, generic.Perpetual, "10")
	var ids []generic.RequestID
	for i := 0; i < 3; i++ {
		ids = append(ids, f.submit(t, "emp-1", resOffset, "4", generic.DirectionDebit, generic.Perpetual).ID)
	}

	// WHEN: bulk-approved together
	result, err := f.engine.BulkUpdateStatus(f.ctx, ids, mgrEng, generic.StatusApproved, "")
	require.NoError(t, err)

	// THEN: the third sees the balance the first two left
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, ids[2], result.Errors()[0].RequestID)
	requireDecimal(t, "2", f.account(t, "emp-1", resOffset, generic.Perpetual).Remaining())
}

func TestBulk_UnauthorizedItemsAreIsolated(t *testing.T) {
	f := newFixture(t)

	// GIVEN: one request in eng and one in ops
	eng := f.submit(t, "emp-1", resSick, "1", generic.DirectionDebit, generic.YearPeriod(2025))
	ops := f.submit(t, "emp-7", resSick, "1", generic.DirectionDebit, generic.YearPeriod(2025))

	// WHEN: the eng manager approves both
	result, err := f.engine.BulkUpdateStatus(f.ctx, []generic.RequestID{eng.ID, ops.ID}, mgrEng, generic.StatusApproved, "")
	require.NoError(t, err)

	// THEN: only the eng one passes
	assert.Equal(t, 1, result.Succeeded)
	require.Len(t, result.Errors(), 1)
	assert.ErrorIs(t, result.Errors()[0].Err, generic.ErrUnauthorized)
}
