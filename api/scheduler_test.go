package api

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/approval-ledger/generic"
)

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context) (generic.VerifyReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(generic.VerifyReport), args.Error(1)
}

func TestVerifyScheduler_RunNowLogsDiscrepancies(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	v := &mockVerifier{}
	report := generic.VerifyReport{
		AccountsChecked: 1,
		Discrepancies: []generic.Discrepancy{{
			Kind:   generic.NegativeRemaining,
			Key:    generic.AccountKey{EmployeeID: "emp-1", Resource: "offset_hours"},
			Detail: "granted 0, consumed 2",
		}},
	}
	v.On("Verify", mock.Anything).Return(report, nil).Once()

	s := NewVerifyScheduler(v, time.Hour, zap.New(core))
	got := s.RunNow(context.Background())

	assert.False(t, got.OK())
	warns := logs.FilterMessage("ledger discrepancy").All()
	if assert.Len(t, warns, 1) {
		assert.Equal(t, "negative_remaining", warns[0].ContextMap()["kind"])
	}
	v.AssertExpectations(t)
}

func TestVerifyScheduler_ErrorKeepsLastReport(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	v := &mockVerifier{}
	v.On("Verify", mock.Anything).Return(generic.VerifyReport{AccountsChecked: 3}, nil).Once()
	v.On("Verify", mock.Anything).Return(generic.VerifyReport{}, errors.New("db gone")).Once()

	s := NewVerifyScheduler(v, time.Hour, zap.New(core))
	s.RunNow(context.Background())
	got := s.RunNow(context.Background())

	assert.Equal(t, 3, got.AccountsChecked)
	assert.Equal(t, 1, logs.FilterMessage("ledger verification failed").Len())
}

func TestVerifyScheduler_StartStop(t *testing.T) {
	v := &mockVerifier{}
	var calls atomic.Int32
	v.On("Verify", mock.Anything).Return(generic.VerifyReport{}, nil).Run(func(mock.Arguments) { calls.Add(1) })

	s := NewVerifyScheduler(v, 10*time.Millisecond, zap.NewNop())
	s.Start()
	assert.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestVerifyScheduler_ZeroIntervalDisabled(t *testing.T) {
	v := &mockVerifier{}

	s := NewVerifyScheduler(v, 0, zap.NewNop())
	s.Start()
	s.Stop()

	v.AssertNotCalled(t, "Verify", mock.Anything)
}
