// Package store provides in-memory implementations of the engine's
// persistence and directory collaborators.
package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/warp/approval-ledger/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a generic.TxStore kept in maps. WithTx holds one global lock,
// so transactions are fully serialized.
type Memory struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	accounts    map[generic.AccountKey]generic.BalanceAccount
	entries     map[generic.AccountKey][]generic.LedgerEntry
	requests    map[generic.RequestID]generic.RequestRecord
	seq         map[generic.RequestID]int
	nextSeq     int
	transitions map[generic.RequestID][]generic.TransitionEntry
}

var _ generic.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

func newState() *state {
	return &state{
		accounts:    make(map[generic.AccountKey]generic.BalanceAccount),
		entries:     make(map[generic.AccountKey][]generic.LedgerEntry),
		requests:    make(map[generic.RequestID]generic.RequestRecord),
		seq:         make(map[generic.RequestID]int),
		transitions: make(map[generic.RequestID][]generic.TransitionEntry),
	}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := m.state.clone()
	if err := fn(m.state); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *Memory) LockAccount(ctx context.Context, k generic.AccountKey) (generic.BalanceAccount, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LockAccount(ctx, k)
}

func (m *Memory) GetAccount(ctx context.Context, k generic.AccountKey) (generic.BalanceAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetAccount(ctx, k)
}

func (m *Memory) SaveAccount(ctx context.Context, acct generic.BalanceAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveAccount(ctx, acct)
}

func (m *Memory) ListAccounts(ctx context.Context, id generic.EmployeeID) ([]generic.BalanceAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListAccounts(ctx, id)
}

func (m *Memory) AppendEntry(ctx context.Context, e generic.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AppendEntry(ctx, e)
}

func (m *Memory) Entries(ctx context.Context, k generic.AccountKey) ([]generic.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Entries(ctx, k)
}

func (m *Memory) CreateRequest(ctx context.Context, rec generic.RequestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateRequest(ctx, rec)
}

func (m *Memory) GetRequest(ctx context.Context, id generic.RequestID) (generic.RequestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetRequest(ctx, id)
}

func (m *Memory) GetRequestForUpdate(ctx context.Context, id generic.RequestID) (generic.RequestRecord, error) {
	return m.GetRequest(ctx, id)
}

func (m *Memory) UpdateRequest(ctx context.Context, rec generic.RequestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateRequest(ctx, rec)
}

func (m *Memory) DeleteRequest(ctx context.Context, id generic.RequestID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeleteRequest(ctx, id)
}

func (m *Memory) ListRequests(ctx context.Context, f generic.RequestFilter) ([]generic.RequestRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListRequests(ctx, f)
}

func (m *Memory) AppendTransition(ctx context.Context, t generic.TransitionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AppendTransition(ctx, t)
}

func (m *Memory) Transitions(ctx context.Context, id generic.RequestID) ([]generic.TransitionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Transitions(ctx, id)
}

// =============================================================================
// STATE - Unlocked view handed to WithTx callbacks
// =============================================================================

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = slices.Clone(v)
	}
	for k, v := range s.requests {
		c.requests[k] = v.Clone()
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	c.nextSeq = s.nextSeq
	for k, v := range s.transitions {
		c.transitions[k] = slices.Clone(v)
	}
	return c
}

// LockAccount needs no extra locking: the caller holds the store lock.
func (s *state) LockAccount(_ context.Context, k generic.AccountKey) (generic.BalanceAccount, bool, error) {
	acct, ok := s.accounts[k]
	return acct, ok, nil
}

func (s *state) GetAccount(_ context.Context, k generic.AccountKey) (generic.BalanceAccount, error) {
	acct, ok := s.accounts[k]
	if !ok {
		return generic.BalanceAccount{}, generic.ErrAccountNotFound
	}
	return acct, nil
}

func (s *state) SaveAccount(_ context.Context, acct generic.BalanceAccount) error {
	s.accounts[acct.Key()] = acct
	return nil
}

func (s *state) ListAccounts(_ context.Context, id generic.EmployeeID) ([]generic.BalanceAccount, error) {
	var out []generic.BalanceAccount
	for k, acct := range s.accounts {
		if id == "" || k.EmployeeID == id {
			out = append(out, acct)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out, nil
}

func (s *state) AppendEntry(_ context.Context, e generic.LedgerEntry) error {
	s.entries[e.Key] = append(s.entries[e.Key], e)
	return nil
}

func (s *state) Entries(_ context.Context, k generic.AccountKey) ([]generic.LedgerEntry, error) {
	return slices.Clone(s.entries[k]), nil
}

func (s *state) CreateRequest(_ context.Context, rec generic.RequestRecord) error {
	if _, exists := s.requests[rec.ID]; exists {
		return generic.ErrConcurrentModification
	}
	s.requests[rec.ID] = rec.Clone()
	s.nextSeq++
	s.seq[rec.ID] = s.nextSeq
	return nil
}

func (s *state) GetRequest(_ context.Context, id generic.RequestID) (generic.RequestRecord, error) {
	rec, ok := s.requests[id]
	if !ok {
		return generic.RequestRecord{}, generic.ErrRequestNotFound
	}
	return rec.Clone(), nil
}

func (s *state) GetRequestForUpdate(ctx context.Context, id generic.RequestID) (generic.RequestRecord, error) {
	return s.GetRequest(ctx, id)
}

func (s *state) UpdateRequest(_ context.Context, rec generic.RequestRecord) error {
	if _, ok := s.requests[rec.ID]; !ok {
		return generic.ErrRequestNotFound
	}
	s.requests[rec.ID] = rec.Clone()
	return nil
}

func (s *state) DeleteRequest(_ context.Context, id generic.RequestID) error {
	if _, ok := s.requests[id]; !ok {
		return generic.ErrRequestNotFound
	}
	delete(s.requests, id)
	delete(s.seq, id)
	return nil
}

func (s *state) ListRequests(_ context.Context, f generic.RequestFilter) ([]generic.RequestRecord, error) {
	var out []generic.RequestRecord
	for _, rec := range s.requests {
		if f.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] > s.seq[out[j].ID] })
	return out, nil
}

func (s *state) AppendTransition(_ context.Context, t generic.TransitionEntry) error {
	s.transitions[t.RequestID] = append(s.transitions[t.RequestID], t)
	return nil
}

func (s *state) Transitions(_ context.Context, id generic.RequestID) ([]generic.TransitionEntry, error) {
	return slices.Clone(s.transitions[id]), nil
}
