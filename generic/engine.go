/*
engine.go - The exposed operations

PURPOSE:
  Engine is the single entry point collaborators (HTTP layer, CLI, batch
  jobs) use. It owns the order of every multi-step operation:

    resolve roles → lock keys → tx{ re-read → resolve transition →
    authorize → reconcile → persist record → journal transition }

  Each step returns an explicit error; the first failure aborts the
  transaction and nothing it did persists.

CONCURRENCY:
  Identity is resolved before any lock is taken, so no lock is held across
  a collaborator call. The engine then holds an in-process lock on the
  request id and the account key, and the store re-reads both rows under
  its own transaction lock. Two approvals against the same account run
  one after the other and the second sees the first one's consumed.

SEE ALSO:
  - workflow.go: Resolve, Authorize
  - reconciler.go: Reconcile
  - bulk.go: BulkUpdateStatus
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Engine runs requests through their approval chain and keeps the ledger
// consistent with it.
type Engine struct {
	store     TxStore
	employees EmployeeResolver
	roles     RoleResolver

	mu       sync.RWMutex
	policies map[string]ResourcePolicy

	reconciler *Reconciler
	locks      *KeyedMutex
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces uuid.NewString for request ids.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

func NewEngine(store TxStore, employees EmployeeResolver, roles RoleResolver, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		employees: employees,
		roles:     roles,
		policies:  make(map[string]ResourcePolicy),
		locks:     NewKeyedMutex(),
		logger:    zap.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reconciler = NewReconciler(e.logger.Named("reconciler"), e.now)
	return e
}

// =============================================================================
// POLICIES
// =============================================================================

// RegisterPolicy makes a resource type usable. Registering the same
// resource twice replaces the earlier policy.
func (e *Engine) RegisterPolicy(p ResourcePolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	RegisterResource(p.Resource)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.ID()] = p
	return nil
}

// Policy returns the policy of a resource type.
func (e *Engine) Policy(resource string) (ResourcePolicy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[resource]
	if !ok {
		return ResourcePolicy{}, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	return p, nil
}

// Policies lists registered policies ordered by resource id.
func (e *Engine) Policies() []ResourcePolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(e.policies))
	out := make([]ResourcePolicy, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.policies[id])
	}
	return out
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitRequest validates input and creates a pending record. It has no
// ledger effect.
func (e *Engine) SubmitRequest(ctx context.Context, in SubmitInput) (RequestRecord, error) {
	policy, err := e.Policy(in.Resource)
	if err != nil {
		return RequestRecord{}, err
	}
	if in.EmployeeID == "" {
		return RequestRecord{}, invalid("employee_id", "required")
	}
	if !in.Amount.IsPositive() {
		return RequestRecord{}, invalid("amount", "must be greater than zero, got %s", in.Amount)
	}
	if err := policy.checkDirection(in.Direction); err != nil {
		return RequestRecord{}, err
	}
	period, err := policy.NormalizePeriod(in.Period)
	if err != nil {
		return RequestRecord{}, err
	}

	emp, err := e.employees.ResolveEmployee(ctx, in.EmployeeID)
	if err != nil {
		return RequestRecord{}, fmt.Errorf("failed to resolve employee %s: %w", in.EmployeeID, err)
	}

	now := e.now()
	requestedBy := in.RequestedBy
	if requestedBy == "" {
		requestedBy = string(in.EmployeeID)
	}
	rec := RequestRecord{
		ID:            RequestID(e.newID()),
		EmployeeID:    emp.ID,
		Department:    emp.Department,
		Resource:      in.Resource,
		Period:        period,
		Amount:        in.Amount,
		Unit:          policy.Unit,
		Direction:     in.Direction,
		Status:        StatusPending,
		AppliedAmount: decimal.Zero,
		RequestedBy:   requestedBy,
		Remarks:       in.Remarks,
		Context:       maps.Clone(in.Context),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = e.store.WithTx(ctx, func(s Store) error {
		if err := s.CreateRequest(ctx, rec); err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		return s.AppendTransition(ctx, e.transitionEntry(rec.ID, "", StatusPending, TriggerSubmit, requestedBy, in.Remarks, false, now))
	})
	if err != nil {
		return RequestRecord{}, err
	}

	e.logger.Info("request submitted",
		zap.String("request_id", string(rec.ID)),
		zap.String("employee_id", string(rec.EmployeeID)),
		zap.String("resource", rec.Resource),
		zap.String("amount", rec.Amount.String()),
		zap.String("direction", string(rec.Direction)))
	return rec, nil
}

// =============================================================================
// UPDATE STATUS
// =============================================================================

// UpdateStatus moves a record to target. On any error the record and the
// ledger are left exactly as they were.
func (e *Engine) UpdateStatus(ctx context.Context, id RequestID, actorID string, target Status, remarks string) (RequestRecord, error) {
	if !target.IsValid() {
		return RequestRecord{}, invalid("status", "unknown status %q", target)
	}
	roles, err := e.resolveRoles(ctx, actorID)
	if err != nil {
		return RequestRecord{}, err
	}
	return e.UpdateStatusAs(ctx, id, roles, target, remarks)
}

// UpdateStatusAs is UpdateStatus with the actor's roles already resolved.
func (e *Engine) UpdateStatusAs(ctx context.Context, id RequestID, roles RoleSnapshot, target Status, remarks string) (RequestRecord, error) {
	if !target.IsValid() {
		return RequestRecord{}, invalid("status", "unknown status %q", target)
	}
	snapshot, err := e.store.GetRequest(ctx, id)
	if err != nil {
		return RequestRecord{}, err
	}
	policy, err := e.Policy(snapshot.Resource)
	if err != nil {
		return RequestRecord{}, err
	}
	key := snapshot.AccountKey()

	unlock := e.locks.Lock(requestLockKey(id), accountLockKey(key))
	defer unlock()

	var out RequestRecord
	err = e.store.WithTx(ctx, func(s Store) error {
		rec, err := s.GetRequestForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if rec.AccountKey() != key {
			return fmt.Errorf("request %s moved to %s while locking %s: %w", id, rec.AccountKey(), key, ErrConcurrentModification)
		}
		if err := e.transition(ctx, s, policy, &rec, roles, target, remarks); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return RequestRecord{}, err
	}
	return out, nil
}

// transition runs validate → authorize → reconcile → persist against the
// transaction's store.
func (e *Engine) transition(ctx context.Context, s Store, policy ResourcePolicy, rec *RequestRecord, roles RoleSnapshot, target Status, remarks string) error {
	t, err := WorkflowFor(policy.Workflow).Resolve(*rec, target)
	if err != nil {
		return err
	}
	if err := Authorize(t, *rec, roles); err != nil {
		return err
	}

	now := e.now()
	actor := roles.ActorID

	if t.Trigger == TriggerRemarks {
		rec.appendRemark(remarks)
		rec.UpdatedAt = now
		if err := s.UpdateRequest(ctx, *rec); err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}
		return s.AppendTransition(ctx, e.transitionEntry(rec.ID, rec.Status, rec.Status, TriggerRemarks, actor, remarks, false, now))
	}

	from := rec.Status
	to := EffectiveTarget(t.To)

	if err := e.reconciler.Reconcile(ctx, s, policy, rec, to, actor); err != nil {
		return err
	}

	var synthetic []TransitionEntry
	switch t.Trigger {
	case TriggerDepartmentApprove:
		rec.ManagerApprovedBy, rec.ManagerApprovedAt = &actor, &now
	case TriggerApprove, TriggerFinalApprove:
		rec.ApprovedBy, rec.ApprovedAt = &actor, &now
	case TriggerReject:
		rec.RejectedBy, rec.RejectedAt = &actor, &now
	case TriggerRevert:
		rec.ApprovedBy, rec.ApprovedAt = nil, nil
		if to == StatusRejected {
			rec.RejectedBy, rec.RejectedAt = &actor, &now
		}
	case TriggerForceApprove:
		if policy.Workflow == ThreeStage && rec.ManagerApprovedBy == nil {
			rec.ManagerApprovedBy, rec.ManagerApprovedAt = &actor, &now
			synthetic = append(synthetic, e.transitionEntry(rec.ID, from, StatusManagerApproved,
				TriggerDepartmentApprove, actor, "back-filled by force-approval", true, now))
			from = StatusManagerApproved
		}
		rec.ApprovedBy, rec.ApprovedAt = &actor, &now
		rec.appendRemark(fmt.Sprintf("[force-approved by %s]", actor))
	}
	rec.appendRemark(remarks)
	rec.Status = to
	rec.UpdatedAt = now

	if err := s.UpdateRequest(ctx, *rec); err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	for _, entry := range synthetic {
		if err := s.AppendTransition(ctx, entry); err != nil {
			return fmt.Errorf("failed to journal transition: %w", err)
		}
	}
	if err := s.AppendTransition(ctx, e.transitionEntry(rec.ID, from, to, t.Trigger, actor, remarks, false, now)); err != nil {
		return fmt.Errorf("failed to journal transition: %w", err)
	}

	e.logger.Info("request status changed",
		zap.String("request_id", string(rec.ID)),
		zap.String("trigger", string(t.Trigger)),
		zap.String("from", string(t.From)),
		zap.String("to", string(to)),
		zap.String("actor", actor),
		zap.Bool("applied", rec.Applied))
	return nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// GetAccount returns the account, opening it with the default grant on
// first reference.
func (e *Engine) GetAccount(ctx context.Context, employeeID EmployeeID, resource string, period AccountingPeriod) (BalanceAccount, error) {
	policy, key, err := e.accountKey(employeeID, resource, period)
	if err != nil {
		return BalanceAccount{}, err
	}

	acct, err := e.store.GetAccount(ctx, key)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return BalanceAccount{}, err
	}

	unlock := e.locks.Lock(accountLockKey(key))
	defer unlock()
	err = e.store.WithTx(ctx, func(s Store) error {
		acct, err = e.reconciler.openAccount(ctx, s, policy, key, "system")
		return err
	})
	if err != nil {
		return BalanceAccount{}, err
	}
	return acct, nil
}

// ListAccounts returns every persisted account of an employee.
func (e *Engine) ListAccounts(ctx context.Context, employeeID EmployeeID) ([]BalanceAccount, error) {
	return e.store.ListAccounts(ctx, employeeID)
}

// GrantInput describes an administrative top-up.
type GrantInput struct {
	ActorID    string
	EmployeeID EmployeeID
	Resource   string
	Period     AccountingPeriod
	Amount     decimal.Decimal
	Remarks    string
}

// Grant adds to an account's granted units. HRD managers and super-admins only.
func (e *Engine) Grant(ctx context.Context, in GrantInput) (BalanceAccount, error) {
	policy, key, err := e.accountKey(in.EmployeeID, in.Resource, in.Period)
	if err != nil {
		return BalanceAccount{}, err
	}
	if !policy.Ledgered {
		return BalanceAccount{}, invalid("resource", "%s has no balance to grant", policy.ID())
	}
	if !in.Amount.IsPositive() {
		return BalanceAccount{}, invalid("amount", "grant must be positive, got %s", in.Amount)
	}
	roles, err := e.resolveRoles(ctx, in.ActorID)
	if err != nil {
		return BalanceAccount{}, err
	}
	if !LevelFinal.Allows(roles, "") {
		return BalanceAccount{}, &UnauthorizedError{Actor: in.ActorID, Required: LevelFinal, Transition: "grant " + policy.ID()}
	}

	unlock := e.locks.Lock(accountLockKey(key))
	defer unlock()

	var acct BalanceAccount
	err = e.store.WithTx(ctx, func(s Store) error {
		acct, err = e.reconciler.grant(ctx, s, policy, key, in.Amount, in.ActorID, in.Remarks)
		return err
	})
	if err != nil {
		return BalanceAccount{}, err
	}

	e.logger.Info("account granted",
		zap.String("account", key.String()),
		zap.String("amount", in.Amount.String()),
		zap.String("actor", in.ActorID),
		zap.String("granted", acct.Granted().String()))
	return acct, nil
}

// Entries returns an account's journal.
func (e *Engine) Entries(ctx context.Context, employeeID EmployeeID, resource string, period AccountingPeriod) ([]LedgerEntry, error) {
	_, key, err := e.accountKey(employeeID, resource, period)
	if err != nil {
		return nil, err
	}
	return e.store.Entries(ctx, key)
}

func (e *Engine) accountKey(employeeID EmployeeID, resource string, period AccountingPeriod) (ResourcePolicy, AccountKey, error) {
	policy, err := e.Policy(resource)
	if err != nil {
		return ResourcePolicy{}, AccountKey{}, err
	}
	if employeeID == "" {
		return ResourcePolicy{}, AccountKey{}, invalid("employee_id", "required")
	}
	period, err = policy.NormalizePeriod(period)
	if err != nil {
		return ResourcePolicy{}, AccountKey{}, err
	}
	return policy, AccountKey{EmployeeID: employeeID, Resource: resource, Period: period}, nil
}

// =============================================================================
// AMEND / DELETE - Pending and unapplied records only
// =============================================================================

// AmendInput carries the fields an amendment may change. Nil means keep.
type AmendInput struct {
	Amount  *decimal.Decimal
	Period  *AccountingPeriod
	Remarks string
}

// AmendRequest edits a pending record. The amount of a record rated from a
// breakdown cannot be changed.
func (e *Engine) AmendRequest(ctx context.Context, id RequestID, actorID string, in AmendInput) (RequestRecord, error) {
	if in.Amount != nil && !in.Amount.IsPositive() {
		return RequestRecord{}, invalid("amount", "must be greater than zero, got %s", *in.Amount)
	}
	roles, err := e.resolveRoles(ctx, actorID)
	if err != nil {
		return RequestRecord{}, err
	}

	unlock := e.locks.Lock(requestLockKey(id))
	defer unlock()

	var out RequestRecord
	err = e.store.WithTx(ctx, func(s Store) error {
		rec, err := e.editable(ctx, s, id, roles, "amend")
		if err != nil {
			return err
		}
		policy, err := e.Policy(rec.Resource)
		if err != nil {
			return err
		}
		if in.Amount != nil {
			if rec.AmountComputed() && !in.Amount.Equal(rec.Amount) {
				return invalid("amount", "computed from a rate breakdown; resubmit the claim to change it")
			}
			rec.Amount = *in.Amount
		}
		if in.Period != nil {
			if rec.Period, err = policy.NormalizePeriod(*in.Period); err != nil {
				return err
			}
		}
		now := e.now()
		rec.appendRemark(in.Remarks)
		rec.UpdatedAt = now
		if err := s.UpdateRequest(ctx, rec); err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}
		out = rec
		return s.AppendTransition(ctx, e.transitionEntry(id, rec.Status, rec.Status, TriggerAmend, actorID, in.Remarks, false, now))
	})
	if err != nil {
		return RequestRecord{}, err
	}
	return out, nil
}

// DeleteRequest removes a pending record. Records that are approved, or
// whose ledger effect is applied, must be reverted first.
func (e *Engine) DeleteRequest(ctx context.Context, id RequestID, actorID string) error {
	roles, err := e.resolveRoles(ctx, actorID)
	if err != nil {
		return err
	}

	unlock := e.locks.Lock(requestLockKey(id))
	defer unlock()

	err = e.store.WithTx(ctx, func(s Store) error {
		if _, err := e.editable(ctx, s, id, roles, "delete"); err != nil {
			return err
		}
		return s.DeleteRequest(ctx, id)
	})
	if err != nil {
		return err
	}
	e.logger.Info("request deleted", zap.String("request_id", string(id)), zap.String("actor", actorID))
	return nil
}

// editable loads a record under lock and checks it can still be changed
// by the actor.
func (e *Engine) editable(ctx context.Context, s Store, id RequestID, roles RoleSnapshot, action string) (RequestRecord, error) {
	rec, err := s.GetRequestForUpdate(ctx, id)
	if err != nil {
		return RequestRecord{}, err
	}
	if !rec.IsPendingAndUnapplied() {
		return RequestRecord{}, fmt.Errorf("%s request %s in status %s: %w", action, id, rec.Status, ErrNotDeletable)
	}
	if roles.ActorID != rec.RequestedBy && roles.ActorID != string(rec.EmployeeID) && !roles.CanActOn(rec.Department) {
		return RequestRecord{}, &UnauthorizedError{Actor: roles.ActorID, Required: LevelAny, Transition: action + " request"}
	}
	return rec, nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (e *Engine) GetRequest(ctx context.Context, id RequestID) (RequestRecord, error) {
	return e.store.GetRequest(ctx, id)
}

func (e *Engine) ListRequests(ctx context.Context, filter RequestFilter) ([]RequestRecord, error) {
	return e.store.ListRequests(ctx, filter)
}

// History returns the transition journal of a record.
func (e *Engine) History(ctx context.Context, id RequestID) ([]TransitionEntry, error) {
	return e.store.Transitions(ctx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) resolveRoles(ctx context.Context, actorID string) (RoleSnapshot, error) {
	if actorID == "" {
		return RoleSnapshot{}, invalid("actor", "required")
	}
	roles, err := e.roles.ResolveRoles(ctx, actorID)
	if err != nil {
		return RoleSnapshot{}, fmt.Errorf("failed to resolve roles for %s: %w", actorID, err)
	}
	roles.ActorID = actorID
	return roles, nil
}

func (e *Engine) transitionEntry(id RequestID, from, to Status, trigger Trigger, actor, remarks string, synthetic bool, at time.Time) TransitionEntry {
	return TransitionEntry{
		ID:        uuid.NewString(),
		RequestID: id,
		From:      from,
		To:        to,
		Trigger:   trigger,
		Actor:     actor,
		Remarks:   remarks,
		Synthetic: synthetic,
		At:        at,
	}
}

func requestLockKey(id RequestID) string  { return "request:" + string(id) }
func accountLockKey(k AccountKey) string { return "account:" + k.String() }
