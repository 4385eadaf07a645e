/*
reconciler.go - LedgerReconciler

PURPOSE:
  Applies or reverses exactly one BalanceAccount mutation whenever a
  RequestRecord crosses the "approved" boundary, in either direction.

RULES:
  old != approved && new == approved  → apply  (debit or credit per direction)
  old == approved && new != approved  → reverse (exact inverse of what was applied)
  anything else                       → no ledger effect

  direction  apply                       reverse
  debit      consumed += amount          consumed -= amount (Credit)
  credit     granted  += amount (earn)   granted  -= amount (Revoke)

  rec.Applied is the idempotency guard: apply on an applied record and
  reverse on an unapplied record are both no-ops.

ATOMICITY:
  Reconcile runs inside the caller's WithTx, against the transaction's
  Store. If it returns an error the caller returns it from WithTx, so the
  account mutation, the journal entry and the status write all roll back
  together and the record stays in its prior status.

CLAMPED CREDITS:
  Reversing a debit when consumed is already below the applied amount
  clamps consumed to zero and logs a ConsistencyWarning; the reconcile
  still succeeds. With Applied honored this never happens.
  AppliedAmount stores what actually moved.

SEE ALSO:
  - account.go: Debit/Credit/Grant
  - engine.go: UpdateStatus, Grant
*/
package generic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reconciler keeps balances in lockstep with workflow status.
type Reconciler struct {
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewReconciler(logger *zap.Logger, now func() time.Time) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{logger: logger, now: now, newID: uuid.NewString}
}

// Reconcile adjusts the ledger for rec moving from rec.Status to newStatus.
// It updates rec.Applied and rec.AppliedAmount but not rec.Status.
func (r *Reconciler) Reconcile(ctx context.Context, s Store, policy ResourcePolicy, rec *RequestRecord, newStatus Status, actor string) error {
	entering := rec.Status != StatusApproved && newStatus == StatusApproved
	leaving := rec.Status == StatusApproved && newStatus != StatusApproved

	switch {
	case entering && !rec.Applied:
		return r.apply(ctx, s, policy, rec, actor)
	case leaving && rec.Applied:
		return r.reverse(ctx, s, rec, actor)
	case entering, leaving:
		r.logger.Debug("reconcile skipped by applied flag",
			zap.String("request_id", string(rec.ID)),
			zap.Bool("applied", rec.Applied),
			zap.String("from", string(rec.Status)),
			zap.String("to", string(newStatus)))
	}
	return nil
}

func (r *Reconciler) apply(ctx context.Context, s Store, policy ResourcePolicy, rec *RequestRecord, actor string) error {
	if !policy.Ledgered || rec.Direction == DirectionNone {
		rec.Applied = true
		rec.AppliedAmount = decimal.Zero
		return nil
	}

	acct, err := r.openAccount(ctx, s, policy, rec.AccountKey(), actor)
	if err != nil {
		return err
	}

	now := r.now()
	applied := rec.Amount
	kind := EntryDebit
	switch rec.Direction {
	case DirectionDebit:
		if err := acct.Debit(rec.Amount, now); err != nil {
			return err
		}
	case DirectionCredit:
		kind = EntryEarn
		if err := acct.Grant(rec.Amount, now); err != nil {
			return err
		}
	default:
		return invalid("direction", "unknown direction %q", rec.Direction)
	}

	if err := r.persist(ctx, s, acct, kind, rec.ID, applied, actor); err != nil {
		return err
	}
	rec.Applied = true
	rec.AppliedAmount = applied

	r.logger.Info("ledger applied",
		zap.String("request_id", string(rec.ID)),
		zap.String("account", acct.Key().String()),
		zap.String("direction", string(rec.Direction)),
		zap.String("amount", applied.String()),
		zap.String("remaining", acct.Remaining().String()))
	return nil
}

func (r *Reconciler) reverse(ctx context.Context, s Store, rec *RequestRecord, actor string) error {
	if rec.Direction == DirectionNone || rec.AppliedAmount.IsZero() {
		rec.Applied = false
		rec.AppliedAmount = decimal.Zero
		return nil
	}

	key := rec.AccountKey()
	acct, found, err := s.LockAccount(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to lock account %s: %w", key, err)
	}
	if !found {
		return fmt.Errorf("reversing request %s: %w: %s", rec.ID, ErrAccountNotFound, key)
	}

	now := r.now()
	amount := rec.AppliedAmount
	kind := EntryCredit
	switch rec.Direction {
	case DirectionDebit:
		credited, warn, err := acct.Credit(amount, now)
		if err != nil {
			return err
		}
		if warn != nil {
			warn.RequestID = rec.ID
			r.warn(warn)
		}
		amount = credited
	case DirectionCredit:
		kind = EntryRevoke
		if err := acct.Revoke(amount, now); err != nil {
			return err
		}
	}

	if err := r.persist(ctx, s, acct, kind, rec.ID, amount, actor); err != nil {
		return err
	}
	rec.Applied = false
	rec.AppliedAmount = decimal.Zero

	r.logger.Info("ledger reversed",
		zap.String("request_id", string(rec.ID)),
		zap.String("account", key.String()),
		zap.String("direction", string(rec.Direction.Inverse())),
		zap.String("amount", amount.String()),
		zap.String("remaining", acct.Remaining().String()))
	return nil
}

// openAccount locks the account, creating it with the policy's default
// grant when it doesn't exist yet.
func (r *Reconciler) openAccount(ctx context.Context, s Store, policy ResourcePolicy, key AccountKey, actor string) (BalanceAccount, error) {
	acct, found, err := s.LockAccount(ctx, key)
	if err != nil {
		return BalanceAccount{}, fmt.Errorf("failed to lock account %s: %w", key, err)
	}
	if found {
		return acct, nil
	}

	acct = NewAccount(key, policy.Unit, policy.DefaultGrant, r.now())
	if err := r.persist(ctx, s, acct, EntryOpen, "", policy.DefaultGrant, actor); err != nil {
		return BalanceAccount{}, err
	}
	r.logger.Info("account opened",
		zap.String("account", key.String()),
		zap.String("default_grant", policy.DefaultGrant.String()))
	return acct, nil
}

// grant tops up an account inside the caller's transaction.
func (r *Reconciler) grant(ctx context.Context, s Store, policy ResourcePolicy, key AccountKey, amount decimal.Decimal, actor, remarks string) (BalanceAccount, error) {
	acct, err := r.openAccount(ctx, s, policy, key, actor)
	if err != nil {
		return BalanceAccount{}, err
	}
	if err := acct.Grant(amount, r.now()); err != nil {
		return BalanceAccount{}, err
	}
	if err := s.SaveAccount(ctx, acct); err != nil {
		return BalanceAccount{}, fmt.Errorf("failed to save account: %w", err)
	}
	entry := newEntry(r.newID(), acct, EntryGrant, "", amount, actor, remarks, acct.UpdatedAt())
	if err := s.AppendEntry(ctx, entry); err != nil {
		return BalanceAccount{}, fmt.Errorf("failed to journal grant: %w", err)
	}
	return acct, nil
}

func (r *Reconciler) persist(ctx context.Context, s Store, acct BalanceAccount, kind EntryKind, reqID RequestID, amount decimal.Decimal, actor string) error {
	if err := s.SaveAccount(ctx, acct); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	entry := newEntry(r.newID(), acct, kind, reqID, amount, actor, "", acct.UpdatedAt())
	if err := s.AppendEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to journal %s: %w", kind, err)
	}
	return nil
}

func (r *Reconciler) warn(w *ConsistencyWarning) {
	r.logger.Warn("ledger consistency warning: credit clamped",
		zap.String("account", w.Key.String()),
		zap.String("request_id", string(w.RequestID)),
		zap.String("consumed_before", w.Consumed.String()),
		zap.String("credit", w.Credit.String()),
		zap.String("excess", w.Excess().String()))
}
