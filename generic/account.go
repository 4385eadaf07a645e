/*
account.go - BalanceAccount, the ledger row

PURPOSE:
  One account per (employee, resource type, accounting period). It tracks
  what was granted and what was consumed; remaining is always derived.

CRITICAL INVARIANTS:
  1. remaining = granted - consumed >= 0, at all times
  2. Only Grant, Revoke, Debit and Credit mutate an account
  3. A rejected Debit or Revoke leaves the account bit-for-bit unchanged

LIFECYCLE:
  Created lazily on first reference with the resource's default grant,
  mutated only inside a store transaction that holds the account's lock,
  never deleted.

SEE ALSO:
  - reconciler.go: the only caller of Debit/Credit/Revoke
  - engine.go: Grant
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceAccount is a bank of hours or days for one employee.
// Fields are unexported so that no caller can set granted or consumed
// directly; stores rebuild accounts with RestoreAccount.
type BalanceAccount struct {
	key       AccountKey
	unit      Unit
	granted   decimal.Decimal
	consumed  decimal.Decimal
	createdAt time.Time
	updatedAt time.Time
}

// NewAccount opens an account with an initial grant.
func NewAccount(key AccountKey, unit Unit, initialGrant decimal.Decimal, now time.Time) BalanceAccount {
	if initialGrant.IsNegative() {
		initialGrant = decimal.Zero
	}
	return BalanceAccount{
		key:       key,
		unit:      unit,
		granted:   initialGrant,
		consumed:  decimal.Zero,
		createdAt: now,
		updatedAt: now,
	}
}

// RestoreAccount rebuilds an account from persisted columns.
// Only storage backends should call this.
func RestoreAccount(key AccountKey, unit Unit, granted, consumed decimal.Decimal, createdAt, updatedAt time.Time) BalanceAccount {
	return BalanceAccount{
		key:       key,
		unit:      unit,
		granted:   granted,
		consumed:  consumed,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (a BalanceAccount) Key() AccountKey           { return a.key }
func (a BalanceAccount) Unit() Unit                { return a.unit }
func (a BalanceAccount) Granted() decimal.Decimal  { return a.granted }
func (a BalanceAccount) Consumed() decimal.Decimal { return a.consumed }
func (a BalanceAccount) CreatedAt() time.Time      { return a.createdAt }
func (a BalanceAccount) UpdatedAt() time.Time      { return a.updatedAt }

// Remaining is recomputed on every call, never cached.
func (a BalanceAccount) Remaining() decimal.Decimal {
	return a.granted.Sub(a.consumed)
}

// RemainingAmount returns Remaining with the account's unit.
func (a BalanceAccount) RemainingAmount() Amount {
	return Amount{Value: a.Remaining(), Unit: a.unit}
}

// Equal compares the ledger state (granted and consumed) of two accounts.
func (a BalanceAccount) Equal(b BalanceAccount) bool {
	return a.key == b.key && a.granted.Equal(b.granted) && a.consumed.Equal(b.consumed)
}

// =============================================================================
// MUTATORS - The only legal ways to change an account
// =============================================================================

// Grant tops up the bank: granted += amount.
func (a *BalanceAccount) Grant(amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return invalid("amount", "grant must be positive, got %s", amount)
	}
	a.granted = a.granted.Add(amount)
	a.updatedAt = now
	return nil
}

// Revoke takes back units added by Grant: granted -= amount.
// It is only used to reverse an approved credit request, and fails like
// Debit when the units have already been spent.
func (a *BalanceAccount) Revoke(amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return invalid("amount", "revoke must be positive, got %s", amount)
	}
	if remaining := a.Remaining(); remaining.LessThan(amount) {
		return &InsufficientBalanceError{Key: a.key, Remaining: remaining, Requested: amount}
	}
	a.granted = a.granted.Sub(amount)
	a.updatedAt = now
	return nil
}

// Debit draws units from the bank: consumed += amount.
// Fails without touching the account if remaining < amount.
func (a *BalanceAccount) Debit(amount decimal.Decimal, now time.Time) error {
	if !amount.IsPositive() {
		return invalid("amount", "debit must be positive, got %s", amount)
	}
	if remaining := a.Remaining(); remaining.LessThan(amount) {
		return &InsufficientBalanceError{Key: a.key, Remaining: remaining, Requested: amount}
	}
	a.consumed = a.consumed.Add(amount)
	a.updatedAt = now
	return nil
}

// Credit gives consumed units back: consumed -= amount, floored at zero.
// The reconciler uses it to reverse an applied debit.
// It returns the amount actually credited. When the credit exceeds what was
// consumed, consumed is clamped to zero and a ConsistencyWarning is returned
// alongside a nil error: the credit still completes.
func (a *BalanceAccount) Credit(amount decimal.Decimal, now time.Time) (decimal.Decimal, *ConsistencyWarning, error) {
	if !amount.IsPositive() {
		return decimal.Zero, nil, invalid("amount", "credit must be positive, got %s", amount)
	}
	var warn *ConsistencyWarning
	applied := amount
	if a.consumed.LessThan(amount) {
		warn = &ConsistencyWarning{Key: a.key, Consumed: a.consumed, Credit: amount}
		applied = a.consumed
	}
	a.consumed = a.consumed.Sub(applied)
	a.updatedAt = now
	return applied, warn, nil
}
