/*
ledger.go - Append-only journal of account mutations

PURPOSE:
  Every change to a BalanceAccount (opening grant, administrative grant,
  debit, credit) is journaled as a LedgerEntry in the same transaction as
  the mutation. The account row is the fast path; the journal explains
  how the account got there and lets Verify replay it.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never updated or deleted
  2. Replaying an account's entries yields its granted and consumed
     exactly (see Replay)

EXAMPLE FLOW:
  1. Account opened with default grant: EntryOpen    +15 granted
  2. Sick leave approved:               EntryDebit   +3 consumed
  3. Approval reverted:                 EntryCredit  -3 consumed
  4. Offset return approved:            EntryEarn    +4 granted
  5. Return reverted:                   EntryRevoke  -4 granted

SEE ALSO:
  - reconciler.go: writes debit/credit/earn/revoke entries
  - verify.go: replays entries against account rows
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind is the mutation a LedgerEntry records.
type EntryKind string

const (
	EntryOpen   EntryKind = "open"   // lazy creation with the default grant
	EntryGrant  EntryKind = "grant"  // administrative top-up
	EntryDebit  EntryKind = "debit"  // consumed += amount
	EntryCredit EntryKind = "credit" // consumed -= amount
	EntryEarn   EntryKind = "earn"   // credit request approved: granted += amount
	EntryRevoke EntryKind = "revoke" // credit request reverted: granted -= amount
)

// LedgerEntry is one journaled mutation. GrantedAfter/ConsumedAfter are the
// account state right after the mutation.
type LedgerEntry struct {
	ID            string
	Key           AccountKey
	RequestID     RequestID // empty for open/grant
	Kind          EntryKind
	Amount        decimal.Decimal
	GrantedAfter  decimal.Decimal
	ConsumedAfter decimal.Decimal
	Actor         string
	Remarks       string
	At            time.Time
}

// Replay folds entries into (granted, consumed).
func Replay(entries []LedgerEntry) (granted, consumed decimal.Decimal) {
	granted, consumed = decimal.Zero, decimal.Zero
	for _, e := range entries {
		switch e.Kind {
		case EntryOpen, EntryGrant, EntryEarn:
			granted = granted.Add(e.Amount)
		case EntryRevoke:
			granted = granted.Sub(e.Amount)
		case EntryDebit:
			consumed = consumed.Add(e.Amount)
		case EntryCredit:
			consumed = consumed.Sub(e.Amount)
		}
	}
	return granted, consumed
}

func newEntry(id string, acct BalanceAccount, kind EntryKind, reqID RequestID, amount decimal.Decimal, actor, remarks string, at time.Time) LedgerEntry {
	return LedgerEntry{
		ID:            id,
		Key:           acct.Key(),
		RequestID:     reqID,
		Kind:          kind,
		Amount:        amount,
		GrantedAfter:  acct.Granted(),
		ConsumedAfter: acct.Consumed(),
		Actor:         actor,
		Remarks:       remarks,
		At:            at,
	}
}
