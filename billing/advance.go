/*
advance.go - Per-unit advance balance ledger

PURPOSE:
  An AdvanceBalance is the running credit a unit holds from overpayments.
  It has two buckets. Dues credit can only be drawn against association dues,
  utilities credit only against electric plus water.

CRITICAL INVARIANTS:
  1. NON-NEGATIVE: neither bucket ever goes below zero
  2. CLAMPED DRAWS: drawing more than available draws only what is available
  3. NO SILENT LOSS: payment excess is always credited, never discarded

EXCESS POLICY:
  A single excess amount is split into buckets by a named policy:

    utilities  100% to utilities (default)
    dues       100% to dues
    split      dues = round2(amount / 2), utilities = the remainder

SEE ALSO:
  - assembler.go: computes the draws with min() before drawing
  - allocator.go: produces the excess credited here
  - service.go: runs every ledger mutation inside the unit's exclusive section
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BUCKETS AND POLICIES
// =============================================================================

type Bucket string

const (
	BucketDues      Bucket = "dues"
	BucketUtilities Bucket = "utilities"
)

// ExcessPolicy names how payment excess is split between buckets.
type ExcessPolicy string

const (
	ExcessToUtilities ExcessPolicy = "utilities"
	ExcessToDues      ExcessPolicy = "dues"
	ExcessSplitEvenly ExcessPolicy = "split"
)

// DefaultExcessPolicy is used when no policy is configured.
const DefaultExcessPolicy = ExcessToUtilities

// ParseExcessPolicy accepts "utilities", "dues" or "split". Empty means the default.
func ParseExcessPolicy(s string) (ExcessPolicy, error) {
	switch ExcessPolicy(s) {
	case "":
		return DefaultExcessPolicy, nil
	case ExcessToUtilities, ExcessToDues, ExcessSplitEvenly:
		return ExcessPolicy(s), nil
	}
	return "", fmt.Errorf("unknown excess policy %q", s)
}

// Split divides amount into dues and utilities portions.
func (p ExcessPolicy) Split(amount decimal.Decimal) (dues, utilities decimal.Decimal) {
	switch p {
	case ExcessToDues:
		return amount, decimal.Zero
	case ExcessSplitEvenly:
		dues = RoundMoney(amount.Div(decimal.NewFromInt(2)))
		return dues, amount.Sub(dues)
	default:
		return decimal.Zero, amount
	}
}

// =============================================================================
// ADVANCE BALANCE
// =============================================================================

// AdvanceBalance is the credit held for one unit. The zero value is a valid empty balance.
type AdvanceBalance struct {
	TenantID  TenantID
	UnitID    UnitID
	Dues      decimal.Decimal
	Utilities decimal.Decimal
	UpdatedAt time.Time
}

// Available returns the balance of one bucket.
func (a AdvanceBalance) Available(b Bucket) decimal.Decimal {
	if b == BucketDues {
		return a.Dues
	}
	return a.Utilities
}

// Total is Dues + Utilities.
func (a AdvanceBalance) Total() decimal.Decimal { return a.Dues.Add(a.Utilities) }

func (a *AdvanceBalance) bucket(b Bucket) (*decimal.Decimal, error) {
	switch b {
	case BucketDues:
		return &a.Dues, nil
	case BucketUtilities:
		return &a.Utilities, nil
	}
	return nil, fmt.Errorf("unknown bucket %q", b)
}

// Credit adds amount to a bucket. Zero is a no-op.
func (a *AdvanceBalance) Credit(b Bucket, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: credit %s", ErrInvalidAmount, amount)
	}
	v, err := a.bucket(b)
	if err != nil {
		return err
	}
	*v = v.Add(amount)
	return nil
}

// Draw removes up to amount from a bucket and returns what was actually drawn.
func (a *AdvanceBalance) Draw(b Bucket, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: draw %s", ErrInvalidAmount, amount)
	}
	v, err := a.bucket(b)
	if err != nil {
		return decimal.Zero, err
	}
	drawn := minDecimal(*v, amount)
	*v = v.Sub(drawn)
	return drawn, nil
}

// CreditExcess splits amount by policy and credits both buckets.
func (a *AdvanceBalance) CreditExcess(amount decimal.Decimal, policy ExcessPolicy) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: excess %s", ErrInvalidAmount, amount)
	}
	dues, utilities := policy.Split(amount)
	if err := a.Credit(BucketDues, dues); err != nil {
		return err
	}
	return a.Credit(BucketUtilities, utilities)
}

// =============================================================================
// ADVANCE LEDGER - Store-backed wrapper
// =============================================================================

// AdvanceLedger reads and writes advance balances through a Store.
// Callers hold the unit's exclusive section for every mutation.
type AdvanceLedger struct {
	Store Store
}

func NewAdvanceLedger(store Store) *AdvanceLedger {
	return &AdvanceLedger{Store: store}
}

// Get returns the unit's advance balance, zero when none exists.
func (l *AdvanceLedger) Get(ctx context.Context, tenantID TenantID, unitID UnitID) (AdvanceBalance, error) {
	return l.Store.GetAdvance(ctx, tenantID, unitID)
}

func (l *AdvanceLedger) Credit(ctx context.Context, tenantID TenantID, unitID UnitID, b Bucket, amount decimal.Decimal) (AdvanceBalance, error) {
	return l.mutate(ctx, tenantID, unitID, func(a *AdvanceBalance) error {
		return a.Credit(b, amount)
	})
}

// Draw returns the amount actually drawn along with the balance after.
func (l *AdvanceLedger) Draw(ctx context.Context, tenantID TenantID, unitID UnitID, b Bucket, amount decimal.Decimal) (decimal.Decimal, AdvanceBalance, error) {
	var drawn decimal.Decimal
	after, err := l.mutate(ctx, tenantID, unitID, func(a *AdvanceBalance) error {
		var err error
		drawn, err = a.Draw(b, amount)
		return err
	})
	return drawn, after, err
}

func (l *AdvanceLedger) CreditExcess(ctx context.Context, tenantID TenantID, unitID UnitID, amount decimal.Decimal, policy ExcessPolicy) (AdvanceBalance, error) {
	return l.mutate(ctx, tenantID, unitID, func(a *AdvanceBalance) error {
		return a.CreditExcess(amount, policy)
	})
}

func (l *AdvanceLedger) mutate(ctx context.Context, tenantID TenantID, unitID UnitID, fn func(*AdvanceBalance) error) (AdvanceBalance, error) {
	current, err := l.Store.GetAdvance(ctx, tenantID, unitID)
	if err != nil {
		return AdvanceBalance{}, err
	}
	current.TenantID, current.UnitID = tenantID, unitID
	if err := fn(&current); err != nil {
		return AdvanceBalance{}, err
	}
	current.UpdatedAt = time.Now().UTC()
	if err := l.Store.SaveAdvance(ctx, current); err != nil {
		return AdvanceBalance{}, fmt.Errorf("save advance balance: %w", err)
	}
	return current, nil
}
