package billing

import (
	"context"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceBalance_DrawClamps(t *testing.T) {
	// GIVEN: 300 of utilities credit
	var a AdvanceBalance
	require.NoError(t, a.Credit(BucketUtilities, d("300")))

	// WHEN: 500 is drawn
	drawn, err := a.Draw(BucketUtilities, d("500"))

	// THEN: only what was available is drawn
	require.NoError(t, err)
	assertMoney(t, "300.00", drawn)
	assertMoney(t, "0.00", a.Utilities)
	assertMoney(t, "0.00", a.Dues)
}

func TestAdvanceBalance_RejectsNegative(t *testing.T) {
	var a AdvanceBalance
	assert.ErrorIs(t, a.Credit(BucketDues, d("-1")), ErrInvalidAmount)
	_, err := a.Draw(BucketDues, d("-1"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.ErrorIs(t, a.CreditExcess(d("-1"), ExcessToDues), ErrInvalidAmount)
}

func TestAdvanceBalance_ZeroIsNoop(t *testing.T) {
	a := AdvanceBalance{Dues: d("10")}
	require.NoError(t, a.Credit(BucketDues, decimal.Zero))
	drawn, err := a.Draw(BucketDues, decimal.Zero)
	require.NoError(t, err)
	assertMoney(t, "0.00", drawn)
	assertMoney(t, "10.00", a.Dues)
}

func TestAdvanceBalance_UnknownBucket(t *testing.T) {
	var a AdvanceBalance
	assert.Error(t, a.Credit(Bucket("parking"), d("1")))
}

func TestExcessPolicy_Split(t *testing.T) {
	cases := []struct {
		policy    ExcessPolicy
		amount    string
		dues      string
		utilities string
	}{
		{ExcessToUtilities, "100.01", "0.00", "100.01"},
		{ExcessToDues, "100.01", "100.01", "0.00"},
		{ExcessSplitEvenly, "100.01", "50.01", "50.00"},
		{ExcessSplitEvenly, "0.01", "0.01", "0.00"},
	}
	for _, tc := range cases {
		t.Run(string(tc.policy)+"/"+tc.amount, func(t *testing.T) {
			var a AdvanceBalance
			require.NoError(t, a.CreditExcess(d(tc.amount), tc.policy))
			assertMoney(t, tc.dues, a.Dues)
			assertMoney(t, tc.utilities, a.Utilities)
			assertMoney(t, tc.amount, a.Total())
		})
	}
}

func TestParseExcessPolicy(t *testing.T) {
	p, err := ParseExcessPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ExcessToUtilities, p)

	p, err = ParseExcessPolicy("split")
	require.NoError(t, err)
	assert.Equal(t, ExcessSplitEvenly, p)

	_, err = ParseExcessPolicy("refund")
	assert.Error(t, err)
}

func TestAdvanceBalance_NeverNegativeUnderRandomOps(t *testing.T) {
	// GIVEN: a fixed-seed sequence of random credits and draws
	rng := rand.New(rand.NewSource(42))
	var a AdvanceBalance
	buckets := []Bucket{BucketDues, BucketUtilities}

	// WHEN/THEN: no bucket ever goes below zero and the books balance
	credited, drawnTotal := decimal.Zero, decimal.Zero
	for i := 0; i < 2000; i++ {
		b := buckets[rng.Intn(2)]
		amount := decimal.New(int64(rng.Intn(100000)), -2)
		if rng.Intn(2) == 0 {
			require.NoError(t, a.Credit(b, amount))
			credited = credited.Add(amount)
		} else {
			drawn, err := a.Draw(b, amount)
			require.NoError(t, err)
			assert.True(t, drawn.LessThanOrEqual(amount))
			drawnTotal = drawnTotal.Add(drawn)
		}
		require.False(t, a.Dues.IsNegative(), "dues negative at step %d", i)
		require.False(t, a.Utilities.IsNegative(), "utilities negative at step %d", i)
	}
	assert.True(t, credited.Sub(drawnTotal).Equal(a.Total()))
}

// =============================================================================
// LEDGER OVER A STORE
// =============================================================================

type advanceOnlyStore struct {
	Store
	balances map[UnitID]AdvanceBalance
}

func (s *advanceOnlyStore) GetAdvance(_ context.Context, tenantID TenantID, unitID UnitID) (AdvanceBalance, error) {
	a, ok := s.balances[unitID]
	if !ok {
		return AdvanceBalance{TenantID: tenantID, UnitID: unitID}, nil
	}
	return a, nil
}

func (s *advanceOnlyStore) SaveAdvance(_ context.Context, a AdvanceBalance) error {
	s.balances[a.UnitID] = a
	return nil
}

func TestAdvanceLedger_CreditThenDraw(t *testing.T) {
	st := &advanceOnlyStore{balances: map[UnitID]AdvanceBalance{}}
	ledger := NewAdvanceLedger(st)
	ctx := context.Background()

	after, err := ledger.CreditExcess(ctx, "tenant-1", "unit-101", d("250"), ExcessSplitEvenly)
	require.NoError(t, err)
	assertMoney(t, "125.00", after.Dues)
	assertMoney(t, "125.00", after.Utilities)

	drawn, after, err := ledger.Draw(ctx, "tenant-1", "unit-101", BucketDues, d("200"))
	require.NoError(t, err)
	assertMoney(t, "125.00", drawn)
	assertMoney(t, "0.00", after.Dues)

	got, err := ledger.Get(ctx, "tenant-1", "unit-101")
	require.NoError(t, err)
	assertMoney(t, "125.00", got.Utilities)
	assert.False(t, got.UpdatedAt.IsZero())
}
