package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccrueCompoundInterest_SinglePeriod(t *testing.T) {
	acc := AccrueCompoundInterest([]decimal.Decimal{d("1000")}, d("0.10"))

	assertMoney(t, "100.00", acc.TotalInterest)
	assertMoney(t, "1000.00", acc.TotalPrincipal)
	assertMoney(t, "1100.00", acc.TotalWithInterest)
	require.Len(t, acc.Periods, 1)
	assertMoney(t, "100.00", acc.Periods[0].TenPercent)
	assertMoney(t, "0.00", acc.Periods[0].CompoundInterest)
}

func TestAccrueCompoundInterest_TwoPeriods(t *testing.T) {
	// GIVEN: two unpaid months of 1000
	// WHEN: folded at 10%
	acc := AccrueCompoundInterest([]decimal.Decimal{d("1000"), d("1000")}, d("0.10"))

	// THEN: s = 100 + 100 = 200, c = 20, interest = 220
	require.Len(t, acc.Periods, 2)
	p2 := acc.Periods[1]
	assertMoney(t, "200.00", p2.SumWithPreviousInterest)
	assertMoney(t, "20.00", p2.CompoundInterest)
	assertMoney(t, "220.00", p2.TotalInterest)
	assertMoney(t, "220.00", acc.TotalInterest)
	assertMoney(t, "2220.00", acc.TotalWithInterest)
}

func TestAccrueCompoundInterest_ThreeUnequalPeriods(t *testing.T) {
	// p = 500, 1000, 250 at 10%
	// 1: 50
	// 2: s = 50 + 100 = 150;  interest = 165
	// 3: s = 165 + 25 = 190;  interest = 209
	acc := AccrueCompoundInterest([]decimal.Decimal{d("500"), d("1000"), d("250")}, d("0.10"))

	assertMoney(t, "209.00", acc.TotalInterest)
	assertMoney(t, "1750.00", acc.TotalPrincipal)
	assertMoney(t, "165.00", acc.Periods[1].TotalInterest)
}

func TestAccrueCompoundInterest_RoundsOnlyTheTotal(t *testing.T) {
	// 333.33 * 0.1 = 33.333; s = 66.666; c = 6.6666; interest = 73.3326
	acc := AccrueCompoundInterest([]decimal.Decimal{d("333.33"), d("333.33")}, d("0.10"))

	assert.Equal(t, "73.3326", acc.Periods[1].TotalInterest.String())
	assertMoney(t, "73.33", acc.TotalInterest)
}

func TestAccrueCompoundInterest_Empty(t *testing.T) {
	acc := AccrueCompoundInterest(nil, d("0.10"))
	assertMoney(t, "0.00", acc.TotalInterest)
	assert.Empty(t, acc.Periods)
}

func TestAccrueConstant_MatchesGenericFold(t *testing.T) {
	for months := 0; months <= 6; months++ {
		principals := make([]decimal.Decimal, months)
		for i := range principals {
			principals[i] = d("1000")
		}
		want := AccrueCompoundInterest(principals, d("0.10"))
		got := AccrueConstant(d("1000"), months, d("0.10"))

		assert.True(t, want.TotalInterest.Equal(got.TotalInterest), "months=%d", months)
		assert.Equal(t, len(want.Periods), len(got.Periods))
	}

	assertMoney(t, "352.00", AccrueConstant(d("1000"), 3, d("0.10")).TotalInterest)
	assert.Empty(t, AccrueConstant(d("1000"), -2, d("0.10")).Periods)
}
