package billing

import "github.com/shopspring/decimal"

// =============================================================================
// PENALTY ACCRUAL - Compounding interest over unpaid periods
// =============================================================================

// PenaltyPeriod is one row of the accrual fold.
type PenaltyPeriod struct {
	Index                   int             `json:"index"`
	Principal               decimal.Decimal `json:"principal"`
	TenPercent              decimal.Decimal `json:"ten_percent"`
	SumWithPreviousInterest decimal.Decimal `json:"sum_with_previous_interest"`
	CompoundInterest        decimal.Decimal `json:"compound_interest"`
	TotalInterest           decimal.Decimal `json:"total_interest"`
}

// PenaltyAccrual is the result of folding a sequence of unpaid principals.
type PenaltyAccrual struct {
	TotalPrincipal    decimal.Decimal `json:"total_principal"`
	TotalInterest     decimal.Decimal `json:"total_interest"`
	TotalWithInterest decimal.Decimal `json:"total_with_interest"`
	Periods           []PenaltyPeriod `json:"periods"`
}

// AccrueCompoundInterest folds principals, oldest first, into a running
// interest figure:
//
//	period 1:  interest = p1 * rate
//	period i:  s = interest(i-1) + pi * rate
//	           interest(i) = s + s * rate
//
// The fold runs unrounded. Only the totals are rounded to centavos.
func AccrueCompoundInterest(principals []decimal.Decimal, rate decimal.Decimal) PenaltyAccrual {
	var (
		out      PenaltyAccrual
		interest = decimal.Zero
		sum      = decimal.Zero
	)
	for i, p := range principals {
		ten := p.Mul(rate)
		row := PenaltyPeriod{Index: i + 1, Principal: p, TenPercent: ten}
		if i == 0 {
			interest = ten
			row.SumWithPreviousInterest = ten
			row.CompoundInterest = decimal.Zero
		} else {
			s := interest.Add(ten)
			c := s.Mul(rate)
			interest = s.Add(c)
			row.SumWithPreviousInterest = s
			row.CompoundInterest = c
		}
		row.TotalInterest = interest
		sum = sum.Add(p)
		out.Periods = append(out.Periods, row)
	}
	out.TotalPrincipal = RoundMoney(sum)
	out.TotalInterest = RoundMoney(interest)
	out.TotalWithInterest = out.TotalPrincipal.Add(out.TotalInterest)
	return out
}

// AccrueConstant is the same fold over one principal repeated for months periods.
func AccrueConstant(principal decimal.Decimal, months int, rate decimal.Decimal) PenaltyAccrual {
	if months < 0 {
		months = 0
	}
	principals := make([]decimal.Decimal, months)
	for i := range principals {
		principals[i] = principal
	}
	return AccrueCompoundInterest(principals, rate)
}
