package billing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT ALLOCATOR - FIFO settlement across a unit's bills
// =============================================================================

// AllocationResult is the outcome of applying one payment.
//
// INVARIANT: sum(Lines[i].Amount) + Excess == payment.Amount
type AllocationResult struct {
	Lines     []BillPayment
	Bills     []*Bill
	Allocated decimal.Decimal
	Excess    decimal.Decimal
}

// Allocate applies payment to bills in the order given, mutating the bills'
// PaidAmount, Balance and Status. Lines carry no ID; the caller assigns them.
//
// A running allocated map is seeded with each bill's existing PaidAmount and
// only ever added to, so a bill listed twice is never over-allocated.
func Allocate(payment Payment, bills []*Bill) AllocationResult {
	res := AllocationResult{Allocated: decimal.Zero, Excess: decimal.Zero}
	left := payment.Amount
	if !left.IsPositive() {
		return res
	}

	allocated := make(map[BillID]decimal.Decimal, len(bills))
	for _, b := range bills {
		if _, ok := allocated[b.ID]; !ok {
			allocated[b.ID] = b.PaidAmount
		}
	}

	for _, b := range bills {
		if !left.IsPositive() {
			break
		}
		remaining := b.TotalAmount.Sub(allocated[b.ID])
		toAllocate := minDecimal(left, remaining)
		if !toAllocate.IsPositive() {
			continue
		}

		res.Lines = append(res.Lines, BillPayment{
			TenantID:  b.TenantID,
			PaymentID: payment.ID,
			BillID:    b.ID,
			Amount:    toAllocate,
			Breakdown: proportionalBreakdown(b, toAllocate),
			CreatedAt: payment.CreatedAt,
		})
		allocated[b.ID] = allocated[b.ID].Add(toAllocate)
		b.PaidAmount = b.PaidAmount.Add(toAllocate)
		b.settle()
		res.Bills = append(res.Bills, b)

		res.Allocated = res.Allocated.Add(toAllocate)
		left = left.Sub(toAllocate)
	}

	res.Excess = left
	return res
}

// proportionalBreakdown splits amount over the bill's net components in
// proportion to their size. Each share is rounded to the cent. The rounding
// residue lands on Other, or is taken from the first components that can give
// it up, so no component is negative and the breakdown sums to amount.
func proportionalBreakdown(b *Bill, amount decimal.Decimal) Breakdown {
	net := netComponents(b)
	total := net.Total()
	if !total.IsPositive() {
		return Breakdown{Other: amount}
	}
	share := func(component decimal.Decimal) decimal.Decimal {
		return RoundMoney(component.Mul(amount).Div(total))
	}
	bd := Breakdown{
		Electric:          share(net.Electric),
		Water:             share(net.Water),
		Dues:              share(net.Dues),
		Penalty:           share(net.Penalty),
		SpecialAssessment: share(net.SpecialAssessment),
		Other:             share(net.Other),
	}
	residue := amount.Sub(bd.Total())
	for _, c := range bd.components() {
		if residue.IsZero() {
			break
		}
		take := decimal.Max(residue, c.Neg())
		*c = c.Add(take)
		residue = residue.Sub(take)
	}
	return bd
}

// netComponents returns what the bill still charges per category. Advance
// utilities come off electric first, then water; advance dues come off dues.
// The discount comes off Other (parking and previous balance) first, then
// dues, special assessment, water, electric and finally penalty.
func netComponents(b *Bill) Breakdown {
	fromElectric := decimal.Min(clampZero(b.AdvanceUtilitiesApplied), b.Electric)
	n := Breakdown{
		Electric:          b.Electric.Sub(fromElectric),
		Water:             clampZero(b.Water.Sub(clampZero(b.AdvanceUtilitiesApplied).Sub(fromElectric))),
		Dues:              clampZero(b.Dues.Sub(clampZero(b.AdvanceDuesApplied))),
		Penalty:           b.Penalty,
		SpecialAssessment: b.SpecialAssessment,
		Other:             b.Parking.Add(b.PreviousBalance),
	}
	discount := clampZero(b.Discount)
	for _, c := range n.components() {
		if !discount.IsPositive() {
			break
		}
		off := decimal.Min(discount, clampZero(*c))
		*c = c.Sub(off)
		discount = discount.Sub(off)
	}
	return n
}
