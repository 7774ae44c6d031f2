package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentRequest is an incoming payment for one unit.
type PaymentRequest struct {
	TenantID  TenantID
	UnitID    UnitID
	Amount    decimal.Decimal
	PaidAt    time.Time
	Method    string
	Reference string
	// Period is the billing period the payer intends to settle first.
	Period    *Period
	Breakdown *Breakdown
}

// PaymentResult is the committed outcome of RecordPayment.
type PaymentResult struct {
	Payment Payment
	Lines   []BillPayment
	Bills   []Bill
	Excess  decimal.Decimal
	Advance AdvanceBalance
}

// RecordPayment stores the payment and allocates it FIFO over the unit's open
// bills, starting with the intended period's bill when given. Excess is
// credited to the advance balance using the service's ExcessPolicy. Either
// every row commits or none does.
func (s *Service) RecordPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	start := s.clock.Now()
	res, err := s.recordPayment(ctx, req)
	s.observe("allocate", start, err)
	return res, err
}

func (s *Service) recordPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if !req.Amount.IsPositive() {
		return PaymentResult{}, fmt.Errorf("%w: payment amount must be positive", ErrInvalidAmount)
	}
	if _, err := s.store.GetUnit(ctx, req.TenantID, req.UnitID); err != nil {
		return PaymentResult{}, err
	}

	now := s.clock.Now()
	payment := Payment{
		ID:        PaymentID(s.newID()),
		TenantID:  req.TenantID,
		UnitID:    req.UnitID,
		Amount:    req.Amount,
		Breakdown: req.Breakdown,
		PaidAt:    req.PaidAt,
		Method:    req.Method,
		Reference: req.Reference,
		Period:    req.Period,
		CreatedAt: now,
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = now
	}

	var res PaymentResult
	err := s.withUnit(ctx, req.TenantID, req.UnitID, func(tx Store) error {
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		bills, err := tx.ListUnitBills(ctx, req.TenantID, req.UnitID)
		if err != nil {
			return fmt.Errorf("list bills: %w", err)
		}

		alloc := Allocate(payment, AllocationTargets(bills, req.Period))
		for i := range alloc.Lines {
			alloc.Lines[i].ID = s.newID()
		}
		if len(alloc.Lines) > 0 {
			if err := tx.CreateBillPayments(ctx, alloc.Lines); err != nil {
				return fmt.Errorf("create bill payments: %w", err)
			}
		}
		for _, b := range alloc.Bills {
			b.UpdatedAt = now
			if err := tx.UpdateBill(ctx, *b); err != nil {
				return fmt.Errorf("update bill %s: %w", b.ID, err)
			}
			res.Bills = append(res.Bills, *b)
		}

		ledger := NewAdvanceLedger(tx)
		if alloc.Excess.IsPositive() {
			if res.Advance, err = ledger.CreditExcess(ctx, req.TenantID, req.UnitID, alloc.Excess, s.excessPolicy); err != nil {
				return err
			}
			if err := s.audit(ctx, tx, req.TenantID, req.UnitID, AuditExcessCredited, map[string]any{
				"payment_id": string(payment.ID),
				"amount":     alloc.Excess.StringFixed(2),
				"policy":     string(s.excessPolicy),
			}); err != nil {
				return err
			}
		} else if res.Advance, err = ledger.Get(ctx, req.TenantID, req.UnitID); err != nil {
			return err
		}

		res.Payment = payment
		res.Lines = alloc.Lines
		res.Excess = alloc.Excess
		return s.audit(ctx, tx, req.TenantID, req.UnitID, AuditPaymentRecorded, map[string]any{
			"payment_id": string(payment.ID),
			"amount":     payment.Amount.StringFixed(2),
			"lines":      len(alloc.Lines),
		})
	})
	if err != nil {
		return PaymentResult{}, err
	}

	s.metrics.AddPayment(payment.Amount.InexactFloat64())
	if res.Excess.IsPositive() {
		dues, utilities := s.excessPolicy.Split(res.Excess)
		s.metrics.AddExcessCredited(string(BucketDues), dues.InexactFloat64())
		s.metrics.AddExcessCredited(string(BucketUtilities), utilities.InexactFloat64())
		s.log.Info("payment excess credited",
			zap.String("tenant_id", string(req.TenantID)),
			zap.String("unit_id", string(req.UnitID)),
			zap.String("payment_id", string(payment.ID)),
			zap.String("amount", res.Excess.StringFixed(2)),
			zap.String("policy", string(s.excessPolicy)),
		)
	}
	s.log.Info("payment allocated",
		zap.String("tenant_id", string(req.TenantID)),
		zap.String("unit_id", string(req.UnitID)),
		zap.String("payment_id", string(payment.ID)),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.Int("lines", len(res.Lines)),
	)
	return res, nil
}

// AllocationTargets orders a unit's open bills for allocation: the intended
// period's bill first when it is open, then the rest oldest period first.
func AllocationTargets(bills []Bill, intended *Period) []*Bill {
	open := make([]*Bill, 0, len(bills))
	for i := range bills {
		if bills[i].Status.IsOpen() {
			b := bills[i]
			open = append(open, &b)
		}
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].Period.Before(open[j].Period) })
	if intended == nil {
		return open
	}
	for i, b := range open {
		if b.Period == *intended {
			ordered := make([]*Bill, 0, len(open))
			ordered = append(ordered, b)
			ordered = append(ordered, open[:i]...)
			ordered = append(ordered, open[i+1:]...)
			return ordered
		}
	}
	return open
}

// PaymentAllocations returns the bill lines a payment produced.
func (s *Service) PaymentAllocations(ctx context.Context, tenantID TenantID, paymentID PaymentID) (Payment, []BillPayment, error) {
	p, err := s.store.GetPayment(ctx, tenantID, paymentID)
	if err != nil {
		return Payment{}, nil, err
	}
	lines, err := s.store.ListBillPaymentsByPayment(ctx, tenantID, paymentID)
	if err != nil {
		return Payment{}, nil, fmt.Errorf("list bill payments: %w", err)
	}
	return p, lines, nil
}

// =============================================================================
// OVERDUE
// =============================================================================

// MarkOverdue moves UNPAID and PARTIAL bills whose due date is before asOf to
// OVERDUE. Balances are untouched. Returns the number of bills changed.
func (s *Service) MarkOverdue(ctx context.Context, tenantID TenantID, asOf time.Time) (int, error) {
	start := s.clock.Now()
	count, err := s.markOverdue(ctx, tenantID, Date(asOf))
	s.observe("mark_overdue", start, err)
	return count, err
}

func (s *Service) markOverdue(ctx context.Context, tenantID TenantID, asOf time.Time) (int, error) {
	bills, err := s.store.ListTenantBills(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("list bills: %w", err)
	}

	candidates := make(map[UnitID]bool)
	var units []UnitID
	for _, b := range bills {
		if isOverdueCandidate(b, asOf) && !candidates[b.UnitID] {
			candidates[b.UnitID] = true
			units = append(units, b.UnitID)
		}
	}

	total := 0
	for _, unitID := range units {
		n := 0
		err := s.withUnit(ctx, tenantID, unitID, func(tx Store) error {
			current, err := tx.ListUnitBills(ctx, tenantID, unitID)
			if err != nil {
				return err
			}
			for _, b := range current {
				if !isOverdueCandidate(b, asOf) {
					continue
				}
				b.Status = StatusOverdue
				b.UpdatedAt = s.clock.Now()
				if err := tx.UpdateBill(ctx, b); err != nil {
					return err
				}
				n++
			}
			if n == 0 {
				return nil
			}
			return s.audit(ctx, tx, tenantID, unitID, AuditMarkedOverdue, map[string]any{
				"as_of": asOf.Format(time.DateOnly),
				"bills": n,
			})
		})
		if err != nil {
			return total, fmt.Errorf("unit %s: %w", unitID, err)
		}
		total += n
	}

	s.metrics.AddMarkedOverdue(total)
	s.log.Info("bills marked overdue",
		zap.String("tenant_id", string(tenantID)),
		zap.String("as_of", asOf.Format(time.DateOnly)),
		zap.Int("count", total),
	)
	return total, nil
}

func isOverdueCandidate(b Bill, asOf time.Time) bool {
	return (b.Status == StatusUnpaid || b.Status == StatusPartial) && b.DueDate.Before(asOf)
}

// =============================================================================
// STATEMENT OF ACCOUNT
// =============================================================================

// StatementLine is one bill with the payment lines applied to it.
type StatementLine struct {
	Bill     Bill
	Payments []BillPayment
}

// Statement is a unit's account history.
type Statement struct {
	Unit     Unit
	Lines    []StatementLine
	Payments []Payment
	// Outstanding sums the Balance of every open bill.
	Outstanding decimal.Decimal
	Advance     AdvanceBalance
}

// Statement returns the unit's bills oldest first with their payment lines.
func (s *Service) Statement(ctx context.Context, tenantID TenantID, unitID UnitID) (Statement, error) {
	unit, err := s.store.GetUnit(ctx, tenantID, unitID)
	if err != nil {
		return Statement{}, err
	}
	bills, err := s.store.ListUnitBills(ctx, tenantID, unitID)
	if err != nil {
		return Statement{}, fmt.Errorf("list bills: %w", err)
	}
	st := Statement{Unit: unit, Outstanding: decimal.Zero}
	for _, b := range bills {
		lines, err := s.store.ListBillPaymentsByBill(ctx, tenantID, b.ID)
		if err != nil {
			return Statement{}, fmt.Errorf("list bill payments: %w", err)
		}
		st.Lines = append(st.Lines, StatementLine{Bill: b, Payments: lines})
		if b.Status.IsOpen() {
			st.Outstanding = st.Outstanding.Add(b.Balance)
		}
	}
	if st.Payments, err = s.store.ListPayments(ctx, tenantID, unitID); err != nil {
		return Statement{}, fmt.Errorf("list payments: %w", err)
	}
	if st.Advance, err = s.store.GetAdvance(ctx, tenantID, unitID); err != nil {
		return Statement{}, fmt.Errorf("get advance: %w", err)
	}
	return st, nil
}
