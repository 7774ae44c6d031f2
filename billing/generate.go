package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// PREVIEW
// =============================================================================

// Preview is an uncommitted bill with its warnings and penalty breakdown.
type Preview struct {
	Bill     Bill
	Warnings []Warning
	Penalty  PenaltyAccrual
	// Existing is set when the period already has a committed bill.
	Existing *Bill
}

// PreviewBill assembles the unit's bill for period without writing anything.
// A zero statementDate means today.
func (s *Service) PreviewBill(ctx context.Context, tenantID TenantID, unitID UnitID, period Period, statementDate time.Time) (Preview, error) {
	start := s.clock.Now()
	p, err := s.preview(ctx, s.store, tenantID, unitID, period, statementDate)
	s.observe("preview", start, err)
	return p, err
}

func (s *Service) preview(ctx context.Context, st Store, tenantID TenantID, unitID UnitID, period Period, statementDate time.Time) (Preview, error) {
	cfg, err := st.GetTariff(ctx, tenantID)
	if err != nil {
		return Preview{}, err
	}
	unit, err := st.GetUnit(ctx, tenantID, unitID)
	if err != nil {
		return Preview{}, err
	}
	readings, err := st.ListReadings(ctx, tenantID, period)
	if err != nil {
		return Preview{}, fmt.Errorf("list readings: %w", err)
	}
	adjustments, err := st.ListAdjustments(ctx, tenantID, period)
	if err != nil {
		return Preview{}, fmt.Errorf("list adjustments: %w", err)
	}
	advance, err := st.GetAdvance(ctx, tenantID, unitID)
	if err != nil {
		return Preview{}, fmt.Errorf("get advance: %w", err)
	}
	bills, err := st.ListUnitBills(ctx, tenantID, unitID)
	if err != nil {
		return Preview{}, fmt.Errorf("list bills: %w", err)
	}

	arena := s.arena(cfg, period, statementDate)
	arena.Units = []Unit{unit}
	arena.Readings = readings
	arena.Adjustments = adjustments
	arena.Advances = []AdvanceBalance{advance}
	arena.Bills = bills

	drafts := AssembleBatch(arena)
	d := drafts[0]
	open := OpenPriorBills(bills, period)
	return Preview{
		Bill:     d.Bill,
		Warnings: d.Warnings,
		Penalty:  PenaltyFor(open, d.Bill.StatementDate, cfg.PenaltyRate),
		Existing: d.Existing,
	}, nil
}

func (s *Service) arena(cfg TariffConfig, period Period, statementDate time.Time) Arena {
	if statementDate.IsZero() {
		statementDate = s.clock.Now()
	}
	statementDate = Date(statementDate)
	return Arena{
		Tariff:        cfg,
		Period:        period,
		StatementDate: statementDate,
		DueDate:       statementDate.AddDate(0, 0, s.dueDays),
	}
}

// =============================================================================
// GENERATION
// =============================================================================

// GenerateRequest selects the tenant, period and units to bill.
type GenerateRequest struct {
	TenantID      TenantID
	Period        Period
	StatementDate time.Time
	// UnitIDs limits generation to these units. Empty means every unit.
	UnitIDs []UnitID
	// AcknowledgeWarnings commits bills that carry warnings.
	AcknowledgeWarnings bool
	// DryRun assembles every unit without writing.
	DryRun bool
}

type UnitOutcome string

const (
	OutcomeGenerated UnitOutcome = "generated"
	OutcomePreviewed UnitOutcome = "previewed"
	OutcomeExists    UnitOutcome = "exists"
	OutcomeBlocked   UnitOutcome = "warnings_not_acknowledged"
	OutcomeFailed    UnitOutcome = "failed"
)

// UnitResult is one unit's outcome in a generation run.
type UnitResult struct {
	UnitID   UnitID
	UnitCode string
	Outcome  UnitOutcome
	Bill     *Bill
	Warnings []Warning
	Err      error
}

// GenerateReport summarizes a generation run.
type GenerateReport struct {
	TenantID  TenantID
	Period    Period
	Results   []UnitResult
	Generated int
	Skipped   int
	Failed    int
}

// GenerateBills bills every selected unit for the period. Units are processed
// sequentially, each in its own exclusive section; one failing unit does not
// abort the others. The returned error covers only run-level failures such as
// a missing tariff.
func (s *Service) GenerateBills(ctx context.Context, req GenerateRequest) (GenerateReport, error) {
	start := s.clock.Now()
	report, err := s.generate(ctx, req)
	s.observe("generate", start, err)
	return report, err
}

func (s *Service) generate(ctx context.Context, req GenerateRequest) (GenerateReport, error) {
	report := GenerateReport{TenantID: req.TenantID, Period: req.Period}
	if req.Period.IsZero() {
		return report, ErrInvalidPeriod
	}

	cfg, err := s.store.GetTariff(ctx, req.TenantID)
	if err != nil {
		return report, err
	}
	units, err := s.selectUnits(ctx, req.TenantID, req.UnitIDs)
	if err != nil {
		return report, err
	}

	arena := s.arena(cfg, req.Period, req.StatementDate)
	arena.Units = units
	if arena.Readings, err = s.store.ListReadings(ctx, req.TenantID, req.Period); err != nil {
		return report, fmt.Errorf("list readings: %w", err)
	}
	if arena.Adjustments, err = s.store.ListAdjustments(ctx, req.TenantID, req.Period); err != nil {
		return report, fmt.Errorf("list adjustments: %w", err)
	}

	if req.DryRun {
		if arena.Advances, err = s.store.ListAdvances(ctx, req.TenantID); err != nil {
			return report, fmt.Errorf("list advances: %w", err)
		}
		if arena.Bills, err = s.store.ListTenantBills(ctx, req.TenantID); err != nil {
			return report, fmt.Errorf("list bills: %w", err)
		}
		for _, d := range AssembleBatch(arena) {
			bill := d.Bill
			res := UnitResult{UnitID: d.Unit.ID, UnitCode: d.Unit.Code, Outcome: OutcomePreviewed, Bill: &bill, Warnings: d.Warnings}
			if d.Existing != nil {
				res.Outcome = OutcomeExists
				res.Bill = d.Existing
				report.Skipped++
			}
			report.Results = append(report.Results, res)
		}
		return report, nil
	}

	idx := arena.index()
	for _, u := range units {
		in := idx.input(arena, u)
		bill, genErr := s.generateUnit(ctx, in, req.AcknowledgeWarnings)
		res := UnitResult{UnitID: u.ID, UnitCode: u.Code, Warnings: bill.Warnings}

		var dup *DuplicateBillError
		var unack *UnacknowledgedWarningsError
		switch {
		case genErr == nil:
			res.Outcome = OutcomeGenerated
			res.Bill = &bill
			report.Generated++
		case errors.As(genErr, &dup):
			res.Outcome = OutcomeExists
			res.Err = genErr
			report.Skipped++
		case errors.As(genErr, &unack):
			res.Outcome = OutcomeBlocked
			res.Warnings = unack.Warnings
			res.Err = genErr
			report.Skipped++
		default:
			res.Outcome = OutcomeFailed
			res.Err = genErr
			report.Failed++
			s.log.Warn("bill generation failed",
				zap.String("tenant_id", string(req.TenantID)),
				zap.String("unit_id", string(u.ID)),
				zap.String("period", req.Period.String()),
				zap.Error(genErr),
			)
		}
		report.Results = append(report.Results, res)
	}

	s.log.Info("generation run finished",
		zap.String("tenant_id", string(req.TenantID)),
		zap.String("period", req.Period.String()),
		zap.Int("generated", report.Generated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *Service) selectUnits(ctx context.Context, tenantID TenantID, ids []UnitID) ([]Unit, error) {
	if len(ids) == 0 {
		units, err := s.store.ListUnits(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("list units: %w", err)
		}
		return units, nil
	}
	units := make([]Unit, 0, len(ids))
	for _, id := range ids {
		u, err := s.store.GetUnit(ctx, tenantID, id)
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", id, err)
		}
		units = append(units, u)
	}
	return units, nil
}

// generateUnit commits one bill. in carries the period's readings and
// adjustment; advance balance and prior bills are re-read inside the
// exclusive section.
func (s *Service) generateUnit(ctx context.Context, in AssembleInput, ack bool) (Bill, error) {
	tenantID, unitID := in.Unit.TenantID, in.Unit.ID
	var bill Bill

	err := s.withUnit(ctx, tenantID, unitID, func(tx Store) error {
		existing, err := tx.GetBill(ctx, tenantID, unitID, in.Period)
		switch {
		case err == nil:
			return &DuplicateBillError{UnitID: unitID, Period: in.Period, BillID: existing.ID}
		case !errors.Is(err, ErrBillNotFound):
			return fmt.Errorf("get bill: %w", err)
		}

		if in.Advance, err = tx.GetAdvance(ctx, tenantID, unitID); err != nil {
			return fmt.Errorf("get advance: %w", err)
		}
		if in.PriorBills, err = tx.ListUnitBills(ctx, tenantID, unitID); err != nil {
			return fmt.Errorf("list bills: %w", err)
		}

		var warnings []Warning
		bill, warnings = Assemble(in)
		if len(warnings) > 0 && !ack {
			return &UnacknowledgedWarningsError{UnitID: unitID, Warnings: warnings}
		}

		now := s.clock.Now()
		bill.ID = BillID(s.newID())
		bill.CreatedAt, bill.UpdatedAt = now, now
		if err := tx.CreateBill(ctx, bill); err != nil {
			return err
		}

		ledger := NewAdvanceLedger(tx)
		if bill.AdvanceDuesApplied.IsPositive() {
			if _, _, err := ledger.Draw(ctx, tenantID, unitID, BucketDues, bill.AdvanceDuesApplied); err != nil {
				return err
			}
		}
		if bill.AdvanceUtilitiesApplied.IsPositive() {
			if _, _, err := ledger.Draw(ctx, tenantID, unitID, BucketUtilities, bill.AdvanceUtilitiesApplied); err != nil {
				return err
			}
		}

		return s.audit(ctx, tx, tenantID, unitID, AuditBillGenerated, map[string]any{
			"bill_id": string(bill.ID),
			"period":  bill.Period.String(),
			"total":   bill.TotalAmount.StringFixed(2),
		})
	})
	if err != nil {
		return bill, err
	}

	s.metrics.IncBillsGenerated(string(bill.Status))
	for _, w := range bill.Warnings {
		s.metrics.IncWarning(string(w.Code))
	}
	s.log.Info("bill generated",
		zap.String("tenant_id", string(tenantID)),
		zap.String("unit_id", string(unitID)),
		zap.String("period", bill.Period.String()),
		zap.String("bill_id", string(bill.ID)),
		zap.String("amount", bill.TotalAmount.StringFixed(2)),
		zap.Int("warnings", len(bill.Warnings)),
	)
	return bill, nil
}

// GenerateBill generates one unit's bill and returns it, or the unit's error.
func (s *Service) GenerateBill(ctx context.Context, tenantID TenantID, unitID UnitID, period Period, statementDate time.Time, ack bool) (Bill, error) {
	report, err := s.GenerateBills(ctx, GenerateRequest{
		TenantID:            tenantID,
		Period:              period,
		StatementDate:       statementDate,
		UnitIDs:             []UnitID{unitID},
		AcknowledgeWarnings: ack,
	})
	if err != nil {
		return Bill{}, err
	}
	res := report.Results[0]
	if res.Err != nil {
		return Bill{}, res.Err
	}
	return *res.Bill, nil
}

// =============================================================================
// DELETION
// =============================================================================

// DeleteBill removes an unpaid bill so the period can be regenerated. The
// advance the bill drew is credited back, so regenerating with unchanged
// inputs reproduces the same bill.
func (s *Service) DeleteBill(ctx context.Context, tenantID TenantID, unitID UnitID, period Period) (Bill, error) {
	start := s.clock.Now()
	var bill Bill

	err := s.withUnit(ctx, tenantID, unitID, func(tx Store) error {
		var err error
		if bill, err = tx.GetBill(ctx, tenantID, unitID, period); err != nil {
			return err
		}
		if bill.PaidAmount.IsPositive() {
			return &ProtectedBillError{BillID: bill.ID, PaidAmount: bill.PaidAmount}
		}

		ledger := NewAdvanceLedger(tx)
		if _, err := ledger.Credit(ctx, tenantID, unitID, BucketDues, bill.AdvanceDuesApplied); err != nil {
			return err
		}
		if _, err := ledger.Credit(ctx, tenantID, unitID, BucketUtilities, bill.AdvanceUtilitiesApplied); err != nil {
			return err
		}
		if err := tx.DeleteBill(ctx, tenantID, bill.ID); err != nil {
			return err
		}
		return s.audit(ctx, tx, tenantID, unitID, AuditBillDeleted, map[string]any{
			"bill_id": string(bill.ID),
			"period":  bill.Period.String(),
		})
	})
	s.observe("delete", start, err)
	if err != nil {
		return Bill{}, err
	}

	s.metrics.IncBillsDeleted()
	s.log.Info("bill deleted",
		zap.String("tenant_id", string(tenantID)),
		zap.String("unit_id", string(unitID)),
		zap.String("period", period.String()),
		zap.String("bill_id", string(bill.ID)),
	)
	return bill, nil
}
