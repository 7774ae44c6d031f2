/*
assembler.go - Bill assembly for one unit and one billing period

PURPOSE:
  Assemble is a pure function from a unit's inputs to a Bill. It performs no
  I/O and mutates nothing; the service persists the bill and applies the
  advance draws it reports.

STEPS:
  1. Tariff components: electric, water, dues, parking
  2. Previous balance: sum of open prior-period bills
     Penalty: the same bills, oldest first, at least one month past due
  3. Advance draws: min(advance dues, dues), min(advance utilities, electric + water)
  4. Total:
       electric + water + dues + parking + special assessment
       + previous balance + penalty
       - discount - advance dues applied - advance utilities applied
  5. PaidAmount = 0, Balance = Total, Status UNPAID (PAID when Total <= 0)

PREVIOUS BALANCE COUPLING:
  Every open prior bill's Balance is summed, and each prior bill's Total
  already includes its own PreviousBalance. Two consecutive unpaid months
  therefore carry the older month twice. This reproduces legacy statements.

BATCH:
  AssembleBatch folds Assemble over an Arena holding every input for a
  tenant and period, loaded once.
*/
package billing

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDueDays is how long after the statement date a bill falls due.
const DefaultDueDays = 15

// =============================================================================
// SINGLE UNIT
// =============================================================================

// AssembleInput is every input needed to assemble one bill.
type AssembleInput struct {
	Tariff        TariffConfig
	Unit          Unit
	Period        Period
	StatementDate time.Time
	// DueDate defaults to StatementDate + DefaultDueDays when zero.
	DueDate time.Time

	Electric   *MeterReading
	Water      *MeterReading
	Adjustment *BillingAdjustment
	Advance    AdvanceBalance

	// PriorBills may be in any order and may include bills for other periods.
	PriorBills []Bill
}

// Assemble builds the bill described by in. The returned bill has no ID.
func Assemble(in AssembleInput) (Bill, []Warning) {
	var warnings []Warning
	cfg := in.Tariff

	elecCons, w := consumption(in.Unit.ID, ReadingElectric, in.Electric)
	warnings = append(warnings, w...)
	waterCons, w := consumption(in.Unit.ID, ReadingWater, in.Water)
	warnings = append(warnings, w...)

	statement := Date(in.StatementDate)
	due := Date(in.DueDate)
	if in.DueDate.IsZero() {
		due = statement.AddDate(0, 0, DefaultDueDays)
	}

	b := Bill{
		TenantID:            in.Unit.TenantID,
		UnitID:              in.Unit.ID,
		Period:              in.Period,
		PeriodFrom:          in.Period.From(),
		PeriodTo:            in.Period.To(),
		StatementDate:       statement,
		DueDate:             due,
		ElectricConsumption: elecCons,
		WaterConsumption:    waterCons,
		SpecialAssessment:   decimal.Zero,
		Discount:            decimal.Zero,
		PaidAmount:          decimal.Zero,
	}

	// 1. tariff components
	b.Electric = ElectricCharge(elecCons, cfg)
	b.Water = WaterCharge(waterCons, in.Unit.Type, cfg)
	b.Dues = AssociationDues(in.Unit.Area, cfg)
	b.Parking = ParkingFee(in.Unit.ParkingArea, cfg)
	if in.Adjustment != nil {
		b.SpecialAssessment = RoundMoney(in.Adjustment.SpecialAssessment)
		b.Discount = RoundMoney(in.Adjustment.Discount)
	}

	// 2. previous balance and penalty
	open := OpenPriorBills(in.PriorBills, in.Period)
	b.PreviousBalance = decimal.Zero
	for _, p := range open {
		b.PreviousBalance = b.PreviousBalance.Add(p.Balance)
	}
	b.Penalty = PenaltyFor(open, statement, cfg.PenaltyRate).TotalInterest

	// 3. advance draws
	b.AdvanceDuesApplied = minDecimal(clampZero(in.Advance.Dues), b.Dues)
	b.AdvanceUtilitiesApplied = minDecimal(clampZero(in.Advance.Utilities), b.Utilities())

	// 4. total
	b.TotalAmount = b.Electric.
		Add(b.Water).
		Add(b.Dues).
		Add(b.Parking).
		Add(b.SpecialAssessment).
		Add(b.PreviousBalance).
		Add(b.Penalty).
		Sub(b.Discount).
		Sub(b.AdvanceDuesApplied).
		Sub(b.AdvanceUtilitiesApplied)

	// 5. settlement state
	b.Balance = b.TotalAmount
	b.Status = StatusUnpaid
	if !b.TotalAmount.IsPositive() {
		b.Status = StatusPaid
	}
	b.Warnings = warnings
	return b, warnings
}

func consumption(unitID UnitID, kind ReadingKind, r *MeterReading) (decimal.Decimal, []Warning) {
	if r == nil {
		code := WarnMissingElectric
		if kind == ReadingWater {
			code = WarnMissingWater
		}
		return decimal.Zero, []Warning{{
			Code:    code,
			UnitID:  unitID,
			Message: fmt.Sprintf("no %s reading for unit %s, consumption billed as zero", kind, unitID),
		}}
	}
	c := r.Consumption()
	if c.IsNegative() {
		code := WarnNegativeElectric
		if kind == ReadingWater {
			code = WarnNegativeWater
		}
		return decimal.Zero, []Warning{{
			Code:   code,
			UnitID: unitID,
			Message: fmt.Sprintf("%s reading for unit %s goes backwards (%s -> %s), consumption billed as zero",
				kind, unitID, r.Previous, r.Present),
		}}
	}
	return c, nil
}

// OpenPriorBills returns bills before period still UNPAID, PARTIAL or OVERDUE, oldest first.
func OpenPriorBills(bills []Bill, period Period) []Bill {
	var out []Bill
	for _, b := range bills {
		if b.Period.Before(period) && b.Status.IsOpen() {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out
}

// PenaltyFor folds the balances of bills at least one full month past due as
// of statementDate. bills must already be oldest first.
func PenaltyFor(bills []Bill, statementDate time.Time, rate decimal.Decimal) PenaltyAccrual {
	var principals []decimal.Decimal
	for _, b := range bills {
		if MonthsOverdue(b.DueDate, statementDate) >= 1 {
			principals = append(principals, b.Balance)
		}
	}
	acc := AccrueCompoundInterest(principals, rate)
	if acc.Periods == nil {
		acc.Periods = []PenaltyPeriod{}
	}
	return acc
}

// =============================================================================
// ARENA - One period's inputs loaded once
// =============================================================================

// Arena holds every input for a tenant and period.
type Arena struct {
	Tariff        TariffConfig
	Period        Period
	StatementDate time.Time
	DueDate       time.Time

	Units       []Unit
	Readings    []MeterReading
	Adjustments []BillingAdjustment
	Advances    []AdvanceBalance
	Bills       []Bill
}

// UnitDraft is the assembly result for one unit of an arena.
type UnitDraft struct {
	Unit     Unit
	Bill     Bill
	Warnings []Warning
	// Existing is the bill already generated for this unit and period, if any.
	Existing *Bill
}

// Input returns the AssembleInput for one unit of the arena.
func (a Arena) Input(unit Unit) AssembleInput {
	idx := a.index()
	return idx.input(a, unit)
}

type arenaIndex struct {
	electric    map[UnitID]*MeterReading
	water       map[UnitID]*MeterReading
	adjustments map[UnitID]*BillingAdjustment
	advances    map[UnitID]AdvanceBalance
	bills       map[UnitID][]Bill
}

func (a Arena) index() arenaIndex {
	idx := arenaIndex{
		electric:    make(map[UnitID]*MeterReading),
		water:       make(map[UnitID]*MeterReading),
		adjustments: make(map[UnitID]*BillingAdjustment),
		advances:    make(map[UnitID]AdvanceBalance),
		bills:       make(map[UnitID][]Bill),
	}
	for i := range a.Readings {
		r := &a.Readings[i]
		if r.Period != a.Period {
			continue
		}
		switch r.Kind {
		case ReadingElectric:
			idx.electric[r.UnitID] = r
		case ReadingWater:
			idx.water[r.UnitID] = r
		}
	}
	for i := range a.Adjustments {
		adj := &a.Adjustments[i]
		if adj.Period == a.Period {
			idx.adjustments[adj.UnitID] = adj
		}
	}
	for _, adv := range a.Advances {
		idx.advances[adv.UnitID] = adv
	}
	for _, b := range a.Bills {
		idx.bills[b.UnitID] = append(idx.bills[b.UnitID], b)
	}
	return idx
}

func (idx arenaIndex) input(a Arena, unit Unit) AssembleInput {
	return AssembleInput{
		Tariff:        a.Tariff,
		Unit:          unit,
		Period:        a.Period,
		StatementDate: a.StatementDate,
		DueDate:       a.DueDate,
		Electric:      idx.electric[unit.ID],
		Water:         idx.water[unit.ID],
		Adjustment:    idx.adjustments[unit.ID],
		Advance:       idx.advances[unit.ID],
		PriorBills:    idx.bills[unit.ID],
	}
}

// AssembleBatch assembles every unit of the arena independently.
func AssembleBatch(a Arena) []UnitDraft {
	idx := a.index()
	drafts := make([]UnitDraft, 0, len(a.Units))
	for _, u := range a.Units {
		bill, warnings := Assemble(idx.input(a, u))
		d := UnitDraft{Unit: u, Bill: bill, Warnings: warnings}
		for _, existing := range idx.bills[u.ID] {
			if existing.Period == a.Period {
				e := existing
				d.Existing = &e
				break
			}
		}
		drafts = append(drafts, d)
	}
	return drafts
}
