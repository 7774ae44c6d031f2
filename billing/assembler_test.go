package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	march       = MustParsePeriod("2025-03")
	marchIssued = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
)

func referenceInput() AssembleInput {
	return AssembleInput{
		Tariff:        referenceTariff(),
		Unit:          referenceUnit(),
		Period:        march,
		StatementDate: marchIssued,
		Electric:      reading(ReadingElectric, march, "1000", "1250"),
		Water:         reading(ReadingWater, march, "200", "215"),
	}
}

func TestAssemble_ReferenceScenario(t *testing.T) {
	// GIVEN: 45 sqm, 250 kWh, 15 m3, no prior bills
	// WHEN
	bill, warnings := Assemble(referenceInput())

	// THEN
	assert.Empty(t, warnings)
	assertMoney(t, "2097.50", bill.Electric)
	assertMoney(t, "570.00", bill.Water)
	assertMoney(t, "2700.00", bill.Dues)
	assertMoney(t, "0.00", bill.Parking)
	assertMoney(t, "5367.50", bill.TotalAmount)
	assertMoney(t, "5367.50", bill.Balance)
	assertMoney(t, "0.00", bill.PaidAmount)
	assert.Equal(t, StatusUnpaid, bill.Status)
	assertMoney(t, "250.00", bill.ElectricConsumption)
	assertMoney(t, "15.00", bill.WaterConsumption)
	assert.Equal(t, march.From(), bill.PeriodFrom)
	assert.Equal(t, march.To(), bill.PeriodTo)
	assert.Equal(t, marchIssued.AddDate(0, 0, DefaultDueDays), bill.DueDate)
}

func TestAssemble_IsDeterministic(t *testing.T) {
	in := referenceInput()
	in.PriorBills = []Bill{priorBill("2025-02", "1000", StatusUnpaid, time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC))}

	first, _ := Assemble(in)
	second, _ := Assemble(in)
	assert.Equal(t, first, second)
}

func TestAssemble_MissingReadingsWarn(t *testing.T) {
	// GIVEN: no readings at all
	in := referenceInput()
	in.Electric, in.Water = nil, nil

	// WHEN
	bill, warnings := Assemble(in)

	// THEN: zero consumption is billed at the floors and both are flagged
	require.Len(t, warnings, 2)
	assert.Equal(t, WarnMissingElectric, warnings[0].Code)
	assert.Equal(t, WarnMissingWater, warnings[1].Code)
	assert.Equal(t, UnitID("unit-101"), warnings[0].UnitID)
	assertMoney(t, "50.00", bill.Electric)
	assertMoney(t, "80.00", bill.Water)
	assert.Len(t, bill.Warnings, 2)
}

func TestAssemble_NegativeConsumptionWarns(t *testing.T) {
	in := referenceInput()
	in.Water = reading(ReadingWater, march, "215", "200")

	bill, warnings := Assemble(in)

	require.Len(t, warnings, 1)
	assert.Equal(t, WarnNegativeWater, warnings[0].Code)
	assertMoney(t, "0.00", bill.WaterConsumption)
	assertMoney(t, "80.00", bill.Water)
}

func priorBill(period, balance string, status BillStatus, due time.Time) Bill {
	b := Bill{
		ID:       BillID("b-" + period),
		TenantID: "tenant-1",
		UnitID:   "unit-101",
		Period:   MustParsePeriod(period),
		DueDate:  due,
		Status:   status,
	}
	b.TotalAmount = d(balance)
	b.Balance = d(balance)
	b.PaidAmount = d("0")
	return b
}

func TestAssemble_PreviousBalanceAndPenalty(t *testing.T) {
	// GIVEN: January 1000 due Feb 15 and February 500 due Mar 15, both unpaid,
	// plus a paid December and a later April bill that must be ignored
	in := referenceInput()
	in.PriorBills = []Bill{
		priorBill("2025-02", "500", StatusUnpaid, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)),
		priorBill("2025-01", "1000", StatusOverdue, time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)),
		priorBill("2024-12", "0", StatusPaid, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)),
		priorBill("2025-04", "999", StatusUnpaid, time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)),
	}

	// WHEN: the March statement is issued April 1
	bill, _ := Assemble(in)

	// THEN: both open bills carry forward, only January is a full month late
	assertMoney(t, "1500.00", bill.PreviousBalance)
	assertMoney(t, "100.00", bill.Penalty)
	assertMoney(t, "6967.50", bill.TotalAmount)
}

func TestAssemble_PenaltyCompoundsAcrossMonths(t *testing.T) {
	in := referenceInput()
	in.StatementDate = time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)
	in.PriorBills = []Bill{
		priorBill("2025-01", "1000", StatusOverdue, time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)),
		priorBill("2025-02", "1000", StatusPartial, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)),
	}

	bill, _ := Assemble(in)

	assertMoney(t, "2000.00", bill.PreviousBalance)
	assertMoney(t, "220.00", bill.Penalty)
}

func TestAssemble_AdvanceDrawsCappedPerCategory(t *testing.T) {
	// GIVEN: more advance credit than this bill's dues and utilities
	in := referenceInput()
	in.Advance = AdvanceBalance{Dues: d("5000"), Utilities: d("1000")}

	// WHEN
	bill, _ := Assemble(in)

	// THEN: dues draw is capped at dues, utilities draw at what is available
	assertMoney(t, "2700.00", bill.AdvanceDuesApplied)
	assertMoney(t, "1000.00", bill.AdvanceUtilitiesApplied)
	assertMoney(t, "1667.50", bill.TotalAmount)
	assert.Equal(t, StatusUnpaid, bill.Status)
}

func TestAssemble_FullyCoveredBillIsPaid(t *testing.T) {
	in := referenceInput()
	in.Advance = AdvanceBalance{Dues: d("2700"), Utilities: d("9999")}

	bill, _ := Assemble(in)

	assertMoney(t, "2667.50", bill.AdvanceUtilitiesApplied)
	assertMoney(t, "0.00", bill.TotalAmount)
	assert.Equal(t, StatusPaid, bill.Status)
}

func TestAssemble_AdjustmentAndParking(t *testing.T) {
	in := referenceInput()
	in.Unit.ParkingArea = d("12.5")
	in.Adjustment = &BillingAdjustment{SpecialAssessment: d("300"), Discount: d("100")}

	bill, _ := Assemble(in)

	assertMoney(t, "750.00", bill.Parking)
	assertMoney(t, "300.00", bill.SpecialAssessment)
	assertMoney(t, "100.00", bill.Discount)
	assertMoney(t, "6317.50", bill.TotalAmount)
}

func TestAssembleBatch_IndependentUnits(t *testing.T) {
	// GIVEN: two units, one with readings and one without, and a bill already
	// generated for the second
	second := referenceUnit()
	second.ID, second.Code, second.Area = "unit-102", "102", d("30")

	arena := Arena{
		Tariff:        referenceTariff(),
		Period:        march,
		StatementDate: marchIssued,
		Units:         []Unit{referenceUnit(), second},
		Readings: []MeterReading{
			*reading(ReadingElectric, march, "1000", "1250"),
			*reading(ReadingWater, march, "200", "215"),
		},
		Advances: []AdvanceBalance{{UnitID: "unit-102", Dues: d("100")}},
		Bills: []Bill{{
			ID: "b-existing", UnitID: "unit-102", Period: march, Status: StatusUnpaid,
		}},
	}

	// WHEN
	drafts := AssembleBatch(arena)

	// THEN
	require.Len(t, drafts, 2)
	assertMoney(t, "5367.50", drafts[0].Bill.TotalAmount)
	assert.Empty(t, drafts[0].Warnings)
	assert.Nil(t, drafts[0].Existing)

	assert.Len(t, drafts[1].Warnings, 2)
	assertMoney(t, "100.00", drafts[1].Bill.AdvanceDuesApplied)
	// 50 + 80 + 1800 - 100
	assertMoney(t, "1830.00", drafts[1].Bill.TotalAmount)
	require.NotNil(t, drafts[1].Existing)
	assert.Equal(t, BillID("b-existing"), drafts[1].Existing.ID)
}
