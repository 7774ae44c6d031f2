package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/condo-soa/billing"
	"github.com/warp/condo-soa/clock"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const tenant billing.TenantID = "tenant-1"

var march = billing.MustParsePeriod("2025-03")

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleBill(id billing.BillID, p billing.Period) billing.Bill {
	now := time.Date(2025, 4, 1, 8, 30, 0, 0, time.UTC)
	return billing.Bill{
		ID:            id,
		TenantID:      tenant,
		UnitID:        "unit-101",
		Period:        p,
		PeriodFrom:    p.From(),
		PeriodTo:      p.To(),
		StatementDate: now,
		DueDate:       now.AddDate(0, 0, 15),
		Electric:      dec("2097.50"),
		Water:         dec("570.00"),
		Dues:          dec("2700.00"),
		TotalAmount:   dec("5367.50"),
		Balance:       dec("5367.50"),
		Status:        billing.StatusUnpaid,
		Warnings:      []billing.Warning{{Code: billing.WarnMissingWater, UnitID: "unit-101", Message: "no water"}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// =============================================================================
// RECORDS
// =============================================================================

func TestStore_TariffRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := billing.TariffConfig{
		TenantID:          tenant,
		ElectricRate:      dec("8.39"),
		ElectricMinCharge: dec("50"),
		DuesRate:          dec("60"),
		PenaltyRate:       dec("0.10"),
		Residential:       billing.ReferenceResidentialSchedule(),
		Commercial:        billing.ReferenceResidentialSchedule(),
	}

	_, err := s.GetTariff(ctx, tenant)
	assert.ErrorIs(t, err, billing.ErrTariffNotFound)

	require.NoError(t, s.SaveTariff(ctx, cfg))
	cfg.DuesRate = dec("65")
	require.NoError(t, s.SaveTariff(ctx, cfg))

	got, err := s.GetTariff(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, got.DuesRate.Equal(dec("65")))
	assert.True(t, got.ElectricRate.Equal(dec("8.39")))
	for i, r := range cfg.Residential.Rates {
		assert.True(t, got.Residential.Rates[i].Equal(r))
	}
	assert.NoError(t, got.Validate())
}

func TestStore_UnitsSortedByCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveUnit(ctx, billing.Unit{ID: "b", TenantID: tenant, Code: "202", Type: billing.UnitCommercial, Area: dec("80")}))
	require.NoError(t, s.SaveUnit(ctx, billing.Unit{ID: "a", TenantID: tenant, Code: "101", Type: billing.UnitResidential, Area: dec("45"), OwnerName: "Reyes"}))

	units, err := s.ListUnits(ctx, tenant)

	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "101", units[0].Code)
	assert.Equal(t, "Reyes", units[0].OwnerName)
	assert.Equal(t, billing.UnitCommercial, units[1].Type)

	_, err = s.GetUnit(ctx, tenant, "missing")
	assert.ErrorIs(t, err, billing.ErrUnitNotFound)
}

func TestStore_DuplicateReading(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := billing.MeterReading{TenantID: tenant, UnitID: "unit-101", Period: march, Kind: billing.ReadingElectric, Previous: dec("1000"), Present: dec("1250")}

	require.NoError(t, s.SaveReading(ctx, r))
	assert.ErrorIs(t, s.SaveReading(ctx, r), billing.ErrDuplicateReading)

	readings, err := s.ListReadings(ctx, tenant, march)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "250", readings[0].Consumption().String())
}

func TestStore_AdjustmentUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := billing.BillingAdjustment{TenantID: tenant, UnitID: "unit-101", Period: march, SpecialAssessment: dec("300"), Discount: dec("0")}

	require.NoError(t, s.SaveAdjustment(ctx, a))
	a.Discount = dec("100")
	require.NoError(t, s.SaveAdjustment(ctx, a))

	adjs, err := s.ListAdjustments(ctx, tenant, march)
	require.NoError(t, err)
	require.Len(t, adjs, 1)
	assert.True(t, adjs[0].Discount.Equal(dec("100")))
}

func TestStore_BillRoundTripAndUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := sampleBill("b1", march)
	require.NoError(t, s.CreateBill(ctx, b))

	got, err := s.GetBill(ctx, tenant, "unit-101", march)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, march, got.Period)
	assert.True(t, got.TotalAmount.Equal(b.TotalAmount))
	assert.True(t, got.DueDate.Equal(b.DueDate))
	assert.True(t, got.PeriodTo.Equal(b.PeriodTo))
	require.Len(t, got.Warnings, 1)
	assert.Equal(t, billing.WarnMissingWater, got.Warnings[0].Code)

	err = s.CreateBill(ctx, sampleBill("b2", march))
	var dup *billing.DuplicateBillError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, billing.BillID("b1"), dup.BillID)
	assert.ErrorIs(t, err, billing.ErrBillExists)
}

func TestStore_UpdateAndDeleteBill(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := sampleBill("b1", march)
	require.NoError(t, s.CreateBill(ctx, b))

	b.PaidAmount = dec("1000")
	b.Balance = dec("4367.50")
	b.Status = billing.StatusPartial
	require.NoError(t, s.UpdateBill(ctx, b))

	got, err := s.GetBillByID(ctx, tenant, "b1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPartial, got.Status)
	assert.True(t, got.Balance.Equal(dec("4367.50")))

	require.NoError(t, s.DeleteBill(ctx, tenant, "b1"))
	assert.ErrorIs(t, s.DeleteBill(ctx, tenant, "b1"), billing.ErrBillNotFound)
	assert.ErrorIs(t, s.UpdateBill(ctx, b), billing.ErrBillNotFound)
}

func TestStore_ListUnitBillsOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateBill(ctx, sampleBill("b3", march.Next())))
	require.NoError(t, s.CreateBill(ctx, sampleBill("b1", march.Prev())))
	require.NoError(t, s.CreateBill(ctx, sampleBill("b2", march)))

	bills, err := s.ListUnitBills(ctx, tenant, "unit-101")

	require.NoError(t, err)
	require.Len(t, bills, 3)
	assert.Equal(t, billing.BillID("b1"), bills[0].ID)
	assert.Equal(t, billing.BillID("b3"), bills[2].ID)
}

func TestStore_PaymentsAndLines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateBill(ctx, sampleBill("b1", march)))
	paidAt := time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC)
	p := billing.Payment{
		ID: "p1", TenantID: tenant, UnitID: "unit-101", Amount: dec("1000"),
		PaidAt: paidAt, Method: "cash", Reference: "OR-1", Period: &march, CreatedAt: paidAt,
	}

	require.NoError(t, s.CreatePayment(ctx, p))
	dupe := p
	dupe.ID = "p2"
	assert.ErrorIs(t, s.CreatePayment(ctx, dupe), billing.ErrDuplicatePayment)

	line := billing.BillPayment{
		ID: "l1", TenantID: tenant, PaymentID: "p1", BillID: "b1", Amount: dec("1000"),
		Breakdown: billing.Breakdown{Electric: dec("390.78"), Water: dec("106.19"), Dues: dec("503.03")},
		CreatedAt: paidAt,
	}
	require.NoError(t, s.CreateBillPayments(ctx, []billing.BillPayment{line}))

	got, err := s.GetPayment(ctx, tenant, "p1")
	require.NoError(t, err)
	assert.Equal(t, "OR-1", got.Reference)
	require.NotNil(t, got.Period)
	assert.Equal(t, march, *got.Period)
	assert.Nil(t, got.Breakdown)

	byBill, err := s.ListBillPaymentsByBill(ctx, tenant, "b1")
	require.NoError(t, err)
	require.Len(t, byBill, 1)
	assert.True(t, byBill[0].Breakdown.Dues.Equal(dec("503.03")))

	byPayment, err := s.ListBillPaymentsByPayment(ctx, tenant, "p1")
	require.NoError(t, err)
	assert.Len(t, byPayment, 1)

	_, err = s.GetPayment(ctx, tenant, "missing")
	assert.ErrorIs(t, err, billing.ErrPaymentNotFound)
}

func TestStore_AdvanceDefaultsToZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.GetAdvance(ctx, tenant, "unit-101")
	require.NoError(t, err)
	assert.True(t, a.Total().IsZero())

	a.Utilities = dec("632.50")
	a.UpdatedAt = time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveAdvance(ctx, a))

	all, err := s.ListAdvances(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Utilities.Equal(dec("632.50")))
	assert.True(t, all[0].UpdatedAt.Equal(a.UpdatedAt))
}

func TestStore_AuditFilterByUnit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendAudit(ctx, billing.AuditEntry{ID: "a1", TenantID: tenant, UnitID: "u1", Action: billing.AuditBillGenerated, Timestamp: ts, Payload: map[string]any{"bill_id": "b1"}}))
	require.NoError(t, s.AppendAudit(ctx, billing.AuditEntry{ID: "a2", TenantID: tenant, UnitID: "u2", Action: billing.AuditPaymentRecorded, Timestamp: ts.Add(time.Hour)}))

	unit, err := s.ListAudit(ctx, tenant, "u1")
	require.NoError(t, err)
	require.Len(t, unit, 1)
	assert.Equal(t, "b1", unit[0].Payload["bill_id"])

	all, err := s.ListAudit(ctx, tenant, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx billing.Store) error {
		if err := tx.CreateBill(ctx, sampleBill("b1", march)); err != nil {
			return err
		}
		return errors.New("boom")
	})

	require.EqualError(t, err, "boom")
	_, err = s.GetBill(ctx, tenant, "unit-101", march)
	assert.ErrorIs(t, err, billing.ErrBillNotFound)
}

func TestStore_ServiceEndToEnd(t *testing.T) {
	// GIVEN: the reference unit on SQLite
	s := newTestStore(t)
	ctx := context.Background()
	svc := billing.NewService(billing.Options{
		Store: s,
		Clock: clock.NewFakeClock(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)),
	})
	_, err := svc.SaveTariff(ctx, billing.TariffConfig{
		TenantID: tenant, ElectricRate: dec("8.39"), ElectricMinCharge: dec("50"), DuesRate: dec("60"),
		PenaltyRate: dec("0.10"), Residential: billing.ReferenceResidentialSchedule(), Commercial: billing.ReferenceResidentialSchedule(),
	})
	require.NoError(t, err)
	_, err = svc.SaveUnit(ctx, billing.Unit{ID: "unit-101", TenantID: tenant, Code: "101", Area: dec("45")})
	require.NoError(t, err)
	require.NoError(t, svc.RecordReading(ctx, billing.MeterReading{TenantID: tenant, UnitID: "unit-101", Period: march, Kind: billing.ReadingElectric, Previous: dec("0"), Present: dec("250")}))
	require.NoError(t, svc.RecordReading(ctx, billing.MeterReading{TenantID: tenant, UnitID: "unit-101", Period: march, Kind: billing.ReadingWater, Previous: dec("0"), Present: dec("15")}))

	// WHEN
	bill, err := svc.GenerateBill(ctx, tenant, "unit-101", march, time.Time{}, false)
	require.NoError(t, err)
	res, err := svc.RecordPayment(ctx, billing.PaymentRequest{TenantID: tenant, UnitID: "unit-101", Amount: dec("6000")})
	require.NoError(t, err)

	// THEN
	assert.Equal(t, "5367.50", bill.TotalAmount.StringFixed(2))
	assert.Equal(t, "632.50", res.Excess.StringFixed(2))
	st, err := svc.Statement(ctx, tenant, "unit-101")
	require.NoError(t, err)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, billing.StatusPaid, st.Lines[0].Bill.Status)
	assert.Equal(t, "632.50", st.Advance.Utilities.StringFixed(2))
	assert.True(t, st.Outstanding.IsZero())
}

// =============================================================================
// FAILURE PATHS
// =============================================================================

func TestNewWithDB_MigrationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS tariffs").WillReturnError(errors.New("disk I/O error"))

	_, err = NewWithDB(db)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to migrate database")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_QueryErrorsAreWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewWithDB(db)
	require.NoError(t, err)

	mock.ExpectQuery("FROM bills").WillReturnError(errors.New("connection reset"))
	_, err = s.ListUnitBills(context.Background(), tenant, "unit-101")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query bills")
	assert.False(t, billing.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
