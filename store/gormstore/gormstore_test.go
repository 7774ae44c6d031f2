package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/warp/condo-soa/billing"
	"github.com/warp/condo-soa/clock"
)

const tenant billing.TenantID = "tenant-1"

var march = billing.MustParsePeriod("2025-03")

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	s, err := OpenDialector(sqlite.Open(dsn), Config{MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func referenceTariff() billing.TariffConfig {
	return billing.TariffConfig{
		TenantID:          tenant,
		ElectricRate:      dec("8.39"),
		ElectricMinCharge: dec("50"),
		DuesRate:          dec("60"),
		PenaltyRate:       dec("0.10"),
		Residential:       billing.ReferenceResidentialSchedule(),
		Commercial:        billing.ReferenceResidentialSchedule(),
	}
}

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
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestStore_TariffUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetTariff(ctx, tenant)
	assert.ErrorIs(t, err, billing.ErrTariffNotFound)

	cfg := referenceTariff()
	require.NoError(t, s.SaveTariff(ctx, cfg))
	cfg.PenaltyRate = dec("0.05")
	require.NoError(t, s.SaveTariff(ctx, cfg))

	got, err := s.GetTariff(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, got.PenaltyRate.Equal(dec("0.05")))
	assert.NoError(t, got.Validate())
}

func TestStore_ReadingsAreUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := billing.MeterReading{TenantID: tenant, UnitID: "unit-101", Period: march, Kind: billing.ReadingWater, Previous: dec("200"), Present: dec("215")}

	require.NoError(t, s.SaveReading(ctx, r))
	assert.ErrorIs(t, s.SaveReading(ctx, r), billing.ErrDuplicateReading)

	readings, err := s.ListReadings(ctx, tenant, march)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.True(t, readings[0].Consumption().Equal(dec("15")))
}

func TestStore_BillUniquenessReportsExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateBill(ctx, sampleBill("b1", march)))

	err := s.CreateBill(ctx, sampleBill("b2", march))

	var dup *billing.DuplicateBillError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, billing.BillID("b1"), dup.BillID)
	got, err := s.GetBill(ctx, tenant, "unit-101", march)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(dec("5367.50")))
	assert.True(t, got.DueDate.Equal(sampleBill("b1", march).DueDate))
}

func TestStore_UpdateOnlyTouchesSettlement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := sampleBill("b1", march)
	require.NoError(t, s.CreateBill(ctx, b))

	b.PaidAmount = dec("5367.50")
	b.Balance = decimal.Zero
	b.Status = billing.StatusPaid
	b.TotalAmount = dec("1")
	require.NoError(t, s.UpdateBill(ctx, b))

	got, err := s.GetBillByID(ctx, tenant, "b1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, got.Status)
	assert.True(t, got.Balance.IsZero())
	assert.True(t, got.TotalAmount.Equal(dec("5367.50")))

	require.NoError(t, s.DeleteBill(ctx, tenant, "b1"))
	assert.ErrorIs(t, s.DeleteBill(ctx, tenant, "b1"), billing.ErrBillNotFound)
}

func TestStore_PaymentReferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	paidAt := time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC)
	p := billing.Payment{ID: "p1", TenantID: tenant, UnitID: "unit-101", Amount: dec("1000"), PaidAt: paidAt, Reference: "OR-1", CreatedAt: paidAt}

	require.NoError(t, s.CreatePayment(ctx, p))
	p.ID = "p2"
	assert.ErrorIs(t, s.CreatePayment(ctx, p), billing.ErrDuplicatePayment)

	// Blank references never collide.
	require.NoError(t, s.CreatePayment(ctx, billing.Payment{ID: "p3", TenantID: tenant, UnitID: "unit-101", Amount: dec("1"), PaidAt: paidAt, CreatedAt: paidAt}))
	require.NoError(t, s.CreatePayment(ctx, billing.Payment{ID: "p4", TenantID: tenant, UnitID: "unit-101", Amount: dec("1"), PaidAt: paidAt, CreatedAt: paidAt}))

	payments, err := s.ListPayments(ctx, tenant, "unit-101")
	require.NoError(t, err)
	assert.Len(t, payments, 3)
}

func TestStore_BillPaymentsKeepAllocationOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	lines := []billing.BillPayment{
		{ID: "z", TenantID: tenant, PaymentID: "p1", BillID: "march", Amount: dec("5367.50"), CreatedAt: at},
		{ID: "a", TenantID: tenant, PaymentID: "p1", BillID: "april", Amount: dec("632.50"), CreatedAt: at},
	}

	require.NoError(t, s.CreateBillPayments(ctx, lines))

	got, err := s.ListBillPaymentsByPayment(ctx, tenant, "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, billing.BillID("march"), got[0].BillID)
	assert.Equal(t, billing.BillID("april"), got[1].BillID)
}

func TestStore_AuditKeepsInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendAudit(ctx, billing.AuditEntry{ID: "z", TenantID: tenant, UnitID: "u1", Action: billing.AuditExcessCredited, Timestamp: ts}))
	require.NoError(t, s.AppendAudit(ctx, billing.AuditEntry{ID: "a", TenantID: tenant, UnitID: "u1", Action: billing.AuditPaymentRecorded, Timestamp: ts, Payload: map[string]any{"payment_id": "p1"}}))
	require.NoError(t, s.AppendAudit(ctx, billing.AuditEntry{ID: "m", TenantID: tenant, UnitID: "u2", Action: billing.AuditBillGenerated, Timestamp: ts}))

	unit, err := s.ListAudit(ctx, tenant, "u1")
	require.NoError(t, err)
	require.Len(t, unit, 2)
	assert.Equal(t, billing.AuditExcessCredited, unit[0].Action)
	assert.Equal(t, "p1", unit[1].Payload["payment_id"])

	all, err := s.ListAudit(ctx, tenant, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx billing.Store) error {
		if err := tx.SaveAdvance(ctx, billing.AdvanceBalance{TenantID: tenant, UnitID: "unit-101", Dues: dec("100")}); err != nil {
			return err
		}
		return errors.New("boom")
	})

	require.EqualError(t, err, "boom")
	a, err := s.GetAdvance(ctx, tenant, "unit-101")
	require.NoError(t, err)
	assert.True(t, a.Total().IsZero())
}

func TestStore_ServiceEndToEnd(t *testing.T) {
	// GIVEN: the reference unit with a prior dues advance
	s := newTestStore(t)
	ctx := context.Background()
	svc := billing.NewService(billing.Options{
		Store: s,
		Clock: clock.NewFakeClock(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)),
	})
	_, err := svc.SaveTariff(ctx, referenceTariff())
	require.NoError(t, err)
	_, err = svc.SaveUnit(ctx, billing.Unit{ID: "unit-101", TenantID: tenant, Code: "101", Area: dec("45")})
	require.NoError(t, err)
	require.NoError(t, svc.RecordReading(ctx, billing.MeterReading{TenantID: tenant, UnitID: "unit-101", Period: march, Kind: billing.ReadingElectric, Previous: dec("1000"), Present: dec("1250")}))
	require.NoError(t, svc.RecordReading(ctx, billing.MeterReading{TenantID: tenant, UnitID: "unit-101", Period: march, Kind: billing.ReadingWater, Previous: dec("200"), Present: dec("215")}))
	_, err = svc.CreditAdvance(ctx, tenant, "unit-101", billing.BucketDues, dec("1000"))
	require.NoError(t, err)

	// WHEN
	bill, err := svc.GenerateBill(ctx, tenant, "unit-101", march, time.Time{}, false)
	require.NoError(t, err)
	res, err := svc.RecordPayment(ctx, billing.PaymentRequest{TenantID: tenant, UnitID: "unit-101", Amount: dec("2000"), Reference: "OR-7"})
	require.NoError(t, err)

	// THEN: dues drawn 1000, total 4367.50, payment leaves 2367.50 open
	assert.Equal(t, "1000.00", bill.AdvanceDuesApplied.StringFixed(2))
	assert.Equal(t, "4367.50", bill.TotalAmount.StringFixed(2))
	assert.True(t, res.Excess.IsZero())
	st, err := svc.Statement(ctx, tenant, "unit-101")
	require.NoError(t, err)
	require.Len(t, st.Lines, 1)
	assert.Equal(t, billing.StatusPartial, st.Lines[0].Bill.Status)
	assert.Equal(t, "2367.50", st.Outstanding.StringFixed(2))
	assert.True(t, st.Advance.Total().IsZero())
}
