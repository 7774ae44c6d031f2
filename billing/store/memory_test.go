package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/condo-soa/billing"
)

var march = billing.MustParsePeriod("2025-03")

func testBill(id billing.BillID, unit billing.UnitID, p billing.Period) billing.Bill {
	return billing.Bill{
		ID:          id,
		TenantID:    "t1",
		UnitID:      unit,
		Period:      p,
		Status:      billing.StatusUnpaid,
		TotalAmount: decimal.NewFromInt(100),
		Balance:     decimal.NewFromInt(100),
	}
}

func TestMemory_WithTxRollsBack(t *testing.T) {
	// GIVEN
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateBill(ctx, testBill("b1", "u1", march)))

	// WHEN: a transaction writes then fails
	err := m.WithTx(ctx, func(tx billing.Store) error {
		if err := tx.CreateBill(ctx, testBill("b2", "u1", march.Next())); err != nil {
			return err
		}
		if err := tx.SaveAdvance(ctx, billing.AdvanceBalance{TenantID: "t1", UnitID: "u1", Dues: decimal.NewFromInt(5)}); err != nil {
			return err
		}
		return errors.New("boom")
	})

	// THEN: none of it is visible
	require.EqualError(t, err, "boom")
	bills, err := m.ListUnitBills(ctx, "t1", "u1")
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, billing.BillID("b1"), bills[0].ID)
	adv, err := m.GetAdvance(ctx, "t1", "u1")
	require.NoError(t, err)
	assert.True(t, adv.Dues.IsZero())
}

func TestMemory_WithTxCommits(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.WithTx(ctx, func(tx billing.Store) error {
		return tx.CreateBill(ctx, testBill("b1", "u1", march))
	})

	require.NoError(t, err)
	_, err = m.GetBillByID(ctx, "t1", "b1")
	assert.NoError(t, err)
}

func TestMemory_OneBillPerUnitPeriod(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateBill(ctx, testBill("b1", "u1", march)))

	err := m.CreateBill(ctx, testBill("b2", "u1", march))

	var dup *billing.DuplicateBillError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, billing.BillID("b1"), dup.BillID)
	assert.NoError(t, m.CreateBill(ctx, testBill("b3", "u2", march)))
}

func TestMemory_DeleteBillFreesPeriod(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateBill(ctx, testBill("b1", "u1", march)))

	require.NoError(t, m.DeleteBill(ctx, "t1", "b1"))

	_, err := m.GetBill(ctx, "t1", "u1", march)
	assert.ErrorIs(t, err, billing.ErrBillNotFound)
	assert.NoError(t, m.CreateBill(ctx, testBill("b2", "u1", march)))
	assert.ErrorIs(t, m.DeleteBill(ctx, "t1", "b1"), billing.ErrBillNotFound)
}

func TestMemory_DuplicateReading(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	r := billing.MeterReading{TenantID: "t1", UnitID: "u1", Period: march, Kind: billing.ReadingWater}

	require.NoError(t, m.SaveReading(ctx, r))
	assert.ErrorIs(t, m.SaveReading(ctx, r), billing.ErrDuplicateReading)

	r.Kind = billing.ReadingElectric
	assert.NoError(t, m.SaveReading(ctx, r))
	readings, err := m.ListReadings(ctx, "t1", march)
	require.NoError(t, err)
	assert.Len(t, readings, 2)
}

func TestMemory_DuplicatePaymentReference(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	p := billing.Payment{ID: "p1", TenantID: "t1", UnitID: "u1", Amount: decimal.NewFromInt(10), Reference: "OR-1"}

	require.NoError(t, m.CreatePayment(ctx, p))
	p.ID = "p2"
	assert.ErrorIs(t, m.CreatePayment(ctx, p), billing.ErrDuplicatePayment)

	// blank references never collide
	p.ID, p.Reference = "p3", ""
	require.NoError(t, m.CreatePayment(ctx, p))
	p.ID = "p4"
	require.NoError(t, m.CreatePayment(ctx, p))
}

func TestMemory_ListUnitBillsOldestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateBill(ctx, testBill("b2", "u1", march.Next())))
	require.NoError(t, m.CreateBill(ctx, testBill("b1", "u1", march)))
	require.NoError(t, m.CreateBill(ctx, testBill("b0", "u1", march.Prev())))

	bills, err := m.ListUnitBills(ctx, "t1", "u1")

	require.NoError(t, err)
	require.Len(t, bills, 3)
	assert.Equal(t, []billing.BillID{"b0", "b1", "b2"}, []billing.BillID{bills[0].ID, bills[1].ID, bills[2].ID})
}

func TestMemory_MissingRecords(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.GetTariff(ctx, "t1")
	assert.ErrorIs(t, err, billing.ErrTariffNotFound)
	_, err = m.GetUnit(ctx, "t1", "u1")
	assert.ErrorIs(t, err, billing.ErrUnitNotFound)
	_, err = m.GetPayment(ctx, "t1", "p1")
	assert.ErrorIs(t, err, billing.ErrPaymentNotFound)
	assert.ErrorIs(t, m.UpdateBill(ctx, testBill("b1", "u1", march)), billing.ErrBillNotFound)

	adv, err := m.GetAdvance(ctx, "t1", "u1")
	require.NoError(t, err)
	assert.True(t, adv.Total().IsZero())
}
