package store

import (
	"context"
	"sync"

	"github.com/warp/condo-soa/billing"
)

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// Memory is a concurrency-safe billing.TxStore held entirely in memory.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The whole store is write-locked for the duration of fn.
func (m *Memory) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(m.s); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

func (m *Memory) read(fn func(*state) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.s)
}

func (m *Memory) write(fn func(*state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.s)
}

func (m *Memory) GetTariff(ctx context.Context, tenantID billing.TenantID) (cfg billing.TariffConfig, err error) {
	err = m.read(func(s *state) error { cfg, err = s.GetTariff(ctx, tenantID); return err })
	return cfg, err
}

func (m *Memory) SaveTariff(ctx context.Context, cfg billing.TariffConfig) error {
	return m.write(func(s *state) error { return s.SaveTariff(ctx, cfg) })
}

func (m *Memory) GetUnit(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) (u billing.Unit, err error) {
	err = m.read(func(s *state) error { u, err = s.GetUnit(ctx, tenantID, unitID); return err })
	return u, err
}

func (m *Memory) ListUnits(ctx context.Context, tenantID billing.TenantID) (out []billing.Unit, err error) {
	err = m.read(func(s *state) error { out, err = s.ListUnits(ctx, tenantID); return err })
	return out, err
}

func (m *Memory) SaveUnit(ctx context.Context, u billing.Unit) error {
	return m.write(func(s *state) error { return s.SaveUnit(ctx, u) })
}

func (m *Memory) SaveReading(ctx context.Context, r billing.MeterReading) error {
	return m.write(func(s *state) error { return s.SaveReading(ctx, r) })
}

func (m *Memory) ListReadings(ctx context.Context, tenantID billing.TenantID, period billing.Period) (out []billing.MeterReading, err error) {
	err = m.read(func(s *state) error { out, err = s.ListReadings(ctx, tenantID, period); return err })
	return out, err
}

func (m *Memory) SaveAdjustment(ctx context.Context, a billing.BillingAdjustment) error {
	return m.write(func(s *state) error { return s.SaveAdjustment(ctx, a) })
}

func (m *Memory) ListAdjustments(ctx context.Context, tenantID billing.TenantID, period billing.Period) (out []billing.BillingAdjustment, err error) {
	err = m.read(func(s *state) error { out, err = s.ListAdjustments(ctx, tenantID, period); return err })
	return out, err
}

func (m *Memory) GetAdvance(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) (a billing.AdvanceBalance, err error) {
	err = m.read(func(s *state) error { a, err = s.GetAdvance(ctx, tenantID, unitID); return err })
	return a, err
}

func (m *Memory) ListAdvances(ctx context.Context, tenantID billing.TenantID) (out []billing.AdvanceBalance, err error) {
	err = m.read(func(s *state) error { out, err = s.ListAdvances(ctx, tenantID); return err })
	return out, err
}

func (m *Memory) SaveAdvance(ctx context.Context, a billing.AdvanceBalance) error {
	return m.write(func(s *state) error { return s.SaveAdvance(ctx, a) })
}

func (m *Memory) GetBill(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID, period billing.Period) (b billing.Bill, err error) {
	err = m.read(func(s *state) error { b, err = s.GetBill(ctx, tenantID, unitID, period); return err })
	return b, err
}

func (m *Memory) GetBillByID(ctx context.Context, tenantID billing.TenantID, billID billing.BillID) (b billing.Bill, err error) {
	err = m.read(func(s *state) error { b, err = s.GetBillByID(ctx, tenantID, billID); return err })
	return b, err
}

func (m *Memory) ListUnitBills(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) (out []billing.Bill, err error) {
	err = m.read(func(s *state) error { out, err = s.ListUnitBills(ctx, tenantID, unitID); return err })
	return out, err
}

func (m *Memory) ListTenantBills(ctx context.Context, tenantID billing.TenantID) (out []billing.Bill, err error) {
	err = m.read(func(s *state) error { out, err = s.ListTenantBills(ctx, tenantID); return err })
	return out, err
}

func (m *Memory) CreateBill(ctx context.Context, b billing.Bill) error {
	return m.write(func(s *state) error { return s.CreateBill(ctx, b) })
}

func (m *Memory) UpdateBill(ctx context.Context, b billing.Bill) error {
	return m.write(func(s *state) error { return s.UpdateBill(ctx, b) })
}

func (m *Memory) DeleteBill(ctx context.Context, tenantID billing.TenantID, billID billing.BillID) error {
	return m.write(func(s *state) error { return s.DeleteBill(ctx, tenantID, billID) })
}

func (m *Memory) CreatePayment(ctx context.Context, p billing.Payment) error {
	return m.write(func(s *state) error { return s.CreatePayment(ctx, p) })
}

func (m *Memory) GetPayment(ctx context.Context, tenantID billing.TenantID, paymentID billing.PaymentID) (p billing.Payment, err error) {
	err = m.read(func(s *state) error { p, err = s.GetPayment(ctx, tenantID, paymentID); return err })
	return p, err
}

func (m *Memory) ListPayments(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) (out []billing.Payment, err error) {
	err = m.read(func(s *state) error { out, err = s.ListPayments(ctx, tenantID, unitID); return err })
	return out, err
}

func (m *Memory) CreateBillPayments(ctx context.Context, lines []billing.BillPayment) error {
	return m.write(func(s *state) error { return s.CreateBillPayments(ctx, lines) })
}

func (m *Memory) ListBillPaymentsByBill(ctx context.Context, tenantID billing.TenantID, billID billing.BillID) (out []billing.BillPayment, err error) {
	err = m.read(func(s *state) error { out, err = s.ListBillPaymentsByBill(ctx, tenantID, billID); return err })
	return out, err
}

func (m *Memory) ListBillPaymentsByPayment(ctx context.Context, tenantID billing.TenantID, paymentID billing.PaymentID) (out []billing.BillPayment, err error) {
	err = m.read(func(s *state) error { out, err = s.ListBillPaymentsByPayment(ctx, tenantID, paymentID); return err })
	return out, err
}

func (m *Memory) AppendAudit(ctx context.Context, e billing.AuditEntry) error {
	return m.write(func(s *state) error { return s.AppendAudit(ctx, e) })
}

func (m *Memory) ListAudit(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) (out []billing.AuditEntry, err error) {
	err = m.read(func(s *state) error { out, err = s.ListAudit(ctx, tenantID, unitID); return err })
	return out, err
}

var _ billing.TxStore = (*Memory)(nil)
