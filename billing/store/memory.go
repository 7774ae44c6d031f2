// Package store provides an in-memory billing.Store.
package store

import (
	"context"
	"sort"

	"github.com/warp/condo-soa/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type unitKey struct {
	TenantID billing.TenantID
	UnitID   billing.UnitID
}

type periodKey struct {
	unitKey
	Period billing.Period
}

type readingKey struct {
	periodKey
	Kind billing.ReadingKind
}

type referenceKey struct {
	unitKey
	Reference string
}

// state holds every table. Its methods assume the caller holds Memory.mu.
type state struct {
	tariffs      map[billing.TenantID]billing.TariffConfig
	units        map[unitKey]billing.Unit
	readings     map[readingKey]billing.MeterReading
	adjustments  map[periodKey]billing.BillingAdjustment
	advances     map[unitKey]billing.AdvanceBalance
	bills        map[billing.BillID]billing.Bill
	billIndex    map[periodKey]billing.BillID
	payments     map[billing.PaymentID]billing.Payment
	paymentRefs  map[referenceKey]billing.PaymentID
	billPayments []billing.BillPayment
	audit        []billing.AuditEntry
}

func newState() *state {
	return &state{
		tariffs:     make(map[billing.TenantID]billing.TariffConfig),
		units:       make(map[unitKey]billing.Unit),
		readings:    make(map[readingKey]billing.MeterReading),
		adjustments: make(map[periodKey]billing.BillingAdjustment),
		advances:    make(map[unitKey]billing.AdvanceBalance),
		bills:       make(map[billing.BillID]billing.Bill),
		billIndex:   make(map[periodKey]billing.BillID),
		payments:    make(map[billing.PaymentID]billing.Payment),
		paymentRefs: make(map[referenceKey]billing.PaymentID),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.tariffs {
		c.tariffs[k] = v
	}
	for k, v := range s.units {
		c.units[k] = v
	}
	for k, v := range s.readings {
		c.readings[k] = v
	}
	for k, v := range s.adjustments {
		c.adjustments[k] = v
	}
	for k, v := range s.advances {
		c.advances[k] = v
	}
	for k, v := range s.bills {
		c.bills[k] = v
	}
	for k, v := range s.billIndex {
		c.billIndex[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.paymentRefs {
		c.paymentRefs[k] = v
	}
	c.billPayments = append([]billing.BillPayment(nil), s.billPayments...)
	c.audit = append([]billing.AuditEntry(nil), s.audit...)
	return c
}

// --- tariff ---

func (s *state) GetTariff(_ context.Context, tenantID billing.TenantID) (billing.TariffConfig, error) {
	cfg, ok := s.tariffs[tenantID]
	if !ok {
		return billing.TariffConfig{}, billing.ErrTariffNotFound
	}
	return cfg, nil
}

func (s *state) SaveTariff(_ context.Context, cfg billing.TariffConfig) error {
	s.tariffs[cfg.TenantID] = cfg
	return nil
}

// --- units ---

func (s *state) GetUnit(_ context.Context, tenantID billing.TenantID, unitID billing.UnitID) (billing.Unit, error) {
	u, ok := s.units[unitKey{tenantID, unitID}]
	if !ok {
		return billing.Unit{}, billing.ErrUnitNotFound
	}
	return u, nil
}

func (s *state) ListUnits(_ context.Context, tenantID billing.TenantID) ([]billing.Unit, error) {
	var out []billing.Unit
	for k, u := range s.units {
		if k.TenantID == tenantID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) SaveUnit(_ context.Context, u billing.Unit) error {
	s.units[unitKey{u.TenantID, u.ID}] = u
	return nil
}

// --- readings and adjustments ---

func (s *state) SaveReading(_ context.Context, r billing.MeterReading) error {
	k := readingKey{periodKey{unitKey{r.TenantID, r.UnitID}, r.Period}, r.Kind}
	if _, exists := s.readings[k]; exists {
		return billing.ErrDuplicateReading
	}
	s.readings[k] = r
	return nil
}

func (s *state) ListReadings(_ context.Context, tenantID billing.TenantID, period billing.Period) ([]billing.MeterReading, error) {
	var out []billing.MeterReading
	for k, r := range s.readings {
		if k.TenantID == tenantID && k.Period == period {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitID != out[j].UnitID {
			return out[i].UnitID < out[j].UnitID
		}
		return out[i].Kind < out[j].Kind
	})
	return out, nil
}

func (s *state) SaveAdjustment(_ context.Context, a billing.BillingAdjustment) error {
	s.adjustments[periodKey{unitKey{a.TenantID, a.UnitID}, a.Period}] = a
	return nil
}

func (s *state) ListAdjustments(_ context.Context, tenantID billing.TenantID, period billing.Period) ([]billing.BillingAdjustment, error) {
	var out []billing.BillingAdjustment
	for k, a := range s.adjustments {
		if k.TenantID == tenantID && k.Period == period {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out, nil
}

// --- advance balances ---

func (s *state) GetAdvance(_ context.Context, tenantID billing.TenantID, unitID billing.UnitID) (billing.AdvanceBalance, error) {
	a, ok := s.advances[unitKey{tenantID, unitID}]
	if !ok {
		return billing.AdvanceBalance{TenantID: tenantID, UnitID: unitID}, nil
	}
	return a, nil
}

func (s *state) ListAdvances(_ context.Context, tenantID billing.TenantID) ([]billing.AdvanceBalance, error) {
	var out []billing.AdvanceBalance
	for k, a := range s.advances {
		if k.TenantID == tenantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out, nil
}

func (s *state) SaveAdvance(_ context.Context, a billing.AdvanceBalance) error {
	s.advances[unitKey{a.TenantID, a.UnitID}] = a
	return nil
}

// --- bills ---

func (s *state) GetBill(_ context.Context, tenantID billing.TenantID, unitID billing.UnitID, period billing.Period) (billing.Bill, error) {
	id, ok := s.billIndex[periodKey{unitKey{tenantID, unitID}, period}]
	if !ok {
		return billing.Bill{}, billing.ErrBillNotFound
	}
	return s.bills[id], nil
}

func (s *state) GetBillByID(_ context.Context, tenantID billing.TenantID, billID billing.BillID) (billing.Bill, error) {
	b, ok := s.bills[billID]
	if !ok || b.TenantID != tenantID {
		return billing.Bill{}, billing.ErrBillNotFound
	}
	return b, nil
}

func (s *state) ListUnitBills(_ context.Context, tenantID billing.TenantID, unitID billing.UnitID) ([]billing.Bill, error) {
	var out []billing.Bill
	for _, b := range s.bills {
		if b.TenantID == tenantID && b.UnitID == unitID {
			out = append(out, b)
		}
	}
	sortBills(out)
	return out, nil
}

func (s *state) ListTenantBills(_ context.Context, tenantID billing.TenantID) ([]billing.Bill, error) {
	var out []billing.Bill
	for _, b := range s.bills {
		if b.TenantID == tenantID {
			out = append(out, b)
		}
	}
	sortBills(out)
	return out, nil
}

func sortBills(bills []billing.Bill) {
	sort.Slice(bills, func(i, j int) bool {
		if bills[i].UnitID != bills[j].UnitID {
			return bills[i].UnitID < bills[j].UnitID
		}
		return bills[i].Period.Before(bills[j].Period)
	})
}

func (s *state) CreateBill(_ context.Context, b billing.Bill) error {
	k := periodKey{unitKey{b.TenantID, b.UnitID}, b.Period}
	if existing, ok := s.billIndex[k]; ok {
		return &billing.DuplicateBillError{UnitID: b.UnitID, Period: b.Period, BillID: existing}
	}
	s.bills[b.ID] = b
	s.billIndex[k] = b.ID
	return nil
}

func (s *state) UpdateBill(_ context.Context, b billing.Bill) error {
	current, ok := s.bills[b.ID]
	if !ok || current.TenantID != b.TenantID {
		return billing.ErrBillNotFound
	}
	s.bills[b.ID] = b
	return nil
}

func (s *state) DeleteBill(_ context.Context, tenantID billing.TenantID, billID billing.BillID) error {
	b, ok := s.bills[billID]
	if !ok || b.TenantID != tenantID {
		return billing.ErrBillNotFound
	}
	delete(s.bills, billID)
	delete(s.billIndex, periodKey{unitKey{b.TenantID, b.UnitID}, b.Period})
	return nil
}

// --- payments ---

func (s *state) CreatePayment(_ context.Context, p billing.Payment) error {
	if p.Reference != "" {
		k := referenceKey{unitKey{p.TenantID, p.UnitID}, p.Reference}
		if _, exists := s.paymentRefs[k]; exists {
			return billing.ErrDuplicatePayment
		}
		s.paymentRefs[k] = p.ID
	}
	s.payments[p.ID] = p
	return nil
}

func (s *state) GetPayment(_ context.Context, tenantID billing.TenantID, paymentID billing.PaymentID) (billing.Payment, error) {
	p, ok := s.payments[paymentID]
	if !ok || p.TenantID != tenantID {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	return p, nil
}

func (s *state) ListPayments(_ context.Context, tenantID billing.TenantID, unitID billing.UnitID) ([]billing.Payment, error) {
	var out []billing.Payment
	for _, p := range s.payments {
		if p.TenantID == tenantID && p.UnitID == unitID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaidAt.Equal(out[j].PaidAt) {
			return out[i].PaidAt.Before(out[j].PaidAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) CreateBillPayments(_ context.Context, lines []billing.BillPayment) error {
	s.billPayments = append(s.billPayments, lines...)
	return nil
}

func (s *state) ListBillPaymentsByBill(_ context.Context, tenantID billing.TenantID, billID billing.BillID) ([]billing.BillPayment, error) {
	var out []billing.BillPayment
	for _, l := range s.billPayments {
		if l.TenantID == tenantID && l.BillID == billID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *state) ListBillPaymentsByPayment(_ context.Context, tenantID billing.TenantID, paymentID billing.PaymentID) ([]billing.BillPayment, error) {
	var out []billing.BillPayment
	for _, l := range s.billPayments {
		if l.TenantID == tenantID && l.PaymentID == paymentID {
			out = append(out, l)
		}
	}
	return out, nil
}

// --- audit ---

func (s *state) AppendAudit(_ context.Context, e billing.AuditEntry) error {
	s.audit = append(s.audit, e)
	return nil
}

func (s *state) ListAudit(_ context.Context, tenantID billing.TenantID, unitID billing.UnitID) ([]billing.AuditEntry, error) {
	var out []billing.AuditEntry
	for _, e := range s.audit {
		if e.TenantID == tenantID && (unitID == "" || e.UnitID == unitID) {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ billing.Store = (*state)(nil)
