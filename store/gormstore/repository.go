package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/warp/condo-soa/billing"
)

// repository implements billing.Store over a *gorm.DB, which may be a transaction.
type repository struct {
	db *gorm.DB
}

// =============================================================================
// TARIFF AND UNITS
// =============================================================================

func (r repository) GetTariff(ctx context.Context, tenantID billing.TenantID) (billing.TariffConfig, error) {
	var m tariffModel
	err := r.db.WithContext(ctx).Where("tenant_id = ?", string(tenantID)).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return billing.TariffConfig{}, billing.ErrTariffNotFound
	}
	if err != nil {
		return billing.TariffConfig{}, fmt.Errorf("get tariff: %w", err)
	}
	return m.toDomain()
}

func (r repository) SaveTariff(ctx context.Context, cfg billing.TariffConfig) error {
	m, err := tariffFromDomain(cfg)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("save tariff: %w", err)
	}
	return nil
}

func (r repository) GetUnit(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) (billing.Unit, error) {
	var m unitModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", string(tenantID), string(unitID)).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return billing.Unit{}, billing.ErrUnitNotFound
	}
	if err != nil {
		return billing.Unit{}, fmt.Errorf("get unit: %w", err)
	}
	return m.toDomain(), nil
}

func (r repository) ListUnits(ctx context.Context, tenantID billing.TenantID) ([]billing.Unit, error) {
	var models []unitModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", string(tenantID)).
		Order("code ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	out := make([]billing.Unit, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (r repository) SaveUnit(ctx context.Context, u billing.Unit) error {
	m := unitFromDomain(u)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("save unit: %w", err)
	}
	return nil
}

// =============================================================================
// READINGS AND ADJUSTMENTS
// =============================================================================

func (r repository) SaveReading(ctx context.Context, reading billing.MeterReading) error {
	m := readingModel{
		TenantID: string(reading.TenantID),
		UnitID:   string(reading.UnitID),
		Period:   reading.Period.String(),
		Kind:     string(reading.Kind),
		Previous: reading.Previous,
		Present:  reading.Present,
	}
	err := r.db.WithContext(ctx).Create(&m).Error
	if isDuplicate(err) {
		return billing.ErrDuplicateReading
	}
	if err != nil {
		return fmt.Errorf("save reading: %w", err)
	}
	return nil
}

func (r repository) ListReadings(ctx context.Context, tenantID billing.TenantID, period billing.Period) ([]billing.MeterReading, error) {
	var models []readingModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND period = ?", string(tenantID), period.String()).
		Order("unit_id ASC, kind ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	out := make([]billing.MeterReading, 0, len(models))
	for _, m := range models {
		reading, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, reading)
	}
	return out, nil
}

func (r repository) SaveAdjustment(ctx context.Context, a billing.BillingAdjustment) error {
	m := adjustmentModel{
		TenantID:          string(a.TenantID),
		UnitID:            string(a.UnitID),
		Period:            a.Period.String(),
		SpecialAssessment: a.SpecialAssessment,
		Discount:          a.Discount,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("save adjustment: %w", err)
	}
	return nil
}

func (r repository) ListAdjustments(ctx context.Context, tenantID billing.TenantID, period billing.Period) ([]billing.BillingAdjustment, error) {
	var models []adjustmentModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND period = ?", string(tenantID), period.String()).
		Order("unit_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	out := make([]billing.BillingAdjustment, len(models))
	for i, m := range models {
		out[i] = billing.BillingAdjustment{
			TenantID:          tenantID,
			UnitID:            billing.UnitID(m.UnitID),
			Period:            period,
			SpecialAssessment: m.SpecialAssessment,
			Discount:          m.Discount,
		}
	}
	return out, nil
}

// =============================================================================
// ADVANCE BALANCES
// =============================================================================

func (r repository) GetAdvance(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) (billing.AdvanceBalance, error) {
	var m advanceModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND unit_id = ?", string(tenantID), string(unitID)).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return billing.AdvanceBalance{TenantID: tenantID, UnitID: unitID}, nil
	}
	if err != nil {
		return billing.AdvanceBalance{}, fmt.Errorf("get advance balance: %w", err)
	}
	return m.toDomain(), nil
}

func (r repository) ListAdvances(ctx context.Context, tenantID billing.TenantID) ([]billing.AdvanceBalance, error) {
	var models []advanceModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", string(tenantID)).
		Order("unit_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list advance balances: %w", err)
	}
	out := make([]billing.AdvanceBalance, len(models))
	for i, m := range models {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (r repository) SaveAdvance(ctx context.Context, a billing.AdvanceBalance) error {
	m := advanceModel{
		TenantID:  string(a.TenantID),
		UnitID:    string(a.UnitID),
		Dues:      a.Dues,
		Utilities: a.Utilities,
		UpdatedAt: a.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("save advance balance: %w", err)
	}
	return nil
}

// =============================================================================
// BILLS
// =============================================================================

func (r repository) findBill(ctx context.Context, query string, args ...any) (billing.Bill, error) {
	var m billModel
	err := r.db.WithContext(ctx).Where(query, args...).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return billing.Bill{}, billing.ErrBillNotFound
	}
	if err != nil {
		return billing.Bill{}, fmt.Errorf("get bill: %w", err)
	}
	return m.toDomain()
}

func (r repository) listBills(ctx context.Context, order string, query string, args ...any) ([]billing.Bill, error) {
	var models []billModel
	if err := r.db.WithContext(ctx).Where(query, args...).Order(order).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	out := make([]billing.Bill, 0, len(models))
	for _, m := range models {
		b, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (r repository) GetBill(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID, period billing.Period) (billing.Bill, error) {
	return r.findBill(ctx, "tenant_id = ? AND unit_id = ? AND period = ?", string(tenantID), string(unitID), period.String())
}

func (r repository) GetBillByID(ctx context.Context, tenantID billing.TenantID, billID billing.BillID) (billing.Bill, error) {
	return r.findBill(ctx, "tenant_id = ? AND id = ?", string(tenantID), string(billID))
}

func (r repository) ListUnitBills(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) ([]billing.Bill, error) {
	return r.listBills(ctx, "period ASC", "tenant_id = ? AND unit_id = ?", string(tenantID), string(unitID))
}

func (r repository) ListTenantBills(ctx context.Context, tenantID billing.TenantID) ([]billing.Bill, error) {
	return r.listBills(ctx, "unit_id ASC, period ASC", "tenant_id = ?", string(tenantID))
}

func (r repository) CreateBill(ctx context.Context, b billing.Bill) error {
	m, err := billFromDomain(b)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Create(&m).Error
	if isDuplicate(err) {
		dup := &billing.DuplicateBillError{UnitID: b.UnitID, Period: b.Period}
		if existing, getErr := r.GetBill(ctx, b.TenantID, b.UnitID, b.Period); getErr == nil {
			dup.BillID = existing.ID
		}
		return dup
	}
	if err != nil {
		return fmt.Errorf("create bill: %w", err)
	}
	return nil
}

// UpdateBill persists a bill's settlement state: PaidAmount, Balance, Status
// and UpdatedAt.
func (r repository) UpdateBill(ctx context.Context, b billing.Bill) error {
	res := r.db.WithContext(ctx).
		Model(&billModel{}).
		Where("tenant_id = ? AND id = ?", string(b.TenantID), string(b.ID)).
		Updates(map[string]any{
			"paid_amount": b.PaidAmount,
			"balance":     b.Balance,
			"status":      string(b.Status),
			"updated_at":  b.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update bill: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return billing.ErrBillNotFound
	}
	return nil
}

func (r repository) DeleteBill(ctx context.Context, tenantID billing.TenantID, billID billing.BillID) error {
	res := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", string(tenantID), string(billID)).
		Delete(&billModel{})
	if res.Error != nil {
		return fmt.Errorf("delete bill: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return billing.ErrBillNotFound
	}
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (r repository) CreatePayment(ctx context.Context, p billing.Payment) error {
	m, err := paymentFromDomain(p)
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).Create(&m).Error
	if isDuplicate(err) {
		return billing.ErrDuplicatePayment
	}
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (r repository) GetPayment(ctx context.Context, tenantID billing.TenantID, paymentID billing.PaymentID) (billing.Payment, error) {
	var m paymentModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", string(tenantID), string(paymentID)).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	if err != nil {
		return billing.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return m.toDomain()
}

func (r repository) ListPayments(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) ([]billing.Payment, error) {
	var models []paymentModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND unit_id = ?", string(tenantID), string(unitID)).
		Order("paid_at ASC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out := make([]billing.Payment, 0, len(models))
	for _, m := range models {
		p, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// CreateBillPayments inserts one payment's lines in allocation order.
func (r repository) CreateBillPayments(ctx context.Context, lines []billing.BillPayment) error {
	if len(lines) == 0 {
		return nil
	}
	models := make([]billPaymentModel, len(lines))
	for i, l := range lines {
		raw, err := json.Marshal(l.Breakdown)
		if err != nil {
			return fmt.Errorf("encode breakdown: %w", err)
		}
		models[i] = billPaymentModel{
			ID:            l.ID,
			Seq:           int64(i),
			TenantID:      string(l.TenantID),
			PaymentID:     string(l.PaymentID),
			BillID:        string(l.BillID),
			Amount:        l.Amount,
			BreakdownJSON: string(raw),
			CreatedAt:     l.CreatedAt,
		}
	}
	if err := r.db.WithContext(ctx).Create(&models).Error; err != nil {
		return fmt.Errorf("create bill payments: %w", err)
	}
	return nil
}

func (r repository) listBillPayments(ctx context.Context, order string, query string, args ...any) ([]billing.BillPayment, error) {
	var models []billPaymentModel
	if err := r.db.WithContext(ctx).Where(query, args...).Order(order).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list bill payments: %w", err)
	}
	out := make([]billing.BillPayment, 0, len(models))
	for _, m := range models {
		l, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (r repository) ListBillPaymentsByBill(ctx context.Context, tenantID billing.TenantID, billID billing.BillID) ([]billing.BillPayment, error) {
	return r.listBillPayments(ctx, "created_at ASC, seq ASC", "tenant_id = ? AND bill_id = ?", string(tenantID), string(billID))
}

func (r repository) ListBillPaymentsByPayment(ctx context.Context, tenantID billing.TenantID, paymentID billing.PaymentID) ([]billing.BillPayment, error) {
	return r.listBillPayments(ctx, "seq ASC", "tenant_id = ? AND payment_id = ?", string(tenantID), string(paymentID))
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AppendAudit numbers entries per tenant so entries sharing a timestamp keep
// their insertion order.
func (r repository) AppendAudit(ctx context.Context, e billing.AuditEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}

	var last int64
	err = r.db.WithContext(ctx).Model(&auditModel{}).
		Where("tenant_id = ?", string(e.TenantID)).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error
	if err != nil {
		return fmt.Errorf("read audit sequence: %w", err)
	}

	m := auditModel{
		ID:          e.ID,
		Seq:         last + 1,
		TenantID:    string(e.TenantID),
		UnitID:      string(e.UnitID),
		Action:      string(e.Action),
		Timestamp:   e.Timestamp,
		PayloadJSON: string(payload),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the unit's entries oldest first, or the tenant's when unitID is empty.
func (r repository) ListAudit(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) ([]billing.AuditEntry, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ?", string(tenantID))
	if unitID != "" {
		q = q.Where("unit_id = ?", string(unitID))
	}
	var models []auditModel
	if err := q.Order("seq ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	out := make([]billing.AuditEntry, 0, len(models))
	for _, m := range models {
		e := billing.AuditEntry{
			ID:        m.ID,
			TenantID:  billing.TenantID(m.TenantID),
			UnitID:    billing.UnitID(m.UnitID),
			Action:    billing.AuditAction(m.Action),
			Timestamp: m.Timestamp.UTC(),
		}
		if m.PayloadJSON != "" && m.PayloadJSON != "null" {
			if err := json.Unmarshal([]byte(m.PayloadJSON), &e.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, nil
}
