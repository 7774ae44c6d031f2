package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/condo-soa/billing"
)

// =============================================================================
// PERSISTENCE MODELS
// =============================================================================

type tariffModel struct {
	TenantID          string          `gorm:"primaryKey;type:varchar(64)"`
	ElectricRate      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ElectricMinCharge decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DuesRate          decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ParkingRate       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	PenaltyRate       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ResidentialJSON   string          `gorm:"type:text;not null"`
	CommercialJSON    string          `gorm:"type:text;not null"`
	UpdatedAt         time.Time
}

func (tariffModel) TableName() string { return "tariffs" }

func tariffFromDomain(cfg billing.TariffConfig) (tariffModel, error) {
	residential, err := json.Marshal(cfg.Residential)
	if err != nil {
		return tariffModel{}, fmt.Errorf("encode residential schedule: %w", err)
	}
	commercial, err := json.Marshal(cfg.Commercial)
	if err != nil {
		return tariffModel{}, fmt.Errorf("encode commercial schedule: %w", err)
	}
	return tariffModel{
		TenantID:          string(cfg.TenantID),
		ElectricRate:      cfg.ElectricRate,
		ElectricMinCharge: cfg.ElectricMinCharge,
		DuesRate:          cfg.DuesRate,
		ParkingRate:       cfg.ParkingRate,
		PenaltyRate:       cfg.PenaltyRate,
		ResidentialJSON:   string(residential),
		CommercialJSON:    string(commercial),
	}, nil
}

func (m tariffModel) toDomain() (billing.TariffConfig, error) {
	cfg := billing.TariffConfig{
		TenantID:          billing.TenantID(m.TenantID),
		ElectricRate:      m.ElectricRate,
		ElectricMinCharge: m.ElectricMinCharge,
		DuesRate:          m.DuesRate,
		ParkingRate:       m.ParkingRate,
		PenaltyRate:       m.PenaltyRate,
	}
	if err := json.Unmarshal([]byte(m.ResidentialJSON), &cfg.Residential); err != nil {
		return cfg, fmt.Errorf("decode residential schedule: %w", err)
	}
	if err := json.Unmarshal([]byte(m.CommercialJSON), &cfg.Commercial); err != nil {
		return cfg, fmt.Errorf("decode commercial schedule: %w", err)
	}
	return cfg, nil
}

type unitModel struct {
	TenantID    string          `gorm:"primaryKey;type:varchar(64)"`
	ID          string          `gorm:"primaryKey;type:varchar(64)"`
	Code        string          `gorm:"type:varchar(32);not null;index"`
	Type        string          `gorm:"type:varchar(16);not null"`
	Area        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ParkingArea decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	OwnerName   string          `gorm:"type:varchar(255)"`
}

func (unitModel) TableName() string { return "units" }

func unitFromDomain(u billing.Unit) unitModel {
	return unitModel{
		TenantID:    string(u.TenantID),
		ID:          string(u.ID),
		Code:        u.Code,
		Type:        string(u.Type),
		Area:        u.Area,
		ParkingArea: u.ParkingArea,
		OwnerName:   u.OwnerName,
	}
}

func (m unitModel) toDomain() billing.Unit {
	return billing.Unit{
		ID:          billing.UnitID(m.ID),
		TenantID:    billing.TenantID(m.TenantID),
		Code:        m.Code,
		Type:        billing.UnitType(m.Type),
		Area:        m.Area,
		ParkingArea: m.ParkingArea,
		OwnerName:   m.OwnerName,
	}
}

type readingModel struct {
	TenantID string          `gorm:"primaryKey;type:varchar(64)"`
	UnitID   string          `gorm:"primaryKey;type:varchar(64)"`
	Period   string          `gorm:"primaryKey;type:char(7)"`
	Kind     string          `gorm:"primaryKey;type:varchar(16)"`
	Previous decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Present  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

func (readingModel) TableName() string { return "meter_readings" }

func (m readingModel) toDomain() (billing.MeterReading, error) {
	p, err := billing.ParsePeriod(m.Period)
	return billing.MeterReading{
		TenantID: billing.TenantID(m.TenantID),
		UnitID:   billing.UnitID(m.UnitID),
		Period:   p,
		Kind:     billing.ReadingKind(m.Kind),
		Previous: m.Previous,
		Present:  m.Present,
	}, err
}

type adjustmentModel struct {
	TenantID          string          `gorm:"primaryKey;type:varchar(64)"`
	UnitID            string          `gorm:"primaryKey;type:varchar(64)"`
	Period            string          `gorm:"primaryKey;type:char(7)"`
	SpecialAssessment decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Discount          decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

func (adjustmentModel) TableName() string { return "billing_adjustments" }

type advanceModel struct {
	TenantID  string          `gorm:"primaryKey;type:varchar(64)"`
	UnitID    string          `gorm:"primaryKey;type:varchar(64)"`
	Dues      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Utilities decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime:false"`
}

func (advanceModel) TableName() string { return "advance_balances" }

func (m advanceModel) toDomain() billing.AdvanceBalance {
	return billing.AdvanceBalance{
		TenantID:  billing.TenantID(m.TenantID),
		UnitID:    billing.UnitID(m.UnitID),
		Dues:      m.Dues,
		Utilities: m.Utilities,
		UpdatedAt: m.UpdatedAt,
	}
}

// billModel holds one bill. (tenant_id, unit_id, period) is unique.
type billModel struct {
	ID                      string          `gorm:"primaryKey;type:varchar(64)"`
	TenantID                string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_bills_unit_period,priority:1"`
	UnitID                  string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_bills_unit_period,priority:2"`
	Period                  string          `gorm:"type:char(7);not null;uniqueIndex:idx_bills_unit_period,priority:3"`
	PeriodFrom              time.Time       `gorm:"not null"`
	PeriodTo                time.Time       `gorm:"not null"`
	StatementDate           time.Time       `gorm:"not null"`
	DueDate                 time.Time       `gorm:"not null;index"`
	ElectricConsumption     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	WaterConsumption        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Electric                decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Water                   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Dues                    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Parking                 decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	SpecialAssessment       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Discount                decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	AdvanceDuesApplied      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	AdvanceUtilitiesApplied decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	PreviousBalance         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Penalty                 decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalAmount             decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaidAmount              decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Balance                 decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Status                  string          `gorm:"type:varchar(16);not null;index"`
	WarningsJSON            string          `gorm:"type:text"`
	CreatedAt               time.Time       `gorm:"autoCreateTime:false"`
	UpdatedAt               time.Time       `gorm:"autoUpdateTime:false"`
}

func (billModel) TableName() string { return "bills" }

func billFromDomain(b billing.Bill) (billModel, error) {
	m := billModel{
		ID:                      string(b.ID),
		TenantID:                string(b.TenantID),
		UnitID:                  string(b.UnitID),
		Period:                  b.Period.String(),
		PeriodFrom:              b.PeriodFrom,
		PeriodTo:                b.PeriodTo,
		StatementDate:           b.StatementDate,
		DueDate:                 b.DueDate,
		ElectricConsumption:     b.ElectricConsumption,
		WaterConsumption:        b.WaterConsumption,
		Electric:                b.Electric,
		Water:                   b.Water,
		Dues:                    b.Dues,
		Parking:                 b.Parking,
		SpecialAssessment:       b.SpecialAssessment,
		Discount:                b.Discount,
		AdvanceDuesApplied:      b.AdvanceDuesApplied,
		AdvanceUtilitiesApplied: b.AdvanceUtilitiesApplied,
		PreviousBalance:         b.PreviousBalance,
		Penalty:                 b.Penalty,
		TotalAmount:             b.TotalAmount,
		PaidAmount:              b.PaidAmount,
		Balance:                 b.Balance,
		Status:                  string(b.Status),
		CreatedAt:               b.CreatedAt,
		UpdatedAt:               b.UpdatedAt,
	}
	if len(b.Warnings) > 0 {
		raw, err := json.Marshal(b.Warnings)
		if err != nil {
			return m, fmt.Errorf("encode warnings: %w", err)
		}
		m.WarningsJSON = string(raw)
	}
	return m, nil
}

func (m billModel) toDomain() (billing.Bill, error) {
	p, err := billing.ParsePeriod(m.Period)
	if err != nil {
		return billing.Bill{}, err
	}
	b := billing.Bill{
		ID:                      billing.BillID(m.ID),
		TenantID:                billing.TenantID(m.TenantID),
		UnitID:                  billing.UnitID(m.UnitID),
		Period:                  p,
		PeriodFrom:              m.PeriodFrom.UTC(),
		PeriodTo:                m.PeriodTo.UTC(),
		StatementDate:           m.StatementDate.UTC(),
		DueDate:                 m.DueDate.UTC(),
		ElectricConsumption:     m.ElectricConsumption,
		WaterConsumption:        m.WaterConsumption,
		Electric:                m.Electric,
		Water:                   m.Water,
		Dues:                    m.Dues,
		Parking:                 m.Parking,
		SpecialAssessment:       m.SpecialAssessment,
		Discount:                m.Discount,
		AdvanceDuesApplied:      m.AdvanceDuesApplied,
		AdvanceUtilitiesApplied: m.AdvanceUtilitiesApplied,
		PreviousBalance:         m.PreviousBalance,
		Penalty:                 m.Penalty,
		TotalAmount:             m.TotalAmount,
		PaidAmount:              m.PaidAmount,
		Balance:                 m.Balance,
		Status:                  billing.BillStatus(m.Status),
		CreatedAt:               m.CreatedAt.UTC(),
		UpdatedAt:               m.UpdatedAt.UTC(),
	}
	if m.WarningsJSON != "" {
		if err := json.Unmarshal([]byte(m.WarningsJSON), &b.Warnings); err != nil {
			return b, fmt.Errorf("decode warnings: %w", err)
		}
	}
	return b, nil
}

// paymentModel is append-only. A non-null reference is unique per unit.
type paymentModel struct {
	ID            string          `gorm:"primaryKey;type:varchar(64)"`
	TenantID      string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_payments_reference,priority:1"`
	UnitID        string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_payments_reference,priority:2"`
	Reference     *string         `gorm:"type:varchar(128);uniqueIndex:idx_payments_reference,priority:3"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	BreakdownJSON *string         `gorm:"type:text"`
	PaidAt        time.Time       `gorm:"not null"`
	Method        string          `gorm:"type:varchar(32)"`
	Period        *string         `gorm:"type:char(7)"`
	CreatedAt     time.Time       `gorm:"autoCreateTime:false"`
}

func (paymentModel) TableName() string { return "payments" }

func paymentFromDomain(p billing.Payment) (paymentModel, error) {
	m := paymentModel{
		ID:        string(p.ID),
		TenantID:  string(p.TenantID),
		UnitID:    string(p.UnitID),
		Amount:    p.Amount,
		PaidAt:    p.PaidAt,
		Method:    p.Method,
		CreatedAt: p.CreatedAt,
	}
	if p.Reference != "" {
		ref := p.Reference
		m.Reference = &ref
	}
	if p.Period != nil {
		s := p.Period.String()
		m.Period = &s
	}
	if p.Breakdown != nil {
		raw, err := json.Marshal(p.Breakdown)
		if err != nil {
			return m, fmt.Errorf("encode breakdown: %w", err)
		}
		s := string(raw)
		m.BreakdownJSON = &s
	}
	return m, nil
}

func (m paymentModel) toDomain() (billing.Payment, error) {
	p := billing.Payment{
		ID:        billing.PaymentID(m.ID),
		TenantID:  billing.TenantID(m.TenantID),
		UnitID:    billing.UnitID(m.UnitID),
		Amount:    m.Amount,
		PaidAt:    m.PaidAt.UTC(),
		Method:    m.Method,
		CreatedAt: m.CreatedAt.UTC(),
	}
	if m.Reference != nil {
		p.Reference = *m.Reference
	}
	if m.Period != nil {
		period, err := billing.ParsePeriod(*m.Period)
		if err != nil {
			return p, err
		}
		p.Period = &period
	}
	if m.BreakdownJSON != nil {
		p.Breakdown = &billing.Breakdown{}
		if err := json.Unmarshal([]byte(*m.BreakdownJSON), p.Breakdown); err != nil {
			return p, fmt.Errorf("decode breakdown: %w", err)
		}
	}
	return p, nil
}

type billPaymentModel struct {
	ID            string          `gorm:"primaryKey;type:varchar(64)"`
	Seq           int64           `gorm:"not null;default:0"`
	TenantID      string          `gorm:"type:varchar(64);not null"`
	PaymentID     string          `gorm:"type:varchar(64);not null;index"`
	BillID        string          `gorm:"type:varchar(64);not null;index"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	BreakdownJSON string          `gorm:"type:text;not null"`
	CreatedAt     time.Time       `gorm:"autoCreateTime:false"`
}

func (billPaymentModel) TableName() string { return "bill_payments" }

func (m billPaymentModel) toDomain() (billing.BillPayment, error) {
	l := billing.BillPayment{
		ID:        m.ID,
		TenantID:  billing.TenantID(m.TenantID),
		PaymentID: billing.PaymentID(m.PaymentID),
		BillID:    billing.BillID(m.BillID),
		Amount:    m.Amount,
		CreatedAt: m.CreatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(m.BreakdownJSON), &l.Breakdown); err != nil {
		return l, fmt.Errorf("decode breakdown: %w", err)
	}
	return l, nil
}

type auditModel struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)"`
	Seq         int64     `gorm:"not null;default:0"`
	TenantID    string    `gorm:"type:varchar(64);not null;index:idx_audit_unit,priority:1"`
	UnitID      string    `gorm:"type:varchar(64);not null;index:idx_audit_unit,priority:2"`
	Action      string    `gorm:"type:varchar(32);not null"`
	Timestamp   time.Time `gorm:"not null"`
	PayloadJSON string    `gorm:"type:text"`
}

func (auditModel) TableName() string { return "audit_log" }

// allModels lists every table for AutoMigrate.
func allModels() []any {
	return []any{
		&tariffModel{},
		&unitModel{},
		&readingModel{},
		&adjustmentModel{},
		&advanceModel{},
		&billModel{},
		&paymentModel{},
		&billPaymentModel{},
		&auditModel{},
	}
}
