/*
Package billing provides the condominium billing calculation and settlement engine.

PURPOSE:
  This package turns meter readings, tariff configuration, adjustments and payment
  history into a monetary bill, and allocates incoming payments against outstanding
  bills. Any unapplied surplus is held as a per-unit advance balance that later bills
  draw down.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: decimal amounts rounded to centavos
  - Identifiers: type-safe tenant/unit/bill/payment IDs
  - Records: Unit, MeterReading, BillingAdjustment, Bill, Payment, BillPayment
  - Warning: non-fatal issues surfaced to the operator before committing a bill

DESIGN PRINCIPLES:
  1. Precision: every amount is a decimal.Decimal, never a float64
  2. Purity: calculators take an explicit TariffConfig snapshot, no global state
  3. Immutability: Payments and BillPayments are never modified after creation
  4. Auditability: a bill's PaidAmount is always the sum of its BillPayment rows

USAGE:
  bill, warnings := billing.Assemble(billing.AssembleInput{
      Tariff:  tariff,
      Unit:    unit,
      Period:  billing.MustParsePeriod("2025-03"),
      ...
  })

SEE ALSO:
  - tariff.go: electric, water, dues and parking charges
  - penalty.go: compounding interest fold
  - assembler.go: bill assembly
  - allocator.go: payment allocation
  - advance.go: advance balance ledger
  - service.go: transactional orchestration over a Store
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// MoneyPlaces is the number of decimal places every monetary component is rounded to.
const MoneyPlaces = 2

// RoundMoney rounds half away from zero to MoneyPlaces, matching spreadsheet ROUND().
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MustParseDecimal parses s or returns zero.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal { return decimal.Min(a, b) }

func clampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type UnitID string
type BillID string
type PaymentID string

// =============================================================================
// UNIT
// =============================================================================

// UnitType selects the water schedule applied to a unit.
type UnitType string

const (
	UnitResidential UnitType = "residential"
	UnitCommercial  UnitType = "commercial"
)

// Valid reports whether t is a known unit type.
func (t UnitType) Valid() bool {
	return t == UnitResidential || t == UnitCommercial
}

// Unit is the billable condominium unit. Area and ParkingArea are in square meters.
type Unit struct {
	ID          UnitID
	TenantID    TenantID
	Code        string
	Type        UnitType
	Area        decimal.Decimal
	ParkingArea decimal.Decimal
	OwnerName   string
}

// =============================================================================
// METER READINGS AND ADJUSTMENTS
// =============================================================================

type ReadingKind string

const (
	ReadingElectric ReadingKind = "electric"
	ReadingWater    ReadingKind = "water"
)

func (k ReadingKind) Valid() bool {
	return k == ReadingElectric || k == ReadingWater
}

// MeterReading is one meter's readings for a unit and billing period.
type MeterReading struct {
	TenantID TenantID
	UnitID   UnitID
	Period   Period
	Kind     ReadingKind
	Previous decimal.Decimal
	Present  decimal.Decimal
}

// Consumption returns Present - Previous. It may be negative for a bad entry;
// the assembler flags that case and bills zero.
func (r MeterReading) Consumption() decimal.Decimal {
	return r.Present.Sub(r.Previous)
}

// BillingAdjustment carries the optional per-period special assessment and discount.
type BillingAdjustment struct {
	TenantID          TenantID
	UnitID            UnitID
	Period            Period
	SpecialAssessment decimal.Decimal
	Discount          decimal.Decimal
}

// =============================================================================
// BILL
// =============================================================================

type BillStatus string

const (
	StatusDraft   BillStatus = "DRAFT"
	StatusUnpaid  BillStatus = "UNPAID"
	StatusPartial BillStatus = "PARTIAL"
	StatusPaid    BillStatus = "PAID"
	StatusOverdue BillStatus = "OVERDUE"
)

// IsOpen reports whether a bill in this status still carries a balance forward.
func (s BillStatus) IsOpen() bool {
	return s == StatusUnpaid || s == StatusPartial || s == StatusOverdue
}

// Bill is the statement for one unit and one billing period.
//
// INVARIANTS:
//   - Balance == TotalAmount - PaidAmount
//   - PaidAmount == sum of this bill's BillPayment amounts
//   - AdvanceDuesApplied <= Dues, AdvanceUtilitiesApplied <= Electric + Water
//
// A bill is never recomputed in place. Corrections delete and regenerate it,
// which is only allowed while PaidAmount is zero.
type Bill struct {
	ID            BillID
	TenantID      TenantID
	UnitID        UnitID
	Period        Period
	PeriodFrom    time.Time
	PeriodTo      time.Time
	StatementDate time.Time
	DueDate       time.Time

	ElectricConsumption decimal.Decimal
	WaterConsumption    decimal.Decimal

	Electric                decimal.Decimal
	Water                   decimal.Decimal
	Dues                    decimal.Decimal
	Parking                 decimal.Decimal
	SpecialAssessment       decimal.Decimal
	Discount                decimal.Decimal
	AdvanceDuesApplied      decimal.Decimal
	AdvanceUtilitiesApplied decimal.Decimal
	PreviousBalance         decimal.Decimal
	Penalty                 decimal.Decimal

	TotalAmount decimal.Decimal
	PaidAmount  decimal.Decimal
	Balance     decimal.Decimal
	Status      BillStatus

	Warnings  []Warning
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Utilities returns the electric plus water charges of the bill.
func (b Bill) Utilities() decimal.Decimal {
	return b.Electric.Add(b.Water)
}

// settle recomputes Balance and Status after PaidAmount changed.
func (b *Bill) settle() {
	b.Balance = b.TotalAmount.Sub(b.PaidAmount)
	switch {
	case !b.Balance.IsPositive():
		b.Status = StatusPaid
	case b.Balance.LessThan(b.TotalAmount):
		b.Status = StatusPartial
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

// Breakdown splits an amount across bill components.
type Breakdown struct {
	Electric          decimal.Decimal `json:"electric"`
	Water             decimal.Decimal `json:"water"`
	Dues              decimal.Decimal `json:"dues"`
	Penalty           decimal.Decimal `json:"penalty"`
	SpecialAssessment decimal.Decimal `json:"special_assessment"`
	Other             decimal.Decimal `json:"other"`
}

// Total sums every component of the breakdown.
func (b Breakdown) Total() decimal.Decimal {
	return b.Electric.Add(b.Water).Add(b.Dues).Add(b.Penalty).Add(b.SpecialAssessment).Add(b.Other)
}

// components lists the fields in the order residues and discounts apply.
func (b *Breakdown) components() []*decimal.Decimal {
	return []*decimal.Decimal{&b.Other, &b.Dues, &b.SpecialAssessment, &b.Water, &b.Electric, &b.Penalty}
}

// Payment is one payment event for a unit. Immutable once created.
type Payment struct {
	ID        PaymentID
	TenantID  TenantID
	UnitID    UnitID
	Amount    decimal.Decimal
	Breakdown *Breakdown
	PaidAt    time.Time
	Method    string
	Reference string

	// Period is the billing period the payer intended to settle, if any.
	Period *Period

	CreatedAt time.Time
}

// BillPayment is the portion of one payment applied to one bill. Never updated.
type BillPayment struct {
	ID        string
	TenantID  TenantID
	PaymentID PaymentID
	BillID    BillID
	Amount    decimal.Decimal
	Breakdown Breakdown
	CreatedAt time.Time
}

// =============================================================================
// WARNINGS
// =============================================================================

type WarningCode string

const (
	WarnMissingElectric  WarningCode = "missing_electric_reading"
	WarnMissingWater     WarningCode = "missing_water_reading"
	WarnNegativeElectric WarningCode = "negative_electric_consumption"
	WarnNegativeWater    WarningCode = "negative_water_consumption"
)

// Warning is a non-fatal issue found while assembling a bill.
type Warning struct {
	Code    WarningCode `json:"code"`
	UnitID  UnitID      `json:"unit_id"`
	Message string      `json:"message"`
}

func (w Warning) String() string { return w.Message }
