/*
store.go - Persistence interface for billing records

PURPOSE:
  Defines the boundary between the engine and the settings, readings and
  bills stores. Different implementations can use SQLite, PostgreSQL, or
  in-memory storage.

KEY INTERFACES:
  Store:   CRUD over tariff, units, readings, adjustments, advance balances,
           bills, payments, bill payments and the audit log
  TxStore: Transactional operations (atomic multi-table writes)

UNIQUENESS CONTRACT:
  - one Bill per (tenant, unit, period): CreateBill returns *DuplicateBillError
  - one MeterReading per (tenant, unit, period, kind): ErrDuplicateReading
  - one Payment per (tenant, unit, reference) when reference is set: ErrDuplicatePayment

APPEND-ONLY RECORDS:
  Payments, BillPayments and AuditEntries have no update or delete methods.
  DeleteBill refuses bills with BillPayment rows at the service level.

IMPLEMENTATIONS:
  - billing/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: database/sql over SQLite
  - store/gormstore: GORM over PostgreSQL (or SQLite in tests)

SEE ALSO:
  - service.go: runs every unit mutation inside WithTx
*/
package billing

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// GetTariff returns ErrTariffNotFound when the tenant has no tariff.
	GetTariff(ctx context.Context, tenantID TenantID) (TariffConfig, error)
	SaveTariff(ctx context.Context, cfg TariffConfig) error

	// GetUnit returns ErrUnitNotFound for an unknown unit.
	GetUnit(ctx context.Context, tenantID TenantID, unitID UnitID) (Unit, error)
	ListUnits(ctx context.Context, tenantID TenantID) ([]Unit, error)
	SaveUnit(ctx context.Context, unit Unit) error

	// SaveReading rejects a second reading of the same kind with ErrDuplicateReading.
	SaveReading(ctx context.Context, r MeterReading) error
	ListReadings(ctx context.Context, tenantID TenantID, period Period) ([]MeterReading, error)

	// SaveAdjustment inserts or replaces the unit+period adjustment.
	SaveAdjustment(ctx context.Context, a BillingAdjustment) error
	ListAdjustments(ctx context.Context, tenantID TenantID, period Period) ([]BillingAdjustment, error)

	// GetAdvance returns a zero balance when the unit has none.
	GetAdvance(ctx context.Context, tenantID TenantID, unitID UnitID) (AdvanceBalance, error)
	ListAdvances(ctx context.Context, tenantID TenantID) ([]AdvanceBalance, error)
	SaveAdvance(ctx context.Context, a AdvanceBalance) error

	// GetBill returns ErrBillNotFound when the unit has no bill for period.
	GetBill(ctx context.Context, tenantID TenantID, unitID UnitID, period Period) (Bill, error)
	GetBillByID(ctx context.Context, tenantID TenantID, billID BillID) (Bill, error)
	// ListUnitBills returns the unit's bills oldest period first.
	ListUnitBills(ctx context.Context, tenantID TenantID, unitID UnitID) ([]Bill, error)
	// ListTenantBills returns every bill of the tenant ordered by unit then period.
	ListTenantBills(ctx context.Context, tenantID TenantID) ([]Bill, error)
	CreateBill(ctx context.Context, b Bill) error
	UpdateBill(ctx context.Context, b Bill) error
	DeleteBill(ctx context.Context, tenantID TenantID, billID BillID) error

	// CreatePayment returns ErrDuplicatePayment for a replayed reference.
	CreatePayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, tenantID TenantID, paymentID PaymentID) (Payment, error)
	ListPayments(ctx context.Context, tenantID TenantID, unitID UnitID) ([]Payment, error)

	CreateBillPayments(ctx context.Context, lines []BillPayment) error
	ListBillPaymentsByBill(ctx context.Context, tenantID TenantID, billID BillID) ([]BillPayment, error)
	ListBillPaymentsByPayment(ctx context.Context, tenantID TenantID, paymentID PaymentID) ([]BillPayment, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, tenantID TenantID, unitID UnitID) ([]AuditEntry, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Who changed which bill when
// =============================================================================

type AuditAction string

const (
	AuditBillGenerated   AuditAction = "bill_generated"
	AuditBillDeleted     AuditAction = "bill_deleted"
	AuditPaymentRecorded AuditAction = "payment_recorded"
	AuditExcessCredited  AuditAction = "excess_credited"
	AuditMarkedOverdue   AuditAction = "marked_overdue"
)

// AuditEntry records one engine mutation. Append-only.
type AuditEntry struct {
	ID        string
	TenantID  TenantID
	UnitID    UnitID
	Action    AuditAction
	Timestamp time.Time
	Payload   map[string]any
}
