/*
service.go - Transactional orchestration of the billing engine

PURPOSE:
  The pure components (tariff, penalty, assembler, allocator, advance) never
  touch storage. Service loads their inputs from a TxStore, runs them, and
  persists the results.

EXCLUSIVE SECTIONS:
  Every mutation touching one unit runs inside withUnit:

    1. acquire the unit's lock (lock.Memory in-process, lock.Redis across instances)
    2. Store.WithTx
    3. re-read advance balance and bills inside the transaction
    4. compute, write, commit or roll back as one unit of work

  Bill generation and payment allocation for the same unit therefore never
  interleave, and a failed allocation leaves no BillPayment row, bill update,
  payment row or ledger credit behind.

FILES:
  - service.go:   construction, exclusive section, record CRUD
  - generate.go:  preview, generation, deletion
  - settle.go:    payments, overdue marking, statement of account
*/
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/condo-soa/clock"
	"github.com/warp/condo-soa/lock"
	"github.com/warp/condo-soa/metrics"
)

// =============================================================================
// SERVICE
// =============================================================================

// Options configures a Service. Only Store is required.
type Options struct {
	Store        TxStore
	Locker       lock.Locker
	Logger       *zap.Logger
	Metrics      *metrics.BillingMetrics
	Clock        clock.Clock
	DueDays      int
	ExcessPolicy ExcessPolicy
	// LockTimeout bounds how long a caller waits for a unit's exclusive section.
	LockTimeout time.Duration
	NewID       func() string
}

type Service struct {
	store        TxStore
	locker       lock.Locker
	log          *zap.Logger
	metrics      *metrics.BillingMetrics
	clock        clock.Clock
	dueDays      int
	excessPolicy ExcessPolicy
	lockTimeout  time.Duration
	newID        func() string
}

func NewService(opts Options) *Service {
	s := &Service{
		store:        opts.Store,
		locker:       opts.Locker,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		clock:        opts.Clock,
		dueDays:      opts.DueDays,
		excessPolicy: opts.ExcessPolicy,
		lockTimeout:  opts.LockTimeout,
		newID:        opts.NewID,
	}
	if s.locker == nil {
		s.locker = lock.NewMemory()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.dueDays <= 0 {
		s.dueDays = DefaultDueDays
	}
	if s.excessPolicy == "" {
		s.excessPolicy = DefaultExcessPolicy
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// ExcessPolicy returns the policy applied to payment excess.
func (s *Service) ExcessPolicy() ExcessPolicy { return s.excessPolicy }

// withUnit runs fn inside the unit's exclusive section.
func (s *Service) withUnit(ctx context.Context, tenantID TenantID, unitID UnitID, fn func(Store) error) error {
	lockCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	unlock, err := s.locker.Lock(lockCtx, "unit:"+string(tenantID)+":"+string(unitID))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockNotAcquired, err)
	}
	defer unlock()

	return s.store.WithTx(ctx, fn)
}

func (s *Service) observe(op string, start time.Time, err error) {
	s.metrics.ObserveOperation(op, outcome(err), s.clock.Now().Sub(start))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrLockNotAcquired):
		return metrics.OutcomeLocked
	case IsConflict(err):
		return metrics.OutcomeConflict
	case IsNotFound(err):
		return metrics.OutcomeNotFound
	case IsClientError(err):
		return metrics.OutcomeClient
	default:
		return metrics.OutcomeError
	}
}

func (s *Service) audit(ctx context.Context, st Store, tenantID TenantID, unitID UnitID, action AuditAction, payload map[string]any) error {
	return st.AppendAudit(ctx, AuditEntry{
		ID:        s.newID(),
		TenantID:  tenantID,
		UnitID:    unitID,
		Action:    action,
		Timestamp: s.clock.Now(),
		Payload:   payload,
	})
}

// =============================================================================
// RECORDS - Minimal CRUD the engine reads from
// =============================================================================

func (s *Service) GetTariff(ctx context.Context, tenantID TenantID) (TariffConfig, error) {
	return s.store.GetTariff(ctx, tenantID)
}

// SaveTariff validates and stores the tenant's tariff snapshot.
func (s *Service) SaveTariff(ctx context.Context, cfg TariffConfig) (TariffConfig, error) {
	if err := cfg.Validate(); err != nil {
		return TariffConfig{}, err
	}
	if err := s.store.SaveTariff(ctx, cfg); err != nil {
		return TariffConfig{}, fmt.Errorf("save tariff: %w", err)
	}
	s.log.Info("tariff saved", zap.String("tenant_id", string(cfg.TenantID)))
	return cfg, nil
}

// SaveUnit creates or replaces a unit, assigning an ID when empty.
func (s *Service) SaveUnit(ctx context.Context, u Unit) (Unit, error) {
	if u.Type == "" {
		u.Type = UnitResidential
	}
	if !u.Type.Valid() {
		return Unit{}, fmt.Errorf("%w: type %q", ErrInvalidUnit, u.Type)
	}
	if u.Area.IsNegative() || u.ParkingArea.IsNegative() {
		return Unit{}, fmt.Errorf("%w: area must not be negative", ErrInvalidUnit)
	}
	if u.ID == "" {
		u.ID = UnitID(s.newID())
	}
	if err := s.store.SaveUnit(ctx, u); err != nil {
		return Unit{}, fmt.Errorf("save unit: %w", err)
	}
	return u, nil
}

func (s *Service) GetUnit(ctx context.Context, tenantID TenantID, unitID UnitID) (Unit, error) {
	return s.store.GetUnit(ctx, tenantID, unitID)
}

func (s *Service) ListUnits(ctx context.Context, tenantID TenantID) ([]Unit, error) {
	return s.store.ListUnits(ctx, tenantID)
}

// RecordReading stores one meter reading. The unit must exist.
func (s *Service) RecordReading(ctx context.Context, r MeterReading) error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidReading, r.Kind)
	}
	if r.Previous.IsNegative() || r.Present.IsNegative() {
		return fmt.Errorf("%w: meter values must not be negative", ErrInvalidReading)
	}
	if _, err := s.store.GetUnit(ctx, r.TenantID, r.UnitID); err != nil {
		return err
	}
	return s.store.SaveReading(ctx, r)
}

// SaveAdjustment stores the unit+period special assessment and discount.
func (s *Service) SaveAdjustment(ctx context.Context, a BillingAdjustment) error {
	if a.SpecialAssessment.IsNegative() || a.Discount.IsNegative() {
		return fmt.Errorf("%w: adjustments must not be negative", ErrInvalidAmount)
	}
	if _, err := s.store.GetUnit(ctx, a.TenantID, a.UnitID); err != nil {
		return err
	}
	return s.store.SaveAdjustment(ctx, a)
}

func (s *Service) ListUnitBills(ctx context.Context, tenantID TenantID, unitID UnitID) ([]Bill, error) {
	return s.store.ListUnitBills(ctx, tenantID, unitID)
}

func (s *Service) GetAdvance(ctx context.Context, tenantID TenantID, unitID UnitID) (AdvanceBalance, error) {
	if _, err := s.store.GetUnit(ctx, tenantID, unitID); err != nil {
		return AdvanceBalance{}, err
	}
	return NewAdvanceLedger(s.store).Get(ctx, tenantID, unitID)
}

// CreditAdvance credits one bucket of a unit's advance balance directly.
func (s *Service) CreditAdvance(ctx context.Context, tenantID TenantID, unitID UnitID, b Bucket, amount decimal.Decimal) (AdvanceBalance, error) {
	if _, err := s.store.GetUnit(ctx, tenantID, unitID); err != nil {
		return AdvanceBalance{}, err
	}
	var after AdvanceBalance
	err := s.withUnit(ctx, tenantID, unitID, func(tx Store) error {
		var err error
		after, err = NewAdvanceLedger(tx).Credit(ctx, tenantID, unitID, b, amount)
		return err
	})
	if err != nil {
		return AdvanceBalance{}, err
	}
	s.log.Info("advance credited",
		zap.String("tenant_id", string(tenantID)),
		zap.String("unit_id", string(unitID)),
		zap.String("bucket", string(b)),
		zap.String("amount", amount.StringFixed(2)),
	)
	return after, nil
}

func (s *Service) ListAudit(ctx context.Context, tenantID TenantID, unitID UnitID) ([]AuditEntry, error) {
	return s.store.ListAudit(ctx, tenantID, unitID)
}
