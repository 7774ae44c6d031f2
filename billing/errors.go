/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store implementations and the API layer map onto these.

ERROR CATEGORIES:
  1. Conflict errors - regeneration and duplicate records
  2. Validation errors - malformed amounts, periods and tariffs
  3. Lookup errors - missing units, bills and tariffs

NOT ERRORS:
  A missing reading is a Warning. A draw beyond the available advance is
  clamped. Payment excess is credited to the advance balance.

SEE ALSO:
  - service.go: returns these errors
  - api/handlers.go: maps them to HTTP status codes
*/
package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrBillExists is returned when generating a unit+period that already has a bill.
	ErrBillExists = errors.New("bill already exists for period")

	// ErrBillHasPayments is returned when deleting a bill with a non-zero paid amount.
	ErrBillHasPayments = errors.New("bill has payments applied")

	ErrBillNotFound    = errors.New("bill not found")
	ErrUnitNotFound    = errors.New("unit not found")
	ErrTariffNotFound  = errors.New("tariff not configured")
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrInvalidAmount is returned for negative or otherwise unusable amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidPeriod is returned for a malformed billing period.
	ErrInvalidPeriod = errors.New("invalid billing period")

	// ErrInvalidTariff is returned when a tariff fails validation.
	ErrInvalidTariff = errors.New("invalid tariff")

	// ErrInvalidUnit is returned when a unit fails validation.
	ErrInvalidUnit = errors.New("invalid unit")

	// ErrInvalidReading is returned for an unknown reading kind or a negative meter value.
	ErrInvalidReading = errors.New("invalid meter reading")

	// ErrDuplicateReading is returned for a second reading of the same kind for a unit+period.
	ErrDuplicateReading = errors.New("reading already recorded for period")

	// ErrDuplicatePayment is returned when a payment reference is replayed for a unit.
	ErrDuplicatePayment = errors.New("payment reference already recorded")

	// ErrLockNotAcquired is returned when the per-unit exclusive section is held elsewhere.
	ErrLockNotAcquired = errors.New("unit is locked by another operation")

	// ErrWarningsNotAcknowledged is returned when generation would commit a bill
	// carrying warnings the caller did not acknowledge.
	ErrWarningsNotAcknowledged = errors.New("bill warnings not acknowledged")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateBillError identifies the unit and period that already has a bill.
type DuplicateBillError struct {
	UnitID UnitID
	Period Period
	BillID BillID
}

func (e *DuplicateBillError) Error() string {
	return fmt.Sprintf("bill already exists for unit %s period %s (bill: %s)", e.UnitID, e.Period, e.BillID)
}

func (e *DuplicateBillError) Unwrap() error {
	return ErrBillExists
}

// ProtectedBillError is returned when deleting a bill that has payments.
type ProtectedBillError struct {
	BillID     BillID
	PaidAmount decimal.Decimal
}

func (e *ProtectedBillError) Error() string {
	return fmt.Sprintf("bill %s has %s paid and cannot be deleted", e.BillID, e.PaidAmount.StringFixed(2))
}

func (e *ProtectedBillError) Unwrap() error {
	return ErrBillHasPayments
}

// UnacknowledgedWarningsError lists the warnings that blocked a generation.
type UnacknowledgedWarningsError struct {
	UnitID   UnitID
	Warnings []Warning
}

func (e *UnacknowledgedWarningsError) Error() string {
	codes := make([]string, len(e.Warnings))
	for i, w := range e.Warnings {
		codes[i] = string(w.Code)
	}
	return fmt.Sprintf("unit %s: warnings not acknowledged: %s", e.UnitID, strings.Join(codes, ", "))
}

func (e *UnacknowledgedWarningsError) Unwrap() error {
	return ErrWarningsNotAcknowledged
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidTariff) ||
		errors.Is(err, ErrInvalidUnit) ||
		errors.Is(err, ErrInvalidReading) ||
		errors.Is(err, ErrWarningsNotAcknowledged)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBillNotFound) ||
		errors.Is(err, ErrUnitNotFound) ||
		errors.Is(err, ErrTariffNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsConflict returns true if the error conflicts with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrBillExists) ||
		errors.Is(err, ErrBillHasPayments) ||
		errors.Is(err, ErrDuplicateReading) ||
		errors.Is(err, ErrDuplicatePayment) ||
		errors.Is(err, ErrLockNotAcquired)
}
