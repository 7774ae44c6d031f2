package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2), msgAndArgs...)
}

// referenceTariff is the residential reference configuration: electric 8.39/kWh
// with a 50.00 floor, dues 60/sqm, 10% penalty.
func referenceTariff() TariffConfig {
	return TariffConfig{
		TenantID:          "tenant-1",
		ElectricRate:      d("8.39"),
		ElectricMinCharge: d("50"),
		DuesRate:          d("60"),
		PenaltyRate:       d("0.10"),
		Residential:       ReferenceResidentialSchedule(),
		Commercial: NewWaterSchedule(
			[6]int64{1, 6, 11, 21, 31, 41},
			[7]int64{100, 250, 450, 50, 55, 60, 65},
		),
	}
}

func referenceUnit() Unit {
	return Unit{
		ID:       "unit-101",
		TenantID: "tenant-1",
		Code:     "101",
		Type:     UnitResidential,
		Area:     d("45"),
	}
}

func reading(kind ReadingKind, period Period, prev, present string) *MeterReading {
	return &MeterReading{
		TenantID: "tenant-1",
		UnitID:   "unit-101",
		Period:   period,
		Kind:     kind,
		Previous: d(prev),
		Present:  d(present),
	}
}
