/*
tariff.go - Utility and dues charges

PURPOSE:
  Pure functions that price one unit-month of consumption and area against a
  TariffConfig snapshot. No state, no I/O.

WATER TIERS:
  Consumption is routed through a 7-tier schedule selected by unit type.
  Thresholds T1..T6 pick the branch; tiers 4-7 then subtract a FIXED offset
  from consumption and add a cumulative base:

    cons <= T1          R1
    T1 < cons < T2      R2
    T2 <= cons < T3     R3
    T3 <= cons < T4     (cons - 10) * R4 + base4
    T4 <= cons < T5     (cons - 20) * R5 + base5
    T5 <= cons < T6     (cons - 30) * R6 + base6
    cons >= T6          (cons - 40) * R7 + base7

  The offsets 10/20/30/40 are bound to the formula, not to T3..T6. Moving a
  threshold without moving the offsets changes which branch applies but not
  what the branch subtracts, which opens a gap or overlap at the moved
  boundary. Legacy statements depend on this exact arithmetic.

SEE ALSO:
  - assembler.go: combines these charges into a Bill
*/
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TARIFF CONFIG
// =============================================================================

// TariffConfig is the tenant-owned pricing snapshot. Read-only to the engine.
type TariffConfig struct {
	TenantID          TenantID
	ElectricRate      decimal.Decimal
	ElectricMinCharge decimal.Decimal
	DuesRate          decimal.Decimal
	ParkingRate       decimal.Decimal
	PenaltyRate       decimal.Decimal
	Residential       WaterSchedule
	Commercial        WaterSchedule
}

// EffectiveParkingRate is ParkingRate, or DuesRate when no parking rate is set.
func (c TariffConfig) EffectiveParkingRate() decimal.Decimal {
	if c.ParkingRate.IsZero() {
		return c.DuesRate
	}
	return c.ParkingRate
}

// ScheduleFor selects the water schedule for a unit type.
func (c TariffConfig) ScheduleFor(t UnitType) WaterSchedule {
	if t == UnitCommercial {
		return c.Commercial
	}
	return c.Residential
}

// Validate checks rates are non-negative and both schedules are well formed.
func (c TariffConfig) Validate() error {
	for name, v := range map[string]decimal.Decimal{
		"electric_rate":       c.ElectricRate,
		"electric_min_charge": c.ElectricMinCharge,
		"dues_rate":           c.DuesRate,
		"parking_rate":        c.ParkingRate,
		"penalty_rate":        c.PenaltyRate,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s is negative", ErrInvalidTariff, name)
		}
	}
	if err := c.Residential.Validate(); err != nil {
		return fmt.Errorf("residential: %w", err)
	}
	if err := c.Commercial.Validate(); err != nil {
		return fmt.Errorf("commercial: %w", err)
	}
	return nil
}

// =============================================================================
// WATER SCHEDULE
// =============================================================================

// WaterSchedule holds the configured thresholds and per-tier rates.
type WaterSchedule struct {
	Thresholds [6]decimal.Decimal
	Rates      [7]decimal.Decimal
}

// waterTierOffsets are subtracted from consumption in tiers 4..7. They are
// constants of the formula and deliberately not derived from Thresholds.
var waterTierOffsets = [4]decimal.Decimal{
	decimal.NewFromInt(10),
	decimal.NewFromInt(20),
	decimal.NewFromInt(30),
	decimal.NewFromInt(40),
}

// Validate requires strictly increasing thresholds and non-negative rates.
func (s WaterSchedule) Validate() error {
	for i := 1; i < len(s.Thresholds); i++ {
		if !s.Thresholds[i].GreaterThan(s.Thresholds[i-1]) {
			return fmt.Errorf("%w: threshold t%d must exceed t%d", ErrInvalidTariff, i+1, i)
		}
	}
	for i, r := range s.Rates {
		if r.IsNegative() {
			return fmt.Errorf("%w: rate r%d is negative", ErrInvalidTariff, i+1)
		}
	}
	return nil
}

// CompiledWaterSchedule is a schedule with its cumulative tier bases computed.
type CompiledWaterSchedule struct {
	WaterSchedule
	// Bases[i] is the amount carried into tier i+4.
	Bases [4]decimal.Decimal
}

// CompileWaterSchedule computes the cumulative bases once from R3 and the
// offsets table, so the bases cannot drift from the tier-3 rate:
//
//	base4 = R3
//	base5 = base4 + (20-10) * R4
//	base6 = base5 + (30-20) * R5
//	base7 = base6 + (40-30) * R6
func CompileWaterSchedule(s WaterSchedule) CompiledWaterSchedule {
	c := CompiledWaterSchedule{WaterSchedule: s}
	c.Bases[0] = s.Rates[2]
	for i := 1; i < len(c.Bases); i++ {
		span := waterTierOffsets[i].Sub(waterTierOffsets[i-1])
		c.Bases[i] = c.Bases[i-1].Add(span.Mul(s.Rates[i+2]))
	}
	return c
}

// Charge prices consumption against the compiled schedule.
func (c CompiledWaterSchedule) Charge(consumption decimal.Decimal) decimal.Decimal {
	cons := clampZero(consumption)
	t := c.Thresholds
	r := c.Rates

	switch {
	case cons.LessThanOrEqual(t[0]):
		return RoundMoney(r[0])
	case cons.LessThan(t[1]):
		return RoundMoney(r[1])
	case cons.LessThan(t[2]):
		return RoundMoney(r[2])
	}

	// Tiers 4..7: find the highest tier whose threshold has been reached.
	tier := 0
	for i := 3; i < len(t); i++ {
		if cons.GreaterThanOrEqual(t[i]) {
			tier = i - 2
		}
	}
	over := cons.Sub(waterTierOffsets[tier])
	return RoundMoney(over.Mul(r[tier+3]).Add(c.Bases[tier]))
}

// =============================================================================
// CHARGES
// =============================================================================

// ElectricCharge is max(round2(consumption * rate), minimum charge).
// The minimum is a floor, not a separate fee.
func ElectricCharge(consumption decimal.Decimal, cfg TariffConfig) decimal.Decimal {
	amount := RoundMoney(clampZero(consumption).Mul(cfg.ElectricRate))
	return decimal.Max(amount, RoundMoney(cfg.ElectricMinCharge))
}

// WaterCharge prices water consumption with the schedule for the unit type.
func WaterCharge(consumption decimal.Decimal, unitType UnitType, cfg TariffConfig) decimal.Decimal {
	return CompileWaterSchedule(cfg.ScheduleFor(unitType)).Charge(consumption)
}

// AssociationDues is round2(area * dues rate).
func AssociationDues(area decimal.Decimal, cfg TariffConfig) decimal.Decimal {
	return RoundMoney(area.Mul(cfg.DuesRate))
}

// ParkingFee is round2(parking area * effective parking rate).
func ParkingFee(parkingArea decimal.Decimal, cfg TariffConfig) decimal.Decimal {
	return RoundMoney(parkingArea.Mul(cfg.EffectiveParkingRate()))
}

// =============================================================================
// REFERENCE SCHEDULE
// =============================================================================

// ReferenceResidentialSchedule is the canonical residential schedule:
// t = 1, 6, 11, 21, 31, 41 and r = 80, 200, 370, 40, 45, 50, 55.
func ReferenceResidentialSchedule() WaterSchedule {
	return NewWaterSchedule(
		[6]int64{1, 6, 11, 21, 31, 41},
		[7]int64{80, 200, 370, 40, 45, 50, 55},
	)
}

// NewWaterSchedule builds a schedule from whole-number thresholds and rates.
func NewWaterSchedule(thresholds [6]int64, rates [7]int64) WaterSchedule {
	var s WaterSchedule
	for i, v := range thresholds {
		s.Thresholds[i] = decimal.NewFromInt(v)
	}
	for i, v := range rates {
		s.Rates[i] = decimal.NewFromInt(v)
	}
	return s
}
