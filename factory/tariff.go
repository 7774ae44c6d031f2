/*
Package factory provides JSON to Go tariff conversion.

PURPOSE:
  Converts JSON tariff definitions into billing.TariffConfig snapshots. This
  lets an administrator configure rates without code changes, and gives the
  API a stable wire shape for GET/PUT /tariff.

JSON SCHEMA:
  {
    "electric_rate": "8.39",
    "electric_min_charge": "50",
    "dues_rate": "60",
    "parking_rate": "0",
    "penalty_rate": "0.10",
    "residential": {
      "thresholds": ["1", "6", "11", "21", "31", "41"],
      "rates": ["80", "200", "370", "40", "45", "50", "55"]
    },
    "commercial": { ... }
  }

  Amounts may be JSON numbers or strings. A missing "commercial" schedule
  falls back to the residential one. A zero or missing parking_rate bills
  parking at the dues rate.

USAGE:
  f := NewTariffFactory()
  cfg, err := f.ParseTariff("tenant-1", ReferenceTariffJSON())

SEE ALSO:
  - billing/tariff.go: TariffConfig and WaterSchedule
  - api/handlers.go: PUT /tariff decodes TariffJSON
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/condo-soa/billing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TariffJSON is the JSON representation of a tariff.
type TariffJSON struct {
	ElectricRate      decimal.Decimal    `json:"electric_rate"`
	ElectricMinCharge decimal.Decimal    `json:"electric_min_charge"`
	DuesRate          decimal.Decimal    `json:"dues_rate"`
	ParkingRate       decimal.Decimal    `json:"parking_rate"`
	PenaltyRate       decimal.Decimal    `json:"penalty_rate"`
	Residential       WaterScheduleJSON  `json:"residential"`
	Commercial        *WaterScheduleJSON `json:"commercial,omitempty"`
}

// WaterScheduleJSON lists six thresholds and seven tier rates.
type WaterScheduleJSON struct {
	Thresholds []decimal.Decimal `json:"thresholds"`
	Rates      []decimal.Decimal `json:"rates"`
}

// =============================================================================
// TARIFF FACTORY
// =============================================================================

// TariffFactory converts JSON tariffs to billing snapshots.
type TariffFactory struct{}

func NewTariffFactory() *TariffFactory {
	return &TariffFactory{}
}

// ParseTariff parses a JSON string into a validated TariffConfig for tenantID.
func (f *TariffFactory) ParseTariff(tenantID billing.TenantID, jsonStr string) (billing.TariffConfig, error) {
	var tj TariffJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return billing.TariffConfig{}, fmt.Errorf("%w: failed to parse tariff JSON: %v", billing.ErrInvalidTariff, err)
	}
	return f.FromJSON(tenantID, tj)
}

// FromJSON converts TariffJSON to a validated TariffConfig.
func (f *TariffFactory) FromJSON(tenantID billing.TenantID, tj TariffJSON) (billing.TariffConfig, error) {
	residential, err := parseSchedule(tj.Residential)
	if err != nil {
		return billing.TariffConfig{}, fmt.Errorf("residential: %w", err)
	}
	commercial := residential
	if tj.Commercial != nil {
		if commercial, err = parseSchedule(*tj.Commercial); err != nil {
			return billing.TariffConfig{}, fmt.Errorf("commercial: %w", err)
		}
	}

	cfg := billing.TariffConfig{
		TenantID:          tenantID,
		ElectricRate:      tj.ElectricRate,
		ElectricMinCharge: tj.ElectricMinCharge,
		DuesRate:          tj.DuesRate,
		ParkingRate:       tj.ParkingRate,
		PenaltyRate:       tj.PenaltyRate,
		Residential:       residential,
		Commercial:        commercial,
	}
	if err := cfg.Validate(); err != nil {
		return billing.TariffConfig{}, err
	}
	return cfg, nil
}

// ToJSON converts a TariffConfig to TariffJSON. Commercial is always set.
func (f *TariffFactory) ToJSON(cfg billing.TariffConfig) TariffJSON {
	commercial := scheduleToJSON(cfg.Commercial)
	return TariffJSON{
		ElectricRate:      cfg.ElectricRate,
		ElectricMinCharge: cfg.ElectricMinCharge,
		DuesRate:          cfg.DuesRate,
		ParkingRate:       cfg.ParkingRate,
		PenaltyRate:       cfg.PenaltyRate,
		Residential:       scheduleToJSON(cfg.Residential),
		Commercial:        &commercial,
	}
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseSchedule(sj WaterScheduleJSON) (billing.WaterSchedule, error) {
	var s billing.WaterSchedule
	if len(sj.Thresholds) != len(s.Thresholds) {
		return s, fmt.Errorf("%w: want %d thresholds, got %d", billing.ErrInvalidTariff, len(s.Thresholds), len(sj.Thresholds))
	}
	if len(sj.Rates) != len(s.Rates) {
		return s, fmt.Errorf("%w: want %d rates, got %d", billing.ErrInvalidTariff, len(s.Rates), len(sj.Rates))
	}
	copy(s.Thresholds[:], sj.Thresholds)
	copy(s.Rates[:], sj.Rates)
	return s, nil
}

func scheduleToJSON(s billing.WaterSchedule) WaterScheduleJSON {
	return WaterScheduleJSON{
		Thresholds: append([]decimal.Decimal(nil), s.Thresholds[:]...),
		Rates:      append([]decimal.Decimal(nil), s.Rates[:]...),
	}
}

// =============================================================================
// PRESETS
// =============================================================================

// ReferenceTariffJSON is the reference tariff: 8.39/kWh with a 50.00 floor,
// 60.00/sqm dues, 10% monthly penalty and the canonical residential water
// schedule. Commercial units use the same schedule until one is configured.
func ReferenceTariffJSON() string {
	return `{
  "electric_rate": "8.39",
  "electric_min_charge": "50",
  "dues_rate": "60",
  "parking_rate": "0",
  "penalty_rate": "0.10",
  "residential": {
    "thresholds": ["1", "6", "11", "21", "31", "41"],
    "rates": ["80", "200", "370", "40", "45", "50", "55"]
  }
}`
}
