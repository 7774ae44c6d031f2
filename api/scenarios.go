/*
scenarios.go - Reference scenario loader for demos and smoke tests

PURPOSE:
  Populates a tenant with the reference tariff, one 45 sqm residential unit
  and its March 2025 readings (250 kWh, 15 m3). Previewing March afterwards
  yields electric 2097.50, water 570.00, dues 2700.00, total 5367.50.

USAGE VIA API:
  POST /api/scenarios/reference
  {"tenant_id": "demo"}

NOTE:
  Loading twice for the same tenant returns 409 from the duplicate readings.
  Only use in development/demo environments.

SEE ALSO:
  - factory/tariff.go: ReferenceTariffJSON
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/condo-soa/billing"
	"github.com/warp/condo-soa/factory"
)

const (
	referenceTenant = "demo"
	referenceUnit   = "unit-101"
	referencePeriod = "2025-03"
)

// LoadReferenceScenarioRequest selects the tenant to populate.
type LoadReferenceScenarioRequest struct {
	TenantID string `json:"tenant_id" validate:"omitempty,max=64"`
}

// LoadReferenceScenario installs the reference scenario and returns the March preview.
func (h *Handler) LoadReferenceScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadReferenceScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}
	tenantID := billing.TenantID(req.TenantID)
	if tenantID == "" {
		tenantID = referenceTenant
	}

	ctx := r.Context()
	cfg, err := h.Tariffs.ParseTariff(tenantID, factory.ReferenceTariffJSON())
	if err != nil {
		h.fail(w, r, "Failed to parse reference tariff", err)
		return
	}
	if _, err := h.Service.SaveTariff(ctx, cfg); err != nil {
		h.fail(w, r, "Failed to save tariff", err)
		return
	}
	if _, err := h.Service.SaveUnit(ctx, billing.Unit{
		ID:        referenceUnit,
		TenantID:  tenantID,
		Code:      "101",
		Type:      billing.UnitResidential,
		Area:      decimal.NewFromInt(45),
		OwnerName: "Reference Owner",
	}); err != nil {
		h.fail(w, r, "Failed to save unit", err)
		return
	}

	period := billing.MustParsePeriod(referencePeriod)
	for _, reading := range []billing.MeterReading{
		{Kind: billing.ReadingElectric, Previous: decimal.NewFromInt(1000), Present: decimal.NewFromInt(1250)},
		{Kind: billing.ReadingWater, Previous: decimal.NewFromInt(200), Present: decimal.NewFromInt(215)},
	} {
		reading.TenantID = tenantID
		reading.UnitID = referenceUnit
		reading.Period = period
		if err := h.Service.RecordReading(ctx, reading); err != nil {
			h.fail(w, r, "Failed to record reading", err)
			return
		}
	}

	p, err := h.Service.PreviewBill(ctx, tenantID, referenceUnit, period, time.Time{})
	if err != nil {
		h.fail(w, r, "Failed to preview bill", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"tenant_id": string(tenantID),
		"unit_id":   referenceUnit,
		"period":    period.String(),
		"preview":   toBillDTO(p.Bill),
	})
}
