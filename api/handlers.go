/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing service via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to billing.Service.

ENDPOINTS (under /api/tenants/{tenantID}):
  Settings:
    GET    /tariff                           Current tariff snapshot
    PUT    /tariff                           Replace tariff (factory.TariffJSON)
    GET    /units                            List units
    POST   /units                            Create or replace unit
    GET    /units/{unitID}                   Unit details

  Inputs:
    POST   /readings                         Record a meter reading
    POST   /adjustments                      Special assessment and discount

  Bills:
    GET    /units/{unitID}/bills             Bills oldest first
    GET    /units/{unitID}/bills/preview     Assemble without writing
    POST   /bills/generate                   Generate a period
    DELETE /units/{unitID}/bills/{period}    Delete an unpaid bill
    POST   /bills/mark-overdue               Move past-due bills to OVERDUE

  Payments:
    POST   /units/{unitID}/payments          Record and allocate a payment
    GET    /payments/{paymentID}/allocations Lines produced by a payment

  Account:
    GET    /units/{unitID}/advance           Advance balance
    POST   /units/{unitID}/advance           Credit an advance bucket
    GET    /units/{unitID}/statement         Statement of account
    GET    /units/{unitID}/audit             Audit trail

ERROR HANDLING:
  Errors are returned as ErrorResponse JSON with status from the billing
  error helpers:
  - 400: billing.IsClientError, malformed body, failed validation
  - 404: billing.IsNotFound
  - 409: billing.IsConflict (existing bill, paid bill, replayed reference, unit locked)
  - 500: everything else, logged at Error

SECURITY NOTE:
  No authentication or authorization. Tenant isolation relies on the
  tenantID path segment only.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Reference scenario loader
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/condo-soa/billing"
	"github.com/warp/condo-soa/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports store health for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *billing.Service
	Tariffs *factory.TariffFactory
	Health  Pinger

	validate *validator.Validate
	log      *zap.Logger
}

// NewHandler creates a handler over svc. health may be nil.
func NewHandler(svc *billing.Service, health Pinger, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Service:  svc,
		Tariffs:  factory.NewTariffFactory(),
		Health:   health,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

func tenantParam(r *http.Request) billing.TenantID {
	return billing.TenantID(chi.URLParam(r, "tenantID"))
}

func unitParam(r *http.Request) billing.UnitID {
	return billing.UnitID(chi.URLParam(r, "unitID"))
}

// =============================================================================
// TARIFF
// =============================================================================

func (h *Handler) GetTariff(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Service.GetTariff(r.Context(), tenantParam(r))
	if err != nil {
		h.fail(w, r, "Failed to get tariff", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Tariffs.ToJSON(cfg))
}

// PutTariff replaces the tenant's tariff snapshot.
func (h *Handler) PutTariff(w http.ResponseWriter, r *http.Request) {
	var req factory.TariffJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cfg, err := h.Tariffs.FromJSON(tenantParam(r), req)
	if err != nil {
		h.fail(w, r, "Invalid tariff", err)
		return
	}
	if cfg, err = h.Service.SaveTariff(r.Context(), cfg); err != nil {
		h.fail(w, r, "Failed to save tariff", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Tariffs.ToJSON(cfg))
}

// =============================================================================
// UNITS
// =============================================================================

func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.Service.ListUnits(r.Context(), tenantParam(r))
	if err != nil {
		h.fail(w, r, "Failed to list units", err)
		return
	}
	dtos := make([]UnitDTO, len(units))
	for i, u := range units {
		dtos[i] = toUnitDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.GetUnit(r.Context(), tenantParam(r), unitParam(r))
	if err != nil {
		h.fail(w, r, "Failed to get unit", err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitDTO(u))
}

func (h *Handler) SaveUnit(w http.ResponseWriter, r *http.Request) {
	var req SaveUnitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	u, err := h.Service.SaveUnit(r.Context(), billing.Unit{
		ID:          billing.UnitID(req.ID),
		TenantID:    tenantParam(r),
		Code:        req.Code,
		Type:        billing.UnitType(req.Type),
		Area:        req.Area,
		ParkingArea: req.ParkingArea,
		OwnerName:   req.OwnerName,
	})
	if err != nil {
		h.fail(w, r, "Failed to save unit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitDTO(u))
}

// =============================================================================
// READINGS AND ADJUSTMENTS
// =============================================================================

func (h *Handler) RecordReading(w http.ResponseWriter, r *http.Request) {
	var req RecordReadingRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	period, err := billing.ParsePeriod(req.Period)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	reading := billing.MeterReading{
		TenantID: tenantParam(r),
		UnitID:   billing.UnitID(req.UnitID),
		Period:   period,
		Kind:     billing.ReadingKind(req.Kind),
		Previous: req.Previous,
		Present:  req.Present,
	}
	if err := h.Service.RecordReading(r.Context(), reading); err != nil {
		h.fail(w, r, "Failed to record reading", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"unit_id":     req.UnitID,
		"period":      period.String(),
		"kind":        req.Kind,
		"consumption": reading.Consumption().String(),
	})
}

func (h *Handler) SaveAdjustment(w http.ResponseWriter, r *http.Request) {
	var req SaveAdjustmentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	period, err := billing.ParsePeriod(req.Period)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	err = h.Service.SaveAdjustment(r.Context(), billing.BillingAdjustment{
		TenantID:          tenantParam(r),
		UnitID:            billing.UnitID(req.UnitID),
		Period:            period,
		SpecialAssessment: req.SpecialAssessment,
		Discount:          req.Discount,
	})
	if err != nil {
		h.fail(w, r, "Failed to save adjustment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"unit_id":            req.UnitID,
		"period":             period.String(),
		"special_assessment": money(req.SpecialAssessment),
		"discount":           money(req.Discount),
	})
}

// =============================================================================
// BILLS
// =============================================================================

func (h *Handler) ListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := h.Service.ListUnitBills(r.Context(), tenantParam(r), unitParam(r))
	if err != nil {
		h.fail(w, r, "Failed to list bills", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTOs(bills))
}

// PreviewBill assembles ?period= with an optional ?statement_date=. Nothing is written.
func (h *Handler) PreviewBill(w http.ResponseWriter, r *http.Request) {
	period, err := billing.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	statementDate, err := parseOptionalDate(r.URL.Query().Get("statement_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid statement_date format (use YYYY-MM-DD)", err)
		return
	}

	p, err := h.Service.PreviewBill(r.Context(), tenantParam(r), unitParam(r), period, statementDate)
	if err != nil {
		h.fail(w, r, "Failed to preview bill", err)
		return
	}
	dto := PreviewDTO{
		Bill:     toBillDTO(p.Bill),
		Warnings: p.Warnings,
		Penalty:  p.Penalty,
	}
	if dto.Warnings == nil {
		dto.Warnings = []billing.Warning{}
	}
	if p.Existing != nil {
		existing := toBillDTO(*p.Existing)
		dto.Existing = &existing
	}
	writeJSON(w, http.StatusOK, dto)
}

// GenerateBills runs generation for the period. Per-unit failures are reported
// in the body; only run-level failures change the status.
func (h *Handler) GenerateBills(w http.ResponseWriter, r *http.Request) {
	var req GenerateBillsRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	period, err := billing.ParsePeriod(req.Period)
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	statementDate, err := parseOptionalDate(req.StatementDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid statement_date format (use YYYY-MM-DD)", err)
		return
	}
	unitIDs := make([]billing.UnitID, len(req.UnitIDs))
	for i, id := range req.UnitIDs {
		unitIDs[i] = billing.UnitID(id)
	}

	report, err := h.Service.GenerateBills(r.Context(), billing.GenerateRequest{
		TenantID:            tenantParam(r),
		Period:              period,
		StatementDate:       statementDate,
		UnitIDs:             unitIDs,
		AcknowledgeWarnings: req.AcknowledgeWarnings,
		DryRun:              req.DryRun,
	})
	if err != nil {
		h.fail(w, r, "Failed to generate bills", err)
		return
	}
	status := http.StatusOK
	if report.Generated > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, toGenerateResponse(report))
}

// DeleteBill removes an unpaid bill so the period can be regenerated.
func (h *Handler) DeleteBill(w http.ResponseWriter, r *http.Request) {
	period, err := billing.ParsePeriod(chi.URLParam(r, "period"))
	if err != nil {
		h.fail(w, r, "Invalid period", err)
		return
	}
	b, err := h.Service.DeleteBill(r.Context(), tenantParam(r), unitParam(r), period)
	if err != nil {
		h.fail(w, r, "Failed to delete bill", err)
		return
	}
	writeJSON(w, http.StatusOK, toBillDTO(b))
}

// MarkOverdue moves past-due bills to OVERDUE as of ?as_of= (default today).
func (h *Handler) MarkOverdue(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseOptionalDate(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	n, err := h.Service.MarkOverdue(r.Context(), tenantParam(r), asOf)
	if err != nil {
		h.fail(w, r, "Failed to mark bills overdue", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"as_of":  formatDate(asOf),
		"marked": n,
	})
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	paidAt, err := parseOptionalDate(req.PaidAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid paid_at format (use YYYY-MM-DD)", err)
		return
	}
	preq := billing.PaymentRequest{
		TenantID:  tenantParam(r),
		UnitID:    unitParam(r),
		Amount:    req.Amount,
		PaidAt:    paidAt,
		Method:    req.Method,
		Reference: req.Reference,
	}
	if req.BillingPeriod != "" {
		period, err := billing.ParsePeriod(req.BillingPeriod)
		if err != nil {
			h.fail(w, r, "Invalid billing_period", err)
			return
		}
		preq.Period = &period
	}
	if req.Breakdown != nil {
		b := req.Breakdown.toDomain()
		preq.Breakdown = &b
	}

	res, err := h.Service.RecordPayment(r.Context(), preq)
	if err != nil {
		h.fail(w, r, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, PaymentResponse{
		Payment:     toPaymentDTO(res.Payment),
		Allocations: toAllocationDTOs(res.Lines),
		Bills:       toBillDTOs(res.Bills),
		Excess:      money(res.Excess),
		Advance:     toAdvanceDTO(res.Advance),
	})
}

func (h *Handler) GetPaymentAllocations(w http.ResponseWriter, r *http.Request) {
	p, lines, err := h.Service.PaymentAllocations(r.Context(), tenantParam(r), billing.PaymentID(chi.URLParam(r, "paymentID")))
	if err != nil {
		h.fail(w, r, "Failed to get payment allocations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payment":     toPaymentDTO(p),
		"allocations": toAllocationDTOs(lines),
	})
}

// =============================================================================
// ACCOUNT
// =============================================================================

func (h *Handler) GetAdvance(w http.ResponseWriter, r *http.Request) {
	a, err := h.Service.GetAdvance(r.Context(), tenantParam(r), unitParam(r))
	if err != nil {
		h.fail(w, r, "Failed to get advance balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdvanceDTO(a))
}

func (h *Handler) CreditAdvance(w http.ResponseWriter, r *http.Request) {
	var req CreditAdvanceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	a, err := h.Service.CreditAdvance(r.Context(), tenantParam(r), unitParam(r), billing.Bucket(req.Bucket), req.Amount)
	if err != nil {
		h.fail(w, r, "Failed to credit advance balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdvanceDTO(a))
}

func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	st, err := h.Service.Statement(r.Context(), tenantParam(r), unitParam(r))
	if err != nil {
		h.fail(w, r, "Failed to build statement", err)
		return
	}
	dto := StatementDTO{
		Unit:        toUnitDTO(st.Unit),
		Lines:       make([]StatementLineDTO, len(st.Lines)),
		Payments:    toPaymentDTOs(st.Payments),
		Outstanding: money(st.Outstanding),
		Advance:     toAdvanceDTO(st.Advance),
	}
	for i, l := range st.Lines {
		dto.Lines[i] = StatementLineDTO{Bill: toBillDTO(l.Bill), Allocations: toAllocationDTOs(l.Payments)}
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.ListAudit(r.Context(), tenantParam(r), unitParam(r))
	if err != nil {
		h.fail(w, r, "Failed to list audit log", err)
		return
	}
	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = map[string]any{
			"id":        e.ID,
			"action":    string(e.Action),
			"timestamp": e.Timestamp.Format(time.RFC3339),
			"payload":   e.Payload,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Healthz reports 200 when the store answers.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps billing errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case billing.IsNotFound(err):
		return http.StatusNotFound
	case billing.IsConflict(err):
		return http.StatusConflict
	case billing.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(message,
			zap.String("tenant_id", string(tenantParam(r))),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, message, err)
}

// decodeAndValidate decodes the JSON body into dst and runs its validate tags.
// It writes a 400 and returns false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			err = fmt.Errorf("field %s failed %s validation", fe.Field(), fe.Tag())
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}
