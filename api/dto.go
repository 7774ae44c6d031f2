/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the billing domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are returned as strings with two decimals ("5367.50"). Request
  amounts accept JSON numbers or strings.

VALIDATION:
  Request types carry go-playground/validator tags, checked by decodeAndValidate
  in handlers.go. Amount signs are checked by the service, which owns the rule.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/tariff.go: TariffJSON, the tariff wire shape
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/condo-soa/billing"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SaveUnitRequest creates or replaces a unit.
type SaveUnitRequest struct {
	ID          string          `json:"id" validate:"omitempty,max=64"`
	Code        string          `json:"code" validate:"required,max=32"`
	Type        string          `json:"type" validate:"omitempty,oneof=residential commercial"`
	Area        decimal.Decimal `json:"area"`
	ParkingArea decimal.Decimal `json:"parking_area"`
	OwnerName   string          `json:"owner_name" validate:"max=128"`
}

// RecordReadingRequest records one meter reading.
type RecordReadingRequest struct {
	UnitID   string          `json:"unit_id" validate:"required,max=64"`
	Period   string          `json:"period" validate:"required,len=7"`
	Kind     string          `json:"kind" validate:"required,oneof=electric water"`
	Previous decimal.Decimal `json:"previous"`
	Present  decimal.Decimal `json:"present"`
}

// SaveAdjustmentRequest sets the special assessment and discount for a unit+period.
type SaveAdjustmentRequest struct {
	UnitID            string          `json:"unit_id" validate:"required,max=64"`
	Period            string          `json:"period" validate:"required,len=7"`
	SpecialAssessment decimal.Decimal `json:"special_assessment"`
	Discount          decimal.Decimal `json:"discount"`
}

// GenerateBillsRequest runs generation for a period.
type GenerateBillsRequest struct {
	Period              string   `json:"period" validate:"required,len=7"`
	StatementDate       string   `json:"statement_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	UnitIDs             []string `json:"unit_ids,omitempty" validate:"dive,required,max=64"`
	AcknowledgeWarnings bool     `json:"acknowledge_warnings"`
	DryRun              bool     `json:"dry_run"`
}

// RecordPaymentRequest records a payment for the unit in the URL.
type RecordPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaidAt        string          `json:"paid_at,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Method        string          `json:"method" validate:"max=32"`
	Reference     string          `json:"reference" validate:"max=128"`
	BillingPeriod string          `json:"billing_period,omitempty" validate:"omitempty,len=7"`
	Breakdown     *BreakdownDTO   `json:"breakdown,omitempty"`
}

// CreditAdvanceRequest credits one advance bucket directly.
type CreditAdvanceRequest struct {
	Bucket string          `json:"bucket" validate:"required,oneof=dues utilities"`
	Amount decimal.Decimal `json:"amount"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is returned for every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type UnitDTO struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Type        string `json:"type"`
	Area        string `json:"area"`
	ParkingArea string `json:"parking_area"`
	OwnerName   string `json:"owner_name,omitempty"`
}

// BillDTO is one bill with every component line.
type BillDTO struct {
	ID                      string            `json:"id,omitempty"`
	UnitID                  string            `json:"unit_id"`
	Period                  string            `json:"period"`
	PeriodFrom              string            `json:"period_from"`
	PeriodTo                string            `json:"period_to"`
	StatementDate           string            `json:"statement_date"`
	DueDate                 string            `json:"due_date"`
	ElectricConsumption     string            `json:"electric_consumption"`
	WaterConsumption        string            `json:"water_consumption"`
	Electric                string            `json:"electric"`
	Water                   string            `json:"water"`
	Dues                    string            `json:"dues"`
	Parking                 string            `json:"parking"`
	SpecialAssessment       string            `json:"special_assessment"`
	Discount                string            `json:"discount"`
	AdvanceDuesApplied      string            `json:"advance_dues_applied"`
	AdvanceUtilitiesApplied string            `json:"advance_utilities_applied"`
	PreviousBalance         string            `json:"previous_balance"`
	Penalty                 string            `json:"penalty"`
	TotalAmount             string            `json:"total_amount"`
	PaidAmount              string            `json:"paid_amount"`
	Balance                 string            `json:"balance"`
	Status                  string            `json:"status"`
	Warnings                []billing.Warning `json:"warnings"`
}

// PreviewDTO is an uncommitted bill with its penalty breakdown.
type PreviewDTO struct {
	Bill     BillDTO                `json:"bill"`
	Warnings []billing.Warning      `json:"warnings"`
	Penalty  billing.PenaltyAccrual `json:"penalty"`
	Existing *BillDTO               `json:"existing,omitempty"`
}

type UnitResultDTO struct {
	UnitID   string            `json:"unit_id"`
	UnitCode string            `json:"unit_code,omitempty"`
	Outcome  string            `json:"outcome"`
	Bill     *BillDTO          `json:"bill,omitempty"`
	Warnings []billing.Warning `json:"warnings,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// GenerateBillsResponse reports every selected unit's outcome.
type GenerateBillsResponse struct {
	Period    string          `json:"period"`
	Generated int             `json:"generated"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Results   []UnitResultDTO `json:"results"`
}

type BreakdownDTO struct {
	Electric          decimal.Decimal `json:"electric"`
	Water             decimal.Decimal `json:"water"`
	Dues              decimal.Decimal `json:"dues"`
	Penalty           decimal.Decimal `json:"penalty"`
	SpecialAssessment decimal.Decimal `json:"special_assessment"`
	Other             decimal.Decimal `json:"other"`
}

type PaymentDTO struct {
	ID            string `json:"id"`
	UnitID        string `json:"unit_id"`
	Amount        string `json:"amount"`
	PaidAt        string `json:"paid_at"`
	Method        string `json:"method,omitempty"`
	Reference     string `json:"reference,omitempty"`
	BillingPeriod string `json:"billing_period,omitempty"`
}

// AllocationDTO is the part of a payment applied to one bill.
type AllocationDTO struct {
	BillID    string       `json:"bill_id"`
	Amount    string       `json:"amount"`
	Breakdown BreakdownDTO `json:"breakdown"`
}

type AdvanceDTO struct {
	UnitID    string `json:"unit_id"`
	Dues      string `json:"dues"`
	Utilities string `json:"utilities"`
	Total     string `json:"total"`
}

// PaymentResponse is the committed outcome of a payment.
type PaymentResponse struct {
	Payment     PaymentDTO      `json:"payment"`
	Allocations []AllocationDTO `json:"allocations"`
	Bills       []BillDTO       `json:"bills"`
	Excess      string          `json:"excess"`
	Advance     AdvanceDTO      `json:"advance"`
}

type StatementLineDTO struct {
	Bill        BillDTO         `json:"bill"`
	Allocations []AllocationDTO `json:"allocations"`
}

// StatementDTO is a unit's statement of account.
type StatementDTO struct {
	Unit        UnitDTO            `json:"unit"`
	Lines       []StatementLineDTO `json:"lines"`
	Payments    []PaymentDTO       `json:"payments"`
	Outstanding string             `json:"outstanding"`
	Advance     AdvanceDTO         `json:"advance"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

const dateLayout = "2006-01-02"

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func toUnitDTO(u billing.Unit) UnitDTO {
	return UnitDTO{
		ID:          string(u.ID),
		Code:        u.Code,
		Type:        string(u.Type),
		Area:        u.Area.String(),
		ParkingArea: u.ParkingArea.String(),
		OwnerName:   u.OwnerName,
	}
}

func toBillDTO(b billing.Bill) BillDTO {
	warnings := b.Warnings
	if warnings == nil {
		warnings = []billing.Warning{}
	}
	return BillDTO{
		ID:                      string(b.ID),
		UnitID:                  string(b.UnitID),
		Period:                  b.Period.String(),
		PeriodFrom:              formatDate(b.PeriodFrom),
		PeriodTo:                formatDate(b.PeriodTo),
		StatementDate:           formatDate(b.StatementDate),
		DueDate:                 formatDate(b.DueDate),
		ElectricConsumption:     b.ElectricConsumption.String(),
		WaterConsumption:        b.WaterConsumption.String(),
		Electric:                money(b.Electric),
		Water:                   money(b.Water),
		Dues:                    money(b.Dues),
		Parking:                 money(b.Parking),
		SpecialAssessment:       money(b.SpecialAssessment),
		Discount:                money(b.Discount),
		AdvanceDuesApplied:      money(b.AdvanceDuesApplied),
		AdvanceUtilitiesApplied: money(b.AdvanceUtilitiesApplied),
		PreviousBalance:         money(b.PreviousBalance),
		Penalty:                 money(b.Penalty),
		TotalAmount:             money(b.TotalAmount),
		PaidAmount:              money(b.PaidAmount),
		Balance:                 money(b.Balance),
		Status:                  string(b.Status),
		Warnings:                warnings,
	}
}

func toBillDTOs(bills []billing.Bill) []BillDTO {
	out := make([]BillDTO, len(bills))
	for i, b := range bills {
		out[i] = toBillDTO(b)
	}
	return out
}

func toBreakdownDTO(b billing.Breakdown) BreakdownDTO {
	return BreakdownDTO{
		Electric:          b.Electric,
		Water:             b.Water,
		Dues:              b.Dues,
		Penalty:           b.Penalty,
		SpecialAssessment: b.SpecialAssessment,
		Other:             b.Other,
	}
}

func (b BreakdownDTO) toDomain() billing.Breakdown {
	return billing.Breakdown{
		Electric:          b.Electric,
		Water:             b.Water,
		Dues:              b.Dues,
		Penalty:           b.Penalty,
		SpecialAssessment: b.SpecialAssessment,
		Other:             b.Other,
	}
}

func toPaymentDTO(p billing.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:        string(p.ID),
		UnitID:    string(p.UnitID),
		Amount:    money(p.Amount),
		PaidAt:    formatDate(p.PaidAt),
		Method:    p.Method,
		Reference: p.Reference,
	}
	if p.Period != nil {
		dto.BillingPeriod = p.Period.String()
	}
	return dto
}

func toPaymentDTOs(payments []billing.Payment) []PaymentDTO {
	out := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		out[i] = toPaymentDTO(p)
	}
	return out
}

func toAllocationDTOs(lines []billing.BillPayment) []AllocationDTO {
	out := make([]AllocationDTO, len(lines))
	for i, l := range lines {
		out[i] = AllocationDTO{
			BillID:    string(l.BillID),
			Amount:    money(l.Amount),
			Breakdown: toBreakdownDTO(l.Breakdown),
		}
	}
	return out
}

func toAdvanceDTO(a billing.AdvanceBalance) AdvanceDTO {
	return AdvanceDTO{
		UnitID:    string(a.UnitID),
		Dues:      money(a.Dues),
		Utilities: money(a.Utilities),
		Total:     money(a.Total()),
	}
}

func toGenerateResponse(r billing.GenerateReport) GenerateBillsResponse {
	resp := GenerateBillsResponse{
		Period:    r.Period.String(),
		Generated: r.Generated,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
		Results:   make([]UnitResultDTO, len(r.Results)),
	}
	for i, res := range r.Results {
		dto := UnitResultDTO{
			UnitID:   string(res.UnitID),
			UnitCode: res.UnitCode,
			Outcome:  string(res.Outcome),
			Warnings: res.Warnings,
		}
		if res.Bill != nil {
			b := toBillDTO(*res.Bill)
			dto.Bill = &b
		}
		if res.Err != nil {
			dto.Error = res.Err.Error()
		}
		resp.Results[i] = dto
	}
	return resp
}
