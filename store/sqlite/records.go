package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/warp/condo-soa/billing"
)

// repo implements billing.Store over a queryer. Store embeds one bound to the
// database; WithTx hands fn one bound to the transaction.
type repo struct {
	q queryer
}

// =============================================================================
// TARIFF
// =============================================================================

func (r repo) GetTariff(ctx context.Context, tenantID billing.TenantID) (billing.TariffConfig, error) {
	var (
		cfg                     = billing.TariffConfig{TenantID: tenantID}
		residential, commercial string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT electric_rate, electric_min_charge, dues_rate, parking_rate, penalty_rate,
		       residential_json, commercial_json
		FROM tariffs WHERE tenant_id = ?`, tenantID,
	).Scan(&cfg.ElectricRate, &cfg.ElectricMinCharge, &cfg.DuesRate, &cfg.ParkingRate, &cfg.PenaltyRate,
		&residential, &commercial)
	if errors.Is(err, sql.ErrNoRows) {
		return billing.TariffConfig{}, billing.ErrTariffNotFound
	}
	if err != nil {
		return billing.TariffConfig{}, fmt.Errorf("failed to get tariff: %w", err)
	}
	if err := json.Unmarshal([]byte(residential), &cfg.Residential); err != nil {
		return billing.TariffConfig{}, fmt.Errorf("failed to decode residential schedule: %w", err)
	}
	if err := json.Unmarshal([]byte(commercial), &cfg.Commercial); err != nil {
		return billing.TariffConfig{}, fmt.Errorf("failed to decode commercial schedule: %w", err)
	}
	return cfg, nil
}

func (r repo) SaveTariff(ctx context.Context, cfg billing.TariffConfig) error {
	residential, err := json.Marshal(cfg.Residential)
	if err != nil {
		return fmt.Errorf("failed to encode residential schedule: %w", err)
	}
	commercial, err := json.Marshal(cfg.Commercial)
	if err != nil {
		return fmt.Errorf("failed to encode commercial schedule: %w", err)
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO tariffs (tenant_id, electric_rate, electric_min_charge, dues_rate, parking_rate,
		                     penalty_rate, residential_json, commercial_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(tenant_id) DO UPDATE SET
			electric_rate = excluded.electric_rate,
			electric_min_charge = excluded.electric_min_charge,
			dues_rate = excluded.dues_rate,
			parking_rate = excluded.parking_rate,
			penalty_rate = excluded.penalty_rate,
			residential_json = excluded.residential_json,
			commercial_json = excluded.commercial_json,
			updated_at = excluded.updated_at`,
		cfg.TenantID, cfg.ElectricRate, cfg.ElectricMinCharge, cfg.DuesRate, cfg.ParkingRate,
		cfg.PenaltyRate, string(residential), string(commercial),
	)
	if err != nil {
		return fmt.Errorf("failed to save tariff: %w", err)
	}
	return nil
}

// =============================================================================
// UNITS
// =============================================================================

const unitColumns = `id, tenant_id, code, unit_type, area, parking_area, owner_name`

func scanUnit(sc interface{ Scan(...any) error }) (billing.Unit, error) {
	var (
		u     billing.Unit
		owner sql.NullString
	)
	err := sc.Scan(&u.ID, &u.TenantID, &u.Code, &u.Type, &u.Area, &u.ParkingArea, &owner)
	u.OwnerName = owner.String
	return u, err
}

func (r repo) GetUnit(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) (billing.Unit, error) {
	u, err := scanUnit(r.q.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE tenant_id = ? AND id = ?`, tenantID, unitID))
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Unit{}, billing.ErrUnitNotFound
	}
	if err != nil {
		return billing.Unit{}, fmt.Errorf("failed to get unit: %w", err)
	}
	return u, nil
}

func (r repo) ListUnits(ctx context.Context, tenantID billing.TenantID) ([]billing.Unit, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE tenant_id = ? ORDER BY code ASC, id ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var out []billing.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r repo) SaveUnit(ctx context.Context, u billing.Unit) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO units (`+unitColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			code = excluded.code,
			unit_type = excluded.unit_type,
			area = excluded.area,
			parking_area = excluded.parking_area,
			owner_name = excluded.owner_name`,
		u.ID, u.TenantID, u.Code, u.Type, u.Area, u.ParkingArea, nullString(u.OwnerName),
	)
	if err != nil {
		return fmt.Errorf("failed to save unit: %w", err)
	}
	return nil
}

// =============================================================================
// READINGS AND ADJUSTMENTS
// =============================================================================

func (r repo) SaveReading(ctx context.Context, m billing.MeterReading) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO meter_readings (tenant_id, unit_id, period, kind, previous, present)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.TenantID, m.UnitID, m.Period.String(), m.Kind, m.Previous, m.Present,
	)
	if isUniqueConstraintError(err) {
		return billing.ErrDuplicateReading
	}
	if err != nil {
		return fmt.Errorf("failed to save reading: %w", err)
	}
	return nil
}

func (r repo) ListReadings(ctx context.Context, tenantID billing.TenantID, period billing.Period) ([]billing.MeterReading, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT unit_id, kind, previous, present FROM meter_readings
		WHERE tenant_id = ? AND period = ?
		ORDER BY unit_id ASC, kind ASC`, tenantID, period.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	defer rows.Close()

	var out []billing.MeterReading
	for rows.Next() {
		m := billing.MeterReading{TenantID: tenantID, Period: period}
		if err := rows.Scan(&m.UnitID, &m.Kind, &m.Previous, &m.Present); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r repo) SaveAdjustment(ctx context.Context, a billing.BillingAdjustment) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO billing_adjustments (tenant_id, unit_id, period, special_assessment, discount)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, unit_id, period) DO UPDATE SET
			special_assessment = excluded.special_assessment,
			discount = excluded.discount`,
		a.TenantID, a.UnitID, a.Period.String(), a.SpecialAssessment, a.Discount,
	)
	if err != nil {
		return fmt.Errorf("failed to save adjustment: %w", err)
	}
	return nil
}

func (r repo) ListAdjustments(ctx context.Context, tenantID billing.TenantID, period billing.Period) ([]billing.BillingAdjustment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT unit_id, special_assessment, discount FROM billing_adjustments
		WHERE tenant_id = ? AND period = ?
		ORDER BY unit_id ASC`, tenantID, period.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	defer rows.Close()

	var out []billing.BillingAdjustment
	for rows.Next() {
		a := billing.BillingAdjustment{TenantID: tenantID, Period: period}
		if err := rows.Scan(&a.UnitID, &a.SpecialAssessment, &a.Discount); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// ADVANCE BALANCES
// =============================================================================

func scanAdvance(sc interface{ Scan(...any) error }) (billing.AdvanceBalance, error) {
	var (
		a       billing.AdvanceBalance
		updated sql.NullString
	)
	if err := sc.Scan(&a.TenantID, &a.UnitID, &a.Dues, &a.Utilities, &updated); err != nil {
		return a, err
	}
	t, err := parseTime(updated.String)
	a.UpdatedAt = t
	return a, err
}

func (r repo) GetAdvance(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) (billing.AdvanceBalance, error) {
	a, err := scanAdvance(r.q.QueryRowContext(ctx, `
		SELECT tenant_id, unit_id, dues, utilities, updated_at FROM advance_balances
		WHERE tenant_id = ? AND unit_id = ?`, tenantID, unitID))
	if errors.Is(err, sql.ErrNoRows) {
		return billing.AdvanceBalance{TenantID: tenantID, UnitID: unitID}, nil
	}
	if err != nil {
		return billing.AdvanceBalance{}, fmt.Errorf("failed to get advance balance: %w", err)
	}
	return a, nil
}

func (r repo) ListAdvances(ctx context.Context, tenantID billing.TenantID) ([]billing.AdvanceBalance, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT tenant_id, unit_id, dues, utilities, updated_at FROM advance_balances
		WHERE tenant_id = ? ORDER BY unit_id ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list advance balances: %w", err)
	}
	defer rows.Close()

	var out []billing.AdvanceBalance
	for rows.Next() {
		a, err := scanAdvance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan advance balance: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r repo) SaveAdvance(ctx context.Context, a billing.AdvanceBalance) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO advance_balances (tenant_id, unit_id, dues, utilities, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, unit_id) DO UPDATE SET
			dues = excluded.dues,
			utilities = excluded.utilities,
			updated_at = excluded.updated_at`,
		a.TenantID, a.UnitID, a.Dues, a.Utilities, nullString(formatTime(a.UpdatedAt)),
	)
	if err != nil {
		return fmt.Errorf("failed to save advance balance: %w", err)
	}
	return nil
}

// =============================================================================
// BILLS
// =============================================================================

const billColumns = `id, tenant_id, unit_id, period, period_from, period_to, statement_date, due_date,
	electric_consumption, water_consumption, electric, water, dues, parking,
	special_assessment, discount, advance_dues_applied, advance_utilities_applied,
	previous_balance, penalty, total_amount, paid_amount, balance, status,
	warnings_json, created_at, updated_at`

func billArgs(b billing.Bill) ([]any, error) {
	var warnings sql.NullString
	if len(b.Warnings) > 0 {
		raw, err := json.Marshal(b.Warnings)
		if err != nil {
			return nil, fmt.Errorf("failed to encode warnings: %w", err)
		}
		warnings = nullString(string(raw))
	}
	return []any{
		b.ID, b.TenantID, b.UnitID, b.Period.String(),
		formatTime(b.PeriodFrom), formatTime(b.PeriodTo), formatTime(b.StatementDate), formatTime(b.DueDate),
		b.ElectricConsumption, b.WaterConsumption, b.Electric, b.Water, b.Dues, b.Parking,
		b.SpecialAssessment, b.Discount, b.AdvanceDuesApplied, b.AdvanceUtilitiesApplied,
		b.PreviousBalance, b.Penalty, b.TotalAmount, b.PaidAmount, b.Balance, b.Status,
		warnings, formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	}, nil
}

func scanBill(sc interface{ Scan(...any) error }) (billing.Bill, error) {
	var (
		b                                billing.Bill
		period, from, to, statement, due string
		warnings                         sql.NullString
		created, updated                 string
	)
	err := sc.Scan(
		&b.ID, &b.TenantID, &b.UnitID, &period, &from, &to, &statement, &due,
		&b.ElectricConsumption, &b.WaterConsumption, &b.Electric, &b.Water, &b.Dues, &b.Parking,
		&b.SpecialAssessment, &b.Discount, &b.AdvanceDuesApplied, &b.AdvanceUtilitiesApplied,
		&b.PreviousBalance, &b.Penalty, &b.TotalAmount, &b.PaidAmount, &b.Balance, &b.Status,
		&warnings, &created, &updated,
	)
	if err != nil {
		return b, err
	}

	if b.Period, err = billing.ParsePeriod(period); err != nil {
		return b, err
	}
	for _, f := range []struct {
		dst *time.Time
		src string
	}{
		{&b.PeriodFrom, from}, {&b.PeriodTo, to}, {&b.StatementDate, statement}, {&b.DueDate, due},
		{&b.CreatedAt, created}, {&b.UpdatedAt, updated},
	} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return b, err
		}
	}
	if warnings.Valid && warnings.String != "" {
		if err := json.Unmarshal([]byte(warnings.String), &b.Warnings); err != nil {
			return b, fmt.Errorf("failed to decode warnings: %w", err)
		}
	}
	return b, nil
}

func (r repo) queryBills(ctx context.Context, query string, args ...any) ([]billing.Bill, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var out []billing.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r repo) GetBill(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID, period billing.Period) (billing.Bill, error) {
	b, err := scanBill(r.q.QueryRowContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE tenant_id = ? AND unit_id = ? AND period = ?`,
		tenantID, unitID, period.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Bill{}, billing.ErrBillNotFound
	}
	if err != nil {
		return billing.Bill{}, fmt.Errorf("failed to get bill: %w", err)
	}
	return b, nil
}

func (r repo) GetBillByID(ctx context.Context, tenantID billing.TenantID, billID billing.BillID) (billing.Bill, error) {
	b, err := scanBill(r.q.QueryRowContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE tenant_id = ? AND id = ?`, tenantID, billID))
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Bill{}, billing.ErrBillNotFound
	}
	if err != nil {
		return billing.Bill{}, fmt.Errorf("failed to get bill: %w", err)
	}
	return b, nil
}

func (r repo) ListUnitBills(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) ([]billing.Bill, error) {
	return r.queryBills(ctx,
		`SELECT `+billColumns+` FROM bills WHERE tenant_id = ? AND unit_id = ? ORDER BY period ASC`,
		tenantID, unitID)
}

func (r repo) ListTenantBills(ctx context.Context, tenantID billing.TenantID) ([]billing.Bill, error) {
	return r.queryBills(ctx,
		`SELECT `+billColumns+` FROM bills WHERE tenant_id = ? ORDER BY unit_id ASC, period ASC`,
		tenantID)
}

func (r repo) CreateBill(ctx context.Context, b billing.Bill) error {
	args, err := billArgs(b)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO bills (`+billColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if isUniqueConstraintError(err) {
		dup := &billing.DuplicateBillError{UnitID: b.UnitID, Period: b.Period}
		if existing, getErr := r.GetBill(ctx, b.TenantID, b.UnitID, b.Period); getErr == nil {
			dup.BillID = existing.ID
		}
		return dup
	}
	if err != nil {
		return fmt.Errorf("failed to create bill: %w", err)
	}
	return nil
}

// UpdateBill persists a bill's settlement state: PaidAmount, Balance, Status
// and UpdatedAt. Charges are fixed once a bill is created.
func (r repo) UpdateBill(ctx context.Context, b billing.Bill) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE bills SET paid_amount = ?, balance = ?, status = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		b.PaidAmount, b.Balance, b.Status, formatTime(b.UpdatedAt), b.TenantID, b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bill: %w", err)
	}
	return requireAffected(res, billing.ErrBillNotFound)
}

func (r repo) DeleteBill(ctx context.Context, tenantID billing.TenantID, billID billing.BillID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM bills WHERE tenant_id = ? AND id = ?`, tenantID, billID)
	if err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	return requireAffected(res, billing.ErrBillNotFound)
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, tenant_id, unit_id, amount, breakdown_json, paid_at, method, reference, period, created_at`

func scanPayment(sc interface{ Scan(...any) error }) (billing.Payment, error) {
	var (
		p                          billing.Payment
		breakdown, method, ref, pd sql.NullString
		paidAt, created            string
	)
	if err := sc.Scan(&p.ID, &p.TenantID, &p.UnitID, &p.Amount, &breakdown, &paidAt, &method, &ref, &pd, &created); err != nil {
		return p, err
	}
	p.Method, p.Reference = method.String, ref.String

	var err error
	if p.PaidAt, err = parseTime(paidAt); err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return p, err
	}
	if breakdown.Valid && breakdown.String != "" {
		p.Breakdown = &billing.Breakdown{}
		if err := json.Unmarshal([]byte(breakdown.String), p.Breakdown); err != nil {
			return p, fmt.Errorf("failed to decode breakdown: %w", err)
		}
	}
	if pd.Valid && pd.String != "" {
		period, err := billing.ParsePeriod(pd.String)
		if err != nil {
			return p, err
		}
		p.Period = &period
	}
	return p, nil
}

func (r repo) CreatePayment(ctx context.Context, p billing.Payment) error {
	var breakdown, period sql.NullString
	if p.Breakdown != nil {
		raw, err := json.Marshal(p.Breakdown)
		if err != nil {
			return fmt.Errorf("failed to encode breakdown: %w", err)
		}
		breakdown = nullString(string(raw))
	}
	if p.Period != nil {
		period = nullString(p.Period.String())
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.UnitID, p.Amount, breakdown, formatTime(p.PaidAt),
		nullString(p.Method), nullString(p.Reference), period, formatTime(p.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return billing.ErrDuplicatePayment
	}
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r repo) GetPayment(ctx context.Context, tenantID billing.TenantID, paymentID billing.PaymentID) (billing.Payment, error) {
	p, err := scanPayment(r.q.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE tenant_id = ? AND id = ?`, tenantID, paymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return billing.Payment{}, billing.ErrPaymentNotFound
	}
	if err != nil {
		return billing.Payment{}, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (r repo) ListPayments(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) ([]billing.Payment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE tenant_id = ? AND unit_id = ?
		ORDER BY paid_at ASC, id ASC`, tenantID, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []billing.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// BILL PAYMENTS
// =============================================================================

func (r repo) CreateBillPayments(ctx context.Context, lines []billing.BillPayment) error {
	for _, l := range lines {
		breakdown, err := json.Marshal(l.Breakdown)
		if err != nil {
			return fmt.Errorf("failed to encode breakdown: %w", err)
		}
		_, err = r.q.ExecContext(ctx, `
			INSERT INTO bill_payments (id, tenant_id, payment_id, bill_id, amount, breakdown_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.TenantID, l.PaymentID, l.BillID, l.Amount, string(breakdown), formatTime(l.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to create bill payment: %w", err)
		}
	}
	return nil
}

func (r repo) queryBillPayments(ctx context.Context, query string, args ...any) ([]billing.BillPayment, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bill payments: %w", err)
	}
	defer rows.Close()

	var out []billing.BillPayment
	for rows.Next() {
		var (
			l                  billing.BillPayment
			breakdown, created string
		)
		if err := rows.Scan(&l.ID, &l.TenantID, &l.PaymentID, &l.BillID, &l.Amount, &breakdown, &created); err != nil {
			return nil, fmt.Errorf("failed to scan bill payment: %w", err)
		}
		if err := json.Unmarshal([]byte(breakdown), &l.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to decode breakdown: %w", err)
		}
		if l.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r repo) ListBillPaymentsByBill(ctx context.Context, tenantID billing.TenantID, billID billing.BillID) ([]billing.BillPayment, error) {
	return r.queryBillPayments(ctx, `
		SELECT id, tenant_id, payment_id, bill_id, amount, breakdown_json, created_at
		FROM bill_payments WHERE tenant_id = ? AND bill_id = ?
		ORDER BY created_at ASC, rowid ASC`, tenantID, billID)
}

func (r repo) ListBillPaymentsByPayment(ctx context.Context, tenantID billing.TenantID, paymentID billing.PaymentID) ([]billing.BillPayment, error) {
	return r.queryBillPayments(ctx, `
		SELECT id, tenant_id, payment_id, bill_id, amount, breakdown_json, created_at
		FROM bill_payments WHERE tenant_id = ? AND payment_id = ?
		ORDER BY rowid ASC`, tenantID, paymentID)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (r repo) AppendAudit(ctx context.Context, e billing.AuditEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, tenant_id, unit_id, action, timestamp, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.UnitID, e.Action, formatTime(e.Timestamp), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns the unit's entries oldest first, or the tenant's when unitID is empty.
func (r repo) ListAudit(ctx context.Context, tenantID billing.TenantID, unitID billing.UnitID) ([]billing.AuditEntry, error) {
	query := `SELECT id, tenant_id, unit_id, action, timestamp, payload_json FROM audit_log WHERE tenant_id = ?`
	args := []any{tenantID}
	if unitID != "" {
		query += ` AND unit_id = ?`
		args = append(args, unitID)
	}
	query += ` ORDER BY timestamp ASC, rowid ASC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	defer rows.Close()

	var out []billing.AuditEntry
	for rows.Next() {
		var (
			e       billing.AuditEntry
			ts      string
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UnitID, &e.Action, &ts, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
