/*
Package sqlite provides a SQLite-backed implementation of billing.TxStore.

PURPOSE:
  Persists tariffs, units, readings, adjustments, advance balances, bills,
  payments, bill payment lines and the audit log with database/sql. In
  production the same patterns apply to PostgreSQL (see store/gormstore).

INTERFACES IMPLEMENTED:
  billing.Store:   CRUD over every billing record
  billing.TxStore: WithTx over a single *sql.Tx

UNIQUENESS:
  Enforced by the schema and mapped back onto billing errors:
  - bills(tenant_id, unit_id, period)                  -> *billing.DuplicateBillError
  - meter_readings(tenant_id, unit_id, period, kind)   -> billing.ErrDuplicateReading
  - payments(tenant_id, unit_id, reference) non-null   -> billing.ErrDuplicatePayment

APPEND-ONLY TABLES:
  payments, bill_payments and audit_log are never updated or deleted.

MONEY:
  Amounts are TEXT columns holding decimal strings. decimal.Decimal implements
  sql.Scanner and driver.Valuer, so no float ever touches the database.

CONCURRENCY:
  One open connection, so ":memory:" databases are shared and writers are
  serialized. WithTx additionally holds the store mutex for its duration.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/condo.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := billing.NewService(billing.Options{Store: store})

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/condo-soa/billing"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements billing.TxStore using SQLite.
type Store struct {
	repo
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := NewWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewWithDB migrates and wraps an already opened database.
func NewWithDB(db *sql.DB) (*Store, error) {
	store := &Store{repo: repo{q: db}, db: db}
	if err := store.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const schema = `
	CREATE TABLE IF NOT EXISTS tariffs (
		tenant_id TEXT PRIMARY KEY,
		electric_rate TEXT NOT NULL,
		electric_min_charge TEXT NOT NULL,
		dues_rate TEXT NOT NULL,
		parking_rate TEXT NOT NULL,
		penalty_rate TEXT NOT NULL,
		residential_json TEXT NOT NULL,
		commercial_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS units (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		code TEXT NOT NULL,
		unit_type TEXT NOT NULL,
		area TEXT NOT NULL,
		parking_area TEXT NOT NULL,
		owner_name TEXT,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS meter_readings (
		tenant_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		period TEXT NOT NULL,
		kind TEXT NOT NULL,
		previous TEXT NOT NULL,
		present TEXT NOT NULL,
		PRIMARY KEY (tenant_id, unit_id, period, kind)
	);

	CREATE TABLE IF NOT EXISTS billing_adjustments (
		tenant_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		period TEXT NOT NULL,
		special_assessment TEXT NOT NULL,
		discount TEXT NOT NULL,
		PRIMARY KEY (tenant_id, unit_id, period)
	);

	CREATE TABLE IF NOT EXISTS advance_balances (
		tenant_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		dues TEXT NOT NULL,
		utilities TEXT NOT NULL,
		updated_at TEXT,
		PRIMARY KEY (tenant_id, unit_id)
	);

	CREATE TABLE IF NOT EXISTS bills (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		period TEXT NOT NULL,
		period_from TEXT NOT NULL,
		period_to TEXT NOT NULL,
		statement_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		electric_consumption TEXT NOT NULL,
		water_consumption TEXT NOT NULL,
		electric TEXT NOT NULL,
		water TEXT NOT NULL,
		dues TEXT NOT NULL,
		parking TEXT NOT NULL,
		special_assessment TEXT NOT NULL,
		discount TEXT NOT NULL,
		advance_dues_applied TEXT NOT NULL,
		advance_utilities_applied TEXT NOT NULL,
		previous_balance TEXT NOT NULL,
		penalty TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		balance TEXT NOT NULL,
		status TEXT NOT NULL,
		warnings_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: one bill per unit and period
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bills_unit_period
		ON bills(tenant_id, unit_id, period);

	-- For open-bill scans in overdue marking
	CREATE INDEX IF NOT EXISTS idx_bills_status_due
		ON bills(tenant_id, status, due_date);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		breakdown_json TEXT,
		paid_at TEXT NOT NULL,
		method TEXT,
		reference TEXT,
		period TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_reference
		ON payments(tenant_id, unit_id, reference) WHERE reference IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_payments_unit
		ON payments(tenant_id, unit_id, paid_at);

	CREATE TABLE IF NOT EXISTS bill_payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		payment_id TEXT NOT NULL REFERENCES payments(id),
		bill_id TEXT NOT NULL REFERENCES bills(id),
		amount TEXT NOT NULL,
		breakdown_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bill_payments_bill
		ON bill_payments(bill_id);
	CREATE INDEX IF NOT EXISTS idx_bill_payments_payment
		ON bill_payments(payment_id);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		action TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_unit
		ON audit_log(tenant_id, unit_id, timestamp);
`

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (billing.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(repo{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Reset deletes every row. Test and demo use only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{
		"bill_payments", "payments", "bills", "audit_log", "advance_balances",
		"billing_adjustments", "meter_readings", "units", "tariffs",
	} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	return t, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

var _ billing.TxStore = (*Store)(nil)
