/*
Package gormstore provides a GORM-backed implementation of billing.TxStore.

PURPOSE:
  The production store for multi-instance deployments. Runs on PostgreSQL via
  gorm.io/driver/postgres; tests run the same code on SQLite in-memory.

TABLES:
  tariffs, units, meter_readings, billing_adjustments, advance_balances,
  bills, payments, bill_payments, audit_log. Created by AutoMigrate.

UNIQUENESS:
  Enforced by composite primary keys and unique indexes, translated through
  gorm.Config.TranslateError into gorm.ErrDuplicatedKey and then onto the
  billing sentinels.

MONEY:
  decimal.Decimal columns are decimal(18,2) for amounts and decimal(18,4)
  for rates and meter values.

SEE ALSO:
  - billing/store.go: Interface definitions
  - store/sqlite: database/sql implementation with the same contract
*/
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/warp/condo-soa/billing"
)

// Config holds the connection pool settings for Open.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements billing.TxStore with GORM.
type Store struct {
	repository
	db *gorm.DB
}

// Open connects to PostgreSQL, applies pool settings and migrates the schema.
func Open(cfg Config) (*Store, error) {
	return OpenDialector(postgres.Open(cfg.DSN), cfg)
}

// OpenDialector is Open for any GORM dialector. cfg.DSN is ignored.
func OpenDialector(dialector gorm.Dialector, cfg Config) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := New(db)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an open *gorm.DB and migrates the schema. The DB should be opened
// with TranslateError so duplicate keys map onto billing errors.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{repository: repository{db: db}, db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repository{db: tx})
	})
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key")
}

var _ billing.TxStore = (*Store)(nil)
