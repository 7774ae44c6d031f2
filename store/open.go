// Package store opens the configured billing store backend.
package store

import (
	"context"
	"fmt"

	"github.com/warp/condo-soa/billing"
	"github.com/warp/condo-soa/config"
	"github.com/warp/condo-soa/store/gormstore"
	"github.com/warp/condo-soa/store/sqlite"
)

// Backend is a transactional billing store with a lifecycle.
type Backend interface {
	billing.TxStore
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the SQLite store for driver "sqlite" and the GORM PostgreSQL
// store for driver "postgres".
func Open(cfg config.DatabaseConfig) (Backend, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := gormstore.Open(gormstore.Config{
			DSN:             cfg.DSN(),
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
