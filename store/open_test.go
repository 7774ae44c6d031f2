package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/condo-soa/billing"
	"github.com/warp/condo-soa/config"
)

func TestOpen_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soa.db")

	s, err := Open(config.DatabaseConfig{Driver: "sqlite", SQLitePath: path})

	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Ping(context.Background()))
	_, err = s.GetTariff(context.Background(), "tenant-1")
	assert.ErrorIs(t, err, billing.ErrTariffNotFound)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mongo"})

	assert.ErrorContains(t, err, `unsupported database driver "mongo"`)
}
