package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/condo-soa/billing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: condo-soa\n"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 15, cfg.Billing.DueDays)
	assert.Equal(t, billing.ExcessToUtilities, cfg.ExcessPolicy())
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	// GIVEN: a file selecting postgres and a split policy
	path := writeConfig(t, `
database:
  driver: postgres
  dbname: soa
billing:
  excess_policy: split
  due_days: 20
`)
	// AND: an env var overriding the due days
	t.Setenv("SOA_BILLING_DUE_DAYS", "10")

	// WHEN
	cfg, err := Load(path)

	// THEN: env wins over file, file wins over defaults
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, billing.ExcessSplitEvenly, cfg.ExcessPolicy())
	assert.Equal(t, 10, cfg.Billing.DueDays)
	assert.Contains(t, cfg.Database.DSN(), "dbname=soa")
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  driver: oracle\n"))
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownExcessPolicy(t *testing.T) {
	_, err := Load(writeConfig(t, "billing:\n  excess_policy: refund\n"))
	assert.Error(t, err)
}

func TestDatabaseURL_EscapesPassword(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "soa", Password: "p@ss/word", DBName: "soa", SSLMode: "disable"}
	assert.Equal(t, "postgres://soa:p%40ss%2Fword@db:5432/soa?sslmode=disable", d.URL())
}
