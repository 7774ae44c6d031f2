package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/condo-soa/billing"
	"github.com/warp/condo-soa/factory"
	"github.com/warp/condo-soa/store/sqlite"
)

func TestParseArgs(t *testing.T) {
	opts, err := parseArgs([]string{"--tenant=acme", "--period=2025-03", "--statement-date=2025-04-01", "--units=u1,u2", "--dry-run"})

	require.NoError(t, err)
	assert.Equal(t, "acme", opts.tenant)
	assert.Equal(t, billing.MustParsePeriod("2025-03"), opts.period)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), opts.statementDate)
	assert.Equal(t, []string{"u1", "u2"}, opts.units)
	assert.True(t, opts.dryRun)
	assert.False(t, opts.ack)
}

func TestParseArgs_Rejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing tenant", []string{"--period=2025-03"}},
		{"bad period", []string{"--tenant=a", "--period=March"}},
		{"bad statement date", []string{"--tenant=a", "--period=2025-03", "--statement-date=04/01/2025"}},
		{"unknown flag", []string{"--tenant=a", "--period=2025-03", "--force"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args)
			assert.Error(t, err)
		})
	}
}

// seedStore writes the reference tariff and unit 101 with March readings to a
// SQLite file and returns a config file pointing at it.
func seedStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "soa.db")

	s, err := sqlite.New(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	cfg, err := factory.NewTariffFactory().ParseTariff("acme", factory.ReferenceTariffJSON())
	require.NoError(t, err)
	require.NoError(t, s.SaveTariff(ctx, cfg))
	require.NoError(t, s.SaveUnit(ctx, billing.Unit{ID: "unit-101", TenantID: "acme", Code: "101", Type: billing.UnitResidential, Area: decimal.NewFromInt(45)}))
	march := billing.MustParsePeriod("2025-03")
	require.NoError(t, s.SaveReading(ctx, billing.MeterReading{TenantID: "acme", UnitID: "unit-101", Period: march, Kind: billing.ReadingElectric, Previous: decimal.NewFromInt(1000), Present: decimal.NewFromInt(1250)}))
	require.NoError(t, s.SaveReading(ctx, billing.MeterReading{TenantID: "acme", UnitID: "unit-101", Period: march, Kind: billing.ReadingWater, Previous: decimal.NewFromInt(200), Present: decimal.NewFromInt(215)}))
	require.NoError(t, s.Close())

	configPath := filepath.Join(dir, "config.yaml")
	yaml := "database:\n  driver: sqlite\n  sqlite_path: " + dbPath + "\nlog:\n  output: stderr\n  level: error\n"
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o600))
	return configPath
}

func TestRun_GeneratesThenSkips(t *testing.T) {
	// GIVEN: a seeded store
	configPath := seedStore(t)
	opts := options{
		configPath:    configPath,
		tenant:        "acme",
		period:        billing.MustParsePeriod("2025-03"),
		statementDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	// WHEN: the period is run twice
	var first, second bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &first))
	require.NoError(t, run(context.Background(), opts, &second))

	// THEN: generated once, reported as existing the second time
	assert.Contains(t, first.String(), "5367.50")
	assert.Contains(t, first.String(), "2025-04-16")
	assert.Contains(t, first.String(), "1 generated, 0 skipped, 0 failed")
	assert.Contains(t, second.String(), string(billing.OutcomeExists))
	assert.Contains(t, second.String(), "0 generated, 1 skipped, 0 failed")
}

func TestRun_DryRun(t *testing.T) {
	configPath := seedStore(t)
	opts := options{configPath: configPath, tenant: "acme", period: billing.MustParsePeriod("2025-03"), dryRun: true}

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out))

	assert.Contains(t, out.String(), string(billing.OutcomePreviewed))
	s, err := sqlite.New(filepath.Join(filepath.Dir(configPath), "soa.db"))
	require.NoError(t, err)
	defer s.Close()
	bills, err := s.ListUnitBills(context.Background(), "acme", "unit-101")
	require.NoError(t, err)
	assert.Empty(t, bills)
}

func TestWriteReport(t *testing.T) {
	bill := billing.Bill{TotalAmount: decimal.RequireFromString("1830"), DueDate: time.Date(2025, 4, 16, 0, 0, 0, 0, time.UTC)}
	report := billing.GenerateReport{
		Period: billing.MustParsePeriod("2025-03"),
		Results: []billing.UnitResult{
			{UnitID: "u1", UnitCode: "101", Outcome: billing.OutcomeGenerated, Bill: &bill},
			{UnitID: "u2", Outcome: billing.OutcomeBlocked, Warnings: []billing.Warning{{Code: billing.WarnMissingWater}}},
		},
		Generated: 1,
		Skipped:   1,
	}

	var out bytes.Buffer
	require.NoError(t, writeReport(&out, report))

	assert.Contains(t, out.String(), "1830.00")
	assert.Contains(t, out.String(), "u2")
	assert.Contains(t, out.String(), string(billing.OutcomeBlocked))
	assert.Contains(t, out.String(), "period 2025-03: 1 generated, 1 skipped, 0 failed")
}
