/*
main.go - Batch bill generation CLI

PURPOSE:
  Generates (or previews with --dry-run) one billing period for a tenant
  against the configured store and prints one line per unit.

FLAGS:
  --config          Path to a config file (default: search locations)
  --tenant          Tenant ID (required)
  --period          Billing period YYYY-MM (required)
  --statement-date  Statement date YYYY-MM-DD (default: today)
  --units           Comma-separated unit IDs (default: every unit)
  --dry-run         Assemble without writing
  --ack             Commit bills that carry warnings

EXIT STATUS:
  0 when no unit failed, 1 otherwise. Units skipped for existing bills or
  unacknowledged warnings do not fail the run.

EXAMPLES:
  billrun --tenant=acme --period=2025-03 --dry-run
  billrun --tenant=acme --period=2025-03 --statement-date=2025-04-01 --ack
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/warp/condo-soa/billing"
	"github.com/warp/condo-soa/config"
	"github.com/warp/condo-soa/lock"
	"github.com/warp/condo-soa/logging"
	"github.com/warp/condo-soa/store"
)

var errUnitsFailed = errors.New("one or more units failed")

type options struct {
	configPath    string
	tenant        string
	period        billing.Period
	statementDate time.Time
	units         []string
	dryRun        bool
	ack           bool
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "billrun: %v\n", err)
		os.Exit(2)
	}
	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "billrun: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string) (options, error) {
	var opts options
	var period, statementDate string

	fs := pflag.NewFlagSet("billrun", pflag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.StringVar(&opts.tenant, "tenant", "", "Tenant ID")
	fs.StringVar(&period, "period", "", "Billing period (YYYY-MM)")
	fs.StringVar(&statementDate, "statement-date", "", "Statement date (YYYY-MM-DD, default today)")
	fs.StringSliceVar(&opts.units, "units", nil, "Comma-separated unit IDs (default all)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Assemble without writing")
	fs.BoolVar(&opts.ack, "ack", false, "Commit bills that carry warnings")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	if opts.tenant == "" {
		return opts, errors.New("--tenant is required")
	}
	p, err := billing.ParsePeriod(period)
	if err != nil {
		return opts, fmt.Errorf("--period: %w", err)
	}
	opts.period = p
	if statementDate != "" {
		if opts.statementDate, err = time.Parse("2006-01-02", statementDate); err != nil {
			return opts, fmt.Errorf("--statement-date: %w", err)
		}
	}
	return opts, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	backend, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer backend.Close()

	var locker lock.Locker = lock.NewMemory()
	if cfg.Redis.Enabled {
		redisLock, err := lock.NewRedis(lock.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.LockTTL,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer redisLock.Close()
		locker = redisLock
	}

	svc := billing.NewService(billing.Options{
		Store:        backend,
		Locker:       locker,
		Logger:       logger,
		DueDays:      cfg.Billing.DueDays,
		ExcessPolicy: cfg.ExcessPolicy(),
		LockTimeout:  cfg.Billing.LockTimeout,
	})

	unitIDs := make([]billing.UnitID, len(opts.units))
	for i, id := range opts.units {
		unitIDs[i] = billing.UnitID(id)
	}
	report, err := svc.GenerateBills(ctx, billing.GenerateRequest{
		TenantID:            billing.TenantID(opts.tenant),
		Period:              opts.period,
		StatementDate:       opts.statementDate,
		UnitIDs:             unitIDs,
		AcknowledgeWarnings: opts.ack,
		DryRun:              opts.dryRun,
	})
	if err != nil {
		return err
	}
	logger.Info("billrun finished",
		zap.String("tenant_id", opts.tenant),
		zap.String("period", opts.period.String()),
		zap.Bool("dry_run", opts.dryRun),
	)

	if err := writeReport(out, report); err != nil {
		return err
	}
	if report.Failed > 0 {
		return errUnitsFailed
	}
	return nil
}

// writeReport prints one row per unit followed by the run totals.
func writeReport(out io.Writer, r billing.GenerateReport) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tOUTCOME\tTOTAL\tDUE\tWARNINGS")
	for _, res := range r.Results {
		total, due := "-", "-"
		if res.Bill != nil {
			total = res.Bill.TotalAmount.StringFixed(2)
			due = res.Bill.DueDate.Format("2006-01-02")
		}
		unit := res.UnitCode
		if unit == "" {
			unit = string(res.UnitID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", unit, res.Outcome, total, due, len(res.Warnings))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "period %s: %d generated, %d skipped, %d failed\n", r.Period, r.Generated, r.Skipped, r.Failed)
	return err
}
