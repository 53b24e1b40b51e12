package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"audittrail/internal/audit/chain"
	"audittrail/internal/audit/retention"
	"audittrail/internal/audit/service/command"
	"audittrail/internal/audit/service/query"
	auditpg "audittrail/internal/audit/store/postgres"
	"audittrail/internal/platform/config"
	"audittrail/internal/platform/logger"
	"audittrail/internal/platform/postgres"
)

// backend is what the subcommands operate on.
type backend struct {
	queries  *query.Service
	commands *command.Service
	locker   retention.Locker
	logger   *slog.Logger
	close    func()
}

type opener func(ctx context.Context, cfg config.Config) (*backend, error)

func openPostgres(ctx context.Context, cfg config.Config) (*backend, error) {
	log := logger.New("text", cfg.Log.Level)
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := auditpg.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	store := auditpg.New(db, auditpg.WithLockTimeout(cfg.Audit.LockTimeout))
	commands := command.New(chain.NewEngine(store, chain.WithLogger(log)), command.WithLogger(log))
	return &backend{
		queries:  query.New(store, chain.NewVerifier(store, store, chain.WithLogger(log)), query.WithLogger(log)),
		commands: commands,
		locker:   store,
		logger:   log,
		close: func() {
			_ = commands.Close(context.Background())
			_ = db.Close()
		},
	}, nil
}

func rootCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auditctl",
		Short: "Operate the tamper-evident audit trail",
		Long: `auditctl runs operator tasks against the audit database named by DATABASE_URL.

Quick start:
  auditctl verify                      # Verify the whole hash chain
  auditctl stats --since 7d            # Activity summary for the last week
  auditctl report --since 365d         # Compliance report
  auditctl purge --dry-run             # Count entries past retention
  auditctl token --user ops --role AUDITOR`,
		SilenceUsage: true,
	}

	cmd.AddCommand(verifyCommand(open))
	cmd.AddCommand(statsCommand(open))
	cmd.AddCommand(reportCommand(open))
	cmd.AddCommand(purgeCommand(open))
	cmd.AddCommand(tokenCommand())

	return cmd
}

// withBackend opens the backend for the duration of fn.
func withBackend(cmd *cobra.Command, open opener, fn func(ctx context.Context, b *backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := open(ctx, config.FromEnv())
	if err != nil {
		return err
	}
	defer b.close()
	return fn(ctx, b)
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "Start of the range (RFC 3339)")
	cmd.Flags().String("to", "", "End of the range, exclusive (RFC 3339)")
	cmd.Flags().String("since", "", "Range start relative to now (e.g. 30d, 12h); overrides --from")
	cmd.Flags().StringP("output", "o", "table", "Output format: table or json")
}

// rangeFlags resolves --from/--to/--since. Unset bounds stay zero (open).
func rangeFlags(cmd *cobra.Command, now time.Time) (from, to time.Time, err error) {
	fromRaw, _ := cmd.Flags().GetString("from")
	toRaw, _ := cmd.Flags().GetString("to")
	sinceRaw, _ := cmd.Flags().GetString("since")

	if from, err = parseTimestamp(fromRaw, "--from"); err != nil {
		return
	}
	if to, err = parseTimestamp(toRaw, "--to"); err != nil {
		return
	}
	if sinceRaw = strings.TrimSpace(sinceRaw); sinceRaw != "" {
		var d time.Duration
		if d, err = parseDuration(sinceRaw); err != nil {
			return
		}
		from = now.Add(-d)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		err = fmt.Errorf("--from must be before --to")
	}
	return
}

func parseTimestamp(raw, flag string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: invalid timestamp %q", flag, raw)
	}
	return t, nil
}

// parseDuration accepts Go durations plus a day suffix ("30d").
func parseDuration(input string) (time.Duration, error) {
	if before, ok := strings.CutSuffix(input, "d"); ok {
		days, err := strconv.Atoi(before)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", input)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be positive")
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(input)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", input)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}

func outputFlag(cmd *cobra.Command) (string, error) {
	output, _ := cmd.Flags().GetString("output")
	switch output {
	case "", "table":
		return "table", nil
	case "json":
		return output, nil
	default:
		return "", fmt.Errorf("unsupported output format %q", output)
	}
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
