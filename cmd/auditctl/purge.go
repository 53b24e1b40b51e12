package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"audittrail/internal/audit/retention"
)

func purgeCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete entries whose retention period has elapsed",
		Long: `Delete entries whose retention period ended before the cutoff.

The purge is recorded as a DATA_PURGE entry before anything is removed, and the
removed positions stay verifiable through tombstones. A cutoff in the future is
clamped to now.

Examples:
  auditctl purge --dry-run
  auditctl purge
  auditctl purge --cutoff 2025-01-01T00:00:00Z -o json`,
		RunE:         func(cmd *cobra.Command, args []string) error { return runPurge(cmd, open) },
		SilenceUsage: true,
	}

	cmd.Flags().String("cutoff", "", "Purge entries whose retention ended before this time (RFC 3339, default now)")
	cmd.Flags().Bool("dry-run", false, "Only count eligible entries")
	cmd.Flags().StringP("output", "o", "table", "Output format: table or json")

	return cmd
}

func runPurge(cmd *cobra.Command, open opener) error {
	cutoffRaw, _ := cmd.Flags().GetString("cutoff")
	cutoff, err := parseTimestamp(cutoffRaw, "--cutoff")
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	output, err := outputFlag(cmd)
	if err != nil {
		return err
	}

	return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
		if cutoff.IsZero() {
			cutoff = time.Now()
		}

		var result retention.Result
		if dryRun {
			eligible, err := b.queries.CountOlderThan(ctx, cutoff)
			if err != nil {
				return err
			}
			result = retention.Result{Cutoff: cutoff, Eligible: eligible}
		} else {
			job := retention.NewJob(b.queries, b.commands, b.locker, retention.WithLogger(b.logger))
			if result, err = job.RunOnce(ctx, cutoff); err != nil {
				return err
			}
		}

		if output == "json" {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		}
		out := cmd.OutOrStdout()
		if dryRun {
			fmt.Fprintf(out, "%d entr(y/ies) eligible for purge before %s.\n", result.Eligible, formatBound(result.Cutoff))
			return nil
		}
		if result.Deleted == 0 {
			fmt.Fprintln(out, "Nothing to purge.")
			return nil
		}
		fmt.Fprintf(out, "Removed %d audit entr(y/ies); recorded as %s.\n", result.Deleted, result.PurgeEntryID)
		return nil
	})
}
