package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func verifyCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the hash chain",
		Long: `Walk the hash chain in sequence order and report every broken position.

The command exits non-zero when the chain does not verify.

Examples:
  auditctl verify
  auditctl verify --since 30d
  auditctl verify --from 2025-01-01T00:00:00Z --to 2025-02-01T00:00:00Z -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, open)
		},
		SilenceUsage: true,
	}
	addRangeFlags(cmd)
	return cmd
}

func runVerify(cmd *cobra.Command, open opener) error {
	from, to, err := rangeFlags(cmd, time.Now())
	if err != nil {
		return err
	}
	output, err := outputFlag(cmd)
	if err != nil {
		return err
	}

	return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
		report := b.queries.VerifyIntegrity(ctx, from, to)

		if output == "json" {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(report); err != nil {
				return err
			}
		} else {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Range:    %s .. %s\n", formatBound(from), formatBound(to))
			fmt.Fprintf(out, "Checked:  %d entries, %d purged positions\n", report.Checked, report.Purged)
			if report.Error != "" {
				fmt.Fprintf(out, "Error:    %s\n", report.Error)
			}
			if len(report.Violations) > 0 {
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SEQUENCE\tENTRY\tKIND\tEXPECTED\tACTUAL")
				fmt.Fprintln(w, "--------\t-----\t----\t--------\t------")
				for _, v := range report.Violations {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", v.Sequence, v.EntryID, v.Kind, v.Expected, v.Actual)
				}
				w.Flush()
			}
		}

		if !report.Valid {
			return fmt.Errorf("chain does not verify: %d violation(s)", len(report.Violations))
		}
		if output == "table" {
			fmt.Fprintln(cmd.OutOrStdout(), "Chain verified.")
		}
		return nil
	})
}
