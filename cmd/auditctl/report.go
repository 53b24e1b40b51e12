package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func reportCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a compliance report",
		Long: `Aggregate compliance-relevant activity in a period and verify the chain over it.

Examples:
  auditctl report --since 365d
  auditctl report --from 2025-01-01T00:00:00Z --to 2026-01-01T00:00:00Z -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, open)
		},
		SilenceUsage: true,
	}
	addRangeFlags(cmd)
	return cmd
}

func runReport(cmd *cobra.Command, open opener) error {
	from, to, err := rangeFlags(cmd, time.Now())
	if err != nil {
		return err
	}
	output, err := outputFlag(cmd)
	if err != nil {
		return err
	}

	return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
		report, err := b.queries.GenerateComplianceReport(ctx, from, to)
		if err != nil {
			return err
		}
		if output == "json" {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(report)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Range\t%s .. %s\n", formatBound(from), formatBound(to))
		fmt.Fprintf(w, "Compliance entries\t%d\n", report.ComplianceEntries)
		fmt.Fprintf(w, "Data subject requests\t%d\n", report.DataSubjectRequest)
		fmt.Fprintf(w, "Consent operations\t%d\n", report.ConsentOperations)
		fmt.Fprintf(w, "Deletion requests\t%d\n", report.DeletionRequests)
		fmt.Fprintf(w, "Chain valid\t%t (%d violation(s))\n", report.Integrity.Valid, len(report.Integrity.Violations))
		w.Flush()

		if len(report.ByLegalBasis) > 0 {
			fmt.Fprintln(cmd.OutOrStdout())
			counts := make(map[string]int64, len(report.ByLegalBasis))
			for basis, n := range report.ByLegalBasis {
				counts[string(basis)] = n
			}
			writeCounts(cmd.OutOrStdout(), "LEGAL BASIS", counts)
		}
		return nil
	})
}
