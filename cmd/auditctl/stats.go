package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func statsCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize audit activity in a period",
		Long: `Count entries, users, entities and failures in a period.

Examples:
  auditctl stats --since 7d
  auditctl stats --from 2025-01-01T00:00:00Z -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, open)
		},
		SilenceUsage: true,
	}
	addRangeFlags(cmd)
	return cmd
}

func runStats(cmd *cobra.Command, open opener) error {
	from, to, err := rangeFlags(cmd, time.Now())
	if err != nil {
		return err
	}
	output, err := outputFlag(cmd)
	if err != nil {
		return err
	}

	return withBackend(cmd, open, func(ctx context.Context, b *backend) error {
		stats, err := b.queries.GetStatistics(ctx, from, to)
		if err != nil {
			return err
		}
		if output == "json" {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(stats)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Range\t%s .. %s\n", formatBound(from), formatBound(to))
		fmt.Fprintf(w, "Entries\t%d\n", stats.TotalEntries)
		fmt.Fprintf(w, "Users\t%d\n", stats.UniqueUsers)
		fmt.Fprintf(w, "Entities\t%d\n", stats.UniqueEntities)
		fmt.Fprintf(w, "Failures\t%d\n", stats.FailureCount)
		fmt.Fprintf(w, "Critical\t%d\n", stats.CriticalCount)
		fmt.Fprintf(w, "Security\t%d\n", stats.SecurityCount)
		fmt.Fprintf(w, "Compliance\t%d\n", stats.ComplianceCount)
		w.Flush()

		if len(stats.ByEventType) > 0 {
			fmt.Fprintln(cmd.OutOrStdout())
			counts := make(map[string]int64, len(stats.ByEventType))
			for t, n := range stats.ByEventType {
				counts[string(t)] = n
			}
			writeCounts(cmd.OutOrStdout(), "EVENT TYPE", counts)
		}
		return nil
	})
}

// writeCounts prints a two-column table sorted by descending count.
func writeCounts(out io.Writer, label string, counts map[string]int64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tCOUNT\n", label)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%d\n", k, counts[k])
	}
	w.Flush()
}
