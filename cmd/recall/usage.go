// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/recall/internal/usage"
)

func newUsageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show or reset provider token usage",
	}

	cmd.AddCommand(
		newUsageShowCmd(),
		newUsageResetCmd(),
	)

	return cmd
}

func newUsageShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show this month's usage per model and the lifetime total",
		Args:  cobra.NoArgs,
		RunE:  runUsageShow,
	}
	cmd.Flags().Bool("json", false, "print usage as JSON")
	return cmd
}

func newUsageResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard all recorded usage",
		Args:  cobra.NoArgs,
		RunE:  runUsageReset,
	}
}

// usageReport is the JSON shape of usage show.
type usageReport struct {
	CurrentMonth usage.Month  `json:"current_month"`
	Total        usage.Totals `json:"total"`
}

func runUsageShow(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	return runWithApp(cmd, wireOptions{}, func(_ context.Context, app *App) error {
		report := usageReport{
			CurrentMonth: app.Usage.CurrentMonth(),
			Total:        app.Usage.Total(),
		}
		out := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(out, report)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "SCOPE\tCALLS\tINPUT\tOUTPUT\tCOST (USD)")
		writeTotals(tw, "this month", report.CurrentMonth.Totals)
		for _, model := range slices.Sorted(maps.Keys(report.CurrentMonth.ByModel)) {
			writeTotals(tw, "  "+model, *report.CurrentMonth.ByModel[model])
		}
		writeTotals(tw, "total", report.Total)
		return tw.Flush()
	})
}

func writeTotals(w io.Writer, scope string, t usage.Totals) {
	_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.4f\n", scope, t.Calls, t.InputTokens, t.OutputTokens, t.CostUSD)
}

func runUsageReset(cmd *cobra.Command, _ []string) error {
	return runWithApp(cmd, wireOptions{}, func(_ context.Context, app *App) error {
		calls := app.Usage.Total().Calls
		if err := app.Usage.Reset(); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Reset usage (%d call(s) discarded).\n", calls)
		return nil
	})
}
