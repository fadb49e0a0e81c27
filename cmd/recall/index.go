// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/recall/internal/index"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the vector index over knowledge records",
	}

	cmd.AddCommand(
		newIndexRebuildCmd(),
		newIndexStatsCmd(),
		newIndexQueryCmd(),
	)

	return cmd
}

func newIndexRebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Re-embed every record and replace the index",
		Args:  cobra.NoArgs,
		RunE:  runIndexRebuild,
	}
}

func newIndexStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the number of indexed records",
		Args:  cobra.NoArgs,
		RunE:  runIndexStats,
	}
}

func newIndexQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Query the index, optionally restricted to records with artifacts",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIndexQuery,
	}
	cmd.Flags().Bool("visual", false, "only records with a diagram or rendered preview")
	cmd.Flags().Bool("image", false, "only records with an attached image")
	cmd.Flags().Float64("min-score", 0, "drop results scoring below this (default index.visual_min_score)")
	cmd.Flags().Int("top-k", 0, "number of results (default index.visual_top_k)")
	cmd.Flags().Bool("json", false, "print results as JSON")
	return cmd
}

func runIndexRebuild(cmd *cobra.Command, _ []string) error {
	return runWithApp(cmd, wireOptions{}, func(ctx context.Context, app *App) error {
		n, err := app.Index.RebuildFromStore(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d record(s).\n", n)
		return nil
	})
}

func runIndexStats(cmd *cobra.Command, _ []string) error {
	return runWithApp(cmd, wireOptions{}, func(ctx context.Context, app *App) error {
		n, err := app.Index.Count(ctx)
		if err != nil {
			return err
		}
		recs, err := app.Records.ListAll(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Indexed: %d\n", n)
		_, _ = fmt.Fprintf(out, "Records: %d\n", len(recs))
		_, _ = fmt.Fprintf(out, "Backend: %s\n", app.Config.Index.Backend)
		return nil
	})
}

func runIndexQuery(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	visual, _ := cmd.Flags().GetBool("visual")
	image, _ := cmd.Flags().GetBool("image")
	minScore, _ := cmd.Flags().GetFloat64("min-score")
	topK, _ := cmd.Flags().GetInt("top-k")
	asJSON, _ := cmd.Flags().GetBool("json")

	var pred index.Predicate
	if visual {
		pred.AnyOf = append(pred.AnyOf, index.Visual.AnyOf...)
	}
	if image {
		pred.AnyOf = append(pred.AnyOf, index.WithImage.AnyOf...)
	}

	return runWithApp(cmd, wireOptions{}, func(ctx context.Context, app *App) error {
		if !cmd.Flags().Changed("min-score") {
			minScore = app.Config.Index.VisualMinScore
		}
		if topK <= 0 {
			topK = app.Config.Index.VisualTopK
		}
		if err := app.EnsureIndex(ctx); err != nil {
			return err
		}
		matches, err := app.Index.QueryTextFiltered(ctx, text, pred, minScore, topK)
		if err != nil {
			return err
		}
		return renderMatches(cmd, matches, asJSON)
	})
}
