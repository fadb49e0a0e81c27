// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the semantic answer cache",
	}

	cmd.AddCommand(
		newCacheStatsCmd(),
		newCacheFindCmd(),
		newCacheInvalidateCmd(),
		newCacheClearCmd(),
	)

	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and categories",
		Args:  cobra.NoArgs,
		RunE:  runCacheStats,
	}
	cmd.Flags().Bool("json", false, "print stats as JSON")
	return cmd
}

func newCacheFindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <question>",
		Short: "Look up a cached answer for a similar question",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCacheFind,
	}
	cmd.Flags().String("category", "", "category filter; all or empty means none")
	cmd.Flags().Float64("threshold", 0, "similarity threshold override (default cache.hit_threshold)")
	return cmd
}

func newCacheInvalidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidate <text>",
		Short: "Drop cached answers semantically related to changed knowledge",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCacheInvalidate,
	}
	cmd.Flags().String("category", "", "category of the changed knowledge; entries in other categories are kept")
	cmd.Flags().Float64("threshold", 0, "similarity threshold override (default cache.invalidate_threshold)")
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached answer",
		Args:  cobra.NoArgs,
		RunE:  runCacheClear,
	}
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	return runWithApp(cmd, wireOptions{}, func(_ context.Context, app *App) error {
		st := app.Cache.Stats()
		out := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(out, st)
		}
		_, _ = fmt.Fprintf(out, "Entries:    %d\n", st.Count)
		if len(st.Categories) > 0 {
			_, _ = fmt.Fprintf(out, "Categories: %s\n", strings.Join(st.Categories, ", "))
		}
		if st.Path != "" {
			_, _ = fmt.Fprintf(out, "Path:       %s\n", st.Path)
		}
		return nil
	})
}

func runCacheFind(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	category, _ := cmd.Flags().GetString("category")
	return runWithApp(cmd, wireOptions{}, func(ctx context.Context, app *App) error {
		threshold := app.Cache.HitThreshold()
		if cmd.Flags().Changed("threshold") {
			threshold, _ = cmd.Flags().GetFloat64("threshold")
		}
		hit, err := app.Cache.FindSimilarAt(ctx, query, category, threshold)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if hit == nil {
			_, _ = fmt.Fprintln(out, "No cached answer.")
			return nil
		}
		_, _ = fmt.Fprintf(out, "Similarity %.3f to %q\n\n%s\n", hit.Similarity, hit.OriginalQuery, hit.Answer)
		return nil
	})
}

func runCacheInvalidate(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	category, _ := cmd.Flags().GetString("category")
	return runWithApp(cmd, wireOptions{}, func(ctx context.Context, app *App) error {
		var (
			n   int
			err error
		)
		if cmd.Flags().Changed("threshold") {
			threshold, _ := cmd.Flags().GetFloat64("threshold")
			n, err = app.Cache.InvalidateRelatedAt(ctx, text, category, threshold)
		} else {
			n, err = app.Cache.InvalidateRelated(ctx, text, category)
		}
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached answer(s).\n", n)
		return nil
	})
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	return runWithApp(cmd, wireOptions{}, func(_ context.Context, app *App) error {
		n := app.Cache.Len()
		app.Cache.Clear()
		if err := app.Cache.LastSaveError(); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached answer(s).\n", n)
		return nil
	})
}
