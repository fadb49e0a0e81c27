// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/recall/internal/index"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the knowledge records closest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	cmd.Flags().String("category", "", "restrict to a category; all or empty means none")
	cmd.Flags().Int("top-k", 0, "number of results (default index.top_k)")
	cmd.Flags().Bool("json", false, "print results as JSON")
	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	category, _ := cmd.Flags().GetString("category")
	topK, _ := cmd.Flags().GetInt("top-k")
	asJSON, _ := cmd.Flags().GetBool("json")

	return runWithApp(cmd, wireOptions{}, func(ctx context.Context, app *App) error {
		if topK <= 0 {
			topK = app.Config.Index.TopK
		}
		if err := app.EnsureIndex(ctx); err != nil {
			return err
		}
		matches, err := app.Index.QueryText(ctx, query, category, topK)
		if err != nil {
			return err
		}
		return renderMatches(cmd, matches, asJSON)
	})
}

func renderMatches(cmd *cobra.Command, matches []index.Match, asJSON bool) error {
	if asJSON {
		if matches == nil {
			matches = []index.Match{}
		}
		return writeJSON(cmd.OutOrStdout(), matches)
	}
	printMatches(cmd.OutOrStdout(), matches)
	return nil
}
