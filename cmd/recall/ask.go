// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the knowledge base",
		Long:  "Reuse a cached answer for a similar question, or generate one from the closest knowledge records and cache it.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}
	cmd.Flags().String("category", "", "restrict to a category (html_css, javascript, python, gas, vba, other)")
	cmd.Flags().Bool("visuals", false, "also list related diagrams, previews and images")
	cmd.Flags().Bool("json", false, "print the result as JSON")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	category, _ := cmd.Flags().GetString("category")
	visuals, _ := cmd.Flags().GetBool("visuals")
	asJSON, _ := cmd.Flags().GetBool("json")

	return runWithApp(cmd, wireOptions{generation: true}, func(ctx context.Context, app *App) error {
		if err := app.EnsureIndex(ctx); err != nil {
			return err
		}
		ans, err := app.Answers.Ask(ctx, question, category, visuals)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			return writeJSON(out, ans)
		}

		if ans.Cached {
			_, _ = fmt.Fprintf(out, "(cached answer: similarity %.3f to %q)\n\n", ans.Similarity, ans.OriginalQuery)
		}
		_, _ = fmt.Fprintln(out, ans.Text)
		if len(ans.Matches) > 0 {
			_, _ = fmt.Fprintln(out, "\nSources:")
			printMatches(out, ans.Matches)
		}
		if visuals && len(ans.Visuals) > 0 {
			_, _ = fmt.Fprintln(out, "\nVisuals:")
			printMatches(out, ans.Visuals)
		}
		if visuals && len(ans.Images) > 0 {
			_, _ = fmt.Fprintln(out, "\nImages:")
			printMatches(out, ans.Images)
		}
		return nil
	})
}
