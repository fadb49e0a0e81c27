// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/recall/internal/index"
)

// runWithApp loads the config, wires the app, runs fn and closes the app.
func runWithApp(cmd *cobra.Command, opts wireOptions, fn func(ctx context.Context, app *App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := WireApp(cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("closing subsystems", "error", err)
		}
	}()
	return fn(cmd.Context(), app)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMatches(w io.Writer, matches []index.Match) {
	if len(matches) == 0 {
		_, _ = fmt.Fprintln(w, "No matching records.")
		return
	}
	for i, m := range matches {
		_, _ = fmt.Fprintf(w, "%d. [%.3f] %s  (%s, %s)\n", i+1, m.Score, m.Metadata.Title, m.ID, m.Metadata.Category)
	}
}
