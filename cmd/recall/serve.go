// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/recall/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the recall HTTP API",
		Long:  "Load configuration, initialize all subsystems, and serve the cache, index and ask endpoints over HTTP.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	return runWithApp(cmd, wireOptions{generation: true}, func(ctx context.Context, app *App) error {
		listen := app.Config.Networking.Listen
		if cmd.Flags().Changed("listen") {
			listen, _ = cmd.Flags().GetString("listen")
		}

		if _, err := app.Index.EnsureBuilt(ctx); err != nil {
			slog.Warn("initial index build failed", "error", err)
		}

		srv, err := server.New(server.Config{
			ListenAddr:     listen,
			CORSOrigins:    app.Config.Networking.CORSOrigins,
			Version:        version,
			MetricsHandler: app.Metrics.Handler(),
			Logger:         slog.Default(),
		})
		if err != nil {
			return err
		}

		svc, err := server.NewServices(app.Cache, app.Index, app.Answers, app.Providers)
		if err != nil {
			return err
		}
		srv.RegisterServices(svc.WithUsage(app.Usage))

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving recall on http://%s\n", listen)
		return srv.Start(ctx)
	})
}
