// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sigil-dev/recall/internal/answer"
	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/index"
	"github.com/sigil-dev/recall/internal/server"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	// Handlers are never invoked during spec generation.
	svc, err := server.NewServices(stubCache{}, stubIndex{}, stubAnswers{}, nil)
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubCache struct{}

func (stubCache) FindSimilar(context.Context, string, string) (*cache.Hit, error) { return nil, nil }
func (stubCache) FindSimilarAt(context.Context, string, string, float64) (*cache.Hit, error) {
	return nil, nil
}
func (stubCache) Add(context.Context, string, string, string) (bool, error) { return false, nil }
func (stubCache) InvalidateRelated(context.Context, string, string) (int, error) {
	return 0, nil
}

func (stubCache) InvalidateRelatedAt(context.Context, string, string, float64) (int, error) {
	return 0, nil
}
func (stubCache) Stats() cache.Stats { return cache.Stats{} }
func (stubCache) Clear() {}

type stubIndex struct{}

func (stubIndex) QueryText(context.Context, string, string, int) ([]index.Match, error) {
	return nil, nil
}

func (stubIndex) QueryTextFiltered(context.Context, string, index.Predicate, float64, int) ([]index.Match, error) {
	return nil, nil
}
func (stubIndex) Count(context.Context) (int, error) { return 0, nil }

type stubAnswers struct{}

func (stubAnswers) Ask(context.Context, string, string, bool) (*answer.Answer, error) {
	return nil, nil
}
