// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"slices"
	"sync"

	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// Registry holds the configured embedding and generation backends by name.
// One backend value may be registered under both roles.
type Registry struct {
	mu         sync.RWMutex
	embedders  map[string]Embedder
	generators map[string]Generator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		embedders:  make(map[string]Embedder),
		generators: make(map[string]Generator),
	}
}

func (r *Registry) RegisterEmbedder(name string, e Embedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedders[name] = e
}

func (r *Registry) RegisterGenerator(name string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[name] = g
}

// Embedder retrieves an embedding backend by name.
func (r *Registry) Embedder(name string) (Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.embedders[name]
	if !ok {
		return nil, sigilerr.New(sigilerr.CodeProviderNotFound, "embedding provider not found: "+name, sigilerr.FieldProvider(name))
	}
	return e, nil
}

// Generator retrieves a generation backend by name.
func (r *Registry) Generator(name string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.generators[name]
	if !ok {
		return nil, sigilerr.New(sigilerr.CodeProviderNotFound, "generation provider not found: "+name, sigilerr.FieldProvider(name))
	}
	return g, nil
}

// Statuses reports every registered backend once, keyed by role and name.
func (r *Registry) Statuses(ctx context.Context) map[string]ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ProviderStatus, len(r.embedders)+len(r.generators))
	for name, e := range r.embedders {
		if st, err := e.Status(ctx); err == nil {
			out["embedding/"+name] = st
		}
	}
	for name, g := range r.generators {
		if st, err := g.Status(ctx); err == nil {
			out["generation/"+name] = st
		}
	}
	return out
}

// Close shuts down every distinct registered backend.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var closers []interface{ Close() error }
	add := func(c interface{ Close() error }) {
		if !slices.Contains(closers, c) {
			closers = append(closers, c)
		}
	}
	for _, e := range r.embedders {
		add(e)
	}
	for _, g := range r.generators {
		add(g)
	}

	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return sigilerr.Join(errs...)
	}
	return nil
}
