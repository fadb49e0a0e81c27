// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package usage accounts tokens, calls and approximate cost of provider
// calls per month and per model. Accounting is best effort: save failures
// are logged and never returned to the caller of Record.
package usage

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sigil-dev/recall/internal/jsonfile"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// Kind tells embedding and generation events apart.
type Kind string

const (
	KindEmbedding  Kind = "embedding"
	KindGeneration Kind = "generation"
)

// Event is one successful provider call.
type Event struct {
	Kind         Kind
	Model        string
	InputTokens  int
	OutputTokens int
}

// Price is USD per one million tokens.
type Price struct {
	Input  float64
	Output float64
}

// DefaultPrices is the price table used when none is configured.
var DefaultPrices = map[string]Price{
	"gemini-2.5-pro":         {Input: 1.25, Output: 10.00},
	"gemini-2.5-flash":       {Input: 0.30, Output: 2.50},
	"gemini-2.0-flash":       {Input: 0.10, Output: 0.40},
	"gemini-embedding-001":   {},
	"text-embedding-004":     {},
	"gpt-4.1":                {Input: 2.00, Output: 8.00},
	"gpt-4.1-mini":           {Input: 0.40, Output: 1.60},
	"text-embedding-3-small": {Input: 0.02},
	"text-embedding-3-large": {Input: 0.13},
}

// fallbackPrice applies to models missing from the table.
var fallbackPrice = Price{Input: 0.10, Output: 0.40}

// Totals is an aggregate over some set of events.
type Totals struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Calls        int64   `json:"calls"`
}

func (t *Totals) add(ev Event, cost float64) {
	t.InputTokens += int64(ev.InputTokens)
	t.OutputTokens += int64(ev.OutputTokens)
	t.CostUSD += cost
	t.Calls++
}

// Month aggregates one calendar month.
type Month struct {
	Totals
	ByModel map[string]*Totals `json:"by_model"`
}

// Summary is the whole persisted document.
type Summary struct {
	Monthly map[string]*Month `json:"monthly"`
	Total   Totals            `json:"total"`
}

// Tracker persists usage to a JSON file.
type Tracker struct {
	mu      sync.Mutex
	path    string
	data    Summary
	prices  map[string]Price
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open loads the usage file at path. An unreadable file is logged and
// replaced by an empty summary.
func Open(path string, prices map[string]Price) *Tracker {
	if prices == nil {
		prices = DefaultPrices
	}
	t := &Tracker{
		path:    path,
		data:    emptySummary(),
		prices:  prices,
		logger:  slog.Default(),
		nowFunc: time.Now,
	}

	var loaded Summary
	if _, err := jsonfile.Read(path, &loaded); err != nil {
		t.logger.Warn("usage file unreadable, starting empty", "path", path, "error", err)
	} else if loaded.Monthly != nil {
		t.data = loaded
	}
	return t
}

// SetNowFunc overrides the time source (for testing).
func (t *Tracker) SetNowFunc(fn func() time.Time) {
	t.mu.Lock()
	t.nowFunc = fn
	t.mu.Unlock()
}

// Cost prices ev against the tracker's table.
func (t *Tracker) Cost(ev Event) float64 {
	p, ok := t.prices[ev.Model]
	if !ok {
		p = fallbackPrice
	}
	return (float64(ev.InputTokens)*p.Input + float64(ev.OutputTokens)*p.Output) / 1_000_000
}

// Record adds ev to the current month and the lifetime total.
func (t *Tracker) Record(ev Event) {
	cost := t.Cost(ev)

	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.nowFunc().Format("2006-01")
	m, ok := t.data.Monthly[key]
	if !ok {
		m = &Month{ByModel: map[string]*Totals{}}
		t.data.Monthly[key] = m
	}
	if m.ByModel == nil {
		m.ByModel = map[string]*Totals{}
	}
	mt, ok := m.ByModel[ev.Model]
	if !ok {
		mt = &Totals{}
		m.ByModel[ev.Model] = mt
	}

	m.add(ev, cost)
	mt.add(ev, cost)
	t.data.Total.add(ev, cost)

	if err := t.saveLocked(); err != nil {
		t.logger.Error("saving usage", "path", t.path, "error", err)
	}
	t.logger.Debug("usage recorded",
		"kind", ev.Kind,
		"model", ev.Model,
		"input_tokens", ev.InputTokens,
		"output_tokens", ev.OutputTokens,
		"cost_usd", cost,
	)
}

// CurrentMonth returns a copy of this month's aggregate.
func (t *Tracker) CurrentMonth() Month {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := Month{ByModel: map[string]*Totals{}}
	if m, ok := t.data.Monthly[t.nowFunc().Format("2006-01")]; ok {
		out.Totals = m.Totals
		for k, v := range m.ByModel {
			c := *v
			out.ByModel[k] = &c
		}
	}
	return out
}

// Total returns the lifetime aggregate.
func (t *Tracker) Total() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.Total
}

// Reset discards all recorded usage.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data = emptySummary()
	if err := t.saveLocked(); err != nil {
		return err
	}
	t.logger.Info("usage reset", "path", t.path)
	return nil
}

func (t *Tracker) saveLocked() error {
	if err := jsonfile.Write(t.path, t.data); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeUsageSaveFailure, "saving usage file", sigilerr.FieldPath(t.path))
	}
	return nil
}

func emptySummary() Summary {
	return Summary{Monthly: map[string]*Month{}}
}
