// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache

import (
	"github.com/sigil-dev/recall/internal/jsonfile"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

type wireFile struct {
	Entries []wireEntry `json:"entries"`
}

type wireEntry struct {
	Query     string    `json:"query"`
	Embedding []float32 `json:"embedding"`
	Answer    string    `json:"answer"`
	Category  *string   `json:"category"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at,omitempty"`
}

func (c *Cache) load() {
	if c.path == "" {
		return
	}

	var f wireFile
	found, err := jsonfile.Read(c.path, &f)
	if err != nil {
		err = sigilerr.Wrap(err, sigilerr.CodeCacheLoadCorruptState, "loading answer cache", sigilerr.FieldPath(c.path))
		c.logger.Warn("answer cache unreadable, starting empty", "path", c.path, "error", err)
		return
	}
	if !found {
		return
	}

	dims := c.embedder.Dimensions()
	dropped := 0
	c.entries = make([]Entry, 0, len(f.Entries))
	for _, w := range f.Entries {
		if len(w.Embedding) != dims {
			dropped++
			continue
		}
		e := Entry{
			Query:     w.Query,
			Embedding: w.Embedding,
			Answer:    w.Answer,
			CreatedAt: jsonfile.ParseTime(w.CreatedAt),
			UpdatedAt: jsonfile.ParseTime(w.UpdatedAt),
		}
		if w.Category != nil {
			e.Category = *w.Category
		}
		c.entries = append(c.entries, e)
	}
	if dropped > 0 {
		c.logger.Warn("dropped answer cache entries with mismatched dimension",
			"path", c.path,
			"dropped", dropped,
			"dimensions", dims,
		)
	}
}

// saveLocked rewrites the whole file. Failures are logged and remembered;
// the in-memory state stays authoritative.
func (c *Cache) saveLocked() {
	if c.path == "" {
		return
	}

	f := wireFile{Entries: make([]wireEntry, len(c.entries))}
	for i, e := range c.entries {
		w := wireEntry{
			Query:     e.Query,
			Embedding: e.Embedding,
			Answer:    e.Answer,
			CreatedAt: jsonfile.FormatTime(e.CreatedAt),
			UpdatedAt: jsonfile.FormatTime(e.UpdatedAt),
		}
		if e.Category != "" {
			cat := e.Category
			w.Category = &cat
		}
		f.Entries[i] = w
	}

	if err := jsonfile.Write(c.path, f); err != nil {
		c.lastSaveErr = sigilerr.Wrap(err, sigilerr.CodeCacheSaveFailure, "saving answer cache", sigilerr.FieldPath(c.path))
		c.logger.Error("answer cache save failed", "path", c.path, "error", c.lastSaveErr)
		return
	}
	c.lastSaveErr = nil
	c.logger.Debug("answer cache saved", "path", c.path, "entry_count", len(c.entries))
}
