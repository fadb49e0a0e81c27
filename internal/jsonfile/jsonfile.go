// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package jsonfile reads and atomically rewrites whole-document JSON state
// files. Every mutating caller rewrites the complete document; there is no
// append format.
package jsonfile

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

// Read decodes the JSON document at path into v. It reports found=false with
// a nil error when the file does not exist. Decode failures carry
// CodeStorageDecodeCorruptState.
func Read(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, sigilerr.Wrapf(err, sigilerr.CodeStorageReadFailure, "reading %s", path)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return true, sigilerr.Wrapf(err, sigilerr.CodeStorageDecodeCorruptState, "decoding %s", path)
	}
	return true, nil
}

// Write encodes v as indented JSON and replaces path atomically by writing a
// sibling temp file and renaming it over the target. Parent directories are
// created as needed.
func Write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStorageEncodeFailure, "encoding %s", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStorageWriteFailure, "creating %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStorageWriteFailure, "creating temp file for %s", path)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return sigilerr.Wrapf(err, sigilerr.CodeStorageWriteFailure, "writing %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return sigilerr.Wrapf(err, sigilerr.CodeStorageWriteFailure, "syncing %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStorageWriteFailure, "closing %s", tmpName)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return sigilerr.Wrapf(err, sigilerr.CodeStorageWriteFailure, "replacing %s", path)
	}
	return nil
}

// FormatTime renders t as RFC 3339 in UTC; the zero time renders as "".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime accepts RFC 3339 and the zone-less ISO form older files carry.
// Unparseable input yields the zero time.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
