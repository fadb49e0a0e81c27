// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	sigilerr "github.com/sigil-dev/recall/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := sigilerr.New(
		sigilerr.CodeConfigValidateInvalidValue,
		"invalid embedding configuration",
		sigilerr.FieldRecordID("rec-123"),
		sigilerr.Field("provider", "openai"),
	)

	require.Error(t, err)
	assert.Equal(t, sigilerr.CodeConfigValidateInvalidValue, sigilerr.CodeOf(err))
	assert.True(t, sigilerr.HasCode(err, sigilerr.CodeConfigValidateInvalidValue))

	fields := sigilerr.FieldsOf(err)
	assert.Equal(t, "rec-123", fields["record_id"])
	assert.Equal(t, "openai", fields["provider"])
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := sigilerr.Errorf(sigilerr.CodeCacheSaveFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, sigilerr.CodeCacheSaveFailure, sigilerr.CodeOf(err))
	assert.Contains(t, err.Error(), "write failed")
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf / With
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := sigilerr.Wrap(root, sigilerr.CodeRecordGetNotFound, "loading record", sigilerr.FieldRecordID("r-42"))

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, sigilerr.IsNotFound(err))
	assert.Equal(t, "r-42", sigilerr.FieldsOf(err)["record_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, sigilerr.Wrap(nil, sigilerr.CodeServerInternalFailure, "ignored"))
	assert.NoError(t, sigilerr.Wrapf(nil, sigilerr.CodeServerInternalFailure, "ignored %s", "arg"))
	assert.NoError(t, sigilerr.With(nil, sigilerr.FieldPath("x")))
}

func TestWrapfFormatsAndPreservesChain(t *testing.T) {
	root := stderrors.New("timeout")
	err := sigilerr.Wrapf(root, sigilerr.CodeProviderUpstreamFailure, "embedding with %s model %s", "google", "gemini-embedding-001")

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "embedding with google model gemini-embedding-001")
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	enriched := sigilerr.With(stderrors.New("something broke"), sigilerr.FieldPath("/tmp/cache.json"))

	require.Error(t, enriched)
	assert.Equal(t, sigilerr.CodeServerInternalFailure, sigilerr.CodeOf(enriched))
	assert.Equal(t, "/tmp/cache.json", sigilerr.FieldsOf(enriched)["path"])
}

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := sigilerr.New(sigilerr.CodeIndexDatabaseFailure, "query failed")
	withCtx := sigilerr.With(base, sigilerr.FieldProvider("sqlite"))

	assert.Equal(t, sigilerr.CodeIndexDatabaseFailure, sigilerr.CodeOf(withCtx))
	assert.Equal(t, "sqlite", sigilerr.FieldsOf(withCtx)["provider"])
}

// ---------------------------------------------------------------------------
// CodeOf / HasCode
// ---------------------------------------------------------------------------

func TestHasCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code sigilerr.Code
		want bool
	}{
		{"matching code", sigilerr.New(sigilerr.CodeRecordGetNotFound, "gone"), sigilerr.CodeRecordGetNotFound, true},
		{"non-matching code", sigilerr.New(sigilerr.CodeRecordGetNotFound, "gone"), sigilerr.CodeIndexDatabaseFailure, false},
		{"nil error", nil, sigilerr.CodeRecordGetNotFound, false},
		{"plain stdlib error has no code", stderrors.New("plain"), sigilerr.CodeServerInternalFailure, false},
		{
			name: "wrapped coded error returns innermost code",
			err: sigilerr.Wrap(
				sigilerr.New(sigilerr.CodeIndexDatabaseFailure, "inner"),
				sigilerr.CodeServerInternalFailure, "outer",
			),
			code: sigilerr.CodeIndexDatabaseFailure,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sigilerr.HasCode(tt.err, tt.code))
		})
	}
}

func TestCodeOfNilAndPlain(t *testing.T) {
	assert.Equal(t, sigilerr.Code(""), sigilerr.CodeOf(nil))
	assert.Equal(t, sigilerr.Code(""), sigilerr.CodeOf(stderrors.New("plain")))
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := sigilerr.New(sigilerr.CodeCacheSaveFailure, "oops",
		sigilerr.Field("", "should-be-dropped"),
		sigilerr.FieldPath("kept"),
	)
	fields := sigilerr.FieldsOf(err)
	assert.Equal(t, "kept", fields["path"])
	assert.NotContains(t, fields, "")
}

func TestErrorIsWithWrappedChain(t *testing.T) {
	sentinel := stderrors.New("root cause")
	outer := sigilerr.Wrap(fmt.Errorf("mid: %w", sentinel), sigilerr.CodeServerInternalFailure, "handler")

	assert.ErrorIs(t, outer, sentinel)
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   sigilerr.Code
		status int
		check  func(error) bool
	}{
		{name: "record not found", code: sigilerr.CodeRecordGetNotFound, status: 404, check: sigilerr.IsNotFound},
		{name: "server entity not found", code: sigilerr.CodeServerEntityNotFound, status: 404, check: sigilerr.IsNotFound},
		{name: "invalid value", code: sigilerr.CodeConfigValidateInvalidValue, status: 400, check: sigilerr.IsInvalidInput},
		{name: "invalid format", code: sigilerr.CodeConfigParseInvalidFormat, status: 400, check: sigilerr.IsInvalidInput},
		{name: "cache invalid input", code: sigilerr.CodeCacheInvalidInput, status: 400, check: sigilerr.IsInvalidInput},
		{name: "upstream failure", code: sigilerr.CodeProviderUpstreamFailure, status: 502, check: sigilerr.IsUpstreamFailure},
		{name: "cache corrupt", code: sigilerr.CodeCacheLoadCorruptState, status: 500, check: sigilerr.IsCorruptState},
		{name: "index corrupt", code: sigilerr.CodeIndexLoadCorruptState, status: 500, check: sigilerr.IsCorruptState},
		{name: "provider response", code: sigilerr.CodeProviderResponseInvalid, status: 400, check: sigilerr.IsProviderFailure},
		{name: "internal", code: sigilerr.CodeServerInternalFailure, status: 500, check: func(err error) bool { return !sigilerr.IsNotFound(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sigilerr.New(tt.code, "boom")
			assert.Equal(t, tt.status, sigilerr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestClassificationNegativeCases(t *testing.T) {
	for _, err := range []error{nil, stderrors.New("plain"), sigilerr.New(sigilerr.CodeIndexDatabaseFailure, "db")} {
		assert.False(t, sigilerr.IsNotFound(err))
		assert.False(t, sigilerr.IsInvalidInput(err))
		assert.False(t, sigilerr.IsUpstreamFailure(err))
		assert.False(t, sigilerr.IsCorruptState(err))
		assert.False(t, sigilerr.IsProviderFailure(err))
	}
}

func TestHTTPStatusNilReturnsInternalServerError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, sigilerr.HTTPStatus(nil))
}

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := sigilerr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, sigilerr.CodeServerInternalFailure, sigilerr.CodeOf(joined))
}
