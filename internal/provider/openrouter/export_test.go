// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openrouter

import (
	openaisdk "github.com/openai/openai-go"

	"github.com/sigil-dev/recall/internal/provider"
)

// BuildParams exposes buildParams for white-box testing.
var BuildParams = func(req provider.GenerateRequest) openaisdk.ChatCompletionNewParams {
	return buildParams(req)
}
