// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	openaisdk "github.com/openai/openai-go"

	"github.com/sigil-dev/recall/internal/provider"
)

// BuildEmbedParams exposes buildEmbedParams for white-box testing.
var BuildEmbedParams = func(req provider.EmbedRequest) openaisdk.EmbeddingNewParams {
	return buildEmbedParams(req)
}

// BuildChatParams exposes buildChatParams for white-box testing.
var BuildChatParams = func(req provider.GenerateRequest) openaisdk.ChatCompletionNewParams {
	return buildChatParams(req)
}
