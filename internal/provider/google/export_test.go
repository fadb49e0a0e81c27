// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"google.golang.org/genai"

	"github.com/sigil-dev/recall/internal/provider"
)

// BuildEmbedConfig exposes buildEmbedConfig for white-box testing.
var BuildEmbedConfig = func(req provider.EmbedRequest) *genai.EmbedContentConfig {
	return buildEmbedConfig(req)
}

// BuildGenerateConfig exposes buildGenerateConfig for white-box testing.
var BuildGenerateConfig = func(req provider.GenerateRequest) *genai.GenerateContentConfig {
	return buildGenerateConfig(req)
}
