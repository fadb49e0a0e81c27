// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package retrieval

import (
	"fmt"
	"strings"

	"github.com/sigil-dev/recall/internal/record"
)

const answerPreamble = `You are an implementation expert for HTML/CSS and programming.
Answer the question concretely using the reference material below.
Include code examples when code is relevant.`

const noReferences = "(no reference material)"

// BuildPrompt renders the generation prompt for question from sources.
func BuildPrompt(question string, sources []Source) string {
	var b strings.Builder
	b.WriteString(answerPreamble)
	b.WriteString("\n\n")
	b.WriteString(FormatSources(sources))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// FormatSources renders sources as numbered reference blocks.
func FormatSources(sources []Source) string {
	if len(sources) == 0 {
		return noReferences
	}

	parts := make([]string, 0, len(sources))
	for i, s := range sources {
		title := s.Match.Metadata.Title
		kind := s.Match.Metadata.ContentKind
		if s.Record != nil {
			title, kind = s.Record.Title, s.Record.Kind
		}
		if title == "" {
			title = "unknown"
		}
		if kind == "" {
			kind = record.ContentKindCode
		}

		var b strings.Builder
		fmt.Fprintf(&b, "[Reference %d] %s\n", i+1, title)
		fmt.Fprintf(&b, "Type: %s\n", kind)
		fmt.Fprintf(&b, "Content: %s\n", s.Match.Document)
		if s.Record != nil && s.Record.Code != nil {
			writeCode(&b, "HTML", s.Record.Code.HTML)
			writeCode(&b, "CSS", s.Record.Code.CSS)
			writeCode(&b, "JavaScript", s.Record.Code.JS)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, "\n")
}

func writeCode(b *strings.Builder, label, code string) {
	if code == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, code)
}
