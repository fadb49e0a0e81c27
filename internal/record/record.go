// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package record

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sigil-dev/recall/internal/jsonfile"
)

// Category is the fixed topic enumeration a knowledge record may belong to.
type Category string

const (
	CategoryHTMLCSS    Category = "html_css"
	CategoryJavaScript Category = "javascript"
	CategoryPython     Category = "python"
	CategoryGAS        Category = "gas"
	CategoryVBA        Category = "vba"
	CategoryOther      Category = "other"
)

// CategoryAll is accepted wherever a category filter is, and means no filter.
const CategoryAll = "all"

var categoryLabels = map[Category]string{
	CategoryHTMLCSS:    "HTML/CSS",
	CategoryJavaScript: "JavaScript",
	CategoryPython:     "Python",
	CategoryGAS:        "Google Apps Script",
	CategoryVBA:        "VBA",
	CategoryOther:      "Other / Manual",
}

// Categories returns every known category in display order.
func Categories() []Category {
	return []Category{CategoryHTMLCSS, CategoryJavaScript, CategoryPython, CategoryGAS, CategoryVBA, CategoryOther}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the human-readable name of c, or the raw value if unknown.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// NormalizeFilter maps a user-supplied category filter to the canonical form:
// "" and "all" become "" (no filter).
func NormalizeFilter(s string) string {
	s = strings.TrimSpace(s)
	if s == CategoryAll {
		return ""
	}
	return s
}

// ContentKind discriminates the two shapes of record content.
type ContentKind string

const (
	ContentKindCode   ContentKind = "code"
	ContentKindManual ContentKind = "manual"
)

// CodeContent is the payload of a code snippet record.
type CodeContent struct {
	HTML string
	CSS  string
	JS   string
}

// ManualContent is the payload of a prose / how-to record.
type ManualContent struct {
	Body string
}

// Artifacts are optional generated outputs attached to a record.
type Artifacts struct {
	SVG       string // generated visual diagram
	HTML      string // generated rendered preview
	ImagePath string
}

// Flags are the boolean projections of Artifacts used for filtered retrieval.
type Flags struct {
	HasVisualDiagram   bool
	HasRenderedPreview bool
	HasImage           bool
}

// Record is one knowledge record. Exactly one of Code or Manual is set,
// matching Kind.
type Record struct {
	ID          string
	Title       string
	Description string
	Tags        []string
	Category    Category // empty when absent
	Kind        ContentKind
	Code        *CodeContent
	Manual      *ManualContent
	Notes       string
	Artifacts   Artifacts
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SearchableText is the text embedded for the record: title, description
// and space-joined tags, skipping empty parts.
func (r *Record) SearchableText() string {
	parts := make([]string, 0, 3)
	if r.Title != "" {
		parts = append(parts, r.Title)
	}
	if r.Description != "" {
		parts = append(parts, r.Description)
	}
	if tags := strings.Join(r.Tags, " "); tags != "" {
		parts = append(parts, tags)
	}
	return strings.Join(parts, " ")
}

// Flags derives the artifact flags of r.
func (r *Record) Flags() Flags {
	return Flags{
		HasVisualDiagram:   r.Artifacts.SVG != "",
		HasRenderedPreview: r.Artifacts.HTML != "",
		HasImage:           r.Artifacts.ImagePath != "",
	}
}

// IndexCategory is the category under which r is indexed; absent
// categories index as "other".
func (r *Record) IndexCategory() Category {
	if r.Category == "" {
		return CategoryOther
	}
	return r.Category
}

// wireRecord is the flat on-disk shape of a record.
type wireRecord struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Category      string   `json:"category,omitempty"`
	ContentType   string   `json:"content_type,omitempty"`
	CodeHTML      *string  `json:"code_html,omitempty"`
	CodeCSS       *string  `json:"code_css,omitempty"`
	CodeJS        *string  `json:"code_js,omitempty"`
	Content       *string  `json:"content,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	GeneratedSVG  string   `json:"generated_svg,omitempty"`
	GeneratedHTML string   `json:"generated_html,omitempty"`
	ImagePath     string   `json:"image_path,omitempty"`
	CreatedAt     string   `json:"created_at,omitempty"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
}

// MarshalJSON writes r in the flat record-file layout.
func (r Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		Tags:          r.Tags,
		Category:      string(r.Category),
		ContentType:   string(r.Kind),
		Notes:         r.Notes,
		GeneratedSVG:  r.Artifacts.SVG,
		GeneratedHTML: r.Artifacts.HTML,
		ImagePath:     r.Artifacts.ImagePath,
		CreatedAt:     jsonfile.FormatTime(r.CreatedAt),
		UpdatedAt:     jsonfile.FormatTime(r.UpdatedAt),
	}
	switch {
	case r.Code != nil:
		w.ContentType = string(ContentKindCode)
		w.CodeHTML = nonEmpty(r.Code.HTML)
		w.CodeCSS = nonEmpty(r.Code.CSS)
		w.CodeJS = nonEmpty(r.Code.JS)
	case r.Manual != nil:
		w.ContentType = string(ContentKindManual)
		w.Content = nonEmpty(r.Manual.Body)
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the flat layout and resolves the content variant.
// Records without content_type are classified by the presence of code.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*r = Record{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		Tags:        w.Tags,
		Category:    Category(w.Category),
		Notes:       w.Notes,
		Artifacts: Artifacts{
			SVG:       w.GeneratedSVG,
			HTML:      w.GeneratedHTML,
			ImagePath: w.ImagePath,
		},
		CreatedAt: jsonfile.ParseTime(w.CreatedAt),
		UpdatedAt: jsonfile.ParseTime(w.UpdatedAt),
	}

	hasCode := deref(w.CodeHTML) != "" || deref(w.CodeCSS) != "" || deref(w.CodeJS) != ""
	kind := ContentKind(w.ContentType)
	if kind != ContentKindCode && kind != ContentKindManual {
		kind = ContentKindManual
		if hasCode {
			kind = ContentKindCode
		}
	}

	r.Kind = kind
	if kind == ContentKindCode {
		r.Code = &CodeContent{HTML: deref(w.CodeHTML), CSS: deref(w.CodeCSS), JS: deref(w.CodeJS)}
	} else {
		r.Manual = &ManualContent{Body: deref(w.Content)}
	}
	return nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
