// Package models defines the domain types for nbhugo.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Metadata keys nbhugo owns inside a notebook's metadata object.
const (
	FrontMatterKey = "front-matter"
	HugoJupyterKey = "hugo-jupyter"
)

// Cell types.
const (
	CellCode     = "code"
	CellMarkdown = "markdown"
	CellRaw      = "raw"
)

// Notebook is the typed view of an nbformat v4 document used for rendering.
// Keys nbhugo does not understand are dropped from this view; rewrites of the
// file go through the raw document in package notebook instead.
type Notebook struct {
	Cells         []Cell           `json:"cells"`
	Metadata      NotebookMetadata `json:"metadata"`
	NBFormat      int              `json:"nbformat"`
	NBFormatMinor int              `json:"nbformat_minor"`
}

// NotebookMetadata holds the metadata fields nbhugo reads.
type NotebookMetadata struct {
	FrontMatter  *FrontMatter  `json:"front-matter,omitempty"`
	HugoJupyter  *HugoJupyter  `json:"hugo-jupyter,omitempty"`
	KernelSpec   *KernelSpec   `json:"kernelspec,omitempty"`
	LanguageInfo *LanguageInfo `json:"language_info,omitempty"`
}

// Language returns the notebook's kernel language, or "" when unknown.
func (m NotebookMetadata) Language() string {
	if m.LanguageInfo != nil && m.LanguageInfo.Name != "" {
		return m.LanguageInfo.Name
	}
	if m.KernelSpec != nil {
		return m.KernelSpec.Language
	}
	return ""
}

// Slug returns the stored front-matter slug, or "".
func (m NotebookMetadata) Slug() string {
	if m.FrontMatter == nil {
		return ""
	}
	return m.FrontMatter.Slug
}

// RenderTo returns the stored render destination, or "".
func (m NotebookMetadata) RenderTo() string {
	if m.HugoJupyter == nil {
		return ""
	}
	return m.HugoJupyter.RenderTo
}

// HugoJupyter is nbhugo's own settings block.
type HugoJupyter struct {
	RenderTo string `json:"render-to"`
}

type KernelSpec struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Language    string `json:"language,omitempty"`
}

type LanguageInfo struct {
	Name          string `json:"name,omitempty"`
	FileExtension string `json:"file_extension,omitempty"`
}

// Cell is a single notebook cell.
type Cell struct {
	CellType string          `json:"cell_type"`
	Source   MultilineString `json:"source"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	Outputs  []Output        `json:"outputs,omitempty"`
}

// RawMimetype returns the raw cell's declared format, if any.
func (c Cell) RawMimetype() string {
	for _, key := range []string{"raw_mimetype", "format"} {
		if v, ok := c.Metadata[key].(string); ok {
			return v
		}
	}
	return ""
}

// Output is one entry of a code cell's outputs list.
type Output struct {
	OutputType string                     `json:"output_type"`
	Name       string                     `json:"name,omitempty"`
	Text       MultilineString            `json:"text,omitempty"`
	Data       map[string]MultilineString `json:"data,omitempty"`
	EName      string                     `json:"ename,omitempty"`
	EValue     string                     `json:"evalue,omitempty"`
	Traceback  []string                   `json:"traceback,omitempty"`
}

// MultilineString decodes nbformat's "string or list of strings" fields.
// JSON values of any other shape (widget state, application/json bundles)
// decode to the empty string.
type MultilineString string

func (s *MultilineString) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = MultilineString(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*s = MultilineString(strings.Join(many, ""))
		return nil
	}
	*s = ""
	return nil
}

func (s MultilineString) String() string { return string(s) }

// FrontMatter is the post metadata carried by a notebook and emitted at the top
// of the rendered markdown. Keys other than the known ones are kept in Extra.
type FrontMatter struct {
	Title    string
	Subtitle string
	Date     string
	Slug     string
	TOC      string
	Extra    map[string]any
}

var frontMatterKeys = []string{"title", "subtitle", "date", "slug", "toc"}

func (f *FrontMatter) field(key string) *string {
	switch key {
	case "title":
		return &f.Title
	case "subtitle":
		return &f.Subtitle
	case "date":
		return &f.Date
	case "slug":
		return &f.Slug
	case "toc":
		return &f.TOC
	}
	return nil
}

// Fields returns the front matter as ordered key/value pairs: known keys
// first in their canonical order, then extra keys sorted by name.
func (f FrontMatter) Fields() []Field {
	out := make([]Field, 0, len(frontMatterKeys)+len(f.Extra))
	for _, key := range frontMatterKeys {
		if v := *f.field(key); v != "" {
			out = append(out, Field{Key: key, Value: v})
		}
	}
	extra := make([]string, 0, len(f.Extra))
	for k := range f.Extra {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		out = append(out, Field{Key: k, Value: f.Extra[k]})
	}
	return out
}

// Field is one front matter entry.
type Field struct {
	Key   string
	Value any
}

func (f FrontMatter) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(frontMatterKeys)+len(f.Extra))
	for _, field := range f.Fields() {
		m[field.Key] = field.Value
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (f *FrontMatter) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*f = FrontMatter{}
	for k, v := range m {
		if dst := f.field(k); dst != nil {
			if v != nil {
				*dst = scalarString(v)
			}
			continue
		}
		if f.Extra == nil {
			f.Extra = make(map[string]any)
		}
		f.Extra[k] = v
	}
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}
