// Package render converts Jupyter notebooks into Hugo-flavoured markdown.
//
// A render runs the configured preprocessors over the notebook, converts the
// cells and their outputs to markdown while extracting images as resources,
// normalizes the vertical whitespace of the result and prepends the post's
// front matter followed by a <!--more--> marker so Hugo does not build its own
// summary.
package render

import (
	"fmt"
	"strings"

	"github.com/starford/nbhugo/internal/apperr"
	"github.com/starford/nbhugo/internal/models"
	"github.com/starford/nbhugo/internal/notebook"
)

// Front matter formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// HTML output modes.
const (
	HTMLMarkdown = "markdown"
	HTMLRaw      = "raw"
)

// SummaryDivider stops Hugo from generating a summary out of the post body.
const SummaryDivider = "<!--more-->"

// Result is the rendered markdown and the resources it references, keyed by
// file name.
type Result struct {
	Markdown  string
	Resources map[string][]byte
}

// Renderer converts notebooks to markdown. It is safe for concurrent use as
// long as its preprocessors are.
type Renderer struct {
	preprocessors []Preprocessor
	format        string
	htmlMode      string
	html          *htmlConverter
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithPreprocessors appends preprocessors after the default cell cleaner.
func WithPreprocessors(p ...Preprocessor) Option {
	return func(r *Renderer) { r.preprocessors = append(r.preprocessors, p...) }
}

// WithFrontMatterFormat selects FormatYAML or FormatJSON.
func WithFrontMatterFormat(format string) Option {
	return func(r *Renderer) { r.format = format }
}

// WithHTMLMode selects how text/html outputs are emitted.
func WithHTMLMode(mode string) Option {
	return func(r *Renderer) { r.htmlMode = mode }
}

// New creates a Renderer with the code cell cleaner installed.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		preprocessors: []Preprocessor{CleanCodeCells{}},
		format:        FormatYAML,
		htmlMode:      HTMLMarkdown,
		html:          newHTMLConverter(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RenderBytes parses raw notebook bytes and renders them.
func (r *Renderer) RenderBytes(data []byte) (*Result, error) {
	nb, err := notebook.Parse(data)
	if err != nil {
		return nil, err
	}
	return r.Render(nb)
}

// Render converts nb. Preprocessors mutate nb in place. A notebook without
// front matter is rejected with apperr.ErrMissingFrontMatter.
func (r *Renderer) Render(nb *models.Notebook) (*Result, error) {
	if nb.Metadata.FrontMatter == nil {
		return nil, apperr.ErrMissingFrontMatter
	}
	fm, err := r.frontMatter(*nb.Metadata.FrontMatter)
	if err != nil {
		return nil, err
	}

	for _, p := range r.preprocessors {
		if err := p.Preprocess(nb); err != nil {
			return nil, fmt.Errorf("render: preprocess: %w", err)
		}
	}

	body, resources, err := r.convert(nb)
	if err != nil {
		return nil, err
	}

	markdown := strings.Join([]string{"---", fm, "---", SummaryDivider, Normalize(body)}, "\n")
	return &Result{Markdown: markdown, Resources: resources}, nil
}
