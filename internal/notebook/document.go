// Package notebook reads and rewrites Jupyter notebook documents and manages
// the metadata block nbhugo stores inside them.
package notebook

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/starford/nbhugo/internal/apperr"
	"github.com/starford/nbhugo/internal/models"
)

// Parse decodes notebook bytes into the typed rendering view.
func Parse(data []byte) (*models.Notebook, error) {
	var nb models.Notebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrMalformedNotebook, err)
	}
	if nb.NBFormat != 0 && nb.NBFormat < 4 {
		return nil, fmt.Errorf("%w: nbformat %d is not supported", apperr.ErrMalformedNotebook, nb.NBFormat)
	}
	return &nb, nil
}

// Document is a notebook held as raw JSON so that a rewrite only touches the
// metadata keys nbhugo owns. Everything else round-trips unchanged.
type Document struct {
	top  map[string]json.RawMessage
	meta map[string]json.RawMessage
}

// ParseDocument decodes notebook bytes into a rewritable Document.
func ParseDocument(data []byte) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrMalformedNotebook, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: document is null", apperr.ErrMalformedNotebook)
	}
	meta := map[string]json.RawMessage{}
	if raw, ok := top["metadata"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", apperr.ErrMalformedNotebook, err)
		}
	}
	return &Document{top: top, meta: meta}, nil
}

// FrontMatter returns the stored front matter, or an empty value when the
// notebook has none.
func (d *Document) FrontMatter() (models.FrontMatter, error) {
	var fm models.FrontMatter
	raw, ok := d.meta[models.FrontMatterKey]
	if !ok || isNull(raw) {
		return fm, nil
	}
	if err := json.Unmarshal(raw, &fm); err != nil {
		return fm, fmt.Errorf("%w: front-matter: %v", apperr.ErrMalformedNotebook, err)
	}
	return fm, nil
}

// HugoJupyter returns the stored nbhugo settings block.
func (d *Document) HugoJupyter() (models.HugoJupyter, error) {
	var hj models.HugoJupyter
	raw, ok := d.meta[models.HugoJupyterKey]
	if !ok || isNull(raw) {
		return hj, nil
	}
	if err := json.Unmarshal(raw, &hj); err != nil {
		return hj, fmt.Errorf("%w: hugo-jupyter: %v", apperr.ErrMalformedNotebook, err)
	}
	return hj, nil
}

// SetFrontMatter replaces the front-matter metadata entry.
func (d *Document) SetFrontMatter(fm models.FrontMatter) error {
	return d.setMeta(models.FrontMatterKey, fm)
}

// SetHugoJupyter replaces nbhugo's settings block.
func (d *Document) SetHugoJupyter(hj models.HugoJupyter) error {
	return d.setMeta(models.HugoJupyterKey, hj)
}

func (d *Document) setMeta(key string, v any) error {
	raw, err := marshal(v)
	if err != nil {
		return fmt.Errorf("notebook: encode %s: %w", key, err)
	}
	d.meta[key] = raw
	return nil
}

// Bytes serializes the document the way Jupyter writes notebooks: sorted keys,
// one-space indent, no HTML escaping, trailing newline. The output is stable,
// so serializing an unchanged document twice yields identical bytes.
func (d *Document) Bytes() ([]byte, error) {
	meta, err := marshal(d.meta)
	if err != nil {
		return nil, fmt.Errorf("notebook: encode metadata: %w", err)
	}
	top := make(map[string]json.RawMessage, len(d.top)+1)
	for k, v := range d.top {
		top[k] = v
	}
	top["metadata"] = meta

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", " ")
	if err := enc.Encode(top); err != nil {
		return nil, fmt.Errorf("notebook: encode document: %w", err)
	}
	return buf.Bytes(), nil
}

func marshal(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
