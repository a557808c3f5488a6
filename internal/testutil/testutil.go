// Package testutil provides shared helpers for building throwaway Hugo sites
// and notebooks in tests.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/nbhugo/internal/storage"
)

// Site creates a temporary Hugo site with config.toml, notebooks/ and
// content/post/ and returns its root and a storage provider over it.
func Site(t *testing.T) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"notebooks", "content/post", "static"} {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "config.toml"), []byte("baseURL = \"http://example.org/\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// Cell is a notebook cell in its JSON shape.
type Cell = map[string]any

// CodeCell returns a code cell with the given source and outputs.
func CodeCell(source string, outputs ...map[string]any) Cell {
	if outputs == nil {
		outputs = []map[string]any{}
	}
	return Cell{
		"cell_type":       "code",
		"execution_count": 1,
		"metadata":        map[string]any{},
		"source":          lines(source),
		"outputs":         outputs,
	}
}

// MarkdownCell returns a markdown cell.
func MarkdownCell(source string) Cell {
	return Cell{
		"cell_type": "markdown",
		"metadata":  map[string]any{},
		"source":    lines(source),
	}
}

// StreamOutput returns a stdout stream output.
func StreamOutput(text string) map[string]any {
	return map[string]any{"output_type": "stream", "name": "stdout", "text": lines(text)}
}

// PNGOutput returns a display_data output carrying a PNG image.
func PNGOutput(data []byte) map[string]any {
	return map[string]any{
		"output_type": "display_data",
		"metadata":    map[string]any{},
		"data": map[string]any{
			"image/png":  base64.StdEncoding.EncodeToString(data),
			"text/plain": []string{"<Figure size 640x480 with 1 Axes>"},
		},
	}
}

// StampedMetadata returns notebook metadata that already carries front
// matter and a render destination.
func StampedMetadata(slug, renderTo string) map[string]any {
	return map[string]any{
		"front-matter": map[string]any{
			"title":    strings.ReplaceAll(slug, "-", " "),
			"subtitle": "Generic subtitle",
			"date":     "2024-01-02",
			"slug":     slug,
			"toc":      "true",
		},
		"hugo-jupyter": map[string]any{"render-to": renderTo},
		"kernelspec":   map[string]any{"name": "python3", "display_name": "Python 3", "language": "python"},
	}
}

// NotebookBytes encodes an nbformat v4 notebook.
func NotebookBytes(t *testing.T, metadata map[string]any, cells ...Cell) []byte {
	t.Helper()
	if metadata == nil {
		metadata = map[string]any{}
	}
	if cells == nil {
		cells = []Cell{}
	}
	data, err := json.MarshalIndent(map[string]any{
		"cells":          cells,
		"metadata":       metadata,
		"nbformat":       4,
		"nbformat_minor": 5,
	}, "", " ")
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// WriteNotebook writes a notebook to path relative to the site root.
func WriteNotebook(t *testing.T, root, path string, metadata map[string]any, cells ...Cell) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, NotebookBytes(t, metadata, cells...), 0o644); err != nil {
		t.Fatal(err)
	}
}

// lines splits s the way Jupyter stores multi-line strings.
func lines(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.SplitAfter(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}
