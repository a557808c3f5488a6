// Package artifact places rendered markdown and its resources inside the Hugo
// site tree.
package artifact

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/starford/nbhugo/internal/apperr"
	"github.com/starford/nbhugo/internal/models"
	"github.com/starford/nbhugo/internal/notebook"
	"github.com/starford/nbhugo/internal/storage"
)

// OutputPrefix is the file name prefix the renderer gives extracted resources.
const OutputPrefix = "output_"

var imageRefRe = regexp.MustCompile(`(!\[[^\]]*\]\()` + OutputPrefix)

// Layout describes where artifacts go inside the site.
type Layout struct {
	// DefaultDestination is the content directory used when a notebook names
	// none, e.g. "content/post/".
	DefaultDestination string
	// StaticDir is Hugo's static directory, e.g. "static".
	StaticDir string
	// ResourcesPrefix is the directory below StaticDir, and the URL path,
	// under which resources are served, e.g. "resources".
	ResourcesPrefix string
}

// DefaultLayout matches a stock Hugo site.
func DefaultLayout() Layout {
	return Layout{
		DefaultDestination: "content/post/",
		StaticDir:          "static",
		ResourcesPrefix:    "resources",
	}
}

// Destination resolves the content directory: override, then stored, then
// the layout default. The result always ends with a slash.
func (l Layout) Destination(override, stored string) string {
	for _, d := range []string{override, stored, l.DefaultDestination} {
		if strings.TrimSpace(d) != "" {
			return notebook.NormalizeDir(d)
		}
	}
	return notebook.NormalizeDir("content/post")
}

// MarkdownPath returns <dest><slug>.md.
func (l Layout) MarkdownPath(dest, slug string) string {
	return path.Join(dest, slug+".md")
}

// ResourceDir returns <static>/<prefix>/<leaf(dest)>/<slug>.
func (l Layout) ResourceDir(dest, slug string) string {
	return path.Join(l.StaticDir, l.ResourcesPrefix, Leaf(dest), slug)
}

// ResourceURL returns the absolute URL path the resource dir is served at,
// with a trailing slash.
func (l Layout) ResourceURL(dest, slug string) string {
	return "/" + path.Join(l.ResourcesPrefix, Leaf(dest), slug) + "/"
}

// Leaf returns the last element of a content directory ("content/post/" ->
// "post").
func Leaf(dest string) string {
	return path.Base(strings.TrimRight(notebook.NormalizeDir(dest), "/"))
}

// RewriteImages points image references at extracted resources to url.
func RewriteImages(markdown, url string) string {
	return imageRefRe.ReplaceAllString(markdown, "${1}"+url+OutputPrefix)
}

// Writer persists rendered notebooks.
type Writer struct {
	store  storage.Provider
	layout Layout
	now    func() time.Time
}

// NewWriter creates a Writer over store.
func NewWriter(store storage.Provider, layout Layout) *Writer {
	return &Writer{store: store, layout: layout, now: time.Now}
}

// Layout returns the writer's layout.
func (w *Writer) Layout() Layout { return w.layout }

// Write stores markdown at <dest>/<slug>.md and every resource under the
// notebook's resource directory. The destination comes from override, then
// the notebook's render-to, then the layout default. No resource directory is
// created when resources is empty. Files in the resource directory that
// resources no longer names are removed. Files from a previous slug are left
// alone.
func (w *Writer) Write(notebookPath string, meta models.NotebookMetadata, markdown string, resources map[string][]byte, override string) (models.Artifact, error) {
	slug := meta.Slug()
	if slug == "" {
		return models.Artifact{}, fmt.Errorf("%s: slug: %w", notebookPath, apperr.ErrMissingFrontMatter)
	}
	if err := notebook.CheckSlug(slug); err != nil {
		return models.Artifact{}, fmt.Errorf("%s: %w", notebookPath, err)
	}
	dest := w.layout.Destination(override, meta.RenderTo())

	a := models.Artifact{
		Notebook:   notebookPath,
		Slug:       slug,
		Markdown:   w.layout.MarkdownPath(dest, slug),
		Resources:  len(resources),
		RenderedAt: w.now().UTC(),
	}

	// A resource directory created by this call is removed again on failure.
	created := false
	fail := func(err error) (models.Artifact, error) {
		if created {
			_ = w.store.RemoveAll(a.ResourceDir)
		}
		return models.Artifact{}, err
	}

	if len(resources) > 0 {
		a.ResourceDir = w.layout.ResourceDir(dest, slug)
		created = !w.store.Exists(a.ResourceDir)
		markdown = RewriteImages(markdown, w.layout.ResourceURL(dest, slug))

		names := make([]string, 0, len(resources))
		for name := range resources {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := w.store.Write(path.Join(a.ResourceDir, name), resources[name]); err != nil {
				return fail(fmt.Errorf("write resource %s: %w", name, err))
			}
		}
	}

	if err := w.store.Write(a.Markdown, []byte(markdown)); err != nil {
		return fail(fmt.Errorf("write markdown: %w", err))
	}
	if a.ResourceDir != "" {
		if err := w.pruneResources(a.ResourceDir, resources); err != nil {
			return models.Artifact{}, err
		}
	}
	return a, nil
}

func (w *Writer) pruneResources(dir string, keep map[string][]byte) error {
	existing, err := w.store.List(dir, "")
	if err != nil {
		return err
	}
	for _, f := range existing {
		if _, ok := keep[path.Base(f)]; ok {
			continue
		}
		if err := w.store.Delete(f); err != nil {
			return fmt.Errorf("prune resource %s: %w", f, err)
		}
	}
	return nil
}

// Remove deletes an artifact's markdown file and resource directory. Missing
// files are not an error.
func (w *Writer) Remove(a models.Artifact) error {
	if a.Markdown != "" && w.store.Exists(a.Markdown) {
		if err := w.store.Delete(a.Markdown); err != nil {
			return err
		}
	}
	if a.ResourceDir != "" {
		if err := w.store.RemoveAll(a.ResourceDir); err != nil {
			return err
		}
	}
	return nil
}

// Locate returns the artifact a notebook with slug would produce under dest,
// without touching the disk.
func (w *Writer) Locate(notebookPath, dest, slug string) models.Artifact {
	dest = w.layout.Destination(dest, "")
	return models.Artifact{
		Notebook:    notebookPath,
		Slug:        slug,
		Markdown:    w.layout.MarkdownPath(dest, slug),
		ResourceDir: w.layout.ResourceDir(dest, slug),
	}
}
