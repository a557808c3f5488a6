package registry

import (
	"bytes"
	"log/slog"
	"path"

	"github.com/adrg/frontmatter"

	"github.com/starford/nbhugo/internal/logfields"
	"github.com/starford/nbhugo/internal/models"
	"github.com/starford/nbhugo/internal/notebook"
	"github.com/starford/nbhugo/internal/storage"
)

// Locator maps a notebook's destination and slug to artifact paths.
type Locator interface {
	MarkdownPath(dest, slug string) string
	ResourceDir(dest, slug string) string
}

type postFrontMatter struct {
	Slug string `yaml:"slug" json:"slug"`
}

// Reconstruct repopulates reg from the site tree. Every notebook in
// notebooksDir whose slug has a markdown file in one of contentDirs carrying
// the same slug in its front matter is recorded. It returns the number of
// artifacts recorded.
func Reconstruct(reg Registry, store storage.Provider, loc Locator, notebooksDir string, contentDirs []string, logger *slog.Logger) (int, error) {
	paths, err := store.List(notebooksDir, notebook.Ext)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, p := range paths {
		if notebook.Ignored(p) {
			continue
		}
		data, err := store.Read(p)
		if err != nil {
			logger.Warn("reconstruct: read failed", logfields.Notebook(p), logfields.Error(err))
			continue
		}
		nb, err := notebook.Parse(data)
		if err != nil {
			logger.Debug("reconstruct: skipping notebook", logfields.Notebook(p), logfields.Error(err))
			continue
		}
		slug := nb.Metadata.Slug()
		if slug == "" {
			continue
		}

		for _, dir := range contentDirs {
			dest := notebook.NormalizeDir(dir)
			md := loc.MarkdownPath(dest, slug)
			if !store.Exists(md) || markdownSlug(store, md) != slug {
				continue
			}
			a := models.Artifact{Notebook: p, Slug: slug, Markdown: md}
			if res := loc.ResourceDir(dest, slug); store.Exists(res) {
				a.ResourceDir = res
			}
			if err := reg.Record(a); err != nil {
				return n, err
			}
			n++
			logger.Debug("reconstruct: recorded", logfields.Notebook(p), logfields.Output(md))
		}
	}
	return n, nil
}

func markdownSlug(store storage.Provider, md string) string {
	data, err := store.Read(md)
	if err != nil {
		return ""
	}
	var fm postFrontMatter
	if _, err := frontmatter.Parse(bytes.NewReader(data), &fm); err != nil {
		return ""
	}
	if fm.Slug == "" {
		return path.Base(md[:len(md)-len(path.Ext(md))])
	}
	return fm.Slug
}
