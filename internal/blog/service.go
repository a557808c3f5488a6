// Package blog ties the metadata manager, renderer, writer and registry
// together into the operations the watcher, the CLI, the HTTP API and the MCP
// server run against notebooks.
package blog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/starford/nbhugo/internal/apperr"
	"github.com/starford/nbhugo/internal/artifact"
	"github.com/starford/nbhugo/internal/checksum"
	"github.com/starford/nbhugo/internal/logfields"
	"github.com/starford/nbhugo/internal/models"
	"github.com/starford/nbhugo/internal/notebook"
	"github.com/starford/nbhugo/internal/registry"
	"github.com/starford/nbhugo/internal/render"
	"github.com/starford/nbhugo/internal/storage"
)

// Inspection is what the watcher needs to know about a notebook on disk.
type Inspection struct {
	Path     string
	Stem     string
	Slug     string
	RenderTo string
	// Stamped is true when both the front matter slug and the render
	// destination are present.
	Stamped bool
	// Checksum of the notebook bytes.
	Checksum string
	// UpToDate is true when a recorded artifact was rendered from exactly
	// these bytes and is still on disk.
	UpToDate bool
}

// NotebookInfo is a notebook listing entry.
type NotebookInfo struct {
	Path      string            `json:"path"`
	Title     string            `json:"title,omitempty"`
	Slug      string            `json:"slug,omitempty"`
	Date      string            `json:"date,omitempty"`
	RenderTo  string            `json:"render_to,omitempty"`
	Stamped   bool              `json:"stamped"`
	Checksum  string            `json:"checksum"`
	Artifacts []models.Artifact `json:"artifacts"`
}

// NotebookDetail adds the front matter and cell counts to NotebookInfo.
type NotebookDetail struct {
	NotebookInfo
	FrontMatter map[string]any `json:"front_matter,omitempty"`
	Cells       map[string]int `json:"cells"`
	Language    string         `json:"language,omitempty"`
}

// RenderResult reports one notebook of a batch render.
type RenderResult struct {
	Notebook string           `json:"notebook"`
	Artifact *models.Artifact `json:"artifact,omitempty"`
	Err      error            `json:"-"`
}

// Options configures a Service.
type Options struct {
	// NotebooksDir is the site-relative directory holding the notebooks.
	NotebooksDir string
	// ContentDirs are scanned for stale output by filename stem when a
	// notebook is deleted.
	ContentDirs []string
}

// Service runs notebook operations. Mutating operations are serialized.
type Service struct {
	mu       sync.Mutex
	store    storage.Provider
	meta     *notebook.Manager
	renderer *render.Renderer
	writer   *artifact.Writer
	reg      registry.Registry
	opts     Options
	logger   *slog.Logger
}

// NewService creates a new blog service.
func NewService(store storage.Provider, meta *notebook.Manager, renderer *render.Renderer, writer *artifact.Writer, reg registry.Registry, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.NotebooksDir == "" {
		opts.NotebooksDir = "notebooks"
	}
	return &Service{
		store:    store,
		meta:     meta,
		renderer: renderer,
		writer:   writer,
		reg:      reg,
		opts:     opts,
		logger:   logger,
	}
}

// NotebooksDir returns the site-relative notebooks directory.
func (s *Service) NotebooksDir() string { return s.opts.NotebooksDir }

// NotebookPath resolves a bare notebook name ("post.ipynb" or "post") to its
// site-relative path.
func (s *Service) NotebookPath(name string) string {
	if path.Ext(name) != notebook.Ext {
		name += notebook.Ext
	}
	return path.Join(s.opts.NotebooksDir, path.Base(name))
}

// Inspect reads the notebook at p without changing anything.
func (s *Service) Inspect(p string) (*Inspection, error) {
	nb, data, err := s.load(p)
	if err != nil {
		return nil, err
	}
	in := &Inspection{
		Path:     p,
		Stem:     notebook.Stem(p),
		Slug:     nb.Metadata.Slug(),
		RenderTo: nb.Metadata.RenderTo(),
		Checksum: checksum.Sum(data),
	}
	in.Stamped = in.Slug != "" && in.RenderTo != ""

	recorded, err := s.reg.Lookup(p)
	if err != nil {
		return nil, err
	}
	for _, a := range recorded {
		if a.Checksum == in.Checksum && s.store.Exists(a.Markdown) {
			in.UpToDate = true
			break
		}
	}
	return in, nil
}

// Stamp fills in missing metadata. changed is false when the notebook was
// already complete and nothing was written.
func (s *Service) Stamp(ctx context.Context, p string) (changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.Update(ctx, p, notebook.Overrides{})
}

// UpdateMetadata applies explicit metadata overrides.
func (s *Service) UpdateMetadata(ctx context.Context, p string, o notebook.Overrides) (changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.store.Exists(p) {
		return false, fmt.Errorf("%s: %w", p, apperr.ErrNotFound)
	}
	return s.meta.Update(ctx, p, o)
}

// Rename moves the notebook at p so its file name matches slug and returns the
// new path. An existing notebook at the target is never overwritten.
func (s *Service) Rename(p, slug string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := notebook.CheckSlug(slug); err != nil {
		return "", fmt.Errorf("rename %s: %w", p, err)
	}
	target := notebook.WithStem(p, slug)
	if target == p {
		return p, nil
	}
	if s.store.Exists(target) {
		return "", fmt.Errorf("rename %s to %s: %w", p, target, apperr.ErrAlreadyExists)
	}
	if err := s.store.Move(p, target); err != nil {
		return "", err
	}
	s.logger.Info("notebook renamed to match slug", logfields.Notebook(p), logfields.Path(target), logfields.Slug(slug))
	return target, nil
}

// AddNotebook stores data as a new notebook named name in the notebooks
// directory. The bytes must parse as a notebook. The watcher picks the file up
// like any other created notebook.
func (s *Service) AddNotebook(name string, data []byte) (string, error) {
	p := s.NotebookPath(name)
	if notebook.Ignored(p) {
		return "", fmt.Errorf("%s: ignored notebook name", name)
	}
	if _, err := notebook.Parse(data); err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store.Exists(p) {
		return "", fmt.Errorf("%s: %w", p, apperr.ErrAlreadyExists)
	}
	if err := s.store.Write(p, data); err != nil {
		return "", err
	}
	s.logger.Info("notebook added", logfields.Notebook(p))
	return p, nil
}

// Render converts the notebook at p and writes it into the site, replacing
// whatever it rendered before. The previous output is only removed once the
// new render has succeeded. dest overrides the stored render destination.
func (s *Service) Render(ctx context.Context, p, dest string) (models.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.render(ctx, p, dest)
}

func (s *Service) render(_ context.Context, p, dest string) (models.Artifact, error) {
	start := time.Now()
	nb, data, err := s.load(p)
	if err != nil {
		return models.Artifact{}, err
	}
	// Keep the metadata the writer needs before preprocessors touch nb.
	meta := nb.Metadata

	res, err := s.renderer.Render(nb)
	if err != nil {
		return models.Artifact{}, fmt.Errorf("%s: %w", p, err)
	}

	recorded, err := s.reg.Lookup(p)
	if err != nil {
		return models.Artifact{}, err
	}

	a, err := s.writer.Write(p, meta, res.Markdown, res.Resources, dest)
	if err != nil {
		return models.Artifact{}, err
	}
	a.Checksum = checksum.Sum(data)

	if err := s.removeSuperseded(recorded, a); err != nil {
		return models.Artifact{}, err
	}
	if err := s.reg.Forget(p); err != nil {
		return models.Artifact{}, err
	}
	if err := s.reg.Record(a); err != nil {
		return models.Artifact{}, err
	}

	s.logger.Info("notebook rendered",
		logfields.Notebook(p),
		logfields.Output(a.Markdown),
		slog.Int("resources", a.Resources),
		logfields.Duration(time.Since(start)))
	return a, nil
}

// RenderAll stamps and renders every notebook in the notebooks directory. A
// non-empty dest overrides every notebook's destination for this run only. A
// failing notebook does not stop the batch.
func (s *Service) RenderAll(ctx context.Context, dest string) ([]RenderResult, error) {
	paths, err := s.Notebooks()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RenderResult, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		r := RenderResult{Notebook: p}
		if _, err := s.meta.Update(ctx, p, notebook.Overrides{}); err != nil {
			r.Err = err
		} else if a, err := s.render(ctx, p, dest); err != nil {
			r.Err = err
		} else {
			r.Artifact = &a
		}
		if r.Err != nil {
			s.logger.Error("render failed", logfields.Notebook(p), logfields.Error(r.Err))
		}
		out = append(out, r)
	}
	return out, nil
}

// DeleteArtifacts removes everything rendered from the notebook at p: the
// artifacts recorded in the registry plus, for every configured content
// directory, <dir>/<stem>.md and its resource directory.
func (s *Service) DeleteArtifacts(p string) ([]models.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.deleteRecorded(p)
	if err != nil {
		return removed, err
	}

	stem := notebook.Stem(p)
	for _, dir := range s.opts.ContentDirs {
		a := s.writer.Locate(p, dir, stem)
		mdExists := s.store.Exists(a.Markdown)
		resExists := s.store.Exists(a.ResourceDir)
		if !mdExists && !resExists {
			continue
		}
		if !resExists {
			a.ResourceDir = ""
		}
		if err := s.writer.Remove(a); err != nil {
			return removed, err
		}
		removed = append(removed, a)
	}

	for _, a := range removed {
		s.logger.Info("removed rendered output", logfields.Notebook(p), logfields.Output(a.Markdown))
	}
	return removed, nil
}

// removeSuperseded deletes the parts of earlier renders that current does not
// reuse: markdown files at another path and resource directories it no
// longer writes to.
func (s *Service) removeSuperseded(recorded []models.Artifact, current models.Artifact) error {
	for _, old := range recorded {
		stale := models.Artifact{Notebook: old.Notebook, Slug: old.Slug}
		if old.Markdown != current.Markdown {
			stale.Markdown = old.Markdown
		}
		if old.ResourceDir != current.ResourceDir {
			stale.ResourceDir = old.ResourceDir
		}
		if stale.Markdown == "" && stale.ResourceDir == "" {
			continue
		}
		if err := s.writer.Remove(stale); err != nil {
			return err
		}
		s.logger.Info("removed superseded output", logfields.Notebook(old.Notebook), logfields.Output(old.Markdown))
	}
	return nil
}

func (s *Service) deleteRecorded(p string) ([]models.Artifact, error) {
	recorded, err := s.reg.Lookup(p)
	if err != nil {
		return nil, err
	}
	for _, a := range recorded {
		if err := s.writer.Remove(a); err != nil {
			return nil, err
		}
	}
	if err := s.reg.Forget(p); err != nil {
		return nil, err
	}
	return recorded, nil
}

// Notebooks lists the notebooks nbhugo manages, skipping ignored names.
func (s *Service) Notebooks() ([]string, error) {
	paths, err := s.store.List(s.opts.NotebooksDir, notebook.Ext)
	if err != nil {
		return nil, err
	}
	out := paths[:0]
	for _, p := range paths {
		if !notebook.Ignored(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// ListNotebooks returns a summary of every managed notebook. Notebooks that
// fail to parse are listed with only their path.
func (s *Service) ListNotebooks(_ context.Context) ([]NotebookInfo, error) {
	paths, err := s.Notebooks()
	if err != nil {
		return nil, err
	}
	out := make([]NotebookInfo, 0, len(paths))
	for _, p := range paths {
		nb, data, err := s.load(p)
		if err != nil {
			s.logger.Debug("list: unreadable notebook", logfields.Notebook(p), logfields.Error(err))
			out = append(out, NotebookInfo{Path: p, Artifacts: []models.Artifact{}})
			continue
		}
		info, err := s.info(p, nb, data)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// GetNotebook returns the detail view of the notebook at p.
func (s *Service) GetNotebook(_ context.Context, p string) (*NotebookDetail, error) {
	nb, data, err := s.load(p)
	if err != nil {
		return nil, err
	}
	info, err := s.info(p, nb, data)
	if err != nil {
		return nil, err
	}
	d := &NotebookDetail{
		NotebookInfo: info,
		Cells:        make(map[string]int),
		Language:     nb.Metadata.Language(),
	}
	for _, c := range nb.Cells {
		d.Cells[c.CellType]++
	}
	if fm := nb.Metadata.FrontMatter; fm != nil {
		d.FrontMatter = make(map[string]any)
		for _, f := range fm.Fields() {
			d.FrontMatter[f.Key] = f.Value
		}
	}
	return d, nil
}

func (s *Service) info(p string, nb *models.Notebook, data []byte) (NotebookInfo, error) {
	recorded, err := s.reg.Lookup(p)
	if err != nil {
		return NotebookInfo{}, err
	}
	info := NotebookInfo{
		Path:      p,
		Slug:      nb.Metadata.Slug(),
		RenderTo:  nb.Metadata.RenderTo(),
		Checksum:  checksum.Sum(data),
		Artifacts: nonNilSlice(recorded),
	}
	if fm := nb.Metadata.FrontMatter; fm != nil {
		info.Title = fm.Title
		info.Date = fm.Date
	}
	info.Stamped = info.Slug != "" && info.RenderTo != ""
	return info, nil
}

func (s *Service) load(p string) (*models.Notebook, []byte, error) {
	nb, data, err := s.meta.Load(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("%s: %w", p, apperr.ErrNotFound)
	}
	return nb, data, err
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
