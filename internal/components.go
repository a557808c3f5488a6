package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/nbhugo/internal/apperr"
	"github.com/starford/nbhugo/internal/artifact"
	"github.com/starford/nbhugo/internal/blog"
	"github.com/starford/nbhugo/internal/notebook"
	"github.com/starford/nbhugo/internal/registry"
	"github.com/starford/nbhugo/internal/render"
	"github.com/starford/nbhugo/internal/storage"
)

var errConfigRequired = errors.New("config is required")

// siteConfigNames are the files that mark a directory as a Hugo site.
var siteConfigNames = []string{
	"hugo.toml", "hugo.yaml", "hugo.json",
	"config.toml", "config.yaml", "config.json",
}

// FindSiteConfig returns the Hugo config file in root, or ErrNoSiteConfig.
func FindSiteConfig(root string) (string, error) {
	for _, name := range siteConfigNames {
		p := filepath.Join(root, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s: %w (looked for %v)", root, apperr.ErrNoSiteConfig, siteConfigNames)
}

// newLogger builds the slog logger for a command: JSON for long-running
// commands, text for one-shot ones.
func (a *application) newLogger(w io.Writer, json bool) *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	opts := &slog.HandlerOptions{Level: a.config.App.LogLevel}
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// components are the pieces every command builds on.
type components struct {
	store *storage.FS
	reg   registry.Registry
	svc   *blog.Service
}

func (a *application) build(logger *slog.Logger) (*components, error) {
	cfg := a.config

	if _, err := FindSiteConfig(cfg.Site.Root); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.SitePath(cfg.Site.NotebooksDir), 0o755); err != nil {
		return nil, fmt.Errorf("create notebooks dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Site.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	dsn := cfg.SitePath(cfg.Registry.SQLitePath)
	if dsn != "" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create registry dir: %w", err)
		}
	}
	reg, err := registry.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("init registry: %w", err)
	}

	layout := cfg.Site.Layout()
	if err := a.reconstruct(reg, store, layout, logger); err != nil {
		reg.Close()
		return nil, err
	}

	var trust notebook.Trustor = notebook.NopTrustor{}
	if cfg.Trust.Enabled {
		trust = notebook.NewCommandTrustor(cfg.Trust.Command, a.runner)
	}
	meta := notebook.NewManager(store, cfg.MetadataDefaults(),
		notebook.WithTrustor(trust),
		notebook.WithLogger(logger),
	)
	renderer := render.New(
		render.WithFrontMatterFormat(cfg.Render.FrontMatterFormat),
		render.WithHTMLMode(cfg.Render.HTMLMode),
	)
	svc := blog.NewService(store, meta, renderer, artifact.NewWriter(store, layout), reg, blog.Options{
		NotebooksDir: filepath.ToSlash(cfg.Site.NotebooksDir),
		ContentDirs:  cfg.Site.ContentDirs,
	}, logger)

	return &components{store: store, reg: reg, svc: svc}, nil
}

// reconstruct fills an empty registry from the rendered posts already in
// the site, so stale output from before the first run is still found.
func (a *application) reconstruct(reg registry.Registry, store storage.Provider, layout artifact.Layout, logger *slog.Logger) error {
	recorded, err := reg.All()
	if err != nil {
		return fmt.Errorf("read registry: %w", err)
	}
	if len(recorded) > 0 {
		return nil
	}
	n, err := registry.Reconstruct(reg, store, layout, filepath.ToSlash(a.config.Site.NotebooksDir), a.config.Site.ContentDirs, logger)
	if err != nil {
		return fmt.Errorf("reconstruct registry: %w", err)
	}
	if n > 0 {
		logger.Info("registry reconstructed from site", slog.Int("artifacts", n))
	}
	return nil
}

func (c *components) Close() error {
	return c.reg.Close()
}
