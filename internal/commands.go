package internal

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/nbhugo/internal/blog"
	"github.com/starford/nbhugo/internal/logfields"
	"github.com/starford/nbhugo/internal/mcpserver"
	"github.com/starford/nbhugo/internal/notebook"
	"github.com/starford/nbhugo/internal/publish"
)

//go:embed templates/nbhugo.yaml
var configTemplate []byte

// RenderOptions select what the render command renders.
type RenderOptions struct {
	// Notebooks are names or paths of notebooks. Empty renders all.
	Notebooks []string
	// Destination overrides every notebook's render destination for this run.
	Destination string
}

// Render stamps metadata into the selected notebooks and renders them. Every
// notebook is attempted; the failures are returned joined.
func Render(ctx context.Context, ro RenderOptions, opts ...Option) ([]blog.RenderResult, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	logger := app.newLogger(os.Stderr, false)
	comps, err := app.build(logger)
	if err != nil {
		return nil, err
	}
	defer comps.Close()

	results, err := renderSelected(ctx, comps.svc, ro)
	if err != nil {
		return results, err
	}
	return results, resultErrors(results)
}

func renderSelected(ctx context.Context, svc *blog.Service, ro RenderOptions) ([]blog.RenderResult, error) {
	if len(ro.Notebooks) == 0 {
		return svc.RenderAll(ctx, ro.Destination)
	}
	out := make([]blog.RenderResult, 0, len(ro.Notebooks))
	for _, name := range ro.Notebooks {
		p := svc.NotebookPath(name)
		if notebook.Ignored(p) {
			continue
		}
		r := blog.RenderResult{Notebook: p}
		if _, err := svc.Stamp(ctx, p); err != nil {
			r.Err = err
		} else if a, err := svc.Render(ctx, p, ro.Destination); err != nil {
			r.Err = err
		} else {
			r.Artifact = &a
		}
		out = append(out, r)
	}
	return out, nil
}

func resultErrors(results []blog.RenderResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Notebook, r.Err))
		}
	}
	return errors.Join(errs...)
}

// UpdateMetadata applies explicit front matter overrides to one notebook.
func UpdateMetadata(ctx context.Context, name string, o notebook.Overrides, opts ...Option) (bool, error) {
	app, err := newApplication(opts)
	if err != nil {
		return false, err
	}
	logger := app.newLogger(os.Stderr, false)
	comps, err := app.build(logger)
	if err != nil {
		return false, err
	}
	defer comps.Close()

	p := comps.svc.NotebookPath(name)
	if notebook.Ignored(p) {
		return false, fmt.Errorf("%s: ignored notebook name", p)
	}
	return comps.svc.UpdateMetadata(ctx, p, o)
}

// Publish renders every notebook, builds the site into the publish worktree
// and pushes it.
func Publish(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.newLogger(os.Stderr, false)
	comps, err := app.build(logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	build := func(ctx context.Context) error {
		results, err := comps.svc.RenderAll(ctx, "")
		if err != nil {
			return err
		}
		return resultErrors(results)
	}
	p := publish.New(app.config.Site.Root, app.config.PublishSettings(), app.runner, build, logger)
	return p.Publish(ctx)
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
func ServeMCP(_ context.Context, version string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	logger := app.newLogger(os.Stderr, true)
	slog.SetDefault(logger)
	comps, err := app.build(logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	logger.Info("MCP server starting", slog.String("site_root", app.config.Site.Root))
	return mcpserver.New(comps.svc, version).ServeStdio()
}

// InitResult reports what Init created.
type InitResult struct {
	SiteConfig   string
	NotebooksDir string
	ConfigFile   string
	// ConfigWritten is false when configFile already existed.
	ConfigWritten bool
}

// Init prepares the Hugo site at the configured root: it creates the
// notebooks directory and writes configFile unless it exists. The root must
// already be a Hugo site.
func Init(configFile string, opts ...Option) (*InitResult, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg := app.config
	logger := app.newLogger(os.Stderr, false)

	siteConfig, err := FindSiteConfig(cfg.Site.Root)
	if err != nil {
		return nil, err
	}
	res := &InitResult{
		SiteConfig:   siteConfig,
		NotebooksDir: cfg.SitePath(cfg.Site.NotebooksDir),
		ConfigFile:   configFile,
	}
	if err := os.MkdirAll(res.NotebooksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create notebooks dir: %w", err)
	}

	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
			return nil, fmt.Errorf("create config dir: %w", err)
		}
		if err := os.WriteFile(configFile, configTemplate, 0o644); err != nil {
			return nil, fmt.Errorf("write config: %w", err)
		}
		res.ConfigWritten = true
	} else if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	logger.Info("site initialized",
		slog.String("site_config", siteConfig),
		logfields.Path(res.NotebooksDir),
		slog.String("config", configFile),
		slog.Bool("config_written", res.ConfigWritten))
	return res, nil
}
