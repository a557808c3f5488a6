package notebook

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goslug "github.com/goliatone/go-slug"

	"github.com/starford/nbhugo/internal/logfields"
	"github.com/starford/nbhugo/internal/models"
	"github.com/starford/nbhugo/internal/storage"
)

// Slug modes.
const (
	SlugSimple    = "simple"
	SlugNormalize = "normalize"
)

// Defaults are the values used for metadata fields that have neither an
// override nor a stored value.
type Defaults struct {
	Subtitle string
	TOC      string
	RenderTo string
	SlugMode string
}

// DefaultDefaults returns the stock metadata defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		Subtitle: "Generic subtitle",
		TOC:      "true",
		RenderTo: "content/post/",
		SlugMode: SlugSimple,
	}
}

// Overrides are explicit metadata values. Empty fields are not overrides.
type Overrides struct {
	Title    string
	Subtitle string
	Date     string
	Slug     string
	TOC      string
	RenderTo string
}

// Manager reads and stamps the nbhugo metadata block of notebooks.
type Manager struct {
	store    storage.Provider
	trust    Trustor
	defaults Defaults
	now      func() time.Time
	logger   *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTrustor sets the trust marker run after every rewrite.
func WithTrustor(t Trustor) ManagerOption {
	return func(m *Manager) { m.trust = t }
}

// WithClock sets the clock used for default dates.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a metadata manager over store.
func NewManager(store storage.Provider, defaults Defaults, opts ...ManagerOption) *Manager {
	base := DefaultDefaults()
	if defaults.Subtitle == "" {
		defaults.Subtitle = base.Subtitle
	}
	if defaults.TOC == "" {
		defaults.TOC = base.TOC
	}
	if defaults.RenderTo == "" {
		defaults.RenderTo = base.RenderTo
	}
	if defaults.SlugMode == "" {
		defaults.SlugMode = base.SlugMode
	}
	m := &Manager{
		store:    store,
		trust:    NopTrustor{},
		defaults: defaults,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads and parses the notebook at path, also returning its raw bytes.
func (m *Manager) Load(path string) (*models.Notebook, []byte, error) {
	data, err := m.store.Read(path)
	if err != nil {
		return nil, nil, err
	}
	nb, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return nb, data, nil
}

// Update resolves every front-matter field and the render destination
// (override, then stored value, then default), writes the notebook back and
// re-marks it trusted. When the resolved document is byte-identical to the
// file nothing is written and changed is false, so stamping an already
// stamped notebook causes no filesystem event.
func (m *Manager) Update(ctx context.Context, path string, o Overrides) (changed bool, err error) {
	data, err := m.store.Read(path)
	if err != nil {
		return false, err
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	stored, err := doc.FrontMatter()
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	hj, err := doc.HugoJupyter()
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}

	fm := m.resolveFrontMatter(path, stored, o)
	if err := CheckSlug(fm.Slug); err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	hj.RenderTo = NormalizeDir(first(o.RenderTo, hj.RenderTo, m.defaults.RenderTo))

	if err := doc.SetFrontMatter(fm); err != nil {
		return false, err
	}
	if err := doc.SetHugoJupyter(hj); err != nil {
		return false, err
	}
	out, err := doc.Bytes()
	if err != nil {
		return false, err
	}
	if bytes.Equal(out, data) {
		return false, nil
	}

	if err := m.store.Write(path, out); err != nil {
		return false, err
	}
	abs, err := m.store.Abs(path)
	if err != nil {
		return true, err
	}
	if err := m.trust.Trust(ctx, abs); err != nil {
		return true, err
	}

	if !goslug.IsValid(fm.Slug) {
		m.logger.Warn("slug is not URL-safe", logfields.Notebook(path), logfields.Slug(fm.Slug))
	}
	m.logger.Info("notebook metadata updated",
		logfields.Notebook(path),
		logfields.Slug(fm.Slug),
		slog.String("render_to", hj.RenderTo))
	return true, nil
}

func (m *Manager) resolveFrontMatter(path string, stored models.FrontMatter, o Overrides) models.FrontMatter {
	fm := stored
	fm.Title = first(o.Title, stored.Title, Stem(path))
	fm.Subtitle = first(o.Subtitle, stored.Subtitle, m.defaults.Subtitle)
	fm.Date = first(o.Date, stored.Date, m.now().Format("2006-01-02"))
	fm.Slug = first(o.Slug, stored.Slug, m.defaultSlug(fm.Title))
	fm.TOC = first(o.TOC, stored.TOC, m.defaults.TOC)
	return fm
}

var simpleSlug = strings.NewReplacer(" ", "-", "/", "-", `\`, "-")

func (m *Manager) defaultSlug(title string) string {
	simple := simpleSlug.Replace(strings.ToLower(title))
	if m.defaults.SlugMode != SlugNormalize {
		return simple
	}
	normalized, err := goslug.Normalize(title)
	if err != nil || normalized == "" {
		m.logger.Debug("slug normalize failed, using simple slug", slog.String("title", title), logfields.Error(err))
		return simple
	}
	return normalized
}

// NormalizeDir returns dir with forward slashes and exactly one trailing slash.
func NormalizeDir(dir string) string {
	dir = strings.TrimRight(toSlash(dir), "/")
	return dir + "/"
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
