package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/nbhugo/internal/artifact"
	"github.com/starford/nbhugo/internal/notebook"
	"github.com/starford/nbhugo/internal/publish"
	"github.com/starford/nbhugo/internal/render"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// ConfigFile is the config file name nbhugo looks for in the site root.
const ConfigFile = "nbhugo.yaml"

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Auth     AuthConfig        `yaml:"auth"`
	Site     SiteConfig        `yaml:"site"`
	Render   RenderConfig      `yaml:"render"`
	Metadata MetadataConfig    `yaml:"metadata"`
	Watch    WatchConfig       `yaml:"watch"`
	Trust    TrustConfig       `yaml:"trust"`
	Hugo     HugoConfig        `yaml:"hugo"`
	Jupyter  JupyterConfig     `yaml:"jupyter"`
	Publish  PublishConfig     `yaml:"publish"`
	Registry RegistryConfig    `yaml:"registry"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Auth, &c.Site, &c.Render, &c.Metadata,
		&c.Watch, &c.Trust, &c.Hugo, &c.Jupyter, &c.Publish,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the status server configuration.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.When(c.Enabled, validation.Required, validation.Min(1), validation.Max(65535))),
	)
}

// AuthConfig holds status API authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// SiteConfig describes the Hugo site layout.
type SiteConfig struct {
	// Root is the Hugo site directory. Relative paths in the rest of the
	// config are relative to it.
	Root               string   `yaml:"root"`
	NotebooksDir       string   `yaml:"notebooks_dir"`
	ContentDirs        []string `yaml:"content_dirs"`
	DefaultDestination string   `yaml:"default_destination"`
	StaticDir          string   `yaml:"static_dir"`
	ResourcesURL       string   `yaml:"resources_url"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.NotebooksDir, validation.Required),
		validation.Field(&c.ContentDirs, validation.Required),
		validation.Field(&c.DefaultDestination, validation.Required),
		validation.Field(&c.StaticDir, validation.Required),
		validation.Field(&c.ResourcesURL, validation.Required),
	)
}

// Layout returns the artifact layout described by the site config.
func (c *SiteConfig) Layout() artifact.Layout {
	return artifact.Layout{
		DefaultDestination: notebook.NormalizeDir(c.DefaultDestination),
		StaticDir:          c.StaticDir,
		ResourcesPrefix:    c.ResourcesURL,
	}
}

// RenderConfig selects the markdown output flavour.
type RenderConfig struct {
	FrontMatterFormat string `yaml:"front_matter_format"`
	HTMLMode          string `yaml:"html_mode"`
}

// Validate validates the render configuration.
func (c *RenderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FrontMatterFormat, validation.Required, validation.In(render.FormatYAML, render.FormatJSON)),
		validation.Field(&c.HTMLMode, validation.Required, validation.In(render.HTMLMarkdown, render.HTMLRaw)),
	)
}

// MetadataConfig holds defaults stamped into new notebooks.
type MetadataConfig struct {
	DefaultSubtitle string `yaml:"default_subtitle"`
	DefaultTOC      string `yaml:"default_toc"`
	SlugMode        string `yaml:"slug_mode"`
}

// Validate validates the metadata configuration.
func (c *MetadataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultTOC, validation.In("true", "false")),
		validation.Field(&c.SlugMode, validation.In(notebook.SlugSimple, notebook.SlugNormalize)),
	)
}

// WatchConfig tunes the notebook watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	// ResyncInterval re-checks every notebook periodically. Zero disables it.
	ResyncInterval time.Duration `yaml:"resync_interval"`
	InitialSync    bool          `yaml:"initial_sync"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.ResyncInterval, validation.Min(time.Duration(0))),
	)
}

// TrustConfig configures the command marking a stamped notebook trusted.
type TrustConfig struct {
	Enabled bool     `yaml:"enabled"`
	Command []string `yaml:"command"`
}

// Validate validates the trust configuration.
func (c *TrustConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Command, validation.When(c.Enabled, validation.Required)),
	)
}

// HugoConfig locates the hugo binary.
type HugoConfig struct {
	Binary    string   `yaml:"binary"`
	ServeArgs []string `yaml:"serve_args"`
	// URL is where `hugo server` serves the site, opened by serve --open.
	URL string `yaml:"url"`
}

// Validate validates the hugo configuration.
func (c *HugoConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Binary, validation.Required),
		validation.Field(&c.URL, is.URL),
	)
}

// JupyterConfig controls the notebook server started by serve.
type JupyterConfig struct {
	Enabled bool     `yaml:"enabled"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`
}

// Validate validates the jupyter configuration.
func (c *JupyterConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Binary, validation.When(c.Enabled, validation.Required)),
	)
}

// PublishConfig names the remote the generated site is pushed to.
type PublishConfig struct {
	Remote        string `yaml:"remote"`
	Branch        string `yaml:"branch"`
	Worktree      string `yaml:"worktree"`
	CommitMessage string `yaml:"commit_message"`
}

// Validate validates the publish configuration.
func (c *PublishConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Remote, validation.Required),
		validation.Field(&c.Branch, validation.Required),
		validation.Field(&c.Worktree, validation.Required),
	); err != nil {
		return err
	}
	if filepath.IsAbs(c.Worktree) || c.Worktree == "." {
		return errors.New("publish: worktree must be a directory inside the site")
	}
	return nil
}

// RegistryConfig holds the artifact registry location. An empty path keeps
// the registry in memory.
type RegistryConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// SitePath resolves p against the site root unless it is absolute.
func (c *Config) SitePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Site.Root, p)
}

// MetadataDefaults returns the metadata manager defaults.
func (c *Config) MetadataDefaults() notebook.Defaults {
	return notebook.Defaults{
		Subtitle: c.Metadata.DefaultSubtitle,
		TOC:      c.Metadata.DefaultTOC,
		RenderTo: notebook.NormalizeDir(c.Site.DefaultDestination),
		SlugMode: c.Metadata.SlugMode,
	}
}

// PublishSettings returns the publisher configuration.
func (c *Config) PublishSettings() publish.Config {
	cfg := publish.DefaultConfig()
	cfg.Remote = c.Publish.Remote
	cfg.Branch = c.Publish.Branch
	cfg.Worktree = c.Publish.Worktree
	cfg.Hugo = c.Hugo.Binary
	if c.Publish.CommitMessage != "" {
		cfg.CommitMessage = c.Publish.CommitMessage
	} else {
		cfg.CommitMessage = fmt.Sprintf("Publishing to %s/%s", c.Publish.Remote, c.Publish.Branch)
	}
	return cfg
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	md := notebook.DefaultDefaults()
	pub := publish.DefaultConfig()
	layout := artifact.DefaultLayout()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Enabled: true,
				Port:    8081,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Site: SiteConfig{
			Root:               ".",
			NotebooksDir:       "notebooks",
			ContentDirs:        []string{"content/blog/", "content/post/"},
			DefaultDestination: layout.DefaultDestination,
			StaticDir:          layout.StaticDir,
			ResourcesURL:       layout.ResourcesPrefix,
		},
		Render: RenderConfig{
			FrontMatterFormat: render.FormatYAML,
			HTMLMode:          render.HTMLMarkdown,
		},
		Metadata: MetadataConfig{
			DefaultSubtitle: md.Subtitle,
			DefaultTOC:      md.TOC,
			SlugMode:        md.SlugMode,
		},
		Watch: WatchConfig{
			Debounce:       5 * time.Second,
			ResyncInterval: 5 * time.Minute,
			InitialSync:    true,
		},
		Trust: TrustConfig{
			Enabled: true,
			Command: []string{"jupyter", "trust"},
		},
		Hugo: HugoConfig{
			Binary: pub.Hugo,
			URL:    "http://localhost:1313/",
		},
		Jupyter: JupyterConfig{
			Enabled: true,
			Binary:  "jupyter",
			Args:    []string{"notebook"},
		},
		Publish: PublishConfig{
			Remote:        pub.Remote,
			Branch:        pub.Branch,
			Worktree:      pub.Worktree,
			CommitMessage: pub.CommitMessage,
		},
		Registry: RegistryConfig{
			SQLitePath: ".nbhugo/registry.db",
		},
	}
}
