package internal

import (
	"log/slog"

	"github.com/starford/nbhugo/internal/proc"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	logger *slog.Logger
	runner proc.Runner
	serve  ServeOptions
}

// ServeOptions are the per-invocation switches of the serve command.
type ServeOptions struct {
	// NoJupyter skips starting the notebook server.
	NoJupyter bool
	// Open opens the site in a browser once everything is up.
	Open bool
	// HugoArgs are appended to `hugo server`.
	HugoArgs []string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the logger built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithRunner sets the runner used for external commands.
func WithRunner(r proc.Runner) Option {
	return func(a *application) {
		a.runner = r
	}
}

// WithServeOptions sets the serve command switches.
func WithServeOptions(o ServeOptions) Option {
	return func(a *application) {
		a.serve = o
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errConfigRequired
	}
	if app.runner == nil {
		app.runner = proc.ExecRunner{}
	}
	return app, nil
}
