package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/nbhugo/internal/apperr"
	"github.com/starford/nbhugo/internal/blog"
	"github.com/starford/nbhugo/internal/logfields"
	"github.com/starford/nbhugo/internal/models"
	"github.com/starford/nbhugo/internal/notebook"
)

// Action is what the coordinator does in response to an event.
type Action string

const (
	ActionIgnore Action = "ignore"
	ActionStamp  Action = "stamp"
	ActionRename Action = "rename"
	ActionRender Action = "render"
	ActionSkip   Action = "skip"
	ActionDelete Action = "delete"
)

// State is the coordinator's view of a notebook path.
type State string

const (
	StateUntracked       State = "untracked"
	StateMetadataPending State = "metadata-pending"
	StateRendered        State = "rendered"
)

// Decision is the outcome of Decide.
type Decision struct {
	Action Action
	Path   string
	// Target is the new notebook path for ActionRename.
	Target string
}

// Decide maps an event on path to an action. in describes the notebook on
// disk and is only consulted for Modified.
func Decide(kind Kind, path string, in *blog.Inspection) Decision {
	d := Decision{Action: ActionIgnore, Path: path}
	if !notebook.IsNotebook(path) || notebook.Ignored(path) {
		return d
	}
	switch kind {
	case Created:
		d.Action = ActionStamp
	case Deleted:
		d.Action = ActionDelete
	case Modified:
		switch {
		case in == nil:
		case !in.Stamped:
			d.Action = ActionStamp
		case in.Slug != in.Stem:
			d.Action = ActionRename
			d.Target = notebook.WithStem(path, in.Slug)
		case in.UpToDate:
			d.Action = ActionSkip
		default:
			d.Action = ActionRender
		}
	}
	return d
}

// Pipeline is the set of notebook operations the coordinator drives.
type Pipeline interface {
	Inspect(path string) (*blog.Inspection, error)
	Stamp(ctx context.Context, path string) (changed bool, err error)
	Rename(path, slug string) (string, error)
	Render(ctx context.Context, path, dest string) (models.Artifact, error)
	DeleteArtifacts(path string) ([]models.Artifact, error)
}

var _ Pipeline = (*blog.Service)(nil)

// Report describes one action the coordinator carried out.
type Report struct {
	ID       string
	Event    Event
	Action   Action
	Path     string
	Outputs  []string
	Err      error
	Duration time.Duration
}

// Observer receives a Report after every executed action.
type Observer interface {
	Observe(Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Report)

func (f ObserverFunc) Observe(r Report) { f(r) }

// Coordinator runs the per-notebook state machine. Handle may be called from
// several goroutines; the pipeline serializes the mutations themselves.
type Coordinator struct {
	pipe      Pipeline
	logger    *slog.Logger
	observers []Observer

	mu     sync.RWMutex
	states map[string]State
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

func WithObserver(o Observer) CoordinatorOption {
	return func(c *Coordinator) { c.observers = append(c.observers, o) }
}

func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

func NewCoordinator(pipe Pipeline, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		pipe:   pipe,
		logger: slog.Default(),
		states: make(map[string]State),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the tracked state of path.
func (c *Coordinator) State(path string) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.states[path]; ok {
		return s
	}
	return StateUntracked
}

// States returns a copy of every tracked state.
func (c *Coordinator) States() map[string]State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]State, len(c.states))
	for k, v := range c.states {
		out[k] = v
	}
	return out
}

func (c *Coordinator) setState(path string, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == StateUntracked {
		delete(c.states, path)
		return
	}
	c.states[path] = s
}

// Handle processes one event. Failures are logged and reported to observers,
// never returned: one broken notebook must not stop the watcher.
func (c *Coordinator) Handle(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("watch: panic while handling event",
				logfields.Event(ev.Kind.String()),
				logfields.Notebook(ev.Path),
				slog.Any("panic", r))
		}
	}()

	switch ev.Kind {
	case Renamed:
		c.handle(ctx, ev, Deleted, ev.OldPath)
		c.handle(ctx, ev, Created, ev.Path)
	default:
		c.handle(ctx, ev, ev.Kind, ev.Path)
	}
}

func (c *Coordinator) handle(ctx context.Context, ev Event, kind Kind, path string) {
	var in *blog.Inspection
	if kind == Modified {
		var err error
		in, err = c.pipe.Inspect(path)
		if errors.Is(err, apperr.ErrNotFound) {
			c.logger.Debug("watch: notebook gone before processing", logfields.Notebook(path))
			return
		}
		if err != nil {
			c.report(Report{Event: ev, Action: ActionRender, Path: path, Err: err})
			return
		}
	}

	d := Decide(kind, path, in)
	switch d.Action {
	case ActionIgnore:
		return
	case ActionSkip:
		c.setState(path, StateRendered)
		c.logger.Debug("watch: output up to date", logfields.Notebook(path))
		return
	}

	start := time.Now()
	r := Report{Event: ev, Action: d.Action, Path: path}
	switch d.Action {
	case ActionStamp:
		changed, err := c.pipe.Stamp(ctx, path)
		r.Err = err
		if err == nil {
			c.setState(path, StateMetadataPending)
			if !changed && kind == Created {
				// Already stamped: the write that would have produced the
				// follow-up event never happened, so continue here.
				r.Duration = time.Since(start)
				c.report(r)
				c.handle(ctx, ev, Modified, path)
				return
			}
		}
	case ActionRename:
		target, err := c.pipe.Rename(path, in.Slug)
		r.Err = err
		if err == nil {
			r.Outputs = []string{target}
			c.setState(path, StateUntracked)
			c.setState(target, StateMetadataPending)
		}
	case ActionRender:
		a, err := c.pipe.Render(ctx, path, "")
		r.Err = err
		if err == nil {
			r.Outputs = []string{a.Markdown}
			c.setState(path, StateRendered)
		}
	case ActionDelete:
		removed, err := c.pipe.DeleteArtifacts(path)
		r.Err = err
		for _, a := range removed {
			r.Outputs = append(r.Outputs, a.Markdown)
		}
		c.setState(path, StateUntracked)
	}
	r.Duration = time.Since(start)
	c.report(r)
}

func (c *Coordinator) report(r Report) {
	r.ID = uuid.NewString()
	attrs := []any{
		logfields.ActionID(r.ID),
		logfields.Action(string(r.Action)),
		logfields.Event(r.Event.Kind.String()),
		logfields.Notebook(r.Path),
		logfields.Duration(r.Duration),
	}
	if len(r.Outputs) > 0 {
		attrs = append(attrs, slog.Any("outputs", r.Outputs))
	}
	if r.Err != nil {
		c.logger.Error("watch: action failed", append(attrs, logfields.Error(r.Err))...)
	} else {
		c.logger.Info("watch: action done", attrs...)
	}
	for _, o := range c.observers {
		o.Observe(r)
	}
}

// String renders a report as a one-line summary.
func (r Report) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s %s: %v", r.Action, r.Path, r.Err)
	}
	return fmt.Sprintf("%s %s", r.Action, r.Path)
}
