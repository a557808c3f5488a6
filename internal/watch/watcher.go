package watch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/nbhugo/internal/logfields"
	"github.com/starford/nbhugo/internal/notebook"
	"github.com/starford/nbhugo/internal/storage"
)

// DefaultDebounce is how long a notebook must stay quiet before a create or
// modify is processed. Editors save in bursts.
const DefaultDebounce = 5 * time.Second

// ErrStopped is returned by Enqueue once the watcher has exited.
var ErrStopped = errors.New("watch: watcher stopped")

// Handler processes normalized events. *Coordinator implements it.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// Watcher feeds fsnotify events from the notebooks directory, debounced per
// path, to a Handler. Events are handled one at a time on the goroutine
// running Run.
type Watcher struct {
	store       storage.Provider
	dir         string
	handler     Handler
	logger      *slog.Logger
	debounce    time.Duration
	initialSync bool

	enqueue chan Event
	ready   chan struct{}
	done    chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period. Zero processes events as they arrive.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithInitialSync makes Run handle every existing notebook as modified before
// watching.
func WithInitialSync(on bool) WatcherOption {
	return func(w *Watcher) { w.initialSync = on }
}

func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher creates a watcher over the site-relative notebooks directory dir.
func NewWatcher(store storage.Provider, dir string, h Handler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		store:    store,
		dir:      dir,
		handler:  h,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		enqueue:  make(chan Event, 64),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ready is closed once the directory is being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Enqueue hands ev to the watch loop, bypassing the debounce. It blocks until
// the loop accepts the event, ctx ends or the watcher stops.
func (w *Watcher) Enqueue(ctx context.Context, ev Event) error {
	select {
	case w.enqueue <- ev:
		return nil
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync enqueues a Modified event for every notebook in the directory.
func (w *Watcher) Sync(ctx context.Context) (int, error) {
	paths, err := w.notebooks()
	if err != nil {
		return 0, err
	}
	for i, p := range paths {
		if err := w.Enqueue(ctx, Event{Kind: Modified, Path: p}); err != nil {
			return i, err
		}
	}
	return len(paths), nil
}

func (w *Watcher) notebooks() ([]string, error) {
	paths, err := w.store.List(w.dir, notebook.Ext)
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

type pendingEvent struct {
	ev  Event
	due time.Time
}

// Run watches until ctx is cancelled. An event being handled when ctx ends is
// allowed to finish.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.done)

	abs, err := w.store.Abs(w.dir)
	if err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(abs); err != nil {
		return err
	}
	close(w.ready)
	w.logger.Info("watcher: started", logfields.Path(abs), slog.Duration("debounce", w.debounce))

	// Handlers run to completion even after shutdown starts.
	hctx := context.WithoutCancel(ctx)

	if w.initialSync {
		paths, err := w.notebooks()
		if err != nil {
			w.logger.Warn("watcher: initial sync failed", logfields.Error(err))
		}
		for _, p := range paths {
			if ctx.Err() != nil {
				break
			}
			w.handler.Handle(hctx, Event{Kind: Modified, Path: p})
		}
	}

	pending := make(map[string]pendingEvent)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	reschedule := func() {
		timer.Stop()
		if len(pending) == 0 {
			return
		}
		var next time.Time
		for _, p := range pending {
			if next.IsZero() || p.due.Before(next) {
				next = p.due
			}
		}
		timer.Reset(max(time.Until(next), 0))
	}

	flush := func(now time.Time) {
		var due []pendingEvent
		for path, p := range pending {
			if !p.due.After(now) {
				due = append(due, p)
				delete(pending, path)
			}
		}
		sort.Slice(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
		for _, p := range due {
			w.handler.Handle(hctx, p.ev)
		}
	}

	dispatch := func(ev Event) {
		switch {
		case ev.Kind == Deleted || ev.Kind == Renamed || w.debounce <= 0:
			delete(pending, ev.Path)
			if ev.OldPath != "" {
				delete(pending, ev.OldPath)
			}
			w.handler.Handle(hctx, ev)
		default:
			if prev, ok := pending[ev.Path]; ok && prev.ev.Kind == Created {
				ev.Kind = Created
			}
			pending[ev.Path] = pendingEvent{ev: ev, due: time.Now().Add(w.debounce)}
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped", slog.Int("dropped", len(pending)))
			return nil

		case <-timer.C:
			flush(time.Now())
			reschedule()

		case ev := <-w.enqueue:
			delete(pending, ev.Path)
			w.handler.Handle(hctx, ev)
			reschedule()

		case fev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			ev, ok := w.translate(fev)
			if !ok {
				continue
			}
			w.logger.Debug("watcher: event", logfields.Event(ev.Kind.String()), logfields.Notebook(ev.Path))
			dispatch(ev)
			reschedule()

		case werr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", logfields.Error(werr))
		}
	}
}

// translate maps an fsnotify event to a notebook event. fsnotify reports a
// rename on the old path only; the new path arrives as a separate Create.
func (w *Watcher) translate(fev fsnotify.Event) (Event, bool) {
	rel, err := w.store.Rel(fev.Name)
	if err != nil || !notebook.IsNotebook(rel) || notebook.Ignored(rel) {
		return Event{}, false
	}
	switch {
	case fev.Has(fsnotify.Remove), fev.Has(fsnotify.Rename):
		return Event{Kind: Deleted, Path: rel}, true
	case fev.Has(fsnotify.Create):
		return Event{Kind: Created, Path: rel}, true
	case fev.Has(fsnotify.Write):
		return Event{Kind: Modified, Path: rel}, true
	}
	return Event{}, false
}
