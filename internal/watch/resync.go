package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/starford/nbhugo/internal/logfields"
)

// Resync periodically re-enqueues every notebook so events missed by the OS
// watcher still converge. Up-to-date notebooks are skipped by checksum.
type Resync struct {
	scheduler gocron.Scheduler
	watcher   *Watcher
	logger    *slog.Logger
}

// NewResync schedules a resync of w every interval. Call Start to begin.
func NewResync(ctx context.Context, w *Watcher, interval time.Duration, logger *slog.Logger) (*Resync, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create resync scheduler: %w", err)
	}
	r := &Resync{scheduler: s, watcher: w, logger: logger}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { r.run(ctx) }),
		gocron.WithName("notebook-resync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("create resync job: %w", err)
	}
	return r, nil
}

func (r *Resync) Start() { r.scheduler.Start() }

func (r *Resync) Stop() error { return r.scheduler.Shutdown() }

func (r *Resync) run(ctx context.Context) {
	n, err := r.watcher.Sync(ctx)
	if err != nil {
		r.logger.Warn("resync: incomplete", slog.Int("enqueued", n), logfields.Error(err))
		return
	}
	r.logger.Debug("resync: enqueued", slog.Int("notebooks", n))
}
