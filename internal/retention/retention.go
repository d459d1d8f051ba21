package retention

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "0 30 3 * * *"

type Purger interface {
	PurgeBefore(ctx context.Context, cutoff int64) (int64, error)
}

type Options struct {
	Purger Purger
	// Days is the retention window. Records older than this are removed.
	Days     int
	Schedule string
	Now      func() time.Time
	Logger   *slog.Logger
}

// Task periodically purges history records that fell out of the retention
// window.
type Task struct {
	purger   Purger
	window   time.Duration
	schedule string
	now      func() time.Time
	logger   *slog.Logger

	cron *cron.Cron
	wg   sync.WaitGroup
}

func New(opts Options) (*Task, error) {
	if opts.Purger == nil {
		return nil, errors.New("retention: purger is nil")
	}
	if opts.Days <= 0 {
		return nil, fmt.Errorf("retention: days must be positive, got %d", opts.Days)
	}
	schedule := opts.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	t := &Task{
		purger:   opts.Purger,
		window:   time.Duration(opts.Days) * 24 * time.Hour,
		schedule: schedule,
		now:      now,
		logger:   logger,
		cron:     cron.New(cron.WithSeconds()),
	}
	if _, err := t.cron.AddFunc(schedule, t.runScheduled); err != nil {
		return nil, fmt.Errorf("retention: schedule %q: %w", schedule, err)
	}
	return t, nil
}

// Start runs one purge right away, then hands over to the cron schedule.
func (t *Task) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.runScheduled()
	}()
	t.cron.Start()
	t.logger.Info("retention started", "schedule", t.schedule, "window_days", int(t.window.Hours()/24))
}

func (t *Task) Stop() {
	<-t.cron.Stop().Done()
	t.wg.Wait()
	t.logger.Info("retention stopped")
}

func (t *Task) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := t.RunOnce(ctx); err != nil {
		t.logger.Error("retention purge failed", "err", err)
	}
}

// RunOnce purges everything older than the window and reports how many
// records were removed.
func (t *Task) RunOnce(ctx context.Context) (int64, error) {
	cutoff := t.now().Add(-t.window).UnixMilli()
	n, err := t.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	t.logger.Info("retention purge", "cutoff", cutoff, "deleted", n)
	return n, nil
}
