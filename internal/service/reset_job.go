package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pomodoro/bot/internal/clock"
	"pomodoro/bot/internal/logging"
)

type SessionSweeper interface {
	CloseOpenBefore(ctx context.Context, cutoff, endedAt time.Time) (int64, error)
}

// ResetJob closes sessions left open from earlier days. It sweeps once when
// started and then on every trigger, at most once per day of its location.
// Running timers are not touched.
type ResetJob struct {
	sessions SessionSweeper
	clock    clock.Clock
	logger   *slog.Logger
	location *time.Location
	schedule string
	cron     *cron.Cron

	mu      sync.Mutex
	started bool
	entryID cron.EntryID
	lastDay string
}

// NewResetJob validates schedule, a five-field cron spec evaluated in loc.
func NewResetJob(sessions SessionSweeper, schedule string, loc *time.Location, clk clock.Clock, logger *slog.Logger) (*ResetJob, error) {
	if loc == nil {
		loc = time.UTC
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse reset schedule %q: %w", schedule, err)
	}

	logger = logger.With("component", "reset")
	cronLogger := cronLogAdapter{logger: logger}
	return &ResetJob{
		sessions: sessions,
		clock:    clk,
		logger:   logger,
		location: loc,
		schedule: schedule,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}, nil
}

// Start registers the trigger and runs the startup sweep. Calling it again is a no-op.
func (j *ResetJob) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		return nil
	}
	id, err := j.cron.AddFunc(j.schedule, func() { j.trigger(ctx) })
	if err != nil {
		j.mu.Unlock()
		return fmt.Errorf("register reset job: %w", err)
	}
	j.entryID = id
	j.started = true
	j.mu.Unlock()

	if _, err := j.RunNow(ctx); err != nil {
		j.logger.Error("startup sweep failed", "error", err)
	} else {
		j.mu.Lock()
		j.lastDay = j.day()
		j.mu.Unlock()
	}
	j.cron.Start()
	return nil
}

// RunNow sweeps immediately, regardless of the once-per-day guard.
func (j *ResetJob) RunNow(ctx context.Context) (int64, error) {
	now := j.clock.Now()
	cutoff := midnight(now.In(j.location))
	closed, err := j.sessions.CloseOpenBefore(ctx, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("daily reset: %w", err)
	}
	j.logger.Info("closed stale sessions", "count", closed, "cutoff", cutoff.Format(time.RFC3339))
	return closed, nil
}

// NextRun reports the next trigger time, or zero before Start.
func (j *ResetJob) NextRun() time.Time {
	j.mu.Lock()
	started, id := j.started, j.entryID
	j.mu.Unlock()
	if !started {
		return time.Time{}
	}
	return j.cron.Entry(id).Next
}

// Stop halts the trigger and waits for a running sweep to finish.
func (j *ResetJob) Stop() {
	<-j.cron.Stop().Done()
}

func (j *ResetJob) trigger(ctx context.Context) {
	day := j.day()

	j.mu.Lock()
	if day == j.lastDay {
		j.mu.Unlock()
		j.logger.Debug("reset already ran today", "day", day)
		return
	}
	j.lastDay = day
	j.mu.Unlock()

	if _, err := j.RunNow(ctx); err != nil {
		j.logger.Error("scheduled sweep failed", "error", err)
	}
}

// day is today's date in the reference timezone.
func (j *ResetJob) day() string {
	return j.clock.Now().In(j.location).Format("2006-01-02")
}

func midnight(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// cronLogAdapter routes cron's own logging into slog.
type cronLogAdapter struct {
	logger *slog.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, append(keysAndValues, "error", err)...)
}
