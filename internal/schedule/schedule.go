// Package schedule triggers recurring pipeline runs from a cron expression.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is invoked on every trigger with the scheduled time.
type Job func(ctx context.Context, trigger time.Time)

// Scheduler runs one job on a cron schedule. A trigger that fires while the
// previous run is still going is skipped.
type Scheduler struct {
	expr     string
	schedule cron.Schedule
	loc      *time.Location
	logger   *slog.Logger
}

// New parses a standard five-field cron expression (or a descriptor such as
// "@daily" or "@every 6h") evaluated in loc.
func New(expr string, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{expr: expr, schedule: sched, loc: loc, logger: logger.With("component", "schedule")}, nil
}

// Next returns the first trigger strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Run blocks, invoking job on every trigger, until ctx is cancelled. It waits
// for an in-flight job before returning.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{s.logger}),
		cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})),
	)

	var entry cron.EntryID
	entry = c.Schedule(s.schedule, cron.FuncJob(func() {
		trigger := c.Entry(entry).Prev
		if trigger.IsZero() {
			trigger = time.Now().In(s.loc)
		}
		s.logger.Info("scheduled run triggered", "trigger", trigger.Format(time.RFC3339))
		job(ctx, trigger)
	}))

	c.Start()
	s.logger.Info("scheduler started", "expr", s.expr, "next", s.Next(time.Now()).Format(time.RFC3339))

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// cronLogger adapts slog to cron's logger interface.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
