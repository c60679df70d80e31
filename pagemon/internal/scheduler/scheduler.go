// Package scheduler repeats a batch run on a cron schedule inside one
// long-lived process. Runs never overlap: a tick that fires while the
// previous run is still going is skipped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one batch run.
type Job func(ctx context.Context) error

// Config configures the scheduler.
type Config struct {
	// Cron is a five-field spec or a descriptor (@hourly, @every 30m).
	Cron string `yaml:"cron"`
	// RunOnStart runs the job once immediately before waiting for ticks.
	RunOnStart bool `yaml:"run_on_start"`
	// Location for the schedule. Default: time.Local.
	Location *time.Location `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Location == nil {
		c.Location = time.Local
	}
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate parses spec without scheduling anything.
func Validate(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("scheduler: invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// Scheduler runs a Job on a cron schedule.
type Scheduler struct {
	config   Config
	schedule cron.Schedule
	job      Job
	logger   *slog.Logger
}

// New creates a Scheduler. An invalid spec is an error.
func New(cfg Config, job Job, logger *slog.Logger) (*Scheduler, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := parser.Parse(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron spec %q: %w", cfg.Cron, err)
	}
	return &Scheduler{config: cfg, schedule: sched, job: job, logger: logger}, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.config.Location))
}

// Run blocks until ctx is cancelled, then waits for an in-flight run to
// finish.
func (s *Scheduler) Run(ctx context.Context) {
	// Serialises the run-on-start job with cron ticks.
	var mu sync.Mutex
	run := func(trigger string) {
		if !mu.TryLock() {
			s.logger.Info("scheduler: previous run still active, skipping", "trigger", trigger)
			return
		}
		defer mu.Unlock()
		s.runJob(ctx, trigger)
	}

	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.config.Location),
		cron.WithLogger(cronLogger{s.logger}),
		cron.WithChain(
			cron.Recover(cronLogger{s.logger}),
			cron.SkipIfStillRunning(cronLogger{s.logger}),
		),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { run("cron") }))

	s.logger.Info("scheduler: started",
		"cron", s.config.Cron, "next", s.Next(time.Now()).Format(time.RFC3339))

	c.Start()
	if s.config.RunOnStart {
		go run("start")
	}

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	// A run-on-start job is not tracked by cron.
	mu.Lock()
	mu.Unlock()
	s.logger.Info("scheduler: stopped")
}

func (s *Scheduler) runJob(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduler: run failed", "trigger", trigger, "error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return
	}
	s.logger.Debug("scheduler: run done", "trigger", trigger,
		"duration_ms", time.Since(start).Milliseconds(),
		"next", s.Next(time.Now()).Format(time.RFC3339))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("scheduler: cron "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("scheduler: cron "+msg, append(keysAndValues, "error", err)...)
}
