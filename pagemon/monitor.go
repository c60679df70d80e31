// Package pagemon detects changes in web pages and feeds.
//
// A Monitor loads the target registry, checks every target in file order
// and notifies a chat webhook about first sightings and changes:
//
//	cfg, _ := pagemon.LoadConfig("pagemon.yaml")
//	mon, err := pagemon.New(cfg, logger)
//	if err != nil { ... }
//	defer mon.Close()
//	summary, err := mon.RunOnce(ctx)
//
// Only a malformed registry fails a run. Fetch, parse and notification
// errors are per target: they are logged, recorded in the check log, and
// the run moves on.
package pagemon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/pagemon/idgen"
	"github.com/hazyhaar/pagemon/pagemon/internal/fetch"
	"github.com/hazyhaar/pagemon/pagemon/internal/notify"
	"github.com/hazyhaar/pagemon/pagemon/internal/pipeline"
	"github.com/hazyhaar/pagemon/pagemon/internal/registry"
	"github.com/hazyhaar/pagemon/pagemon/internal/scheduler"
	"github.com/hazyhaar/pagemon/pagemon/internal/store"
)

type (
	// Target is one monitored URL with its extraction configuration.
	Target = registry.Target
	// Snapshot is the last representation recorded for a target.
	Snapshot = store.Snapshot
	// CheckLog is one check of one target in one run.
	CheckLog = store.CheckLog
	// Notifier delivers change events.
	Notifier = notify.Notifier
	// Event is one notifiable observation.
	Event = notify.Event
	// Fetcher retrieves target content.
	Fetcher = pipeline.Fetcher
)

// RunSummary counts the outcomes of one batch run.
type RunSummary struct {
	RunID        string        `json:"run_id"`
	Targets      int           `json:"targets"`
	Checked      int           `json:"checked"`
	FirstSeen    int           `json:"first_seen"`
	Changed      int           `json:"changed"`
	Unchanged    int           `json:"unchanged"`
	Failed       int           `json:"failed"`
	NotifyFailed int           `json:"notify_failed"`
	Duration     time.Duration `json:"duration"`
}

// Monitor wires the registry, fetcher, store, notifier and pipeline.
type Monitor struct {
	cfg      *Config
	store    *store.Store
	fetcher  Fetcher
	notifier Notifier
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	newID    idgen.Generator
	now      func() time.Time
	db       *sql.DB // set by WithDB; not closed by Close
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithNotifier replaces the webhook notifier.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f Fetcher) Option {
	return func(m *Monitor) { m.fetcher = f }
}

// WithDB uses an already-open database instead of opening cfg.DBPath.
// The schema is applied; the caller keeps ownership.
func WithDB(db *sql.DB) Option {
	return func(m *Monitor) { m.db = db }
}

// WithIDGenerator sets the generator for run and check IDs.
func WithIDGenerator(g idgen.Generator) Option {
	return func(m *Monitor) { m.newID = g }
}

// WithClock sets the time source for snapshots and events.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a Monitor and opens its snapshot store.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Monitor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		cfg:    cfg,
		logger: logger,
		newID:  idgen.Default,
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}

	if m.db != nil {
		if err := store.ApplySchema(m.db); err != nil {
			return nil, fmt.Errorf("pagemon: apply schema: %w", err)
		}
		m.store = store.NewStore(m.db)
	} else {
		s, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("pagemon: %w", err)
		}
		m.store = s
	}

	if m.fetcher == nil {
		m.fetcher = fetch.New(cfg.Fetch)
	}
	if m.notifier == nil {
		if cfg.WebhookURL != "" {
			m.notifier = notify.NewDiscord(cfg.WebhookURL, cfg.Notify,
				notify.WithLogger(logger))
		} else {
			logger.Warn("pagemon: no webhook configured, notifications disabled")
			m.notifier = notify.Nop{Logger: logger}
		}
	}

	m.pipeline = pipeline.New(m.fetcher, m.store, m.notifier,
		pipeline.Config{Summary: cfg.Summary, NotifyErrors: cfg.NotifyErrors},
		logger,
		pipeline.WithIDGenerator(idgen.Prefixed("chk_", m.newID)),
		pipeline.WithClock(m.now),
	)
	return m, nil
}

// Close closes the snapshot store unless it was supplied with WithDB.
func (m *Monitor) Close() error {
	if m.db != nil {
		return nil
	}
	return m.store.Close()
}

// RunOnce checks every target once, in registry order. A malformed
// registry is the only fatal error. Cancelling ctx stops the run between
// targets; the partial summary is returned with ctx's error.
func (m *Monitor) RunOnce(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	sum := &RunSummary{RunID: idgen.Prefixed("run_", m.newID)()}
	log := m.logger.With("run_id", sum.RunID)

	targets, err := LoadTargets(m.cfg.Registry, log)
	if err != nil {
		log.Error("pagemon: registry unusable", "registry", m.cfg.Registry, "error", err)
		return nil, err
	}
	sum.Targets = len(targets)
	log.Info("pagemon: run started", "targets", len(targets))

	var runErr error
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		out := m.pipeline.Process(ctx, sum.RunID, t)
		if out.Status == "" {
			runErr = out.Err
			break
		}
		sum.Checked++
		switch {
		case out.Failed():
			sum.Failed++
		case out.Status == store.StatusFirstSeen:
			sum.FirstSeen++
		case out.Status == store.StatusChanged:
			sum.Changed++
		default:
			sum.Unchanged++
		}
		if out.NotifyErr != nil {
			sum.NotifyFailed++
		}
	}
	sum.Duration = time.Since(start)

	log.Info("pagemon: run complete",
		"targets", sum.Targets,
		"checked", sum.Checked,
		"first_seen", sum.FirstSeen,
		"changed", sum.Changed,
		"unchanged", sum.Unchanged,
		"failed", sum.Failed,
		"notify_failed", sum.NotifyFailed,
		"duration_ms", sum.Duration.Milliseconds(),
	)
	if runErr != nil {
		log.Warn("pagemon: run interrupted", "error", runErr)
	}
	return sum, runErr
}

// Watch repeats RunOnce on cfg.Schedule until ctx is cancelled. Failed
// runs are logged and the schedule continues.
func (m *Monitor) Watch(ctx context.Context) error {
	if m.cfg.Schedule.Cron == "" {
		return errors.New("pagemon: watch needs a cron schedule")
	}
	s, err := scheduler.New(m.cfg.Schedule, func(ctx context.Context) error {
		_, err := m.RunOnce(ctx)
		return err
	}, m.logger)
	if err != nil {
		return err
	}
	s.Run(ctx)
	return nil
}

// Snapshots lists every stored snapshot ordered by target id.
func (m *Monitor) Snapshots(ctx context.Context) ([]*Snapshot, error) {
	return m.store.List(ctx)
}

// History returns the most recent checks of a target, newest first.
func (m *Monitor) History(ctx context.Context, targetID string, limit int) ([]*CheckLog, error) {
	return m.store.History(ctx, targetID, limit)
}

// Forget deletes a target's snapshot and history so the next run treats it
// as first seen. Reports whether a snapshot existed.
func (m *Monitor) Forget(ctx context.Context, targetID string) (bool, error) {
	existed, err := m.store.Delete(ctx, targetID)
	if err != nil {
		return false, err
	}
	m.logger.Info("pagemon: snapshot forgotten", "target_id", targetID, "existed", existed)
	return existed, nil
}

// LoadTargets parses the registry at path and warns about targets that
// point at the same normalized URL and selector.
func LoadTargets(path string, logger *slog.Logger) ([]Target, error) {
	if logger == nil {
		logger = slog.Default()
	}
	targets, err := registry.Load(path)
	if err != nil {
		return nil, err
	}
	for key, ids := range registry.DuplicateURLs(targets) {
		logger.Warn("pagemon: targets share a url", "url", key, "ids", ids)
	}
	return targets, nil
}
