// Package pipeline runs one target through fetch, extract, compare,
// notify and save.
//
// Process never fails the run. Every recoverable error is classified into
// a check_log status, logged, and optionally reported to the notifier as a
// monitoring issue; the caller moves on to the next target.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hazyhaar/pagemon/extract"
	"github.com/hazyhaar/pagemon/idgen"
	"github.com/hazyhaar/pagemon/pagemon/internal/differ"
	"github.com/hazyhaar/pagemon/pagemon/internal/fetch"
	"github.com/hazyhaar/pagemon/pagemon/internal/notify"
	"github.com/hazyhaar/pagemon/pagemon/internal/registry"
	"github.com/hazyhaar/pagemon/pagemon/internal/store"
)

// StatusStoreError marks a check whose snapshot could not be read.
const StatusStoreError = "store_error"

// Fetcher retrieves a target's content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Config tunes extraction and issue reporting.
type Config struct {
	Summary extract.SummaryOptions
	// NotifyErrors also reports fetch and parse failures to the notifier.
	// A missing selector is always reported.
	NotifyErrors bool
}

// Outcome is the result of processing one target.
type Outcome struct {
	TargetID  string
	Status    string // check_log status; "" when cancelled before a check completed
	Notified  bool   // a notification was delivered
	Err       error  // recoverable extraction, fetch or store error
	NotifyErr error  // delivery failure; the snapshot was still saved
	Duration  time.Duration
}

// Failed reports whether the target could not be checked.
func (o Outcome) Failed() bool {
	switch o.Status {
	case store.StatusFirstSeen, store.StatusChanged, store.StatusUnchanged:
		return o.Err != nil
	}
	return true
}

// Pipeline processes targets against one store and one notifier.
type Pipeline struct {
	fetcher  Fetcher
	store    *store.Store
	notifier notify.Notifier
	cfg      Config
	logger   *slog.Logger
	newID    idgen.Generator
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithIDGenerator sets the check-log ID generator.
func WithIDGenerator(g idgen.Generator) Option {
	return func(p *Pipeline) { p.newID = g }
}

// WithClock sets the time source used for snapshots and events.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. A nil notifier drops all events.
func New(f Fetcher, s *store.Store, n notify.Notifier, cfg Config, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if n == nil {
		n = notify.Nop{Logger: logger}
	}
	p := &Pipeline{
		fetcher:  f,
		store:    s,
		notifier: n,
		cfg:      cfg,
		logger:   logger,
		newID:    idgen.Prefixed("chk_", idgen.Default),
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process checks one target. runID groups the check-log rows of a run.
func (p *Pipeline) Process(ctx context.Context, runID string, t registry.Target) Outcome {
	log := p.logger.With("target_id", t.ID, "url", t.URL)
	start := time.Now()
	out := Outcome{TargetID: t.ID}

	// Bookkeeping writes survive cancellation of the run.
	bg := context.WithoutCancel(ctx)

	res, err := p.fetcher.Fetch(ctx, t.URL)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("pipeline: cancelled during fetch")
			out.Err = ctx.Err()
			return out
		}
		log.Warn("pipeline: fetch failed", "error", err)
		return p.fail(bg, log, runID, t, store.StatusFetchError, err, start)
	}

	ex := p.ExtractorFor(t, res.Kind)
	rep, err := ex.Extract(res, t)
	if err != nil {
		status := store.StatusParseError
		if errors.Is(err, extract.ErrSelectorNotFound) {
			status = store.StatusSelectorMissing
		}
		log.Warn("pipeline: extract failed", "extractor", string(ex.Kind()), "error", err)
		return p.fail(bg, log, runID, t, status, err, start)
	}

	prev, err := p.store.Load(bg, t.ID)
	if err != nil {
		log.Error("pipeline: load snapshot failed", "error", err)
		return p.fail(bg, log, runID, t, StatusStoreError, err, start)
	}

	diff := differ.Compare(prev, rep)
	out.Status = diff.Outcome.String()
	now := p.now()

	if diff.Notifiable() {
		kind := notify.EventChanged
		if diff.Outcome == differ.FirstSeen {
			kind = notify.EventFirstSeen
		}
		ev := notify.Event{Kind: kind, Target: t, Old: prev, New: rep, At: now}
		if err := p.notifier.Notify(ctx, ev); err != nil {
			log.Warn("pipeline: notify failed", "event", string(kind), "error", err)
			out.NotifyErr = err
		} else {
			out.Notified = true
		}
	}

	if err := p.store.Save(bg, t.ID, rep, now, diff.Notifiable()); err != nil {
		log.Error("pipeline: save snapshot failed", "error", err)
		out.Err = err
	}

	out.Duration = time.Since(start)
	p.logCheck(bg, log, &store.CheckLog{
		RunID:    runID,
		TargetID: t.ID,
		Status:   out.Status,
		Digest:   rep.Digest,
		Error:    errString(out.Err),
	}, out.Duration, now)

	log.Info("pipeline: checked",
		"status", out.Status,
		"extractor", string(ex.Kind()),
		"digest", shortDigest(rep.Digest),
		"body_hash", shortDigest(res.Hash),
		"size", humanize.Bytes(uint64(len(res.Body))),
		"duration_ms", out.Duration.Milliseconds(),
	)
	return out
}

// fail records a failed check and reports it when the status is new for
// the target: a missing selector always, other errors only with
// NotifyErrors.
func (p *Pipeline) fail(ctx context.Context, log *slog.Logger, runID string, t registry.Target, status string, cause error, start time.Time) Outcome {
	out := Outcome{TargetID: t.ID, Status: status, Err: cause}
	now := p.now()

	if status == store.StatusSelectorMissing || p.cfg.NotifyErrors {
		prevStatus, err := p.store.LastStatus(ctx, t.ID)
		if err != nil {
			log.Warn("pipeline: last status lookup failed", "error", err)
		}
		if err == nil && prevStatus != status {
			ev := notify.Event{Kind: notify.EventIssue, Target: t, Err: cause, At: now}
			if err := p.notifier.Notify(ctx, ev); err != nil {
				log.Warn("pipeline: notify failed", "event", string(notify.EventIssue), "error", err)
				out.NotifyErr = err
			} else {
				out.Notified = true
			}
		}
	}

	out.Duration = time.Since(start)
	p.logCheck(ctx, log, &store.CheckLog{
		RunID:    runID,
		TargetID: t.ID,
		Status:   status,
		Error:    cause.Error(),
	}, out.Duration, now)
	return out
}

func (p *Pipeline) logCheck(ctx context.Context, log *slog.Logger, entry *store.CheckLog, d time.Duration, at time.Time) {
	entry.ID = p.newID()
	entry.DurationMs = d.Milliseconds()
	entry.CheckedAt = at
	if err := p.store.LogCheck(ctx, entry); err != nil {
		log.Error("pipeline: check log failed", "error", err)
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
