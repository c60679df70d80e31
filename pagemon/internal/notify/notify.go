// Package notify delivers change events to a chat webhook.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/pagemon/extract"
	"github.com/hazyhaar/pagemon/pagemon/internal/registry"
	"github.com/hazyhaar/pagemon/pagemon/internal/store"
)

// ErrNotify is returned when a notification could not be delivered.
var ErrNotify = errors.New("notify: delivery failed")

// EventKind distinguishes notification types.
type EventKind string

const (
	EventFirstSeen EventKind = "first_seen"
	EventChanged   EventKind = "changed"
	EventIssue     EventKind = "issue"
)

// Event is one notifiable observation about a target.
type Event struct {
	Kind   EventKind
	Target registry.Target
	Old    *store.Snapshot        // set for EventChanged
	New    extract.Representation // zero for EventIssue
	Err    error                  // set for EventIssue
	At     time.Time
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop drops every event. It stands in when no webhook URL is configured.
type Nop struct {
	Logger *slog.Logger
}

// Notify logs the skipped event and returns nil.
func (n Nop) Notify(_ context.Context, ev Event) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notify: webhook empty, skip",
		"target_id", ev.Target.ID, "event", string(ev.Kind))
	return nil
}
