package pagemon

import (
	"github.com/hazyhaar/pagemon/extract"
	"github.com/hazyhaar/pagemon/pagemon/internal/fetch"
	"github.com/hazyhaar/pagemon/pagemon/internal/notify"
	"github.com/hazyhaar/pagemon/pagemon/internal/registry"
)

// Sentinel errors, re-exported so callers outside the module tree can
// test with errors.Is.
var (
	// ErrMalformedRegistry aborts a run: there is nothing to monitor.
	ErrMalformedRegistry = registry.ErrMalformedRegistry
	ErrFetch             = fetch.ErrFetch
	ErrParse             = extract.ErrParse
	ErrSelectorNotFound  = extract.ErrSelectorNotFound
	// ErrNotify never aborts a run and never rolls back a snapshot.
	ErrNotify = notify.ErrNotify
)
