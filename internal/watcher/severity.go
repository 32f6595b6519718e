package watcher

import (
	"errors"

	"github.com/aryanr/restock-watcher/internal/browser"
	"github.com/aryanr/restock-watcher/internal/catalog"
	"github.com/aryanr/restock-watcher/internal/config"
	"github.com/aryanr/restock-watcher/internal/probe"
	"github.com/aryanr/restock-watcher/internal/purchase"
	"github.com/aryanr/restock-watcher/internal/status"
)

// Severity decides how far an error propagates: transient errors are
// absorbed by the poll loop, fatal ones tear the process down.
type Severity int

const (
	// SeverityTransient covers navigation timeouts, network hiccups and
	// other failures the next cycle may not see.
	SeverityTransient Severity = iota
	// SeveritySelectorMiss means the page loaded but an expected element
	// was absent, usually a site layout change.
	SeveritySelectorMiss
	// SeverityMismatch means the page shows a different product than the
	// one being watched.
	SeverityMismatch
	// SeverityStoreIO means the status record could not be persisted.
	SeverityStoreIO
	// SeverityFatal means startup preconditions failed and retrying is
	// pointless.
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityTransient:
		return "transient"
	case SeveritySelectorMiss:
		return "selector_miss"
	case SeverityMismatch:
		return "mismatch"
	case SeverityStoreIO:
		return "store_io"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// SeverityOf maps an error to its severity by sentinel. Unrecognized
// errors are treated as transient so a flaky site never kills the loop.
func SeverityOf(err error) Severity {
	switch {
	case errors.Is(err, browser.ErrLaunch),
		errors.Is(err, config.ErrInvalid),
		errors.Is(err, catalog.ErrNotFound):
		return SeverityFatal
	case errors.Is(err, probe.ErrSelectorMiss),
		errors.Is(err, probe.ErrNotInteractive):
		return SeveritySelectorMiss
	case errors.Is(err, purchase.ErrNameMismatch):
		return SeverityMismatch
	case errors.Is(err, status.ErrWrite):
		return SeverityStoreIO
	default:
		return SeverityTransient
	}
}
