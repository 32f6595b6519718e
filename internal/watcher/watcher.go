// Package watcher runs the poll-classify-record loop against a single product
// page and hands off to the purchase sequencer when the product comes up.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aryanr/restock-watcher/internal/classifier"
	"github.com/aryanr/restock-watcher/internal/database"
	"github.com/aryanr/restock-watcher/internal/handoff"
	"github.com/aryanr/restock-watcher/internal/notify"
	"github.com/aryanr/restock-watcher/internal/probe"
	"github.com/aryanr/restock-watcher/internal/purchase"
	"github.com/aryanr/restock-watcher/internal/ratelimit"
	"github.com/aryanr/restock-watcher/internal/status"
)

// Reason is why the watch loop ended. It maps directly to the process exit
// code so wrapper scripts can branch on the outcome.
type Reason int

const (
	ReasonPurchased Reason = iota
	ReasonFatal
	ReasonUserStop
	ReasonPolicyStop
)

func (r Reason) String() string {
	switch r {
	case ReasonPurchased:
		return "purchased"
	case ReasonFatal:
		return "fatal"
	case ReasonUserStop:
		return "user_stop"
	case ReasonPolicyStop:
		return "policy_stop"
	default:
		return "unknown"
	}
}

// ExitCode returns the process exit status for this reason.
func (r Reason) ExitCode() int {
	switch r {
	case ReasonPurchased:
		return 0
	case ReasonUserStop:
		return 2
	case ReasonPolicyStop:
		return 3
	default:
		return 1
	}
}

// Signals are the page indicators the classifier reads, tried in order.
type Signals struct {
	ComingSoon []string
	AddToCart  []string
	OutOfStock []string
}

func DefaultSignals() Signals {
	return Signals{
		ComingSoon: []string{
			"text=Coming Soon",
			"text=Coming soon",
		},
		AddToCart: []string{
			"text=ADD",
			"text=Add",
			".add-to-cart",
		},
		OutOfStock: []string{
			"text=Out of Stock",
			"text=Out of stock",
			"text=Sold Out",
			"text=Currently unavailable",
			".out-of-stock",
		},
	}
}

// Config carries the per-product watch parameters.
type Config struct {
	ProductID  string
	ProductURL string
	// ExpectedName gates purchase attempts. Empty means capture it from the
	// first successful title extraction.
	ExpectedName string
	Location     string
	// MaxChecks stops the watch after this many cycles. Zero means unbounded.
	MaxChecks int
	// ContinueOnOutOfStock keeps polling through out-of-stock instead of
	// stopping; used for products that restock in waves.
	ContinueOnOutOfStock bool
	// AutoPurchase hands control to the sequencer on availability. When
	// false the watcher only records and notifies.
	AutoPurchase bool
	// RecheckPause is the settle time before the out-of-stock double-check
	// that guards against transitional page states.
	RecheckPause time.Duration
	Signals      Signals
}

// Purchaser is the sequencer surface the watcher drives. Narrow for tests.
type Purchaser interface {
	Run(ctx context.Context, expectedName, productURL, location string) *purchase.Attempt
}

// Watcher owns one product's polling loop.
type Watcher struct {
	cfg      Config
	probe    probe.Probe
	store    status.Store
	bus      *handoff.Bus
	history  *database.StatusHistory
	notifier notify.Notifier
	buyer    Purchaser
	limiter  ratelimit.RateLimiter
	logger   *slog.Logger

	expected   string
	queryCount int
	lastStatus status.Status
	notified   bool

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// New wires a watcher. bus and history may be nil; notifier falls back to the
// no-op implementation.
func New(cfg Config, p probe.Probe, store status.Store, n notify.Notifier, buyer Purchaser, limiter ratelimit.RateLimiter, logger *slog.Logger) *Watcher {
	if n == nil {
		n = notify.Noop{}
	}
	if len(cfg.Signals.AddToCart) == 0 {
		cfg.Signals = DefaultSignals()
	}
	if cfg.RecheckPause == 0 {
		cfg.RecheckPause = 2 * time.Second
	}
	return &Watcher{
		cfg:      cfg,
		probe:    p,
		store:    store,
		notifier: n,
		buyer:    buyer,
		limiter:  limiter,
		logger:   logger.With("component", "watcher", "product_id", cfg.ProductID),
		expected: cfg.ExpectedName,
		sleep:    time.Sleep,
	}
}

// SetBus attaches the Redis handoff stream.
func (w *Watcher) SetBus(b *handoff.Bus) { w.bus = b }

// SetHistory attaches the Postgres status archive.
func (w *Watcher) SetHistory(h *database.StatusHistory) { w.history = h }

// Run polls until a terminal outcome. The returned error is non-nil only for
// ReasonFatal.
func (w *Watcher) Run(ctx context.Context) (Reason, error) {
	w.logger.Info("watch started",
		"url", w.cfg.ProductURL,
		"max_checks", w.cfg.MaxChecks,
		"auto_purchase", w.cfg.AutoPurchase)

	w.persist(ctx, status.StatusMonitoring, map[string]any{"url": w.cfg.ProductURL})

	for {
		if err := ctx.Err(); err != nil {
			w.persist(ctx, status.StatusStopped, map[string]any{"reason": "interrupted"})
			w.logger.Info("watch stopped by user", "query_count", w.queryCount)
			return ReasonUserStop, nil
		}

		w.queryCount++
		st, reason, err := w.cycle(ctx)
		if reason != nil {
			return *reason, err
		}

		if w.cfg.MaxChecks > 0 && w.queryCount >= w.cfg.MaxChecks {
			w.persist(ctx, status.StatusStopped, map[string]any{"reason": "max checks reached", "max_checks": w.cfg.MaxChecks})
			w.logger.Info("max checks reached", "query_count", w.queryCount)
			return ReasonPolicyStop, nil
		}

		if st == status.StatusOutOfStock && !w.cfg.ContinueOnOutOfStock {
			w.logger.Info("product out of stock, stopping", "query_count", w.queryCount)
			return ReasonPolicyStop, nil
		}

		if err := w.limiter.Wait(ctx); err != nil {
			w.persist(ctx, status.StatusStopped, map[string]any{"reason": "interrupted"})
			return ReasonUserStop, nil
		}
	}
}

// cycle performs one poll. It returns the classified status, and a non-nil
// reason when the loop should end.
func (w *Watcher) cycle(ctx context.Context) (status.Status, *Reason, error) {
	if err := w.probe.Navigate(ctx, w.cfg.ProductURL); err != nil {
		w.logger.Warn("navigation failed, will retry",
			"error", err,
			"severity", SeverityOf(err).String(),
			"query_count", w.queryCount)
		w.recordError(err)
		w.persist(ctx, status.StatusError, map[string]any{"error": err.Error()})
		return status.StatusError, nil, nil
	}

	title := probe.ExtractTitle(w.probe)
	if w.expected == "" && title != "" && title != "Unknown" {
		// First good extraction pins the expected name for all later
		// match checkpoints.
		w.expected = title
		w.logger.Info("expected product name captured", "name", w.expected)
	}

	st := w.classify()
	w.recordSuccess()
	w.logger.Info("cycle complete",
		"status", st,
		"title", title,
		"query_count", w.queryCount)

	if st == status.StatusAvailable {
		return w.onAvailable(ctx, title)
	}

	w.notified = false
	w.persist(ctx, st, map[string]any{"title": title})
	w.lastStatus = st
	return st, nil, nil
}

// classify reads the three page signals and applies the precedence rules.
// An out-of-stock hit is double-checked after a short pause because some
// storefronts briefly render the add button while the page settles.
func (w *Watcher) classify() status.Status {
	comingSoon := w.anyVisible(w.cfg.Signals.ComingSoon)
	add := w.anyVisible(w.cfg.Signals.AddToCart)
	oos := w.anyVisible(w.cfg.Signals.OutOfStock)

	st := classifier.Classify(comingSoon, add, oos)
	if st != status.StatusAvailable {
		return st
	}

	w.sleep(w.cfg.RecheckPause)
	if w.anyVisible(w.cfg.Signals.OutOfStock) {
		w.logger.Warn("availability retracted on recheck")
		return status.StatusOutOfStock
	}
	return st
}

func (w *Watcher) anyVisible(selectors []string) bool {
	for _, sel := range selectors {
		if w.probe.IsVisible(sel) {
			return true
		}
	}
	return false
}

// onAvailable notifies (once per transition), records, and drives a purchase
// attempt when auto-purchase is on.
func (w *Watcher) onAvailable(ctx context.Context, title string) (status.Status, *Reason, error) {
	if !w.notified {
		if err := w.notifier.ProductAvailable(ctx, w.displayName(title), w.cfg.ProductURL, w.cfg.Location); err != nil {
			w.logger.Warn("availability notification failed", "error", err)
		}
		w.notified = true
	}

	w.persist(ctx, status.StatusAvailable, map[string]any{"title": title})
	w.lastStatus = status.StatusAvailable

	if !w.cfg.AutoPurchase || w.buyer == nil {
		return status.StatusAvailable, nil, nil
	}

	attempt := w.buyer.Run(ctx, w.expected, w.cfg.ProductURL, w.cfg.Location)
	w.logger.Info("purchase attempt finished",
		"attempt_id", attempt.ID,
		"final", attempt.Final,
		"steps", len(attempt.Steps))

	switch attempt.Final {
	case purchase.StateCompleted:
		w.persist(ctx, status.StatusPurchased, map[string]any{"attempt_id": attempt.ID})
		r := ReasonPurchased
		return status.StatusPurchased, &r, nil

	case purchase.StateAborted:
		if errors.Is(attempt.Err, purchase.ErrNameMismatch) {
			// The page is showing something else under this URL. Keep
			// polling; the listing may swing back.
			details := map[string]any{"attempt_id": attempt.ID, "aborted": "name mismatch"}
			if attempt.ProductMatch != nil {
				details["similarity"] = attempt.ProductMatch.Similarity
				details["observed"] = attempt.ProductMatch.Observed
			}
			w.persist(ctx, status.StatusAvailable, details)
			return status.StatusAvailable, nil, nil
		}
		w.persist(ctx, status.StatusStopped, map[string]any{"attempt_id": attempt.ID, "reason": "interrupted"})
		r := ReasonUserStop
		return status.StatusStopped, &r, nil

	default:
		// Manual intervention: the cart is primed but a human has to
		// finish. Stop polling so the page is not reloaded under them.
		w.persist(ctx, status.StatusAvailable, map[string]any{
			"attempt_id": attempt.ID,
			"manual":     "purchase needs manual completion",
		})
		if err := w.notifier.Alert(ctx, "Manual intervention required",
			"Automated purchase stalled after adding to cart. Finish the checkout in the open browser."); err != nil {
			w.logger.Warn("manual-intervention alert failed", "error", err)
		}
		r := ReasonPolicyStop
		return status.StatusAvailable, &r, nil
	}
}

func (w *Watcher) displayName(title string) string {
	if w.expected != "" {
		return w.expected
	}
	return title
}

// persist writes the record to every configured sink. Sink failures are
// logged, never propagated; a broken disk must not stop the watch.
func (w *Watcher) persist(ctx context.Context, st status.Status, details map[string]any) {
	rec := status.NewRecord(w.cfg.ProductID, w.displayName(""), w.cfg.ProductURL, st, w.queryCount, details)
	rec.Location = w.cfg.Location

	if err := w.store.Write(rec); err != nil {
		w.logger.Error("status write failed", "error", err, "severity", SeverityOf(err).String())
	}
	if w.bus != nil {
		if err := w.bus.Publish(ctx, rec); err != nil {
			w.logger.Warn("handoff publish failed", "error", err)
		}
	}
	if w.history != nil {
		if err := w.history.Insert(ctx, rec); err != nil {
			w.logger.Warn("history insert failed", "error", err)
		}
	}
}

func (w *Watcher) recordSuccess() {
	if a, ok := w.limiter.(*ratelimit.AdaptiveRateLimiter); ok {
		a.RecordSuccess()
	}
}

func (w *Watcher) recordError(err error) {
	if SeverityOf(err) != SeverityTransient {
		return
	}
	if a, ok := w.limiter.(*ratelimit.AdaptiveRateLimiter); ok {
		a.RecordError()
	}
}
