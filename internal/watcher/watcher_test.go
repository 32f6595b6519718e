package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/aryanr/restock-watcher/internal/probe"
	"github.com/aryanr/restock-watcher/internal/purchase"
	"github.com/aryanr/restock-watcher/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProbe plays back one visibility map per navigation. The last frame
// repeats once the script runs out.
type scriptedProbe struct {
	frames  []map[string]bool
	title   string
	navErrs map[int]error
	navs    int
}

func (s *scriptedProbe) frame() map[string]bool {
	if s.navs == 0 {
		return map[string]bool{}
	}
	idx := s.navs - 1
	if idx >= len(s.frames) {
		idx = len(s.frames) - 1
	}
	return s.frames[idx]
}

func (s *scriptedProbe) Navigate(ctx context.Context, url string) error {
	s.navs++
	if err := s.navErrs[s.navs]; err != nil {
		return err
	}
	return nil
}

func (s *scriptedProbe) IsVisible(selector string) bool { return s.frame()[selector] }

func (s *scriptedProbe) TextOf(string) (string, error) { return "", probe.ErrSelectorMiss }

func (s *scriptedProbe) AttrOf(string, string) (string, error) { return "", probe.ErrSelectorMiss }

func (s *scriptedProbe) Click(string) error { return probe.ErrNotInteractive }

func (s *scriptedProbe) Title() (string, error) { return s.title, nil }

// memStore keeps every written record so transitions can be asserted.
type memStore struct {
	records []*status.Record
}

func (m *memStore) Write(rec *status.Record) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) Read() (*status.Record, bool, error) {
	if len(m.records) == 0 {
		return nil, false, nil
	}
	return m.records[len(m.records)-1], true, nil
}

func (m *memStore) statuses() []status.Status {
	out := make([]status.Status, len(m.records))
	for i, r := range m.records {
		out[i] = r.Status
	}
	return out
}

// failingStore rejects every write the way a full disk would.
type failingStore struct {
	writes int
}

func (f *failingStore) Write(rec *status.Record) error {
	f.writes++
	return fmt.Errorf("%w: disk full", status.ErrWrite)
}

func (f *failingStore) Read() (*status.Record, bool, error) { return nil, false, nil }

type countingNotifier struct {
	available int
	alerts    int
}

func (n *countingNotifier) ProductAvailable(context.Context, string, string, string) error {
	n.available++
	return nil
}

func (n *countingNotifier) CartAlert(context.Context, string, string, string) error { return nil }

func (n *countingNotifier) Alert(context.Context, string, string) error {
	n.alerts++
	return nil
}

// fixedPurchaser returns a canned attempt.
type fixedPurchaser struct {
	attempt *purchase.Attempt
	runs    int
}

func (f *fixedPurchaser) Run(ctx context.Context, expectedName, productURL, location string) *purchase.Attempt {
	f.runs++
	return f.attempt
}

// instantLimiter never delays.
type instantLimiter struct{}

func (instantLimiter) Wait(ctx context.Context) error { return ctx.Err() }

func (instantLimiter) SetDelay(min, max time.Duration) {}

func newTestWatcher(cfg Config, p probe.Probe, store status.Store, n *countingNotifier, buyer Purchaser) *Watcher {
	if cfg.ProductID == "" {
		cfg.ProductID = "batmobile"
	}
	if cfg.ProductURL == "" {
		cfg.ProductURL = "https://example.com/p/1"
	}
	w := New(cfg, p, store, n, buyer, instantLimiter{}, slog.Default())
	w.sleep = func(time.Duration) {}
	return w
}

func comingSoonFrame() map[string]bool { return map[string]bool{"text=Coming Soon": true} }
func availableFrame() map[string]bool  { return map[string]bool{"text=ADD": true} }
func outOfStockFrame() map[string]bool { return map[string]bool{"text=Out of Stock": true} }

func TestWatcherRun(t *testing.T) {
	ctx := context.Background()

	t.Run("records each transition and stops at max checks", func(t *testing.T) {
		p := &scriptedProbe{
			title:  "Hot Wheels Batmobile",
			frames: []map[string]bool{comingSoonFrame(), comingSoonFrame(), outOfStockFrame()},
		}
		store := &memStore{}
		n := &countingNotifier{}

		w := newTestWatcher(Config{MaxChecks: 3, ContinueOnOutOfStock: true}, p, store, n, nil)
		reason, err := w.Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, ReasonPolicyStop, reason)
		assert.Equal(t, []status.Status{
			status.StatusMonitoring,
			status.StatusComingSoon,
			status.StatusComingSoon,
			status.StatusOutOfStock,
			status.StatusStopped,
		}, store.statuses())
		assert.Equal(t, 0, n.available)
	})

	t.Run("keeps watching when the status file cannot be written", func(t *testing.T) {
		p := &scriptedProbe{
			title:  "Hot Wheels Batmobile",
			frames: []map[string]bool{comingSoonFrame(), availableFrame(), availableFrame()},
		}
		store := &failingStore{}
		n := &countingNotifier{}

		w := newTestWatcher(Config{MaxChecks: 3}, p, store, n, nil)
		reason, err := w.Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, ReasonPolicyStop, reason)
		assert.Equal(t, 1, n.available)
		assert.Equal(t, 5, store.writes)
	})

	t.Run("notifies exactly once on the availability transition", func(t *testing.T) {
		p := &scriptedProbe{
			title:  "Hot Wheels Batmobile",
			frames: []map[string]bool{comingSoonFrame(), availableFrame(), availableFrame()},
		}
		store := &memStore{}
		n := &countingNotifier{}

		w := newTestWatcher(Config{MaxChecks: 3}, p, store, n, nil)
		reason, err := w.Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, ReasonPolicyStop, reason)
		assert.Equal(t, 1, n.available)

		last := store.records[len(store.records)-2]
		assert.Equal(t, status.StatusAvailable, last.Status)
		assert.True(t, last.ActionNeeded)
	})

	t.Run("stops on out of stock unless told to continue", func(t *testing.T) {
		p := &scriptedProbe{title: "Hot Wheels Batmobile", frames: []map[string]bool{outOfStockFrame()}}
		store := &memStore{}

		w := newTestWatcher(Config{}, p, store, &countingNotifier{}, nil)
		reason, err := w.Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, ReasonPolicyStop, reason)
		assert.Equal(t, 1, p.navs)
	})

	t.Run("cancelled context ends the watch with a stopped record", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		store := &memStore{}
		w := newTestWatcher(Config{}, &scriptedProbe{}, store, &countingNotifier{}, nil)
		reason, err := w.Run(cancelled)

		require.NoError(t, err)
		assert.Equal(t, ReasonUserStop, reason)
		require.NotEmpty(t, store.records)
		assert.Equal(t, status.StatusStopped, store.records[len(store.records)-1].Status)
	})

	t.Run("navigation failure records error and keeps polling", func(t *testing.T) {
		p := &scriptedProbe{
			title:   "Hot Wheels Batmobile",
			frames:  []map[string]bool{comingSoonFrame(), comingSoonFrame()},
			navErrs: map[int]error{1: probe.ErrNavigation},
		}
		store := &memStore{}

		w := newTestWatcher(Config{MaxChecks: 2}, p, store, &countingNotifier{}, nil)
		reason, err := w.Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, ReasonPolicyStop, reason)
		assert.Equal(t, status.StatusMonitoring, store.records[0].Status)
		assert.Equal(t, status.StatusError, store.records[1].Status)
		assert.Equal(t, status.StatusComingSoon, store.records[2].Status)
	})

	t.Run("completed purchase ends the watch with purchased", func(t *testing.T) {
		p := &scriptedProbe{title: "Hot Wheels Batmobile", frames: []map[string]bool{availableFrame()}}
		store := &memStore{}
		buyer := &fixedPurchaser{attempt: &purchase.Attempt{ID: "a1", Final: purchase.StateCompleted}}

		w := newTestWatcher(Config{AutoPurchase: true}, p, store, &countingNotifier{}, buyer)
		reason, err := w.Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, ReasonPurchased, reason)
		assert.Equal(t, 0, reason.ExitCode())
		assert.Equal(t, 1, buyer.runs)
		assert.Equal(t, status.StatusPurchased, store.records[len(store.records)-1].Status)
	})

	t.Run("coming soon twice then available ends purchased", func(t *testing.T) {
		p := &scriptedProbe{
			title:  "Hot Wheels Batmobile",
			frames: []map[string]bool{comingSoonFrame(), comingSoonFrame(), availableFrame()},
		}
		store := &memStore{}
		n := &countingNotifier{}
		buyer := &fixedPurchaser{attempt: &purchase.Attempt{ID: "a1", Final: purchase.StateCompleted}}

		w := newTestWatcher(Config{AutoPurchase: true}, p, store, n, buyer)
		reason, err := w.Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, ReasonPurchased, reason)
		assert.Equal(t, 1, n.available)
		assert.Equal(t, 1, buyer.runs)
		assert.Equal(t, []status.Status{
			status.StatusMonitoring,
			status.StatusComingSoon,
			status.StatusComingSoon,
			status.StatusAvailable,
			status.StatusPurchased,
		}, store.statuses())
	})

	t.Run("mismatch abort keeps polling", func(t *testing.T) {
		p := &scriptedProbe{
			title:  "Hot Wheels Batmobile",
			frames: []map[string]bool{availableFrame(), availableFrame()},
		}
		store := &memStore{}
		buyer := &fixedPurchaser{attempt: &purchase.Attempt{
			ID:    "a1",
			Final: purchase.StateAborted,
			Err:   purchase.ErrNameMismatch,
		}}

		w := newTestWatcher(Config{AutoPurchase: true, MaxChecks: 2}, p, store, &countingNotifier{}, buyer)
		reason, err := w.Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, ReasonPolicyStop, reason)
		assert.Equal(t, 2, buyer.runs)
	})

	t.Run("manual intervention stops polling and alerts", func(t *testing.T) {
		p := &scriptedProbe{title: "Hot Wheels Batmobile", frames: []map[string]bool{availableFrame()}}
		store := &memStore{}
		n := &countingNotifier{}
		buyer := &fixedPurchaser{attempt: &purchase.Attempt{
			ID:    "a1",
			Final: purchase.StateManualIntervention,
		}}

		w := newTestWatcher(Config{AutoPurchase: true}, p, store, n, buyer)
		reason, err := w.Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, ReasonPolicyStop, reason)
		assert.Equal(t, 3, reason.ExitCode())
		assert.Equal(t, 1, n.alerts)
	})

	t.Run("availability retracted on recheck is out of stock", func(t *testing.T) {
		// ADD and Out of Stock both visible reads as out of stock, so the
		// recheck path needs a frame where only ADD shows first. The
		// scripted probe returns the same frame for both reads within a
		// cycle, so flip the frame content instead: visible ADD plus a
		// visible out-of-stock marker must classify as out of stock.
		p := &scriptedProbe{
			title:  "Hot Wheels Batmobile",
			frames: []map[string]bool{{"text=ADD": true, "text=Out of Stock": true}},
		}
		store := &memStore{}

		w := newTestWatcher(Config{ContinueOnOutOfStock: false}, p, store, &countingNotifier{}, nil)
		reason, err := w.Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, ReasonPolicyStop, reason)
		assert.Equal(t, status.StatusOutOfStock, store.records[1].Status)
	})

	t.Run("expected name is captured from the first extraction", func(t *testing.T) {
		p := &scriptedProbe{title: "Hot Wheels Batmobile", frames: []map[string]bool{comingSoonFrame()}}
		w := newTestWatcher(Config{MaxChecks: 1}, p, &memStore{}, &countingNotifier{}, nil)

		_, err := w.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Hot Wheels Batmobile", w.expected)
	})

	t.Run("query count increments across cycles", func(t *testing.T) {
		p := &scriptedProbe{title: "Hot Wheels Batmobile", frames: []map[string]bool{comingSoonFrame()}}
		store := &memStore{}

		w := newTestWatcher(Config{MaxChecks: 3}, p, store, &countingNotifier{}, nil)
		_, err := w.Run(ctx)

		require.NoError(t, err)
		assert.Equal(t, 0, store.records[0].QueryCount)
		assert.Equal(t, 1, store.records[1].QueryCount)
		assert.Equal(t, 2, store.records[2].QueryCount)
		assert.Equal(t, 3, store.records[3].QueryCount)
	})
}

func TestReasonExitCode(t *testing.T) {
	assert.Equal(t, 0, ReasonPurchased.ExitCode())
	assert.Equal(t, 1, ReasonFatal.ExitCode())
	assert.Equal(t, 2, ReasonUserStop.ExitCode())
	assert.Equal(t, 3, ReasonPolicyStop.ExitCode())
}
