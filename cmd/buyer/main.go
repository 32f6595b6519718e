// The buyer is the second half of the two-process setup: it keeps a logged-in
// browser session warm and acts the moment the watcher records an available
// product, either by tailing the Redis handoff stream or by polling the
// status file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aryanr/restock-watcher/internal/browser"
	"github.com/aryanr/restock-watcher/internal/config"
	"github.com/aryanr/restock-watcher/internal/handoff"
	"github.com/aryanr/restock-watcher/internal/notify"
	"github.com/aryanr/restock-watcher/internal/probe"
	"github.com/aryanr/restock-watcher/internal/purchase"
	"github.com/aryanr/restock-watcher/internal/status"
	"github.com/aryanr/restock-watcher/internal/watcher"
)

const filePollInterval = 2 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}

	logger := newLogger(cfg.Logging).With("component", "buyer")
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	b, err := browser.New(opts)
	if err != nil {
		logger.Error("failed to launch browser", "error", err)
		return 1
	}
	defer b.Close()

	page, err := b.NewPage()
	if err != nil {
		logger.Error("failed to open page", "error", err)
		return 1
	}
	pageProbe := probe.NewPlaywrightProbe(page, logger)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Telegram.Enabled() {
		notifier = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChannelID, logger)
	}

	seq := purchase.NewSequencer(pageProbe, notifier, purchase.DefaultOptions(), logger)
	seq.SetSelectors(purchase.SelectorsFromLists(
		cfg.Selectors.AddToCart, cfg.Selectors.OpenCart, cfg.Selectors.CartItemName,
		cfg.Selectors.Checkout, cfg.Selectors.Payment, cfg.Selectors.Confirm))
	buyerStore := status.NewFileStore(cfg.Status.BuyerFilePath)

	b2 := &buyer{
		probe:  pageProbe,
		seq:    seq,
		store:  buyerStore,
		logger: logger,
	}

	var reason watcher.Reason
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		reason = b2.runStream(ctx, handoff.NewBus(client, cfg.Redis.Stream, logger))
	} else {
		reason = b2.runFile(ctx, status.NewFileStore(cfg.Status.FilePath))
	}

	logger.Info("buyer stopped", "reason", reason.String())
	return reason.ExitCode()
}

type buyer struct {
	probe  probe.Probe
	seq    *purchase.Sequencer
	store  status.Store
	logger *slog.Logger

	lastActed time.Time
}

// runStream blocks on the Redis handoff stream and acts on each actionable
// record as it arrives.
func (b *buyer) runStream(ctx context.Context, bus *handoff.Bus) watcher.Reason {
	b.logger.Info("tailing handoff stream")
	lastID := "$"
	for {
		if ctx.Err() != nil {
			return watcher.ReasonUserStop
		}

		entries, err := bus.Read(ctx, lastID, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return watcher.ReasonUserStop
			}
			b.logger.Warn("stream read failed, retrying", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, e := range entries {
			lastID = e.ID
			if done, reason := b.maybeAct(ctx, e.Record); done {
				return reason
			}
		}
	}
}

// runFile polls the watcher's status file, acting when a fresh actionable
// record appears.
func (b *buyer) runFile(ctx context.Context, watcherStore status.Store) watcher.Reason {
	b.logger.Info("polling status file")
	for {
		if ctx.Err() != nil {
			return watcher.ReasonUserStop
		}

		rec, ok, err := watcherStore.Read()
		if err != nil {
			b.logger.Warn("status read failed, retrying", "error", err)
		} else if ok {
			if done, reason := b.maybeAct(ctx, rec); done {
				return reason
			}
		}

		select {
		case <-ctx.Done():
			return watcher.ReasonUserStop
		case <-time.After(filePollInterval):
		}
	}
}

// maybeAct runs a purchase attempt for an actionable record not yet acted on.
// It returns done=true when the buyer should exit.
func (b *buyer) maybeAct(ctx context.Context, rec *status.Record) (bool, watcher.Reason) {
	if !rec.ActionNeeded || !rec.Timestamp.After(b.lastActed) {
		return false, 0
	}
	b.lastActed = rec.Timestamp

	b.logger.Info("actionable record received",
		"product_id", rec.ProductID,
		"status", rec.Status,
		"recorded_at", rec.Timestamp)

	if err := b.probe.Navigate(ctx, rec.ProductURL); err != nil {
		b.logger.Error("navigation failed, waiting for next record", "error", err)
		return false, 0
	}

	attempt := b.seq.Run(ctx, rec.ProductName, rec.ProductURL, rec.Location)

	switch attempt.Final {
	case purchase.StateCompleted:
		b.writeStatus(rec, status.StatusPurchased, map[string]any{"attempt_id": attempt.ID})
		return true, watcher.ReasonPurchased

	case purchase.StateAborted:
		if errors.Is(attempt.Err, purchase.ErrNameMismatch) {
			b.logger.Warn("attempt aborted on name mismatch, waiting for next record",
				"attempt_id", attempt.ID)
			return false, 0
		}
		b.writeStatus(rec, status.StatusStopped, map[string]any{"attempt_id": attempt.ID})
		return true, watcher.ReasonUserStop

	default:
		b.writeStatus(rec, status.StatusAvailable, map[string]any{
			"attempt_id": attempt.ID,
			"manual":     "purchase needs manual completion",
		})
		return true, watcher.ReasonPolicyStop
	}
}

func (b *buyer) writeStatus(src *status.Record, st status.Status, details map[string]any) {
	rec := status.NewRecord(src.ProductID, src.ProductName, src.ProductURL, st, src.QueryCount, details)
	rec.Location = src.Location
	if err := b.store.Write(rec); err != nil {
		b.logger.Error("buyer status write failed", "error", err)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
