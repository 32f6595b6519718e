package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/aryanr/restock-watcher/internal/api"
	"github.com/aryanr/restock-watcher/internal/browser"
	"github.com/aryanr/restock-watcher/internal/catalog"
	"github.com/aryanr/restock-watcher/internal/config"
	"github.com/aryanr/restock-watcher/internal/database"
	"github.com/aryanr/restock-watcher/internal/handoff"
	"github.com/aryanr/restock-watcher/internal/notify"
	"github.com/aryanr/restock-watcher/internal/probe"
	"github.com/aryanr/restock-watcher/internal/purchase"
	"github.com/aryanr/restock-watcher/internal/ratelimit"
	"github.com/aryanr/restock-watcher/internal/status"
	"github.com/aryanr/restock-watcher/internal/watcher"
)

func main() {
	os.Exit(run())
}

// run keeps the exit in one place so defers fire before the process dies.
// Exit codes: 0 purchased, 1 fatal, 2 stopped by user, 3 stopped by policy.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return 1
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	// Resolve the product URL, from the catalog when only a label is given.
	productURL := cfg.Watcher.ProductURL
	productID := cfg.Watcher.ProductLabel
	var cat *catalog.Catalog
	if productURL == "" {
		cat, err = catalog.Load(cfg.Watcher.CatalogPath)
		if err != nil {
			logger.Error("failed to load catalog", "error", err, "path", cfg.Watcher.CatalogPath)
			return 1
		}
		productURL, err = cat.Lookup(cfg.Watcher.ProductLabel)
		if err != nil {
			logger.Error("product not in catalog", "label", cfg.Watcher.ProductLabel, "known", cat.Labels())
			return 1
		}
	}
	if productID == "" {
		productID = productURL
	}

	store := status.NewFileStore(cfg.Status.FilePath)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Telegram.Enabled() {
		notifier = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChannelID, logger)
	} else {
		logger.Info("telegram not configured, notifications disabled")
	}

	// Page probe: a real browser by default, a plain HTTP fetch in
	// no-browser mode for availability-only watches.
	var pageProbe probe.Probe
	var seq watcher.Purchaser

	if cfg.Watcher.NoBrowser {
		pageProbe = probe.NewHTMLProbe(&http.Client{Timeout: cfg.Browser.Timeout}, browser.DefaultOptions().UserAgent)
	} else {
		opts := browser.DefaultOptions()
		opts.Headless = cfg.Browser.Headless
		opts.Timeout = cfg.Browser.Timeout
		opts.ViewportWidth = cfg.Browser.ViewportWidth
		opts.ViewportHeight = cfg.Browser.ViewportHeight
		opts.AcceptLanguage = cfg.Browser.AcceptLanguage
		opts.TimezoneID = cfg.Browser.TimezoneID
		opts.Locale = cfg.Browser.Locale
		opts.ProxyServer = cfg.Browser.ProxyServer

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
		// Warm the session before the poll loop starts; a failed first
		// load is retried by the loop itself.
		if err := b.NavigateWithRetry(page, productURL, 3); err != nil {
			logger.Warn("initial page load failed", "error", err)
		}

		pageProbe = probe.NewPlaywrightProbe(page, logger)
		s := purchase.NewSequencer(pageProbe, notifier, purchase.DefaultOptions(), logger)
		s.SetSelectors(purchase.SelectorsFromLists(
			cfg.Selectors.AddToCart, cfg.Selectors.OpenCart, cfg.Selectors.CartItemName,
			cfg.Selectors.Checkout, cfg.Selectors.Payment, cfg.Selectors.Confirm))
		seq = s
	}

	cycleWatcher := watcher.New(watcher.Config{
		ProductID:            productID,
		ProductURL:           productURL,
		Location:             cfg.Watcher.Location,
		MaxChecks:            cfg.Watcher.MaxChecks,
		ContinueOnOutOfStock: cfg.Watcher.ContinueOnOutOfStock,
		AutoPurchase:         cfg.Watcher.AutoPurchase && !cfg.Watcher.NoBrowser,
	}, pageProbe, store, notifier, seq, newLimiter(cfg.Watcher), logger)

	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		cycleWatcher.SetBus(handoff.NewBus(client, cfg.Redis.Stream, logger))
		logger.Info("redis handoff enabled", "stream", cfg.Redis.Stream)
	}

	var history *database.StatusHistory
	if cfg.Database.Enabled() {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return 1
		}
		defer db.Close()

		history = database.NewStatusHistory(db)
		if err := history.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure history schema", "error", err)
			return 1
		}
		cycleWatcher.SetHistory(history)
		logger.Info("status history archive enabled")
	}

	server := startServer(cfg.Server, api.NewHandlers(store, history, cat, logger), logger)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	reason, err := cycleWatcher.Run(ctx)
	if err != nil {
		logger.Error("watch ended with error", "error", err, "reason", reason.String())
	} else {
		logger.Info("watch ended", "reason", reason.String())
	}
	return reason.ExitCode()
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

func newLimiter(cfg config.WatcherConfig) ratelimit.RateLimiter {
	max := cfg.CheckIntervalMax
	if max == 0 {
		max = cfg.CheckInterval + cfg.CheckInterval/2
	}
	return ratelimit.NewAdaptiveRateLimiter(cfg.CheckInterval, max)
}

func startServer(cfg config.ServerConfig, handlers *api.Handlers, logger *slog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", handlers.GetStatus)
		r.Get("/catalog", handlers.GetCatalog)
		r.Get("/history/{productID}", handlers.GetHistory)
		r.Get("/history/{productID}/latest", handlers.GetLatest)
		r.Get("/stats/{productID}", handlers.GetStats)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("status API listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("status API failed", "error", err)
		}
	}()

	return server
}
