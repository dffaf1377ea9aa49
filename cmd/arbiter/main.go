package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arbiterhq/arbiter/internal/api"
	"github.com/arbiterhq/arbiter/internal/compiler"
	"github.com/arbiterhq/arbiter/internal/config"
	"github.com/arbiterhq/arbiter/internal/events"
	"github.com/arbiterhq/arbiter/internal/llm"
	"github.com/arbiterhq/arbiter/internal/metrics"
	"github.com/arbiterhq/arbiter/internal/notify"
	"github.com/arbiterhq/arbiter/internal/sandbox"
	"github.com/arbiterhq/arbiter/internal/service"
	"github.com/arbiterhq/arbiter/internal/store"
	"github.com/arbiterhq/arbiter/internal/watch"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("arbiter starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pg.Close()
	slog.Info("database connected")

	// Redis snapshot cache (optional)
	rdb, err := store.NewCache(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	versions := store.Wrap(pg, rdb)
	if rdb != nil {
		defer rdb.Close()
		slog.Info("redis snapshot cache ready")
	}

	// Engine tunables
	tunables, err := config.LoadTunables(cfg.TunablesPath)
	if err != nil {
		slog.Error("failed to load tunables", "path", cfg.TunablesPath, "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	// Model client for the compiler (proposal generation only)
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	model := llm.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.LLMTimeout)
	slog.Info("model client ready", "model", cfg.AnthropicModel)

	comp := compiler.New(model, versions, compiler.NewLexicon(tunables.VagueTerms), slog.Default(), m)

	// NATS
	bus, err := events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer bus.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)
	comp.SetPublisher(bus)

	// Slack notifier (optional — arbiter works without it, just no review pings)
	var notifier *notify.Notifier
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		notifier = notify.New(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack notifier ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured — running without review notifications")
	}

	// Evaluation orchestrator
	svc := service.New(versions, tunables.Engine(), bus, slog.Default(), m)

	if err := bus.Subscribe(events.SubjectTranscriptReady, svc.HandleTranscriptReady); err != nil {
		slog.Error("failed to subscribe to transcript events", "error", err)
		os.Exit(1)
	}

	// Tunables hot-reload
	if cfg.TunablesPath != "" {
		reloader, err := watch.NewReloader(cfg.TunablesPath, func() error {
			t, err := config.LoadTunables(cfg.TunablesPath)
			if err != nil {
				return err
			}
			svc.SetEngineConfig(t.Engine())
			return nil
		}, slog.Default())
		if err != nil {
			slog.Error("failed to watch tunables", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := reloader.Run(ctx); err != nil {
				slog.Error("tunables watcher stopped", "error", err)
			}
		}()
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, api.Deps{
		Compiler: comp,
		Service:  svc,
		Harness:  sandbox.New(tunables.Engine()),
		Store:    versions,
		Notifier: notifier,
		Bus:      bus,
		Logger:   slog.Default(),
	})
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("arbiter ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("arbiter stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
