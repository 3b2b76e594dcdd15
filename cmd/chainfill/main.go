package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hale-dev/chainfill/internal/analysis"
	"github.com/hale-dev/chainfill/internal/api"
	"github.com/hale-dev/chainfill/internal/backfill"
	"github.com/hale-dev/chainfill/internal/cache"
	"github.com/hale-dev/chainfill/internal/config"
	"github.com/hale-dev/chainfill/internal/embeddings"
	"github.com/hale-dev/chainfill/internal/events"
	"github.com/hale-dev/chainfill/internal/metrics"
	"github.com/hale-dev/chainfill/internal/store"
	"github.com/hale-dev/chainfill/internal/transcript"
)

func main() {
	runAll := flag.Bool("run", false, "back-fill all eligible sessions and exit")
	sessionID := flag.String("session", "", "back-fill a single session and exit")
	reprocess := flag.Bool("reprocess", false, "with -session: recompute ignoring completion state")
	flag.Parse()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("chainfill starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL, cfg.BatchCeiling)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected", "batch_ceiling", cfg.BatchCeiling)

	if cfg.OpenAIKey == "" {
		slog.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	embedder := embeddings.NewOpenAIClient(cfg.OpenAIKey, cfg.EmbeddingModel, cfg.EmbeddingDim, cfg.EmbedTimeout, cfg.EmbedRetries)
	slog.Info("embedding client ready", "model", cfg.EmbeddingModel, "dim", cfg.EmbeddingDim)

	vectors := cache.New[[]float32]()
	semantic := analysis.NewSemanticAnalyzer(embedder, vectors)
	if err := semantic.Prime(ctx); err != nil {
		slog.Error("failed to prime semantic reference clusters", "error", err)
		os.Exit(1)
	}
	slog.Info("semantic reference clusters primed")

	collector := metrics.NewCollector()

	reader := transcript.NewReader(cfg.TranscriptDir, cfg.QuietWindow, slog.Default())
	updater := backfill.NewUpdater(db, cfg.StoreRetries, slog.Default())

	// NATS is optional; one-shot runs work without the bus.
	var bus *events.Client
	var publisher backfill.Publisher
	if cfg.NatsURL != "" {
		bus, err = events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer bus.Close()
		publisher = bus
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, running without event publishing")
	}

	runner := backfill.NewRunner(
		backfill.Config{
			StatePath:           cfg.StatePath,
			SessionWorkers:      cfg.SessionWorkers,
			PairWorkers:         cfg.PairWorkers,
			ValidationThreshold: cfg.ValidationThreshold,
		},
		reader,
		semantic,
		updater,
		publisher,
		collector,
		slog.Default(),
	)

	// One-shot modes: run and exit without the HTTP server.
	if *runAll || *sessionID != "" {
		if err := runOnce(ctx, runner, *sessionID, *reprocess); err != nil {
			slog.Error("back-fill failed", "error", err)
			os.Exit(1)
		}
		return
	}
	if *reprocess {
		slog.Error("-reprocess requires -session")
		os.Exit(1)
	}

	// Serve mode: back-fill on demand, triggered by the bus or the API.
	if bus != nil {
		err := bus.SubscribeSessionCompleted(func(sessionID string) {
			if _, err := runner.RunSession(ctx, sessionID); err != nil {
				slog.Error("session back-fill failed", "session_id", sessionID, "error", err)
			}
		})
		if err != nil {
			slog.Error("failed to subscribe to session events", "error", err)
			os.Exit(1)
		}
	}

	srv := api.NewServer(cfg.Port, runner, db, collector.Registry())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("chainfill ready", "port", cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("chainfill stopped")
}

func runOnce(ctx context.Context, runner *backfill.Runner, sessionID string, reprocess bool) error {
	var (
		sum backfill.Summary
		err error
	)
	switch {
	case sessionID != "" && reprocess:
		sum, err = runner.Reprocess(ctx, sessionID)
	case sessionID != "":
		sum, err = runner.RunSession(ctx, sessionID)
	default:
		sum, err = runner.Run(ctx)
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
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
