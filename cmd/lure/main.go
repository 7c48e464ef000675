package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/lure/internal/agent"
	"github.com/MikeSquared-Agency/lure/internal/anthropic"
	"github.com/MikeSquared-Agency/lure/internal/api"
	"github.com/MikeSquared-Agency/lure/internal/config"
	"github.com/MikeSquared-Agency/lure/internal/dispatch"
	"github.com/MikeSquared-Agency/lure/internal/engine"
	"github.com/MikeSquared-Agency/lure/internal/extractor"
	"github.com/MikeSquared-Agency/lure/internal/hermes"
	"github.com/MikeSquared-Agency/lure/internal/metrics"
	"github.com/MikeSquared-Agency/lure/internal/session"
	"github.com/MikeSquared-Agency/lure/internal/stage"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("lure starting", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tuning, err := config.LoadTuning(cfg.TuningFile)
	if err != nil {
		slog.Error("failed to load tuning file", "path", cfg.TuningFile, "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	// Session store
	var store session.Store
	if cfg.DatabaseURL != "" {
		pg, err := session.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
		slog.Info("database connected")
	} else {
		store = session.NewMemoryStore()
		slog.Warn("DATABASE_URL not set, sessions are kept in memory")
	}

	// Reply generation (optional, canned replies without it)
	var gen agent.Generator
	if cfg.AnthropicAPIKey != "" {
		llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.GenerationTimeout)
		gen = agent.NewLLMGenerator(llm)
		slog.Info("anthropic client ready", "model", llm.Model())
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, using canned replies only")
	}
	ag := agent.New(gen, agent.Config{
		Timeout:       cfg.GenerationTimeout,
		HistoryWindow: cfg.HistoryWindow,
	}, slog.Default(), m)

	// Report delivery
	var sender dispatch.Sender
	if cfg.CallbackURL != "" {
		sender = dispatch.NewHTTPSender(cfg.CallbackURL, cfg.CallbackAPIKey, cfg.CallbackTimeout)
	} else {
		slog.Warn("LURE_CALLBACK_URL not set, final reports will not be delivered")
	}
	disp := dispatch.New(sender, dispatch.Config{
		Workers:        cfg.DeliveryWorkers,
		MaxAttempts:    cfg.DeliveryMaxAttempts,
		InitialBackoff: cfg.DeliveryInitialBackoff,
		MaxBackoff:     cfg.DeliveryMaxBackoff,
	}, slog.Default())
	disp.SetMetrics(m)

	eng := engine.New(store,
		extractor.New(tuning.Extractor),
		stage.NewClassifier(tuning.Classifier),
		ag, disp,
		engine.Config{MaxTurns: cfg.MaxTurns},
		slog.Default(),
	)
	eng.SetMetrics(m)

	disp.OnOutcome(func(o dispatch.Outcome) {
		if err := eng.RecordOutcome(context.WithoutCancel(ctx), o); err != nil {
			slog.Warn("failed to record delivery outcome", "session_id", o.SessionID, "error", err)
		}
	})

	// NATS/Hermes (optional)
	if cfg.NatsURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		hermesClient, err := hermes.NewClient(connectCtx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		cancel()
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		eng.SetEvents(hermesClient)
		disp.SetEvents(hermesClient)

		if err := hermesClient.OnTerminate(func(cmd hermes.TerminateCommand) {
			if err := eng.Terminate(ctx, cmd.SessionID, cmd.Reason); err != nil {
				slog.Warn("terminate command failed", "session_id", cmd.SessionID, "error", err)
			}
		}); err != nil {
			slog.Error("failed to subscribe to terminate commands", "error", err)
			os.Exit(1)
		}
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	srv := api.NewServer(cfg.Port, cfg.APIKey, eng, m.Handler(), slog.Default())
	httpServer := &http.Server{
		Addr:              srv.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return disp.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("API server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		sweep(gctx, eng, cfg.SessionTTL)
		return nil
	})

	slog.Info("lure ready", "port", cfg.Port, "max_turns", cfg.MaxTurns)

	if err := g.Wait(); err != nil {
		slog.Error("lure stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("lure stopped")
}

// sweep periodically drops concluded sessions whose report has settled.
func sweep(ctx context.Context, eng *engine.Engine, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval > 10*time.Minute {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := eng.Sweep(ctx, ttl)
			if err != nil {
				slog.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("swept idle sessions", "count", n)
			}
		}
	}
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
