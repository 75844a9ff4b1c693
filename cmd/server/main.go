package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/chat"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/config"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/game"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/handler"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/kafka"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/postgres"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/presence"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/scoring"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/store"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/websocket"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL: user profiles and the JSONB document store share one pool
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("initializing postgres: %w", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(ctx); err != nil {
		return fmt.Errorf("running user migrations: %w", err)
	}

	docs := store.NewPostgresStoreWithPool(repo.Pool(), logger)
	if err := docs.RunMigrations(ctx); err != nil {
		return fmt.Errorf("running document migrations: %w", err)
	}

	// Redis presence
	tracker, err := presence.NewTracker(&cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("initializing presence tracker: %w", err)
	}
	defer tracker.Close()

	// Core services
	engine := scoring.NewEngine(repo, docs, logger)
	gameSvc := game.NewService(docs, repo, engine, cfg.Game, logger)

	hub := websocket.NewHub(logger)
	relay := chat.NewRelay(docs, hub, logger)
	wsServer := websocket.NewServer(hub, gameSvc, relay, tracker, logger)

	// Background reconciler
	if cfg.Reconciler.Enabled {
		reconciler := worker.NewReconciler(engine, docs, cfg.Reconciler, logger)
		go reconciler.Start(ctx)
	}

	// Kafka progress ingestion
	if cfg.Kafka.Enabled {
		consumer, err := kafka.NewConsumer(&cfg.Kafka, gameSvc, hub, logger)
		if err != nil {
			return fmt.Errorf("initializing kafka consumer: %w", err)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("kafka consumer stopped", "error", err)
			}
		}()
	}

	// HTTP server
	h := handler.NewHandler(gameSvc, tracker, relay, wsServer, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	relay.Drain()

	logger.Info("shutdown complete")
	return nil
}
