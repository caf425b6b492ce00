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

	"github.com/pipable/pipable/internal/api"
	"github.com/pipable/pipable/internal/auth"
	"github.com/pipable/pipable/internal/config"
	"github.com/pipable/pipable/internal/nl2sql"
	"github.com/pipable/pipable/internal/observability"
	"github.com/pipable/pipable/internal/storage"
	s3store "github.com/pipable/pipable/internal/storage/s3"
	"github.com/pipable/pipable/internal/training"
)

func main() {
	cfg, err := config.LoadFromEnvFiles("pipable-server", ".env")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	backend, err := nl2sql.NewCompletionBackend(nl2sql.CompletionConfig{
		BaseURL:     cfg.Backend.BaseURL,
		APIKey:      cfg.Backend.APIKey,
		Model:       cfg.Backend.Model,
		MaxTokens:   cfg.Backend.MaxTokens,
		Temperature: cfg.Backend.Temperature,
		Timeout:     cfg.Backend.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize inference backend", slog.Any("error", err))
		os.Exit(1)
	}

	var objectStore storage.ObjectStore
	if cfg.ObjectStore.Enabled {
		store, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		objectStore = store
	}

	deps := api.Dependencies{
		Logger:    logger,
		Completer: backend,
		Readiness: api.CombineReadinessChecks(
			api.CheckBackendConfig(cfg),
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Training.Enabled {
		trainer, err := training.NewService(
			training.Config{OutputRoot: cfg.Training.OutputRoot},
			objectStore,
			training.CommandRunner{Args: cfg.Training.Command, Logger: logger},
			backend,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize training", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Trainer = trainer
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting pipable server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("model", backend.Model()),
			slog.Bool("training", cfg.Training.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("pipable server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down pipable server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
