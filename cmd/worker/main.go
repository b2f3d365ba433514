// Package main implements the OpsDesk background worker: it runs the task
// dispatcher, the periodic sweepers, and a small operational HTTP endpoint
// over one shared PostgreSQL-backed queue.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"github.com/opsdeskhq/opsdesk/internal/clock"
	"github.com/opsdeskhq/opsdesk/internal/config"
	"github.com/opsdeskhq/opsdesk/internal/events"
	"github.com/opsdeskhq/opsdesk/internal/exporter"
	"github.com/opsdeskhq/opsdesk/internal/importer"
	"github.com/opsdeskhq/opsdesk/internal/platform/blob"
	"github.com/opsdeskhq/opsdesk/internal/platform/logger"
	"github.com/opsdeskhq/opsdesk/internal/platform/postgres"
	"github.com/opsdeskhq/opsdesk/internal/platform/redisx"
	"github.com/opsdeskhq/opsdesk/internal/sweeper"
	"github.com/opsdeskhq/opsdesk/internal/task"
	"github.com/opsdeskhq/opsdesk/internal/webhook"
	"github.com/opsdeskhq/opsdesk/migrations"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}

func run() error {
	// A .env file is a local development convenience; in deployment the
	// environment is provided directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("worker starting",
		"port", cfg.Server.Port,
		"poll_interval", cfg.Worker.PollInterval)

	db, err := openDatabase(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := migrate(db); err != nil {
		return err
	}

	blobs, err := blob.NewFilesystemStore(cfg.Blob.RootDir, cfg.Blob.BaseURL, appLogger)
	if err != nil {
		return fmt.Errorf("failed to set up blob storage: %w", err)
	}

	// Stores.
	taskStore := postgres.NewTaskStore(db)
	ticketStore := postgres.NewTicketStore(db)
	contactStore := postgres.NewContactStore(db)
	companyStore := postgres.NewCompanyStore(db)
	importJobStore := postgres.NewImportJobStore(db)
	exportJobStore := postgres.NewExportJobStore(db)
	webhookStore := postgres.NewWebhookStore(db)
	webhookLogStore := postgres.NewWebhookLogStore(db)
	idAllocator := postgres.NewIDAllocator(db)

	// Handlers and registry. The tag set is closed: registering here is the
	// only way a tag becomes enqueueable.
	importHandler := importer.NewHandler(
		importJobStore, contactStore, companyStore, idAllocator, blobs, appLogger)
	exportHandler := exporter.NewHandler(
		exportJobStore, ticketStore, contactStore, blobs, appLogger)
	deliverer := webhook.NewDeliverer(webhookStore, webhookLogStore, appLogger)

	registry := task.NewRegistry()
	registry.Register(task.TypeContactImport, importHandler)
	registry.Register(task.TypeTicketExport, exportHandler)
	registry.Register(task.TypeContactExport, exportHandler)
	registry.Register(task.TypeWebhookDelivery, deliverer)

	enqueuer := task.NewEnqueuer(taskStore, registry, appLogger)

	// Events: snooze expiry fans out to subscribed webhooks through the
	// queue.
	emitter := events.NewInMemoryEmitter(appLogger)
	emitter.RegisterHandler(task.NewWebhookFanoutHandler(webhookStore, enqueuer, appLogger))

	var notifier sweeper.Notifier
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer func() { _ = client.Close() }()
		notifier = redisx.NewNotifier(client, cfg.Redis.Channel, appLogger)
	} else {
		notifier = redisx.NewLogNotifier(appLogger)
	}

	clk := clock.Real{}
	sweepers := []*sweeper.Loop{
		sweeper.NewLoop(
			sweeper.NewSLASweeper(ticketStore, sweeper.NewDueDateEvaluator(clk),
				cfg.Sweeper.BatchSize, appLogger),
			cfg.Sweeper.SLAInterval, appLogger),
		sweeper.NewLoop(
			sweeper.NewSnoozeSweeper(ticketStore, emitter, clk,
				cfg.Sweeper.PauseDueOnSnooze, cfg.Sweeper.BatchSize, appLogger),
			cfg.Sweeper.SnoozeInterval, appLogger),
		sweeper.NewLoop(
			sweeper.NewReminderSweeper(ticketStore, notifier, clk,
				cfg.Sweeper.ReminderLead, cfg.Sweeper.BatchSize, appLogger),
			cfg.Sweeper.ReminderInterval, appLogger),
		sweeper.NewLoop(
			sweeper.NewCleanupSweeper(importJobStore, exportJobStore, webhookLogStore,
				blobs, clk, cfg.Sweeper.LogRetention, cfg.Sweeper.LogCeiling,
				cfg.Sweeper.BatchSize, appLogger),
			cfg.Sweeper.CleanupInterval, appLogger),
	}

	dispatcher := task.NewDispatcher(taskStore, registry,
		task.DispatcherConfig{PollInterval: cfg.Worker.PollInterval}, appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()

	for _, loop := range sweepers {
		wg.Add(1)
		go func(l *sweeper.Loop) {
			defer wg.Done()
			l.Run(ctx)
		}(loop)
	}

	srv := opsServer(cfg.Server.Port, db, taskStore, appLogger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("ops server failed", "error", err)
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("ops server shutdown failed", "error", err)
	}

	wg.Wait()
	appLogger.Info("worker stopped")
	return nil
}

func openDatabase(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// opsServer exposes the worker's operational surface: liveness and queue
// depth by status.
func opsServer(port int, db *sql.DB, tasks task.Store, appLogger *slog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			appLogger.Error("health check failed", "error", err)
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		counts, err := tasks.CountByStatus(r.Context())
		if err != nil {
			appLogger.Error("failed to load task stats", "error", err)
			http.Error(w, "stats unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"enqueued":%d,"processing":%d,"complete":%d,"error":%d}`,
			counts[task.StatusEnqueued],
			counts[task.StatusProcessing],
			counts[task.StatusComplete],
			counts[task.StatusError])
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
