// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/btouchard/jobwatch/internal/application/services"
	"github.com/btouchard/jobwatch/internal/infrastructure/config"
	"github.com/btouchard/jobwatch/internal/infrastructure/database"
	"github.com/btouchard/jobwatch/internal/infrastructure/idempotency"
	"github.com/btouchard/jobwatch/internal/infrastructure/orchestrator"
	"github.com/btouchard/jobwatch/internal/infrastructure/webhook"
	"github.com/btouchard/jobwatch/internal/presentation/api"
	"github.com/btouchard/jobwatch/pkg/logger"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.SetLevelAndFormat(logger.ParseLevel(cfg.Logger.Level), cfg.Logger.Format)

	db, err := database.InitDB(ctx, database.Config{DSN: cfg.Database.DSN})
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer func() { _ = db.Close() }()

	webhookRepo := database.NewWebhookRepository(db)
	watcherRepo := database.NewJobDoneWatcherRepository(db)
	familyWatcherRepo := database.NewJobFamilyWatcherRepository(db)

	invoker := webhook.NewInvoker(nil)
	cache := idempotency.New(idempotency.DefaultSize)

	webhookService := services.NewWebhookService(webhookRepo)
	watcherService := services.NewWatcherService(ctx, watcherRepo, webhookService, cache, invoker)
	familyWatcherService := services.NewFamilyWatcherService(familyWatcherRepo, invoker)

	bootstrapFamilyWatchers(ctx, cfg.FamilyWatchersConfigFile, familyWatcherService)

	loop, err := orchestrator.NewEventLoop(metav1.NamespaceDefault, watcherService, familyWatcherService)
	if err != nil {
		log.Fatalf("failed to build orchestrator event loop: %v", err)
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go loop.Run(loopCtx)

	router := api.NewRouter(api.RouterConfig{
		WebhookService: webhookService,
		WatcherService: watcherService,
	})

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: router,
	}

	go func() {
		logger.Logger.Info("starting watcher service", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("shutting down")
	stopLoop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("server forced to shutdown", "error", err.Error())
	}

	logger.Logger.Info("watcher service exited")
}

// bootstrapFamilyWatchers loads the optional YAML file of family-watcher
// entries and registers each one. A missing path is not an error and is
// skipped entirely; a read or parse failure is logged but does not abort
// startup.
func bootstrapFamilyWatchers(ctx context.Context, path string, svc *services.FamilyWatcherService) {
	if path == "" {
		return
	}

	entries, err := config.LoadFamilyWatchers(path)
	if err != nil {
		logger.Logger.Error("family watcher bootstrap failed", "path", path, "error", err.Error())
		return
	}

	for _, entry := range entries {
		if _, err := svc.CreateFamilyWatcher(ctx, entry); err != nil {
			logger.Logger.Error("family watcher bootstrap entry rejected", "job_family", entry.JobFamily, "error", err.Error())
		}
	}
}
