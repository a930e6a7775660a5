// SPDX-License-Identifier: AGPL-3.0-or-later
package api

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/btouchard/jobwatch/internal/domain/models"
	"github.com/btouchard/jobwatch/internal/presentation/api/health"
	"github.com/btouchard/jobwatch/internal/presentation/api/shared"
	"github.com/btouchard/jobwatch/internal/presentation/api/watchers"
	"github.com/btouchard/jobwatch/internal/presentation/api/webhooks"
)

// webhookService defines the webhook catalog operations the router needs.
type webhookService interface {
	CreateWebhook(ctx context.Context, input models.WebhookInput) (*models.Webhook, error)
	GetWebhook(ctx context.Context, id models.ID) (*models.Webhook, error)
	GetWebhooks(ctx context.Context) ([]*models.Webhook, error)
}

// watcherService defines the job-done watcher operations the router needs.
type watcherService interface {
	CreateWatcher(ctx context.Context, req models.CreateWatcherRequest, clientKey string) (*models.JobDoneWatcher, bool, error)
	GetWatcher(ctx context.Context, id models.ID) (*models.JobDoneWatcher, error)
	GetWatchers(ctx context.Context) ([]*models.JobDoneWatcher, error)
}

// RouterConfig holds the dependencies the API router wires into handlers.
type RouterConfig struct {
	WebhookService   webhookService
	WatcherService   watcherService
	GeneralRateLimit int // requests per minute per IP, default: 100
}

// NewRouter creates and configures the REST API router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	generalLimit := cfg.GeneralRateLimit
	if generalLimit == 0 {
		generalLimit = 100
	}
	generalRateLimit := shared.NewRateLimit(generalLimit, time.Minute)

	r.Use(middleware.RequestID)
	r.Use(shared.AddRequestIDToContext)
	r.Use(middleware.RealIP)
	r.Use(shared.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(shared.SecurityHeaders)
	r.Use(generalRateLimit.Middleware)

	healthHandler := health.NewHandler()
	webhooksHandler := webhooks.NewHandler(cfg.WebhookService)
	watchersHandler := watchers.NewHandler(cfg.WatcherService)

	r.Get("/health", healthHandler.HandleHealth)

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/", webhooksHandler.HandleCreate)
		r.Get("/", webhooksHandler.HandleList)
		r.Get("/{id}", webhooksHandler.HandleGet)
	})

	r.Route("/job-done-watchers", func(r chi.Router) {
		r.Post("/", watchersHandler.HandleCreate)
		r.Get("/", watchersHandler.HandleList)
		r.Get("/{id}", watchersHandler.HandleGet)
	})

	return r
}
