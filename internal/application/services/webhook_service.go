// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"time"

	"github.com/btouchard/jobwatch/internal/domain/models"
	"github.com/btouchard/jobwatch/pkg/logger"
)

// webhookRepository is the storage contract WebhookService depends on.
type webhookRepository interface {
	Create(ctx context.Context, webhook models.Webhook) error
	FindByID(ctx context.Context, id models.ID) (*models.Webhook, error)
	FindAll(ctx context.Context) ([]*models.Webhook, error)
}

// WebhookService manages the immutable Webhook catalog.
type WebhookService struct {
	repo webhookRepository
}

func NewWebhookService(repo webhookRepository) *WebhookService {
	return &WebhookService{repo: repo}
}

// CreateWebhook validates input and persists a new Webhook.
func (s *WebhookService) CreateWebhook(ctx context.Context, input models.WebhookInput) (*models.Webhook, error) {
	if _, err := models.ParseHTTPURL(input.URL); err != nil {
		return nil, err
	}

	wh := models.Webhook{
		ID:          models.NewID(),
		URL:         input.URL,
		RequestBody: input.RequestBody,
		Description: input.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, wh); err != nil {
		return nil, err
	}
	logger.Logger.Info("created webhook", "id", wh.ID, "url", wh.URL)
	return &wh, nil
}

// GetWebhook returns a webhook by id.
func (s *WebhookService) GetWebhook(ctx context.Context, id models.ID) (*models.Webhook, error) {
	return s.repo.FindByID(ctx, id)
}

// GetWebhooks returns every registered webhook.
func (s *WebhookService) GetWebhooks(ctx context.Context) ([]*models.Webhook, error) {
	return s.repo.FindAll(ctx)
}
