// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/jobwatch/internal/domain/models"
)

type fakeWebhookRepo struct {
	mu   sync.Mutex
	byID map[models.ID]models.Webhook
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{byID: map[models.ID]models.Webhook{}}
}

func (r *fakeWebhookRepo) Create(ctx context.Context, webhook models.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[webhook.ID] = webhook
	return nil
}

func (r *fakeWebhookRepo) FindByID(ctx context.Context, id models.ID) (*models.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wh, ok := r.byID[id]
	if !ok {
		return nil, models.ErrWebhookNotFound
	}
	return &wh, nil
}

func (r *fakeWebhookRepo) FindAll(ctx context.Context) ([]*models.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Webhook, 0, len(r.byID))
	for _, wh := range r.byID {
		cp := wh
		out = append(out, &cp)
	}
	return out, nil
}

func TestCreateWebhookPersistsAndAssignsID(t *testing.T) {
	repo := newFakeWebhookRepo()
	svc := NewWebhookService(repo)

	wh, err := svc.CreateWebhook(context.Background(), models.WebhookInput{URL: "http://sink/a", Description: "payroll sink"})
	require.NoError(t, err)
	assert.False(t, wh.ID.IsZero())
	assert.Equal(t, "http://sink/a", wh.URL)
	assert.False(t, wh.CreatedAt.IsZero())
}

func TestCreateWebhookRejectsInvalidURL(t *testing.T) {
	repo := newFakeWebhookRepo()
	svc := NewWebhookService(repo)

	_, err := svc.CreateWebhook(context.Background(), models.WebhookInput{URL: "ftp://sink/a"})
	require.Error(t, err)
}

func TestGetWebhookReturnsCreatedWebhook(t *testing.T) {
	repo := newFakeWebhookRepo()
	svc := NewWebhookService(repo)

	created, err := svc.CreateWebhook(context.Background(), models.WebhookInput{URL: "http://sink/a"})
	require.NoError(t, err)

	got, err := svc.GetWebhook(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.URL, got.URL)
}

func TestGetWebhookNotFound(t *testing.T) {
	repo := newFakeWebhookRepo()
	svc := NewWebhookService(repo)

	_, err := svc.GetWebhook(context.Background(), models.NewID())
	require.ErrorIs(t, err, models.ErrWebhookNotFound)
}

func TestGetWebhooksReturnsAllCreated(t *testing.T) {
	repo := newFakeWebhookRepo()
	svc := NewWebhookService(repo)

	_, err := svc.CreateWebhook(context.Background(), models.WebhookInput{URL: "http://sink/a"})
	require.NoError(t, err)
	_, err = svc.CreateWebhook(context.Background(), models.WebhookInput{URL: "http://sink/b"})
	require.NoError(t, err)

	all, err := svc.GetWebhooks(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
