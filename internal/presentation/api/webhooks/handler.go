// SPDX-License-Identifier: AGPL-3.0-or-later
// Package webhooks exposes the Webhook catalog over HTTP.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/jobwatch/internal/domain/models"
	"github.com/btouchard/jobwatch/internal/presentation/api/shared"
	"github.com/btouchard/jobwatch/pkg/logger"
)

// service is the application-layer contract the handler depends on.
type service interface {
	CreateWebhook(ctx context.Context, input models.WebhookInput) (*models.Webhook, error)
	GetWebhook(ctx context.Context, id models.ID) (*models.Webhook, error)
	GetWebhooks(ctx context.Context) ([]*models.Webhook, error)
}

// Handler serves POST/GET /webhooks and GET /webhooks/{id}.
type Handler struct {
	service service
}

// NewHandler builds a Handler bound to svc.
func NewHandler(svc service) *Handler {
	return &Handler{service: svc}
}

type createRequest struct {
	URL         string `json:"url"`
	RequestBody string `json:"requestBody"`
	Description string `json:"description"`
}

// HandleCreate handles POST /webhooks.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteValidationError(w, "malformed JSON body", nil)
		return
	}

	wh, err := h.service.CreateWebhook(r.Context(), models.WebhookInput{
		URL:         req.URL,
		RequestBody: req.RequestBody,
		Description: req.Description,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, wh)
}

// HandleList handles GET /webhooks.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.GetWebhooks(r.Context())
	if err != nil {
		logger.Logger.Error("list webhooks failed", "error", err.Error())
		shared.WriteInternalError(w)
		return
	}
	shared.WriteJSON(w, http.StatusOK, all)
}

// HandleGet handles GET /webhooks/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteValidationError(w, "malformed id", nil)
		return
	}

	wh, err := h.service.GetWebhook(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, wh)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var jobNameErr *models.JobNameError
	var urlErr *models.HTTPURLError
	switch {
	case errors.Is(err, models.ErrWebhookNotFound):
		shared.WriteNotFound(w, "Webhook")
	case errors.As(err, &jobNameErr), errors.As(err, &urlErr), errors.Is(err, models.ErrInvalidID):
		shared.WriteValidationError(w, err.Error(), nil)
	default:
		logger.Logger.Error("webhook request failed", "error", err.Error())
		shared.WriteInternalError(w)
	}
}
