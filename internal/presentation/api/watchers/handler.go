// SPDX-License-Identifier: AGPL-3.0-or-later
// Package watchers exposes Job-Done Watcher creation and lookup over HTTP.
package watchers

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

// IdempotencyKeyHeader is the request header honored by HandleCreate.
const IdempotencyKeyHeader = "Idempotency-Key"

// service is the application-layer contract the handler depends on.
type service interface {
	CreateWatcher(ctx context.Context, req models.CreateWatcherRequest, clientKey string) (*models.JobDoneWatcher, bool, error)
	GetWatcher(ctx context.Context, id models.ID) (*models.JobDoneWatcher, error)
	GetWatchers(ctx context.Context) ([]*models.JobDoneWatcher, error)
}

// Handler serves POST/GET /job-done-watchers and GET /job-done-watchers/{id}.
type Handler struct {
	service service
}

// NewHandler builds a Handler bound to svc.
func NewHandler(svc service) *Handler {
	return &Handler{service: svc}
}

type triggerRequest struct {
	WebhookID      string `json:"webhookId"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type createRequest struct {
	JobName                string           `json:"jobName"`
	TimeoutSeconds         int              `json:"timeoutSeconds"`
	JobDoneTriggerWebhooks []triggerRequest `json:"jobDoneTriggerWebhooks"`
}

// HandleCreate handles POST /job-done-watchers.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteValidationError(w, "malformed JSON body", nil)
		return
	}

	triggers := make([]models.TriggerWebhookInput, len(req.JobDoneTriggerWebhooks))
	for i, t := range req.JobDoneTriggerWebhooks {
		webhookID, err := models.ParseID(t.WebhookID)
		if err != nil {
			shared.WriteValidationError(w, "malformed webhookId", nil)
			return
		}
		triggers[i] = models.TriggerWebhookInput{WebhookID: webhookID, TimeoutSeconds: t.TimeoutSeconds}
	}

	clientKey := r.Header.Get(IdempotencyKeyHeader)
	watcher, replayed, err := h.service.CreateWatcher(r.Context(), models.CreateWatcherRequest{
		JobName:        req.JobName,
		TimeoutSeconds: req.TimeoutSeconds,
		Triggers:       triggers,
	}, clientKey)
	if err != nil {
		var jobNameErr *models.JobNameError
		if errors.As(err, &jobNameErr) {
			shared.WriteValidationError(w, err.Error(), nil)
			return
		}
		logger.Logger.Error("create job-done watcher failed", "error", err.Error())
		shared.WriteInternalError(w)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	shared.WriteJSON(w, status, watcher)
}

// HandleList handles GET /job-done-watchers.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.GetWatchers(r.Context())
	if err != nil {
		logger.Logger.Error("list job-done watchers failed", "error", err.Error())
		shared.WriteInternalError(w)
		return
	}
	shared.WriteJSON(w, http.StatusOK, all)
}

// HandleGet handles GET /job-done-watchers/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteValidationError(w, "malformed id", nil)
		return
	}

	watcher, err := h.service.GetWatcher(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrWatcherNotFound) {
			shared.WriteNotFound(w, "JobDoneWatcher")
			return
		}
		logger.Logger.Error("get job-done watcher failed", "error", err.Error())
		shared.WriteInternalError(w)
		return
	}
	shared.WriteJSON(w, http.StatusOK, watcher)
}
