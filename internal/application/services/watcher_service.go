// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"sync"
	"time"

	"github.com/btouchard/jobwatch/internal/domain/models"
	"github.com/btouchard/jobwatch/internal/infrastructure/idempotency"
	"github.com/btouchard/jobwatch/internal/infrastructure/webhook"
	"github.com/btouchard/jobwatch/pkg/logger"
)

// notifyConcurrency bounds how many claimed watchers are fanned out at once.
const notifyConcurrency = 10

// watcherRepository is the storage contract WatcherService depends on.
type watcherRepository interface {
	Create(ctx context.Context, watcher models.JobDoneWatcher) error
	FindAll(ctx context.Context) ([]*models.JobDoneWatcher, error)
	FindByID(ctx context.Context, id models.ID) (*models.JobDoneWatcher, error)
	UpdateStatusIfStatus(ctx context.Context, id models.ID, expected, newStatus models.WatcherStatus) error
	UpdateStatusByJobNameAndStatus(ctx context.Context, jobName string, expected, newStatus models.WatcherStatus) ([]*models.JobDoneWatcher, error)
	UpdateTriggerStatusAndCalledAt(ctx context.Context, watcherID, triggerID models.ID, status models.TriggerStatus, calledAt *time.Time) error
	UpdateStatus(ctx context.Context, id models.ID, status models.WatcherStatus) error
}

// invoker is the C4 contract consumed by the fan-out stage.
type invoker interface {
	Invoke(ctx context.Context, url, body string, timeout time.Duration) webhook.Outcome
}

// webhookLookup resolves a trigger's referenced Webhook at call time.
type webhookLookup interface {
	GetWebhook(ctx context.Context, id models.ID) (*models.Webhook, error)
}

// WatcherService implements the single-shot Job-Done Watcher state machine:
// creation (with idempotent replay), deadline timers, and the concurrent
// fan-out triggered by a successful workload completion.
type WatcherService struct {
	repo     watcherRepository
	webhooks webhookLookup
	cache    *idempotency.Cache
	invoker  invoker

	// backgroundCtx is the parent context deadline timers run under; it
	// outlives any individual HTTP request that created a watcher.
	backgroundCtx context.Context
}

func NewWatcherService(backgroundCtx context.Context, repo watcherRepository, webhooks webhookLookup, cache *idempotency.Cache, inv invoker) *WatcherService {
	return &WatcherService{
		repo:          repo,
		webhooks:      webhooks,
		cache:         cache,
		invoker:       inv,
		backgroundCtx: backgroundCtx,
	}
}

// CreateWatcher validates and persists a new watcher, replaying an
// existing one when clientKey names a still-retrievable prior creation.
func (s *WatcherService) CreateWatcher(ctx context.Context, req models.CreateWatcherRequest, clientKey string) (watcher *models.JobDoneWatcher, replayed bool, err error) {
	if clientKey != "" {
		if id, ok := s.cache.Get(clientKey); ok {
			if existing, err := s.repo.FindByID(ctx, id); err == nil {
				return existing, true, nil
			}
			// Cached mapping points at a watcher that is no longer
			// retrievable; fall through and create a fresh one.
		}
	}

	if _, err := models.ParseJobName(req.JobName); err != nil {
		return nil, false, err
	}

	triggers := make([]models.JobDoneTriggerWebhook, len(req.Triggers))
	for i, t := range req.Triggers {
		triggers[i] = models.JobDoneTriggerWebhook{
			ID:             models.NewID(),
			WebhookID:      t.WebhookID,
			TimeoutSeconds: t.TimeoutSeconds,
			Status:         models.TriggerNotCalled,
		}
	}

	w := models.JobDoneWatcher{
		ID:             models.NewID(),
		JobName:        req.JobName,
		TimeoutSeconds: req.TimeoutSeconds,
		Status:         models.WatcherPending,
		CreatedAt:      time.Now().UTC(),
		Triggers:       triggers,
	}

	if err := s.repo.Create(ctx, w); err != nil {
		return nil, false, err
	}
	logger.Logger.Info("created job-done watcher", "id", w.ID, "job_name", w.JobName, "triggers", len(w.Triggers))

	if w.TimeoutSeconds > 0 {
		s.scheduleDeadline(w.ID, time.Duration(w.TimeoutSeconds)*time.Second)
	}

	if clientKey != "" {
		s.cache.Put(clientKey, w.ID)
	}

	return &w, false, nil
}

// scheduleDeadline spawns the task that, after d, tries to flip the watcher
// from Pending to Timeout. The CAS loses the race to any Notify that has
// already claimed the watcher into Processing.
func (s *WatcherService) scheduleDeadline(id models.ID, d time.Duration) {
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.backgroundCtx.Done():
			return
		}
		if err := s.repo.UpdateStatusIfStatus(s.backgroundCtx, id, models.WatcherPending, models.WatcherTimeout); err != nil {
			logger.Logger.Error("deadline timer CAS failed", "id", id, "error", err.Error())
		}
	}()
}

// GetWatchers returns every watcher.
func (s *WatcherService) GetWatchers(ctx context.Context) ([]*models.JobDoneWatcher, error) {
	return s.repo.FindAll(ctx)
}

// GetWatcher returns one watcher by id.
func (s *WatcherService) GetWatcher(ctx context.Context, id models.ID) (*models.JobDoneWatcher, error) {
	return s.repo.FindByID(ctx, id)
}

// Notify claims every Pending watcher bound to jobName and fans its
// triggers out, with a global in-flight bound of notifyConcurrency
// watchers at a time.
func (s *WatcherService) Notify(ctx context.Context, jobName string) {
	claimed, err := s.repo.UpdateStatusByJobNameAndStatus(ctx, jobName, models.WatcherPending, models.WatcherProcessing)
	if err != nil {
		logger.Logger.Error("claim watchers failed", "job_name", jobName, "error", err.Error())
		return
	}
	if len(claimed) == 0 {
		return
	}

	sem := make(chan struct{}, notifyConcurrency)
	var wg sync.WaitGroup
	for _, w := range claimed {
		wg.Add(1)
		sem <- struct{}{}
		go func(w *models.JobDoneWatcher) {
			defer wg.Done()
			defer func() { <-sem }()
			s.processWatcher(ctx, w)
		}(w)
	}
	wg.Wait()
}

// processWatcher invokes every trigger of w concurrently (unbounded inner
// fan-in), records each per-trigger outcome, then reduces and commits the
// watcher's aggregate status.
func (s *WatcherService) processWatcher(ctx context.Context, w *models.JobDoneWatcher) {
	var wg sync.WaitGroup
	results := make([]models.TriggerStatus, len(w.Triggers))
	for i, trig := range w.Triggers {
		wg.Add(1)
		go func(i int, trig models.JobDoneTriggerWebhook) {
			defer wg.Done()
			results[i] = s.invokeTrigger(ctx, w.ID, trig)
		}(i, trig)
	}
	wg.Wait()

	succeeded := 0
	for _, st := range results {
		if st == models.TriggerCalled {
			succeeded++
		}
	}
	aggregate := models.ReduceAggregateStatus(len(w.Triggers), succeeded)
	if err := s.repo.UpdateStatus(ctx, w.ID, aggregate); err != nil {
		logger.Logger.Error("commit aggregate status failed", "id", w.ID, "error", err.Error())
	}
}

// invokeTrigger resolves the trigger's webhook, performs the call, records
// the resulting (status, calledAt) and returns the new trigger status.
func (s *WatcherService) invokeTrigger(ctx context.Context, watcherID models.ID, trig models.JobDoneTriggerWebhook) models.TriggerStatus {
	wh, err := s.webhooks.GetWebhook(ctx, trig.WebhookID)
	if err != nil {
		now := time.Now().UTC()
		s.recordTrigger(ctx, watcherID, trig.ID, models.TriggerFailed, &now)
		return models.TriggerFailed
	}

	timeout := time.Duration(trig.TimeoutSeconds) * time.Second
	outcome := s.invoker.Invoke(ctx, wh.URL, wh.RequestBody, timeout)

	now := time.Now().UTC()
	status := models.TriggerFailed
	if outcome == webhook.Ok {
		status = models.TriggerCalled
	}
	s.recordTrigger(ctx, watcherID, trig.ID, status, &now)
	return status
}

func (s *WatcherService) recordTrigger(ctx context.Context, watcherID, triggerID models.ID, status models.TriggerStatus, calledAt *time.Time) {
	if err := s.repo.UpdateTriggerStatusAndCalledAt(ctx, watcherID, triggerID, status, calledAt); err != nil {
		logger.Logger.Error("update trigger status failed", "watcher_id", watcherID, "trigger_id", triggerID, "error", err.Error())
	}
}
