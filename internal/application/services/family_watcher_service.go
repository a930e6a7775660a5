// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"time"

	"github.com/btouchard/jobwatch/internal/domain/models"
	"github.com/btouchard/jobwatch/pkg/logger"
)

// familyWatcherRepository is the storage contract FamilyWatcherService depends on.
type familyWatcherRepository interface {
	Create(ctx context.Context, fw models.JobFamilyWatcher) error
	FindByFamily(ctx context.Context, family string) ([]*models.JobFamilyWatcher, error)
}

// FamilyWatcherService manages persistent, repeatable family watchers.
type FamilyWatcherService struct {
	repo    familyWatcherRepository
	invoker invoker
}

func NewFamilyWatcherService(repo familyWatcherRepository, inv invoker) *FamilyWatcherService {
	return &FamilyWatcherService{repo: repo, invoker: inv}
}

// CreateFamilyWatcher validates and persists a new family watcher.
func (s *FamilyWatcherService) CreateFamilyWatcher(ctx context.Context, input models.JobFamilyWatcherInput) (*models.JobFamilyWatcher, error) {
	if _, err := models.ParseHTTPURL(input.URL); err != nil {
		return nil, err
	}
	fw := models.JobFamilyWatcher{
		ID:          models.NewID(),
		JobFamily:   input.JobFamily,
		URL:         input.URL,
		RequestBody: input.RequestBody,
		Description: input.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, fw); err != nil {
		return nil, err
	}
	logger.Logger.Info("created job-family watcher", "id", fw.ID, "job_family", fw.JobFamily)
	return &fw, nil
}

// Notify invokes every family watcher registered for family once. There is
// no per-call record: family watchers are fire-and-forget and intentionally
// repeatable on every successful completion of a matching job.
func (s *FamilyWatcherService) Notify(ctx context.Context, family, jobName string) {
	if family == "" {
		return
	}
	watchers, err := s.repo.FindByFamily(ctx, family)
	if err != nil {
		logger.Logger.Error("find family watchers failed", "family", family, "error", err.Error())
		return
	}
	for _, fw := range watchers {
		outcome := s.invoker.Invoke(ctx, fw.URL, fw.RequestBody, 0)
		logger.Logger.Info("family watcher fan-out", "family", family, "job_name", jobName, "url", fw.URL, "outcome", outcome.String())
	}
}
