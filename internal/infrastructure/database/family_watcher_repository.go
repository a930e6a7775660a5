// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/btouchard/jobwatch/internal/domain/models"
)

// JobFamilyWatcherRepository persists persistent, repeatable family watchers.
type JobFamilyWatcherRepository struct {
	db *sql.DB
}

func NewJobFamilyWatcherRepository(db *sql.DB) *JobFamilyWatcherRepository {
	return &JobFamilyWatcherRepository{db: db}
}

// Create inserts familyWatcher.
func (r *JobFamilyWatcherRepository) Create(ctx context.Context, fw models.JobFamilyWatcher) error {
	const ins = `INSERT INTO job_family_watchers (id, job_family, url, request_body, description, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, ins, fw.ID.String(), fw.JobFamily, fw.URL, fw.RequestBody, fw.Description, fw.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateID
		}
		return fmt.Errorf("create family watcher: %w", err)
	}
	return nil
}

// FindByFamily returns every family watcher registered for family.
func (r *JobFamilyWatcherRepository) FindByFamily(ctx context.Context, family string) ([]*models.JobFamilyWatcher, error) {
	const q = `SELECT id, job_family, url, request_body, description, created_at FROM job_family_watchers WHERE job_family = ?`
	rows, err := r.db.QueryContext(ctx, q, family)
	if err != nil {
		return nil, fmt.Errorf("find family watchers: %w", err)
	}
	defer rows.Close()

	out := []*models.JobFamilyWatcher{}
	for rows.Next() {
		var (
			rawID       string
			jobFamily   string
			url         string
			requestBody string
			description string
			createdAt   time.Time
		)
		if err := rows.Scan(&rawID, &jobFamily, &url, &requestBody, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("scan family watcher: %w", err)
		}
		id, err := models.ParseID(rawID)
		if err != nil {
			return nil, fmt.Errorf("corrupt family watcher id %q: %w", rawID, err)
		}
		out = append(out, &models.JobFamilyWatcher{
			ID:          id,
			JobFamily:   jobFamily,
			URL:         url,
			RequestBody: requestBody,
			Description: description,
			CreatedAt:   createdAt.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate family watchers: %w", err)
	}
	return out, nil
}
