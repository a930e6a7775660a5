// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/btouchard/jobwatch/internal/domain/models"
)

// JobDoneWatcherRepository persists JobDoneWatcher rows and their
// JobDoneTriggerWebhook children, enforcing the atomic status transitions
// the watcher state machine depends on.
type JobDoneWatcherRepository struct {
	db *sql.DB
}

func NewJobDoneWatcherRepository(db *sql.DB) *JobDoneWatcherRepository {
	return &JobDoneWatcherRepository{db: db}
}

// Create inserts watcher and every one of its triggers as one atomic unit.
func (r *JobDoneWatcherRepository) Create(ctx context.Context, watcher models.JobDoneWatcher) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create watcher tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insWatcher = `INSERT INTO job_done_watchers (id, job_name, timeout_seconds, status, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insWatcher, watcher.ID.String(), watcher.JobName, watcher.TimeoutSeconds, string(watcher.Status), watcher.CreatedAt.UTC()); err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateID
		}
		return fmt.Errorf("insert watcher: %w", err)
	}

	const insTrigger = `INSERT INTO job_done_trigger_webhooks (id, webhook_id, job_done_watcher_id, timeout_seconds, status, called_at, position) VALUES (?, ?, ?, ?, ?, ?, ?)`
	for i, trig := range watcher.Triggers {
		var calledAt any
		if trig.CalledAt != nil {
			calledAt = trig.CalledAt.UTC()
		}
		if _, err := tx.ExecContext(ctx, insTrigger, trig.ID.String(), trig.WebhookID.String(), watcher.ID.String(), trig.TimeoutSeconds, string(trig.Status), calledAt, i); err != nil {
			return fmt.Errorf("insert trigger: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create watcher tx: %w", err)
	}
	return nil
}

// FindByID returns a watcher with its triggers, or models.ErrWatcherNotFound.
func (r *JobDoneWatcherRepository) FindByID(ctx context.Context, id models.ID) (*models.JobDoneWatcher, error) {
	w, err := r.findOneWatcher(ctx, r.db, `SELECT id, job_name, timeout_seconds, status, created_at FROM job_done_watchers WHERE id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	triggers, err := r.loadTriggers(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	w.Triggers = triggers
	return w, nil
}

// FindAll returns every watcher with its triggers, most recently created first.
func (r *JobDoneWatcherRepository) FindAll(ctx context.Context) ([]*models.JobDoneWatcher, error) {
	const q = `SELECT id, job_name, timeout_seconds, status, created_at FROM job_done_watchers ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list watchers: %w", err)
	}
	defer rows.Close()

	var out []*models.JobDoneWatcher
	for rows.Next() {
		w, err := scanWatcherRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watcher: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watchers: %w", err)
	}

	for _, w := range out {
		triggers, err := r.loadTriggers(ctx, r.db, w.ID)
		if err != nil {
			return nil, err
		}
		w.Triggers = triggers
	}
	if out == nil {
		out = []*models.JobDoneWatcher{}
	}
	return out, nil
}

// FindByJobNameAndStatus returns watchers matching both predicates, with triggers loaded.
func (r *JobDoneWatcherRepository) FindByJobNameAndStatus(ctx context.Context, jobName string, status models.WatcherStatus) ([]*models.JobDoneWatcher, error) {
	const q = `SELECT id, job_name, timeout_seconds, status, created_at FROM job_done_watchers WHERE job_name = ? AND status = ?`
	rows, err := r.db.QueryContext(ctx, q, jobName, string(status))
	if err != nil {
		return nil, fmt.Errorf("find watchers by job name and status: %w", err)
	}
	defer rows.Close()

	var out []*models.JobDoneWatcher
	for rows.Next() {
		w, err := scanWatcherRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watcher: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watchers: %w", err)
	}
	for _, w := range out {
		triggers, err := r.loadTriggers(ctx, r.db, w.ID)
		if err != nil {
			return nil, err
		}
		w.Triggers = triggers
	}
	if out == nil {
		out = []*models.JobDoneWatcher{}
	}
	return out, nil
}

// UpdateStatus sets status unconditionally.
func (r *JobDoneWatcherRepository) UpdateStatus(ctx context.Context, id models.ID, status models.WatcherStatus) error {
	const upd = `UPDATE job_done_watchers SET status = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, upd, string(status), id.String())
	if err != nil {
		return fmt.Errorf("update watcher status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrWatcherNotFound
	}
	return nil
}

// UpdateStatusIfStatus performs the CAS transition expected -> newStatus.
// It is a silent no-op (nil error) when the current status differs from
// expected, per the repository contract.
func (r *JobDoneWatcherRepository) UpdateStatusIfStatus(ctx context.Context, id models.ID, expected, newStatus models.WatcherStatus) error {
	const upd = `UPDATE job_done_watchers SET status = ? WHERE id = ? AND status = ?`
	_, err := r.db.ExecContext(ctx, upd, string(newStatus), id.String(), string(expected))
	if err != nil {
		return fmt.Errorf("cas watcher status: %w", err)
	}
	return nil
}

// UpdateStatusByJobNameAndStatus atomically flips every watcher matching
// (jobName, expected) to newStatus and returns their post-transition
// snapshots with triggers loaded. This is the Notify claim operation.
func (r *JobDoneWatcherRepository) UpdateStatusByJobNameAndStatus(ctx context.Context, jobName string, expected, newStatus models.WatcherStatus) ([]*models.JobDoneWatcher, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const sel = `SELECT id FROM job_done_watchers WHERE job_name = ? AND status = ?`
	rows, err := tx.QueryContext(ctx, sel, jobName, string(expected))
	if err != nil {
		return nil, fmt.Errorf("select claimable watchers: %w", err)
	}
	var ids []models.ID
	for rows.Next() {
		var rawID string
		if err := rows.Scan(&rawID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan claimable watcher id: %w", err)
		}
		id, err := models.ParseID(rawID)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("corrupt watcher id %q: %w", rawID, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate claimable watchers: %w", err)
	}
	rows.Close()

	const upd = `UPDATE job_done_watchers SET status = ? WHERE id = ? AND status = ?`
	var claimed []*models.JobDoneWatcher
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, upd, string(newStatus), id.String(), string(expected))
		if err != nil {
			return nil, fmt.Errorf("claim watcher %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			// Raced with another claimant (or a deadline timer) between
			// select and update; exclude it, exactly as the predicate demands.
			continue
		}
		w, err := r.findOneWatcher(ctx, tx, `SELECT id, job_name, timeout_seconds, status, created_at FROM job_done_watchers WHERE id = ?`, id.String())
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, w)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}

	for _, w := range claimed {
		triggers, err := r.loadTriggers(ctx, r.db, w.ID)
		if err != nil {
			return nil, err
		}
		w.Triggers = triggers
	}
	if claimed == nil {
		claimed = []*models.JobDoneWatcher{}
	}
	return claimed, nil
}

// UpdateTriggerStatusAndCalledAt updates one trigger row belonging to watcherId.
func (r *JobDoneWatcherRepository) UpdateTriggerStatusAndCalledAt(ctx context.Context, watcherID, triggerID models.ID, status models.TriggerStatus, calledAt *time.Time) error {
	var calledAtVal any
	if calledAt != nil {
		calledAtVal = calledAt.UTC()
	}
	const upd = `UPDATE job_done_trigger_webhooks SET status = ?, called_at = ? WHERE id = ? AND job_done_watcher_id = ?`
	res, err := r.db.ExecContext(ctx, upd, string(status), calledAtVal, triggerID.String(), watcherID.String())
	if err != nil {
		return fmt.Errorf("update trigger: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrWatcherNotFound
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *JobDoneWatcherRepository) findOneWatcher(ctx context.Context, q queryer, query string, args ...any) (*models.JobDoneWatcher, error) {
	w, err := scanWatcherRow(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrWatcherNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find watcher: %w", err)
	}
	return w, nil
}

func (r *JobDoneWatcherRepository) loadTriggers(ctx context.Context, q queryer, watcherID models.ID) ([]models.JobDoneTriggerWebhook, error) {
	const q2 = `SELECT id, webhook_id, timeout_seconds, status, called_at FROM job_done_trigger_webhooks WHERE job_done_watcher_id = ? ORDER BY position ASC`
	rows, err := q.QueryContext(ctx, q2, watcherID.String())
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	triggers := []models.JobDoneTriggerWebhook{}
	for rows.Next() {
		var (
			rawID, rawWebhookID string
			timeoutSeconds      int
			status               string
			calledAt             sql.NullTime
		)
		if err := rows.Scan(&rawID, &rawWebhookID, &timeoutSeconds, &status, &calledAt); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		id, err := models.ParseID(rawID)
		if err != nil {
			return nil, fmt.Errorf("corrupt trigger id %q: %w", rawID, err)
		}
		webhookID, err := models.ParseID(rawWebhookID)
		if err != nil {
			return nil, fmt.Errorf("corrupt trigger webhook id %q: %w", rawWebhookID, err)
		}
		trig := models.JobDoneTriggerWebhook{
			ID:             id,
			WebhookID:      webhookID,
			TimeoutSeconds: timeoutSeconds,
			Status:         models.TriggerStatus(status),
		}
		if calledAt.Valid {
			t := calledAt.Time.UTC()
			trig.CalledAt = &t
		}
		triggers = append(triggers, trig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triggers: %w", err)
	}
	return triggers, nil
}

func scanWatcherRow(row rowScanner) (*models.JobDoneWatcher, error) {
	var (
		rawID          string
		jobName        string
		timeoutSeconds int
		status         string
		createdAt      time.Time
	)
	if err := row.Scan(&rawID, &jobName, &timeoutSeconds, &status, &createdAt); err != nil {
		return nil, err
	}
	id, err := models.ParseID(rawID)
	if err != nil {
		return nil, fmt.Errorf("corrupt watcher id %q: %w", rawID, err)
	}
	return &models.JobDoneWatcher{
		ID:             id,
		JobName:        jobName,
		TimeoutSeconds: timeoutSeconds,
		Status:         models.WatcherStatus(status),
		CreatedAt:      createdAt.UTC(),
	}, nil
}
