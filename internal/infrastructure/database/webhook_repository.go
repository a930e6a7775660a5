// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btouchard/jobwatch/internal/domain/models"
)

// WebhookRepository persists Webhook rows in SQLite.
type WebhookRepository struct {
	db *sql.DB
}

func NewWebhookRepository(db *sql.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

// Create inserts webhook, rejecting on a duplicate id.
func (r *WebhookRepository) Create(ctx context.Context, webhook models.Webhook) error {
	const ins = `INSERT INTO webhooks (id, url, request_body, description, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, ins, webhook.ID.String(), webhook.URL, webhook.RequestBody, webhook.Description, webhook.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateID
		}
		return fmt.Errorf("create webhook: %w", err)
	}
	return nil
}

// FindByID returns a webhook by id, or models.ErrWebhookNotFound.
func (r *WebhookRepository) FindByID(ctx context.Context, id models.ID) (*models.Webhook, error) {
	const q = `SELECT id, url, request_body, description, created_at FROM webhooks WHERE id = ?`
	wh, err := scanWebhook(r.db.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrWebhookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find webhook: %w", err)
	}
	return wh, nil
}

// FindAll returns every registered webhook, most recently created first.
func (r *WebhookRepository) FindAll(ctx context.Context) ([]*models.Webhook, error) {
	const q = `SELECT id, url, request_body, description, created_at FROM webhooks ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	out := []*models.Webhook{}
	for rows.Next() {
		wh, err := scanWebhookRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		out = append(out, wh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhooks: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	return scanWebhookRow(row)
}

func scanWebhookRow(row rowScanner) (*models.Webhook, error) {
	var (
		rawID       string
		url         string
		requestBody string
		description string
		createdAt   time.Time
	)
	if err := row.Scan(&rawID, &url, &requestBody, &description, &createdAt); err != nil {
		return nil, err
	}
	id, err := models.ParseID(rawID)
	if err != nil {
		return nil, fmt.Errorf("corrupt webhook id %q: %w", rawID, err)
	}
	return &models.Webhook{
		ID:          id,
		URL:         url,
		RequestBody: requestBody,
		Description: description,
		CreatedAt:   createdAt.UTC(),
	}, nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces SQLITE_CONSTRAINT_PRIMARYKEY as a plain
	// error whose text names the constraint; there is no typed sentinel.
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "constraint failed: PRIMARY KEY"))
}
