// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import "errors"

var (
	// ErrWebhookNotFound is returned when a webhook id does not resolve to a row.
	ErrWebhookNotFound = errors.New("webhook not found")
	// ErrWatcherNotFound is returned when a job-done watcher id does not resolve to a row.
	ErrWatcherNotFound = errors.New("job-done watcher not found")
	// ErrDuplicateID is returned by WebhookRepository.Create on a primary key collision.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrInvalidID is returned when a caller-supplied identifier string is not a valid id.
	ErrInvalidID = errors.New("invalid id")
	// ErrDatabaseConnection names a low-level storage failure. The SQLite
	// repositories do not return it; they wrap driver errors with fmt.Errorf.
	ErrDatabaseConnection = errors.New("database connection error")
)
