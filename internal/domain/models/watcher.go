// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import "time"

// WatcherStatus is the terminal/non-terminal state of a JobDoneWatcher.
type WatcherStatus string

const (
	WatcherPending             WatcherStatus = "PENDING"
	WatcherProcessing          WatcherStatus = "PROCESSING"
	WatcherCompleted           WatcherStatus = "COMPLETED"
	WatcherPartiallyCompleted  WatcherStatus = "PARTIALLY_COMPLETED"
	WatcherFailed              WatcherStatus = "FAILED"
	WatcherTimeout             WatcherStatus = "TIMEOUT"
	WatcherCancelled           WatcherStatus = "CANCELLED"
)

// IsTerminal reports whether status has no further outgoing transitions.
func (s WatcherStatus) IsTerminal() bool {
	switch s {
	case WatcherCompleted, WatcherPartiallyCompleted, WatcherFailed, WatcherTimeout, WatcherCancelled:
		return true
	default:
		return false
	}
}

// TriggerStatus is the state of one JobDoneTriggerWebhook.
type TriggerStatus string

const (
	TriggerNotCalled TriggerStatus = "NOT_CALLED"
	TriggerCalled    TriggerStatus = "CALLED"
	TriggerFailed    TriggerStatus = "FAILED"
	TriggerTimeout   TriggerStatus = "TIMEOUT"
	TriggerCancelled TriggerStatus = "CANCELLED"
)

// JobDoneTriggerWebhook is one entry of a watcher's webhook list.
type JobDoneTriggerWebhook struct {
	ID             ID            `json:"id"`
	WebhookID      ID            `json:"webhookId"`
	TimeoutSeconds int           `json:"timeoutSeconds,omitempty"`
	Status         TriggerStatus `json:"status"`
	CalledAt       *time.Time    `json:"calledAt,omitempty"`
}

// JobDoneWatcher is a single-shot watch bound to one workload name.
type JobDoneWatcher struct {
	ID             ID                      `json:"id"`
	JobName        string                  `json:"jobName"`
	TimeoutSeconds int                     `json:"timeoutSeconds,omitempty"`
	Status         WatcherStatus           `json:"status"`
	CreatedAt      time.Time               `json:"createdAt"`
	Triggers       []JobDoneTriggerWebhook `json:"jobDoneTriggerWebhooks"`
}

// TriggerWebhookInput is one requested trigger in a CreateWatcher call.
type TriggerWebhookInput struct {
	WebhookID      ID
	TimeoutSeconds int
}

// CreateWatcherRequest is the validated input to WatcherService.CreateWatcher.
type CreateWatcherRequest struct {
	JobName        string
	TimeoutSeconds int
	Triggers       []TriggerWebhookInput
}

// ReduceAggregateStatus implements spec.md §4.5's reduction table: for t
// triggers where s completed successfully and f = t - s failed.
func ReduceAggregateStatus(total, succeeded int) WatcherStatus {
	failed := total - succeeded
	switch {
	case failed == 0:
		return WatcherCompleted
	case succeeded == 0:
		return WatcherFailed
	default:
		return WatcherPartiallyCompleted
	}
}
