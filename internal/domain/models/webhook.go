// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import "time"

// Webhook is an immutable registered HTTP callback target.
type Webhook struct {
	ID          ID        `json:"id"`
	URL         string    `json:"url"`
	RequestBody string    `json:"requestBody,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// WebhookInput is the payload accepted by CreateWebhook.
type WebhookInput struct {
	URL         string
	RequestBody string
	Description string
}
