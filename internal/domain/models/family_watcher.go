// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import "time"

// JobFamilyWatcher is a persistent, repeatable webhook subscription bound
// to a job-name prefix ("family").
type JobFamilyWatcher struct {
	ID          ID        `json:"id"`
	JobFamily   string    `json:"jobFamily"`
	URL         string    `json:"url"`
	RequestBody string    `json:"requestBody,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// JobFamilyWatcherInput is the payload accepted by CreateFamilyWatcher,
// whether it arrives via the REST API or the YAML bootstrap file.
type JobFamilyWatcherInput struct {
	JobFamily   string `yaml:"jobFamily" json:"jobFamily"`
	URL         string `yaml:"url" json:"url"`
	RequestBody string `yaml:"requestBody" json:"requestBody"`
	Description string `yaml:"description" json:"description"`
}
