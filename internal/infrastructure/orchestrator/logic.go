// SPDX-License-Identifier: AGPL-3.0-or-later
// Package orchestrator watches the container orchestrator for successfully
// completed workloads and dispatches them to the watcher and family-watcher
// services.
package orchestrator

import (
	"strings"

	batchv1 "k8s.io/api/batch/v1"
)

// DedupLabelKey is the orchestrator-object label that marks a workload as
// already handled, making fan-out at-least-once and restart-safe.
const DedupLabelKey = "app.k8s.job.webhooks/webhooks-called"

// isHandled reports whether the workload's dedup label is already set.
func isHandled(labels map[string]string) bool {
	return labels[DedupLabelKey] == "true"
}

// isSuccessful reports whether job's latest condition signals a clean
// completion: type == "Complete" and status == "True".
func isSuccessful(job *batchv1.Job) bool {
	conditions := job.Status.Conditions
	if len(conditions) == 0 {
		return false
	}
	latest := conditions[len(conditions)-1]
	return latest.Type == batchv1.JobComplete && latest.Status == "True"
}

// family returns the prefix of name up to (excluding) its last '-' segment.
// Names with no '-' have no family.
func family(name string) string {
	idx := strings.LastIndex(name, "-")
	if idx < 0 {
		return ""
	}
	return name[:idx]
}
