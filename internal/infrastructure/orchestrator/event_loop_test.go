// SPDX-License-Identifier: AGPL-3.0-or-later
package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

type recordingWatcherNotifier struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingWatcherNotifier) Notify(ctx context.Context, jobName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, jobName)
}

type recordingFamilyNotifier struct {
	mu       sync.Mutex
	families []string
	jobNames []string
}

func (r *recordingFamilyNotifier) Notify(ctx context.Context, family, jobName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families = append(r.families, family)
	r.jobNames = append(r.jobNames, jobName)
}

func successfulJob(name string, labels map[string]string) *batchv1.Job {
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default", Labels: labels},
		Status: batchv1.JobStatus{
			Conditions: []batchv1.JobCondition{{Type: batchv1.JobComplete, Status: corev1.ConditionTrue}},
		},
	}
}

func TestHandleFansOutAndLabelsOnSuccess(t *testing.T) {
	job := successfulJob("payroll-nightly", nil)
	client := fake.NewSimpleClientset(job)
	watchers := &recordingWatcherNotifier{}
	families := &recordingFamilyNotifier{}
	loop := &EventLoop{client: client, namespace: "default", watchers: watchers, families: families}

	loop.handle(context.Background(), job)

	assert.Equal(t, []string{"payroll-nightly"}, watchers.names)
	assert.Equal(t, []string{"payroll"}, families.families)

	got, err := client.BatchV1().Jobs("default").Get(context.Background(), "payroll-nightly", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "true", got.Labels[DedupLabelKey])
}

func TestHandleSkipsAlreadyDedupedJob(t *testing.T) {
	job := successfulJob("payroll-nightly", map[string]string{DedupLabelKey: "true"})
	client := fake.NewSimpleClientset(job)
	watchers := &recordingWatcherNotifier{}
	families := &recordingFamilyNotifier{}
	loop := &EventLoop{client: client, namespace: "default", watchers: watchers, families: families}

	loop.handle(context.Background(), job)

	assert.Empty(t, watchers.names)
	assert.Empty(t, families.families)
}

func TestHandleSkipsUnsuccessfulJob(t *testing.T) {
	job := &batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: "still-running", Namespace: "default"}}
	client := fake.NewSimpleClientset(job)
	watchers := &recordingWatcherNotifier{}
	families := &recordingFamilyNotifier{}
	loop := &EventLoop{client: client, namespace: "default", watchers: watchers, families: families}

	loop.handle(context.Background(), job)

	assert.Empty(t, watchers.names)
}

func TestHandleSkipsFamilyNotifyWhenNameHasNoDash(t *testing.T) {
	job := successfulJob("standalonejob", nil)
	client := fake.NewSimpleClientset(job)
	watchers := &recordingWatcherNotifier{}
	families := &recordingFamilyNotifier{}
	loop := &EventLoop{client: client, namespace: "default", watchers: watchers, families: families}

	loop.handle(context.Background(), job)

	assert.Equal(t, []string{"standalonejob"}, watchers.names)
	assert.Empty(t, families.families)
}
