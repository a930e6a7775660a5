// SPDX-License-Identifier: AGPL-3.0-or-later
package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/jobwatch/internal/domain/models"
	"github.com/btouchard/jobwatch/internal/infrastructure/idempotency"
	"github.com/btouchard/jobwatch/internal/infrastructure/webhook"
)

type fakeWatcherRepo struct {
	mu       sync.Mutex
	watchers map[string]*models.JobDoneWatcher
}

func newFakeWatcherRepo() *fakeWatcherRepo {
	return &fakeWatcherRepo{watchers: map[string]*models.JobDoneWatcher{}}
}

func (r *fakeWatcherRepo) Create(ctx context.Context, w models.JobDoneWatcher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := w
	r.watchers[w.ID.String()] = &cp
	return nil
}

func (r *fakeWatcherRepo) FindAll(ctx context.Context) ([]*models.JobDoneWatcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.JobDoneWatcher, 0, len(r.watchers))
	for _, w := range r.watchers {
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeWatcherRepo) FindByID(ctx context.Context, id models.ID) (*models.JobDoneWatcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watchers[id.String()]
	if !ok {
		return nil, models.ErrWatcherNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *fakeWatcherRepo) UpdateStatusIfStatus(ctx context.Context, id models.ID, expected, newStatus models.WatcherStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watchers[id.String()]
	if !ok || w.Status != expected {
		return nil
	}
	w.Status = newStatus
	return nil
}

func (r *fakeWatcherRepo) UpdateStatusByJobNameAndStatus(ctx context.Context, jobName string, expected, newStatus models.WatcherStatus) ([]*models.JobDoneWatcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var claimed []*models.JobDoneWatcher
	for _, w := range r.watchers {
		if w.JobName == jobName && w.Status == expected {
			w.Status = newStatus
			cp := *w
			claimed = append(claimed, &cp)
		}
	}
	return claimed, nil
}

func (r *fakeWatcherRepo) UpdateTriggerStatusAndCalledAt(ctx context.Context, watcherID, triggerID models.ID, status models.TriggerStatus, calledAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watchers[watcherID.String()]
	if !ok {
		return models.ErrWatcherNotFound
	}
	for i := range w.Triggers {
		if w.Triggers[i].ID == triggerID {
			w.Triggers[i].Status = status
			w.Triggers[i].CalledAt = calledAt
		}
	}
	return nil
}

func (r *fakeWatcherRepo) UpdateStatus(ctx context.Context, id models.ID, status models.WatcherStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watchers[id.String()]
	if !ok {
		return models.ErrWatcherNotFound
	}
	w.Status = status
	return nil
}

type fakeWebhookLookup struct {
	webhooks map[string]*models.Webhook
}

func newFakeWebhookLookup() *fakeWebhookLookup {
	return &fakeWebhookLookup{webhooks: map[string]*models.Webhook{}}
}

func (f *fakeWebhookLookup) add(wh models.Webhook) {
	f.webhooks[wh.ID.String()] = &wh
}

func (f *fakeWebhookLookup) GetWebhook(ctx context.Context, id models.ID) (*models.Webhook, error) {
	wh, ok := f.webhooks[id.String()]
	if !ok {
		return nil, models.ErrWebhookNotFound
	}
	return wh, nil
}

type fakeInvoker struct {
	mu      sync.Mutex
	outcome webhook.Outcome
	perURL  map[string]webhook.Outcome
	calls   int
}

func (f *fakeInvoker) Invoke(ctx context.Context, url, body string, timeout time.Duration) webhook.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.perURL != nil {
		if o, ok := f.perURL[url]; ok {
			return o
		}
	}
	return f.outcome
}

func newTestService(repo watcherRepository, lookup webhookLookup, inv invoker) *WatcherService {
	return NewWatcherService(context.Background(), repo, lookup, idempotency.New(idempotency.DefaultSize), inv)
}

func TestCreateWatcherPersistsWithTriggers(t *testing.T) {
	repo := newFakeWatcherRepo()
	lookup := newFakeWebhookLookup()
	svc := newTestService(repo, lookup, &fakeInvoker{outcome: webhook.Ok})

	whID := models.NewID()
	req := models.CreateWatcherRequest{
		JobName:  "payroll-nightly",
		Triggers: []models.TriggerWebhookInput{{WebhookID: whID}},
	}

	w, replayed, err := svc.CreateWatcher(context.Background(), req, "")
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, models.WatcherPending, w.Status)
	require.Len(t, w.Triggers, 1)
	assert.Equal(t, models.TriggerNotCalled, w.Triggers[0].Status)
}

func TestCreateWatcherRejectsInvalidJobName(t *testing.T) {
	repo := newFakeWatcherRepo()
	svc := newTestService(repo, newFakeWebhookLookup(), &fakeInvoker{outcome: webhook.Ok})

	_, _, err := svc.CreateWatcher(context.Background(), models.CreateWatcherRequest{JobName: "bad name"}, "")
	require.Error(t, err)
}

func TestCreateWatcherIdempotentReplay(t *testing.T) {
	repo := newFakeWatcherRepo()
	svc := newTestService(repo, newFakeWebhookLookup(), &fakeInvoker{outcome: webhook.Ok})

	req := models.CreateWatcherRequest{JobName: "payroll-nightly"}
	first, replayed1, err := svc.CreateWatcher(context.Background(), req, "key-1")
	require.NoError(t, err)
	assert.False(t, replayed1)

	second, replayed2, err := svc.CreateWatcher(context.Background(), req, "key-1")
	require.NoError(t, err)
	assert.True(t, replayed2)
	assert.Equal(t, first.ID, second.ID)

	all, _ := repo.FindAll(context.Background())
	assert.Len(t, all, 1)
}

func TestNotifyHappyPathCompletesWatcher(t *testing.T) {
	repo := newFakeWatcherRepo()
	lookup := newFakeWebhookLookup()
	sinkURL := models.NewID()
	wh := models.Webhook{ID: sinkURL, URL: "http://sink/a"}
	lookup.add(wh)

	svc := newTestService(repo, lookup, &fakeInvoker{outcome: webhook.Ok})

	req := models.CreateWatcherRequest{
		JobName:  "payroll-nightly",
		Triggers: []models.TriggerWebhookInput{{WebhookID: wh.ID}},
	}
	w, _, err := svc.CreateWatcher(context.Background(), req, "")
	require.NoError(t, err)

	svc.Notify(context.Background(), "payroll-nightly")

	got, err := repo.FindByID(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WatcherCompleted, got.Status)
	require.Len(t, got.Triggers, 1)
	assert.Equal(t, models.TriggerCalled, got.Triggers[0].Status)
	require.NotNil(t, got.Triggers[0].CalledAt)
}

func TestNotifyMixedFanOutIsPartiallyCompleted(t *testing.T) {
	repo := newFakeWatcherRepo()
	lookup := newFakeWebhookLookup()
	okHook := models.Webhook{ID: models.NewID(), URL: "http://sink/ok"}
	failHook := models.Webhook{ID: models.NewID(), URL: "http://127.0.0.1:1"}
	lookup.add(okHook)
	lookup.add(failHook)

	inv := &fakeInvoker{perURL: map[string]webhook.Outcome{
		okHook.URL:   webhook.Ok,
		failHook.URL: webhook.TransportError,
	}}
	svc := newTestService(repo, lookup, inv)

	req := models.CreateWatcherRequest{
		JobName: "mixed-job",
		Triggers: []models.TriggerWebhookInput{
			{WebhookID: okHook.ID},
			{WebhookID: failHook.ID},
		},
	}
	w, _, err := svc.CreateWatcher(context.Background(), req, "")
	require.NoError(t, err)

	svc.Notify(context.Background(), "mixed-job")

	got, err := repo.FindByID(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WatcherPartiallyCompleted, got.Status)

	statuses := map[models.TriggerStatus]int{}
	for _, trig := range got.Triggers {
		statuses[trig.Status]++
		assert.NotNil(t, trig.CalledAt)
	}
	assert.Equal(t, 1, statuses[models.TriggerCalled])
	assert.Equal(t, 1, statuses[models.TriggerFailed])
}

func TestNotifyAllFailedIsFailed(t *testing.T) {
	repo := newFakeWatcherRepo()
	lookup := newFakeWebhookLookup()
	wh := models.Webhook{ID: models.NewID(), URL: "http://127.0.0.1:1"}
	lookup.add(wh)
	svc := newTestService(repo, lookup, &fakeInvoker{outcome: webhook.TransportError})

	req := models.CreateWatcherRequest{JobName: "always-fails", Triggers: []models.TriggerWebhookInput{{WebhookID: wh.ID}}}
	w, _, err := svc.CreateWatcher(context.Background(), req, "")
	require.NoError(t, err)

	svc.Notify(context.Background(), "always-fails")

	got, err := repo.FindByID(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WatcherFailed, got.Status)
}

func TestNotifyZeroTriggersCompletesImmediately(t *testing.T) {
	repo := newFakeWatcherRepo()
	svc := newTestService(repo, newFakeWebhookLookup(), &fakeInvoker{outcome: webhook.Ok})

	req := models.CreateWatcherRequest{JobName: "no-triggers"}
	w, _, err := svc.CreateWatcher(context.Background(), req, "")
	require.NoError(t, err)

	svc.Notify(context.Background(), "no-triggers")

	got, err := repo.FindByID(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WatcherCompleted, got.Status)
}

func TestNotifyMissingWebhookReferentFailsTrigger(t *testing.T) {
	repo := newFakeWatcherRepo()
	svc := newTestService(repo, newFakeWebhookLookup(), &fakeInvoker{outcome: webhook.Ok})

	req := models.CreateWatcherRequest{JobName: "dangling-ref", Triggers: []models.TriggerWebhookInput{{WebhookID: models.NewID()}}}
	w, _, err := svc.CreateWatcher(context.Background(), req, "")
	require.NoError(t, err)

	svc.Notify(context.Background(), "dangling-ref")

	got, err := repo.FindByID(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WatcherFailed, got.Status)
	assert.Equal(t, models.TriggerFailed, got.Triggers[0].Status)
}

func TestNotifyOnlyClaimsPendingWatchersForTheJobName(t *testing.T) {
	repo := newFakeWatcherRepo()
	svc := newTestService(repo, newFakeWebhookLookup(), &fakeInvoker{outcome: webhook.Ok})

	w1, _, err := svc.CreateWatcher(context.Background(), models.CreateWatcherRequest{JobName: "job-a"}, "")
	require.NoError(t, err)
	w2, _, err := svc.CreateWatcher(context.Background(), models.CreateWatcherRequest{JobName: "job-b"}, "")
	require.NoError(t, err)

	svc.Notify(context.Background(), "job-a")

	got1, _ := repo.FindByID(context.Background(), w1.ID)
	got2, _ := repo.FindByID(context.Background(), w2.ID)
	assert.Equal(t, models.WatcherCompleted, got1.Status)
	assert.Equal(t, models.WatcherPending, got2.Status)
}

func TestDeadlineTimerTimesOutPendingWatcher(t *testing.T) {
	repo := newFakeWatcherRepo()
	svc := newTestService(repo, newFakeWebhookLookup(), &fakeInvoker{outcome: webhook.Ok})

	req := models.CreateWatcherRequest{JobName: "slow-job", TimeoutSeconds: 1}
	w, _, err := svc.CreateWatcher(context.Background(), req, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := repo.FindByID(context.Background(), w.ID)
		return err == nil && got.Status == models.WatcherTimeout
	}, 3*time.Second, 50*time.Millisecond)

	// A late Notify must not resurrect the timed-out watcher.
	svc.Notify(context.Background(), "slow-job")
	got, err := repo.FindByID(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WatcherTimeout, got.Status)
}
