// SPDX-License-Identifier: AGPL-3.0-or-later
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/btouchard/jobwatch/pkg/logger"
)

// defaultResync mirrors the orchestrator client's default reconnect/resync
// cadence; the informer's reflector already retries disconnects with
// exponential backoff underneath this.
const defaultResync = 10 * time.Minute

// watcherNotifier is the C5 contract the loop dispatches completions to.
type watcherNotifier interface {
	Notify(ctx context.Context, jobName string)
}

// familyNotifier is the C6 contract the loop dispatches completions to.
type familyNotifier interface {
	Notify(ctx context.Context, family, jobName string)
}

// EventLoop subscribes to batch/v1.Job events in one namespace, dedupes via
// an object label, detects successful completions, fans them out to the
// watcher and family-watcher services, and marks handled workloads.
type EventLoop struct {
	client    kubernetes.Interface
	namespace string
	watchers  watcherNotifier
	families  familyNotifier
}

// NewEventLoop builds a loop bound to namespace using the default
// in-cluster credentials, falling back to the local kubeconfig for
// out-of-cluster development.
func NewEventLoop(namespace string, watchers watcherNotifier, families familyNotifier) (*EventLoop, error) {
	client, err := newClient()
	if err != nil {
		return nil, fmt.Errorf("build orchestrator client: %w", err)
	}
	return &EventLoop{client: client, namespace: namespace, watchers: watchers, families: families}, nil
}

func newClient() (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig, loadErr := clientcmd.NewDefaultClientConfigLoadingRules().Load()
		if loadErr != nil {
			return nil, fmt.Errorf("no in-cluster config and no kubeconfig: %w", loadErr)
		}
		cfg, err = clientcmd.NewDefaultClientConfig(*kubeconfig, &clientcmd.ConfigOverrides{}).ClientConfig()
		if err != nil {
			return nil, err
		}
	}
	return kubernetes.NewForConfig(cfg)
}

// Run starts the informer and blocks until ctx is cancelled. It never
// returns an error for transient stream issues: those are logged and the
// reflector reconnects on its own default backoff.
func (l *EventLoop) Run(ctx context.Context) {
	listWatch := &cache.ListWatch{
		ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
			return l.client.BatchV1().Jobs(l.namespace).List(ctx, options)
		},
		WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
			return l.client.BatchV1().Jobs(l.namespace).Watch(ctx, options)
		},
	}

	informer := cache.NewSharedIndexInformer(listWatch, &batchv1.Job{}, defaultResync, cache.Indexers{})
	_, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    func(obj any) { l.handle(ctx, obj) },
		UpdateFunc: func(oldObj, newObj any) { l.handle(ctx, newObj) },
	})
	if err != nil {
		logger.Logger.Error("register job event handler failed", "error", err.Error())
		return
	}

	informer.Run(ctx.Done())
}

func (l *EventLoop) handle(ctx context.Context, obj any) {
	job, ok := obj.(*batchv1.Job)
	if !ok {
		return
	}

	if isHandled(job.Labels) {
		return
	}
	if !isSuccessful(job) {
		return
	}

	name := job.Name
	fam := family(name)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.watchers.Notify(ctx, name)
	}()
	if fam != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.families.Notify(ctx, fam, name)
		}()
	}
	wg.Wait()

	if err := l.markHandled(ctx, job); err != nil {
		logger.Logger.Error("mark workload handled failed", "job_name", name, "error", err.Error())
	}
}

// markHandled PATCHes job with a strategic-merge payload setting the dedup
// label, making the fan-out restart-safe.
func (l *EventLoop) markHandled(ctx context.Context, job *batchv1.Job) error {
	patch := map[string]any{
		"metadata": map[string]any{
			"labels": map[string]string{DedupLabelKey: "true"},
		},
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal dedup label patch: %w", err)
	}
	_, err = l.client.BatchV1().Jobs(l.namespace).Patch(ctx, job.Name, types.StrategicMergePatchType, body, metav1.PatchOptions{})
	if apierrors.IsNotFound(err) {
		// The workload was deleted between the event and the patch; the
		// fan-out already ran, so this is not an error worth surfacing.
		return nil
	}
	return err
}
