package discovery

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cuemby/sentinel/pkg/codec"
	"github.com/cuemby/sentinel/pkg/coordinator"
	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/metrics"
	"github.com/rs/zerolog"
)

// View is a live, read-only snapshot of a service's membership set. Reads
// reflect the latest installed snapshot; the underlying pointer is
// swapped atomically so a reader never observes a torn update.
type View struct {
	service  string
	snapshot atomic.Pointer[[]codec.Discoverable]
}

// Members returns the current membership snapshot. The returned slice is
// never mutated in place; callers may retain it across later refreshes.
func (v *View) Members() []codec.Discoverable {
	p := v.snapshot.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Resolver maintains one View per service name, installing a child watch
// on first access and refreshing the snapshot on every subsequent
// children-changed notification.
type Resolver struct {
	gw        coordinator.Gateway
	namespace string
	logger    zerolog.Logger

	mu    sync.Mutex
	views map[string]*View

	stopCh chan struct{}
}

// NewResolver creates a Resolver reading endpoints under namespace
// (defaulting to DefaultNamespace).
func NewResolver(gw coordinator.Gateway, namespace string) *Resolver {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Resolver{
		gw:        gw,
		namespace: namespace,
		logger:    log.WithComponent("discovery-resolver"),
		views:     make(map[string]*View),
		stopCh:    make(chan struct{}),
	}
}

// Stop halts every view's background watch loop.
func (r *Resolver) Stop() {
	close(r.stopCh)
}

// Discover returns the live View for service, installing its watch and
// fetching an initial snapshot on first access. Subsequent calls for the
// same service name return the same View.
func (r *Resolver) Discover(ctx context.Context, service string) (*View, error) {
	r.mu.Lock()
	if v, ok := r.views[service]; ok {
		r.mu.Unlock()
		return v, nil
	}
	v := &View{service: service}
	r.views[service] = v
	r.mu.Unlock()

	if err := r.refresh(ctx, v); err != nil {
		r.mu.Lock()
		delete(r.views, service)
		r.mu.Unlock()
		return nil, err
	}
	return v, nil
}

func (r *Resolver) refresh(ctx context.Context, v *View) error {
	parent := servicePath(r.namespace, v.service)

	// A service nobody has registered yet has no parent node. Create it
	// so the watch can be installed; the view starts empty and fills in
	// when the first endpoint registers.
	if _, err := r.gw.Create(ctx, parent, nil, coordinator.Persistent); err != nil {
		if coordinator.IgnoreErr(err, coordinator.ErrNodeExists) != nil {
			return err
		}
	}

	children, _, watchCh, err := r.gw.GetChildren(ctx, parent, true)
	if err != nil {
		return err
	}
	sort.Strings(children)

	results := make([]*codec.Discoverable, len(children))
	var wg sync.WaitGroup
	for i, id := range children {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			data, _, err := r.gw.GetData(ctx, parent+"/"+id)
			if err != nil {
				return
			}
			results[i] = codec.DecodeDiscoverable(data)
		}(i, id)
	}
	wg.Wait()

	snapshot := make([]codec.Discoverable, 0, len(results))
	for _, d := range results {
		if d != nil {
			snapshot = append(snapshot, *d)
		}
	}
	v.snapshot.Store(&snapshot)
	metrics.DiscoveryMembers.WithLabelValues(v.service).Set(float64(len(snapshot)))

	go r.watchOne(v, watchCh)
	return nil
}

func (r *Resolver) watchOne(v *View, watchCh <-chan coordinator.WatchEvent) {
	select {
	case _, ok := <-watchCh:
		if !ok {
			return
		}
	case <-r.stopCh:
		return
	}

	if err := r.refresh(context.Background(), v); err != nil {
		r.logger.Warn().Err(err).Str("service", v.service).Msg("resolver refresh failed")
	}
}
