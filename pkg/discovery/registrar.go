package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/sentinel/pkg/codec"
	"github.com/cuemby/sentinel/pkg/coordinator"
	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/metrics"
	"github.com/rs/zerolog"
)

// Cancellable is the handle returned by Registrar.Register. It tracks the
// endpoint node's current path (blank while a re-registration is
// in-flight) and whether the caller has cancelled the registration.
type Cancellable struct {
	registrar *Registrar

	mu           sync.Mutex
	discoverable codec.Discoverable
	path         string
	cancelled    bool
}

// Cancel atomically marks the registration cancelled and deletes its
// current endpoint node. If a re-registration is in flight (path is
// blank), the deletion is deferred: the re-registration completion sees
// cancelled set and deletes whatever it just created instead.
func (c *Cancellable) Cancel(ctx context.Context) error {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return nil
	}
	c.cancelled = true
	path := c.path
	c.path = ""
	c.mu.Unlock()

	c.registrar.forget(c)

	if path == "" {
		return nil
	}
	return coordinator.IgnoreErr(c.registrar.gw.Delete(ctx, path, coordinator.AnyVersion), coordinator.ErrNoNode)
}

// Registrar publishes Discoverable endpoints as ephemeral sequential
// children of the coordination store and re-registers every live handle
// after a session reconnect.
type Registrar struct {
	gw        coordinator.Gateway
	namespace string
	logger    zerolog.Logger

	mu      sync.Mutex
	handles map[*Cancellable]struct{}

	stopCh chan struct{}

	// onReregisterStart, if set, is invoked synchronously right after a
	// handle's path is blanked for re-registration and before the create
	// call is issued. Used only by tests to land the cancel-during-
	// re-register race deterministically.
	onReregisterStart func(codec.Discoverable)
}

// NewRegistrar creates a Registrar publishing under namespace (defaulting
// to DefaultNamespace) and starts watching gw's session events for
// reconnect-driven re-registration.
func NewRegistrar(gw coordinator.Gateway, namespace string) *Registrar {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	r := &Registrar{
		gw:        gw,
		namespace: namespace,
		handles:   make(map[*Cancellable]struct{}),
		logger:    log.WithComponent("discovery-registrar"),
		stopCh:    make(chan struct{}),
	}
	go r.watchSessionEvents()
	return r
}

// Stop releases the Registrar's session-event watcher. It does not cancel
// outstanding registrations.
func (r *Registrar) Stop() {
	close(r.stopCh)
}

// Register publishes d as a new ephemeral sequential endpoint node and
// blocks until the coordinator confirms creation. A registration failure
// is a runtime error: callers that cannot advertise themselves are
// expected to crash fast and be restarted by their supervisor.
func (r *Registrar) Register(ctx context.Context, d codec.Discoverable) (*Cancellable, error) {
	path, err := r.create(ctx, d)
	if err != nil {
		metrics.DiscoveryRegistrations.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("discovery: register %s: %w", d.Service, err)
	}
	metrics.DiscoveryRegistrations.WithLabelValues("ok").Inc()

	h := &Cancellable{registrar: r, discoverable: d, path: path}

	r.mu.Lock()
	r.handles[h] = struct{}{}
	r.mu.Unlock()

	return h, nil
}

func (r *Registrar) create(ctx context.Context, d codec.Discoverable) (string, error) {
	data, err := codec.EncodeDiscoverable(d)
	if err != nil {
		return "", fmt.Errorf("discovery: encode discoverable: %w", err)
	}
	parent := servicePath(r.namespace, d.Service)
	return r.gw.Create(ctx, parent+"/service-", data, coordinator.EphemeralSequential)
}

func (r *Registrar) forget(h *Cancellable) {
	r.mu.Lock()
	delete(r.handles, h)
	r.mu.Unlock()
}

// watchSessionEvents re-registers every live handle the first time the
// gateway's session transitions from Expired to SyncConnected.
func (r *Registrar) watchSessionEvents() {
	events := r.gw.SessionEvents()
	expired := false
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			switch evt.Type {
			case coordinator.Expired:
				expired = true
			case coordinator.SyncConnected:
				if expired {
					expired = false
					r.reregisterAll()
				}
			}
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registrar) reregisterAll() {
	r.mu.Lock()
	handles := make([]*Cancellable, 0, len(r.handles))
	for h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		r.reregisterOne(h)
	}
}

func (r *Registrar) reregisterOne(h *Cancellable) {
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return
	}
	d := h.discoverable
	h.path = "" // abandon the old (now garbage-collected) path
	h.mu.Unlock()

	if r.onReregisterStart != nil {
		r.onReregisterStart(d)
	}

	path, err := r.create(context.Background(), d)
	if err != nil {
		r.logger.Error().Err(err).Str("service", d.Service).Msg("re-registration failed")
		return
	}

	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		// cancel ran while this re-registration was in flight and found a
		// blank path; finish its deferred deletion here.
		_ = coordinator.IgnoreErr(r.gw.Delete(context.Background(), path, coordinator.AnyVersion), coordinator.ErrNoNode)
		r.forget(h)
		return
	}
	h.path = path
	h.mu.Unlock()
}
