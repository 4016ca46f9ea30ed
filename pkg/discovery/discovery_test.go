package discovery

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/cuemby/sentinel/pkg/codec"
	"github.com/cuemby/sentinel/pkg/coordinator"
	"github.com/cuemby/sentinel/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	m.Run()
}

func newTestGateway(t *testing.T) *coordinator.EmbeddedGateway {
	t.Helper()
	core, err := coordinator.NewEmbeddedCore(t.TempDir(), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })
	gw := coordinator.NewEmbeddedGateway(core)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

func serviceChildren(t *testing.T, gw coordinator.Gateway, service string) []string {
	t.Helper()
	children, _, _, err := gw.GetChildren(context.Background(), servicePath(DefaultNamespace, service), false)
	if err != nil {
		return nil
	}
	return children
}

func TestRegisterCreatesSequentialNode(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)
	r := NewRegistrar(gw, "")
	t.Cleanup(r.Stop)

	d := codec.Discoverable{Service: "x", Hostname: "h", Port: 1}
	h, err := r.Register(ctx, d)
	require.NoError(t, err)

	assert.Equal(t, "/discoverable/x/service-0000000000", h.path)

	data, _, err := gw.GetData(ctx, h.path)
	require.NoError(t, err)
	decoded := codec.DecodeDiscoverable(data)
	require.NotNil(t, decoded)
	assert.Equal(t, d, *decoded)
}

func TestCancelRemovesNode(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)
	r := NewRegistrar(gw, "")
	t.Cleanup(r.Stop)

	h, err := r.Register(ctx, codec.Discoverable{Service: "x", Hostname: "h", Port: 1})
	require.NoError(t, err)

	require.NoError(t, h.Cancel(ctx))
	assert.Empty(t, serviceChildren(t, gw, "x"))

	r.mu.Lock()
	remaining := len(r.handles)
	r.mu.Unlock()
	assert.Zero(t, remaining)

	// Idempotent.
	require.NoError(t, h.Cancel(ctx))
}

func TestReregisterAfterSessionExpiry(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)
	r := NewRegistrar(gw, "")
	t.Cleanup(r.Stop)

	d := codec.Discoverable{Service: "x", Hostname: "h", Port: 1}
	_, err := r.Register(ctx, d)
	require.NoError(t, err)
	require.Len(t, serviceChildren(t, gw, "x"), 1)

	gw.SimulateSessionLoss()

	assert.Eventually(t, func() bool {
		return len(serviceChildren(t, gw, "x")) == 1
	}, 5*time.Second, 20*time.Millisecond, "expected exactly one endpoint node after reconnect")

	children := serviceChildren(t, gw, "x")
	require.Len(t, children, 1)
	data, _, err := gw.GetData(ctx, servicePath(DefaultNamespace, "x")+"/"+children[0])
	require.NoError(t, err)
	decoded := codec.DecodeDiscoverable(data)
	require.NotNil(t, decoded)
	assert.Equal(t, d, *decoded, "re-registered content should equal the original discoverable")
}

func TestCancelDuringReregisterRace(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)
	r := NewRegistrar(gw, "")
	t.Cleanup(r.Stop)

	h, err := r.Register(ctx, codec.Discoverable{Service: "x", Hostname: "h", Port: 1})
	require.NoError(t, err)

	// Land the cancel in the window where the handle's path is blanked
	// but the replacement node has not been created yet.
	r.onReregisterStart = func(codec.Discoverable) {
		require.NoError(t, h.Cancel(ctx))
	}

	gw.SimulateSessionLoss()

	assert.Eventually(t, func() bool {
		return len(serviceChildren(t, gw, "x")) == 0
	}, 5*time.Second, 20*time.Millisecond, "node created by the in-flight re-registration should be deleted")

	r.mu.Lock()
	remaining := len(r.handles)
	r.mu.Unlock()
	assert.Zero(t, remaining, "registry should hold no live handle after the deferred cancel")
}

func TestResolverDiscover(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)
	reg := NewRegistrar(gw, "")
	t.Cleanup(reg.Stop)
	res := NewResolver(gw, "")
	t.Cleanup(res.Stop)

	a := codec.Discoverable{Service: "x", Hostname: "a", Port: 1}
	_, err := reg.Register(ctx, a)
	require.NoError(t, err)

	view, err := res.Discover(ctx, "x")
	require.NoError(t, err)
	require.Len(t, view.Members(), 1)
	assert.Equal(t, a, view.Members()[0])

	// A second Discover returns the same view.
	again, err := res.Discover(ctx, "x")
	require.NoError(t, err)
	assert.Same(t, view, again)

	// A new registration shows up through the child watch.
	b := codec.Discoverable{Service: "x", Hostname: "b", Port: 2}
	bh, err := reg.Register(ctx, b)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(view.Members()) == 2
	}, 5*time.Second, 20*time.Millisecond)

	// And a cancellation drains back out.
	require.NoError(t, bh.Cancel(ctx))
	assert.Eventually(t, func() bool {
		members := view.Members()
		return len(members) == 1 && members[0] == a
	}, 5*time.Second, 20*time.Millisecond)
}

func TestResolverEmptyService(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)
	res := NewResolver(gw, "")
	t.Cleanup(res.Stop)

	// Nothing registered yet: the view exists and is empty, then fills
	// in when the first endpoint arrives.
	view, err := res.Discover(ctx, "y")
	require.NoError(t, err)
	assert.Empty(t, view.Members())

	reg := NewRegistrar(gw, "")
	t.Cleanup(reg.Stop)
	_, err = reg.Register(ctx, codec.Discoverable{Service: "y", Hostname: "h", Port: 3})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(view.Members()) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestResolverDropsMalformedChild(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)
	res := NewResolver(gw, "")
	t.Cleanup(res.Stop)

	good := codec.Discoverable{Service: "z", Hostname: "h", Port: 4}
	data, err := codec.EncodeDiscoverable(good)
	require.NoError(t, err)
	_, err = gw.Create(ctx, "/discoverable/z/service-", data, coordinator.EphemeralSequential)
	require.NoError(t, err)
	_, err = gw.Create(ctx, "/discoverable/z/service-", []byte("not json"), coordinator.EphemeralSequential)
	require.NoError(t, err)

	view, err := res.Discover(ctx, "z")
	require.NoError(t, err)
	require.Len(t, view.Members(), 1, "malformed sibling should be dropped from the snapshot")
	assert.Equal(t, good, view.Members()[0])
}
