package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T) *EmbeddedCore {
	t.Helper()
	core, err := NewEmbeddedCore(t.TempDir(), 500*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })
	return core
}

func newTestGateway(t *testing.T, core *EmbeddedCore) *EmbeddedGateway {
	t.Helper()
	gw := NewEmbeddedGateway(core)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

func TestCreateGetSetDelete(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t, newTestCore(t))

	path, err := gw.Create(ctx, "/a/b/c", []byte("v0"), Persistent)
	require.NoError(t, err)
	assert.Equal(t, "/a/b/c", path)

	// Missing parents were created persistent.
	data, version, err := gw.GetData(ctx, "/a/b")
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, int32(0), version)

	data, version, err = gw.GetData(ctx, "/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, []byte("v0"), data)
	assert.Equal(t, int32(0), version)

	newVersion, err := gw.SetData(ctx, "/a/b/c", []byte("v1"), 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), newVersion)

	_, err = gw.SetData(ctx, "/a/b/c", []byte("v2"), 0)
	assert.ErrorIs(t, err, ErrBadVersion)

	err = gw.Delete(ctx, "/a/b/c", 0)
	assert.ErrorIs(t, err, ErrBadVersion)

	require.NoError(t, gw.Delete(ctx, "/a/b/c", 1))

	_, _, err = gw.GetData(ctx, "/a/b/c")
	assert.ErrorIs(t, err, ErrNoNode)
}

func TestCreateExisting(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t, newTestCore(t))

	_, err := gw.Create(ctx, "/node", nil, Persistent)
	require.NoError(t, err)

	_, err = gw.Create(ctx, "/node", nil, Persistent)
	assert.ErrorIs(t, err, ErrNodeExists)
}

func TestEphemeralSequentialNaming(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t, newTestCore(t))

	first, err := gw.Create(ctx, "/svc/x/service-", []byte("a"), EphemeralSequential)
	require.NoError(t, err)
	assert.Equal(t, "/svc/x/service-0000000000", first)

	second, err := gw.Create(ctx, "/svc/x/service-", []byte("b"), EphemeralSequential)
	require.NoError(t, err)
	assert.Equal(t, "/svc/x/service-0000000001", second)

	children, _, _, err := gw.GetChildren(ctx, "/svc/x", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"service-0000000000", "service-0000000001"}, children)
}

func TestGetChildrenSorted(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t, newTestCore(t))

	for _, name := range []string{"00000003", "00000001", "00000002"} {
		_, err := gw.Create(ctx, "/r1/messages/"+name, nil, Persistent)
		require.NoError(t, err)
	}

	children, _, _, err := gw.GetChildren(ctx, "/r1/messages", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"00000001", "00000002", "00000003"}, children)
}

func TestGetChildrenNoNode(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t, newTestCore(t))

	_, _, _, err := gw.GetChildren(ctx, "/missing", true)
	assert.ErrorIs(t, err, ErrNoNode)
}

func TestChildWatchFires(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t, newTestCore(t))

	_, err := gw.Create(ctx, "/r1/messages", nil, Persistent)
	require.NoError(t, err)

	_, _, watchCh, err := gw.GetChildren(ctx, "/r1/messages", true)
	require.NoError(t, err)

	_, err = gw.Create(ctx, "/r1/messages/00000001", nil, Persistent)
	require.NoError(t, err)

	select {
	case evt := <-watchCh:
		assert.Equal(t, NodeChildrenChanged, evt.Type)
		assert.Equal(t, "/r1/messages", evt.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("watch never fired")
	}

	// One-shot: a second mutation does not reuse the fired watcher.
	_, err = gw.Create(ctx, "/r1/messages/00000002", nil, Persistent)
	require.NoError(t, err)
	_, open := <-watchCh
	assert.False(t, open, "watch channel should be closed after firing")
}

func TestDeleteRecursive(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t, newTestCore(t))

	for _, p := range []string{"/r1/state", "/r1/messages/00000001", "/r1/messages/00000002"} {
		_, err := gw.Create(ctx, p, nil, Persistent)
		require.NoError(t, err)
	}

	require.NoError(t, DeleteRecursive(ctx, gw, "/r1"))

	_, _, err := gw.GetData(ctx, "/r1")
	assert.ErrorIs(t, err, ErrNoNode)

	// Deleting an absent subtree is a no-op.
	require.NoError(t, DeleteRecursive(ctx, gw, "/r1"))
}

func TestIgnoreErr(t *testing.T) {
	assert.NoError(t, IgnoreErr(ErrNoNode, ErrNoNode))
	assert.NoError(t, IgnoreErr(fmt.Errorf("wrapped: %w", ErrNodeExists), ErrNodeExists))
	assert.Error(t, IgnoreErr(ErrBadVersion, ErrNoNode))
	assert.NoError(t, IgnoreErr(nil, ErrNoNode))
}

func TestSessionLossReapsEphemerals(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t)
	gw := newTestGateway(t, core)

	_, err := gw.Create(ctx, "/instances/r1", nil, Ephemeral)
	require.NoError(t, err)
	_, err = gw.Create(ctx, "/persistent", nil, Persistent)
	require.NoError(t, err)

	// Drain the initial SyncConnected.
	evt := <-gw.SessionEvents()
	require.Equal(t, SyncConnected, evt.Type)

	gw.SimulateSessionLoss()

	evt = <-gw.SessionEvents()
	assert.Equal(t, Expired, evt.Type)
	evt = <-gw.SessionEvents()
	assert.Equal(t, SyncConnected, evt.Type)

	_, _, err = gw.GetData(ctx, "/instances/r1")
	assert.ErrorIs(t, err, ErrNoNode, "ephemeral node should be reaped on expiry")

	_, _, err = gw.GetData(ctx, "/persistent")
	assert.NoError(t, err, "persistent node should survive expiry")

	// The reconnected session can create ephemerals again.
	_, err = gw.Create(ctx, "/instances/r1", nil, Ephemeral)
	assert.NoError(t, err)
}

func TestLeaseLapseExpiresSession(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t)

	gw := NewEmbeddedGateway(core)
	_, err := gw.Create(ctx, "/instances/r2", nil, Ephemeral)
	require.NoError(t, err)

	<-gw.SessionEvents() // SyncConnected

	// Stop heartbeating without closing: the lease lapses and the sweep
	// expires the session.
	close(gw.stopCh)

	assert.Eventually(t, func() bool {
		_, _, err := gw.GetData(ctx, "/instances/r2")
		return errors.Is(err, ErrNoNode)
	}, 5*time.Second, 50*time.Millisecond, "lapsed session's ephemeral node should be reaped")
}

func TestCloseRemovesEphemerals(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t)

	gw := NewEmbeddedGateway(core)
	_, err := gw.Create(ctx, "/instances/r3", nil, Ephemeral)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	probe := newTestGateway(t, core)
	_, _, err = probe.GetData(ctx, "/instances/r3")
	assert.ErrorIs(t, err, ErrNoNode)
}
