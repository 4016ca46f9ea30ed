package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/sentinel/pkg/metrics"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// DefaultLeaseTTL is the session lease duration used when a Config does
// not override it; a session whose Gateway stops heartbeating is expired
// after this long.
const DefaultLeaseTTL = 30 * time.Second

const applyTimeout = 5 * time.Second

// EmbeddedCore is the shared Raft-backed node tree one or more
// EmbeddedGateway sessions connect to: a single-node Raft group
// (hashicorp/raft + raft-boltdb for its log/stable stores) applies
// mutations through treeFSM to a BoltDB-backed treeStore, while reads
// bypass the log entirely.
type EmbeddedCore struct {
	raft        *raft.Raft
	fsm         *treeFSM
	store       *treeStore
	watches     *watchRegistry
	sessions    *sessionManager
	logStore    *raftboltdb.BoltStore
	stableStore *raftboltdb.BoltStore
}

// NewEmbeddedCore bootstraps a single-node Raft group and node tree rooted
// at dataDir, ready to back one or more EmbeddedGateway sessions.
func NewEmbeddedCore(dataDir string, leaseTTL time.Duration) (*EmbeddedCore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create coordinator data dir: %w", err)
	}
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}

	store, err := newTreeStore(dataDir)
	if err != nil {
		return nil, err
	}
	fsm := newTreeFSM(store)

	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID("embedded")
	config.HeartbeatTimeout = 100 * time.Millisecond
	config.ElectionTimeout = 100 * time.Millisecond
	config.CommitTimeout = 20 * time.Millisecond
	config.LeaderLeaseTimeout = 50 * time.Millisecond

	addr, transport := raft.NewInmemTransport("embedded")

	snapshotStore, err := raft.NewFileSnapshotStore(dataDir, 2, os.Stderr)
	if err != nil {
		store.close()
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(dataDir + "/raft-log.db")
	if err != nil {
		store.close()
		return nil, fmt.Errorf("failed to create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(dataDir + "/raft-stable.db")
	if err != nil {
		store.close()
		logStore.Close()
		return nil, fmt.Errorf("failed to create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(config, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		store.close()
		logStore.Close()
		stableStore.Close()
		return nil, fmt.Errorf("failed to create raft: %w", err)
	}

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: config.LocalID, Address: addr}},
	})
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		store.close()
		logStore.Close()
		stableStore.Close()
		return nil, fmt.Errorf("failed to bootstrap coordinator raft group: %w", err)
	}

	core := &EmbeddedCore{
		raft:        r,
		fsm:         fsm,
		store:       store,
		watches:     newWatchRegistry(),
		logStore:    logStore,
		stableStore: stableStore,
	}
	core.sessions = newSessionManager(leaseTTL, core.reapSession)

	if err := core.waitForLeader(5 * time.Second); err != nil {
		core.Close()
		return nil, err
	}

	return core, nil
}

func (c *EmbeddedCore) waitForLeader(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.raft.State() == raft.Leader {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("coordinator: embedded raft group never became leader")
}

func (c *EmbeddedCore) apply(cmd command) applyResult {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.CoordinatorOpDuration, string(cmd.Op))

	data, err := json.Marshal(cmd)
	if err != nil {
		return applyResult{err: err}
	}
	future := c.raft.Apply(data, applyTimeout)
	if err := future.Error(); err != nil {
		return applyResult{err: fmt.Errorf("raft apply: %w", err)}
	}
	res, ok := future.Response().(applyResult)
	if !ok {
		return applyResult{err: fmt.Errorf("coordinator: unexpected apply response type %T", future.Response())}
	}
	return res
}

// reapSession deletes the ephemeral paths an expired session owned.
func (c *EmbeddedCore) reapSession(owned []string) {
	for _, p := range owned {
		res := c.apply(command{Op: opDelete, Path: p, Version: AnyVersion})
		if res.err == nil {
			c.watches.notifyMutation(p, true)
		}
	}
}

func (c *EmbeddedCore) Close() error {
	c.sessions.stop()
	_ = c.raft.Shutdown().Error()
	c.logStore.Close()
	c.stableStore.Close()
	return c.store.close()
}

// EmbeddedGateway is a Gateway backed by a shared EmbeddedCore. Each
// EmbeddedGateway represents one coordination-store session: it owns the
// ephemeral nodes it creates, heartbeats to keep its lease alive, and
// reconnects with a new session (emitting Expired then SyncConnected) after
// a session loss, the way a real ZooKeeper/Curator client does.
type EmbeddedGateway struct {
	core *EmbeddedCore

	mu             sync.Mutex
	sessionID      string
	closed         bool
	reconnectDelay time.Duration

	events chan SessionEvent
	stopCh chan struct{}
}

// Option configures an EmbeddedGateway.
type Option func(*EmbeddedGateway)

// WithReconnectDelay sets how long the Gateway waits after a session
// expiry before establishing a new session, mirroring a real client's
// reconnect backoff. Defaults to 0 (reconnect immediately).
func WithReconnectDelay(d time.Duration) Option {
	return func(g *EmbeddedGateway) { g.reconnectDelay = d }
}

// NewEmbeddedGateway opens a new session against core.
func NewEmbeddedGateway(core *EmbeddedCore, opts ...Option) *EmbeddedGateway {
	g := &EmbeddedGateway{
		core:   core,
		events: make(chan SessionEvent, 8),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	id, internalCh := core.sessions.open()
	g.sessionID = id
	g.events <- SessionEvent{Type: SyncConnected}
	go g.superviseSession(internalCh)
	go g.heartbeatLoop()

	return g
}

func (g *EmbeddedGateway) currentSession() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionID
}

func (g *EmbeddedGateway) heartbeatLoop() {
	ticker := time.NewTicker(g.core.sessions.leaseTTL / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.core.sessions.heartbeat(g.currentSession())
		case <-g.stopCh:
			return
		}
	}
}

// superviseSession watches one session's internal event channel for an
// Expired notification, forwards it, and reconnects with a new session.
func (g *EmbeddedGateway) superviseSession(internalCh chan SessionEvent) {
	select {
	case evt, ok := <-internalCh:
		if !ok {
			return
		}
		if evt.Type != Expired {
			return
		}
	case <-g.stopCh:
		return
	}

	metrics.CoordinatorSessionEventsTotal.WithLabelValues(Expired.String()).Inc()
	select {
	case g.events <- SessionEvent{Type: Expired}:
	case <-g.stopCh:
		return
	}

	if g.reconnectDelay > 0 {
		select {
		case <-time.After(g.reconnectDelay):
		case <-g.stopCh:
			return
		}
	}

	select {
	case <-g.stopCh:
		return
	default:
	}

	newID, newCh := g.core.sessions.open()
	g.mu.Lock()
	g.sessionID = newID
	g.mu.Unlock()

	metrics.CoordinatorSessionEventsTotal.WithLabelValues(SyncConnected.String()).Inc()
	select {
	case g.events <- SessionEvent{Type: SyncConnected}:
	case <-g.stopCh:
		return
	}

	go g.superviseSession(newCh)
}

// SimulateSessionLoss forces this Gateway's current session to expire, as
// if its lease had lapsed or the underlying connection had dropped. Used
// by tests exercising session-expiry behaviour.
func (g *EmbeddedGateway) SimulateSessionLoss() {
	owned, eventCh := g.core.sessions.expire(g.currentSession())
	g.core.reapSession(owned)
	if eventCh != nil {
		eventCh <- SessionEvent{Type: Expired}
	}
}

func (g *EmbeddedGateway) Create(ctx context.Context, path string, data []byte, mode Mode) (string, error) {
	res := g.core.apply(command{Op: opCreate, Path: cleanPath(path), Data: data, Mode: mode})
	if res.err != nil {
		return "", res.err
	}
	if mode != Persistent {
		g.core.sessions.own(g.currentSession(), res.path)
	}
	g.core.watches.notifyMutation(res.path, false)
	return res.path, nil
}

func (g *EmbeddedGateway) Delete(ctx context.Context, path string, version int32) error {
	path = cleanPath(path)
	res := g.core.apply(command{Op: opDelete, Path: path, Version: version})
	if res.err != nil {
		return res.err
	}
	g.core.sessions.disown(g.currentSession(), path)
	g.core.watches.notifyMutation(path, true)
	return nil
}

func (g *EmbeddedGateway) GetData(ctx context.Context, path string) ([]byte, int32, error) {
	return g.core.store.getData(path)
}

func (g *EmbeddedGateway) SetData(ctx context.Context, path string, data []byte, version int32) (int32, error) {
	res := g.core.apply(command{Op: opSetData, Path: cleanPath(path), Data: data, Version: version})
	if res.err != nil {
		return 0, res.err
	}
	g.core.watches.notifyDataChange(cleanPath(path))
	return res.version, nil
}

func (g *EmbeddedGateway) GetChildren(ctx context.Context, path string, watch bool) ([]string, int32, <-chan WatchEvent, error) {
	path = cleanPath(path)

	// Arm before reading: a mutation landing between the read and the
	// arm then fires the watch rather than being lost. The spurious
	// wake-up this allows is safe; a lost event is not.
	var watchCh <-chan WatchEvent
	if watch {
		watchCh = g.core.watches.arm(path)
	}

	children, err := g.core.store.getChildren(path)
	if err != nil {
		if watchCh != nil {
			g.core.watches.disarm(path, watchCh)
		}
		return nil, 0, nil, err
	}
	sort.Strings(children)

	_, version, verr := g.core.store.getData(path)
	if verr != nil {
		version = 0
	}
	return children, version, watchCh, nil
}

func (g *EmbeddedGateway) SessionEvents() <-chan SessionEvent {
	return g.events
}

func (g *EmbeddedGateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	id := g.sessionID
	g.mu.Unlock()

	close(g.stopCh)
	owned := g.core.sessions.close(id)
	g.core.reapSession(owned)
	return nil
}
