package coordinator

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// session is the core's bookkeeping for one client connection: which
// ephemeral paths it owns and when its lease next needs renewing.
type session struct {
	id       string
	owned    map[string]bool
	deadline time.Time
	eventCh  chan SessionEvent
	expired  bool
}

// sessionManager tracks live sessions against the shared node tree and
// expires (and notifies) sessions whose lease lapses, the way a
// heartbeat reconciler marks a node down once its heartbeat is overdue.
type sessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session
	leaseTTL time.Duration
	onExpire func(owned []string)
	stopCh   chan struct{}
}

func newSessionManager(leaseTTL time.Duration, onExpire func(owned []string)) *sessionManager {
	sm := &sessionManager{
		sessions: make(map[string]*session),
		leaseTTL: leaseTTL,
		onExpire: onExpire,
		stopCh:   make(chan struct{}),
	}
	go sm.sweep()
	return sm
}

func (sm *sessionManager) stop() {
	close(sm.stopCh)
}

// open starts a new session and returns its id and event channel.
func (sm *sessionManager) open() (string, chan SessionEvent) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	id := uuid.NewString()
	s := &session{
		id:       id,
		owned:    make(map[string]bool),
		deadline: time.Now().Add(sm.leaseTTL),
		eventCh:  make(chan SessionEvent, 4),
	}
	sm.sessions[id] = s
	return id, s.eventCh
}

// heartbeat renews id's lease. A heartbeat on an expired or unknown
// session is a no-op: the caller is expected to reconnect instead.
func (sm *sessionManager) heartbeat(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[id]; ok && !s.expired {
		s.deadline = time.Now().Add(sm.leaseTTL)
	}
}

// own records that session id owns path, so it is cleaned up when the
// session expires or closes.
func (sm *sessionManager) own(id, path string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[id]; ok {
		s.owned[path] = true
	}
}

// disown forgets that session id owns path, without deleting it (used
// when the caller deletes the path itself).
func (sm *sessionManager) disown(id, path string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.sessions[id]; ok {
		delete(s.owned, path)
	}
}

// expire marks id expired, returning the ephemeral paths it owned so the
// caller can remove them from the tree. Safe to call more than once; only
// the first call returns a non-nil event channel.
func (sm *sessionManager) expire(id string) (owned []string, eventCh chan SessionEvent) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.sessions[id]
	if !ok || s.expired {
		return nil, nil
	}
	s.expired = true

	for p := range s.owned {
		owned = append(owned, p)
	}
	return owned, s.eventCh
}

// close releases id without notifying anyone; used for a clean Close()
// rather than a session-expiry tear-down.
func (sm *sessionManager) close(id string) (owned []string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.sessions[id]
	if !ok {
		return nil
	}
	for p := range s.owned {
		owned = append(owned, p)
	}
	delete(sm.sessions, id)
	return owned
}

func (sm *sessionManager) sweep() {
	ticker := time.NewTicker(sm.leaseTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.sweepOnce()
		case <-sm.stopCh:
			return
		}
	}
}

func (sm *sessionManager) sweepOnce() {
	now := time.Now()

	sm.mu.Lock()
	var lapsed []string
	for id, s := range sm.sessions {
		if !s.expired && now.After(s.deadline) {
			lapsed = append(lapsed, id)
		}
	}
	sm.mu.Unlock()

	for _, id := range lapsed {
		owned, eventCh := sm.expire(id)
		if sm.onExpire != nil {
			sm.onExpire(owned)
		}
		if eventCh != nil {
			select {
			case eventCh <- SessionEvent{Type: Expired}:
			default:
			}
		}
	}
}
