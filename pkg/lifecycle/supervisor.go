package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cuemby/sentinel/pkg/codec"
	"github.com/cuemby/sentinel/pkg/coordinator"
	"github.com/cuemby/sentinel/pkg/livenode"
	"github.com/cuemby/sentinel/pkg/log"
	"github.com/cuemby/sentinel/pkg/metrics"
	"github.com/rs/zerolog"
)

// Config configures a Supervisor.
type Config struct {
	// RunID is the opaque, process-unique namespace root for this run.
	RunID string
	// Worker is the hosted service being supervised.
	Worker Service
	// Callback receives USER messages, if the worker offers one. May be
	// nil; USER messages are then deleted unread.
	Callback MessageCallback
	// Finalizer runs exactly once on either terminal branch.
	Finalizer Finalizer
	// LivePayload is the caller-supplied value wrapped into the live
	// node's content. May be nil.
	LivePayload interface{}
}

// Supervisor orchestrates the coordinator gateway, codec, live node
// manager, state publisher and command listener around one hosted
// worker's own state machine.
type Supervisor struct {
	gw          coordinator.Gateway
	runID       string
	runRoot     string
	worker      Service
	finalize    Finalizer
	livePayload interface{}
	logger      zerolog.Logger

	publisher *statePublisher
	listener  *commandListener

	coordinatorFailure atomic.Bool

	mu           sync.Mutex
	failureCause error
	teardownOnce sync.Once
	done         chan struct{}
}

// NewSupervisor builds a Supervisor for cfg against gw. The run's
// namespace is not touched until Start is called.
func NewSupervisor(gw coordinator.Gateway, cfg Config) *Supervisor {
	runRoot := "/" + cfg.RunID
	s := &Supervisor{
		gw:          gw,
		runID:       cfg.RunID,
		runRoot:     runRoot,
		worker:      cfg.Worker,
		finalize:    cfg.Finalizer,
		livePayload: cfg.LivePayload,
		logger:      log.WithRunID(cfg.RunID),
		publisher:   newStatePublisher(gw, runRoot),
		done:        make(chan struct{}),
	}
	s.listener = newCommandListener(gw, runRoot, cfg.Callback, s.onStopMessage, s.logger)
	s.worker.AddListener(s)
	return s
}

// Start creates the live node and the run's state/messages namespace
// (clearing any pre-existing children first), then starts the worker.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := coordinator.DeleteRecursive(ctx, s.gw, s.runRoot); err != nil {
		return err
	}
	if err := livenode.Create(ctx, s.gw, instancesPath(s.runID), s.livePayload); err != nil {
		return err
	}
	metrics.LiveNodesTotal.Inc()

	if _, err := s.gw.Create(ctx, s.runRoot, nil, coordinator.Persistent); err != nil && err != coordinator.ErrNodeExists {
		return err
	}
	if _, err := s.gw.Create(ctx, s.runRoot+"/messages", nil, coordinator.Persistent); err != nil && err != coordinator.ErrNodeExists {
		return err
	}
	initial, err := codec.EncodeStateNode(codec.StateNode{State: codec.StateStarting})
	if err != nil {
		return err
	}
	if _, err := s.gw.Create(ctx, s.runRoot+"/state", initial, coordinator.Persistent); err != nil && err != coordinator.ErrNodeExists {
		return err
	}

	return s.worker.Start(ctx)
}

// Stop forwards to the worker; the terminal transition handles namespace
// teardown and notification.
func (s *Supervisor) Stop(ctx context.Context) error {
	return s.worker.Stop(ctx)
}

// Done is closed once the supervised run has reached a terminal state.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// onStopMessage is invoked by the command listener when it dequeues a
// SYSTEM/STOP message. It blocks until the worker has reached a terminal
// state so that the listener only deletes the message node once the stop
// has actually taken effect.
func (s *Supervisor) onStopMessage() {
	_ = s.worker.Stop(context.Background())
	<-s.done
}

func instancesPath(runID string) string {
	return "/instances/" + runID
}

// --- Listener implementation, invoked by the hosted worker ---

func (s *Supervisor) Starting() {
	s.setStateMetric(codec.StateStarting)
	s.publish(codec.StateNode{State: codec.StateStarting})
}

func (s *Supervisor) Running() {
	s.setStateMetric(codec.StateRunning)
	if s.publish(codec.StateNode{State: codec.StateRunning}) {
		s.listener.start(context.Background())
	}
}

func (s *Supervisor) Stopping() {
	s.setStateMetric(codec.StateStopping)
	s.listener.stop()
	s.publish(codec.StateNode{State: codec.StateStopping})
}

// allStates enumerates the lifecycle states the LifecycleState gauge
// tracks per run, so setStateMetric can zero out every state but the
// current one.
var allStates = []codec.State{
	codec.StateStarting, codec.StateRunning, codec.StateStopping,
	codec.StateTerminated, codec.StateFailed,
}

func (s *Supervisor) setStateMetric(current codec.State) {
	for _, st := range allStates {
		v := 0.0
		if st == current {
			v = 1.0
		}
		metrics.LifecycleState.WithLabelValues(s.runID, string(st)).Set(v)
	}
}

func (s *Supervisor) Terminated(from codec.State) {
	s.listener.stop()
	s.teardown(codec.StateTerminated, nil)
}

func (s *Supervisor) Failed(from codec.State, cause error) {
	s.listener.stop()
	s.teardown(codec.StateFailed, cause)
}

// publish writes node to the state path. A failure latches
// coordinatorFailure and forces the worker down, reporting FAILED.
// Returns false when the publish failed (the caller should not proceed
// with whatever it was about to do next, e.g. arm the listener).
func (s *Supervisor) publish(node codec.StateNode) bool {
	if s.coordinatorFailure.Load() {
		return false
	}
	if err := s.publisher.publish(context.Background(), node); err != nil {
		s.logger.Error().Err(err).Str("state", string(node.State)).Msg("state publish failed, forcing shutdown")
		s.mu.Lock()
		s.failureCause = err
		s.mu.Unlock()
		s.coordinatorFailure.Store(true)
		go func() {
			_ = s.worker.Stop(context.Background())
			s.teardown(codec.StateFailed, err)
		}()
		return false
	}
	return true
}

// teardown runs the terminal branch once, no matter how many paths race
// into it (the worker's own terminal callback, a publish failure forcing
// the worker down, or both). The finalizer in particular must not run
// twice.
func (s *Supervisor) teardown(final codec.State, cause error) {
	s.teardownOnce.Do(func() {
		ctx := context.Background()

		// An unresolved coordinator write error always surfaces as FAILED,
		// even when the worker itself shut down cleanly afterwards.
		if s.coordinatorFailure.Load() && final != codec.StateFailed {
			s.mu.Lock()
			final, cause = codec.StateFailed, s.failureCause
			s.mu.Unlock()
		}
		s.setStateMetric(final)
		metrics.LiveNodesTotal.Dec()

		if !s.coordinatorFailure.Load() {
			if err := livenode.Remove(ctx, s.gw, instancesPath(s.runID)); err != nil {
				s.logger.Warn().Err(err).Msg("live node removal failed")
			}
			if err := coordinator.DeleteRecursive(ctx, s.gw, s.runRoot); err != nil {
				s.logger.Warn().Err(err).Msg("run subtree teardown failed")
			}
		}

		if s.finalize != nil {
			if err := s.finalize(ctx, final, cause); err != nil {
				s.logger.Warn().Err(err).Msg("finalizer failed")
			}
		}

		if final == codec.StateFailed {
			s.logger.Error().Err(cause).Msg("run failed")
		} else {
			s.logger.Info().Msg("run terminated")
		}

		close(s.done)
	})
}
