package lifecycle

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cuemby/sentinel/pkg/codec"
	"github.com/cuemby/sentinel/pkg/coordinator"
	"github.com/cuemby/sentinel/pkg/metrics"
	"github.com/rs/zerolog"
)

// commandListener watches a run's messages path, orders command nodes by
// name, and dispatches each to the worker's message callback (or the
// supervisor's stop hook for SYSTEM/STOP) on a dedicated single-thread
// executor, so user message handling and STOP handling are mutually
// exclusive and ordered.
type commandListener struct {
	gw       coordinator.Gateway
	runRoot  string
	callback MessageCallback
	onStop   func()
	logger   zerolog.Logger

	running  atomic.Bool
	workCh   chan job
	stopOnce sync.Once
	shutdown chan struct{}
}

type job struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

func newCommandListener(gw coordinator.Gateway, runRoot string, callback MessageCallback, onStop func(), logger zerolog.Logger) *commandListener {
	return &commandListener{
		gw:       gw,
		runRoot:  runRoot,
		callback: callback,
		onStop:   onStop,
		logger:   logger,
		workCh:   make(chan job, 16),
		shutdown: make(chan struct{}),
	}
}

func (c *commandListener) messagesPath() string {
	return c.runRoot + "/messages"
}

// start arms the watcher and launches the executor. Only valid to call
// once, after the worker has reported RUNNING.
func (c *commandListener) start(ctx context.Context) {
	c.running.Store(true)
	go c.runExecutor()
	go c.watchLoop(ctx)
}

// stop disarms the listener: the watch loop and executor exit at their
// next opportunity. Idempotent; racing callers (a STOP message and the
// worker's own terminal transition) may both get here.
func (c *commandListener) stop() {
	c.running.Store(false)
	c.stopOnce.Do(func() { close(c.shutdown) })
}

func (c *commandListener) runExecutor() {
	for {
		select {
		case j := <-c.workCh:
			j.fn(context.Background())
			close(j.done)
		case <-c.shutdown:
			return
		}
	}
}

func (c *commandListener) submit(fn func(ctx context.Context)) {
	done := make(chan struct{})
	select {
	case c.workCh <- job{fn: fn, done: done}:
	case <-c.shutdown:
		return
	}
	select {
	case <-done:
	case <-c.shutdown:
	}
}

func (c *commandListener) watchLoop(ctx context.Context) {
	for c.running.Load() {
		children, _, watchCh, err := c.gw.GetChildren(ctx, c.messagesPath(), true)
		if err != nil {
			c.logger.Error().Err(err).Msg("command listener: getChildren failed, not re-arming")
			return
		}

		sort.Strings(children)
		for _, id := range children {
			if !c.running.Load() {
				return
			}
			c.processOne(ctx, id)
		}

		if !c.running.Load() {
			return
		}

		select {
		case evt, ok := <-watchCh:
			if !ok {
				return
			}
			if evt.Type != coordinator.NodeChildrenChanged {
				c.logger.Warn().Str("event", evt.Type.String()).Msg("command listener: unexpected watch event, not re-arming")
				return
			}
			// loop again: re-arm via another watched GetChildren call.
		case <-c.shutdown:
			return
		}
	}
}

func (c *commandListener) processOne(ctx context.Context, id string) {
	path := c.messagesPath() + "/" + id
	data, version, err := c.gw.GetData(ctx, path)
	if err != nil {
		c.logger.Warn().Err(err).Str("message_id", id).Msg("command listener: read failed, skipping")
		return
	}

	msg := codec.DecodeMessage(data)
	if msg == nil {
		c.logger.Warn().Str("message_id", id).Msg("command listener: malformed message, deleting")
		metrics.MessagesProcessedTotal.WithLabelValues("malformed").Inc()
		c.deleteMessage(ctx, path, version)
		return
	}

	if msg.IsStop() {
		c.submit(func(ctx context.Context) {
			c.running.Store(false)
			// onStop blocks until the worker has reached a terminal
			// state; only then is the message node deleted, at the
			// version it was read at. The teardown of the run subtree
			// usually removes it first, which deleteMessage tolerates.
			c.onStop()
			metrics.MessagesProcessedTotal.WithLabelValues("stop").Inc()
			c.deleteMessage(ctx, path, version)
		})
		return
	}

	c.submit(func(ctx context.Context) {
		outcome := "delivered"
		if c.callback != nil {
			if err := c.callback.OnReceived(ctx, id, *msg); err != nil {
				c.logger.Warn().Err(err).Str("message_id", id).Msg("command listener: callback failed")
				outcome = "callback_failed"
			}
		} else {
			outcome = "discarded"
		}
		metrics.MessagesProcessedTotal.WithLabelValues(outcome).Inc()
		c.deleteMessage(ctx, path, version)
	})
}

func (c *commandListener) deleteMessage(ctx context.Context, path string, version int32) {
	err := coordinator.IgnoreErr(c.gw.Delete(ctx, path, version), coordinator.ErrNoNode)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("command listener: delete failed")
	}
}
