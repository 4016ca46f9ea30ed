// Package lifecycle mirrors a locally hosted worker's lifecycle onto the
// coordination store, listens for inbound command messages, and tears its
// namespace down on exit.
package lifecycle

import (
	"context"

	"github.com/cuemby/sentinel/pkg/codec"
)

// Listener receives the transitions a Service makes through its
// lifecycle. A Supervisor installs itself as a worker's Listener.
type Listener interface {
	Starting()
	Running()
	Stopping()
	Terminated(from codec.State)
	Failed(from codec.State, cause error)
}

// Service is the contract a hosted worker must satisfy to be supervised.
// Start and Stop are expected to return quickly; the worker reports its
// actual progress through the Listener installed via AddListener.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	AddListener(l Listener)
}

// MessageCallback is the optional capability a Service may offer to
// receive USER messages delivered from the coordinator. The returned
// error only affects logging; message-node deletion happens regardless.
type MessageCallback interface {
	OnReceived(ctx context.Context, id string, msg codec.Message) error
}

// Finalizer runs exactly once on either terminal branch of a supervised
// run. Its error is logged but never alters the reported state.
type Finalizer func(ctx context.Context, final codec.State, cause error) error
