// Package livenode creates and removes the ephemeral node that announces a
// supervised worker is alive to anything watching the coordination store.
package livenode

import (
	"context"
	"fmt"

	"github.com/cuemby/sentinel/pkg/codec"
	"github.com/cuemby/sentinel/pkg/coordinator"
)

// Create writes an ephemeral live node at path, wrapping the
// caller-supplied payload (which may be nil) in the live-node envelope.
// It is idempotent: if the node already exists (a previous session's node
// has not yet been reaped) it is treated as success, matching the "owned
// ephemeral node already exists" allowance.
func Create(ctx context.Context, gw coordinator.Gateway, path string, payload interface{}) error {
	data, err := codec.EncodeLiveNode(payload)
	if err != nil {
		return fmt.Errorf("livenode: encode: %w", err)
	}

	_, err = gw.Create(ctx, path, data, coordinator.Ephemeral)
	return coordinator.IgnoreErr(err, coordinator.ErrNodeExists)
}

// Remove deletes the live node at path, if present. A worker that reaches
// a terminal state removes its own live node rather than waiting for the
// session to expire, so observers see the transition immediately instead
// of after a lease timeout.
func Remove(ctx context.Context, gw coordinator.Gateway, path string) error {
	err := gw.Delete(ctx, path, coordinator.AnyVersion)
	return coordinator.IgnoreErr(err, coordinator.ErrNoNode)
}
