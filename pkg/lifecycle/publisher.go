package lifecycle

import (
	"context"
	"fmt"

	"github.com/cuemby/sentinel/pkg/codec"
	"github.com/cuemby/sentinel/pkg/coordinator"
)

// statePublisher writes the current lifecycle state to a run's state path
// on every transition. A write failure is returned to the caller, which
// latches it as a coordinatorFailure and forces the worker down.
type statePublisher struct {
	gw      coordinator.Gateway
	runRoot string
}

func newStatePublisher(gw coordinator.Gateway, runRoot string) *statePublisher {
	return &statePublisher{gw: gw, runRoot: runRoot}
}

func (p *statePublisher) publish(ctx context.Context, node codec.StateNode) error {
	data, err := codec.EncodeStateNode(node)
	if err != nil {
		return fmt.Errorf("lifecycle: encode state node: %w", err)
	}
	_, err = p.gw.SetData(ctx, p.runRoot+"/state", data, coordinator.AnyVersion)
	if err != nil {
		return fmt.Errorf("lifecycle: publish state %s: %w", node.State, err)
	}
	return nil
}
