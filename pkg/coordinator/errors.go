package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNoNode is returned when an operation targets a path that does not
	// exist.
	ErrNoNode = errors.New("coordinator: no such node")
	// ErrNodeExists is returned by Create when the path is already taken.
	ErrNodeExists = errors.New("coordinator: node already exists")
	// ErrBadVersion is returned by Delete/SetData when a version check
	// fails.
	ErrBadVersion = errors.New("coordinator: bad version")
	// ErrSessionExpired reports an operation attempted on a Gateway whose
	// session has expired and not yet reconnected. EmbeddedGateway never
	// returns it: its operations proceed against the shared tree while a
	// session is expired.
	ErrSessionExpired = errors.New("coordinator: session expired")
	// ErrClosed reports an operation attempted on a closed Gateway.
	// EmbeddedGateway never returns it: its operations still reach the
	// shared tree after Close.
	ErrClosed = errors.New("coordinator: gateway closed")
)

// IgnoreErr returns nil if err wraps target, and err unchanged otherwise.
// Used throughout the lifecycle and discovery packages to treat an
// idempotent failure (no-such-node on a delete, already-exists on a live
// node create) as success.
func IgnoreErr(err, target error) error {
	if errors.Is(err, target) {
		return nil
	}
	return err
}

// DeleteRecursive removes path and everything beneath it, deepest first,
// ignoring ErrNoNode on every delete. It is used to tear down a run's
// namespace on clean or failed exit.
func DeleteRecursive(ctx context.Context, gw Gateway, path string) error {
	children, _, _, err := gw.GetChildren(ctx, path, false)
	if err != nil {
		return IgnoreErr(err, ErrNoNode)
	}

	// Deterministic order makes failures reproducible in tests; it has no
	// correctness requirement otherwise.
	sort.Strings(children)
	for _, child := range children {
		if err := DeleteRecursive(ctx, gw, joinPath(path, child)); err != nil {
			return fmt.Errorf("delete recursive %s: %w", joinPath(path, child), err)
		}
	}

	return IgnoreErr(gw.Delete(ctx, path, AnyVersion), ErrNoNode)
}
