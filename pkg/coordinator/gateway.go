package coordinator

import "context"

// Mode is the creation mode of a coordination-store node.
type Mode int

const (
	// Persistent nodes survive their creating session.
	Persistent Mode = iota
	// Ephemeral nodes are removed when the owning session ends.
	Ephemeral
	// EphemeralSequential nodes are ephemeral and suffixed with a
	// monotonically increasing, zero-padded sequence number unique among
	// the siblings of their parent.
	EphemeralSequential
)

// AnyVersion is passed to Delete/SetData to skip the version check.
const AnyVersion int32 = -1

// WatchEventType classifies a watch firing.
type WatchEventType int

const (
	NodeChildrenChanged WatchEventType = iota
	NodeDataChanged
	NodeCreated
	NodeDeleted
)

func (t WatchEventType) String() string {
	switch t {
	case NodeChildrenChanged:
		return "NodeChildrenChanged"
	case NodeDataChanged:
		return "NodeDataChanged"
	case NodeCreated:
		return "NodeCreated"
	case NodeDeleted:
		return "NodeDeleted"
	default:
		return "Unknown"
	}
}

// WatchEvent is delivered once on a watch channel, after which the channel
// is closed. A caller that wants to keep observing a path must re-arm by
// issuing another watched read.
type WatchEvent struct {
	Path string
	Type WatchEventType
}

// SessionEventType classifies a session-state transition.
type SessionEventType int

const (
	SyncConnected SessionEventType = iota
	Expired
	Disconnected
)

func (t SessionEventType) String() string {
	switch t {
	case SyncConnected:
		return "SyncConnected"
	case Expired:
		return "Expired"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// SessionEvent is delivered on a Gateway's session-event stream whenever
// its connection state changes.
type SessionEvent struct {
	Type SessionEventType
}

// Gateway is the thin contract sentinel requires of a coordination store:
// CRUD plus watches on a hierarchical namespace, and a session-level
// event stream. Every method that mutates state commits before returning
// (there is no separate completion callback in this Go binding — see
// DESIGN.md for why the embedded implementation resolves synchronously
// rather than through a callback registration API).
type Gateway interface {
	// Create makes path with data under the given mode, creating any
	// missing persistent parents. It returns the final path (meaningful
	// for EphemeralSequential, whose returned path carries the assigned
	// sequence suffix).
	Create(ctx context.Context, path string, data []byte, mode Mode) (string, error)

	// Delete removes path. If version is not AnyVersion, the delete only
	// succeeds if the node's current version matches.
	Delete(ctx context.Context, path string, version int32) error

	// GetData returns a node's current content and version.
	GetData(ctx context.Context, path string) ([]byte, int32, error)

	// SetData overwrites a node's content if version matches (or is
	// AnyVersion) and returns the new version.
	SetData(ctx context.Context, path string, data []byte, version int32) (int32, error)

	// GetChildren lists path's immediate children in ascending lexical
	// order. When watch is true, the returned channel receives exactly one
	// WatchEvent the next time path's children change (NodeChildrenChanged),
	// path itself is deleted (NodeDeleted) or path's data is set
	// (NodeDataChanged), whichever comes first, and is closed after. When
	// watch is false the channel is nil.
	GetChildren(ctx context.Context, path string, watch bool) (children []string, version int32, watchCh <-chan WatchEvent, err error)

	// SessionEvents returns the stream of session-state transitions for
	// this Gateway's connection.
	SessionEvents() <-chan SessionEvent

	// Close releases this Gateway's session, removing any ephemeral nodes
	// it owns.
	Close() error
}
