package coordinator

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/raft"
)

// treeFSM implements the Raft finite state machine for the coordinator's
// node tree. It applies committed log entries to the underlying treeStore;
// reads never go through the log.
type treeFSM struct {
	store *treeStore
}

func newTreeFSM(store *treeStore) *treeFSM {
	return &treeFSM{store: store}
}

type opKind string

const (
	opCreate  opKind = "create"
	opDelete  opKind = "delete"
	opSetData opKind = "set_data"
)

type command struct {
	Op      opKind `json:"op"`
	Path    string `json:"path"`
	Data    []byte `json:"data,omitempty"`
	Mode    Mode   `json:"mode,omitempty"`
	Version int32  `json:"version,omitempty"`
}

// applyResult is returned from Apply through raft's future and carries
// either an error or the operation's result value.
type applyResult struct {
	path    string
	version int32
	err     error
}

func (f *treeFSM) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return applyResult{err: fmt.Errorf("unmarshal command: %w", err)}
	}

	switch cmd.Op {
	case opCreate:
		finalPath, version, err := f.store.create(cmd.Path, cmd.Data, cmd.Mode)
		return applyResult{path: finalPath, version: version, err: err}

	case opDelete:
		err := f.store.delete(cmd.Path, cmd.Version)
		return applyResult{path: cmd.Path, err: err}

	case opSetData:
		version, err := f.store.setData(cmd.Path, cmd.Data, cmd.Version)
		return applyResult{path: cmd.Path, version: version, err: err}

	default:
		return applyResult{err: fmt.Errorf("unknown fsm op %q", cmd.Op)}
	}
}

// Snapshot and Restore satisfy raft.FSM. The node tree is already
// durable in BoltDB outside the Raft log, so a snapshot only needs to
// capture that the FSM has no additional in-memory state to persist.
func (f *treeFSM) Snapshot() (raft.FSMSnapshot, error) {
	return emptySnapshot{}, nil
}

func (f *treeFSM) Restore(rc io.ReadCloser) error {
	return rc.Close()
}

type emptySnapshot struct{}

func (emptySnapshot) Persist(sink raft.SnapshotSink) error {
	return sink.Close()
}

func (emptySnapshot) Release() {}
