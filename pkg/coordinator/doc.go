/*
Package coordinator defines the contract sentinel requires of a
hierarchical, session-oriented coordination store — create/delete/getData/
setData/getChildren with watches and a session-state event stream — and
ships one concrete implementation of that
contract for running the lifecycle supervisor and discovery registry
in-process and under test. Every operation completes before it returns;
the contract has no asynchronous completion callbacks.

# Architecture

The embedded implementation keeps its state the way a single-binary
control plane does: a single-node Raft group applies mutating commands to
a node tree that is mirrored into BoltDB, while reads are served directly
from the tree without going through the Raft log.

	┌────────────────── EmbeddedGateway (one per session) ─────────────────┐
	│                                                                        │
	│   Create/Delete/SetData ──► raft.Apply(cmd) ──► fsm.Apply ──► tree    │
	│   GetData/GetChildren   ──────────────────────────────────────► tree  │
	│   GetChildren(watch=true) registers a one-shot watcher on the path    │
	│                                                                        │
	│   sessionManager tracks which ephemeral paths this session owns and   │
	│   leases them against a heartbeat; a lapsed lease (or an explicit     │
	│   SimulateSessionLoss call) deletes them and emits an Expired event   │
	│   followed by SyncConnected once the session reconnects.              │
	└────────────────────────────────────────────────────────────────────────┘

The node tree itself (package-private tree+store) is shared by every
EmbeddedGateway opened against the same data directory, the way every
connection to a real ZooKeeper ensemble shares the same tree; only session
bookkeeping (which ephemeral nodes a session owns, its lease deadline) is
per-Gateway.

This embedded backend is a reference and test implementation. Production
deployments are expected to satisfy the Gateway interface against a real
coordination service; the supervisor and registry packages depend only on
the interface in this package, never on EmbeddedGateway's internals.
*/
package coordinator
