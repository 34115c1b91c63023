// Package control provides the node-control port: starting and stopping
// storage nodes and inspecting their logs and on-disk file listings. The
// orchestrator only ever sees the Controller interface; the production
// backend drives Docker containers, and tests substitute an in-memory fake.
package control

import "context"

// NodeState is the harness's view of a node's liveness. It changes only
// through Controller calls.
type NodeState string

const (
	StateUp      NodeState = "up"
	StateDown    NodeState = "down"
	StateUnknown NodeState = "unknown"
)

// Node maps a logical node ID to its container and storage directory.
type Node struct {
	ID        string // logical name, e.g. "worker2"
	Container string // container name, e.g. "movie-dist-kv-worker2-1"
	DataDir   string // storage directory inside the container
}

// Controller manages storage nodes. Stop and Start must not return until the
// backend confirms the node actually reached the requested state; a control
// call that fails is fatal to the scenario that issued it, so "accepted but
// pending" is not good enough.
type Controller interface {
	// Stop halts the node and blocks until it is down.
	Stop(ctx context.Context, nodeID string) error

	// Start launches the node and blocks until it is running.
	Start(ctx context.Context, nodeID string) error

	// Logs returns the node's full log text.
	Logs(ctx context.Context, nodeID string) (string, error)

	// GrepLogs returns the node's log lines containing pattern.
	GrepLogs(ctx context.Context, nodeID, pattern string) ([]string, error)

	// ListFiles returns the file names present in the node's storage
	// directory. Fails if the node is not running.
	ListFiles(ctx context.Context, nodeID string) ([]string, error)
}
