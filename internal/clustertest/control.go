package clustertest

import (
	"context"
	"fmt"
	"strings"
)

// Stop marks the node down. Its files and logs survive, as a stopped
// container's do.
func (fc *FakeCluster) Stop(_ context.Context, nodeID string) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if err := fc.stopErr[nodeID]; err != nil {
		return err
	}
	n, err := fc.node(nodeID)
	if err != nil {
		return err
	}
	n.running = false
	return nil
}

// Start marks the node up and, when reconciliation is enabled, removes any
// of its files that were tombstoned while it was down, logging the cleanup
// marker line the real backend would.
func (fc *FakeCluster) Start(_ context.Context, nodeID string) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if err := fc.startErr[nodeID]; err != nil {
		return err
	}
	n, err := fc.node(nodeID)
	if err != nil {
		return err
	}
	n.running = true
	if !fc.cleanupOnStart {
		return nil
	}
	for file := range n.files {
		if _, dead := fc.tombstones[file]; dead {
			delete(n.files, file)
			fc.logf(nodeID, "tombstone auto-cleanup removed %s", file)
		}
	}
	return nil
}

// Logs returns the node's log text. Works for stopped nodes too.
func (fc *FakeCluster) Logs(_ context.Context, nodeID string) (string, error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	n, err := fc.node(nodeID)
	if err != nil {
		return "", err
	}
	if len(n.logs) == 0 {
		return "", nil
	}
	return strings.Join(n.logs, "\n") + "\n", nil
}

// GrepLogs returns the node's log lines containing pattern.
func (fc *FakeCluster) GrepLogs(ctx context.Context, nodeID, pattern string) ([]string, error) {
	text, err := fc.Logs(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	var matched []string
	for _, line := range strings.Split(text, "\n") {
		if line != "" && strings.Contains(line, pattern) {
			matched = append(matched, line)
		}
	}
	return matched, nil
}

// ListFiles returns the node's stored files, or an error if the node is
// down, matching a docker exec against a stopped container.
func (fc *FakeCluster) ListFiles(_ context.Context, nodeID string) ([]string, error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	n, err := fc.node(nodeID)
	if err != nil {
		return nil, err
	}
	if !n.running {
		return nil, fmt.Errorf("node %s is down", nodeID)
	}
	return sortedKeys(n.files), nil
}
