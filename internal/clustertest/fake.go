// Package clustertest provides an in-memory fake of the storage cluster for
// harness tests: a control-port implementation whose nodes can be stopped,
// started, and inspected, plus an HTTP handler that mimics the coordinator
// API (delete, stats, health, upload, metrics) against the same state.
//
// The fake models just enough of the deferred-deletion protocol to exercise
// the harness: deleting a file removes the replicas on running nodes, records
// a tombstone for the rest, and emits the same log markers the real backend
// does; restarting a node reconciles its leftovers against the tombstone set.
package clustertest

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// fakeNode is one storage node's state.
type fakeNode struct {
	running bool
	files   map[string]struct{}
	logs    []string
}

// FakeCluster holds the whole fake cluster's state. All methods are
// thread-safe; the coordinator handler and the control port mutate the same
// state under one mutex.
type FakeCluster struct {
	mu          sync.RWMutex
	secret      string
	coordinator string
	workerIDs   []string
	nodes       map[string]*fakeNode
	index       map[string][]string // live file -> replica node IDs
	tombstones  map[string]struct{}

	cleanupOnStart bool
	stopErr        map[string]error
	startErr       map[string]error
}

// New creates a fake cluster with the given coordinator node ID and worker
// node IDs. All nodes start running with empty storage. Tombstone
// reconciliation on restart is enabled by default.
func New(secret, coordinator string, workerIDs ...string) *FakeCluster {
	fc := &FakeCluster{
		secret:         secret,
		coordinator:    coordinator,
		workerIDs:      append([]string(nil), workerIDs...),
		nodes:          make(map[string]*fakeNode),
		index:          make(map[string][]string),
		tombstones:     make(map[string]struct{}),
		cleanupOnStart: true,
		stopErr:        make(map[string]error),
		startErr:       make(map[string]error),
	}
	fc.nodes[coordinator] = &fakeNode{running: true, files: make(map[string]struct{})}
	for _, id := range workerIDs {
		fc.nodes[id] = &fakeNode{running: true, files: make(map[string]struct{})}
	}
	return fc
}

// SetCleanupOnStart controls whether restarting a node removes its
// tombstoned leftovers. Disabling it simulates a backend whose reconciliation
// is broken, which convergence polling should then time out on.
func (fc *FakeCluster) SetCleanupOnStart(v bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.cleanupOnStart = v
}

// FailStop makes Stop(nodeID) return err (nil clears the injection).
func (fc *FakeCluster) FailStop(nodeID string, err error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.stopErr[nodeID] = err
}

// FailStart makes Start(nodeID) return err (nil clears the injection).
func (fc *FakeCluster) FailStart(nodeID string, err error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.startErr[nodeID] = err
}

// Seed places a file on the given replica nodes and records it in the index.
func (fc *FakeCluster) Seed(file string, replicas ...string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.seedLocked(file, replicas)
}

func (fc *FakeCluster) seedLocked(file string, replicas []string) {
	for _, id := range replicas {
		if n, ok := fc.nodes[id]; ok {
			n.files[file] = struct{}{}
		}
	}
	fc.index[file] = append([]string(nil), replicas...)
}

// SeedReplicated distributes files across the workers round-robin with the
// given replication factor.
func (fc *FakeCluster) SeedReplicated(files []string, factor int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for i, file := range files {
		replicas := make([]string, 0, factor)
		for r := 0; r < factor && r < len(fc.workerIDs); r++ {
			replicas = append(replicas, fc.workerIDs[(i+r)%len(fc.workerIDs)])
		}
		fc.seedLocked(file, replicas)
	}
}

// Running reports whether the node is up.
func (fc *FakeCluster) Running(nodeID string) bool {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	n, ok := fc.nodes[nodeID]
	return ok && n.running
}

// Files returns a sorted copy of the node's stored file names.
func (fc *FakeCluster) Files(nodeID string) []string {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	n, ok := fc.nodes[nodeID]
	if !ok {
		return nil
	}
	return sortedKeys(n.files)
}

// RemoveFile deletes a file from one node's storage directly, bypassing the
// delete protocol. For tests that script storage changes by hand.
func (fc *FakeCluster) RemoveFile(nodeID, file string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if n, ok := fc.nodes[nodeID]; ok {
		delete(n.files, file)
	}
}

// AppendLog adds a raw line to a node's log, for tests that need custom log
// content.
func (fc *FakeCluster) AppendLog(nodeID, line string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if n, ok := fc.nodes[nodeID]; ok {
		n.logs = append(n.logs, line)
	}
}

// Tombstoned reports whether a tombstone exists for the file.
func (fc *FakeCluster) Tombstoned(file string) bool {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	_, ok := fc.tombstones[file]
	return ok
}

func (fc *FakeCluster) logf(nodeID, format string, args ...any) {
	if n, ok := fc.nodes[nodeID]; ok {
		n.logs = append(n.logs, fmt.Sprintf(format, args...))
	}
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (fc *FakeCluster) node(nodeID string) (*fakeNode, error) {
	n, ok := fc.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("unknown node %q", nodeID)
	}
	return n, nil
}

var _ http.Handler = (*FakeCluster)(nil)
