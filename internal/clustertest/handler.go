package clustertest

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ServeHTTP implements the coordinator's HTTP API against the fake state.
func (fc *FakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health":
		w.WriteHeader(http.StatusOK)
	case "/stats":
		fc.handleStats(w)
	case "/delete":
		fc.handleDelete(w, r)
	case "/upload":
		fc.handleUpload(w, r)
	case "/metrics":
		fc.handleMetrics(w)
	default:
		http.NotFound(w, r)
	}
}

func (fc *FakeCluster) handleStats(w http.ResponseWriter) {
	fc.mu.RLock()
	active := 0
	for _, id := range fc.workerIDs {
		if fc.nodes[id].running {
			active++
		}
	}
	total := len(fc.index)
	fc.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"total_files":  total,
		"active_nodes": active,
	})
}

// handleDelete mimics the backend's tombstone protocol: replicas on running
// nodes are removed synchronously, a tombstone is always recorded, and the
// coordinator logs a partial-failure marker when some replica was
// unreachable. The call fails outright (500) only when no replica could be
// deleted.
func (fc *FakeCluster) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if r.URL.Query().Get("secret") != fc.secret {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	replicas, ok := fc.index[name]
	if !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	deleted, unreachable := 0, 0
	for _, id := range replicas {
		n := fc.nodes[id]
		if n != nil && n.running {
			delete(n.files, name)
			deleted++
		} else {
			unreachable++
		}
	}

	delete(fc.index, name)
	fc.tombstones[name] = struct{}{}
	fc.logf(fc.coordinator, "tombstone created for %s", name)

	if unreachable > 0 {
		fc.logf(fc.coordinator, "partial delete failure for %s (%d replicas unreachable)", name, unreachable)
	}
	if deleted == 0 {
		http.Error(w, fmt.Sprintf("no live replica for %s", name), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "deleted %s (%d replicas, %d deferred)\n", name, deleted, unreachable)
}

func (fc *FakeCluster) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "bad multipart", http.StatusBadRequest)
		return
	}
	if r.FormValue("secret") != fc.secret {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	_, hdr, err := r.FormFile("movie")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	// Two replicas round-robin by current index size, like the backend.
	replicas := make([]string, 0, 2)
	for i := 0; i < 2 && i < len(fc.workerIDs); i++ {
		replicas = append(replicas, fc.workerIDs[(len(fc.index)+i)%len(fc.workerIDs)])
	}
	fc.seedLocked(hdr.Filename, replicas)
	fmt.Fprintf(w, "uploaded %s\n", hdr.Filename)
}

func (fc *FakeCluster) handleMetrics(w http.ResponseWriter) {
	fc.mu.RLock()
	active := 0
	for _, id := range fc.workerIDs {
		if fc.nodes[id].running {
			active++
		}
	}
	total := len(fc.index)
	fc.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, `# HELP mdfs_active_nodes Number of active worker nodes
# TYPE mdfs_active_nodes gauge
mdfs_active_nodes %d
# HELP mdfs_total_files Total number of stored files
# TYPE mdfs_total_files gauge
mdfs_total_files %d
`, active, total)
}
