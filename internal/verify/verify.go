// Package verify runs the post-scenario verification battery: a fixed set of
// independent checks against final cluster state and log history. Every check
// always runs; one check's failure (or panic) never stops the others, and the
// overall verdict is simply the conjunction of the individual results.
package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dreamware/gravecheck/internal/cluster"
	"github.com/dreamware/gravecheck/internal/control"
	"github.com/dreamware/gravecheck/internal/observer"
)

// Check names, in battery order.
const (
	CheckTombstoneRecords = "tombstone_records"
	CheckWorkerFiles      = "worker_files"
	CheckNoOrphanFiles    = "no_orphan_files"
	CheckIndexConsistency = "index_consistency"
	CheckAutoCleanup      = "auto_cleanup"
)

// CheckResult is one check's immutable outcome. Payload carries structured
// evidence, e.g. the orphan list or per-node file counts.
type CheckResult struct {
	Name    string         `json:"name"`
	Passed  bool           `json:"passed"`
	Detail  string         `json:"detail"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Aggregator runs the battery against a cluster.
type Aggregator struct {
	ctrl        control.Controller
	query       *cluster.Client
	markers     observer.Markers
	nodes       []string
	coordinator string
}

// New creates an aggregator over the given worker nodes. coordinator names
// the node whose logs hold the coordinator-side markers.
func New(ctrl control.Controller, query *cluster.Client, markers observer.Markers, nodes []string, coordinator string) *Aggregator {
	return &Aggregator{
		ctrl:        ctrl,
		query:       query,
		markers:     markers,
		nodes:       append([]string(nil), nodes...),
		coordinator: coordinator,
	}
}

// Run executes every check and returns exactly one result per check, in
// battery order, plus the overall conjunction. targets is the union of all
// scenario target files, used by the orphan check.
func (a *Aggregator) Run(ctx context.Context, targets []string) ([]CheckResult, bool) {
	checks := []struct {
		name string
		fn   func(ctx context.Context, targets []string) CheckResult
	}{
		{CheckTombstoneRecords, a.checkTombstoneRecords},
		{CheckWorkerFiles, a.checkWorkerFiles},
		{CheckNoOrphanFiles, a.checkNoOrphanFiles},
		{CheckIndexConsistency, a.checkIndexConsistency},
		{CheckAutoCleanup, a.checkAutoCleanup},
	}

	results := make([]CheckResult, 0, len(checks))
	all := true
	for _, c := range checks {
		res := runCheck(ctx, c.name, targets, c.fn)
		results = append(results, res)
		if !res.Passed {
			all = false
		}
	}
	return results, all
}

// ByName returns the results keyed by check name.
func ByName(results []CheckResult) map[string]CheckResult {
	m := make(map[string]CheckResult, len(results))
	for _, r := range results {
		m[r.Name] = r
	}
	return m
}

// runCheck executes one check, converting a panic into a failed result so a
// buggy check cannot take the battery down.
func runCheck(ctx context.Context, name string, targets []string, fn func(ctx context.Context, targets []string) CheckResult) (res CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			res = CheckResult{Name: name, Passed: false, Detail: fmt.Sprintf("check panicked: %v", r)}
		}
	}()
	res = fn(ctx, targets)
	res.Name = name
	return res
}

// checkTombstoneRecords verifies the coordinator logged at least one
// tombstone creation. The backend exposes no tombstone query API, so log
// markers are the only evidence available.
func (a *Aggregator) checkTombstoneRecords(ctx context.Context, _ []string) CheckResult {
	lines, err := a.ctrl.GrepLogs(ctx, a.coordinator, a.markers.TombstoneCreated)
	if err != nil {
		return CheckResult{Passed: false, Detail: fmt.Sprintf("read %s logs: %v", a.coordinator, err)}
	}
	cleanup, err := a.ctrl.GrepLogs(ctx, a.coordinator, a.markers.AutoCleanup)
	if err != nil {
		cleanup = nil // coordinator-side cleanup lines are informational
	}
	return CheckResult{
		Passed: len(lines) > 0,
		Detail: fmt.Sprintf("%d tombstone creations, %d cleanup triggers in %s logs", len(lines), len(cleanup), a.coordinator),
		Payload: map[string]any{
			"tombstone_count":    len(lines),
			"auto_cleanup_count": len(cleanup),
		},
	}
}

// checkWorkerFiles verifies every node still holds at least one file. This is
// a non-degenerate-state sanity check, not a target-file check.
func (a *Aggregator) checkWorkerFiles(ctx context.Context, _ []string) CheckResult {
	counts := make(map[string]any, len(a.nodes))
	passed := true
	var problems []string
	for _, node := range a.nodes {
		files, err := a.ctrl.ListFiles(ctx, node)
		if err != nil {
			passed = false
			counts[node] = fmt.Sprintf("error: %v", err)
			problems = append(problems, fmt.Sprintf("%s unlistable", node))
			continue
		}
		counts[node] = len(files)
		if len(files) == 0 {
			passed = false
			problems = append(problems, fmt.Sprintf("%s empty", node))
		}
	}
	detail := "every node holds files"
	if len(problems) > 0 {
		detail = strings.Join(problems, "; ")
	}
	return CheckResult{Passed: passed, Detail: detail, Payload: map[string]any{"file_counts": counts}}
}

// checkNoOrphanFiles verifies no target file survived anywhere.
func (a *Aggregator) checkNoOrphanFiles(ctx context.Context, targets []string) CheckResult {
	wanted := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		wanted[t] = struct{}{}
	}

	var orphans []string
	for _, node := range a.nodes {
		files, err := a.ctrl.ListFiles(ctx, node)
		if err != nil {
			return CheckResult{Passed: false, Detail: fmt.Sprintf("list %s: %v", node, err)}
		}
		for _, f := range files {
			if _, hit := wanted[f]; hit {
				orphans = append(orphans, node+"/"+f)
			}
		}
	}
	sort.Strings(orphans)

	res := CheckResult{
		Passed: len(orphans) == 0,
		Detail: fmt.Sprintf("%d of %d target files remain on some node", len(orphans), len(targets)),
	}
	if len(orphans) > 0 {
		res.Payload = map[string]any{"orphans": orphans}
	}
	return res
}

// checkIndexConsistency sanity-checks the coordinator's index against worker
// storage: the index must be non-empty and, since files are replicated, the
// workers together must hold at least as many files as the index records.
// This is a loose bound, not a replication proof.
func (a *Aggregator) checkIndexConsistency(ctx context.Context, _ []string) CheckResult {
	stats, err := a.query.Stats(ctx)
	if err != nil {
		return CheckResult{Passed: false, Detail: fmt.Sprintf("stats: %v", err)}
	}

	workerTotal := 0
	for _, node := range a.nodes {
		files, err := a.ctrl.ListFiles(ctx, node)
		if err != nil {
			return CheckResult{Passed: false, Detail: fmt.Sprintf("list %s: %v", node, err)}
		}
		workerTotal += len(files)
	}

	passed := stats.TotalFiles > 0 && workerTotal >= stats.TotalFiles
	return CheckResult{
		Passed: passed,
		Detail: fmt.Sprintf("index records %d files, workers hold %d replicas", stats.TotalFiles, workerTotal),
		Payload: map[string]any{
			"index_files":  stats.TotalFiles,
			"worker_files": workerTotal,
		},
	}
}

// checkAutoCleanup verifies at least one node's logs show the auto-cleanup
// marker, i.e. tombstone reconciliation actually fired somewhere.
func (a *Aggregator) checkAutoCleanup(ctx context.Context, _ []string) CheckResult {
	triggered := make([]string, 0, len(a.nodes))
	for _, node := range a.nodes {
		lines, err := a.ctrl.GrepLogs(ctx, node, a.markers.AutoCleanup)
		if err != nil {
			continue // an unreadable node just contributes no evidence
		}
		if len(lines) > 0 {
			triggered = append(triggered, node)
		}
	}
	sort.Strings(triggered)
	return CheckResult{
		Passed:  len(triggered) > 0,
		Detail:  fmt.Sprintf("auto-cleanup observed on %d node(s)", len(triggered)),
		Payload: map[string]any{"nodes": triggered},
	}
}
