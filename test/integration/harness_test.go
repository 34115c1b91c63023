// Package integration runs the whole harness pipeline end to end against an
// in-memory cluster: preflight, both fault scenarios, the verification
// battery, and report generation.
package integration

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/gravecheck/internal/cluster"
	"github.com/dreamware/gravecheck/internal/clustertest"
	"github.com/dreamware/gravecheck/internal/observer"
	"github.com/dreamware/gravecheck/internal/poller"
	"github.com/dreamware/gravecheck/internal/report"
	"github.com/dreamware/gravecheck/internal/scenario"
	"github.com/dreamware/gravecheck/internal/verify"
)

const secret = "admin888"

var workers = []string{"worker1", "worker2", "worker3"}

func quiet(format string, args ...any) {}

// pipeline bundles everything the harness binary wires together.
type pipeline struct {
	fc    *clustertest.FakeCluster
	query *cluster.Client
	orch  *scenario.Orchestrator
	agg   *verify.Aggregator
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	fc := clustertest.New(secret, "master", workers...)
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)

	query := cluster.NewClient(srv.URL, secret)
	scanner := observer.NewScanner(fc, observer.DefaultMarkers())
	p := poller.New(fc, scanner, 10*time.Millisecond)
	p.SetLogf(quiet)

	opts := scenario.Options{
		DeletePause: time.Millisecond,
		StopSettle:  time.Millisecond,
		StartSettle: time.Millisecond,
		PollTimeout: 500 * time.Millisecond,
	}
	orch := scenario.New(fc, query, scanner, p, workers, "master", opts)
	orch.SetLogf(quiet)

	agg := verify.New(fc, query, observer.DefaultMarkers(), workers, "master")
	return &pipeline{fc: fc, query: query, orch: orch, agg: agg}
}

func TestFullRun(t *testing.T) {
	pl := newPipeline(t)
	ctx := context.Background()

	// Seed twenty test files plus some bystanders that must survive.
	all := scenario.TargetFiles("test_movie_%04d.mp4", 0, 20)
	pl.fc.SeedReplicated(all, 2)
	pl.fc.SeedReplicated([]string{"keeper_a.mp4", "keeper_b.mp4"}, 2)

	require.NoError(t, scenario.Preflight(ctx, pl.query, 1, 5, quiet))

	defs := []scenario.Definition{
		scenario.SingleNodeRestart("worker1", all[:10]),
		scenario.PartialDeleteFailure([]string{"worker1", "worker2"}, all[10:]),
	}

	var results []*scenario.Result
	for _, def := range defs {
		res := pl.orch.Run(ctx, def)
		require.Truef(t, res.Passed(), "scenario %s failed: %s", def.Name, res.FailureReason)
		results = append(results, res)
	}

	// Second scenario must actually have exercised the degraded path.
	degraded := 0
	for _, out := range results[1].Outcomes {
		if !out.OK() {
			degraded++
		}
	}
	assert.Positive(t, degraded, "two nodes down should leave some files with no live replica")
	assert.True(t, results[1].PartialFailureDetected)

	checks, allPassed := pl.agg.Run(ctx, all)
	require.Len(t, checks, 5)
	assert.True(t, allPassed)

	rep := report.New("run_e2e", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), results, checks, false)
	assert.True(t, rep.AllPassed)

	md := rep.Markdown()
	assert.Contains(t, md, "**Overall result**: PASSED")
	assert.Contains(t, md, "## Scenario: delete-then-restart")
	assert.Contains(t, md, "## Scenario: partial-delete-failure")
	assert.Equal(t, md, rep.Markdown(), "rendering must be reproducible")

	// Bystanders survived the whole run.
	for _, node := range workers {
		files, err := pl.fc.ListFiles(ctx, node)
		require.NoError(t, err)
		for _, f := range files {
			assert.False(t, strings.HasPrefix(f, "test_movie_"), "target %s left on %s", f, node)
		}
	}
	stats, err := pl.query.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 3, stats.ActiveNodes)
}

func TestFullRunSurfacesBrokenReconciliation(t *testing.T) {
	pl := newPipeline(t)
	ctx := context.Background()

	targets := scenario.TargetFiles("test_movie_%04d.mp4", 0, 10)
	pl.fc.SeedReplicated(targets, 2)
	pl.fc.SetCleanupOnStart(false)

	res := pl.orch.Run(ctx, scenario.SingleNodeRestart("worker1", targets))
	require.False(t, res.Passed())
	assert.NotEmpty(t, res.Orphans)

	checks, allPassed := pl.agg.Run(ctx, targets)
	assert.False(t, allPassed)
	byName := verify.ByName(checks)
	assert.False(t, byName["no_orphan_files"].Passed)

	rep := report.New("run_broken", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		[]*scenario.Result{res}, checks, false)
	assert.False(t, rep.AllPassed)
	assert.Contains(t, rep.Markdown(), "**Overall result**: FAILED")
}
