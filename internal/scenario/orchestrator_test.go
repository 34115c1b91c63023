package scenario

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/gravecheck/internal/cluster"
	"github.com/dreamware/gravecheck/internal/clustertest"
	"github.com/dreamware/gravecheck/internal/observer"
	"github.com/dreamware/gravecheck/internal/poller"
)

var workers = []string{"worker1", "worker2", "worker3"}

func quiet(format string, args ...any) {}

// fastOptions keeps scenario runs under test well below a second.
func fastOptions() Options {
	return Options{
		DeletePause: time.Millisecond,
		StopSettle:  time.Millisecond,
		StartSettle: time.Millisecond,
		PollTimeout: 500 * time.Millisecond,
	}
}

// newHarness wires an orchestrator against a fake cluster and returns both.
func newHarness(t *testing.T, fc *clustertest.FakeCluster) *Orchestrator {
	t.Helper()
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)

	query := cluster.NewClient(srv.URL, "s3cret")
	scanner := observer.NewScanner(fc, observer.DefaultMarkers())
	p := poller.New(fc, scanner, 10*time.Millisecond)
	p.SetLogf(quiet)

	o := New(fc, query, scanner, p, workers, "master", fastOptions())
	o.SetLogf(quiet)
	return o
}

func TestSingleNodeRestartPasses(t *testing.T) {
	fc := clustertest.New("s3cret", "master", workers...)
	targets := TargetFiles("test_movie_%04d.mp4", 0, 10)
	fc.SeedReplicated(targets, 2)
	fc.SeedReplicated([]string{"other_a.mp4", "other_b.mp4", "other_c.mp4"}, 2)

	o := newHarness(t, fc)
	res := o.Run(context.Background(), SingleNodeRestart("worker2", targets))

	assert.Equal(t, StatusPassed, res.Status)
	assert.True(t, res.Passed())
	assert.Equal(t, StateDone, res.State)
	assert.True(t, res.TombstoneCreated)
	assert.True(t, res.AutoCleanup)
	assert.True(t, res.Converged)
	assert.True(t, res.ResidueFree)
	assert.Empty(t, res.Orphans)
	require.Len(t, res.Outcomes, 10)

	// Residue-free means no target file anywhere, on any node.
	for _, node := range workers {
		for _, f := range targets {
			assert.NotContains(t, fc.Files(node), f)
		}
	}
	// Untouched files survive.
	assert.Contains(t, fc.Files("worker1"), "other_a.mp4")

	assert.False(t, res.StartTime.IsZero())
	assert.False(t, res.EndTime.IsZero())
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestPartialDeleteFailureScenario(t *testing.T) {
	fc := clustertest.New("s3cret", "master", workers...)
	targets := TargetFiles("test_movie_%04d.mp4", 10, 20)
	fc.SeedReplicated(targets, 2)

	o := newHarness(t, fc)
	res := o.Run(context.Background(), PartialDeleteFailure([]string{"worker1", "worker2"}, targets))

	assert.Equal(t, StatusPassed, res.Status)
	assert.True(t, res.TombstoneCreated)
	assert.True(t, res.PartialFailureDetected)
	assert.True(t, res.AutoCleanup)
	assert.True(t, res.ResidueFree)

	// With two of three replica holders down, some delete must have failed
	// at the API layer, and that must not fail the scenario.
	failed := 0
	for _, out := range res.Outcomes {
		if !out.OK() {
			failed++
		}
	}
	assert.Greater(t, failed, 0, "expected at least one non-200 delete outcome")
}

func TestStopFailureAbortsScenario(t *testing.T) {
	fc := clustertest.New("s3cret", "master", workers...)
	targets := TargetFiles("test_movie_%04d.mp4", 0, 3)
	fc.SeedReplicated(targets, 2)
	fc.FailStop("worker2", errors.New("container manager timeout"))

	o := newHarness(t, fc)
	res := o.Run(context.Background(), SingleNodeRestart("worker2", targets))

	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.FailureReason, "stop worker2")
	assert.Equal(t, StateDone, res.State)
	assert.Empty(t, res.Outcomes, "no deletes issued against unknown topology")
	assert.False(t, res.EndTime.IsZero(), "failed result must still be frozen")
}

func TestStartFailureAbortsScenario(t *testing.T) {
	fc := clustertest.New("s3cret", "master", workers...)
	targets := TargetFiles("test_movie_%04d.mp4", 0, 3)
	fc.SeedReplicated(targets, 2)
	fc.FailStart("worker2", errors.New("image missing"))

	o := newHarness(t, fc)
	res := o.Run(context.Background(), SingleNodeRestart("worker2", targets))

	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.FailureReason, "start worker2")
	// Deletes happened before the failed recovery; they are preserved.
	assert.Len(t, res.Outcomes, 3)
}

func TestBrokenReconciliationFailsResidueCheck(t *testing.T) {
	fc := clustertest.New("s3cret", "master", workers...)
	targets := TargetFiles("test_movie_%04d.mp4", 0, 5)
	fc.SeedReplicated(targets, 2)
	fc.SetCleanupOnStart(false)

	o := newHarness(t, fc)
	res := o.Run(context.Background(), SingleNodeRestart("worker2", targets))

	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, res.Converged)
	assert.False(t, res.ResidueFree)
	assert.NotEmpty(t, res.Orphans)
	for _, orphan := range res.Orphans {
		assert.Equal(t, "worker2", orphan.Node)
	}
	// The delete itself succeeded and tombstones were created; only the
	// cleanup never happened.
	assert.True(t, res.TombstoneCreated)
}

func TestCancellationStopsAtPhaseBoundary(t *testing.T) {
	fc := clustertest.New("s3cret", "master", workers...)
	targets := TargetFiles("test_movie_%04d.mp4", 0, 5)
	fc.SeedReplicated(targets, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // canceled before the run starts

	o := newHarness(t, fc)
	res := o.Run(ctx, SingleNodeRestart("worker2", targets))

	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.FailureReason, "aborted")
	assert.False(t, res.EndTime.IsZero(), "partial result must still be produced")
}

func TestTargetFiles(t *testing.T) {
	files := TargetFiles("test_movie_%04d.mp4", 0, 3)
	assert.Equal(t, []string{"test_movie_0000.mp4", "test_movie_0001.mp4", "test_movie_0002.mp4"}, files)

	assert.Empty(t, TargetFiles("f%d", 5, 5))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Init", StateInit.String())
	assert.Equal(t, "Done", StateDone.String())
	assert.Equal(t, "Unknown", State(99).String())
}
