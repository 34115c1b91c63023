package scenario

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/gravecheck/internal/cluster"
	"github.com/dreamware/gravecheck/internal/clustertest"
)

func TestPreflightHealthyCluster(t *testing.T) {
	fc := clustertest.New("s", "master", "worker1", "worker2")
	fc.SeedReplicated(TargetFiles("seed_%02d.mp4", 0, 25), 2)

	srv := httptest.NewServer(fc)
	defer srv.Close()

	err := Preflight(context.Background(), cluster.NewClient(srv.URL, "s"), 1, 20, quiet)
	assert.NoError(t, err)
}

func TestPreflightWarnsOnSparseCluster(t *testing.T) {
	fc := clustertest.New("s", "master", "worker1")
	fc.SeedReplicated([]string{"only.mp4"}, 1)

	srv := httptest.NewServer(fc)
	defer srv.Close()

	var warned bool
	logf := func(format string, args ...any) {
		if strings.Contains(fmt.Sprintf(format, args...), "warning") {
			warned = true
		}
	}

	err := Preflight(context.Background(), cluster.NewClient(srv.URL, "s"), 1, 20, logf)
	require.NoError(t, err, "sparse cluster warns but does not fail")
	assert.True(t, warned)
}

func TestPreflightInsufficientFiles(t *testing.T) {
	fc := clustertest.New("s", "master", "worker1")

	srv := httptest.NewServer(fc)
	defer srv.Close()

	err := Preflight(context.Background(), cluster.NewClient(srv.URL, "s"), 1, 20, quiet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient files")
}

func TestPreflightNoActiveNodes(t *testing.T) {
	fc := clustertest.New("s", "master", "worker1")
	fc.SeedReplicated(TargetFiles("seed_%02d.mp4", 0, 5), 1)
	require.NoError(t, fc.Stop(context.Background(), "worker1"))

	srv := httptest.NewServer(fc)
	defer srv.Close()

	err := Preflight(context.Background(), cluster.NewClient(srv.URL, "s"), 1, 20, quiet)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active worker nodes")
}

func TestPreflightUnreachableCoordinator(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close()

	err := Preflight(context.Background(), cluster.NewClient(srv.URL, "s"), 1, 20, quiet)
	assert.Error(t, err)
}
