package scenario

import (
	"context"
	"fmt"

	"github.com/dreamware/gravecheck/internal/cluster"
)

// Preflight verifies the cluster is worth testing before any scenario
// touches it. A failure here is fatal to the whole run: the coordinator must
// answer health and stats, at least one worker must be active, and at least
// minFiles files must already exist. A file count below warnFiles is only
// logged; sparse clusters make weaker tests but still valid ones.
func Preflight(ctx context.Context, query *cluster.Client, minFiles, warnFiles int, logf func(format string, args ...any)) error {
	if err := query.Health(ctx); err != nil {
		return fmt.Errorf("coordinator health check: %w", err)
	}
	logf("preflight: coordinator healthy")

	stats, err := query.Stats(ctx)
	if err != nil {
		return fmt.Errorf("coordinator stats: %w", err)
	}
	logf("preflight: %d files, %d active nodes", stats.TotalFiles, stats.ActiveNodes)

	if stats.ActiveNodes < 1 {
		return fmt.Errorf("no active worker nodes (stats reports %d)", stats.ActiveNodes)
	}
	if stats.TotalFiles < minFiles {
		return fmt.Errorf("insufficient files to test against: %d present, %d required", stats.TotalFiles, minFiles)
	}
	if stats.TotalFiles < warnFiles {
		logf("preflight: warning: only %d files present (below %d), results may be weak", stats.TotalFiles, warnFiles)
	}
	return nil
}
