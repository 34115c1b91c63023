// Package poller implements the bounded convergence wait: repeatedly
// inspecting node storage until a set of target files is gone from every
// node, or a timeout expires. It is a bounded busy-wait, not a retry
// mechanism: a false result is a hard answer and callers must not loop
// around it.
package poller

import (
	"context"
	"log"
	"time"

	"github.com/dreamware/gravecheck/internal/observer"
)

// FileLister lists the file names in a node's storage directory.
// control.Controller satisfies this.
type FileLister interface {
	ListFiles(ctx context.Context, nodeID string) ([]string, error)
}

// Poller waits for target files to disappear from the cluster.
type Poller struct {
	lister   FileLister
	scanner  *observer.Scanner
	interval time.Duration
	logf     func(format string, args ...any)
}

// New creates a poller that checks cluster state every interval.
func New(lister FileLister, scanner *observer.Scanner, interval time.Duration) *Poller {
	return &Poller{
		lister:   lister,
		scanner:  scanner,
		interval: interval,
		logf:     log.Printf,
	}
}

// SetLogf overrides the poller's log function. Useful in tests.
func (p *Poller) SetLogf(logf func(format string, args ...any)) { p.logf = logf }

// AwaitConvergence blocks until none of the target files appears in any
// node's listing, or timeout expires, whichever comes first. Each poll cycle
// first scrapes every node's logs for protocol events (accumulated into
// seen, deduplicated), then lists every node's files.
//
// A node that cannot be listed counts as not-yet-converged for that cycle:
// convergence means confirmed absence everywhere, not absence of evidence.
// Context cancellation returns false immediately.
func (p *Poller) AwaitConvergence(ctx context.Context, nodeIDs, targets []string, timeout time.Duration, seen *observer.EventSet) bool {
	wanted := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		wanted[t] = struct{}{}
	}

	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-ctx.Done():
			p.logf("convergence wait canceled: %v", ctx.Err())
			return false
		case <-time.After(p.interval):
		}

		for _, id := range nodeIDs {
			fresh, err := p.scanner.Scan(ctx, id, seen)
			if err != nil {
				p.logf("convergence poll: scan %s logs: %v", id, err)
				continue
			}
			for _, e := range fresh {
				p.logf("observed %s event on %s: %s", e.Kind, e.Node, truncate(e.Line, 100))
			}
		}

		if p.allClean(ctx, nodeIDs, wanted) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
	}
}

// allClean reports whether every node's listing was fetched and contains no
// target file.
func (p *Poller) allClean(ctx context.Context, nodeIDs []string, wanted map[string]struct{}) bool {
	for _, id := range nodeIDs {
		files, err := p.lister.ListFiles(ctx, id)
		if err != nil {
			p.logf("convergence poll: list %s: %v", id, err)
			return false
		}
		for _, f := range files {
			if _, hit := wanted[f]; hit {
				return false
			}
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
