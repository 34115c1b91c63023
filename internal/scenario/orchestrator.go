package scenario

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dreamware/gravecheck/internal/cluster"
	"github.com/dreamware/gravecheck/internal/control"
	"github.com/dreamware/gravecheck/internal/observer"
	"github.com/dreamware/gravecheck/internal/poller"
)

// Options holds the orchestrator's pacing knobs. All waits are bounded.
type Options struct {
	DeletePause time.Duration // pause between successive delete calls
	StopSettle  time.Duration // wait after stopping nodes, before deleting
	StartSettle time.Duration // wait after restarting nodes, before polling
	PollTimeout time.Duration // upper bound on the convergence wait
}

// DefaultOptions matches the pacing the backend is known to need: half a
// second between deletes, settle windows around node control, and a 30
// second convergence window.
func DefaultOptions() Options {
	return Options{
		DeletePause: 500 * time.Millisecond,
		StopSettle:  5 * time.Second,
		StartSettle: 10 * time.Second,
		PollTimeout: 30 * time.Second,
	}
}

// Orchestrator drives scenarios against a live cluster. Scenarios must run
// one at a time: they stop and start shared nodes, so two concurrent runs
// would corrupt each other's topology.
type Orchestrator struct {
	ctrl        control.Controller
	query       *cluster.Client
	scanner     *observer.Scanner
	poll        *poller.Poller
	nodes       []string // every worker node, fault set or not
	coordinator string   // node whose logs carry the coordinator's markers
	opts        Options
	logf        func(format string, args ...any)
}

// New creates an orchestrator. nodes is the complete worker set; coordinator
// names the node whose logs are scraped for tombstone markers.
func New(ctrl control.Controller, query *cluster.Client, scanner *observer.Scanner, poll *poller.Poller, nodes []string, coordinator string, opts Options) *Orchestrator {
	return &Orchestrator{
		ctrl:        ctrl,
		query:       query,
		scanner:     scanner,
		poll:        poll,
		nodes:       append([]string(nil), nodes...),
		coordinator: coordinator,
		opts:        opts,
		logf:        log.Printf,
	}
}

// SetLogf overrides the orchestrator's log function. Useful in tests.
func (o *Orchestrator) SetLogf(logf func(format string, args ...any)) { o.logf = logf }

// Run executes one scenario to completion and returns its frozen result.
// Cancellation is honored at phase boundaries: the current phase finishes,
// the scenario is marked failed, and the partial result is still returned.
func (o *Orchestrator) Run(ctx context.Context, def Definition) *Result {
	res := &Result{
		Name:        def.Name,
		TargetFiles: append([]string(nil), def.TargetFiles...),
		Status:      StatusFailed,
		NodeStates:  make(map[string]control.NodeState, len(o.nodes)),
		StartTime:   time.Now(),
	}
	for _, id := range o.nodes {
		res.NodeStates[id] = control.StateUp
	}
	seen := observer.NewEventSet()
	defer func() { res.Events = seen.Events() }()

	o.logf("scenario %s: %d target files, fault nodes %v", def.Name, len(def.TargetFiles), def.FaultNodes)
	o.transition(res, StateInit)

	// Baseline snapshot. An unreachable stats endpoint here is preflight's
	// problem, not the scenario's; record what we can.
	if stats, err := o.query.Stats(ctx); err != nil {
		o.logf("scenario %s: baseline stats unavailable: %v", def.Name, err)
	} else {
		res.InitialStats = stats
		o.logf("scenario %s: baseline %d files, %d active nodes", def.Name, stats.TotalFiles, stats.ActiveNodes)
	}

	// Fault injection. A stop that fails is fatal: the topology is unknown.
	for _, node := range def.FaultNodes {
		res.NodeStates[node] = control.StateUnknown
		if err := o.ctrl.Stop(ctx, node); err != nil {
			return o.fail(res, fmt.Sprintf("stop %s: %v", node, err))
		}
		res.NodeStates[node] = control.StateDown
		o.logf("scenario %s: stopped %s", def.Name, node)
	}
	o.transition(res, StateFaultInjected)
	if !o.pause(ctx, o.opts.StopSettle) {
		return o.fail(res, "aborted while waiting after fault injection")
	}

	// Issue every delete; each attempt is independent and failures are
	// recorded, not propagated.
	for _, name := range def.TargetFiles {
		out := o.query.DeleteFile(ctx, name)
		res.Outcomes = append(res.Outcomes, out)
		if out.OK() {
			o.logf("scenario %s: deleted %s: %s", def.Name, name, out.Response)
		} else {
			o.logf("scenario %s: delete %s failed (status %d): %s%s", def.Name, name, out.Status, out.Response, out.Err)
		}
		if !o.pause(ctx, o.opts.DeletePause) {
			return o.fail(res, "aborted during delete sequence")
		}
	}
	o.transition(res, StateOperationIssued)

	// Scrape the coordinator for the protocol's paper trail.
	if _, err := o.scanner.Scan(ctx, o.coordinator, seen); err != nil {
		o.logf("scenario %s: scan %s logs: %v", def.Name, o.coordinator, err)
	}
	res.TombstoneCreated = seen.Has(observer.KindTombstoneCreated)
	o.logf("scenario %s: tombstone created: %v", def.Name, res.TombstoneCreated)
	if def.ExpectPartialFailure {
		res.PartialFailureDetected = seen.Has(observer.KindPartialFailure)
		o.logf("scenario %s: partial failure detected: %v", def.Name, res.PartialFailureDetected)
	}

	// Fault recovery. A start that fails is as fatal as a failed stop.
	for _, node := range def.FaultNodes {
		res.NodeStates[node] = control.StateUnknown
		if err := o.ctrl.Start(ctx, node); err != nil {
			return o.fail(res, fmt.Sprintf("start %s: %v", node, err))
		}
		res.NodeStates[node] = control.StateUp
		o.logf("scenario %s: restarted %s", def.Name, node)
	}
	o.transition(res, StateFaultRecovered)
	if !o.pause(ctx, o.opts.StartSettle) {
		return o.fail(res, "aborted while waiting after recovery")
	}

	// Bounded convergence wait. The flag is advisory: the verdict comes
	// from the explicit residue check below.
	o.transition(res, StateConverging)
	res.Converged = o.poll.AwaitConvergence(ctx, o.nodes, def.TargetFiles, o.opts.PollTimeout, seen)
	res.AutoCleanup = seen.Has(observer.KindAutoCleanup)
	o.logf("scenario %s: converged=%v auto_cleanup=%v", def.Name, res.Converged, res.AutoCleanup)

	// Final residue check across every node, including nodes that were
	// never part of the fault set.
	res.ResidueFree = true
	wanted := make(map[string]struct{}, len(def.TargetFiles))
	for _, f := range def.TargetFiles {
		wanted[f] = struct{}{}
	}
	for _, node := range o.nodes {
		files, err := o.ctrl.ListFiles(ctx, node)
		if err != nil {
			o.logf("scenario %s: list %s: %v", def.Name, node, err)
			res.ResidueFree = false
			continue
		}
		for _, f := range files {
			if _, hit := wanted[f]; hit {
				res.Orphans = append(res.Orphans, Orphan{Node: node, File: f})
				res.ResidueFree = false
			}
		}
	}
	if len(res.Orphans) > 0 {
		o.logf("scenario %s: %d orphan files remain", def.Name, len(res.Orphans))
	}

	if stats, err := o.query.Stats(ctx); err != nil {
		o.logf("scenario %s: final stats unavailable: %v", def.Name, err)
	} else {
		res.FinalStats = stats
	}

	if res.ResidueFree {
		res.Status = StatusPassed
	} else {
		res.FailureReason = "target files remain on cluster nodes after recovery"
	}
	o.transition(res, StateDone)
	o.finish(res)
	return res
}

// transition advances the scenario's state machine.
func (o *Orchestrator) transition(res *Result, s State) {
	res.State = s
	o.logf("scenario %s: -> %s", res.Name, s)
}

// fail freezes the result as failed with the given reason.
func (o *Orchestrator) fail(res *Result, reason string) *Result {
	res.Status = StatusFailed
	res.FailureReason = reason
	o.logf("scenario %s: failed: %s", res.Name, reason)
	o.transition(res, StateDone)
	o.finish(res)
	return res
}

// finish stamps the result's end time and duration; the result is frozen
// afterwards.
func (o *Orchestrator) finish(res *Result) {
	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	o.logf("scenario %s: %s in %.1fs", res.Name, res.Status, res.Duration.Seconds())
}

// pause sleeps for d unless the context is canceled first. Returns false on
// cancellation.
func (o *Orchestrator) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
