// Package scenario implements the fault-injection scenarios that exercise
// the storage cluster's deferred-deletion protocol, and the orchestrator
// that drives them.
//
// # State machine
//
// Each scenario run walks a fixed sequence of states:
//
//	Init -> FaultInjected -> OperationIssued -> FaultRecovered -> Converging -> Done
//
// Init snapshots baseline stats. FaultInjected means the target nodes were
// confirmed stopped. OperationIssued means every delete in the target file
// set was attempted (individual failures are data, not errors). The
// coordinator's logs are then scraped for the tombstone marker.
// FaultRecovered means the stopped nodes were confirmed running again.
// Converging runs the bounded convergence wait. Done carries the verdict.
//
// A node-control failure anywhere short-circuits straight to Done(failed):
// proceeding against unknown cluster topology would make every later
// observation meaningless. Everything else (delete failures, unreadable
// logs, a convergence timeout) is recorded and the run continues, because
// the scenario's verdict rests solely on the final residue check.
package scenario

import (
	"fmt"
	"time"

	"github.com/dreamware/gravecheck/internal/cluster"
	"github.com/dreamware/gravecheck/internal/control"
	"github.com/dreamware/gravecheck/internal/observer"
)

// Status is a scenario's final verdict.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// State identifies a position in the scenario state machine.
type State int

const (
	StateInit State = iota
	StateFaultInjected
	StateOperationIssued
	StateFaultRecovered
	StateConverging
	StateDone
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateFaultInjected:
		return "FaultInjected"
	case StateOperationIssued:
		return "OperationIssued"
	case StateFaultRecovered:
		return "FaultRecovered"
	case StateConverging:
		return "Converging"
	case StateDone:
		return "Done"
	}
	return "Unknown"
}

// Definition describes one scenario: which nodes to take down and which
// files to delete while they are down. The target file set is fixed before
// the run starts and never changes.
type Definition struct {
	Name                 string
	FaultNodes           []string
	TargetFiles          []string
	ExpectPartialFailure bool // scenario also checks the partial-failure marker
}

// Orphan is a target file found on a node after recovery.
type Orphan struct {
	Node string `json:"node"`
	File string `json:"file"`
}

// Result accumulates everything observed during one scenario run. The
// orchestrator mutates it phase by phase and freezes it at scenario end;
// afterwards it is read-only.
type Result struct {
	Name                   string                       `json:"name"`
	TargetFiles            []string                     `json:"test_files"`
	Outcomes               []cluster.DeleteOutcome      `json:"delete_results"`
	TombstoneCreated       bool                         `json:"tombstone_created"`
	PartialFailureDetected bool                         `json:"partial_failure_detected"`
	AutoCleanup            bool                         `json:"auto_cleanup"`
	Converged              bool                         `json:"converged"` // poller's advisory flag
	ResidueFree            bool                         `json:"residue_free"`
	Orphans                []Orphan                     `json:"orphan_files,omitempty"`
	Status                 Status                       `json:"status"`
	FailureReason          string                       `json:"failure_reason,omitempty"`
	State                  State                        `json:"-"`
	InitialStats           cluster.Stats                `json:"initial_stats"`
	FinalStats             cluster.Stats                `json:"final_stats"`
	Events                 []observer.Event             `json:"events,omitempty"`
	NodeStates             map[string]control.NodeState `json:"node_states,omitempty"`
	StartTime              time.Time                    `json:"start_time"`
	EndTime                time.Time                    `json:"end_time"`
	Duration               time.Duration                `json:"duration"`
}

// Passed reports whether the scenario reached Done with a passing verdict.
func (r *Result) Passed() bool { return r.Status == StatusPassed }

// TargetFiles generates a numbered file-name sequence from a printf pattern,
// e.g. TargetFiles("test_movie_%04d.mp4", 0, 10) names the first ten test
// movies.
func TargetFiles(pattern string, from, to int) []string {
	files := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		files = append(files, fmt.Sprintf(pattern, i))
	}
	return files
}

// SingleNodeRestart is the delete-then-restart scenario: one node goes down,
// the files are deleted against the degraded cluster, and the node's
// leftover replicas must be reconciled away after it returns.
func SingleNodeRestart(faultNode string, targets []string) Definition {
	return Definition{
		Name:        "delete-then-restart",
		FaultNodes:  []string{faultNode},
		TargetFiles: targets,
	}
}

// PartialDeleteFailure takes two nodes down at once so some deletes cannot
// reach any replica. The coordinator must flag the partial failure and the
// cluster must still converge after recovery.
func PartialDeleteFailure(faultNodes, targets []string) Definition {
	return Definition{
		Name:                 "partial-delete-failure",
		FaultNodes:           append([]string(nil), faultNodes...),
		TargetFiles:          targets,
		ExpectPartialFailure: true,
	}
}
