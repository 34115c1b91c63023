// Package report renders accumulated scenario and verification results into
// the run's two artifacts: a human-readable Markdown document and a
// machine-readable JSON document. Rendering is a pure function of the
// report's fields, identical inputs produce byte-identical output, so the
// caller supplies the run ID and generation time rather than the builder
// reading a clock.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/dreamware/gravecheck/internal/scenario"
	"github.com/dreamware/gravecheck/internal/verify"
)

const timeLayout = "2006-01-02 15:04:05"

// Report aggregates one full run.
type Report struct {
	RunID       string               `json:"run_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Scenarios   []*scenario.Result   `json:"scenarios"`
	Checks      []verify.CheckResult `json:"checks"`
	AllPassed   bool                 `json:"all_passed"`
	Interrupted bool                 `json:"interrupted,omitempty"`
}

// New assembles a report and derives the overall verdict: every scenario
// passed, every check passed, and the run was not interrupted.
func New(runID string, generatedAt time.Time, scenarios []*scenario.Result, checks []verify.CheckResult, interrupted bool) *Report {
	all := !interrupted && len(scenarios) > 0
	for _, s := range scenarios {
		if !s.Passed() {
			all = false
		}
	}
	for _, c := range checks {
		if !c.Passed {
			all = false
		}
	}
	return &Report{
		RunID:       runID,
		GeneratedAt: generatedAt,
		Scenarios:   scenarios,
		Checks:      checks,
		AllPassed:   all,
		Interrupted: interrupted,
	}
}

// JSON renders the machine-readable document.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Markdown renders the human-readable document.
func (r *Report) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Tombstone consistency report\n\n")
	fmt.Fprintf(&b, "**Run**: %s  \n", r.RunID)
	fmt.Fprintf(&b, "**Generated**: %s\n\n", r.GeneratedAt.Format(timeLayout))

	b.WriteString("## Overview\n\n")
	verdict := "FAILED"
	if r.AllPassed {
		verdict = "PASSED"
	}
	fmt.Fprintf(&b, "- **Overall result**: %s\n", verdict)
	if r.Interrupted {
		b.WriteString("- **Run interrupted**: results are partial\n")
	}
	fmt.Fprintf(&b, "- **Scenarios**: %d\n", len(r.Scenarios))
	fmt.Fprintf(&b, "- **Verification checks**: %d\n\n", len(r.Checks))

	for _, s := range r.Scenarios {
		r.writeScenario(&b, s)
	}
	r.writeChecks(&b)
	r.writeConclusion(&b)

	return b.String()
}

func (r *Report) writeScenario(b *strings.Builder, s *scenario.Result) {
	fmt.Fprintf(b, "## Scenario: %s\n\n", s.Name)
	fmt.Fprintf(b, "- **Status**: %s\n", mark(s.Passed()))
	fmt.Fprintf(b, "- **Tombstone created**: %s\n", mark(s.TombstoneCreated))
	if s.PartialFailureDetected {
		b.WriteString("- **Partial failure detected**: ✓\n")
	}
	fmt.Fprintf(b, "- **Auto cleanup**: %s\n", mark(s.AutoCleanup))
	fmt.Fprintf(b, "- **Residue free**: %s\n", mark(s.ResidueFree))
	fmt.Fprintf(b, "- **Duration**: %.1fs\n", s.Duration.Seconds())
	fmt.Fprintf(b, "- **Target files**: %d\n", len(s.TargetFiles))
	if s.FailureReason != "" {
		fmt.Fprintf(b, "- **Failure reason**: %s\n", s.FailureReason)
	}
	b.WriteString("\n")

	if len(s.Outcomes) > 0 {
		b.WriteString("### Delete outcomes\n\n")
		b.WriteString("| File | Status | Response |\n")
		b.WriteString("|------|--------|----------|\n")
		for _, out := range s.Outcomes {
			resp := out.Response
			if resp == "" {
				resp = out.Err
			}
			fmt.Fprintf(b, "| %s | %s | %s |\n", out.File, mark(out.OK()), truncate(resp, 50))
		}
		b.WriteString("\n")
	}

	if len(s.Orphans) > 0 {
		b.WriteString("### Residual files\n\n")
		orphans := append([]scenario.Orphan(nil), s.Orphans...)
		slices.SortFunc(orphans, func(a, b scenario.Orphan) int {
			if a.Node != b.Node {
				return strings.Compare(a.Node, b.Node)
			}
			return strings.Compare(a.File, b.File)
		})
		for _, o := range orphans {
			fmt.Fprintf(b, "- %s: %s\n", o.Node, o.File)
		}
		b.WriteString("\n")
	}
}

func (r *Report) writeChecks(b *strings.Builder) {
	if len(r.Checks) == 0 {
		return
	}
	b.WriteString("## Verification\n\n")
	for _, c := range r.Checks {
		fmt.Fprintf(b, "### %s %s\n\n", mark(c.Passed), c.Name)
		fmt.Fprintf(b, "- **Detail**: %s\n", c.Detail)
		if len(c.Payload) > 0 {
			keys := maps.Keys(c.Payload)
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Fprintf(b, "- **%s**: %v\n", k, c.Payload[k])
			}
		}
		b.WriteString("\n")
	}
}

func (r *Report) writeConclusion(b *strings.Builder) {
	b.WriteString("## Conclusion\n\n")
	if r.AllPassed {
		b.WriteString("All scenarios and verification checks passed. The deferred-deletion\n")
		b.WriteString("protocol created tombstones, detected degraded deletes, and reconciled\n")
		b.WriteString("every leftover replica after node recovery.\n")
		return
	}
	b.WriteString("The run did not pass. Flagged items:\n\n")
	for _, s := range r.Scenarios {
		if !s.Passed() {
			reason := s.FailureReason
			if reason == "" {
				reason = "failed"
			}
			fmt.Fprintf(b, "- scenario %s: %s\n", s.Name, reason)
		}
	}
	for _, c := range r.Checks {
		if !c.Passed {
			fmt.Fprintf(b, "- check %s: %s\n", c.Name, c.Detail)
		}
	}
	if r.Interrupted {
		b.WriteString("- run was interrupted before completion\n")
	}
}

// Write renders both documents into dir, named by run ID, and returns their
// paths.
func (r *Report) Write(dir string) (mdPath, jsonPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}

	mdPath = filepath.Join(dir, fmt.Sprintf("tombstone_report_%s.md", r.RunID))
	if err := os.WriteFile(mdPath, []byte(r.Markdown()), 0o644); err != nil {
		return "", "", fmt.Errorf("write markdown report: %w", err)
	}

	data, err := r.JSON()
	if err != nil {
		return "", "", fmt.Errorf("encode json report: %w", err)
	}
	jsonPath = filepath.Join(dir, fmt.Sprintf("results_%s.json", r.RunID))
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write json report: %w", err)
	}
	return mdPath, jsonPath, nil
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
