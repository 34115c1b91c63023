// Command harness runs the tombstone consistency scenarios against a live
// cluster: it stops worker containers, deletes files while they are down,
// brings them back, and verifies that deferred deletion reconciles every
// leftover replica.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/gravecheck/internal/cluster"
	"github.com/dreamware/gravecheck/internal/config"
	"github.com/dreamware/gravecheck/internal/control"
	"github.com/dreamware/gravecheck/internal/observer"
	"github.com/dreamware/gravecheck/internal/poller"
	"github.com/dreamware/gravecheck/internal/report"
	"github.com/dreamware/gravecheck/internal/scenario"
	"github.com/dreamware/gravecheck/internal/verify"
)

const (
	exitOK          = 0
	exitFailed      = 1
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", getenv("HARNESS_CONFIG", ""), "path to YAML config (defaults apply when empty)")
	outputDir := flag.String("output", "", "report output directory (overrides config)")
	only := flag.String("scenario", "", "run a single scenario: delete-then-restart or partial-delete-failure")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("config: %v", err)
		return exitFailed
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if v := getenv("HARNESS_MASTER_URL", ""); v != "" {
		cfg.MasterURL = v
	}
	if v := getenv("HARNESS_ADMIN_SECRET", ""); v != "" {
		cfg.AdminSecret = v
	}

	runID := fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Printf("output dir: %v", err)
		return exitFailed
	}

	// Everything logged below also lands in the run log next to the reports.
	logFile, err := os.Create(filepath.Join(cfg.OutputDir, fmt.Sprintf("run_%s.log", runID)))
	if err != nil {
		log.Printf("run log: %v", err)
		return exitFailed
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stderr, logFile))

	log.Printf("tombstone harness run %s", runID)
	log.Printf("master %s, %d workers", cfg.MasterURL, len(cfg.Nodes))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl, err := control.NewDockerController(cfg.ControlNodes())
	if err != nil {
		log.Printf("docker: %v", err)
		return exitFailed
	}

	query := cluster.NewClient(cfg.MasterURL, cfg.AdminSecret)
	scanner := observer.NewScanner(ctrl, cfg.Markers)
	poll := poller.New(ctrl, scanner, cfg.PollEvery.Std())

	opts := scenario.Options{
		DeletePause: cfg.DeletePause.Std(),
		StopSettle:  cfg.StopSettle.Std(),
		StartSettle: cfg.StartSettle.Std(),
		PollTimeout: cfg.PollTimeout.Std(),
	}
	orch := scenario.New(ctrl, query, scanner, poll, cfg.NodeIDs(), cfg.Master.ID, opts)

	if err := scenario.Preflight(ctx, query, cfg.MinFiles, cfg.WarnFiles, log.Printf); err != nil {
		log.Printf("preflight: %v", err)
		rep := report.New(runID, time.Now().UTC(), nil, []verify.CheckResult{{
			Name:   "preflight",
			Detail: err.Error(),
		}}, errors.Is(ctx.Err(), context.Canceled))
		writeReport(rep, cfg.OutputDir)
		if ctx.Err() != nil {
			return exitInterrupted
		}
		return exitFailed
	}

	defs := scenarios(cfg, *only)
	if len(defs) == 0 {
		log.Printf("unknown scenario %q", *only)
		return exitFailed
	}

	var (
		results []*scenario.Result
		targets []string
	)
	for _, def := range defs {
		if ctx.Err() != nil {
			break
		}
		log.Printf("=== scenario %s: stop %s, delete %d files ===",
			def.Name, strings.Join(def.FaultNodes, ","), len(def.TargetFiles))
		res := orch.Run(ctx, def)
		results = append(results, res)
		targets = append(targets, def.TargetFiles...)
		log.Printf("=== scenario %s: %s ===", def.Name, res.Status)
	}

	var checks []verify.CheckResult
	allChecksPassed := true
	if ctx.Err() == nil {
		agg := verify.New(ctrl, query, cfg.Markers, cfg.NodeIDs(), cfg.Master.ID)
		checks, allChecksPassed = agg.Run(ctx, targets)
		for _, c := range checks {
			log.Printf("check %s: passed=%t (%s)", c.Name, c.Passed, c.Detail)
		}
	}

	interrupted := ctx.Err() != nil
	rep := report.New(runID, time.Now().UTC(), results, checks, interrupted)
	writeReport(rep, cfg.OutputDir)

	switch {
	case interrupted:
		log.Printf("run interrupted")
		return exitInterrupted
	case rep.AllPassed && allChecksPassed:
		log.Printf("all scenarios and checks passed")
		return exitOK
	default:
		log.Printf("run failed")
		return exitFailed
	}
}

// scenarios builds the run's scenario list. The first takes the second
// worker down and deletes the first ten test files; the second takes the
// first two workers down against the next ten so some deletes find no live
// replica.
func scenarios(cfg *config.Config, only string) []scenario.Definition {
	ids := cfg.NodeIDs()
	faultNode := ids[0]
	if len(ids) >= 2 {
		faultNode = ids[1]
	}
	defs := []scenario.Definition{
		scenario.SingleNodeRestart(faultNode, scenario.TargetFiles(cfg.FilePattern, 0, 10)),
	}
	if len(ids) >= 2 {
		defs = append(defs,
			scenario.PartialDeleteFailure(ids[:2], scenario.TargetFiles(cfg.FilePattern, 10, 20)))
	}
	if only == "" {
		return defs
	}
	for _, d := range defs {
		if d.Name == only {
			return []scenario.Definition{d}
		}
	}
	return nil
}

func writeReport(rep *report.Report, dir string) {
	mdPath, jsonPath, err := rep.Write(dir)
	if err != nil {
		log.Printf("write report: %v", err)
		return
	}
	log.Printf("report: %s", mdPath)
	log.Printf("results: %s", jsonPath)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
