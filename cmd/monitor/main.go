// Command monitor watches the coordinator during a harness run, sampling
// /stats and /metrics on an interval and writing the sample history to a
// JSON file on exit.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/gravecheck/internal/cluster"
	"github.com/dreamware/gravecheck/internal/monitor"
)

func main() {
	masterURL := flag.String("master", getenv("HARNESS_MASTER_URL", "http://localhost:8080"), "coordinator base URL")
	secret := flag.String("secret", getenv("HARNESS_ADMIN_SECRET", "admin888"), "admin secret")
	interval := flag.Duration("interval", 5*time.Second, "sampling interval")
	keep := flag.Int("keep", 1000, "samples of history to keep")
	out := flag.String("out", "monitor_history.json", "history file written on exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := monitor.New(cluster.NewClient(*masterURL, *secret), *masterURL+"/metrics", *interval, *keep)
	log.Printf("monitoring %s every %s", *masterURL, *interval)
	m.Run(ctx)

	if err := m.SaveHistory(*out); err != nil {
		log.Fatalf("save history: %v", err)
	}
	log.Printf("wrote %d samples to %s", len(m.History()), *out)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
