// Command uploader seeds the cluster with test files before a harness run.
// It scans a local directory for video files and pushes them all through a
// bounded pool of concurrent uploads.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dreamware/gravecheck/internal/cluster"
	"github.com/dreamware/gravecheck/internal/upload"
)

func main() {
	masterURL := flag.String("master", getenv("HARNESS_MASTER_URL", "http://localhost:8080"), "coordinator base URL")
	secret := flag.String("secret", getenv("HARNESS_ADMIN_SECRET", "admin888"), "admin secret")
	dir := flag.String("dir", ".", "directory to scan for video files")
	workers := flag.Int("workers", 4, "concurrent uploads")
	retries := flag.Int("retries", 3, "retries per file on transient failure")
	flag.Parse()

	files, err := upload.ScanDir(*dir)
	if err != nil {
		log.Fatalf("scan: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("no video files under %s", *dir)
	}
	log.Printf("uploading %d files from %s to %s", len(files), *dir, *masterURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	u := upload.New(cluster.NewClient(*masterURL, *secret), *workers, *retries)
	results, stats := u.UploadAll(ctx, files)

	for _, r := range results {
		if r.OK() {
			log.Printf("ok  %s (%d bytes, %d attempt(s))", filepath.Base(r.Path), r.Size, r.Attempts)
		} else {
			log.Printf("ERR %s: %v", filepath.Base(r.Path), r.Err)
		}
	}
	log.Printf("done: %d uploaded, %d failed, %d bytes in %s",
		stats.Uploaded, stats.Failed, stats.Bytes, stats.Elapsed.Round(time.Millisecond))

	if stats.Failed > 0 {
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
