// Package upload seeds the cluster with test files. It walks a local
// directory for video files and pushes them to the coordinator over a
// bounded worker pool, retrying transient failures.
package upload

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/gravecheck/internal/cluster"
)

var videoExtensions = map[string]bool{
	".mp4": true,
	".mkv": true,
	".avi": true,
	".mov": true,
	".ts":  true,
}

// Result records one file's upload attempt.
type Result struct {
	Path     string
	Size     int64
	Attempts int
	Err      error
}

// OK reports whether the upload eventually succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Stats summarizes a batch.
type Stats struct {
	Uploaded int
	Failed   int
	Bytes    int64
	Elapsed  time.Duration
}

// Uploader pushes local files into the cluster.
type Uploader struct {
	client      *cluster.Client
	workers     int
	retries     int
	backoffBase time.Duration
	logf        func(format string, args ...any)
}

// New returns an uploader running at most workers concurrent uploads, each
// retried up to retries times on failure.
func New(client *cluster.Client, workers, retries int) *Uploader {
	if workers < 1 {
		workers = 1
	}
	if retries < 0 {
		retries = 0
	}
	return &Uploader{
		client:      client,
		workers:     workers,
		retries:     retries,
		backoffBase: time.Second,
		logf:        log.Printf,
	}
}

// SetLogf replaces the uploader's log function.
func (u *Uploader) SetLogf(logf func(format string, args ...any)) { u.logf = logf }

// ScanDir returns the video files directly under dir, sorted by name.
func ScanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if videoExtensions[ext] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// UploadAll pushes every path through the worker pool and returns per-file
// results in the input order. A canceled context stops new uploads; results
// for files never attempted carry the context error.
func (u *Uploader) UploadAll(ctx context.Context, paths []string) ([]Result, Stats) {
	start := time.Now()
	results := make([]Result, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for i, path := range paths {
		results[i] = Result{Path: path}
		g.Go(func() error {
			results[i] = u.uploadOne(ctx, path)
			return nil
		})
	}
	g.Wait()

	var stats Stats
	stats.Elapsed = time.Since(start)
	for _, r := range results {
		if r.OK() {
			stats.Uploaded++
			stats.Bytes += r.Size
		} else {
			stats.Failed++
		}
	}
	return results, stats
}

func (u *Uploader) uploadOne(ctx context.Context, path string) Result {
	res := Result{Path: path}
	name := filepath.Base(path)

	for attempt := 0; attempt <= u.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		if attempt > 0 {
			wait := u.backoff(attempt)
			u.logf("upload %s: retry %d/%d in %s", name, attempt, u.retries, wait)
			select {
			case <-ctx.Done():
				res.Err = ctx.Err()
				return res
			case <-time.After(wait):
			}
		}
		res.Attempts = attempt + 1

		f, err := os.Open(path)
		if err != nil {
			res.Err = err
			return res // not transient, no retry
		}
		info, statErr := f.Stat()
		err = u.client.Upload(ctx, name, f)
		f.Close()
		if err == nil {
			if statErr == nil {
				res.Size = info.Size()
			}
			res.Err = nil
			return res
		}
		res.Err = err
	}
	return res
}

// backoff returns the wait before retry attempt n, capped at eight times
// the base.
func (u *Uploader) backoff(n int) time.Duration {
	if n > 3 {
		n = 3
	}
	return u.backoffBase * time.Duration(1<<n)
}
