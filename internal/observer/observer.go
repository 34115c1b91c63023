// Package observer classifies raw node log lines into protocol events. The
// storage backend announces tombstone activity only through its logs, so the
// harness's view of the deletion protocol is whatever this package can read
// out of scraped log text. Matching is plain substring markers; the marker
// strings are configuration because they depend on how the backend was built.
package observer

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Kind identifies a protocol event class.
type Kind string

const (
	// KindTombstoneCreated is logged by the coordinator when a delete
	// records a tombstone.
	KindTombstoneCreated Kind = "tombstone-created"

	// KindPartialFailure is logged by the coordinator when a delete could
	// not reach every replica.
	KindPartialFailure Kind = "partial-delete-failure"

	// KindAutoCleanup is logged when a restarted node's leftover replica
	// is removed by tombstone reconciliation.
	KindAutoCleanup Kind = "auto-cleanup"
)

// Event is one classified log line.
type Event struct {
	Node string    `json:"node"`
	Line string    `json:"line"`
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"` // when the harness observed the line
}

// Markers holds the substring markers for each event kind.
type Markers struct {
	TombstoneCreated string `yaml:"tombstone_created"`
	PartialFailure   string `yaml:"partial_failure"`
	AutoCleanup      string `yaml:"auto_cleanup"`
}

// DefaultMarkers returns the marker strings the reference backend logs.
func DefaultMarkers() Markers {
	return Markers{
		TombstoneCreated: "tombstone created",
		PartialFailure:   "partial delete failure",
		AutoCleanup:      "tombstone auto-cleanup",
	}
}

// LogSource supplies raw log text for a node. control.Controller satisfies
// this.
type LogSource interface {
	Logs(ctx context.Context, nodeID string) (string, error)
}

// EventSet accumulates deduplicated events across repeated scrapes within one
// scenario run. The dedup key is the exact raw line text, so scraping an
// unchanged log window twice adds nothing. Safe for use from one goroutine;
// the harness runs scenarios strictly sequentially.
type EventSet struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	events []Event
}

// NewEventSet returns an empty event set.
func NewEventSet() *EventSet {
	return &EventSet{seen: make(map[string]struct{})}
}

// Add records an event unless its raw line was already seen. Returns true if
// the event was new.
func (s *EventSet) Add(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[e.Line]; dup {
		return false
	}
	s.seen[e.Line] = struct{}{}
	s.events = append(s.events, e)
	return true
}

// Has reports whether any event of the given kind was observed.
func (s *EventSet) Has(kind Kind) bool { return s.Count(kind) > 0 }

// Count returns the number of distinct events of the given kind.
func (s *EventSet) Count(kind Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Events returns a copy of all observed events in observation order.
func (s *EventSet) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// OfKind returns a copy of the observed events of one kind.
func (s *EventSet) OfKind(kind Kind) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Scanner scrapes node logs and classifies marker lines.
type Scanner struct {
	source  LogSource
	markers Markers
}

// NewScanner creates a scanner reading logs from source and matching the
// given markers.
func NewScanner(source LogSource, markers Markers) *Scanner {
	return &Scanner{source: source, markers: markers}
}

// Classify returns the event kind for a log line, if any. A line matching
// several markers is classified by the first match in marker order; the
// reference backend never logs two markers on one line.
func (s *Scanner) Classify(line string) (Kind, bool) {
	switch {
	case s.markers.TombstoneCreated != "" && strings.Contains(line, s.markers.TombstoneCreated):
		return KindTombstoneCreated, true
	case s.markers.PartialFailure != "" && strings.Contains(line, s.markers.PartialFailure):
		return KindPartialFailure, true
	case s.markers.AutoCleanup != "" && strings.Contains(line, s.markers.AutoCleanup):
		return KindAutoCleanup, true
	}
	return "", false
}

// Scan fetches nodeID's logs, classifies marker lines, and adds them to seen.
// Only events not already in seen are returned, so repeated polling of the
// same log window is idempotent.
func (s *Scanner) Scan(ctx context.Context, nodeID string, seen *EventSet) ([]Event, error) {
	text, err := s.source.Logs(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	var fresh []Event
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		kind, ok := s.Classify(line)
		if !ok {
			continue
		}
		e := Event{Node: nodeID, Line: line, Kind: kind, At: now}
		if seen.Add(e) {
			fresh = append(fresh, e)
		}
	}
	return fresh, nil
}
