package observer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource returns canned log text per node.
type stubSource struct {
	logs map[string]string
	err  error
}

func (s *stubSource) Logs(_ context.Context, nodeID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.logs[nodeID], nil
}

const sampleLogs = `2026/08/29 10:00:01 upload complete: other.mp4
2026/08/29 10:00:05 tombstone created for test_movie_0001.mp4
2026/08/29 10:00:05 partial delete failure for test_movie_0002.mp4 (1 replica unreachable)
2026/08/29 10:00:30 tombstone auto-cleanup removed test_movie_0001.mp4
2026/08/29 10:00:31 heartbeat from worker3
`

func TestClassify(t *testing.T) {
	s := NewScanner(nil, DefaultMarkers())

	tests := []struct {
		line   string
		want   Kind
		wantOK bool
	}{
		{"tombstone created for a.mp4", KindTombstoneCreated, true},
		{"partial delete failure for b.mp4", KindPartialFailure, true},
		{"tombstone auto-cleanup removed a.mp4", KindAutoCleanup, true},
		{"upload complete: a.mp4", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		kind, ok := s.Classify(tt.line)
		assert.Equal(t, tt.wantOK, ok, "line %q", tt.line)
		assert.Equal(t, tt.want, kind, "line %q", tt.line)
	}
}

func TestScanClassifiesMarkerLines(t *testing.T) {
	src := &stubSource{logs: map[string]string{"master": sampleLogs}}
	s := NewScanner(src, DefaultMarkers())
	seen := NewEventSet()

	events, err := s.Scan(context.Background(), "master", seen)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, KindTombstoneCreated, events[0].Kind)
	assert.Equal(t, KindPartialFailure, events[1].Kind)
	assert.Equal(t, KindAutoCleanup, events[2].Kind)
	for _, e := range events {
		assert.Equal(t, "master", e.Node)
		assert.False(t, e.At.IsZero())
	}
}

func TestScanIsIdempotent(t *testing.T) {
	src := &stubSource{logs: map[string]string{"master": sampleLogs}}
	s := NewScanner(src, DefaultMarkers())
	seen := NewEventSet()

	first, err := s.Scan(context.Background(), "master", seen)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	// Scanning the same fixed log text again must yield zero new events.
	second, err := s.Scan(context.Background(), "master", seen)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, seen.Events(), 3)
}

func TestScanPicksUpNewLinesOnly(t *testing.T) {
	src := &stubSource{logs: map[string]string{"worker2": "tombstone auto-cleanup removed f1\n"}}
	s := NewScanner(src, DefaultMarkers())
	seen := NewEventSet()

	_, err := s.Scan(context.Background(), "worker2", seen)
	require.NoError(t, err)

	// The log grows by one cleanup line; only that line is reported.
	src.logs["worker2"] += "tombstone auto-cleanup removed f2\n"
	fresh, err := s.Scan(context.Background(), "worker2", seen)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Contains(t, fresh[0].Line, "f2")
	assert.Equal(t, 2, seen.Count(KindAutoCleanup))
}

func TestScanSourceError(t *testing.T) {
	s := NewScanner(&stubSource{err: errors.New("node down")}, DefaultMarkers())
	_, err := s.Scan(context.Background(), "worker1", NewEventSet())
	assert.Error(t, err)
}

func TestEventSetQueries(t *testing.T) {
	seen := NewEventSet()
	assert.False(t, seen.Has(KindAutoCleanup))

	seen.Add(Event{Node: "w1", Line: "l1", Kind: KindAutoCleanup})
	seen.Add(Event{Node: "w2", Line: "l2", Kind: KindAutoCleanup})
	seen.Add(Event{Node: "m", Line: "l3", Kind: KindTombstoneCreated})

	assert.True(t, seen.Has(KindAutoCleanup))
	assert.Equal(t, 2, seen.Count(KindAutoCleanup))
	assert.Len(t, seen.OfKind(KindAutoCleanup), 2)
	assert.Equal(t, 1, seen.Count(KindTombstoneCreated))
	assert.False(t, seen.Has(KindPartialFailure))
}

func TestEventSetDedupByExactLine(t *testing.T) {
	seen := NewEventSet()
	assert.True(t, seen.Add(Event{Node: "w1", Line: "same line", Kind: KindAutoCleanup}))
	assert.False(t, seen.Add(Event{Node: "w1", Line: "same line", Kind: KindAutoCleanup}))
	assert.Len(t, seen.Events(), 1)
}
