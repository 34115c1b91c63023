// Package monitor samples the coordinator's stats and Prometheus metrics
// endpoints on an interval, keeping a bounded history for post-run
// inspection. It observes only; nothing here mutates the cluster.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/dreamware/gravecheck/internal/cluster"
)

// Sample is one observation of the coordinator.
type Sample struct {
	At      time.Time          `json:"at"`
	Stats   cluster.Stats      `json:"stats"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
	Err     string             `json:"error,omitempty"`
}

// Monitor polls the coordinator on a fixed interval.
type Monitor struct {
	client     *cluster.Client
	metricsURL string
	interval   time.Duration
	maxSamples int
	logf       func(format string, args ...any)

	mu      sync.Mutex
	history []Sample
}

// New returns a monitor polling every interval. metricsURL may be empty to
// skip the Prometheus endpoint. History is capped at maxSamples; older
// samples are discarded.
func New(client *cluster.Client, metricsURL string, interval time.Duration, maxSamples int) *Monitor {
	if maxSamples < 1 {
		maxSamples = 1
	}
	return &Monitor{
		client:     client,
		metricsURL: metricsURL,
		interval:   interval,
		maxSamples: maxSamples,
		logf:       log.Printf,
	}
}

// SetLogf replaces the monitor's log function.
func (m *Monitor) SetLogf(logf func(format string, args ...any)) { m.logf = logf }

// Run samples immediately and then on every interval tick until ctx is
// canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.observe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.observe(ctx)
		}
	}
}

// Sample takes one observation outside the Run loop.
func (m *Monitor) Sample(ctx context.Context) Sample {
	return m.observe(ctx)
}

func (m *Monitor) observe(ctx context.Context) Sample {
	s := Sample{At: time.Now().UTC()}

	stats, err := m.client.Stats(ctx)
	if err != nil {
		s.Err = err.Error()
		m.logf("monitor: stats unavailable: %v", err)
	} else {
		s.Stats = stats
		m.logf("monitor: %d files across %d active nodes", stats.TotalFiles, stats.ActiveNodes)
	}

	if m.metricsURL != "" {
		text, err := cluster.GetText(ctx, m.metricsURL)
		if err != nil {
			if s.Err == "" {
				s.Err = err.Error()
			}
			m.logf("monitor: metrics unavailable: %v", err)
		} else if metrics, err := ParseMetrics(text); err != nil {
			m.logf("monitor: bad metrics exposition: %v", err)
		} else {
			s.Metrics = metrics
		}
	}

	m.mu.Lock()
	m.history = append(m.history, s)
	if len(m.history) > m.maxSamples {
		m.history = m.history[len(m.history)-m.maxSamples:]
	}
	m.mu.Unlock()
	return s
}

// History returns a copy of the recorded samples, oldest first.
func (m *Monitor) History() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sample(nil), m.history...)
}

// SaveHistory writes the recorded samples to path as JSON.
func (m *Monitor) SaveHistory(path string) error {
	data, err := json.MarshalIndent(m.History(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// ParseMetrics decodes a Prometheus text exposition into flat name/value
// pairs. Only the first series of each family is kept; the coordinator
// exports unlabeled gauges and counters, so that is the whole family.
func ParseMetrics(text string) (map[string]float64, error) {
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(families))
	for name, fam := range families {
		metrics := fam.GetMetric()
		if len(metrics) == 0 {
			continue
		}
		if v, ok := metricValue(fam.GetType(), metrics[0]); ok {
			out[name] = v
		}
	}
	return out, nil
}

func metricValue(kind dto.MetricType, m *dto.Metric) (float64, bool) {
	switch kind {
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue(), true
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue(), true
	case dto.MetricType_UNTYPED:
		return m.GetUntyped().GetValue(), true
	}
	return 0, false
}
