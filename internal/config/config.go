// Package config loads harness configuration from an optional YAML file,
// applies defaults matching the standard three-worker compose deployment,
// and validates the result.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/gravecheck/internal/control"
	"github.com/dreamware/gravecheck/internal/observer"
)

// Duration wraps time.Duration so YAML values can be written as "30s", "5m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Node describes one worker under test.
type Node struct {
	ID        string `yaml:"id"`
	Container string `yaml:"container"`
	DataDir   string `yaml:"data_dir"`
}

// Config is the full harness configuration. Master is the coordinator's
// container mapping: its logs carry the tombstone markers, so it must be
// reachable through the control port like any worker.
type Config struct {
	MasterURL   string `yaml:"master_url"`
	AdminSecret string `yaml:"admin_secret"`
	Master      Node   `yaml:"master"`
	Nodes       []Node `yaml:"nodes"`

	OutputDir   string `yaml:"output_dir"`
	FilePattern string `yaml:"file_pattern"`

	DeletePause Duration `yaml:"delete_pause"`
	StopSettle  Duration `yaml:"stop_settle"`
	StartSettle Duration `yaml:"start_settle"`
	PollTimeout Duration `yaml:"poll_timeout"`
	PollEvery   Duration `yaml:"poll_every"`

	MinFiles  int `yaml:"min_files"`
	WarnFiles int `yaml:"warn_files"`

	Markers observer.Markers `yaml:"markers"`
}

// Default returns the configuration for the standard compose deployment:
// one master on localhost and three workers named movie-dist-kv-workerN-1.
func Default() *Config {
	nodes := make([]Node, 0, 3)
	for i := 1; i <= 3; i++ {
		nodes = append(nodes, Node{
			ID:        fmt.Sprintf("worker%d", i),
			Container: fmt.Sprintf("movie-dist-kv-worker%d-1", i),
			DataDir:   fmt.Sprintf("/root/data_%d%d", i, i),
		})
	}
	return &Config{
		MasterURL:   "http://localhost:8080",
		AdminSecret: "admin888",
		Master: Node{
			ID:        "master",
			Container: "movie-dist-kv-master-1",
		},
		Nodes: nodes,
		OutputDir:   "reports",
		FilePattern: "test_movie_%04d.mp4",
		DeletePause: Duration(500 * time.Millisecond),
		StopSettle:  Duration(5 * time.Second),
		StartSettle: Duration(10 * time.Second),
		PollTimeout: Duration(30 * time.Second),
		PollEvery:   Duration(5 * time.Second),
		MinFiles:    1,
		WarnFiles:   20,
		Markers:     observer.DefaultMarkers(),
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the harness cannot run with.
func (c *Config) Validate() error {
	if c.MasterURL == "" {
		return fmt.Errorf("master_url must be set")
	}
	if c.AdminSecret == "" {
		return fmt.Errorf("admin_secret must be set")
	}
	if c.Master.ID == "" || c.Master.Container == "" {
		return fmt.Errorf("master id and container are required")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one worker node must be configured")
	}
	seen := map[string]bool{c.Master.ID: true}
	for i, n := range c.Nodes {
		if n.ID == "" || n.Container == "" || n.DataDir == "" {
			return fmt.Errorf("node %d: id, container and data_dir are all required", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
	if c.PollTimeout <= 0 || c.PollEvery <= 0 {
		return fmt.Errorf("poll_timeout and poll_every must be positive")
	}
	if c.Markers.TombstoneCreated == "" || c.Markers.PartialFailure == "" || c.Markers.AutoCleanup == "" {
		return fmt.Errorf("all three log markers must be set")
	}
	return nil
}

// ControlNodes converts the master and the workers into the node-control
// form. The master is included so its logs can be scraped for tombstone
// markers; it is not part of NodeIDs and is never fault-injected.
func (c *Config) ControlNodes() []control.Node {
	nodes := make([]control.Node, 0, len(c.Nodes)+1)
	nodes = append(nodes, control.Node{ID: c.Master.ID, Container: c.Master.Container, DataDir: c.Master.DataDir})
	for _, n := range c.Nodes {
		nodes = append(nodes, control.Node{ID: n.ID, Container: n.Container, DataDir: n.DataDir})
	}
	return nodes
}

// NodeIDs returns the configured worker IDs in order.
func (c *Config) NodeIDs() []string {
	ids := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}
