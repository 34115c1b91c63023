package control

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerController implements Controller against the Docker Engine API. One
// logical node corresponds to one container; the mapping comes from the
// harness configuration.
type DockerController struct {
	cli         client.APIClient
	nodes       map[string]Node
	stopTimeout time.Duration // grace period before the engine kills the container
	confirmWait time.Duration // how long to wait for an inspect to confirm state
}

// NewDockerController connects to the local Docker daemon (honoring the
// usual DOCKER_HOST environment) and tracks the given nodes.
func NewDockerController(nodes []Node) (*DockerController, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return newDockerController(cli, nodes), nil
}

func newDockerController(cli client.APIClient, nodes []Node) *DockerController {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	return &DockerController{
		cli:         cli,
		nodes:       byID,
		stopTimeout: 10 * time.Second,
		confirmWait: 30 * time.Second,
	}
}

func (d *DockerController) lookup(nodeID string) (Node, error) {
	n, ok := d.nodes[nodeID]
	if !ok {
		return Node{}, fmt.Errorf("unknown node %q", nodeID)
	}
	return n, nil
}

// Stop stops the node's container and waits until inspect reports it is no
// longer running.
func (d *DockerController) Stop(ctx context.Context, nodeID string) error {
	n, err := d.lookup(nodeID)
	if err != nil {
		return err
	}
	secs := int(d.stopTimeout.Seconds())
	if err := d.cli.ContainerStop(ctx, n.Container, container.StopOptions{Timeout: &secs}); err != nil {
		return fmt.Errorf("stop %s: %w", nodeID, err)
	}
	if err := d.awaitRunning(ctx, n.Container, false); err != nil {
		return fmt.Errorf("stop %s: %w", nodeID, err)
	}
	return nil
}

// Start starts the node's container and waits until inspect reports it
// running.
func (d *DockerController) Start(ctx context.Context, nodeID string) error {
	n, err := d.lookup(nodeID)
	if err != nil {
		return err
	}
	if err := d.cli.ContainerStart(ctx, n.Container, container.StartOptions{}); err != nil {
		return fmt.Errorf("start %s: %w", nodeID, err)
	}
	if err := d.awaitRunning(ctx, n.Container, true); err != nil {
		return fmt.Errorf("start %s: %w", nodeID, err)
	}
	return nil
}

// awaitRunning polls container state until it matches want or confirmWait
// elapses. ContainerStop already blocks, but the inspect loop is what turns
// "command returned" into "state confirmed".
func (d *DockerController) awaitRunning(ctx context.Context, name string, want bool) error {
	deadline := time.Now().Add(d.confirmWait)
	for {
		insp, err := d.cli.ContainerInspect(ctx, name)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", name, err)
		}
		if insp.State != nil && insp.State.Running == want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("container %s did not reach running=%v within %v", name, want, d.confirmWait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Logs fetches the container's combined stdout/stderr log text.
func (d *DockerController) Logs(ctx context.Context, nodeID string) (string, error) {
	n, err := d.lookup(nodeID)
	if err != nil {
		return "", err
	}
	rc, err := d.cli.ContainerLogs(ctx, n.Container, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("logs %s: %w", nodeID, err)
	}
	defer rc.Close()

	// Docker multiplexes stdout/stderr into one stream; demux and merge.
	var out, errOut bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &errOut, rc); err != nil {
		return "", fmt.Errorf("logs %s: %w", nodeID, err)
	}
	out.Write(errOut.Bytes())
	return out.String(), nil
}

// GrepLogs returns the node's log lines containing pattern.
func (d *DockerController) GrepLogs(ctx context.Context, nodeID, pattern string) ([]string, error) {
	text, err := d.Logs(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return FilterLines(text, pattern), nil
}

// ListFiles runs `ls -1` in the node's data directory via docker exec and
// returns the resulting file names.
func (d *DockerController) ListFiles(ctx context.Context, nodeID string) ([]string, error) {
	n, err := d.lookup(nodeID)
	if err != nil {
		return nil, err
	}
	execResp, err := d.cli.ContainerExecCreate(ctx, n.Container, container.ExecOptions{
		Cmd:          []string{"ls", "-1", n.DataDir},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("exec create on %s: %w", nodeID, err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("exec attach on %s: %w", nodeID, err)
	}
	defer attach.Close()

	var out, errOut bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &errOut, attach.Reader); err != nil {
		return nil, fmt.Errorf("exec read on %s: %w", nodeID, err)
	}

	insp, err := d.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("exec inspect on %s: %w", nodeID, err)
	}
	if insp.ExitCode != 0 {
		return nil, fmt.Errorf("ls on %s exited %d: %s", nodeID, insp.ExitCode, strings.TrimSpace(errOut.String()))
	}
	return SplitFiles(out.String()), nil
}

// SplitFiles splits ls output into non-empty file names.
func SplitFiles(s string) []string {
	var files []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files
}

// FilterLines returns the lines of text containing pattern. An empty pattern
// matches every non-empty line.
func FilterLines(text, pattern string) []string {
	var matched []string
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if pattern == "" || strings.Contains(line, pattern) {
			matched = append(matched, line)
		}
	}
	return matched
}
