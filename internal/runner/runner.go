// Package runner executes candidate code inside disposable Docker containers.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	// Execution limits. A run gets one short-lived container with no
	// network and tight resource caps.
	defaultImage     = "python:3.12-alpine"
	runTimeout       = 10 * time.Second
	memoryLimitBytes = 256 * 1024 * 1024 // 256MB
	cpuQuota         = 50000             // 0.5 CPU
	pidsLimit        = 64
	containerUser    = "1000"
	workingDir       = "/tmp"
)

// ErrUnsupportedLanguage is returned for any language other than python.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Result is the outcome of one code run. Error carries candidate-visible
// failures (stderr, timeout, nonzero exit); infrastructure problems are
// returned as a Go error instead.
type Result struct {
	Output        string  `json:"output"`
	Error         string  `json:"error"`
	ExecutionSecs float64 `json:"execution_time"`
}

// Runner runs candidate code and captures its output.
type Runner interface {
	Run(ctx context.Context, language, code string) (*Result, error)
}

// DockerRunner implements Runner with one ephemeral container per run.
type DockerRunner struct {
	cli   *client.Client
	image string
}

// NewDockerRunner creates a Docker-backed code runner. An empty image
// selects the default Python image.
func NewDockerRunner(image string) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if image == "" {
		image = defaultImage
	}
	slog.Info("Code runner initialized", "image", image)
	return &DockerRunner{cli: cli, image: image}, nil
}

// Run executes the code and waits for completion or timeout.
func (r *DockerRunner) Run(ctx context.Context, language, code string) (*Result, error) {
	if language != "python" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	config := &container.Config{
		Image:           r.image,
		Cmd:             []string{"python", "-c", code},
		User:            containerUser,
		WorkingDir:      workingDir,
		NetworkDisabled: true,
	}
	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    memoryLimitBytes,
			CPUQuota:  cpuQuota,
			PidsLimit: ptr(int64(pidsLimit)),
		},
	}

	created, err := r.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("create run container: %w", err)
	}
	defer r.remove(created.ID)

	start := time.Now()
	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start run container %s: %w", created.ID, err)
	}

	waitCh, errCh := r.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case waitResp := <-waitCh:
		if waitResp.Error != nil {
			return nil, fmt.Errorf("wait for run container %s: %s", created.ID, waitResp.Error.Message)
		}
		exitCode = waitResp.StatusCode
	case err := <-errCh:
		return nil, fmt.Errorf("wait for run container %s: %w", created.ID, err)
	case <-time.After(runTimeout):
		slog.Warn("Code run timed out", "container_id", created.ID)
		return &Result{
			Error:         fmt.Sprintf("Execution timed out (%d second limit)", int(runTimeout.Seconds())),
			ExecutionSecs: time.Since(start).Seconds(),
		}, nil
	}
	elapsed := time.Since(start)

	stdout, stderr, err := r.collectLogs(ctx, created.ID)
	if err != nil {
		return nil, err
	}

	if exitCode != 0 && stderr == "" {
		stderr = fmt.Sprintf("Process exited with code %d", exitCode)
	}

	slog.Info("Code run finished",
		"container_id", created.ID,
		"exit_code", exitCode,
		"duration_ms", elapsed.Milliseconds())

	return &Result{
		Output:        stdout,
		Error:         stderr,
		ExecutionSecs: elapsed.Seconds(),
	}, nil
}

func (r *DockerRunner) collectLogs(ctx context.Context, containerID string) (string, string, error) {
	logs, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("read run container logs %s: %w", containerID, err)
	}
	defer func() {
		if closeErr := logs.Close(); closeErr != nil {
			slog.Debug("Failed to close log stream", "error", closeErr, "container_id", containerID)
		}
	}()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", "", fmt.Errorf("demux run container logs %s: %w", containerID, err)
	}
	return stdout.String(), stderr.String(), nil
}

// remove cleans up the run container. Runs detached from the request
// context so cleanup still happens after cancellation.
func (r *DockerRunner) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			return
		}
		slog.Warn("Failed to remove run container", "error", err, "container_id", containerID)
	}
}

func ptr[T any](v T) *T {
	return &v
}
