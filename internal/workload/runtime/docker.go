// Package runtime provides workload.Executor implementations for the
// supported process runtimes.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"leasekeeper/internal/workload"
)

// dockerAPI is the subset of the Docker client the executor uses.
type dockerAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	Close() error
}

// DockerExecutor controls existing containers by name. It never creates or
// removes containers.
type DockerExecutor struct {
	client      dockerAPI
	stopTimeout time.Duration
}

// NewDockerExecutor creates a Docker executor from the standard environment
// variables (DOCKER_HOST, etc.).
func NewDockerExecutor(stopTimeout time.Duration) (*DockerExecutor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w: %w", workload.ErrRuntimeUnavailable, err)
	}
	return &DockerExecutor{client: cli, stopTimeout: stopTimeout}, nil
}

// Start implements workload.Executor.
func (d *DockerExecutor) Start(ctx context.Context, name string) error {
	if err := d.client.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return d.classify("start", name, err)
	}
	return nil
}

// Stop implements workload.Executor.
func (d *DockerExecutor) Stop(ctx context.Context, name string) error {
	opts := container.StopOptions{}
	if d.stopTimeout > 0 {
		seconds := int(d.stopTimeout.Seconds())
		opts.Timeout = &seconds
	}
	if err := d.client.ContainerStop(ctx, name, opts); err != nil {
		return d.classify("stop", name, err)
	}
	return nil
}

// Status implements workload.Executor.
func (d *DockerExecutor) Status(ctx context.Context, name string) (workload.Status, error) {
	info, err := d.client.ContainerInspect(ctx, name)
	if errdefs.IsNotFound(err) {
		return workload.StatusNotFound, nil
	}
	if err != nil {
		return workload.StatusNotRunning, d.classify("inspect", name, err)
	}
	if info.ContainerJSONBase != nil && info.State != nil && info.State.Running {
		return workload.StatusRunning, nil
	}
	return workload.StatusNotRunning, nil
}

// Close releases the Docker client.
func (d *DockerExecutor) Close() error {
	return d.client.Close()
}

func (d *DockerExecutor) classify(op, name string, err error) error {
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to %s container %s: %w", op, name, workload.ErrNotFound)
	}
	return fmt.Errorf("failed to %s container %s: %w: %w", op, name, workload.ErrRuntimeUnavailable, err)
}
