// Package workload drives the local copy of a managed workload. The
// Controller gives idempotent start and stop on top of an Executor, which is
// the boundary to a concrete runtime (Docker, Kubernetes, systemd).
package workload

import (
	"context"
	"errors"

	"leasekeeper/internal/lease"
)

var (
	// ErrNotFound means the runtime has no workload with the configured
	// process name. Retrying cannot fix it.
	ErrNotFound = errors.New("workload not found")

	// ErrRuntimeUnavailable means the runtime itself could not be reached or
	// refused the request.
	ErrRuntimeUnavailable = errors.New("workload runtime unavailable")
)

// Spec is the static description of one managed workload.
type Spec struct {
	ID          string
	ProcessName string
	LeaseKey    string
}

// NewSpec builds a Spec whose lease key is namespaced under prefix.
func NewSpec(prefix, id, processName string) Spec {
	return Spec{
		ID:          id,
		ProcessName: processName,
		LeaseKey:    lease.Key(prefix, id),
	}
}

// Status is what an Executor reports about a process.
type Status int

const (
	StatusNotRunning Status = iota
	StatusRunning
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusNotRunning:
		return "not_running"
	case StatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Executor starts, stops and inspects processes by name.
type Executor interface {
	// Start starts the named process. It returns an error wrapping
	// ErrNotFound if the process does not exist.
	Start(ctx context.Context, processName string) error

	// Stop stops the named process. It returns an error wrapping
	// ErrNotFound if the process does not exist.
	Stop(ctx context.Context, processName string) error

	// Status reports the state of the named process. A missing process is
	// StatusNotFound with a nil error.
	Status(ctx context.Context, processName string) (Status, error)
}
