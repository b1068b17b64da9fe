package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"

	"leasekeeper/internal/workload"
)

// dbusAPI is the subset of the systemd D-Bus connection the executor uses.
type dbusAPI interface {
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	Close()
}

// SystemdExecutor controls systemd units over D-Bus. The process name is the
// unit name; ".service" is appended when no unit suffix is given.
type SystemdExecutor struct {
	conn dbusAPI
}

// NewSystemdExecutor connects to the system bus.
func NewSystemdExecutor(ctx context.Context) (*SystemdExecutor, error) {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w: %w", workload.ErrRuntimeUnavailable, err)
	}
	return &SystemdExecutor{conn: conn}, nil
}

// Start implements workload.Executor.
func (s *SystemdExecutor) Start(ctx context.Context, name string) error {
	return s.run(ctx, "start", name, s.conn.StartUnitContext)
}

// Stop implements workload.Executor.
func (s *SystemdExecutor) Stop(ctx context.Context, name string) error {
	return s.run(ctx, "stop", name, s.conn.StopUnitContext)
}

// Status implements workload.Executor.
func (s *SystemdExecutor) Status(ctx context.Context, name string) (workload.Status, error) {
	unit, found, err := s.unit(ctx, unitName(name))
	if err != nil {
		return workload.StatusNotRunning, err
	}
	if !found {
		return workload.StatusNotFound, nil
	}
	if unit.ActiveState == "active" {
		return workload.StatusRunning, nil
	}
	return workload.StatusNotRunning, nil
}

// Close closes the D-Bus connection.
func (s *SystemdExecutor) Close() error {
	s.conn.Close()
	return nil
}

type unitJob func(ctx context.Context, name, mode string, ch chan<- string) (int, error)

func (s *SystemdExecutor) run(ctx context.Context, op, name string, job unitJob) error {
	unit := unitName(name)
	if _, found, err := s.unit(ctx, unit); err != nil {
		return err
	} else if !found {
		return fmt.Errorf("failed to %s unit %s: %w", op, unit, workload.ErrNotFound)
	}

	done := make(chan string, 1)
	if _, err := job(ctx, unit, "replace", done); err != nil {
		return fmt.Errorf("failed to %s unit %s: %w: %w", op, unit, workload.ErrRuntimeUnavailable, err)
	}

	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("failed to %s unit %s: job result %q: %w", op, unit, result, workload.ErrRuntimeUnavailable)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to %s unit %s: %w: %w", op, unit, workload.ErrRuntimeUnavailable, ctx.Err())
	}
}

func (s *SystemdExecutor) unit(ctx context.Context, unit string) (dbus.UnitStatus, bool, error) {
	units, err := s.conn.ListUnitsByNamesContext(ctx, []string{unit})
	if err != nil {
		return dbus.UnitStatus{}, false, fmt.Errorf("failed to list unit %s: %w: %w", unit, workload.ErrRuntimeUnavailable, err)
	}
	for _, u := range units {
		if u.Name == unit && u.LoadState != "not-found" {
			return u, true, nil
		}
	}
	return dbus.UnitStatus{}, false, nil
}

func unitName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}
