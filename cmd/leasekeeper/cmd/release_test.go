package cmd

import (
	"errors"
	"testing"

	"leasekeeper/internal/config"
)

func TestReleaseCommand_UnknownWorkload(t *testing.T) {
	resetViper()
	t.Cleanup(resetViper)

	path := writeConfig(t, `
store:
  backend: memory
workloads:
  - id: cronjobs
    process_name: cronjobs
`)
	rootCmd.SetArgs([]string{"release", "reports", "--owner", "host-a:1:aaaaaaaa", "--config", path})

	if err := rootCmd.Execute(); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected ErrInvalid for an unconfigured workload, got %v", err)
	}
}

func TestReleaseCommand_FreeLease(t *testing.T) {
	resetViper()
	t.Cleanup(resetViper)

	path := writeConfig(t, `
store:
  backend: memory
workloads:
  - id: cronjobs
    process_name: cronjobs
`)
	rootCmd.SetArgs([]string{"release", "cronjobs", "--owner", "host-a:1:aaaaaaaa", "--config", path})

	if err := rootCmd.Execute(); err != nil {
		t.Errorf("releasing a free lease should succeed: %v", err)
	}
}
