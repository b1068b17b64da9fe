package cmd

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/viper"

	"leasekeeper/internal/workload"
)

func resetViper() {
	viper.Reset()
	cfgFile = ""
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leasekeeper.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// fakeExecutor tracks which processes run.
type fakeExecutor struct {
	mu      sync.Mutex
	running map[string]bool
	starts  map[string]int
	stops   map[string]int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		running: make(map[string]bool),
		starts:  make(map[string]int),
		stops:   make(map[string]int),
	}
}

func (f *fakeExecutor) Start(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[name] = true
	f.starts[name]++
	return nil
}

func (f *fakeExecutor) Stop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[name] = false
	f.stops[name]++
	return nil
}

func (f *fakeExecutor) Status(ctx context.Context, name string) (workload.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running[name] {
		return workload.StatusRunning, nil
	}
	return workload.StatusNotRunning, nil
}

func (f *fakeExecutor) counts(name string) (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts[name], f.stops[name]
}

func (f *fakeExecutor) isRunning(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[name]
}
