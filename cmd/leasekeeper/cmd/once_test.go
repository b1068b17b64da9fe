package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestOnceCommand_RunsCalls(t *testing.T) {
	resetViper()
	t.Cleanup(resetViper)

	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /joke", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"setup":"joke"}`))
	})
	mux.HandleFunc("GET /down", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	path := writeConfig(t, fmt.Sprintf(`
store:
  backend: memory
job:
  calls:
    - name: joke_api
      url: %s/joke
    - name: down_api
      url: %s/down
`, server.URL, server.URL))

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	t.Cleanup(func() { rootCmd.SetOut(nil); rootCmd.SetErr(nil) })
	rootCmd.SetArgs([]string{"once", "--config", path})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("failed calls must not fail the command: %v", err)
	}

	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
	out := stdout.String()
	if !strings.Contains(out, "✓ joke_api") {
		t.Errorf("expected joke_api success in output, got: %s", out)
	}
	if !strings.Contains(out, "✗ down_api (502)") {
		t.Errorf("expected down_api failure in output, got: %s", out)
	}
	if !strings.Contains(out, "2 calls, 1 failed") {
		t.Errorf("expected summary in output, got: %s", out)
	}
}

func TestOnceCommand_InvalidJob(t *testing.T) {
	resetViper()
	t.Cleanup(resetViper)

	path := writeConfig(t, `
store:
  backend: memory
job:
  calls:
    - name: no_url
`)
	rootCmd.SetArgs([]string{"once", "--config", path})

	if err := rootCmd.Execute(); err == nil {
		t.Error("expected an error for a call without url")
	}
}
