package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"leasekeeper/internal/supervisor"
	"leasekeeper/pkg/api"
)

// Pinger reports whether the lease store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusSource provides the supervisor's status snapshot.
type StatusSource interface {
	Status() []supervisor.WorkloadStatus
}

// Handlers holds the admin HTTP handlers and their dependencies.
type Handlers struct {
	store   Pinger
	status  StatusSource
	owner   string
	limiter *rate.Limiter
}

// NewHandlers creates the handlers for an instance running as owner.
// readyRate bounds readiness probes per second, since each one reaches the
// store; zero means unlimited.
func NewHandlers(store Pinger, status StatusSource, owner string, readyRate float64) *Handlers {
	return &Handlers{store: store, status: status, owner: owner, limiter: newLimiter(readyRate)}
}

// Healthz is a liveness probe.
// It returns 200 OK if the server is running.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJson(w, http.StatusOK, api.HealthResponse{Status: "healthy"})
}

// Readyz is a readiness probe.
// It checks that the lease store answers.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		httpError(w, "Lease store unavailable", http.StatusServiceUnavailable)
		return
	}
	respondJson(w, http.StatusOK, api.HealthResponse{Status: "ready"})
}

// Status returns the supervisor's view of every workload as of its last tick.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	snapshot := h.status.Status()

	resp := api.StatusResponse{
		Owner:     h.owner,
		Workloads: make([]api.WorkloadStatus, 0, len(snapshot)),
	}
	for _, st := range snapshot {
		ws := api.WorkloadStatus{
			ID:          st.ID,
			ProcessName: st.ProcessName,
			LeaseKey:    st.LeaseKey,
			HoldsLease:  st.HoldsLease,
			State:       st.State.String(),
			LastError:   st.LastError,
		}
		if !st.LastTick.IsZero() {
			tick := st.LastTick
			ws.LastTick = &tick
			ws.LastRule = st.LastRule.String()
			ws.LastAction = st.LastAction.String()
		}
		resp.Workloads = append(resp.Workloads, ws)
	}

	respondJson(w, http.StatusOK, resp)
}

// A helper function to write standard JSON responses.
func respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func httpError(w http.ResponseWriter, message string, code int) {
	respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
