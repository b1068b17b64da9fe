// Package api defines the JSON shapes served by the admin endpoints and
// printed by the CLI.
package api

import "time"

// HealthResponse is returned by the liveness and readiness probes.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Owner     string           `json:"owner"`
	Workloads []WorkloadStatus `json:"workloads"`
}

// WorkloadStatus is this instance's view of one workload.
type WorkloadStatus struct {
	ID          string     `json:"id"`
	ProcessName string     `json:"process_name"`
	LeaseKey    string     `json:"lease_key"`
	HoldsLease  bool       `json:"holds_lease"`
	State       string     `json:"state"`
	LastRule    string     `json:"last_rule,omitempty"`
	LastAction  string     `json:"last_action,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	LastTick    *time.Time `json:"last_tick,omitempty"`
}

// LeaseOwner is the store's view of one lease, as printed by `status`.
type LeaseOwner struct {
	Workload string `json:"workload" yaml:"workload"`
	LeaseKey string `json:"lease_key" yaml:"lease_key"`
	Owner    string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Held     bool   `json:"held" yaml:"held"`
	Mine     bool   `json:"mine" yaml:"mine"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
