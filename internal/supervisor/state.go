// Package supervisor keeps each workload's running state consistent with
// lease ownership. The Reconciler decides one corrective action per workload
// per tick; the Supervisor drives it on a fixed cadence and cleans up on
// shutdown.
package supervisor

import "time"

// Belief is this instance's cached view of whether it holds a workload's
// lease. It records the result of the last store operation and is never
// authoritative.
type Belief struct {
	HoldsLease bool
	Owner      string
	// RenewedAt is when the store last confirmed ownership.
	RenewedAt time.Time
}

// State is a workload's state from this instance's point of view.
type State int

const (
	StateUnlockedStopped State = iota
	StateLockedRunning
	StateUnlockedRunning
	StateLockedStopping
)

func (s State) String() string {
	switch s {
	case StateUnlockedStopped:
		return "UNLOCKED_STOPPED"
	case StateLockedRunning:
		return "LOCKED_RUNNING"
	case StateUnlockedRunning:
		return "UNLOCKED_RUNNING"
	case StateLockedStopping:
		return "LOCKED_STOPPING"
	default:
		return "UNKNOWN"
	}
}

// Rule identifies which reconciliation rule fired, in precedence order.
type Rule int

const (
	// RuleNone means the tick was cut short by an error before a rule matched.
	RuleNone Rule = iota
	// RuleAcquired: not holding, acquisition succeeded, workload started.
	RuleAcquired
	// RuleLeaseLost: holding, renewal failed, workload stopped.
	RuleLeaseLost
	// RuleInconsistent: not holding but running, workload stopped.
	RuleInconsistent
	// RuleRenewed: holding, renewal succeeded.
	RuleRenewed
	// RuleIdle: not holding, not running.
	RuleIdle
)

func (r Rule) String() string {
	switch r {
	case RuleAcquired:
		return "acquired"
	case RuleLeaseLost:
		return "lease_lost"
	case RuleInconsistent:
		return "inconsistent"
	case RuleRenewed:
		return "renewed"
	case RuleIdle:
		return "idle"
	default:
		return "none"
	}
}

// Action is the corrective action a rule took.
type Action int

const (
	ActionNone Action = iota
	ActionStart
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	default:
		return "none"
	}
}

// Outcome reports what one reconciliation did.
type Outcome struct {
	Rule   Rule
	Action Action
	State  State
}
