package domain

// transitions is the closed graph of legal run-status transitions. Statuses
// absent from the map (or mapped to an empty set) are terminal.
var transitions = map[RunStatus][]RunStatus{
	RunStatusQueued:         {RunStatusScheduled, RunStatusCanceled},
	RunStatusScheduled:      {RunStatusStarting, RunStatusRunning, RunStatusFailed, RunStatusCanceled},
	RunStatusStarting:       {RunStatusRunning, RunStatusFailed, RunStatusCanceled},
	RunStatusRunning:        {RunStatusAutoValidating, RunStatusFailed, RunStatusCanceled, RunStatusCompleted},
	RunStatusAutoValidating: {RunStatusAwaitingHuman, RunStatusFailed, RunStatusCanceled},
	RunStatusAwaitingHuman:  {RunStatusHumanValidated, RunStatusFailed, RunStatusCanceled},
	RunStatusHumanValidated: {},
	RunStatusCompleted:      {},
	RunStatusFailed:         {},
	RunStatusCanceled:       {},
}

// AllStatuses lists every run status, for exhaustive checks.
var AllStatuses = []RunStatus{
	RunStatusQueued, RunStatusScheduled, RunStatusStarting, RunStatusRunning,
	RunStatusAutoValidating, RunStatusAwaitingHuman, RunStatusHumanValidated,
	RunStatusCompleted, RunStatusFailed, RunStatusCanceled,
}

// AllowedTransitions returns the statuses reachable from the given status.
func AllowedTransitions(from RunStatus) []RunStatus {
	return transitions[from]
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(status RunStatus) bool {
	return len(transitions[status]) == 0
}

// AssertTransition returns an IllegalTransitionError unless from -> to is in
// the lifecycle graph.
func AssertTransition(from, to RunStatus) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return &IllegalTransitionError{From: from, To: to}
}
