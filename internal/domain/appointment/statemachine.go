package appointment

import "github.com/clinicflow/clinicflow/internal/platform/apperror"

// statusTransitions is the full transition table. Absent source states are
// terminal.
var statusTransitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusInProgress, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusConfirmed: {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(s Status) bool {
	return len(statusTransitions[s]) == 0
}

// checkTransition returns an InvalidTransition error when the move is not
// in the table. Same-state writes are allowed and treated as no-ops by the
// caller.
func checkTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return apperror.New(apperror.InvalidTransition, "cannot move appointment from %s to %s", from, to)
	}
	return nil
}
