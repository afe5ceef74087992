package orchestrator

import (
	"errors"
	"fmt"
)

// Status is the issuance state of one required document of a case.
type Status string

const (
	StatusNotStarted  Status = "NOT_STARTED"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusCompleted   Status = "COMPLETED"
	StatusNotRequired Status = "NOT_REQUIRED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusNotRequired:
		return true
	}
	return false
}

// ParseStatus accepts the canonical upper-case names.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Event drives a status transition.
type Event string

const (
	EventBegin   Event = "begin"
	EventSucceed Event = "succeed"
	EventFail    Event = "fail"
	// EventReset is the manual override used before re-issuing a completed
	// or excluded document.
	EventReset Event = "reset"
)

var ErrInvalidTransition = errors.New("orchestrator: invalid status transition")

var transitions = map[Event]map[Status]Status{
	EventBegin: {
		StatusNotStarted: StatusInProgress,
		StatusInProgress: StatusInProgress,
	},
	EventSucceed: {
		StatusInProgress: StatusCompleted,
	},
	EventFail: {
		StatusInProgress: StatusNotStarted,
	},
	EventReset: {
		StatusNotStarted:  StatusNotStarted,
		StatusInProgress:  StatusNotStarted,
		StatusCompleted:   StatusNotStarted,
		StatusNotRequired: StatusNotStarted,
	},
}

// Transition returns the state reached from `from` on ev. It has no side
// effects; stores persist the result.
func Transition(from Status, ev Event) (Status, error) {
	to, ok := transitions[ev][from]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
	}
	return to, nil
}

// sources lists the states ev may leave, for conditional updates.
func sources(ev Event) []Status {
	var out []Status
	for _, s := range []Status{StatusNotStarted, StatusInProgress, StatusCompleted, StatusNotRequired} {
		if _, ok := transitions[ev][s]; ok {
			out = append(out, s)
		}
	}
	return out
}
