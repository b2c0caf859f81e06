package authflow

import (
	"github.com/shopsync-dev/shopsync/internal/session"
)

// LandingRoute is where a successful sign-in navigates to
const LandingRoute = "/"

// Status is the lifecycle state of a sign-in attempt
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Attempt is the record of the latest sign-in attempt on one pathway
type Attempt struct {
	Pathway   session.Pathway
	Status    Status
	AttemptID string
	// Error is the display message of a failed attempt
	Error string
	Err   error
}

// EventKind identifies a state transition
type EventKind int

const (
	EventSucceeded EventKind = iota + 1
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

// Event is emitted once per attempt transition to succeeded or failed
type Event struct {
	Kind      EventKind
	Pathway   session.Pathway
	AttemptID string

	// Session is set on success
	Session *session.Session
	// Navigate is the route to show after a success
	Navigate string

	// Error and Err are set on failure
	Error string
	Err   error
}
