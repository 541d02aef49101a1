package fulfillment

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when an event does not apply to the
	// workflow's current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotFullyPicked is returned when a full load is asserted while lines
	// still have a shortage.
	ErrNotFullyPicked = errors.New("order is not fully picked")
)

// Event names a state machine input.
type Event string

const (
	EventStartPicking Event = "StartPicking"
	EventUpdateLine   Event = "UpdateLine"
	EventMarkLoaded   Event = "MarkLoaded"
	EventDispatch     Event = "Dispatch"
	EventReconcile    Event = "Reconcile"
)

// TransitionError describes a rejected event.
type TransitionError struct {
	From  WorkflowStatus
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed while workflow is %s", e.Event, e.From)
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidTransition).
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func reject(from WorkflowStatus, event Event) error {
	return &TransitionError{From: from, Event: event}
}

// StartAction is what StartPicking should do for an existing workflow.
type StartAction int

const (
	// StartNoop returns the workflow unchanged.
	StartNoop StartAction = iota
	// StartBegin moves a pending workflow into picking.
	StartBegin
)

// CheckStart decides how StartPicking treats a workflow in status from.
func CheckStart(from WorkflowStatus) (StartAction, error) {
	switch from {
	case StatusPending:
		return StartBegin, nil
	case StatusDispatched:
		return StartNoop, reject(from, EventStartPicking)
	default:
		return StartNoop, nil
	}
}

// CheckMutable rejects line-level changes on a terminal workflow.
func CheckMutable(from WorkflowStatus, event Event) error {
	if from.Terminal() {
		return reject(from, event)
	}
	return nil
}

// CheckLoad validates MarkLoaded and returns the target status. A partially
// loaded order may later be completed with a full load.
func CheckLoad(from WorkflowStatus, full bool) (WorkflowStatus, error) {
	switch from {
	case StatusPicking, StatusReadyForLoading:
		if full {
			return StatusLoaded, nil
		}
		return StatusPartiallyLoaded, nil
	case StatusPartiallyLoaded:
		if full {
			return StatusLoaded, nil
		}
	}
	return from, reject(from, EventMarkLoaded)
}

// CheckDispatch validates Dispatch.
func CheckDispatch(from WorkflowStatus) error {
	if from == StatusLoaded || from == StatusPartiallyLoaded {
		return nil
	}
	return reject(from, EventDispatch)
}
