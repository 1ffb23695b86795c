// Package status defines the segment status vocabulary and the pure
// transition rules between statuses. It has no side effects; callers
// hold the state and apply transitions explicitly.
package status

import (
	"errors"
	"fmt"
)

type Kind string

const (
	Queued     Kind = "queued"
	Generating Kind = "generating"
	Completed  Kind = "completed"
	Failed     Kind = "failed"
)

// Status is a closed tagged variant. Reason is populated only when
// Kind is Failed.
type Status struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason,omitempty"`
}

func NewQueued() Status     { return Status{Kind: Queued} }
func NewGenerating() Status { return Status{Kind: Generating} }
func NewCompleted() Status  { return Status{Kind: Completed} }

func NewFailed(reason string) Status {
	return Status{Kind: Failed, Reason: reason}
}

// IsTerminal reports whether the status ends the current attempt.
// A failed segment is terminal for the attempt but may be retried.
func (s Status) IsTerminal() bool {
	return s.Kind == Completed || s.Kind == Failed
}

type eventKind string

const (
	eventStart   eventKind = "start"
	eventSucceed eventKind = "succeed"
	eventFail    eventKind = "fail"
	eventRetry   eventKind = "retry"
)

// Event is a requested status transition.
type Event struct {
	kind   eventKind
	reason string
}

func Start() Event   { return Event{kind: eventStart} }
func Succeed() Event { return Event{kind: eventSucceed} }
func Retry() Event   { return Event{kind: eventRetry} }

func Fail(reason string) Event {
	return Event{kind: eventFail, reason: reason}
}

func (e Event) String() string { return string(e.kind) }

var ErrInvalidTransition = errors.New("invalid status transition")

// Transition applies an event to the current status and returns the
// next one. Only four transitions are legal:
//
//	queued     --start-->       generating
//	generating --succeed-->     completed
//	generating --fail(reason)-> failed(reason)
//	failed     --retry-->       generating
//
// Anything else returns ErrInvalidTransition; callers are expected to
// check the current status before requesting a transition.
func Transition(current Status, event Event) (Status, error) {
	switch {
	case current.Kind == Queued && event.kind == eventStart:
		return NewGenerating(), nil
	case current.Kind == Generating && event.kind == eventSucceed:
		return NewCompleted(), nil
	case current.Kind == Generating && event.kind == eventFail:
		return NewFailed(event.reason), nil
	case current.Kind == Failed && event.kind == eventRetry:
		return NewGenerating(), nil
	}
	return current, fmt.Errorf("%w: %s --%s-->", ErrInvalidTransition, current.Kind, event.kind)
}
