// Package telemetry defines the request-lifecycle hook used by
// internal/server to report timing and outcome without embedding a
// logging dependency directly into request handling.
package telemetry

import "time"

// StartEvent describes the beginning of a request. It deliberately omits
// prompt/response content and credentials.
type StartEvent struct {
	RequestID string
	Route     string
	Model     string
	Stream    bool
	Start     time.Time
}

// EndEvent describes the completion of a request.
type EndEvent struct {
	RequestID  string
	Route      string
	Status     int
	Duration   time.Duration
	Err        error
	InputToks  int
	OutputToks int
}

// Hook receives request lifecycle events.
type Hook interface {
	OnRequestStart(StartEvent)
	OnRequestEnd(EndEvent)
}

// Noop implements Hook with no side effects.
type Noop struct{}

func (Noop) OnRequestStart(StartEvent) {}
func (Noop) OnRequestEnd(EndEvent)     {}
