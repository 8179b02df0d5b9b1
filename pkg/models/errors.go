package models

import "fmt"

// ValidationError reports a malformed request, rejected before any routing
// or handler execution.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RouteExecutionError wraps a handler's external dependency failure. It is
// recovered at the execution boundary into an error-typed response and never
// propagates past the orchestrator.
type RouteExecutionError struct {
	Route RouteType
	Err   error
}

func (e *RouteExecutionError) Error() string {
	return fmt.Sprintf("route %s: %v", e.Route, e.Err)
}

func (e *RouteExecutionError) Unwrap() error {
	return e.Err
}
