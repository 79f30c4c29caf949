// Package graph provides the core compute graph engine.
package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is by callers that only care about
// the error kind. Every EngineError below wraps one of these.
var (
	// ErrUnknownNode indicates a NodeHandle that does not exist in the graph.
	ErrUnknownNode = errors.New("graph: unknown node")
	// ErrUnknownPort indicates a PortName not declared on a node's descriptor.
	ErrUnknownPort = errors.New("graph: unknown port")
	// ErrTypeMismatch indicates connecting ports whose ValueTypeId differ.
	ErrTypeMismatch = errors.New("graph: type mismatch")
	// ErrInputAlreadyBound indicates a non-variadic input that already has an edge.
	ErrInputAlreadyBound = errors.New("graph: input already bound")
	// ErrNotConnected indicates disconnecting an input with no edge.
	ErrNotConnected = errors.New("graph: input not connected")
	// ErrWouldCycle indicates an edge insertion that would create a cycle.
	ErrWouldCycle = errors.New("graph: edge would create a cycle")
	// ErrInvalidConfig indicates a configuration blob that could not be hashed.
	ErrInvalidConfig = errors.New("graph: invalid node configuration")
	// ErrRequiredInputMissing indicates a required input with no producing value at execution time.
	ErrRequiredInputMissing = errors.New("graph: required input missing")
	// ErrCancelled indicates an execution was cancelled before completion.
	ErrCancelled = errors.New("graph: execution cancelled")
	// ErrPendingValue indicates an attempt to extract a typed value from a Pending sentinel.
	ErrPendingValue = errors.New("graph: value is pending")
	// ErrErroredValue indicates an attempt to extract a typed value from an Errored sentinel.
	ErrErroredValue = errors.New("graph: value is errored")
	// ErrUnknownExecution indicates an ExecutionId not known to the engine.
	ErrUnknownExecution = errors.New("graph: unknown execution")
	// ErrNodeFailed indicates a node's Run returned a non-nil error.
	ErrNodeFailed = errors.New("graph: node failed")
)

// EngineError is the single structured error type surfaced to callers for
// every failure kind in spec §7: a human-readable Message plus a
// machine-readable Code, matching the teacher's EngineError shape.
type EngineError struct {
	Code    string
	Message string
	Handle  NodeHandle
	Port    PortName
	Err     error
}

func (e *EngineError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap supports errors.Is/errors.As against the wrapped sentinel.
func (e *EngineError) Unwrap() error { return e.Err }

func newEngineError(code string, sentinel error, handle NodeHandle, port PortName, format string, args ...any) *EngineError {
	msg := sentinel.Error()
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &EngineError{
		Code:    code,
		Message: msg,
		Handle:  handle,
		Port:    port,
		Err:     sentinel,
	}
}
