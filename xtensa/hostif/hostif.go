// Package hostif defines the narrow contract between the ESP108 Xtensa
// debug-target driver and the host on-chip-debugger framework that owns
// it: the abstract target states and breakpoint records the framework
// understands, and the status/error taxonomy the driver reports back.
//
// Nothing in this package talks to JTAG; it exists so that xtensa/target
// doesn't need to import any particular framework to be testable.
package hostif

import (
	"fmt"

	"github.com/cesanta/errors"
)

// State is one of the abstract target states a debugger framework polls for.
type State int

const (
	StateUnknown State = iota
	StateRunning
	StateHalted
	StateDebugRunning
	StateReset
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	case StateDebugRunning:
		return "debug-running"
	case StateReset:
		return "reset"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// HaltReason explains why the target last entered StateHalted.
type HaltReason int

const (
	HaltReasonUnknown HaltReason = iota
	HaltReasonDebugInterrupt
	HaltReasonBreakpoint
	HaltReasonWatchpoint
	HaltReasonSingleStep
)

// BreakpointType distinguishes hardware breakpoints (the only kind this
// driver supports) from software breakpoints, which it must reject.
type BreakpointType int

const (
	BreakpointHard BreakpointType = iota
	BreakpointSoft
)

// Breakpoint is the host framework's record of a requested breakpoint.
// The driver never mutates Address or Type; it only reads them.
type Breakpoint struct {
	Address uint32
	Type    BreakpointType
}

// Watchpoint is the host framework's record of a requested data watchpoint.
type WatchpointRW int

const (
	WatchpointRead WatchpointRW = iota
	WatchpointWrite
	WatchpointAccess
)

type Watchpoint struct {
	Address uint32
	Length  uint32
	RW      WatchpointRW
}

// Status is the result-code taxonomy a host debugger framework maps
// onto its own error reporting.
type Status int

const (
	StatusOK Status = iota
	StatusNotHalted
	StatusUnalignedAccess
	StatusResourceNotAvailable
	StatusSyntaxError
	StatusTimeout
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotHalted:
		return "NOT_HALTED"
	case StatusUnalignedAccess:
		return "UNALIGNED_ACCESS"
	case StatusResourceNotAvailable:
		return "RESOURCE_NOT_AVAILABLE"
	case StatusSyntaxError:
		return "SYNTAX_ERROR"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusFail:
		return "FAIL"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Error carries a Status alongside the usual cesanta/errors cause chain,
// so callers can branch on taxonomy with Cause() while still getting an
// annotated message for logs.
type Error struct {
	Status Status
	cause  error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.cause)
}

func (e *Error) Cause() error { return e.cause }

// NewError wraps cause (which may be nil) with a Status.
func NewError(st Status, cause error) *Error {
	return &Error{Status: st, cause: cause}
}

// Errorf builds a Status-tagged error with a formatted message and no
// underlying cause, for precondition violations that never touched the
// TAP.
func Errorf(st Status, format string, args ...interface{}) *Error {
	return &Error{Status: st, cause: errors.Errorf(format, args...)}
}

// Annotatef wraps an existing error with a Status and additional context,
// for protocol anomalies and transport failures observed during a flush.
func Annotatef(st Status, cause error, format string, args ...interface{}) *Error {
	return &Error{Status: st, cause: errors.Annotatef(cause, format, args...)}
}

// StatusOf extracts the Status of err if it (or something it wraps) is
// an *Error, and StatusFail otherwise.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	if he, ok := errors.Cause(err).(*Error); ok {
		return he.Status
	}
	if he, ok := err.(*Error); ok {
		return he.Status
	}
	return StatusFail
}

var (
	ErrNotHalted            = Errorf(StatusNotHalted, "target is not halted")
	ErrUnalignedAccess      = Errorf(StatusUnalignedAccess, "unaligned memory access")
	ErrResourceNotAvailable = Errorf(StatusResourceNotAvailable, "resource not available")
)

// Event is one of the asynchronous notifications the target state
// machine raises back to the host framework as a side effect of Poll,
// Resume or Step.
type Event int

const (
	EventHalted Event = iota
	EventDebugHalted
	EventResumed
	EventRunning
)

func (e Event) String() string {
	switch e {
	case EventHalted:
		return "halted"
	case EventDebugHalted:
		return "debug-halted"
	case EventResumed:
		return "resumed"
	case EventRunning:
		return "running"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Notifier receives target-state-machine events. The host framework
// implements this; the driver only calls it.
type Notifier interface {
	Notify(Event)
}
