package worker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// InvariantError reports a violated worker invariant. The worker cannot
// continue after one: the state it guards is already inconsistent.
//
// Invariant errors include:
//   - Pool exhaustion that force-reclaim cannot resolve
//   - Releasing a drawable, stream or surface reference twice
//   - Destroying a surface that still has tree items
//   - Malformed command geometry or vocabulary
type InvariantError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes invariant errors.
type ErrorCode string

const (
	// ErrCodePoolExhausted indicates no drawable could be allocated or reclaimed.
	ErrCodePoolExhausted ErrorCode = "POOL_EXHAUSTED"

	// ErrCodeDoubleRelease indicates a reference was released after reaching zero.
	ErrCodeDoubleRelease ErrorCode = "DOUBLE_RELEASE"

	// ErrCodeSurfaceInUse indicates a surface was destroyed while drawables remain on it.
	ErrCodeSurfaceInUse ErrorCode = "SURFACE_IN_USE"

	// ErrCodeSurfaceExists indicates a create for an occupied surface slot.
	ErrCodeSurfaceExists ErrorCode = "SURFACE_EXISTS"

	// ErrCodeBadSurface indicates a reference to a missing or out-of-range surface.
	ErrCodeBadSurface ErrorCode = "BAD_SURFACE"

	// ErrCodeBadDepth indicates an unsupported surface pixel depth.
	ErrCodeBadDepth ErrorCode = "BAD_DEPTH"

	// ErrCodeBadGeometry indicates a draw outside its surface or with malformed rectangles.
	ErrCodeBadGeometry ErrorCode = "BAD_GEOMETRY"

	// ErrCodeBadMemslot indicates a command from an unregistered memory slot.
	ErrCodeBadMemslot ErrorCode = "BAD_MEMSLOT"

	// ErrCodeBadCommand indicates an unknown or inconsistent command.
	ErrCodeBadCommand ErrorCode = "BAD_COMMAND"

	// ErrCodeTreeCorrupt indicates the scene tree links are inconsistent.
	ErrCodeTreeCorrupt ErrorCode = "TREE_CORRUPT"
)

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + e.Details[k]
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

// IsInvariantError returns true if err is or wraps an InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// IsCode returns true if err is or wraps an InvariantError with code.
func IsCode(err error, code ErrorCode) bool {
	var ie *InvariantError
	if errors.As(err, &ie) {
		return ie.Code == code
	}
	return false
}

// fatal aborts the current worker operation with an InvariantError. It is
// recovered by guard at the exported entry points.
func fatal(code ErrorCode, format string, args ...any) {
	panic(&InvariantError{Code: code, Message: fmt.Sprintf(format, args...)})
}

// fatalWith is fatal with structured details.
func fatalWith(code ErrorCode, details map[string]string, format string, args ...any) {
	panic(&InvariantError{Code: code, Message: fmt.Sprintf(format, args...), Details: details})
}

// guard converts an InvariantError panic into a returned error. Any other
// panic keeps unwinding.
func guard(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InvariantError); ok {
		*err = ie
		return
	}
	panic(r)
}

// ErrWouldBlock is returned by a Conn when a message could only be partly
// written. The connection keeps the rest and the worker resumes it once
// the connection signals writability.
var ErrWouldBlock = errors.New("write would block")

// ErrClosed is returned for operations on a stopped worker.
var ErrClosed = errors.New("worker is closed")

// ProtocolError reports a client message the worker cannot accept. It
// disconnects the offending channel only.
type ProtocolError struct {
	Channel string
	Message string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation on channel %s: %s", e.Channel, e.Message)
}

// IsProtocolError returns true if err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
