package tree

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every public operation either succeeds or fails with exactly
// one of these, matched with errors.Is.
var (
	// ErrConnection is matched by *ConnectionError.
	ErrConnection = errors.New("tree: session not connected")

	// ErrRemote is matched by *RemoteError.
	ErrRemote = errors.New("tree: remote operation failed")

	// ErrNodeNotFound is returned when an operation requires the node to exist.
	ErrNodeNotFound = errors.New("tree: node not found")

	// ErrInvalidPath is returned for malformed path input.
	ErrInvalidPath = errors.New("tree: invalid path")

	// ErrInvalidPattern is returned when a child name pattern does not compile.
	ErrInvalidPattern = errors.New("tree: invalid child pattern")
)

// ConnectionError reports that no session was established within the
// connection guard's bound, or that the wait was cancelled.
type ConnectionError struct {
	Addresses []string
	Cause     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("tree: failed to connect to [%s]: %v", strings.Join(e.Addresses, ","), e.Cause)
}

// Is matches ErrConnection.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// Unwrap returns the cause (a context error or a session fault).
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// RemoteError reports a failed remote call. Cause is the fault returned by
// the coordination service and is kept for diagnostics.
type RemoteError struct {
	Op    string
	Path  string
	Cause error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("tree: %s %s: %v", e.Op, e.Path, e.Cause)
}

// Is matches ErrRemote.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemote
}

// Unwrap returns the underlying service fault.
func (e *RemoteError) Unwrap() error {
	return e.Cause
}

func remoteErr(op, path string, err error) error {
	return &RemoteError{Op: op, Path: path, Cause: err}
}

func notFound(path string) error {
	return fmt.Errorf("%w: %s", ErrNodeNotFound, path)
}
