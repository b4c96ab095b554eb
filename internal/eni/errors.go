package eni

import (
	"context"
	"errors"
	"fmt"
)

// Wire error codes.
const (
	CodeUnsupportedCommand = 16390
	CodeInvalidRequest     = 16391
	CodePathNotFound       = 2054
	CodeVcsFailure         = 0xFFFF
)

// ProtocolError reports a request the gateway does not understand.
type ProtocolError struct {
	Command string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unsupported command %q", e.Command)
}

// ValidationError reports a missing or ill-typed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// LockConflictError reports an object checked out by another user.
type LockConflictError struct {
	Path   string
	Holder string
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("%s is checked out by %s", e.Path, e.Holder)
}

// NotFoundError reports an absent path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s", e.Path)
}

// VcsError wraps a failure of the version-control engine. The engine's
// message is kept verbatim.
type VcsError struct {
	Op  string
	Err error
}

func (e *VcsError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *VcsError) Unwrap() error { return e.Err }

// MalformedPathError reports a physical path outside the namespace root.
type MalformedPathError struct {
	Path string
	Root string
}

func (e *MalformedPathError) Error() string {
	return fmt.Sprintf("path %q is not under root %q", e.Path, e.Root)
}

// errorCode classifies err into a wire code. NotFound maps to the dedicated
// code only for dir; every other command reports it as an engine failure.
func errorCode(command Command, err error) int {
	var (
		protoErr    *ProtocolError
		validErr    *ValidationError
		notFoundErr *NotFoundError
	)
	switch {
	case errors.As(err, &protoErr):
		return CodeUnsupportedCommand
	case errors.As(err, &validErr):
		return CodeInvalidRequest
	case errors.As(err, &notFoundErr) && command == CmdDir:
		return CodePathNotFound
	default:
		return CodeVcsFailure
	}
}

// wrapVcs turns a deadline expiry into a VcsError so it is reported like
// any other engine failure.
func wrapVcs(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &VcsError{Op: op, Err: fmt.Errorf("request timed out: %w", err)}
	}
	return err
}
