package errors

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Failure taxonomy for the realtime core. Every operation reports one of
// these to its caller; none of them ever terminate a connection.
var (
	// ErrInvalidInput is returned when a request is missing required routing fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a referenced room, message, user or call does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPersistenceFailure is returned when the store is unavailable or rejects a write.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrPeerUnreachable marks the normal branch where a target user has no live
	// connection. It is never surfaced to clients as a failure.
	ErrPeerUnreachable = errors.New("peer unreachable")
)

// New creates a new error with the given message.
func New(msg string) error {
	return errors.New(msg)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap wraps an error with additional context while preserving the chain
// for errors.Is checks against the taxonomy sentinels.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{msg: msg, err: err}
}

type wrapped struct {
	msg string
	err error
}

func (w *wrapped) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }

// Persistence wraps a store error as an ErrPersistenceFailure while keeping
// the underlying cause in the chain.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{msg: ErrPersistenceFailure.Error(), err: &joined{sentinel: ErrPersistenceFailure, cause: err}}
}

type joined struct {
	sentinel error
	cause    error
}

func (j *joined) Error() string { return j.cause.Error() }
func (j *joined) Is(target error) bool {
	return errors.Is(j.sentinel, target) || errors.Is(j.cause, target)
}
func (j *joined) Unwrap() error { return j.cause }

// Code returns the wire-level failure code for an error, used in failure acks.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrPersistenceFailure):
		return "PersistenceFailure"
	case errors.Is(err, ErrPeerUnreachable):
		return "PeerUnreachable"
	default:
		return "Internal"
	}
}

// LogWithError logs the error with context and returns a wrapped error. Use
// this for standardized error logging across the core.
func LogWithError(ctx context.Context, log *zap.Logger, msg string, err error, fields ...zap.Field) error {
	if log != nil {
		if ctx != nil {
			if reqID, ok := ctx.Value(requestIDKey{}).(string); ok && reqID != "" {
				fields = append(fields, zap.String("request_id", reqID))
			}
		}
		log.Error(msg, append(fields, zap.Error(err))...)
	}
	return Wrap(err, msg)
}

type requestIDKey struct{}

// WithRequestID attaches a request id to the context for LogWithError.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
