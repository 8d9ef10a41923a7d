package syncerr

import (
	"context"
	"errors"
	"fmt"

	"github.com/Guizzs26/abx-sheet-sync/internal/models"
)

// Kind classifies a failure for retry and propagation decisions
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransient covers network, rate-limit and per-attempt timeouts. Retried by the coordinator
	KindTransient
	// KindAuth means the credential was missing, invalid or expired
	KindAuth
	// KindSchema means the remote header row does not match the configured columns
	KindSchema
	// KindValidation means bad input, rejected before any remote call
	KindValidation
	// KindConflict means a concurrent edit was detected by the baseline compare
	KindConflict
	// KindNotFound means the addressed row is beyond the current table bounds
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAuth:
		return "auth"
	case KindSchema:
		return "schema"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the structured error returned across the synchronization layer
type Error struct {
	Kind    Kind
	Op      string
	Message string
	RowID   int
	// Remote holds the current remote row for conflicts
	Remote *models.Record
	Cause  error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

func Transient(op string, cause error) *Error {
	return New(KindTransient, op, "remote temporarily unavailable", cause)
}

func Auth(op string, cause error) *Error {
	return New(KindAuth, op, "credential rejected", cause)
}

func Schema(op, message string) *Error {
	return New(KindSchema, op, message, nil)
}

func Validation(op, message string) *Error {
	return New(KindValidation, op, message, nil)
}

func NotFound(op string, rowID int) *Error {
	e := New(KindNotFound, op, fmt.Sprintf("row %d not found", rowID), nil)
	e.RowID = rowID
	return e
}

func Conflict(op string, rowID int, remote *models.Record) *Error {
	e := New(KindConflict, op, fmt.Sprintf("row %d changed since it was read", rowID), nil)
	e.RowID = rowID
	e.Remote = remote
	return e
}

// KindOf extracts the Kind of err. Context expiry is reported as transient
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindUnknown
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// RemoteOf returns the conflicting remote record carried by err, if any
func RemoteOf(err error) *models.Record {
	var se *Error
	if errors.As(err, &se) {
		return se.Remote
	}
	return nil
}
