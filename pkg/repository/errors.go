package repository

import (
	"errors"

	"github.com/marmos91/assetrepo/pkg/store"
)

// ErrorCode represents the category of a repository error.
type ErrorCode int

const (
	// ErrCodeRootOperationForbidden indicates an attempt to create or delete
	// the root
	ErrCodeRootOperationForbidden ErrorCode = iota + 1

	// ErrCodePathAlreadyExists indicates a node already occupies the path
	ErrCodePathAlreadyExists

	// ErrCodePathNotFound indicates nothing exists at the path (for a create,
	// the path is the missing parent)
	ErrCodePathNotFound

	// ErrCodeNotADirectory indicates the operation requires a directory
	ErrCodeNotADirectory

	// ErrCodeNotAnAsset indicates the operation requires an asset
	ErrCodeNotAnAsset

	// ErrCodeParentNotADirectory indicates the parent of a new node is an
	// asset
	ErrCodeParentNotADirectory

	// ErrCodeBackend wraps a failure reported by the store
	ErrCodeBackend
)

// String returns the tag used in logs and metric labels.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeRootOperationForbidden:
		return "RootOperationForbidden"
	case ErrCodePathAlreadyExists:
		return "PathAlreadyExists"
	case ErrCodePathNotFound:
		return "PathNotFound"
	case ErrCodeNotADirectory:
		return "NotADirectory"
	case ErrCodeNotAnAsset:
		return "NotAnAsset"
	case ErrCodeParentNotADirectory:
		return "ParentNotADirectory"
	case ErrCodeBackend:
		return "BackendError"
	default:
		return "Unknown"
	}
}

// Error is the error reported to callbacks for a failed operation.
//
// Every failure an operation reports is an *Error, so CodeOf always
// succeeds on it. Failures that are not about the tree (store errors,
// cancellation of the operation's context, rate limiter waits cut short,
// a source reader failing mid-copy) are ErrCodeBackend with the original
// error as cause. The one exception is AssetWriter.CloseWithError, whose
// finished callback receives the caller's cause unchanged.
//
// Match categories with errors.Is against the Err* sentinels below, and the
// underlying store failure (if any) with errors.Is against store errors:
//
//	if errors.Is(err, repository.ErrPathNotFound) { ... }
//	if errors.Is(err, store.ErrClosed) { ... }
//	if errors.Is(err, context.Canceled) { ... }
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Op is the repository operation that failed (e.g. "CreateDirectory")
	Op string

	// Path is the path the error is about
	Path string

	// Err is the underlying cause, if any
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrRootOperationForbidden = &Error{Code: ErrCodeRootOperationForbidden}
	ErrPathAlreadyExists      = &Error{Code: ErrCodePathAlreadyExists}
	ErrPathNotFound           = &Error{Code: ErrCodePathNotFound}
	ErrNotADirectory          = &Error{Code: ErrCodeNotADirectory}
	ErrNotAnAsset             = &Error{Code: ErrCodeNotAnAsset}
	ErrParentNotADirectory    = &Error{Code: ErrCodeParentNotADirectory}
	ErrBackend                = &Error{Code: ErrCodeBackend}
)

var (
	// ErrClosed is reported for operations submitted after Close.
	ErrClosed = errors.New("repository closed")

	// ErrTransferAborted is reported when a streamed write is abandoned
	// without a cause.
	ErrTransferAborted = errors.New("transfer aborted")
)

// CodeOf extracts the category of err.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

func newError(code ErrorCode, op, path string) *Error {
	return &Error{Code: code, Op: op, Path: path}
}

// backendError translates a store failure.
//
// Store sentinels mean a concurrent mutation won a race after the
// precondition checks passed; they are reported with the category the
// checks would have produced. Anything else is a BackendError.
func backendError(op, path string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	code := ErrCodeBackend
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = ErrCodePathNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		code = ErrCodePathAlreadyExists
	case errors.Is(err, store.ErrNotDirectory):
		code = ErrCodeNotADirectory
	case errors.Is(err, store.ErrNotAsset):
		code = ErrCodeNotAnAsset
	case errors.Is(err, store.ErrRoot):
		code = ErrCodeRootOperationForbidden
	}
	return &Error{Code: code, Op: op, Path: path, Err: err}
}
