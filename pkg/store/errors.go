package store

import "errors"

// ============================================================================
// Standard Store Errors
// ============================================================================

// These errors give every backend a consistent way to report contract
// violations it detects itself. The repository coordinator checks
// preconditions before delegating, so in normal operation backends only
// return them when a concurrent mutation slipped in between the check and
// the call.
//
// Implementations should wrap them with the offending path:
//
//	return fmt.Errorf("create directory %s: %w", path, store.ErrAlreadyExists)

var (
	// ErrNotFound indicates nothing exists at the requested path.
	ErrNotFound = errors.New("node not found")

	// ErrAlreadyExists indicates a node already occupies the path.
	ErrAlreadyExists = errors.New("node already exists")

	// ErrNotDirectory indicates a directory was required.
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotAsset indicates an asset was required.
	ErrNotAsset = errors.New("not an asset")

	// ErrRoot indicates an operation tried to remove or recreate the root.
	ErrRoot = errors.New("operation not permitted on root")

	// ErrNotSupported indicates the backend or the asset does not support
	// the operation (e.g. a thumbnail of a binary blob).
	ErrNotSupported = errors.New("operation not supported")

	// ErrClosed indicates use of a writer or store after it was closed.
	ErrClosed = errors.New("already closed")
)
