package store

import (
	"context"
	"io"
)

// ============================================================================
// Store Interface
// ============================================================================

// Store is the contract every storage medium implements to back an asset
// repository.
//
// A Store manipulates a tree of directories and assets addressed by
// normalized, absolute paths (see pkg/pathutil). It performs raw I/O only:
// the repository coordinator establishes every precondition (existence,
// node type, root protection) with Exists and GetInfo before delegating, and
// passes along the Info it fetched so backends don't have to look it up again.
//
// Backends still re-check structural invariants while holding their own
// locks or transactions, because the coordinator's checks and the delegated
// call are not atomic. A lost race surfaces as one of the sentinel errors in
// errors.go.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// Structural mutations of a directory's children must be serialized.
type Store interface {
	// Exists reports whether a node exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// GetInfo returns the info view of the node at path.
	//
	// Returns ErrNotFound if nothing exists at path.
	GetInfo(ctx context.Context, path string) (*Info, error)

	// List returns the info of every direct child of the directory at path.
	//
	// The order of the returned entries is unspecified.
	List(ctx context.Context, path string, dir *Info) ([]*Info, error)

	// CreateDirectory creates an empty directory at path inside parent.
	CreateDirectory(ctx context.Context, path string, parent *Info) error

	// DeleteDirectory removes the directory at path together with its subtree.
	DeleteDirectory(ctx context.Context, path string, dir *Info) error

	// GetAssetContent opens the content of the asset at path for reading.
	//
	// The caller must close the returned reader.
	GetAssetContent(ctx context.Context, path string, asset *Info) (io.ReadCloser, error)

	// GetAssetThumbnail opens a thumbnail rendition of the asset and returns
	// its content type. Returns ErrNotSupported for assets that have none.
	GetAssetThumbnail(ctx context.Context, path string, asset *Info) (io.ReadCloser, string, error)

	// GetAssetPreview opens a preview rendition of the asset and returns its
	// content type. Returns ErrNotSupported for assets that have none.
	GetAssetPreview(ctx context.Context, path string, asset *Info) (io.ReadCloser, string, error)

	// OpenAssetWrite opens a write target for the asset at path.
	//
	// When create is true, info is the parent directory and the asset must
	// not exist yet; otherwise info is the asset being replaced. Bytes are
	// only visible to readers once the writer's Close returns nil.
	OpenAssetWrite(ctx context.Context, path string, create bool, info *Info) (AssetWriter, error)

	// UpdateAssetInfo applies patch to the metadata of the asset at path.
	UpdateAssetInfo(ctx context.Context, path string, asset *Info, patch InfoPatch) error

	// DeleteAsset removes the asset at path.
	DeleteAsset(ctx context.Context, path string, asset *Info) error

	// FindAssets scans the tree and returns every asset whose name matches
	// pattern. Directories never appear in the result.
	FindAssets(ctx context.Context, pattern Pattern, opts FindOptions) ([]*Info, error)

	// Healthcheck verifies the backend is operational.
	Healthcheck(ctx context.Context) error

	// Close releases the backend's resources. The store must not be used
	// afterwards.
	Close() error
}

// AssetWriter is the write target returned by Store.OpenAssetWrite.
//
// Close is the completion signal: it returns once every byte has been
// flushed and committed, after which the new content is visible. Abort
// discards everything written so far and commits nothing. Calling either
// method more than once returns ErrClosed.
type AssetWriter interface {
	io.Writer

	Close() error

	Abort(err error) error
}

// FindOptions narrows a FindAssets scan.
type FindOptions struct {
	// Root limits the scan to the subtree below this directory.
	// Empty means the whole tree.
	Root string

	// Limit caps the number of results. Zero means unlimited.
	Limit int
}
