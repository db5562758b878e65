package repository

import (
	"context"

	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// Exists reports whether a node lives at opts.Path.
func (r *Repository) Exists(ctx context.Context, opts Options, cb Callback[bool]) {
	submit(ctx, r, "exists", opts, cb, nil, func(ctx context.Context, c *call) (bool, error) {
		ok, err := r.store.Exists(ctx, c.path())
		if err != nil {
			return false, backendError(c.op, c.path(), err)
		}
		return ok, nil
	})
}

// GetInfo returns the info of the node at opts.Path.
func (r *Repository) GetInfo(ctx context.Context, opts Options, cb Callback[*store.Info]) {
	submit(ctx, r, "get_info", opts, cb, nil, func(ctx context.Context, c *call) (*store.Info, error) {
		return r.getInfo(ctx, c, c.path())
	})
}

// List returns the direct children of the directory at opts.Path.
func (r *Repository) List(ctx context.Context, opts Options, cb Callback[[]*store.Info]) {
	submit(ctx, r, "list", opts, cb, nil, func(ctx context.Context, c *call) ([]*store.Info, error) {
		dir, err := r.requireDirectory(ctx, c)
		if err != nil {
			return nil, err
		}

		children, err := r.store.List(ctx, c.path(), dir)
		if err != nil {
			return nil, backendError(c.op, c.path(), err)
		}
		return children, nil
	})
}

// CreateDirectory creates an empty directory at opts.Path.
//
// The parent must already exist; intermediate directories are never
// created implicitly.
func (r *Repository) CreateDirectory(ctx context.Context, opts Options, cb Callback[*store.Info]) {
	submit(ctx, r, "create_directory", opts, cb, nil, func(ctx context.Context, c *call) (*store.Info, error) {
		parent, err := r.requireCreatable(ctx, c)
		if err != nil {
			return nil, err
		}

		if err := r.store.CreateDirectory(ctx, c.path(), parent); err != nil {
			return nil, backendError(c.op, c.path(), err)
		}

		info, err := r.refresh(ctx, c)
		if err != nil {
			return nil, err
		}
		r.emit(c, EventDirectoryCreated, info, nil)
		return info, nil
	})
}

// DeleteDirectory removes the directory at opts.Path together with its
// whole subtree. The callback receives the info the directory had.
func (r *Repository) DeleteDirectory(ctx context.Context, opts Options, cb Callback[*store.Info]) {
	submit(ctx, r, "delete_directory", opts, cb, nil, func(ctx context.Context, c *call) (*store.Info, error) {
		if pathutil.IsRoot(c.path()) {
			return nil, c.fail(ErrCodeRootOperationForbidden)
		}

		dir, err := r.requireDirectory(ctx, c)
		if err != nil {
			return nil, err
		}

		if err := r.store.DeleteDirectory(ctx, c.path(), dir); err != nil {
			return nil, backendError(c.op, c.path(), err)
		}

		r.emit(c, EventDirectoryDeleted, dir, nil)
		return dir, nil
	})
}

// FindAssets searches asset names below opts.Path (the whole tree when
// empty) using opts.Pattern, or opts.Search as a literal substring.
// Directories are never returned.
func (r *Repository) FindAssets(ctx context.Context, opts Options, cb Callback[[]*store.Info]) {
	submit(ctx, r, "find_assets", opts, cb, nil, func(ctx context.Context, c *call) ([]*store.Info, error) {
		found, err := r.store.FindAssets(ctx, c.opts.pattern(), store.FindOptions{
			Root:  c.path(),
			Limit: c.opts.Limit,
		})
		if err != nil {
			return nil, backendError(c.op, c.path(), err)
		}
		return found, nil
	})
}
