package repository

import (
	"context"
	"io"

	"github.com/marmos91/assetrepo/pkg/progress"
	"github.com/marmos91/assetrepo/pkg/store"
)

// GetAsset opens the content of the asset at opts.Path.
//
// The returned reader reports progress as the caller drains it. If the
// callback is suppressed the reader is closed.
func (r *Repository) GetAsset(ctx context.Context, opts Options, cb Callback[*AssetReader]) {
	submit(ctx, r, "get_asset", opts, cb, closeReader, func(ctx context.Context, c *call) (*AssetReader, error) {
		info, err := r.requireAsset(ctx, c)
		if err != nil {
			return nil, err
		}

		content, err := r.store.GetAssetContent(ctx, c.path(), info)
		if err != nil {
			return nil, backendError(c.op, c.path(), err)
		}

		counter := r.throttler.Track(c.path(), progress.TransferRead, func(snap progress.Snapshot) {
			r.emit(c, EventProgress, info, &snap)
		})
		return &AssetReader{
			Info:    info,
			r:       r,
			in:      progress.NewReader(content, counter),
			counter: counter,
		}, nil
	})
}

// GetAssetThumbnail opens the thumbnail rendition of the asset at
// opts.Path. Assets without one fail with a BackendError wrapping
// store.ErrNotSupported.
func (r *Repository) GetAssetThumbnail(ctx context.Context, opts Options, cb Callback[*Rendition]) {
	submit(ctx, r, "get_asset_thumbnail", opts, cb, closeRendition, func(ctx context.Context, c *call) (*Rendition, error) {
		return r.rendition(ctx, c, r.store.GetAssetThumbnail)
	})
}

// GetAssetPreview opens the preview rendition of the asset at opts.Path.
func (r *Repository) GetAssetPreview(ctx context.Context, opts Options, cb Callback[*Rendition]) {
	submit(ctx, r, "get_asset_preview", opts, cb, closeRendition, func(ctx context.Context, c *call) (*Rendition, error) {
		return r.rendition(ctx, c, r.store.GetAssetPreview)
	})
}

type renditionFunc func(ctx context.Context, path string, asset *store.Info) (io.ReadCloser, string, error)

func (r *Repository) rendition(ctx context.Context, c *call, open renditionFunc) (*Rendition, error) {
	info, err := r.requireAsset(ctx, c)
	if err != nil {
		return nil, err
	}

	content, contentType, err := open(ctx, c.path(), info)
	if err != nil {
		return nil, backendError(c.op, c.path(), err)
	}
	return &Rendition{ReadCloser: content, ContentType: contentType, Info: info}, nil
}

// CreateAsset creates the asset at opts.Path with the content of src.
//
// A failure reading src aborts the create and is reported as is; store
// failures are BackendErrors.
func (r *Repository) CreateAsset(ctx context.Context, opts Options, src io.Reader, finished Callback[*store.Info]) {
	submit(ctx, r, "create_asset", opts, finished, nil, func(ctx context.Context, c *call) (*store.Info, error) {
		return r.writeFrom(ctx, c, true, src)
	})
}

// UpdateAsset replaces the content of the asset at opts.Path with src.
func (r *Repository) UpdateAsset(ctx context.Context, opts Options, src io.Reader, finished Callback[*store.Info]) {
	submit(ctx, r, "update_asset", opts, finished, nil, func(ctx context.Context, c *call) (*store.Info, error) {
		return r.writeFrom(ctx, c, false, src)
	})
}

// CreateAssetWriter creates the asset at opts.Path and hands its write
// target to opened. The caller streams the content and calls Close, after
// which finished receives the fresh info.
//
// If opened is suppressed by the subscriber gate the create is aborted
// and finished is never invoked.
func (r *Repository) CreateAssetWriter(ctx context.Context, opts Options, opened Callback[*AssetWriter], finished Callback[*store.Info]) {
	submit(ctx, r, "create_asset", opts, opened, discardWriter, func(ctx context.Context, c *call) (*AssetWriter, error) {
		return r.openWriter(ctx, c, true, finished)
	})
}

// UpdateAssetWriter is the streaming form of UpdateAsset.
func (r *Repository) UpdateAssetWriter(ctx context.Context, opts Options, opened Callback[*AssetWriter], finished Callback[*store.Info]) {
	submit(ctx, r, "update_asset", opts, opened, discardWriter, func(ctx context.Context, c *call) (*AssetWriter, error) {
		return r.openWriter(ctx, c, false, finished)
	})
}

// UpdateAssetInfo applies patch to the metadata of the asset at
// opts.Path. The metadata is opaque: a checked-out asset can still be
// updated by anyone.
func (r *Repository) UpdateAssetInfo(ctx context.Context, opts Options, patch store.InfoPatch, cb Callback[*store.Info]) {
	submit(ctx, r, "update_asset_info", opts, cb, nil, func(ctx context.Context, c *call) (*store.Info, error) {
		info, err := r.requireAsset(ctx, c)
		if err != nil {
			return nil, err
		}
		if patch.Empty() {
			return info, nil
		}

		if err := r.store.UpdateAssetInfo(ctx, c.path(), info, patch); err != nil {
			return nil, backendError(c.op, c.path(), err)
		}

		info, err = r.refresh(ctx, c)
		if err != nil {
			return nil, err
		}
		r.emit(c, EventAssetInfoUpdated, info, nil)
		return info, nil
	})
}

// DeleteAsset removes the asset at opts.Path. The callback receives the
// info the asset had.
func (r *Repository) DeleteAsset(ctx context.Context, opts Options, cb Callback[*store.Info]) {
	submit(ctx, r, "delete_asset", opts, cb, nil, func(ctx context.Context, c *call) (*store.Info, error) {
		info, err := r.requireAsset(ctx, c)
		if err != nil {
			return nil, err
		}

		if err := r.store.DeleteAsset(ctx, c.path(), info); err != nil {
			return nil, backendError(c.op, c.path(), err)
		}

		r.emit(c, EventAssetDeleted, info, nil)
		return info, nil
	})
}

// ============================================================================
// Helpers
// ============================================================================

// prepareWrite runs the preconditions of a create or update and opens the
// transfer.
func (r *Repository) prepareWrite(ctx context.Context, c *call, create bool) (*transfer, error) {
	var existing *store.Info
	var err error
	if create {
		existing, err = r.requireCreatable(ctx, c)
	} else {
		existing, err = r.requireAsset(ctx, c)
	}
	if err != nil {
		return nil, err
	}
	return r.openTransfer(ctx, c, create, existing)
}

func (r *Repository) writeFrom(ctx context.Context, c *call, create bool, src io.Reader) (*store.Info, error) {
	t, err := r.prepareWrite(ctx, c, create)
	if err != nil {
		return nil, err
	}

	if err := t.copyFrom(ctx, src); err != nil {
		t.abort(err)
		return nil, err
	}
	return t.commit(ctx)
}

func (r *Repository) openWriter(ctx context.Context, c *call, create bool, finished Callback[*store.Info]) (*AssetWriter, error) {
	t, err := r.prepareWrite(ctx, c, create)
	if err != nil {
		return nil, err
	}

	// The open writer counts as in-flight work until it is closed. The
	// submitting goroutine still holds its own slot, so this cannot race
	// with Close.
	r.wg.Add(1)
	c.deferred = true

	return &AssetWriter{t: t, ctx: ctx, finished: finished}, nil
}

func closeReader(a *AssetReader) {
	if a != nil {
		_ = a.Close()
	}
}

func closeRendition(rd *Rendition) {
	if rd != nil {
		_ = rd.Close()
	}
}

func discardWriter(w *AssetWriter) {
	if w != nil {
		w.discard()
	}
}
