package repository

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/marmos91/assetrepo/internal/logger"
	"github.com/marmos91/assetrepo/pkg/progress"
	"github.com/marmos91/assetrepo/pkg/store"
)

// ============================================================================
// Write Transfers
// ============================================================================

// transfer is one streamed create or update in flight.
//
// Bytes go through a progress.Writer into the store's write target. The
// transfer ends exactly once, by commit or abort.
type transfer struct {
	r       *Repository
	c       *call
	typ     progress.TransferType
	target  store.AssetWriter
	counter *progress.Counter
	out     *progress.Writer

	// known is the info attached to progress events: the previous info
	// for an update, nil for a create until it commits
	known atomic.Pointer[store.Info]

	mu   sync.Mutex
	done bool
	// failed is the first store write error; the transfer cannot commit
	// after it
	failed error
}

// openTransfer opens the store write target for the call's path.
//
// existing is the asset being replaced, or the parent directory for a
// create.
func (r *Repository) openTransfer(ctx context.Context, c *call, create bool, existing *store.Info) (*transfer, error) {
	target, err := r.store.OpenAssetWrite(ctx, c.path(), create, existing)
	if err != nil {
		return nil, backendError(c.op, c.path(), err)
	}

	t := &transfer{r: r, c: c, target: target, typ: progress.TransferUpdate}
	if create {
		t.typ = progress.TransferCreate
	} else {
		t.known.Store(existing)
	}

	t.counter = r.throttler.Track(c.path(), t.typ, func(snap progress.Snapshot) {
		r.emit(c, EventProgress, t.known.Load(), &snap)
	})
	t.out = progress.NewWriter(target, t.counter)
	return t, nil
}

func (t *transfer) write(p []byte) (int, error) {
	t.mu.Lock()
	done, failed := t.done, t.failed
	t.mu.Unlock()
	if done {
		return 0, &Error{Code: ErrCodeBackend, Op: t.c.op, Path: t.c.path(), Err: store.ErrClosed}
	}
	if failed != nil {
		return 0, failed
	}

	n, err := t.out.Write(p)
	if err != nil {
		err = backendError(t.c.op, t.c.path(), err)
		t.mu.Lock()
		t.failed = err
		t.mu.Unlock()
		return n, err
	}
	return n, nil
}

// finish marks the transfer done. It reports false if it already was.
func (t *transfer) finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// commit flushes the store target, re-fetches the asset and emits the
// final progress snapshot followed by the created/updated event.
//
// A transfer whose store writes failed is aborted instead and reports the
// write error.
func (t *transfer) commit(ctx context.Context) (*store.Info, error) {
	if !t.finish() {
		return nil, &Error{Code: ErrCodeBackend, Op: t.c.op, Path: t.c.path(), Err: store.ErrClosed}
	}

	t.mu.Lock()
	failed := t.failed
	t.mu.Unlock()
	if failed != nil {
		t.discardTarget(failed)
		return nil, failed
	}

	if err := t.target.Close(); err != nil {
		t.counter.Cancel()
		return nil, backendError(t.c.op, t.c.path(), err)
	}

	// The content is committed; a cancelled caller context must not turn
	// that into a failure.
	info, err := t.r.refresh(context.WithoutCancel(ctx), t.c)
	if err != nil {
		t.counter.Cancel()
		return nil, err
	}

	t.known.Store(info)
	snap := t.counter.Finish()
	t.r.metrics.RecordTransfer(t.typ, snap.BytesRead)

	kind := EventAssetUpdated
	if t.typ == progress.TransferCreate {
		kind = EventAssetCreated
	}
	t.r.emit(t.c, kind, info, nil)
	return info, nil
}

// abort discards everything written. It reports false if the transfer
// had already ended.
func (t *transfer) abort(cause error) bool {
	if !t.finish() {
		return false
	}
	t.discardTarget(cause)
	return true
}

// discardTarget aborts the store target and ends progress without a final
// snapshot.
func (t *transfer) discardTarget(cause error) {
	if err := t.target.Abort(cause); err != nil && !errors.Is(err, store.ErrClosed) {
		logger.Warn("repository: %s %s [%s] abort failed: %v", t.c.op, t.c.path(), t.c.opts.Correlation, err)
	}
	t.counter.Cancel()
}

// copyFrom pipes src into the transfer until EOF.
//
// Every failure is a BackendError: reading src, writing to the store and
// cancellation of ctx alike. The cause stays reachable with errors.Is.
func (t *transfer) copyFrom(ctx context.Context, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return backendError(t.c.op, t.c.path(), err)
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := t.write(buf[:n]); err != nil {
				return err
			}
		}

		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return backendError(t.c.op, t.c.path(), readErr)
		}
	}
}

// ============================================================================
// AssetWriter
// ============================================================================

// AssetWriter is the caller-facing write target of a streamed create or
// update, handed out by CreateAssetWriter and UpdateAssetWriter.
//
// Close commits the content and fires the finished callback with the fresh
// info; CloseWithError discards the content and fires it with the cause.
// Until one of them is called the repository's Wait and Close block.
//
// Thread Safety:
// Write, Close and CloseWithError must not be called concurrently.
type AssetWriter struct {
	t        *transfer
	ctx      context.Context
	finished Callback[*store.Info]
	once     sync.Once
}

// Path returns the path of the asset being written.
func (w *AssetWriter) Path() string {
	return w.t.c.path()
}

// Write streams p to the store.
func (w *AssetWriter) Write(p []byte) (int, error) {
	return w.t.write(p)
}

// Close commits the written content.
//
// Returns the commit error, which is also delivered to the finished
// callback. A second call returns store.ErrClosed.
func (w *AssetWriter) Close() error {
	err := wrapClosed(w.t)
	w.once.Do(func() {
		var info *store.Info
		info, err = w.t.commit(w.ctx)
		w.end(info, err)
	})
	return err
}

// CloseWithError discards the written content. The finished callback
// receives cause, or ErrTransferAborted when cause is nil.
func (w *AssetWriter) CloseWithError(cause error) error {
	err := wrapClosed(w.t)
	w.once.Do(func() {
		if cause == nil {
			cause = ErrTransferAborted
		}
		w.t.abort(cause)
		err = nil
		w.end(nil, cause)
	})
	return err
}

// discard aborts without notifying anyone.
func (w *AssetWriter) discard() {
	w.once.Do(func() {
		w.t.abort(ErrTransferAborted)
		w.t.r.observe(w.t.c, ErrTransferAborted)
		w.t.r.wg.Done()
	})
}

func (w *AssetWriter) end(info *store.Info, err error) {
	defer w.t.r.wg.Done()

	w.t.r.observe(w.t.c, err)
	deliver(w.t.r, w.t.c, w.finished, info, err)
}

func wrapClosed(t *transfer) error {
	return &Error{Code: ErrCodeBackend, Op: t.c.op, Path: t.c.path(), Err: store.ErrClosed}
}

// ============================================================================
// Read Transfers
// ============================================================================

// AssetReader streams an asset's content. Reads accumulate progress.
//
// The caller must Close it.
type AssetReader struct {
	// Info is the asset's info when the read started
	Info *store.Info

	r       *Repository
	in      *progress.Reader
	counter *progress.Counter
	once    sync.Once
}

func (a *AssetReader) Read(p []byte) (int, error) {
	n, err := a.in.Read(p)
	if errors.Is(err, io.EOF) {
		a.record()
	}
	return n, err
}

// Close releases the underlying stream and ends the transfer.
func (a *AssetReader) Close() error {
	a.record()
	return a.in.Close()
}

func (a *AssetReader) record() {
	a.once.Do(func() {
		a.r.metrics.RecordTransfer(progress.TransferRead, a.counter.Total())
	})
}

// Rendition is a derived view of an asset (thumbnail or preview).
//
// The caller must Close it.
type Rendition struct {
	io.ReadCloser

	// ContentType is the rendition's own content type
	ContentType string

	// Info is the source asset's info
	Info *store.Info
}
