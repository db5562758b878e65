package badger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/assetrepo/internal/logger"
	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// sniffLen is how much content is handed to content-type detection.
const sniffLen = 512

// GetAssetContent streams the asset's content chunk by chunk from a read
// transaction, so the reader sees one consistent revision even if the
// asset is replaced meanwhile.
func (s *BadgerStore) GetAssetContent(ctx context.Context, path string, asset *store.Info) (io.ReadCloser, error) {
	r, _, err := s.openContent(ctx, "get content", pathutil.Normalize(path))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetAssetThumbnail serves the thumbnail rendition of the asset.
func (s *BadgerStore) GetAssetThumbnail(ctx context.Context, path string, asset *store.Info) (io.ReadCloser, string, error) {
	return s.rendition(ctx, store.RenditionThumbnail, path)
}

// GetAssetPreview serves the preview rendition of the asset.
func (s *BadgerStore) GetAssetPreview(ctx context.Context, path string, asset *store.Info) (io.ReadCloser, string, error) {
	return s.rendition(ctx, store.RenditionPreview, path)
}

func (s *BadgerStore) rendition(ctx context.Context, kind store.Rendition, path string) (io.ReadCloser, string, error) {
	p := pathutil.Normalize(path)

	r, record, err := s.openContent(ctx, "get "+kind.String(), p)
	if err != nil {
		return nil, "", err
	}

	contentType, limit, err := store.RenditionFor(kind, record.info(p), s.previewBytes)
	if err != nil {
		_ = r.Close()
		return nil, "", err
	}
	if limit >= 0 {
		return &limitedReader{Reader: io.LimitReader(r, limit), Closer: r}, contentType, nil
	}
	return r, contentType, nil
}

// openContent opens a read transaction positioned on the first content
// chunk of the asset at p. The transaction lives until the reader closes.
func (s *BadgerStore) openContent(ctx context.Context, op, p string) (*contentReader, *nodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if s.db.IsClosed() {
		return nil, nil, store.ErrClosed
	}
	logger.Debug("badger store: %s %s", op, p)

	txn := s.db.NewTransaction(false)
	record, err := getAssetRecord(txn, p)
	if err != nil {
		txn.Discard()
		if errors.Is(err, badger.ErrDBClosed) {
			return nil, nil, store.ErrClosed
		}
		return nil, nil, err
	}

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = keyContentGeneration(p, record.ContentID)

	it := txn.NewIterator(opts)
	it.Rewind()
	return &contentReader{txn: txn, it: it}, record, nil
}

// contentReader walks the chunks of one content revision.
type contentReader struct {
	mu  sync.Mutex
	txn *badger.Txn
	it  *badger.Iterator
	buf []byte
}

func (r *contentReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.buf) == 0 {
		if r.it == nil || !r.it.Valid() {
			return 0, io.EOF
		}
		chunk, err := r.it.Item().ValueCopy(nil)
		if err != nil {
			return 0, err
		}
		r.buf = chunk
		r.it.Next()
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// Close releases the read transaction. Safe to call more than once.
func (r *contentReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.it != nil {
		r.it.Close()
		r.it = nil
	}
	if r.txn != nil {
		r.txn.Discard()
		r.txn = nil
	}
	r.buf = nil
	return nil
}

type limitedReader struct {
	io.Reader
	io.Closer
}

// OpenAssetWrite returns a writer that streams content chunks into the
// database and publishes them in a single transaction on Close.
func (s *BadgerStore) OpenAssetWrite(ctx context.Context, path string, create bool, info *store.Info) (store.AssetWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db.IsClosed() {
		return nil, store.ErrClosed
	}

	return &assetWriter{
		ctx:       ctx,
		store:     s,
		path:      pathutil.Normalize(path),
		create:    create,
		contentID: uuid.NewString(),
		batch:     s.db.NewWriteBatch(),
	}, nil
}

// UpdateAssetInfo rewrites the asset's record with patch applied.
func (s *BadgerStore) UpdateAssetInfo(ctx context.Context, path string, asset *store.Info, patch store.InfoPatch) error {
	p := pathutil.Normalize(path)

	return s.update(ctx, "update info", p, func(txn *badger.Txn) error {
		record, err := getAssetRecord(txn, p)
		if err != nil {
			return err
		}
		if patch.CheckedOut != nil {
			record.CheckedOut = *patch.CheckedOut
		}
		if patch.CheckedOutBy != nil {
			record.CheckedOutBy = *patch.CheckedOutBy
		}
		return putRecord(txn, p, record)
	})
}

// DeleteAsset removes the asset's record, content chunks and index entry.
func (s *BadgerStore) DeleteAsset(ctx context.Context, path string, asset *store.Info) error {
	p := pathutil.Normalize(path)

	return s.update(ctx, "delete asset", p, func(txn *badger.Txn) error {
		parentPath, _, err := getParentDirectory(txn, p)
		if err != nil {
			return fmt.Errorf("delete asset: %w", err)
		}
		if _, err := getAssetRecord(txn, p); err != nil {
			return fmt.Errorf("delete asset: %w", err)
		}

		if err := deletePrefix(txn, keyContentPrefix(p)); err != nil {
			return err
		}
		if err := txn.Delete(keyNode(p)); err != nil {
			return err
		}
		return txn.Delete(keyChild(parentPath, pathutil.LeafName(p)))
	})
}

// dropContent deletes the chunks of one content revision. Failures only
// leave unreachable chunks behind, so they are logged.
func (s *BadgerStore) dropContent(path, contentID string) {
	err := s.update(context.Background(), "drop content", path, func(txn *badger.Txn) error {
		return deletePrefix(txn, keyContentGeneration(path, contentID))
	})
	if err != nil && !errors.Is(err, store.ErrClosed) {
		logger.Warn("badger store: failed to drop content %s of %s: %v", contentID, path, err)
	}
}

// assetWriter streams content into chunks under its own content id. The
// chunks stay unreachable until Close points the record at them.
type assetWriter struct {
	ctx       context.Context
	store     *BadgerStore
	path      string
	create    bool
	contentID string
	batch     *badger.WriteBatch

	mu      sync.Mutex
	pending []byte
	head    []byte
	size    int64
	chunks  uint32
	closed  bool
}

func (w *assetWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, store.ErrClosed
	}
	if err := w.ctx.Err(); err != nil {
		return 0, err
	}

	if missing := sniffLen - len(w.head); missing > 0 {
		w.head = append(w.head, p[:min(missing, len(p))]...)
	}

	written := 0
	for written < len(p) {
		n := min(contentChunkSize-len(w.pending), len(p)-written)
		w.pending = append(w.pending, p[written:written+n]...)
		written += n
		w.size += int64(n)

		if len(w.pending) == contentChunkSize {
			if err := w.flushChunk(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// flushChunk hands the pending chunk to the write batch, which owns it
// from then on.
func (w *assetWriter) flushChunk() error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := w.batch.Set(keyContentChunk(w.path, w.contentID, w.chunks), w.pending); err != nil {
		return fmt.Errorf("write chunk %d of %s: %w", w.chunks, w.path, err)
	}
	w.chunks++
	w.pending = nil
	return nil
}

// Close flushes the chunks, then commits the record pointing at them in
// one transaction. The previous revision's chunks are dropped afterwards.
func (w *assetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return store.ErrClosed
	}
	w.closed = true

	if err := w.flushChunk(); err != nil {
		w.discard()
		return err
	}
	if err := w.batch.Flush(); err != nil {
		w.discard()
		if errors.Is(err, badger.ErrDBClosed) {
			return store.ErrClosed
		}
		return fmt.Errorf("flush content of %s: %w", w.path, err)
	}

	contentType := store.ContentType(pathutil.LeafName(w.path), w.head)

	s := w.store
	var previous string
	err := s.update(w.ctx, "commit", w.path, func(txn *badger.Txn) error {
		now := s.clock.Now()

		var record *nodeRecord
		if w.create {
			parentPath, _, err := getParentDirectory(txn, w.path)
			if err != nil {
				return fmt.Errorf("commit %s: %w", w.path, err)
			}
			_, err = txn.Get(keyNode(w.path))
			if err == nil {
				return fmt.Errorf("commit %s: %w", w.path, store.ErrAlreadyExists)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(keyChild(parentPath, pathutil.LeafName(w.path)), []byte{}); err != nil {
				return err
			}
			record = &nodeRecord{
				Type:     store.NodeTypeAsset,
				Created:  now,
				Modified: now,
			}
		} else {
			existing, err := getAssetRecord(txn, w.path)
			if err != nil {
				return fmt.Errorf("commit %s: %w", w.path, err)
			}
			record = existing
			record.Modified = store.NextModified(record.Modified, now)
		}

		previous = record.ContentID
		record.ContentID = w.contentID
		record.ContentType = contentType
		record.Size = w.size
		return putRecord(txn, w.path, record)
	})
	if err != nil {
		s.dropContent(w.path, w.contentID)
		return err
	}

	if previous != "" {
		s.dropContent(w.path, previous)
	}
	return nil
}

// Abort discards the batch and any chunk it already committed.
func (w *assetWriter) Abort(err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return store.ErrClosed
	}
	w.closed = true
	w.discard()
	return nil
}

func (w *assetWriter) discard() {
	w.batch.Cancel()
	w.pending = nil
	if w.chunks > 0 {
		w.store.dropContent(w.path, w.contentID)
	}
}
