package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// GetAssetContent returns a reader over the asset's current content.
func (s *MemoryStore) GetAssetContent(ctx context.Context, path string, asset *store.Info) (io.ReadCloser, error) {
	if err := s.begin(ctx, "get content", path); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookupAsset(path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(n.content)), nil
}

// GetAssetThumbnail serves the thumbnail rendition of the asset.
func (s *MemoryStore) GetAssetThumbnail(ctx context.Context, path string, asset *store.Info) (io.ReadCloser, string, error) {
	return s.rendition(ctx, store.RenditionThumbnail, path)
}

// GetAssetPreview serves the preview rendition of the asset.
func (s *MemoryStore) GetAssetPreview(ctx context.Context, path string, asset *store.Info) (io.ReadCloser, string, error) {
	return s.rendition(ctx, store.RenditionPreview, path)
}

func (s *MemoryStore) rendition(ctx context.Context, kind store.Rendition, path string) (io.ReadCloser, string, error) {
	if err := s.begin(ctx, "get "+kind.String(), path); err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookupAsset(path)
	if err != nil {
		return nil, "", err
	}

	contentType, limit, err := store.RenditionFor(kind, n.info(pathutil.Normalize(path)), s.previewBytes)
	if err != nil {
		return nil, "", err
	}

	data := n.content
	if limit >= 0 && int64(len(data)) > limit {
		data = data[:limit]
	}
	return io.NopCloser(bytes.NewReader(data)), contentType, nil
}

// OpenAssetWrite returns a buffering writer that commits on Close.
//
// Nothing is visible in the tree until the commit, so an aborted create
// leaves no trace and an aborted update keeps the previous content.
func (s *MemoryStore) OpenAssetWrite(ctx context.Context, path string, create bool, info *store.Info) (store.AssetWriter, error) {
	if err := s.begin(ctx, "open write", path); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}

	return &assetWriter{
		ctx:    ctx,
		store:  s,
		path:   pathutil.Normalize(path),
		create: create,
	}, nil
}

// UpdateAssetInfo applies patch to the asset's metadata in place.
func (s *MemoryStore) UpdateAssetInfo(ctx context.Context, path string, asset *store.Info, patch store.InfoPatch) error {
	if err := s.begin(ctx, "update info", path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.lookupAsset(path)
	if err != nil {
		return err
	}

	if patch.CheckedOut != nil {
		n.checkedOut = *patch.CheckedOut
	}
	if patch.CheckedOutBy != nil {
		n.checkedOutBy = *patch.CheckedOutBy
	}
	return nil
}

// DeleteAsset removes the asset from its parent.
func (s *MemoryStore) DeleteAsset(ctx context.Context, path string, asset *store.Info) error {
	if err := s.begin(ctx, "delete asset", path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, name, err := s.lookupParent(path)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	child, ok := parent.children[name]
	if !ok {
		return fmt.Errorf("delete asset %s: %w", path, store.ErrNotFound)
	}
	if child.dir {
		return fmt.Errorf("delete asset %s: %w", path, store.ErrNotAsset)
	}

	delete(parent.children, name)
	return nil
}

// assetWriter buffers content until Close commits it into the tree.
type assetWriter struct {
	ctx    context.Context
	store  *MemoryStore
	path   string
	create bool

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (w *assetWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, store.ErrClosed
	}
	return w.buf.Write(p)
}

// Close commits the buffered bytes.
func (w *assetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return store.ErrClosed
	}
	w.closed = true

	if err := w.store.simulateLatency(w.ctx); err != nil {
		return err
	}

	content := w.buf.Bytes()
	w.buf = bytes.Buffer{}

	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()

	if w.create {
		parent, name, err := s.lookupParent(w.path)
		if err != nil {
			return fmt.Errorf("commit %s: %w", w.path, err)
		}
		if _, exists := parent.children[name]; exists {
			return fmt.Errorf("commit %s: %w", w.path, store.ErrAlreadyExists)
		}
		parent.children[name] = newAsset(name, content, now)
		return nil
	}

	n, err := s.lookupAsset(w.path)
	if err != nil {
		return fmt.Errorf("commit %s: %w", w.path, err)
	}
	n.content = content
	n.modified = store.NextModified(n.modified, now)
	return nil
}

// Abort drops the buffered bytes without touching the tree.
func (w *assetWriter) Abort(err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return store.ErrClosed
	}
	w.closed = true
	w.buf = bytes.Buffer{}
	return nil
}
