package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/assetrepo/internal/logger"
	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// sniffLen is how much content is handed to content-type detection.
const sniffLen = 512

// GetAssetContent streams the object body.
func (s *S3Store) GetAssetContent(ctx context.Context, path string, asset *store.Info) (io.ReadCloser, error) {
	p := pathutil.Normalize(path)
	if err := s.begin(ctx, "get content", p); err != nil {
		return nil, err
	}
	return s.get(ctx, p, -1)
}

// GetAssetThumbnail serves the thumbnail rendition of the asset.
func (s *S3Store) GetAssetThumbnail(ctx context.Context, path string, asset *store.Info) (io.ReadCloser, string, error) {
	return s.rendition(ctx, store.RenditionThumbnail, path)
}

// GetAssetPreview serves the preview rendition of the asset.
func (s *S3Store) GetAssetPreview(ctx context.Context, path string, asset *store.Info) (io.ReadCloser, string, error) {
	return s.rendition(ctx, store.RenditionPreview, path)
}

func (s *S3Store) rendition(ctx context.Context, kind store.Rendition, path string) (io.ReadCloser, string, error) {
	p := pathutil.Normalize(path)
	if err := s.begin(ctx, "get "+kind.String(), p); err != nil {
		return nil, "", err
	}

	info, err := s.requireAsset(ctx, p)
	if err != nil {
		return nil, "", err
	}
	contentType, limit, err := store.RenditionFor(kind, info, s.previewBytes)
	if err != nil {
		return nil, "", err
	}

	r, err := s.get(ctx, p, limit)
	if err != nil {
		return nil, "", err
	}
	return r, contentType, nil
}

// get opens the asset object. limit >= 0 caps the bytes returned.
func (s *S3Store) get(ctx context.Context, p string, limit int64) (rc io.ReadCloser, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("GetObject", time.Since(start), err) }()

	key := s.assetKey(p)
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if limit > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=0-%d", limit-1))
	}

	result, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", p, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}

	var body io.Reader = result.Body
	if limit >= 0 {
		// Not every S3-compatible service honors Range
		body = io.LimitReader(result.Body, limit)
	}
	return &metricsReadCloser{Reader: body, body: result.Body, metrics: s.metrics}, nil
}

// OpenAssetWrite returns a writer that uploads content as it arrives.
//
// Content is buffered one part at a time. An asset that fits in a single
// part is uploaded with PutObject on Close; larger ones go through a
// multipart upload that is started when the first part fills and completed
// on Close, so the object only becomes visible once it is whole.
func (s *S3Store) OpenAssetWrite(ctx context.Context, path string, create bool, info *store.Info) (store.AssetWriter, error) {
	p := pathutil.Normalize(path)
	if err := s.begin(ctx, "open write", p); err != nil {
		return nil, err
	}
	return &assetWriter{
		ctx:    ctx,
		store:  s,
		path:   p,
		create: create,
	}, nil
}

// UpdateAssetInfo rewrites the object's user metadata in place with a
// self-copy.
func (s *S3Store) UpdateAssetInfo(ctx context.Context, path string, asset *store.Info, patch store.InfoPatch) error {
	p := pathutil.Normalize(path)
	if err := s.begin(ctx, "update info", p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.requireAsset(ctx, p)
	if err != nil {
		return err
	}
	patch.Apply(current)

	return s.replaceMetadata(ctx, s.assetKey(p), current.ContentType, assetMetadata(current))
}

// replaceMetadata copies the object onto itself with new user metadata.
func (s *S3Store) replaceMetadata(ctx context.Context, key, contentType string, meta map[string]string) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("CopyObject", time.Since(start), err) }()

	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(url.PathEscape(s.bucket + "/" + key)),
		ContentType:       aws.String(contentType),
		Metadata:          meta,
		MetadataDirective: types.MetadataDirectiveReplace,
	})
	if err != nil {
		return fmt.Errorf("failed to update metadata of %s: %w", key, err)
	}
	return nil
}

// DeleteAsset deletes the asset object.
func (s *S3Store) DeleteAsset(ctx context.Context, path string, asset *store.Info) error {
	p := pathutil.Normalize(path)
	if err := s.begin(ctx, "delete asset", p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireAsset(ctx, p); err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return s.delete(ctx, s.assetKey(p))
}

// assetWriter streams content to S3 in parts.
//
// The multipart upload carries the object's metadata from the moment it is
// created, so the info is stamped when the first part fills. Close checks
// whether the asset changed meanwhile and rewrites the metadata if so.
type assetWriter struct {
	ctx    context.Context
	store  *S3Store
	path   string
	create bool

	mu   sync.Mutex
	buf  []byte
	head []byte

	// upload is nil until the first full part
	upload      *multipartUpload
	contentType string
	// base is the asset as it was when the upload started (updates only)
	base    *store.Info
	stamped *store.Info

	err    error
	closed bool
}

func (w *assetWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, store.ErrClosed
	}
	if w.err != nil {
		return 0, w.err
	}
	if err := w.ctx.Err(); err != nil {
		return 0, err
	}

	if missing := sniffLen - len(w.head); missing > 0 {
		w.head = append(w.head, p[:min(missing, len(p))]...)
	}
	w.buf = append(w.buf, p...)

	partSize := w.store.partSize
	for len(w.buf) >= partSize {
		if err := w.flushPart(w.buf[:partSize]); err != nil {
			w.err = err
			return 0, err
		}
		w.buf = append(w.buf[:0:0], w.buf[partSize:]...)
	}
	return len(p), nil
}

// flushPart uploads data as the next part, starting the upload first if
// needed.
func (w *assetWriter) flushPart(data []byte) error {
	s := w.store
	if w.upload == nil {
		now := s.clock.Now()
		info := &store.Info{Created: now, Modified: now}
		if !w.create {
			existing, err := s.requireAsset(w.ctx, w.path)
			if err != nil {
				return fmt.Errorf("upload %s: %w", w.path, err)
			}
			w.base = existing
			info = existing.Clone()
			info.Modified = store.NextModified(existing.Modified, now)
		}

		w.contentType = store.ContentType(pathutil.LeafName(w.path), w.head)
		u, err := s.beginUpload(w.ctx, s.assetKey(w.path), w.contentType, assetMetadata(info))
		if err != nil {
			return err
		}
		w.upload = u
		w.stamped = info
	}
	return s.uploadPart(w.ctx, w.upload, data)
}

// Close re-checks the target and finishes the upload.
func (w *assetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return store.ErrClosed
	}
	w.closed = true

	content := w.buf
	w.buf = nil

	if w.err != nil {
		w.abort()
		return w.err
	}

	s := w.store
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := w.commitInfo(s.clock.Now())
	if err != nil {
		w.abort()
		return err
	}

	key := s.assetKey(w.path)
	if w.upload == nil {
		contentType := store.ContentType(pathutil.LeafName(w.path), w.head)
		return s.put(w.ctx, key, content, contentType, assetMetadata(info))
	}

	if len(content) > 0 {
		if err := s.uploadPart(w.ctx, w.upload, content); err != nil {
			w.abort()
			return err
		}
	}
	if err := s.completeUpload(w.ctx, w.upload); err != nil {
		w.abort()
		return err
	}
	if info != w.stamped {
		return s.replaceMetadata(w.ctx, key, w.contentType, assetMetadata(info))
	}
	return nil
}

// commitInfo re-checks the target under the store lock and returns the info
// to commit. It returns the stamped info when the upload's metadata is
// still accurate.
func (w *assetWriter) commitInfo(now time.Time) (*store.Info, error) {
	s := w.store
	if w.create {
		if err := s.requireParent(w.ctx, w.path); err != nil {
			return nil, fmt.Errorf("commit %s: %w", w.path, err)
		}
		if _, ok, err := s.resolve(w.ctx, w.path); err != nil {
			return nil, err
		} else if ok {
			return nil, fmt.Errorf("commit %s: %w", w.path, store.ErrAlreadyExists)
		}
		if w.stamped != nil {
			return w.stamped, nil
		}
		return &store.Info{Created: now, Modified: now}, nil
	}

	existing, err := s.requireAsset(w.ctx, w.path)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", w.path, err)
	}
	if w.base != nil && sameRevision(w.base, existing) {
		return w.stamped, nil
	}
	existing.Modified = store.NextModified(existing.Modified, now)
	return existing, nil
}

// sameRevision reports whether b carries the metadata a was read with.
func sameRevision(a, b *store.Info) bool {
	return a.Modified.Equal(b.Modified) &&
		a.CheckedOut == b.CheckedOut &&
		a.CheckedOutBy == b.CheckedOutBy
}

// Abort drops the buffer and the uploaded parts, if any.
func (w *assetWriter) Abort(err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return store.ErrClosed
	}
	w.closed = true
	w.buf = nil
	return w.abort()
}

// abort cancels the multipart upload. It runs even when the writer's
// context is done, otherwise the parts would linger in the bucket.
func (w *assetWriter) abort() error {
	if w.upload == nil {
		return nil
	}
	u := w.upload
	w.upload = nil
	if err := w.store.abortUpload(context.WithoutCancel(w.ctx), u); err != nil {
		logger.Warn("s3 store: %v", err)
		return err
	}
	return nil
}
