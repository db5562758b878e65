// Package s3 implements an asset store on Amazon S3 or any S3-compatible
// object storage.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/benbjohnson/clock"
	"github.com/marmos91/assetrepo/internal/logger"
	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// Client is the subset of the S3 API the store uses.
//
// *s3.Client satisfies it; tests substitute an in-memory fake.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// S3Store implements store.Store on an S3 bucket.
//
// Object Layout:
//   - An asset at /a/b.png is the object "<prefix>a/b.png"
//   - A directory at /a is an empty marker object "<prefix>a/"
//   - The root is implicit: it has no marker and always exists
//   - Node metadata (created, modified, checkout state) travels in the
//     object's user metadata; the content type is the object's Content-Type
//
// Thread Safety:
// Reads go straight to S3. Mutations are serialized by mu so the
// check-then-write sequences (parent exists, name is free) are not
// interleaved by this process. Other writers sharing the bucket are not
// coordinated with.
type S3Store struct {
	client    Client
	bucket    string
	keyPrefix string

	// mu serializes mutations
	mu sync.Mutex

	clock        clock.Clock
	previewBytes int
	partSize     int
	metrics      S3Metrics

	// rootCreated is reported as the root's creation time
	rootCreated time.Time

	closedMu sync.RWMutex
	closed   bool
}

// S3StoreConfig contains configuration for the S3 store.
type S3StoreConfig struct {
	// Client is the configured S3 client
	Client Client

	// Bucket is the S3 bucket name (must already exist)
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "assets/" results in keys like "assets/docs/report.pdf"
	KeyPrefix string

	// PreviewBytes bounds text previews (default: store.DefaultPreviewBytes)
	PreviewBytes int

	// PartSize is the multipart upload part size in bytes
	// (default: DefaultPartSize, minimum: MinPartSize)
	PartSize int

	// Metrics receives per-request observations (optional)
	Metrics S3Metrics

	// Clock overrides the time source (tests)
	Clock clock.Clock
}

// User metadata keys. S3 lower-cases user metadata names.
const (
	metaCreated      = "assetrepo-created"
	metaModified     = "assetrepo-modified"
	metaCheckedOut   = "assetrepo-checked-out"
	metaCheckedOutBy = "assetrepo-checked-out-by"
)

// NewS3Store creates a store over an existing bucket.
//
// Parameters:
//   - ctx: Context for cancellation
//   - cfg: Client, bucket and key layout
//
// Returns:
//   - *S3Store: Store ready for use
//   - error: Error if the configuration is incomplete or ctx is done
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix != "" && !strings.HasSuffix(keyPrefix, "/") {
		keyPrefix += "/"
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	previewBytes := cfg.PreviewBytes
	if previewBytes <= 0 {
		previewBytes = store.DefaultPreviewBytes
	}

	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = DefaultPartSize
	}
	if partSize < MinPartSize {
		return nil, fmt.Errorf("part size %d is below the S3 minimum of %d", partSize, MinPartSize)
	}

	m := cfg.Metrics
	if m == nil {
		m = noopMetrics{}
	}

	return &S3Store{
		client:       cfg.Client,
		bucket:       cfg.Bucket,
		keyPrefix:    keyPrefix,
		clock:        clk,
		previewBytes: previewBytes,
		partSize:     partSize,
		metrics:      m,
		rootCreated:  clk.Now(),
	}, nil
}

// Healthcheck verifies the bucket is reachable.
func (s *S3Store) Healthcheck(ctx context.Context) (err error) {
	if err := s.begin(ctx, "healthcheck", ""); err != nil {
		return err
	}

	start := time.Now()
	defer func() { s.metrics.ObserveOperation("HeadBucket", time.Since(start), err) }()

	_, err = s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", s.bucket, err)
	}
	return nil
}

// Close marks the store closed. The client is owned by the caller.
func (s *S3Store) Close() error {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	s.closed = true
	return nil
}

func (s *S3Store) begin(ctx context.Context, op, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	logger.Debug("s3 store: %s %s", op, path)
	return nil
}

// ============================================================================
// Key Layout
// ============================================================================

// assetKey returns the object key of the asset at path.
func (s *S3Store) assetKey(path string) string {
	return s.keyPrefix + strings.TrimPrefix(path, pathutil.Separator())
}

// dirPrefix returns the key prefix shared by everything below the directory
// at path. For directories other than the root it is also the marker key.
func (s *S3Store) dirPrefix(path string) string {
	if pathutil.IsRoot(path) {
		return s.keyPrefix
	}
	return s.assetKey(path) + "/"
}

// pathOf maps an object key back to a node path.
func (s *S3Store) pathOf(key string) string {
	return pathutil.Normalize(strings.TrimSuffix(strings.TrimPrefix(key, s.keyPrefix), "/"))
}

// ============================================================================
// Object Access
// ============================================================================

// isNotFound reports whether err is S3's answer for a missing object.
//
// HeadObject has no body, so some S3-compatible services only return a bare
// 404 API error instead of the typed NotFound.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// head fetches an object's metadata. A missing object yields (nil, nil).
func (s *S3Store) head(ctx context.Context, key string) (out *s3.HeadObjectOutput, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("HeadObject", time.Since(start), err) }()

	out, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to head object %s: %w", key, err)
	}
	return out, nil
}

// resolve finds the node at path. It returns the info and whether the node
// exists.
func (s *S3Store) resolve(ctx context.Context, path string) (*store.Info, bool, error) {
	if pathutil.IsRoot(path) {
		return &store.Info{
			Path:    path,
			Type:    store.NodeTypeDirectory,
			Created: s.rootCreated,
		}, true, nil
	}

	out, err := s.head(ctx, s.assetKey(path))
	if err != nil {
		return nil, false, err
	}
	if out != nil {
		return s.assetInfo(path, out.Metadata, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength), out.LastModified), true, nil
	}

	out, err = s.head(ctx, s.dirPrefix(path))
	if err != nil {
		return nil, false, err
	}
	if out != nil {
		return &store.Info{
			Name:    pathutil.LeafName(path),
			Path:    path,
			Type:    store.NodeTypeDirectory,
			Created: parseTime(out.Metadata[metaCreated], out.LastModified),
		}, true, nil
	}
	return nil, false, nil
}

// requireDirectory resolves path and requires a directory.
func (s *S3Store) requireDirectory(ctx context.Context, path string) (*store.Info, error) {
	info, ok, err := s.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, store.ErrNotFound)
	}
	if !info.IsDirectory() {
		return nil, fmt.Errorf("%s: %w", path, store.ErrNotDirectory)
	}
	return info, nil
}

// requireAsset resolves path and requires an asset.
func (s *S3Store) requireAsset(ctx context.Context, path string) (*store.Info, error) {
	info, ok, err := s.resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, store.ErrNotFound)
	}
	if !info.IsAsset() {
		return nil, fmt.Errorf("%s: %w", path, store.ErrNotAsset)
	}
	return info, nil
}

// requireParent resolves the directory that would hold path.
func (s *S3Store) requireParent(ctx context.Context, path string) error {
	if pathutil.IsRoot(path) {
		return fmt.Errorf("%s: %w", path, store.ErrRoot)
	}
	parentPath, _ := pathutil.ParentPath(path)
	_, err := s.requireDirectory(ctx, parentPath)
	return err
}

func (s *S3Store) assetInfo(path string, meta map[string]string, contentType string, size int64, lastModified *time.Time) *store.Info {
	created := parseTime(meta[metaCreated], lastModified)
	return &store.Info{
		Name:         pathutil.LeafName(path),
		Path:         path,
		Type:         store.NodeTypeAsset,
		Created:      created,
		Modified:     parseTime(meta[metaModified], &created),
		ContentType:  contentType,
		Size:         size,
		CheckedOut:   meta[metaCheckedOut] == "true",
		CheckedOutBy: decodeMetaValue(meta[metaCheckedOutBy]),
	}
}

// assetMetadata renders info as S3 user metadata.
func assetMetadata(info *store.Info) map[string]string {
	meta := map[string]string{
		metaCreated:  formatTime(info.Created),
		metaModified: formatTime(info.Modified),
	}
	if info.CheckedOut {
		meta[metaCheckedOut] = "true"
	}
	if info.CheckedOutBy != "" {
		meta[metaCheckedOutBy] = url.PathEscape(info.CheckedOutBy)
	}
	return meta
}

// decodeMetaValue reverses the escaping of free-form metadata values. S3
// only carries US-ASCII in user metadata. Values that do not decode, such
// as ones written by other tools, are returned as is.
func decodeMetaValue(value string) string {
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return value
	}
	return decoded
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime reads a metadata timestamp, falling back to the object's
// LastModified for objects written by other tools.
func parseTime(value string, fallback *time.Time) time.Time {
	if value != "" {
		if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
			return t
		}
	}
	if fallback != nil {
		return *fallback
	}
	return time.Time{}
}
