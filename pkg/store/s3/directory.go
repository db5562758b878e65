package s3

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/assetrepo/pkg/pathutil"
	"github.com/marmos91/assetrepo/pkg/store"
)

// Exists reports whether an asset object or directory marker exists at path.
func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	p := pathutil.Normalize(path)
	if err := s.begin(ctx, "exists", p); err != nil {
		return false, err
	}
	_, ok, err := s.resolve(ctx, p)
	return ok, err
}

// GetInfo returns the info view of the node at path.
func (s *S3Store) GetInfo(ctx context.Context, path string) (*store.Info, error) {
	p := pathutil.Normalize(path)
	if err := s.begin(ctx, "get info", p); err != nil {
		return nil, err
	}

	info, ok, err := s.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, store.ErrNotFound)
	}
	return info, nil
}

// List lists one level below the directory using the "/" delimiter. Each
// child is then resolved for its metadata.
func (s *S3Store) List(ctx context.Context, path string, dir *store.Info) ([]*store.Info, error) {
	p := pathutil.Normalize(path)
	if err := s.begin(ctx, "list", p); err != nil {
		return nil, err
	}
	if _, err := s.requireDirectory(ctx, p); err != nil {
		return nil, err
	}

	prefix := s.dirPrefix(p)
	var childPaths []string

	err := s.listKeys(ctx, prefix, "/", func(key string, isPrefix bool) bool {
		if key == prefix {
			return true
		}
		childPaths = append(childPaths, s.pathOf(key))
		return true
	})
	if err != nil {
		return nil, err
	}

	infos := make([]*store.Info, 0, len(childPaths))
	for _, childPath := range childPaths {
		info, ok, err := s.resolve(ctx, childPath)
		if err != nil {
			return nil, err
		}
		if ok {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// CreateDirectory writes the directory marker object.
func (s *S3Store) CreateDirectory(ctx context.Context, path string, parent *store.Info) error {
	p := pathutil.Normalize(path)
	if err := s.begin(ctx, "create directory", p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireParent(ctx, p); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if _, ok, err := s.resolve(ctx, p); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("create directory %s: %w", p, store.ErrAlreadyExists)
	}

	return s.put(ctx, s.dirPrefix(p), nil, "", map[string]string{
		metaCreated: formatTime(s.clock.Now()),
	})
}

// DeleteDirectory deletes every object below the directory, then its marker.
func (s *S3Store) DeleteDirectory(ctx context.Context, path string, dir *store.Info) error {
	p := pathutil.Normalize(path)
	if err := s.begin(ctx, "delete directory", p); err != nil {
		return err
	}
	if pathutil.IsRoot(p) {
		return fmt.Errorf("delete directory %s: %w", p, store.ErrRoot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireDirectory(ctx, p); err != nil {
		return fmt.Errorf("delete directory: %w", err)
	}

	prefix := s.dirPrefix(p)
	var keys []string
	err := s.listKeys(ctx, prefix, "", func(key string, _ bool) bool {
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return err
	}

	// Deepest keys first so the marker goes last
	for i := len(keys) - 1; i >= 0; i-- {
		if keys[i] == prefix {
			continue
		}
		if err := s.delete(ctx, keys[i]); err != nil {
			return err
		}
	}
	return s.delete(ctx, prefix)
}

// listKeys pages through ListObjectsV2. With a delimiter, common prefixes
// are reported with isPrefix set. Returning false from fn stops the scan.
func (s *S3Store) listKeys(ctx context.Context, prefix, delimiter string, fn func(key string, isPrefix bool) bool) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("ListObjectsV2", time.Since(start), err) }()

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects under %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if !fn(aws.ToString(obj.Key), false) {
				return nil
			}
		}
		for _, cp := range page.CommonPrefixes {
			if !fn(aws.ToString(cp.Prefix), true) {
				return nil
			}
		}
	}
	return nil
}

func (s *S3Store) put(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("PutObject", time.Since(start), err) }()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      meta,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err = s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	s.metrics.RecordBytes("write", int64(len(data)))
	return nil
}

func (s *S3Store) delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("DeleteObject", time.Since(start), err) }()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// isMarker reports whether key is a directory marker.
func isMarker(key string) bool {
	return strings.HasSuffix(key, "/")
}
