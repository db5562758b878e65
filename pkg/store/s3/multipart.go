package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	// MinPartSize is the smallest part S3 accepts, the last part excepted.
	MinPartSize = 5 << 20

	// DefaultPartSize is used when no part size is configured.
	DefaultPartSize = 8 << 20
)

// multipartUpload tracks one in-progress upload of an asset object.
//
// Parts are uploaded sequentially by a single writer, so completedParts is
// already ordered by part number.
type multipartUpload struct {
	key            string
	uploadID       string
	completedParts []types.CompletedPart
}

// beginUpload creates a multipart upload for key. The content type and
// user metadata are fixed here; S3 cannot change them on completion.
func (s *S3Store) beginUpload(ctx context.Context, key, contentType string, meta map[string]string) (u *multipartUpload, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("CreateMultipartUpload", time.Since(start), err) }()

	result, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Metadata:    meta,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart upload for %s: %w", key, err)
	}

	return &multipartUpload{
		key:      key,
		uploadID: aws.ToString(result.UploadId),
	}, nil
}

// uploadPart uploads data as the next part of u.
func (s *S3Store) uploadPart(ctx context.Context, u *multipartUpload, data []byte) (err error) {
	partNumber := aws.Int32(int32(len(u.completedParts) + 1))

	start := time.Now()
	defer func() { s.metrics.ObserveOperation("UploadPart", time.Since(start), err) }()

	result, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(u.key),
		UploadId:      aws.String(u.uploadID),
		PartNumber:    partNumber,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload part %d of %s: %w", *partNumber, u.key, err)
	}

	u.completedParts = append(u.completedParts, types.CompletedPart{
		ETag:       result.ETag,
		PartNumber: partNumber,
	})
	s.metrics.RecordBytes("write", int64(len(data)))
	return nil
}

// completeUpload assembles the uploaded parts into the object, which
// becomes visible only now.
func (s *S3Store) completeUpload(ctx context.Context, u *multipartUpload) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("CompleteMultipartUpload", time.Since(start), err) }()

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: u.completedParts,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload of %s: %w", u.key, err)
	}
	return nil
}

// abortUpload discards the uploaded parts. An upload S3 no longer knows
// about counts as aborted.
func (s *S3Store) abortUpload(ctx context.Context, u *multipartUpload) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("AbortMultipartUpload", time.Since(start), err) }()

	_, err = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadID),
	})
	if err != nil {
		var noSuchUpload *types.NoSuchUpload
		if errors.As(err, &noSuchUpload) {
			return nil
		}
		return fmt.Errorf("failed to abort multipart upload of %s: %w", u.key, err)
	}
	return nil
}
