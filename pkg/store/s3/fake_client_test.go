package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeClient is an in-memory bucket implementing Client.
type fakeClient struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	uploads map[string]*fakeUpload
	calls   map[string]int
	nextID  int
}

type fakeUpload struct {
	key         string
	contentType string
	metadata    map[string]string
	parts       map[int32][]byte
}

type fakeObject struct {
	data         []byte
	contentType  string
	metadata     map[string]string
	lastModified time.Time
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		objects: make(map[string]fakeObject),
		uploads: make(map[string]*fakeUpload),
		calls:   make(map[string]int),
	}
}

func (c *fakeClient) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// pendingUploads returns the number of multipart uploads neither completed
// nor aborted.
func (c *fakeClient) pendingUploads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.uploads)
}

func (c *fakeClient) object(key string) (fakeObject, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[key]
	return obj, ok
}

func (c *fakeClient) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["HeadBucket"]++
	return &s3.HeadBucketOutput{}, nil
}

func (c *fakeClient) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["HeadObject"]++

	obj, ok := c.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		Metadata:      copyMeta(obj.metadata),
		LastModified:  aws.Time(obj.lastModified),
	}, nil
}

func (c *fakeClient) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["GetObject"]++

	obj, ok := c.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		Metadata:      copyMeta(obj.metadata),
	}, nil
}

func (c *fakeClient) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	var data []byte
	if params.Body != nil {
		var err error
		if data, err = io.ReadAll(params.Body); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["PutObject"]++

	c.objects[aws.ToString(params.Key)] = fakeObject{
		data:         data,
		contentType:  aws.ToString(params.ContentType),
		metadata:     copyMeta(params.Metadata),
		lastModified: time.Now(),
	}
	return &s3.PutObjectOutput{}, nil
}

func (c *fakeClient) CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["CopyObject"]++

	source, err := url.PathUnescape(aws.ToString(params.CopySource))
	if err != nil {
		return nil, err
	}
	_, sourceKey, _ := strings.Cut(source, "/")

	obj, ok := c.objects[sourceKey]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	if params.MetadataDirective == types.MetadataDirectiveReplace {
		obj.metadata = copyMeta(params.Metadata)
		obj.contentType = aws.ToString(params.ContentType)
	}
	obj.lastModified = time.Now()
	c.objects[aws.ToString(params.Key)] = obj
	return &s3.CopyObjectOutput{}, nil
}

func (c *fakeClient) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["DeleteObject"]++

	delete(c.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 returns every match in one page.
func (c *fakeClient) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["ListObjectsV2"]++

	prefix := aws.ToString(params.Prefix)
	delimiter := aws.ToString(params.Delimiter)

	keys := make([]string, 0, len(c.objects))
	for key := range c.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	seen := make(map[string]bool)
	for _, key := range keys {
		if delimiter != "" {
			rest := key[len(prefix):]
			if i := strings.Index(rest, delimiter); i >= 0 {
				common := prefix + rest[:i+len(delimiter)]
				if !seen[common] {
					seen[common] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(common)})
				}
				continue
			}
		}
		obj := c.objects[key]
		out.Contents = append(out.Contents, types.Object{
			Key:  aws.String(key),
			Size: aws.Int64(int64(len(obj.data))),
		})
	}
	return out, nil
}

func (c *fakeClient) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["CreateMultipartUpload"]++

	c.nextID++
	id := fmt.Sprintf("upload-%d", c.nextID)
	c.uploads[id] = &fakeUpload{
		key:         aws.ToString(params.Key),
		contentType: aws.ToString(params.ContentType),
		metadata:    copyMeta(params.Metadata),
		parts:       make(map[int32][]byte),
	}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (c *fakeClient) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["UploadPart"]++

	upload, ok := c.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	number := aws.ToInt32(params.PartNumber)
	upload.parts[number] = data
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("\"etag-%d\"", number))}, nil
}

// CompleteMultipartUpload assembles the listed parts in order.
func (c *fakeClient) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["CompleteMultipartUpload"]++

	id := aws.ToString(params.UploadId)
	upload, ok := c.uploads[id]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}

	var data []byte
	last := int32(0)
	for _, part := range params.MultipartUpload.Parts {
		number := aws.ToInt32(part.PartNumber)
		chunk, ok := upload.parts[number]
		if !ok || number <= last {
			return nil, fmt.Errorf("invalid part %d", number)
		}
		last = number
		data = append(data, chunk...)
	}

	delete(c.uploads, id)
	c.objects[upload.key] = fakeObject{
		data:         data,
		contentType:  upload.contentType,
		metadata:     upload.metadata,
		lastModified: time.Now(),
	}
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (c *fakeClient) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["AbortMultipartUpload"]++

	id := aws.ToString(params.UploadId)
	if _, ok := c.uploads[id]; !ok {
		return nil, &types.NoSuchUpload{}
	}
	delete(c.uploads, id)
	return &s3.AbortMultipartUploadOutput{}, nil
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
