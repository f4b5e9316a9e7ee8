package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"shareonair/internal/share"
)

var _ share.BlobStore = (*MinioStore)(nil)

// Uploads arrive with unknown length; a fixed part size keeps the
// multipart buffer small.
const partSize = 16 << 20

// MinioOptions configures a MinioStore.
type MinioOptions struct {
	Endpoint     string // "host:port" or "http(s)://host:port"
	AccessKey    string
	SecretKey    string
	Bucket       string
	Prefix       string // object key prefix, e.g. "shares/"
	CreateBucket bool
}

// MinioStore keeps blobs as objects named "<prefix><ref>".
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	// Accept either "minio:9000" or "http://minio:9000" / "https://minio:9000".
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	return raw, false, nil
}

// NewMinioStore connects to the endpoint and checks that the bucket exists,
// creating it when opts.CreateBucket is set.
func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	if opts.Endpoint == "" || opts.AccessKey == "" || opts.SecretKey == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("minio configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, share.Unavailable("check bucket", err)
	}
	if !exists {
		if !opts.CreateBucket {
			return nil, fmt.Errorf("minio bucket does not exist: %s", opts.Bucket)
		}
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, share.Unavailable("create bucket", err)
		}
	}

	return &MinioStore{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func (s *MinioStore) key(ref string) string {
	return s.prefix + ref
}

func (s *MinioStore) Put(ctx context.Context, r io.Reader, suggestedName string) (string, int64, error) {
	ref := newRef(suggestedName)
	src := &ctxReader{ctx: ctx, r: r}

	info, err := s.client.PutObject(ctx, s.bucket, s.key(ref), src, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
		PartSize:    partSize,
	})
	if err != nil {
		if src.err != nil {
			return "", 0, fmt.Errorf("read upload: %w", src.err)
		}
		return "", 0, share.Unavailable("put object", err)
	}
	return ref, info.Size, nil
}

func (s *MinioStore) Exists(ctx context.Context, ref string) (bool, error) {
	if !validRef(ref) {
		return false, nil
	}
	_, err := s.client.StatObject(ctx, s.bucket, s.key(ref), minio.StatObjectOptions{})
	if isNoSuchKey(err) {
		return false, nil
	}
	if err != nil {
		return false, share.Unavailable("stat object", err)
	}
	return true, nil
}

func (s *MinioStore) Remove(ctx context.Context, ref string) error {
	if !validRef(ref) {
		return ErrInvalidRef
	}
	err := s.client.RemoveObject(ctx, s.bucket, s.key(ref), minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return share.Unavailable("remove object", err)
	}
	return nil
}

func (s *MinioStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if !validRef(ref) {
		return nil, share.ErrBlobNotFound
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(ref), minio.GetObjectOptions{})
	if err != nil {
		return nil, share.Unavailable("get object", err)
	}
	// GetObject is lazy; Stat forces the missing-object error early.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, share.ErrBlobNotFound
		}
		return nil, share.Unavailable("stat object", err)
	}
	return obj, nil
}

func (s *MinioStore) List(ctx context.Context, olderThan time.Time) ([]string, error) {
	var refs []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}) {
		if obj.Err != nil {
			return refs, share.Unavailable("list objects", obj.Err)
		}
		ref := strings.TrimPrefix(obj.Key, s.prefix)
		if !validRef(ref) {
			continue
		}
		if obj.LastModified.Before(olderThan) {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

func (s *MinioStore) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return share.Unavailable("check bucket", err)
	}
	if !ok {
		return share.Unavailable("check bucket", fmt.Errorf("bucket %s is missing", s.bucket))
	}
	return nil
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
