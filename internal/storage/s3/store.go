// Package s3 implements storage.ObjectStore on MinIO or any other S3
// compatible service. Keys seen by callers are relative to the configured
// prefix; the prefix never leaks out of this package.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/storage"
)

// bucketAPI is the slice of the S3 API used by Store, bound to one bucket.
// Keys are absolute within the bucket.
type bucketAPI interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	StatObject(ctx context.Context, key string) (storage.ObjectInfo, error)
	ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	RemoveObject(ctx context.Context, key string) error
	EnsureBucket(ctx context.Context, region string) error
}

type Store struct {
	api  bucketAPI
	keys keyspace
}

// New connects to the endpoint in cfg. With AutoCreateBucket set the bucket
// is created when missing.
func New(ctx context.Context, cfg config.ObjectStoreConfig) (*Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("object store bucket is required")
	}
	host, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	store := newStore(&minioBucket{client: client, bucket: bucket}, cfg.Prefix)
	if cfg.AutoCreateBucket {
		if err := store.api.EnsureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, fmt.Errorf("ensure bucket %q: %w", bucket, err)
		}
	}
	return store, nil
}

func newStore(api bucketAPI, prefix string) *Store {
	return &Store{api: api, keys: newKeyspace(prefix)}
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	abs, err := s.keys.object(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.api.PutObject(ctx, abs, body, size, opts.ContentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put %s: %w", abs, err)
	}
	info.Key = s.keys.relative(abs)
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	abs, err := s.keys.object(key)
	if err != nil {
		return nil, err
	}
	body, err := s.api.GetObject(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", abs, err)
	}
	return body, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	abs, err := s.keys.object(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.api.StatObject(ctx, abs)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("stat %s: %w", abs, err)
	}
	info.Key = s.keys.relative(info.Key)
	return info, nil
}

// List returns objects under prefix in key order. An empty prefix lists the
// whole store.
func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	dir, err := s.keys.listing(prefix)
	if err != nil {
		return nil, err
	}
	objects, err := s.api.ListObjects(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	for i := range objects {
		objects[i].Key = s.keys.relative(objects[i].Key)
	}
	slices.SortFunc(objects, func(a, b storage.ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
	return objects, nil
}

// Delete is idempotent: removing a missing object succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	abs, err := s.keys.object(key)
	if err != nil {
		return err
	}
	if err := s.api.RemoveObject(ctx, abs); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete %s: %w", abs, err)
	}
	return nil
}

// keyspace maps caller keys to bucket keys under an optional prefix.
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	prefix = path.Clean("/" + strings.TrimSpace(prefix))
	return keyspace{prefix: strings.TrimPrefix(prefix, "/")}
}

func (k keyspace) object(key string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", errors.New("object key is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return path.Join(k.prefix, cleaned), nil
}

func (k keyspace) listing(prefix string) (string, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(prefix), "/")
	if trimmed == "" {
		if k.prefix == "" {
			return "", nil
		}
		return k.prefix + "/", nil
	}
	abs, err := k.object(trimmed)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(trimmed, "/") {
		abs += "/"
	}
	return abs, nil
}

func (k keyspace) relative(abs string) string {
	if k.prefix == "" {
		return abs
	}
	return strings.TrimPrefix(abs, k.prefix+"/")
}

// parseEndpoint accepts a bare host:port or a URL. An https URL forces TLS
// regardless of useSSL.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("object store endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	switch {
	case parsed.Host == "":
		return "", false, fmt.Errorf("endpoint %q has no host", raw)
	case parsed.Scheme == "https":
		return parsed.Host, true, nil
	case parsed.Scheme == "http":
		return parsed.Host, useSSL, nil
	}
	return "", false, fmt.Errorf("unsupported endpoint scheme %q", parsed.Scheme)
}

type minioBucket struct {
	client *minio.Client
	bucket string
}

func (m *minioBucket) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	uploaded, err := m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, translateError(err)
	}
	return storage.ObjectInfo{Key: uploaded.Key, Size: uploaded.Size, ETag: uploaded.ETag, LastModified: uploaded.LastModified}, nil
}

// GetObject stats before returning so a missing key fails here rather than
// on the first Read.
func (m *minioBucket) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(err)
	}
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, translateError(err)
	}
	return object, nil
}

func (m *minioBucket) StatObject(ctx context.Context, key string) (storage.ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, translateError(err)
	}
	return objectInfo(info), nil
}

func (m *minioBucket) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var objects []storage.ObjectInfo
	for info := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, translateError(info.Err)
		}
		objects = append(objects, objectInfo(info))
	}
	return objects, nil
}

func (m *minioBucket) RemoveObject(ctx context.Context, key string) error {
	return translateError(m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}))
}

func (m *minioBucket) EnsureBucket(ctx context.Context, region string) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return translateError(err)
	}
	if exists {
		return nil
	}
	return translateError(m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: region}))
}

func objectInfo(info minio.ObjectInfo) storage.ObjectInfo {
	return storage.ObjectInfo{Key: info.Key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}
}

// translateError maps S3 "not found" responses onto storage.ErrObjectNotFound.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return fmt.Errorf("%w: %v", storage.ErrObjectNotFound, err)
	}
	return err
}
