// Package s3 stores training datasets and prepared artifacts in an
// S3-compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/pipable/pipable/internal/storage"
)

var _ storage.ObjectStore = (*Store)(nil)

const fallbackContentType = "application/octet-stream"

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// objectAPI is the subset of bucket operations the store needs. Errors for
// absent objects must wrap storage.ErrObjectNotFound.
type objectAPI interface {
	putFile(ctx context.Context, bucket, key, localPath string, opts storage.PutOptions) (storage.ObjectInfo, error)
	getObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	statObject(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	bucketExists(ctx context.Context, bucket string) (bool, error)
	makeBucket(ctx context.Context, bucket, region string) error
}

// Store resolves every key under an optional prefix inside one bucket.
type Store struct {
	api    objectAPI
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	api, err := newMinioAPI(cfg)
	if err != nil {
		return nil, err
	}
	store, err := newStore(cfg.Bucket, cfg.Prefix, api)
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(bucket, prefix string, api objectAPI) (*Store, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cleaned, err := cleanKey(prefix)
	if err != nil && strings.TrimSpace(prefix) != "" {
		return nil, fmt.Errorf("invalid prefix: %w", err)
	}
	return &Store{api: api, bucket: bucket, prefix: cleaned}, nil
}

// UploadFile streams a local file into the store.
func (s *Store) UploadFile(ctx context.Context, key, localPath string, opts storage.PutOptions) (storage.ObjectInfo, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if opts.ContentType == "" {
		opts.ContentType = contentTypeFor(objectKey)
	}
	info, err := s.api.putFile(ctx, s.bucket, objectKey, localPath, opts)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload %s to s3://%s/%s: %w", localPath, s.bucket, objectKey, err)
	}
	return info, nil
}

// Open returns the object body. The caller must close it.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	body, err := s.api.getObject(ctx, s.bucket, objectKey)
	if err != nil {
		return nil, s.objectErr("get", objectKey, err)
	}
	return body, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.api.statObject(ctx, s.bucket, objectKey)
	if err != nil {
		return storage.ObjectInfo{}, s.objectErr("stat", objectKey, err)
	}
	return info, nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.api.bucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.api.makeBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) objectKey(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return s.prefix + "/" + cleaned, nil
}

// objectErr keeps storage.ErrObjectNotFound matchable while naming the
// object that was missing.
func (s *Store) objectErr(op, objectKey string, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("s3://%s/%s: %w", s.bucket, objectKey, storage.ErrObjectNotFound)
	}
	return fmt.Errorf("%s s3://%s/%s: %w", op, s.bucket, objectKey, err)
}

// cleanKey rejects empty keys and any ".." segment.
func cleanKey(key string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", fmt.Errorf("object key is required")
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", fmt.Errorf("invalid object key: %q", key)
		}
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return cleaned, nil
}

func contentTypeFor(key string) string {
	switch ext := strings.ToLower(path.Ext(key)); ext {
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".jsonl", ".ndjson":
		return "application/x-ndjson"
	case "":
		return fallbackContentType
	default:
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			return guessed
		}
		return fallbackContentType
	}
}
