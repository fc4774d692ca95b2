// Package storage provides the object bucket that holds uploaded files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"knot/internal/config"
	"knot/internal/observability"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Bucket stores opaque objects by key. Delete is idempotent.
type Bucket interface {
	Name() string
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
}

// New selects a bucket driver by STORAGE_DRIVER.
func New(cfg *config.Config) (Bucket, error) {
	switch cfg.StorageDriver {
	case "", "disk":
		b, err := NewDiskBucket(cfg.StorageBucket, cfg.StorageDir)
		if err != nil {
			return nil, err
		}
		return Instrument(b), nil
	case "s3":
		b, err := NewS3Bucket(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.StorageBucket, cfg.S3UseSSL)
		if err != nil {
			return nil, err
		}
		return Instrument(b), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// CleanKey normalizes an object key and rejects keys that escape the bucket.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("empty object key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid object key %q", key)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return cleaned, nil
}

// Instrument wraps a bucket so each operation is counted in prometheus.
func Instrument(b Bucket) Bucket {
	return &instrumented{Bucket: b}
}

type instrumented struct {
	Bucket
}

func (i *instrumented) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	err := i.Bucket.Put(ctx, key, r, size, contentType)
	observability.ObserveStorage("put", err)
	return err
}

func (i *instrumented) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := i.Bucket.Get(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		observability.ObserveStorage("get", nil)
	} else {
		observability.ObserveStorage("get", err)
	}
	return rc, err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	err := i.Bucket.Delete(ctx, key)
	observability.ObserveStorage("delete", err)
	return err
}

type bucketEnsurer interface {
	EnsureBucket(ctx context.Context) error
}

// EnsureBucket creates the underlying bucket if the driver supports it,
// otherwise it only checks that the bucket is reachable.
func EnsureBucket(ctx context.Context, b Bucket) error {
	if i, ok := b.(*instrumented); ok {
		b = i.Bucket
	}
	if e, ok := b.(bucketEnsurer); ok {
		return e.EnsureBucket(ctx)
	}
	return b.Ping(ctx)
}
