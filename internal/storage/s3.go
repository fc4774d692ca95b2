package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"knot/internal/middleware"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectClient is the subset of *minio.Client the S3 bucket uses.
type ObjectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

const defaultContentType = "application/octet-stream"

// S3Bucket stores objects in an S3-compatible bucket.
type S3Bucket struct {
	bucket string
	client ObjectClient
}

// NewS3Bucket creates a minio-backed bucket.
func NewS3Bucket(endpoint, accessKeyID, secretAccessKey, bucketName string, useSSL bool) (*S3Bucket, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for %s: %w", endpoint, err)
	}
	return NewS3BucketWithClient(bucketName, client), nil
}

// NewS3BucketWithClient wraps an existing client.
func NewS3BucketWithClient(bucketName string, client ObjectClient) *S3Bucket {
	return &S3Bucket{bucket: bucketName, client: client}
}

func (b *S3Bucket) Name() string { return b.bucket }

// EnsureBucket creates the bucket when it does not exist yet.
func (b *S3Bucket) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", b.bucket, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", b.bucket, err)
	}
	middleware.Logger.InfoContext(ctx, "created storage bucket", slog.String("bucket", b.bucket))
	return nil
}

func (b *S3Bucket) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	if _, err := b.client.PutObject(ctx, b.bucket, cleaned, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("put object %s: %w", cleaned, err)
	}
	return nil
}

func (b *S3Bucket) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	if _, err := b.client.StatObject(ctx, b.bucket, cleaned, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object %s: %w", cleaned, err)
	}
	obj, err := b.client.GetObject(ctx, b.bucket, cleaned, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", cleaned, err)
	}
	return obj, nil
}

func (b *S3Bucket) Delete(ctx context.Context, key string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	if err := b.client.RemoveObject(ctx, b.bucket, cleaned, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("remove object %s: %w", cleaned, err)
	}
	return nil
}

func (b *S3Bucket) Exists(ctx context.Context, key string) (bool, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return false, err
	}
	if _, err := b.client.StatObject(ctx, b.bucket, cleaned, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *S3Bucket) Ping(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", b.bucket)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
