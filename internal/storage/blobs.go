// Package storage keeps project document blobs in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"nel/api/internal/logger"
)

// PresignTTL is how long a download link stays valid.
const PresignTTL = 15 * time.Minute

// ErrNotConfigured is returned when no object store endpoint is set.
var ErrNotConfigured = errors.New("object storage not configured")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// objectAPI is the subset of *minio.Client the blob store uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// Blobs stores document bodies under org/project/document/name keys.
type Blobs struct {
	client objectAPI
	bucket string
}

// NewBlobs connects to MinIO or S3. An empty endpoint returns nil, nil and
// document uploads are rejected with ErrNotConfigured.
func NewBlobs(cfg Config) (*Blobs, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Blobs{client: client, bucket: cfg.Bucket}, nil
}

func (b *Blobs) Bucket() string {
	return b.bucket
}

// EnsureBucket creates the bucket when it does not exist yet.
func (b *Blobs) EnsureBucket(ctx context.Context) error {
	if b == nil {
		return ErrNotConfigured
	}
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
	logger.FromContext(ctx).Info("storage: created bucket", zap.String("bucket", b.bucket))
	return nil
}

// ObjectKey builds the key for a document body. The file name is reduced to
// its base so callers cannot escape the document prefix.
func ObjectKey(orgID, projectID, documentID, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = "file"
	}
	return strings.Join([]string{orgID, projectID, documentID, base}, "/")
}

// Upload writes body under key. size may be -1 when unknown.
func (b *Blobs) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (int64, error) {
	if b == nil {
		return 0, ErrNotConfigured
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := b.client.PutObject(ctx, b.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return 0, fmt.Errorf("put object %s: %w", key, err)
	}
	return info.Size, nil
}

// URL returns a presigned download link valid for PresignTTL.
func (b *Blobs) URL(ctx context.Context, key, filename string) (string, error) {
	if b == nil {
		return "", ErrNotConfigured
	}
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	u, err := b.client.PresignedGetObject(ctx, b.bucket, key, PresignTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (b *Blobs) Delete(ctx context.Context, key string) error {
	if b == nil {
		return ErrNotConfigured
	}
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}
