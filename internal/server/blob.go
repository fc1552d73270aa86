// blob.go - Durable content storage for transfer bytes, backed by MinIO.
//
// Objects are addressed by transfer id under a fixed prefix. Content
// exists in the bucket iff intake completed, independent of the final
// transfer status.
package server

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BlobStore stores and retrieves raw file bytes addressed by transfer id.
type BlobStore interface {
	Put(ctx context.Context, id uuid.UUID, r io.Reader) (int64, error)
	Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, error)
	Stat(ctx context.Context, id uuid.UUID) (int64, error)
	Remove(ctx context.Context, id uuid.UUID) error
}

type minioBlobStore struct {
	client *minio.Client
	bucket string
}

// objectKey builds a stable, non-guessable key for a transfer's bytes.
func objectKey(id uuid.UUID) string {
	return "transfers/" + id.String()
}

// NewMinioBlobStore wraps a MinIO client and bucket as a BlobStore.
func NewMinioBlobStore(client *minio.Client, bucket string) BlobStore {
	return &minioBlobStore{client: client, bucket: bucket}
}

func (b *minioBlobStore) Put(ctx context.Context, id uuid.UUID, r io.Reader) (int64, error) {
	info, err := b.client.PutObject(ctx, b.bucket, objectKey(id), r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return 0, fmt.Errorf("put object: %w", err)
	}
	return info.Size, nil
}

func (b *minioBlobStore) Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, objectKey(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	// GetObject is lazy; force an early error for missing objects.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("stat object: %w", err)
	}
	return obj, nil
}

func (b *minioBlobStore) Stat(ctx context.Context, id uuid.UUID) (int64, error) {
	info, err := b.client.StatObject(ctx, b.bucket, objectKey(id), minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("stat object: %w", err)
	}
	return info.Size, nil
}

func (b *minioBlobStore) Remove(ctx context.Context, id uuid.UUID) error {
	return b.client.RemoveObject(ctx, b.bucket, objectKey(id), minio.RemoveObjectOptions{})
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
		secure = (u.Scheme == "https")
		return u.Host, secure, nil
	}

	// No scheme provided, treat as host:port (insecure by default for local MinIO).
	return raw, false, nil
}

// NewMinioClient builds a MinIO client from ST_S3_* environment variables
// and verifies the configured bucket exists.
func NewMinioClient() (*minio.Client, string, error) {
	rawEndpoint := os.Getenv("ST_S3_ENDPOINT")
	accessKey := os.Getenv("ST_S3_ACCESS_KEY")
	secretKey := os.Getenv("ST_S3_SECRET_KEY")
	bucket := os.Getenv("ST_BUCKET")

	if rawEndpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, "", fmt.Errorf("minio configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(rawEndpoint)
	if err != nil {
		return nil, "", err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, "", err
	}

	// Sanity check: bucket must exist.
	exists, err := client.BucketExists(context.Background(), bucket)
	if err != nil {
		return nil, "", err
	}
	if !exists {
		return nil, "", fmt.Errorf("minio bucket does not exist: %s", bucket)
	}

	return client, bucket, nil
}
