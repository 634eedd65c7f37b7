// Package imagestore archives receipt images to S3-compatible storage.
// Content URLs on the one-to-one platform are auth-gated and short-lived,
// so the image must be re-hosted before the pipeline or a prompt card can
// reference it.
package imagestore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ledgerbot/internal/util"
)

type Store struct {
	client   *minio.Client
	bucket   string
	endpoint string
	secure   bool
}

// New connects to the MinIO endpoint and ensures the bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, secure bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Store{client: client, bucket: bucket, endpoint: endpoint, secure: secure}, nil
}

// Archive stores the image and returns a URL the pipeline can fetch. The
// URL is presigned for seven days, long enough to outlive any draft.
func (s *Store) Archive(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	name := "receipts/" + util.NewID("") + extension(contentType)
	_, err := s.client.PutObject(ctx, s.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, name, 7*24*time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("presign image url: %w", err)
	}
	return u.String(), nil
}

func extension(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	default:
		return ".jpg"
	}
}
