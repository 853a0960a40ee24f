// Package media stores uploaded photos in object storage and hands back
// opaque references. Callers never see bucket paths; a media ref is the only
// currency that crosses the API boundary.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"oficio/api/internal/util"
)

const maxUploadBytes = 10 << 20 // 10 MiB

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Service wraps a MinIO (or any S3-compatible) bucket.
type Service struct {
	client *minio.Client
	bucket string
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func NewService(ctx context.Context, opts Options) (*Service, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: opts.Bucket}, nil
}

// Upload streams one photo into the bucket and returns its media ref.
// The ref encodes the owning request so listing by engagement stays cheap.
func (s *Service) Upload(ctx context.Context, requestID, contentType string, size int64, body io.Reader) (string, error) {
	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", errors.New("unsupported content type")
	}
	if size <= 0 || size > maxUploadBytes {
		return "", errors.New("file size out of range")
	}

	ref := requestID + "/" + util.NewID("img") + ext
	_, err := s.client.PutObject(ctx, s.bucket, ref, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return ref, nil
}

// PresignGet returns a short-lived download URL for a media ref.
func (s *Service) PresignGet(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	if ref == "" || strings.Contains(ref, "..") {
		return "", errors.New("invalid media ref")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, ref, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return presigned.String(), nil
}

// Delete removes one object. Used when a request is purged by an admin.
func (s *Service) Delete(ctx context.Context, ref string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
