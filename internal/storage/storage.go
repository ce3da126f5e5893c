package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/config"
)

// Storage provides read-only access to the rendition bucket. This service
// never writes media; the transcoding pipeline owns the bucket contents.
type Storage struct {
	client        *minio.Client
	bucketName    string
	publicBaseURL string
}

// New creates a new storage client
func New(cfg config.StorageConfig) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("rendition bucket %q does not exist", cfg.BucketName)
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.BucketName)
	}

	return &Storage{
		client:        client,
		bucketName:    cfg.BucketName,
		publicBaseURL: baseURL,
	}, nil
}

// ManifestExists checks that a rendition's manifest object is present
func (s *Storage) ManifestExists(ctx context.Context, manifestKey string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucketName, manifestKey, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat manifest object: %w", err)
	}
	return true, nil
}

// ManifestURL returns the public URL of a rendition manifest object. The
// delivery layer serves the object; this service only references it.
func (s *Storage) ManifestURL(manifestKey string) string {
	return fmt.Sprintf("%s/%s", s.publicBaseURL, manifestKey)
}
