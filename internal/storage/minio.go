// Package storage implements the artifact store on S3-compatible object
// storage via the minio client.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/assesskit/reportgen/internal/core"
)

const artifactContentType = "application/pdf"

// MinioStoreOptions groups configuration for the MinioStore.
type MinioStoreOptions struct {
	Endpoint   string        // Required: host:port of the S3-compatible endpoint
	AccessKey  string        // Required
	SecretKey  string        // Required
	Bucket     string        // Required
	UseSSL     bool          // Optional
	KeyPrefix  string        // Optional: object key prefix, e.g. "reports"
	LinkExpiry time.Duration // Optional: presigned link lifetime, defaults to 7 days
	Logger     *slog.Logger  // Optional
}

// MinioStore uploads combined artifacts and issues presigned share links.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	keyPrefix  string
	linkExpiry time.Duration
	logger     *slog.Logger
}

var _ core.ArtifactStore = (*MinioStore)(nil)

// NewMinioStore constructs a MinioStore and verifies the target bucket exists.
func NewMinioStore(ctx context.Context, opts MinioStoreOptions) (*MinioStore, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("Endpoint is required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("Bucket is required")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", opts.Bucket)
	}

	linkExpiry := opts.LinkExpiry
	if linkExpiry <= 0 {
		linkExpiry = 7 * 24 * time.Hour
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "artifact_store")
	}

	return &MinioStore{
		client:     client,
		bucket:     opts.Bucket,
		keyPrefix:  strings.Trim(opts.KeyPrefix, "/"),
		linkExpiry: linkExpiry,
		logger:     logger,
	}, nil
}

// Upload stores the file under a unique object key and returns the key plus a
// presigned download link.
func (s *MinioStore) Upload(ctx context.Context, localPath, objectName string) (*core.ArtifactRef, error) {
	key := s.objectKey(objectName)

	info, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: artifactContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	link, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.linkExpiry, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "artifact uploaded",
			"key", key,
			"size", info.Size,
		)
	}

	return &core.ArtifactRef{StorageID: key, StorageLink: link.String()}, nil
}

// objectKey namespaces the object under a fresh uuid so repeated generations
// for the same session never overwrite each other.
func (s *MinioStore) objectKey(objectName string) string {
	key := uuid.NewString() + "/" + objectName
	if s.keyPrefix != "" {
		key = s.keyPrefix + "/" + key
	}
	return key
}
