// Package backup copies the device database to S3-compatible object storage.
// With no bucket configured the NoopUploader is used and backups stay local.
package backup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/fitsync/internal/config"
)

// ErrNotConfigured is returned when backup storage is not configured.
var ErrNotConfigured = errors.New("backup storage not configured")

// Uploader stores a user's database backup and hands out download links.
type Uploader interface {
	// Upload stores the backup file at filePath for userID.
	Upload(ctx context.Context, userID, filePath string) error

	// PresignedURL returns a time-limited download link for userID's backup.
	// Returns ErrNotConfigured when storage is not configured.
	PresignedURL(ctx context.Context, userID string) (url string, expiry time.Time, err error)
}

// s3Client is the part of minio.Client the S3Uploader uses.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string) error
	PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error)
}

type minioClient struct {
	client *minio.Client
}

func (m *minioClient) FPutObject(ctx context.Context, bucket, objectName, filePath string) error {
	_, err := m.client.FPutObject(ctx, bucket, objectName, filePath, minio.PutObjectOptions{
		ContentType: "application/vnd.sqlite3",
	})
	return err
}

func (m *minioClient) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	return m.client.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
}

// S3Uploader writes backups to one bucket, one object per user.
type S3Uploader struct {
	client    s3Client
	bucket    string
	urlExpiry time.Duration
}

// Upload replaces userID's backup object with the file at filePath.
func (u *S3Uploader) Upload(ctx context.Context, userID, filePath string) error {
	if err := u.client.FPutObject(ctx, u.bucket, objectKey(userID), filePath); err != nil {
		return fmt.Errorf("upload backup: %w", err)
	}
	return nil
}

// PresignedURL returns a pre-signed GET URL for userID's backup.
func (u *S3Uploader) PresignedURL(ctx context.Context, userID string) (string, time.Time, error) {
	presigned, err := u.client.PresignedGetObject(ctx, u.bucket, objectKey(userID), u.urlExpiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign backup url: %w", err)
	}
	return presigned.String(), time.Now().Add(u.urlExpiry), nil
}

// NoopUploader is used when no bucket is configured.
type NoopUploader struct{}

// Upload does nothing.
func (NoopUploader) Upload(ctx context.Context, userID, filePath string) error { return nil }

// PresignedURL always returns ErrNotConfigured.
func (NoopUploader) PresignedURL(ctx context.Context, userID string) (string, time.Time, error) {
	return "", time.Time{}, ErrNotConfigured
}

// NewUploader returns a NoopUploader when cfg has no bucket, an S3Uploader otherwise.
func NewUploader(cfg config.BackupConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client:    &minioClient{client: client},
		bucket:    cfg.Bucket,
		urlExpiry: cfg.URLExpiry.Std(),
	}, nil
}

// objectKey is {user_id}/backup/latest.db
func objectKey(userID string) string {
	return userID + "/backup/latest.db"
}
