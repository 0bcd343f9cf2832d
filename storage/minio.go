package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ChromaFM/config"
	"ChromaFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	minioClient *minio.Client
	minioBucket string
)

// InitMinio initializes the MinIO client and makes sure the audio bucket
// exists.
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("created audio bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	minioBucket = cfg.MinioBucket
	logger.Info("MinIO storage ready",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))
	return nil
}

// Enabled reports whether object storage was initialized.
func Enabled() bool { return minioClient != nil }

// objectName maps a library file path to a stable object key.
func objectName(filePath string) string {
	return "audio/" + strings.TrimPrefix(filepath.ToSlash(filePath), "/")
}

// ArchiveAudio uploads one library file to the audio bucket, keyed by its
// library path. Already-archived objects are overwritten.
func ArchiveAudio(ctx context.Context, filePath string) error {
	if minioClient == nil {
		return fmt.Errorf("object storage not initialized")
	}
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open audio file %s: %w", filePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat audio file %s: %w", filePath, err)
	}

	_, err = minioClient.PutObject(ctx, minioBucket, objectName(filePath), f, info.Size(), minio.PutObjectOptions{
		ContentType: contentTypeFor(filePath),
	})
	if err != nil {
		return fmt.Errorf("failed to upload audio file %s: %w", filePath, err)
	}
	return nil
}

// PresignAudioURL returns a time-limited download URL for an archived
// track.
func PresignAudioURL(ctx context.Context, filePath string, expiry time.Duration) (string, error) {
	if minioClient == nil {
		return "", fmt.Errorf("object storage not initialized")
	}
	u, err := minioClient.PresignedGetObject(ctx, minioBucket, objectName(filePath), expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign audio object: %w", err)
	}
	return u.String(), nil
}

func contentTypeFor(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".aiff":
		return "audio/aiff"
	default:
		return "application/octet-stream"
	}
}
