package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/voicevault/voicevault/internal/session"
)

// S3Config holds the configuration for the S3 archive backend.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Store wraps FileStore and additionally archives finalized audio to S3.
// Local disk stays the source of truth for retrieval and retention; the S3
// copy is a durability archive whose URL is recorded on the session.
type S3Store struct {
	*FileStore
	client *s3.Client
	bucket string
	region string
	logger *slog.Logger
}

// Compile-time check that S3Store implements Store.
var _ Store = (*S3Store)(nil)

// NewS3Store creates an S3-archiving store on top of a local FileStore.
func NewS3Store(local *FileStore, cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var configOpts []func(*awsconfig.LoadOptions) error
	configOpts = append(configOpts, awsconfig.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("store: load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Store{
		FileStore: local,
		client:    s3.NewFromConfig(awsCfg, clientOpts...),
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		logger:    logger,
	}, nil
}

// StoreAudio persists locally, then uploads the stored file to S3 and
// records the archive URL on the session.
func (s *S3Store) StoreAudio(ctx context.Context, sess *session.Session, samples []float32) (FileInfo, error) {
	info, err := s.FileStore.StoreAudio(ctx, sess, samples)
	if err != nil {
		return FileInfo{}, err
	}

	key, err := s.objectKey(info.Path)
	if err != nil {
		return FileInfo{}, err
	}
	data, err := os.ReadFile(info.Path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("store: read stored file for archive: %w", err)
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return FileInfo{}, fmt.Errorf("store: archive upload: %w", err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	if err := s.setArchiveURL(sess.ID, url); err != nil {
		return FileInfo{}, err
	}
	info.ArchiveURL = url

	s.logger.Info("archived session to S3",
		slog.String("session_id", sess.ID.String()),
		slog.String("key", key),
	)
	return info, nil
}

// DeleteSession removes the local copy and best-effort deletes the S3
// archive object. A failed remote delete is logged, not fatal: retention
// must keep making progress on local space.
func (s *S3Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	sess, err := s.Session(id)
	if err != nil {
		return err
	}

	if err := s.FileStore.DeleteSession(ctx, id); err != nil {
		return err
	}

	if sess.ArchiveURL != "" {
		key, keyErr := s.objectKey(sess.FilePath)
		if keyErr == nil {
			_, delErr := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
			})
			if delErr != nil {
				s.logger.Warn("archive object delete failed",
					slog.String("session_id", id.String()),
					slog.String("key", key),
					slog.String("error", delErr.Error()),
				)
			}
		}
	}
	return nil
}

// objectKey derives the S3 key from a local file path, mirroring the
// date-partitioned layout under the storage root.
func (s *S3Store) objectKey(path string) (string, error) {
	rel, err := filepath.Rel(s.Root(), path)
	if err != nil {
		return "", fmt.Errorf("store: derive archive key: %w", err)
	}
	return "sessions/" + filepath.ToSlash(rel), nil
}
