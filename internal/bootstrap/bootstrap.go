// Package bootstrap provides dependency initialization for the VoiceVault
// recording pipeline.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/voicevault/voicevault/internal/capture"
	"github.com/voicevault/voicevault/internal/codec"
	"github.com/voicevault/voicevault/internal/config"
	"github.com/voicevault/voicevault/internal/recorder"
	"github.com/voicevault/voicevault/internal/session"
	"github.com/voicevault/voicevault/internal/store"
	"github.com/voicevault/voicevault/internal/vad"
)

// Dependencies holds all initialized components of the pipeline.
type Dependencies struct {
	Orchestrator *recorder.Orchestrator
	Detector     *vad.Detector
	Source       *capture.MemorySource
	Store        store.Store
	Registry     *session.Registry
}

// NewDependencies creates and wires all components from the configuration.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	audioStore, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := session.NewRegistry()
	source := capture.NewMemorySource(cfg.CaptureFormat())
	detector := vad.NewDetector(cfg.VADSensitivity, cfg.VADHangover(), cfg.VADDetectorMode())

	orch := recorder.New(recorder.Options{
		Source:   source,
		Store:    audioStore,
		Registry: registry,
		Policy:   cfg.RetentionPolicy(),
		Logger:   logger,
	})

	return &Dependencies{
		Orchestrator: orch,
		Detector:     detector,
		Source:       source,
		Store:        audioStore,
		Registry:     registry,
	}, nil
}

// initStore creates the appropriate storage backend based on configuration.
func initStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	c, err := codec.New(cfg.Codec, cfg.CompressionLevel)
	if err != nil {
		return nil, fmt.Errorf("create codec: %w", err)
	}

	fileStore, err := store.NewFileStore(cfg.StorageDir, c, cfg.CompressionLevel, logger)
	if err != nil {
		return nil, fmt.Errorf("create file store: %w", err)
	}

	if cfg.S3Enabled() {
		s3Cfg := store.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := store.NewS3Store(fileStore, s3Cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create S3 store: %w", err)
		}
		logger.Info("S3 archive configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	logger.Info("local storage configured",
		slog.String("storage_dir", cfg.StorageDir),
	)
	return fileStore, nil
}
