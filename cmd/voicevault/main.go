// Package main provides the entry point for the VoiceVault recording daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/voicevault/voicevault/internal/bootstrap"
	"github.com/voicevault/voicevault/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if !cfg.Enabled {
		logger.Info("recording disabled by configuration, exiting")
		return nil
	}

	logger.Info("starting voicevault",
		slog.String("storage_dir", cfg.StorageDir),
		slog.String("codec", cfg.Codec),
		slog.String("vad_mode", cfg.VADMode),
		slog.String("privacy_mode", cfg.PrivacyMode),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps.Detector.Start()

	// Retention maintenance runs in the background until shutdown.
	done := make(chan struct{})
	if cfg.PrivacyMode == "auto-delete" {
		go func() {
			defer close(done)
			deps.Orchestrator.RunMaintenance(ctx, cfg.CleanupInterval())
		}()
	} else {
		close(done)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	// Finalize any in-flight session so captured audio is not lost.
	if _, active := deps.Orchestrator.ActiveSessionID(); active {
		if _, err := deps.Orchestrator.Stop(context.Background()); err != nil {
			logger.Error("failed to finalize active session on shutdown",
				slog.String("error", err.Error()),
			)
		}
	}
	deps.Detector.Stop()
	<-done

	logger.Info("shutdown complete")
	return nil
}
