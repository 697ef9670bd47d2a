// Package store provides persistent audio storage with session metadata
// indexing, retention management and bulk re-compression. It defines the
// Store interface (port) and implementations for local disk and S3-archived
// storage.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/voicevault/voicevault/internal/codec"
	"github.com/voicevault/voicevault/internal/session"
)

// ErrSessionNotFound is returned when a session ID is unknown to the store.
var ErrSessionNotFound = errors.New("store: session not found")

// FileInfo describes a stored audio file.
type FileInfo struct {
	// ID is the unique identifier of the stored file.
	ID uuid.UUID
	// Path is the local storage location.
	Path string
	// ArchiveURL is the remote archive location, empty unless an archive
	// backend uploaded the file.
	ArchiveURL string
	// Size is the stored byte size.
	Size int64
}

// Criteria filters session listings. Zero-value fields are ignored.
type Criteria struct {
	// NamePattern matches sessions whose name contains the pattern
	// (case-insensitive).
	NamePattern string
	// Tags must all be present on a matching session.
	Tags []string
	// DateFrom/DateTo bound the session start time, inclusive.
	DateFrom time.Time
	DateTo   time.Time
	// MinDuration/MaxDuration bound the session duration.
	MinDuration time.Duration
	MaxDuration time.Duration
	// Limit caps the number of results; 0 means no limit.
	Limit int
}

// Stats summarizes the store's contents.
type Stats struct {
	TotalSessions int
	TotalBytes    int64
	TotalDuration time.Duration
	// CompressionRatio is stored bytes divided by original bytes across
	// all sessions, 1.0 when the store is empty.
	CompressionRatio float64
	OldestSession    time.Time
	NewestSession    time.Time
}

// RetentionPolicy governs how long and how much archived audio is kept.
type RetentionPolicy struct {
	// MaxAgeDays deletes sessions older than this many days. 0 disables
	// the age pass.
	MaxAgeDays int
	// MaxTotalBytes caps the total stored size; oldest sessions are
	// deleted first until under the cap. 0 disables the size pass.
	MaxTotalBytes int64
	// KeepRecentCount exempts the newest N sessions from deletion
	// unconditionally.
	KeepRecentCount int
}

// CleanupResult reports the outcome of a retention pass. Per-session
// failures are counted rather than aborting the pass.
type CleanupResult struct {
	FilesDeleted    int
	BytesFreed      int64
	SessionsRemoved int
	Failures        int
}

// ActiveFunc reports whether a session is currently recording or paused.
// Retention re-checks it immediately before each deletion so a session that
// becomes active mid-scan is skipped, never deleted.
type ActiveFunc func(id uuid.UUID) bool

// Store persists and retrieves compressed audio by session, manages the
// session metadata index and enforces retention.
type Store interface {
	// StoreAudio encodes and persists the samples for a session and
	// returns the stored file's info.
	StoreAudio(ctx context.Context, sess *session.Session, samples []float32) (FileInfo, error)

	// RetrieveAudio loads and decodes the audio stored for a session.
	// Returns ErrSessionNotFound for unknown IDs.
	RetrieveAudio(ctx context.Context, id uuid.UUID) ([]float32, error)

	// ListSessions returns stored sessions matching the criteria in
	// reverse-chronological order, ties broken by identifier.
	ListSessions(ctx context.Context, criteria Criteria) ([]*session.Session, error)

	// DeleteSession removes both the persisted audio and the metadata
	// entry. Returns ErrSessionNotFound for unknown IDs.
	DeleteSession(ctx context.Context, id uuid.UUID) error

	// Stats reports aggregate storage statistics.
	Stats(ctx context.Context) (Stats, error)

	// CompressFiles re-encodes raw-stored files with the configured codec,
	// replacing storage in place.
	CompressFiles(ctx context.Context) (codec.Result, error)

	// Cleanup applies the retention policy. Sessions reported active by
	// the guard are never deleted. The pass is abortable between
	// per-session deletions via ctx.
	Cleanup(ctx context.Context, policy RetentionPolicy, active ActiveFunc) (CleanupResult, error)
}
