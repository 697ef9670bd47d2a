package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicevault/voicevault/internal/codec"
	"github.com/voicevault/voicevault/internal/session"
)

// indexFile is the session metadata index persisted next to the audio files.
const indexFile = "index.json"

// Compile-time check that FileStore implements Store.
var _ Store = (*FileStore)(nil)

// record is one indexed session with its storage details.
type record struct {
	Session *session.Session `json:"session"`
	// Codec is the tag the audio on disk was encoded with. It can differ
	// from the configured codec until a compression pass re-encodes it.
	Codec string `json:"codec"`
	// OriginalBytes is the uncompressed size of the stored samples.
	OriginalBytes int64 `json:"original_bytes"`
}

// index is the on-disk layout of the metadata index.
type index struct {
	Version int       `json:"version"`
	Records []*record `json:"records"`
}

// FileStore implements Store on the local filesystem. Audio files live under
// <root>/YYYY/MM/DD/<session-id>.<ext> and the metadata index is persisted
// as JSON on every mutation, so sessions survive process restarts.
//
// All methods are safe for concurrent use.
type FileStore struct {
	mu      sync.RWMutex
	root    string
	tracker *codec.Tracker
	level   int
	records map[uuid.UUID]*record
	// decoders caches codecs by tag for reading files stored under a
	// different codec than the configured one.
	decoders map[string]codec.Codec
	logger   *slog.Logger
}

// NewFileStore creates a file-backed store rooted at root, encoding new
// audio with the given codec. The metadata index is reloaded if present.
func NewFileStore(root string, c codec.Codec, level int, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("store: create root directory: %w", err)
	}

	s := &FileStore{
		root:     root,
		tracker:  codec.NewTracker(c),
		level:    level,
		records:  make(map[uuid.UUID]*record),
		decoders: make(map[string]codec.Codec),
		logger:   logger,
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the storage root directory.
func (s *FileStore) Root() string {
	return s.root
}

// CompressionStats returns the running stats of the configured codec.
func (s *FileStore) CompressionStats() codec.Stats {
	return s.tracker.Stats()
}

// StoreAudio encodes the samples with the configured codec and writes them
// under the date-partitioned layout, then persists the metadata index.
func (s *FileStore) StoreAudio(ctx context.Context, sess *session.Session, samples []float32) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, fmt.Errorf("store: %w", err)
	}

	data, err := s.tracker.Encode(samples)
	if err != nil {
		return FileInfo{}, fmt.Errorf("store: encode audio: %w", err)
	}

	path := s.audioPath(sess.ID, sess.StartTime, s.tracker.Name())
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return FileInfo{}, fmt.Errorf("store: create session directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return FileInfo{}, fmt.Errorf("store: write audio file: %w", err)
	}

	stored := sess.Clone()
	stored.FilePath = path
	stored.FileSize = int64(len(data))

	s.mu.Lock()
	s.records[sess.ID] = &record{
		Session:       stored,
		Codec:         s.tracker.Name(),
		OriginalBytes: int64(len(samples)) * 4,
	}
	err = s.saveIndexLocked()
	s.mu.Unlock()
	if err != nil {
		return FileInfo{}, err
	}

	s.logger.Info("stored audio session",
		slog.String("session_id", sess.ID.String()),
		slog.String("path", path),
		slog.Int("bytes", len(data)),
		slog.String("codec", s.tracker.Name()),
	)

	return FileInfo{ID: uuid.New(), Path: path, Size: int64(len(data))}, nil
}

// RetrieveAudio reads and decodes the audio stored for a session.
func (s *FileStore) RetrieveAudio(ctx context.Context, id uuid.UUID) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	s.mu.RLock()
	rec, ok := s.records[id]
	var path, tag string
	if ok {
		path = rec.Session.FilePath
		tag = rec.Codec
	}
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read audio file: %w", err)
	}

	dec, err := s.codecFor(tag)
	if err != nil {
		return nil, err
	}
	samples, err := dec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("store: decode audio: %w", err)
	}
	return samples, nil
}

// ListSessions filters the index by the criteria and returns clones in
// reverse-chronological order, ties broken by identifier.
func (s *FileStore) ListSessions(ctx context.Context, criteria Criteria) ([]*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	s.mu.RLock()
	matched := make([]*session.Session, 0, len(s.records))
	for _, rec := range s.records {
		if matches(rec.Session, criteria) {
			matched = append(matched, rec.Session.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].StartTime.Equal(matched[j].StartTime) {
			return matched[i].StartTime.After(matched[j].StartTime)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	if criteria.Limit > 0 && len(matched) > criteria.Limit {
		matched = matched[:criteria.Limit]
	}
	return matched, nil
}

// DeleteSession removes the audio file and the index entry. Readers never
// observe a half-deleted session: the entry is removed under the write lock
// before the file is unlinked.
func (s *FileStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	path := rec.Session.FilePath
	delete(s.records, id)
	err := s.saveIndexLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if path != "" {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("store: remove audio file: %w", rmErr)
		}
	}

	s.logger.Info("deleted session",
		slog.String("session_id", id.String()),
		slog.Int64("bytes_freed", rec.Session.FileSize),
	)
	return nil
}

// Session returns a clone of the indexed session metadata.
func (s *FileStore) Session(id uuid.UUID) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return rec.Session.Clone(), nil
}

// setArchiveURL records the remote archive location for a stored session.
func (s *FileStore) setArchiveURL(id uuid.UUID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrSessionNotFound
	}
	rec.Session.ArchiveURL = url
	return s.saveIndexLocked()
}

// Stats reports aggregate storage statistics.
func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, fmt.Errorf("store: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{CompressionRatio: 1.0}
	var originalBytes int64
	for _, rec := range s.records {
		sess := rec.Session
		stats.TotalSessions++
		stats.TotalBytes += sess.FileSize
		stats.TotalDuration += sess.Duration
		originalBytes += rec.OriginalBytes
		if stats.OldestSession.IsZero() || sess.StartTime.Before(stats.OldestSession) {
			stats.OldestSession = sess.StartTime
		}
		if sess.StartTime.After(stats.NewestSession) {
			stats.NewestSession = sess.StartTime
		}
	}
	if originalBytes > 0 {
		stats.CompressionRatio = float64(stats.TotalBytes) / float64(originalBytes)
	}
	return stats, nil
}

// CompressFiles re-encodes files stored raw with the configured codec,
// replacing them in place and updating the index.
func (s *FileStore) CompressFiles(ctx context.Context) (codec.Result, error) {
	start := time.Now()
	result := codec.Result{Ratio: 1.0}

	if s.tracker.Name() == codec.TagRaw {
		result.TimeTaken = time.Since(start)
		return result, nil
	}

	s.mu.RLock()
	var pending []uuid.UUID
	for id, rec := range s.records {
		if rec.Codec == codec.TagRaw {
			pending = append(pending, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range pending {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("store: compression pass aborted: %w", err)
		}
		origSize, compSize, err := s.recompress(id)
		if err != nil {
			s.logger.Warn("recompress failed",
				slog.String("session_id", id.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.FilesCompressed++
		result.OriginalBytes += origSize
		result.CompressedBytes += compSize
	}

	if result.OriginalBytes > 0 {
		result.Ratio = float64(result.CompressedBytes) / float64(result.OriginalBytes)
	}
	result.TimeTaken = time.Since(start)
	return result, nil
}

// recompress re-encodes a single raw-stored session with the configured
// codec, swapping the file and index entry on success.
func (s *FileStore) recompress(id uuid.UUID) (origSize, compSize int64, err error) {
	samples, err := s.RetrieveAudio(context.Background(), id)
	if err != nil {
		return 0, 0, err
	}

	data, err := s.tracker.Encode(samples)
	if err != nil {
		return 0, 0, fmt.Errorf("encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Codec != codec.TagRaw {
		// Deleted or already re-encoded while we were working.
		return 0, 0, ErrSessionNotFound
	}

	oldPath := rec.Session.FilePath
	newPath := s.audioPath(id, rec.Session.StartTime, s.tracker.Name())
	if err := os.WriteFile(newPath, data, 0o640); err != nil {
		return 0, 0, fmt.Errorf("write recompressed file: %w", err)
	}
	if oldPath != newPath {
		if rmErr := os.Remove(oldPath); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn("remove superseded raw file",
				slog.String("path", oldPath),
				slog.String("error", rmErr.Error()),
			)
		}
	}

	origSize = rec.Session.FileSize
	rec.Session.FilePath = newPath
	rec.Session.FileSize = int64(len(data))
	rec.Codec = s.tracker.Name()

	if err := s.saveIndexLocked(); err != nil {
		return 0, 0, err
	}
	return origSize, int64(len(data)), nil
}

// Cleanup applies the retention policy: keep the KeepRecentCount newest
// sessions unconditionally, delete the remainder by age, then continue
// deleting oldest-first while the total size exceeds the cap. Active
// sessions are re-checked immediately before each deletion and never
// removed. Individual failures are counted, not fatal.
func (s *FileStore) Cleanup(ctx context.Context, policy RetentionPolicy, active ActiveFunc) (CleanupResult, error) {
	var result CleanupResult

	s.mu.RLock()
	eligible := make([]*session.Session, 0, len(s.records))
	var totalBytes int64
	for _, rec := range s.records {
		eligible = append(eligible, rec.Session.Clone())
		totalBytes += rec.Session.FileSize
	}
	s.mu.RUnlock()

	// Oldest first; the KeepRecentCount newest fall off the end.
	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].StartTime.Equal(eligible[j].StartTime) {
			return eligible[i].StartTime.Before(eligible[j].StartTime)
		}
		return eligible[i].ID.String() < eligible[j].ID.String()
	})
	if policy.KeepRecentCount > 0 {
		keep := policy.KeepRecentCount
		if keep > len(eligible) {
			keep = len(eligible)
		}
		eligible = eligible[:len(eligible)-keep]
	}

	deleted := make(map[uuid.UUID]bool)

	remove := func(sess *session.Session) {
		if active != nil && active(sess.ID) {
			return
		}
		if err := s.DeleteSession(ctx, sess.ID); err != nil {
			result.Failures++
			s.logger.Warn("retention delete failed",
				slog.String("session_id", sess.ID.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		deleted[sess.ID] = true
		result.FilesDeleted++
		result.SessionsRemoved++
		result.BytesFreed += sess.FileSize
		totalBytes -= sess.FileSize
	}

	// Age pass.
	if policy.MaxAgeDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -policy.MaxAgeDays)
		for _, sess := range eligible {
			if err := ctx.Err(); err != nil {
				return result, fmt.Errorf("store: cleanup aborted: %w", err)
			}
			if sess.StartTime.Before(cutoff) {
				remove(sess)
			}
		}
	}

	// Size pass, oldest first, still respecting the keep floor.
	if policy.MaxTotalBytes > 0 {
		for _, sess := range eligible {
			if totalBytes <= policy.MaxTotalBytes {
				break
			}
			if err := ctx.Err(); err != nil {
				return result, fmt.Errorf("store: cleanup aborted: %w", err)
			}
			if !deleted[sess.ID] {
				remove(sess)
			}
		}
	}

	return result, nil
}

// audioPath builds the date-partitioned storage path for a session.
func (s *FileStore) audioPath(id uuid.UUID, start time.Time, tag string) string {
	return filepath.Join(
		s.root,
		start.UTC().Format("2006/01/02"),
		id.String()+codecExt(tag),
	)
}

// codecExt maps a codec tag onto a file extension.
func codecExt(tag string) string {
	switch tag {
	case codec.TagZstd:
		return ".pcm.zst"
	case codec.TagOpusLow, codec.TagOpusVeryLow:
		return ".opus"
	default:
		return ".pcm"
	}
}

// codecFor returns a codec able to decode files stored under the given tag.
func (s *FileStore) codecFor(tag string) (codec.Codec, error) {
	if tag == s.tracker.Name() {
		return s.tracker, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.decoders[tag]; ok {
		return c, nil
	}
	c, err := codec.New(tag, s.level)
	if err != nil {
		return nil, err
	}
	s.decoders[tag] = c
	return c, nil
}

// matches reports whether a session satisfies all set criteria fields.
func matches(sess *session.Session, c Criteria) bool {
	if c.NamePattern != "" &&
		!strings.Contains(strings.ToLower(sess.Name), strings.ToLower(c.NamePattern)) {
		return false
	}
	for _, tag := range c.Tags {
		if !sess.HasTag(tag) {
			return false
		}
	}
	if !c.DateFrom.IsZero() && sess.StartTime.Before(c.DateFrom) {
		return false
	}
	if !c.DateTo.IsZero() && sess.StartTime.After(c.DateTo) {
		return false
	}
	if c.MinDuration > 0 && sess.Duration < c.MinDuration {
		return false
	}
	if c.MaxDuration > 0 && sess.Duration > c.MaxDuration {
		return false
	}
	return true
}

// loadIndex restores the metadata index from disk if present.
func (s *FileStore) loadIndex() error {
	path := filepath.Join(s.root, indexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: read index: %w", err)
	}

	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("store: parse index: %w", err)
	}
	for _, rec := range idx.Records {
		if rec.Session != nil {
			s.records[rec.Session.ID] = rec
		}
	}
	return nil
}

// saveIndexLocked persists the metadata index. Callers must hold s.mu.
func (s *FileStore) saveIndexLocked() error {
	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Session.StartTime.Before(recs[j].Session.StartTime)
	})

	data, err := json.MarshalIndent(index{Version: 1, Records: recs}, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal index: %w", err)
	}

	// Write-then-rename so a crash mid-write never leaves a truncated
	// index behind.
	path := filepath.Join(s.root, indexFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("store: write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: replace index: %w", err)
	}
	return nil
}
