// Package session provides the recording session model and the in-memory
// registry that tracks session metadata across the application.
package session

import (
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of a recording session.
type State string

const (
	// StateRecording indicates the session is actively capturing audio.
	StateRecording State = "RECORDING"
	// StatePaused indicates capture is temporarily suspended.
	StatePaused State = "PAUSED"
	// StateStopped indicates the session has been finalized and persisted.
	StateStopped State = "STOPPED"
)

// AudioFormat describes the stream configuration of a recording.
// It is immutable once a session has started.
type AudioFormat struct {
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
	Codec      string `json:"codec"`
}

// Session represents one bounded recording, from start to stop, with its
// associated metadata and a reference to the stored audio.
//
// A session is owned exclusively by the recording orchestrator until Stop,
// after which ownership transfers to the Registry. EndTime is zero while the
// session is active and is set exactly once by the stop transition.
type Session struct {
	// ID is the process-unique identifier, immutable after creation.
	ID uuid.UUID `json:"id"`
	// Name is the user-supplied session title.
	Name string `json:"name"`
	// Description is an optional free-form description.
	Description string `json:"description,omitempty"`
	// StartTime is when recording started.
	StartTime time.Time `json:"start_time"`
	// EndTime is when the session was stopped. Zero while active.
	EndTime time.Time `json:"end_time,omitzero"`
	// Duration is the recorded time with pause intervals excluded.
	Duration time.Duration `json:"duration"`
	// FilePath is the storage location of the persisted audio.
	FilePath string `json:"file_path,omitempty"`
	// ArchiveURL is the remote archive location, if an archive backend
	// uploaded the audio.
	ArchiveURL string `json:"archive_url,omitempty"`
	// FileSize is the stored byte size. Zero until stop.
	FileSize int64 `json:"file_size"`
	// Format is the audio stream configuration.
	Format AudioFormat `json:"format"`
	// Tags are free-form labels used for search.
	Tags []string `json:"tags,omitempty"`
	// TranscriptCount is the number of transcript segments produced from
	// this session by the transcription subsystem.
	TranscriptCount int `json:"transcript_count"`
	// Metadata holds free-form key/value annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
	// State is the current lifecycle state.
	State State `json:"state"`
}

// New creates a session in RECORDING state with a fresh identifier and the
// given stream format. EndTime, Duration and FileSize start zeroed.
func New(name, description string, tags []string, format AudioFormat) *Session {
	return &Session{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		StartTime:   time.Now().UTC(),
		Format:      format,
		Tags:        append([]string(nil), tags...),
		Metadata:    make(map[string]string),
		State:       StateRecording,
	}
}

// Active reports whether the session is still recording or paused.
func (s *Session) Active() bool {
	return s.State == StateRecording || s.State == StatePaused
}

// Finalize marks the session stopped at the given time with the backend's
// elapsed recording duration. It is a no-op if EndTime is already set.
func (s *Session) Finalize(endTime time.Time, elapsed time.Duration) {
	if !s.EndTime.IsZero() {
		return
	}
	s.EndTime = endTime
	s.Duration = elapsed
	s.State = StateStopped
}

// HasTag reports whether the session carries the given tag.
func (s *Session) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone creates a deep copy of the session for safe reads.
func (s *Session) Clone() *Session {
	dup := *s
	dup.Tags = append([]string(nil), s.Tags...)
	if s.Metadata != nil {
		dup.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			dup.Metadata[k] = v
		}
	}
	return &dup
}
