// Package capture defines the boundary to the raw audio capture backend.
// The core never talks to hardware directly: it consumes frames through the
// Source interface, and the in-memory implementation here serves as the
// correctness baseline for tests and local development.
package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/voicevault/voicevault/internal/session"
)

// ErrNotRecording is returned by Source operations that require an active
// capture run.
var ErrNotRecording = errors.New("capture: not recording")

// ErrAlreadyRecording is returned by Start when capture is already running.
var ErrAlreadyRecording = errors.New("capture: already recording")

// Source supplies frames of normalized audio samples to the recorder.
type Source interface {
	// Start begins capturing audio.
	Start() error

	// Stop ends capture and returns all samples accumulated since Start.
	Stop() ([]float32, error)

	// Pause temporarily suspends sample delivery without ending capture.
	Pause() error

	// Resume continues sample delivery after Pause.
	Resume() error

	// IsRecording reports whether capture is running (paused counts as
	// recording).
	IsRecording() bool

	// Elapsed returns the accumulated recording time, excluding pauses.
	Elapsed() time.Duration

	// Format returns the stream configuration of delivered samples.
	Format() session.AudioFormat
}

// MemorySource is a Source backed by an in-memory buffer. Samples are fed in
// via Feed, typically by tests or by a frame-generating goroutine. It tracks
// elapsed recording time with pause intervals excluded.
//
// All methods are safe for concurrent use.
type MemorySource struct {
	mu        sync.Mutex
	format    session.AudioFormat
	recording bool
	paused    bool
	buffer    []float32

	// elapsed accumulates completed recording segments; segmentStart marks
	// the beginning of the current un-paused segment.
	elapsed      time.Duration
	segmentStart time.Time

	now func() time.Time
}

// NewMemorySource creates a memory-backed capture source with the given
// stream format.
func NewMemorySource(format session.AudioFormat) *MemorySource {
	return &MemorySource{
		format: format,
		now:    time.Now,
	}
}

// Start begins capture with an empty buffer.
func (m *MemorySource) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recording {
		return ErrAlreadyRecording
	}
	m.recording = true
	m.paused = false
	m.buffer = m.buffer[:0]
	m.elapsed = 0
	m.segmentStart = m.now()
	return nil
}

// Stop ends capture and returns the accumulated samples.
func (m *MemorySource) Stop() ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording {
		return nil, ErrNotRecording
	}
	if !m.paused {
		m.elapsed += m.now().Sub(m.segmentStart)
	}
	m.recording = false
	m.paused = false
	samples := make([]float32, len(m.buffer))
	copy(samples, m.buffer)
	m.buffer = m.buffer[:0]
	return samples, nil
}

// Pause suspends sample intake and freezes the elapsed clock.
func (m *MemorySource) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording {
		return ErrNotRecording
	}
	if !m.paused {
		m.elapsed += m.now().Sub(m.segmentStart)
		m.paused = true
	}
	return nil
}

// Resume restarts sample intake and the elapsed clock.
func (m *MemorySource) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording {
		return ErrNotRecording
	}
	if m.paused {
		m.paused = false
		m.segmentStart = m.now()
	}
	return nil
}

// IsRecording reports whether capture is running.
func (m *MemorySource) IsRecording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

// Elapsed returns the recording time accumulated so far, excluding pauses.
func (m *MemorySource) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recording && !m.paused {
		return m.elapsed + m.now().Sub(m.segmentStart)
	}
	return m.elapsed
}

// Format returns the configured stream format.
func (m *MemorySource) Format() session.AudioFormat {
	return m.format
}

// Feed appends a frame of samples to the capture buffer. Frames delivered
// while paused or stopped are dropped, mirroring a muted device stream.
func (m *MemorySource) Feed(samples []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording || m.paused {
		return
	}
	m.buffer = append(m.buffer, samples...)
}
