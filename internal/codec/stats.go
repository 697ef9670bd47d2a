package codec

import "sync"

// Stats is the running accumulator of compression activity, owned by the
// Tracker wrapper around the configured codec.
type Stats struct {
	// TotalFiles is the number of buffers encoded.
	TotalFiles int
	// OriginalBytes is the cumulative uncompressed size (4 bytes per sample).
	OriginalBytes int64
	// CompressedBytes is the cumulative encoded size.
	CompressedBytes int64
	// AverageRatio is CompressedBytes / OriginalBytes, 1.0 before any
	// encode has happened.
	AverageRatio float64
}

// Tracker wraps a Codec and accumulates Stats across Encode calls.
// It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	codec Codec
	stats Stats
}

// NewTracker wraps the given codec with a stats accumulator.
func NewTracker(c Codec) *Tracker {
	return &Tracker{codec: c, stats: Stats{AverageRatio: 1.0}}
}

// Name returns the wrapped codec's tag.
func (t *Tracker) Name() string { return t.codec.Name() }

// Encode delegates to the wrapped codec and records the original and
// compressed sizes on success.
func (t *Tracker) Encode(samples []float32) ([]byte, error) {
	data, err := t.codec.Encode(samples)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.stats.TotalFiles++
	t.stats.OriginalBytes += int64(len(samples)) * 4
	t.stats.CompressedBytes += int64(len(data))
	if t.stats.OriginalBytes > 0 {
		t.stats.AverageRatio = float64(t.stats.CompressedBytes) / float64(t.stats.OriginalBytes)
	}
	t.mu.Unlock()

	return data, nil
}

// Decode delegates to the wrapped codec.
func (t *Tracker) Decode(data []byte) ([]float32, error) {
	return t.codec.Decode(data)
}

// Stats returns a snapshot of the accumulated statistics.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
