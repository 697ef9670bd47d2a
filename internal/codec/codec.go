// Package codec provides the audio codec abstraction used to compress sample
// buffers for storage. Concrete codecs are swappable behind the Codec
// interface: a raw little-endian serialization, a zstd lossless codec and two
// lossy Opus tiers.
//
// Every codec must produce deterministic, reproducible output for identical
// input, so stored files can be verified and re-encoded safely.
package codec

import (
	"errors"
	"fmt"
	"time"
)

// Codec tags accepted by New.
const (
	TagRaw         = "raw"
	TagZstd        = "zstd"
	TagOpusLow     = "opus-low"
	TagOpusVeryLow = "opus-verylow"
)

// ErrUnsupportedCodec is returned when an unknown codec tag is configured.
var ErrUnsupportedCodec = errors.New("unsupported codec")

// Codec compresses and decompresses a full buffer of normalized float32
// samples to and from its storage representation.
//
// Encode must be deterministic: identical input yields identical output.
// Decode must round-trip exactly for lossless codecs and with bounded error
// for lossy ones.
type Codec interface {
	// Encode serializes samples into the codec's storage representation.
	Encode(samples []float32) ([]byte, error)

	// Decode reconstructs samples from data produced by Encode.
	Decode(data []byte) ([]float32, error)

	// Name returns the codec tag.
	Name() string
}

// Result summarizes a bulk compression pass over stored files.
type Result struct {
	// FilesCompressed is the number of files re-encoded.
	FilesCompressed int
	// OriginalBytes is the total size before compression.
	OriginalBytes int64
	// CompressedBytes is the total size after compression.
	CompressedBytes int64
	// Ratio is CompressedBytes / OriginalBytes, or 1.0 when nothing was
	// processed.
	Ratio float64
	// TimeTaken is the wall-clock duration of the pass.
	TimeTaken time.Duration
}

// New creates a codec for the given tag. The level (0-9) tunes codecs that
// support it; it is ignored by raw and the fixed-bitrate Opus tiers.
// Returns ErrUnsupportedCodec for unknown tags.
func New(tag string, level int) (Codec, error) {
	switch tag {
	case TagRaw:
		return RawCodec{}, nil
	case TagZstd:
		return NewZstdCodec(level)
	case TagOpusLow:
		return NewOpusCodec(TagOpusLow, opusLowBitrate)
	case TagOpusVeryLow:
		return NewOpusCodec(TagOpusVeryLow, opusVeryLowBitrate)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, tag)
	}
}
