package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ZstdCodec compresses the raw float32 serialization with zstd. The codec is
// lossless: Decode returns the exact input samples.
//
// On incompressible input the output may exceed the original size by the
// zstd frame overhead (a few dozen bytes), so the reported ratio can be
// slightly above 1.0. Real audio compresses below 1.0.
type ZstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdCodec creates a zstd codec. The level (0-9) maps onto zstd's
// speed/compression presets. The encoder runs single-threaded so output is
// deterministic for identical input.
func NewZstdCodec(level int) (*ZstdCodec, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstdLevel(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd codec: create encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd codec: create decoder: %w", err)
	}
	return &ZstdCodec{enc: enc, dec: dec}, nil
}

// Name returns the zstd codec tag.
func (c *ZstdCodec) Name() string { return TagZstd }

// Encode serializes samples as little-endian float32 and compresses the
// result with zstd.
func (c *ZstdCodec) Encode(samples []float32) ([]byte, error) {
	raw, err := RawCodec{}.Encode(samples)
	if err != nil {
		return nil, err
	}
	return c.enc.EncodeAll(raw, nil), nil
}

// Decode decompresses and reconstructs the exact sample sequence.
func (c *ZstdCodec) Decode(data []byte) ([]float32, error) {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd codec: decompress: %w", err)
	}
	return RawCodec{}.Decode(raw)
}

// zstdLevel maps the configured 0-9 compression level onto zstd presets.
func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 2:
		return zstd.SpeedFastest
	case level <= 5:
		return zstd.SpeedDefault
	case level <= 7:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}
