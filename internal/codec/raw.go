package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// RawCodec stores samples as their direct little-endian float32
// serialization. It is fully reversible with compression ratio 1.0 and
// serves as the correctness baseline for storage round-trips.
type RawCodec struct{}

// Name returns the raw codec tag.
func (RawCodec) Name() string { return TagRaw }

// Encode serializes samples as consecutive little-endian float32 values.
func (RawCodec) Encode(samples []float32) ([]byte, error) {
	data := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}
	return data, nil
}

// Decode reconstructs the exact sample sequence produced by Encode.
func (RawCodec) Decode(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("raw codec: data length %d is not a multiple of 4", len(data))
	}
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples, nil
}
