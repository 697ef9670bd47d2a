package codec

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"
)

// Opus codec parameters. Packets are framed as 20 ms of 48 kHz mono audio,
// the configuration Opus is tuned for; the codec treats the incoming sample
// buffer as a 48 kHz stream.
const (
	opusSampleRate = 48000
	opusChannels   = 1
	// opusFrameSize is the number of samples per 20 ms frame.
	opusFrameSize = opusSampleRate * 20 / 1000 // 960

	// maxPacketBytes is the buffer handed to the encoder per frame.
	maxPacketBytes = 4000

	opusLowBitrate     = 32000
	opusVeryLowBitrate = 16000
)

// OpusCodec is a lossy codec built on libopus via gopus. Decoded audio
// approximates the input within the bounds of the configured bitrate.
//
// The stored representation is a minimal container: a little-endian uint32
// sample count followed by length-prefixed Opus packets. A fresh encoder is
// created per Encode call so identical input always yields identical output.
type OpusCodec struct {
	tag     string
	bitrate int
}

// NewOpusCodec creates an Opus codec with the given tag and target bitrate
// in bits per second.
func NewOpusCodec(tag string, bitrate int) (*OpusCodec, error) {
	if bitrate <= 0 {
		return nil, fmt.Errorf("opus codec: invalid bitrate %d", bitrate)
	}
	return &OpusCodec{tag: tag, bitrate: bitrate}, nil
}

// Name returns the codec tag.
func (c *OpusCodec) Name() string { return c.tag }

// Encode converts samples to 16-bit PCM, splits them into 20 ms frames
// (zero-padding the last one) and encodes each frame as an Opus packet.
func (c *OpusCodec) Encode(samples []float32) ([]byte, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("opus codec: create encoder: %w", err)
	}
	enc.SetBitrate(c.bitrate)

	out := make([]byte, 4, 4+len(samples)/8)
	binary.LittleEndian.PutUint32(out, uint32(len(samples)))

	frame := make([]int16, opusFrameSize)
	for off := 0; off < len(samples); off += opusFrameSize {
		end := off + opusFrameSize
		if end > len(samples) {
			end = len(samples)
		}
		n := copy(frame, pcm16(samples[off:end]))
		for i := n; i < opusFrameSize; i++ {
			frame[i] = 0
		}

		packet, err := enc.Encode(frame, opusFrameSize, maxPacketBytes)
		if err != nil {
			return nil, fmt.Errorf("opus codec: encode frame at %d: %w", off, err)
		}
		if len(packet) > 0xFFFF {
			return nil, fmt.Errorf("opus codec: packet too large (%d bytes)", len(packet))
		}
		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(packet)))
		out = append(out, lenBuf[:]...)
		out = append(out, packet...)
	}

	return out, nil
}

// Decode reverses Encode, truncating the zero padding of the final frame.
func (c *OpusCodec) Decode(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("opus codec: truncated container (%d bytes)", len(data))
	}
	sampleCount := int(binary.LittleEndian.Uint32(data))
	data = data[4:]

	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("opus codec: create decoder: %w", err)
	}

	samples := make([]float32, 0, sampleCount)
	for len(data) > 0 {
		if len(data) < 2 {
			return nil, fmt.Errorf("opus codec: truncated packet header")
		}
		packetLen := int(binary.LittleEndian.Uint16(data))
		data = data[2:]
		if packetLen > len(data) {
			return nil, fmt.Errorf("opus codec: packet length %d exceeds remaining %d bytes", packetLen, len(data))
		}

		pcm, err := dec.Decode(data[:packetLen], opusFrameSize, false)
		if err != nil {
			return nil, fmt.Errorf("opus codec: decode packet: %w", err)
		}
		data = data[packetLen:]

		for _, s := range pcm {
			samples = append(samples, float32(s)/32767.0)
		}
	}

	if len(samples) > sampleCount {
		samples = samples[:sampleCount]
	}
	return samples, nil
}

// pcm16 converts normalized samples to 16-bit PCM with clipping.
func pcm16(samples []float32) []int16 {
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		pcm[i] = int16(s * 32767)
	}
	return pcm
}
