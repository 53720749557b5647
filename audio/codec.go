// Package audio implements the PCM16 transcoding pipeline used to move
// audio between the capture/playback devices and the Realtime API wire
// format: float32 samples <-> little-endian signed 16-bit PCM <-> base64.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
)

// ErrInvalidLength is returned when a PCM16 buffer has an odd byte length.
var ErrInvalidLength = errors.New("audio: pcm16 buffer length must be even")

// base64ChunkSize bounds how many bytes are fed to the base64 coder per
// write. The streamed output is byte-identical to a single-pass encode.
const base64ChunkSize = 32 * 1024

// EncodePCM16 converts float32 samples in [-1, 1] to little-endian signed
// 16-bit PCM. Samples outside the range are clamped. Negative values scale
// by 32768 and non-negative values by 32767 so the full int16 range is used
// exactly; DecodePCM16 applies the inverse scaling.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}

		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodePCM16 converts little-endian signed 16-bit PCM back to float32
// samples. Negative values divide by 32768 and non-negative values by 32767,
// the exact inverse of EncodePCM16, so a round trip is lossy only at
// quantization granularity.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, ErrInvalidLength
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		if v < 0 {
			samples[i] = float32(v) / 32768
		} else {
			samples[i] = float32(v) / 32767
		}
	}
	return samples, nil
}

// ToBase64 encodes a PCM buffer as standard base64 text. Large buffers are
// streamed through the encoder in bounded chunks rather than materialized in
// one call.
func ToBase64(data []byte) string {
	var sb strings.Builder
	sb.Grow(base64.StdEncoding.EncodedLen(len(data)))

	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	for len(data) > 0 {
		n := base64ChunkSize
		if n > len(data) {
			n = len(data)
		}
		// strings.Builder never errors; the encoder only propagates
		// writer errors.
		enc.Write(data[:n])
		data = data[n:]
	}
	enc.Close()

	return sb.String()
}

// FromBase64 decodes standard base64 text back to bytes.
func FromBase64(text string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(text)
}
