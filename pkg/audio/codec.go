package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeError reports a malformed inbound audio chunk. Chunks that fail to
// decode are skipped by the playback scheduler; they never abort the stream.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: decode: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("audio: decode: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeFrame quantizes normalized float samples to int16 little-endian PCM
// and returns the base64 (standard) encoding used on the live-session wire.
// Samples outside [-1, 1] are clamped, never wrapped.
//
// EncodeFrame is pure: identical input always yields identical output.
func EncodeFrame(samples []float32) string {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeFrame is the exact inverse of [EncodeFrame]: base64 decode, then
// int16 little-endian samples normalized by the int16 maximum magnitude.
// Malformed base64 or an odd byte count yields a *DecodeError; corrupted
// input is never silently turned into audio.
func DecodeFrame(media string) ([]float32, error) {
	pcm, err := base64.StdEncoding.DecodeString(media)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64", Err: err}
	}
	if len(pcm)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd PCM byte count %d", len(pcm))}
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(s) / 32768
	}
	return samples, nil
}

// EncodePCM base64-encodes raw int16 little-endian PCM for the wire without
// requantizing. Used on the capture path, where frames are already PCM.
func EncodePCM(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodePCM base64-decodes a wire chunk back to raw int16 little-endian PCM.
// Returns a *DecodeError on malformed input.
func DecodePCM(media string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(media)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64", Err: err}
	}
	if len(pcm)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd PCM byte count %d", len(pcm))}
	}
	return pcm, nil
}

// SamplesToPCM converts normalized float samples to int16 little-endian PCM
// bytes with clamping.
func SamplesToPCM(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return pcm
}
