// Package audio defines the audio types, the PCM frame codec used on the
// live-session wire, format conversion helpers, and the [Platform]
// abstraction for capture and playback devices.
//
// Frames are the atomic unit of audio transport — captured from an input
// stream, encoded for the live session, decoded from inbound chunks, and
// written to an output stream for playback.
package audio

import "time"

// Frame is a single chunk of int16 little-endian PCM flowing through the
// pipeline.
type Frame struct {
	// Data is raw PCM (2 bytes per sample, interleaved when stereo).
	Data []byte

	// SampleRate in Hz (16000 for model input, 24000 for model output).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Model input/output formats fixed by the live-session protocol.
var (
	// CaptureFormat is what the live session expects for microphone input.
	CaptureFormat = Format{SampleRate: 16000, Channels: 1}

	// PlaybackFormat is what the live session produces for synthesised output.
	PlaybackFormat = Format{SampleRate: 24000, Channels: 1}
)
