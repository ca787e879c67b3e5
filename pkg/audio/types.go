// Package audio defines the PCM buffer and format types shared by the
// earshot playback pipeline.
//
// All audio handled by earshot is signed 16-bit little-endian PCM. Fragments
// arrive from the stream as mono at [FragmentSampleRate]; the output device
// may run at a different rate, in which case buffers are resampled with
// [Resample] before they are scheduled.
package audio

import "time"

// Fixed wire format of incoming fragments.
const (
	FragmentSampleRate = 24000
	FragmentChannels   = 1
	BitsPerSample      = 16
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerFrame returns the size in bytes of one frame (one sample per
// channel) of 16-bit PCM in this format.
func (f Format) BytesPerFrame() int {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return ch * BitsPerSample / 8
}

// Buffer is a decoded unit of audio ready to be scheduled for playback.
type Buffer struct {
	// Data is interleaved s16le PCM.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels: earshot only produces mono buffers.
	Channels int
}

// Format returns the buffer's sample format.
func (b Buffer) Format() Format {
	return Format{SampleRate: b.SampleRate, Channels: b.Channels}
}

// Frames returns the number of complete frames in the buffer. A trailing
// partial frame is ignored.
func (b Buffer) Frames() int {
	return len(b.Data) / b.Format().BytesPerFrame()
}

// Duration returns the playback length of the buffer. A buffer with a
// non-positive sample rate has zero duration.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}
