package pcm

import (
	"fmt"
	"time"
)

// SampleFormat is the encoding of a single sample.
type SampleFormat int

const (
	// S16LE is signed 16-bit little-endian, the only encoding streams carry.
	S16LE SampleFormat = iota
	// U8 is unsigned 8-bit.
	U8
	// S32LE is signed 32-bit little-endian.
	S32LE
	// Float32 is 32-bit IEEE float.
	Float32
)

// Bytes returns the size of one sample in bytes.
func (s SampleFormat) Bytes() int {
	switch s {
	case U8:
		return 1
	case S16LE:
		return 2
	case S32LE, Float32:
		return 4
	}
	panic("pcm: invalid sample format")
}

// String returns the ALSA-style name of the sample format.
func (s SampleFormat) String() string {
	switch s {
	case S16LE:
		return "S16_LE"
	case U8:
		return "U8"
	case S32LE:
		return "S32_LE"
	case Float32:
		return "FLOAT_LE"
	}
	return fmt.Sprintf("SampleFormat(%d)", int(s))
}

// Format represents an audio format configuration. The zero Sample value is
// S16LE.
type Format struct {
	SampleRate int          `yaml:"sample_rate" msgpack:"sample_rate"`
	Channels   int          `yaml:"channels" msgpack:"channels"`
	Sample     SampleFormat `yaml:"sample" msgpack:"sample"`
}

// FrameSize returns the number of bytes in one frame (one sample per channel).
func (f Format) FrameSize() int {
	return f.Channels * f.Sample.Bytes()
}

// Frames returns the number of whole frames in the given number of bytes.
func (f Format) Frames(bytes int) int {
	return bytes / f.FrameSize()
}

// FramesInDuration returns the number of frames in the given duration.
func (f Format) FramesInDuration(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}

// BytesInDuration returns the number of bytes in the given duration.
func (f Format) BytesInDuration(d time.Duration) int {
	return f.FramesInDuration(d) * f.FrameSize()
}

// FramesDuration returns the playback duration of the given number of frames.
func (f Format) FramesDuration(frames int) time.Duration {
	return time.Duration(int64(frames) * int64(time.Second) / int64(f.SampleRate))
}

// Duration returns the duration of the given number of bytes.
func (f Format) Duration(bytes int) time.Duration {
	return f.FramesDuration(f.Frames(bytes))
}

// String returns a human-readable string representation of the format.
func (f Format) String() string {
	return fmt.Sprintf("audio/%s; rate=%d; channels=%d", f.Sample, f.SampleRate, f.Channels)
}
