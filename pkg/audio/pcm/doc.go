// Package pcm provides types and utilities for working with interleaved
// linear PCM audio frames.
//
// Key types and functions:
//   - Format: sample rate, channel count and sample encoding of a stream
//   - Adjuster / Adjust: channel-count expansion and shrinking without resampling
//   - ApplyGain / MixInto: saturating 16-bit gain and summation
//   - AtomicFloat32: lock-free gain storage shared between goroutines
//   - Tone: a sine source producing S16LE frames
//
// Example usage:
//
//	format := pcm.Format{SampleRate: 48000, Channels: 2}
//
//	// Bytes needed for 20ms of audio
//	n := format.BytesInDuration(20 * time.Millisecond)
//
//	// Widen stereo frames to 8 channels
//	adj := pcm.NewAdjuster(2, 8)
//	adj.Apply(dst, src, frames, pcm.S16LE.Bytes())
package pcm
