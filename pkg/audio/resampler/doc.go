// Package resampler converts blocks of 16-bit PCM frames between sample
// rates.
//
// It wraps github.com/tphakala/go-audio-resampling (pure Go, no cgo). A
// Resampler is fed one block at a time from a stream worker and returns the
// output frames that are ready; the filter delay means the first blocks
// yield slightly fewer frames than the nominal ratio. Channel count is
// unchanged; use pcm.Adjuster for channel conversion.
//
// Example usage:
//
//	r, err := resampler.New(
//		pcm.Format{SampleRate: 16000, Channels: 2},
//		pcm.Format{SampleRate: 48000, Channels: 2},
//	)
//	if err != nil {
//		return err
//	}
//	out, err := r.Resample(period)
package resampler
