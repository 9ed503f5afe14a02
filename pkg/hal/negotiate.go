package hal

import (
	"fmt"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/halerr"
)

var (
	outputRates = []int{8000, 11025, 16000, 22050, 24000, 32000, 44100, 48000}
	inputRates  = []int{8000, 11025, 16000, 22050, 44100, 48000}
)

// NegotiationError reports a stream format the device cannot open and the
// closest one it can.
type NegotiationError struct {
	Requested pcm.Format
	Suggested pcm.Format
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("hal: unsupported format %s, try %s", e.Requested, e.Suggested)
}

func (e *NegotiationError) Unwrap() error {
	return halerr.ErrInvalidArgument
}

// RefineOutput checks f against the supported output formats.
func RefineOutput(f pcm.Format) (pcm.Format, error) {
	return refine(f, outputRates)
}

// RefineInput checks f against the supported input formats.
func RefineInput(f pcm.Format) (pcm.Format, error) {
	return refine(f, inputRates)
}

// refine returns f unchanged if it is supported. Otherwise it returns the
// suggested format along with a *NegotiationError: S16LE, stereo when the
// channel count is not 1 or 2, and the next supported rate up (or the
// highest one).
func refine(f pcm.Format, rates []int) (pcm.Format, error) {
	s := f
	if s.Sample != pcm.S16LE {
		s.Sample = pcm.S16LE
	}
	if s.Channels != 1 && s.Channels != 2 {
		s.Channels = 2
	}
	s.SampleRate = rates[len(rates)-1]
	for _, r := range rates {
		if f.SampleRate <= r {
			s.SampleRate = r
			break
		}
	}
	if s != f {
		return s, &NegotiationError{Requested: f, Suggested: s}
	}
	return f, nil
}
