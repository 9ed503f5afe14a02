package resampler

import (
	"fmt"
	"math"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/halerr"
)

// Resampler converts S16LE frames from one sample rate to another. When both
// rates are equal it passes data through untouched.
//
// It is safe to call methods from multiple goroutines, though a stream
// normally owns one Resampler per direction.
type Resampler struct {
	src pcm.Format
	dst pcm.Format

	mu  sync.Mutex
	rs  resampling.Resampler
	in  []float64
	out []byte
}

// New creates a Resampler from src to dst. Both formats must be S16LE with
// the same channel count.
func New(src, dst pcm.Format) (*Resampler, error) {
	if src.Channels != dst.Channels || src.Channels <= 0 {
		return nil, fmt.Errorf("resampler: channels %d -> %d: %w", src.Channels, dst.Channels, halerr.ErrInvalidArgument)
	}
	if src.Sample != pcm.S16LE || dst.Sample != pcm.S16LE {
		return nil, fmt.Errorf("resampler: sample format %s -> %s: %w", src.Sample, dst.Sample, halerr.ErrInvalidArgument)
	}
	if src.SampleRate <= 0 || dst.SampleRate <= 0 {
		return nil, fmt.Errorf("resampler: rate %d -> %d: %w", src.SampleRate, dst.SampleRate, halerr.ErrInvalidArgument)
	}

	r := &Resampler{src: src, dst: dst}
	if src.SampleRate == dst.SampleRate {
		return r, nil
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(src.SampleRate),
		OutputRate: float64(dst.SampleRate),
		Channels:   src.Channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: create %d -> %d: %w: %v", src.SampleRate, dst.SampleRate, halerr.ErrResourceExhausted, err)
	}
	r.rs = rs
	return r, nil
}

// Src returns the input format.
func (r *Resampler) Src() pcm.Format { return r.src }

// Dst returns the output format.
func (r *Resampler) Dst() pcm.Format { return r.dst }

// Passthrough reports whether the input and output rates are equal.
func (r *Resampler) Passthrough() bool { return r.rs == nil }

// OutFrames returns the nominal number of output frames for inFrames input
// frames.
func (r *Resampler) OutFrames(inFrames int) int {
	return int(int64(inFrames) * int64(r.dst.SampleRate) / int64(r.src.SampleRate))
}

// Resample consumes every whole frame in p and returns the output frames
// produced so far. The returned slice is reused by the next call.
func (r *Resampler) Resample(p []byte) ([]byte, error) {
	fs := r.src.FrameSize()
	p = p[:len(p)/fs*fs]
	if r.rs == nil {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p) / 2
	if cap(r.in) < n {
		r.in = make([]float64, n)
	}
	in := r.in[:n]
	for i := range in {
		s := int16(p[i*2]) | int16(p[i*2+1])<<8
		in[i] = float64(s) / 32768.0
	}

	output, err := r.rs.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}

	// Keep whole frames only; the library emits interleaved samples.
	output = output[:len(output)/r.dst.Channels*r.dst.Channels]
	if cap(r.out) < len(output)*2 {
		r.out = make([]byte, len(output)*2)
	}
	out := r.out[:len(output)*2]
	for i, s := range output {
		v := int16(math.Round(s * 32767.0))
		if s >= 1.0 {
			v = math.MaxInt16
		} else if s <= -1.0 {
			v = math.MinInt16
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out, nil
}
