// Package stream implements the HAL stream workers.
//
// Each stream owns a buffer.FrameRing and a worker goroutine that performs
// the blocking device I/O. The caller-facing Write and Read never block on
// the device: they move frames through the ring and sleep for a computed
// duration so that each call takes about as long as the audio it carries.
//
//   - Output: caller Write -> ring -> worker -> [adjust] -> [resample] -> Sink
//   - Input: device -> worker -> [adjust] -> [resample] -> ring -> caller Read
//   - Relay: device -> worker -> [adjust] -> [resample] -> another stream's Write
//
// Streams start in standby, holding no device. The first Write or Read
// wakes the worker, which opens the device; Standby makes the worker close
// it again and park.
package stream

import (
	"context"
	"time"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/audio/pcmdev"
)

// DefaultMaxSleep caps the pacing sleep of a single Write or Read.
const DefaultMaxSleep = 200 * time.Millisecond

// Sink is where an output worker plays frames. Write may block to apply
// device backpressure.
type Sink interface {
	Write(ctx context.Context, p []byte) error
	Close() error
}

// SinkOpener opens the sink of an output stream. It is called by the worker
// each time the stream leaves standby.
type SinkOpener func() (Sink, error)

// SourceOpener opens the capture device of an input stream or relay.
type SourceOpener func() (pcmdev.Handle, error)

// FrameWriter is the destination of a Relay. *Output implements it.
type FrameWriter interface {
	Write(p []byte) (int, error)
	Format() pcm.Format
}

// HandleSink adapts a playback handle to a Sink.
func HandleSink(h pcmdev.Handle) Sink {
	return handleSink{h: h}
}

type handleSink struct {
	h pcmdev.Handle
}

func (s handleSink) Write(_ context.Context, p []byte) error { return s.h.Write(p) }
func (s handleSink) Close() error { return s.h.Close() }

// Option configures an Output, Input or Relay.
type Option interface {
	apply(*options)
}

type options struct {
	name     string
	ready    func()
	mute     func() bool
	maxSleep time.Duration
}

func newOptions(opts []Option) options {
	o := options{maxSleep: DefaultMaxSleep}
	for _, opt := range opts {
		opt.apply(&o)
	}
	return o
}

type nameOption string

func (o nameOption) apply(opts *options) { opts.name = string(o) }

// WithName sets the name used in log messages.
func WithName(name string) Option {
	return nameOption(name)
}

type readyOption func()

func (o readyOption) apply(opts *options) { opts.ready = o }

// WithReady makes an Output or Relay open its device as soon as it is
// created and call fn once that open succeeds. Input ignores it.
func WithReady(fn func()) Option {
	return readyOption(fn)
}

type muteOption func() bool

func (o muteOption) apply(opts *options) { opts.mute = o }

// WithMute installs a mute check consulted on every Write or Read. A muted
// Output drops the frames; a muted Input returns silence.
func WithMute(fn func() bool) Option {
	return muteOption(fn)
}

type maxSleepOption time.Duration

func (o maxSleepOption) apply(opts *options) { opts.maxSleep = time.Duration(o) }

// WithMaxSleep caps the pacing sleep of a single call. Defaults to
// DefaultMaxSleep.
func WithMaxSleep(d time.Duration) Option {
	return maxSleepOption(d)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func sleepCapped(d, limit time.Duration) {
	if limit > 0 && d > limit {
		d = limit
	}
	if d > 0 {
		time.Sleep(d)
	}
}

// framesSince converts the time elapsed since t into frames at rate.
func framesSince(now, t time.Time, rate int) int64 {
	d := now.Sub(t)
	if d <= 0 {
		return 0
	}
	// d*rate in nanoseconds overflows int64 after about 53h at 48kHz.
	sec, rem := d/time.Second, d%time.Second
	return int64(sec)*int64(rate) + int64(rem)*int64(rate)/int64(time.Second)
}

// swapSCO copies the second half of every frame over the first half. SCO
// capture delivers the far-end voice in the upper channels.
func swapSCO(p []byte, frameSize int) {
	half := frameSize / 2
	for off := 0; off+frameSize <= len(p); off += frameSize {
		copy(p[off:off+half], p[off+half:off+frameSize])
	}
}
