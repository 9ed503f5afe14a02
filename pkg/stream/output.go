package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/audio/pcmdev"
	"github.com/haivivi/carhal/pkg/audio/resampler"
	"github.com/haivivi/carhal/pkg/buffer"
	"github.com/haivivi/carhal/pkg/halerr"
)

// OutputConfig describes an output stream.
type OutputConfig struct {
	// Requested is the format the caller writes.
	Requested pcm.Format
	// Hardware is the configuration of the device behind the sink.
	Hardware pcmdev.Config
	// Address is the bus address, empty for non-bus outputs.
	Address string
	// Device is the logical output device id.
	Device uint32
}

// Output is a playback stream. Write never blocks on the device: frames go
// into a ring that the worker drains into the sink, and frames that do not
// fit are dropped.
//
// It is safe to call methods on Output from multiple goroutines.
type Output struct {
	cfg      OutputConfig
	opts     options
	openSink SinkOpener

	gain      *pcm.AtomicFloat32
	ring      *buffer.FrameRing
	adjuster  pcm.Adjuster
	resampler *resampler.Resampler

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	mu               sync.Mutex
	standby          bool
	workerStandby    bool
	exit             bool
	closed           bool
	failed           bool
	device           uint32
	framesWritten    uint64
	framesRendered   uint64
	framesPlayed     uint64
	totalBuffered    uint64
	dropped          uint64
	underrunPosition uint64
	underrunTime     time.Time
	lastWrite        time.Time
	scratch          []byte
}

// NewOutput creates an output stream in standby and starts its worker.
func NewOutput(cfg OutputConfig, openSink SinkOpener, opts ...Option) (*Output, error) {
	req := cfg.Requested
	hw := cfg.Hardware
	if req.Sample != pcm.S16LE || req.Channels <= 0 || req.SampleRate <= 0 {
		return nil, fmt.Errorf("stream: output format %s: %w", req, halerr.ErrInvalidArgument)
	}
	if hw.Channels <= 0 || hw.Rate <= 0 || hw.PeriodSize <= 0 || hw.PeriodCount <= 0 {
		return nil, fmt.Errorf("stream: output hardware %s: %w", hw, halerr.ErrInvalidArgument)
	}

	ring, err := buffer.NewFrameRing(hw.PeriodSize*hw.PeriodCount, req.FrameSize())
	if err != nil {
		return nil, fmt.Errorf("stream: output ring: %w", err)
	}
	rs, err := resampler.New(
		pcm.Format{SampleRate: req.SampleRate, Channels: hw.Channels},
		pcm.Format{SampleRate: hw.Rate, Channels: hw.Channels},
	)
	if err != nil {
		return nil, fmt.Errorf("stream: output: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Output{
		cfg:       cfg,
		opts:      newOptions(opts),
		openSink:  openSink,
		gain:      pcm.NewAtomicFloat32(1),
		ring:      ring,
		adjuster:  pcm.NewAdjuster(req.Channels, hw.Channels),
		resampler: rs,
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),

		standby:       true,
		workerStandby: true,
		device:        cfg.Device,
	}
	if o.opts.ready != nil {
		// Keep the eagerly opened sink until the first Standby.
		o.workerStandby = false
	}
	go o.worker()
	return o, nil
}

// Format returns the format the caller writes.
func (o *Output) Format() pcm.Format { return o.cfg.Requested }

// Hardware returns the device configuration.
func (o *Output) Hardware() pcmdev.Config { return o.cfg.Hardware }

// Address returns the bus address.
func (o *Output) Address() string { return o.cfg.Address }

// BufferSize returns the preferred write size in bytes: one period.
func (o *Output) BufferSize() int {
	return o.cfg.Hardware.PeriodSize * o.cfg.Requested.FrameSize()
}

// Latency returns the duration of one period at the requested rate.
func (o *Output) Latency() time.Duration {
	return o.cfg.Requested.FramesDuration(o.cfg.Hardware.PeriodSize)
}

// SetGain sets the amplitude ratio applied to written samples.
func (o *Output) SetGain(ratio float32) {
	o.gain.Store(ratio)
}

// Gain returns the amplitude ratio.
func (o *Output) Gain() float32 {
	return o.gain.Load()
}

// Device returns the logical output device id.
func (o *Output) Device() uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.device
}

// SetDevice routes the stream to another logical device. It is only
// allowed in standby.
func (o *Output) SetDevice(id uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.standby {
		return fmt.Errorf("stream: set device on active output: %w", halerr.ErrNotSupported)
	}
	o.device = id
	return nil
}

// SetSampleRate always fails; the rate is fixed when the stream is opened.
func (o *Output) SetSampleRate(int) error {
	return fmt.Errorf("stream: set sample rate: %w", halerr.ErrNotSupported)
}

// Write queues p for playback and reports it fully consumed. It sleeps so
// that, once the ring has filled, each call takes about as long as the
// frames it carries.
func (o *Output) Write(p []byte) (int, error) {
	muted := o.opts.mute != nil && o.opts.mute()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0, fmt.Errorf("stream: write output: %w", halerr.ErrClosed)
	}
	o.workerStandby = false

	_, now := o.positionLocked()
	if o.standby {
		o.standby = false
		o.underrunPosition = o.framesWritten
		o.underrunTime = now
		o.framesRendered = 0
		o.totalBuffered = 0
	}

	fs := o.cfg.Requested.FrameSize()
	frames := len(p) / fs
	if !muted && !o.failed && frames > 0 {
		if cap(o.scratch) < frames*fs {
			o.scratch = make([]byte, frames*fs)
		}
		buf := o.scratch[:frames*fs]
		copy(buf, p)
		pcm.ApplyGain(buf, o.gain.Load())
		if n := o.ring.Write(buf); n < frames {
			o.dropped += uint64(frames - n)
			slog.Debug("stream: output ring full, dropping frames", "stream", o.opts.name, "dropped", frames-n)
		}
	}

	o.framesWritten += uint64(frames)
	o.framesRendered += uint64(frames)
	o.totalBuffered += uint64(frames)

	// Fill the ring at full speed after start or an underrun, then pace.
	framesSleep := 0
	if o.totalBuffered >= uint64(o.ring.Capacity()) {
		framesSleep = frames
	}
	sleep := o.cfg.Requested.FramesDuration(framesSleep)
	if since := now.Sub(o.lastWrite); since < sleep {
		sleep -= since
	} else {
		sleep = 0
	}
	o.lastWrite = now.Add(sleep)
	o.mu.Unlock()

	signal(o.wake)
	sleepCapped(sleep, o.opts.maxSleep)
	return len(p), nil
}

// positionLocked estimates the presentation position. If the estimate
// passes the frames written, the writer has underrun: the position is
// clamped and the baseline restarts from now.
func (o *Output) positionLocked() (uint64, time.Time) {
	now := time.Now()
	var since int64
	if !o.standby {
		since = framesSince(now, o.underrunTime, o.cfg.Requested.SampleRate)
	}
	pos := o.underrunPosition + uint64(since)
	if pos > o.framesWritten {
		pos = o.framesWritten
		o.underrunPosition = pos
		o.underrunTime = now
		o.totalBuffered = 0
	}
	return pos, now
}

// PresentationPosition returns the number of frames presented and the time
// of the estimate.
func (o *Output) PresentationPosition() (uint64, time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.positionLocked()
}

// RenderPosition returns the frames written since the stream last left
// standby.
func (o *Output) RenderPosition() uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return uint32(o.framesRendered)
}

// FramesWritten returns the total frames accepted by Write.
func (o *Output) FramesWritten() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.framesWritten
}

// Standby stops playback and makes the worker release the device.
// Calling it on a stream already in standby does nothing.
func (o *Output) Standby() {
	o.mu.Lock()
	if o.standby && o.workerStandby {
		o.mu.Unlock()
		return
	}
	o.standby = true
	o.workerStandby = true
	o.mu.Unlock()
	signal(o.wake)
}

// InStandby reports whether the stream is in standby.
func (o *Output) InStandby() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.standby
}

// Failed reports whether the worker stopped because the device failed.
func (o *Output) Failed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failed
}

// Close stops the worker, waits for it to exit and releases the ring.
func (o *Output) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.exit = true
	o.mu.Unlock()

	signal(o.wake)
	o.cancel()
	<-o.done
	return o.ring.Close()
}

// Snapshot returns the stream's configuration and counters.
func (o *Output) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	pos, _ := o.positionLocked()
	return Snapshot{
		Kind:           "output",
		Name:           o.opts.name,
		Address:        o.cfg.Address,
		Device:         o.device,
		Requested:      o.cfg.Requested,
		Hardware:       o.cfg.Hardware,
		BufferSize:     o.BufferSize(),
		AmplitudeRatio: o.gain.Load(),
		Standby:        o.standby,
		Failed:         o.failed,
		Frames:         o.framesWritten,
		Position:       int64(pos),
		Buffered:       o.ring.AvailableToRead(),
		Dropped:        o.dropped,
	}
}

func (o *Output) waitLocked() {
	o.mu.Unlock()
	<-o.wake
	o.mu.Lock()
}

func (o *Output) fail(msg string, err error) {
	slog.Error(msg, "stream", o.opts.name, "address", o.cfg.Address, "hardware", o.cfg.Hardware.String(), "error", err)
	o.mu.Lock()
	o.failed = true
	o.mu.Unlock()
}

func (o *Output) worker() {
	defer close(o.done)

	var sink Sink
	closeSink := func() {
		if sink == nil {
			return
		}
		if err := sink.Close(); err != nil {
			slog.Warn("stream: close output sink failed", "stream", o.opts.name, "error", err)
		}
		sink = nil
	}
	defer closeSink()

	if o.opts.ready != nil {
		s, err := o.openSink()
		if err != nil {
			o.fail("stream: open output failed", err)
			return
		}
		sink = s
		o.opts.ready()
	}

	hw := o.cfg.Hardware
	period := make([]byte, hw.PeriodSize*o.cfg.Requested.FrameSize())
	adjusted := make([]byte, hw.PeriodSize*hw.FrameSize())

	for {
		o.mu.Lock()
		for !o.exit && !o.workerStandby && o.ring.AvailableToRead() == 0 {
			o.waitLocked()
		}
		if o.exit {
			o.mu.Unlock()
			return
		}
		if o.workerStandby {
			o.mu.Unlock()
			closeSink()
			o.mu.Lock()
			for o.workerStandby && !o.exit {
				o.waitLocked()
			}
			o.mu.Unlock()
			continue
		}
		o.mu.Unlock()

		if sink == nil {
			s, err := o.openSink()
			if err != nil {
				o.fail("stream: open output failed", err)
				return
			}
			sink = s
		}

		n := o.ring.Read(period)
		if n == 0 {
			continue
		}
		o.adjuster.Apply(adjusted, period, n, pcm.S16LE.Bytes())
		out, err := o.resampler.Resample(adjusted[:n*hw.FrameSize()])
		if err != nil {
			o.fail("stream: resample output failed", err)
			return
		}
		if len(out) == 0 {
			continue
		}
		if err := sink.Write(o.ctx, out); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			o.fail("stream: write output failed", err)
			return
		}

		o.mu.Lock()
		o.framesPlayed += uint64(n)
		o.mu.Unlock()
	}
}
