package stream

import (
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

// InputConfig describes an input stream.
type InputConfig struct {
	// Requested is the format the caller reads.
	Requested pcm.Format
	// Hardware is the configuration of the capture device.
	Hardware pcmdev.Config
	// Device is the logical input device id.
	Device uint32
	// SwapSCO copies the second half of each captured frame over the
	// first half before any other processing.
	SwapSCO bool
}

// InputBufferSize returns the preferred read size in bytes for rate and
// channels: 15ms of frames rounded up to a multiple of 16.
func InputBufferSize(rate, channels int) int {
	size := rate * 15 / 1000
	size = (size + 15) / 16 * 16
	return size * 2 * channels
}

// Input is a capture stream. Read never blocks on the device: it waits for
// the frames that should have been captured by now, then drains what the
// worker has put in the ring and fills the rest with silence.
//
// It is safe to call methods on Input from multiple goroutines.
type Input struct {
	cfg        InputConfig
	opts       options
	openSource SourceOpener

	gain      *pcm.AtomicFloat32
	ring      *buffer.FrameRing
	adjuster  pcm.Adjuster
	resampler *resampler.Resampler

	wake chan struct{}
	done chan struct{}

	mu                sync.Mutex
	standby           bool
	workerStandby     bool
	exit              bool
	closed            bool
	failed            bool
	device            uint32
	framesRead        uint64
	dropped           uint64
	standbyPosition   int64
	standbyFramesRead int64
	standbyExitTime   time.Time
}

// NewInput creates an input stream in standby and starts its worker.
func NewInput(cfg InputConfig, openSource SourceOpener, opts ...Option) (*Input, error) {
	req := cfg.Requested
	hw := cfg.Hardware
	if req.Sample != pcm.S16LE || req.Channels <= 0 || req.SampleRate <= 0 {
		return nil, fmt.Errorf("stream: input format %s: %w", req, halerr.ErrInvalidArgument)
	}
	if hw.Channels <= 0 || hw.Rate <= 0 || hw.PeriodSize <= 0 || hw.PeriodCount <= 0 {
		return nil, fmt.Errorf("stream: input hardware %s: %w", hw, halerr.ErrInvalidArgument)
	}
	if cfg.SwapSCO && hw.Channels%2 != 0 {
		return nil, fmt.Errorf("stream: sco swap on %d channels: %w", hw.Channels, halerr.ErrInvalidArgument)
	}

	// One hardware buffer at the requested rate.
	frames := req.FramesInDuration(hw.Format().FramesDuration(hw.BufferFrames()))
	ring, err := buffer.NewFrameRing(max(frames, hw.PeriodSize), req.FrameSize())
	if err != nil {
		return nil, fmt.Errorf("stream: input ring: %w", err)
	}
	rs, err := resampler.New(
		pcm.Format{SampleRate: hw.Rate, Channels: req.Channels},
		pcm.Format{SampleRate: req.SampleRate, Channels: req.Channels},
	)
	if err != nil {
		return nil, fmt.Errorf("stream: input: %w", err)
	}

	in := &Input{
		cfg:        cfg,
		opts:       newOptions(opts),
		openSource: openSource,
		gain:       pcm.NewAtomicFloat32(1),
		ring:       ring,
		adjuster:   pcm.NewAdjuster(hw.Channels, req.Channels),
		resampler:  rs,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),

		standby:       true,
		workerStandby: true,
		device:        cfg.Device,
	}
	go in.worker()
	return in, nil
}

// Format returns the format the caller reads.
func (in *Input) Format() pcm.Format { return in.cfg.Requested }

// Hardware returns the capture device configuration.
func (in *Input) Hardware() pcmdev.Config { return in.cfg.Hardware }

// BufferSize returns the preferred read size in bytes.
func (in *Input) BufferSize() int {
	return InputBufferSize(in.cfg.Requested.SampleRate, in.cfg.Requested.Channels)
}

// SetGain sets the amplitude ratio applied to captured samples.
func (in *Input) SetGain(ratio float32) { in.gain.Store(ratio) }

// Gain returns the amplitude ratio.
func (in *Input) Gain() float32 { return in.gain.Load() }

// Device returns the logical input device id.
func (in *Input) Device() uint32 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.device
}

// SetDevice changes the logical device id. It is only allowed in standby.
func (in *Input) SetDevice(id uint32) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.standby {
		return fmt.Errorf("stream: set device on active input: %w", halerr.ErrNotSupported)
	}
	in.device = id
	return nil
}

// SetSampleRate always fails; the rate is fixed when the stream is opened.
func (in *Input) SetSampleRate(int) error {
	return fmt.Errorf("stream: set sample rate: %w", halerr.ErrNotSupported)
}

func (in *Input) positionLocked() (int64, time.Time) {
	now := time.Now()
	pos := in.standbyPosition
	if !in.standby {
		pos += framesSince(now, in.standbyExitTime, in.cfg.Requested.SampleRate)
	}
	return pos, now
}

// CapturePosition returns the number of frames captured and the time of
// the estimate.
func (in *Input) CapturePosition() (int64, time.Time) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.positionLocked()
}

// Read fills p with captured frames and always reports it full while the
// stream is open.
func (in *Input) Read(p []byte) (int, error) {
	muted := in.opts.mute != nil && in.opts.mute()

	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return 0, fmt.Errorf("stream: read input: %w", halerr.ErrClosed)
	}
	in.workerStandby = false

	pos, now := in.positionLocked()
	if in.standby {
		in.standby = false
		in.standbyExitTime = now
		in.standbyFramesRead = 0
		in.ring.Reset()
	}

	fs := in.cfg.Requested.FrameSize()
	frames := int64(len(p) / fs)
	var wait int64
	if avail := pos - in.standbyPosition - in.standbyFramesRead; frames > avail {
		wait = frames - avail
	}
	in.mu.Unlock()

	signal(in.wake)
	sleepCapped(in.cfg.Requested.FramesDuration(int(wait)), in.opts.maxSleep)

	in.mu.Lock()
	defer in.mu.Unlock()
	clear(p)
	if in.closed {
		return 0, fmt.Errorf("stream: read input: %w", halerr.ErrClosed)
	}
	if in.standby {
		slog.Warn("stream: input entered standby during read", "stream", in.opts.name)
		return len(p), nil
	}
	in.standbyFramesRead += frames
	in.framesRead += uint64(frames)

	in.ring.Read(p)
	if muted {
		clear(p)
	} else {
		pcm.ApplyGain(p, in.gain.Load())
	}
	return len(p), nil
}

// Standby stops capture and makes the worker release the device. It is a
// no-op on a stream already in standby.
func (in *Input) Standby() {
	in.mu.Lock()
	if in.standby {
		in.mu.Unlock()
		return
	}
	in.standbyPosition, _ = in.positionLocked()
	in.standby = true
	in.workerStandby = true
	in.mu.Unlock()
	signal(in.wake)
}

// InStandby reports whether the stream is in standby.
func (in *Input) InStandby() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.standby
}

// Failed reports whether the worker stopped because the device failed.
func (in *Input) Failed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.failed
}

// Close stops the worker, waits for it to exit and releases the ring.
func (in *Input) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	in.exit = true
	in.mu.Unlock()

	signal(in.wake)
	<-in.done
	return in.ring.Close()
}

// Snapshot returns the stream's configuration and counters.
func (in *Input) Snapshot() Snapshot {
	in.mu.Lock()
	defer in.mu.Unlock()
	pos, _ := in.positionLocked()
	return Snapshot{
		Kind:           "input",
		Name:           in.opts.name,
		Device:         in.device,
		Requested:      in.cfg.Requested,
		Hardware:       in.cfg.Hardware,
		BufferSize:     in.BufferSize(),
		AmplitudeRatio: in.gain.Load(),
		Standby:        in.standby,
		Failed:         in.failed,
		Frames:         in.framesRead,
		Position:       pos,
		Buffered:       in.ring.AvailableToRead(),
		Dropped:        in.dropped,
	}
}

func (in *Input) worker() {
	defer close(in.done)

	var src pcmdev.Handle
	closeSource := func() {
		if src == nil {
			return
		}
		if err := src.Close(); err != nil {
			slog.Warn("stream: close input failed", "stream", in.opts.name, "error", err)
		}
		src = nil
	}
	defer closeSource()

	hw := in.cfg.Hardware
	req := in.cfg.Requested
	period := make([]byte, hw.PeriodBytes())
	adjusted := make([]byte, hw.PeriodSize*req.FrameSize())

	for {
		in.mu.Lock()
		if in.workerStandby && !in.exit {
			in.mu.Unlock()
			closeSource()
			in.mu.Lock()
			for in.workerStandby && !in.exit {
				in.mu.Unlock()
				<-in.wake
				in.mu.Lock()
			}
		}
		exit := in.exit
		in.mu.Unlock()
		if exit {
			return
		}

		if src == nil {
			h, err := in.openSource()
			if err != nil {
				in.fail("stream: open input failed", err)
				return
			}
			src = h
		}

		if err := src.Read(period); err != nil {
			in.fail("stream: read input failed", err)
			return
		}
		if in.cfg.SwapSCO {
			swapSCO(period, hw.FrameSize())
		}
		in.adjuster.Apply(adjusted, period, hw.PeriodSize, pcm.S16LE.Bytes())
		out, err := in.resampler.Resample(adjusted)
		if err != nil {
			in.fail("stream: resample input failed", err)
			return
		}
		frames := len(out) / req.FrameSize()
		if n := in.ring.Write(out); n < frames {
			in.mu.Lock()
			in.dropped += uint64(frames - n)
			in.mu.Unlock()
			slog.Debug("stream: input ring full, dropping frames", "stream", in.opts.name, "dropped", frames-n)
		}
	}
}

func (in *Input) fail(msg string, err error) {
	slog.Error(msg, "stream", in.opts.name, "hardware", in.cfg.Hardware.String(), "error", err)
	in.mu.Lock()
	in.failed = true
	in.mu.Unlock()
}
