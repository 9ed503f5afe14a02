package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/audio/pcmdev"
	"github.com/haivivi/carhal/pkg/audio/resampler"
	"github.com/haivivi/carhal/pkg/halerr"
)

// RelayConfig describes a relay.
type RelayConfig struct {
	// Hardware is the configuration of the capture device.
	Hardware pcmdev.Config
	// Device is the logical input device id.
	Device uint32
	// SwapSCO copies the second half of each captured frame over the
	// first half before any other processing.
	SwapSCO bool
}

// Relay copies captured frames straight into another stream, converting
// them to the target's channel count and rate. A call uses two: the
// hands-free input into the primary output, and the microphone into the
// hands-free output.
//
// A Relay does nothing until Start; Stop parks it again.
type Relay struct {
	cfg        RelayConfig
	opts       options
	openSource SourceOpener
	target     FrameWriter
	dst        pcm.Format

	adjuster  pcm.Adjuster
	resampler *resampler.Resampler

	wake chan struct{}
	done chan struct{}

	mu       sync.Mutex
	interval time.Duration
	release  bool
	exit     bool
	closed   bool
	failed   bool
	frames   uint64
}

// NewRelay creates a parked relay from the device opened by openSource to
// target. A nil target discards the frames.
func NewRelay(cfg RelayConfig, openSource SourceOpener, target FrameWriter, opts ...Option) (*Relay, error) {
	hw := cfg.Hardware
	if hw.Channels <= 0 || hw.Rate <= 0 || hw.PeriodSize <= 0 || hw.PeriodCount <= 0 {
		return nil, fmt.Errorf("stream: relay hardware %s: %w", hw, halerr.ErrInvalidArgument)
	}
	if cfg.SwapSCO && hw.Channels%2 != 0 {
		return nil, fmt.Errorf("stream: sco swap on %d channels: %w", hw.Channels, halerr.ErrInvalidArgument)
	}

	dst := hw.Format()
	if target != nil {
		dst = target.Format()
	}
	if dst.Sample != pcm.S16LE || dst.Channels <= 0 || dst.SampleRate <= 0 {
		return nil, fmt.Errorf("stream: relay target %s: %w", dst, halerr.ErrInvalidArgument)
	}
	rs, err := resampler.New(
		pcm.Format{SampleRate: hw.Rate, Channels: dst.Channels},
		pcm.Format{SampleRate: dst.SampleRate, Channels: dst.Channels},
	)
	if err != nil {
		return nil, fmt.Errorf("stream: relay: %w", err)
	}

	r := &Relay{
		cfg:        cfg,
		opts:       newOptions(opts),
		openSource: openSource,
		target:     target,
		dst:        dst,
		adjuster:   pcm.NewAdjuster(hw.Channels, dst.Channels),
		resampler:  rs,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go r.worker()
	return r, nil
}

// Start begins relaying, pausing interval between periods. A zero interval
// parks the relay.
func (r *Relay) Start(interval time.Duration) {
	r.mu.Lock()
	r.interval = interval
	r.mu.Unlock()
	signal(r.wake)
}

// Stop parks the relay. The capture device stays open.
func (r *Relay) Stop() {
	r.Start(0)
}

// Interval returns the current relay interval; zero when parked.
func (r *Relay) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// Standby makes the worker close the capture device. A later Start opens
// it again.
func (r *Relay) Standby() {
	r.mu.Lock()
	r.release = true
	r.mu.Unlock()
	signal(r.wake)
}

// Failed reports whether the worker stopped because the device failed.
func (r *Relay) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Frames returns the number of captured frames relayed so far.
func (r *Relay) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close stops the worker and waits for it to exit.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.exit = true
	r.mu.Unlock()

	signal(r.wake)
	<-r.done
	return nil
}

// Snapshot returns the relay's configuration and counters.
func (r *Relay) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Kind:      "relay",
		Name:      r.opts.name,
		Device:    r.cfg.Device,
		Requested: r.dst,
		Hardware:  r.cfg.Hardware,
		Standby:   r.interval == 0,
		Failed:    r.failed,
		Frames:    r.frames,
		Interval:  r.interval,
	}
}

func (r *Relay) worker() {
	defer close(r.done)

	var src pcmdev.Handle
	closeSource := func() {
		if src == nil {
			return
		}
		if err := src.Close(); err != nil {
			slog.Warn("stream: close relay source failed", "stream", r.opts.name, "error", err)
		}
		src = nil
	}
	defer closeSource()

	open := func() bool {
		h, err := r.openSource()
		if err != nil {
			slog.Error("stream: open relay source failed", "stream", r.opts.name, "hardware", r.cfg.Hardware.String(), "error", err)
			r.mu.Lock()
			r.failed = true
			r.mu.Unlock()
			return false
		}
		src = h
		return true
	}

	if r.opts.ready != nil {
		if !open() {
			return
		}
		r.opts.ready()
	}

	hw := r.cfg.Hardware
	period := make([]byte, hw.PeriodBytes())
	adjusted := make([]byte, hw.PeriodSize*r.dst.FrameSize())

	for {
		r.mu.Lock()
		for {
			if r.release {
				r.release = false
				r.mu.Unlock()
				closeSource()
				r.mu.Lock()
				continue
			}
			if r.exit || r.interval > 0 {
				break
			}
			r.mu.Unlock()
			<-r.wake
			r.mu.Lock()
		}
		exit, interval := r.exit, r.interval
		r.mu.Unlock()
		if exit {
			return
		}

		if src == nil && !open() {
			return
		}
		if err := src.Read(period); err != nil {
			slog.Error("stream: relay read failed", "stream", r.opts.name, "error", err)
			r.mu.Lock()
			r.failed = true
			r.mu.Unlock()
			return
		}
		if r.cfg.SwapSCO {
			swapSCO(period, hw.FrameSize())
		}
		r.adjuster.Apply(adjusted, period, hw.PeriodSize, pcm.S16LE.Bytes())
		out, err := r.resampler.Resample(adjusted)
		if err != nil {
			slog.Error("stream: relay resample failed", "stream", r.opts.name, "error", err)
			continue
		}
		delivered := true
		if r.target != nil && len(out) > 0 {
			if _, err := r.target.Write(out); errors.Is(err, halerr.ErrClosed) {
				slog.Warn("stream: relay target closed, parking", "stream", r.opts.name)
				r.Stop()
				delivered = false
			} else if err != nil {
				slog.Warn("stream: relay target write failed", "stream", r.opts.name, "error", err)
				delivered = false
			}
		}
		if delivered {
			r.mu.Lock()
			r.frames += uint64(hw.PeriodSize)
			r.mu.Unlock()
		}

		time.Sleep(interval)
	}
}
