package mixer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/audio/pcmdev"
	"github.com/haivivi/carhal/pkg/buffer"
	"github.com/haivivi/carhal/pkg/halerr"
)

// Option configures a Shared mixer.
type Option interface {
	apply(*Shared)
}

type mixChannelsOption int

func (o mixChannelsOption) apply(s *Shared) {
	s.mix.Channels = int(o)
}

// WithMixChannels sets the channel count of the buses. Mixed frames are
// adjusted to the device channel count before they are written. Defaults to
// the device channel count.
func WithMixChannels(n int) Option {
	return mixChannelsOption(n)
}

type busPeriodsOption int

func (o busPeriodsOption) apply(s *Shared) {
	s.busPeriods = int(o)
}

// WithBusPeriods sets the capacity of each bus in device periods. Defaults
// to the device period count.
func WithBusPeriods(n int) Option {
	return busPeriodsOption(n)
}

// Shared mixes a set of buses into one physical playback device.
//
// It is safe to call methods on Shared from multiple goroutines. Only the
// mixer goroutine touches the device handle once it is open.
type Shared struct {
	cfg        pcmdev.Config
	mix        pcm.Format
	busPeriods int
	reg        *Registry

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	mu      sync.Mutex
	refs    int
	err     error
	running bool
	frames  uint64

	busMu sync.Mutex
	buses map[string]*buffer.FrameRing

	// owned by the mixer goroutine
	dev      pcmdev.Handle
	adjuster pcm.Adjuster
	rings    []*buffer.FrameRing
	mixBuf   []byte
	readBuf  []byte
	outBuf   []byte
}

// NewPrivate opens a mixer that is not shared through a Registry. It starts
// with one reference; the matching Detach closes it. If the device cannot
// be opened the mixer is returned in the errored state.
func NewPrivate(opener pcmdev.Opener, cfg pcmdev.Config, opts ...Option) *Shared {
	s := newShared(cfg, opts...)
	s.refs = 1
	s.start(opener)
	return s
}

func newShared(cfg pcmdev.Config, opts ...Option) *Shared {
	cfg.Direction = pcmdev.Playback
	s := &Shared{
		cfg:        cfg,
		mix:        cfg.Format(),
		busPeriods: cfg.PeriodCount,
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		buses:      make(map[string]*buffer.FrameRing),
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	if s.busPeriods <= 0 {
		s.busPeriods = 1
	}
	return s
}

// start opens the device and launches the mixer goroutine. It is called
// once, before the mixer is visible to other goroutines.
func (s *Shared) start(opener pcmdev.Opener) {
	if err := s.open(opener); err != nil {
		slog.Error("mixer: open device failed", "device", s.cfg.Key(), "error", err)
		s.err = fmt.Errorf("mixer: %w", err)
		close(s.done)
		return
	}
	s.running = true
	go s.loop()
}

func (s *Shared) open(opener pcmdev.Opener) error {
	dev, err := opener.Open(s.cfg)
	if err != nil {
		return err
	}
	periodFrames := s.cfg.PeriodSize
	s.dev = dev
	s.adjuster = pcm.NewAdjuster(s.mix.Channels, s.cfg.Channels)
	s.mixBuf = make([]byte, periodFrames*s.mix.FrameSize())
	s.readBuf = make([]byte, periodFrames*s.mix.FrameSize())
	s.outBuf = make([]byte, periodFrames*s.cfg.FrameSize())
	return nil
}

// Config returns the physical device configuration.
func (s *Shared) Config() pcmdev.Config { return s.cfg }

// Format returns the format of frames written to buses.
func (s *Shared) Format() pcm.Format { return s.mix }

// IsReady reports whether the device is open and the mixer is running.
func (s *Shared) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err == nil && s.running && s.refs > 0
}

// Err returns the error that stopped the mixer, if any.
func (s *Shared) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Refs returns the number of attached owners.
func (s *Shared) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// FramesMixed returns the number of frames written to the device.
func (s *Shared) FramesMixed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Bus returns the ring of the named bus, creating it if absent. It returns
// nil once the mixer has been torn down.
func (s *Shared) Bus(address string) *buffer.FrameRing {
	s.busMu.Lock()
	defer s.busMu.Unlock()
	if s.buses == nil {
		return nil
	}
	if ring, ok := s.buses[address]; ok {
		return ring
	}
	ring, err := buffer.NewFrameRing(s.cfg.PeriodSize*s.busPeriods, s.mix.FrameSize())
	if err != nil {
		slog.Error("mixer: create bus failed", "device", s.cfg.Key(), "address", address, "error", err)
		return nil
	}
	s.buses[address] = ring
	return ring
}

// Buses returns the addresses of the live buses, sorted.
func (s *Shared) Buses() []string {
	s.busMu.Lock()
	defer s.busMu.Unlock()
	addrs := make([]string, 0, len(s.buses))
	for addr := range s.buses {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)
	return addrs
}

// Write pushes frames onto the named bus without blocking and returns the
// number of frames accepted.
func (s *Shared) Write(address string, p []byte) int {
	ring := s.Bus(address)
	if ring == nil {
		return 0
	}
	n := ring.Write(p)
	s.signal()
	return n
}

// WriteBlocking pushes all frames of p onto the named bus, waiting for the
// mixer to drain it when full.
func (s *Shared) WriteBlocking(ctx context.Context, address string, p []byte) error {
	if !s.IsReady() {
		return s.notReady()
	}
	ring := s.Bus(address)
	if ring == nil {
		return fmt.Errorf("mixer: bus %q: %w", address, halerr.ErrClosed)
	}
	s.signal()
	_, err := ring.WriteBlocking(ctx, p)
	s.signal()
	if err != nil {
		return fmt.Errorf("mixer: bus %q: %w", address, err)
	}
	return nil
}

func (s *Shared) notReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return fmt.Errorf("mixer: %s: %w", s.cfg.Key(), halerr.ErrClosed)
}

func (s *Shared) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Detach removes the named bus and drops one reference. The last Detach
// stops the mixer goroutine, closes the device and frees all buses.
func (s *Shared) Detach(address string) {
	s.busMu.Lock()
	ring := s.buses[address]
	delete(s.buses, address)
	s.busMu.Unlock()
	if ring != nil {
		ring.Close()
	}

	var last bool
	if s.reg != nil {
		last = s.reg.release(s)
	} else {
		last = s.release()
	}
	if last {
		s.teardown()
	}
}

// release drops one reference and reports whether it was the last.
func (s *Shared) release() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		slog.Warn("mixer: detach without attach", "device", s.cfg.Key())
		return false
	}
	s.refs--
	return s.refs == 0
}

func (s *Shared) teardown() {
	close(s.quit)
	<-s.done

	s.busMu.Lock()
	buses := s.buses
	s.buses = nil
	s.busMu.Unlock()
	for _, ring := range buses {
		ring.Close()
	}
	slog.Debug("mixer: closed", "device", s.cfg.Key())
}

func (s *Shared) loop() {
	defer close(s.done)
	defer func() {
		if err := s.dev.Close(); err != nil {
			slog.Warn("mixer: close device failed", "device", s.cfg.Key(), "error", err)
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	idle := time.NewTimer(s.cfg.PeriodDuration())
	defer idle.Stop()
	for {
		select {
		case <-s.quit:
			return
		default:
		}

		frames, err := s.mixOnce()
		if err != nil {
			slog.Error("mixer: write device failed", "device", s.cfg.Key(), "error", err)
			s.mu.Lock()
			s.err = fmt.Errorf("mixer: %w", err)
			s.mu.Unlock()
			return
		}
		if frames > 0 {
			continue
		}

		idle.Reset(s.cfg.PeriodDuration())
		select {
		case <-s.wake:
		case <-idle.C:
		case <-s.quit:
			return
		}
	}
}

// mixOnce mixes the frames every non-empty bus can supply and writes them
// to the device. It returns the number of frames written.
func (s *Shared) mixOnce() (int, error) {
	s.busMu.Lock()
	s.rings = s.rings[:0]
	for _, ring := range s.buses {
		s.rings = append(s.rings, ring)
	}
	s.busMu.Unlock()

	frames := s.cfg.PeriodSize
	found := false
	for _, ring := range s.rings {
		avail := ring.AvailableToRead()
		if avail == 0 {
			continue
		}
		found = true
		frames = min(frames, avail)
	}
	if !found {
		return 0, nil
	}

	fs := s.mix.FrameSize()
	mixed := s.mixBuf[:frames*fs]
	clear(mixed)
	for _, ring := range s.rings {
		chunk := s.readBuf[:frames*fs]
		n := ring.Read(chunk)
		if n == 0 {
			continue
		}
		clear(chunk[n*fs:])
		pcm.MixInto(mixed, chunk)
	}

	out := mixed
	if s.adjuster.Kind() != pcm.AdjustSame {
		n := s.adjuster.Apply(s.outBuf, mixed, frames, pcm.S16LE.Bytes())
		out = s.outBuf[:n]
	}
	if err := s.dev.Write(out); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.frames += uint64(frames)
	s.mu.Unlock()
	return frames, nil
}
