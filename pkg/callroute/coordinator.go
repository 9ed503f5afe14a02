package callroute

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/carhal/pkg/stream"
)

const (
	// DefaultReadyTimeout bounds how long Enable waits for the call
	// streams to open their hardware.
	DefaultReadyTimeout = 200 * time.Millisecond
	// DefaultRelayInterval is the pause between relayed periods.
	DefaultRelayInterval = time.Millisecond
)

// State is the coordinator state.
type State int32

const (
	Idle State = iota
	OpeningStreams
	WaitingReady
	Active
	Closing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case OpeningStreams:
		return "opening-streams"
	case WaitingReady:
		return "waiting-ready"
	case Active:
		return "active"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Output is a playback stream a relay can feed.
type Output interface {
	stream.FrameWriter
	Standby()
}

// CallOutput is the hands-free output.
type CallOutput interface {
	Output
	Close() error
}

// CallInput is a relay from a capture device into an output.
type CallInput interface {
	Start(interval time.Duration)
	Stop()
	Standby()
	Close() error
}

// Streams opens the call streams. The ready callbacks must be called once
// the stream has opened its hardware.
type Streams interface {
	OpenCallOutput(ready func()) (CallOutput, error)
	OpenCallInput(role Role, target stream.FrameWriter, ready func()) (CallInput, error)
	// PrimaryOutput returns the primary media output, or nil if none is
	// open.
	PrimaryOutput() Output
}

// Option configures a Coordinator.
type Option interface {
	apply(*Coordinator)
}

type readyTimeoutOption time.Duration

func (o readyTimeoutOption) apply(c *Coordinator) { c.readyTimeout = time.Duration(o) }

// WithReadyTimeout sets how long Enable waits for the streams. Defaults to
// DefaultReadyTimeout.
func WithReadyTimeout(d time.Duration) Option {
	return readyTimeoutOption(d)
}

type relayIntervalOption time.Duration

func (o relayIntervalOption) apply(c *Coordinator) { c.relayInterval = time.Duration(o) }

// WithRelayInterval sets the relay interval. Defaults to
// DefaultRelayInterval.
func WithRelayInterval(d time.Duration) Option {
	return relayIntervalOption(d)
}

// Coordinator drives the call path. Enable and Disable are serialized;
// State may be called at any time.
type Coordinator struct {
	streams       Streams
	readyTimeout  time.Duration
	relayInterval time.Duration

	state  atomic.Int32
	volume atomic.Int64

	mu        sync.Mutex
	session   uuid.UUID
	started   time.Time
	readiness *Readiness
	out       CallOutput
	hfpIn     CallInput
	micIn     CallInput
}

// New returns an idle Coordinator opening its streams from streams.
func New(streams Streams, opts ...Option) *Coordinator {
	c := &Coordinator{
		streams:       streams,
		readyTimeout:  DefaultReadyTimeout,
		relayInterval: DefaultRelayInterval,
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// Session returns the id and start time of the current or last call
// attempt. The id is uuid.Nil before the first attempt.
func (c *Coordinator) Session() (uuid.UUID, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.started
}

// SetVolume stores the call volume.
func (c *Coordinator) SetVolume(v int) {
	c.volume.Store(int64(v))
}

// Volume returns the call volume.
func (c *Coordinator) Volume() int {
	return int(c.volume.Load())
}

// Enable opens the call streams, waits for all of them to be ready and
// starts the relays. It does nothing if the call is already active. On
// failure every stream it opened is closed and the coordinator is idle
// again.
func (c *Coordinator) Enable(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == Active {
		return nil
	}

	c.session = uuid.New()
	c.started = time.Now()
	c.readiness = NewReadiness(MicIn, HFPIn, HFPOut)
	c.setState(OpeningStreams)
	log := slog.With("session", c.session.String())
	log.Info("callroute: enabling call")

	if err := c.openLocked(); err != nil {
		log.Error("callroute: open call streams failed", "error", err)
		c.closeLocked()
		return err
	}

	c.setState(WaitingReady)
	wctx, cancel := context.WithTimeout(ctx, c.readyTimeout)
	err := c.readiness.Wait(wctx)
	cancel()
	if err != nil {
		log.Warn("callroute: call streams not ready", "pending", fmt.Sprint(c.readiness.Pending()), "timeout", c.readyTimeout)
		c.closeLocked()
		return err
	}

	c.hfpIn.Start(c.relayInterval)
	c.micIn.Start(c.relayInterval)
	c.setState(Active)
	log.Info("callroute: call active", "setup", time.Since(c.started))
	return nil
}

func (c *Coordinator) openLocked() error {
	ready := c.readiness

	out, err := c.streams.OpenCallOutput(func() { ready.Mark(HFPOut) })
	if err != nil {
		return fmt.Errorf("callroute: open %s: %w", HFPOut, err)
	}
	c.out = out

	var primary stream.FrameWriter
	if p := c.streams.PrimaryOutput(); p != nil {
		primary = p
	}
	in, err := c.streams.OpenCallInput(HFPIn, primary, func() { ready.Mark(HFPIn) })
	if err != nil {
		return fmt.Errorf("callroute: open %s: %w", HFPIn, err)
	}
	c.hfpIn = in

	mic, err := c.streams.OpenCallInput(MicIn, out, func() { ready.Mark(MicIn) })
	if err != nil {
		return fmt.Errorf("callroute: open %s: %w", MicIn, err)
	}
	c.micIn = mic
	return nil
}

// Disable tears the call down. It always leaves the coordinator idle and
// does nothing when already idle.
func (c *Coordinator) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == Idle {
		return
	}
	c.closeLocked()
	slog.Info("callroute: call disabled", "session", c.session.String())
}

func (c *Coordinator) closeLocked() {
	c.setState(Closing)

	inputs := []CallInput{c.hfpIn, c.micIn}
	for _, in := range inputs {
		if in != nil {
			in.Stop()
		}
	}
	for _, in := range inputs {
		if in != nil {
			in.Standby()
		}
	}
	if c.out != nil {
		c.out.Standby()
	}
	for _, in := range inputs {
		if in == nil {
			continue
		}
		if err := in.Close(); err != nil {
			slog.Warn("callroute: close call input failed", "error", err)
		}
	}
	if c.out != nil {
		if err := c.out.Close(); err != nil {
			slog.Warn("callroute: close call output failed", "error", err)
		}
	}
	if p := c.streams.PrimaryOutput(); p != nil {
		p.Standby()
	}

	c.out, c.hfpIn, c.micIn = nil, nil, nil
	c.setState(Idle)
}

// Snapshot is the call state as dumped by the device.
type Snapshot struct {
	State         string        `yaml:"state" msgpack:"state"`
	Session       string        `yaml:"session,omitempty" msgpack:"session,omitempty"`
	Started       time.Time     `yaml:"started,omitempty" msgpack:"started,omitempty"`
	Ready         []string      `yaml:"ready,omitempty" msgpack:"ready,omitempty"`
	Volume        int           `yaml:"volume" msgpack:"volume"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout" msgpack:"ready_timeout"`
	RelayInterval time.Duration `yaml:"relay_interval" msgpack:"relay_interval"`
}

// Snapshot returns the call state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:         c.State().String(),
		Started:       c.started,
		Volume:        c.Volume(),
		ReadyTimeout:  c.readyTimeout,
		RelayInterval: c.relayInterval,
	}
	if c.session != uuid.Nil {
		s.Session = c.session.String()
	}
	if c.readiness != nil {
		for _, r := range c.readiness.Marked() {
			s.Ready = append(s.Ready, r.String())
		}
	}
	return s
}
