package pcmdev

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/haivivi/carhal/pkg/halerr"
)

// maxRecorded bounds the playback bytes Sim keeps per device.
const maxRecorded = 32 << 20

// Sim is an in-process PCM backend. Playback handles accept frames at the
// device rate, allowing one hardware buffer of lead; capture handles deliver
// a period every period duration, filled from the device's source or with
// silence. Sim records everything played so tests can inspect it.
//
// It is safe to call methods from multiple goroutines.
type Sim struct {
	mu       sync.Mutex
	fail     map[Key]error
	sources  map[Key]io.Reader
	written  map[Key][]byte
	opens    map[Key]int
	open     map[Key]int
	unpaced  bool
	openHook func(Config)
}

// NewSim returns an empty Sim backend.
func NewSim() *Sim {
	return &Sim{
		fail:    make(map[Key]error),
		sources: make(map[Key]io.Reader),
		written: make(map[Key][]byte),
		opens:   make(map[Key]int),
		open:    make(map[Key]int),
	}
}

// SetUnpaced disables wall-clock pacing; Write and Read return immediately.
func (s *Sim) SetUnpaced(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unpaced = v
}

// FailOpen makes every later Open of key fail with err. A nil err clears it.
func (s *Sim) FailOpen(key Key, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, key)
		return
	}
	s.fail[key] = err
}

// SetSource sets the reader capture handles of key read from. Short reads
// and EOF are padded with silence.
func (s *Sim) SetSource(key Key, r io.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[key] = r
}

// OnOpen registers fn to be called after every successful Open.
func (s *Sim) OnOpen(fn func(Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openHook = fn
}

// Written returns a copy of the bytes played on key.
func (s *Sim) Written(key Key) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written[key]...)
}

// Opens returns how many times key has been opened successfully.
func (s *Sim) Opens(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[key]
}

// OpenHandles returns the number of currently open handles on key.
func (s *Sim) OpenHandles(key Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[key]
}

// Open implements Opener.
func (s *Sim) Open(cfg Config) (Handle, error) {
	if cfg.Channels <= 0 || cfg.Rate <= 0 || cfg.PeriodSize <= 0 || cfg.PeriodCount <= 0 {
		return nil, fmt.Errorf("pcmdev: open %s: %w", cfg, halerr.ErrInvalidArgument)
	}
	key := cfg.Key()

	s.mu.Lock()
	if err := s.fail[key]; err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("pcmdev: open %s: %w: %v", key, halerr.ErrDeviceUnavailable, err)
	}
	s.opens[key]++
	s.open[key]++
	hook := s.openHook
	unpaced := s.unpaced
	s.mu.Unlock()

	if hook != nil {
		hook(cfg)
	}
	return &simHandle{sim: s, cfg: cfg, unpaced: unpaced}, nil
}

type simHandle struct {
	sim     *Sim
	cfg     Config
	unpaced bool

	mu     sync.Mutex
	closed bool
	start  time.Time
	frames int64
}

func (h *simHandle) Config() Config { return h.cfg }

// pace blocks until frames more frames are due, keeping at most lead of
// data ahead of the wall clock. A clock that fell behind restarts.
func (h *simHandle) pace(frames int, lead time.Duration) {
	if h.unpaced {
		return
	}
	now := time.Now()
	if h.start.IsZero() || now.Sub(h.dueAt(h.frames)) > h.cfg.PeriodDuration() {
		h.start = now
		h.frames = 0
	}
	h.frames += int64(frames)
	if wait := h.dueAt(h.frames).Sub(now) - lead; wait > 0 {
		time.Sleep(wait)
	}
}

func (h *simHandle) dueAt(frames int64) time.Time {
	return h.start.Add(time.Duration(frames * int64(time.Second) / int64(h.cfg.Rate)))
}

func (h *simHandle) Write(p []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("pcmdev: write %s: %w", h.cfg.Key(), halerr.ErrClosed)
	}
	if h.cfg.Direction != Playback {
		return fmt.Errorf("pcmdev: write %s: %w", h.cfg.Key(), halerr.ErrNotSupported)
	}
	frames := len(p) / h.cfg.FrameSize()
	p = p[:frames*h.cfg.FrameSize()]

	h.sim.mu.Lock()
	key := h.cfg.Key()
	if len(h.sim.written[key])+len(p) <= maxRecorded {
		h.sim.written[key] = append(h.sim.written[key], p...)
	}
	h.sim.mu.Unlock()

	lead := h.cfg.Format().FramesDuration(h.cfg.BufferFrames())
	h.pace(frames, lead)
	return nil
}

func (h *simHandle) Read(p []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("pcmdev: read %s: %w", h.cfg.Key(), halerr.ErrClosed)
	}
	if h.cfg.Direction != Capture {
		return fmt.Errorf("pcmdev: read %s: %w", h.cfg.Key(), halerr.ErrNotSupported)
	}
	h.pace(len(p)/h.cfg.FrameSize(), 0)

	h.sim.mu.Lock()
	src := h.sim.sources[h.cfg.Key()]
	h.sim.mu.Unlock()

	n := 0
	if src != nil {
		n, _ = io.ReadFull(src, p)
	}
	clear(p[n:])
	return nil
}

func (h *simHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.sim.mu.Lock()
	h.sim.open[h.cfg.Key()]--
	h.sim.mu.Unlock()
	return nil
}
