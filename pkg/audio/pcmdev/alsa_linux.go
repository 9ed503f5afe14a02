//go:build linux

package pcmdev

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/alsa"
	"golang.org/x/sys/unix"

	"github.com/haivivi/carhal/pkg/halerr"
)

// ALSA opens kernel PCM devices.
type ALSA struct{}

// Open implements Opener.
func (ALSA) Open(cfg Config) (Handle, error) {
	flags := alsa.PCM_OUT
	if cfg.Direction == Capture {
		flags = alsa.PCM_IN
	}
	p, err := alsa.PcmOpen(cfg.Card, cfg.Device, flags|alsa.PCM_MONOTONIC, &alsa.Config{
		Channels:    uint32(cfg.Channels),
		Rate:        uint32(cfg.Rate),
		PeriodSize:  uint32(cfg.PeriodSize),
		PeriodCount: uint32(cfg.PeriodCount),
		Format:      alsa.PCM_FORMAT_S16_LE,
	})
	if err != nil {
		return nil, fmt.Errorf("pcmdev: open %s: %w: %v", cfg.Key(), halerr.ErrDeviceUnavailable, err)
	}
	if !p.IsReady() {
		p.Close()
		return nil, fmt.Errorf("pcmdev: open %s: %w: not ready", cfg.Key(), halerr.ErrDeviceUnavailable)
	}
	if int(p.Rate()) != cfg.Rate || int(p.Channels()) != cfg.Channels {
		slog.Warn("pcmdev: device config differs", "device", cfg.Key(),
			"rate", p.Rate(), "want_rate", cfg.Rate,
			"channels", p.Channels(), "want_channels", cfg.Channels)
	}
	return &alsaHandle{pcm: p, cfg: cfg}, nil
}

type alsaHandle struct {
	cfg Config

	mu  sync.Mutex
	pcm *alsa.PCM
}

func (h *alsaHandle) Config() Config { return h.cfg }

func (h *alsaHandle) Write(p []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pcm == nil {
		return fmt.Errorf("pcmdev: write %s: %w", h.cfg.Key(), halerr.ErrClosed)
	}
	err := h.pcm.Write(p)
	if errors.Is(err, unix.EPIPE) {
		// Underrun; the device has been re-prepared, so try once more.
		slog.Debug("pcmdev: underrun", "device", h.cfg.Key())
		err = h.pcm.Write(p)
	}
	if err != nil {
		return h.wrap("write", err)
	}
	return nil
}

func (h *alsaHandle) Read(p []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pcm == nil {
		return fmt.Errorf("pcmdev: read %s: %w", h.cfg.Key(), halerr.ErrClosed)
	}
	err := h.pcm.Read(p)
	if errors.Is(err, unix.EPIPE) {
		slog.Debug("pcmdev: overrun", "device", h.cfg.Key())
		err = h.pcm.Read(p)
	}
	if err != nil {
		return h.wrap("read", err)
	}
	return nil
}

func (h *alsaHandle) wrap(op string, err error) error {
	if errors.Is(err, unix.ENODEV) || errors.Is(err, unix.EBADF) {
		return fmt.Errorf("pcmdev: %s %s: %w: %v", op, h.cfg.Key(), halerr.ErrDeviceUnavailable, err)
	}
	return fmt.Errorf("pcmdev: %s %s: %w", op, h.cfg.Key(), err)
}

func (h *alsaHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pcm == nil {
		return nil
	}
	err := h.pcm.Close()
	h.pcm = nil
	return err
}
