// Package pcmdev abstracts the physical PCM devices the HAL drives.
//
// A Handle is one open playback or capture device. Write and Read block the
// way a hardware driver does: a Write returns once the device has room for
// the frames, a Read once a period has been captured. Backends:
//
//   - ALSA: kernel PCM devices through github.com/gen2brain/alsa (Linux only)
//   - Sim: an in-process device paced against the wall clock, used by tests
//     and the CLI's sim backend
package pcmdev

import (
	"fmt"
	"time"

	"github.com/haivivi/carhal/pkg/audio/pcm"
)

// Direction is the data direction of a PCM device.
type Direction int

const (
	Playback Direction = iota
	Capture
)

func (d Direction) String() string {
	if d == Capture {
		return "capture"
	}
	return "playback"
}

// Key identifies a physical device endpoint.
type Key struct {
	Card      uint
	Device    uint
	Direction Direction
}

func (k Key) String() string {
	return fmt.Sprintf("hw:%d,%d/%s", k.Card, k.Device, k.Direction)
}

// Config is the hardware configuration of a PCM device. Samples are always
// S16LE.
type Config struct {
	Card        uint      `yaml:"card" msgpack:"card"`
	Device      uint      `yaml:"device" msgpack:"device"`
	Direction   Direction `yaml:"-" msgpack:"direction"`
	Channels    int       `yaml:"channels" msgpack:"channels"`
	Rate        int       `yaml:"rate" msgpack:"rate"`
	PeriodSize  int       `yaml:"period_size" msgpack:"period_size"`
	PeriodCount int       `yaml:"period_count" msgpack:"period_count"`
}

// Key returns the device endpoint of c.
func (c Config) Key() Key {
	return Key{Card: c.Card, Device: c.Device, Direction: c.Direction}
}

// Format returns the PCM format of the device.
func (c Config) Format() pcm.Format {
	return pcm.Format{SampleRate: c.Rate, Channels: c.Channels}
}

// FrameSize returns the size of one frame in bytes.
func (c Config) FrameSize() int {
	return c.Channels * pcm.S16LE.Bytes()
}

// PeriodBytes returns the size of one period in bytes.
func (c Config) PeriodBytes() int {
	return c.PeriodSize * c.FrameSize()
}

// BufferFrames returns the number of frames in the whole hardware buffer.
func (c Config) BufferFrames() int {
	return c.PeriodSize * c.PeriodCount
}

// PeriodDuration returns the playback duration of one period.
func (c Config) PeriodDuration() time.Duration {
	return c.Format().FramesDuration(c.PeriodSize)
}

func (c Config) String() string {
	return fmt.Sprintf("%s %dch %dHz period=%dx%d", c.Key(), c.Channels, c.Rate, c.PeriodSize, c.PeriodCount)
}

// Handle is an open PCM device.
type Handle interface {
	// Write plays whole frames from p, blocking until the device accepts them.
	Write(p []byte) error
	// Read captures len(p) bytes of whole frames, blocking until available.
	Read(p []byte) error
	Close() error
	Config() Config
}

// Opener opens physical PCM devices. A failed open wraps
// halerr.ErrDeviceUnavailable.
type Opener interface {
	Open(cfg Config) (Handle, error)
}

// OpenerFunc adapts a function to an Opener.
type OpenerFunc func(cfg Config) (Handle, error)

// Open implements Opener.
func (f OpenerFunc) Open(cfg Config) (Handle, error) {
	return f(cfg)
}
