package hal

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/haivivi/carhal/pkg/audio/pcmdev"
	"github.com/haivivi/carhal/pkg/halerr"
)

// GainStage describes the gain control of a bus output in millibels.
type GainStage struct {
	Min     int `yaml:"min" msgpack:"min"`
	Max     int `yaml:"max" msgpack:"max"`
	Step    int `yaml:"step" msgpack:"step"`
	Default int `yaml:"default" msgpack:"default"`
}

// Config is the device configuration.
type Config struct {
	// Output is the default playback device shared by bus outputs.
	Output pcmdev.Config `yaml:"output" msgpack:"output"`
	// Input is the built-in microphone.
	Input pcmdev.Config `yaml:"input" msgpack:"input"`
	// FM is the FM tuner capture device.
	FM pcmdev.Config `yaml:"fm" msgpack:"fm"`
	// HFPOut and HFPIn are the hands-free (SCO) endpoints.
	HFPOut pcmdev.Config `yaml:"hfp_out" msgpack:"hfp_out"`
	HFPIn  pcmdev.Config `yaml:"hfp_in" msgpack:"hfp_in"`

	// MixChannels is the channel count buses are mixed in before being
	// widened to the output device. Zero mixes at the device width.
	MixChannels int `yaml:"mix_channels" msgpack:"mix_channels"`
	// PrimaryAddress names the bus output that becomes the primary
	// output. Empty means the first bus output opened.
	PrimaryAddress string `yaml:"primary_address,omitempty" msgpack:"primary_address,omitempty"`

	Gain GainStage `yaml:"gain" msgpack:"gain"`

	ReadyTimeout  time.Duration `yaml:"ready_timeout" msgpack:"ready_timeout"`
	RelayInterval time.Duration `yaml:"relay_interval" msgpack:"relay_interval"`
	MaxWriteSleep time.Duration `yaml:"max_write_sleep" msgpack:"max_write_sleep"`
	MaxReadSleep  time.Duration `yaml:"max_read_sleep" msgpack:"max_read_sleep"`
}

// Default hardware constants.
const (
	DefaultPeriodSize  = 512
	DefaultPeriodCount = 4

	DefaultOutChannels = 8
	DefaultInChannels  = 6
	DefaultFMChannels  = 2
	DefaultHFPChannels = 2

	DefaultOutRate = 48000
	DefaultInRate  = 48000
	DefaultHFPRate = 16000
)

// DefaultConfig returns the configuration of the reference board: the
// codec on card 0, the hands-free link on card 1 and the FM tuner on
// card 2.
func DefaultConfig() Config {
	pcmConfig := func(card uint, dir pcmdev.Direction, channels, rate int) pcmdev.Config {
		return pcmdev.Config{
			Card:        card,
			Direction:   dir,
			Channels:    channels,
			Rate:        rate,
			PeriodSize:  DefaultPeriodSize,
			PeriodCount: DefaultPeriodCount,
		}
	}
	return Config{
		Output:      pcmConfig(0, pcmdev.Playback, DefaultOutChannels, DefaultOutRate),
		Input:       pcmConfig(0, pcmdev.Capture, DefaultInChannels, DefaultInRate),
		FM:          pcmConfig(2, pcmdev.Capture, DefaultFMChannels, DefaultInRate),
		HFPOut:      pcmConfig(1, pcmdev.Playback, DefaultHFPChannels, DefaultHFPRate),
		HFPIn:       pcmConfig(1, pcmdev.Capture, DefaultHFPChannels, DefaultHFPRate),
		MixChannels: 2,
		Gain: GainStage{
			Min:     -3200,
			Max:     600,
			Step:    100,
			Default: 0,
		},
		ReadyTimeout:  200 * time.Millisecond,
		RelayInterval: time.Millisecond,
		MaxWriteSleep: 200 * time.Millisecond,
		MaxReadSleep:  200 * time.Millisecond,
	}
}

// LoadConfig reads a YAML configuration file. Keys missing from the file
// keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("hal: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML configuration over DefaultConfig and validates
// it.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("hal: parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalize fixes the fields a config file cannot set.
func (c *Config) normalize() {
	c.Output.Direction = pcmdev.Playback
	c.HFPOut.Direction = pcmdev.Playback
	c.Input.Direction = pcmdev.Capture
	c.FM.Direction = pcmdev.Capture
	c.HFPIn.Direction = pcmdev.Capture
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	endpoints := []struct {
		name string
		cfg  pcmdev.Config
	}{
		{"output", c.Output},
		{"input", c.Input},
		{"fm", c.FM},
		{"hfp_out", c.HFPOut},
		{"hfp_in", c.HFPIn},
	}
	for _, ep := range endpoints {
		p := ep.cfg
		if p.Channels <= 0 || p.Rate <= 0 || p.PeriodSize <= 0 || p.PeriodCount <= 0 {
			return fmt.Errorf("hal: config %s %s: %w", ep.name, p, halerr.ErrInvalidArgument)
		}
	}
	if c.MixChannels < 0 {
		return fmt.Errorf("hal: config mix_channels %d: %w", c.MixChannels, halerr.ErrInvalidArgument)
	}
	g := c.Gain
	if g.Step <= 0 || g.Min >= g.Max || (g.Max-g.Min)/g.Step == 0 || g.Default < g.Min || g.Default > g.Max {
		return fmt.Errorf("hal: config gain %+v: %w", g, halerr.ErrInvalidArgument)
	}
	if c.ReadyTimeout <= 0 || c.RelayInterval < 0 {
		return fmt.Errorf("hal: config call timings: %w", halerr.ErrInvalidArgument)
	}
	return nil
}
