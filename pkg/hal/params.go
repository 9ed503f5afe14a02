package hal

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/haivivi/carhal/pkg/callroute"
	"github.com/haivivi/carhal/pkg/halerr"
)

// Parameter keys.
const (
	ParamHFPEnable       = "hfp_enable"
	ParamHFPSamplingRate = "hfp_set_sampling_rate"
	ParamHFPVolume       = "hfp_volume"
	ParamRouting         = "routing"
)

// Param is one key/value pair of a parameter string.
type Param struct {
	Key   string
	Value string
}

// ParseParams splits "k1=v1;k2=v2". Pairs without a key are skipped and a
// pair without '=' has an empty value.
func ParseParams(kv string) []Param {
	var params []Param
	for pair := range strings.SplitSeq(kv, ";") {
		k, v, _ := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		params = append(params, Param{Key: k, Value: strings.TrimSpace(v)})
	}
	return params
}

// SetParameters applies device parameters. Unknown keys are ignored.
func (d *Device) SetParameters(kv string) error {
	return d.SetParametersContext(context.Background(), kv)
}

// SetParametersContext is SetParameters with a context bounding the call
// setup.
func (d *Device) SetParametersContext(ctx context.Context, kv string) error {
	for _, p := range ParseParams(kv) {
		switch p.Key {
		case ParamHFPEnable:
			switch p.Value {
			case "true":
				if err := d.call.Enable(ctx); err != nil {
					return fmt.Errorf("hal: %s: %w", p.Key, err)
				}
			case "false":
				d.call.Disable()
			default:
				return fmt.Errorf("hal: %s=%q: %w", p.Key, p.Value, halerr.ErrInvalidArgument)
			}
		case ParamHFPSamplingRate:
			n, err := strconv.Atoi(p.Value)
			if err != nil || n <= 0 {
				return fmt.Errorf("hal: %s=%q: %w", p.Key, p.Value, halerr.ErrInvalidArgument)
			}
			// The link always runs at the configured rate; narrowband
			// calls are carried upsampled.
			d.hfpRate.Store(int64(n))
			slog.Info("hal: hands-free sampling rate", "rate", n, "link_rate", d.cfg.HFPOut.Rate)
		case ParamHFPVolume:
			n, err := strconv.Atoi(p.Value)
			if err != nil {
				return fmt.Errorf("hal: %s=%q: %w", p.Key, p.Value, halerr.ErrInvalidArgument)
			}
			if n > 0 {
				d.call.SetVolume(n)
			}
		default:
			slog.Debug("hal: ignoring parameter", "key", p.Key)
		}
	}
	return nil
}

// GetParameters returns "key=value" pairs for the known keys in keys.
func (d *Device) GetParameters(keys string) string {
	var out []string
	for _, p := range ParseParams(keys) {
		switch p.Key {
		case ParamHFPEnable:
			out = append(out, p.Key+"="+strconv.FormatBool(d.call.State() == callroute.Active))
		case ParamHFPSamplingRate:
			out = append(out, p.Key+"="+strconv.FormatInt(d.hfpRate.Load(), 10))
		case ParamHFPVolume:
			out = append(out, p.Key+"="+strconv.Itoa(d.call.Volume()))
		}
	}
	return strings.Join(out, ";")
}

// Router is a stream whose logical device can be changed.
type Router interface {
	Device() uint32
	SetDevice(id uint32) error
}

// SetStreamParameters applies stream parameters to s. Only routing is
// understood; it fails with halerr.ErrNotSupported while s is active.
func (d *Device) SetStreamParameters(s Router, kv string) error {
	for _, p := range ParseParams(kv) {
		if p.Key != ParamRouting {
			continue
		}
		n, err := strconv.ParseInt(p.Value, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("hal: %s=%q: %w", p.Key, p.Value, halerr.ErrInvalidArgument)
		}
		if err := s.SetDevice(uint32(n)); err != nil {
			return err
		}
	}
	return nil
}

// GetStreamParameters returns the stream parameters of s named in keys.
func (d *Device) GetStreamParameters(s Router, keys string) string {
	for _, p := range ParseParams(keys) {
		if p.Key == ParamRouting {
			return ParamRouting + "=" + strconv.FormatUint(uint64(s.Device()), 10)
		}
	}
	return keys
}

// SetMasterMute mutes every output.
func (d *Device) SetMasterMute(muted bool) {
	slog.Debug("hal: master mute", "muted", muted)
	d.masterMute.Store(muted)
}

// MasterMute reports the master mute.
func (d *Device) MasterMute() bool { return d.masterMute.Load() }

// SetMicMute mutes every input.
func (d *Device) SetMicMute(muted bool) {
	slog.Debug("hal: mic mute", "muted", muted)
	d.micMute.Store(muted)
}

// MicMute reports the mic mute.
func (d *Device) MicMute() bool { return d.micMute.Load() }

// Ratio converts a gain in millibels to an amplitude ratio along the
// stage's curve, 10^(dB/20) sampled at Step.
func (g GainStage) Ratio(millibel int) (float32, error) {
	if millibel < g.Min || millibel > g.Max || g.Step <= 0 {
		return 0, fmt.Errorf("hal: gain %d mB outside [%d, %d]: %w", millibel, g.Min, g.Max, halerr.ErrInvalidArgument)
	}
	index := (millibel - g.Min) / g.Step
	steps := (g.Max - g.Min) / g.Step
	if steps <= 0 {
		return 0, fmt.Errorf("hal: gain stage [%d, %d] narrower than step %d: %w", g.Min, g.Max, g.Step, halerr.ErrInvalidArgument)
	}
	minDB := float64(g.Min) / 100
	maxDB := float64(g.Max) / 100
	db := minDB + (maxDB-minDB)*float64(index)/float64(steps)
	return float32(math.Pow(10, db/20)), nil
}

// SetPortGain sets the gain of the bus output at address.
func (d *Device) SetPortGain(address string, millibel int) error {
	o, ok := d.Output(address)
	if !ok {
		return fmt.Errorf("hal: no output on bus %q: %w", address, halerr.ErrInvalidArgument)
	}
	ratio, err := d.cfg.Gain.Ratio(millibel)
	if err != nil {
		return err
	}
	o.SetGain(ratio)
	slog.Debug("hal: set port gain", "address", address, "millibel", millibel, "ratio", ratio)
	return nil
}
