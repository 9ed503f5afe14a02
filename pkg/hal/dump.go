package hal

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/haivivi/carhal/pkg/audio/pcmdev"
	"github.com/haivivi/carhal/pkg/callroute"
	"github.com/haivivi/carhal/pkg/halerr"
	"github.com/haivivi/carhal/pkg/stream"
)

// Encoding selects the Dump format.
type Encoding string

const (
	EncodingYAML    Encoding = "yaml"
	EncodingMsgpack Encoding = "msgpack"
)

// MixerSnapshot is the state of one shared mixer.
type MixerSnapshot struct {
	Device string        `yaml:"device" msgpack:"device"`
	Config pcmdev.Config `yaml:"config" msgpack:"config"`
	Mix    string        `yaml:"mix" msgpack:"mix"`
	Ready  bool          `yaml:"ready" msgpack:"ready"`
	Error  string        `yaml:"error,omitempty" msgpack:"error,omitempty"`
	Refs   int           `yaml:"refs" msgpack:"refs"`
	Frames uint64        `yaml:"frames" msgpack:"frames"`
	Buses  []string      `yaml:"buses" msgpack:"buses"`
}

// Snapshot is the state of the whole device.
type Snapshot struct {
	Config        Config             `yaml:"config" msgpack:"config"`
	MasterMute    bool               `yaml:"master_mute" msgpack:"master_mute"`
	MicMute       bool               `yaml:"mic_mute" msgpack:"mic_mute"`
	HFPSampleRate int                `yaml:"hfp_sampling_rate,omitempty" msgpack:"hfp_sampling_rate,omitempty"`
	Primary       string             `yaml:"primary,omitempty" msgpack:"primary,omitempty"`
	Outputs       []stream.Snapshot  `yaml:"outputs" msgpack:"outputs"`
	Inputs        []stream.Snapshot  `yaml:"inputs" msgpack:"inputs"`
	Relays        []stream.Snapshot  `yaml:"relays" msgpack:"relays"`
	Mixers        []MixerSnapshot    `yaml:"mixers" msgpack:"mixers"`
	Patches       []Patch            `yaml:"patches" msgpack:"patches"`
	Call          callroute.Snapshot `yaml:"call" msgpack:"call"`
}

// Snapshot collects the device state.
func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	outputs := make([]*stream.Output, 0, len(d.outputs))
	for o := range d.outputs {
		outputs = append(outputs, o)
	}
	inputs := make([]*stream.Input, 0, len(d.inputs))
	for in := range d.inputs {
		inputs = append(inputs, in)
	}
	relays := make([]*stream.Relay, 0, len(d.relays))
	for r := range d.relays {
		relays = append(relays, r)
	}
	primary := d.primary
	d.mu.Unlock()

	snap := Snapshot{
		Config:        d.cfg,
		MasterMute:    d.masterMute.Load(),
		MicMute:       d.micMute.Load(),
		HFPSampleRate: int(d.hfpRate.Load()),
		Patches:       d.Patches(),
		Call:          d.call.Snapshot(),
	}
	if primary != nil {
		snap.Primary = primary.Address()
	}
	for _, o := range outputs {
		snap.Outputs = append(snap.Outputs, o.Snapshot())
	}
	for _, in := range inputs {
		snap.Inputs = append(snap.Inputs, in.Snapshot())
	}
	for _, r := range relays {
		snap.Relays = append(snap.Relays, r.Snapshot())
	}
	byName := func(a, b stream.Snapshot) int {
		if c := strings.Compare(a.Address, b.Address); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	}
	slices.SortFunc(snap.Outputs, byName)
	slices.SortFunc(snap.Inputs, byName)
	slices.SortFunc(snap.Relays, byName)

	for _, m := range d.registry.Mixers() {
		ms := MixerSnapshot{
			Device: m.Config().Key().String(),
			Config: m.Config(),
			Mix:    m.Format().String(),
			Ready:  m.IsReady(),
			Refs:   m.Refs(),
			Frames: m.FramesMixed(),
			Buses:  m.Buses(),
		}
		if err := m.Err(); err != nil {
			ms.Error = err.Error()
		}
		snap.Mixers = append(snap.Mixers, ms)
	}
	return snap
}

// Dump writes the device snapshot to w.
func (d *Device) Dump(w io.Writer, enc Encoding) error {
	snap := d.Snapshot()
	switch enc {
	case EncodingYAML, "":
		e := yaml.NewEncoder(w)
		e.SetIndent(2)
		if err := e.Encode(snap); err != nil {
			return fmt.Errorf("hal: dump yaml: %w", err)
		}
		return e.Close()
	case EncodingMsgpack:
		if err := msgpack.NewEncoder(w).Encode(snap); err != nil {
			return fmt.Errorf("hal: dump msgpack: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("hal: dump encoding %q: %w", enc, halerr.ErrInvalidArgument)
	}
}
