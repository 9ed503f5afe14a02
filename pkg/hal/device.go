package hal

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/haivivi/carhal/pkg/audio/mixer"
	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/audio/pcmdev"
	"github.com/haivivi/carhal/pkg/callroute"
	"github.com/haivivi/carhal/pkg/halerr"
	"github.com/haivivi/carhal/pkg/stream"
)

// DeviceType selects the endpoint a stream is opened on.
type DeviceType int

const (
	// DeviceBus is an addressed output mixed into the default playback
	// device.
	DeviceBus DeviceType = iota + 1
	// DeviceBluetoothSCO is the hands-free link, in either direction.
	DeviceBluetoothSCO
	// DeviceBuiltinMic is the built-in microphone.
	DeviceBuiltinMic
	// DeviceFMTuner is the FM tuner.
	DeviceFMTuner
)

func (t DeviceType) String() string {
	switch t {
	case DeviceBus:
		return "bus"
	case DeviceBluetoothSCO:
		return "bluetooth-sco"
	case DeviceBuiltinMic:
		return "builtin-mic"
	case DeviceFMTuner:
		return "fm-tuner"
	default:
		return fmt.Sprintf("device(%d)", int(t))
	}
}

// OutputRequest describes an output stream to open.
type OutputRequest struct {
	Device  DeviceType
	Format  pcm.Format
	Address string
	// Name is used in logs and dumps. Defaults to the address.
	Name string
}

// InputRequest describes an input stream to open.
type InputRequest struct {
	Device DeviceType
	Format pcm.Format
	Name   string
}

// callFormat is the format of the hands-free output as the call relays
// write it.
var callFormat = pcm.Format{SampleRate: DefaultOutRate, Channels: 2, Sample: pcm.S16LE}

// Device owns every stream, the shared mixers and the call coordinator.
//
// It is safe to call methods on Device from multiple goroutines.
type Device struct {
	cfg      Config
	opener   pcmdev.Opener
	registry *mixer.Registry
	call     *callroute.Coordinator

	masterMute atomic.Bool
	micMute    atomic.Bool
	hfpRate    atomic.Int64

	mu        sync.Mutex
	closed    bool
	outputs   map[*stream.Output]OutputRequest
	buses     map[string]*stream.Output
	inputs    map[*stream.Input]InputRequest
	relays    map[*stream.Relay]callroute.Role
	primary   *stream.Output
	patches   map[PatchHandle]Patch
	nextPatch PatchHandle
}

// New returns a Device opening PCM endpoints through opener.
func New(cfg Config, opener pcmdev.Opener) *Device {
	cfg.normalize()
	var opts []mixer.Option
	if cfg.MixChannels > 0 {
		opts = append(opts, mixer.WithMixChannels(cfg.MixChannels))
	}
	d := &Device{
		cfg:      cfg,
		opener:   opener,
		registry: mixer.NewRegistry(opener, opts...),
		outputs:  make(map[*stream.Output]OutputRequest),
		buses:    make(map[string]*stream.Output),
		inputs:   make(map[*stream.Input]InputRequest),
		relays:   make(map[*stream.Relay]callroute.Role),
		patches:  make(map[PatchHandle]Patch),
	}
	d.call = callroute.New(d,
		callroute.WithReadyTimeout(cfg.ReadyTimeout),
		callroute.WithRelayInterval(cfg.RelayInterval),
	)
	return d
}

// Config returns the device configuration.
func (d *Device) Config() Config { return d.cfg }

// Call returns the call coordinator.
func (d *Device) Call() *callroute.Coordinator { return d.call }

// Registry returns the shared mixer registry.
func (d *Device) Registry() *mixer.Registry { return d.registry }

func (d *Device) mixChannels() int {
	if d.cfg.MixChannels > 0 {
		return d.cfg.MixChannels
	}
	return d.cfg.Output.Channels
}

// OpenOutput opens an output stream. A format the device cannot play is
// rejected with a *NegotiationError carrying the closest supported one.
func (d *Device) OpenOutput(req OutputRequest) (*stream.Output, error) {
	format, err := RefineOutput(req.Format)
	if err != nil {
		slog.Warn("hal: reject output format", "device", req.Device.String(), "format", req.Format.String(), "suggested", format.String())
		return nil, err
	}
	switch req.Device {
	case DeviceBus:
		return d.openBusOutput(req, format)
	case DeviceBluetoothSCO:
		return d.openSCOOutput(req, format)
	default:
		return nil, fmt.Errorf("hal: open output on %s: %w", req.Device, halerr.ErrInvalidArgument)
	}
}

func (d *Device) outputOptions(name string, extra ...stream.Option) []stream.Option {
	return append([]stream.Option{
		stream.WithName(name),
		stream.WithMute(d.masterMute.Load),
		stream.WithMaxSleep(d.cfg.MaxWriteSleep),
	}, extra...)
}

func (d *Device) openBusOutput(req OutputRequest, format pcm.Format) (*stream.Output, error) {
	addr := req.Address
	if addr == "" {
		return nil, fmt.Errorf("hal: bus output without address: %w", halerr.ErrInvalidArgument)
	}
	if req.Name == "" {
		req.Name = addr
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("hal: open output: %w", halerr.ErrClosed)
	}
	if _, ok := d.buses[addr]; ok {
		return nil, fmt.Errorf("hal: bus %q already open: %w", addr, halerr.ErrInvalidArgument)
	}

	physical := d.cfg.Output
	hw := physical
	hw.Channels = d.mixChannels()
	open := func() (stream.Sink, error) {
		bus, err := d.registry.OpenBus(physical, addr)
		if err != nil {
			return nil, err
		}
		return bus, nil
	}
	o, err := stream.NewOutput(stream.OutputConfig{
		Requested: format,
		Hardware:  hw,
		Address:   addr,
		Device:    uint32(req.Device),
	}, open, d.outputOptions(req.Name)...)
	if err != nil {
		return nil, fmt.Errorf("hal: open output %q: %w", addr, err)
	}
	if ratio, err := d.cfg.Gain.Ratio(d.cfg.Gain.Default); err == nil {
		o.SetGain(ratio)
	}

	d.outputs[o] = req
	d.buses[addr] = o
	if d.primary == nil && (d.cfg.PrimaryAddress == "" || d.cfg.PrimaryAddress == addr) {
		d.primary = o
	}
	slog.Info("hal: output opened", "address", addr, "format", format.String(), "primary", d.primary == o)
	return o, nil
}

func (d *Device) openSCOOutput(req OutputRequest, format pcm.Format, extra ...stream.Option) (*stream.Output, error) {
	if req.Name == "" {
		req.Name = DeviceBluetoothSCO.String()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("hal: open output: %w", halerr.ErrClosed)
	}

	hw := d.cfg.HFPOut
	open := func() (stream.Sink, error) {
		bus, err := mixer.OpenPrivateBus(d.opener, hw, req.Name)
		if err != nil {
			return nil, err
		}
		return bus, nil
	}
	o, err := stream.NewOutput(stream.OutputConfig{
		Requested: format,
		Hardware:  hw,
		Device:    uint32(DeviceBluetoothSCO),
	}, open, d.outputOptions(req.Name, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("hal: open sco output: %w", err)
	}
	d.outputs[o] = req
	slog.Info("hal: output opened", "name", req.Name, "format", format.String())
	return o, nil
}

// CloseOutput closes an output opened by this device.
func (d *Device) CloseOutput(o *stream.Output) error {
	d.mu.Lock()
	req, ok := d.outputs[o]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("hal: close unknown output: %w", halerr.ErrInvalidArgument)
	}
	delete(d.outputs, o)
	if req.Address != "" && d.buses[req.Address] == o {
		delete(d.buses, req.Address)
	}
	if d.primary == o {
		d.primary = nil
	}
	d.mu.Unlock()

	slog.Info("hal: output closed", "name", req.Name)
	return o.Close()
}

// Output returns the bus output at address.
func (d *Device) Output(address string) (*stream.Output, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.buses[address]
	return o, ok
}

// Primary returns the primary output, or nil.
func (d *Device) Primary() *stream.Output {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.primary
}

// OpenInput opens an input stream.
func (d *Device) OpenInput(req InputRequest) (*stream.Input, error) {
	format, err := RefineInput(req.Format)
	if err != nil {
		slog.Warn("hal: reject input format", "device", req.Device.String(), "format", req.Format.String(), "suggested", format.String())
		return nil, err
	}

	cfg := stream.InputConfig{Requested: format, Device: uint32(req.Device)}
	switch req.Device {
	case DeviceBuiltinMic:
		cfg.Hardware = d.cfg.Input
	case DeviceFMTuner:
		cfg.Hardware = d.cfg.FM
	case DeviceBluetoothSCO:
		cfg.Hardware = d.cfg.HFPIn
		cfg.SwapSCO = true
	default:
		return nil, fmt.Errorf("hal: open input on %s: %w", req.Device, halerr.ErrInvalidArgument)
	}
	if req.Name == "" {
		req.Name = req.Device.String()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("hal: open input: %w", halerr.ErrClosed)
	}
	hw := cfg.Hardware
	open := func() (pcmdev.Handle, error) { return d.opener.Open(hw) }
	in, err := stream.NewInput(cfg, open,
		stream.WithName(req.Name),
		stream.WithMute(d.micMute.Load),
		stream.WithMaxSleep(d.cfg.MaxReadSleep),
	)
	if err != nil {
		return nil, fmt.Errorf("hal: open input %s: %w", req.Name, err)
	}
	d.inputs[in] = req
	slog.Info("hal: input opened", "name", req.Name, "format", format.String(), "hardware", hw.String())
	return in, nil
}

// CloseInput closes an input opened by this device.
func (d *Device) CloseInput(in *stream.Input) error {
	d.mu.Lock()
	req, ok := d.inputs[in]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("hal: close unknown input: %w", halerr.ErrInvalidArgument)
	}
	delete(d.inputs, in)
	d.mu.Unlock()

	slog.Info("hal: input closed", "name", req.Name)
	return in.Close()
}

// InputBufferSize returns the preferred read size for req, or 0 if the
// format is not supported.
func (d *Device) InputBufferSize(req InputRequest) int {
	f, err := RefineInput(req.Format)
	if err != nil {
		return 0
	}
	return stream.InputBufferSize(f.SampleRate, f.Channels)
}

// Close ends the call, closes every stream and releases every mixer.
func (d *Device) Close() error {
	d.call.Disable()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	relays := make([]*stream.Relay, 0, len(d.relays))
	for r := range d.relays {
		relays = append(relays, r)
	}
	outputs := make([]*stream.Output, 0, len(d.outputs))
	for o := range d.outputs {
		outputs = append(outputs, o)
	}
	inputs := make([]*stream.Input, 0, len(d.inputs))
	for in := range d.inputs {
		inputs = append(inputs, in)
	}
	clear(d.relays)
	clear(d.outputs)
	clear(d.buses)
	clear(d.inputs)
	d.primary = nil
	d.mu.Unlock()

	var errs []error
	for _, r := range relays {
		errs = append(errs, r.Close())
	}
	for _, o := range outputs {
		errs = append(errs, o.Close())
	}
	for _, in := range inputs {
		errs = append(errs, in.Close())
	}
	return errors.Join(errs...)
}
