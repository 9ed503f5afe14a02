package hal

import (
	"fmt"

	"github.com/haivivi/carhal/pkg/audio/pcmdev"
	"github.com/haivivi/carhal/pkg/callroute"
	"github.com/haivivi/carhal/pkg/halerr"
	"github.com/haivivi/carhal/pkg/stream"
)

// callOutput closes through the device so the output is forgotten.
type callOutput struct {
	*stream.Output
	d *Device
}

func (c callOutput) Close() error { return c.d.CloseOutput(c.Output) }

type callInput struct {
	*stream.Relay
	d *Device
}

func (c callInput) Close() error {
	c.d.mu.Lock()
	delete(c.d.relays, c.Relay)
	c.d.mu.Unlock()
	return c.Relay.Close()
}

// OpenCallOutput opens the hands-free output for a call. It implements
// callroute.Streams.
func (d *Device) OpenCallOutput(ready func()) (callroute.CallOutput, error) {
	req := OutputRequest{Device: DeviceBluetoothSCO, Format: callFormat, Name: callroute.HFPOut.String()}
	o, err := d.openSCOOutput(req, callFormat, stream.WithReady(ready))
	if err != nil {
		return nil, err
	}
	return callOutput{Output: o, d: d}, nil
}

// OpenCallInput opens the relay for role into target. It implements
// callroute.Streams.
func (d *Device) OpenCallInput(role callroute.Role, target stream.FrameWriter, ready func()) (callroute.CallInput, error) {
	var cfg stream.RelayConfig
	switch role {
	case callroute.HFPIn:
		cfg = stream.RelayConfig{Hardware: d.cfg.HFPIn, Device: uint32(DeviceBluetoothSCO), SwapSCO: true}
	case callroute.MicIn:
		cfg = stream.RelayConfig{Hardware: d.cfg.Input, Device: uint32(DeviceBuiltinMic)}
	default:
		return nil, fmt.Errorf("hal: open call input %s: %w", role, halerr.ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("hal: open call input: %w", halerr.ErrClosed)
	}
	hw := cfg.Hardware
	open := func() (pcmdev.Handle, error) { return d.opener.Open(hw) }
	r, err := stream.NewRelay(cfg, open, target, stream.WithReady(ready), stream.WithName(role.String()))
	if err != nil {
		return nil, fmt.Errorf("hal: open call input %s: %w", role, err)
	}
	d.relays[r] = role
	return callInput{Relay: r, d: d}, nil
}

// PrimaryOutput returns the primary output as seen by the call path. It
// implements callroute.Streams.
func (d *Device) PrimaryOutput() callroute.Output {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.primary == nil {
		return nil
	}
	return d.primary
}
