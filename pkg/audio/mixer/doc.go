// Package mixer shares one physical playback device between many logical
// buses.
//
// A Shared mixer owns a pcmdev.Handle and a set of buses, each a
// buffer.FrameRing keyed by its address. One goroutine per mixer drains the
// buses, sums them with int16 saturation and writes the result to the
// device. Buses are created on first use and removed when their owner
// detaches; the device is closed when the last owner detaches.
//
// A Registry hands out Shared mixers keyed by (card, device) so that every
// stream routed to the same card shares one mixer:
//
//	reg := mixer.NewRegistry(opener)
//	bus, err := reg.OpenBus(cfg, "bus0_media_out")
//	if err != nil {
//		return err
//	}
//	defer bus.Close()
//	err = bus.Write(ctx, frames)
package mixer
