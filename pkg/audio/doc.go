// Package audio is the umbrella for the audio sub-packages:
//
//   - pcm: sample formats, channel adjustment and gain helpers
//   - resampler: sample rate conversion between stream and hardware rates
//   - pcmdev: physical PCM devices (ALSA and an in-memory simulator)
//   - mixer: shared mixers summing bus rings into one physical device
//
// Frame rings live in the separate github.com/haivivi/carhal/pkg/buffer
// package.
//
// Example usage:
//
//	import (
//	    "github.com/haivivi/carhal/pkg/audio/mixer"
//	    "github.com/haivivi/carhal/pkg/audio/pcmdev"
//	)
//
//	reg := mixer.NewRegistry(pcmdev.ALSA{})
//	bus, err := reg.OpenBus(cfg, "media")
package audio
