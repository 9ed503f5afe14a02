package stream

import (
	"time"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/audio/pcmdev"
)

// Snapshot is a point-in-time view of a stream's configuration and
// counters.
type Snapshot struct {
	Kind           string        `yaml:"kind" msgpack:"kind"`
	Name           string        `yaml:"name,omitempty" msgpack:"name,omitempty"`
	Address        string        `yaml:"address,omitempty" msgpack:"address,omitempty"`
	Device         uint32        `yaml:"device" msgpack:"device"`
	Requested      pcm.Format    `yaml:"requested" msgpack:"requested"`
	Hardware       pcmdev.Config `yaml:"hardware" msgpack:"hardware"`
	BufferSize     int           `yaml:"buffer_size" msgpack:"buffer_size"`
	AmplitudeRatio float32       `yaml:"amplitude_ratio" msgpack:"amplitude_ratio"`
	Standby        bool          `yaml:"standby" msgpack:"standby"`
	Failed         bool          `yaml:"failed" msgpack:"failed"`
	Frames         uint64        `yaml:"frames" msgpack:"frames"`
	Position       int64         `yaml:"position" msgpack:"position"`
	Buffered       int           `yaml:"buffered" msgpack:"buffered"`
	Dropped        uint64        `yaml:"dropped" msgpack:"dropped"`
	Interval       time.Duration `yaml:"interval,omitempty" msgpack:"interval,omitempty"`
}
