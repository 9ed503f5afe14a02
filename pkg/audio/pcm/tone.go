package pcm

import (
	"encoding/binary"
	"math"
)

// Tone is an endless sine source producing S16LE frames with the same
// sample in every channel.
type Tone struct {
	format    Format
	freq      float64
	amplitude float64
	n         int64
}

// NewTone returns a Tone of freq Hz at the given amplitude (0..1).
func NewTone(format Format, freq, amplitude float64) *Tone {
	return &Tone{format: format, freq: freq, amplitude: amplitude}
}

// Read fills p with whole frames and never fails.
func (t *Tone) Read(p []byte) (int, error) {
	fs := t.format.FrameSize()
	frames := len(p) / fs
	for i := range frames {
		x := float64(t.n) / float64(t.format.SampleRate)
		v := int16(math.Sin(2*math.Pi*t.freq*x) * t.amplitude * math.MaxInt16)
		for c := range t.format.Channels {
			binary.LittleEndian.PutUint16(p[i*fs+c*2:], uint16(v))
		}
		t.n++
	}
	return frames * fs, nil
}
