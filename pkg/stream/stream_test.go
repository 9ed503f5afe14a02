package stream

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/audio/pcmdev"
)

var (
	hwStereo = pcmdev.Config{
		Card:        0,
		Device:      0,
		Direction:   pcmdev.Playback,
		Channels:    2,
		Rate:        48000,
		PeriodSize:  480,
		PeriodCount: 4,
	}
	micStereo = pcmdev.Config{
		Card:        1,
		Device:      0,
		Direction:   pcmdev.Capture,
		Channels:    2,
		Rate:        48000,
		PeriodSize:  480,
		PeriodCount: 4,
	}
)

func fill(frames, channels int, v int16) []byte {
	p := make([]byte, frames*channels*2)
	for i := 0; i < len(p); i += 2 {
		binary.LittleEndian.PutUint16(p[i:], uint16(v))
	}
	return p
}

func samples(p []byte) []int16 {
	out := make([]int16, len(p)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(p[i*2:]))
	}
	return out
}

// frameReader yields the same frame forever.
type frameReader struct {
	frame []byte
	off   int
}

func newFrameReader(vs ...int16) *frameReader {
	f := make([]byte, len(vs)*2)
	for i, v := range vs {
		binary.LittleEndian.PutUint16(f[i*2:], uint16(v))
	}
	return &frameReader{frame: f}
}

func (r *frameReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.frame[r.off]
		r.off = (r.off + 1) % len(r.frame)
	}
	return len(p), nil
}

// collector is a FrameWriter that keeps everything written to it.
type collector struct {
	format pcm.Format

	mu   sync.Mutex
	data []byte
}

func (c *collector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, p...)
	return len(p), nil
}

func (c *collector) Format() pcm.Format { return c.format }

func (c *collector) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.data...)
}

func TestSwapSCO(t *testing.T) {
	p := fill(3, 2, 0)
	for i := range 3 {
		binary.LittleEndian.PutUint16(p[i*4:], uint16(i))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(100+i))
	}
	swapSCO(p, 4)
	assert.Equal(t, []int16{100, 100, 101, 101, 102, 102}, samples(p))
}

func TestInputBufferSize(t *testing.T) {
	tests := []struct {
		rate, channels, want int
	}{
		{48000, 2, 2880},
		{16000, 1, 480},
		{44100, 2, 2688},
		{8000, 1, 256},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InputBufferSize(tt.rate, tt.channels), "rate=%d channels=%d", tt.rate, tt.channels)
	}
}

func TestFramesSince(t *testing.T) {
	now := time.Now()
	tests := []struct {
		elapsed time.Duration
		rate    int
		want    int64
	}{
		{0, 48000, 0},
		{-time.Second, 48000, 0},
		{10 * time.Millisecond, 48000, 480},
		{1500 * time.Millisecond, 44100, 66150},
		{60 * time.Hour, 48000, 10368000000},
		{365 * 24 * time.Hour, 48000, 1513728000000},
	}
	for _, tt := range tests {
		if got := framesSince(now, now.Add(-tt.elapsed), tt.rate); got != tt.want {
			t.Errorf("framesSince(%v, %d) = %d, want %d", tt.elapsed, tt.rate, got, tt.want)
		}
	}
}
