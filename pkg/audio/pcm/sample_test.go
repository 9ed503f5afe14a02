package pcm

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func s16(vals ...int16) []byte {
	p := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(v))
	}
	return p
}

func TestMixIntoSaturates(t *testing.T) {
	dst := s16(20000, -20000, 100)
	MixInto(dst, s16(20000, -20000, -50))
	got := Int16s(dst)
	if got[0] != math.MaxInt16 {
		t.Errorf("positive overflow: got %d", got[0])
	}
	if got[1] != math.MinInt16 {
		t.Errorf("negative overflow: got %d", got[1])
	}
	if got[2] != 50 {
		t.Errorf("sum: got %d", got[2])
	}
}

func TestApplyGain(t *testing.T) {
	p := s16(1000, -1000, 30000, -30000)
	ApplyGain(p, 2)
	got := Int16s(p)
	want := []int16{2000, -2000, math.MaxInt16, math.MinInt16}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d want %d", i, got[i], want[i])
		}
	}

	p = s16(1234)
	ApplyGain(p, 1)
	if Int16s(p)[0] != 1234 {
		t.Errorf("unity gain changed sample: %d", Int16s(p)[0])
	}
}

func TestFormat(t *testing.T) {
	f := Format{SampleRate: 48000, Channels: 2}
	if f.FrameSize() != 4 {
		t.Errorf("FrameSize=%d", f.FrameSize())
	}
	if n := f.BytesInDuration(10 * time.Millisecond); n != 1920 {
		t.Errorf("BytesInDuration=%d", n)
	}
	if d := f.Duration(1920); d != 10*time.Millisecond {
		t.Errorf("Duration=%v", d)
	}
	if s := f.String(); s != "audio/S16_LE; rate=48000; channels=2" {
		t.Errorf("String=%q", s)
	}
}

func TestTone(t *testing.T) {
	f := Format{SampleRate: 16000, Channels: 2}
	tone := NewTone(f, 1000, 0.5)
	p := make([]byte, f.BytesInDuration(5*time.Millisecond))
	n, err := tone.Read(p)
	if err != nil || n != len(p) {
		t.Fatalf("n=%d err=%v", n, err)
	}
	samples := Int16s(p)
	var peak int16
	for i := 0; i < len(samples); i += 2 {
		if samples[i] != samples[i+1] {
			t.Fatalf("frame %d channels differ", i/2)
		}
		peak = max(peak, samples[i])
	}
	if peak < 16000 || peak > 16384 {
		t.Errorf("peak=%d", peak)
	}
}

func TestAtomicFloat32(t *testing.T) {
	g := NewAtomicFloat32(1)
	if g.Load() != 1 {
		t.Errorf("Load=%v", g.Load())
	}
	if old := g.Swap(0.5); old != 1 {
		t.Errorf("Swap old=%v", old)
	}
	if g.Load() != 0.5 {
		t.Errorf("Load=%v", g.Load())
	}
}
