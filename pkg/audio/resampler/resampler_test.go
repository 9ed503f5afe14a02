package resampler

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/halerr"
)

func TestPassthrough(t *testing.T) {
	f := pcm.Format{SampleRate: 48000, Channels: 2}
	r, err := New(f, f)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Passthrough() {
		t.Fatal("expected passthrough")
	}
	in := make([]byte, f.BytesInDuration(10*time.Millisecond))
	pcm.NewTone(f, 440, 0.5).Read(in)
	out, err := r.Resample(in)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(in, out) {
		t.Error("passthrough changed data")
	}
}

func TestUpsample(t *testing.T) {
	src := pcm.Format{SampleRate: 16000, Channels: 2}
	dst := pcm.Format{SampleRate: 48000, Channels: 2}
	r, err := New(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if r.OutFrames(160) != 480 {
		t.Errorf("OutFrames(160)=%d", r.OutFrames(160))
	}

	tone := pcm.NewTone(src, 440, 0.5)
	block := make([]byte, src.BytesInDuration(20*time.Millisecond))
	var outFrames int
	for range 50 {
		tone.Read(block)
		out, err := r.Resample(block)
		if err != nil {
			t.Fatal(err)
		}
		if len(out)%dst.FrameSize() != 0 {
			t.Fatalf("output not frame aligned: %d bytes", len(out))
		}
		outFrames += dst.Frames(len(out))
	}

	want := dst.SampleRate // one second of input
	if outFrames < want*9/10 || outFrames > want*11/10 {
		t.Errorf("output frames=%d, want about %d", outFrames, want)
	}
}

func TestNewErrors(t *testing.T) {
	_, err := New(pcm.Format{SampleRate: 48000, Channels: 2}, pcm.Format{SampleRate: 16000, Channels: 1})
	if !errors.Is(err, halerr.ErrInvalidArgument) {
		t.Errorf("channel mismatch: err=%v", err)
	}
	_, err = New(pcm.Format{SampleRate: 48000, Channels: 2, Sample: pcm.S32LE}, pcm.Format{SampleRate: 16000, Channels: 2})
	if !errors.Is(err, halerr.ErrInvalidArgument) {
		t.Errorf("sample format: err=%v", err)
	}
	_, err = New(pcm.Format{SampleRate: 0, Channels: 2}, pcm.Format{SampleRate: 16000, Channels: 2})
	if !errors.Is(err, halerr.ErrInvalidArgument) {
		t.Errorf("zero rate: err=%v", err)
	}
}
