package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/audio/pcmdev"
	"github.com/haivivi/carhal/pkg/halerr"
)

func newTestInput(t *testing.T, sim *pcmdev.Sim, cfg InputConfig, opts ...Option) *Input {
	t.Helper()
	open := func() (pcmdev.Handle, error) { return sim.Open(cfg.Hardware) }
	in, err := NewInput(cfg, open, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { in.Close() })
	return in
}

// readUntil reads periods from in until one contains a non-zero sample.
func readUntil(t *testing.T, in *Input, size int) []byte {
	t.Helper()
	p := make([]byte, size)
	for range 100 {
		n, err := in.Read(p)
		require.NoError(t, err)
		require.Equal(t, size, n)
		for _, s := range samples(p) {
			if s != 0 {
				return p
			}
		}
	}
	t.Fatal("no captured data")
	return nil
}

func TestInputReadsCapturedFrames(t *testing.T) {
	sim := pcmdev.NewSim()
	sim.SetSource(micStereo.Key(), newFrameReader(300, 300))
	in := newTestInput(t, sim, InputConfig{Requested: stereo48k, Hardware: micStereo})

	p := readUntil(t, in, 480*4)
	for _, s := range samples(p) {
		// Frames the worker had not delivered yet read as silence.
		assert.Contains(t, []int16{0, 300}, s)
	}
	assert.False(t, in.InStandby())
	assert.Equal(t, 1, sim.OpenHandles(micStereo.Key()))
}

func TestInputSwapsSCOAndShrinks(t *testing.T) {
	sim := pcmdev.NewSim()
	sim.SetSource(micStereo.Key(), newFrameReader(7, 42))
	mono := pcm.Format{SampleRate: 48000, Channels: 1, Sample: pcm.S16LE}
	in := newTestInput(t, sim, InputConfig{Requested: mono, Hardware: micStereo, SwapSCO: true})

	p := readUntil(t, in, 480*2)
	for _, s := range samples(p) {
		assert.Contains(t, []int16{0, 42}, s)
	}
}

func TestInputMuteReturnsSilence(t *testing.T) {
	sim := pcmdev.NewSim()
	sim.SetSource(micStereo.Key(), newFrameReader(300, 300))
	in := newTestInput(t, sim, InputConfig{Requested: stereo48k, Hardware: micStereo},
		WithMute(func() bool { return true }))

	p := make([]byte, 480*4)
	for range 5 {
		n, err := in.Read(p)
		require.NoError(t, err)
		assert.Equal(t, len(p), n)
		assert.Equal(t, make([]byte, len(p)), p)
	}
}

func TestInputReadPacing(t *testing.T) {
	sim := pcmdev.NewSim()
	in := newTestInput(t, sim, InputConfig{Requested: stereo48k, Hardware: micStereo})

	// Each read waits for its 10ms of frames to be captured.
	p := make([]byte, 480*4)
	start := time.Now()
	for range 5 {
		_, err := in.Read(p)
		require.NoError(t, err)
	}
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestInputPositionAndStandby(t *testing.T) {
	sim := pcmdev.NewSim()
	in := newTestInput(t, sim, InputConfig{Requested: stereo48k, Hardware: micStereo})

	pos, _ := in.CapturePosition()
	assert.Zero(t, pos)

	_, err := in.Read(make([]byte, 480*4))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	pos, _ = in.CapturePosition()
	assert.GreaterOrEqual(t, pos, int64(480))

	require.Error(t, in.SetDevice(3))
	in.Standby()
	in.Standby()
	assert.True(t, in.InStandby())
	frozen, _ := in.CapturePosition()
	time.Sleep(20 * time.Millisecond)
	pos, _ = in.CapturePosition()
	assert.Equal(t, frozen, pos)
	require.Eventually(t, func() bool { return sim.OpenHandles(micStereo.Key()) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, in.SetDevice(3))
	assert.EqualValues(t, 3, in.Device())
}

func TestInputLongUptime(t *testing.T) {
	sim := pcmdev.NewSim()
	in := newTestInput(t, sim, InputConfig{Requested: stereo48k, Hardware: micStereo})

	p := make([]byte, 512*stereo48k.FrameSize())
	_, err := in.Read(p)
	require.NoError(t, err)

	// An always-on stream that left standby 60 hours ago.
	in.mu.Lock()
	in.standbyExitTime = time.Now().Add(-60 * time.Hour)
	in.mu.Unlock()

	pos, _ := in.CapturePosition()
	assert.GreaterOrEqual(t, pos, int64(10368000000))

	start := time.Now()
	n, err := in.Read(p)
	require.NoError(t, err)
	assert.Equal(t, len(p), n)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestInputOpenFailure(t *testing.T) {
	sim := pcmdev.NewSim()
	sim.FailOpen(micStereo.Key(), errors.New("busy"))
	in := newTestInput(t, sim, InputConfig{Requested: stereo48k, Hardware: micStereo})

	p := make([]byte, 480*4)
	n, err := in.Read(p)
	require.NoError(t, err)
	assert.Equal(t, len(p), n)
	require.Eventually(t, in.Failed, time.Second, time.Millisecond)
	n, err = in.Read(p)
	require.NoError(t, err)
	assert.Equal(t, len(p), n)
}

func TestInputClose(t *testing.T) {
	sim := pcmdev.NewSim()
	in := newTestInput(t, sim, InputConfig{Requested: stereo48k, Hardware: micStereo})

	_, err := in.Read(make([]byte, 480*4))
	require.NoError(t, err)
	require.NoError(t, in.Close())
	require.NoError(t, in.Close())
	assert.Equal(t, 0, sim.OpenHandles(micStereo.Key()))

	_, err = in.Read(make([]byte, 16))
	assert.True(t, errors.Is(err, halerr.ErrClosed))

	snap := in.Snapshot()
	assert.Equal(t, "input", snap.Kind)
	assert.Equal(t, 2880, snap.BufferSize)
}

func TestInputRejectsOddSCO(t *testing.T) {
	hw := micStereo
	hw.Channels = 3
	_, err := NewInput(InputConfig{Requested: stereo48k, Hardware: hw, SwapSCO: true}, nil)
	assert.True(t, errors.Is(err, halerr.ErrInvalidArgument))
}
