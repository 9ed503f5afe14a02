package hal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haivivi/carhal/pkg/audio/pcmdev"
	"github.com/haivivi/carhal/pkg/halerr"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.Output.Channels)
	assert.Equal(t, 6, cfg.Input.Channels)
	assert.Equal(t, 2, cfg.FM.Channels)
	assert.Equal(t, 16000, cfg.HFPOut.Rate)
	assert.Equal(t, 512, cfg.Output.PeriodSize)
	assert.Equal(t, 4, cfg.Output.PeriodCount)
	assert.Equal(t, pcmdev.Playback, cfg.HFPOut.Direction)
	assert.Equal(t, pcmdev.Capture, cfg.HFPIn.Direction)
	assert.Equal(t, 200*time.Millisecond, cfg.ReadyTimeout)
	assert.Equal(t, time.Millisecond, cfg.RelayInterval)
}

func TestParseConfigOverlaysDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
output:
  channels: 2
hfp_in:
  card: 3
ready_timeout: 500ms
primary_address: bus0_media_out
`))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Output.Channels)
	assert.Equal(t, 48000, cfg.Output.Rate)
	assert.Equal(t, pcmdev.Playback, cfg.Output.Direction)
	assert.EqualValues(t, 3, cfg.HFPIn.Card)
	assert.Equal(t, 16000, cfg.HFPIn.Rate)
	assert.Equal(t, pcmdev.Capture, cfg.HFPIn.Direction)
	assert.Equal(t, 500*time.Millisecond, cfg.ReadyTimeout)
	assert.Equal(t, "bus0_media_out", cfg.PrimaryAddress)
	assert.Equal(t, -3200, cfg.Gain.Min)
}

func TestParseConfigRejects(t *testing.T) {
	for _, doc := range []string{
		"gain:\n  step: 0\n",
		"input:\n  rate: 0\n",
		"ready_timeout: 0s\n",
		"mix_channels: -1\n",
		"gain:\n  min: 0\n  max: 50\n  step: 100\n  default: 0\n",
	} {
		_, err := ParseConfig([]byte(doc))
		assert.True(t, errors.Is(err, halerr.ErrInvalidArgument), "%q: %v", doc, err)
	}

	_, err := ParseConfig([]byte("output: [1, 2"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carhal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mix_channels: 8\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MixChannels)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGainStageRatio(t *testing.T) {
	g := DefaultConfig().Gain

	r, err := g.Ratio(0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-6)

	r, err = g.Ratio(-3200)
	require.NoError(t, err)
	assert.InDelta(t, 0.0251, r, 1e-4)

	r, err = g.Ratio(600)
	require.NoError(t, err)
	assert.InDelta(t, 1.9953, r, 1e-4)

	r, err = g.Ratio(-600)
	require.NoError(t, err)
	assert.InDelta(t, 0.5012, r, 1e-4)

	_, err = g.Ratio(700)
	assert.True(t, errors.Is(err, halerr.ErrInvalidArgument))
	_, err = g.Ratio(-3300)
	assert.True(t, errors.Is(err, halerr.ErrInvalidArgument))

	// A stage narrower than one step has no curve.
	_, err = GainStage{Min: 0, Max: 50, Step: 100}.Ratio(0)
	assert.True(t, errors.Is(err, halerr.ErrInvalidArgument))
}
