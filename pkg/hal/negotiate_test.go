package hal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/halerr"
)

func format(rate, channels int) pcm.Format {
	return pcm.Format{SampleRate: rate, Channels: channels, Sample: pcm.S16LE}
}

func TestRefineOutput(t *testing.T) {
	tests := []struct {
		name string
		in   pcm.Format
		want pcm.Format
		ok   bool
	}{
		{"supported", format(48000, 2), format(48000, 2), true},
		{"mono 24k", format(24000, 1), format(24000, 1), true},
		{"round up", format(12000, 2), format(16000, 2), false},
		{"too low", format(4000, 1), format(8000, 1), false},
		{"cap", format(96000, 2), format(48000, 2), false},
		{"channels", format(44100, 6), format(44100, 2), false},
		{"sample format", pcm.Format{SampleRate: 32000, Channels: 2, Sample: pcm.Float32}, format(32000, 2), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RefineOutput(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			var ne *NegotiationError
			require.True(t, errors.As(err, &ne))
			assert.Equal(t, tt.in, ne.Requested)
			assert.Equal(t, tt.want, ne.Suggested)
			assert.True(t, errors.Is(err, halerr.ErrInvalidArgument))
		})
	}
}

func TestRefineInput(t *testing.T) {
	// 24000 and 32000 are output-only rates.
	got, err := RefineInput(format(24000, 1))
	assert.Error(t, err)
	assert.Equal(t, format(44100, 1), got)

	got, err = RefineInput(format(16000, 2))
	require.NoError(t, err)
	assert.Equal(t, format(16000, 2), got)
}
