//go:build linux

package pcmdev

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haivivi/carhal/pkg/halerr"
)

var _ Opener = ALSA{}

func TestALSAOpenMissingCard(t *testing.T) {
	cfg := testConfig
	cfg.Card = 97
	h, err := ALSA{}.Open(cfg)
	require.Error(t, err)
	assert.Nil(t, h)
	assert.True(t, errors.Is(err, halerr.ErrDeviceUnavailable), "got %v", err)
}

func TestALSAHandleClosed(t *testing.T) {
	h := &alsaHandle{cfg: testConfig}
	assert.True(t, errors.Is(h.Write(make([]byte, 4)), halerr.ErrClosed))
	assert.True(t, errors.Is(h.Read(make([]byte, 4)), halerr.ErrClosed))
	assert.NoError(t, h.Close())
}
