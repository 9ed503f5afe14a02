//go:build !linux

package pcmdev

import (
	"fmt"

	"github.com/haivivi/carhal/pkg/halerr"
)

// ALSA is only available on Linux.
type ALSA struct{}

// Open always fails outside Linux.
func (ALSA) Open(cfg Config) (Handle, error) {
	return nil, fmt.Errorf("pcmdev: open %s: alsa: %w", cfg.Key(), halerr.ErrNotSupported)
}
