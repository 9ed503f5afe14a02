package hal

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/haivivi/carhal/pkg/halerr"
)

// PatchHandle identifies an audio patch.
type PatchHandle int32

// PortType is the kind of a patch endpoint.
type PortType int

const (
	PortDevice PortType = iota
	PortMix
)

// PortRef is one end of an audio patch.
type PortRef struct {
	Type    PortType `yaml:"type" msgpack:"type"`
	Address string   `yaml:"address,omitempty" msgpack:"address,omitempty"`
}

// Patch is a recorded device-to-device connection. The device does no
// routing of its own for patches; they are kept for dumps.
type Patch struct {
	Handle  PatchHandle `yaml:"handle" msgpack:"handle"`
	Sources []PortRef   `yaml:"sources" msgpack:"sources"`
	Sinks   []PortRef   `yaml:"sinks" msgpack:"sinks"`
}

// CreatePatch records a patch from one device port to another. Other
// shapes fail with halerr.ErrNotSupported.
func (d *Device) CreatePatch(sources, sinks []PortRef) (PatchHandle, error) {
	for i, s := range sources {
		slog.Debug("hal: patch source", "index", i, "type", s.Type, "address", s.Address)
	}
	for i, s := range sinks {
		slog.Debug("hal: patch sink", "index", i, "type", s.Type, "address", s.Address)
	}
	if len(sources) != 1 || len(sinks) != 1 || sources[0].Type != PortDevice || sinks[0].Type != PortDevice {
		return 0, fmt.Errorf("hal: patch %d -> %d ports: %w", len(sources), len(sinks), halerr.ErrNotSupported)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.nextPatch
	d.nextPatch++
	d.patches[h] = Patch{
		Handle:  h,
		Sources: slices.Clone(sources),
		Sinks:   slices.Clone(sinks),
	}
	slog.Debug("hal: patch created", "handle", h)
	return h, nil
}

// ReleasePatch forgets a patch.
func (d *Device) ReleasePatch(h PatchHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.patches[h]; !ok {
		return fmt.Errorf("hal: release patch %d: %w", h, halerr.ErrInvalidArgument)
	}
	delete(d.patches, h)
	slog.Debug("hal: patch released", "handle", h)
	return nil
}

// Patches returns the recorded patches ordered by handle.
func (d *Device) Patches() []Patch {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Patch, 0, len(d.patches))
	for _, p := range d.patches {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Patch) int { return int(a.Handle - b.Handle) })
	return out
}
