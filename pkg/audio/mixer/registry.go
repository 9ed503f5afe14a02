package mixer

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/haivivi/carhal/pkg/audio/pcmdev"
	"github.com/haivivi/carhal/pkg/halerr"
)

type deviceKey struct {
	card   uint
	device uint
}

// Registry shares Shared mixers between owners of the same (card, device).
type Registry struct {
	opener pcmdev.Opener
	opts   []Option

	mu     sync.Mutex
	mixers map[deviceKey]*Shared
}

// NewRegistry returns an empty Registry that opens devices with opener.
// opts apply to every mixer the Registry creates.
func NewRegistry(opener pcmdev.Opener, opts ...Option) *Registry {
	return &Registry{
		opener: opener,
		opts:   opts,
		mixers: make(map[deviceKey]*Shared),
	}
}

// Attach returns the mixer for cfg's card and device, taking a reference.
// The first Attach opens the device; if that fails the returned mixer is
// errored (IsReady is false) until every owner has detached.
func (r *Registry) Attach(cfg pcmdev.Config) *Shared {
	key := deviceKey{card: cfg.Card, device: cfg.Device}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.mixers[key]; ok {
		s.mu.Lock()
		s.refs++
		s.mu.Unlock()
		return s
	}

	s := newShared(cfg, r.opts...)
	s.reg = r
	s.refs = 1
	s.start(r.opener)
	r.mixers[key] = s
	return s
}

// release drops one reference of s under the registry lock so a concurrent
// Attach cannot revive a mixer that is being torn down.
func (r *Registry) release(s *Shared) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	last := s.release()
	if last {
		key := deviceKey{card: s.cfg.Card, device: s.cfg.Device}
		if r.mixers[key] == s {
			delete(r.mixers, key)
		}
	}
	return last
}

// Lookup returns the live mixer for card and device, if any.
func (r *Registry) Lookup(card, device uint) (*Shared, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.mixers[deviceKey{card: card, device: device}]
	return s, ok
}

// Len returns the number of live mixers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mixers)
}

// Mixers returns the live mixers ordered by card and device.
func (r *Registry) Mixers() []*Shared {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Shared, 0, len(r.mixers))
	for _, s := range r.mixers {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Shared) int {
		if a.cfg.Card != b.cfg.Card {
			return int(a.cfg.Card) - int(b.cfg.Card)
		}
		return int(a.cfg.Device) - int(b.cfg.Device)
	})
	return out
}

// OpenBus attaches to the mixer for cfg and returns the named bus on it.
func (r *Registry) OpenBus(cfg pcmdev.Config, address string) (*Bus, error) {
	return openBus(r.Attach(cfg), address)
}

// OpenPrivateBus opens a private mixer for cfg and returns the named bus on
// it. Closing the bus closes the mixer.
func OpenPrivateBus(opener pcmdev.Opener, cfg pcmdev.Config, address string, opts ...Option) (*Bus, error) {
	return openBus(NewPrivate(opener, cfg, opts...), address)
}

func openBus(s *Shared, address string) (*Bus, error) {
	if !s.IsReady() {
		err := s.notReady()
		s.Detach(address)
		return nil, err
	}
	ring := s.Bus(address)
	if ring == nil {
		s.Detach(address)
		return nil, fmt.Errorf("mixer: bus %q: %w", address, halerr.ErrResourceExhausted)
	}
	return &Bus{mixer: s, address: address}, nil
}

// Bus is one owner's handle on a mixer bus.
type Bus struct {
	mixer   *Shared
	address string

	once sync.Once
}

// Address returns the bus address.
func (b *Bus) Address() string { return b.address }

// Mixer returns the mixer the bus feeds.
func (b *Bus) Mixer() *Shared { return b.mixer }

// Write pushes p onto the bus, blocking while the bus is full.
func (b *Bus) Write(ctx context.Context, p []byte) error {
	return b.mixer.WriteBlocking(ctx, b.address, p)
}

// Close removes the bus and releases the owner's mixer reference.
func (b *Bus) Close() error {
	b.once.Do(func() {
		b.mixer.Detach(b.address)
	})
	return nil
}
