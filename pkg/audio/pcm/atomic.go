package pcm

import (
	"math"
	"sync/atomic"
)

// AtomicFloat32 stores a float32 that can be read and updated from different
// goroutines. Stream gain lives in one so the write path never takes a lock
// to read it.
type AtomicFloat32 struct {
	bits atomic.Uint32
}

// NewAtomicFloat32 creates an AtomicFloat32 holding val.
func NewAtomicFloat32(val float32) *AtomicFloat32 {
	af := &AtomicFloat32{}
	af.Store(val)
	return af
}

// Load returns the current value.
func (af *AtomicFloat32) Load() float32 {
	return math.Float32frombits(af.bits.Load())
}

// Store sets the value.
func (af *AtomicFloat32) Store(val float32) {
	af.bits.Store(math.Float32bits(val))
}

// Swap sets the value and returns the previous one.
func (af *AtomicFloat32) Swap(val float32) float32 {
	return math.Float32frombits(af.bits.Swap(math.Float32bits(val)))
}
