package buffer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/haivivi/carhal/pkg/halerr"
)

// MaxFrameRingBytes bounds the allocation of a single FrameRing.
const MaxFrameRingBytes = 64 << 20

// FrameRing is a single-producer, single-consumer ring of audio frames.
//
// The ring allocates one frame slot more than its capacity; head == tail
// means empty, and the ring is full when advancing head by one frame would
// reach tail. The write index (head) is published by the producer and the
// read index (tail) by the consumer, both through atomics, so the consumer
// never observes a partially copied frame.
type FrameRing struct {
	spaceNotify chan struct{}
	done        chan struct{}
	closeOnce   sync.Once

	buf       []byte
	frameSize int
	slots     int

	head atomic.Int64
	tail atomic.Int64
}

// NewFrameRing allocates a zeroed ring holding up to frameCount frames of
// frameSize bytes each.
func NewFrameRing(frameCount, frameSize int) (*FrameRing, error) {
	if frameCount <= 0 || frameSize <= 0 {
		return nil, fmt.Errorf("buffer: frame ring %dx%d: %w", frameCount, frameSize, halerr.ErrInvalidArgument)
	}
	if frameCount >= MaxFrameRingBytes/frameSize {
		return nil, fmt.Errorf("buffer: frame ring %dx%d: %w", frameCount, frameSize, halerr.ErrResourceExhausted)
	}
	slots := frameCount + 1
	return &FrameRing{
		spaceNotify: make(chan struct{}, 1),
		done:        make(chan struct{}),

		buf:       make([]byte, slots*frameSize),
		frameSize: frameSize,
		slots:     slots,
	}, nil
}

// FrameSize returns the size of one frame in bytes.
func (r *FrameRing) FrameSize() int {
	return r.frameSize
}

// Capacity returns the number of frames the ring can hold.
func (r *FrameRing) Capacity() int {
	return r.slots - 1
}

// AvailableToRead returns the number of frames ready for the consumer.
func (r *FrameRing) AvailableToRead() int {
	return r.live(int(r.head.Load()), int(r.tail.Load()))
}

// AvailableToWrite returns the number of frames the producer can write
// without truncation.
func (r *FrameRing) AvailableToWrite() int {
	return r.Capacity() - r.AvailableToRead()
}

func (r *FrameRing) live(head, tail int) int {
	return (head - tail + r.slots) % r.slots
}

// Write copies as many whole frames from p as currently fit and returns
// the number of frames written. Trailing bytes that do not form a whole
// frame are ignored. Write never blocks and writes nothing once the ring is
// closed.
func (r *FrameRing) Write(p []byte) int {
	if r.Closed() {
		return 0
	}
	frames := len(p) / r.frameSize
	head := int(r.head.Load())
	tail := int(r.tail.Load())
	n := min(frames, r.Capacity()-r.live(head, tail))
	if n <= 0 {
		return 0
	}

	fs := r.frameSize
	first := min(n, r.slots-head)
	copy(r.buf[head*fs:], p[:first*fs])
	if n > first {
		copy(r.buf, p[first*fs:n*fs])
	}
	r.head.Store(int64((head + n) % r.slots))
	return n
}

// Read copies up to len(p)/FrameSize() frames into p and returns the number
// of frames read. Read never blocks.
func (r *FrameRing) Read(p []byte) int {
	frames := len(p) / r.frameSize
	head := int(r.head.Load())
	tail := int(r.tail.Load())
	n := min(frames, r.live(head, tail))
	if n <= 0 {
		return 0
	}

	fs := r.frameSize
	first := min(n, r.slots-tail)
	copy(p, r.buf[tail*fs:(tail+first)*fs])
	if n > first {
		copy(p[first*fs:], r.buf[:(n-first)*fs])
	}
	r.tail.Store(int64((tail + n) % r.slots))

	select {
	case r.spaceNotify <- struct{}{}:
	default:
	}
	return n
}

// WriteBlocking writes all whole frames of p, waiting for the consumer to
// free space whenever the ring is full. It returns early with the frames
// written so far when ctx is done or the ring is closed.
func (r *FrameRing) WriteBlocking(ctx context.Context, p []byte) (int, error) {
	frames := len(p) / r.frameSize
	written := 0
	for {
		written += r.Write(p[written*r.frameSize:])
		if written == frames {
			return written, nil
		}
		if r.Closed() {
			return written, fmt.Errorf("buffer: write to closed ring: %w", halerr.ErrClosed)
		}
		select {
		case <-r.spaceNotify:
		case <-r.done:
			return written, fmt.Errorf("buffer: write to closed ring: %w", halerr.ErrClosed)
		case <-ctx.Done():
			return written, ctx.Err()
		}
	}
}

// Reset discards all unread frames. It must be called from the consumer
// side, or while no producer is running.
func (r *FrameRing) Reset() {
	r.tail.Store(r.head.Load())
	select {
	case r.spaceNotify <- struct{}{}:
	default:
	}
}

// Close marks the ring closed and wakes any blocked writer. Unread frames
// remain readable.
func (r *FrameRing) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	return nil
}

// Closed reports whether Close has been called.
func (r *FrameRing) Closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
