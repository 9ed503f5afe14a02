// Package buffer provides the frame ring used by every stream and mixer bus.
//
// A FrameRing is a fixed-capacity circular buffer of fixed-size audio frames
// with exactly one producer goroutine and one consumer goroutine. Writes and
// reads never block and truncate to what currently fits or is available;
// partial transfers are normal and reported through the returned frame count.
// WriteBlocking is the one exception, for producers that want backpressure
// instead of silent drops.
//
// Example usage:
//
//	// 4 frames of 16-bit stereo
//	ring, err := buffer.NewFrameRing(4, 4)
//	if err != nil {
//		return err
//	}
//
//	n := ring.Write(frames) // frames written, possibly fewer than offered
//
//	out := make([]byte, 2*ring.FrameSize())
//	got := ring.Read(out) // frames read
package buffer
