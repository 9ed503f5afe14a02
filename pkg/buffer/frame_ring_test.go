package buffer

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/carhal/pkg/halerr"
)

func frames(vals ...byte) []byte {
	return vals
}

func TestFrameRing(t *testing.T) {
	t.Run("scenario", func(t *testing.T) {
		rb, err := NewFrameRing(4, 1)
		if err != nil {
			t.Fatal(err)
		}
		if n := rb.Write(frames(1, 2, 3)); n != 3 {
			t.Fatalf("write=%d", n)
		}
		got := make([]byte, 2)
		if n := rb.Read(got); n != 2 {
			t.Fatalf("read=%d", n)
		}
		if !bytes.Equal(got, []byte{1, 2}) {
			t.Errorf("got=%v", got)
		}
		if rb.AvailableToRead() != 1 {
			t.Errorf("availableToRead=%d", rb.AvailableToRead())
		}
		if n := rb.Write(frames(4, 5)); n != 2 {
			t.Errorf("write=%d", n)
		}
		// One free frame left: the next write is truncated.
		if n := rb.Write(frames(6, 7)); n != 1 {
			t.Errorf("write when nearly full=%d", n)
		}
		if n := rb.Write(frames(8)); n != 0 {
			t.Errorf("write when full=%d", n)
		}

		rest := make([]byte, 8)
		n := rb.Read(rest)
		if !bytes.Equal(rest[:n], []byte{3, 4, 5, 6}) {
			t.Errorf("rest=%v", rest[:n])
		}
	})

	t.Run("capacity", func(t *testing.T) {
		rb, err := NewFrameRing(8, 4)
		if err != nil {
			t.Fatal(err)
		}
		if rb.Capacity() != 8 {
			t.Errorf("capacity=%d", rb.Capacity())
		}
		check := func() {
			t.Helper()
			if rb.AvailableToRead()+rb.AvailableToWrite() != rb.Capacity() {
				t.Fatalf("read=%d write=%d capacity=%d", rb.AvailableToRead(), rb.AvailableToWrite(), rb.Capacity())
			}
		}
		check()
		buf := make([]byte, 5*4)
		for range 20 {
			rb.Write(buf)
			check()
			rb.Read(buf[:3*4])
			check()
		}
	})

	t.Run("partial frame ignored", func(t *testing.T) {
		rb, _ := NewFrameRing(4, 4)
		if n := rb.Write(make([]byte, 6)); n != 1 {
			t.Errorf("write=%d", n)
		}
		if n := rb.Read(make([]byte, 3)); n != 0 {
			t.Errorf("read into short buffer=%d", n)
		}
	})

	t.Run("full does not corrupt", func(t *testing.T) {
		rb, _ := NewFrameRing(3, 2)
		rb.Write([]byte{1, 1, 2, 2, 3, 3})
		if n := rb.Write([]byte{9, 9}); n != 0 {
			t.Errorf("write when full=%d", n)
		}
		got := make([]byte, 6)
		rb.Read(got)
		if !bytes.Equal(got, []byte{1, 1, 2, 2, 3, 3}) {
			t.Errorf("got=%v", got)
		}
	})

	t.Run("wrap", func(t *testing.T) {
		rb, _ := NewFrameRing(5, 2)
		out := make([]byte, 6)
		for i := range 10 {
			in := []byte{byte(i), byte(i), byte(i + 1), byte(i + 1), byte(i + 2), byte(i + 2)}
			if n := rb.Write(in); n != 3 {
				t.Fatalf("round %d: write=%d", i, n)
			}
			if n := rb.Read(out); n != 3 {
				t.Fatalf("round %d: read=%d", i, n)
			}
			if !bytes.Equal(in, out) {
				t.Fatalf("round %d: got=%v want=%v", i, out, in)
			}
		}
	})

	t.Run("reset", func(t *testing.T) {
		rb, _ := NewFrameRing(4, 1)
		rb.Write(frames(1, 2, 3))
		rb.Reset()
		if rb.AvailableToRead() != 0 {
			t.Errorf("availableToRead=%d", rb.AvailableToRead())
		}
		if rb.AvailableToWrite() != 4 {
			t.Errorf("availableToWrite=%d", rb.AvailableToWrite())
		}
	})
}

func TestNewFrameRingErrors(t *testing.T) {
	if _, err := NewFrameRing(0, 4); !errors.Is(err, halerr.ErrInvalidArgument) {
		t.Errorf("zero frames: err=%v", err)
	}
	if _, err := NewFrameRing(4, 0); !errors.Is(err, halerr.ErrInvalidArgument) {
		t.Errorf("zero frame size: err=%v", err)
	}
	if _, err := NewFrameRing(MaxFrameRingBytes, 16); !errors.Is(err, halerr.ErrResourceExhausted) {
		t.Errorf("huge ring: err=%v", err)
	}
}

func TestFrameRingConcurrent(t *testing.T) {
	const total = 20000
	rb, _ := NewFrameRing(64, 4)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		frame := make([]byte, 4)
		for i := 0; i < total; {
			frame[0], frame[1], frame[2], frame[3] = byte(i), byte(i>>8), byte(i>>16), byte(i>>24)
			if rb.Write(frame) == 1 {
				i++
			}
		}
	}()

	frame := make([]byte, 4)
	for i := 0; i < total; {
		if rb.Read(frame) == 0 {
			continue
		}
		got := int(frame[0]) | int(frame[1])<<8 | int(frame[2])<<16 | int(frame[3])<<24
		if got != i {
			t.Fatalf("frame %d: got %d", i, got)
		}
		i++
	}
	wg.Wait()
}

func TestFrameRingWriteBlocking(t *testing.T) {
	t.Run("waits for space", func(t *testing.T) {
		rb, _ := NewFrameRing(2, 1)
		done := make(chan int, 1)
		go func() {
			n, err := rb.WriteBlocking(context.Background(), frames(1, 2, 3, 4, 5))
			if err != nil {
				t.Errorf("write blocking: %v", err)
			}
			done <- n
		}()

		var got []byte
		buf := make([]byte, 1)
		deadline := time.After(5 * time.Second)
		for len(got) < 5 {
			select {
			case <-deadline:
				t.Fatalf("timeout, got=%v", got)
			default:
			}
			if rb.Read(buf) == 1 {
				got = append(got, buf[0])
			}
		}
		if n := <-done; n != 5 {
			t.Errorf("written=%d", n)
		}
		if !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
			t.Errorf("got=%v", got)
		}
	})

	t.Run("close unblocks", func(t *testing.T) {
		rb, _ := NewFrameRing(1, 1)
		errc := make(chan error, 1)
		go func() {
			_, err := rb.WriteBlocking(context.Background(), frames(1, 2, 3))
			errc <- err
		}()
		time.Sleep(10 * time.Millisecond)
		rb.Close()
		if err := <-errc; !errors.Is(err, halerr.ErrClosed) {
			t.Errorf("err=%v", err)
		}
	})

	t.Run("context", func(t *testing.T) {
		rb, _ := NewFrameRing(1, 1)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		n, err := rb.WriteBlocking(ctx, frames(1, 2))
		if n != 1 {
			t.Errorf("written=%d", n)
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err=%v", err)
		}
	})
}
