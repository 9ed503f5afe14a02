package pcm

import (
	"bytes"
	"testing"
)

func TestAdjust(t *testing.T) {
	t.Run("mono to 8", func(t *testing.T) {
		src := []byte{1, 2, 3, 4} // two mono S16 frames
		dst := make([]byte, 2*8*2)
		n := Adjust(dst, 8, src, 1, 2, 2)
		if n != len(dst) {
			t.Fatalf("n=%d", n)
		}
		for c := range 8 {
			if dst[c*2] != 1 || dst[c*2+1] != 2 {
				t.Errorf("frame 0 channel %d = %v", c, dst[c*2:c*2+2])
			}
			if dst[16+c*2] != 3 || dst[16+c*2+1] != 4 {
				t.Errorf("frame 1 channel %d = %v", c, dst[16+c*2:16+c*2+2])
			}
		}
	})

	t.Run("stereo to 6 is cyclic", func(t *testing.T) {
		src := []byte{1, 0, 2, 0}
		dst := make([]byte, 12)
		Adjust(dst, 6, src, 2, 1, 2)
		want := []byte{1, 0, 2, 0, 1, 0, 2, 0, 1, 0, 2, 0}
		if !bytes.Equal(dst, want) {
			t.Errorf("got=%v want=%v", dst, want)
		}
	})

	t.Run("shrink keeps first channels", func(t *testing.T) {
		src := []byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0}
		dst := make([]byte, 4)
		Adjust(dst, 2, src, 6, 1, 2)
		if !bytes.Equal(dst, []byte{1, 0, 2, 0}) {
			t.Errorf("got=%v", dst)
		}
	})

	t.Run("same", func(t *testing.T) {
		src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
		dst := make([]byte, 8)
		Adjust(dst, 2, src, 2, 2, 2)
		if !bytes.Equal(dst, src) {
			t.Errorf("got=%v", dst)
		}
	})

	t.Run("expand then shrink restores", func(t *testing.T) {
		src := make([]byte, 3*2*10)
		for i := range src {
			src[i] = byte(i * 7)
		}
		wide := make([]byte, 8*2*10)
		Adjust(wide, 8, src, 3, 10, 2)
		back := make([]byte, len(src))
		Adjust(back, 3, wide, 8, 10, 2)
		if !bytes.Equal(back, src) {
			t.Errorf("round trip mismatch")
		}
	})

	t.Run("pure", func(t *testing.T) {
		src := []byte{9, 8, 7, 6}
		a := make([]byte, 16)
		b := make([]byte, 16)
		Adjust(a, 4, src, 2, 2, 1)
		Adjust(b, 4, src, 2, 2, 1)
		if !bytes.Equal(a, b) {
			t.Errorf("a=%v b=%v", a, b)
		}
		if !bytes.Equal(src, []byte{9, 8, 7, 6}) {
			t.Errorf("src modified: %v", src)
		}
	})
}

func TestNewAdjuster(t *testing.T) {
	tests := []struct {
		src, dst int
		want     AdjustKind
	}{
		{2, 2, AdjustSame},
		{1, 8, AdjustExpand},
		{6, 2, AdjustShrink},
	}
	for _, tt := range tests {
		a := NewAdjuster(tt.src, tt.dst)
		if a.Kind() != tt.want {
			t.Errorf("NewAdjuster(%d, %d).Kind() = %v, want %v", tt.src, tt.dst, a.Kind(), tt.want)
		}
	}
}
