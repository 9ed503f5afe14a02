package pcm

import (
	"math"
	"unsafe"
)

// Int16s returns p viewed as native-endian 16-bit samples. p must come
// from an even offset of a byte slice.
func Int16s(p []byte) []int16 {
	if len(p) < 2 {
		return nil
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&p[0])), len(p)/2)
}

// Saturate16 clamps v to the int16 range.
func Saturate16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// ApplyGain scales the S16LE samples in p by ratio, saturating at the int16
// limits. A ratio of 1 leaves p unchanged.
func ApplyGain(p []byte, ratio float32) {
	if ratio == 1 {
		return
	}
	samples := Int16s(p)
	for i, s := range samples {
		v := float32(s) * ratio
		switch {
		case v >= math.MaxInt16:
			samples[i] = math.MaxInt16
		case v <= math.MinInt16:
			samples[i] = math.MinInt16
		default:
			samples[i] = int16(v)
		}
	}
}

// MixInto adds the S16LE samples of src onto dst, saturating at the int16
// limits. Only min(len(dst), len(src)) bytes are mixed.
func MixInto(dst, src []byte) {
	d := Int16s(dst)
	s := Int16s(src)
	n := min(len(d), len(s))
	for i := range n {
		d[i] = Saturate16(int32(d[i]) + int32(s[i]))
	}
}

// Silence zeroes p.
func Silence(p []byte) {
	clear(p)
}
