package pcm

import "fmt"

// AdjustKind is the channel conversion an Adjuster performs.
type AdjustKind int

const (
	// AdjustSame copies frames verbatim.
	AdjustSame AdjustKind = iota
	// AdjustExpand replicates the source channels cyclically into a wider frame.
	AdjustExpand
	// AdjustShrink keeps the first channels of each source frame.
	AdjustShrink
)

func (k AdjustKind) String() string {
	switch k {
	case AdjustSame:
		return "same"
	case AdjustExpand:
		return "expand"
	case AdjustShrink:
		return "shrink"
	}
	return fmt.Sprintf("AdjustKind(%d)", int(k))
}

// Adjuster converts frames between two fixed channel counts. The conversion
// kind is resolved once, when the Adjuster is created.
type Adjuster struct {
	kind AdjustKind
	src  int
	dst  int
}

// NewAdjuster returns an Adjuster from srcChannels to dstChannels.
func NewAdjuster(srcChannels, dstChannels int) Adjuster {
	kind := AdjustSame
	switch {
	case srcChannels < dstChannels:
		kind = AdjustExpand
	case srcChannels > dstChannels:
		kind = AdjustShrink
	}
	return Adjuster{kind: kind, src: srcChannels, dst: dstChannels}
}

// Kind returns the conversion kind.
func (a Adjuster) Kind() AdjustKind { return a.kind }

// SrcChannels returns the input channel count.
func (a Adjuster) SrcChannels() int { return a.src }

// DstChannels returns the output channel count.
func (a Adjuster) DstChannels() int { return a.dst }

// Apply converts frames from src into dst and returns the number of bytes
// written to dst. dst must hold frames*DstChannels()*sampleBytes bytes.
func (a Adjuster) Apply(dst, src []byte, frames, sampleBytes int) int {
	inSize := a.src * sampleBytes
	outSize := a.dst * sampleBytes
	switch a.kind {
	case AdjustSame:
		return copy(dst[:frames*outSize], src[:frames*inSize])
	case AdjustShrink:
		for i := range frames {
			copy(dst[i*outSize:(i+1)*outSize], src[i*inSize:i*inSize+outSize])
		}
	case AdjustExpand:
		for i := range frames {
			in := src[i*inSize : (i+1)*inSize]
			out := dst[i*outSize : (i+1)*outSize]
			for j := 0; j < outSize; j += inSize {
				copy(out[j:], in)
			}
		}
	}
	return frames * outSize
}

// Adjust converts frames of srcChannels-channel audio in src into
// dstChannels-channel audio in dst. Widening replicates the source channels
// cyclically (mono fills every output channel); narrowing keeps the first
// dstChannels channels and discards the rest, so a shrink cannot be undone.
// It returns the number of bytes written to dst.
func Adjust(dst []byte, dstChannels int, src []byte, srcChannels, frames, sampleBytes int) int {
	return NewAdjuster(srcChannels, dstChannels).Apply(dst, src, frames, sampleBytes)
}
