package commands

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/haivivi/carhal/pkg/audio/pcm"
)

// playFile is a decoded audio file read as S16LE frames.
type playFile struct {
	io.Reader
	format pcm.Format
	f      *os.File
}

func (p *playFile) Close() error { return p.f.Close() }

// openPlayFile opens a .wav, .mp3 or .ogg file for playback.
func openPlayFile(path string) (*playFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	pf, err := decodePlayFile(f, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	pf.f = f
	return pf, nil
}

func decodePlayFile(f *os.File, ext string) (*playFile, error) {
	switch ext {
	case ".wav":
		dec := wav.NewDecoder(f)
		if !dec.IsValidFile() {
			return nil, fmt.Errorf("not a valid WAV file")
		}
		if dec.BitDepth != 16 {
			return nil, fmt.Errorf("%d-bit WAV, want 16-bit", dec.BitDepth)
		}
		format := pcm.Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans), Sample: pcm.S16LE}
		return &playFile{
			Reader: &intReader{dec: dec, buf: &audio.IntBuffer{
				Format:         &audio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
				SourceBitDepth: 16,
			}},
			format: format,
		}, nil
	case ".mp3":
		dec, err := gomp3.NewDecoder(f)
		if err != nil {
			return nil, err
		}
		// go-mp3 always decodes to 16-bit stereo.
		return &playFile{
			Reader: dec,
			format: pcm.Format{SampleRate: dec.SampleRate(), Channels: 2, Sample: pcm.S16LE},
		}, nil
	case ".ogg":
		dec, err := oggvorbis.NewReader(f)
		if err != nil {
			return nil, err
		}
		return &playFile{
			Reader: &floatReader{dec: dec},
			format: pcm.Format{SampleRate: dec.SampleRate(), Channels: dec.Channels(), Sample: pcm.S16LE},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
}

// intReader reads 16-bit WAV samples as S16LE bytes.
type intReader struct {
	dec *wav.Decoder
	buf *audio.IntBuffer
}

func (r *intReader) Read(p []byte) (int, error) {
	n := len(p) / 2
	if cap(r.buf.Data) < n {
		r.buf.Data = make([]int, n)
	}
	r.buf.Data = r.buf.Data[:n]
	got, err := r.dec.PCMBuffer(r.buf)
	for i, v := range r.buf.Data[:got] {
		binary.LittleEndian.PutUint16(p[2*i:], uint16(int16(v)))
	}
	if got == 0 && err == nil {
		err = io.EOF
	}
	return got * 2, err
}

// floatReader reads Vorbis float samples as S16LE bytes.
type floatReader struct {
	dec *oggvorbis.Reader
	buf []float32
}

func (r *floatReader) Read(p []byte) (int, error) {
	n := len(p) / 2
	if cap(r.buf) < n {
		r.buf = make([]float32, n)
	}
	got, err := r.dec.Read(r.buf[:n])
	for i, v := range r.buf[:got] {
		v = max(-1, min(1, v))
		binary.LittleEndian.PutUint16(p[2*i:], uint16(pcm.Saturate16(int32(v*32767))))
	}
	return got * 2, err
}
