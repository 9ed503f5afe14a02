package commands

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/haivivi/carhal/pkg/audio/pcm"
)

// captureFile receives S16LE frames from the capture loop.
type captureFile interface {
	Write(p []byte) error
	Close() error
}

// createCaptureFile creates path as a WAV file when it ends in .wav and as
// headerless PCM otherwise.
func createCaptureFile(path string, format pcm.Format) (captureFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return &wavFile{
			f:   f,
			enc: wav.NewEncoder(f, format.SampleRate, 16, format.Channels, 1),
			buf: &audio.IntBuffer{
				Format:         &audio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
				SourceBitDepth: 16,
			},
		}, nil
	}
	return &rawFile{f: f, w: bufio.NewWriter(f)}, nil
}

type rawFile struct {
	f *os.File
	w *bufio.Writer
}

func (r *rawFile) Write(p []byte) error {
	_, err := r.w.Write(p)
	return err
}

func (r *rawFile) Close() error {
	if err := r.w.Flush(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}

type wavFile struct {
	f   *os.File
	enc *wav.Encoder
	buf *audio.IntBuffer
}

func (w *wavFile) Write(p []byte) error {
	w.buf.Data = w.buf.Data[:0]
	for i := 0; i+1 < len(p); i += 2 {
		w.buf.Data = append(w.buf.Data, int(int16(binary.LittleEndian.Uint16(p[i:]))))
	}
	return w.enc.Write(w.buf)
}

// Close finalizes the WAV header sizes.
func (w *wavFile) Close() error {
	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
