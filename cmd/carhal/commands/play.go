package commands

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/hal"
	"github.com/haivivi/carhal/pkg/stream"
)

var (
	playBuses    []string
	playFreq     float64
	playDuration time.Duration
	playRate     int
	playChannels int
	playPath     string
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play test tones on bus outputs",
	Long: `Open one output per --bus and write a sine tone to each for --duration.
Each further bus plays one octave higher than the previous one.

With --file the first bus plays a .wav, .mp3 or .ogg file instead, in the
file's own rate and channel count, for at most --duration.`,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().StringSliceVar(&playBuses, "bus", []string{"media"}, "bus address (repeatable)")
	playCmd.Flags().Float64Var(&playFreq, "freq", 440, "tone frequency in Hz")
	playCmd.Flags().DurationVar(&playDuration, "duration", 2*time.Second, "play duration")
	playCmd.Flags().IntVar(&playRate, "rate", 48000, "sample rate")
	playCmd.Flags().IntVar(&playChannels, "channels", 2, "channel count")
	playCmd.Flags().StringVarP(&playPath, "file", "f", "", "audio file for the first bus")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	d, err := openDevice()
	if err != nil {
		return err
	}
	defer d.Close()

	format := pcm.Format{SampleRate: playRate, Channels: playChannels, Sample: pcm.S16LE}
	sources := make([]io.Reader, len(playBuses))
	formats := make([]pcm.Format, len(playBuses))
	for i := range playBuses {
		sources[i] = pcm.NewTone(format, playFreq*float64(int(1)<<i), 0.3)
		formats[i] = format
	}
	if playPath != "" && len(playBuses) > 0 {
		pf, err := openPlayFile(playPath)
		if err != nil {
			return err
		}
		defer pf.Close()
		sources[0], formats[0] = pf, pf.format
	}

	outputs := make([]*stream.Output, 0, len(playBuses))
	for i, bus := range playBuses {
		o, err := d.OpenOutput(hal.OutputRequest{Device: hal.DeviceBus, Format: formats[i], Address: bus})
		if err != nil {
			return fmt.Errorf("open bus %s: %w", bus, err)
		}
		outputs = append(outputs, o)
	}

	ctx := cmd.Context()
	deadline := time.Now().Add(playDuration)
	var wg sync.WaitGroup
	for i, o := range outputs {
		src := sources[i]
		wg.Go(func() {
			buf := make([]byte, o.BufferSize())
			fs := o.Format().FrameSize()
			for time.Now().Before(deadline) && ctx.Err() == nil {
				n, err := io.ReadFull(src, buf)
				n -= n % fs
				if n > 0 {
					if _, werr := o.Write(buf[:n]); werr != nil {
						return
					}
				}
				if err != nil {
					return
				}
			}
		})
	}
	wg.Wait()

	rows := make([][]string, 0, len(outputs))
	for _, o := range outputs {
		pos, _ := o.PresentationPosition()
		rows = append(rows, []string{
			o.Address(),
			o.Format().String(),
			strconv.FormatUint(o.FramesWritten(), 10),
			strconv.FormatUint(pos, 10),
			o.Latency().String(),
		})
	}
	printTable(cmd.OutOrStdout(), "Outputs", []string{"BUS", "FORMAT", "WRITTEN", "PRESENTED", "LATENCY"}, rows)
	return nil
}
