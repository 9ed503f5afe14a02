package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/hal"
)

var (
	captureDevice   string
	captureDuration time.Duration
	captureOut      string
	captureRate     int
	captureChannels int
)

var captureDevices = map[string]hal.DeviceType{
	"mic": hal.DeviceBuiltinMic,
	"fm":  hal.DeviceFMTuner,
	"sco": hal.DeviceBluetoothSCO,
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record an input device to a raw file",
	Long: `Record --duration of S16LE PCM from an input device into --out.
Devices are mic, fm and sco. An --out ending in .wav gets a WAV header,
anything else is written as raw PCM.`,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().StringVar(&captureDevice, "device", "mic", "input device: mic, fm or sco")
	captureCmd.Flags().DurationVar(&captureDuration, "duration", time.Second, "capture duration")
	captureCmd.Flags().StringVarP(&captureOut, "out", "o", "", "output file (required)")
	captureCmd.Flags().IntVar(&captureRate, "rate", 16000, "sample rate")
	captureCmd.Flags().IntVar(&captureChannels, "channels", 1, "channel count")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	if captureOut == "" {
		return fmt.Errorf("output file is required, use --out")
	}
	device, ok := captureDevices[captureDevice]
	if !ok {
		return fmt.Errorf("unknown input device %q", captureDevice)
	}

	d, err := openDevice()
	if err != nil {
		return err
	}
	defer d.Close()

	format := pcm.Format{SampleRate: captureRate, Channels: captureChannels, Sample: pcm.S16LE}
	in, err := d.OpenInput(hal.InputRequest{Device: device, Format: format})
	if err != nil {
		return fmt.Errorf("open %s: %w", captureDevice, err)
	}

	w, err := createCaptureFile(captureOut, in.Format())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	want := int64(format.BytesInDuration(captureDuration))
	buf := make([]byte, in.BufferSize())
	var total int64
	for total < want && ctx.Err() == nil {
		p := buf[:min(int64(len(buf)), want-total)]
		n, err := in.Read(p)
		if err != nil {
			w.Close()
			return fmt.Errorf("read %s: %w", captureDevice, err)
		}
		if err := w.Write(p[:n]); err != nil {
			w.Close()
			return fmt.Errorf("failed to write output: %w", err)
		}
		total += int64(n)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	pos, _ := in.CapturePosition()
	out := cmd.OutOrStdout()
	printTable(out, "Input", []string{"DEVICE", "FORMAT", "HARDWARE", "CAPTURED"}, [][]string{{
		captureDevice,
		in.Format().String(),
		in.Hardware().String(),
		strconv.FormatInt(pos, 10),
	}})
	printSuccess(out, "Wrote %s to %s", formatBytes(total), captureOut)
	return nil
}
