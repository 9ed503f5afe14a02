package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/hal"
)

var (
	dumpFormat string
	dumpBuses  []string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the device state",
	Long: `Print the device configuration, every stream, the shared mixers and
the call state. --bus opens bus outputs first so they show up in the dump.`,
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVar(&dumpFormat, "format", string(hal.EncodingYAML), "output format: yaml or msgpack")
	dumpCmd.Flags().StringSliceVar(&dumpBuses, "bus", nil, "bus address to open before dumping (repeatable)")
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	d, err := openDevice()
	if err != nil {
		return err
	}
	defer d.Close()

	format := pcm.Format{SampleRate: 48000, Channels: 2, Sample: pcm.S16LE}
	for _, bus := range dumpBuses {
		if _, err := d.OpenOutput(hal.OutputRequest{Device: hal.DeviceBus, Format: format, Address: bus}); err != nil {
			return fmt.Errorf("open bus %s: %w", bus, err)
		}
	}
	return d.Dump(cmd.OutOrStdout(), hal.Encoding(dumpFormat))
}
