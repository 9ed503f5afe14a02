package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/hal"
)

var (
	callDuration time.Duration
	callVolume   int
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Set up and tear down a hands-free call",
	Long: `Open the primary bus, enable the hands-free call, keep it up for
--duration and disable it again. The call state is printed while the
call is active.`,
	RunE: runCall,
}

func init() {
	callCmd.Flags().DurationVar(&callDuration, "duration", time.Second, "call duration")
	callCmd.Flags().IntVar(&callVolume, "volume", 5, "call volume")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	d, err := openDevice()
	if err != nil {
		return err
	}
	defer d.Close()

	primary := d.Config().PrimaryAddress
	if primary == "" {
		primary = "media"
	}
	format := pcm.Format{SampleRate: 48000, Channels: 2, Sample: pcm.S16LE}
	if _, err := d.OpenOutput(hal.OutputRequest{Device: hal.DeviceBus, Format: format, Address: primary}); err != nil {
		return fmt.Errorf("open primary bus %s: %w", primary, err)
	}

	params := fmt.Sprintf("%s=true;%s=%d", hal.ParamHFPEnable, hal.ParamHFPVolume, callVolume)
	if err := d.SetParametersContext(cmd.Context(), params); err != nil {
		return err
	}

	select {
	case <-time.After(callDuration):
	case <-cmd.Context().Done():
	}

	out := cmd.OutOrStdout()
	snap := d.Call().Snapshot()
	rows := [][]string{
		{"state", snap.State},
		{"session", snap.Session},
		{"ready", strings.Join(snap.Ready, ", ")},
		{"volume", strconv.Itoa(snap.Volume)},
	}
	if sim != nil {
		cfg := d.Config()
		rows = append(rows,
			[]string{"to phone", formatBytes(int64(len(sim.Written(cfg.HFPOut.Key()))))},
			[]string{"to speakers", formatBytes(int64(len(sim.Written(cfg.Output.Key()))))},
		)
	}
	printTable(out, "Call", []string{"KEY", "VALUE"}, rows)

	if err := d.SetParameters(hal.ParamHFPEnable + "=false"); err != nil {
		return err
	}
	printSuccess(out, "Call ended (%s)", d.Call().State())
	return nil
}
