package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/carhal/pkg/audio/pcm"
	"github.com/haivivi/carhal/pkg/audio/pcmdev"
	"github.com/haivivi/carhal/pkg/hal"
)

// Backend names.
const (
	backendSim  = "sim"
	backendALSA = "alsa"
)

var (
	// Global flags
	verbose    bool
	configPath string
	backend    string

	// sim is the simulated device set of the current invocation, nil on
	// ALSA.
	sim *pcmdev.Sim
)

var rootCmd = &cobra.Command{
	Use:   "carhal",
	Short: "Car audio HAL test tool",
	Long: `carhal - exercise the car audio device from the command line.

The device is configured from a YAML file (--config); missing keys keep
their defaults. The sim backend runs every PCM device in memory, the alsa
backend opens the real cards.

Examples:
  # Play a tone on two buses for two seconds
  carhal play --bus media --bus nav --duration 2s

  # Record the microphone
  carhal capture --device mic --duration 1s --out mic.raw

  # Bring a hands-free call up and down on the simulator
  carhal call --duration 1s

  # Print the device state
  carhal dump --format yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "device configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", backendSim, "PCM backend: sim or alsa")
}

// loadConfig returns the configuration named by --config, or the defaults.
func loadConfig() (hal.Config, error) {
	if configPath == "" {
		return hal.DefaultConfig(), nil
	}
	return hal.LoadConfig(configPath)
}

// openDevice builds the device on the selected backend. The caller closes
// it.
func openDevice() (*hal.Device, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	var opener pcmdev.Opener
	switch backend {
	case backendSim:
		sim = pcmdev.NewSim()
		// Capture devices hear a tone so recordings are not silent.
		for i, hw := range []pcmdev.Config{cfg.Input, cfg.FM, cfg.HFPIn} {
			sim.SetSource(hw.Key(), pcm.NewTone(hw.Format(), 440*float64(i+1), 0.2))
		}
		opener = sim
	case backendALSA:
		sim = nil
		opener = pcmdev.ALSA{}
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s or %s)", backend, backendSim, backendALSA)
	}
	slog.Debug("carhal: device", "backend", backend, "config", configPath)
	return hal.New(cfg, opener), nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
