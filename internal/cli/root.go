package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hession/citysim/internal/config"
	"github.com/hession/citysim/internal/logger"
)

// Version is the citysim release
const Version = "0.1.0"

// NewRootCmd builds the command tree
func NewRootCmd(opts ...Option) *cobra.Command {
	a := newApp(opts...)
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "citysim",
		Short: "CitySim - a sandbox of simulated citizens",
		Long: `CitySim grows a city of generated citizens and lets them live.

It can:
  • Generate citizens with personalities, families and friendships
  • Simulate multi-party conversations that leave memories behind
  • Let relationships grow and sour with every interaction
  • Chat with any citizen in character
  • Keep the simulation running on a schedule`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configDir != "" {
				config.SetConfigDir(configDir)
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ./config)")
	rootCmd.SetOut(a.out)

	rootCmd.AddCommand(
		newInitCmd(a),
		newAddCmd(a),
		newInteractCmd(a),
		newScenarioCmd(a),
		newRunCmd(a),
		newChatCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newStatsCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return rootCmd
}

// Execute runs the command tree and exits non-zero on error
func Execute() {
	err := NewRootCmd().Execute()
	logger.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newConfigCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, a.cfg.String())

			path, _ := config.ConfigPath()
			fmt.Fprintf(a.out, "\nConfig file path: %s\n", path)
			return nil
		},
	}
}

func newVersionCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "CitySim v%s\n", Version)
		},
	}
}
