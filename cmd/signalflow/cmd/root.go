package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:   "signalflow",
	Short: "Signalflow circuit tooling",
	Long: `signalflow runs and measures circuits from the command line.

Available commands:
  bench      Drive a circuit with concurrent producers and report its stats
  serve      Run a cortex with metrics and introspection until interrupted
  version    Print the version

Use "signalflow [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, "dotenv files to load before reading SIGNALFLOW_* variables (default .env)")
}
