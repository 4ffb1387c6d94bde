package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	storeKind string
	dbPath    string
)

var rootCmd = &cobra.Command{
	Use:   "faultlinectl",
	Short: "Fault-injection campaign controller",
	Long: `Drives voltage/electromagnetic glitching campaigns: arms the glitch
hardware, waits for the target's trigger condition, emits the pulse, reads
and classifies the target's reaction, and adapts the searched parameters.

Examples:
  faultlinectl run --config campaign.json      # run a campaign from a config file
  faultlinectl bins --config campaign.json     # best performing parameter bins
  faultlinectl export --out experiments.csv    # dump the experiment log`,
	Version: "0.3.0",
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "", "experiment store backend (memory, sqlite)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "experiment database path")
}
