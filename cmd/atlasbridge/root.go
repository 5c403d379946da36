package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "atlasbridge",
	Short: "AtlasBridge - policy decision engine for AI-tool prompt mediation",
	Long: `AtlasBridge mediates interactive prompts raised by AI coding tools.

It evaluates each prompt against an ordered rule policy, escalates risky
actions to a human approver over a held webhook, and records every decision
in an append-only hash-chained trace:
  - Ordered first-match rule evaluation with autonomy modes
  - Held approval webhooks with an exactly-once decide-or-timeout outcome
  - Tamper-evident decision trace with on-demand integrity verification`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
