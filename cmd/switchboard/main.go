// Package main provides the switchboard command line client.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	noColor  bool
	flagPort int
)

var rootCmd = &cobra.Command{
	Use:          "switchboard",
	Short:        "Query a workspace through the switchboard worker",
	Long:         "switchboard routes free-text questions against a workspace of tables and pages and prints the structured answer.",
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "worker port (defaults to SWITCHBOARD_WORKER_PORT or 38180)")

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
