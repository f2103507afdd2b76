// Package cmd implements the chronicled command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "chronicled",
	Short: "Chronicle event collector",
	Long: `chronicled collects observability events from agent instrumentation
hooks, batches them into time windows, and serves the live feed, stream
and durable history.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/chronicle/config.yaml)")
}
