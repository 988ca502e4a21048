package cmd

import (
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "era",
	Short: "Emergency resource allocation service",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.AddCommand(allocateCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }
