package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "kartta",
		Short: "Cloud resource inventory",
		Long: `Kartta - cloud resource inventory

Kartta scans every configured (region, service) pair concurrently and keeps
the result as an immutable snapshot. A failing pair never hides the rest:
the snapshot records what was found and which targets failed.

Query it once from the command line or serve it over HTTP.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Kartta {{.Version}} - cloud resource inventory
`)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
