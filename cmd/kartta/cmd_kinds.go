package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kartta/pkg/resource"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the service kinds that can be scanned",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, k := range resource.AllKinds() {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), k); err != nil {
				return err
			}
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Kartta %s - cloud resource inventory\n", version)
	},
}

func init() {
	rootCmd.AddCommand(kindsCmd, versionCmd)
}
