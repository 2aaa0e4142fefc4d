package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/mergebot/core/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mergebot %s (commit %s", buildinfo.Version, buildinfo.Commit)
		if buildinfo.Date != "" {
			fmt.Fprintf(cmd.OutOrStdout(), ", built %s", buildinfo.Date)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ")")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
