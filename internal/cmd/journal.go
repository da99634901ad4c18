package cmd

import "github.com/spf13/cobra"

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect and prune recorded firings",
}

func init() {
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalResetCmd)
	rootCmd.AddCommand(journalCmd)
}
