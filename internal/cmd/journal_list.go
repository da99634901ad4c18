package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pacerhq/pacer/internal/core/store"
	"github.com/pacerhq/pacer/internal/output"
)

var (
	journalListOutput string
	journalListOut    string
	journalListOutDir string
	journalListAll    bool
	journalListGate   string
	journalListPrefix string
	journalListLimit  int
)

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded firings, newest first",
	Example: `  pacer journal list --gate search --limit 20
  pacer journal list --prefix user- --output-format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(journalListOutput)
		if err != nil {
			return err
		}

		query := store.JournalQuery{
			All:       journalListAll,
			Gate:      strings.TrimSpace(journalListGate),
			KeyPrefix: strings.TrimSpace(journalListPrefix),
			Limit:     journalListLimit,
		}
		if !query.All && query.Gate == "" && query.KeyPrefix == "" {
			query.All = true
		}
		if err := query.Validate(); err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListFirings(cmd.Context(), query)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatJournal(entries)
		if err != nil {
			return err
		}

		sink, err := openOutput(cmd, format, "journal.list")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	journalListCmd.Flags().StringVar(&journalListOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	journalListCmd.Flags().StringVar(&journalListOut, "out", "", "Write output to a file (default stdout)")
	journalListCmd.Flags().StringVar(&journalListOutDir, "out-dir", "", "Write output to a directory")
	journalListCmd.Flags().BoolVar(&journalListAll, "all", false, "List firings from every gate")
	journalListCmd.Flags().StringVar(&journalListGate, "gate", "", "List firings from one gate")
	journalListCmd.Flags().StringVar(&journalListPrefix, "prefix", "", "List firings whose key starts with prefix")
	journalListCmd.Flags().IntVar(&journalListLimit, "limit", 50, "Maximum entries to show (0 for no limit)")
}
