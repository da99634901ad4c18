package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pacerhq/pacer/internal/core/store"
	"github.com/pacerhq/pacer/internal/output"
)

var (
	journalResetAll    bool
	journalResetGate   string
	journalResetPrefix string
	journalResetYes    bool
	journalResetDryRun bool
	journalResetOutput string
	journalResetOut    string
	journalResetOutDir string
)

var journalResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete recorded firings",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(journalResetOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := store.JournalQuery{
			All:       journalResetAll,
			Gate:      strings.TrimSpace(journalResetGate),
			KeyPrefix: strings.TrimSpace(journalResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}

		if query.All && !journalResetYes && !journalResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountFirings(cmd.Context(), query)
		if err != nil {
			return err
		}

		sink, err := openOutput(cmd, format, "journal.reset")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if journalResetDryRun {
			return writeJournalResetResult(format, sink.writer, matched, 0, true)
		}

		deleted, err := db.ResetFirings(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeJournalResetResult(format, sink.writer, matched, deleted, false)
	},
}

type journalResetResult struct {
	Matched int   `json:"matched"`
	Deleted int64 `json:"deleted"`
	DryRun  bool  `json:"dry_run"`
}

func writeJournalResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	result := journalResetResult{Matched: matched, Deleted: deleted, DryRun: dryRun}

	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would delete %d journal entr(ies)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d journal entr(ies)\n", deleted, matched)
	return err
}

func init() {
	journalResetCmd.Flags().BoolVar(&journalResetAll, "all", false, "Delete every recorded firing")
	journalResetCmd.Flags().StringVar(&journalResetGate, "gate", "", "Delete firings from one gate")
	journalResetCmd.Flags().StringVar(&journalResetPrefix, "prefix", "", "Delete firings whose key starts with prefix")
	journalResetCmd.Flags().BoolVar(&journalResetYes, "yes", false, "Confirm destructive reset")
	journalResetCmd.Flags().BoolVar(&journalResetDryRun, "dry-run", false, "Show what would be deleted")
	journalResetCmd.Flags().StringVar(&journalResetOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	journalResetCmd.Flags().StringVar(&journalResetOut, "out", "", "Write output to a file (default stdout)")
	journalResetCmd.Flags().StringVar(&journalResetOutDir, "out-dir", "", "Write output to a directory")
}
