package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/pacerhq/pacer/internal/core/gate"
	"github.com/pacerhq/pacer/internal/core/simulate"
	"github.com/pacerhq/pacer/internal/core/store"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatReport renders a simulation report as Markdown.
func (f *MarkdownFormatter) FormatReport(report *simulate.Report) (string, error) {
	if report == nil {
		return "", nil
	}

	firedAt := firingTimes(report)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(reportTitle(report))))
	sb.WriteString("| # | At | Arg | Outcome | Fired At |\n")
	sb.WriteString("|---|----|-----|---------|----------|\n")
	for _, c := range report.Calls {
		fired := "-"
		if at, ok := firedAt[c.Index]; ok {
			fired = at
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			c.Index,
			c.At,
			escapeMarkdownCell(c.Arg),
			c.Outcome,
			fired,
		))
	}
	sb.WriteString(fmt.Sprintf("\n**Summary**: %s\n", eventSummary(report)))
	return sb.String(), nil
}

// FormatJournal renders journal entries as Markdown.
func (f *MarkdownFormatter) FormatJournal(entries []store.JournalEntry) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Fired At | Gate | Key | Kind | Latency |\n")
	sb.WriteString("|----------|------|-----|------|---------|\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			e.Firing.FiredAt.Format(time.RFC3339Nano),
			escapeMarkdownCell(e.Firing.Event.Gate),
			escapeMarkdownCell(e.Firing.Event.Key),
			e.Firing.Kind,
			e.Firing.Latency(),
		))
	}
	return sb.String(), nil
}

// FormatGates renders gate specs as Markdown.
func (f *MarkdownFormatter) FormatGates(specs []gate.Spec) (string, error) {
	var sb strings.Builder
	sb.WriteString("| Gate | Kind | Window | Shared |\n")
	sb.WriteString("|------|------|--------|--------|\n")
	for _, s := range specs {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(s.Name), s.Kind, s.Window, yesNo(s.Shared)))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
