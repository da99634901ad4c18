package output

import (
	"fmt"
	"strings"

	"github.com/pacerhq/pacer/internal/core/gate"
	"github.com/pacerhq/pacer/internal/core/simulate"
	"github.com/pacerhq/pacer/internal/core/store"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders simulation reports, journal listings and gate tables.
type Formatter interface {
	FormatReport(report *simulate.Report) (string, error)
	FormatJournal(entries []store.JournalEntry) (string, error)
	FormatGates(specs []gate.Spec) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// FormatReports renders several reports, separated by blank lines.
func FormatReports(format Format, reports []*simulate.Report) (string, error) {
	if format == FormatJSON {
		views := make([]reportView, 0, len(reports))
		for _, r := range reports {
			if r != nil {
				views = append(views, newReportView(r))
			}
		}
		return marshal(views, true)
	}

	formatter := NewFormatter(format)
	rendered := make([]string, 0, len(reports))
	for _, r := range reports {
		if r == nil {
			continue
		}
		value, err := formatter.FormatReport(r)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		rendered = append(rendered, value)
	}
	return strings.Join(rendered, "\n\n"), nil
}

func reportTitle(r *simulate.Report) string {
	title := fmt.Sprintf("%s %s", r.Kind, r.Window)
	if r.Name != "" {
		title = r.Name + " (" + title + ")"
	}
	return title
}

func eventSummary(r *simulate.Report) string {
	parts := make([]string, 0, len(r.Events))
	for _, outcome := range outcomeOrder {
		if n := r.Events[outcome]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, outcome))
		}
	}
	return fmt.Sprintf("%d/%d fired; %s", len(r.Firings), len(r.Calls), strings.Join(parts, ", "))
}
