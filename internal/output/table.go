package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pacerhq/pacer/internal/core/gate"
	"github.com/pacerhq/pacer/internal/core/simulate"
	"github.com/pacerhq/pacer/internal/core/store"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatReport renders one row per call with its outcome and firing time.
func (f *TableFormatter) FormatReport(report *simulate.Report) (string, error) {
	if report == nil {
		return "", nil
	}

	firedAt := firingTimes(report)

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(reportTitle(report))
	t.AppendHeader(table.Row{"#", "At", "Arg", "Outcome", "Fired At"})
	for _, c := range report.Calls {
		fired := "-"
		if at, ok := firedAt[c.Index]; ok {
			fired = at
		}
		t.AppendRow(table.Row{c.Index, c.At.String(), c.Arg, string(c.Outcome), fired})
	}
	t.AppendFooter(table.Row{"", "", "", eventSummary(report), ""})
	return t.Render(), nil
}

// FormatJournal renders journal entries, newest first.
func (f *TableFormatter) FormatJournal(entries []store.JournalEntry) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Fired At", "Gate", "Key", "Kind", "Latency", "Payload"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.Firing.FiredAt.Format(time.RFC3339Nano),
			e.Firing.Event.Gate,
			e.Firing.Event.Key,
			string(e.Firing.Kind),
			e.Firing.Latency().String(),
			truncate(string(e.Firing.Event.Payload), 48),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("%d entr(ies)", len(entries))})
	return t.Render(), nil
}

// FormatGates renders the configured gates.
func (f *TableFormatter) FormatGates(specs []gate.Spec) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Gate", "Kind", "Window", "Max Keys", "Shared"})
	for _, s := range specs {
		maxKeys := s.MaxKeys
		if maxKeys <= 0 {
			maxKeys = gate.DefaultMaxKeys
		}
		t.AppendRow(table.Row{s.Name, string(s.Kind), s.Window.String(), maxKeys, yesNo(s.Shared)})
	}
	return t.Render(), nil
}

func firingTimes(report *simulate.Report) map[int]string {
	out := make(map[int]string, len(report.Firings))
	for _, f := range report.Firings {
		out[f.Call] = f.At.String()
	}
	return out
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
