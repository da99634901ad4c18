package output

import (
	"encoding/json"

	"github.com/pacerhq/pacer/internal/core/gate"
	"github.com/pacerhq/pacer/internal/core/pace"
	"github.com/pacerhq/pacer/internal/core/simulate"
	"github.com/pacerhq/pacer/internal/core/store"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

var outcomeOrder = []pace.Outcome{
	pace.OutcomeFired,
	pace.OutcomeScheduled,
	pace.OutcomeDropped,
	pace.OutcomeSuperseded,
	pace.OutcomeCancelled,
}

type firingView struct {
	At   string `json:"at"`
	Arg  string `json:"arg"`
	Call int    `json:"call"`
}

type callView struct {
	Index   int          `json:"index"`
	At      string       `json:"at"`
	Arg     string       `json:"arg"`
	Outcome pace.Outcome `json:"outcome"`
}

// reportView spells durations the way scenarios are written.
type reportView struct {
	Name    string               `json:"name,omitempty"`
	Kind    pace.Kind            `json:"kind"`
	Window  string               `json:"window"`
	Firings []firingView         `json:"firings"`
	Calls   []callView           `json:"calls"`
	Events  map[pace.Outcome]int `json:"events"`
}

func newReportView(r *simulate.Report) reportView {
	v := reportView{
		Name:    r.Name,
		Kind:    r.Kind,
		Window:  r.Window.String(),
		Firings: make([]firingView, 0, len(r.Firings)),
		Calls:   make([]callView, 0, len(r.Calls)),
		Events:  r.Events,
	}
	for _, f := range r.Firings {
		v.Firings = append(v.Firings, firingView{At: f.At.String(), Arg: f.Arg, Call: f.Call})
	}
	for _, c := range r.Calls {
		v.Calls = append(v.Calls, callView{Index: c.Index, At: c.At.String(), Arg: c.Arg, Outcome: c.Outcome})
	}
	return v
}

type gateView struct {
	Name    string    `json:"name"`
	Kind    pace.Kind `json:"kind"`
	Window  string    `json:"window"`
	MaxKeys int       `json:"max_keys"`
	Shared  bool      `json:"shared"`
}

// FormatReport renders a simulation report as JSON.
func (f *JSONFormatter) FormatReport(report *simulate.Report) (string, error) {
	if report == nil {
		return "", nil
	}
	return marshal(newReportView(report), f.Indent)
}

// FormatJournal renders journal entries as JSON.
func (f *JSONFormatter) FormatJournal(entries []store.JournalEntry) (string, error) {
	if entries == nil {
		entries = []store.JournalEntry{}
	}
	return marshal(entries, f.Indent)
}

// FormatGates renders gate specs as JSON.
func (f *JSONFormatter) FormatGates(specs []gate.Spec) (string, error) {
	views := make([]gateView, 0, len(specs))
	for _, s := range specs {
		views = append(views, gateView{Name: s.Name, Kind: s.Kind, Window: s.Window.String(), MaxKeys: s.MaxKeys, Shared: s.Shared})
	}
	return marshal(views, f.Indent)
}

func marshal(v any, indent bool) (string, error) {
	var (
		data []byte
		err  error
	)

	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
