package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pacerhq/pacer/internal/core/pace"
	"github.com/pacerhq/pacer/internal/core/simulate"
	"github.com/pacerhq/pacer/internal/output"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay call timings through a wrapper on a virtual clock",
	Long: `Replay a sequence of call offsets through a throttle, debounce or coalesce
wrapper and report which calls fired and when. Runs on a virtual clock, so
the result is exact and immediate.

Examples:
  # Throttle with a 100ms window
  pacer simulate --kind throttle --window 100ms --at 0,50,150

  # Debounce burst; bare numbers are milliseconds
  pacer simulate --kind debounce --window 100 --at 0,30,60

  # Scenarios from files
  pacer simulate --file burst.yaml --file gap.yaml --output-format json`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().String("kind", "", "Wrapper kind: throttle|debounce|coalesce")
	simulateCmd.Flags().String("window", "", "Window (e.g. 100ms, 1s; bare numbers are ms; coalesce defaults to one frame)")
	simulateCmd.Flags().String("at", "", "Comma-separated call offsets (e.g. 0,30,60 or 0s,1.5s)")
	simulateCmd.Flags().StringArray("file", nil, "Scenario YAML file (repeatable)")
	simulateCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	simulateCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	simulateCmd.Flags().String("out-dir", "", "Write output to a directory")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}

	scenarios, err := simulateScenarios(cmd)
	if err != nil {
		return err
	}

	reports := make([]*simulate.Report, 0, len(scenarios))
	for _, s := range scenarios {
		report, err := simulate.Run(s)
		if err != nil {
			if s.Name != "" {
				return fmt.Errorf("scenario %s: %w", s.Name, err)
			}
			return err
		}
		reports = append(reports, report)
	}

	rendered, err := output.FormatReports(format, reports)
	if err != nil {
		return err
	}

	name := "simulate"
	if len(reports) == 1 && reports[0].Name != "" {
		name = sanitizeFilename(reports[0].Name)
	}
	sink, err := openOutput(cmd, format, name)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	_, err = fmt.Fprintln(sink.writer, rendered)
	return err
}

func simulateScenarios(cmd *cobra.Command) ([]simulate.Scenario, error) {
	files, _ := cmd.Flags().GetStringArray("file")
	kindFlag, _ := cmd.Flags().GetString("kind")
	windowFlag, _ := cmd.Flags().GetString("window")
	atFlag, _ := cmd.Flags().GetString("at")

	inline := strings.TrimSpace(kindFlag) != "" || strings.TrimSpace(atFlag) != ""
	if len(files) > 0 && inline {
		return nil, errors.New("--file cannot be combined with --kind/--at")
	}

	if len(files) > 0 {
		scenarios := make([]simulate.Scenario, 0, len(files))
		for _, path := range files {
			s, err := simulate.Load(path)
			if err != nil {
				return nil, err
			}
			if s.Name == "" {
				s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			scenarios = append(scenarios, s)
		}
		return scenarios, nil
	}

	if !inline {
		return nil, errors.New("provide --kind and --at, or --file")
	}

	kind, err := pace.ParseKind(kindFlag)
	if err != nil {
		return nil, err
	}

	var window time.Duration
	switch {
	case strings.TrimSpace(windowFlag) != "":
		window, err = simulate.ParseOffset(windowFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid --window: %w", err)
		}
	case kind == pace.KindCoalesce:
		window = pace.DefaultFrame
	default:
		return nil, errors.New("--window is required")
	}

	offsets, err := simulate.ParseOffsets(atFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid --at: %w", err)
	}
	return []simulate.Scenario{simulate.New(kind, window, offsets)}, nil
}
