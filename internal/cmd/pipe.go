package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pacerhq/pacer/internal/config"
	"github.com/pacerhq/pacer/internal/core"
	"github.com/pacerhq/pacer/internal/core/gate"
	"github.com/pacerhq/pacer/internal/core/pace"
	"github.com/pacerhq/pacer/internal/core/simulate"
	"github.com/pacerhq/pacer/internal/core/sink"
	"github.com/pacerhq/pacer/internal/observability"
)

// maxPipeLine bounds a single input line.
const maxPipeLine = 1 << 20

var pipeCmd = &cobra.Command{
	Use:   "pipe",
	Short: "Shape a stream of JSON events from stdin to stdout",
	Long: `Read newline-delimited JSON events from stdin, pass each through its gate
and write the events that fire to stdout as JSON lines.

Input lines look like {"gate": "search", "key": "user-1", "payload": {...}}.
"gate" may be omitted when --gate is set. With --kind and --window a single
ad-hoc gate is used instead of the configured ones.

Examples:
  # Debounce keystrokes per user
  tail -f events.jsonl | pacer pipe --kind debounce --window 300ms

  # Use the gates from the config file and keep a journal
  pacer pipe --journal < events.jsonl`,
	RunE: runPipe,
}

func init() {
	rootCmd.AddCommand(pipeCmd)

	pipeCmd.Flags().String("gate", "", "Gate for lines without a \"gate\" field (ad-hoc gate name with --kind)")
	pipeCmd.Flags().String("kind", "", "Ad-hoc gate kind: throttle|debounce|coalesce")
	pipeCmd.Flags().String("window", "", "Ad-hoc gate window (e.g. 300ms; bare numbers are ms)")
	pipeCmd.Flags().Bool("journal", false, "Also record firings in the journal")
	pipeCmd.Flags().Bool("flush-on-eof", true, "Deliver pending events when input ends instead of dropping them")
}

// pipeLine is one input event.
type pipeLine struct {
	Gate    string          `json:"gate"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// pipeStats summarizes a pipe run.
type pipeStats struct {
	Lines    int
	Rejected int
	Outcomes map[pace.Outcome]int
}

func runPipe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := observability.CLILogger

	gateName, _ := cmd.Flags().GetString("gate")
	kindFlag, _ := cmd.Flags().GetString("kind")
	windowFlag, _ := cmd.Flags().GetString("window")
	journal, _ := cmd.Flags().GetBool("journal")
	flushOnEOF, _ := cmd.Flags().GetBool("flush-on-eof")

	cfg, err := pipeConfig(ctx, strings.TrimSpace(gateName), kindFlag, windowFlag)
	if err != nil {
		return err
	}
	if len(cfg.Gates) == 0 {
		return errors.New("no gates configured; declare gates in the config file or use --kind and --window")
	}
	cfg.Sinks.Journal = journal
	if strings.TrimSpace(kindFlag) != "" {
		gateName = cfg.Gates[0].Name
	}

	rl, err := newRelay(ctx, cfg, nil, relayOptions{
		skipConfigured: true,
		extra:          []sink.Sink{sink.NewJSONLinesSink(cmd.OutOrStdout())},
	})
	if err != nil {
		return err
	}

	stats, err := pipeEvents(ctx, cmd.InOrStdin(), rl.registry, gateName, logger)
	closeErr := rl.close(flushOnEOF)
	if err != nil {
		return err
	}

	if logger != nil {
		logger.Debug("Pipe finished",
			zap.Int("lines", stats.Lines),
			zap.Int("rejected", stats.Rejected),
			zap.Int("fired", stats.Outcomes[pace.OutcomeFired]),
			zap.Int("scheduled", stats.Outcomes[pace.OutcomeScheduled]),
			zap.Int("dropped", stats.Outcomes[pace.OutcomeDropped]),
			zap.Bool("flushed", flushOnEOF))
	}
	return closeErr
}

func pipeConfig(ctx context.Context, gateName, kindFlag, windowFlag string) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(kindFlag) == "" {
		return cfg, nil
	}

	kind, err := pace.ParseKind(kindFlag)
	if err != nil {
		return nil, err
	}
	window := pace.DefaultFrame
	if strings.TrimSpace(windowFlag) != "" {
		window, err = simulate.ParseOffset(windowFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid --window: %w", err)
		}
	} else if kind != pace.KindCoalesce {
		return nil, errors.New("--window is required with --kind")
	}
	if gateName == "" {
		gateName = "pipe"
	}

	adhoc := *cfg
	adhoc.Gates = []config.GateConfig{{Name: gateName, Kind: string(kind), Window: window}}
	return &adhoc, nil
}

// pipeEvents feeds each input line to its gate until r is exhausted or ctx
// ends. Bad lines are logged and skipped.
func pipeEvents(ctx context.Context, r io.Reader, registry *gate.Registry, defaultGate string, logger *logging.Logger) (pipeStats, error) {
	stats := pipeStats{Outcomes: map[pace.Outcome]int{}}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxPipeLine)

	reject := func(line int, msg string, err error) {
		stats.Rejected++
		if logger != nil {
			logger.Warn(msg, zap.Int("line", line), zap.Error(err))
		}
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		stats.Lines++

		var in pipeLine
		if err := json.Unmarshal([]byte(raw), &in); err != nil {
			reject(stats.Lines, "Skipping malformed line", err)
			continue
		}
		name := in.Gate
		if name == "" {
			name = defaultGate
		}
		g, err := registry.Get(name)
		if err != nil {
			reject(stats.Lines, "Skipping event for unknown gate", err)
			continue
		}
		decision, err := g.Submit(ctx, core.Event{Key: in.Key, Payload: in.Payload})
		if err != nil {
			reject(stats.Lines, "Skipping rejected event", err)
			continue
		}
		stats.Outcomes[decision.Outcome]++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read input: %w", err)
	}
	return stats, nil
}
