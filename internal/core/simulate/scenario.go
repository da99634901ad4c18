// Package simulate replays a timed sequence of calls through a pace wrapper on
// a manual clock and reports which calls fired and when.
package simulate

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pacerhq/pacer/internal/core/pace"
)

// ErrInvalidScenario is wrapped by every validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

// Call is one invocation of the wrapped function at an offset from the start
// of the scenario.
type Call struct {
	At  time.Duration `json:"at"`
	Arg string        `json:"arg"`
}

// Scenario describes a wrapper and the calls replayed through it.
type Scenario struct {
	Name   string        `json:"name,omitempty"`
	Kind   pace.Kind     `json:"kind"`
	Window time.Duration `json:"window"`
	Calls  []Call        `json:"calls"`
}

type scenarioFile struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Window string `yaml:"window"`
	Calls  []struct {
		At  string `yaml:"at"`
		Arg string `yaml:"arg"`
	} `yaml:"calls"`
}

// Validate checks the kind, the window and the call offsets.
func (s Scenario) Validate() error {
	if _, err := pace.ParseKind(string(s.Kind)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if s.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidScenario, s.Window)
	}
	if len(s.Calls) == 0 {
		return fmt.Errorf("%w: no calls", ErrInvalidScenario)
	}
	var prev time.Duration
	for i, c := range s.Calls {
		if c.At < 0 {
			return fmt.Errorf("%w: call %d has negative offset %s", ErrInvalidScenario, i, c.At)
		}
		if c.At < prev {
			return fmt.Errorf("%w: call %d at %s is earlier than call %d at %s", ErrInvalidScenario, i, c.At, i-1, prev)
		}
		prev = c.At
	}
	return nil
}

// New builds a scenario whose call arguments are derived from their offsets.
func New(kind pace.Kind, window time.Duration, offsets []time.Duration) Scenario {
	calls := make([]Call, 0, len(offsets))
	for _, at := range offsets {
		calls = append(calls, Call{At: at, Arg: defaultArg(at)})
	}
	return Scenario{Kind: kind, Window: window, Calls: calls}
}

// ParseOffsets parses a comma-separated list of offsets. Bare numbers are
// milliseconds; anything else must be a Go duration ("1.5s", "150ms").
func ParseOffsets(value string) ([]time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: no offsets", ErrInvalidScenario)
	}
	parts := strings.Split(value, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := ParseOffset(part)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseOffset parses a single offset. Bare numbers are milliseconds.
func ParseOffset(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty offset", ErrInvalidScenario)
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		ns := n * float64(time.Millisecond)
		if math.IsNaN(ns) || ns >= math.MaxInt64 || ns <= math.MinInt64 {
			return 0, fmt.Errorf("%w: offset %q out of range", ErrInvalidScenario, value)
		}
		return time.Duration(ns), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: bad offset %q", ErrInvalidScenario, value)
	}
	return d, nil
}

// Parse decodes a YAML scenario.
func Parse(data []byte) (Scenario, error) {
	var raw scenarioFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}

	kind, err := pace.ParseKind(raw.Kind)
	if err != nil {
		return Scenario{}, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	window, err := ParseOffset(raw.Window)
	if err != nil {
		return Scenario{}, fmt.Errorf("window: %w", err)
	}

	s := Scenario{Name: strings.TrimSpace(raw.Name), Kind: kind, Window: window}
	for i, c := range raw.Calls {
		at, err := ParseOffset(c.At)
		if err != nil {
			return Scenario{}, fmt.Errorf("call %d: %w", i, err)
		}
		arg := c.Arg
		if arg == "" {
			arg = defaultArg(at)
		}
		s.Calls = append(s.Calls, Call{At: at, Arg: arg})
	}
	return s, s.Validate()
}

// Load reads and decodes a YAML scenario file.
func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied scenario path
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

func defaultArg(at time.Duration) string {
	return "call@" + at.String()
}
