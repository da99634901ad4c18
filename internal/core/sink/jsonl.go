package sink

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/pacerhq/pacer/internal/core"
	"github.com/pacerhq/pacer/internal/core/pace"
)

// FiringRecord is the JSON line written for each firing.
type FiringRecord struct {
	EventID    string          `json:"event_id"`
	Gate       string          `json:"gate"`
	Key        string          `json:"key"`
	Kind       pace.Kind       `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	FiredAt    time.Time       `json:"fired_at"`
	LatencyMS  int64           `json:"latency_ms"`
}

// JSONLinesSink writes one JSON object per firing. Writes are serialized so
// timer-driven firings from different keys never interleave.
type JSONLinesSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesSink writes firings to w.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{enc: json.NewEncoder(w)}
}

func (s *JSONLinesSink) Name() string { return "jsonl" }

func (s *JSONLinesSink) Deliver(_ context.Context, f core.Firing) error {
	rec := FiringRecord{
		EventID:    f.Event.ID,
		Gate:       f.Event.Gate,
		Key:        f.Event.Key,
		Kind:       f.Kind,
		Payload:    f.Event.Payload,
		ReceivedAt: f.Event.ReceivedAt,
		FiredAt:    f.FiredAt,
		LatencyMS:  f.Latency().Milliseconds(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}
