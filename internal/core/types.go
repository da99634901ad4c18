package core

import (
	"encoding/json"
	"time"

	"github.com/pacerhq/pacer/internal/core/pace"
)

// Event is a keyed payload submitted to a gate.
type Event struct {
	ID         string          `json:"id"`
	Gate       string          `json:"gate"`
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	RequestID  string          `json:"request_id,omitempty"`
}

// Firing is an event that survived its gate and was delivered.
type Firing struct {
	Event   Event     `json:"event"`
	Kind    pace.Kind `json:"kind"`
	FiredAt time.Time `json:"fired_at"`
}

// Latency is the time the event spent in its gate before firing.
func (f Firing) Latency() time.Duration {
	if f.Event.ReceivedAt.IsZero() {
		return 0
	}
	return f.FiredAt.Sub(f.Event.ReceivedAt)
}

// Decision reports what a gate did with a submitted event.
type Decision struct {
	EventID string       `json:"event_id"`
	Gate    string       `json:"gate"`
	Key     string       `json:"key"`
	Outcome pace.Outcome `json:"outcome"`
}
