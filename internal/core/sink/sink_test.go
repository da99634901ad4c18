package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacerhq/pacer/internal/core"
	"github.com/pacerhq/pacer/internal/core/pace"
)

func testFiring() core.Firing {
	received := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return core.Firing{
		Event: core.Event{
			ID:         "evt-1",
			Gate:       "search",
			Key:        "user-1",
			Payload:    json.RawMessage(`{"q":"hello"}`),
			ReceivedAt: received,
			RequestID:  "req-1",
		},
		Kind:    pace.KindDebounce,
		FiredAt: received.Add(300 * time.Millisecond),
	}
}

func TestWebhookSinkPostsPayload(t *testing.T) {
	var got WebhookPayload
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, err := NewWebhookSink(WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer token"},
	})
	require.NoError(t, err)
	require.NoError(t, s.Deliver(context.Background(), testFiring()))

	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, "search", got.Gate)
	assert.Equal(t, "user-1", got.Key)
	assert.Equal(t, "debounce", got.Kind)
	assert.JSONEq(t, `{"q":"hello"}`, string(got.Payload))
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "Bearer token", header.Get("Authorization"))
	assert.Equal(t, "req-1", header.Get("X-Request-ID"))
}

func TestWebhookSinkRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewWebhookSink(WebhookConfig{
		URL:          srv.URL,
		MaxRetries:   3,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, s.Deliver(context.Background(), testFiring()))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWebhookSinkFailsOnClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s, err := NewWebhookSink(WebhookConfig{URL: srv.URL, MaxRetries: 2, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond})
	require.NoError(t, err)
	err = s.Deliver(context.Background(), testFiring())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestNewWebhookSinkValidatesURL(t *testing.T) {
	_, err := NewWebhookSink(WebhookConfig{})
	require.Error(t, err)
	_, err = NewWebhookSink(WebhookConfig{URL: "ftp://example.com"})
	require.Error(t, err)
}

func TestWebhookSinkBudget(t *testing.T) {
	ws, err := NewWebhookSink(WebhookConfig{
		URL:          "http://example.com/hook",
		Timeout:      2 * time.Second,
		MaxRetries:   2,
		RetryWaitMax: 500 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, ws.Budget())

	ws, err = NewWebhookSink(WebhookConfig{URL: "http://example.com/hook"})
	require.NoError(t, err)
	assert.Zero(t, ws.Budget())
}

type memoryRecorder struct{ firings []core.Firing }

func (m *memoryRecorder) RecordFiring(_ context.Context, f core.Firing) error {
	m.firings = append(m.firings, f)
	return nil
}

func TestMultiDeliversToEverySink(t *testing.T) {
	rec := &memoryRecorder{}
	var called []string
	failing := Func{Label: "broken", Fn: func(context.Context, core.Firing) error {
		called = append(called, "broken")
		return errors.New("boom")
	}}
	ok := Func{Label: "ok", Fn: func(context.Context, core.Firing) error {
		called = append(called, "ok")
		return nil
	}}

	m := Multi{failing, JournalSink{Recorder: rec}, nil, ok}
	err := m.Deliver(context.Background(), testFiring())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: boom")
	assert.Equal(t, []string{"broken", "ok"}, called)
	require.Len(t, rec.firings, 1)
	assert.Equal(t, "evt-1", rec.firings[0].Event.ID)
}

func TestLogSink(t *testing.T) {
	logger, err := logging.NewCLI("sink-test")
	require.NoError(t, err)

	require.NoError(t, LogSink{Logger: logger}.Deliver(context.Background(), testFiring()))
	require.Error(t, LogSink{}.Deliver(context.Background(), testFiring()))
	require.Error(t, JournalSink{}.Deliver(context.Background(), testFiring()))
}

func TestJSONLinesSinkWritesOneObjectPerFiring(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONLinesSink(&buf)

	f := testFiring()
	require.NoError(t, s.Deliver(context.Background(), f))
	require.NoError(t, s.Deliver(context.Background(), f))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var rec FiringRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "evt-1", rec.EventID)
	assert.Equal(t, "search", rec.Gate)
	assert.Equal(t, pace.KindDebounce, rec.Kind)
	assert.JSONEq(t, `{"q":"hello"}`, string(rec.Payload))
	assert.Equal(t, f.Latency().Milliseconds(), rec.LatencyMS)
}
