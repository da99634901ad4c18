package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacerhq/pacer/internal/server/middleware"
)

func TestHTTPStatusFromCode(t *testing.T) {
	tests := map[string]int{
		"INVALID_INPUT":          http.StatusBadRequest,
		"VALIDATION_FAILED":      http.StatusBadRequest,
		"NOT_FOUND":              http.StatusNotFound,
		"PAYLOAD_TOO_LARGE":      http.StatusRequestEntityTooLarge,
		"RATE_LIMITED":           http.StatusTooManyRequests,
		"EXTERNAL_SERVICE_ERROR": http.StatusBadGateway,
		"SERVICE_UNAVAILABLE":    http.StatusServiceUnavailable,
		"SOMETHING_ELSE":         http.StatusInternalServerError,
	}
	for code, want := range tests {
		t.Run(code, func(t *testing.T) {
			assert.Equal(t, want, HTTPStatusFromCode(code))
		})
	}
}

func TestEnsureEnvelopeWrapsPlainErrors(t *testing.T) {
	env := EnsureEnvelope(stderrors.New("boom"))
	require.NotNil(t, env)
	assert.Equal(t, "INTERNAL_ERROR", env.Code)
	assert.Equal(t, "boom", env.Context["wrapped_error"])

	rate := NewRateLimitedError("slow down")
	assert.Same(t, rate, EnsureEnvelope(rate))
}

func TestRespondWithEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/gates/search/events", nil)
	rec := httptest.NewRecorder()

	RespondWithEnvelope(rec, req, NewRateLimitedError("too many requests"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)
	assert.Equal(t, "too many requests", body.Error.Message)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestWrapUsesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	var captured *http.Request
	middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
	})).ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, captured)

	env := WrapNotFound(captured.Context(), stderrors.New(`gate "nope"`), "gate not found")
	assert.Equal(t, CodeNotFound, env.Code)
	assert.Equal(t, middleware.GetRequestID(captured.Context()), env.CorrelationID)
	assert.Equal(t, `gate "nope"`, env.Context["wrapped_error"])
}

func TestResponseDetailsPrefersDetails(t *testing.T) {
	env, err := NewInvalidInputError("bad").WithContext(map[string]interface{}{"field": "ctx", "only_ctx": 1})
	require.NoError(t, err)
	env = env.WithDetails(map[string]interface{}{"field": "details"})

	details := ResponseDetails(env)
	assert.Equal(t, "details", details["field"])
	assert.Equal(t, 1, details["only_ctx"])
	assert.Nil(t, ResponseDetails(NewInvalidInputError("bare")))
}
