package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"

	"github.com/pacerhq/pacer/internal/core"
	"github.com/pacerhq/pacer/internal/core/gate"
	apperrors "github.com/pacerhq/pacer/internal/errors"
	"github.com/pacerhq/pacer/internal/metrics"
	"github.com/pacerhq/pacer/internal/server/middleware"
)

// DefaultMaxBodyBytes caps event bodies when the server config leaves it unset.
const DefaultMaxBodyBytes int64 = 1 << 20

// SubmitRequest is the body of POST /v1/gates/{gate}/events.
type SubmitRequest struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// GateInfo describes a configured gate and its live key table.
type GateInfo struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Window  string `json:"window"`
	MaxKeys int    `json:"max_keys"`
	Shared  bool   `json:"shared"`
	Keys    int    `json:"keys"`
	Pending int    `json:"pending"`
}

// GateListResponse is the body of GET /v1/gates.
type GateListResponse struct {
	Gates []GateInfo `json:"gates"`
}

// KeyActionResponse reports the result of a flush or cancel.
type KeyActionResponse struct {
	Gate      string `json:"gate"`
	Key       string `json:"key"`
	Flushed   *bool  `json:"flushed,omitempty"`
	Cancelled *bool  `json:"cancelled,omitempty"`
}

// GateHandler serves the event ingress API.
type GateHandler struct {
	registry     *gate.Registry
	maxBodyBytes int64
}

// NewGateHandler creates a handler backed by registry.
func NewGateHandler(registry *gate.Registry, maxBodyBytes int64) *GateHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &GateHandler{registry: registry, maxBodyBytes: maxBodyBytes}
}

// List handles GET /v1/gates.
func (h *GateHandler) List(w http.ResponseWriter, r *http.Request) {
	resp := GateListResponse{Gates: []GateInfo{}}
	for _, name := range h.registry.Names() {
		g, err := h.registry.Get(name)
		if err != nil {
			continue
		}
		spec := g.Spec()
		resp.Gates = append(resp.Gates, GateInfo{
			Name:    spec.Name,
			Kind:    string(spec.Kind),
			Window:  spec.Window.String(),
			MaxKeys: spec.MaxKeys,
			Shared:  spec.Shared,
			Keys:    len(g.Keys()),
			Pending: g.PendingKeys(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Submit handles POST /v1/gates/{gate}/events.
func (h *GateHandler) Submit(w http.ResponseWriter, r *http.Request) {
	g, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var body SubmitRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondWithError(w, r, apperrors.NewPayloadTooLargeError("request body exceeds the configured limit"))
		case errors.Is(err, io.EOF):
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body is required"))
		default:
			respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body is not valid JSON"))
		}
		return
	}

	decision, err := g.Submit(r.Context(), core.Event{
		Key:       body.Key,
		Payload:   body.Payload,
		RequestID: middleware.GetRequestID(r.Context()),
	})
	if err != nil {
		h.respondGateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, decision)
}

// Flush handles POST /v1/gates/{gate}/keys/{key}/flush.
func (h *GateHandler) Flush(w http.ResponseWriter, r *http.Request) {
	g, ok := h.lookup(w, r)
	if !ok {
		return
	}
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	flushed := g.Flush(key)
	metrics.RecordOperation("gate_flush", flushed)
	writeJSON(w, http.StatusOK, KeyActionResponse{Gate: g.Spec().Name, Key: key, Flushed: &flushed})
}

// Cancel handles DELETE /v1/gates/{gate}/keys/{key}.
func (h *GateHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	g, ok := h.lookup(w, r)
	if !ok {
		return
	}
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	cancelled := g.Cancel(key)
	metrics.RecordOperation("gate_cancel", cancelled)
	writeJSON(w, http.StatusOK, KeyActionResponse{Gate: g.Spec().Name, Key: key, Cancelled: &cancelled})
}

func (h *GateHandler) lookup(w http.ResponseWriter, r *http.Request) (*gate.Gate, bool) {
	g, err := h.registry.Get(chi.URLParam(r, "gate"))
	if err != nil {
		h.respondGateError(w, r, err)
		return nil, false
	}
	return g, true
}

func (h *GateHandler) respondGateError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var envelope *gferrors.ErrorEnvelope
	switch {
	case errors.Is(err, gate.ErrUnknownGate):
		envelope = apperrors.WrapNotFound(ctx, err, "gate not found")
	case errors.Is(err, gate.ErrInvalidEvent):
		envelope = apperrors.WrapInvalidInput(ctx, err, err.Error())
	case errors.Is(err, gate.ErrWindowStore):
		envelope = apperrors.WrapExternalService(ctx, err, "shared window store unavailable")
	case errors.Is(err, gate.ErrClosed):
		envelope = apperrors.WrapServiceUnavailable(ctx, err, "gate is shutting down")
	default:
		envelope = apperrors.WrapInternal(ctx, err, "event submission failed")
	}
	metrics.RecordOperationError("gate_submit", envelope.Code)
	respondWithError(w, r, envelope)
}

// keyParam returns the decoded {key} segment. chi matches on RawPath when the
// request carries one (an escaped "/" for instance), and on the already
// decoded Path otherwise.
func keyParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := chi.URLParam(r, "key")
	var err error
	if r.URL.RawPath != "" {
		key, err = url.PathUnescape(key)
	}
	if err != nil || key == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("key is required"))
		return "", false
	}
	return key, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
