package api

import (
	"errors"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"chaincast/internal/domain"
	"chaincast/internal/engine"
)

// maxEventBody bounds ingested payloads. Chain logs and transactions
// are small; anything past this is not one.
const maxEventBody = 1 << 20

type EventHandler struct {
	publisher *engine.Publisher
}

func NewEventHandler(p *engine.Publisher) *EventHandler {
	return &EventHandler{publisher: p}
}

type ingestResponse struct {
	Kind domain.SubscriptionKind `json:"kind"`
}

// Create accepts one raw chain event, classifies it, and publishes it
// to the matching topic. Delivery happens asynchronously, so success
// here is 202.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) == 0 {
		respondError(w, http.StatusBadRequest, "request body is required")
		return
	}
	if !json.Valid(body) {
		respondError(w, http.StatusBadRequest, "body must be valid JSON")
		return
	}

	kind, err := h.publisher.Ingest(r.Context(), body)
	if err != nil {
		if errors.Is(err, engine.ErrUnrecognizedPayload) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to publish event")
		return
	}

	respondJSON(w, http.StatusAccepted, ingestResponse{Kind: kind})
}
