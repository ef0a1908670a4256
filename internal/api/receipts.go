package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chaincast/internal/store"
)

type ReceiptHandler struct {
	store *store.PostgresStore
}

func NewReceiptHandler(s *store.PostgresStore) *ReceiptHandler {
	return &ReceiptHandler{store: s}
}

// List returns the most recent delivery receipts for a subscription,
// newest first.
func (h *ReceiptHandler) List(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 100 {
			respondError(w, http.StatusBadRequest, "limit must be an integer between 1 and 100")
			return
		}
	}

	receipts, err := h.store.ListReceipts(r.Context(), id, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list receipts")
		return
	}

	respondJSON(w, http.StatusOK, receipts)
}
