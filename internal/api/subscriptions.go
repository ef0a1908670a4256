package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"chaincast/internal/domain"
	"chaincast/internal/engine"
	"chaincast/internal/filter"
	"chaincast/internal/store"
	"chaincast/internal/transport"
)

// ownerHeader carries the caller's identity. There is no auth layer in
// front of it, so whatever the caller claims is trusted.
const ownerHeader = "X-Owner"

type SubscriptionHandler struct {
	store       *store.PostgresStore
	pubsub      transport.PubSub
	deactivator *engine.SubscriptionDeactivator
	queueName   string
}

func NewSubscriptionHandler(s *store.PostgresStore, pubsub transport.PubSub, deactivator *engine.SubscriptionDeactivator, queueName string) *SubscriptionHandler {
	return &SubscriptionHandler{
		store:       s,
		pubsub:      pubsub,
		deactivator: deactivator,
		queueName:   queueName,
	}
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(ownerHeader)
	if owner == "" {
		respondError(w, http.StatusBadRequest, ownerHeader+" header is required")
		return
	}

	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !validWebhookURL(req.WebhookURL) {
		respondError(w, http.StatusBadRequest, "webhook_url must be an absolute http or https URL")
		return
	}
	if err := filter.Validate(req.Kind, req.Filters); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	secret, err := store.GenerateSecret()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate secret")
		return
	}

	topicName, err := engine.TopicName(req.Kind)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	topicHandle, err := h.pubsub.CreateOrGetTopic(r.Context(), topicName)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to prepare topic")
		return
	}
	subHandle, err := h.pubsub.Subscribe(r.Context(), topicHandle, h.queueName, filter.ToPolicy(req.Filters))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to subscribe transport")
		return
	}

	sub := &domain.Subscription{
		ID:              uuid.NewString(),
		Owner:           owner,
		Name:            req.Name,
		Description:     req.Description,
		Kind:            req.Kind,
		Status:          domain.StatusActive,
		WebhookURL:      req.WebhookURL,
		Secret:          secret,
		Filters:         req.Filters,
		TransportHandle: subHandle,
		CreatedAt:       time.Now().UTC(),
	}
	if err := h.store.CreateSubscription(r.Context(), sub); err != nil {
		// The transport binding is now orphaned; release it so the
		// dangling policy does not keep matching messages.
		h.pubsub.Unsubscribe(r.Context(), subHandle)
		respondError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	// The secret is returned exactly once, here. Reads never include it.
	respondJSON(w, http.StatusCreated, sub)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	sub.Secret = ""
	respondJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(ownerHeader)
	if owner == "" {
		respondError(w, http.StatusBadRequest, ownerHeader+" header is required")
		return
	}

	subs, err := h.store.ListSubscriptions(r.Context(), owner)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	for i := range subs {
		subs[i].Secret = ""
	}
	respondJSON(w, http.StatusOK, subs)
}

// Delete deactivates a subscription. The row stays behind for receipt
// history; the status transition is one-way.
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.deactivator.Deactivate(r.Context(), sub); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to deactivate subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func validWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
