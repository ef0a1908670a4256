package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chaincast/internal/engine"
	"chaincast/internal/store"
	"chaincast/internal/transport"
	"chaincast/internal/ws"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(pgStore *store.PostgresStore, pubsub transport.PubSub, publisher *engine.Publisher, deactivator *engine.SubscriptionDeactivator, hub *ws.Hub, queueName string) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// Handlers
	subHandler := NewSubscriptionHandler(pgStore, pubsub, deactivator, queueName)
	receiptHandler := NewReceiptHandler(pgStore)
	eventHandler := NewEventHandler(publisher)

	// Live delivery feed
	if hub != nil {
		r.Get("/ws", hub.HandleWebSocket)
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subHandler.Create)
			r.Get("/", subHandler.List)
			r.Get("/{id}", subHandler.Get)
			r.Delete("/{id}", subHandler.Delete)
			r.Get("/{id}/receipts", receiptHandler.List)
		})

		r.Post("/events", eventHandler.Create)
	})

	return r
}
