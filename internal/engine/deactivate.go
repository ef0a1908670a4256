package engine

import (
	"context"
	"fmt"
	"log/slog"

	"chaincast/internal/domain"
	"chaincast/internal/transport"
)

// StatusStore flips subscription status in storage.
type StatusStore interface {
	UpdateSubscriptionStatus(ctx context.Context, id string, status domain.SubscriptionStatus) error
}

// SubscriptionDeactivator permanently disables subscriptions: transport
// binding released first, then status flipped. The transition is one-way
// and idempotent; the 410 path in the notifier is its only caller during
// delivery, and the API's delete path reuses it.
type SubscriptionDeactivator struct {
	store  StatusStore
	pubsub transport.PubSub
	logger *slog.Logger
}

func NewSubscriptionDeactivator(store StatusStore, pubsub transport.PubSub, logger *slog.Logger) *SubscriptionDeactivator {
	return &SubscriptionDeactivator{
		store:  store,
		pubsub: pubsub,
		logger: logger,
	}
}

func (d *SubscriptionDeactivator) Deactivate(ctx context.Context, sub *domain.Subscription) error {
	if sub.Status == domain.StatusDeactivated {
		return nil
	}

	if sub.TransportHandle != "" {
		if err := d.pubsub.Unsubscribe(ctx, sub.TransportHandle); err != nil {
			return fmt.Errorf("releasing transport binding: %w", err)
		}
	}

	if err := d.store.UpdateSubscriptionStatus(ctx, sub.ID, domain.StatusDeactivated); err != nil {
		return fmt.Errorf("marking subscription deactivated: %w", err)
	}

	sub.Status = domain.StatusDeactivated
	sub.TransportHandle = ""

	d.logger.Info("subscription deactivated", "subscription_id", sub.ID)
	return nil
}
