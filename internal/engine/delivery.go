package engine

import (
	"context"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"

	"chaincast/internal/domain"
	"chaincast/internal/filter"
	"chaincast/internal/transport"
	"chaincast/internal/ws"
)

// DeliveryStore is the slice of persistence the delivery path needs.
type DeliveryStore interface {
	GetSubscriptionByTransportHandle(ctx context.Context, handle string) (*domain.Subscription, error)
	PutReceipt(ctx context.Context, r *domain.Receipt) error
}

// Notifier makes one webhook attempt and classifies it.
type Notifier interface {
	Notify(ctx context.Context, sub *domain.Subscription, body []byte) domain.Receipt
}

// Delivery handles one queued task end to end: resolve the subscription,
// re-check the filter, notify the webhook, persist the receipt. It plugs
// into the drain loop as its message handler.
type Delivery struct {
	store    DeliveryStore
	notifier Notifier
	hub      *ws.Hub
	logger   *slog.Logger
}

// NewDelivery creates the delivery handler. hub may be nil when no live
// feed is wanted.
func NewDelivery(store DeliveryStore, notifier Notifier, hub *ws.Hub, logger *slog.Logger) *Delivery {
	return &Delivery{
		store:    store,
		notifier: notifier,
		hub:      hub,
		logger:   logger,
	}
}

// Handle processes one dequeued message. A nil return acknowledges the
// message; an error leaves it for the queue's redelivery. Errors are
// reserved for transient conditions. Permanently bad messages are
// acknowledged, since redelivering them can never succeed.
func (d *Delivery) Handle(ctx context.Context, msg transport.Message) error {
	var task transport.Task
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		d.logger.Error("dropping undecodable delivery task",
			"message_id", msg.ID,
			"error", err,
		)
		return nil
	}

	sub, err := d.store.GetSubscriptionByTransportHandle(ctx, task.TransportHandle)
	if err != nil {
		return fmt.Errorf("loading subscription for handle %s: %w", task.TransportHandle, err)
	}
	if sub == nil {
		// The binding outlived its subscription, likely a deactivation
		// race. Nothing to deliver to.
		d.logger.Warn("no subscription for transport handle",
			"transport_handle", task.TransportHandle,
		)
		return nil
	}

	// The transport's filter policy already pre-selected this
	// subscription; this re-check is the safety net.
	if !filter.Matches(sub, task.Payload) {
		d.logger.Debug("message does not match subscription filters",
			"subscription_id", sub.ID,
		)
		return nil
	}

	receipt := d.notifier.Notify(ctx, sub, task.Payload)

	if err := d.store.PutReceipt(ctx, &receipt); err != nil {
		return fmt.Errorf("saving receipt %s: %w", receipt.ID, err)
	}

	if d.hub != nil {
		d.hub.Broadcast(ws.ReceiptEvent{
			Type:           ws.EventType(receipt.Result.Success),
			ReceiptID:      receipt.ID,
			SubscriptionID: sub.ID,
			WebhookURL:     sub.WebhookURL,
			StatusCode:     receipt.Result.StatusCode,
			Timestamp:      receipt.Timestamp,
		})
	}

	return nil
}
