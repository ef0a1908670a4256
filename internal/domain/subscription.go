package domain

import "time"

// SubscriptionKind selects which class of chain events a subscription
// receives.
type SubscriptionKind string

const (
	KindLog         SubscriptionKind = "log"
	KindTransaction SubscriptionKind = "transaction"
)

// SubscriptionStatus is the lifecycle state of a subscription. The only
// transition is active -> deactivated, and it is one-way.
type SubscriptionStatus string

const (
	StatusActive      SubscriptionStatus = "active"
	StatusDeactivated SubscriptionStatus = "deactivated"
)

type Subscription struct {
	ID              string             `json:"id"`
	Owner           string             `json:"owner"`
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	Kind            SubscriptionKind   `json:"kind"`
	Status          SubscriptionStatus `json:"status"`
	WebhookURL      string             `json:"webhook_url"`
	Secret          string             `json:"secret,omitempty"`
	Filters         Filter             `json:"filters"`
	TransportHandle string             `json:"transport_handle,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

type CreateSubscriptionRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Kind        SubscriptionKind `json:"kind"`
	WebhookURL  string           `json:"webhook_url"`
	Filters     Filter           `json:"filters"`
}
