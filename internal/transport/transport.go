// Package transport implements the pub/sub layer the notification pipeline
// rides on: named topics with per-subscription filter policies, and
// at-least-once delivery queues with visibility timeouts and batch
// acknowledgement.
package transport

import (
	"context"
	"time"

	"chaincast/internal/filter"
)

// Message is one delivery task pulled from a queue. The receipt handle
// acknowledges (deletes) the message; an unacknowledged message becomes
// visible again after the queue's visibility timeout.
type Message struct {
	ID            string
	ReceiptHandle string
	Body          []byte
}

// Task is the envelope enqueued per matching subscription when a message
// is published to a topic.
type Task struct {
	ID              string `json:"id"`
	TransportHandle string `json:"transport_handle"`
	Payload         []byte `json:"payload"`
}

// PubSub is the topic side of the transport.
type PubSub interface {
	// CreateOrGetTopic is idempotent by name.
	CreateOrGetTopic(ctx context.Context, name string) (string, error)
	// Subscribe binds an endpoint (a queue name) to a topic with a filter
	// policy and returns an opaque subscription handle.
	Subscribe(ctx context.Context, topicHandle, endpoint string, policy filter.Policy) (string, error)
	// Unsubscribe releases a subscription handle. Unsubscribing a handle
	// that is already gone is not an error.
	Unsubscribe(ctx context.Context, subscriptionHandle string) error
	// Publish fans a message out to every subscription on the topic whose
	// filter policy the attributes satisfy.
	Publish(ctx context.Context, topicHandle string, attributes map[string]string, body []byte) error
}

// Queue is the consumer side of the transport.
type Queue interface {
	// Receive claims up to max due messages, long-polling up to wait.
	// Claimed messages stay invisible for the visibility timeout.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)
	// DeleteBatch acknowledges handled messages in one call.
	DeleteBatch(ctx context.Context, receiptHandles []string) error
}
