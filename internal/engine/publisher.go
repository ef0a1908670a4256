// Package engine connects the pipeline stages: publishing ingested chain
// events to topics, delivering queued tasks to webhooks, and deactivating
// subscriptions whose endpoints are gone.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chaincast/internal/domain"
	"chaincast/internal/filter"
	"chaincast/internal/transport"
)

// Topic names per subscription kind. Topic creation is idempotent by
// name, so these are stable identifiers across processes.
const (
	LogTopic         = "chain-logs"
	TransactionTopic = "chain-transactions"
)

var ErrUnrecognizedPayload = errors.New("payload is neither a log nor a transaction")

// TopicName maps a subscription kind to its topic.
func TopicName(kind domain.SubscriptionKind) (string, error) {
	switch kind {
	case domain.KindLog:
		return LogTopic, nil
	case domain.KindTransaction:
		return TransactionTopic, nil
	default:
		return "", fmt.Errorf("unknown subscription kind %q", kind)
	}
}

// Publisher pushes chain events into the transport with their extracted
// attributes, so the transport's filter policies can pre-select
// subscribers.
type Publisher struct {
	pubsub transport.PubSub
	logger *slog.Logger
}

func NewPublisher(pubsub transport.PubSub, logger *slog.Logger) *Publisher {
	return &Publisher{pubsub: pubsub, logger: logger}
}

// Ingest classifies a raw event payload by shape, derives its attributes,
// and publishes it to the matching kind's topic.
func (p *Publisher) Ingest(ctx context.Context, raw []byte) (domain.SubscriptionKind, error) {
	if log, ok := filter.TryLog(raw); ok {
		return domain.KindLog, p.publish(ctx, LogTopic, filter.LogAttributes(log), raw)
	}
	if tx, ok := filter.TryTransaction(raw); ok {
		return domain.KindTransaction, p.publish(ctx, TransactionTopic, filter.TransactionAttributes(tx), raw)
	}
	return "", ErrUnrecognizedPayload
}

func (p *Publisher) publish(ctx context.Context, topic string, attrs map[string]string, raw []byte) error {
	topicHandle, err := p.pubsub.CreateOrGetTopic(ctx, topic)
	if err != nil {
		return fmt.Errorf("resolving topic %q: %w", topic, err)
	}
	if err := p.pubsub.Publish(ctx, topicHandle, attrs, raw); err != nil {
		return fmt.Errorf("publishing to %q: %w", topic, err)
	}
	return nil
}
