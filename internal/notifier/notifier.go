// Package notifier delivers matched messages to subscriber webhooks and
// classifies the outcome into a receipt.
package notifier

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"chaincast/internal/domain"
)

const (
	userAgent      = "chaincast"
	requestTimeout = 3 * time.Second

	subscriptionIDHeader = "X-Chaincast-Subscription-Id"
)

// Deactivator permanently disables a subscription: release its transport
// binding and flip its status. Called when an endpoint reports 410 Gone.
type Deactivator interface {
	Deactivate(ctx context.Context, sub *domain.Subscription) error
}

// Notifier signs and POSTs message bodies to webhook endpoints.
type Notifier struct {
	httpClient  *http.Client
	deactivator Deactivator
	logger      *slog.Logger
}

func New(deactivator Deactivator, logger *slog.Logger) *Notifier {
	return &Notifier{
		httpClient:  &http.Client{Timeout: requestTimeout},
		deactivator: deactivator,
		logger:      logger,
	}
}

// Notify makes exactly one delivery attempt and always returns a receipt,
// whatever the outcome: HTTP errors, timeouts, and deactivation failures
// are expected failure modes, classified rather than raised, so the caller
// can unconditionally persist the audit trail and acknowledge the queue
// message. No retry happens here; redelivery, if any, is the transport's.
func (n *Notifier) Notify(ctx context.Context, sub *domain.Subscription, body []byte) domain.Receipt {
	receiptID := uuid.NewString()

	result := n.post(ctx, receiptID, sub, body)

	if result.StatusCode == http.StatusGone {
		// The endpoint is permanently gone: stop delivering to it. A
		// failed deactivation only means another 410 round later, so it
		// is logged, not propagated.
		if err := n.deactivator.Deactivate(ctx, sub); err != nil {
			n.logger.Error("failed to deactivate gone subscription",
				"subscription_id", sub.ID,
				"error", err,
			)
		} else {
			n.logger.Info("deactivated subscription, endpoint gone",
				"subscription_id", sub.ID,
				"webhook_url", sub.WebhookURL,
			)
		}
	}

	now := time.Now()
	return domain.Receipt{
		ID:             receiptID,
		SubscriptionID: sub.ID,
		Timestamp:      now.Unix(),
		TTL:            now.Add(domain.ReceiptTTL).Unix(),
		Result:         result,
	}
}

func (n *Notifier) post(ctx context.Context, receiptID string, sub *domain.Subscription, body []byte) domain.ReceiptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.WebhookURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("failed to build webhook request",
			"subscription_id", sub.ID,
			"error", err,
		)
		return domain.ReceiptResult{Success: false, StatusCode: 0}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(subscriptionIDHeader, sub.ID)
	req.Header.Set(SignatureHeader, signBody(sub.Secret, body))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed",
			"subscription_id", sub.ID,
			"receipt_id", receiptID,
			"error", err,
		)
		return domain.ReceiptResult{Success: false, StatusCode: 0}
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused; the response body itself is
	// not part of the contract.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	success := resp.StatusCode >= 200 && resp.StatusCode < 300

	if success {
		n.logger.Info("delivered event",
			"subscription_id", sub.ID,
			"receipt_id", receiptID,
			"status_code", resp.StatusCode,
		)
	} else {
		n.logger.Warn("webhook returned failure status",
			"subscription_id", sub.ID,
			"receipt_id", receiptID,
			"status_code", resp.StatusCode,
		)
	}

	return domain.ReceiptResult{Success: success, StatusCode: resp.StatusCode}
}
