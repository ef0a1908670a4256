package domain

import "time"

// ReceiptTTL is how long delivery receipts are retained.
const ReceiptTTL = 7 * 24 * time.Hour

// ReceiptResult is the classified outcome of one webhook attempt.
// StatusCode is 0 for transport-level failures (timeout, connection error).
type ReceiptResult struct {
	Success    bool `json:"success"`
	StatusCode int  `json:"statusCode"`
}

// Receipt is the immutable audit record of a single delivery attempt.
type Receipt struct {
	ID             string        `json:"id"`
	SubscriptionID string        `json:"subscription_id"`
	Timestamp      int64         `json:"timestamp"`
	TTL            int64         `json:"ttl"`
	Result         ReceiptResult `json:"result"`
}
