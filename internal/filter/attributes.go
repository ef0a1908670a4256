package filter

import (
	"strings"

	json "github.com/goccy/go-json"

	"chaincast/internal/domain"
)

// methodSignatureHexLen is the length of a hex-encoded 4-byte method
// selector, without the 0x prefix.
const methodSignatureHexLen = 8

// LogAttributes flattens a log event into its matchable attributes:
// address plus topic0..topic3 for each topic the log actually has.
// All values are lower-cased so comparisons never re-normalize.
func LogAttributes(log *domain.Log) map[string]string {
	attrs := map[string]string{
		AttrAddress: strings.ToLower(log.Address),
	}

	topicNames := []string{AttrTopic0, AttrTopic1, AttrTopic2, AttrTopic3}
	for i, name := range topicNames {
		if i < len(log.Topics) {
			attrs[name] = strings.ToLower(log.Topics[i])
		}
	}

	return attrs
}

// TransactionAttributes flattens a transaction into its matchable
// attributes: from, to when the transaction has a recipient, and
// methodSignature when the input data carries at least 4 bytes.
func TransactionAttributes(tx *domain.Transaction) map[string]string {
	attrs := map[string]string{
		AttrFrom: strings.ToLower(tx.From),
	}

	if tx.To != nil {
		attrs[AttrTo] = strings.ToLower(*tx.To)
	}

	if sig, ok := methodSignature(tx.Input); ok {
		attrs[AttrMethodSignature] = sig
	}

	return attrs
}

// methodSignature returns the first 4 bytes of the input data as a
// 0x-prefixed lower-cased hex string. Shorter or missing input yields no
// signature rather than an error.
func methodSignature(input string) (string, bool) {
	hexData := strings.TrimPrefix(strings.ToLower(input), "0x")
	if len(hexData) < methodSignatureHexLen {
		return "", false
	}
	return "0x" + hexData[:methodSignatureHexLen], true
}

// TryLog attempts to interpret a raw payload as a log event. The payload
// has no kind discriminant on the wire, so this is a shape check: it must
// be a JSON object carrying the fields only logs have.
func TryLog(raw []byte) (*domain.Log, bool) {
	var log domain.Log
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, false
	}
	if log.Address == "" || log.Topics == nil || log.LogIndex == "" {
		return nil, false
	}
	return &log, true
}

// TryTransaction attempts to interpret a raw payload as a transaction.
func TryTransaction(raw []byte) (*domain.Transaction, bool) {
	var tx domain.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, false
	}
	if tx.Hash == "" || tx.From == "" || tx.Nonce == "" {
		return nil, false
	}
	return &tx, true
}
