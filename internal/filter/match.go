package filter

import "chaincast/internal/domain"

// Matches re-derives attributes from a raw message and re-checks them
// against the subscription's filter. The transport's own filter policy is
// the primary filter; this is a safety net, so ambiguity fails open:
// a payload we cannot parse, or one whose shape does not match the
// subscription's kind, is delivered rather than silently dropped.
// A deactivated subscription never matches, regardless of payload.
func Matches(sub *domain.Subscription, raw []byte) bool {
	if sub.Status == domain.StatusDeactivated {
		return false
	}

	var attrs map[string]string

	switch sub.Kind {
	case domain.KindLog:
		log, ok := TryLog(raw)
		if !ok {
			return true
		}
		attrs = LogAttributes(log)
	case domain.KindTransaction:
		tx, ok := TryTransaction(raw)
		if !ok {
			return true
		}
		attrs = TransactionAttributes(tx)
	default:
		return true
	}

	return ToPolicy(sub.Filters).MatchesAttributes(attrs)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
