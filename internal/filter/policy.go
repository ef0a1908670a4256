package filter

import (
	"strings"

	"chaincast/internal/domain"
)

// Policy is the normalized, transport-facing form of a filter: attribute
// name to a non-empty list of acceptable lower-cased values. Unconstrained
// attributes are omitted entirely.
type Policy map[string][]string

// ToPolicy translates a filter into its policy form. Translation is
// deterministic and idempotent: feeding an already-normalized filter back
// through yields an identical policy.
func ToPolicy(f domain.Filter) Policy {
	policy := make(Policy, len(f))

	for name, values := range f {
		if values == nil {
			continue
		}
		lowered := make([]string, len(values))
		for i, v := range values {
			lowered[i] = strings.ToLower(v)
		}
		policy[name] = lowered
	}

	return policy
}

// MatchesAttributes reports whether a message's extracted attributes
// satisfy the policy: every policy attribute must be present and hold one
// of its allowed values. Both sides are already lower-cased, so comparison
// is exact.
func (p Policy) MatchesAttributes(attrs map[string]string) bool {
	for name, allowed := range p {
		value, ok := attrs[name]
		if !ok {
			return false
		}
		if !contains(allowed, value) {
			return false
		}
	}
	return true
}
