package filter

import (
	"errors"
	"fmt"

	"chaincast/internal/domain"
)

// Attribute names recognized per subscription kind. These match the keys
// extracted from events, so filters and extracted attributes always line up.
const (
	AttrAddress         = "address"
	AttrTopic0          = "topic0"
	AttrTopic1          = "topic1"
	AttrTopic2          = "topic2"
	AttrTopic3          = "topic3"
	AttrFrom            = "from"
	AttrTo              = "to"
	AttrMethodSignature = "methodSignature"
)

// MaxCombinations caps how broad a single subscription's filter may be.
// It bounds the fan-out the transport absorbs per subscription; callers
// over the cap should split into multiple subscriptions.
const MaxCombinations = 100

// maxValuesPerAttribute bounds one attribute's OR set.
const maxValuesPerAttribute = 100

var (
	ErrNoFilters           = errors.New("firehose filters are not supported: constrain at least one attribute")
	ErrTooManyCombinations = fmt.Errorf("filter matches too many combinations (max %d): split into multiple subscriptions", MaxCombinations)
)

var allowedAttributes = map[domain.SubscriptionKind]map[string]bool{
	domain.KindLog: {
		AttrAddress: true,
		AttrTopic0:  true,
		AttrTopic1:  true,
		AttrTopic2:  true,
		AttrTopic3:  true,
	},
	domain.KindTransaction: {
		AttrFrom:            true,
		AttrTo:              true,
		AttrMethodSignature: true,
	},
}

// Combinations returns the cardinality of a filter: the product of the
// alternative-value counts of every constrained attribute. Unconstrained
// attributes contribute no factor. A filter with no constrained attribute
// at all has cardinality 0.
func Combinations(f domain.Filter) int {
	product := 1
	constrained := false

	for _, values := range f {
		if values == nil {
			continue
		}
		constrained = true
		product *= len(values)
	}

	if !constrained {
		return 0
	}
	return product
}

// Validate checks a filter against the registration policy for the given
// subscription kind: only known attributes, 1-100 values per constrained
// attribute, and total cardinality within (0, MaxCombinations].
func Validate(kind domain.SubscriptionKind, f domain.Filter) error {
	allowed, ok := allowedAttributes[kind]
	if !ok {
		return fmt.Errorf("unknown subscription kind %q", kind)
	}

	for name, values := range f {
		if !allowed[name] {
			return fmt.Errorf("attribute %q is not valid for %s subscriptions", name, kind)
		}
		if values == nil {
			continue
		}
		if len(values) == 0 {
			return fmt.Errorf("attribute %q has an empty value list", name)
		}
		if len(values) > maxValuesPerAttribute {
			return fmt.Errorf("attribute %q has too many values (max %d)", name, maxValuesPerAttribute)
		}
		for _, v := range values {
			if v == "" {
				return fmt.Errorf("attribute %q contains an empty value", name)
			}
		}
	}

	combinations := Combinations(f)
	if combinations == 0 {
		return ErrNoFilters
	}
	if combinations > MaxCombinations {
		return ErrTooManyCombinations
	}

	return nil
}
