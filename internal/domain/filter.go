package domain

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// OptionValue is one attribute's constraint inside a filter: nil means the
// attribute is unconstrained, otherwise it holds one or more alternative
// values that are OR-ed together.
type OptionValue []string

// UnmarshalJSON accepts null, a single string, or an array of strings, so
// clients can write `"address": "0xabc"` and `"address": ["0xabc", "0xdef"]`
// interchangeably.
func (v *OptionValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = nil
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = OptionValue{s}
		return nil
	}

	if data[0] == '[' {
		var vals []string
		if err := json.Unmarshal(data, &vals); err != nil {
			return err
		}
		*v = OptionValue(vals)
		return nil
	}

	return fmt.Errorf("filter value must be null, a string, or an array of strings")
}

func (v OptionValue) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal([]string(v))
}

// Filter maps attribute names to their constraints. Constraints on distinct
// attributes are AND-ed; values within one OptionValue are OR-ed.
type Filter map[string]OptionValue
