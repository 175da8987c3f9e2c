package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/redworker/internal/ir"
)

// marshalDetail converts an event detail map to canonical JSON TEXT and
// its digest.
func marshalDetail(detail map[string]any) (string, string, error) {
	if len(detail) == 0 {
		return "{}", "", nil
	}
	data, err := ir.MarshalCanonical(detail)
	if err != nil {
		return "", "", fmt.Errorf("marshal detail: %w", err)
	}
	hash, err := ir.DetailHash(detail)
	if err != nil {
		return "", "", fmt.Errorf("marshal detail: %w", err)
	}
	return string(data), hash, nil
}

// unmarshalDetail parses canonical JSON TEXT back into a detail map.
// Integers come back as int64 so values survive a round-trip unchanged.
func unmarshalDetail(data string) (map[string]any, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal detail: %w", err)
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		conv, err := fromJSON(v)
		if err != nil {
			return nil, fmt.Errorf("unmarshal detail %q: %w", k, err)
		}
		out[k] = conv
	}
	return out, nil
}

func fromJSON(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("non-integer number %s", val)
		}
		return n, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			conv, err := fromJSON(elem)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			conv, err := fromJSON(elem)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	default:
		return val, nil
	}
}
