package storage

import (
	"encoding/json"
	"fmt"
)

// encodeJSON marshals v for a JSONB column, mapping empty values to
// NULL so the column stays queryable with IS NULL.
func encodeJSON(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case map[string]string:
		if len(t) == 0 {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return raw, nil
}

// decodeJSON unmarshals a JSONB column into out. A stored value that is
// not valid for the expected shape (a bare string where an object
// belongs) is a data-integrity error, not a silent nil.
func decodeJSON(raw []byte, out any, column string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: column %s holds malformed value: %v", ErrDataIntegrity, column, err)
	}
	return nil
}
