package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata carries the placeholder-to-value mapping captured at enrollment.
// Substitution semantics: every `{key}` occurrence in the message content is
// replaced by the mapped value; unknown placeholders are left intact.
// Stored as a JSON text column.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata column type %T", src)
	}

	if len(data) == 0 {
		*m = nil
		return nil
	}

	return json.Unmarshal(data, m)
}
