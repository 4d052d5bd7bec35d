package schema

import (
	"encoding/json"
	"fmt"
)

type fieldJSON struct {
	Name    string      `json:"name"`
	Reducer ReducerKind `json:"reducer"`
	Type    string      `json:"type"`
}

// MarshalJSON serializes the schema as an ordered list of field descriptors.
// Custom merge functions are described by their reducer kind only.
func (s *StateSchema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}

	raw := make([]fieldJSON, 0, len(s.fields))
	for _, f := range s.fields {
		if f.Type == nil {
			return nil, fmt.Errorf("field %s: type is nil", f.Name)
		}
		raw = append(raw, fieldJSON{Name: f.Name, Reducer: f.Reducer, Type: f.Type.Name()})
	}

	return json.Marshal(raw)
}

// UnmarshalJSON rebuilds a schema from field descriptors.
// Custom reducers cannot be restored from JSON and are rejected.
func (s *StateSchema) UnmarshalJSON(data []byte) error {
	if s == nil {
		return fmt.Errorf("schema: UnmarshalJSON on nil pointer")
	}

	var raw []fieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := make([]Field, 0, len(raw))
	for _, r := range raw {
		if r.Reducer == ReducerCustom {
			return fmt.Errorf("field %s: custom reducers cannot be decoded", r.Name)
		}
		f := Field{Name: r.Name, Reducer: r.Reducer}
		if r.Type != "" {
			t, err := ParseType(r.Type)
			if err != nil {
				return fmt.Errorf("field %s: %w", r.Name, err)
			}
			f.Type = t
		}
		fields = append(fields, f)
	}

	parsed, err := New(fields...)
	if err != nil {
		return err
	}

	*s = *parsed
	return nil
}
