package schema

import "sort"

// ValidateUpdate checks that every key of a partial update is declared and that
// its value conforms to the field type. Nil values are accepted (they clear replace fields).
// Returns an error with all validation failures found.
func ValidateUpdate(s *StateSchema, update map[string]any) error {
	if len(update) == 0 {
		return nil
	}

	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		f, ok := s.Field(key)
		if !ok {
			errs = append(errs, &ValidationError{
				Key:    key,
				Reason: "not declared in schema",
			})
			continue
		}

		// Append fields accept single elements as well as lists, so only the
		// reduced value is type checked for them.
		if f.Reducer != ReducerReplace {
			continue
		}

		value := update[key]
		if value == nil {
			continue
		}
		if err := f.Type.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Key:    key,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// ValidateFields reports the names that are not declared in the schema.
func ValidateFields(s *StateSchema, fields ...string) error {
	var errs []error
	for _, name := range fields {
		if !s.Has(name) {
			errs = append(errs, &ValidationError{
				Key:    name,
				Reason: "not declared in schema",
			})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
