package schema

import (
	"errors"
	"fmt"
)

// ReducerKind names the merge policy of a state field.
type ReducerKind string

const (
	// ReducerReplace keeps the value of the last writer of a superstep.
	ReducerReplace ReducerKind = "replace"
	// ReducerAppend concatenates every contribution in scheduling order.
	ReducerAppend ReducerKind = "append"
	// ReducerCustom folds contributions through a user supplied MergeFunc.
	ReducerCustom ReducerKind = "custom"
)

// MergeFunc combines the current value of a field with one contribution.
// It must be pure, total and associative: the engine folds all contributions of a
// superstep through it starting from the previous value (nil when unset).
type MergeFunc func(current, update any) (any, error)

// Field declares one entry of the shared state.
type Field struct {
	Name    string
	Reducer ReducerKind
	Merge   MergeFunc
	// Type is optional. When set, every reduced value is validated against it.
	Type Type
}

// Replace declares a last-writer-wins field.
func Replace(name string) Field {
	return Field{Name: name, Reducer: ReducerReplace}
}

// Append declares an accumulating list field.
func Append(name string) Field {
	return Field{Name: name, Reducer: ReducerAppend}
}

// Custom declares a field merged by fn.
func Custom(name string, fn MergeFunc) Field {
	return Field{Name: name, Reducer: ReducerCustom, Merge: fn}
}

// Of returns a copy of the field constrained to the given type.
func (f Field) Of(t Type) Field {
	f.Type = t
	return f
}

// StateSchema is the ordered declaration of the shared state and its reducer registry.
// It is immutable once created and safe for concurrent use.
type StateSchema struct {
	fields []Field
	index  map[string]int
}

// ErrInvalidSchema is returned when a schema declaration is malformed.
var ErrInvalidSchema = errors.New("invalid state schema")

// New builds a StateSchema from the given fields, preserving declaration order.
func New(fields ...Field) (*StateSchema, error) {
	s := &StateSchema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}

	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: field name cannot be empty", ErrInvalidSchema)
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("%w: field %q declared twice", ErrInvalidSchema, f.Name)
		}
		if f.Reducer == "" {
			f.Reducer = ReducerReplace
		}
		switch f.Reducer {
		case ReducerReplace, ReducerAppend:
		case ReducerCustom:
			if f.Merge == nil {
				return nil, fmt.Errorf("%w: field %q uses a custom reducer without merge function", ErrInvalidSchema, f.Name)
			}
		default:
			return nil, fmt.Errorf("%w: field %q has unknown reducer %q", ErrInvalidSchema, f.Name, f.Reducer)
		}
		if f.Type == nil {
			f.Type = Any()
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}

	return s, nil
}

// MustNew is like New but panics on a malformed declaration.
// Intended for package-level schema variables.
func MustNew(fields ...Field) *StateSchema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Field returns the declaration of a field.
func (s *StateSchema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Has reports whether the field is declared.
func (s *StateSchema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Fields returns the declarations in order.
func (s *StateSchema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the field names in declaration order.
func (s *StateSchema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Reduce applies the field's reducer to the contributions of one superstep.
// A field without contributions keeps its current value.
func (s *StateSchema) Reduce(name string, current any, contributions []any) (any, error) {
	f, ok := s.Field(name)
	if !ok {
		return nil, &ValidationError{Key: name, Reason: "not declared in schema"}
	}
	if len(contributions) == 0 {
		return current, nil
	}

	var (
		next any
		err  error
	)
	switch f.Reducer {
	case ReducerAppend:
		next, err = reduceAppend(current, contributions)
	case ReducerCustom:
		next, err = reduceCustom(f.Merge, current, contributions)
	default:
		next = contributions[len(contributions)-1]
	}
	if err != nil {
		return nil, err
	}

	if next != nil {
		if err := f.Type.Validate(next); err != nil {
			return nil, &ValidationError{Key: name, Reason: err.Error(), Value: next}
		}
	}
	return next, nil
}
