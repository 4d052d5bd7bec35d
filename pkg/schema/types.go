package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type validates the reduced value of a field.
type Type interface {
	// Name is the type's spelling in a serialized schema, e.g. "int" or "[string]".
	Name() string
	Validate(value any) error
}

// primitive is a named type checked by a predicate.
type primitive struct {
	name string
	ok   func(any) bool
}

func (p primitive) Name() string { return p.name }

func (p primitive) Validate(value any) error {
	if !p.ok(value) {
		return fmt.Errorf("expected %s, got %T", p.name, value)
	}
	return nil
}

func isInt(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64:
		return true
	case float64:
		// JSON stores hand integers back as whole float64 values.
		return n == float64(int64(n))
	}
	return false
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64, int, int8, int16, int32, int64:
		return true
	}
	return false
}

func isMap(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String
}

var (
	stringType = primitive{"string", func(v any) bool { _, ok := v.(string); return ok }}
	intType    = primitive{"int", isInt}
	floatType  = primitive{"float", isFloat}
	boolType   = primitive{"bool", func(v any) bool { _, ok := v.(bool); return ok }}
	mapType    = primitive{"map", isMap}
	anyType    = primitive{"any", func(any) bool { return true }}
)

// sliceType checks every element against elem.
type sliceType struct {
	elem Type
}

func (s sliceType) Name() string { return "[" + s.elem.Name() + "]" }

func (s sliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected slice, got %T", value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := s.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

type validated struct {
	name string
	fn   func(any) error
}

func (v validated) Name() string             { return v.name }
func (v validated) Validate(value any) error { return v.fn(value) }

// String accepts strings.
func String() Type { return stringType }

// Int accepts Go integers and whole float64 values.
func Int() Type { return intType }

// Float accepts any Go number.
func Float() Type { return floatType }

// Bool accepts booleans.
func Bool() Type { return boolType }

// Any accepts every value. It is the implicit type of untyped fields.
func Any() Type { return anyType }

// Map accepts string-keyed maps.
func Map() Type { return mapType }

// Slice accepts slices and arrays whose elements are all of type elem.
func Slice(elem Type) Type { return sliceType{elem: elem} }

// Validated creates a named type checked by a user-defined function.
// Its name cannot be parsed back by ParseType.
func Validated(name string, validate func(any) error) Type {
	return validated{name: name, fn: validate}
}

var builtins = map[string]Type{
	"string": stringType,
	"int":    intType,
	"float":  floatType,
	"bool":   boolType,
	"map":    mapType,
	"any":    anyType,
}

// ParseType reads a type name produced by Name: a builtin or a bracketed
// slice of one, e.g. "[[string]]".
func ParseType(name string) (Type, error) {
	if inner, ok := strings.CutPrefix(name, "["); ok {
		if inner, ok = strings.CutSuffix(inner, "]"); ok && inner != "" {
			elem, err := ParseType(inner)
			if err != nil {
				return nil, err
			}
			return Slice(elem), nil
		}
	}
	if t, ok := builtins[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unsupported type: %s", name)
}
