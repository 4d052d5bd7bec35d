package schema

import (
	"fmt"
	"reflect"
)

// reduceAppend flattens the current value and every contribution into one list.
// Slice contributions are spread; scalars are appended as single elements.
func reduceAppend(current any, contributions []any) (any, error) {
	out := make([]any, 0)

	if current != nil {
		rv := reflect.ValueOf(current)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("append reducer: current value is %T, not a list", current)
		}
		out = spread(out, rv)
	}

	for _, c := range contributions {
		if c == nil {
			continue
		}
		rv := reflect.ValueOf(c)
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
			out = spread(out, rv)
			continue
		}
		out = append(out, c)
	}

	return out, nil
}

func spread(out []any, rv reflect.Value) []any {
	for i := 0; i < rv.Len(); i++ {
		out = append(out, rv.Index(i).Interface())
	}
	return out
}

// reduceCustom folds contributions through fn. A panicking merge function is
// reported as an error so the owning superstep fails instead of the process.
func reduceCustom(fn MergeFunc, current any, contributions []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("custom reducer panicked: %v", r)
		}
	}()

	acc := current
	for _, c := range contributions {
		acc, err = fn(acc, c)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}
