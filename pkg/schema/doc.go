// Package schema declares the shape of the shared graph state and how concurrent
// writes to each field are merged.
//
// A StateSchema is an ordered list of fields. Every field carries a reducer kind
// (replace, append or custom) and an optional Type used to validate reduced values.
// There is no implicit reducer other than replace.
//
// Basic usage:
//
//	state := schema.MustNew(
//	    schema.Replace("topic").Of(schema.String()),
//	    schema.Append("sections").Of(schema.Slice(schema.String())),
//	    schema.Custom("total", func(cur, upd any) (any, error) {
//	        n, _ := cur.(int)
//	        return n + upd.(int), nil
//	    }),
//	)
//
//	next, err := state.Reduce("sections", nil, []any{[]string{"intro"}, "body"})
//	// next == []any{"intro", "body"}
//
// The type system (String, Int, Float, Bool, Slice, Map, Any, Validated) accepts
// the shapes produced by JSON decoding, so values read back from a durable
// checkpoint store validate the same way as freshly produced ones. Type names
// round-trip through ParseType:
//
//	t, err := schema.ParseType("[string]")
//	// t.Name() == "[string]"
//
// This package has no dependencies beyond the Go standard library.
package schema
