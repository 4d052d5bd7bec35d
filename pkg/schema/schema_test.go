package schema

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestNew_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{"empty name", []Field{Replace("")}},
		{"duplicate", []Field{Replace("a"), Append("a")}},
		{"custom without merge", []Field{{Name: "a", Reducer: ReducerCustom}}},
		{"unknown reducer", []Field{{Name: "a", Reducer: "max"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.fields...)
			if !errors.Is(err, ErrInvalidSchema) {
				t.Errorf("New() error = %v, want ErrInvalidSchema", err)
			}
		})
	}
}

func TestStateSchema_Order(t *testing.T) {
	s := MustNew(Replace("b"), Append("a"), Replace("c"))
	want := []string{"b", "a", "c"}
	if got := s.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	f, ok := s.Field("x")
	if ok {
		t.Errorf("Field(x) = %v, want missing", f)
	}
}

func TestReduce_Replace(t *testing.T) {
	s := MustNew(Replace("x"))

	got, err := s.Reduce("x", 0, []any{1, 2, 3})
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if got != 3 {
		t.Errorf("Reduce() = %v, want last writer 3", got)
	}

	got, _ = s.Reduce("x", 7, nil)
	if got != 7 {
		t.Errorf("Reduce() with no contributions = %v, want unchanged 7", got)
	}
}

func TestReduce_Append(t *testing.T) {
	s := MustNew(Append("items"))

	got, err := s.Reduce("items", []string{"a"}, []any{[]string{"b", "c"}, "d", nil, []any{1}})
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	want := []any{"a", "b", "c", "d", 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Reduce() = %v, want %v", got, want)
	}
}

func TestReduce_AppendKeepsBytesWhole(t *testing.T) {
	s := MustNew(Append("blobs"))

	got, err := s.Reduce("blobs", nil, []any{[]byte("hi")})
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if l := len(got.([]any)); l != 1 {
		t.Errorf("len = %d, want 1", l)
	}
}

func TestReduce_AppendRejectsScalarCurrent(t *testing.T) {
	s := MustNew(Append("items"))
	if _, err := s.Reduce("items", "oops", []any{"a"}); err == nil {
		t.Error("Reduce() should fail when the current value is not a list")
	}
}

func TestReduce_Custom(t *testing.T) {
	sum := func(cur, upd any) (any, error) {
		n, _ := cur.(int)
		return n + upd.(int), nil
	}
	s := MustNew(Custom("total", sum).Of(Int()))

	got, err := s.Reduce("total", 10, []any{1, 2, 3})
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if got != 16 {
		t.Errorf("Reduce() = %v, want 16", got)
	}
}

func TestReduce_CustomFailures(t *testing.T) {
	boom := errors.New("boom")
	s := MustNew(
		Custom("err", func(cur, upd any) (any, error) { return nil, boom }),
		Custom("panic", func(cur, upd any) (any, error) { panic("bad reducer") }),
		Custom("typed", func(cur, upd any) (any, error) { return "text", nil }).Of(Int()),
	)

	if _, err := s.Reduce("err", nil, []any{1}); !errors.Is(err, boom) {
		t.Errorf("Reduce(err) = %v, want boom", err)
	}
	if _, err := s.Reduce("panic", nil, []any{1}); err == nil {
		t.Error("Reduce(panic) should convert the panic to an error")
	}

	_, err := s.Reduce("typed", nil, []any{1})
	var validErr *ValidationError
	if !errors.As(err, &validErr) || validErr.Key != "typed" {
		t.Errorf("Reduce(typed) = %v, want ValidationError for typed", err)
	}
}

func TestReduce_UnknownField(t *testing.T) {
	s := MustNew(Replace("x"))
	if _, err := s.Reduce("y", nil, []any{1}); err == nil {
		t.Error("Reduce() should fail for undeclared field")
	}
}

func TestStateSchema_JSON(t *testing.T) {
	s := MustNew(
		Replace("topic").Of(String()),
		Append("sections").Of(Slice(String())),
	)

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `[{"name":"topic","reducer":"replace","type":"string"},{"name":"sections","reducer":"append","type":"[string]"}]`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var decoded StateSchema
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	f, ok := decoded.Field("sections")
	if !ok || f.Reducer != ReducerAppend || f.Type.Name() != "[string]" {
		t.Errorf("decoded field = %+v", f)
	}

	custom := MustNew(Custom("n", func(a, b any) (any, error) { return b, nil }))
	data, _ = json.Marshal(custom)
	if err := json.Unmarshal(data, &decoded); err == nil {
		t.Error("Unmarshal() should reject custom reducers")
	}
}
