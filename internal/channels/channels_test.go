package channels

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/schema"
)

func TestSet_CommitKeepsUntouchedFields(t *testing.T) {
	s := schema.MustNew(schema.Replace("x"), schema.Replace("y"), schema.Append("log"))
	base := domain.State{"x": 1, "y": "keep", "log": []any{"a"}}

	set := New(s, 0, base)
	require.NoError(t, set.Apply(&domain.Node{ID: "n1"}, domain.Update{"x": 2, "log": "b"}))
	require.NoError(t, set.Apply(&domain.Node{ID: "n2"}, domain.Update{"x": 3, "log": []string{"c", "d"}}))

	next, changed, err := set.Commit()
	require.NoError(t, err)

	assert.Equal(t, 3, next["x"], "replace keeps the last writer in task order")
	assert.Equal(t, "keep", next["y"])
	assert.Equal(t, []any{"a", "b", "c", "d"}, next["log"])
	assert.Equal(t, []string{"x", "log"}, changed)
	assert.Equal(t, 1, base["x"], "base state must not be modified")
}

func TestSet_CommitWithoutWrites(t *testing.T) {
	s := schema.MustNew(schema.Replace("x"))
	set := New(s, 0, domain.State{"x": 1})
	assert.False(t, set.Touched())

	next, changed, err := set.Commit()
	require.NoError(t, err)
	assert.Equal(t, domain.State{"x": 1}, next)
	assert.Empty(t, changed)
}

func TestSet_UndeclaredField(t *testing.T) {
	s := schema.MustNew(schema.Replace("x"))
	set := New(s, 0, domain.State{})

	var cfgErr *domain.ConfigurationError
	err := set.Apply(&domain.Node{ID: "n"}, domain.Update{"x": 1, "ghost": 2})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "ghost", cfgErr.Field)
	assert.False(t, set.Touched(), "a rejected update must not be partially buffered")

	assert.ErrorAs(t, set.Write("n", "ghost", 1), &cfgErr)
}

func TestSet_DeclaredWrites(t *testing.T) {
	s := schema.MustNew(schema.Replace("x"), schema.Replace("y"))
	set := New(s, 0, domain.State{})

	var cfgErr *domain.ConfigurationError
	err := set.Apply(&domain.Node{ID: "n", Writes: []string{"x"}}, domain.Update{"y": 1})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "y", cfgErr.Field)
}

func TestSet_ReducerError(t *testing.T) {
	boom := errors.New("boom")
	s := schema.MustNew(schema.Custom("total", func(cur, upd any) (any, error) { return nil, boom }))
	set := New(s, 4, domain.State{})
	require.NoError(t, set.Write("a", "total", 1))
	require.NoError(t, set.Write("b", "total", 2))
	require.NoError(t, set.Write("a", "total", 3))

	_, _, err := set.Commit()
	var redErr *domain.ReducerError
	require.ErrorAs(t, err, &redErr)
	assert.Equal(t, "total", redErr.Field)
	assert.Equal(t, []string{"a", "b"}, redErr.Nodes)
	assert.Equal(t, 4, redErr.Step)
	assert.ErrorIs(t, err, boom)
}

func TestSet_TypeMismatchIsReducerError(t *testing.T) {
	s := schema.MustNew(schema.Replace("n").Of(schema.Int()))
	set := New(s, 0, domain.State{})
	require.NoError(t, set.Write("a", "n", "not a number"))

	_, _, err := set.Commit()
	var redErr *domain.ReducerError
	assert.ErrorAs(t, err, &redErr)
}
