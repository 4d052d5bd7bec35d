package dsl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/schema"
)

var noop = domain.HandlerFunc(func(context.Context, domain.State) (domain.Update, error) { return nil, nil })

func TestBuilder_SimpleFlow(t *testing.T) {
	b := New(schema.MustNew(schema.Replace("x")))

	require.NoError(t, b.AddNode("a", noop, WithWrites("x")))
	require.NoError(t, b.AddNode("b", noop))
	require.NoError(t, b.AddEdge(domain.Start, "a"))
	require.NoError(t, b.AddEdge("a", "b"))
	require.NoError(t, b.AddEdge("b", domain.End))

	g, err := b.Compile()
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, g.NodeIDs())
	assert.Equal(t, []string{"b"}, g.Outgoing("a").Edges)
	n, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, n.Writes)
}

func TestBuilder_RegistrationErrors(t *testing.T) {
	b := New(schema.MustNew(schema.Replace("x")))

	require.NoError(t, b.AddNode("a", noop))

	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, b.AddNode("a", noop), &cfgErr, "duplicate")
	assert.ErrorAs(t, b.AddNode(domain.End, noop), &cfgErr, "reserved")
	assert.ErrorAs(t, b.AddEdge("a", "later"), &cfgErr, "unregistered destination")
	assert.ErrorAs(t, b.AddEdge("ghost", "a"), &cfgErr, "unregistered source")
	assert.ErrorAs(t, b.AddConditionalEdges("a", nil, map[string]string{"x": "a"}), &cfgErr, "no route")
	assert.ErrorAs(t, b.AddFanOut("a", func(context.Context, domain.State) ([]domain.Send, error) { return nil, nil }), &cfgErr, "no targets")

	_, err := b.Compile()
	var compileErr *domain.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.GreaterOrEqual(t, len(compileErr.Errors), 6)
}

func TestBuilder_DuplicateAddLeavesFirstNodeAlone(t *testing.T) {
	b := New(schema.MustNew(schema.Replace("x"), schema.Replace("y")))
	b.Add("a", noop).Writes("x").Entry().Terminal()
	b.Add("a", noop).Writes("y").Timeout(time.Second)

	first := b.nodes[b.index["a"]]
	assert.Equal(t, []string{"x"}, first.Writes)
	assert.Zero(t, first.Timeout)

	_, err := b.Compile()
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestBuilder_CompileIsIdempotent(t *testing.T) {
	b := New(schema.MustNew(schema.Append("items")))
	b.Add("a", noop).Entry().Go("b")
	b.Add("b", noop).Terminal()

	g1, err := b.Compile()
	require.NoError(t, err)
	g2, err := b.Compile()
	require.NoError(t, err)

	assert.Equal(t, g1.Edges(), g2.Edges())
	assert.Len(t, g2.Edges(), 3)
}

func TestBuilder_FluentForwardReferences(t *testing.T) {
	b := New(schema.MustNew(schema.Replace("verdict")))
	route := func(_ context.Context, s domain.State) ([]string, error) {
		return []string{s["verdict"].(string)}, nil
	}

	b.Add("generator", noop).Entry().Go("evaluator")
	b.Add("evaluator", noop).Branch(route, map[string]string{"accept": domain.End, "reject": "generator"})

	g, err := b.Compile()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"generator", domain.End}, g.Outgoing("evaluator").Successors())
}

func TestBuilder_CompileReportsGraphErrors(t *testing.T) {
	b := New(schema.MustNew(schema.Replace("x")))
	b.Add("a", noop).Entry().Go("missing")
	b.Add("b", noop, WithWrites("nope")).Terminal()

	_, err := b.Compile()
	require.Error(t, err)

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), `"missing"`)
	assert.Contains(t, err.Error(), "unreachable")
	assert.Contains(t, err.Error(), `field "nope"`)
}

func TestBuilder_NoSchema(t *testing.T) {
	_, err := New(nil).Compile()
	assert.Error(t, err)
}
