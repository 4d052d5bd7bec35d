package testutils

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/dsl"
	"github.com/aretw0/strand/pkg/schema"
)

// Compile builds the graph and fails the test immediately on error.
func Compile(t *testing.T, b *dsl.Builder) *domain.Graph {
	t.Helper()
	g, err := b.Compile()
	require.NoError(t, err, "Failed to compile graph")
	return g
}

// Sequential is START -> a -> b -> END where a sets x to 1 and b increments it.
func Sequential(t *testing.T) *domain.Graph {
	t.Helper()
	b := dsl.New(schema.MustNew(schema.Replace("x").Of(schema.Int())))
	b.AddFunc("a", func(ctx context.Context, s domain.State) (domain.Update, error) {
		return domain.Update{"x": 1}, nil
	}).Entry().Go("b")
	b.AddFunc("b", func(ctx context.Context, s domain.State) (domain.Update, error) {
		return domain.Update{"x": AsInt(s["x"]) + 1}, nil
	}).Terminal()
	return Compile(t, b)
}

// FanOutBuilder returns START -> plan -> worker* -> collect -> END. Each worker
// appends item*10 to results; collect records how many results it saw.
// The worker body may be replaced to inject delays or failures.
func FanOutBuilder(worker domain.HandlerFunc) *dsl.Builder {
	b := dsl.New(schema.MustNew(
		schema.Replace("items").Of(schema.Slice(schema.Int())),
		schema.Append("results"),
		schema.Replace("seen").Of(schema.Int()),
	))
	if worker == nil {
		worker = func(ctx context.Context, s domain.State) (domain.Update, error) {
			return domain.Update{"results": AsInt(s["item"]) * 10}, nil
		}
	}

	b.AddFunc("plan", func(ctx context.Context, s domain.State) (domain.Update, error) {
		return nil, nil
	}).Entry().FanOut(func(ctx context.Context, s domain.State) ([]domain.Send, error) {
		items, _ := s["items"].([]any)
		sends := make([]domain.Send, 0, len(items))
		for _, it := range items {
			sends = append(sends, domain.Send{Node: "worker", Arg: domain.Update{"item": it}})
		}
		return sends, nil
	}, "worker")
	b.Add("worker", worker, dsl.WithWrites("results")).Go("collect")
	b.AddFunc("collect", func(ctx context.Context, s domain.State) (domain.Update, error) {
		results, _ := s["results"].([]any)
		return domain.Update{"seen": len(results)}, nil
	}).Terminal()
	return b
}

// Loop is START -> generator -> evaluator with evaluator routing "reject" back to
// generator until it has seen acceptAfter attempts, then "accept" to END.
func Loop(t *testing.T, acceptAfter int) *domain.Graph {
	t.Helper()
	b := dsl.New(schema.MustNew(
		schema.Append("drafts"),
		schema.Replace("verdict").Of(schema.String()),
	))
	b.AddFunc("generator", func(ctx context.Context, s domain.State) (domain.Update, error) {
		drafts, _ := s["drafts"].([]any)
		return domain.Update{"drafts": fmt.Sprintf("draft-%d", len(drafts)+1)}, nil
	}).Entry().Go("evaluator")
	b.AddFunc("evaluator", func(ctx context.Context, s domain.State) (domain.Update, error) {
		drafts, _ := s["drafts"].([]any)
		if len(drafts) >= acceptAfter {
			return domain.Update{"verdict": "accept"}, nil
		}
		return domain.Update{"verdict": "reject"}, nil
	}).Branch(func(ctx context.Context, s domain.State) ([]string, error) {
		return []string{s["verdict"].(string)}, nil
	}, map[string]string{"accept": domain.End, "reject": "generator"})
	return Compile(t, b)
}

// AsInt reads a numeric state value regardless of how it was decoded.
func AsInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
