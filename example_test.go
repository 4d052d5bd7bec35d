package strand_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/strand"
	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/dsl"
	"github.com/aretw0/strand/pkg/schema"
)

// ExampleCompile runs a two step sequential graph.
func ExampleCompile() {
	b := dsl.New(schema.MustNew(schema.Replace("x").Of(schema.Int())))
	b.AddFunc("a", func(ctx context.Context, s domain.State) (domain.Update, error) {
		return domain.Update{"x": 1}, nil
	}).Entry().Go("b")
	b.AddFunc("b", func(ctx context.Context, s domain.State) (domain.Update, error) {
		return domain.Update{"x": s["x"].(int) + 1}, nil
	}).Terminal()

	graph, err := strand.Compile(b)
	if err != nil {
		log.Fatal(err)
	}

	state, err := graph.Invoke(context.Background(), domain.Update{"x": 0}, "example")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("x =", state["x"])
	// Output: x = 2
}

// ExampleRunnable_Stream shows per-node deltas of a fan-out.
func ExampleRunnable_Stream() {
	b := dsl.New(schema.MustNew(
		schema.Replace("topics").Of(schema.Slice(schema.String())),
		schema.Append("jokes"),
	))
	b.AddFunc("plan", func(ctx context.Context, s domain.State) (domain.Update, error) {
		return nil, nil
	}).Entry().FanOut(func(ctx context.Context, s domain.State) ([]domain.Send, error) {
		var sends []domain.Send
		for _, t := range s["topics"].([]string) {
			sends = append(sends, domain.Send{Node: "joke", Arg: domain.Update{"topic": t}})
		}
		return sends, nil
	}, "joke")
	b.AddFunc("joke", func(ctx context.Context, s domain.State) (domain.Update, error) {
		return domain.Update{"jokes": "a joke about " + s["topic"].(string)}, nil
	}, dsl.WithWrites("jokes")).Terminal()

	graph, err := strand.Compile(b)
	if err != nil {
		log.Fatal(err)
	}

	input := domain.Update{"topics": []string{"cats", "dogs"}}
	for ev, err := range graph.Stream(context.Background(), input, "jokes", domain.StreamDeltas) {
		if err != nil {
			log.Fatal(err)
		}
		delta := ev.Payload.(domain.Delta)
		fmt.Println(ev.TaskID, delta.Update["jokes"])
	}
	// Output:
	// 0:plan:0 <nil>
	// 1:joke:0 a joke about cats
	// 1:joke:1 a joke about dogs
}
