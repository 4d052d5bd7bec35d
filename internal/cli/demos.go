package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/dsl"
	"github.com/aretw0/strand/pkg/registry"
	"github.com/aretw0/strand/pkg/schema"
)

// Demo is a ready-made graph exercising one workflow pattern.
type Demo struct {
	Name        string
	Description string
	// InputKey receives the --input text when it is not a JSON object.
	InputKey string
	// Build assembles the graph. tools holds extra tools for graphs that call
	// them and may be nil.
	Build func(m Model, tools *registry.Registry) *dsl.Builder
}

var demos = map[string]Demo{
	"chain": {
		Name:        "chain",
		Description: "Prompt chaining: draft a joke, gate on the punchline, improve and polish it.",
		InputKey:    "topic",
		Build:       chainDemo,
	},
	"parallel": {
		Name:        "parallel",
		Description: "Parallelization: a joke, a story and a poem written in one superstep, then combined.",
		InputKey:    "topic",
		Build:       parallelDemo,
	},
	"route": {
		Name:        "route",
		Description: "Routing: classify the request and hand it to a specialised writer.",
		InputKey:    "input",
		Build:       routeDemo,
	},
	"orchestrate": {
		Name:        "orchestrate",
		Description: "Orchestrator-worker: plan report sections and fan out one worker per section.",
		InputKey:    "topic",
		Build:       orchestrateDemo,
	},
	"optimize": {
		Name:        "optimize",
		Description: "Evaluator-optimizer: regenerate a joke until the evaluator accepts it.",
		InputKey:    "topic",
		Build:       optimizeDemo,
	},
	"agent": {
		Name:        "agent",
		Description: "Tool calling: a planner loops with a tool node until the arithmetic is done.",
		InputKey:    "input",
		Build:       agentDemo,
	},
}

// LookupDemo returns the demo registered under name.
func LookupDemo(name string) (Demo, error) {
	d, ok := demos[name]
	if !ok {
		return Demo{}, fmt.Errorf("unknown graph %q (available: %s)", name, strings.Join(DemoNames(), ", "))
	}
	return d, nil
}

// DemoNames lists the registered demos in alphabetical order.
func DemoNames() []string {
	names := make([]string, 0, len(demos))
	for name := range demos {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func str(state domain.State, key string) string {
	s, _ := state[key].(string)
	return s
}

// toInt reads a counter that may have round-tripped through JSON.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func chainDemo(m Model, _ *registry.Registry) *dsl.Builder {
	b := dsl.New(schema.MustNew(
		schema.Replace("topic").Of(schema.String()),
		schema.Replace("joke").Of(schema.String()),
		schema.Replace("improved_joke").Of(schema.String()),
		schema.Replace("final_joke").Of(schema.String()),
	))

	b.AddFunc("generate_joke", func(ctx context.Context, s domain.State) (domain.Update, error) {
		joke, err := m.Generate(ctx, "a joke about "+str(s, "topic"))
		return domain.Update{"joke": joke}, err
	}).Entry().Writes("joke").Branch(func(_ context.Context, s domain.State) ([]string, error) {
		joke := str(s, "joke")
		if strings.ContainsAny(joke, "?!") {
			return []string{"fail"}, nil
		}
		return []string{"pass"}, nil
	}, map[string]string{"pass": "improve_joke", "fail": domain.End})

	b.AddFunc("improve_joke", func(ctx context.Context, s domain.State) (domain.Update, error) {
		joke, err := m.Generate(ctx, "wordplay for: "+str(s, "joke"))
		return domain.Update{"improved_joke": joke}, err
	}).Writes("improved_joke").Go("polish_joke")

	b.AddFunc("polish_joke", func(ctx context.Context, s domain.State) (domain.Update, error) {
		joke, err := m.Generate(ctx, "a surprising twist on: "+str(s, "improved_joke"))
		return domain.Update{"final_joke": joke}, err
	}).Writes("final_joke").Terminal()

	return b
}

func parallelDemo(m Model, _ *registry.Registry) *dsl.Builder {
	b := dsl.New(schema.MustNew(
		schema.Replace("topic").Of(schema.String()),
		schema.Replace("joke").Of(schema.String()),
		schema.Replace("story").Of(schema.String()),
		schema.Replace("poem").Of(schema.String()),
		schema.Replace("combined_output").Of(schema.String()),
	))

	for _, kind := range []string{"joke", "story", "poem"} {
		b.AddFunc("write_"+kind, func(ctx context.Context, s domain.State) (domain.Update, error) {
			text, err := m.Generate(ctx, "a "+kind+" about "+str(s, "topic"))
			return domain.Update{kind: text}, err
		}).Entry().Writes(kind).Go("aggregator")
	}

	b.AddFunc("aggregator", func(_ context.Context, s domain.State) (domain.Update, error) {
		combined := fmt.Sprintf("Here's a story, joke, and poem about %s!\n\nSTORY:\n%s\n\nJOKE:\n%s\n\nPOEM:\n%s",
			str(s, "topic"), str(s, "story"), str(s, "joke"), str(s, "poem"))
		return domain.Update{"combined_output": combined}, nil
	}).Writes("combined_output").Terminal()

	return b
}

func routeDemo(m Model, _ *registry.Registry) *dsl.Builder {
	b := dsl.New(schema.MustNew(
		schema.Replace("input").Of(schema.String()),
		schema.Replace("decision").Of(schema.String()),
		schema.Replace("output").Of(schema.String()),
	))

	b.AddFunc("router", func(_ context.Context, s domain.State) (domain.Update, error) {
		in := strings.ToLower(str(s, "input"))
		decision := "story"
		switch {
		case strings.Contains(in, "joke"):
			decision = "joke"
		case strings.Contains(in, "poem"):
			decision = "poem"
		}
		return domain.Update{"decision": decision}, nil
	}).Entry().Writes("decision").Branch(func(_ context.Context, s domain.State) ([]string, error) {
		return []string{str(s, "decision")}, nil
	}, map[string]string{"story": "write_story", "joke": "write_joke", "poem": "write_poem"})

	for _, kind := range []string{"story", "joke", "poem"} {
		b.AddFunc("write_"+kind, func(ctx context.Context, s domain.State) (domain.Update, error) {
			text, err := m.Generate(ctx, "a "+kind+" for: "+str(s, "input"))
			return domain.Update{"output": text}, err
		}).Writes("output").Terminal()
	}

	return b
}

func orchestrateDemo(m Model, _ *registry.Registry) *dsl.Builder {
	b := dsl.New(schema.MustNew(
		schema.Replace("topic").Of(schema.String()),
		schema.Replace("sections").Of(schema.Slice(schema.String())),
		schema.Append("completed_sections").Of(schema.Slice(schema.String())),
		schema.Replace("final_report").Of(schema.String()),
	))

	b.AddFunc("orchestrator", func(_ context.Context, s domain.State) (domain.Update, error) {
		topic := str(s, "topic")
		return domain.Update{"sections": []any{
			"Introduction to " + topic,
			"How " + topic + " works",
			"Open questions about " + topic,
		}}, nil
	}).Entry().Writes("sections").FanOut(func(_ context.Context, s domain.State) ([]domain.Send, error) {
		sections, _ := s["sections"].([]any)
		sends := make([]domain.Send, 0, len(sections))
		for _, sec := range sections {
			sends = append(sends, domain.Send{Node: "write_section", Arg: domain.Update{"section": sec}})
		}
		return sends, nil
	}, "write_section")

	b.AddFunc("write_section", func(ctx context.Context, s domain.State) (domain.Update, error) {
		section := str(s, "section")
		body, err := m.Generate(ctx, section)
		if err != nil {
			return nil, err
		}
		return domain.Update{"completed_sections": "## " + section + "\n\n" + body}, nil
	}).Writes("completed_sections").Go("synthesizer")

	b.AddFunc("synthesizer", func(_ context.Context, s domain.State) (domain.Update, error) {
		var parts []string
		if done, ok := s["completed_sections"].([]any); ok {
			for _, d := range done {
				if text, ok := d.(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return domain.Update{"final_report": strings.Join(parts, "\n\n---\n\n")}, nil
	}).Writes("final_report").Terminal()

	return b
}

// acceptAfterDrafts is how many drafts the optimize demo's evaluator asks for.
const acceptAfterDrafts = 2

func optimizeDemo(m Model, _ *registry.Registry) *dsl.Builder {
	b := dsl.New(schema.MustNew(
		schema.Replace("topic").Of(schema.String()),
		schema.Replace("joke").Of(schema.String()),
		schema.Replace("feedback").Of(schema.String()),
		schema.Replace("funny_or_not").Of(schema.String()),
		schema.Custom("attempts", func(current, update any) (any, error) {
			n := toInt(current)
			inc, ok := update.(int)
			if !ok {
				return nil, fmt.Errorf("attempts expects int increments, got %T", update)
			}
			return n + inc, nil
		}).Of(schema.Int()),
	))

	b.AddFunc("generator", func(ctx context.Context, s domain.State) (domain.Update, error) {
		prompt := "a joke about " + str(s, "topic")
		if fb := str(s, "feedback"); fb != "" {
			prompt += " considering the feedback: " + fb
		}
		joke, err := m.Generate(ctx, prompt)
		return domain.Update{"joke": joke, "attempts": 1}, err
	}).Entry().Writes("joke", "attempts").Go("evaluator")

	b.AddFunc("evaluator", func(ctx context.Context, s domain.State) (domain.Update, error) {
		if toInt(s["attempts"]) >= acceptAfterDrafts {
			return domain.Update{"funny_or_not": "funny", "feedback": ""}, nil
		}
		fb, err := m.Generate(ctx, "make it sharper than: "+str(s, "joke"))
		return domain.Update{"funny_or_not": "not funny", "feedback": fb}, err
	}).Writes("funny_or_not", "feedback").Branch(func(_ context.Context, s domain.State) ([]string, error) {
		return []string{str(s, "funny_or_not")}, nil
	}, map[string]string{"funny": domain.End, "not funny": "generator"})

	return b
}
