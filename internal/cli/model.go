package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/strand/pkg/stream"
)

// Model is the text generator the demo graphs call from their node bodies.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ScriptedModel is a deterministic Model that streams its reply word by word
// through the node's stream writer.
type ScriptedModel struct {
	// Respond maps a prompt to a reply. Nil uses a canned reply derived from the prompt.
	Respond func(prompt string) string
	// Delay is slept between tokens.
	Delay time.Duration
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, prompt string) (string, error) {
	reply := cannedReply(prompt)
	if m.Respond != nil {
		reply = m.Respond(prompt)
	}

	w := stream.FromContext(ctx)
	words := strings.Fields(reply)
	for i, word := range words {
		if m.Delay > 0 {
			timer := time.NewTimer(m.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return "", err
		}
		if i < len(words)-1 {
			word += " "
		}
		if err := w.Token(word, map[string]any{"index": i}); err != nil {
			return "", err
		}
	}
	return reply, nil
}

func cannedReply(prompt string) string {
	p := strings.TrimSpace(prompt)
	if p == "" {
		return "..."
	}
	return fmt.Sprintf("A short take on %s.", p)
}
