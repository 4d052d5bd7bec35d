package stream_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/strand/pkg/domain"
	"github.com/aretw0/strand/pkg/stream"
)

func TestFromContext_DiscardsWithoutWriter(t *testing.T) {
	w := stream.FromContext(context.Background())
	assert.NoError(t, w.Token("hi", nil))
	assert.NoError(t, w.Progress(map[string]any{"pct": 50}))
}

func TestTaskWriter(t *testing.T) {
	type emitted struct {
		mode    domain.StreamMode
		payload any
	}
	var got []emitted
	w := stream.NewTaskWriter(func(mode domain.StreamMode, payload any) {
		got = append(got, emitted{mode, payload})
	})

	ctx := stream.WithWriter(context.Background(), w)
	require.NoError(t, stream.FromContext(ctx).Token("he", map[string]any{"model": "scripted"}))
	require.NoError(t, stream.FromContext(ctx).Progress("half way"))

	w.Close()
	assert.ErrorIs(t, w.Token("llo", nil), domain.ErrWriterClosed)
	assert.ErrorIs(t, w.Progress("done"), domain.ErrWriterClosed)

	require.Len(t, got, 2)
	assert.Equal(t, domain.StreamTokens, got[0].mode)
	assert.Equal(t, domain.Token{Fragment: "he", Meta: map[string]any{"model": "scripted"}}, got[0].payload)
	assert.Equal(t, emitted{domain.StreamProgress, "half way"}, got[1])
}
