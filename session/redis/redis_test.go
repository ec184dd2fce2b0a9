package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/docintel/docintel/agent"
	"github.com/docintel/docintel/session"
)

func TestRedisSessionStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store := New(Options{Addr: mr.Addr()})
	defer store.Close()

	ctx := context.Background()

	// Missing session
	_, err = store.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, session.ErrNotFound)

	state := agent.State{
		Messages: []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeHuman, "what is the rate?"),
			llms.TextParts(llms.ChatMessageTypeAI, "it is 80%"),
		},
		Sources: []agent.SourceRecord{
			{ID: "/docs/a.pdf_1", Content: "chunk", Metadata: map[string]any{"path": "/docs/a.pdf"}},
		},
		AdHocContext: "per-turn only",
	}

	require.NoError(t, store.Save(ctx, "sess-1", state))

	loaded, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, llms.ChatMessageTypeHuman, loaded.Messages[0].Role)
	require.Len(t, loaded.Sources, 1)
	assert.Equal(t, "/docs/a.pdf_1", loaded.Sources[0].ID)
	assert.Empty(t, loaded.AdHocContext, "per-turn context must not persist")

	// Delete
	require.NoError(t, store.Delete(ctx, "sess-1"))
	_, err = store.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRedisSessionStoreTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store := New(Options{Addr: mr.Addr(), TTL: time.Minute})
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "sess-1", agent.State{}))

	mr.FastForward(2 * time.Minute)

	_, err = store.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}
