package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchchat/internal/api/memory"
	"researchchat/internal/domain"
)

func TestStoreRefreshReplacesList(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	s := NewStore(b, 0, nil)
	assert.Empty(t, s.List())

	first, err := b.CreateConversation(ctx, domain.CreateConversationParams{Mode: domain.ModeGlobal, ContextMode: domain.ContextRAG})
	require.NoError(t, err)
	list, err := s.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, b.DeleteConversation(ctx, first.ID))
	second, err := b.CreateConversation(ctx, domain.CreateConversationParams{Mode: domain.ModeGlobal, ContextMode: domain.ContextRAG})
	require.NoError(t, err)
	_, err = s.Refresh(ctx)
	require.NoError(t, err)

	_, ok := s.Get(first.ID)
	assert.False(t, ok)
	got, ok := s.Get(second.ID)
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
	assert.Len(t, s.List(), 1)
}

func TestStoreRefreshFailureKeepsList(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	s := NewStore(b, 0, nil)
	_, err := b.CreateConversation(ctx, domain.CreateConversationParams{Mode: domain.ModeGlobal, ContextMode: domain.ContextRAG})
	require.NoError(t, err)
	_, err = s.Refresh(ctx)
	require.NoError(t, err)

	b.Fail(memory.OpListConversations, errors.New("503"))
	list, err := s.Refresh(ctx)
	require.Error(t, err)
	assert.Len(t, list, 1)
}

func TestStoreForget(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	s := NewStore(b, 0, nil)
	for i := 0; i < 3; i++ {
		_, err := b.CreateConversation(ctx, domain.CreateConversationParams{Mode: domain.ModeGlobal, ContextMode: domain.ContextRAG})
		require.NoError(t, err)
	}
	list, err := s.Refresh(ctx)
	require.NoError(t, err)

	s.Forget(list[1].ID)
	assert.Len(t, s.List(), 2)
	_, ok := s.Get(list[1].ID)
	assert.False(t, ok)
	_, ok = s.Get(listKey)
	assert.False(t, ok)
}

func refreshAsync(s *Store) <-chan []domain.ConversationSummary {
	done := make(chan []domain.ConversationSummary, 1)
	go func() {
		list, _ := s.Refresh(context.Background())
		done <- list
	}()
	return done
}

func TestStoreDropsOutOfOrderRefresh(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	s := NewStore(b, 0, nil)

	slow := b.Hold(memory.OpListConversations)
	first := refreshAsync(s)
	<-slow.Entered()

	fast := b.Hold(memory.OpListConversations)
	_, err := b.CreateConversation(ctx, domain.CreateConversationParams{Mode: domain.ModeGlobal, ContextMode: domain.ContextRAG})
	require.NoError(t, err)
	second := refreshAsync(s)
	fast.Release()
	require.Len(t, <-second, 1)

	// The older refresh now reads a longer list from the server.
	_, err = b.CreateConversation(ctx, domain.CreateConversationParams{Mode: domain.ModeGlobal, ContextMode: domain.ContextRAG})
	require.NoError(t, err)
	slow.Release()
	assert.Len(t, <-first, 1)
	assert.Len(t, s.List(), 1)
}

func TestStoreForgetWinsOverInFlightRefresh(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	s := NewStore(b, 0, nil)
	c, err := b.CreateConversation(ctx, domain.CreateConversationParams{Mode: domain.ModeGlobal, ContextMode: domain.ContextRAG})
	require.NoError(t, err)
	_, err = s.Refresh(ctx)
	require.NoError(t, err)

	gate := b.Hold(memory.OpListConversations)
	pending := refreshAsync(s)
	<-gate.Entered()

	s.Forget(c.ID)
	gate.Release()
	<-pending

	_, ok := s.Get(c.ID)
	assert.False(t, ok)
	assert.Empty(t, s.List())

	// A refresh issued after Forget is applied as usual.
	_, err = s.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, s.List(), 1)
}
