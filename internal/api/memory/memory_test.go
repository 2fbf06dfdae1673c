package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchchat/internal/api"
	"researchchat/internal/domain"
)

func TestEmbedDocumentsFollowsLibrary(t *testing.T) {
	b := NewWithLibrary(DemoLibrary())

	got, err := b.EmbedDocuments(context.Background(), []string{"doc-thesis", "missing"}, []string{"paper-rag", "paper-dpr", "paper-offline"})
	require.NoError(t, err)
	require.Len(t, got, 5)

	byID := map[string]domain.EmbedStatus{}
	for _, st := range got {
		byID[st.DocumentID] = st
	}
	assert.Equal(t, domain.EmbedCompleted, byID["doc-paper-rag"].Status)
	assert.Equal(t, domain.EmbedCompleted, byID["doc-dpr"].Status)
	assert.Equal(t, domain.EmbedFailed, byID["paper-offline"].Status)
	assert.NotEmpty(t, byID["paper-offline"].ErrorMessage)
	assert.Equal(t, domain.EmbedCompleted, byID["doc-thesis"].Status)
	assert.Equal(t, domain.EmbedFailed, byID["missing"].Status)

	statuses, err := b.FetchEmbedStatus(context.Background(), []string{"doc-thesis", "never"})
	require.NoError(t, err)
	assert.Equal(t, domain.EmbedCompleted, statuses[0].Status)
	assert.Equal(t, domain.EmbedPending, statuses[1].Status)
}

func TestSetOutcomeOverrides(t *testing.T) {
	b := NewWithLibrary(DemoLibrary())
	b.SetOutcome("repo-faiss", domain.EmbedStatus{DocumentID: "doc-faiss", Status: domain.EmbedProcessing})

	got, err := b.EmbedRepositories(context.Background(), []string{"repo-faiss"})
	require.NoError(t, err)
	assert.Equal(t, []domain.EmbedStatus{{DocumentID: "doc-faiss", Status: domain.EmbedProcessing}}, got)
}

func TestFailAndClear(t *testing.T) {
	b := New()
	boom := errors.New("boom")
	b.Fail(OpFetchLibrary, boom)

	_, err := b.FetchLibrary(context.Background())
	assert.ErrorIs(t, err, boom)

	b.Clear(OpFetchLibrary)
	_, err = b.FetchLibrary(context.Background())
	assert.NoError(t, err)
	assert.Len(t, b.Calls(OpFetchLibrary), 2)
}

func TestGateBlocksUntilReleased(t *testing.T) {
	b := New()
	gate := b.Hold(OpListConversations)

	done := make(chan error, 1)
	go func() {
		_, err := b.ListConversations(context.Background())
		done <- err
	}()

	<-gate.Entered()
	select {
	case <-done:
		t.Fatal("call returned before release")
	case <-time.After(20 * time.Millisecond):
	}
	gate.Release()
	require.NoError(t, <-done)
}

func TestGateHonoursContext(t *testing.T) {
	b := New()
	b.Hold(OpSendMessage)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.SendMessage(ctx, "c1", "hi")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	b := NewWithLibrary(DemoLibrary())

	sum, err := b.CreateConversation(ctx, domain.CreateConversationParams{Mode: domain.ModeDocuments, ContextMode: domain.ContextRAG})
	require.NoError(t, err)
	require.NotEmpty(t, sum.ID)

	require.NoError(t, b.SetAttachedDocuments(ctx, sum.ID, []string{"doc-thesis"}))
	ids, err := b.FetchAttachedDocuments(ctx, sum.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-thesis"}, ids)

	msgs, err := b.SendMessage(ctx, sum.ID, "What is the thesis about?")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].Citations, 1)
	assert.Equal(t, "Thesis draft.pdf", msgs[1].Citations[0].Title)

	list, err := b.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "What is the thesis about?", list[0].Title)
	assert.NotEmpty(t, list[0].LastMessagePreview)

	require.Error(t, b.UpdateContextMode(ctx, sum.ID, "bogus"))
	require.NoError(t, b.UpdateContextMode(ctx, sum.ID, domain.ContextFullContext))

	require.NoError(t, b.DeleteConversation(ctx, sum.ID))
	_, err = b.FetchConversation(ctx, sum.ID)
	assert.ErrorIs(t, err, api.ErrNotFound)
}
