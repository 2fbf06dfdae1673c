package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"researchchat/internal/api/memory"
	"researchchat/internal/catalog"
	"researchchat/internal/config"
	"researchchat/internal/conversation"
	"researchchat/internal/domain"
	"researchchat/internal/embedding"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Server:    config.ServerConfig{BaseURL: "http://localhost", TimeoutSecs: 5},
		Embedding: config.EmbeddingConfig{SubmitTimeoutSecs: 5, PollTimeoutSecs: 5},
		Chat:      config.ChatConfig{SendTimeoutSecs: 5},
	}
}

func item(t *testing.T, lib domain.Library, ref string) domain.SelectionItem {
	t.Helper()
	it, ok := catalog.Item(lib, ref)
	require.True(t, ok, ref)
	return it
}

// Two documents (one ready, one still indexing) and a repository not yet
// ingested: only the ready document is attached.
func TestPickSubmitAndChat(t *testing.T) {
	ctx := context.Background()
	b := memory.NewWithLibrary(memory.DemoLibrary())
	b.SetOutcome("doc-notes", domain.EmbedStatus{DocumentID: "doc-notes", Status: domain.EmbedProcessing})
	b.SetOutcome("repo-faiss", domain.EmbedStatus{DocumentID: "doc-faiss", Status: domain.EmbedProcessing})
	a := NewAssistant(b, testConfig(), nil)

	session, lib, err := a.StartPicking(ctx)
	require.NoError(t, err)
	assert.Equal(t, conversation.StateSelectingDocuments, a.Chat().State())

	for _, ref := range []string{"doc-thesis", "doc-notes", "repo-faiss"} {
		on, err := a.Toggle(item(t, lib, ref))
		require.NoError(t, err)
		assert.True(t, on)
	}
	assert.Equal(t, 2, session.Summarize().Documents)
	assert.Equal(t, 1, session.Summarize().ReposToIngest)

	assert.True(t, a.RefreshStatuses(ctx))
	assert.False(t, a.RefreshStatuses(ctx), "unchanged selection is not polled again")

	res, err := a.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-thesis"}, res.Ready)
	assert.True(t, res.Partial)
	st, _ := a.Embedding().Status("doc-notes")
	assert.Equal(t, domain.EmbedProcessing, st.Status)

	require.NoError(t, a.Confirm(ctx, res.Ready))
	assert.Nil(t, a.Picking())
	snap := a.Chat().Snapshot()
	assert.Equal(t, conversation.StateIdleDocuments, snap.State)
	assert.Equal(t, []string{"doc-thesis"}, snap.Attached)

	_, err = a.Ask(ctx, "What is the main contribution?")
	require.NoError(t, err)
	assert.Equal(t, conversation.StateActiveDocuments, a.Chat().State())
	assert.Len(t, a.Conversations().List(), 1)
}

func TestAggregateFailureKeepsPickerOpen(t *testing.T) {
	ctx := context.Background()
	b := memory.NewWithLibrary(memory.DemoLibrary())
	b.SetOutcome("doc-thesis", domain.EmbedStatus{DocumentID: "doc-thesis", Status: domain.EmbedFailed, ErrorMessage: "corrupt PDF"})
	a := NewAssistant(b, testConfig(), nil)

	session, lib, err := a.StartPicking(ctx)
	require.NoError(t, err)
	_, err = a.Toggle(item(t, lib, "doc-thesis"))
	require.NoError(t, err)

	_, err = a.Submit(ctx)
	var agg *embedding.AggregateSubmitError
	require.ErrorAs(t, err, &agg)
	assert.Same(t, session, a.Picking())
	assert.Equal(t, 1, session.Len())
	assert.Equal(t, conversation.StateSelectingDocuments, a.Chat().State())

	require.NoError(t, a.Cancel())
	assert.Nil(t, a.Picking())
	assert.Zero(t, session.Len())
	assert.Equal(t, conversation.StateIdleGlobal, a.Chat().State())
}

func TestCatalogFailureLeavesPickerRetryable(t *testing.T) {
	ctx := context.Background()
	b := memory.NewWithLibrary(memory.DemoLibrary())
	b.Fail(memory.OpFetchLibrary, errors.New("502"))
	a := NewAssistant(b, testConfig(), nil)

	_, _, err := a.StartPicking(ctx)
	var loadErr *catalog.LoadError
	require.ErrorAs(t, err, &loadErr)
	require.NotNil(t, a.Picking())

	b.Clear(memory.OpFetchLibrary)
	lib, err := a.ReloadLibrary(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, lib.RootDocuments)
}

func TestPickingOperationsNeedOpenPicker(t *testing.T) {
	a := NewAssistant(memory.New(), testConfig(), nil)
	_, err := a.Toggle(domain.DocumentItem(domain.Document{ID: "d"}))
	assert.ErrorIs(t, err, ErrNoPicking)
	_, err = a.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNoPicking)
	_, err = a.ReloadLibrary(context.Background())
	assert.ErrorIs(t, err, ErrNoPicking)
	assert.False(t, a.RefreshStatuses(context.Background()))
}

func TestAttachItems(t *testing.T) {
	ctx := context.Background()
	lib := memory.DemoLibrary()
	b := memory.NewWithLibrary(lib)
	a := NewAssistant(b, testConfig(), nil)

	res, err := a.AttachItems(ctx, []domain.SelectionItem{
		item(t, lib, "paper-rag"),
		item(t, lib, "paper-offline"),
		item(t, lib, "doc-thesis"),
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc-paper-rag", "doc-thesis"}, res.Ready)
	assert.False(t, res.Partial, "the unavailable paper never entered the selection")

	snap := a.Chat().Snapshot()
	assert.Equal(t, domain.ModeDocuments, snap.Mode)
	assert.ElementsMatch(t, []string{"doc-paper-rag", "doc-thesis"}, snap.Attached)
}

func TestIndexItemsCreatesNoConversation(t *testing.T) {
	ctx := context.Background()
	lib := memory.DemoLibrary()
	b := memory.NewWithLibrary(lib)
	a := NewAssistant(b, testConfig(), nil)

	res, err := a.IndexItems(ctx, []domain.SelectionItem{item(t, lib, "doc-thesis"), item(t, lib, "repo-faiss")})
	require.NoError(t, err)
	assert.Len(t, res.Ready, 2)

	assert.Nil(t, a.Picking())
	assert.Equal(t, conversation.StateIdleGlobal, a.Chat().State())
	assert.Empty(t, b.Calls(memory.OpCreateConversation))
	assert.Empty(t, b.Calls(memory.OpSetAttachedDocuments))

	st, ok := a.Embedding().Status("doc-thesis")
	require.True(t, ok)
	assert.Equal(t, domain.EmbedCompleted, st.Status)
}

func TestIndexItemsAggregateFailureClosesPicker(t *testing.T) {
	lib := memory.DemoLibrary()
	b := memory.NewWithLibrary(lib)
	b.Fail(memory.OpEmbedDocuments, errors.New("server down"))
	a := NewAssistant(b, testConfig(), nil)

	_, err := a.IndexItems(context.Background(), []domain.SelectionItem{item(t, lib, "doc-thesis")})
	var agg *embedding.AggregateSubmitError
	require.ErrorAs(t, err, &agg)
	assert.Nil(t, a.Picking())
	assert.Equal(t, conversation.StateIdleGlobal, a.Chat().State())
}

func TestNewChatDiscardsPicker(t *testing.T) {
	ctx := context.Background()
	a := NewAssistant(memory.NewWithLibrary(memory.DemoLibrary()), testConfig(), nil)
	session, lib, err := a.StartPicking(ctx)
	require.NoError(t, err)
	_, err = a.Toggle(item(t, lib, "doc-thesis"))
	require.NoError(t, err)

	a.NewChat()
	assert.Nil(t, a.Picking())
	assert.Zero(t, session.Len())
	assert.Equal(t, conversation.StateIdleGlobal, a.Chat().State())
}

func TestNewBackendUsesLongestTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Chat.SendTimeoutSecs = 90
	assert.NotNil(t, NewBackend(cfg, nil))
	assert.Equal(t, cfg.Chat.SendTimeout(), longest(cfg.Server.Timeout(), cfg.Embedding.SubmitTimeout(), cfg.Chat.SendTimeout()))
}
