package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchchat/internal/api/memory"
	"researchchat/internal/domain"
)

func TestFetchStoresSnapshot(t *testing.T) {
	r := NewReader(memory.NewWithLibrary(memory.DemoLibrary()), time.Second, nil)

	_, ok := r.Snapshot()
	require.False(t, ok)

	lib, err := r.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, lib.Folders, 1)

	doc, ok := r.Document("doc-notes")
	require.True(t, ok)
	assert.Equal(t, "Reading notes.md", doc.Label())

	doc, ok = r.Document("doc-thesis")
	require.True(t, ok)
	assert.Equal(t, "application/pdf", doc.ContentType)

	_, ok = r.Document("nope")
	assert.False(t, ok)
}

func TestFetchFailureKeepsPreviousSnapshot(t *testing.T) {
	backend := memory.NewWithLibrary(memory.DemoLibrary())
	r := NewReader(backend, time.Second, nil)
	_, err := r.Fetch(context.Background())
	require.NoError(t, err)

	backend.Fail(memory.OpFetchLibrary, errors.New("connection refused"))
	_, err = r.Fetch(context.Background())

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, err.Error(), "failed to load library")

	_, ok := r.Document("doc-thesis")
	assert.True(t, ok)
}

func TestVisiblePrunesEmptyFolders(t *testing.T) {
	folders := []domain.Folder{
		{ID: "a", Children: []domain.Folder{{ID: "a1"}, {ID: "a2", Repos: []domain.Repository{{RepoID: "r"}}}}},
		{ID: "b", Children: []domain.Folder{{ID: "b1"}}},
	}

	got := Visible(folders)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	require.Len(t, got[0].Children, 1)
	assert.Equal(t, "a2", got[0].Children[0].ID)
}

func TestItemResolvesReferences(t *testing.T) {
	lib := memory.DemoLibrary()
	tests := []struct {
		ref  string
		kind domain.ItemKind
		ok   bool
	}{
		{"doc-thesis", domain.KindDocument, true},
		{"doc:doc-notes", domain.KindDocument, true},
		{"paper:paper-rag", domain.KindPaper, true},
		{"repo-faiss", domain.KindRepository, true},
		{"repo:paper-rag", "", false},
		{"nothing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			item, ok := Item(lib, tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, item.Kind)
		})
	}
}
