package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchchat/internal/domain"
)

type fakeResolver map[string]domain.Document

func (f fakeResolver) Document(id string) (domain.Document, bool) {
	d, ok := f[id]
	return d, ok
}

var (
	doc         = domain.DocumentItem(domain.Document{ID: "d1", OriginalFilename: "a.pdf", ContentType: "application/pdf"})
	remotePaper = domain.PaperItem(domain.Paper{PaperID: "p1", Title: "Remote", PDFURL: "https://x/p1.pdf"})
	localPaper  = domain.PaperItem(domain.Paper{PaperID: "p2", Title: "Local", HasLocalPDF: true, DocumentID: "d2"})
	deadPaper   = domain.PaperItem(domain.Paper{PaperID: "p3", Title: "No PDF"})
	repo        = domain.RepositoryItem(domain.Repository{RepoID: "r1", FullName: "org/repo"})
	ingested    = domain.RepositoryItem(domain.Repository{RepoID: "r2", FullName: "org/done", HasLocalDoc: true, DocumentID: "d3"})
)

func TestToggleTwiceRestoresState(t *testing.T) {
	s := NewSession(nil, nil)
	_, err := s.Toggle(doc)
	require.NoError(t, err)
	before := s.Items()

	for _, it := range []domain.SelectionItem{remotePaper, repo} {
		on, err := s.Toggle(it)
		require.NoError(t, err)
		assert.True(t, on)
		on, err = s.Toggle(it)
		require.NoError(t, err)
		assert.False(t, on)
	}

	assert.Equal(t, before, s.Items())
}

func TestPaperWithoutPDFNeverSelected(t *testing.T) {
	s := NewSession(nil, nil)
	for i := 0; i < 3; i++ {
		on, err := s.Toggle(deadPaper)
		assert.ErrorIs(t, err, ErrPaperUnavailable)
		assert.False(t, on)
	}
	assert.False(t, s.Contains(deadPaper.Key()))
	assert.Zero(t, s.Len())
	assert.Zero(t, s.Generation())
}

func TestToggleRejectsMalformedItems(t *testing.T) {
	tests := []struct {
		name string
		item domain.SelectionItem
		want error
	}{
		{"paper without record", domain.SelectionItem{Kind: domain.KindPaper, ID: "p"}, ErrMissingRecord},
		{"repo without record", domain.SelectionItem{Kind: domain.KindRepository, ID: "r"}, ErrMissingRecord},
		{"unknown kind", domain.SelectionItem{Kind: "video", ID: "v"}, ErrUnknownKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(nil, nil)
			_, err := s.Toggle(tt.item)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, s.Generation())
		})
	}
}

func TestKeysDistinguishKinds(t *testing.T) {
	s := NewSession(nil, nil)
	_, err := s.Toggle(domain.DocumentItem(domain.Document{ID: "x"}))
	require.NoError(t, err)
	_, err = s.Toggle(domain.RepositoryItem(domain.Repository{RepoID: "x"}))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
}

func TestGenerationTracksMutations(t *testing.T) {
	s := NewSession(nil, nil)
	g0 := s.Generation()
	_, _ = s.Toggle(doc)
	g1 := s.Generation()
	assert.Greater(t, g1, g0)

	assert.False(t, s.Remove(repo.Key()))
	assert.Equal(t, g1, s.Generation())

	assert.True(t, s.Remove(doc.Key()))
	assert.Greater(t, s.Generation(), g1)

	g2 := s.Generation()
	s.Reset()
	assert.Equal(t, g2, s.Generation(), "resetting an empty session is not a mutation")
}

func TestBatchesAndStatusIDs(t *testing.T) {
	s := NewSession(nil, nil)
	for _, it := range []domain.SelectionItem{doc, remotePaper, localPaper, repo, ingested} {
		_, err := s.Toggle(it)
		require.NoError(t, err)
	}

	b := s.Batches()
	assert.Equal(t, []string{"d1"}, b.DocumentIDs)
	assert.Equal(t, []string{"p1", "p2"}, b.PaperIDs)
	assert.Equal(t, []string{"r1", "r2"}, b.RepoIDs)
	assert.False(t, b.Empty())

	assert.Equal(t, []string{"d1", "d2"}, s.StatusIDs())
}

func TestSummarize(t *testing.T) {
	s := NewSession(nil, nil)
	for _, it := range []domain.SelectionItem{doc, remotePaper, localPaper, repo, ingested} {
		_, _ = s.Toggle(it)
	}

	assert.Equal(t, Summary{Documents: 1, Papers: 2, Repos: 2, PapersToDownload: 1, ReposToIngest: 1}, s.Summarize())
	assert.Equal(t, 5, s.Summarize().Total())
}

func TestResolveLabel(t *testing.T) {
	s := NewSession(fakeResolver{"d9": {ID: "d9", Filename: "raw.txt", ContentType: "text/plain"}}, nil)
	_, _ = s.Toggle(localPaper)

	label, ct := s.ResolveLabel("d9")
	assert.Equal(t, "raw.txt", label)
	assert.Equal(t, "text/plain", ct)

	label, _ = s.ResolveLabel("d2")
	assert.Equal(t, "Local", label)

	label, ct = s.ResolveLabel("unknown")
	assert.Equal(t, "unknown", label)
	assert.Empty(t, ct)
}
