package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"researchchat/internal/api/memory"
	"researchchat/internal/config"
	"researchchat/internal/conversation"
	"researchchat/internal/domain"
	"researchchat/internal/service"
)

func newTestModel(t *testing.T) (Model, *service.Assistant) {
	t.Helper()
	cfg := &config.AppConfig{
		Server:    config.ServerConfig{BaseURL: "http://localhost", TimeoutSecs: 5},
		Embedding: config.EmbeddingConfig{SubmitTimeoutSecs: 5, PollTimeoutSecs: 5},
		Chat:      config.ChatConfig{SendTimeoutSecs: 5},
	}
	a := service.NewAssistant(memory.NewWithLibrary(memory.DemoLibrary()), cfg, nil)
	m := New(a)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(Model), a
}

// press sends a key and runs the resulting command once.
func press(t *testing.T, m Model, key tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(key)
	m = next.(Model)
	if cmd != nil {
		if msg := cmd(); msg != nil {
			next, _ = m.Update(msg)
			m = next.(Model)
		}
	}
	return m
}

func TestPickerFlowAttachesReadyDocuments(t *testing.T) {
	m, a := newTestModel(t)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	require.Equal(t, screenPicker, m.screen)
	require.NotEmpty(t, m.rows)
	assert.Contains(t, m.View(), "Reading notes.md")
	assert.NotContains(t, m.View(), "Empty/")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	require.NotNil(t, m.rows[m.cursor].item)
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	require.Equal(t, 1, a.Picking().Len())

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, screenResults, m.screen)
	require.NotEmpty(t, m.result.Ready)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, screenChat, m.screen)
	snap := a.Chat().Snapshot()
	assert.Equal(t, conversation.StateIdleDocuments, snap.State)
	assert.Len(t, snap.Attached, 1)
	assert.Contains(t, m.View(), "1 attached")
}

func TestPickerEscapeReturnsToGlobal(t *testing.T) {
	m, a := newTestModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	assert.Equal(t, screenChat, m.screen)
	assert.Nil(t, a.Picking())
	assert.Equal(t, domain.ModeGlobal, a.Chat().Snapshot().Mode)
}

func TestUnavailablePaperCannotBeToggled(t *testing.T) {
	m, a := newTestModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	for i, r := range m.rows {
		if r.item != nil && r.item.ID == "paper-offline" {
			m.cursor = i
		}
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	assert.Zero(t, a.Picking().Len())
	assert.Contains(t, m.status, "no PDF")
}

func TestContextToggleNeedsAttachments(t *testing.T) {
	m, a := newTestModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.Equal(t, domain.ContextRAG, a.Chat().Snapshot().ContextMode)
	assert.Contains(t, m.status, "Full context")
}

func TestHighlightBestSentence(t *testing.T) {
	mark := func(s ...string) string { return "[[" + strings.Join(s, "") + "]]" }
	tests := []struct {
		name  string
		text  string
		query string
		want  string
	}{
		{
			name:  "best sentence",
			text:  "Transformers use attention. Retrieval adds documents to the prompt.",
			query: "how does retrieval work with documents?",
			want:  "Transformers use attention. [[Retrieval adds documents to the prompt.]]",
		},
		{
			name:  "unterminated tail is kept",
			text:  "Retrieval helps grounding. See the code below:\n\nfunc main() {}",
			query: "retrieval grounding",
			want:  "[[Retrieval helps grounding.]] See the code below:\n\nfunc main() {}",
		},
		{
			name:  "dotted tokens are not split",
			text:  "Read arxiv.org/abs/1234 for retrieval details.",
			query: "retrieval details",
			want:  "Read arxiv.[[org/abs/1234 for retrieval details.]]",
		},
		{
			name:  "paragraph breaks are kept",
			text:  "First point.\n\nSecond point about retrieval.\n",
			query: "retrieval",
			want:  "First point.\n\n[[Second point about retrieval.]]\n",
		},
		{
			name:  "tail without punctuation",
			text:  "no punctuation",
			query: "punctuation",
			want:  "[[no punctuation]]",
		},
		{name: "empty query", text: "Anything at all.", query: "", want: "Anything at all."},
		{name: "no overlap", text: "Anything at all.", query: "retrieval", want: "Anything at all."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := markBestSentence(tt.text, tt.query, mark)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.text, strings.NewReplacer("[[", "", "]]", "").Replace(got))
		})
	}
}

func cursorTo(t *testing.T, m Model, id string) Model {
	t.Helper()
	for i, r := range m.rows {
		if r.item != nil && r.item.ID == id {
			m.cursor = i
			return m
		}
	}
	t.Fatalf("no row for %s", id)
	return m
}

func TestDownloadedPaperShowsIndexedStatus(t *testing.T) {
	m, _ := newTestModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	m = cursorTo(t, m, "paper-rag")
	assert.Contains(t, m.itemBadge(*m.rows[m.cursor].item), "will download")

	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, screenResults, m.screen)
	require.Equal(t, []string{"doc-paper-rag"}, m.result.Ready)
	assert.Contains(t, m.renderResults(), "Retrieval-Augmented Generation")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, screenPicker, m.screen)
	m = cursorTo(t, m, "paper-rag")
	badge := m.itemBadge(*m.rows[m.cursor].item)
	assert.Contains(t, badge, "ready (3 chunks)")
	assert.NotContains(t, badge, "will download")
}

func TestResultsDropCanBeUndone(t *testing.T) {
	m, a := newTestModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	m = cursorTo(t, m, "doc-notes")
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, screenResults, m.screen)

	drop := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}
	m = press(t, m, drop)
	assert.Zero(t, a.Picking().Len())
	assert.Contains(t, m.renderResults(), "(dropped)")

	m = press(t, m, drop)
	assert.Equal(t, 1, a.Picking().Len())
	assert.NotContains(t, m.renderResults(), "(dropped)")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"doc-notes"}, a.Chat().Snapshot().Attached)
}
