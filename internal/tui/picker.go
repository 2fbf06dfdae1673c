package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"researchchat/internal/catalog"
	"researchchat/internal/domain"
	"researchchat/internal/selection"
)

// row is one line of the picker: a folder heading or a selectable item.
type row struct {
	depth  int
	folder string
	item   *domain.SelectionItem
}

func buildRows(lib domain.Library) []row {
	var rows []row
	var walk func(fs []domain.Folder, depth int)
	walk = func(fs []domain.Folder, depth int) {
		for _, f := range fs {
			rows = append(rows, row{depth: depth, folder: f.Name})
			for _, d := range f.Documents {
				it := domain.DocumentItem(d)
				rows = append(rows, row{depth: depth + 1, item: &it})
			}
			for _, p := range f.Papers {
				it := domain.PaperItem(p)
				rows = append(rows, row{depth: depth + 1, item: &it})
			}
			for _, r := range f.Repos {
				it := domain.RepositoryItem(r)
				rows = append(rows, row{depth: depth + 1, item: &it})
			}
			walk(f.Children, depth+1)
		}
	}
	walk(catalog.Visible(lib.Folders), 0)
	if len(lib.RootDocuments) > 0 {
		rows = append(rows, row{folder: "Unfiled documents"})
		for _, d := range lib.RootDocuments {
			it := domain.DocumentItem(d)
			rows = append(rows, row{depth: 1, item: &it})
		}
	}
	return rows
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	switch msg.String() {
	case "esc":
		if err := m.app.Cancel(); err != nil {
			m.setWarning(err)
		}
		m.session = nil
		m.screen = screenChat
		m.status = helpChat
		m.refreshViewport()
		return m, nil
	case "up":
		m.cursor = m.nextItem(-1)
	case "down":
		m.cursor = m.nextItem(1)
	case " ":
		if m.cursor >= len(m.rows) || m.rows[m.cursor].item == nil {
			return m, nil
		}
		if _, err := m.app.Toggle(*m.rows[m.cursor].item); err != nil {
			if errors.Is(err, selection.ErrPaperUnavailable) {
				m.status = "This paper has no PDF to download."
			} else {
				m.status = "Error: " + err.Error()
			}
			m.refreshViewport()
			return m, nil
		}
		m.status = helpPicker
		m.refreshViewport()
		return m, m.pollStatuses()
	case "r":
		m.busy = true
		m.status = "Reloading library..."
		app, session := m.app, m.session
		return m, func() tea.Msg {
			lib, err := app.ReloadLibrary(context.Background())
			return libraryMsg{session: session, library: lib, err: err}
		}
	case "enter":
		if m.session == nil || m.session.Len() == 0 {
			return m, nil
		}
		m.busy = true
		m.status = "Indexing..."
		app := m.app
		return m, func() tea.Msg {
			res, err := app.Submit(context.Background())
			return submittedMsg{result: res, err: err}
		}
	}
	m.refreshViewport()
	return m, nil
}

// nextItem moves the cursor to the next selectable row in direction dir.
func (m Model) nextItem(dir int) int {
	n := len(m.rows)
	if n == 0 {
		return 0
	}
	i := m.cursor
	for step := 0; step < n; step++ {
		i = (i + dir + n) % n
		if m.rows[i].item != nil {
			return i
		}
	}
	return m.cursor
}

func (m Model) renderPicker() string {
	if m.busy && len(m.rows) == 0 {
		return "Loading library..."
	}
	if len(m.rows) == 0 {
		return "No sources in the library."
	}
	var b strings.Builder
	for i, r := range m.rows {
		indent := strings.Repeat("  ", r.depth)
		if r.item == nil {
			b.WriteString(indent + dimStyle.Render(r.folder+"/") + "\n")
			continue
		}
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		check := "[ ]"
		if m.session != nil && m.session.Contains(r.item.Key()) {
			check = "[x]"
		}
		fmt.Fprintf(&b, "%s%s%s %s %s%s\n", cursor, indent, check, kindLabel(r.item.Kind), r.item.Label, m.itemBadge(*r.item))
	}
	return b.String()
}

func kindLabel(k domain.ItemKind) string {
	switch k {
	case domain.KindPaper:
		return dimStyle.Render("paper")
	case domain.KindRepository:
		return dimStyle.Render("repo ")
	}
	return dimStyle.Render("doc  ")
}

func (m Model) itemBadge(it domain.SelectionItem) string {
	if it.Kind == domain.KindPaper && it.Paper != nil && !it.Paper.Retrievable() {
		return "  " + dimStyle.Render("(no PDF)")
	}
	if st, ok := m.app.Embedding().ItemStatus(it); ok {
		return "  " + statusBadge(st)
	}
	switch {
	case it.Kind == domain.KindPaper && it.Paper != nil && !it.Paper.HasLocalPDF:
		return "  " + dimStyle.Render("(will download)")
	case it.Kind == domain.KindRepository && it.Repo != nil && !it.Repo.HasLocalDoc:
		return "  " + dimStyle.Render("(will ingest)")
	}
	return ""
}

func statusBadge(st domain.EmbedStatus) string {
	switch st.Status {
	case domain.EmbedCompleted:
		return okStyle.Render(fmt.Sprintf("ready (%d chunks)", st.ChunkCount))
	case domain.EmbedFailed:
		return failStyle.Render("failed: " + st.ErrorMessage)
	case domain.EmbedProcessing:
		return warningStyle.Render("processing")
	}
	return dimStyle.Render(string(st.Status))
}

func (m Model) updateResults(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	outcomes := m.result.Outcomes
	switch msg.String() {
	case "esc":
		m.screen = screenPicker
		m.status = helpPicker
	case "up":
		if len(outcomes) > 0 {
			m.cursor = (m.cursor - 1 + len(outcomes)) % len(outcomes)
		}
	case "down":
		if len(outcomes) > 0 {
			m.cursor = (m.cursor + 1) % len(outcomes)
		}
	case "x":
		if len(outcomes) == 0 {
			return m, nil
		}
		id := outcomes[m.cursor].DocumentID
		if dropped, ok := m.excluded[id]; ok {
			delete(m.excluded, id)
			m.restore(dropped)
			break
		}
		m.excluded[id] = m.dropFromSession(id)
	case "enter":
		var ready []string
		for _, id := range m.result.Ready {
			if _, dropped := m.excluded[id]; !dropped {
				ready = append(ready, id)
			}
		}
		app := m.app
		return m, func() tea.Msg {
			return confirmedMsg{err: app.Confirm(context.Background(), ready)}
		}
	}
	m.refreshViewport()
	return m, nil
}

// describes reports whether the outcome id belongs to a selected item.
func (m Model) describes(it domain.SelectionItem, id string) bool {
	return it.ID == id || m.app.Embedding().DocumentID(it) == id
}

// dropFromSession removes the items an outcome belongs to and returns them.
func (m *Model) dropFromSession(id string) []domain.SelectionItem {
	if m.session == nil {
		return nil
	}
	var dropped []domain.SelectionItem
	for _, it := range m.session.Items() {
		if m.describes(it, id) && m.session.Remove(it.Key()) {
			dropped = append(dropped, it)
		}
	}
	return dropped
}

func (m *Model) restore(items []domain.SelectionItem) {
	if m.session == nil {
		return
	}
	for _, it := range items {
		if m.session.Contains(it.Key()) {
			continue
		}
		if _, err := m.session.Toggle(it); err != nil {
			m.status = "Error: " + err.Error()
		}
	}
}

func (m Model) outcomeLabel(id string) string {
	if m.session == nil {
		return id
	}
	for _, it := range m.session.Items() {
		if m.describes(it, id) && it.Label != "" {
			return it.Label
		}
	}
	label, _ := m.session.ResolveLabel(id)
	return label
}

func (m Model) renderResults() string {
	if len(m.result.Outcomes) == 0 {
		return "Nothing was submitted."
	}
	var b strings.Builder
	for i, st := range m.result.Outcomes {
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		label := m.outcomeLabel(st.DocumentID)
		if _, dropped := m.excluded[st.DocumentID]; dropped {
			label = dimStyle.Render(label + " (dropped)")
		}
		fmt.Fprintf(&b, "%s%s  %s\n", cursor, label, statusBadge(st))
	}
	return b.String()
}
