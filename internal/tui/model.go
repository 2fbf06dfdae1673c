package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"researchchat/internal/conversation"
	"researchchat/internal/domain"
	"researchchat/internal/embedding"
	"researchchat/internal/selection"
)

// AssistantPort is the TUI-facing subset of the assistant service.
type AssistantPort interface {
	StartPicking(ctx context.Context) (*selection.Session, domain.Library, error)
	ReloadLibrary(ctx context.Context) (domain.Library, error)
	Toggle(item domain.SelectionItem) (bool, error)
	RefreshStatuses(ctx context.Context) bool
	Submit(ctx context.Context) (embedding.Result, error)
	Confirm(ctx context.Context, ready []string) error
	Cancel() error
	NewChat()
	Ask(ctx context.Context, question string) ([]domain.Message, error)
	Chat() *conversation.Controller
	Conversations() *conversation.Store
	Embedding() *embedding.Orchestrator
}

type screen int

const (
	screenChat screen = iota
	screenPicker
	screenResults
	screenList
)

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	app      AssistantPort
	screen   screen
	input    textinput.Model
	viewport viewport.Model
	status   string
	warning  string
	ready    bool

	session  *selection.Session
	library  domain.Library
	rows     []row
	cursor   int
	busy     bool
	result   embedding.Result
	excluded map[string][]domain.SelectionItem

	conversations []domain.ConversationSummary
	listCursor    int

	cancelSend context.CancelFunc
}

// New creates a new TUI model instance.
func New(app AssistantPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{app: app, input: ti, viewport: vp, status: helpChat}
}

const (
	helpChat    = "enter send | ctrl+o sources | ctrl+g global | ctrl+t context | ctrl+l history | ctrl+n new | ctrl+v verify"
	helpPicker  = "space toggle | enter index | r reload | esc cancel"
	helpResults = "x drop/keep | enter attach ready | esc back"
	helpList    = "enter open | d delete | esc back"
)

type (
	libraryMsg struct {
		session *selection.Session
		library domain.Library
		err     error
	}
	polledMsg    struct{ applied bool }
	submittedMsg struct {
		result embedding.Result
		err    error
	}
	confirmedMsg struct{ err error }
	sentMsg      struct{ err error }
	listMsg      struct {
		list []domain.ConversationSummary
		err  error
	}
	openedMsg      struct{ err error }
	deletedMsg     struct{ err error }
	contextModeMsg struct{ err error }
	verifiedMsg    struct {
		drift conversation.Drift
		err   error
	}
)

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.refreshList())
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := boxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 2 + qh + 1 // header, status + warning, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refreshViewport()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			if m.cancelSend != nil {
				m.cancelSend()
			}
			return m, tea.Quit
		}
		switch m.screen {
		case screenPicker:
			return m.updatePicker(msg)
		case screenResults:
			return m.updateResults(msg)
		case screenList:
			return m.updateList(msg)
		}
		return m.updateChat(msg)
	case libraryMsg:
		m.busy = false
		m.session = msg.session
		m.library = msg.library
		m.rows = buildRows(msg.library)
		m.cursor = 0
		if msg.err != nil {
			m.status = "Failed to load library. Press r to retry."
		} else {
			m.status = helpPicker
		}
		m.refreshViewport()
		return m, nil
	case polledMsg:
		m.refreshViewport()
		return m, nil
	case submittedMsg:
		m.busy = false
		if msg.err != nil {
			var agg *embedding.AggregateSubmitError
			if errors.As(msg.err, &agg) {
				m.status = "Indexing failed for every item. Adjust the selection and retry."
			} else {
				m.status = "Error: " + msg.err.Error()
			}
			m.refreshViewport()
			return m, nil
		}
		m.result = msg.result
		m.excluded = make(map[string][]domain.SelectionItem)
		m.cursor = 0
		m.screen = screenResults
		m.status = helpResults
		if msg.result.Partial {
			m.status = fmt.Sprintf("%d of %d ready. %s", len(msg.result.Ready), len(msg.result.Outcomes), helpResults)
		}
		m.refreshViewport()
		return m, nil
	case confirmedMsg:
		m.screen = screenChat
		m.session = nil
		m.status = helpChat
		m.setWarning(msg.err)
		m.refreshViewport()
		return m, m.refreshList()
	case sentMsg:
		m.cancelSend = nil
		m.status = helpChat
		var sendErr *conversation.SendError
		if msg.err != nil && !errors.As(msg.err, &sendErr) {
			m.setWarning(msg.err)
		}
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil
	case listMsg:
		m.conversations = msg.list
		if m.listCursor >= len(m.conversations) {
			m.listCursor = max(0, len(m.conversations)-1)
		}
		m.refreshViewport()
		return m, nil
	case openedMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.screen = screenChat
			m.status = helpChat
		}
		m.refreshViewport()
		m.viewport.GotoBottom()
		return m, nil
	case deletedMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		}
		m.conversations = m.app.Conversations().List()
		m.refreshViewport()
		return m, nil
	case contextModeMsg:
		m.setWarning(msg.err)
		m.refreshViewport()
		return m, nil
	case verifiedMsg:
		switch {
		case msg.err != nil:
			m.setWarning(msg.err)
		case msg.drift.InSync():
			m.warning = ""
			m.status = "Attachments match the server."
		default:
			m.warning = fmt.Sprintf("Server attachments differ: %d missing, %d extra.", len(msg.drift.Missing), len(msg.drift.Extra))
		}
		return m, nil
	}
	var cmd tea.Cmd
	if m.screen == screenChat {
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m *Model) setWarning(err error) {
	if err == nil {
		m.warning = ""
		return
	}
	var assoc *conversation.AssociationError
	if errors.As(err, &assoc) {
		m.warning = "Warning: " + assoc.Op + " did not reach the server; press ctrl+v to check."
		return
	}
	m.warning = "Error: " + err.Error()
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	chat := m.app.Chat()
	switch msg.String() {
	case "enter":
		q := strings.TrimSpace(m.input.Value())
		if q == "" || chat.Snapshot().Sending {
			return m, nil
		}
		m.input.SetValue("")
		ctx, cancel := context.WithCancel(context.Background())
		m.cancelSend = cancel
		m.status = "Thinking... (esc to cancel)"
		app := m.app
		send := func() tea.Msg {
			defer cancel()
			_, err := app.Ask(ctx, q)
			return sentMsg{err: err}
		}
		// Redraw shortly after so the optimistic message shows while waiting.
		redraw := tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg { return polledMsg{} })
		return m, tea.Batch(send, redraw)
	case "esc":
		if m.cancelSend != nil {
			m.cancelSend()
		}
		return m, nil
	case "ctrl+n":
		m.app.NewChat()
		m.warning = ""
		m.refreshViewport()
		return m, nil
	case "ctrl+o":
		m.screen = screenPicker
		m.busy = true
		m.status = "Loading library..."
		m.refreshViewport()
		return m, m.startPicking()
	case "ctrl+g":
		chat.SwitchToGlobal()
		m.refreshViewport()
		return m, nil
	case "ctrl+t":
		next := domain.ContextFullContext
		if chat.Snapshot().ContextMode == domain.ContextFullContext {
			next = domain.ContextRAG
		}
		if !chat.FullContextAvailable() {
			m.status = "Full context needs documents mode with attached documents."
			return m, nil
		}
		return m, func() tea.Msg {
			return contextModeMsg{err: chat.SetContextMode(context.Background(), next)}
		}
	case "ctrl+l":
		m.screen = screenList
		m.status = helpList
		m.conversations = m.app.Conversations().List()
		m.refreshViewport()
		return m, m.refreshList()
	case "ctrl+v":
		return m, func() tea.Msg {
			d, err := chat.VerifyAttachments(context.Background())
			return verifiedMsg{drift: d, err: err}
		}
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) startPicking() tea.Cmd {
	return func() tea.Msg {
		session, lib, err := m.app.StartPicking(context.Background())
		return libraryMsg{session: session, library: lib, err: err}
	}
}

func (m Model) refreshList() tea.Cmd {
	store := m.app.Conversations()
	return func() tea.Msg {
		list, err := store.Refresh(context.Background())
		return listMsg{list: list, err: err}
	}
}

func (m Model) pollStatuses() tea.Cmd {
	return func() tea.Msg {
		return polledMsg{applied: m.app.RefreshStatuses(context.Background())}
	}
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.screen = screenChat
		m.status = helpChat
		m.refreshViewport()
		return m, nil
	case "up":
		if len(m.conversations) > 0 {
			m.listCursor = (m.listCursor - 1 + len(m.conversations)) % len(m.conversations)
		}
	case "down":
		if len(m.conversations) > 0 {
			m.listCursor = (m.listCursor + 1) % len(m.conversations)
		}
	case "enter":
		if len(m.conversations) == 0 {
			return m, nil
		}
		id := m.conversations[m.listCursor].ID
		chat := m.app.Chat()
		return m, func() tea.Msg {
			return openedMsg{err: chat.Open(context.Background(), id)}
		}
	case "d":
		if len(m.conversations) == 0 {
			return m, nil
		}
		id := m.conversations[m.listCursor].ID
		chat := m.app.Chat()
		return m, func() tea.Msg {
			return deletedMsg{err: chat.Delete(context.Background(), id)}
		}
	}
	m.refreshViewport()
	return m, nil
}

// View renders the TUI layout for the current screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.headerLine())
	body := boxStyle.Render(m.viewport.View())
	status := statusStyle.Render(m.status)
	warning := warningStyle.Render(m.warning)
	if m.screen == screenChat {
		return header + "\n" + body + "\n" + queryBoxStyle.Render(m.input.View()) + "\n" + status + "\n" + warning
	}
	return header + "\n" + body + "\n" + status + "\n" + warning
}

func (m Model) headerLine() string {
	snap := m.app.Chat().Snapshot()
	switch m.screen {
	case screenPicker, screenResults:
		if m.session == nil {
			return "Research Chat | choose sources"
		}
		s := m.session.Summarize()
		line := fmt.Sprintf("Research Chat | %d selected", s.Total())
		if s.PapersToDownload > 0 {
			line += fmt.Sprintf(" | %d paper(s) will auto-download", s.PapersToDownload)
		}
		if s.ReposToIngest > 0 {
			line += fmt.Sprintf(" | %d repo(s) will be ingested", s.ReposToIngest)
		}
		return line
	case screenList:
		return fmt.Sprintf("Research Chat | %d conversation(s)", len(m.conversations))
	}
	line := "Research Chat | " + string(snap.Mode)
	if snap.Mode == domain.ModeDocuments {
		line += fmt.Sprintf(" (%s) | %d attached", snap.ContextMode, len(snap.Attached))
	}
	if snap.Title != "" {
		line += " | " + snap.Title
	}
	return line
}

func (m *Model) refreshViewport() {
	switch m.screen {
	case screenPicker:
		m.viewport.SetContent(m.renderPicker())
	case screenResults:
		m.viewport.SetContent(m.renderResults())
	case screenList:
		m.viewport.SetContent(m.renderList())
	default:
		m.viewport.SetContent(renderTranscript(m.app.Chat().Snapshot().Messages, m.viewport.Width))
	}
}

func (m Model) renderList() string {
	if len(m.conversations) == 0 {
		return "No conversations yet."
	}
	var b strings.Builder
	for i, c := range m.conversations {
		cursor := "  "
		if i == m.listCursor {
			cursor = "> "
		}
		title := c.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "%s%s  %s  %s\n", cursor, title, dimStyle.Render(string(c.Mode)), dimStyle.Render(c.UpdatedAt.Format("2006-01-02 15:04")))
		if c.LastMessagePreview != "" {
			b.WriteString("    " + dimStyle.Render(c.LastMessagePreview) + "\n")
		}
	}
	return b.String()
}

var (
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	botStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
