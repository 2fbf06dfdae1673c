// Package memory is an in-process implementation of domain.Backend. It mirrors
// the server's observable behaviour closely enough for offline use and tests,
// and adds failure injection, call recording and request gates.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"researchchat/internal/api"
	"researchchat/internal/domain"
)

// Op names a backend operation for failure injection and call inspection.
type Op string

const (
	OpFetchLibrary           Op = "fetchLibrary"
	OpEmbedDocuments         Op = "embedDocuments"
	OpEmbedRepositories      Op = "embedRepositories"
	OpFetchEmbedStatus       Op = "fetchEmbedStatus"
	OpListConversations      Op = "listConversations"
	OpCreateConversation     Op = "createConversation"
	OpFetchConversation      Op = "fetchConversation"
	OpDeleteConversation     Op = "deleteConversation"
	OpSendMessage            Op = "sendMessage"
	OpSetAttachedDocuments   Op = "setAttachedDocuments"
	OpFetchAttachedDocuments Op = "fetchAttachedDocuments"
	OpUpdateContextMode      Op = "updateContextMode"
)

// Call records one invocation.
type Call struct {
	Op   Op
	Args []string
}

// Gate blocks calls to an operation until released.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	closed  sync.Once
}

// Entered is closed once the first call reaches the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets every waiting and future call through.
func (g *Gate) Release() { g.closed.Do(func() { close(g.release) }) }

// ReplyFunc produces the assistant side of an exchange.
type ReplyFunc func(conv *domain.Conversation, question string) []domain.Message

// Backend is safe for concurrent use.
type Backend struct {
	mu            sync.Mutex
	library       domain.Library
	outcomes      map[string]domain.EmbedStatus
	statuses      map[string]domain.EmbedStatus
	conversations map[string]*domain.Conversation
	failures      map[Op]error
	gates         map[Op]*Gate
	calls         []Call
	reply         ReplyFunc
	now           func() time.Time
}

var _ domain.Backend = (*Backend)(nil)

// New returns an empty backend.
func New() *Backend {
	return &Backend{
		outcomes:      make(map[string]domain.EmbedStatus),
		statuses:      make(map[string]domain.EmbedStatus),
		conversations: make(map[string]*domain.Conversation),
		failures:      make(map[Op]error),
		gates:         make(map[Op]*Gate),
		now:           time.Now,
	}
}

// NewWithLibrary returns a backend serving lib.
func NewWithLibrary(lib domain.Library) *Backend {
	b := New()
	b.library = lib
	return b
}

// SetOutcome fixes the result reported when id is submitted for embedding.
func (b *Backend) SetOutcome(id string, st domain.EmbedStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcomes[id] = st
}

// SetStatus fixes the result of a status query for st.DocumentID.
func (b *Backend) SetStatus(st domain.EmbedStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses[st.DocumentID] = st
}

// SetReply overrides the assistant reply.
func (b *Backend) SetReply(fn ReplyFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reply = fn
}

// Fail makes every call to op return err until Clear is called.
func (b *Backend) Fail(op Op, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = err
}

// Clear removes an injected failure.
func (b *Backend) Clear(op Op) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, op)
}

// Hold installs a gate in front of op.
func (b *Backend) Hold(op Op) *Gate {
	g := &Gate{entered: make(chan struct{}), release: make(chan struct{})}
	b.mu.Lock()
	b.gates[op] = g
	b.mu.Unlock()
	return g
}

// Calls returns every recorded call to op, or all calls when op is empty.
func (b *Backend) Calls(op Op) []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Call
	for _, c := range b.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Conversation returns a copy of the stored conversation.
func (b *Backend) Conversation(id string) (domain.Conversation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conversations[id]
	if !ok {
		return domain.Conversation{}, false
	}
	return cloneConversation(c), true
}

// enter records the call, waits at any gate and returns an injected failure.
func (b *Backend) enter(ctx context.Context, op Op, args ...string) error {
	b.mu.Lock()
	b.calls = append(b.calls, Call{Op: op, Args: args})
	g := b.gates[op]
	b.mu.Unlock()

	if g != nil {
		g.once.Do(func() { close(g.entered) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[op]
}

func (b *Backend) FetchLibrary(ctx context.Context) (*domain.Library, error) {
	if err := b.enter(ctx, OpFetchLibrary); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	lib := b.library
	return &lib, nil
}

func (b *Backend) EmbedDocuments(ctx context.Context, documentIDs, paperIDs []string) ([]domain.EmbedStatus, error) {
	if err := b.enter(ctx, OpEmbedDocuments, append(append([]string{}, documentIDs...), paperIDs...)...); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var results []domain.EmbedStatus
	for _, id := range paperIDs {
		results = append(results, b.record(b.embedPaper(id)))
	}
	for _, id := range documentIDs {
		results = append(results, b.record(b.embedDocument(id)))
	}
	return results, nil
}

func (b *Backend) EmbedRepositories(ctx context.Context, repoIDs []string) ([]domain.EmbedStatus, error) {
	if err := b.enter(ctx, OpEmbedRepositories, repoIDs...); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var results []domain.EmbedStatus
	for _, id := range repoIDs {
		results = append(results, b.record(b.embedRepo(id)))
	}
	return results, nil
}

func (b *Backend) FetchEmbedStatus(ctx context.Context, documentIDs []string) ([]domain.EmbedStatus, error) {
	if err := b.enter(ctx, OpFetchEmbedStatus, documentIDs...); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	results := make([]domain.EmbedStatus, 0, len(documentIDs))
	for _, id := range documentIDs {
		st, ok := b.statuses[id]
		if !ok {
			st = domain.EmbedStatus{DocumentID: id, Status: domain.EmbedPending}
		}
		results = append(results, st)
	}
	return results, nil
}

func (b *Backend) embedDocument(id string) domain.EmbedStatus {
	if st, ok := b.outcomes[id]; ok {
		return st
	}
	if st, ok := b.statuses[id]; ok && st.Status == domain.EmbedCompleted {
		return st
	}
	if _, ok := b.library.FindDocument(id); !ok {
		return failed(id, "Document not found")
	}
	return domain.EmbedStatus{DocumentID: id, Status: domain.EmbedCompleted, ChunkCount: 3}
}

func (b *Backend) embedPaper(id string) domain.EmbedStatus {
	if st, ok := b.outcomes[id]; ok {
		return st
	}
	p, ok := b.library.FindPaper(id)
	switch {
	case !ok:
		return failed(id, "Paper not found")
	case p.HasLocalPDF && p.DocumentID != "":
		return b.embedDocumentFor(p.DocumentID)
	case p.PDFURL == "":
		return failed(id, "Paper has no PDF URL")
	}
	return b.embedDocumentFor("doc-" + id)
}

func (b *Backend) embedRepo(id string) domain.EmbedStatus {
	if st, ok := b.outcomes[id]; ok {
		return st
	}
	r, ok := b.library.FindRepository(id)
	if !ok {
		return failed(id, "Repository not found")
	}
	if r.DocumentID != "" {
		return b.embedDocumentFor(r.DocumentID)
	}
	return b.embedDocumentFor("doc-" + id)
}

// embedDocumentFor indexes a document the server created or already had.
func (b *Backend) embedDocumentFor(docID string) domain.EmbedStatus {
	if st, ok := b.outcomes[docID]; ok {
		return st
	}
	return domain.EmbedStatus{DocumentID: docID, Status: domain.EmbedCompleted, ChunkCount: 3}
}

func (b *Backend) record(st domain.EmbedStatus) domain.EmbedStatus {
	b.statuses[st.DocumentID] = st
	return st
}

func failed(id, reason string) domain.EmbedStatus {
	return domain.EmbedStatus{DocumentID: id, Status: domain.EmbedFailed, ErrorMessage: reason}
}

func (b *Backend) ListConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	if err := b.enter(ctx, OpListConversations); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := make([]domain.ConversationSummary, 0, len(b.conversations))
	for _, c := range b.conversations {
		s := c.ConversationSummary
		if n := len(c.Messages); n > 0 {
			s.LastMessagePreview = truncate(c.Messages[n-1].Content, 100)
		}
		list = append(list, s)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list, nil
}

func (b *Backend) CreateConversation(ctx context.Context, p domain.CreateConversationParams) (*domain.ConversationSummary, error) {
	if err := b.enter(ctx, OpCreateConversation, string(p.Mode), string(p.ContextMode)); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	conv := &domain.Conversation{ConversationSummary: domain.ConversationSummary{
		ID:          uuid.NewString(),
		Title:       p.Title,
		Mode:        p.Mode,
		ContextMode: p.ContextMode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}}
	b.conversations[conv.ID] = conv
	s := conv.ConversationSummary
	return &s, nil
}

func (b *Backend) FetchConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	if err := b.enter(ctx, OpFetchConversation, id); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conversations[id]
	if !ok {
		return nil, notFound(http.MethodGet, id)
	}
	out := cloneConversation(c)
	return &out, nil
}

func (b *Backend) DeleteConversation(ctx context.Context, id string) error {
	if err := b.enter(ctx, OpDeleteConversation, id); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.conversations[id]; !ok {
		return notFound(http.MethodDelete, id)
	}
	delete(b.conversations, id)
	return nil
}

func (b *Backend) SendMessage(ctx context.Context, conversationID, question string) ([]domain.Message, error) {
	if err := b.enter(ctx, OpSendMessage, conversationID, question); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conversations[conversationID]
	if !ok {
		return nil, notFound(http.MethodPost, conversationID)
	}
	now := b.now()
	if c.Title == "" {
		c.Title = truncate(question, 100)
	}
	user := domain.Message{ID: uuid.NewString(), Role: domain.RoleUser, Content: question, CreatedAt: now}
	var answer []domain.Message
	if b.reply != nil {
		answer = b.reply(c, question)
	} else {
		answer = []domain.Message{b.defaultAnswer(c, question)}
	}
	exchange := []domain.Message{user}
	for _, m := range answer {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		exchange = append(exchange, m)
	}
	c.Messages = append(c.Messages, exchange...)
	c.UpdatedAt = now
	return append([]domain.Message(nil), exchange...), nil
}

func (b *Backend) defaultAnswer(c *domain.Conversation, question string) domain.Message {
	confidence := 0.5
	msg := domain.Message{Role: domain.RoleAssistant, Confidence: &confidence}
	if c.Mode != domain.ModeDocuments {
		msg.Content = fmt.Sprintf("(offline) No knowledge base is available to answer %q.", question)
		return msg
	}
	score := 1.0
	for _, id := range c.DocumentIDs {
		title := id
		if d, ok := b.library.FindDocument(id); ok {
			title = d.Label()
		}
		msg.Citations = append(msg.Citations, domain.Citation{ID: id, Type: "document", Title: title, RelevanceScore: &score})
	}
	msg.Content = fmt.Sprintf("(offline, %s) %d attached document(s) would be consulted for %q.",
		c.ContextMode, len(c.DocumentIDs), question)
	return msg
}

func (b *Backend) SetAttachedDocuments(ctx context.Context, conversationID string, documentIDs []string) error {
	if err := b.enter(ctx, OpSetAttachedDocuments, append([]string{conversationID}, documentIDs...)...); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conversations[conversationID]
	if !ok {
		return notFound(http.MethodPut, conversationID)
	}
	c.DocumentIDs = append([]string(nil), documentIDs...)
	return nil
}

func (b *Backend) FetchAttachedDocuments(ctx context.Context, conversationID string) ([]string, error) {
	if err := b.enter(ctx, OpFetchAttachedDocuments, conversationID); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.conversations[conversationID]
	if !ok {
		return nil, notFound(http.MethodGet, conversationID)
	}
	return append([]string{}, c.DocumentIDs...), nil
}

func (b *Backend) UpdateContextMode(ctx context.Context, conversationID string, mode domain.ContextMode) error {
	if err := b.enter(ctx, OpUpdateContextMode, conversationID, string(mode)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !mode.Valid() {
		return &api.Error{Method: http.MethodPatch, Path: "/chat/conversations/" + conversationID + "/context-mode",
			StatusCode: http.StatusBadRequest, Detail: "context_mode must be 'rag' or 'full_context'"}
	}
	c, ok := b.conversations[conversationID]
	if !ok {
		return notFound(http.MethodPatch, conversationID)
	}
	c.ContextMode = mode
	return nil
}

func notFound(method, id string) error {
	return &api.Error{Method: method, Path: "/chat/conversations/" + id, StatusCode: http.StatusNotFound, Detail: "Conversation not found"}
}

func cloneConversation(c *domain.Conversation) domain.Conversation {
	out := *c
	out.Messages = append([]domain.Message(nil), c.Messages...)
	out.DocumentIDs = append([]string(nil), c.DocumentIDs...)
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
