// Package conversation drives chat state: mode, context strategy, the active
// conversation and its transcript.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"researchchat/internal/domain"
	"researchchat/internal/logging"
)

// FailureNotice is the synthetic assistant reply appended when a send fails.
const FailureNotice = "Sorry, something went wrong while answering your question. Please try again."

// State is the controller's position in the chat state machine.
type State int

const (
	StateIdleGlobal State = iota
	StateSelectingDocuments
	StateIdleDocuments
	StateActiveGlobal
	StateActiveDocuments
)

func (s State) String() string {
	switch s {
	case StateIdleGlobal:
		return "idle(global)"
	case StateSelectingDocuments:
		return "selecting(documents)"
	case StateIdleDocuments:
		return "idle(documents)"
	case StateActiveGlobal:
		return "active(global)"
	case StateActiveDocuments:
		return "active(documents)"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Snapshot is a consistent copy of the controller state for rendering.
type Snapshot struct {
	State          State
	ConversationID string
	Title          string
	Mode           domain.Mode
	ContextMode    domain.ContextMode
	Attached       []string
	Messages       []domain.Message
	Sending        bool
}

// Drift compares local attachments with the server's.
type Drift struct {
	Missing []string // attached locally, unknown to the server
	Extra   []string // on the server, not attached locally
}

func (d Drift) InSync() bool { return len(d.Missing) == 0 && len(d.Extra) == 0 }

type Config struct {
	// Timeout bounds every call except message sends.
	Timeout time.Duration
}

// Controller is safe for concurrent use; it never holds its lock across a
// server call.
type Controller struct {
	api      domain.ConversationAPI
	store    *Store
	exchange *Exchange
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	selecting   bool
	convID      string
	convMode    domain.Mode
	title       string
	loaded      bool
	mode        domain.Mode
	contextMode domain.ContextMode
	attached    []string
	messages    []domain.Message
	sending     bool
	// epoch changes whenever the user moves to a different conversation.
	epoch uint64
}

// NewController returns a controller in the global idle state. store may be nil.
func NewController(api domain.ConversationAPI, store *Store, exchange *Exchange, cfg Config, logger *zap.Logger) *Controller {
	c := &Controller{
		api:      api,
		store:    store,
		exchange: exchange,
		cfg:      cfg,
		logger:   logging.OrNop(logger).Named("conversation"),
		now:      time.Now,
	}
	c.resetLocked()
	return c
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Timeout)
	}
	return ctx, func() {}
}

func (c *Controller) stateLocked() State {
	if c.selecting {
		return StateSelectingDocuments
	}
	active := c.convID != "" && (c.loaded || len(c.messages) > 0)
	switch {
	case c.mode == domain.ModeDocuments && active:
		return StateActiveDocuments
	case c.mode == domain.ModeDocuments:
		return StateIdleDocuments
	case active:
		return StateActiveGlobal
	}
	return StateIdleGlobal
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:          c.stateLocked(),
		ConversationID: c.convID,
		Title:          c.title,
		Mode:           c.mode,
		ContextMode:    c.contextMode,
		Attached:       append([]string(nil), c.attached...),
		Messages:       append([]domain.Message(nil), c.messages...),
		Sending:        c.sending,
	}
}

// FullContextAvailable reports whether full_context may be selected now.
func (c *Controller) FullContextAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fullContextAvailableLocked()
}

func (c *Controller) fullContextAvailableLocked() bool {
	return c.mode == domain.ModeDocuments && len(c.attached) > 0
}

func (c *Controller) transition(from State, event string) {
	c.logger.Debug("transition",
		zap.String("event", event),
		zap.Stringer("from", from),
		zap.Stringer("to", c.stateLocked()))
}

func (c *Controller) resetLocked() {
	c.selecting = false
	c.detachLocked()
	c.mode = domain.ModeGlobal
	c.contextMode = domain.ContextRAG
	c.attached = nil
}

// detachLocked unbinds the active conversation without touching the server.
func (c *Controller) detachLocked() {
	c.convID = ""
	c.convMode = ""
	c.title = ""
	c.loaded = false
	c.messages = nil
	c.epoch++
}

// NewChat returns to an empty global chat.
func (c *Controller) NewChat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	from := c.stateLocked()
	c.resetLocked()
	c.transition(from, "new chat")
}

// Open loads an existing conversation verbatim. On failure the current state is kept.
func (c *Controller) Open(ctx context.Context, id string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	conv, err := c.api.FetchConversation(ctx, id)
	if err != nil {
		c.logger.Warn("open conversation failed", zap.String("conversation_id", id), zap.Error(err))
		return fmt.Errorf("open conversation %s: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	from := c.stateLocked()
	c.selecting = false
	c.epoch++
	c.convID = conv.ID
	c.convMode = conv.Mode
	c.title = conv.Title
	c.loaded = true
	c.mode = conv.Mode
	c.contextMode = conv.ContextMode
	c.attached = append([]string(nil), conv.DocumentIDs...)
	c.messages = append([]domain.Message(nil), conv.Messages...)
	c.transition(from, "open")
	return nil
}

// Delete removes a conversation on the server and from the store. Deleting
// the active conversation starts a new chat.
func (c *Controller) Delete(ctx context.Context, id string) error {
	callCtx, cancel := c.withTimeout(ctx)
	err := c.api.DeleteConversation(callCtx, id)
	cancel()
	if err != nil {
		c.logger.Warn("delete conversation failed", zap.String("conversation_id", id), zap.Error(err))
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}

	if c.store != nil {
		c.store.Forget(id)
	}
	c.mu.Lock()
	if c.convID == id {
		from := c.stateLocked()
		c.resetLocked()
		c.transition(from, "delete active")
	}
	c.mu.Unlock()

	c.refresh(ctx)
	return nil
}

// BeginSelection enters documents mode and opens source selection. No
// conversation is created yet.
func (c *Controller) BeginSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	from := c.stateLocked()
	c.selecting = true
	c.mode = domain.ModeDocuments
	c.transition(from, "begin selection")
}

// CancelSelection closes source selection. Without attached documents the
// controller falls back to global mode.
func (c *Controller) CancelSelection() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selecting {
		return ErrNotSelecting
	}
	from := c.stateLocked()
	c.selecting = false
	if len(c.attached) == 0 {
		c.toGlobalLocked()
	}
	c.transition(from, "cancel selection")
	return nil
}

// toGlobalLocked leaves documents mode, detaching a documents conversation.
func (c *Controller) toGlobalLocked() {
	if c.convMode == domain.ModeDocuments {
		c.detachLocked()
	}
	c.mode = domain.ModeGlobal
	c.contextMode = domain.ContextRAG
	c.attached = nil
}

// ConfirmSelection attaches the ready document ids. An empty list cancels
// documents mode. Without an active documents conversation one is created
// first. A failed association is returned as *AssociationError after local
// state was updated.
func (c *Controller) ConfirmSelection(ctx context.Context, ready []string) error {
	c.mu.Lock()
	if !c.selecting {
		c.mu.Unlock()
		return ErrNotSelecting
	}
	from := c.stateLocked()
	c.selecting = false
	if len(ready) == 0 {
		c.resetLocked()
		c.transition(from, "confirm empty selection")
		c.mu.Unlock()
		return nil
	}
	c.mode = domain.ModeDocuments
	c.attached = dedupe(ready)
	attached := append([]string(nil), c.attached...)
	convID := c.convID
	needCreate := convID == "" || c.convMode != domain.ModeDocuments
	contextMode := c.contextMode
	epoch := c.epoch
	c.mu.Unlock()

	if needCreate {
		sum, err := c.create(ctx, domain.ModeDocuments, contextMode)
		if err != nil {
			return err
		}
		c.mu.Lock()
		if c.epoch == epoch {
			c.detachLocked()
			c.convID = sum.ID
			c.convMode = domain.ModeDocuments
			c.title = sum.Title
		}
		c.mu.Unlock()
		convID = sum.ID
		c.refresh(ctx)
	}

	err := c.associate(ctx, convID, attached)

	c.mu.Lock()
	c.transition(from, "confirm selection")
	c.mu.Unlock()
	return err
}

func (c *Controller) create(ctx context.Context, mode domain.Mode, contextMode domain.ContextMode) (*domain.ConversationSummary, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	sum, err := c.api.CreateConversation(ctx, domain.CreateConversationParams{Mode: mode, ContextMode: contextMode})
	if err != nil {
		c.logger.Error("create conversation failed", zap.String("mode", string(mode)), zap.Error(err))
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	c.logger.Info("conversation created",
		zap.String("conversation_id", sum.ID),
		zap.String("mode", string(mode)),
		zap.String("context_mode", string(contextMode)))
	return sum, nil
}

func (c *Controller) associate(ctx context.Context, convID string, ids []string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.api.SetAttachedDocuments(ctx, convID, ids); err != nil {
		c.logger.Warn("attaching documents failed",
			zap.String("conversation_id", convID),
			zap.Strings("document_ids", ids),
			zap.Error(err))
		return &AssociationError{Op: "attach documents", ConversationID: convID, Err: err}
	}
	return nil
}

func (c *Controller) refresh(ctx context.Context) {
	if c.store == nil {
		return
	}
	// Failures are logged by the store; the cached list stays usable.
	_, _ = c.store.Refresh(ctx)
}

// SwitchToGlobal leaves documents mode. The previous conversation is kept on
// the server; the next send starts a new one.
func (c *Controller) SwitchToGlobal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	from := c.stateLocked()
	c.selecting = false
	c.detachLocked()
	c.mode = domain.ModeGlobal
	c.contextMode = domain.ContextRAG
	c.attached = nil
	c.transition(from, "switch to global")
}

// SetContextMode changes the context strategy. It is only permitted in
// documents mode with attached documents. The local change is kept even when
// persisting it fails, in which case *AssociationError is returned.
func (c *Controller) SetContextMode(ctx context.Context, mode domain.ContextMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidContextMode, mode)
	}
	c.mu.Lock()
	if !c.fullContextAvailableLocked() {
		c.mu.Unlock()
		return ErrContextModeUnavailable
	}
	c.contextMode = mode
	convID := ""
	if c.convMode == domain.ModeDocuments {
		convID = c.convID
	}
	c.mu.Unlock()

	if convID == "" {
		return nil
	}
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.api.UpdateContextMode(callCtx, convID, mode); err != nil {
		c.logger.Warn("updating context mode failed",
			zap.String("conversation_id", convID),
			zap.String("context_mode", string(mode)),
			zap.Error(err))
		return &AssociationError{Op: "update context mode", ConversationID: convID, Err: err}
	}
	return nil
}

// Send asks question in the active conversation, creating one first when
// none is bound. The user message is shown optimistically and replaced by the
// server's messages for the exchange. On failure a synthetic assistant notice
// is appended and *SendError returned. Only one send may be in flight.
func (c *Controller) Send(ctx context.Context, question string) ([]domain.Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return nil, ErrSendInProgress
	}
	c.sending = true
	from := c.stateLocked()
	epoch := c.epoch
	convID := c.convID
	mode := c.mode
	contextMode := c.contextMode
	if !c.fullContextAvailableLocked() {
		contextMode = domain.ContextRAG
	}
	attached := append([]string(nil), c.attached...)
	pending := domain.Message{LocalID: uuid.NewString(), Role: domain.RoleUser, Content: question, CreatedAt: c.now()}
	c.messages = append(c.messages, pending)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
	}()

	var warning error
	created := false
	if convID == "" {
		sum, err := c.create(ctx, mode, contextMode)
		if err != nil {
			return nil, c.failSend(epoch, "", err)
		}
		convID = sum.ID
		created = true
		c.mu.Lock()
		if c.epoch == epoch {
			c.convID = sum.ID
			c.convMode = mode
			c.title = sum.Title
		}
		c.mu.Unlock()
		if mode == domain.ModeDocuments && len(attached) > 0 {
			warning = c.associate(ctx, convID, attached)
		}
	}

	msgs, err := c.exchange.Send(ctx, convID, question)
	if err != nil {
		if created {
			c.refresh(ctx)
		}
		return nil, c.failSend(epoch, convID, err)
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.messages = replaceLocal(c.messages, pending.LocalID, msgs)
		c.transition(from, "send")
	} else {
		c.logger.Debug("conversation changed during send, not applying reply", zap.String("conversation_id", convID))
	}
	c.mu.Unlock()

	c.refresh(ctx)
	return msgs, warning
}

func (c *Controller) failSend(epoch uint64, convID string, err error) error {
	c.logger.Error("send failed", zap.String("conversation_id", convID), zap.Error(err))
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch == epoch {
		c.messages = append(c.messages, domain.Message{
			LocalID:   uuid.NewString(),
			Role:      domain.RoleAssistant,
			Content:   FailureNotice,
			CreatedAt: c.now(),
		})
	}
	return &SendError{ConversationID: convID, Err: err}
}

// replaceLocal swaps the optimistic message for the server's slice. An empty
// slice keeps the optimistic message.
func replaceLocal(messages []domain.Message, localID string, server []domain.Message) []domain.Message {
	if len(server) == 0 {
		return messages
	}
	out := make([]domain.Message, 0, len(messages)+len(server))
	for _, m := range messages {
		if m.LocalID == localID && m.Local() {
			out = append(out, server...)
			continue
		}
		out = append(out, m)
	}
	return out
}

// VerifyAttachments compares the local attachments with the server's list for
// the active documents conversation.
func (c *Controller) VerifyAttachments(ctx context.Context) (Drift, error) {
	c.mu.Lock()
	convID := c.convID
	documents := c.convMode == domain.ModeDocuments
	local := append([]string(nil), c.attached...)
	c.mu.Unlock()
	if convID == "" || !documents {
		return Drift{}, nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	remote, err := c.api.FetchAttachedDocuments(ctx, convID)
	if err != nil {
		return Drift{}, fmt.Errorf("fetch attached documents: %w", err)
	}
	d := Drift{Missing: difference(local, remote), Extra: difference(remote, local)}
	if !d.InSync() {
		c.logger.Warn("attachments out of sync",
			zap.String("conversation_id", convID),
			zap.Strings("missing", d.Missing),
			zap.Strings("extra", d.Extra))
	}
	return d, nil
}

func difference(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, id := range b {
		in[id] = struct{}{}
	}
	var out []string
	for _, id := range a {
		if _, ok := in[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
