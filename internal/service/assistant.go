// Package service wires the catalog, selection, embedding and conversation
// components into the flow a user drives: pick sources, index them, chat.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"researchchat/internal/api"
	"researchchat/internal/catalog"
	"researchchat/internal/config"
	"researchchat/internal/conversation"
	"researchchat/internal/domain"
	"researchchat/internal/embedding"
	"researchchat/internal/logging"
	"researchchat/internal/selection"
)

// ErrNoPicking is returned by picking operations when no picker is open.
var ErrNoPicking = errors.New("source picker is not open")

// Assistant owns one picking session at a time and the chat controller.
type Assistant struct {
	catalog *catalog.Reader
	embed   *embedding.Orchestrator
	store   *conversation.Store
	chat    *conversation.Controller
	logger  *zap.Logger

	mu      sync.Mutex
	picking *selection.Session
}

// NewBackend builds the HTTP backend described by cfg. The transport timeout
// is the longest configured bound; each call is limited by its own context.
func NewBackend(cfg *config.AppConfig, logger *zap.Logger) *api.Client {
	return api.NewClient(api.Config{
		BaseURL: cfg.Server.BaseURL,
		Token:   cfg.Server.Token(),
		Timeout: longest(cfg.Server.Timeout(), cfg.Embedding.SubmitTimeout(), cfg.Chat.SendTimeout()),
		Logger:  logger,
	})
}

func longest(ds ...time.Duration) time.Duration {
	var m time.Duration
	for _, d := range ds {
		if d > m {
			m = d
		}
	}
	return m
}

// NewAssistant builds every component over backend with the timeouts in cfg.
func NewAssistant(backend domain.Backend, cfg *config.AppConfig, logger *zap.Logger) *Assistant {
	logger = logging.OrNop(logger)
	store := conversation.NewStore(backend, cfg.Server.Timeout(), logger)
	return &Assistant{
		catalog: catalog.NewReader(backend, cfg.Server.Timeout(), logger),
		embed: embedding.NewOrchestrator(backend, embedding.Config{
			SubmitTimeout: cfg.Embedding.SubmitTimeout(),
			PollTimeout:   cfg.Embedding.PollTimeout(),
		}, logger),
		store: store,
		chat: conversation.NewController(backend, store,
			conversation.NewExchange(backend, cfg.Chat.SendTimeout(), logger),
			conversation.Config{Timeout: cfg.Server.Timeout()}, logger),
		logger: logger.Named("assistant"),
	}
}

// Catalog returns the library reader.
func (a *Assistant) Catalog() *catalog.Reader { return a.catalog }

// Embedding returns the orchestrator holding the embed status map.
func (a *Assistant) Embedding() *embedding.Orchestrator { return a.embed }

// Conversations returns the conversation list cache.
func (a *Assistant) Conversations() *conversation.Store { return a.store }

// Chat returns the conversation controller.
func (a *Assistant) Chat() *conversation.Controller { return a.chat }

// StartPicking opens the source picker with a fresh session and loads the
// library. A *catalog.LoadError leaves the picker open with an empty tree so
// the user can retry with ReloadLibrary.
func (a *Assistant) StartPicking(ctx context.Context) (*selection.Session, domain.Library, error) {
	a.chat.BeginSelection()
	session := selection.NewSession(a.catalog, a.logger)
	a.mu.Lock()
	a.picking = session
	a.mu.Unlock()

	lib, err := a.catalog.Fetch(ctx)
	return session, lib, err
}

// ReloadLibrary fetches the library again for the open picker.
func (a *Assistant) ReloadLibrary(ctx context.Context) (domain.Library, error) {
	if a.Picking() == nil {
		return domain.Library{}, ErrNoPicking
	}
	return a.catalog.Fetch(ctx)
}

// Picking returns the open picking session, or nil.
func (a *Assistant) Picking() *selection.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.picking
}

// Toggle flips an item in the open session.
func (a *Assistant) Toggle(item domain.SelectionItem) (bool, error) {
	session := a.Picking()
	if session == nil {
		return false, ErrNoPicking
	}
	return session.Toggle(item)
}

// RefreshStatuses polls embed status when the selected ids changed since the
// last applied poll. Poll failures are logged and swallowed.
func (a *Assistant) RefreshStatuses(ctx context.Context) bool {
	session := a.Picking()
	if session == nil || !a.embed.NeedsPoll(session) {
		return false
	}
	applied, err := a.embed.Poll(ctx, session)
	if err != nil {
		a.logger.Debug("status refresh failed", zap.Error(err))
	}
	return applied
}

// Submit indexes the open session's selection. The session stays open on
// failure so the user can adjust it and retry.
func (a *Assistant) Submit(ctx context.Context) (embedding.Result, error) {
	session := a.Picking()
	if session == nil {
		return embedding.Result{}, ErrNoPicking
	}
	return a.embed.Submit(ctx, session)
}

// Confirm closes the picker and hands the ready ids to the chat controller.
// An *conversation.AssociationError is non-blocking.
func (a *Assistant) Confirm(ctx context.Context, ready []string) error {
	a.closePicking(false)
	return a.chat.ConfirmSelection(ctx, ready)
}

// Cancel closes the picker without attaching anything.
func (a *Assistant) Cancel() error {
	a.closePicking(true)
	return a.chat.CancelSelection()
}

func (a *Assistant) closePicking(reset bool) {
	a.mu.Lock()
	session := a.picking
	a.picking = nil
	a.mu.Unlock()
	if reset && session != nil {
		session.Reset()
	}
}

// NewChat starts over, discarding any open picker.
func (a *Assistant) NewChat() {
	a.closePicking(true)
	a.chat.NewChat()
}

// Ask sends a question in the current chat.
func (a *Assistant) Ask(ctx context.Context, question string) ([]domain.Message, error) {
	return a.chat.Send(ctx, question)
}

// IndexItems indexes items without attaching them to any conversation. The
// picker is closed afterwards whatever the outcome.
func (a *Assistant) IndexItems(ctx context.Context, items []domain.SelectionItem) (embedding.Result, error) {
	res, err := a.submitItems(ctx, items)
	_ = a.Cancel()
	return res, err
}

// AttachItems runs the whole picking flow without interaction: select the
// items, index them and attach the ready ids. It returns the submission
// result; on aggregate failure the chat falls back to global mode.
func (a *Assistant) AttachItems(ctx context.Context, items []domain.SelectionItem) (embedding.Result, error) {
	res, err := a.submitItems(ctx, items)
	if err != nil {
		_ = a.Cancel()
		return res, err
	}
	return res, a.Confirm(ctx, res.Ready)
}

// submitItems opens a picker holding items and submits it. The picker is
// left open.
func (a *Assistant) submitItems(ctx context.Context, items []domain.SelectionItem) (embedding.Result, error) {
	session, _, err := a.StartPicking(ctx)
	if err != nil {
		return embedding.Result{}, err
	}
	for _, it := range items {
		if _, err := session.Toggle(it); err != nil {
			a.logger.Warn("skipping item", zap.String("id", it.ID), zap.Error(err))
		}
	}
	return a.Submit(ctx)
}
