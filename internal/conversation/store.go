package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"researchchat/internal/domain"
	"researchchat/internal/logging"
)

const listKey = "conversations"

// Store caches the conversation list. Every refresh replaces it wholesale;
// a refresh that started before a newer completed one is dropped.
type Store struct {
	api     domain.ConversationAPI
	timeout time.Duration
	logger  *zap.Logger
	cache   *cache.Cache

	mu      sync.Mutex
	started uint64
	applied uint64
}

// NewStore returns an empty store; timeout bounds each refresh.
func NewStore(api domain.ConversationAPI, timeout time.Duration, logger *zap.Logger) *Store {
	return &Store{
		api:     api,
		timeout: timeout,
		logger:  logging.OrNop(logger).Named("store"),
		// No expiry and no janitor: entries live until the next refresh.
		cache: cache.New(cache.NoExpiration, 0),
	}
}

// Refresh reloads the list from the server. On failure the cached list is kept.
func (s *Store) Refresh(ctx context.Context) ([]domain.ConversationSummary, error) {
	s.mu.Lock()
	s.started++
	seq := s.started
	s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	list, err := s.api.ListConversations(ctx)
	if err != nil {
		s.logger.Warn("conversation list refresh failed", zap.Error(err))
		return s.List(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.applied {
		s.logger.Debug("dropping out-of-order refresh", zap.Uint64("seq", seq), zap.Uint64("applied", s.applied))
		return s.listLocked(), nil
	}
	s.applied = seq
	s.cache.Flush()
	s.cache.Set(listKey, list, cache.NoExpiration)
	for _, c := range list {
		s.cache.Set(c.ID, c, cache.NoExpiration)
	}
	return append([]domain.ConversationSummary(nil), list...), nil
}

// List returns the cached list in server order.
func (s *Store) List() []domain.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *Store) listLocked() []domain.ConversationSummary {
	if x, found := s.cache.Get(listKey); found {
		return append([]domain.ConversationSummary(nil), x.([]domain.ConversationSummary)...)
	}
	return nil
}

// Get returns a cached conversation summary.
func (s *Store) Get(id string) (domain.ConversationSummary, bool) {
	if id == listKey {
		return domain.ConversationSummary{}, false
	}
	if x, found := s.cache.Get(id); found {
		return x.(domain.ConversationSummary), true
	}
	return domain.ConversationSummary{}, false
}

// Forget drops a conversation from the cache ahead of the next refresh.
// Refreshes already in flight are dropped when they complete.
func (s *Store) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	s.applied = s.started
	s.cache.Delete(id)
	list := s.listLocked()
	kept := list[:0]
	for _, c := range list {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.cache.Set(listKey, kept, cache.NoExpiration)
}
