// Package selection holds the sources chosen during one picking session.
package selection

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"researchchat/internal/domain"
	"researchchat/internal/logging"
)

var (
	// ErrPaperUnavailable rejects a paper with neither a PDF URL nor a stored PDF.
	ErrPaperUnavailable = errors.New("paper has no retrievable PDF")
	ErrUnknownKind      = errors.New("unknown item kind")
	// ErrMissingRecord rejects a paper or repository item without its catalog record.
	ErrMissingRecord = errors.New("item has no catalog record")
)

// DocumentResolver looks up document metadata in the library snapshot.
type DocumentResolver interface {
	Document(id string) (domain.Document, bool)
}

// Summary counts the selection by kind for the confirmation prompt.
type Summary struct {
	Documents        int
	Papers           int
	Repos            int
	PapersToDownload int
	ReposToIngest    int
}

// Total is the number of selected items.
func (s Summary) Total() int { return s.Documents + s.Papers + s.Repos }

// Session is the selection of one picker opening. Every mutation bumps the
// generation so late status responses for an older selection can be recognised.
type Session struct {
	resolver DocumentResolver
	logger   *zap.Logger

	mu         sync.Mutex
	items      map[domain.SelectionKey]domain.SelectionItem
	order      []domain.SelectionKey
	generation uint64
}

// NewSession returns an empty picking session. resolver may be nil.
func NewSession(resolver DocumentResolver, logger *zap.Logger) *Session {
	return &Session{
		resolver: resolver,
		logger:   logging.OrNop(logger).Named("selection"),
		items:    make(map[domain.SelectionKey]domain.SelectionItem),
	}
}

// Toggle inserts item or removes it when already present, and reports
// whether it is selected afterwards. Rejected items leave the session unchanged.
func (s *Session) Toggle(item domain.SelectionItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := item.Key()
	if _, ok := s.items[key]; ok {
		s.removeLocked(key)
		return false, nil
	}
	if err := admissible(item); err != nil {
		s.logger.Debug("toggle rejected", zap.String("kind", string(item.Kind)), zap.String("id", item.ID), zap.Error(err))
		return false, err
	}
	s.items[key] = item
	s.order = append(s.order, key)
	s.generation++
	return true, nil
}

func admissible(item domain.SelectionItem) error {
	switch item.Kind {
	case domain.KindDocument:
		return nil
	case domain.KindPaper:
		if item.Paper == nil {
			return ErrMissingRecord
		}
		if !item.Paper.Retrievable() {
			return ErrPaperUnavailable
		}
		return nil
	case domain.KindRepository:
		if item.Repo == nil {
			return ErrMissingRecord
		}
		return nil
	}
	return ErrUnknownKind
}

// Remove drops key unconditionally and reports whether it was present.
func (s *Session) Remove(key domain.SelectionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return false
	}
	s.removeLocked(key)
	return true
}

func (s *Session) removeLocked(key domain.SelectionKey) {
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.generation++
}

// Reset empties the session.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return
	}
	s.items = make(map[domain.SelectionKey]domain.SelectionItem)
	s.order = nil
	s.generation++
}

// Contains reports whether key is selected.
func (s *Session) Contains(key domain.SelectionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

// Len returns the number of selected items.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Generation increases on every mutation.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Items returns the selection in insertion order.
func (s *Session) Items() []domain.SelectionItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SelectionItem, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.items[k])
	}
	return out
}

// Batches splits the selection into the id lists of the two indexing requests.
type Batches struct {
	DocumentIDs []string
	PaperIDs    []string
	RepoIDs     []string
}

// Empty reports whether no request needs to be issued.
func (b Batches) Empty() bool {
	return len(b.DocumentIDs)+len(b.PaperIDs)+len(b.RepoIDs) == 0
}

// Batches splits the selection into the ids of the two embed requests.
func (s *Session) Batches() Batches {
	var b Batches
	for _, it := range s.Items() {
		switch it.Kind {
		case domain.KindDocument:
			b.DocumentIDs = append(b.DocumentIDs, it.ID)
		case domain.KindPaper:
			b.PaperIDs = append(b.PaperIDs, it.ID)
		case domain.KindRepository:
			b.RepoIDs = append(b.RepoIDs, it.ID)
		}
	}
	return b
}

// StatusIDs returns the document ids of selected documents and papers that
// already have one, in selection order. Repositories are not polled.
func (s *Session) StatusIDs() []string {
	var ids []string
	for _, it := range s.Items() {
		if it.Kind == domain.KindRepository {
			continue
		}
		if id := it.StatusID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ResolveLabel returns the display name and content type of a document,
// or the raw id when the catalog does not know it.
func (s *Session) ResolveLabel(documentID string) (label, contentType string) {
	if s.resolver != nil {
		if d, ok := s.resolver.Document(documentID); ok {
			return d.Label(), d.ContentType
		}
	}
	for _, it := range s.Items() {
		if it.StatusID() == documentID && it.Label != "" {
			return it.Label, it.ContentType
		}
	}
	return documentID, ""
}

// Summarize counts the selection by kind for the confirmation prompt.
func (s *Session) Summarize() Summary {
	var sum Summary
	for _, it := range s.Items() {
		switch it.Kind {
		case domain.KindDocument:
			sum.Documents++
		case domain.KindPaper:
			sum.Papers++
			if it.Paper != nil && !it.Paper.HasLocalPDF {
				sum.PapersToDownload++
			}
		case domain.KindRepository:
			sum.Repos++
			if it.Repo != nil && !it.Repo.HasLocalDoc {
				sum.ReposToIngest++
			}
		}
	}
	return sum
}
