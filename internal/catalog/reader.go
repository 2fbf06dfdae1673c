// Package catalog reads the user's library of sources and keeps the last snapshot.
package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"researchchat/internal/domain"
	"researchchat/internal/logging"
)

// LoadError reports a failed library fetch. The user sees a generic message
// and may retry by reopening the picker.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return "failed to load library: " + e.Err.Error() }

func (e *LoadError) Unwrap() error { return e.Err }

// Reader fetches the library. The previous snapshot survives a failed fetch.
type Reader struct {
	api     domain.CatalogAPI
	timeout time.Duration
	logger  *zap.Logger

	mu       sync.RWMutex
	snapshot *domain.Library
}

// NewReader returns a reader with no snapshot; timeout bounds each fetch.
func NewReader(api domain.CatalogAPI, timeout time.Duration, logger *zap.Logger) *Reader {
	return &Reader{api: api, timeout: timeout, logger: logging.OrNop(logger).Named("catalog")}
}

// Fetch loads a fresh snapshot and replaces the stored one on success.
func (r *Reader) Fetch(ctx context.Context) (domain.Library, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	lib, err := r.api.FetchLibrary(ctx)
	if err != nil {
		r.logger.Warn("library fetch failed", zap.Error(err))
		return domain.Library{}, &LoadError{Err: err}
	}
	if lib == nil {
		lib = &domain.Library{}
	}
	r.mu.Lock()
	r.snapshot = lib
	r.mu.Unlock()
	r.logger.Debug("library loaded",
		zap.Int("folders", len(lib.Folders)),
		zap.Int("root_documents", len(lib.RootDocuments)))
	return *lib, nil
}

// Snapshot returns the last loaded library and whether one exists.
func (r *Reader) Snapshot() (domain.Library, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snapshot == nil {
		return domain.Library{}, false
	}
	return *r.snapshot, true
}

// Document finds a document in the last snapshot.
func (r *Reader) Document(id string) (domain.Document, bool) {
	lib, ok := r.Snapshot()
	if !ok {
		return domain.Document{}, false
	}
	return lib.FindDocument(id)
}

// Visible returns the folders worth rendering: empty folders are pruned at every level.
func Visible(folders []domain.Folder) []domain.Folder {
	out := make([]domain.Folder, 0, len(folders))
	for _, f := range folders {
		if f.Empty() {
			continue
		}
		f.Children = Visible(f.Children)
		out = append(out, f)
	}
	return out
}

// Item resolves a reference to a selectable item. A reference is an id,
// optionally prefixed with its kind ("doc:", "paper:" or "repo:"); bare ids
// are tried as document, paper and repository in that order.
func Item(lib domain.Library, ref string) (domain.SelectionItem, bool) {
	kind, id := "", ref
	if i := strings.IndexByte(ref, ':'); i > 0 {
		kind, id = ref[:i], ref[i+1:]
	}
	if kind == "" || kind == "doc" {
		if d, ok := lib.FindDocument(id); ok {
			return domain.DocumentItem(d), true
		}
	}
	if kind == "" || kind == "paper" {
		if p, ok := lib.FindPaper(id); ok {
			return domain.PaperItem(p), true
		}
	}
	if kind == "" || kind == "repo" {
		if r, ok := lib.FindRepository(id); ok {
			return domain.RepositoryItem(r), true
		}
	}
	return domain.SelectionItem{}, false
}
