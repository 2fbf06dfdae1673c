// Package embedding submits selected sources for indexing and tracks their status.
package embedding

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"researchchat/internal/domain"
	"researchchat/internal/logging"
	"researchchat/internal/selection"
)

// Result is the reconciled outcome of a submission that was not an aggregate failure.
type Result struct {
	// Ready holds the completed document ids in submission order.
	Ready    []string             `json:"ready"`
	Outcomes []domain.EmbedStatus `json:"outcomes"`
	Failed   []domain.EmbedStatus `json:"failed,omitempty"`
	// Partial is set when some outcome is not completed.
	Partial bool `json:"partial"`
}

type Config struct {
	SubmitTimeout time.Duration
	PollTimeout   time.Duration
}

// Orchestrator owns the embed status map of the picking flow.
type Orchestrator struct {
	api    domain.EmbeddingAPI
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	statuses   map[string]domain.EmbedStatus
	resolved   map[domain.SelectionKey]string
	submitting bool
	lastPoll   pollMark
}

type pollMark struct {
	session *selection.Session
	ids     string
}

// NewOrchestrator returns an orchestrator with an empty status map.
func NewOrchestrator(api domain.EmbeddingAPI, cfg Config, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		api:      api,
		cfg:      cfg,
		logger:   logging.OrNop(logger).Named("embedding"),
		statuses: make(map[string]domain.EmbedStatus),
		resolved: make(map[domain.SelectionKey]string),
	}
}

// Submitting reports whether a submission is unresolved.
func (o *Orchestrator) Submitting() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.submitting
}

// Submit issues the document+paper request and the repository request
// concurrently and returns only when both have completed.
func (o *Orchestrator) Submit(ctx context.Context, session *selection.Session) (Result, error) {
	o.mu.Lock()
	if o.submitting {
		o.mu.Unlock()
		return Result{}, ErrSubmitInProgress
	}
	o.submitting = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.submitting = false
		o.mu.Unlock()
	}()

	items := session.Items()
	batches := session.Batches()
	if batches.Empty() {
		return Result{}, nil
	}
	if o.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.SubmitTimeout)
		defer cancel()
	}

	o.logger.Info("submitting for embedding",
		zap.Int("documents", len(batches.DocumentIDs)),
		zap.Int("papers", len(batches.PaperIDs)),
		zap.Int("repos", len(batches.RepoIDs)))

	var (
		g                 errgroup.Group
		docsOut, reposOut []domain.EmbedStatus
	)
	if len(batches.DocumentIDs)+len(batches.PaperIDs) > 0 {
		g.Go(func() error {
			res, err := o.api.EmbedDocuments(ctx, batches.DocumentIDs, batches.PaperIDs)
			if err != nil {
				o.logger.Warn("document embed request failed", zap.Error(err))
				res = transportFailure(err, batches.DocumentIDs, batches.PaperIDs)
			}
			docsOut = res
			return nil
		})
	}
	if len(batches.RepoIDs) > 0 {
		g.Go(func() error {
			res, err := o.api.EmbedRepositories(ctx, batches.RepoIDs)
			if err != nil {
				o.logger.Warn("repository embed request failed", zap.Error(err))
				res = transportFailure(err, batches.RepoIDs)
			}
			reposOut = res
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	var docItems, repoItems []domain.SelectionItem
	for _, it := range items {
		if it.Kind == domain.KindRepository {
			repoItems = append(repoItems, it)
		} else {
			docItems = append(docItems, it)
		}
	}
	o.remember(pairNew(docItems, docsOut))
	o.remember(pairNew(repoItems, reposOut))
	return o.classify(o.merge(docsOut, reposOut))
}

// pairNew matches items that had no document id with the outcomes reported
// under ids the server assigned during this request. The server embeds newly
// resolved documents in request order, so the pairing is positional; it is
// skipped when the counts disagree.
func pairNew(items []domain.SelectionItem, outcomes []domain.EmbedStatus) map[domain.SelectionKey]string {
	known := make(map[string]bool)
	for _, it := range items {
		known[it.ID] = true
		if id := it.StatusID(); id != "" {
			known[id] = true
		}
	}
	reported := make(map[string]bool)
	var fresh []string
	for _, st := range outcomes {
		if !known[st.DocumentID] && !reported[st.DocumentID] {
			fresh = append(fresh, st.DocumentID)
		}
		reported[st.DocumentID] = true
	}
	var unresolved []domain.SelectionItem
	for _, it := range items {
		if it.StatusID() == "" && !reported[it.ID] {
			unresolved = append(unresolved, it)
		}
	}
	if len(unresolved) == 0 || len(unresolved) != len(fresh) {
		return nil
	}
	out := make(map[domain.SelectionKey]string, len(fresh))
	for i, it := range unresolved {
		out[it.Key()] = fresh[i]
	}
	return out
}

func (o *Orchestrator) remember(pairs map[domain.SelectionKey]string) {
	if len(pairs) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, id := range pairs {
		o.resolved[k] = id
	}
}

// transportFailure reports every id of a failed request as a failed outcome.
func transportFailure(err error, groups ...[]string) []domain.EmbedStatus {
	var out []domain.EmbedStatus
	for _, ids := range groups {
		for _, id := range ids {
			out = append(out, domain.EmbedStatus{DocumentID: id, Status: domain.EmbedFailed, ErrorMessage: err.Error()})
		}
	}
	return out
}

// merge records every outcome in the status map. A later outcome for the same
// id replaces the earlier one in place.
func (o *Orchestrator) merge(groups ...[]domain.EmbedStatus) []domain.EmbedStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	var merged []domain.EmbedStatus
	index := make(map[string]int)
	for _, group := range groups {
		for _, st := range group {
			o.statuses[st.DocumentID] = st
			if i, ok := index[st.DocumentID]; ok {
				merged[i] = st
				continue
			}
			index[st.DocumentID] = len(merged)
			merged = append(merged, st)
		}
	}
	return merged
}

func (o *Orchestrator) classify(outcomes []domain.EmbedStatus) (Result, error) {
	res := Result{Outcomes: outcomes}
	for _, st := range outcomes {
		switch st.Status {
		case domain.EmbedCompleted:
			res.Ready = append(res.Ready, st.DocumentID)
		case domain.EmbedFailed:
			res.Failed = append(res.Failed, st)
		}
	}

	if len(outcomes) == 0 || len(res.Failed) == len(outcomes) {
		err := &AggregateSubmitError{Outcomes: res.Failed}
		o.logger.Warn("embedding failed for every item", zap.Int("items", len(outcomes)), zap.Error(err))
		return Result{}, err
	}
	res.Partial = len(res.Ready) < len(outcomes)
	o.logger.Info("embedding submitted",
		zap.Int("ready", len(res.Ready)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("pending", len(outcomes)-len(res.Ready)-len(res.Failed)))
	return res, nil
}

// NeedsPoll reports whether the polled id set of session differs from the
// last applied poll.
func (o *Orchestrator) NeedsPoll(session *selection.Session) bool {
	ids := session.StatusIDs()
	if len(ids) == 0 {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastPoll.session != session || o.lastPoll.ids != strings.Join(ids, ",")
}

// Poll refreshes the status of the session's selected documents and papers.
// A response that arrives after the selection changed is discarded. Poll
// failures leave the status map untouched; the returned StatusPollError is
// for logging only. It reports whether the response was applied.
func (o *Orchestrator) Poll(ctx context.Context, session *selection.Session) (bool, error) {
	generation := session.Generation()
	ids := session.StatusIDs()
	if len(ids) == 0 {
		return false, nil
	}
	if o.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.PollTimeout)
		defer cancel()
	}

	results, err := o.api.FetchEmbedStatus(ctx, ids)
	if err != nil {
		o.logger.Debug("status poll failed, keeping last known statuses", zap.Error(err))
		return false, &StatusPollError{Err: err}
	}
	if current := session.Generation(); current != generation {
		o.logger.Debug("discarding stale status poll",
			zap.Uint64("generation", generation),
			zap.Uint64("current", current))
		return false, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, st := range results {
		o.statuses[st.DocumentID] = st
	}
	o.lastPoll = pollMark{session: session, ids: strings.Join(ids, ",")}
	return true, nil
}

// Status returns the last known status of a document id.
func (o *Orchestrator) Status(id string) (domain.EmbedStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.statuses[id]
	return st, ok
}

// Statuses returns a copy of the status map.
func (o *Orchestrator) Statuses() map[string]domain.EmbedStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]domain.EmbedStatus, len(o.statuses))
	for k, v := range o.statuses {
		out[k] = v
	}
	return out
}

// DocumentID returns the document id describing item: its catalog document
// id, or the id the server assigned when a submission resolved it. It returns
// "" for papers and repositories that were never resolved.
func (o *Orchestrator) DocumentID(item domain.SelectionItem) string {
	if id := item.StatusID(); id != "" {
		return id
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resolved[item.Key()]
}

// ItemStatus returns the status describing a selected item, looked up by its
// document id or, for papers and repositories not yet resolved, by its own id.
func (o *Orchestrator) ItemStatus(item domain.SelectionItem) (domain.EmbedStatus, bool) {
	if id := o.DocumentID(item); id != "" {
		if st, ok := o.Status(id); ok {
			return st, true
		}
	}
	return o.Status(item.ID)
}
