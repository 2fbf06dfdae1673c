// Package api is the HTTP client for the research server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"researchchat/internal/domain"
	"researchchat/internal/logging"
)

// ErrNotFound is matched by errors.Is for 404 responses.
var ErrNotFound = errors.New("not found")

// Error is a non-2xx response from the server.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *Error) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Config configures the client.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client implements domain.Backend over the server's JSON API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

var _ domain.Backend = (*Client)(nil)

// NewClient creates a client. A zero Timeout defaults to 30s; callers still
// bound individual calls through their context.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  hc,
		logger:  logging.OrNop(cfg.Logger).Named("api"),
	}
}

func (c *Client) FetchLibrary(ctx context.Context) (*domain.Library, error) {
	var out libraryDTO
	if err := c.doJSON(ctx, http.MethodGet, "/chat/documents/library", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) EmbedDocuments(ctx context.Context, documentIDs, paperIDs []string) ([]domain.EmbedStatus, error) {
	body := map[string]any{
		"document_ids": nonNil(documentIDs),
		"paper_ids":    nonNil(paperIDs),
	}
	var out embedResponseDTO
	if err := c.doJSON(ctx, http.MethodPost, "/chat/documents/embed", nil, body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) EmbedRepositories(ctx context.Context, repoIDs []string) ([]domain.EmbedStatus, error) {
	body := map[string]any{"repo_ids": nonNil(repoIDs)}
	var out embedResponseDTO
	if err := c.doJSON(ctx, http.MethodPost, "/chat/documents/embed-repo", nil, body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) FetchEmbedStatus(ctx context.Context, documentIDs []string) ([]domain.EmbedStatus, error) {
	q := url.Values{}
	q.Set("document_ids", strings.Join(documentIDs, ","))
	var out embedResponseDTO
	if err := c.doJSON(ctx, http.MethodGet, "/chat/documents/embed-status", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	var out []conversationSummaryDTO
	if err := c.doJSON(ctx, http.MethodGet, "/chat/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	list := make([]domain.ConversationSummary, 0, len(out))
	for _, s := range out {
		list = append(list, s.toDomain())
	}
	return list, nil
}

func (c *Client) CreateConversation(ctx context.Context, p domain.CreateConversationParams) (*domain.ConversationSummary, error) {
	body := map[string]any{
		"mode":         p.Mode,
		"context_mode": p.ContextMode,
	}
	if p.Title != "" {
		body["title"] = p.Title
	}
	var out conversationSummaryDTO
	if err := c.doJSON(ctx, http.MethodPost, "/chat/conversations", nil, body, &out); err != nil {
		return nil, err
	}
	s := out.toDomain()
	return &s, nil
}

func (c *Client) FetchConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var out conversationDetailDTO
	if err := c.doJSON(ctx, http.MethodGet, "/chat/conversations/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/chat/conversations/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) SendMessage(ctx context.Context, conversationID, question string) ([]domain.Message, error) {
	body := map[string]any{"question": question}
	var out []messageDTO
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(out))
	for _, m := range out {
		msgs = append(msgs, m.toDomain())
	}
	return msgs, nil
}

func (c *Client) SetAttachedDocuments(ctx context.Context, conversationID string, documentIDs []string) error {
	body := map[string]any{"document_ids": nonNil(documentIDs)}
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/documents"
	return c.doJSON(ctx, http.MethodPut, path, nil, body, nil)
}

func (c *Client) FetchAttachedDocuments(ctx context.Context, conversationID string) ([]string, error) {
	var out []string
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/documents"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateContextMode(ctx context.Context, conversationID string, mode domain.ContextMode) error {
	body := map[string]any{"context_mode": mode}
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/context-mode"
	return c.doJSON(ctx, http.MethodPatch, path, nil, body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode >= 300 {
		return &Error{Method: method, Path: path, StatusCode: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// readDetail extracts FastAPI's {"detail": ...} from an error body.
func readDetail(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Detail) == 0 {
		return strings.TrimSpace(string(data))
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}
	return string(body.Detail)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
