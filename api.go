package chatsync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/NeboLoop/chatsync-go-sdk/wire"
)

// HistoryLoader fetches the stored messages of a conversation.
type HistoryLoader interface {
	LoadHistory(ctx context.Context, conversationID string) ([]Message, error)
}

// APIClient reads conversation history from the REST API.
// It works independently of the channel; no live connection needed.
type APIClient struct {
	apiBase    string
	pageSize   int
	limit      int
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewAPIClient creates a history client for cfg. The base URL is
// cfg.APIEndpoint, or derived from cfg.Endpoint when that is empty.
func NewAPIClient(cfg Config, token string) *APIClient {
	cfg = cfg.withDefaults()
	return &APIClient{
		apiBase:    resolveAPIBase(cfg),
		pageSize:   cfg.HistoryPageSize,
		limit:      cfg.HistoryLimit,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
	}
}

// APIBase returns the resolved REST base URL.
func (c *APIClient) APIBase() string { return c.apiBase }

// SetToken swaps the bearer token used for later requests.
func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// LoadHistory pages through a conversation until a short page or the
// configured limit.
func (c *APIClient) LoadHistory(ctx context.Context, conversationID string) ([]Message, error) {
	var all []Message
	for len(all) < c.limit {
		n := min(c.pageSize, c.limit-len(all))
		page, err := c.FetchMessages(ctx, conversationID, n, len(all))
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < n {
			break
		}
	}
	return all, nil
}

// FetchMessages returns one page of a conversation's messages.
func (c *APIClient) FetchMessages(ctx context.Context, conversationID string, limit, skip int) ([]Message, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if skip > 0 {
		params.Set("skip", strconv.Itoa(skip))
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	body, err := c.apiRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	// Accept both {"messages":[...]} and a bare array.
	var msgs []Message
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		err = wire.Unmarshal(trimmed, &msgs)
	} else {
		var resp struct {
			Messages []Message `json:"messages"`
		}
		err = wire.Unmarshal(body, &resp)
		msgs = resp.Messages
	}
	if err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	for i := range msgs {
		if msgs[i].ConversationID == "" {
			msgs[i].ConversationID = conversationID
		}
	}
	return msgs, nil
}

// --- HTTP helpers ---

func (c *APIClient) apiRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, nil)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	req.Header.Set("Authorization", "Bearer "+c.token)
	c.mu.RUnlock()
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("api %s %s: %d %s", method, path, resp.StatusCode, apiErrorText(respBody))
	}
	return respBody, nil
}

// apiErrorText pulls "message" or "msg" out of a JSON error body, falling
// back to the raw body.
func apiErrorText(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if wire.Unmarshal(body, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Msg != "" {
			return e.Msg
		}
	}
	return strings.TrimSpace(string(body))
}

func resolveAPIBase(cfg Config) string {
	if cfg.APIEndpoint != "" {
		return strings.TrimRight(cfg.APIEndpoint, "/")
	}
	// Derive from the WebSocket endpoint: ws→http, wss→https, same host.
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return "http://localhost:8000"
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}
