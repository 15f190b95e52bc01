package chatsync

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeboLoop/chatsync-go-sdk/wire"
)

// historyServer serves n messages for conversation c1 and records requests.
type historyServer struct {
	mu       sync.Mutex
	requests []string
	auth     []string
	total    int
	bare     bool
}

func (h *historyServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.requests = append(h.requests, r.URL.RequestURI())
	h.auth = append(h.auth, r.Header.Get("Authorization"))
	h.mu.Unlock()

	if r.URL.Path != "/conversations/c1/messages" {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"conversation not found"}`)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	var page []Message
	for i := skip; i < h.total && len(page) < limit; i++ {
		m := msg(strconv.Itoa(i), i, "u1")
		m.ConversationID = ""
		page = append(page, m)
	}

	var body []byte
	if h.bare {
		body, _ = wire.Marshal(page)
	} else {
		body, _ = wire.Marshal(map[string]any{"messages": page})
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func newHistoryClient(t *testing.T, h *historyServer, pageSize, limit int) *APIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewAPIClient(Config{APIEndpoint: srv.URL + "/", HistoryPageSize: pageSize, HistoryLimit: limit}, "tok")
}

func TestAPIClient_LoadHistoryPages(t *testing.T) {
	h := &historyServer{total: 7}
	c := newHistoryClient(t, h, 3, 100)

	msgs, err := c.LoadHistory(context.Background(), "c1")
	require.NoError(t, err)

	assert.Len(t, msgs, 7)
	assert.Equal(t, "c1", msgs[0].ConversationID, "missing conversation id is filled in")
	assert.Equal(t, []string{
		"/conversations/c1/messages?limit=3",
		"/conversations/c1/messages?limit=3&skip=3",
		"/conversations/c1/messages?limit=3&skip=6",
	}, h.requests)
	for _, a := range h.auth {
		assert.Equal(t, "Bearer tok", a)
	}
}

func TestAPIClient_LoadHistoryStopsAtLimit(t *testing.T) {
	h := &historyServer{total: 100}
	c := newHistoryClient(t, h, 4, 10)

	msgs, err := c.LoadHistory(context.Background(), "c1")
	require.NoError(t, err)

	assert.Len(t, msgs, 10)
	assert.Equal(t, "/conversations/c1/messages?limit=2&skip=8", h.requests[len(h.requests)-1])
}

func TestAPIClient_ExactPageBoundary(t *testing.T) {
	h := &historyServer{total: 6}
	c := newHistoryClient(t, h, 3, 100)

	msgs, err := c.LoadHistory(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, msgs, 6)
	assert.Len(t, h.requests, 3, "an empty page ends the walk")
}

func TestAPIClient_BareArray(t *testing.T) {
	h := &historyServer{total: 2, bare: true}
	c := newHistoryClient(t, h, 50, 500)

	msgs, err := c.FetchMessages(context.Background(), "c1", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, ids(msgs))
}

func TestAPIClient_ErrorStatus(t *testing.T) {
	h := &historyServer{}
	c := newHistoryClient(t, h, 50, 500)

	_, err := c.LoadHistory(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "conversation not found")
}

func TestAPIClient_SetToken(t *testing.T) {
	h := &historyServer{total: 1}
	c := newHistoryClient(t, h, 50, 500)

	c.SetToken("fresh")
	_, err := c.FetchMessages(context.Background(), "c1", 50, 0)
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh", h.auth[0])
}

func TestAPIClient_Cancelled(t *testing.T) {
	h := &historyServer{total: 1}
	c := newHistoryClient(t, h, 50, 500)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.LoadHistory(ctx, "c1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveAPIBase(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{APIEndpoint: "https://api.example.com/"}, "https://api.example.com"},
		{Config{Endpoint: "ws://chat.local:8000/ws"}, "http://chat.local:8000"},
		{Config{Endpoint: "wss://chat.example.com/ws"}, "https://chat.example.com"},
		{Config{Endpoint: "::bad"}, "http://localhost:8000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveAPIBase(tt.cfg))
	}
}
