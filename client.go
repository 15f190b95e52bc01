// Package chatsync keeps a client-side view of one chat conversation in
// sync with a real-time gateway. It owns the WebSocket channel lifecycle,
// room membership, outbound send/edit/delete actions, inbound event
// routing and history loading, and exposes the reconciled, ordered message
// list through callbacks.
package chatsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Client is the conversation synchronization engine.
type Client struct {
	cfg      Config
	cb       Callbacks
	logger   *slog.Logger
	conns    *ConnectionManager
	history  HistoryLoader
	api      *APIClient // nil when cfg.History is set
	dispatch *Dispatcher

	// selectMu serializes SetToken, Select and Close so that manager
	// applications happen in call order.
	selectMu sync.Mutex

	mu      sync.Mutex
	token   string
	conv    string
	gen     uint64
	store   *Store
	fetched bool
	cancel  context.CancelFunc

	fetches sync.WaitGroup
	closed  atomic.Bool

	// cbMu orders callback registration in inflight against Close.
	cbMu     sync.Mutex
	inflight sync.WaitGroup
}

// New creates a Client. Nothing connects until both a token and a
// conversation are set.
func New(cfg Config, cb Callbacks) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint not configured")
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:    cfg,
		cb:     cb,
		logger: cfg.Logger.With("component", "client"),
	}

	c.history = cfg.History
	if c.history == nil {
		c.api = NewAPIClient(cfg, "")
		c.history = c.api
	}

	c.conns = NewConnectionManager(cfg, Subscription{
		OnCreated:     c.onCreated,
		OnEdited:      c.onEdited,
		OnDeleted:     c.onDeleted,
		OnUserJoined:  func(p Presence) { c.onPresence(p, true) },
		OnUserLeft:    func(p Presence) { c.onPresence(p, false) },
		OnServerError: c.onServerError,
	}, c.onConnectivity)

	c.dispatch = NewDispatcher(c.conns, c.activeStore, c.self, cfg.ConfirmDelete, c.notify, cfg.Logger)
	return c, nil
}

// SetToken sets or clears the bearer credential. A changed token tears the
// channel down and redials with the new one.
func (c *Client) SetToken(ctx context.Context, token string) error {
	c.selectMu.Lock()
	defer c.selectMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if c.api != nil {
		c.api.SetToken(token)
	}

	c.mu.Lock()
	if token == c.token {
		c.mu.Unlock()
		return nil
	}
	c.token = token
	conv := c.conv
	c.startFetchLocked()
	c.mu.Unlock()

	return c.conns.Apply(ctx, token, conv)
}

// Select switches the active conversation. The previous store is dropped,
// any in-flight history fetch for it is discarded, and membership moves to
// the new room. "" closes the conversation. Selecting the current
// conversation again rejoins it if the channel is not in its room.
func (c *Client) Select(ctx context.Context, conversationID string) error {
	c.selectMu.Lock()
	defer c.selectMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	if conversationID == c.conv {
		token := c.token
		c.startFetchLocked()
		c.mu.Unlock()
		if conversationID == "" || token == "" {
			return nil
		}
		if room, err := c.conns.Room(); err == nil && room == conversationID {
			return nil
		}
		// Selected but not joined: the join failed or the channel dropped.
		return c.conns.Apply(ctx, token, conversationID)
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.conv = conversationID
	c.store = nil
	c.fetched = false
	if conversationID != "" {
		c.store = NewStore(conversationID)
	}
	token := c.token
	c.startFetchLocked()
	s := c.store
	c.mu.Unlock()

	c.logger.Debug("conversation selected", "conversation_id", conversationID)
	if s != nil {
		c.notify(s)
	}
	return c.conns.Apply(ctx, token, conversationID)
}

// startFetchLocked starts the history fetch for the active store once a
// token is available. Caller holds c.mu.
func (c *Client) startFetchLocked() {
	if c.store == nil || c.token == "" || c.fetched {
		return
	}
	c.fetched = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.fetches.Add(1)
	go c.loadHistory(ctx, c.gen, c.store)
}

func (c *Client) loadHistory(ctx context.Context, gen uint64, s *Store) {
	defer c.fetches.Done()

	conv := s.ConversationID()
	msgs, err := c.history.LoadHistory(ctx, conv)

	c.mu.Lock()
	if c.closed.Load() || c.gen != gen {
		c.mu.Unlock()
		c.logger.Debug("discarding stale history", "conversation_id", conv)
		return
	}
	if err != nil {
		c.fetched = false
		c.mu.Unlock()
		if errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Warn("history load failed", "conversation_id", conv, "error", err)
		if c.cb.OnHistoryError != nil && c.enter() {
			defer c.inflight.Done()
			c.cb.OnHistoryError(conv, err)
		}
		return
	}
	n := s.Load(msgs)
	c.mu.Unlock()

	c.logger.Debug("history loaded", "conversation_id", conv, "fetched", len(msgs), "admitted", n)
	c.notify(s)
}

// Messages returns the ordered message list of the active conversation.
func (c *Client) Messages() []Message {
	s := c.activeStore()
	if s == nil {
		return nil
	}
	return s.Messages()
}

// Conversation returns the selected conversation id.
func (c *Client) Conversation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv
}

// Self returns the local participant id, or "" when it is not yet known.
func (c *Client) Self() string { return c.self() }

// State returns the current connectivity state.
func (c *Client) State() ConnState { return c.conns.State() }

// Send posts a new message to the active conversation.
func (c *Client) Send(content string) error { return c.dispatch.Send(content) }

// Edit changes one of the local participant's messages.
func (c *Client) Edit(messageID, content string) error { return c.dispatch.Edit(messageID, content) }

// Delete removes one of the local participant's messages after confirmation.
func (c *Client) Delete(messageID string) error { return c.dispatch.Delete(messageID) }

// Close tears down the channel and waits for background fetches and for
// callbacks already running. Callbacks must not call Close.
func (c *Client) Close() error {
	c.selectMu.Lock()
	defer c.selectMu.Unlock()

	if c.closed.Swap(true) {
		return nil
	}
	// No enter can register after this point.
	c.cbMu.Lock()
	c.cbMu.Unlock()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	err := c.conns.Close()
	c.fetches.Wait()
	c.inflight.Wait()
	return err
}

// --- Internal ---

func (c *Client) activeStore() *Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// self is the local participant id: configured, reported by the server at
// auth, or the token subject.
func (c *Client) self() string {
	if c.cfg.UserID != "" {
		return c.cfg.UserID
	}
	if id := c.conns.UserID(); id != "" {
		return id
	}
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	return subjectFromToken(token)
}

// mutate applies fn to the active store when conversationID matches the
// selection ("" matches any).
func (c *Client) mutate(conversationID string, fn func(*Store) bool) {
	c.mu.Lock()
	s := c.store
	if c.closed.Load() || s == nil || (conversationID != "" && conversationID != c.conv) {
		c.mu.Unlock()
		return
	}
	changed := fn(s)
	c.mu.Unlock()

	if changed {
		c.notify(s)
	}
}

func (c *Client) onCreated(m Message) {
	c.mutate(m.ConversationID, func(s *Store) bool { return s.Admit(inRoom(m, s)) })
}

func (c *Client) onEdited(m Message) {
	c.mutate(m.ConversationID, func(s *Store) bool { return s.Replace(inRoom(m, s)) })
}

// inRoom fills a missing conversation id from the store the event is
// applied to.
func inRoom(m Message, s *Store) Message {
	if m.ConversationID == "" {
		m.ConversationID = s.ConversationID()
	}
	return m
}

func (c *Client) onDeleted(conversationID, messageID string) {
	c.mutate(conversationID, func(s *Store) bool { return s.Remove(messageID) })
}

func (c *Client) onPresence(p Presence, joined bool) {
	if c.cb.OnPresence == nil {
		return
	}
	if p.ConversationID != "" && p.ConversationID != c.Conversation() {
		return
	}
	if !c.enter() {
		return
	}
	defer c.inflight.Done()
	c.cb.OnPresence(p, joined)
}

func (c *Client) onServerError(err error) {
	if c.cb.OnServerError == nil || !c.enter() {
		return
	}
	defer c.inflight.Done()
	c.cb.OnServerError(err)
}

func (c *Client) onConnectivity(state ConnState, err error) {
	if c.cb.OnConnectivity == nil || !c.enter() {
		return
	}
	defer c.inflight.Done()
	c.cb.OnConnectivity(state, err)
}

// notify publishes a snapshot of s if it is still the active store.
func (c *Client) notify(s *Store) {
	c.mu.Lock()
	current := c.store == s
	c.mu.Unlock()
	if !current || c.cb.OnChange == nil || !c.enter() {
		return
	}
	defer c.inflight.Done()
	c.cb.OnChange(s.ConversationID(), s.Messages())
}

// enter registers a callback about to run. It reports false once Close has
// started; otherwise the caller must call c.inflight.Done when finished.
func (c *Client) enter() bool {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	if c.closed.Load() {
		return false
	}
	c.inflight.Add(1)
	return true
}
