package chatsync

import (
	"context"
	"log/slog"
	"sync"
)

// session is one live channel with the room and router bound to it.
type session struct {
	ch     *Channel
	rooms  *RoomController
	router *Router
}

type stateChange struct {
	state ConnState
	err   error
}

// ConnectionManager owns the channel lifecycle. A channel exists only while
// both a token and a conversation are present; it is torn down when either
// goes away and redialed when the token changes.
type ConnectionManager struct {
	cfg    Config
	sub    Subscription
	notify func(ConnState, error)
	logger *slog.Logger

	mu      sync.Mutex
	token   string
	userID  string // last server-reported participant id
	sess    *session
	state   ConnState
	pending []stateChange
	closed  bool
}

// NewConnectionManager creates a manager in the Disabled state. sub is bound
// to every channel it dials; notify (may be nil) receives state transitions
// outside the manager lock.
func NewConnectionManager(cfg Config, sub Subscription, notify func(ConnState, error)) *ConnectionManager {
	cfg = cfg.withDefaults()
	return &ConnectionManager{
		cfg:    cfg,
		sub:    sub,
		notify: notify,
		logger: cfg.Logger.With("component", "manager"),
	}
}

// Apply reconciles the channel with the current token and selection.
func (m *ConnectionManager) Apply(ctx context.Context, token, conversationID string) error {
	m.mu.Lock()
	err := m.apply(ctx, token, conversationID)
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	m.report(pending)
	return err
}

func (m *ConnectionManager) apply(ctx context.Context, token, conversationID string) error {
	if m.closed {
		return ErrClosed
	}

	if token != m.token {
		m.userID = ""
	}

	if token == "" || conversationID == "" {
		m.token = token
		m.teardown("disabled")
		m.setState(StateDisabled, nil)
		return nil
	}

	if m.sess != nil && token != m.token {
		m.teardown("token changed")
	}
	m.token = token

	if m.sess == nil {
		if err := m.dial(ctx, token); err != nil {
			return err
		}
	}

	return m.sess.rooms.Select(conversationID)
}

func (m *ConnectionManager) dial(ctx context.Context, token string) error {
	m.setState(StateConnecting, nil)

	s := &session{router: NewRouter(m.sub, m.cfg.Logger)}
	ch, err := DialChannel(ctx, m.cfg, token, s.router.Dispatch, func(err error) {
		m.lost(s, err)
	})
	if err != nil {
		m.logger.Warn("connect failed", "error", err)
		m.setState(StateDegraded, err)
		return err
	}
	s.ch = ch
	s.rooms = NewRoomController(ch)
	m.sess = s
	if id := ch.UserID(); id != "" {
		m.userID = id
	}
	m.setState(StateConnected, nil)
	return nil
}

// teardown leaves the room, detaches the router and closes the channel.
// Queued frames, including the leave, are flushed before the socket closes.
func (m *ConnectionManager) teardown(reason string) {
	s := m.sess
	if s == nil {
		return
	}
	m.sess = nil

	if err := s.rooms.Leave(); err != nil {
		m.logger.Debug("leave on teardown", "error", err)
	}
	s.router.Detach()
	s.ch.Close()
	m.logger.Info("channel closed", "reason", reason)
}

// lost handles a channel that failed underneath us. No retry: the next
// Apply dials again.
func (m *ConnectionManager) lost(s *session, err error) {
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		return
	}
	m.sess = nil
	s.router.Detach()
	s.rooms.Reset()
	m.logger.Warn("connection lost", "error", err)
	m.setState(StateDegraded, err)
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	m.report(pending)
}

func (m *ConnectionManager) setState(state ConnState, err error) {
	if state == m.state && err == nil {
		return
	}
	m.state = state
	m.pending = append(m.pending, stateChange{state: state, err: err})
}

func (m *ConnectionManager) report(changes []stateChange) {
	if m.notify == nil {
		return
	}
	for _, c := range changes {
		m.notify(c.state, c.err)
	}
}

// Emit sends one event on the live channel.
func (m *ConnectionManager) Emit(eventType uint8, payload any) error {
	m.mu.Lock()
	s := m.sess
	m.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	return s.ch.Emit(eventType, payload)
}

// Room returns the conversation the live channel is joined to.
func (m *ConnectionManager) Room() (string, error) {
	m.mu.Lock()
	s := m.sess
	m.mu.Unlock()
	if s == nil {
		return "", ErrNotConnected
	}
	id, ok := s.rooms.Joined()
	if !ok {
		return "", ErrNoConversation
	}
	return id, nil
}

// UserID returns the participant id the server reported at the last
// successful auth, or "". It survives a lost connection.
func (m *ConnectionManager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}

// State returns the last reported connectivity state.
func (m *ConnectionManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close tears the channel down. No state change is reported afterwards.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.teardown("closed")
	m.state = StateDisabled
	m.pending = nil
	return nil
}
