package chatsync

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeboLoop/chatsync-go-sdk/frame"
	"github.com/NeboLoop/chatsync-go-sdk/wire"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []ConnState
	errs   []error
}

func (r *stateRecorder) record(s ConnState, err error) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() []ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConnState(nil), r.states...)
}

func newTestManager(t *testing.T, g *fakeGateway, sub Subscription) (*ConnectionManager, *stateRecorder) {
	t.Helper()
	rec := &stateRecorder{}
	m := NewConnectionManager(g.config(), sub, rec.record)
	t.Cleanup(func() { m.Close() })
	return m, rec
}

func TestConnectionManager_DisabledWithoutTokenOrConversation(t *testing.T) {
	g := newFakeGateway(t)
	g.allow("tok", "u1")
	m, _ := newTestManager(t, g, Subscription{})
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, "", "c1"))
	require.NoError(t, m.Apply(ctx, "tok", ""))

	assert.Equal(t, StateDisabled, m.State())
	assert.Empty(t, g.tokens())
	assert.ErrorIs(t, m.Emit(frame.TypeSendMessage, wire.SendPayload{}), ErrNotConnected)
	_, err := m.Room()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectionManager_ConnectAndSwitchRooms(t *testing.T) {
	g := newFakeGateway(t)
	g.allow("tok", "u1")
	m, rec := newTestManager(t, g, Subscription{})
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, "tok", "c1"))
	require.NoError(t, m.Apply(ctx, "tok", "c2"))
	require.NoError(t, m.Apply(ctx, "tok", "c2"))

	g.waitRoomLog(t, "+c1", "-c1", "+c2")
	assert.Equal(t, []string{"tok"}, g.tokens(), "one channel across switches")
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, []ConnState{StateConnecting, StateConnected}, rec.snapshot())
	assert.Equal(t, "u1", m.UserID())

	room, err := m.Room()
	require.NoError(t, err)
	assert.Equal(t, "c2", room)
}

func TestConnectionManager_TokenChangeRedials(t *testing.T) {
	g := newFakeGateway(t)
	g.allow("old", "u1")
	g.allow("new", "u1")
	m, _ := newTestManager(t, g, Subscription{})
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, "old", "c1"))
	require.NoError(t, m.Apply(ctx, "new", "c1"))

	assert.Equal(t, []string{"old", "new"}, g.tokens())
	g.waitReceived(t, 3, frame.TypeJoinChat, frame.TypeLeaveChat)

	joins := g.received(frame.TypeJoinChat)
	require.Len(t, joins, 2)
	first, second := min(joins[0].Conn, joins[1].Conn), max(joins[0].Conn, joins[1].Conn)
	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{"+c1", "-c1"}, g.roomLog(first))
	assert.Equal(t, []string{"+c1"}, g.roomLog(second))
	require.Eventually(t, func() bool { return g.liveConns() == 1 }, waitFor, tick)
}

func TestConnectionManager_ClearingTokenTearsDown(t *testing.T) {
	g := newFakeGateway(t)
	g.allow("tok", "u1")
	m, rec := newTestManager(t, g, Subscription{})
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, "tok", "c1"))
	require.NoError(t, m.Apply(ctx, "", "c1"))

	g.waitRoomLog(t, "+c1", "-c1")
	require.Eventually(t, func() bool { return g.liveConns() == 0 }, waitFor, tick)
	assert.Equal(t, StateDisabled, m.State())
	assert.Equal(t, []ConnState{StateConnecting, StateConnected, StateDisabled}, rec.snapshot())
}

func TestConnectionManager_LostConnectionDegrades(t *testing.T) {
	g := newFakeGateway(t)
	g.allow("tok", "u1")
	m, rec := newTestManager(t, g, Subscription{})
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, "tok", "c1"))
	g.waitRoomLog(t, "+c1")
	g.kick("bye")

	require.Eventually(t, func() bool { return m.State() == StateDegraded }, waitFor, tick)
	assert.ErrorIs(t, m.Emit(frame.TypeSendMessage, wire.SendPayload{}), ErrNotConnected)
	assert.Len(t, g.tokens(), 1, "no automatic reconnect")

	require.NoError(t, m.Apply(ctx, "tok", "c1"))
	assert.Equal(t, StateConnected, m.State())
	assert.Len(t, g.tokens(), 2)
	assert.Equal(t,
		[]ConnState{StateConnecting, StateConnected, StateDegraded, StateConnecting, StateConnected},
		rec.snapshot())
}

func TestConnectionManager_AuthFailure(t *testing.T) {
	g := newFakeGateway(t)
	m, rec := newTestManager(t, g, Subscription{})

	err := m.Apply(context.Background(), "bad", "c1")
	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, StateDegraded, m.State())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.errs, 2)
	assert.ErrorIs(t, rec.errs[1], ErrAuthFailed)
}

func TestConnectionManager_RoutesInbound(t *testing.T) {
	g := newFakeGateway(t)
	g.allow("tok", "u1")
	var mu sync.Mutex
	var got []Message
	m, _ := newTestManager(t, g, Subscription{OnCreated: func(msg Message) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	}})

	require.NoError(t, m.Apply(context.Background(), "tok", "c1"))
	g.waitRoomLog(t, "+c1")
	g.push(frame.TypeReceiveMessage, wire.MessagePayload{Message: msg("1", 1, "u2")})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, waitFor, tick)
}

func TestConnectionManager_Close(t *testing.T) {
	g := newFakeGateway(t)
	g.allow("tok", "u1")
	m, rec := newTestManager(t, g, Subscription{})
	ctx := context.Background()

	require.NoError(t, m.Apply(ctx, "tok", "c1"))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	g.waitRoomLog(t, "+c1", "-c1")
	assert.ErrorIs(t, m.Apply(ctx, "tok", "c1"), ErrClosed)
	assert.Equal(t, []ConnState{StateConnecting, StateConnected}, rec.snapshot(), "close is silent")
}
