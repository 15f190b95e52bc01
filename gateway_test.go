package chatsync

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeboLoop/chatsync-go-sdk/frame"
	"github.com/NeboLoop/chatsync-go-sdk/wire"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// recvFrame is one frame the fake gateway received after the handshake.
type recvFrame struct {
	Conn    int
	Type    uint8
	Payload []byte
}

func (f recvFrame) room() string {
	var p wire.RoomPayload
	wire.Unmarshal(f.Payload, &p)
	return p.ConversationID
}

type gatewayConn struct {
	id     int
	userID string
	conn   net.Conn
	wmu    sync.Mutex
}

func (c *gatewayConn) write(eventType uint8, payload any) error {
	data, err := wire.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := frame.Seal(eventType, frame.ID{}, data)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wsutil.WriteServerBinary(c.conn, encoded)
}

// fakeGateway speaks the chat protocol on /ws and serves history on
// /conversations/{id}/messages.
type fakeGateway struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	users    map[string]string // token -> user id
	history  map[string][]Message
	connects []string
	frames   []recvFrame
	conns    map[int]*gatewayConn
	nextConn int
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{
		t:       t,
		users:   map[string]string{},
		history: map[string][]Message{},
		conns:   map[int]*gatewayConn{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.serveWS)
	mux.HandleFunc("/conversations/", g.serveHistory)
	g.srv = httptest.NewServer(mux)
	t.Cleanup(func() {
		g.dropAll()
		g.srv.Close()
	})
	return g
}

func (g *fakeGateway) endpoint() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws"
}

func (g *fakeGateway) config() Config {
	return Config{
		Endpoint:         g.endpoint(),
		APIEndpoint:      g.srv.URL,
		HandshakeTimeout: time.Second,
	}
}

func (g *fakeGateway) allow(token, userID string) {
	g.mu.Lock()
	g.users[token] = userID
	g.mu.Unlock()
}

func (g *fakeGateway) setHistory(conversationID string, msgs ...Message) {
	g.mu.Lock()
	g.history[conversationID] = msgs
	g.mu.Unlock()
}

func (g *fakeGateway) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	defer conn.Close()

	data, err := wsutil.ReadClientBinary(conn)
	if err != nil {
		return
	}
	h, payload, err := frame.Open(data)
	if err != nil || h.Type != frame.TypeConnect {
		return
	}
	var hello wire.ConnectPayload
	wire.Unmarshal(payload, &hello)

	g.mu.Lock()
	g.connects = append(g.connects, hello.Token)
	userID, ok := g.users[hello.Token]
	g.nextConn++
	gc := &gatewayConn{id: g.nextConn, userID: userID, conn: conn}
	g.mu.Unlock()

	if !ok {
		gc.write(frame.TypeAuthFail, wire.AuthResultPayload{Reason: "invalid token"})
		return
	}
	gc.write(frame.TypeAuthOK, wire.AuthResultPayload{OK: true, UserID: userID})

	g.mu.Lock()
	g.conns[gc.id] = gc
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.conns, gc.id)
		g.mu.Unlock()
	}()

	for {
		data, err := wsutil.ReadClientBinary(conn)
		if err != nil {
			return
		}
		h, payload, err := frame.Open(data)
		if err != nil {
			continue
		}
		g.mu.Lock()
		g.frames = append(g.frames, recvFrame{Conn: gc.id, Type: h.Type, Payload: payload})
		g.mu.Unlock()
		g.echo(gc, h.Type, payload)
	}
}

// echo answers sends and deletes the way a real server would.
func (g *fakeGateway) echo(gc *gatewayConn, eventType uint8, payload []byte) {
	switch eventType {
	case frame.TypeSendMessage:
		var p wire.SendPayload
		wire.Unmarshal(payload, &p)
		if p.Content == "no-echo" {
			return
		}
		gc.write(frame.TypeReceiveMessage, wire.MessagePayload{Message: Message{
			ID:             uuid.NewString(),
			ConversationID: p.ConversationID,
			SenderID:       gc.userID,
			Content:        p.Content,
			Timestamp:      time.Now().UTC(),
		}})
	case frame.TypeDeleteMessage:
		var p wire.DeletePayload
		wire.Unmarshal(payload, &p)
		gc.write(frame.TypeMessageDeleted, p)
	}
}

func (g *fakeGateway) serveHistory(w http.ResponseWriter, r *http.Request) {
	auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	g.mu.Lock()
	_, ok := g.users[auth]
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/conversations/"), "/messages")
	msgs := g.history[id]
	g.mu.Unlock()

	if !ok {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	body, _ := wire.Marshal(map[string]any{"messages": msgs})
	w.Write(body)
}

// push sends an event to every live connection.
func (g *fakeGateway) push(eventType uint8, payload any) {
	g.mu.Lock()
	conns := make([]*gatewayConn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()
	for _, c := range conns {
		c.write(eventType, payload)
	}
}

// kick closes every connection with a close event.
func (g *fakeGateway) kick(reason string) {
	g.push(frame.TypeClose, wire.ClosePayload{Reason: reason})
}

func (g *fakeGateway) dropAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.conns {
		c.conn.Close()
	}
}

func (g *fakeGateway) liveConns() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *fakeGateway) tokens() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.connects...)
}

func (g *fakeGateway) received(types ...uint8) []recvFrame {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []recvFrame
	for _, f := range g.frames {
		for _, t := range types {
			if f.Type == t {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// roomLog renders join/leave frames as "+id" / "-id". With a connection
// id only that connection's frames are included; order across connections
// is not defined.
func (g *fakeGateway) roomLog(conn ...int) []string {
	var out []string
	for _, f := range g.received(frame.TypeJoinChat, frame.TypeLeaveChat) {
		if len(conn) > 0 && f.Conn != conn[0] {
			continue
		}
		sign := "+"
		if f.Type == frame.TypeLeaveChat {
			sign = "-"
		}
		out = append(out, sign+f.room())
	}
	return out
}

func (g *fakeGateway) waitReceived(t *testing.T, n int, types ...uint8) []recvFrame {
	t.Helper()
	require.Eventually(t, func() bool { return len(g.received(types...)) >= n }, waitFor, tick)
	return g.received(types...)
}

func (g *fakeGateway) waitRoomLog(t *testing.T, want ...string) {
	t.Helper()
	assert.Eventually(t, func() bool { return assert.ObjectsAreEqual(want, g.roomLog()) }, waitFor, tick,
		"room log %v, want %v", g.roomLog(), want)
}
