package chatsync

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/NeboLoop/chatsync-go-sdk/frame"
	"github.com/NeboLoop/chatsync-go-sdk/wire"
)

const writeTimeout = 5 * time.Second

// Channel is one authenticated WebSocket session with the gateway.
type Channel struct {
	conn      net.Conn
	ids       *frame.IDGen
	sendCh    chan []byte
	done      chan struct{}
	writeDone chan struct{}
	closeOnce sync.Once

	handler func(frame.Header, []byte)
	onLost  func(error)

	userID string
	logger *slog.Logger
}

// DialChannel connects to cfg.Endpoint, authenticates with token and starts
// the read and write loops. handler receives every inbound frame; onLost is
// called once if the connection fails or the server closes it. Neither is
// called after Close.
func DialChannel(ctx context.Context, cfg Config, token string, handler func(frame.Header, []byte), onLost func(error)) (*Channel, error) {
	cfg = cfg.withDefaults()
	c := &Channel{
		ids:       frame.NewIDGen(),
		sendCh:    make(chan []byte, cfg.SendBuffer),
		done:      make(chan struct{}),
		writeDone: make(chan struct{}),
		handler:   handler,
		onLost:    onLost,
		logger:    cfg.Logger.With("component", "channel", "session_id", uuid.NewString()),
	}

	if err := c.connect(ctx, cfg, token); err != nil {
		return nil, err
	}

	go c.readLoop()
	go c.runWriter()

	return c, nil
}

func (c *Channel) connect(ctx context.Context, cfg Config, token string) error {
	dialer := ws.Dialer{Timeout: cfg.HandshakeTimeout}
	conn, _, _, err := dialer.Dial(ctx, cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.conn = conn

	connectPayload, err := wire.Marshal(wire.ConnectPayload{Token: token})
	if err != nil {
		conn.Close()
		return fmt.Errorf("encode connect: %w", err)
	}
	encoded, err := frame.Seal(frame.TypeConnect, c.ids.Next(), connectPayload)
	if err != nil {
		conn.Close()
		return fmt.Errorf("encode connect: %w", err)
	}
	if err := wsutil.WriteClientBinary(conn, encoded); err != nil {
		conn.Close()
		return fmt.Errorf("send connect: %w", err)
	}

	// Read auth response
	conn.SetReadDeadline(time.Now().Add(cfg.HandshakeTimeout))
	data, err := wsutil.ReadServerBinary(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("read auth: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	h, payload, err := frame.Open(data)
	if err != nil {
		conn.Close()
		return fmt.Errorf("decode auth: %w", err)
	}

	var result wire.AuthResultPayload
	wire.Unmarshal(payload, &result)

	switch h.Type {
	case frame.TypeAuthOK:
	case frame.TypeAuthFail:
		conn.Close()
		return fmt.Errorf("%w: %s", ErrAuthFailed, result.Reason)
	default:
		conn.Close()
		return fmt.Errorf("unexpected frame %s during handshake", h.Name())
	}

	c.userID = result.UserID
	c.logger.Info("connected to gateway", "endpoint", cfg.Endpoint)
	return nil
}

// UserID returns the participant id the server reported at auth, if any.
func (c *Channel) UserID() string { return c.userID }

// Emit queues one event. It never blocks.
func (c *Channel) Emit(eventType uint8, payload any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	data, err := wire.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", frame.EventName(eventType), err)
	}
	id := c.ids.Next()
	encoded, err := frame.Seal(eventType, id, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", frame.EventName(eventType), err)
	}

	select {
	case c.sendCh <- encoded:
		c.logger.Debug("emit", "event", frame.EventName(eventType), "correlation_id", id.String())
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Done is closed once the channel is shut down.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Close flushes queued frames, disconnects, and waits for the write loop
// to exit. Safe to call multiple times.
func (c *Channel) Close() error {
	c.shutdown()
	<-c.writeDone
	return nil
}

// shutdown signals both loops to stop. Reports whether this call did it.
func (c *Channel) shutdown() bool {
	first := false
	c.closeOnce.Do(func() {
		close(c.done)
		first = true
	})
	return first
}

func (c *Channel) lost(err error) {
	if c.shutdown() && c.onLost != nil {
		c.onLost(err)
	}
}

// --- Internal ---

func (c *Channel) readLoop() {
	for {
		data, err := wsutil.ReadServerBinary(c.conn)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn("read error, disconnecting", "error", err)
				c.lost(err)
			}
			return
		}

		h, payload, err := frame.Open(data)
		if err != nil {
			c.logger.Debug("bad frame", "error", err)
			continue
		}

		if h.Type == frame.TypeClose {
			var p wire.ClosePayload
			wire.Unmarshal(payload, &p)
			c.logger.Warn("closed by server", "reason", p.Reason)
			c.lost(fmt.Errorf("closed by server: %s", p.Reason))
			return
		}

		select {
		case <-c.done:
			return
		default:
		}
		if c.handler != nil {
			c.handler(h, payload)
		}
	}
}

// runWriter reports a write failure only after writeDone is closed, so an
// onLost that waits on a concurrent Close cannot block it.
func (c *Channel) runWriter() {
	err := c.writeLoop()
	first := err != nil && c.shutdown()
	close(c.writeDone)
	if first && c.onLost != nil {
		c.onLost(err)
	}
}

func (c *Channel) writeLoop() error {
	defer c.conn.Close()

	for {
		select {
		case data := <-c.sendCh:
			if err := c.write(data); err != nil {
				c.logger.Warn("write error", "error", err)
				return err
			}
		case <-c.done:
			c.flush()
			return nil
		}
	}
}

// flush writes whatever is still queued, then says goodbye.
func (c *Channel) flush() {
	for {
		select {
		case data := <-c.sendCh:
			if err := c.write(data); err != nil {
				return
			}
		default:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
			return
		}
	}
}

func (c *Channel) write(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return wsutil.WriteClientBinary(c.conn, data)
}
