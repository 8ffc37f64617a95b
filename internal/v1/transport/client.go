// Package transport owns the WebSocket half of the coordinator: the upgrade
// handshake, per-connection read/write pumps, keepalive pings, and the
// bounded send buffer. Frames are JSON envelopes decoded here and handed to
// the coordinator; everything else about the protocol lives elsewhere.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thaasbai/coordinator/internal/v1/admission"
	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/logging"
	"github.com/thaasbai/coordinator/internal/v1/metrics"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pingPeriod is the server-side idle ping interval.
	pingPeriod = 25 * time.Second
	// readIdle is the read deadline: a connection with no inbound frame or
	// pong for this long is considered dead.
	readIdle = 45 * time.Second
	// sendBufferSize bounds the per-session outbound queue. A client that
	// cannot drain this many frames is unhealthy and gets closed.
	sendBufferSize = 256
)

// wsConnection is the slice of *websocket.Conn the client needs; tests
// substitute recorded mocks.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// frameHandler is the coordinator surface the transport drives.
type frameHandler interface {
	HandleFrame(ctx context.Context, sid string, inbound events.Inbound)
	HandleDisconnect(ctx context.Context, sid string)
}

// Client is one connected session's transport. Outbound frames are enqueued
// non-blocking; the single writePump goroutine preserves enqueue order.
type Client struct {
	sid     string
	conn    wsConnection
	handler frameHandler

	send chan []byte

	mu         sync.Mutex
	closed     bool
	closeLabel string
	closeOnce  sync.Once
}

func newClient(sid string, conn wsConnection, handler frameHandler) *Client {
	return &Client{
		sid:     sid,
		conn:    conn,
		handler: handler,
		send:    make(chan []byte, sendBufferSize),
	}
}

// Send enqueues a frame without blocking. A full buffer means the client has
// stopped draining: the frame is dropped and the connection closed.
func (c *Client) Send(frame []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			// Send raced a concurrent Close; the frame is lost, which is
			// fine for a connection that is going away.
			logging.GetLogger().Debug("send raced close", zap.String("sid", c.sid))
		}
	}()

	select {
	case c.send <- frame:
	default:
		metrics.DroppedFrames.Inc()
		logging.Warn(context.Background(), "send buffer full, closing unhealthy client",
			zap.String("sid", c.sid))
		c.Close()
	}
}

// Close shuts the client's transport down. Closing the send channel makes
// the writePump drain, emit a close frame, and close the socket. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
	})
}

// CloseWithError records a final error frame and closes. The writePump, as
// the connection's only writer, delivers it after draining the queue and
// before the close frame. Best-effort: the label is lost if the socket dies
// first.
func (c *Client) CloseWithError(label string) {
	c.mu.Lock()
	if c.closeLabel == "" {
		c.closeLabel = label
	}
	c.mu.Unlock()
	c.Close()
}

func (c *Client) finalLabel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLabel
}

// readPump decodes inbound envelopes and feeds the coordinator until the
// connection dies, then triggers the disconnect flow.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.handler.HandleDisconnect(ctx, c.sid)
		c.Close()
		_ = c.conn.Close()
		metrics.DecConnection()
	}()

	c.conn.SetReadLimit(admission.MaxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(readIdle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readIdle))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// Tell the idle client why it is being dropped. The frame
				// goes out through the writePump, never from here.
				c.CloseWithError(events.ErrTimeout.Label)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readIdle))

		var inbound events.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil || inbound.Event == "" {
			c.sendError(events.ErrInvalidPayload.Label)
			continue
		}
		c.handler.HandleFrame(ctx, c.sid, inbound)
	}
}

// writePump is the connection's single writer: queued frames in enqueue
// order, idle pings on the ticker, then any recorded error label and a close
// frame when the channel closes.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				if label := c.finalLabel(); label != "" {
					if frame, err := events.Marshal(events.EventError, events.ErrorData{Message: label}); err == nil {
						_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
						_ = c.conn.WriteMessage(websocket.TextMessage, frame)
					}
				}
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.GetLogger().Debug("write failed", zap.String("sid", c.sid), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(label string) {
	if frame, err := events.Marshal(events.EventError, events.ErrorData{Message: label}); err == nil {
		c.Send(frame)
	}
}
