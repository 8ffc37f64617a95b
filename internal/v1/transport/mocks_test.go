package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/thaasbai/coordinator/internal/v1/events"
)

var errConnGone = errors.New("connection gone")

type readResult struct {
	data []byte
	err  error
}

type writeRecord struct {
	messageType int
	data        []byte
}

// scriptedConn is a wsConnection whose reads are fed by the test and whose
// writes are recorded.
type scriptedConn struct {
	reads chan readResult

	mu      sync.Mutex
	writes  []writeRecord
	closes  int
	pongFn  func(string) error
	readLim int64
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{reads: make(chan readResult, 16)}
}

func (c *scriptedConn) feed(data []byte)  { c.reads <- readResult{data: data} }
func (c *scriptedConn) feedError(e error) { c.reads <- readResult{err: e} }

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	r, ok := <-c.reads
	if !ok {
		return 0, nil, errConnGone
	}
	return 1, r.data, r.err
}

func (c *scriptedConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, writeRecord{messageType: messageType, data: data})
	return nil
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *scriptedConn) SetReadLimit(limit int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readLim = limit
}

func (c *scriptedConn) SetReadDeadline(time.Time) error  { return nil }
func (c *scriptedConn) SetWriteDeadline(time.Time) error { return nil }

func (c *scriptedConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pongFn = h
}

func (c *scriptedConn) recorded() []writeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]writeRecord, len(c.writes))
	copy(out, c.writes)
	return out
}

func (c *scriptedConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// recordingHandler captures the frames and disconnects the pumps deliver.
type recordingHandler struct {
	mu          sync.Mutex
	frames      []events.Inbound
	disconnects []string
}

func (h *recordingHandler) HandleFrame(_ context.Context, _ string, inbound events.Inbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, inbound)
}

func (h *recordingHandler) HandleDisconnect(_ context.Context, sid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects = append(h.disconnects, sid)
}

func (h *recordingHandler) frameCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

func (h *recordingHandler) inbound() []events.Inbound {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]events.Inbound, len(h.frames))
	copy(out, h.frames)
	return out
}

func (h *recordingHandler) disconnected() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.disconnects))
	copy(out, h.disconnects)
	return out
}
