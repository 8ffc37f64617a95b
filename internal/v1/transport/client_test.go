package transport

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thaasbai/coordinator/internal/v1/admission"
	"github.com/thaasbai/coordinator/internal/v1/events"
)

func runReadPump(c *Client) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.readPump(context.Background())
	}()
	return done
}

func runWritePump(c *Client) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	return done
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not exit")
	}
}

func TestReadPump_DispatchesFrames(t *testing.T) {
	conn := newScriptedConn()
	handler := &recordingHandler{}
	c := newClient("sid-1", conn, handler)

	conn.feed([]byte(`{"event":"ping_keepalive"}`))
	conn.feed([]byte(`{"event":"join_room","data":{"roomId":"ABC234","playerName":"Ali"}}`))
	conn.feedError(errConnGone)

	waitDone(t, runReadPump(c))

	frames := handler.inbound()
	require.Len(t, frames, 2)
	assert.Equal(t, events.EventPingKeepalive, frames[0].Event)
	assert.Equal(t, events.EventJoinRoom, frames[1].Event)
	assert.JSONEq(t, `{"roomId":"ABC234","playerName":"Ali"}`, string(frames[1].Data))

	assert.Equal(t, []string{"sid-1"}, handler.disconnected())
	assert.GreaterOrEqual(t, conn.closeCount(), 1)
	assert.Equal(t, int64(admission.MaxFrameBytes), conn.readLim)
}

func TestReadPump_MalformedFrame(t *testing.T) {
	conn := newScriptedConn()
	handler := &recordingHandler{}
	c := newClient("sid-2", conn, handler)

	conn.feed([]byte(`{not json`))
	conn.feed([]byte(`{"data":{"x":1}}`)) // missing event name
	conn.feedError(errConnGone)

	waitDone(t, runReadPump(c))

	// Nothing reached the handler; each bad frame got an error reply queued.
	assert.Equal(t, 0, handler.frameCount())
	var errs int
	for i := 0; i < 2; i++ {
		frame := <-c.send
		var env struct {
			Event string           `json:"event"`
			Data  events.ErrorData `json:"data"`
		}
		require.NoError(t, json.Unmarshal(frame, &env))
		assert.Equal(t, "error", env.Event)
		assert.Equal(t, events.ErrInvalidPayload.Label, env.Data.Message)
		errs++
	}
	assert.Equal(t, 2, errs)
}

func TestWritePump_PreservesOrderAndClosesSocket(t *testing.T) {
	conn := newScriptedConn()
	c := newClient("sid-3", conn, &recordingHandler{})

	c.Send([]byte(`{"event":"a"}`))
	c.Send([]byte(`{"event":"b"}`))
	c.Send([]byte(`{"event":"c"}`))

	done := runWritePump(c)
	c.Close()
	waitDone(t, done)

	writes := conn.recorded()
	require.Len(t, writes, 4)
	for i, want := range []string{`{"event":"a"}`, `{"event":"b"}`, `{"event":"c"}`} {
		assert.Equal(t, websocket.TextMessage, writes[i].messageType)
		assert.Equal(t, want, string(writes[i].data))
	}
	assert.Equal(t, websocket.CloseMessage, writes[3].messageType)
	assert.Equal(t, 1, conn.closeCount())
}

func TestSend_BufferOverflowClosesClient(t *testing.T) {
	conn := newScriptedConn()
	c := newClient("sid-4", conn, &recordingHandler{})

	// No writePump is draining, so the buffer fills and the next frame trips
	// the overflow path.
	for i := 0; i < sendBufferSize; i++ {
		c.Send([]byte(`{"event":"x"}`))
	}
	c.Send([]byte(`{"event":"overflow"}`))

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	assert.True(t, closed)

	// Further sends are no-ops and must not panic on the closed channel.
	c.Send([]byte(`{"event":"late"}`))
}

func TestClose_Idempotent(t *testing.T) {
	conn := newScriptedConn()
	c := newClient("sid-5", conn, &recordingHandler{})

	c.Close()
	c.Close()

	_, ok := <-c.send
	assert.False(t, ok)
}

func TestCloseWithError_DrainsQueueThenWritesFinalFrame(t *testing.T) {
	conn := newScriptedConn()
	c := newClient("sid-6", conn, &recordingHandler{})

	c.Send([]byte(`{"event":"queued"}`))
	done := runWritePump(c)
	c.CloseWithError(events.ErrTooManyConnections.Label)
	waitDone(t, done)

	// The queued frame goes first, then the error frame, then the close
	// frame. All three come from the writePump.
	writes := conn.recorded()
	require.Len(t, writes, 3)
	assert.Equal(t, websocket.TextMessage, writes[0].messageType)
	assert.Equal(t, `{"event":"queued"}`, string(writes[0].data))
	assert.Equal(t, websocket.TextMessage, writes[1].messageType)
	assert.JSONEq(t, `{"event":"error","data":{"message":"too_many_connections"}}`, string(writes[1].data))
	assert.Equal(t, websocket.CloseMessage, writes[2].messageType)

	c.mu.Lock()
	assert.True(t, c.closed)
	c.mu.Unlock()
}

func TestCloseWithError_EmptyLabelJustCloses(t *testing.T) {
	conn := newScriptedConn()
	c := newClient("sid-7", conn, &recordingHandler{})

	done := runWritePump(c)
	c.CloseWithError("")
	waitDone(t, done)

	writes := conn.recorded()
	require.Len(t, writes, 1)
	assert.Equal(t, websocket.CloseMessage, writes[0].messageType)
}

func TestReadPump_IdleTimeoutFrameGoesThroughWritePump(t *testing.T) {
	conn := newScriptedConn()
	handler := &recordingHandler{}
	c := newClient("sid-8", conn, handler)

	wdone := runWritePump(c)
	rdone := runReadPump(c)

	conn.feed([]byte(`{"event":"ping_keepalive"}`))
	conn.feedError(os.ErrDeadlineExceeded)

	waitDone(t, rdone)
	waitDone(t, wdone)

	writes := conn.recorded()
	require.Len(t, writes, 2)
	assert.Equal(t, websocket.TextMessage, writes[0].messageType)
	assert.JSONEq(t, `{"event":"error","data":{"message":"timeout"}}`, string(writes[0].data))
	assert.Equal(t, websocket.CloseMessage, writes[1].messageType)

	require.Len(t, handler.inbound(), 1)
	assert.Equal(t, []string{"sid-8"}, handler.disconnected())
}

func TestReadPump_NonTimeoutErrorClosesWithoutLabel(t *testing.T) {
	conn := newScriptedConn()
	c := newClient("sid-9", conn, &recordingHandler{})

	wdone := runWritePump(c)
	rdone := runReadPump(c)

	conn.feedError(errConnGone)

	waitDone(t, rdone)
	waitDone(t, wdone)

	writes := conn.recorded()
	require.Len(t, writes, 1)
	assert.Equal(t, websocket.CloseMessage, writes[0].messageType)
}
