package coordinator

import (
	"context"

	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/logging"
	"github.com/thaasbai/coordinator/internal/v1/metrics"
	"github.com/thaasbai/coordinator/internal/v1/rooms"
	"go.uber.org/zap"
)

// sendTo marshals one frame and enqueues it for a single session. Enqueueing
// is non-blocking; a full buffer marks the session unhealthy and the
// transport closes it.
func (c *Coordinator) sendTo(sid string, event events.Name, data any) {
	sess := c.sessions.Lookup(sid)
	if sess == nil {
		return
	}
	frame, err := events.Marshal(event, data)
	if err != nil {
		logging.Error(context.Background(), "failed to marshal outbound frame",
			zap.String("event", string(event)), zap.Error(err))
		return
	}
	sess.Send(frame)
}

// broadcast fans a frame out to every seated member of a room, skipping
// excludeSID (senders do not receive echoes of their own moves). Caller must
// hold the room's lock.
func (c *Coordinator) broadcast(room *rooms.Room, event events.Name, data any, excludeSID string) {
	frame, err := events.Marshal(event, data)
	if err != nil {
		logging.Error(context.Background(), "failed to marshal broadcast frame",
			zap.String("event", string(event)), zap.Error(err))
		return
	}
	for _, view := range room.Roster() {
		if view.OderID == excludeSID {
			continue
		}
		if sess := c.sessions.Lookup(view.OderID); sess != nil {
			sess.Send(frame)
			metrics.BroadcastFrames.Inc()
		}
	}
}

// broadcastRoster pushes the current seat map to all members, the catch-all
// presence refresh after joins, swaps, and readiness changes.
func (c *Coordinator) broadcastRoster(room *rooms.Room) {
	c.broadcast(room, events.Scoped(room.GameType, events.EventPlayersChanged),
		events.PlayersChangedData{Players: room.Roster()}, "")
}

// emitError reports a protocol failure to the offending session only. Errors
// are never broadcast.
func (c *Coordinator) emitError(sid string, we *events.WireError) {
	c.sendTo(sid, events.EventError, events.ErrorData{Message: we.Label})
}
