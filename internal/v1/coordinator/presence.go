package coordinator

import (
	"context"
	"time"

	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/logging"
	"github.com/thaasbai/coordinator/internal/v1/rooms"
	"go.uber.org/zap"
)

// HandleDisconnect runs when a session's transport dies. Queued sessions
// leave their queue immediately; seated players keep their seat for the
// grace window so a brief tab hide or network blip survives reattachment.
func (c *Coordinator) HandleDisconnect(ctx context.Context, sid string) {
	ctx = logging.WithSession(ctx, sid)

	if entry, ok := c.queues.Leave(sid); ok {
		c.broadcastQueueUpdate(entry.GameType)
	}

	binding, bound := c.sessions.BindingOf(sid)
	if bound {
		if room, ok := c.rooms.Get(binding.GameType, binding.RoomCode); ok {
			room.Lock()
			if pos, seated := room.PositionOf(sid); seated {
				if room.Status == rooms.StatusWaiting {
					// Nothing to resume in a lobby; the seat frees up now.
					c.vacateSeat(ctx, room, pos)
				} else {
					room.MarkDisconnected(pos)
					c.broadcast(room, events.Scoped(room.GameType, events.EventPlayersChanged),
						events.PlayersChangedData{Players: room.Roster()}, sid)
					c.scheduleGrace(room.GameType, room.Code, pos, sid)
					logging.Info(logging.WithRoom(ctx, room.Code), "player disconnected, grace window open",
						zap.Int("position", pos), zap.Duration("grace", c.gracePeriod))
				}
			}
			room.Unlock()
		}
	}

	c.sessions.Remove(sid)
	c.guard.ReleaseSession(sid)
}

// scheduleGrace arms the seat-removal timer for a disconnected player. An
// existing timer for the seat is replaced.
func (c *Coordinator) scheduleGrace(gt events.GameType, code string, pos int, oderID string) {
	key := graceKey(gt, code, pos)
	c.graceMu.Lock()
	if existing, ok := c.graceTimers[key]; ok {
		existing.Stop()
	}
	c.graceTimers[key] = time.AfterFunc(c.gracePeriod, func() {
		c.expireGrace(gt, code, pos, oderID)
	})
	c.graceMu.Unlock()
}

// cancelGrace stops a pending seat-removal timer, if any. Called on
// reattach and on explicit seat removal.
func (c *Coordinator) cancelGrace(gt events.GameType, code string, pos int) {
	key := graceKey(gt, code, pos)
	c.graceMu.Lock()
	if timer, ok := c.graceTimers[key]; ok {
		timer.Stop()
		delete(c.graceTimers, key)
	}
	c.graceMu.Unlock()
}

// expireGrace fires when the grace window elapses without reattachment. The
// seat is re-checked under the room's lock: a reattached or replaced seat is
// left alone.
func (c *Coordinator) expireGrace(gt events.GameType, code string, pos int, oderID string) {
	c.graceMu.Lock()
	delete(c.graceTimers, graceKey(gt, code, pos))
	c.graceMu.Unlock()

	room, ok := c.rooms.Get(gt, code)
	if !ok {
		return
	}

	ctx := logging.WithRoom(context.Background(), code)
	room.Lock()
	defer room.Unlock()

	slot := room.Slot(pos)
	if slot == nil || slot.OderID != oderID || slot.Connected {
		return
	}

	logging.Info(ctx, "grace window expired, removing seat", zap.Int("position", pos))
	c.vacateSeat(ctx, room, pos)
}

// collectExpiredRooms is the janitor pass: waiting rooms idle past an hour
// with under two connected players, and finished rooms older than five
// minutes, are destroyed.
func (c *Coordinator) collectExpiredRooms(now time.Time) {
	for _, room := range c.rooms.All() {
		room.Lock()
		if room.ExpiredWaiting(now) || room.ExpiredFinished(now) {
			ctx := logging.WithRoom(context.Background(), room.Code)
			logging.Info(ctx, "janitor collecting expired room",
				zap.String("status", string(room.Status)))
			c.deleteRoom(ctx, room)
		}
		room.Unlock()
	}
}

// SetGracePeriod overrides the reattach window; tests shrink it to keep the
// boundary cases fast.
func (c *Coordinator) SetGracePeriod(d time.Duration) {
	c.gracePeriod = d
}
