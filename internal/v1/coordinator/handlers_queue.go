package coordinator

import (
	"context"
	"encoding/json"

	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/logging"
	"github.com/thaasbai/coordinator/internal/v1/matchmaking"
	"github.com/thaasbai/coordinator/internal/v1/metrics"
	"github.com/thaasbai/coordinator/internal/v1/rooms"
	"github.com/thaasbai/coordinator/internal/v1/sessions"
	"go.uber.org/zap"
)

func (c *Coordinator) handleJoinQueue(ctx context.Context, sess *sessions.Session, _ *rooms.Room, _ int, raw json.RawMessage) error {
	var data events.JoinQueueData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	name, err := events.NormalizePlayerName(data.PlayerName)
	if err != nil {
		return err
	}

	target := 4
	if data.GameType == events.GameDigu {
		target = rooms.ClampDiguPlayers(data.MaxPlayers)
	}

	c.detach(ctx, sess.SID)

	ack, matched := c.queues.Join(data.GameType, sess.SID, name, target)
	if matched == nil {
		c.sendTo(sess.SID, events.EventQueueJoined, events.QueueJoinedData{
			Position:       ack.Position,
			PlayersInQueue: ack.PlayersInQueue,
			PlayersNeeded:  ack.PlayersNeeded,
		})
		c.broadcastQueueUpdate(data.GameType)
		return nil
	}

	c.formMatch(ctx, data.GameType, matched)
	c.broadcastQueueUpdate(data.GameType)
	return nil
}

func (c *Coordinator) handleLeaveQueue(_ context.Context, sess *sessions.Session, _ *rooms.Room, _ int, _ json.RawMessage) error {
	// Best-effort and idempotent: leaving a queue you are not in succeeds.
	entry, ok := c.queues.Leave(sess.SID)
	c.sendTo(sess.SID, events.EventQueueLeft, struct{}{})
	if ok {
		c.broadcastQueueUpdate(entry.GameType)
	}
	return nil
}

// formMatch synthesizes a room for a drained queue cohort. The entries were
// popped atomically, so each session lands in exactly this room.
func (c *Coordinator) formMatch(ctx context.Context, gt events.GameType, matched []matchmaking.Entry) {
	room := c.rooms.Create(gt, len(matched))
	room.Lock()
	defer room.Unlock()

	for _, entry := range matched {
		pos, err := room.Seat(entry.SID, entry.PlayerName)
		if err != nil {
			// The cohort was sized to the table; a full room here means a
			// programming error, not a recoverable race.
			logging.Error(ctx, "failed to seat matched player",
				zap.String("session_id", entry.SID), zap.Error(err))
			continue
		}
		c.sessions.Bind(entry.SID, gt, room.Code, pos)
	}
	metrics.RoomOccupancy.WithLabelValues(room.Code).Set(float64(room.Occupied()))
	c.matchesMade.Add(1)

	logging.Info(logging.WithRoom(ctx, room.Code), "match formed",
		zap.String("game_type", string(gt)), zap.Int("players", room.Occupied()))
	c.announce.MatchMade(ctx, string(gt), room.Code)

	roster := room.Roster()
	for posKey, view := range roster {
		c.sendTo(view.OderID, events.EventMatchmakingMatched, events.MatchmakingMatchedData{
			RoomID:   room.Code,
			Position: atoiPos(posKey),
			Players:  roster,
		})
	}
}

// broadcastQueueUpdate refreshes every waiting member of one queue with its
// own remaining-players count. Digu members waiting for different table
// sizes see different numbers.
func (c *Coordinator) broadcastQueueUpdate(gt events.GameType) {
	waiting := c.queues.Waiting(gt)
	for _, entry := range waiting {
		inQueue := 0
		for _, other := range waiting {
			if other.Target == entry.Target {
				inQueue++
			}
		}
		c.sendTo(entry.SID, events.EventQueueUpdate, events.QueueUpdateData{
			PlayersInQueue: inQueue,
			PlayersNeeded:  entry.Target - inQueue,
		})
	}
}
