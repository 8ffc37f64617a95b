package coordinator

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/logging"
	"github.com/thaasbai/coordinator/internal/v1/metrics"
	"github.com/thaasbai/coordinator/internal/v1/rooms"
	"github.com/thaasbai/coordinator/internal/v1/sessions"
	"go.uber.org/zap"
)

func (c *Coordinator) handleCreateRoom(ctx context.Context, sess *sessions.Session, _ *rooms.Room, _ int, raw json.RawMessage) error {
	var data events.CreateRoomData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	name, err := events.NormalizePlayerName(data.PlayerName)
	if err != nil {
		return err
	}
	return c.createRoom(ctx, sess, events.GameDhihaEi, 4, name)
}

func (c *Coordinator) handleCreateDiguRoom(ctx context.Context, sess *sessions.Session, _ *rooms.Room, _ int, raw json.RawMessage) error {
	var data events.CreateDiguRoomData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	name, err := events.NormalizePlayerName(data.PlayerName)
	if err != nil {
		return err
	}
	return c.createRoom(ctx, sess, events.GameDigu, data.MaxPlayers, name)
}

// createRoom inserts a fresh room with the creator seated at position 0. A
// session that was already seated or queued elsewhere leaves there first.
func (c *Coordinator) createRoom(ctx context.Context, sess *sessions.Session, gt events.GameType, maxPlayers int, name string) error {
	c.detach(ctx, sess.SID)

	room := c.rooms.Create(gt, maxPlayers)
	room.Lock()
	defer room.Unlock()

	pos, err := room.Seat(sess.SID, name)
	if err != nil {
		return err
	}
	c.sessions.Bind(sess.SID, gt, room.Code, pos)
	metrics.RoomOccupancy.WithLabelValues(room.Code).Set(float64(room.Occupied()))

	logging.Info(logging.WithRoom(ctx, room.Code), "room created",
		zap.String("game_type", string(gt)), zap.Int("max_players", room.MaxPlayers))
	c.announce.RoomOpened(ctx, string(gt), room.Code)

	c.sendTo(sess.SID, events.Scoped(gt, events.EventRoomCreated), events.RoomCreatedData{
		RoomID:   room.Code,
		Position: pos,
		Players:  room.Roster(),
	})
	return nil
}

func (c *Coordinator) handleJoinRoom(ctx context.Context, sess *sessions.Session, _ *rooms.Room, _ int, raw json.RawMessage) error {
	var data events.JoinRoomData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	return c.joinRoom(ctx, sess, events.GameDhihaEi, data.RoomID, data.PlayerName)
}

func (c *Coordinator) handleJoinDiguRoom(ctx context.Context, sess *sessions.Session, _ *rooms.Room, _ int, raw json.RawMessage) error {
	var data events.JoinRoomData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	return c.joinRoom(ctx, sess, events.GameDigu, data.RoomID, data.PlayerName)
}

func (c *Coordinator) joinRoom(ctx context.Context, sess *sessions.Session, gt events.GameType, code, rawName string) error {
	name, err := events.NormalizePlayerName(rawName)
	if err != nil {
		return err
	}
	room, ok := c.rooms.Get(gt, events.CanonicalRoomCode(code))
	if !ok {
		return events.ErrRoomNotFound
	}

	if b, bound := c.sessions.BindingOf(sess.SID); bound && b.GameType == gt && b.RoomCode == room.Code {
		// Already seated at this table. Re-ack the seat rather than detach:
		// vacating first would empty and delete a solo player's room.
		room.Lock()
		defer room.Unlock()
		c.sendTo(sess.SID, events.Scoped(gt, events.EventRoomJoined), events.RoomJoinedData{
			RoomID:     room.Code,
			Position:   b.Position,
			Players:    room.Roster(),
			MaxPlayers: room.MaxPlayers,
		})
		return nil
	}

	c.detach(ctx, sess.SID)

	room.Lock()
	defer room.Unlock()

	pos, err := room.Seat(sess.SID, name)
	if err != nil {
		return err
	}
	c.sessions.Bind(sess.SID, gt, room.Code, pos)
	metrics.RoomOccupancy.WithLabelValues(room.Code).Set(float64(room.Occupied()))

	c.sendTo(sess.SID, events.Scoped(gt, events.EventRoomJoined), events.RoomJoinedData{
		RoomID:     room.Code,
		Position:   pos,
		Players:    room.Roster(),
		MaxPlayers: room.MaxPlayers,
	})
	c.broadcast(room, events.Scoped(gt, events.EventPlayersChanged),
		events.PlayersChangedData{Players: room.Roster()}, sess.SID)
	return nil
}

func (c *Coordinator) handleLeaveRoom(ctx context.Context, sess *sessions.Session, room *rooms.Room, pos int, _ json.RawMessage) error {
	c.vacateSeat(ctx, room, pos)
	c.sessions.Unbind(sess.SID)
	return nil
}

func (c *Coordinator) handleSetReady(_ context.Context, _ *sessions.Session, room *rooms.Room, pos int, raw json.RawMessage) error {
	var data events.SetReadyData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	room.SetReady(pos, data.Ready)
	c.broadcastRoster(room)
	return nil
}

func (c *Coordinator) handleSwapPlayer(_ context.Context, _ *sessions.Session, room *rooms.Room, _ int, raw json.RawMessage) error {
	var data events.SwapPlayerData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	from := *data.FromPosition
	to, err := room.Swap(from)
	if err != nil {
		return err
	}

	// Seat indices moved, so the affected sessions' bindings move with them.
	for _, p := range []int{from, to} {
		if slot := room.Slot(p); slot != nil {
			c.sessions.Bind(slot.OderID, room.GameType, room.Code, p)
		}
	}

	c.broadcastRoster(room)
	c.broadcast(room, events.Scoped(room.GameType, events.EventPositionChanged), events.PositionChangedData{
		FromPosition: from,
		ToPosition:   to,
		Players:      room.Roster(),
	}, "")
	return nil
}

func (c *Coordinator) handleReattach(ctx context.Context, sess *sessions.Session, _ *rooms.Room, _ int, raw json.RawMessage) error {
	var data events.ReattachData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}

	room, ok := c.rooms.Find(events.CanonicalRoomCode(data.RoomID))
	if !ok {
		return events.ErrRoomNotFound
	}

	room.Lock()
	defer room.Unlock()

	pos, err := room.Reattach(data.PreviousOderID, sess.SID)
	if err != nil {
		return err
	}
	c.cancelGrace(room.GameType, room.Code, pos)
	c.sessions.Bind(sess.SID, room.GameType, room.Code, pos)

	logging.Info(logging.WithRoom(ctx, room.Code), "session reattached to seat",
		zap.Int("position", pos), zap.String("previous_oder_id", data.PreviousOderID))

	c.sendTo(sess.SID, events.Scoped(room.GameType, events.EventRoomJoined), events.RoomJoinedData{
		RoomID:     room.Code,
		Position:   pos,
		Players:    room.Roster(),
		MaxPlayers: room.MaxPlayers,
	})
	if room.Status == rooms.StatusPlaying {
		// Resync the rejoining client with its own hand and the live state.
		c.sendTo(sess.SID, events.Scoped(room.GameType, events.EventGameStarted), events.GameStartedData{
			GameState: room.GameState(),
			Hand:      room.HandFor(pos),
			Position:  pos,
			Players:   room.Roster(),
		})
	}
	c.broadcast(room, events.Scoped(room.GameType, events.EventPlayersChanged),
		events.PlayersChangedData{Players: room.Roster()}, sess.SID)
	return nil
}

func (c *Coordinator) handlePingKeepalive(_ context.Context, sess *sessions.Session, _ *rooms.Room, _ int, _ json.RawMessage) error {
	c.sendTo(sess.SID, events.EventPongKeepalive, struct{}{})
	return nil
}

// vacateSeat removes a player from a seat and tells the remaining members.
// The room is deleted once the last seat empties. Caller must hold the room's
// lock. Host migration is implicit: the host seat is always the minimum
// occupied position.
func (c *Coordinator) vacateSeat(ctx context.Context, room *rooms.Room, pos int) {
	c.cancelGrace(room.GameType, room.Code, pos)
	room.RemovePlayer(pos)

	if room.Empty() {
		c.deleteRoom(ctx, room)
		return
	}
	metrics.RoomOccupancy.WithLabelValues(room.Code).Set(float64(room.Occupied()))
	c.broadcast(room, events.Scoped(room.GameType, events.EventPlayerDisconnected), events.PlayerDisconnectedData{
		Position: pos,
		Players:  room.Roster(),
	}, "")
}

// deleteRoom drops a room from its namespace. Caller must hold the room's
// lock; any sessions still bound to it are unbound first.
func (c *Coordinator) deleteRoom(ctx context.Context, room *rooms.Room) {
	var stale []string
	c.sessions.ForEachInRoom(room.GameType, room.Code, func(s *sessions.Session) {
		stale = append(stale, s.SID)
	})
	for _, sid := range stale {
		c.sessions.Unbind(sid)
	}
	c.rooms.Delete(room.GameType, room.Code)
	c.announce.RoomClosed(ctx, string(room.GameType), room.Code)
	logging.Info(logging.WithRoom(ctx, room.Code), "room deleted",
		zap.String("game_type", string(room.GameType)))
}

// detach performs the implicit leave before a create, join, or queue entry:
// whatever the session was doing, it stops doing it.
func (c *Coordinator) detach(ctx context.Context, sid string) {
	if entry, ok := c.queues.Leave(sid); ok {
		c.broadcastQueueUpdate(entry.GameType)
	}
	binding, bound := c.sessions.BindingOf(sid)
	if !bound {
		return
	}
	c.sessions.Unbind(sid)
	if room, ok := c.rooms.Get(binding.GameType, binding.RoomCode); ok {
		room.Lock()
		if pos, seated := room.PositionOf(sid); seated && pos == binding.Position {
			c.vacateSeat(ctx, room, pos)
		}
		room.Unlock()
	}
}

func graceKey(gt events.GameType, code string, pos int) string {
	return string(gt) + "|" + code + "|" + strconv.Itoa(pos)
}
