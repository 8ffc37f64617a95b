package coordinator

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/logging"
	"github.com/thaasbai/coordinator/internal/v1/rooms"
	"github.com/thaasbai/coordinator/internal/v1/sessions"
	"go.uber.org/zap"
)

// Dhiha-ei handlers. All run with the room's lock held; the dispatcher has
// already verified membership, host, and turn where the route requires them.

func (c *Coordinator) handleStartGame(ctx context.Context, _ *sessions.Session, room *rooms.Room, _ int, raw json.RawMessage) error {
	if room.GameType != events.GameDhihaEi {
		return events.ErrInvalidPayload
	}
	var data events.StartGameData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	if err := room.Start(data.GameState, data.Hands); err != nil {
		return err
	}

	logging.Info(logging.WithRoom(ctx, room.Code), "game started",
		zap.String("game_type", string(room.GameType)))
	c.announce.GameStarted(ctx, string(room.GameType), room.Code)

	c.sendGameStarted(room)
	return nil
}

// sendGameStarted emits the per-recipient start frame: the full gameState but
// only the addressee's own hand. This is the coordinator's single
// privacy-sensitive filter.
func (c *Coordinator) sendGameStarted(room *rooms.Room) {
	event := events.Scoped(room.GameType, events.EventGameStarted)
	roster := room.Roster()
	for posKey, view := range roster {
		pos := atoiPos(posKey)
		c.sendTo(view.OderID, event, events.GameStartedData{
			GameState: room.GameState(),
			Hand:      room.HandFor(pos),
			Position:  pos,
			Players:   roster,
		})
	}
}

func (c *Coordinator) handleCardPlayed(_ context.Context, sess *sessions.Session, room *rooms.Room, pos int, raw json.RawMessage) error {
	if room.GameType != events.GameDhihaEi {
		return events.ErrInvalidPayload
	}
	var data events.CardPlayedData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	next, err := room.RelayCard(pos)
	if err != nil {
		return err
	}

	c.broadcast(room, events.EventRemoteCardPlayed, events.RemoteCardPlayedData{
		Card:               data.Card,
		Position:           pos,
		CurrentPlayerIndex: next,
	}, sess.SID)
	c.sendTo(sess.SID, events.EventTurnChanged, events.TurnChangedData{CurrentPlayerIndex: next})
	return nil
}

func (c *Coordinator) handleTrickCompleted(_ context.Context, _ *sessions.Session, room *rooms.Room, _ int, raw json.RawMessage) error {
	if room.Status != rooms.StatusPlaying {
		return events.ErrNotInRoom
	}
	var data events.TrickCompletedData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	// The trick winner leads the next trick.
	room.SetTurn(*data.Winner)
	c.broadcast(room, events.EventTrickWinnerSet, events.TrickWinnerSetData{Winner: *data.Winner}, "")
	return nil
}

func (c *Coordinator) handleReadyForRound(_ context.Context, _ *sessions.Session, room *rooms.Room, pos int, _ json.RawMessage) error {
	if room.MarkReadyForRound(pos) {
		c.broadcast(room, events.EventAllReadyForRound, struct{}{}, "")
	}
	return nil
}

func (c *Coordinator) handleUpdateGameState(_ context.Context, sess *sessions.Session, room *rooms.Room, _ int, raw json.RawMessage) error {
	var data events.UpdateGameStateData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	room.UpdateState(data.GameState)
	c.broadcast(room, events.Scoped(room.GameType, events.EventGameStateUpdated),
		events.GameStateUpdatedData{GameState: data.GameState}, sess.SID)
	return nil
}

func (c *Coordinator) handleNewRound(_ context.Context, _ *sessions.Session, room *rooms.Room, _ int, raw json.RawMessage) error {
	var data events.StartGameData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	if err := room.NewRound(data.GameState, data.Hands); err != nil {
		return err
	}
	// Round restarts carry the full deal: the privacy boundary is game start.
	c.broadcast(room, events.EventRoundStarted, events.RoundStartedData{
		GameState: data.GameState,
		Hands:     data.Hands,
	}, "")
	return nil
}

// atoiPos decodes a roster position key; keys are produced by the room
// itself so they are always small decimals.
func atoiPos(key string) int {
	pos, _ := strconv.Atoi(key)
	return pos
}
