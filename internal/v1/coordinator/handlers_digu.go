package coordinator

import (
	"context"
	"encoding/json"

	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/logging"
	"github.com/thaasbai/coordinator/internal/v1/rooms"
	"github.com/thaasbai/coordinator/internal/v1/sessions"
	"go.uber.org/zap"
)

// Digu handlers. The draw and discard piles live server-side once the game
// starts so concurrent draws cannot fork the deck; everything else is the
// same relay-with-turn-check contract as dhiha-ei.

func (c *Coordinator) handleStartDiguGame(ctx context.Context, _ *sessions.Session, room *rooms.Room, _ int, raw json.RawMessage) error {
	if room.GameType != events.GameDigu {
		return events.ErrInvalidPayload
	}
	var data events.StartDiguGameData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	if err := room.StartDigu(data.GameState, data.Hands, data.StockPile, data.DiscardPile); err != nil {
		return err
	}

	logging.Info(logging.WithRoom(ctx, room.Code), "game started",
		zap.String("game_type", string(room.GameType)))
	c.announce.GameStarted(ctx, string(room.GameType), room.Code)

	c.sendGameStarted(room)
	return nil
}

func (c *Coordinator) handleDiguDrawCard(_ context.Context, _ *sessions.Session, room *rooms.Room, pos int, raw json.RawMessage) error {
	if room.GameType != events.GameDigu {
		return events.ErrInvalidPayload
	}
	var data events.DiguDrawCardData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	res, err := room.Draw(pos, data.Source)
	if err != nil {
		return err
	}

	if res.Reshuffled {
		c.broadcast(room, events.EventDiguStockReshuffled,
			events.DiguStockReshuffledData{StockCount: room.StockCount()}, "")
	}
	// Digu hands are open information at the table, so the drawn card is
	// announced to everyone, sender included.
	c.broadcast(room, events.EventDiguCardDrawn, events.DiguCardDrawnData{
		Source:             data.Source,
		Card:               res.Card,
		Position:           pos,
		CurrentPlayerIndex: room.CurrentTurn(),
		GamePhase:          room.GamePhase(),
		StockCount:         room.StockCount(),
		DiscardCount:       room.DiscardCount(),
	}, "")
	return nil
}

func (c *Coordinator) handleDiguDiscardCard(_ context.Context, sess *sessions.Session, room *rooms.Room, pos int, raw json.RawMessage) error {
	if room.GameType != events.GameDigu {
		return events.ErrInvalidPayload
	}
	var data events.DiguDiscardCardData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	next, err := room.Discard(pos, data.Card)
	if err != nil {
		return err
	}

	c.broadcast(room, events.EventDiguRemoteCardDiscarded, events.DiguRemoteCardDiscardedData{
		Card:               data.Card,
		Position:           pos,
		CurrentPlayerIndex: next,
		GamePhase:          room.GamePhase(),
	}, sess.SID)
	c.sendTo(sess.SID, events.EventDiguTurnChanged, events.DiguTurnChangedData{
		CurrentPlayerIndex: next,
		GamePhase:          room.GamePhase(),
	})
	return nil
}

func (c *Coordinator) handleDiguDeclare(_ context.Context, sess *sessions.Session, room *rooms.Room, pos int, raw json.RawMessage) error {
	if room.GameType != events.GameDigu {
		return events.ErrInvalidPayload
	}
	var data events.DiguDeclareData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	// The meld legality verdict comes from the declaring client; the server
	// relays it without re-scoring.
	c.broadcast(room, events.EventDiguRemoteDeclare, events.DiguRemoteDeclareData{
		Position: pos,
		Melds:    data.Melds,
		IsValid:  data.IsValid,
	}, sess.SID)
	return nil
}

func (c *Coordinator) handleDiguUpdateState(_ context.Context, sess *sessions.Session, room *rooms.Room, _ int, raw json.RawMessage) error {
	if room.GameType != events.GameDigu {
		return events.ErrInvalidPayload
	}
	var data events.UpdateGameStateData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	room.UpdateState(data.GameState)
	c.broadcast(room, events.Scoped(room.GameType, events.EventGameStateUpdated),
		events.GameStateUpdatedData{GameState: data.GameState}, sess.SID)
	return nil
}

func (c *Coordinator) handleDiguGameOver(ctx context.Context, sess *sessions.Session, room *rooms.Room, pos int, raw json.RawMessage) error {
	if room.GameType != events.GameDigu {
		return events.ErrInvalidPayload
	}
	var data events.DiguGameOverData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	room.Finish()
	logging.Info(logging.WithRoom(ctx, room.Code), "game over",
		zap.Int("declared_by", pos))
	c.broadcast(room, events.EventDiguRemoteGameOver, events.DiguRemoteGameOverData{
		Results:    data.Results,
		DeclaredBy: pos,
	}, sess.SID)
	return nil
}

func (c *Coordinator) handleDiguNewMatch(_ context.Context, _ *sessions.Session, room *rooms.Room, _ int, raw json.RawMessage) error {
	if room.GameType != events.GameDigu {
		return events.ErrInvalidPayload
	}
	var data events.StartDiguGameData
	if err := events.Decode(raw, &data); err != nil {
		return err
	}
	if err := room.NewMatch(data.GameState, data.Hands, data.StockPile, data.DiscardPile); err != nil {
		return err
	}
	c.broadcast(room, events.EventDiguMatchStarted, struct{}{}, "")
	c.sendGameStarted(room)
	return nil
}
