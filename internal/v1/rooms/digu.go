package rooms

import (
	"encoding/json"
	"math/rand/v2"
	"time"

	"github.com/thaasbai/coordinator/internal/v1/events"
)

// Digu-specific room state. The server owns the draw piles from start
// onwards so concurrent draws cannot fork the deck, but the cards themselves
// stay opaque blobs. All methods assume the caller holds the room's lock.

// StartDigu is Start plus pile ownership transfer.
func (r *Room) StartDigu(state json.RawMessage, hands map[string]json.RawMessage, stock, discard []json.RawMessage) error {
	if err := r.Start(state, hands); err != nil {
		return err
	}
	r.stockPile = stock
	r.discardPile = discard
	r.gamePhase = "draw"
	r.mirrorTurn(state)
	return nil
}

// StockCount reports cards remaining in the stock pile.
func (r *Room) StockCount() int { return len(r.stockPile) }

// DiscardCount reports cards in the discard pile.
func (r *Room) DiscardCount() int { return len(r.discardPile) }

// DrawResult describes a completed draw for the room-wide announcement.
type DrawResult struct {
	Card       json.RawMessage
	Reshuffled bool
}

// Draw pops a card for the seat holding the turn. Drawing from an empty
// stock first reshuffles the whole discard pile back into it. The game phase
// flips to discard; the turn does not advance until the discard lands.
func (r *Room) Draw(pos int, source string) (DrawResult, error) {
	if r.Status != StatusPlaying {
		return DrawResult{}, events.ErrNotInRoom
	}
	if pos != r.currentTurn {
		return DrawResult{}, events.ErrNotYourTurn
	}

	var res DrawResult
	switch source {
	case "stock":
		if len(r.stockPile) == 0 {
			if len(r.discardPile) == 0 {
				return DrawResult{}, events.ErrInvalidPayload
			}
			r.stockPile = r.discardPile
			r.discardPile = nil
			rand.Shuffle(len(r.stockPile), func(i, j int) {
				r.stockPile[i], r.stockPile[j] = r.stockPile[j], r.stockPile[i]
			})
			res.Reshuffled = true
		}
		res.Card = r.stockPile[0]
		r.stockPile = r.stockPile[1:]
	case "discard":
		if len(r.discardPile) == 0 {
			return DrawResult{}, events.ErrInvalidPayload
		}
		res.Card = r.discardPile[len(r.discardPile)-1]
		r.discardPile = r.discardPile[:len(r.discardPile)-1]
	default:
		return DrawResult{}, events.ErrInvalidPayload
	}

	r.gamePhase = "discard"
	return res, nil
}

// Discard pushes a card onto the discard pile, advances the turn to the next
// seat, and flips the phase back to draw. Returns the new current turn.
func (r *Room) Discard(pos int, card json.RawMessage) (int, error) {
	if r.Status != StatusPlaying {
		return 0, events.ErrNotInRoom
	}
	if pos != r.currentTurn {
		return 0, events.ErrNotYourTurn
	}
	r.discardPile = append(r.discardPile, card)
	r.currentTurn = (pos + 1) % r.MaxPlayers
	r.gamePhase = "draw"
	return r.currentTurn, nil
}

// NewMatch restarts a finished digu room with a fresh deal and piles.
func (r *Room) NewMatch(state json.RawMessage, hands map[string]json.RawMessage, stock, discard []json.RawMessage) error {
	if r.Status != StatusFinished {
		return events.ErrInvalidPayload
	}
	r.Status = StatusPlaying
	r.FinishedAt = time.Time{}
	r.gameState = state
	r.hands = hands
	r.stockPile = stock
	r.discardPile = discard
	r.currentTurn = 0
	r.gamePhase = "draw"
	r.mirrorTurn(state)
	return nil
}
