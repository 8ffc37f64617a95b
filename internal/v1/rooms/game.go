package rooms

import (
	"encoding/json"

	"github.com/thaasbai/coordinator/internal/v1/events"
)

// All methods in this file assume the caller holds the room's lock.

// Start moves a waiting room to playing, storing the opaque state and the
// per-position deal. The caller has already verified host ownership; the
// all-seats-ready guard lives here because it is a room invariant.
func (r *Room) Start(state json.RawMessage, hands map[string]json.RawMessage) error {
	if r.Status == StatusPlaying {
		return events.ErrGameInProgress
	}
	if !r.AllReady() {
		return events.ErrInvalidPayload
	}
	r.Status = StatusPlaying
	r.gameState = state
	r.hands = hands
	r.currentTurn = 0
	r.mirrorTurn(state)
	return nil
}

// RelayCard validates that pos holds the current turn, then advances it.
// Returns the new current turn. The card itself is opaque; the caller
// rebroadcasts it to the other seats.
func (r *Room) RelayCard(pos int) (int, error) {
	if r.Status != StatusPlaying {
		return 0, events.ErrNotInRoom
	}
	if pos != r.currentTurn {
		return 0, events.ErrNotYourTurn
	}
	r.currentTurn = (pos + 1) % r.MaxPlayers
	return r.currentTurn, nil
}

// UpdateState replaces the stored blob with the host's authoritative copy and
// refreshes the turn mirror.
func (r *Room) UpdateState(state json.RawMessage) {
	r.gameState = state
	r.mirrorTurn(state)
}

// SetTurn points the turn mirror at an explicit position. trick_completed
// uses this: the trick winner leads the next one.
func (r *Room) SetTurn(pos int) {
	r.currentTurn = pos
}

// NewRound restores the start-of-round state for the next deal. The round
// barrier flags are cleared so ready_for_round can run again.
func (r *Room) NewRound(state json.RawMessage, hands map[string]json.RawMessage) error {
	if r.Status != StatusPlaying {
		return events.ErrNotInRoom
	}
	r.gameState = state
	r.hands = hands
	r.currentTurn = 0
	r.mirrorTurn(state)
	for _, slot := range r.players {
		slot.ReadyForRound = false
	}
	return nil
}

// MarkReadyForRound flags a seat at the between-rounds barrier and reports
// whether every seat has now reached it. When all have, the flags reset.
func (r *Room) MarkReadyForRound(pos int) bool {
	slot := r.players[pos]
	if slot == nil {
		return false
	}
	slot.ReadyForRound = true
	for _, s := range r.players {
		if !s.ReadyForRound {
			return false
		}
	}
	for _, s := range r.players {
		s.ReadyForRound = false
	}
	return true
}
