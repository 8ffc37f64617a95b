package rooms

import (
	"time"

	"github.com/thaasbai/coordinator/internal/v1/events"
)

// All methods in this file assume the caller holds the room's lock.

// SetReady sets a seat's ready flag. Setting the same value twice is a no-op,
// which makes the operation idempotent on the wire.
func (r *Room) SetReady(pos int, ready bool) {
	if slot := r.players[pos]; slot != nil {
		slot.Ready = ready
	}
}

// AllReady reports whether every seat is occupied and ready, the start-game
// guard.
func (r *Room) AllReady() bool {
	if len(r.players) != r.MaxPlayers {
		return false
	}
	for _, slot := range r.players {
		if !slot.Ready {
			return false
		}
	}
	return true
}

// teamOf maps a dhiha-ei position to its partnership: 0 and 2 against 1 and 3.
func teamOf(pos int) int { return pos % 2 }

// Swap relocates the seat at fromPos to the opposite team. If the opposite
// team has a free position the seat moves there; otherwise it exchanges with
// the first occupied opposite seat. All other seats keep their indices.
// Returns the destination position.
func (r *Room) Swap(fromPos int) (int, error) {
	if r.GameType != events.GameDhihaEi || r.Status != StatusWaiting {
		return 0, events.ErrInvalidPayload
	}
	moving := r.players[fromPos]
	if moving == nil {
		return 0, events.ErrInvalidPayload
	}

	opposite := 1 - teamOf(fromPos)
	for pos := opposite; pos < r.MaxPlayers; pos += 2 {
		if _, taken := r.players[pos]; !taken {
			delete(r.players, fromPos)
			r.players[pos] = moving
			return pos, nil
		}
	}
	for pos := opposite; pos < r.MaxPlayers; pos += 2 {
		if other, taken := r.players[pos]; taken {
			r.players[pos] = moving
			r.players[fromPos] = other
			return pos, nil
		}
	}
	return 0, events.ErrInvalidPayload
}

// RemovePlayer vacates a seat. Host migration is implicit: HostPosition is
// always derived as the minimum occupied position.
func (r *Room) RemovePlayer(pos int) {
	delete(r.players, pos)
}

// MarkDisconnected clears a seat's connected flag at the start of the grace
// window. The seat itself is retained until the window expires.
func (r *Room) MarkDisconnected(pos int) {
	if slot := r.players[pos]; slot != nil {
		slot.Connected = false
		slot.LastSeenAt = time.Now()
	}
}

// Reattach rebinds a seat whose previous session disconnected within the
// grace window to a new session id. Returns the seat's position.
func (r *Room) Reattach(previousOderID, newSID string) (int, error) {
	for pos, slot := range r.players {
		if slot.OderID == previousOderID {
			if slot.Connected {
				// The old transport is still live; refusing avoids two
				// sessions driving one seat.
				return 0, events.ErrInvalidPayload
			}
			slot.OderID = newSID
			slot.Connected = true
			slot.LastSeenAt = time.Now()
			return pos, nil
		}
	}
	return 0, events.ErrRoomNotFound
}

// Finish moves the room to its terminal state.
func (r *Room) Finish() {
	if r.Status != StatusFinished {
		r.Status = StatusFinished
		r.FinishedAt = time.Now()
	}
}

// ExpiredWaiting reports whether a waiting room has idled long enough to be
// garbage-collected: over an hour old with fewer than two connected players.
func (r *Room) ExpiredWaiting(now time.Time) bool {
	return r.Status == StatusWaiting &&
		now.Sub(r.CreatedAt) > time.Hour &&
		r.ConnectedCount() < 2
}

// ExpiredFinished reports whether a finished room has lingered past its
// five-minute teardown window.
func (r *Room) ExpiredFinished(now time.Time) bool {
	return r.Status == StatusFinished && now.Sub(r.FinishedAt) > 5*time.Minute
}
