// Package rooms implements the per-room state machine for both game types:
// seats, readiness, teams, turn bookkeeping, the digu draw piles, and the
// waiting/playing/finished lifecycle.
//
// Concurrency contract: every Room owns an exclusive lock. Callers (the
// dispatcher) acquire it via Lock/Unlock around a whole handler; the methods
// in this package assume it is already held and never take it themselves.
// The registry's read-mostly lock is independent and is never held while a
// room method runs.
package rooms

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/thaasbai/coordinator/internal/v1/events"
)

// Status is a room's lifecycle phase.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Slot is one seat in a room. The oderId spelling is part of the wire
// protocol and refers to the occupant's current session id.
type Slot struct {
	OderID        string
	Name          string
	Ready         bool
	Connected     bool
	ReadyForRound bool
	LastSeenAt    time.Time
}

// Room holds everything the coordinator knows about one game. gameState and
// hands are opaque: the server relays them and checks turn ownership, nothing
// more.
type Room struct {
	mu sync.Mutex

	Code       string
	GameType   events.GameType
	Status     Status
	MaxPlayers int
	CreatedAt  time.Time
	FinishedAt time.Time

	players map[int]*Slot

	gameState json.RawMessage
	hands     map[string]json.RawMessage

	// Turn bookkeeping mirrored out of the opaque gameState so turn-gated
	// events can be validated without interpreting the blob.
	currentTurn int
	gamePhase   string

	// Digu draw piles, server-owned after start_digu_game.
	stockPile   []json.RawMessage
	discardPile []json.RawMessage
}

// Lock acquires the room's exclusive lock.
func (r *Room) Lock() { r.mu.Lock() }

// Unlock releases the room's exclusive lock.
func (r *Room) Unlock() { r.mu.Unlock() }

func newRoom(code string, gt events.GameType, maxPlayers int) *Room {
	return &Room{
		Code:       code,
		GameType:   gt,
		Status:     StatusWaiting,
		MaxPlayers: maxPlayers,
		CreatedAt:  time.Now(),
		players:    make(map[int]*Slot),
		gamePhase:  "draw",
	}
}

// Seat places a player at the lowest free position. Caller must hold the lock.
func (r *Room) Seat(sid, name string) (int, error) {
	switch r.Status {
	case StatusPlaying:
		return 0, events.ErrGameInProgress
	case StatusFinished:
		return 0, events.ErrRoomNotFound
	}
	for pos := 0; pos < r.MaxPlayers; pos++ {
		if _, taken := r.players[pos]; !taken {
			r.players[pos] = &Slot{
				OderID:     sid,
				Name:       name,
				Connected:  true,
				LastSeenAt: time.Now(),
			}
			return pos, nil
		}
	}
	return 0, events.ErrRoomFull
}

// PositionOf returns the seat occupied by the given session id.
func (r *Room) PositionOf(sid string) (int, bool) {
	for pos, slot := range r.players {
		if slot.OderID == sid {
			return pos, true
		}
	}
	return 0, false
}

// Slot returns the occupant of a position, or nil.
func (r *Room) Slot(pos int) *Slot {
	return r.players[pos]
}

// HostPosition is the smallest occupied position. Rooms always start with the
// creator at 0, so this begins at 0 and only moves on departures.
func (r *Room) HostPosition() int {
	host := -1
	for pos := range r.players {
		if host == -1 || pos < host {
			host = pos
		}
	}
	return host
}

// IsHost reports whether sid occupies the host seat.
func (r *Room) IsHost(sid string) bool {
	pos, ok := r.PositionOf(sid)
	return ok && pos == r.HostPosition()
}

// Occupied reports the number of seated players.
func (r *Room) Occupied() int { return len(r.players) }

// Empty reports whether no seats are occupied.
func (r *Room) Empty() bool { return len(r.players) == 0 }

// ConnectedCount reports seated players whose transport is live.
func (r *Room) ConnectedCount() int {
	n := 0
	for _, slot := range r.players {
		if slot.Connected {
			n++
		}
	}
	return n
}

// CurrentTurn is the position whose move the room expects next.
func (r *Room) CurrentTurn() int { return r.currentTurn }

// GamePhase is the digu draw/discard phase mirror.
func (r *Room) GamePhase() string { return r.gamePhase }

// GameState returns the stored opaque state blob.
func (r *Room) GameState() json.RawMessage { return r.gameState }

// HandFor returns the dealt hand stored for a position, if any. This is the
// filtered view sent per recipient in *_game_started.
func (r *Room) HandFor(pos int) json.RawMessage {
	if r.hands == nil {
		return nil
	}
	return r.hands[strconv.Itoa(pos)]
}

// Hands returns the full per-position deal, used only by round restarts
// where the catalogue sends the deal unfiltered.
func (r *Room) Hands() map[string]json.RawMessage { return r.hands }

// Roster renders the seats in wire shape, keyed by decimal position.
func (r *Room) Roster() events.Roster {
	roster := make(events.Roster, len(r.players))
	for pos, slot := range r.players {
		roster[strconv.Itoa(pos)] = events.PlayerView{
			OderID:    slot.OderID,
			Name:      slot.Name,
			Ready:     slot.Ready,
			Connected: slot.Connected,
		}
	}
	return roster
}

// turnProbe pulls the turn mirror out of an opaque gameState blob. Both
// spellings appear in the deployed clients.
type turnProbe struct {
	CurrentPlayerIndex *int    `json:"currentPlayerIndex"`
	CurrentTurn        *int    `json:"currentTurn"`
	GamePhase          *string `json:"gamePhase"`
}

func (r *Room) mirrorTurn(state json.RawMessage) {
	var probe turnProbe
	if err := json.Unmarshal(state, &probe); err != nil {
		return
	}
	if probe.CurrentPlayerIndex != nil {
		r.currentTurn = *probe.CurrentPlayerIndex
	} else if probe.CurrentTurn != nil {
		r.currentTurn = *probe.CurrentTurn
	}
	if probe.GamePhase != nil {
		r.gamePhase = *probe.GamePhase
	}
}

// View is a room as rendered in the admin snapshot: hands and gameState are
// omitted to keep payloads bounded.
type View struct {
	Code         string    `json:"code"`
	GameType     string    `json:"gameType"`
	Status       string    `json:"status"`
	MaxPlayers   int       `json:"maxPlayers"`
	HostPosition int       `json:"hostPosition"`
	Players      any       `json:"players"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AdminView renders the room for the admin snapshot. Caller must hold the lock.
func (r *Room) AdminView() View {
	return View{
		Code:         r.Code,
		GameType:     string(r.GameType),
		Status:       string(r.Status),
		MaxPlayers:   r.MaxPlayers,
		HostPosition: r.HostPosition(),
		Players:      r.Roster(),
		CreatedAt:    r.CreatedAt,
	}
}
