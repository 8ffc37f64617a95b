package events

import "encoding/json"

// --- Inbound payloads (client -> server) ---
//
// Integer fields that may legitimately be zero (positions) are pointers so
// the "required" rule can tell absent from zero.

type CreateRoomData struct {
	PlayerName string `json:"playerName" validate:"required"`
}

type JoinRoomData struct {
	RoomID     string `json:"roomId" validate:"required"`
	PlayerName string `json:"playerName" validate:"required"`
}

type SetReadyData struct {
	Ready bool `json:"ready"`
}

// StartGameData doubles as the new_round payload; both carry the opaque
// authoritative state plus the per-position deal.
type StartGameData struct {
	GameState json.RawMessage            `json:"gameState" validate:"required"`
	Hands     map[string]json.RawMessage `json:"hands" validate:"required"`
}

type SwapPlayerData struct {
	FromPosition *int `json:"fromPosition" validate:"required,gte=0,lte=3"`
}

type CardPlayedData struct {
	Card     json.RawMessage `json:"card" validate:"required"`
	Position *int            `json:"position" validate:"required,gte=0,lte=3"`
}

type TrickCompletedData struct {
	Winner *int `json:"winner" validate:"required,gte=0,lte=3"`
}

type UpdateGameStateData struct {
	GameState json.RawMessage `json:"gameState" validate:"required"`
}

type CreateDiguRoomData struct {
	PlayerName string `json:"playerName" validate:"required"`
	// MaxPlayers is clamped to [2,4] server-side; 0 means the default of 4.
	MaxPlayers int `json:"maxPlayers"`
}

// StartDiguGameData extends the dhiha-ei start payload with the server-held
// draw piles. Cards inside the piles stay opaque.
type StartDiguGameData struct {
	GameState   json.RawMessage            `json:"gameState" validate:"required"`
	Hands       map[string]json.RawMessage `json:"hands" validate:"required"`
	StockPile   []json.RawMessage          `json:"stockPile"`
	DiscardPile []json.RawMessage          `json:"discardPile"`
}

type DiguDrawCardData struct {
	Source   string          `json:"source" validate:"required,oneof=stock discard"`
	Card     json.RawMessage `json:"card"`
	Position *int            `json:"position" validate:"required,gte=0,lte=3"`
}

type DiguDiscardCardData struct {
	Card     json.RawMessage `json:"card" validate:"required"`
	Position *int            `json:"position" validate:"required,gte=0,lte=3"`
}

type DiguDeclareData struct {
	Melds    json.RawMessage `json:"melds" validate:"required"`
	IsValid  bool            `json:"isValid"`
	Position *int            `json:"position" validate:"required,gte=0,lte=3"`
}

type DiguGameOverData struct {
	Results json.RawMessage `json:"results" validate:"required"`
}

type JoinQueueData struct {
	GameType   GameType `json:"gameType" validate:"required,oneof=dhiha-ei digu"`
	PlayerName string   `json:"playerName" validate:"required"`
	MaxPlayers int      `json:"maxPlayers"`
}

type ReattachData struct {
	RoomID         string `json:"roomId" validate:"required"`
	PreviousOderID string `json:"previousOderId" validate:"required"`
}

// --- Outbound payloads (server -> client) ---

// PlayerView is a player slot as rendered on the wire. The oderId spelling is
// load-bearing: the deployed clients key their UI state on it.
type PlayerView struct {
	OderID    string `json:"oderId"`
	Name      string `json:"name"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
}

// Roster maps decimal position keys ("0".."3") to player slots, the shape
// every players_changed-family event carries.
type Roster map[string]PlayerView

type ConnectedData struct {
	SID string `json:"sid"`
}

type RoomCreatedData struct {
	RoomID   string `json:"roomId"`
	Position int    `json:"position"`
	Players  Roster `json:"players"`
}

type RoomJoinedData struct {
	RoomID     string `json:"roomId"`
	Position   int    `json:"position"`
	Players    Roster `json:"players"`
	MaxPlayers int    `json:"maxPlayers"`
}

type PlayersChangedData struct {
	Players Roster `json:"players"`
}

type PositionChangedData struct {
	FromPosition int    `json:"fromPosition"`
	ToPosition   int    `json:"toPosition"`
	Players      Roster `json:"players"`
}

// GameStartedData is the per-recipient start frame: gameState in full, hand
// filtered down to the addressee's own position.
type GameStartedData struct {
	GameState json.RawMessage `json:"gameState"`
	Hand      json.RawMessage `json:"hand"`
	Position  int             `json:"position"`
	Players   Roster          `json:"players"`
}

type RemoteCardPlayedData struct {
	Card               json.RawMessage `json:"card"`
	Position           int             `json:"position"`
	CurrentPlayerIndex int             `json:"currentPlayerIndex"`
}

type TurnChangedData struct {
	CurrentPlayerIndex int `json:"currentPlayerIndex"`
}

type TrickWinnerSetData struct {
	Winner int `json:"winner"`
}

type GameStateUpdatedData struct {
	GameState json.RawMessage `json:"gameState"`
}

// RoundStartedData carries the full deal: round restarts are not the privacy
// boundary, game start is.
type RoundStartedData struct {
	GameState json.RawMessage            `json:"gameState"`
	Hands     map[string]json.RawMessage `json:"hands"`
}

type PlayerDisconnectedData struct {
	Position int    `json:"position"`
	Players  Roster `json:"players"`
}

type DiguCardDrawnData struct {
	Source             string          `json:"source"`
	Card               json.RawMessage `json:"card"`
	Position           int             `json:"position"`
	CurrentPlayerIndex int             `json:"currentPlayerIndex"`
	GamePhase          string          `json:"gamePhase"`
	StockCount         int             `json:"stockCount"`
	DiscardCount       int             `json:"discardCount"`
}

type DiguStockReshuffledData struct {
	StockCount int `json:"stockCount"`
}

type DiguRemoteCardDiscardedData struct {
	Card               json.RawMessage `json:"card"`
	Position           int             `json:"position"`
	CurrentPlayerIndex int             `json:"currentPlayerIndex"`
	GamePhase          string          `json:"gamePhase"`
}

type DiguTurnChangedData struct {
	CurrentPlayerIndex int    `json:"currentPlayerIndex"`
	GamePhase          string `json:"gamePhase"`
}

type DiguRemoteDeclareData struct {
	Position int             `json:"position"`
	Melds    json.RawMessage `json:"melds"`
	IsValid  bool            `json:"isValid"`
}

type DiguRemoteGameOverData struct {
	Results    json.RawMessage `json:"results"`
	DeclaredBy int             `json:"declaredBy"`
}

type QueueJoinedData struct {
	Position       int `json:"position"`
	PlayersInQueue int `json:"playersInQueue"`
	PlayersNeeded  int `json:"playersNeeded"`
}

type QueueUpdateData struct {
	PlayersInQueue int `json:"playersInQueue"`
	PlayersNeeded  int `json:"playersNeeded"`
}

type MatchmakingMatchedData struct {
	RoomID   string `json:"roomId"`
	Position int    `json:"position"`
	Players  Roster `json:"players"`
}

type ErrorData struct {
	Message string `json:"message"`
}
