// Package events defines the wire protocol of the coordinator: the frame
// envelope, the event name catalogue, per-event payload schemas, and the
// protocol error labels. Everything a client sends or receives is described
// here; the rest of the server imports this package and nothing else about
// the wire format.
package events

import "encoding/json"

// Name is a wire event name, e.g. "create_room".
type Name string

// GameType selects one of the two room namespaces.
type GameType string

const (
	GameDhihaEi GameType = "dhiha-ei"
	GameDigu    GameType = "digu"
)

// Valid reports whether gt is one of the two supported game types.
func (gt GameType) Valid() bool {
	return gt == GameDhihaEi || gt == GameDigu
}

// Client -> server events.
const (
	EventCreateRoom      Name = "create_room"
	EventJoinRoom        Name = "join_room"
	EventLeaveRoom       Name = "leave_room"
	EventSetReady        Name = "set_ready"
	EventStartGame       Name = "start_game"
	EventSwapPlayer      Name = "swap_player"
	EventCardPlayed      Name = "card_played"
	EventTrickCompleted  Name = "trick_completed"
	EventReadyForRound   Name = "ready_for_round"
	EventUpdateGameState Name = "update_game_state"
	EventNewRound        Name = "new_round"

	EventCreateDiguRoom  Name = "create_digu_room"
	EventJoinDiguRoom    Name = "join_digu_room"
	EventLeaveDiguRoom   Name = "leave_digu_room"
	EventDiguSetReady    Name = "digu_set_ready"
	EventStartDiguGame   Name = "start_digu_game"
	EventDiguDrawCard    Name = "digu_draw_card"
	EventDiguDiscardCard Name = "digu_discard_card"
	EventDiguDeclare     Name = "digu_declare"
	EventDiguUpdateState Name = "digu_update_state"
	EventDiguGameOver    Name = "digu_game_over"
	EventDiguNewMatch    Name = "digu_new_match"

	EventJoinQueue     Name = "join_queue"
	EventLeaveQueue    Name = "leave_queue"
	EventReattach      Name = "reattach"
	EventPingKeepalive Name = "ping_keepalive"
)

// Server -> client events.
const (
	EventConnected        Name = "connected"
	EventRoomCreated      Name = "room_created"
	EventRoomJoined       Name = "room_joined"
	EventPlayersChanged   Name = "players_changed"
	EventPositionChanged  Name = "position_changed"
	EventGameStarted      Name = "game_started"
	EventRemoteCardPlayed Name = "remote_card_played"
	EventTurnChanged      Name = "turn_changed"
	EventTrickWinnerSet   Name = "trick_winner_set"
	EventAllReadyForRound Name = "all_ready_for_round"
	EventGameStateUpdated Name = "game_state_updated"
	EventRoundStarted     Name = "round_started"

	EventPlayerDisconnected Name = "player_disconnected"

	EventDiguCardDrawn           Name = "digu_card_drawn"
	EventDiguStockReshuffled     Name = "digu_stock_reshuffled"
	EventDiguRemoteCardDiscarded Name = "digu_remote_card_discarded"
	EventDiguTurnChanged         Name = "digu_turn_changed"
	EventDiguRemoteDeclare       Name = "digu_remote_declare"
	EventDiguRemoteGameOver      Name = "digu_remote_game_over"
	EventDiguMatchStarted        Name = "digu_match_started"

	EventQueueJoined        Name = "queue_joined"
	EventQueueUpdate        Name = "queue_update"
	EventQueueLeft          Name = "queue_left"
	EventMatchmakingMatched Name = "matchmaking_matched"

	EventPongKeepalive Name = "pong_keepalive"
	EventError         Name = "error"
)

// Scoped maps a dhiha-ei event name to its digu analogue. Room lifecycle
// events share payload shapes across the two namespaces and differ only by
// the "digu_" prefix on the wire.
func Scoped(gt GameType, name Name) Name {
	if gt != GameDigu {
		return name
	}
	return "digu_" + name
}

// Envelope is the frame format in both directions: {"event": ..., "data": ...}.
type Envelope struct {
	Event Name `json:"event"`
	Data  any  `json:"data,omitempty"`
}

// Inbound is the partially-decoded form of a client frame; Data stays raw
// until the dispatcher knows which schema applies.
type Inbound struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Marshal encodes an outbound frame. A frame that cannot be encoded is a
// programming error on the server side, so the error is surfaced rather
// than swallowed.
func Marshal(event Name, data any) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}
