package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thaasbai/coordinator/internal/v1/admission"
	"github.com/thaasbai/coordinator/internal/v1/config"
	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/matchmaking"
	"github.com/thaasbai/coordinator/internal/v1/rooms"
	"github.com/thaasbai/coordinator/internal/v1/sessions"
)

// wireFrame is an outbound frame as a test client sees it.
type wireFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// testClient captures outbound frames in place of a websocket connection.
type testClient struct {
	mu     sync.Mutex
	frames []wireFrame
	closed bool
}

func (tc *testClient) Send(frame []byte) {
	var f wireFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		panic("unparseable outbound frame: " + string(frame))
	}
	tc.mu.Lock()
	tc.frames = append(tc.frames, f)
	tc.mu.Unlock()
}

func (tc *testClient) Close() {
	tc.mu.Lock()
	tc.closed = true
	tc.mu.Unlock()
}


// all returns every captured frame with the given event name.
func (tc *testClient) all(event events.Name) []wireFrame {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	var out []wireFrame
	for _, f := range tc.frames {
		if f.Event == string(event) {
			out = append(out, f)
		}
	}
	return out
}

// last returns the most recent frame with the given event name.
func (tc *testClient) last(t *testing.T, event events.Name) wireFrame {
	t.Helper()
	frames := tc.all(event)
	require.NotEmpty(t, frames, "no %s frame captured", event)
	return frames[len(frames)-1]
}

func (tc *testClient) count(event events.Name) int { return len(tc.all(event)) }

func (tc *testClient) lastError(t *testing.T) string {
	t.Helper()
	var data events.ErrorData
	decodeInto(t, tc.last(t, events.EventError).Data, &data)
	return data.Message
}

func decodeInto(t *testing.T, raw json.RawMessage, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, dst))
}

type harness struct {
	t       *testing.T
	coord   *Coordinator
	clients map[string]*testClient
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := sessions.NewRegistry()
	guard, err := admission.NewGuard(&config.Config{
		MaxConnectionsPerIP: 100,
		ConnectionRateLimit: 100,
	}, reg, nil)
	require.NoError(t, err)

	coord := New(reg, rooms.NewRegistry(), matchmaking.New(), guard, nil)
	h := &harness{t: t, coord: coord, clients: map[string]*testClient{}}
	t.Cleanup(func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_ = coord.Shutdown(ctx)
	})
	return h
}

func (h *harness) connect(sid string) *testClient {
	tc := &testClient{}
	h.coord.Sessions().Add(sid, "203.0.113.9", tc)
	h.clients[sid] = tc
	return tc
}

func (h *harness) send(sid string, event events.Name, data any) {
	h.t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(h.t, err)
		raw = b
	}
	h.coord.HandleFrame(context.Background(), sid, events.Inbound{Event: event, Data: raw})
}

// createFullRoom wires a four-seat dhiha-ei room with sids p0..p3 seated in
// order and returns the room code.
func (h *harness) createFullRoom(t *testing.T) string {
	t.Helper()
	h.connect("p0")
	h.send("p0", events.EventCreateRoom, map[string]any{"playerName": "Aishath"})

	var created events.RoomCreatedData
	decodeInto(t, h.clients["p0"].last(t, events.EventRoomCreated).Data, &created)
	require.Equal(t, 0, created.Position)

	for i, name := range []string{"Bashir", "Chandani", "Dhonbe"} {
		sid := []string{"p1", "p2", "p3"}[i]
		h.connect(sid)
		h.send(sid, events.EventJoinRoom, map[string]any{"roomId": created.RoomID, "playerName": name})
	}
	return created.RoomID
}

func (h *harness) readyAll(t *testing.T, sids ...string) {
	t.Helper()
	for _, sid := range sids {
		h.send(sid, events.EventSetReady, map[string]any{"ready": true})
	}
}

func fourHands() map[string]any {
	return map[string]any{
		"0": []string{"AH", "KH"},
		"1": []string{"2C", "3C"},
		"2": []string{"4D", "5D"},
		"3": []string{"6S", "7S"},
	}
}

func TestCreateRoom_SeatsCreatorAtZero(t *testing.T) {
	h := newHarness(t)
	h.connect("p0")
	h.send("p0", events.EventCreateRoom, map[string]any{"playerName": "Aishath"})

	var created events.RoomCreatedData
	decodeInto(t, h.clients["p0"].last(t, events.EventRoomCreated).Data, &created)
	assert.Len(t, created.RoomID, 6)
	assert.Equal(t, 0, created.Position)
	assert.Len(t, created.Players, 1)
	assert.Equal(t, "Aishath", created.Players["0"].Name)
}

func TestCreateRoom_BlankName(t *testing.T) {
	h := newHarness(t)
	h.connect("p0")
	h.send("p0", events.EventCreateRoom, map[string]any{"playerName": "   "})
	assert.Equal(t, "invalid_payload", h.clients["p0"].lastError(t))
}

func TestJoinRoom_UnknownCode(t *testing.T) {
	h := newHarness(t)
	h.connect("p0")
	h.send("p0", events.EventJoinRoom, map[string]any{"roomId": "NOSUCH", "playerName": "Ali"})
	assert.Equal(t, "room_not_found", h.clients["p0"].lastError(t))
}

func TestJoinRoom_CaseInsensitiveCode(t *testing.T) {
	h := newHarness(t)
	code := h.createFullRoom(t)

	h.connect("p4")
	h.send("p4", events.EventJoinRoom, map[string]any{
		"roomId": "  " + code + "  ", "playerName": "Eve",
	})
	// The table is full; a canonicalized code still finds the room.
	assert.Equal(t, "room_full", h.clients["p4"].lastError(t))
}

func TestJoinRoom_OwnRoomIsNoOpRejoin(t *testing.T) {
	h := newHarness(t)
	h.connect("p0")
	h.send("p0", events.EventCreateRoom, map[string]any{"playerName": "Aishath"})

	var created events.RoomCreatedData
	decodeInto(t, h.clients["p0"].last(t, events.EventRoomCreated).Data, &created)

	// Rejoining the room the session is already seated in must not cycle
	// the seat; a solo host's room would be emptied and deleted.
	h.send("p0", events.EventJoinRoom, map[string]any{
		"roomId": created.RoomID, "playerName": "Aishath",
	})

	var joined events.RoomJoinedData
	decodeInto(t, h.clients["p0"].last(t, events.EventRoomJoined).Data, &joined)
	assert.Equal(t, created.RoomID, joined.RoomID)
	assert.Equal(t, 0, joined.Position)
	require.Len(t, joined.Players, 1)

	room, found := h.coord.rooms.Get(events.GameDhihaEi, created.RoomID)
	require.True(t, found)
	room.Lock()
	assert.Equal(t, 1, room.Occupied())
	room.Unlock()

	// The seat is still live.
	h.send("p0", events.EventSetReady, map[string]any{"ready": true})
	assert.Equal(t, 0, h.clients["p0"].count(events.EventError))
}

func TestJoinRoom_NotifiesOthersNotJoiner(t *testing.T) {
	h := newHarness(t)
	h.createFullRoom(t)

	// p0 saw each of the three later joins; the last joiner saw none.
	assert.Equal(t, 3, h.clients["p0"].count(events.EventPlayersChanged))
	assert.Equal(t, 0, h.clients["p3"].count(events.EventPlayersChanged))

	var joined events.RoomJoinedData
	decodeInto(t, h.clients["p3"].last(t, events.EventRoomJoined).Data, &joined)
	assert.Equal(t, 3, joined.Position)
	assert.Equal(t, 4, joined.MaxPlayers)
	assert.Len(t, joined.Players, 4)
}

func TestUnknownEvent(t *testing.T) {
	h := newHarness(t)
	h.connect("p0")
	h.coord.HandleFrame(context.Background(), "p0", events.Inbound{Event: "no_such_event"})
	assert.Equal(t, "invalid_payload", h.clients["p0"].lastError(t))
}

func TestRoomEventWithoutRoom(t *testing.T) {
	h := newHarness(t)
	h.connect("p0")
	h.send("p0", events.EventSetReady, map[string]any{"ready": true})
	assert.Equal(t, "not_in_room", h.clients["p0"].lastError(t))
}

func TestStartGame_FullFlow(t *testing.T) {
	h := newHarness(t)
	h.createFullRoom(t)
	h.readyAll(t, "p0", "p1", "p2", "p3")

	state := map[string]any{"currentPlayerIndex": 0, "trick": []any{}}
	h.send("p0", events.EventStartGame, map[string]any{"gameState": state, "hands": fourHands()})

	// Every seat gets game_started with the shared state but only its own hand.
	for i, sid := range []string{"p0", "p1", "p2", "p3"} {
		var started events.GameStartedData
		decodeInto(t, h.clients[sid].last(t, events.EventGameStarted).Data, &started)
		assert.Equal(t, i, started.Position)
		assert.Len(t, started.Players, 4)

		var hand []string
		decodeInto(t, started.Hand, &hand)
		expected := map[int][]string{
			0: {"AH", "KH"}, 1: {"2C", "3C"}, 2: {"4D", "5D"}, 3: {"6S", "7S"},
		}
		assert.Equal(t, expected[i], hand, "seat %d got a foreign hand", i)
	}
}

func TestStartGame_NonHostRejected(t *testing.T) {
	h := newHarness(t)
	h.createFullRoom(t)
	h.readyAll(t, "p0", "p1", "p2", "p3")

	h.send("p1", events.EventStartGame, map[string]any{
		"gameState": map[string]any{}, "hands": fourHands(),
	})
	assert.Equal(t, "not_host", h.clients["p1"].lastError(t))
}

func TestStartGame_NotAllReady(t *testing.T) {
	h := newHarness(t)
	h.createFullRoom(t)
	h.readyAll(t, "p0", "p1", "p2")

	h.send("p0", events.EventStartGame, map[string]any{
		"gameState": map[string]any{}, "hands": fourHands(),
	})
	assert.Equal(t, "invalid_payload", h.clients["p0"].lastError(t))
}

func startedGame(t *testing.T, h *harness) string {
	t.Helper()
	code := h.createFullRoom(t)
	h.readyAll(t, "p0", "p1", "p2", "p3")
	h.send("p0", events.EventStartGame, map[string]any{
		"gameState": map[string]any{"currentPlayerIndex": 0},
		"hands":     fourHands(),
	})
	require.Equal(t, 1, h.clients["p0"].count(events.EventGameStarted))
	return code
}

func TestCardPlayed_RelayAndTurn(t *testing.T) {
	h := newHarness(t)
	startedGame(t, h)

	// Out of turn first.
	h.send("p1", events.EventCardPlayed, map[string]any{"card": "AH", "position": 1})
	assert.Equal(t, "not_your_turn", h.clients["p1"].lastError(t))
	assert.Equal(t, 0, h.clients["p2"].count(events.EventRemoteCardPlayed))

	// In turn: the table sees the relay, the sender only sees turn_changed.
	h.send("p0", events.EventCardPlayed, map[string]any{"card": "AH", "position": 0})

	var relayed events.RemoteCardPlayedData
	decodeInto(t, h.clients["p2"].last(t, events.EventRemoteCardPlayed).Data, &relayed)
	assert.Equal(t, 0, relayed.Position)
	assert.Equal(t, 1, relayed.CurrentPlayerIndex)
	assert.JSONEq(t, `"AH"`, string(relayed.Card))

	assert.Equal(t, 0, h.clients["p0"].count(events.EventRemoteCardPlayed))
	var turn events.TurnChangedData
	decodeInto(t, h.clients["p0"].last(t, events.EventTurnChanged).Data, &turn)
	assert.Equal(t, 1, turn.CurrentPlayerIndex)
}

func TestTrickCompleted_WinnerLeads(t *testing.T) {
	h := newHarness(t)
	startedGame(t, h)

	h.send("p0", events.EventTrickCompleted, map[string]any{"winner": 2})
	for _, sid := range []string{"p0", "p1", "p2", "p3"} {
		var set events.TrickWinnerSetData
		decodeInto(t, h.clients[sid].last(t, events.EventTrickWinnerSet).Data, &set)
		assert.Equal(t, 2, set.Winner)
	}

	// Seat 2 now holds the turn.
	h.send("p0", events.EventCardPlayed, map[string]any{"card": "KH", "position": 0})
	assert.Equal(t, "not_your_turn", h.clients["p0"].lastError(t))
	h.send("p2", events.EventCardPlayed, map[string]any{"card": "4D", "position": 2})
	assert.Equal(t, 1, h.clients["p2"].count(events.EventTurnChanged))
}

func TestTrickCompleted_RejectedBeforeGameStarts(t *testing.T) {
	h := newHarness(t)
	h.createFullRoom(t)

	h.send("p1", events.EventTrickCompleted, map[string]any{"winner": 2})
	assert.Equal(t, "not_in_room", h.clients["p1"].lastError(t))
	assert.Equal(t, 0, h.clients["p0"].count(events.EventTrickWinnerSet))
}

func TestReadyForRound_Barrier(t *testing.T) {
	h := newHarness(t)
	startedGame(t, h)

	h.send("p0", events.EventReadyForRound, nil)
	h.send("p1", events.EventReadyForRound, nil)
	h.send("p2", events.EventReadyForRound, nil)
	assert.Equal(t, 0, h.clients["p0"].count(events.EventAllReadyForRound))

	h.send("p3", events.EventReadyForRound, nil)
	for _, sid := range []string{"p0", "p1", "p2", "p3"} {
		assert.Equal(t, 1, h.clients[sid].count(events.EventAllReadyForRound))
	}
}

func TestNewRound_BroadcastsFullDeal(t *testing.T) {
	h := newHarness(t)
	startedGame(t, h)

	h.send("p0", events.EventNewRound, map[string]any{
		"gameState": map[string]any{"currentPlayerIndex": 1},
		"hands":     fourHands(),
	})
	var round events.RoundStartedData
	decodeInto(t, h.clients["p3"].last(t, events.EventRoundStarted).Data, &round)
	assert.Len(t, round.Hands, 4)
}

func TestUpdateGameState_HostOnlyNoEcho(t *testing.T) {
	h := newHarness(t)
	startedGame(t, h)

	h.send("p2", events.EventUpdateGameState, map[string]any{"gameState": map[string]any{"x": 1}})
	assert.Equal(t, "not_host", h.clients["p2"].lastError(t))

	h.send("p0", events.EventUpdateGameState, map[string]any{"gameState": map[string]any{"x": 1}})
	assert.Equal(t, 0, h.clients["p0"].count(events.EventGameStateUpdated))
	assert.Equal(t, 1, h.clients["p1"].count(events.EventGameStateUpdated))
}

func TestSwapPlayer_ExchangeOnFullTable(t *testing.T) {
	h := newHarness(t)
	h.createFullRoom(t)

	h.send("p0", events.EventSwapPlayer, map[string]any{"fromPosition": 0})

	var moved events.PositionChangedData
	decodeInto(t, h.clients["p3"].last(t, events.EventPositionChanged).Data, &moved)
	assert.Equal(t, 0, moved.FromPosition)
	assert.Equal(t, 1, moved.ToPosition)
	assert.Equal(t, "p0", moved.Players["1"].OderID)
	assert.Equal(t, "p1", moved.Players["0"].OderID)

	// Bindings moved with the seats: p1 now holds seat 0 and hosts.
	h.readyAll(t, "p0", "p1", "p2", "p3")
	h.send("p0", events.EventStartGame, map[string]any{
		"gameState": map[string]any{}, "hands": fourHands(),
	})
	assert.Equal(t, "not_host", h.clients["p0"].lastError(t))
	h.send("p1", events.EventStartGame, map[string]any{
		"gameState": map[string]any{}, "hands": fourHands(),
	})
	assert.Equal(t, 1, h.clients["p1"].count(events.EventGameStarted))
}

func TestSwapPlayer_NonHostRejected(t *testing.T) {
	h := newHarness(t)
	h.createFullRoom(t)
	h.send("p2", events.EventSwapPlayer, map[string]any{"fromPosition": 2})
	assert.Equal(t, "not_host", h.clients["p2"].lastError(t))
}

func TestLeaveRoom_HostMigration(t *testing.T) {
	h := newHarness(t)
	h.createFullRoom(t)

	h.send("p0", events.EventLeaveRoom, nil)

	var gone events.PlayerDisconnectedData
	decodeInto(t, h.clients["p1"].last(t, events.EventPlayerDisconnected).Data, &gone)
	assert.Equal(t, 0, gone.Position)
	assert.Len(t, gone.Players, 3)

	// The lowest remaining seat hosts now.
	h.send("p2", events.EventSwapPlayer, map[string]any{"fromPosition": 2})
	assert.Equal(t, "not_host", h.clients["p2"].lastError(t))
	h.send("p1", events.EventSwapPlayer, map[string]any{"fromPosition": 2})
	assert.Equal(t, 1, h.clients["p1"].count(events.EventPositionChanged))
}

func TestLeaveRoom_LastPlayerDeletesRoom(t *testing.T) {
	h := newHarness(t)
	h.connect("p0")
	h.send("p0", events.EventCreateRoom, map[string]any{"playerName": "Solo"})

	var created events.RoomCreatedData
	decodeInto(t, h.clients["p0"].last(t, events.EventRoomCreated).Data, &created)

	h.send("p0", events.EventLeaveRoom, nil)
	_, found := h.coord.rooms.Get(events.GameDhihaEi, created.RoomID)
	assert.False(t, found)

	// Rejoining the deleted room fails cleanly.
	h.send("p0", events.EventJoinRoom, map[string]any{"roomId": created.RoomID, "playerName": "Solo"})
	assert.Equal(t, "room_not_found", h.clients["p0"].lastError(t))
}

func TestCreateRoom_ImplicitLeave(t *testing.T) {
	h := newHarness(t)
	code := h.createFullRoom(t)

	// p3 creates a new room; the old one must lose the seat.
	h.send("p3", events.EventCreateRoom, map[string]any{"playerName": "Dhonbe"})

	var gone events.PlayerDisconnectedData
	decodeInto(t, h.clients["p0"].last(t, events.EventPlayerDisconnected).Data, &gone)
	assert.Equal(t, 3, gone.Position)

	room, found := h.coord.rooms.Get(events.GameDhihaEi, code)
	require.True(t, found)
	room.Lock()
	assert.Equal(t, 3, room.Occupied())
	room.Unlock()
}

func TestPingKeepalive(t *testing.T) {
	h := newHarness(t)
	h.connect("p0")
	h.send("p0", events.EventPingKeepalive, nil)
	assert.Equal(t, 1, h.clients["p0"].count(events.EventPongKeepalive))
}
