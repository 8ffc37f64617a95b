package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thaasbai/coordinator/internal/v1/events"
)

func joinQueue(h *harness, sid, name string, extra map[string]any) {
	data := map[string]any{"gameType": "dhiha-ei", "playerName": name}
	for k, v := range extra {
		data[k] = v
	}
	h.send(sid, events.EventJoinQueue, data)
}

func TestJoinQueue_AckAndUpdates(t *testing.T) {
	h := newHarness(t)
	h.connect("q1")
	h.connect("q2")

	joinQueue(h, "q1", "Qasim", nil)
	var ack events.QueueJoinedData
	decodeInto(t, h.clients["q1"].last(t, events.EventQueueJoined).Data, &ack)
	assert.Equal(t, 1, ack.Position)
	assert.Equal(t, 1, ack.PlayersInQueue)
	assert.Equal(t, 3, ack.PlayersNeeded)

	joinQueue(h, "q2", "Rilwan", nil)
	var update events.QueueUpdateData
	decodeInto(t, h.clients["q1"].last(t, events.EventQueueUpdate).Data, &update)
	assert.Equal(t, 2, update.PlayersInQueue)
	assert.Equal(t, 2, update.PlayersNeeded)
}

func TestJoinQueue_FourthJoinFormsMatch(t *testing.T) {
	h := newHarness(t)
	sids := []string{"q1", "q2", "q3", "q4"}
	for i, sid := range sids {
		h.connect(sid)
		joinQueue(h, sid, "Player"+sid, nil)
		if i < 3 {
			assert.Equal(t, 0, h.clients[sid].count(events.EventMatchmakingMatched))
		}
	}

	var roomID string
	seen := map[int]bool{}
	for _, sid := range sids {
		var matched events.MatchmakingMatchedData
		decodeInto(t, h.clients[sid].last(t, events.EventMatchmakingMatched).Data, &matched)
		if roomID == "" {
			roomID = matched.RoomID
		}
		assert.Equal(t, roomID, matched.RoomID)
		assert.False(t, seen[matched.Position], "position %d matched twice", matched.Position)
		seen[matched.Position] = true
		assert.Len(t, matched.Players, 4)
	}
	assert.Equal(t, 0, h.coord.QueueDepth(events.GameDhihaEi))

	room, found := h.coord.rooms.Get(events.GameDhihaEi, roomID)
	require.True(t, found)
	room.Lock()
	assert.Equal(t, 4, room.Occupied())
	room.Unlock()

	// Matched sessions were bound; room-scoped events work right away.
	h.send("q1", events.EventSetReady, map[string]any{"ready": true})
	assert.Equal(t, 0, h.clients["q1"].count(events.EventError))
}

func TestJoinQueue_DiguTwoPlayerTable(t *testing.T) {
	h := newHarness(t)
	h.connect("d1")
	h.connect("d2")
	h.send("d1", events.EventJoinQueue, map[string]any{
		"gameType": "digu", "playerName": "Sobira", "maxPlayers": 2,
	})
	h.send("d2", events.EventJoinQueue, map[string]any{
		"gameType": "digu", "playerName": "Thakur", "maxPlayers": 2,
	})

	var matched events.MatchmakingMatchedData
	decodeInto(t, h.clients["d1"].last(t, events.EventMatchmakingMatched).Data, &matched)
	assert.Len(t, matched.Players, 2)

	room, found := h.coord.rooms.Get(events.GameDigu, matched.RoomID)
	require.True(t, found)
	room.Lock()
	assert.Equal(t, 2, room.MaxPlayers)
	room.Unlock()
}

func TestJoinQueue_MixedDiguTargetsDoNotMatch(t *testing.T) {
	h := newHarness(t)
	h.connect("d1")
	h.connect("d2")
	h.send("d1", events.EventJoinQueue, map[string]any{
		"gameType": "digu", "playerName": "Sobira", "maxPlayers": 2,
	})
	h.send("d2", events.EventJoinQueue, map[string]any{
		"gameType": "digu", "playerName": "Thakur", "maxPlayers": 3,
	})

	assert.Equal(t, 0, h.clients["d1"].count(events.EventMatchmakingMatched))
	assert.Equal(t, 2, h.coord.QueueDepth(events.GameDigu))
}

func TestLeaveQueue_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.connect("q1")

	// Leaving without having joined still acks.
	h.send("q1", events.EventLeaveQueue, nil)
	assert.Equal(t, 1, h.clients["q1"].count(events.EventQueueLeft))

	joinQueue(h, "q1", "Qasim", nil)
	h.send("q1", events.EventLeaveQueue, nil)
	assert.Equal(t, 2, h.clients["q1"].count(events.EventQueueLeft))
	assert.Equal(t, 0, h.coord.QueueDepth(events.GameDhihaEi))
}

func TestJoinQueue_ReplacesRoomSeat(t *testing.T) {
	h := newHarness(t)
	code := h.createFullRoom(t)

	joinQueue(h, "p3", "Dhonbe", nil)

	room, found := h.coord.rooms.Get(events.GameDhihaEi, code)
	require.True(t, found)
	room.Lock()
	assert.Equal(t, 3, room.Occupied())
	room.Unlock()
	assert.Equal(t, 1, h.coord.QueueDepth(events.GameDhihaEi))
}
