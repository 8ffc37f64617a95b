package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/logging"
	"github.com/thaasbai/coordinator/internal/v1/metrics"
	"github.com/thaasbai/coordinator/internal/v1/rooms"
	"github.com/thaasbai/coordinator/internal/v1/sessions"
	"go.uber.org/zap"
)

// handlerFunc runs with the target room's lock held when the route requires a
// room; room is nil and pos is -1 for session-scoped routes.
type handlerFunc func(ctx context.Context, sess *sessions.Session, room *rooms.Room, pos int, raw json.RawMessage) error

// route carries the predicate flags the dispatcher enforces before a handler
// runs. Handlers never re-check them.
type route struct {
	handler      handlerFunc
	requiresRoom bool
	requiresHost bool
	requiresTurn bool
}

// slowHandlerThreshold is the wall-time past which a handler logs a warning.
const slowHandlerThreshold = time.Second

func (c *Coordinator) buildRoutes() map[events.Name]route {
	return map[events.Name]route{
		events.EventCreateRoom:     {handler: c.handleCreateRoom},
		events.EventJoinRoom:       {handler: c.handleJoinRoom},
		events.EventCreateDiguRoom: {handler: c.handleCreateDiguRoom},
		events.EventJoinDiguRoom:   {handler: c.handleJoinDiguRoom},
		events.EventJoinQueue:      {handler: c.handleJoinQueue},
		events.EventLeaveQueue:     {handler: c.handleLeaveQueue},
		events.EventReattach:       {handler: c.handleReattach},
		events.EventPingKeepalive:  {handler: c.handlePingKeepalive},

		events.EventLeaveRoom:       {handler: c.handleLeaveRoom, requiresRoom: true},
		events.EventLeaveDiguRoom:   {handler: c.handleLeaveRoom, requiresRoom: true},
		events.EventSetReady:        {handler: c.handleSetReady, requiresRoom: true},
		events.EventDiguSetReady:    {handler: c.handleSetReady, requiresRoom: true},
		events.EventTrickCompleted:  {handler: c.handleTrickCompleted, requiresRoom: true},
		events.EventReadyForRound:   {handler: c.handleReadyForRound, requiresRoom: true},
		events.EventDiguUpdateState: {handler: c.handleDiguUpdateState, requiresRoom: true},
		events.EventDiguGameOver:    {handler: c.handleDiguGameOver, requiresRoom: true},

		events.EventUpdateGameState: {handler: c.handleUpdateGameState, requiresRoom: true, requiresHost: true},
		events.EventStartGame:       {handler: c.handleStartGame, requiresRoom: true, requiresHost: true},
		events.EventStartDiguGame:   {handler: c.handleStartDiguGame, requiresRoom: true, requiresHost: true},
		events.EventSwapPlayer:      {handler: c.handleSwapPlayer, requiresRoom: true, requiresHost: true},
		events.EventNewRound:        {handler: c.handleNewRound, requiresRoom: true, requiresHost: true},
		events.EventDiguNewMatch:    {handler: c.handleDiguNewMatch, requiresRoom: true, requiresHost: true},

		events.EventCardPlayed:      {handler: c.handleCardPlayed, requiresRoom: true, requiresTurn: true},
		events.EventDiguDrawCard:    {handler: c.handleDiguDrawCard, requiresRoom: true, requiresTurn: true},
		events.EventDiguDiscardCard: {handler: c.handleDiguDiscardCard, requiresRoom: true, requiresTurn: true},
		events.EventDiguDeclare:     {handler: c.handleDiguDeclare, requiresRoom: true, requiresTurn: true},
	}
}

// HandleFrame routes one decoded inbound frame from the transport. Every
// failure mode collapses to a single error frame to the offending session;
// room state is untouched unless the handler succeeded.
func (c *Coordinator) HandleFrame(ctx context.Context, sid string, inbound events.Inbound) {
	ctx = logging.WithSession(ctx, sid)

	rt, known := c.routeTable[inbound.Event]
	if !known {
		logging.Warn(ctx, "unknown event", zap.String("event", string(inbound.Event)))
		c.emitError(sid, events.ErrInvalidPayload)
		return
	}

	if !c.guard.AllowEvent(sid, inbound.Event) {
		c.emitError(sid, events.ErrRateLimited)
		return
	}

	sess := c.sessions.Lookup(sid)
	if sess == nil {
		// The transport already tore this session down; nothing to answer.
		return
	}
	c.sessions.Touch(sid)

	c.inFlight.Add(1)
	start := time.Now()
	status := "success"
	defer func() {
		c.inFlight.Add(-1)
		c.eventsProcessed.Add(1)
		elapsed := time.Since(start)
		metrics.HandlerDuration.WithLabelValues(string(inbound.Event)).Observe(elapsed.Seconds())
		metrics.WebsocketEvents.WithLabelValues(string(inbound.Event), status).Inc()
		if elapsed > slowHandlerThreshold {
			logging.Warn(ctx, "slow handler",
				zap.String("event", string(inbound.Event)),
				zap.Duration("elapsed", elapsed))
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			logging.Error(ctx, "handler panicked",
				zap.String("event", string(inbound.Event)),
				zap.Any("panic", r))
			c.emitError(sid, events.ErrInternal)
		}
	}()

	err := c.dispatch(ctx, sess, rt, inbound.Data)
	if err != nil {
		status = "error"
		c.errorsReturned.Add(1)
		if we, ok := events.AsWire(err); ok {
			c.emitError(sid, we)
			return
		}
		logging.Error(ctx, "handler failed",
			zap.String("event", string(inbound.Event)), zap.Error(err))
		c.emitError(sid, events.ErrInternal)
	}
}

// dispatch resolves the route's predicates in order (session binding, room
// existence, host, turn) and then runs the handler under the room's lock.
func (c *Coordinator) dispatch(ctx context.Context, sess *sessions.Session, rt route, raw json.RawMessage) error {
	if !rt.requiresRoom {
		return rt.handler(ctx, sess, nil, -1, raw)
	}

	binding, bound := c.sessions.BindingOf(sess.SID)
	if !bound {
		return events.ErrNotInRoom
	}
	room, ok := c.rooms.Get(binding.GameType, binding.RoomCode)
	if !ok {
		return events.ErrRoomNotFound
	}

	ctx = logging.WithRoom(ctx, room.Code)
	room.Lock()
	defer room.Unlock()

	pos, seated := room.PositionOf(sess.SID)
	if !seated {
		return events.ErrNotInRoom
	}
	if rt.requiresHost && pos != room.HostPosition() {
		return events.ErrNotHost
	}
	if rt.requiresTurn && pos != room.CurrentTurn() {
		return events.ErrNotYourTurn
	}
	return rt.handler(ctx, sess, room, pos, raw)
}
