// Package coordinator wires the registries together: it decodes inbound
// frames, routes them through the permission-checked dispatch table, runs
// handlers under the owning room's lock, and fans results back out to member
// sessions. It also owns presence (the disconnect grace window) and the
// garbage-collection janitor.
package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thaasbai/coordinator/internal/v1/admission"
	"github.com/thaasbai/coordinator/internal/v1/bus"
	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/logging"
	"github.com/thaasbai/coordinator/internal/v1/matchmaking"
	"github.com/thaasbai/coordinator/internal/v1/rooms"
	"github.com/thaasbai/coordinator/internal/v1/sessions"
)

// DefaultGracePeriod is how long a disconnected player's seat survives
// awaiting reattachment.
const DefaultGracePeriod = 30 * time.Second

const janitorInterval = time.Minute

// Coordinator is the single in-process instance that owns all rooms, queues,
// and session bindings.
type Coordinator struct {
	sessions *sessions.Registry
	rooms    *rooms.Registry
	queues   *matchmaking.Queues
	guard    *admission.Guard
	announce *bus.Service // nil-safe; nil means single-instance mode

	gracePeriod time.Duration
	graceMu     sync.Mutex
	graceTimers map[string]*time.Timer

	inFlight  atomic.Int64
	startedAt time.Time

	eventsProcessed atomic.Uint64
	errorsReturned  atomic.Uint64
	matchesMade     atomic.Uint64

	routeTable map[events.Name]route

	janitorOn   atomic.Bool
	janitorStop chan struct{}
	janitorDone chan struct{}
}

// New builds a coordinator over its registries. announce may be nil.
func New(reg *sessions.Registry, roomReg *rooms.Registry, queues *matchmaking.Queues, guard *admission.Guard, announce *bus.Service) *Coordinator {
	c := &Coordinator{
		sessions:    reg,
		rooms:       roomReg,
		queues:      queues,
		guard:       guard,
		announce:    announce,
		gracePeriod: DefaultGracePeriod,
		graceTimers: make(map[string]*time.Timer),
		startedAt:   time.Now(),
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	c.routeTable = c.buildRoutes()
	return c
}

// Sessions exposes the session registry for the transport layer.
func (c *Coordinator) Sessions() *sessions.Registry { return c.sessions }

// Guard exposes the admission guard for the transport layer.
func (c *Coordinator) Guard() *admission.Guard { return c.guard }

// InFlight reports handlers currently executing; the health endpoint compares
// it against the high-water mark.
func (c *Coordinator) InFlight() int {
	return int(c.inFlight.Load())
}

// Stats is the counters block of the admin snapshot.
type Stats struct {
	StartedAt       time.Time `json:"startedAt"`
	EventsProcessed uint64    `json:"eventsProcessed"`
	ErrorsReturned  uint64    `json:"errorsReturned"`
	MatchesMade     uint64    `json:"matchesMade"`
}

// StatsSnapshot returns the current counter values.
func (c *Coordinator) StatsSnapshot() Stats {
	return Stats{
		StartedAt:       c.startedAt,
		EventsProcessed: c.eventsProcessed.Load(),
		ErrorsReturned:  c.errorsReturned.Load(),
		MatchesMade:     c.matchesMade.Load(),
	}
}

// StartJanitor runs the room garbage collector until Shutdown.
func (c *Coordinator) StartJanitor() {
	if !c.janitorOn.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(c.janitorDone)
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.janitorStop:
				return
			case now := <-ticker.C:
				c.collectExpiredRooms(now)
			}
		}
	}()
}

// Shutdown stops the janitor, cancels pending grace timers, and closes every
// live session's transport.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	select {
	case <-c.janitorStop:
	default:
		close(c.janitorStop)
	}
	if c.janitorOn.Load() {
		select {
		case <-c.janitorDone:
		case <-ctx.Done():
		}
	}

	c.graceMu.Lock()
	for key, timer := range c.graceTimers {
		timer.Stop()
		delete(c.graceTimers, key)
	}
	c.graceMu.Unlock()

	for _, view := range c.sessions.Snapshot() {
		if sess := c.sessions.Lookup(view.SID); sess != nil {
			sess.Close()
		}
	}
	logging.Info(ctx, "coordinator shut down")
	return nil
}
