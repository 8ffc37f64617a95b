// Package admission is the gate in front of the coordinator: the per-IP
// connection cap, the per-IP connect-rate limit, per-session per-event rate
// limits, and the inbound frame size bound. Nothing behind it re-checks any
// of these.
package admission

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"golang.org/x/time/rate"

	"github.com/thaasbai/coordinator/internal/v1/config"
	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/logging"
	"github.com/thaasbai/coordinator/internal/v1/metrics"
	"go.uber.org/zap"
)

// MaxFrameBytes is the inbound frame size cap enforced at the transport read.
const MaxFrameBytes = 64 * 1024

// eventLimits is the per-session budget for each event within a 60 s window.
// Events not listed fall back to defaultEventLimit.
var eventLimits = map[events.Name]int{
	events.EventCreateRoom:      5,
	events.EventCreateDiguRoom:  5,
	events.EventJoinRoom:        10,
	events.EventJoinDiguRoom:    10,
	events.EventJoinQueue:       10,
	events.EventCardPlayed:      120,
	events.EventDiguDrawCard:    60,
	events.EventDiguDiscardCard: 60,
	events.EventDiguDeclare:     10,
}

const defaultEventLimit = 60

// IPCounter reports live sessions per remote IP; the session registry
// implements it.
type IPCounter interface {
	CountByIP(ip string) int
}

// Guard enforces the admission rules. Connect-rate limiting rides on
// ulule/limiter so multi-instance deployments can share a Redis store;
// per-event buckets are plain in-process token buckets keyed by (sid, event).
type Guard struct {
	maxPerIP int
	connects *limiter.Limiter
	counter  IPCounter

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewGuard builds a guard from validated config. A nil redisClient selects
// the in-memory store.
func NewGuard(cfg *config.Config, counter IPCounter, redisClient *redis.Client) (*Guard, error) {
	connectRate, err := limiter.NewRateFromFormatted(fmt.Sprintf("%d-S", cfg.ConnectionRateLimit))
	if err != nil {
		return nil, fmt.Errorf("invalid connection rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		store, err = sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "thaasbai:admission:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
	} else {
		store = memory.NewStore()
	}

	return &Guard{
		maxPerIP: cfg.MaxConnectionsPerIP,
		connects: limiter.New(store, connectRate),
		counter:  counter,
		buckets:  make(map[string]*rate.Limiter),
	}, nil
}

// CheckConnect admits or refuses a new transport connection from ip. The
// connection cap is evaluated before the rate limit so a reconnect storm from
// a saturated address reports the more actionable reason. Loopback bypasses
// both.
func (g *Guard) CheckConnect(ctx context.Context, ip string) error {
	if isLoopback(ip) {
		return nil
	}

	if g.counter.CountByIP(ip) >= g.maxPerIP {
		metrics.AdmissionRejections.WithLabelValues(events.ErrTooManyConnections.Label).Inc()
		return events.ErrTooManyConnections
	}

	res, err := g.connects.Get(ctx, ip)
	if err != nil {
		// Store failure fails open: refusing every player because Redis
		// blinked is worse than briefly losing the rate limit.
		logging.Error(ctx, "connect rate limiter store failed", zap.Error(err))
		return nil
	}
	if res.Reached {
		metrics.AdmissionRejections.WithLabelValues(events.ErrRateLimited.Label).Inc()
		return events.ErrRateLimited
	}
	return nil
}

// AllowEvent charges one inbound event against the session's per-event
// bucket. False means the frame is answered with rate_limited and dropped.
func (g *Guard) AllowEvent(sid string, event events.Name) bool {
	limit, ok := eventLimits[event]
	if !ok {
		limit = defaultEventLimit
	}

	key := sid + "|" + string(event)
	g.mu.Lock()
	bucket, ok := g.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(float64(limit)/60.0), limit)
		g.buckets[key] = bucket
	}
	g.mu.Unlock()

	if !bucket.Allow() {
		metrics.AdmissionRejections.WithLabelValues(events.ErrRateLimited.Label).Inc()
		return false
	}
	return true
}

// ReleaseSession drops the per-event buckets of a departed session.
func (g *Guard) ReleaseSession(sid string) {
	prefix := sid + "|"
	g.mu.Lock()
	for key := range g.buckets {
		if strings.HasPrefix(key, prefix) {
			delete(g.buckets, key)
		}
	}
	g.mu.Unlock()
}

// ClientIP resolves the remote address of an upgrade request: the first hop
// of X-Forwarded-For when a proxy fronts the server, else the socket peer.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isLoopback(ip string) bool {
	if ip == "localhost" {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
