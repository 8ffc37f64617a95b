// Package health exposes the liveness and readiness probes. Liveness is the
// cheap root-path check the deployed platform polls; readiness additionally
// verifies the dispatcher is not saturated, the session registry answers,
// and - when configured - Redis responds to a ping.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/thaasbai/coordinator/internal/v1/logging"
	"go.uber.org/zap"
)

// dispatcherHighWater is the in-flight handler count past which the server
// reports itself degraded.
const dispatcherHighWater = 1024

// registryProbeWindow bounds the session-registry lock probe.
const registryProbeWindow = 50 * time.Millisecond

// Dispatcher reports in-flight handler load.
type Dispatcher interface {
	InFlight() int
}

// RegistryProber answers whether the session registry's lock is obtainable
// within a window.
type RegistryProber interface {
	Responsive(window time.Duration) bool
}

// BusPinger checks the optional Redis bus; a nil *bus.Service satisfies it
// trivially.
type BusPinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the probes.
type Handler struct {
	dispatcher Dispatcher
	registry   RegistryProber
	bus        BusPinger
}

// NewHandler wires the probes to their subjects. bus may be nil.
func NewHandler(dispatcher Dispatcher, registry RegistryProber, bus BusPinger) *Handler {
	return &Handler{dispatcher: dispatcher, registry: registry, bus: bus}
}

// Liveness is the cheap process-alive check on GET / and GET /healthz: the
// dispatcher queue below its high-water mark and the registry responsive.
func (h *Handler) Liveness(c *gin.Context) {
	if inFlight := h.dispatcher.InFlight(); inFlight >= dispatcherHighWater {
		logging.Warn(c.Request.Context(), "liveness degraded: dispatcher saturated",
			zap.Int("in_flight", inFlight))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	if !h.registry.Responsive(registryProbeWindow) {
		logging.Warn(c.Request.Context(), "liveness degraded: session registry unresponsive")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness adds the bus check on top of liveness.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.dispatcher.InFlight() < dispatcherHighWater {
		checks["dispatcher"] = "healthy"
	} else {
		checks["dispatcher"] = "saturated"
		allHealthy = false
	}

	if h.registry.Responsive(registryProbeWindow) {
		checks["sessions"] = "healthy"
	} else {
		checks["sessions"] = "unresponsive"
		allHealthy = false
	}

	if h.bus == nil {
		checks["redis"] = "disabled"
	} else if err := h.bus.Ping(ctx); err != nil {
		logging.Error(ctx, "redis health check failed", zap.Error(err))
		checks["redis"] = "unhealthy"
		allHealthy = false
	} else {
		checks["redis"] = "healthy"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
