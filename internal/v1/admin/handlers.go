// Package admin is the operator surface: a JWT-gated JSON snapshot of rooms,
// sessions, and queues, server stats, the in-memory log ring, and the
// unauthenticated client error-report sink.
package admin

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/thaasbai/coordinator/internal/v1/config"
	"github.com/thaasbai/coordinator/internal/v1/coordinator"
	"github.com/thaasbai/coordinator/internal/v1/events"
	"github.com/thaasbai/coordinator/internal/v1/logging"
	"go.uber.org/zap"
)

// tokenTTL bounds an admin login session.
const tokenTTL = 12 * time.Hour

// Handler serves the admin endpoints.
type Handler struct {
	password  string
	signKey   []byte
	coord     *coordinator.Coordinator
	ring      *logging.Ring
	startedAt time.Time
}

// NewHandler builds the admin surface. The JWT signing key is derived from
// the shared secret so a password rotation invalidates outstanding tokens.
func NewHandler(cfg *config.Config, coord *coordinator.Coordinator, ring *logging.Ring) *Handler {
	key := sha256.Sum256([]byte("thaasbai-admin:" + cfg.AdminPassword))
	return &Handler{
		password:  cfg.AdminPassword,
		signKey:   key[:],
		coord:     coord,
		ring:      ring,
		startedAt: time.Now(),
	}
}

// Register mounts the admin routes on the router. publicLimit rate-limits
// the unauthenticated endpoints; nil disables it.
func (h *Handler) Register(r gin.IRouter, publicLimit gin.HandlerFunc) {
	if publicLimit == nil {
		publicLimit = func(c *gin.Context) { c.Next() }
	}
	r.POST("/api/admin/login", publicLimit, h.Login)
	r.POST("/api/log", publicLimit, h.ClientLog)

	guarded := r.Group("/", h.RequireAdmin())
	guarded.GET("/api/admin/state", h.State)
	guarded.GET("/api/admin/server-stats", h.ServerStats)
	guarded.GET("/api/admin/logs", h.Logs)
	guarded.DELETE("/api/admin/logs", h.ClearLogs)
}

// RequireAdmin accepts either the shared secret in X-Admin-Password or a
// bearer token minted by Login. Anything else is a bodyless 401.
func (h *Handler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if pw := c.GetHeader("X-Admin-Password"); pw != "" {
			if subtle.ConstantTimeCompare([]byte(pw), []byte(h.password)) == 1 {
				c.Next()
				return
			}
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		auth := c.GetHeader("Authorization")
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && h.validToken(token) {
			c.Next()
			return
		}
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}

func (h *Handler) validToken(tokenString string) bool {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return h.signKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && token.Valid
}

// Login exchanges the shared secret for a short-lived bearer token.
func (h *Handler) Login(c *gin.Context) {
	var body struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(body.Password), []byte(h.password)) != 1 {
		logging.Warn(c.Request.Context(), "admin login rejected")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	})
	signed, err := token.SignedString(h.signKey)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to sign admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": signed, "expiresIn": int(tokenTTL.Seconds())})
}

// State returns the full read-only snapshot.
func (h *Handler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.SnapshotState())
}

// ServerStats summarizes load for dashboards: connections, rooms by status,
// queue depths, counters, and runtime memory.
func (h *Handler) ServerStats(c *gin.Context) {
	dhihaTotal, dhihaWaiting, dhihaPlaying := h.coord.RoomCounts(events.GameDhihaEi)
	diguTotal, diguWaiting, diguPlaying := h.coord.RoomCounts(events.GameDigu)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(http.StatusOK, gin.H{
		"uptime":      time.Since(h.startedAt).Seconds(),
		"connections": gin.H{"total": h.coord.Sessions().Len()},
		"rooms": gin.H{
			"dhihaEi": gin.H{"total": dhihaTotal, "waiting": dhihaWaiting, "playing": dhihaPlaying},
			"digu":    gin.H{"total": diguTotal, "waiting": diguWaiting, "playing": diguPlaying},
		},
		"matchmaking": gin.H{
			"dhihaEi": h.coord.QueueDepth(events.GameDhihaEi),
			"digu":    h.coord.QueueDepth(events.GameDigu),
		},
		"counters": h.coord.StatsSnapshot(),
		"runtime": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"heapAlloc":  mem.HeapAlloc,
			"totalAlloc": mem.TotalAlloc,
			"numGC":      mem.NumGC,
			"goVersion":  runtime.Version(),
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Logs returns the retained ring entries, optionally filtered by level.
func (h *Handler) Logs(c *gin.Context) {
	level := strings.ToLower(c.Query("level"))
	entries := h.ring.Entries()
	if level != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Level == level {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

// ClearLogs empties the ring.
func (h *Handler) ClearLogs(c *gin.Context) {
	h.ring.Clear()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// ClientLog ingests an error report from a browser client into the server
// log. The endpoint takes no auth; the global HTTP rate limit bounds abuse.
func (h *Handler) ClientLog(c *gin.Context) {
	var body struct {
		Level   string         `json:"level"`
		Message string         `json:"message"`
		Context map[string]any `json:"context"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if len(body.Message) > 2000 {
		body.Message = body.Message[:2000]
	}

	fields := []zap.Field{zap.String("source", "client"), zap.Any("client_context", body.Context)}
	switch strings.ToLower(body.Level) {
	case "error":
		logging.Error(c.Request.Context(), body.Message, fields...)
	default:
		logging.Warn(c.Request.Context(), body.Message, fields...)
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "logged"})
}
