package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedRouter(t *testing.T, formatted string, client *redis.Client) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	limit, err := RateLimit(formatted, client)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/limited", limit, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func hit(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.RemoteAddr = ip + ":51000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_InvalidFormat(t *testing.T) {
	_, err := RateLimit("not-a-rate", nil)
	assert.Error(t, err)
}

func TestRateLimit_MemoryStore(t *testing.T) {
	router := limitedRouter(t, "3-M", nil)

	for i := 0; i < 3; i++ {
		w := hit(router, "203.0.113.7")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	}

	w := hit(router, "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "retryAfter")

	// A different client IP has its own budget.
	w = hit(router, "203.0.113.8")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	router := limitedRouter(t, "2-M", client)

	require.Equal(t, http.StatusOK, hit(router, "203.0.113.9").Code)
	require.Equal(t, http.StatusOK, hit(router, "203.0.113.9").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(router, "203.0.113.9").Code)
}

func TestRateLimit_FailsOpenOnStoreError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	router := limitedRouter(t, "2-M", client)
	mr.Close()

	w := hit(router, "203.0.113.10")
	assert.Equal(t, http.StatusOK, w.Code)
}
