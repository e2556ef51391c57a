package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitBurst(t *testing.T) {
	r := gin.New()
	r.POST("/login", RateLimit(4), func(ctx *gin.Context) { ctx.Status(http.StatusOK) })

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// burst is perMinute/2
	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusOK, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))

	// other clients have their own bucket
	assert.Equal(t, http.StatusOK, send("10.0.0.2"))
}

func TestRateLimitDisabled(t *testing.T) {
	r := gin.New()
	r.GET("/x", RateLimit(0), func(ctx *gin.Context) { ctx.Status(http.StatusOK) })
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestLimiterSetEvictsIdle(t *testing.T) {
	set := &limiterSet{limit: 1, burst: 1, limiters: map[string]*rateLimiter{}}
	now := time.Now()
	assert.True(t, set.allow("a", now))
	assert.Len(t, set.limiters, 1)

	assert.True(t, set.allow("b", now.Add(limiterIdleTTL+time.Second)))
	assert.Len(t, set.limiters, 1, "idle limiter for a evicted")
}
