package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinfolio-engine/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	jwtSvc := auth.NewJWTService("secret", time.Hour)
	am := NewAuthMiddleware(jwtSvc)

	r := gin.New()
	r.GET("/", am.JWTAuth(), func(c *gin.Context) {
		id, _ := GetUserIDFromContext(c)
		c.String(http.StatusOK, id)
	})

	token, err := jwtSvc.GenerateToken("alice", auth.RoleUser)
	require.NoError(t, err)

	w := serve(r, "Bearer "+token.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer abc").Code)
}

func TestOptionalAuthAndRoles(t *testing.T) {
	jwtSvc := auth.NewJWTService("secret", time.Hour)
	am := NewAuthMiddleware(jwtSvc)

	r := gin.New()
	r.GET("/", am.OptionalAuth(), func(c *gin.Context) {
		id, ok := GetUserIDFromContext(c)
		if !ok {
			id = "anonymous"
		}
		c.String(http.StatusOK, id)
	})
	admin := gin.New()
	admin.GET("/", am.JWTAuth(), RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	userToken, err := jwtSvc.GenerateToken("bob", auth.RoleUser)
	require.NoError(t, err)
	adminToken, err := jwtSvc.GenerateToken("root", auth.RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, "anonymous", serve(r, "").Body.String())
	assert.Equal(t, "anonymous", serve(r, "Bearer junk").Body.String())
	assert.Equal(t, "bob", serve(r, "Bearer "+userToken.AccessToken).Body.String())

	req := httptest.NewRequest(http.MethodGet, "/?token="+userToken.AccessToken, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "bob", w.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(admin, "Bearer "+userToken.AccessToken).Code)
	assert.Equal(t, http.StatusNoContent, serve(admin, "Bearer "+adminToken.AccessToken).Code)
}

func TestLocalRateLimit(t *testing.T) {
	rl := NewRateLimitMiddleware(nil)
	r := gin.New()
	r.GET("/", rl.RateLimit(RateLimitConfig{
		Requests:   2,
		Window:     time.Minute,
		KeyFunc:    func(c *gin.Context) string { return "fixed" },
		Message:    "slow down",
		StatusCode: http.StatusTooManyRequests,
	}), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, "").Code)
	assert.Equal(t, http.StatusOK, serve(r, "").Code)
	w := serve(r, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "slow down")
}

func TestRedisFailureFallsBackToLocalCounter(t *testing.T) {
	// nothing listens on this port
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	rl := NewRateLimitMiddleware(client)
	r := gin.New()
	r.GET("/", rl.TradingRateLimit(1), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "").Code)
}

func TestWindowCounterResets(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	wc := newWindowCounter(func() time.Time { return now })

	assert.True(t, wc.allow("k", 1, time.Minute))
	assert.False(t, wc.allow("k", 1, time.Minute))
	assert.True(t, wc.allow("other", 1, time.Minute))

	now = now.Add(time.Minute)
	assert.True(t, wc.allow("k", 1, time.Minute))
}
