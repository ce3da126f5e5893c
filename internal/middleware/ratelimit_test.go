package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitAllowsWithinBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	rl := NewRateLimiter(1, 3)

	router.GET("/probe", RateLimit(rl), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d within burst must pass", i)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitKeysByViewer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	rl := NewRateLimiter(1, 1)

	router.GET("/probe", func(c *gin.Context) {
		// Simulate upstream auth middleware.
		if viewer := c.Query("viewer"); viewer != "" {
			c.Set(ViewerContextKey, viewer)
		}
	}, RateLimit(rl), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Exhaust viewer A.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe?viewer=a", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe?viewer=a", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Viewer B is unaffected.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe?viewer=b", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
