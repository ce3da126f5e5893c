package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret"

func signToken(t *testing.T, secret, userID string) string {
	t.Helper()

	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestOptionalViewerAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	auth := NewAuth(testSecret)

	var viewer *string
	router.GET("/probe", auth.OptionalViewer(), func(c *gin.Context) {
		viewer = GetViewerID(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, viewer)
}

func TestOptionalViewerAuthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	auth := NewAuth(testSecret)

	var viewer *string
	router.GET("/probe", auth.OptionalViewer(), func(c *gin.Context) {
		viewer = GetViewerID(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "user-1"))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, viewer)
	assert.Equal(t, "user-1", *viewer)
}

func TestOptionalViewerRejectsForgedToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	auth := NewAuth(testSecret)

	router.GET("/probe", auth.OptionalViewer(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret", "user-1"))
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireViewerRejectsAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	auth := NewAuth(testSecret)

	router.GET("/probe", auth.RequireViewer(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireViewerMalformedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	auth := NewAuth(testSecret)

	router.GET("/probe", auth.RequireViewer(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "NotBearer abc")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
