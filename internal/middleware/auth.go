package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ViewerContextKey holds the authenticated viewer's user ID
	ViewerContextKey = "viewer_id"
)

// Claims represents viewer JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Auth holds the viewer authentication secret
type Auth struct {
	jwtSecret []byte
}

// NewAuth creates the auth middleware provider
func NewAuth(jwtSecret string) *Auth {
	return &Auth{jwtSecret: []byte(jwtSecret)}
}

func (a *Auth) viewerFromHeader(c *gin.Context) (string, bool, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false, nil
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false, jwt.ErrTokenMalformed
	}

	token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", false, jwt.ErrTokenUnverifiable
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return "", false, jwt.ErrTokenInvalidClaims
	}

	return claims.UserID, true, nil
}

// OptionalViewer resolves the viewer identity when a Bearer token is
// present. Anonymous requests pass through; a malformed or forged token is
// rejected rather than silently downgraded to anonymous.
func (a *Auth) OptionalViewer() gin.HandlerFunc {
	return func(c *gin.Context) {
		viewerID, authenticated, err := a.viewerFromHeader(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}
		if authenticated {
			c.Set(ViewerContextKey, viewerID)
		}
		c.Next()
	}
}

// RequireViewer rejects requests without a valid Bearer token
func (a *Auth) RequireViewer() gin.HandlerFunc {
	return func(c *gin.Context) {
		viewerID, authenticated, err := a.viewerFromHeader(c)
		if err != nil || !authenticated {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			c.Abort()
			return
		}
		c.Set(ViewerContextKey, viewerID)
		c.Next()
	}
}

// GetViewerID returns the authenticated viewer from the request context,
// or nil for anonymous requests
func GetViewerID(c *gin.Context) *string {
	value, exists := c.Get(ViewerContextKey)
	if !exists {
		return nil
	}
	viewerID, ok := value.(string)
	if !ok || viewerID == "" {
		return nil
	}
	return &viewerID
}
