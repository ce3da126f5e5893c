package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/access"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/database"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/middleware"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/session"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/token"
	"github.com/therealutkarshpriyadarshi/streamgate/pkg/models"
)

// ManifestBuilder builds playback manifests
type ManifestBuilder interface {
	Build(ctx context.Context, req models.ManifestRequest) (*models.ManifestResult, error)
}

// SessionService is the session lifecycle surface the handlers consume
type SessionService interface {
	Heartbeat(ctx context.Context, token string, positionSeconds, watchDeltaSeconds float64) (bool, error)
	Validate(ctx context.Context, videoID, token string, viewerID *string, ipHint string) (session.Result, error)
	Revoke(ctx context.Context, token string, requestedBy *string) (session.Result, error)
	ListActive(ctx context.Context, viewerID string) ([]models.SessionSummary, error)
}

// AccessChecker resolves authorization for grant management
type AccessChecker interface {
	Resolve(ctx context.Context, videoID string, viewerID *string, ipHash string) (access.Decision, error)
}

// Repo is the persistence surface the handlers consume directly
type Repo interface {
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	GetCompletedRenditions(ctx context.Context, videoID string) ([]*models.Rendition, error)
	CreateGrant(ctx context.Context, grant *models.PermissionGrant) error
	GetGrant(ctx context.Context, videoID, granteeUserID, permissionType string) (*models.PermissionGrant, error)
	ListGrants(ctx context.Context, videoID string) ([]*models.PermissionGrant, error)
	DeleteGrant(ctx context.Context, videoID, granteeUserID, permissionType string) error
}

// ManifestStorage checks rendition manifest objects and maps their keys to
// delivery URLs
type ManifestStorage interface {
	ManifestExists(ctx context.Context, manifestKey string) (bool, error)
	ManifestURL(manifestKey string) string
}

// TokenVerifier verifies signed stream URLs
type TokenVerifier interface {
	Verify(videoID, quality, sessionToken string, expiresAtUnix int64, signature string) token.VerifyResult
}

func statusForReason(reason string) int {
	switch reason {
	case models.ReasonVideoNotFound, models.ReasonNoStreamsAvailable:
		return http.StatusNotFound
	case models.ReasonAuthenticationRequired:
		return http.StatusUnauthorized
	case models.ReasonURLExpired:
		return http.StatusGone
	default:
		return http.StatusForbidden
	}
}

// createManifestHandler builds a playback manifest for a video
// POST /api/v1/videos/:id/manifest
func (api *API) createManifestHandler(c *gin.Context) {
	var body struct {
		QualityPreference string `json:"quality_preference"`
	}
	// Body is optional; ignore decode errors on empty requests.
	_ = c.ShouldBindJSON(&body)

	req := models.ManifestRequest{
		VideoID:           c.Param("id"),
		ViewerUserID:      middleware.GetViewerID(c),
		ClientIP:          c.ClientIP(),
		UserAgent:         c.Request.UserAgent(),
		QualityPreference: body.QualityPreference,
	}

	result, err := api.builder.Build(c.Request.Context(), req)
	if err != nil {
		api.logger.WithError(err).WithVideoID(req.VideoID).Error("Manifest build failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "service_unavailable",
			"message": "temporary failure, retry with backoff",
		})
		return
	}

	if !result.Success {
		c.JSON(statusForReason(result.Error), result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// streamHandler validates a signed stream URL and resolves the rendition
// manifest it points at. The delivery layer serves the actual segments.
// GET /stream/:video_id/:quality
func (api *API) streamHandler(c *gin.Context) {
	videoID := c.Param("video_id")
	quality := c.Param("quality")
	sessionToken := c.Query("token")

	expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ReasonInvalidSignature})
		return
	}

	verification := api.verifier.Verify(videoID, quality, sessionToken, expires, c.Query("signature"))
	if !verification.Valid {
		c.JSON(statusForReason(verification.Reason), gin.H{"error": verification.Reason})
		return
	}

	validation, err := api.sessions.Validate(c.Request.Context(), videoID, sessionToken, middleware.GetViewerID(c), c.ClientIP())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}
	if !validation.Valid {
		c.JSON(statusForReason(validation.Reason), gin.H{"error": validation.Reason})
		return
	}

	renditions, err := api.repo.GetCompletedRenditions(c.Request.Context(), videoID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}

	for _, rendition := range renditions {
		if rendition.Preset != quality {
			continue
		}

		exists, err := api.storage.ManifestExists(c.Request.Context(), rendition.ManifestKey)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
			return
		}
		if !exists {
			// Row says completed but the object is gone; treat as unavailable.
			break
		}

		c.JSON(http.StatusOK, gin.H{
			"valid":        true,
			"video_id":     videoID,
			"quality":      quality,
			"manifest_url": api.storage.ManifestURL(rendition.ManifestKey),
		})
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": models.ReasonNoStreamsAvailable})
}

// heartbeatHandler bumps a session and records playback progress
// POST /api/v1/sessions/:token/heartbeat
func (api *API) heartbeatHandler(c *gin.Context) {
	var body struct {
		PositionSeconds   float64 `json:"position_seconds"`
		WatchDeltaSeconds float64 `json:"watch_delta_seconds"`
	}
	_ = c.ShouldBindJSON(&body)

	ok, err := api.sessions.Heartbeat(c.Request.Context(), c.Param("token"), body.PositionSeconds, body.WatchDeltaSeconds)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": models.ReasonInvalidSession})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// revokeSessionHandler ends a session
// DELETE /api/v1/sessions/:token
func (api *API) revokeSessionHandler(c *gin.Context) {
	result, err := api.sessions.Revoke(c.Request.Context(), c.Param("token"), middleware.GetViewerID(c))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}
	if !result.Valid {
		switch result.Reason {
		case models.ReasonUnauthorized:
			c.JSON(http.StatusForbidden, gin.H{"error": models.ReasonUnauthorized})
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": models.ReasonInvalidSession})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

// listSessionsHandler lists the caller's active sessions
// GET /api/v1/sessions
func (api *API) listSessionsHandler(c *gin.Context) {
	viewerID := middleware.GetViewerID(c)

	sessions, err := api.sessions.ListActive(c.Request.Context(), *viewerID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// createGrantHandler grants a viewer access to a video. The granter must
// themselves be allowed to watch it.
// POST /api/v1/videos/:id/grants
func (api *API) createGrantHandler(c *gin.Context) {
	videoID := c.Param("id")
	granterID := middleware.GetViewerID(c)

	var body struct {
		GranteeUserID string     `json:"grantee_user_id" binding:"required"`
		ExpiresAt     *time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	decision, err := api.access.Resolve(c.Request.Context(), videoID, granterID, "")
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}
	if !decision.Allow {
		c.JSON(statusForReason(decision.Reason), gin.H{"error": decision.Reason})
		return
	}

	grant := &models.PermissionGrant{
		VideoID:         videoID,
		GranteeUserID:   body.GranteeUserID,
		PermissionType:  models.PermissionTypeView,
		GrantedByUserID: *granterID,
		ExpiresAt:       body.ExpiresAt,
	}

	if err := api.repo.CreateGrant(c.Request.Context(), grant); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}

	c.JSON(http.StatusCreated, grant)
}

// deleteGrantHandler removes a grant. Only the video creator or the
// original granter may do so.
// DELETE /api/v1/videos/:id/grants/:user_id
func (api *API) deleteGrantHandler(c *gin.Context) {
	videoID := c.Param("id")
	granteeID := c.Param("user_id")
	requesterID := middleware.GetViewerID(c)

	video, err := api.repo.GetVideo(c.Request.Context(), videoID)
	if errors.Is(err, database.ErrVideoNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": models.ReasonVideoNotFound})
		return
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}

	grant, err := api.repo.GetGrant(c.Request.Context(), videoID, granteeID, models.PermissionTypeView)
	if errors.Is(err, database.ErrGrantNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "grant_not_found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}

	if *requesterID != video.CreatorID && *requesterID != grant.GrantedByUserID {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ReasonUnauthorized})
		return
	}

	if err := api.repo.DeleteGrant(c.Request.Context(), videoID, granteeID, models.PermissionTypeView); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// listGrantsHandler lists all grants on a video, for the creator only
// GET /api/v1/videos/:id/grants
func (api *API) listGrantsHandler(c *gin.Context) {
	videoID := c.Param("id")
	requesterID := middleware.GetViewerID(c)

	video, err := api.repo.GetVideo(c.Request.Context(), videoID)
	if errors.Is(err, database.ErrVideoNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": models.ReasonVideoNotFound})
		return
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}

	if *requesterID != video.CreatorID {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ReasonUnauthorized})
		return
	}

	grants, err := api.repo.ListGrants(c.Request.Context(), videoID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service_unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"video_id": videoID,
		"grants":   grants,
		"count":    len(grants),
	})
}

// healthHandler reports service health
// GET /health
func (api *API) healthHandler(c *gin.Context) {
	if api.health != nil {
		if err := api.health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
