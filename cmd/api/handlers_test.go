package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/access"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/database"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/middleware"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/session"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/token"
	"github.com/therealutkarshpriyadarshi/streamgate/pkg/models"
)

type fakeBuilder struct {
	result *models.ManifestResult
	err    error
	gotReq models.ManifestRequest
}

func (f *fakeBuilder) Build(ctx context.Context, req models.ManifestRequest) (*models.ManifestResult, error) {
	f.gotReq = req
	return f.result, f.err
}

type fakeSessions struct {
	heartbeatOK    bool
	heartbeatErr   error
	validateResult session.Result
	validateErr    error
	revokeResult   session.Result
	revokeErr      error
	active         []models.SessionSummary
	listErr        error
}

func (f *fakeSessions) Heartbeat(ctx context.Context, token string, positionSeconds, watchDeltaSeconds float64) (bool, error) {
	return f.heartbeatOK, f.heartbeatErr
}

func (f *fakeSessions) Validate(ctx context.Context, videoID, token string, viewerID *string, ipHint string) (session.Result, error) {
	return f.validateResult, f.validateErr
}

func (f *fakeSessions) Revoke(ctx context.Context, token string, requestedBy *string) (session.Result, error) {
	return f.revokeResult, f.revokeErr
}

func (f *fakeSessions) ListActive(ctx context.Context, viewerID string) ([]models.SessionSummary, error) {
	return f.active, f.listErr
}

type fakeAccess struct {
	decision access.Decision
	err      error
}

func (f *fakeAccess) Resolve(ctx context.Context, videoID string, viewerID *string, ipHash string) (access.Decision, error) {
	return f.decision, f.err
}

type fakeRepo struct {
	videos     map[string]*models.Video
	renditions map[string][]*models.Rendition
	grants     map[string]*models.PermissionGrant
	created    []*models.PermissionGrant
	deleted    []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		videos:     make(map[string]*models.Video),
		renditions: make(map[string][]*models.Rendition),
		grants:     make(map[string]*models.PermissionGrant),
	}
}

func grantKey(videoID, granteeID string) string {
	return videoID + "/" + granteeID
}

func (f *fakeRepo) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	video, ok := f.videos[id]
	if !ok {
		return nil, database.ErrVideoNotFound
	}
	return video, nil
}

func (f *fakeRepo) GetCompletedRenditions(ctx context.Context, videoID string) ([]*models.Rendition, error) {
	return f.renditions[videoID], nil
}

func (f *fakeRepo) CreateGrant(ctx context.Context, grant *models.PermissionGrant) error {
	f.created = append(f.created, grant)
	f.grants[grantKey(grant.VideoID, grant.GranteeUserID)] = grant
	return nil
}

func (f *fakeRepo) GetGrant(ctx context.Context, videoID, granteeUserID, permissionType string) (*models.PermissionGrant, error) {
	grant, ok := f.grants[grantKey(videoID, granteeUserID)]
	if !ok {
		return nil, database.ErrGrantNotFound
	}
	return grant, nil
}

func (f *fakeRepo) ListGrants(ctx context.Context, videoID string) ([]*models.PermissionGrant, error) {
	var out []*models.PermissionGrant
	for _, grant := range f.grants {
		if grant.VideoID == videoID {
			out = append(out, grant)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteGrant(ctx context.Context, videoID, granteeUserID, permissionType string) error {
	key := grantKey(videoID, granteeUserID)
	if _, ok := f.grants[key]; !ok {
		return database.ErrGrantNotFound
	}
	delete(f.grants, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeStorage struct {
	missing map[string]bool
}

func (f fakeStorage) ManifestExists(ctx context.Context, manifestKey string) (bool, error) {
	return !f.missing[manifestKey], nil
}

func (f fakeStorage) ManifestURL(manifestKey string) string {
	return "http://cdn.local/renditions/" + manifestKey
}

type fakeVerifier struct {
	result token.VerifyResult
}

func (f *fakeVerifier) Verify(videoID, quality, sessionToken string, expiresAtUnix int64, signature string) token.VerifyResult {
	return f.result
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.NewDefaultLogger()
	require.NoError(t, err)
	return logger
}

// viewerInjector stands in for the JWT middleware in handler tests
func viewerInjector(viewerID *string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if viewerID != nil {
			c.Set(middleware.ViewerContextKey, *viewerID)
		}
		c.Next()
	}
}

func newTestRouter(api *API, viewerID *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.GET("/health", api.healthHandler)
	router.GET("/stream/:video_id/:quality", viewerInjector(viewerID), api.streamHandler)

	v1 := router.Group("/api/v1")
	v1.Use(viewerInjector(viewerID))
	{
		v1.POST("/videos/:id/manifest", api.createManifestHandler)
		v1.POST("/sessions/:token/heartbeat", api.heartbeatHandler)
		v1.DELETE("/sessions/:token", api.revokeSessionHandler)
		v1.GET("/sessions", api.listSessionsHandler)
		v1.POST("/videos/:id/grants", api.createGrantHandler)
		v1.GET("/videos/:id/grants", api.listGrantsHandler)
		v1.DELETE("/videos/:id/grants/:user_id", api.deleteGrantHandler)
	}

	return router
}

func strPtr(s string) *string { return &s }

func TestCreateManifestSuccess(t *testing.T) {
	builder := &fakeBuilder{result: &models.ManifestResult{
		Success:            true,
		VideoID:            "video-1",
		SessionToken:       "sess-abc",
		RecommendedQuality: "720p",
		Streams: map[string]models.StreamVariant{
			"720p": {URL: "/stream/video-1/720p?token=sess-abc", Resolution: "1280x720"},
		},
	}}
	api := &API{builder: builder, logger: testLogger(t)}
	router := newTestRouter(api, strPtr("viewer-1"))

	body := bytes.NewBufferString(`{"quality_preference":"720p"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos/video-1/manifest", body)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var result models.ManifestResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "sess-abc", result.SessionToken)
	assert.Contains(t, result.Streams, "720p")

	require.NotNil(t, builder.gotReq.ViewerUserID)
	assert.Equal(t, "viewer-1", *builder.gotReq.ViewerUserID)
	assert.Equal(t, "720p", builder.gotReq.QualityPreference)
}

func TestCreateManifestDeniedStatusCodes(t *testing.T) {
	tests := []struct {
		reason string
		status int
	}{
		{models.ReasonVideoNotFound, http.StatusNotFound},
		{models.ReasonAuthenticationRequired, http.StatusUnauthorized},
		{models.ReasonInsufficientPermissions, http.StatusForbidden},
		{models.ReasonVideoNotReady, http.StatusForbidden},
		{models.ReasonNoStreamsAvailable, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			api := &API{
				builder: &fakeBuilder{result: &models.ManifestResult{Success: false, Error: tt.reason}},
				logger:  testLogger(t),
			}
			router := newTestRouter(api, nil)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/videos/video-1/manifest", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.reason)
		})
	}
}

func TestCreateManifestInfrastructureFailure(t *testing.T) {
	api := &API{
		builder: &fakeBuilder{err: fmt.Errorf("connection refused")},
		logger:  testLogger(t),
	}
	router := newTestRouter(api, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos/video-1/manifest", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "service_unavailable")
}

func TestStreamHandlerValid(t *testing.T) {
	repo := newFakeRepo()
	repo.renditions["video-1"] = []*models.Rendition{
		{Preset: "720p", ManifestKey: "video-1/720p/index.m3u8"},
	}

	api := &API{
		verifier: &fakeVerifier{result: token.VerifyResult{Valid: true}},
		sessions: &fakeSessions{validateResult: session.Result{Valid: true}},
		repo:     repo,
		storage:  fakeStorage{},
		logger:   testLogger(t),
	}
	router := newTestRouter(api, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream/video-1/720p?token=sess-abc&expires=9999999999&signature=sig", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http://cdn.local/renditions/video-1/720p/index.m3u8")
}

func TestStreamHandlerRejections(t *testing.T) {
	tests := []struct {
		name     string
		verify   token.VerifyResult
		validate session.Result
		status   int
		reason   string
	}{
		{
			name:   "invalid signature",
			verify: token.VerifyResult{Valid: false, Reason: models.ReasonInvalidSignature},
			status: http.StatusForbidden,
			reason: models.ReasonInvalidSignature,
		},
		{
			name:   "expired url",
			verify: token.VerifyResult{Valid: false, Reason: models.ReasonURLExpired},
			status: http.StatusGone,
			reason: models.ReasonURLExpired,
		},
		{
			name:     "revoked session",
			verify:   token.VerifyResult{Valid: true},
			validate: session.Result{Valid: false, Reason: models.ReasonInvalidSession},
			status:   http.StatusForbidden,
			reason:   models.ReasonInvalidSession,
		},
		{
			name:     "expired session",
			verify:   token.VerifyResult{Valid: true},
			validate: session.Result{Valid: false, Reason: models.ReasonSessionExpired},
			status:   http.StatusForbidden,
			reason:   models.ReasonSessionExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &API{
				verifier: &fakeVerifier{result: tt.verify},
				sessions: &fakeSessions{validateResult: tt.validate},
				repo:     newFakeRepo(),
				storage:  fakeStorage{},
				logger:   testLogger(t),
			}
			router := newTestRouter(api, nil)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/stream/video-1/720p?token=sess-abc&expires=9999999999&signature=sig", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.reason)
		})
	}
}

func TestStreamHandlerMalformedExpires(t *testing.T) {
	api := &API{
		verifier: &fakeVerifier{result: token.VerifyResult{Valid: true}},
		logger:   testLogger(t),
	}
	router := newTestRouter(api, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream/video-1/720p?token=sess-abc&expires=never&signature=sig", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamHandlerUnknownQuality(t *testing.T) {
	repo := newFakeRepo()
	repo.renditions["video-1"] = []*models.Rendition{
		{Preset: "480p", ManifestKey: "video-1/480p/index.m3u8"},
	}

	api := &API{
		verifier: &fakeVerifier{result: token.VerifyResult{Valid: true}},
		sessions: &fakeSessions{validateResult: session.Result{Valid: true}},
		repo:     repo,
		storage:  fakeStorage{},
		logger:   testLogger(t),
	}
	router := newTestRouter(api, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream/video-1/1080p?token=sess-abc&expires=9999999999&signature=sig", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), models.ReasonNoStreamsAvailable)
}

func TestStreamHandlerMissingManifestObject(t *testing.T) {
	repo := newFakeRepo()
	repo.renditions["video-1"] = []*models.Rendition{
		{Preset: "720p", ManifestKey: "video-1/720p/index.m3u8"},
	}

	api := &API{
		verifier: &fakeVerifier{result: token.VerifyResult{Valid: true}},
		sessions: &fakeSessions{validateResult: session.Result{Valid: true}},
		repo:     repo,
		storage:  fakeStorage{missing: map[string]bool{"video-1/720p/index.m3u8": true}},
		logger:   testLogger(t),
	}
	router := newTestRouter(api, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream/video-1/720p?token=sess-abc&expires=9999999999&signature=sig", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), models.ReasonNoStreamsAvailable)
}

func TestHeartbeatHandler(t *testing.T) {
	api := &API{sessions: &fakeSessions{heartbeatOK: true}, logger: testLogger(t)}
	router := newTestRouter(api, nil)

	body := bytes.NewBufferString(`{"position_seconds":42.5,"watch_delta_seconds":10}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-abc/heartbeat", body)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHeartbeatUnknownSession(t *testing.T) {
	api := &API{sessions: &fakeSessions{heartbeatOK: false}, logger: testLogger(t)}
	router := newTestRouter(api, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/missing/heartbeat", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), models.ReasonInvalidSession)
}

func TestRevokeSessionHandler(t *testing.T) {
	tests := []struct {
		name   string
		result session.Result
		status int
	}{
		{"revoked", session.Result{Valid: true}, http.StatusOK},
		{"unknown session", session.Result{Valid: false, Reason: models.ReasonInvalidSession}, http.StatusNotFound},
		{"not the owner", session.Result{Valid: false, Reason: models.ReasonUnauthorized}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &API{sessions: &fakeSessions{revokeResult: tt.result}, logger: testLogger(t)}
			router := newTestRouter(api, strPtr("viewer-1"))

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/sess-abc", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestListSessionsHandler(t *testing.T) {
	api := &API{
		sessions: &fakeSessions{active: []models.SessionSummary{
			{SessionToken: "sess-1", VideoID: "video-1", StartedAt: time.Now()},
			{SessionToken: "sess-2", VideoID: "video-2", StartedAt: time.Now()},
		}},
		logger: testLogger(t),
	}
	router := newTestRouter(api, strPtr("viewer-1"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Count)
}

func TestCreateGrantRequiresAllow(t *testing.T) {
	repo := newFakeRepo()
	api := &API{
		access: &fakeAccess{decision: access.Decision{Allow: false, Reason: models.ReasonInsufficientPermissions}},
		repo:   repo,
		logger: testLogger(t),
	}
	router := newTestRouter(api, strPtr("viewer-1"))

	body := bytes.NewBufferString(`{"grantee_user_id":"viewer-2"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos/video-1/grants", body)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, repo.created)
}

func TestCreateGrantSuccess(t *testing.T) {
	repo := newFakeRepo()
	api := &API{
		access: &fakeAccess{decision: access.Decision{Allow: true, Reason: models.ReasonVideoCreator}},
		repo:   repo,
		logger: testLogger(t),
	}
	router := newTestRouter(api, strPtr("creator-1"))

	body := bytes.NewBufferString(`{"grantee_user_id":"viewer-2"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos/video-1/grants", body)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "viewer-2", repo.created[0].GranteeUserID)
	assert.Equal(t, "creator-1", repo.created[0].GrantedByUserID)
	assert.Equal(t, models.PermissionTypeView, repo.created[0].PermissionType)
}

func TestCreateGrantRejectsMissingGrantee(t *testing.T) {
	api := &API{
		access: &fakeAccess{decision: access.Decision{Allow: true}},
		repo:   newFakeRepo(),
		logger: testLogger(t),
	}
	router := newTestRouter(api, strPtr("creator-1"))

	body := bytes.NewBufferString(`{}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos/video-1/grants", body)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteGrantByCreator(t *testing.T) {
	repo := newFakeRepo()
	repo.videos["video-1"] = &models.Video{ID: "video-1", CreatorID: "creator-1"}
	repo.grants[grantKey("video-1", "viewer-2")] = &models.PermissionGrant{
		VideoID:         "video-1",
		GranteeUserID:   "viewer-2",
		GrantedByUserID: "someone-else",
	}

	api := &API{repo: repo, logger: testLogger(t)}
	router := newTestRouter(api, strPtr("creator-1"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/videos/video-1/grants/viewer-2", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, repo.deleted, 1)
}

func TestDeleteGrantRejectsStranger(t *testing.T) {
	repo := newFakeRepo()
	repo.videos["video-1"] = &models.Video{ID: "video-1", CreatorID: "creator-1"}
	repo.grants[grantKey("video-1", "viewer-2")] = &models.PermissionGrant{
		VideoID:         "video-1",
		GranteeUserID:   "viewer-2",
		GrantedByUserID: "creator-1",
	}

	api := &API{repo: repo, logger: testLogger(t)}
	router := newTestRouter(api, strPtr("viewer-3"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/videos/video-1/grants/viewer-2", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, repo.deleted)
}

func TestListGrantsCreatorOnly(t *testing.T) {
	repo := newFakeRepo()
	repo.videos["video-1"] = &models.Video{ID: "video-1", CreatorID: "creator-1"}
	repo.grants[grantKey("video-1", "viewer-2")] = &models.PermissionGrant{
		VideoID:       "video-1",
		GranteeUserID: "viewer-2",
	}

	api := &API{repo: repo, logger: testLogger(t)}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/videos/video-1/grants", nil)
	newTestRouter(api, strPtr("creator-1")).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "viewer-2")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/videos/video-1/grants", nil)
	newTestRouter(api, strPtr("viewer-2")).ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHealthHandler(t *testing.T) {
	api := &API{
		health: func(ctx context.Context) error { return nil },
		logger: testLogger(t),
	}
	router := newTestRouter(api, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestHealthHandlerUnhealthy(t *testing.T) {
	api := &API{
		health: func(ctx context.Context) error { return fmt.Errorf("db down") },
		logger: testLogger(t),
	}
	router := newTestRouter(api, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
