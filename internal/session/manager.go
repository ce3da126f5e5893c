package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/database"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamgate/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamgate/pkg/models"
)

// Defaults for the session lifecycle
const (
	DefaultTTL                   = 2 * time.Hour
	DefaultMaxConcurrentSessions = 5
)

// Store is the persistence contract the manager runs against. All session
// state lives behind it so any instance can validate any session.
type Store interface {
	CreateSession(ctx context.Context, session *models.StreamingSession) error
	CreateSessionCapped(ctx context.Context, session *models.StreamingSession, ttl time.Duration, maxActive int) (int, error)
	GetSessionByToken(ctx context.Context, token string) (*models.StreamingSession, error)
	TouchSession(ctx context.Context, token string, now time.Time) (bool, error)
	RecordProgress(ctx context.Context, token string, positionSeconds, watchDeltaSeconds float64) error
	EndSession(ctx context.Context, token string, now time.Time) error
	ListActiveSessions(ctx context.Context, viewerUserID string, heartbeatAfter time.Time) ([]*models.StreamingSession, error)
}

// Options tunes the manager
type Options struct {
	TTL                   time.Duration
	MaxConcurrentSessions int
	// StrictIPCheck makes an IP-hash mismatch fail validation instead of
	// only logging a security event.
	StrictIPCheck bool
}

// Result carries a validation or revocation outcome with its reason code
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Manager creates, tracks and terminates streaming sessions and enforces
// the per-viewer concurrency cap. The cap is a courtesy limit, not a
// security boundary: evicting a session does not invalidate signed URLs
// already issued for it.
type Manager struct {
	store  Store
	logger *logging.Logger
	opts   Options
	now    func() time.Time
}

// NewManager creates a session manager
func NewManager(store Store, logger *logging.Logger, opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxConcurrentSessions < 1 {
		opts.MaxConcurrentSessions = DefaultMaxConcurrentSessions
	}

	return &Manager{
		store:  store,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
}

// HashFingerprint reduces a client attribute (IP, user agent) to a
// privacy-preserving SHA-256 hex digest. Empty input stays empty.
func HashFingerprint(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func newSessionToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Open creates a new session and returns its opaque token. For an
// authenticated viewer it enforces the concurrency cap by evicting the
// oldest-by-heartbeat sessions inside one transaction.
func (m *Manager) Open(ctx context.Context, videoID string, viewerID *string, ip, userAgent string) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}

	now := m.now()
	session := &models.StreamingSession{
		ID:              uuid.New().String(),
		VideoID:         videoID,
		ViewerUserID:    viewerID,
		SessionToken:    token,
		IPHash:          HashFingerprint(ip),
		UserAgentHash:   HashFingerprint(userAgent),
		StartedAt:       now,
		LastHeartbeatAt: now,
	}

	if viewerID == nil {
		if err := m.store.CreateSession(ctx, session); err != nil {
			return "", err
		}
	} else {
		evicted, err := m.store.CreateSessionCapped(ctx, session, m.opts.TTL, m.opts.MaxConcurrentSessions)
		if err != nil {
			return "", err
		}
		if evicted > 0 {
			metrics.SessionsEvictedTotal.Add(float64(evicted))
			m.logger.LogSessionEvent(token, "sessions_evicted", map[string]interface{}{
				"viewer_id": *viewerID,
				"evicted":   evicted,
			})
		}
	}

	metrics.SessionsOpenedTotal.Inc()
	m.logger.LogSessionEvent(token, "session_opened", map[string]interface{}{
		"video_id": videoID,
	})

	return token, nil
}

// Touch bumps the session heartbeat. Returns false if the session is
// unknown or already ended.
func (m *Manager) Touch(ctx context.Context, token string) (bool, error) {
	return m.store.TouchSession(ctx, token, m.now())
}

// Heartbeat bumps the session heartbeat and records playback progress
func (m *Manager) Heartbeat(ctx context.Context, token string, positionSeconds, watchDeltaSeconds float64) (bool, error) {
	touched, err := m.store.TouchSession(ctx, token, m.now())
	if err != nil || !touched {
		return touched, err
	}

	if err := m.store.RecordProgress(ctx, token, positionSeconds, watchDeltaSeconds); err != nil {
		return false, err
	}

	return true, nil
}

// Validate re-checks a session on every segment fetch: existence,
// revocation, total age, viewer binding. Session age is measured from
// creation, not last heartbeat, so heartbeats cannot extend a session
// forever. On success the heartbeat is bumped.
func (m *Manager) Validate(ctx context.Context, videoID, token string, viewerID *string, ipHint string) (Result, error) {
	session, err := m.store.GetSessionByToken(ctx, token)
	if errors.Is(err, database.ErrSessionNotFound) {
		metrics.RecordSessionValidation(models.ReasonInvalidSession)
		return Result{Reason: models.ReasonInvalidSession}, nil
	}
	if err != nil {
		return Result{}, err
	}

	now := m.now()

	if session.VideoID != videoID || session.EndedAt != nil {
		metrics.RecordSessionValidation(models.ReasonInvalidSession)
		return Result{Reason: models.ReasonInvalidSession}, nil
	}

	if now.Sub(session.StartedAt) > m.opts.TTL || now.Sub(session.LastHeartbeatAt) > m.opts.TTL {
		metrics.RecordSessionValidation(models.ReasonSessionExpired)
		return Result{Reason: models.ReasonSessionExpired}, nil
	}

	if session.ViewerUserID != nil && viewerID != nil && *session.ViewerUserID != *viewerID {
		metrics.RecordSessionValidation(models.ReasonUserMismatch)
		return Result{Reason: models.ReasonUserMismatch}, nil
	}

	if ipHint != "" && session.IPHash != "" && HashFingerprint(ipHint) != session.IPHash {
		// IPs legitimately change mid-session; log but do not fail unless
		// the strict policy is enabled.
		metrics.RecordSecurityEvent("ip_hash_mismatch")
		m.logger.LogSecurityEvent("ip_hash_mismatch", token, map[string]interface{}{
			"video_id": videoID,
		})
		if m.opts.StrictIPCheck {
			metrics.RecordSessionValidation(models.ReasonInvalidSession)
			return Result{Reason: models.ReasonInvalidSession}, nil
		}
	}

	if _, err := m.store.TouchSession(ctx, token, now); err != nil {
		return Result{}, err
	}

	metrics.RecordSessionValidation("valid")
	return Result{Valid: true}, nil
}

// Revoke ends a session. A session bound to a viewer may only be revoked
// by that viewer; revoking an ended-but-present session is a no-op success.
func (m *Manager) Revoke(ctx context.Context, token string, requestedBy *string) (Result, error) {
	session, err := m.store.GetSessionByToken(ctx, token)
	if errors.Is(err, database.ErrSessionNotFound) {
		return Result{Reason: models.ReasonInvalidSession}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if session.ViewerUserID != nil {
		if requestedBy == nil || *requestedBy != *session.ViewerUserID {
			metrics.RecordSecurityEvent("unauthorized_revoke")
			return Result{Reason: models.ReasonUnauthorized}, nil
		}
	}

	if session.EndedAt == nil {
		if err := m.store.EndSession(ctx, token, m.now()); err != nil {
			return Result{}, err
		}
		metrics.SessionsRevokedTotal.Inc()
		m.logger.LogSessionEvent(token, "session_revoked", nil)
	}

	return Result{Valid: true}, nil
}

// ListActive returns the viewer's active sessions for self-service
// "active devices" views
func (m *Manager) ListActive(ctx context.Context, viewerID string) ([]models.SessionSummary, error) {
	sessions, err := m.store.ListActiveSessions(ctx, viewerID, m.now().Add(-m.opts.TTL))
	if err != nil {
		return nil, err
	}

	summaries := make([]models.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, session.Summary())
	}

	return summaries, nil
}
