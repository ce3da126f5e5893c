package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/streamgate/pkg/models"
)

// Streaming sessions

// CreateSession inserts a new streaming session without cap enforcement.
// Anonymous sessions take this path; authenticated opens go through
// CreateSessionCapped.
func (r *Repository) CreateSession(ctx context.Context, session *models.StreamingSession) error {
	query := `
		INSERT INTO streaming_sessions (id, video_id, viewer_user_id, session_token,
		                                ip_hash, user_agent_hash, started_at, last_heartbeat_at,
		                                playback_position_seconds, watch_time_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		session.ID, session.VideoID, session.ViewerUserID, session.SessionToken,
		session.IPHash, session.UserAgentHash, session.StartedAt, session.LastHeartbeatAt,
		session.PlaybackPositionSeconds, session.WatchTimeSeconds,
	)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// CreateSessionCapped inserts a session for an authenticated viewer while
// holding the viewer's active-session set under a row lock. If the viewer is
// at or over maxActive, the oldest-by-heartbeat sessions are ended until
// maxActive-1 remain, then the count is re-checked before the insert so two
// racing opens cannot overshoot the cap through the same snapshot.
// Returns the number of sessions evicted.
func (r *Repository) CreateSessionCapped(ctx context.Context, session *models.StreamingSession, ttl time.Duration, maxActive int) (int, error) {
	if session.ViewerUserID == nil {
		return 0, fmt.Errorf("capped session insert requires a viewer")
	}

	evicted := 0

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		evicted = 0
		cutoff := session.StartedAt.Add(-ttl)

		// Lock the viewer's active rows so concurrent opens serialize here.
		rows, err := tx.Query(ctx, `
			SELECT session_token
			FROM streaming_sessions
			WHERE viewer_user_id = $1
			  AND ended_at IS NULL
			  AND last_heartbeat_at > $2
			ORDER BY last_heartbeat_at ASC
			FOR UPDATE
		`, *session.ViewerUserID, cutoff)
		if err != nil {
			return fmt.Errorf("failed to lock active sessions: %w", err)
		}

		var tokens []string
		for rows.Next() {
			var token string
			if err := rows.Scan(&token); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan session token: %w", err)
			}
			tokens = append(tokens, token)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read active sessions: %w", err)
		}

		if len(tokens) >= maxActive {
			// Oldest first until exactly maxActive-1 survive.
			toEvict := tokens[:len(tokens)-(maxActive-1)]
			tag, err := tx.Exec(ctx, `
				UPDATE streaming_sessions
				SET ended_at = $1
				WHERE session_token = ANY($2) AND ended_at IS NULL
			`, session.StartedAt, toEvict)
			if err != nil {
				return fmt.Errorf("failed to evict sessions: %w", err)
			}
			evicted = int(tag.RowsAffected())

			// Re-verify inside the same transaction before creating the
			// new session.
			var remaining int
			err = tx.QueryRow(ctx, `
				SELECT COUNT(*)
				FROM streaming_sessions
				WHERE viewer_user_id = $1
				  AND ended_at IS NULL
				  AND last_heartbeat_at > $2
			`, *session.ViewerUserID, cutoff).Scan(&remaining)
			if err != nil {
				return fmt.Errorf("failed to recount active sessions: %w", err)
			}
			if remaining > maxActive-1 {
				return fmt.Errorf("session cap recount failed: %d active after eviction", remaining)
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO streaming_sessions (id, video_id, viewer_user_id, session_token,
			                                ip_hash, user_agent_hash, started_at, last_heartbeat_at,
			                                playback_position_seconds, watch_time_seconds)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			session.ID, session.VideoID, session.ViewerUserID, session.SessionToken,
			session.IPHash, session.UserAgentHash, session.StartedAt, session.LastHeartbeatAt,
			session.PlaybackPositionSeconds, session.WatchTimeSeconds,
		)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return evicted, nil
}

// GetSessionByToken retrieves a session by its opaque token
func (r *Repository) GetSessionByToken(ctx context.Context, token string) (*models.StreamingSession, error) {
	var session models.StreamingSession

	query := `
		SELECT id, video_id, viewer_user_id, session_token, ip_hash, user_agent_hash,
		       started_at, last_heartbeat_at, ended_at,
		       playback_position_seconds, watch_time_seconds
		FROM streaming_sessions
		WHERE session_token = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, token).Scan(
		&session.ID, &session.VideoID, &session.ViewerUserID, &session.SessionToken,
		&session.IPHash, &session.UserAgentHash,
		&session.StartedAt, &session.LastHeartbeatAt, &session.EndedAt,
		&session.PlaybackPositionSeconds, &session.WatchTimeSeconds,
	)

	if err == pgx.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

// TouchSession bumps a session heartbeat. Returns false if the session is
// unknown or already ended. Concurrent touches are last-write-wins.
func (r *Repository) TouchSession(ctx context.Context, token string, now time.Time) (bool, error) {
	query := `
		UPDATE streaming_sessions
		SET last_heartbeat_at = $2
		WHERE session_token = $1 AND ended_at IS NULL
	`

	tag, err := r.db.Pool.Exec(ctx, query, token, now)
	if err != nil {
		return false, fmt.Errorf("failed to touch session: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// RecordProgress updates playback position and accumulates watch time on a
// live session
func (r *Repository) RecordProgress(ctx context.Context, token string, positionSeconds, watchDeltaSeconds float64) error {
	query := `
		UPDATE streaming_sessions
		SET playback_position_seconds = $2,
		    watch_time_seconds = watch_time_seconds + $3
		WHERE session_token = $1 AND ended_at IS NULL
	`

	_, err := r.db.Pool.Exec(ctx, query, token, positionSeconds, watchDeltaSeconds)
	if err != nil {
		return fmt.Errorf("failed to record progress: %w", err)
	}

	return nil
}

// EndSession marks a session ended. EndedAt once set is never cleared;
// ending an already-ended session leaves the original end time in place.
func (r *Repository) EndSession(ctx context.Context, token string, now time.Time) error {
	query := `
		UPDATE streaming_sessions
		SET ended_at = $2
		WHERE session_token = $1 AND ended_at IS NULL
	`

	_, err := r.db.Pool.Exec(ctx, query, token, now)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	return nil
}

// ListActiveSessions retrieves a viewer's sessions that have not ended and
// whose heartbeat falls within the TTL window
func (r *Repository) ListActiveSessions(ctx context.Context, viewerUserID string, heartbeatAfter time.Time) ([]*models.StreamingSession, error) {
	query := `
		SELECT id, video_id, viewer_user_id, session_token, ip_hash, user_agent_hash,
		       started_at, last_heartbeat_at, ended_at,
		       playback_position_seconds, watch_time_seconds
		FROM streaming_sessions
		WHERE viewer_user_id = $1
		  AND ended_at IS NULL
		  AND last_heartbeat_at > $2
		ORDER BY last_heartbeat_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, viewerUserID, heartbeatAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.StreamingSession
	for rows.Next() {
		var session models.StreamingSession
		err := rows.Scan(
			&session.ID, &session.VideoID, &session.ViewerUserID, &session.SessionToken,
			&session.IPHash, &session.UserAgentHash,
			&session.StartedAt, &session.LastHeartbeatAt, &session.EndedAt,
			&session.PlaybackPositionSeconds, &session.WatchTimeSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &session)
	}

	return sessions, nil
}
