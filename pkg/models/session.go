package models

import (
	"time"
)

// StreamingSession is a bounded-lifetime viewing context binding a viewer
// (or anonymous) to a video. EndedAt once set is never cleared.
type StreamingSession struct {
	ID                      string     `json:"id" db:"id"`
	VideoID                 string     `json:"video_id" db:"video_id"`
	ViewerUserID            *string    `json:"viewer_user_id,omitempty" db:"viewer_user_id"`
	SessionToken            string     `json:"session_token" db:"session_token"`
	IPHash                  string     `json:"ip_hash,omitempty" db:"ip_hash"`
	UserAgentHash           string     `json:"user_agent_hash,omitempty" db:"user_agent_hash"`
	StartedAt               time.Time  `json:"started_at" db:"started_at"`
	LastHeartbeatAt         time.Time  `json:"last_heartbeat_at" db:"last_heartbeat_at"`
	EndedAt                 *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	PlaybackPositionSeconds float64    `json:"playback_position_seconds" db:"playback_position_seconds"`
	WatchTimeSeconds        float64    `json:"watch_time_seconds" db:"watch_time_seconds"`
}

// Active reports whether the session is live: not ended and heartbeat seen
// within the TTL window.
func (s *StreamingSession) Active(now time.Time, ttl time.Duration) bool {
	return s.EndedAt == nil && now.Sub(s.LastHeartbeatAt) < ttl
}

// SessionSummary is the self-service "active devices" view of a session
type SessionSummary struct {
	SessionToken    string    `json:"session_token"`
	VideoID         string    `json:"video_id"`
	StartedAt       time.Time `json:"started_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// Summary projects a session into its list-view form
func (s *StreamingSession) Summary() SessionSummary {
	return SessionSummary{
		SessionToken:    s.SessionToken,
		VideoID:         s.VideoID,
		StartedAt:       s.StartedAt,
		LastHeartbeatAt: s.LastHeartbeatAt,
	}
}
