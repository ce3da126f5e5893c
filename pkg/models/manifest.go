package models

import (
	"time"
)

// Reason codes surfaced at the service boundary
const (
	ReasonVideoNotFound           = "video_not_found"
	ReasonVideoNotReady           = "video_not_ready"
	ReasonPublicVideo             = "public_video"
	ReasonUnlistedVideo           = "unlisted_video"
	ReasonAuthenticationRequired  = "authentication_required"
	ReasonVideoCreator            = "video_creator"
	ReasonExplicitPermission      = "explicit_permission"
	ReasonChannelPermission       = "channel_permission"
	ReasonInsufficientPermissions = "insufficient_permissions"
	ReasonNoStreamsAvailable      = "no_streams_available"
	ReasonInvalidSession          = "invalid_session"
	ReasonSessionExpired          = "session_expired"
	ReasonUserMismatch            = "user_mismatch"
	ReasonInvalidSignature        = "invalid_signature"
	ReasonURLExpired              = "url_expired"
	ReasonUnauthorized            = "unauthorized"
)

// ManifestRequest asks for signed playback URLs for one video
type ManifestRequest struct {
	VideoID           string  `json:"video_id"`
	ViewerUserID      *string `json:"viewer_user_id,omitempty"`
	ClientIP          string  `json:"-"`
	UserAgent         string  `json:"-"`
	QualityPreference string  `json:"quality_preference,omitempty"`
}

// StreamVariant is one signed playback URL plus its rendition metadata
type StreamVariant struct {
	URL        string  `json:"url"`
	Resolution string  `json:"resolution"`
	Bitrate    int64   `json:"bitrate"`
	Framerate  float64 `json:"framerate"`
}

// ManifestResult is the playback manifest returned to the client. On failure
// Error carries a reason code; a denied request must not be retried without a
// change in auth state.
type ManifestResult struct {
	Success            bool                     `json:"success"`
	VideoID            string                   `json:"video_id,omitempty"`
	SessionToken       string                   `json:"session_token,omitempty"`
	Streams            map[string]StreamVariant `json:"streams,omitempty"`
	RecommendedQuality string                   `json:"recommended_quality,omitempty"`
	ExpiresAt          time.Time                `json:"expires_at,omitempty"`
	Error              string                   `json:"error,omitempty"`
	Message            string                   `json:"message,omitempty"`
}
